package main

import (
	"math"
	"math/rand"
	"time"

	"indicator-dashboardv1/internal/model"
)

// defaultPrices seeds well-known symbols; others start at 100.
var defaultPrices = map[string]float64{
	"BTCUSDT": 65000,
	"ETHUSDT": 3200,
	"SOLUSDT": 150,
}

// walker produces a random-walk candle series for one symbol/interval.
// Each step closes one bar; bar times advance by the interval regardless of
// wall time, so a day of bars can be produced in seconds.
type walker struct {
	symbol   string
	interval string
	step     time.Duration
	rng      *rand.Rand

	next  time.Time // open time of the next bar
	price float64   // last close
}

func newWalker(symbol, interval string, seed int64) (*walker, error) {
	minutes, err := model.IntervalMinutes(interval)
	if err != nil {
		return nil, err
	}
	price := defaultPrices[symbol]
	if price == 0 {
		price = 100
	}
	return &walker{
		symbol:   symbol,
		interval: interval,
		step:     time.Duration(minutes) * time.Minute,
		rng:      rand.New(rand.NewSource(seed)),
		price:    price,
	}, nil
}

// resume continues the series after the last stored bar.
func (w *walker) resume(last time.Time, lastClose float64) {
	w.next = last.Add(w.step)
	if lastClose > 0 {
		w.price = lastClose
	}
}

// seed generates n bars ending at the bar containing now.
func (w *walker) seed(now time.Time, n int) []model.Bar {
	w.next = now.Truncate(w.step).Add(-time.Duration(n-1) * w.step)
	out := make([]model.Bar, n)
	for i := range out {
		out[i] = w.bar()
	}
	return out
}

// bar closes the next bar. Volatility scales with the square root of the
// interval so every series moves about 0.1% per 15 minutes.
func (w *walker) bar() model.Bar {
	sigma := 0.001 * math.Sqrt(w.step.Minutes()/15)
	open := w.price
	closeP := open * (1 + w.rng.NormFloat64()*sigma)
	if closeP < 0.01 {
		closeP = 0.01
	}
	hi := math.Max(open, closeP) * (1 + math.Abs(w.rng.NormFloat64())*sigma/2)
	lo := math.Min(open, closeP) * (1 - math.Abs(w.rng.NormFloat64())*sigma/2)

	b := model.Bar{
		Symbol:   w.symbol,
		Interval: w.interval,
		Candle: model.Candle{
			Time:   w.next,
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  closeP,
			Volume: float64(w.rng.Intn(1000) + 1),
		},
	}
	w.price = closeP
	w.next = w.next.Add(w.step)
	return b
}
