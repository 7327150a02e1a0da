// Package snapshot turns a candle history and an indicator config into the
// newest-first Snapshot the dashboard renders.
package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"indicator-dashboardv1/internal/chart/zone"
	"indicator-dashboardv1/internal/indicator"
	"indicator-dashboardv1/internal/model"
)

var ErrNoCandles = errors.New("snapshot: no candles")

// Builder computes snapshots. The zero value is not usable; use NewBuilder.
type Builder struct {
	now func() time.Time
}

// NewBuilder returns a builder stamping snapshots with the wall clock.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build computes every indicator family for candles, which are oldest-first.
// Config periods are in hours and are scaled to bars by interval; family keys
// keep the unscaled values.
func (b *Builder) Build(symbol, interval string, candles []model.Candle, cfg model.IndicatorConfig) (*model.Snapshot, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	if _, err := model.IntervalMinutes(interval); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	bars := func(hours int) int {
		n, _ := model.ScalePeriod(hours, interval)
		return n
	}

	newest := model.Reverse(candles)
	price := indicator.HLCC(newest)
	last := newest[0].Close

	snap := &model.Snapshot{
		Symbol:     symbol,
		Interval:   interval,
		Timestamp:  b.now().UTC(),
		Price:      last,
		Candles:    newest,
		CCI:        model.Family{},
		MACD:       model.Family{},
		RSI:        model.Family{},
		Volatility: indicator.Volatility5Days(candles),
	}

	for _, p := range []int{cfg.CCIPeriod1, cfg.CCIPeriod2, cfg.CCIPeriod3} {
		snap.CCI.SetSeries(strconv.Itoa(p), values(indicator.CCI(price, bars(p))))
	}
	for _, p := range []int{cfg.RSIPeriod1, cfg.RSIPeriod2} {
		snap.RSI.SetSeries(strconv.Itoa(p), values(indicator.RSI(price, bars(p))))
	}
	macds := []struct{ fast, slow, signal int }{
		{cfg.MACDFast1, cfg.MACDSlow1, cfg.MACDSignal1},
		{cfg.MACDFast2, cfg.MACDSlow2, cfg.MACDSignal2},
	}
	for _, m := range macds {
		r := indicator.MACD(price, bars(m.fast), bars(m.slow), bars(m.signal))
		snap.MACD.SetComponents(fmt.Sprintf("%d_%d", m.fast, m.slow), map[string]model.Values{
			model.ComponentMACDLine:   values(r.Line),
			model.ComponentSignalLine: values(r.Signal),
			model.ComponentHistogram:  values(r.Histogram),
		})
	}

	snap.Bollinger = band(indicator.Bollinger(price, bars(cfg.BollPeriod), cfg.BollDeviation), last)
	snap.Envelope = band(indicator.Envelope(price, bars(cfg.EnvPeriod), cfg.EnvDeviation), last)
	return snap, nil
}

// values keeps too-short series as empty arrays on the wire.
func values(s []float64) model.Values {
	if s == nil {
		return model.Values{}
	}
	return model.Values(s)
}

// band classifies price against the newest point. Bands that could not be
// computed are left out of the snapshot.
func band(b indicator.Bands, price float64) *model.Band {
	if b.Empty() {
		return nil
	}
	return &model.Band{
		Upper:  b.Upper,
		Middle: b.Middle,
		Lower:  b.Lower,
		Zone:   zone.Classify(price, b.Middle[0], b.Upper[0], b.Lower[0]),
	}
}
