package indicator

import (
	"math"
	"testing"
	"time"

	"indicator-dashboardv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertSeries(t *testing.T, label string, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d", label, len(got), len(want))
	}
	for i := range want {
		assertClose(t, label, got[i], want[i], 1e-9)
	}
}

// rising returns n newest-first prices where index 0 is the highest.
func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 - float64(i)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Moving averages
// ────────────────────────────────────────────────────────────

func TestSMA(t *testing.T) {
	// Windows (newest-first): [4,3] [3,2] [2,1]; oldest point carries 1.5.
	assertSeries(t, "SMA(2)", SMA([]float64{4, 3, 2, 1}, 2), []float64{3.5, 2.5, 1.5, 1.5})
	if SMA([]float64{1}, 2) != nil {
		t.Error("short input must be nil")
	}
	if SMA([]float64{1, 2}, 0) != nil {
		t.Error("zero period must be nil")
	}
}

func TestWMA(t *testing.T) {
	// Newest weighs 3: (4*3+3*2+2*1)/6 = 20/6, (3*3+2*2+1)/6 = 14/6.
	assertSeries(t, "WMA(3)", WMA([]float64{4, 3, 2, 1}, 3), []float64{20.0 / 6, 14.0 / 6, 14.0 / 6, 14.0 / 6})
	if WMA([]float64{1, 2}, 3) != nil {
		t.Error("short input must be nil")
	}
}

func TestHLCC(t *testing.T) {
	got := HLCC([]model.Candle{{High: 12, Low: 6, Close: 9}, {High: 3, Low: 3, Close: 3}})
	assertSeries(t, "HLCC", got, []float64{9, 3})
}

// ────────────────────────────────────────────────────────────
// Oscillators
// ────────────────────────────────────────────────────────────

func TestRSI_Extremes(t *testing.T) {
	up := RSI(rising(6), 2)
	for _, v := range up {
		assertClose(t, "RSI rising", v, 100-100.0/101, 1e-9)
	}

	falling := []float64{1, 2, 3, 4, 5, 6}
	for _, v := range RSI(falling, 2) {
		assertClose(t, "RSI falling", v, 0, 1e-9)
	}

	if RSI([]float64{1, 2}, 2) != nil {
		t.Error("RSI needs period+1 points")
	}
}

func TestRSI_Mixed(t *testing.T) {
	// Changes newest-first: +2, -1, +1. WMA(2) at 0: gains (2*2+0)/3, losses (0*2+1)/3.
	price := []float64{12, 10, 11, 10}
	got := RSI(price, 2)
	rs := (4.0 / 3) / (1.0 / 3)
	assertClose(t, "RSI[0]", got[0], 100-100/(1+rs), 1e-9)
	if len(got) != len(price) {
		t.Fatalf("len %d", len(got))
	}
}

func TestCCI(t *testing.T) {
	// WMA = 14/6, MAD = 7/9, (3 - 14/6) / (0.015 * 7/9) = 6/0.105.
	got := CCI([]float64{3, 2, 1}, 3)
	assertClose(t, "CCI", got[0], 6/0.105, 1e-9)
	assertClose(t, "CCI carried", got[2], got[0], 0)

	for _, v := range CCI([]float64{5, 5, 5, 5}, 3) {
		if v != 0 {
			t.Errorf("flat CCI: got %v, want 0", v)
		}
	}
	if CCI([]float64{1, 2}, 3) != nil {
		t.Error("short input must be nil")
	}
}

func TestMACD_LinearTrend(t *testing.T) {
	// For price 100-i, WMA(2)-WMA(3) is 1/3 wherever both are defined.
	m := MACD(rising(10), 2, 3, 2)
	if m.Empty() {
		t.Fatal("MACD empty")
	}
	for _, s := range [][]float64{m.Line, m.Signal, m.Histogram} {
		if len(s) != 10 {
			t.Fatalf("component len %d, want 10", len(s))
		}
	}
	assertClose(t, "hist[0]", m.Histogram[0], 1.0/3, 1e-9)
	assertClose(t, "hist[7]", m.Histogram[7], 1.0/3, 1e-9)
	assertClose(t, "hist[8]", m.Histogram[8], 0, 0)
	assertClose(t, "line[0]", m.Line[0], 1.0/3, 1e-9)
	assertClose(t, "line[6]", m.Line[6], 1.0/6, 1e-9) // diff[8] is outside the slow window
	assertClose(t, "signal[0]", m.Signal[0], 1.0/3, 1e-9)

	if !MACD(rising(2), 2, 3, 2).Empty() {
		t.Error("MACD shorter than slow period must be empty")
	}
}

// ────────────────────────────────────────────────────────────
// Bands
// ────────────────────────────────────────────────────────────

func TestBollinger(t *testing.T) {
	b := Bollinger([]float64{3, 2, 1}, 3, 2)
	w := 2 * math.Sqrt(2.0/3)
	assertClose(t, "middle", b.Middle[0], 14.0/6, 1e-9)
	assertClose(t, "upper", b.Upper[0], 14.0/6+w, 1e-9)
	assertClose(t, "lower", b.Lower[0], 14.0/6-w, 1e-9)
	assertClose(t, "carried upper", b.Upper[2], b.Upper[0], 0)

	flat := Bollinger([]float64{7, 7, 7, 7}, 2, 2)
	for i := range flat.Middle {
		if flat.Upper[i] != 7 || flat.Lower[i] != 7 {
			t.Errorf("flat bands at %d: %v/%v", i, flat.Upper[i], flat.Lower[i])
		}
	}
	if !Bollinger([]float64{1}, 3, 2).Empty() {
		t.Error("short input must be empty")
	}
}

func TestEnvelope(t *testing.T) {
	b := Envelope([]float64{100, 100, 100}, 2, 2.5)
	for i := range b.Middle {
		assertClose(t, "middle", b.Middle[i], 100, 1e-9)
		assertClose(t, "upper", b.Upper[i], 102.5, 1e-9)
		assertClose(t, "lower", b.Lower[i], 97.5, 1e-9)
	}
	if !Envelope(nil, 2, 1).Empty() {
		t.Error("empty input must be empty")
	}
}

// ────────────────────────────────────────────────────────────
// Volatility
// ────────────────────────────────────────────────────────────

// hourly builds oldest-first hourly candles for days whole days plus extra
// hours of the current day. Day d has range d+1.
func hourly(days, extra int) []model.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var out []model.Candle
	for h := 0; h < days*24+extra; h++ {
		d := h / 24
		out = append(out, model.Candle{
			Time: start.Add(time.Duration(h) * time.Hour),
			High: 100 + float64(d+1),
			Low:  100,
		})
	}
	return out
}

func TestVolatility5Days(t *testing.T) {
	// 7 whole days then 3 hours of day 8. Five days before day 8 are days 3..7
	// (ranges 3..7), averaging 5.
	assertClose(t, "vol", Volatility5Days(hourly(7, 3)), 5, 1e-9)

	// The current day never counts, even with a huge range.
	c := hourly(7, 1)
	c[len(c)-1].High = 1e6
	assertClose(t, "vol ignores today", Volatility5Days(c), 5, 1e-9)
}

func TestVolatility5Days_NotEnoughDays(t *testing.T) {
	assertClose(t, "4 days", Volatility5Days(hourly(4, 1)), 0, 0)
	assertClose(t, "empty", Volatility5Days(nil), 0, 0)

	// A flat day is skipped, leaving only four usable days.
	c := hourly(5, 1)
	for i := 0; i < 24; i++ {
		c[i].High, c[i].Low = 100, 100
	}
	assertClose(t, "flat day skipped", Volatility5Days(c), 0, 0)
}
