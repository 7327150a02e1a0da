package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-dashboardv1/internal/chart"
	"indicator-dashboardv1/internal/model"
)

func testSnapshot() *model.Snapshot {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &model.Snapshot{
		Symbol: "BTCUSDT",
		Candles: []model.Candle{
			{Time: t0.Add(2 * time.Hour), Open: 3, High: 4, Low: 2, Close: 3.5},
			{Time: t0.Add(time.Hour), Open: 2, High: 3, Low: 1, Close: 2.5},
			{Time: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		},
		Bollinger: &model.Band{Upper: model.Values{13, 12, 11}, Middle: model.Values{10, 20, 30}, Lower: model.Values{7, 8, 9}},
		Envelope:  &model.Band{Upper: model.Values{1, 2}, Middle: model.Values{1, 2, 3}, Lower: model.Values{1, 2, 3}},
		CCI:       model.Family{},
		MACD:      model.Family{},
	}
	s.CCI.SetSeries("168", model.Values{7, 8, 9})
	s.CCI.SetSeries("48", model.Values{1, 2, 3})
	s.CCI.SetSeries("72", model.Values{4, 5, 6})
	s.MACD.SetComponents("72_168", map[string]model.Values{
		model.ComponentHistogram: {1, 2, 3},
		model.ComponentMACDLine:  {4, 5, 6},
	})
	s.MACD.SetComponents("48_72", map[string]model.Values{
		model.ComponentHistogram:  {1, 1, 1},
		model.ComponentMACDLine:   {2, 2, 2},
		model.ComponentSignalLine: {3, 3, 3},
	})
	return s
}

func TestMain_DisplayOrder(t *testing.T) {
	build := Main(MainConfig{
		Label: "Price",
		Bands: []BandStyle{
			{Family: model.BandBollinger, Label: "BOLL"},
			{Family: model.BandEnvelope, Label: "ENV"},
		},
	})
	out := build(testSnapshot(), 0)
	require.Len(t, out, 7)

	assert.Equal(t, chart.KindCandle, out[0].Kind)
	assert.Equal(t, []chart.OHLC{{1, 1.5, 0.5, 2}, {2, 2.5, 1, 3}, {3, 3.5, 2, 4}}, out[0].Candles)

	assert.Equal(t, "BOLL Middle", out[2].Name)
	assert.Equal(t, []float64{30, 20, 10}, out[2].Values, "source [10,20,30] shows as [30,20,10]")

	assert.Equal(t, "ENV Upper", out[4].Name)
	assert.Empty(t, out[4].Values, "length mismatch degrades to an empty series")
	assert.NotNil(t, out[4].Values)
	assert.Equal(t, []float64{3, 2, 1}, out[5].Values)
}

func TestMain_NoBands(t *testing.T) {
	s := testSnapshot()
	s.Bollinger, s.Envelope = nil, nil
	out := Main(MainConfig{Label: "Price", Bands: []BandStyle{{Family: model.BandBollinger}}})(s, 0)
	assert.Len(t, out, 1)
}

func TestOscillator_NumericKeyOrder(t *testing.T) {
	build := Oscillator(OscillatorConfig{
		Family:  model.FamilyCCI,
		Prefix:  "CCI",
		Palette: []string{"#a", "#b", "#c"},
	})
	// Map iteration order is random; the output must not be.
	for i := 0; i < 20; i++ {
		out := build(testSnapshot(), 2)
		require.Len(t, out, 3)
		assert.Equal(t, "CCI1 (48)", out[0].Name)
		assert.Equal(t, "CCI2 (72)", out[1].Name)
		assert.Equal(t, "CCI3 (168)", out[2].Name)
		assert.Equal(t, "#a", out[0].Style.Color)
		assert.Equal(t, "#c", out[2].Style.Color)
		assert.Equal(t, []float64{3, 2, 1}, out[0].Values)
	}
}

func TestOscillator_Components(t *testing.T) {
	build := Oscillator(OscillatorConfig{
		Family: model.FamilyMACD,
		Prefix: "MACD",
		Components: []Component{
			{Key: model.ComponentHistogram, Suffix: "hist", Kind: chart.KindBar},
			{Key: model.ComponentMACDLine, Suffix: "macd", Kind: chart.KindLine},
			{Key: model.ComponentSignalLine, Suffix: "signal", Kind: chart.KindLine, Dash: "dashed"},
		},
	})
	out := build(testSnapshot(), 1)
	require.Len(t, out, 6)

	assert.Equal(t, "MACD1 (48_72) hist", out[0].Name)
	assert.Equal(t, chart.KindBar, out[0].Kind)
	assert.Equal(t, "dashed", out[2].Style.Dash)

	assert.Equal(t, "MACD2 (72_168) signal", out[5].Name)
	assert.Empty(t, out[5].Values, "absent component degrades to empty")
	assert.Equal(t, []float64{6, 5, 4}, out[4].Values)
}

func TestOscillator_MissingFamily(t *testing.T) {
	out := Oscillator(OscillatorConfig{Family: model.FamilyRSI, Prefix: "RSI"})(testSnapshot(), 3)
	assert.Empty(t, out)
}

func TestOscillator_MalformedEntry(t *testing.T) {
	s := testSnapshot()
	s.CCI["48"] = []byte(`{"not":"an array"}`)
	out := Oscillator(OscillatorConfig{Family: model.FamilyCCI, Prefix: "CCI"})(s, 2)
	require.Len(t, out, 3)
	assert.Empty(t, out[0].Values)
	assert.Len(t, out[1].Values, 3)
}

func TestCategories(t *testing.T) {
	s := testSnapshot()
	cats := Categories(s)
	require.Len(t, cats, 3)
	assert.True(t, cats[0].Before(cats[2]))
	assert.Nil(t, Categories(&model.Snapshot{}))
}

func TestPriceRange(t *testing.T) {
	tests := []struct {
		name     string
		lo, hi   float64
		min, max float64
	}{
		{"narrow pads by 2% of low", 100, 100.5, 98, 102.5},
		{"medium pads by half range", 100, 104, 98, 106},
		{"wide pads by 10% of range", 100, 200, 90, 210},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := PriceRange([]model.Candle{{High: tt.hi, Low: tt.lo}, {High: tt.lo + 0.1, Low: tt.lo + 0.05}})
			assert.InDelta(t, tt.min, r.Min, 1e-9)
			assert.InDelta(t, tt.max, r.Max, 1e-9)
		})
	}

	r := PriceRange([]model.Candle{{High: 10, Low: 1}})
	assert.InDelta(t, 0.1, r.Min, 1e-9)
	assert.Equal(t, chart.Range{}, PriceRange(nil))
}
