package tooltip

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-dashboardv1/internal/chart"
	"indicator-dashboardv1/internal/chart/series"
	"indicator-dashboardv1/internal/chart/surface"
	"indicator-dashboardv1/internal/model"
)

// Source order: index 0 is the newest bar.
func testSnapshot() *model.Snapshot {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := &model.Snapshot{
		Price: 108,
		Candles: []model.Candle{
			{Time: t0.Add(2 * time.Hour), Open: 104, High: 106, Low: 103, Close: 105},
			{Time: t0.Add(time.Hour), Open: 100, High: 101, Low: 98, Close: 99},
			{Time: t0, Open: 90, High: 95, Low: 85, Close: 80},
		},
		Bollinger: &model.Band{
			Upper:  model.Values{110, 110, 110},
			Middle: model.Values{100, 100, 100},
			Lower:  model.Values{90, 90, 90},
		},
		Envelope: &model.Band{
			Upper:  model.Values{120, 120},
			Middle: model.Values{100, 100},
			Lower:  model.Values{80, 80},
		},
		CCI: model.Family{},
	}
	s.CCI.SetSeries("48", model.Values{1.5, math.NaN(), -2.25})
	return s
}

func panels(s *model.Snapshot) []chart.PanelFrame {
	main := series.Main(series.MainConfig{
		Label: "Price",
		Bands: []series.BandStyle{
			{Family: model.BandBollinger, Label: "BOLL", Middle: chart.Style{Color: "#mid"}},
			{Family: model.BandEnvelope, Label: "ENV"},
		},
	})
	cci := series.Oscillator(series.OscillatorConfig{Family: model.FamilyCCI, Prefix: "CCI", Palette: []string{"#c1"}})
	return []chart.PanelFrame{
		{ID: "main", Label: "Price", Series: main(s, 0)},
		{ID: "cci", Label: "CCI", Series: cci(s, 1)},
	}
}

func newAggregator() (*Aggregator, *surface.Canvas) {
	c := surface.New(800, 600)
	a := New(c)
	s := testSnapshot()
	a.SetSnapshot(s, panels(s))
	return a, c
}

func TestAggregate_RowsPerPanel(t *testing.T) {
	a, _ := newAggregator()

	tip, ok := a.Aggregate(0) // oldest bar
	require.True(t, ok)
	require.Len(t, tip.Rows, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), tip.Time)

	main := tip.Rows[0]
	assert.Equal(t, "main", main.PanelID)
	require.NotEmpty(t, main.Entries)
	assert.Equal(t, "Price", main.Entries[0].Name)
	assert.Equal(t, "O:90.0000 C:80.0000 L:85.0000 H:95.0000", main.Entries[0].Value)

	var mid *chart.TooltipEntry
	for i := range main.Entries {
		if main.Entries[i].Name == "BOLL Middle" {
			mid = &main.Entries[i]
		}
	}
	require.NotNil(t, mid)
	assert.Equal(t, "100.0000", mid.Value)
	assert.Equal(t, "#mid", mid.Color)

	for _, e := range main.Entries {
		assert.NotContains(t, e.Name, "ENV", "malformed envelope series are omitted")
	}

	cci := tip.Rows[1]
	require.Len(t, cci.Entries, 1)
	assert.Equal(t, "CCI1 (48)", cci.Entries[0].Name)
	assert.Equal(t, "-2.2500", cci.Entries[0].Value)
	assert.Empty(t, cci.Zones)
}

func TestAggregate_OmitsNaN(t *testing.T) {
	a, _ := newAggregator()
	tip, ok := a.Aggregate(1)
	require.True(t, ok)
	assert.Empty(t, tip.Rows[1].Entries, "NaN value must be omitted, not rendered")
	for _, e := range tip.Rows[0].Entries {
		assert.NotContains(t, e.Value, "NaN")
	}
}

func TestAggregate_Zones(t *testing.T) {
	a, _ := newAggregator()

	// Newest bar uses the live price 108: (108-100)/(10/10) = 8.
	tip, ok := a.Aggregate(2)
	require.True(t, ok)
	require.Len(t, tip.Rows[0].Zones, 2)
	assert.Equal(t, chart.ZoneEntry{Family: model.BandBollinger, Label: "BOLL", Zone: 8}, tip.Rows[0].Zones[0])
	assert.Equal(t, 0, tip.Rows[0].Zones[1].Zone, "misaligned band classifies as neutral")

	// Oldest bar uses its own close 80: far below, clamps to -10.
	tip, _ = a.Aggregate(0)
	assert.Equal(t, -10, tip.Rows[0].Zones[0].Zone)

	// Middle bar close 99: distance 1 -> -1.
	tip, _ = a.Aggregate(1)
	assert.Equal(t, -1, tip.Rows[0].Zones[0].Zone)
}

func TestAggregate_NoLivePriceUsesClose(t *testing.T) {
	a, _ := newAggregator()
	s := testSnapshot()
	s.Price = 0
	a.SetSnapshot(s, panels(s))
	tip, _ := a.Aggregate(2)
	assert.Equal(t, 5, tip.Rows[0].Zones[0].Zone)
}

func TestAggregate_OutOfRange(t *testing.T) {
	a, _ := newAggregator()
	for _, i := range []int{-1, 3} {
		_, ok := a.Aggregate(i)
		assert.False(t, ok, "index %d", i)
	}
	a.Clear()
	_, ok := a.Aggregate(0)
	assert.False(t, ok)
}

func TestShowHide(t *testing.T) {
	a, c := newAggregator()
	a.Show(2)
	require.NotNil(t, c.Tooltip())
	assert.Equal(t, 2, c.Tooltip().Index)

	a.Show(99)
	assert.Nil(t, c.Tooltip(), "unresolvable index hides")

	a.Show(1)
	a.Hide()
	assert.Nil(t, c.Tooltip())
}
