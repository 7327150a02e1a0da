// Package series turns a snapshot into display-ordered plottable series for
// the price panel and the oscillator panels.
package series

import (
	"fmt"
	"math"
	"time"

	"indicator-dashboardv1/internal/chart"
	"indicator-dashboardv1/internal/chart/indexmap"
	"indicator-dashboardv1/internal/chart/panel"
	"indicator-dashboardv1/internal/model"
)

// BandStyle configures the three lines drawn for one band family.
type BandStyle struct {
	Family string // model.BandBollinger, model.BandEnvelope
	Label  string
	Upper  chart.Style
	Middle chart.Style
	Lower  chart.Style
}

// MainConfig configures the price panel.
type MainConfig struct {
	Label  string
	Candle chart.Style
	Bands  []BandStyle
}

// Component is one sub-series of an oscillator entry. Key is empty for
// entries that are plain arrays.
type Component struct {
	Key     string
	Suffix  string
	Kind    chart.SeriesKind
	Dash    string
	Palette []string
}

// OscillatorConfig configures one oscillator panel.
type OscillatorConfig struct {
	Family     string // model.FamilyCCI, model.FamilyMACD, model.FamilyRSI
	Prefix     string // series name prefix, "CCI" gives "CCI1 (48)"
	Components []Component
	Palette    []string
	Width      float64
}

// Categories returns the candle times in display order.
func Categories(snap *model.Snapshot) []time.Time {
	if snap.Len() == 0 {
		return nil
	}
	times := make([]time.Time, snap.Len())
	for i, c := range snap.Candles {
		times[i] = c.Time
	}
	disp, _ := indexmap.ToDisplay(times)
	return disp
}

// Candles converts the snapshot's candles to display-ordered OHLC tuples.
func Candles(snap *model.Snapshot) ([]chart.OHLC, error) {
	src := make([]chart.OHLC, snap.Len())
	for i, c := range snap.Candles {
		src[i] = chart.OHLC{c.Open, c.Close, c.Low, c.High}
	}
	return indexmap.ToDisplay(src)
}

// Line builds a display-ordered line or bar series from a source-ordered
// array. An array whose length is not n yields an empty series.
func Line(name string, kind chart.SeriesKind, src model.Values, n int, style chart.Style) chart.SeriesSpec {
	s := chart.SeriesSpec{Name: name, Kind: kind, Values: []float64{}, Style: style}
	if len(src) != n {
		return s
	}
	disp, err := indexmap.ToDisplay([]float64(src))
	if err != nil {
		return s
	}
	s.Values = disp
	return s
}

// Main returns the build function of the price panel: one candle series plus
// upper, middle and lower lines for each band family present.
func Main(cfg MainConfig) panel.BuildFunc {
	return func(snap *model.Snapshot, _ int) []chart.SeriesSpec {
		n := snap.Len()
		out := make([]chart.SeriesSpec, 0, 1+3*len(cfg.Bands))

		candles, err := Candles(snap)
		if err != nil {
			candles = []chart.OHLC{}
		}
		out = append(out, chart.SeriesSpec{
			Name:    cfg.Label,
			Kind:    chart.KindCandle,
			Candles: candles,
			Style:   cfg.Candle,
		})

		for _, bs := range cfg.Bands {
			b := snap.Band(bs.Family)
			if b == nil {
				continue
			}
			out = append(out,
				Line(bs.Label+" Upper", chart.KindLine, b.Upper, n, bs.Upper),
				Line(bs.Label+" Middle", chart.KindLine, b.Middle, n, bs.Middle),
				Line(bs.Label+" Lower", chart.KindLine, b.Lower, n, bs.Lower),
			)
		}
		return out
	}
}

// Oscillator returns the build function of an oscillator panel. Family
// entries are emitted in numeric key order so series positions, and the
// colors assigned by position, are stable across snapshots.
func Oscillator(cfg OscillatorConfig) panel.BuildFunc {
	comps := cfg.Components
	if len(comps) == 0 {
		comps = []Component{{Kind: chart.KindLine}}
	}
	return func(snap *model.Snapshot, _ int) []chart.SeriesSpec {
		fam := snap.Family(cfg.Family)
		if len(fam) == 0 {
			return nil
		}
		n := snap.Len()
		keys := fam.Keys()
		out := make([]chart.SeriesSpec, 0, len(keys)*len(comps))
		for i, key := range keys {
			base := fmt.Sprintf("%s%d (%s)", cfg.Prefix, i+1, key)
			for _, c := range comps {
				name := base
				if len(comps) > 1 && c.Suffix != "" {
					name += " " + c.Suffix
				}
				style := chart.Style{
					Color: pick(c.Palette, cfg.Palette, i),
					Dash:  c.Dash,
					Width: cfg.Width,
				}
				kind := c.Kind
				if kind == "" {
					kind = chart.KindLine
				}
				src, ok := fam.Series(key, c.Key)
				if !ok {
					src = nil
				}
				out = append(out, Line(name, kind, src, n, style))
			}
		}
		return out
	}
}

// PriceRange computes the price panel's y range from the candle extremes.
// Narrow ranges get proportionally more padding so the candles stay
// readable; the lower bound never goes below zero.
func PriceRange(candles []model.Candle) chart.Range {
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range candles {
		if !math.IsNaN(c.High) && c.High > hi {
			hi = c.High
		}
		if !math.IsNaN(c.Low) && c.Low < lo {
			lo = c.Low
		}
	}
	if math.IsInf(hi, 0) || math.IsInf(lo, 0) {
		return chart.Range{}
	}
	span := hi - lo
	var pad float64
	switch {
	case lo <= 0:
		pad = span * 0.1
	case span/lo < 0.01:
		pad = lo * 0.02
	case span/lo < 0.05:
		pad = span * 0.5
	default:
		pad = span * 0.1
	}
	return chart.Range{Min: math.Max(0, lo-pad), Max: hi + pad}
}

func pick(own, fallback []string, i int) string {
	if len(own) > 0 {
		return own[i%len(own)]
	}
	if len(fallback) > 0 {
		return fallback[i%len(fallback)]
	}
	return ""
}
