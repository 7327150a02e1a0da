// Package tooltip aggregates, for one shared display index, a row of values
// per panel plus the band zones of the primary panel.
package tooltip

import (
	"fmt"
	"math"

	"indicator-dashboardv1/internal/chart"
	"indicator-dashboardv1/internal/chart/indexmap"
	"indicator-dashboardv1/internal/chart/zone"
	"indicator-dashboardv1/internal/model"
)

// Aggregator builds tooltips from the last snapshot and its rendered panels.
// It holds references only; snapshots and frames are never mutated.
type Aggregator struct {
	surface chart.Surface
	snap    *model.Snapshot
	panels  []chart.PanelFrame
}

// New creates an aggregator that shows and hides tooltips on surface.
func New(surface chart.Surface) *Aggregator {
	return &Aggregator{surface: surface}
}

// SetSnapshot replaces the cached snapshot and the panels built from it.
func (a *Aggregator) SetSnapshot(snap *model.Snapshot, panels []chart.PanelFrame) {
	a.snap = snap
	a.panels = panels
}

// Clear drops the cached snapshot.
func (a *Aggregator) Clear() {
	a.snap = nil
	a.panels = nil
}

// Show aggregates index and hands the result to the surface. An index that
// does not resolve hides the tooltip instead.
func (a *Aggregator) Show(index int) {
	t, ok := a.Aggregate(index)
	if !ok {
		a.surface.HideTooltip()
		return
	}
	a.surface.ShowTooltip(t)
}

// Hide hides the tooltip.
func (a *Aggregator) Hide() {
	a.surface.HideTooltip()
}

// Aggregate returns one row per panel for display index. NaN values are
// omitted. Row 0 also carries one zone per band family.
func (a *Aggregator) Aggregate(index int) (chart.Tooltip, bool) {
	n := a.snap.Len()
	if n == 0 || index < 0 || index >= n {
		return chart.Tooltip{}, false
	}
	t := chart.Tooltip{Index: index, Rows: make([]chart.TooltipRow, 0, len(a.panels))}
	if c, ok := indexmap.At(a.snap.Candles, index, n); ok {
		t.Time = c.Time
	}

	for i, p := range a.panels {
		row := chart.TooltipRow{Panel: i, PanelID: p.ID, Title: p.Label}
		for _, s := range p.Series {
			v, ok := valueAt(s, index, n)
			if !ok {
				continue
			}
			row.Entries = append(row.Entries, chart.TooltipEntry{Name: s.Name, Value: v, Color: s.Style.Color})
		}
		if i == 0 {
			row.Zones = a.zones(index, n)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, true
}

// zones classifies the price at index against each band family. The live
// price only describes the newest bar, so older bars use their own close.
func (a *Aggregator) zones(index, n int) []chart.ZoneEntry {
	price := math.NaN()
	if live, ok := a.snap.LivePrice(); ok && index == n-1 {
		price = live
	} else if c, ok := indexmap.At(a.snap.Candles, index, n); ok {
		price = c.Close
	}

	fams := a.snap.BandFamilies()
	out := make([]chart.ZoneEntry, 0, len(fams))
	for _, f := range fams {
		out = append(out, chart.ZoneEntry{
			Family: f.Name,
			Label:  f.Label,
			Zone: zone.Classify(price,
				bandAt(f.Band.Middle, index, n),
				bandAt(f.Band.Upper, index, n),
				bandAt(f.Band.Lower, index, n)),
		})
	}
	return out
}

func bandAt(src model.Values, index, n int) float64 {
	v, ok := indexmap.At([]float64(src), index, n)
	if !ok {
		return math.NaN()
	}
	return v
}

// valueAt formats a display-ordered series value. Series shorter than the
// shared length are treated as missing.
func valueAt(s chart.SeriesSpec, index, n int) (string, bool) {
	if s.Len() != n {
		return "", false
	}
	if s.Kind == chart.KindCandle {
		o := s.Candles[index]
		if o.HasNaN() {
			return "", false
		}
		return fmt.Sprintf("O:%.4f C:%.4f L:%.4f H:%.4f", o.Open(), o.Close(), o.Low(), o.High()), true
	}
	v := s.Values[index]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	return fmt.Sprintf("%.4f", v), true
}
