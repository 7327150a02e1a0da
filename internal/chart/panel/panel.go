// Package panel holds the ordered panel registry and computes each panel's
// pixel band from the surface height.
package panel

import (
	"errors"
	"fmt"
	"math"

	"indicator-dashboardv1/internal/chart"
	"indicator-dashboardv1/internal/model"
)

var (
	ErrDuplicatePanel = errors.New("panel: duplicate panel id")
	ErrInvalidShare   = errors.New("panel: height share must be in (0, 1]")
	ErrUnknownPanel   = errors.New("panel: unknown panel id")
)

// BuildFunc produces a panel's series from a snapshot. position is the
// panel's index in the registry. Implementations must not retain or mutate
// the snapshot.
type BuildFunc func(snap *model.Snapshot, position int) []chart.SeriesSpec

// Descriptor describes one panel. Only HeightShare changes after setup.
type Descriptor struct {
	ID          string
	Label       string
	HeightShare float64
	Build       BuildFunc
}

// Geometry holds the fixed margins of the layout.
type Geometry struct {
	TopInset    float64 // fraction of surface height
	BottomInset float64 // fraction of surface height, room for the time axis
	Gap         float64 // pixels between panels
	Left        float64 // fraction of surface width
	Right       float64 // fraction of surface width
}

// DefaultGeometry matches the dashboard grid: 1% top, 8% bottom, 20px gaps,
// 3% left and 8% right.
func DefaultGeometry() Geometry {
	return Geometry{TopInset: 0.01, BottomInset: 0.08, Gap: 20, Left: 0.03, Right: 0.08}
}

// Registry is the ordered panel list. It is not safe for concurrent use; the
// session drives it from its event loop.
type Registry struct {
	geo     Geometry
	panels  []Descriptor
	version uint64
}

// NewRegistry creates an empty registry with the given geometry.
func NewRegistry(geo Geometry) *Registry {
	return &Registry{geo: geo}
}

// Geometry returns the registry's margins.
func (r *Registry) Geometry() Geometry { return r.geo }

// Add appends a panel and returns its position.
func (r *Registry) Add(d Descriptor) (int, error) {
	if err := checkShare(d.HeightShare); err != nil {
		return 0, fmt.Errorf("%w: %s=%v", err, d.ID, d.HeightShare)
	}
	for _, p := range r.panels {
		if p.ID == d.ID {
			return 0, fmt.Errorf("%w: %s", ErrDuplicatePanel, d.ID)
		}
	}
	r.panels = append(r.panels, d)
	r.version++
	return len(r.panels) - 1, nil
}

// SetHeightShare changes one panel's share.
func (r *Registry) SetHeightShare(id string, share float64) error {
	if err := checkShare(share); err != nil {
		return fmt.Errorf("%w: %s=%v", err, id, share)
	}
	for i := range r.panels {
		if r.panels[i].ID == id {
			r.panels[i].HeightShare = share
			r.version++
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPanel, id)
}

// Len returns the number of panels.
func (r *Registry) Len() int { return len(r.panels) }

// At returns the descriptor at position i.
func (r *Registry) At(i int) Descriptor { return r.panels[i] }

// Panels returns a copy of the descriptors in registration order.
func (r *Registry) Panels() []Descriptor {
	out := make([]Descriptor, len(r.panels))
	copy(out, r.panels)
	return out
}

// Version increases on every mutation.
func (r *Registry) Version() uint64 { return r.version }

// ComputeLayout returns one band per panel for a surface of the given height.
// Shares are normalised over the height left after insets and gaps; the last
// panel is bottom-anchored and absorbs rounding, so insets, bands and gaps
// add up to height exactly. On a surface too short for the fixed gaps, the
// gaps shrink to half of the inner height so every band stays on the surface.
func (r *Registry) ComputeLayout(height float64) []chart.Band {
	n := len(r.panels)
	if n == 0 {
		return nil
	}
	top := math.Round(height * r.geo.TopInset)
	bottom := math.Round(height * r.geo.BottomInset)
	inner := math.Max(height-top-bottom, 0)
	gap := r.geo.Gap
	if n > 1 && gap*float64(n-1) > inner/2 {
		gap = math.Floor(inner / 2 / float64(n-1))
	}
	available := inner - gap*float64(n-1)

	var total float64
	for _, p := range r.panels {
		total += p.HeightShare
	}

	bands := make([]chart.Band, n)
	cur := top
	for i, p := range r.panels {
		if i == n-1 {
			h := height - bottom - cur
			if h < 0 {
				h = 0
			}
			bands[i] = chart.Band{Top: cur, Height: h, Bottom: bottom, BottomAnchored: true}
			break
		}
		h := math.Round(available * p.HeightShare / total)
		bands[i] = chart.Band{Top: cur, Height: h}
		cur += h + gap
	}
	return bands
}

// Build runs every panel's BuildFunc and stamps the panel position on each
// series.
func (r *Registry) Build(snap *model.Snapshot) [][]chart.SeriesSpec {
	out := make([][]chart.SeriesSpec, len(r.panels))
	for i, p := range r.panels {
		if p.Build == nil {
			continue
		}
		series := p.Build(snap, i)
		for j := range series {
			series[j].Panel = i
		}
		out[i] = series
	}
	return out
}

func checkShare(s float64) error {
	if math.IsNaN(s) || s <= 0 || s > 1 {
		return ErrInvalidShare
	}
	return nil
}
