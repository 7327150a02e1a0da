// Package chart defines the contract between the dashboard core and the
// rendering surface: declarative series, panel geometry, overlays, and the
// five surface primitives (render, coordinate conversion, overlay replace,
// tooltip and axis-pointer actions).
package chart

import (
	"math"
	"time"
)

// SeriesKind selects how a series is drawn.
type SeriesKind string

const (
	KindCandle SeriesKind = "candle"
	KindLine   SeriesKind = "line"
	KindBar    SeriesKind = "bar"
)

// Style carries rendering hints; the surface is free to interpret them.
type Style struct {
	Color string
	Dash  string // "", "dashed", "dotted"
	Width float64
}

// OHLC is a candle tuple in open, close, low, high order.
type OHLC [4]float64

func (o OHLC) Open() float64  { return o[0] }
func (o OHLC) Close() float64 { return o[1] }
func (o OHLC) Low() float64   { return o[2] }
func (o OHLC) High() float64  { return o[3] }

// HasNaN reports whether any component is not-a-number.
func (o OHLC) HasNaN() bool {
	for _, v := range o {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// SeriesSpec is one plottable series, display-ordered (oldest first).
// Candle series use Candles; line and bar series use Values.
// Produced fresh per snapshot and never mutated after hand-off.
type SeriesSpec struct {
	Name    string
	Kind    SeriesKind
	Panel   int
	Values  []float64
	Candles []OHLC
	Style   Style
}

// Len returns the number of data points in the series.
func (s *SeriesSpec) Len() int {
	if s.Kind == KindCandle {
		return len(s.Candles)
	}
	return len(s.Values)
}

// Band is a panel's vertical pixel band. For a bottom-anchored band Bottom is
// the distance from the surface's bottom edge; Height is always resolved.
type Band struct {
	Top            float64
	Height         float64
	Bottom         float64
	BottomAnchored bool
}

// Contains reports whether pixel row y lies inside the band.
func (b Band) Contains(y float64) bool {
	return y >= b.Top && y <= b.Top+b.Height
}

// Range is an explicit y-axis range.
type Range struct {
	Min float64
	Max float64
}

// PanelFrame is one panel's content for a render pass.
type PanelFrame struct {
	ID     string
	Label  string
	Series []SeriesSpec
	YRange *Range
}

// Frame is everything the surface needs for one render pass.
type Frame struct {
	Categories []time.Time // shared time axis, display order
	Bands      []Band
	Left       float64 // horizontal plot margins as fractions of width
	Right      float64
	Panels     []PanelFrame
	GridLines  bool
}

// Len returns the shared data length N of the frame.
func (f *Frame) Len() int {
	return len(f.Categories)
}

// TooltipEntry is one series value under the crosshair.
type TooltipEntry struct {
	Name  string
	Value string
	Color string
}

// ZoneEntry is a band-family zone shown with the primary panel.
type ZoneEntry struct {
	Family string
	Label  string
	Zone   int
}

// TooltipRow groups the entries of one panel.
type TooltipRow struct {
	Panel   int
	PanelID string
	Title   string
	Entries []TooltipEntry
	Zones   []ZoneEntry
}

// Tooltip is the aggregated content for one shared data index.
type Tooltip struct {
	Index int
	Time  time.Time
	Rows  []TooltipRow
}

// Surface is the rendering collaborator. Implementations must apply each
// call synchronously: after SetOverlays returns, Overlays reflects it.
type Surface interface {
	Render(f Frame)
	// ToPixel maps a data coordinate (category index, value) of a panel to
	// surface pixels. ok is false when the panel or frame is unknown.
	ToPixel(panel int, x, y float64) (px, py float64, ok bool)
	// FromPixel maps surface pixels to a panel's data coordinate. The x result
	// is NaN when the pixel lies outside the panel's plot area.
	FromPixel(panel int, px, py float64) (x, y float64)
	Overlays() []Overlay
	SetOverlays(o []Overlay)
	ShowTooltip(t Tooltip)
	HideTooltip()
	ShowAxisPointer(index int)
	HideAxisPointer()
}
