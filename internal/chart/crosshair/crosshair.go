// Package crosshair resolves pointer positions into one shared display index
// for all panels, draws a vertical guide line through every panel at that
// index, and drives the tooltip.
package crosshair

import (
	"log/slog"
	"math"
	"strconv"

	"indicator-dashboardv1/internal/chart"
)

// State of the coordinator.
type State int

const (
	// Idle: the pointer is not over any panel.
	Idle State = iota
	// Tracking: the pointer resolved to a shared index.
	Tracking
	// Cleared: the pointer left the surface.
	Cleared
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case Cleared:
		return "cleared"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Tooltip is the display the coordinator shows and hides.
type Tooltip interface {
	Show(index int)
	Hide()
}

// Coordinator is the crosshair state machine. Not safe for concurrent use.
type Coordinator struct {
	surface chart.Surface
	tooltip Tooltip
	style   chart.Style
	log     *slog.Logger

	bands   []chart.Band
	version uint64
	length  int

	state State
	index int
}

// New creates a coordinator in the Idle state.
func New(surface chart.Surface, tooltip Tooltip, style chart.Style, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		surface: surface,
		tooltip: tooltip,
		style:   style,
		log:     log.With("component", "crosshair"),
		index:   -1,
	}
}

// State returns the current state.
func (c *Coordinator) State() State { return c.state }

// Index returns the shared display index, or -1 when not tracking.
func (c *Coordinator) Index() int {
	if c.state != Tracking {
		return -1
	}
	return c.index
}

// Bind installs the panel bands for registry revision version. A new
// revision tears the current subscription down (guide lines removed, tooltip
// hidden, state Idle); the same revision only refreshes geometry.
func (c *Coordinator) Bind(bands []chart.Band, version uint64) {
	c.bands = append([]chart.Band(nil), bands...)
	if version != c.version {
		c.version = version
		if c.state == Tracking {
			c.clear()
		}
		c.state = Idle
		c.index = -1
		c.log.Debug("rebound", "panels", len(bands), "version", version)
		return
	}
	c.Refresh()
}

// SetLength sets the shared data length N of the current snapshot.
func (c *Coordinator) SetLength(n int) {
	c.length = n
	if n == 0 && c.state == Tracking {
		c.clear()
		c.state = Idle
		c.index = -1
	}
}

// PointerMove handles a pointer move in surface pixels.
func (c *Coordinator) PointerMove(px, py float64) State {
	idx, ok := c.resolve(px, py)
	if !ok {
		if c.state == Tracking {
			c.clear()
		}
		c.state = Idle
		c.index = -1
		return c.state
	}
	c.track(idx)
	return c.state
}

// PointerLeave handles the pointer leaving the whole surface.
func (c *Coordinator) PointerLeave() {
	c.clear()
	c.state = Cleared
	c.index = -1
}

// Refresh redraws the guide lines and tooltip at the current index after the
// data or geometry changed. The index is clamped to the new data length.
func (c *Coordinator) Refresh() {
	if c.state != Tracking {
		return
	}
	if c.length == 0 {
		c.clear()
		c.state = Idle
		c.index = -1
		return
	}
	c.track(min(c.index, c.length-1))
}

// resolve tries panels in registration order; the first panel giving a
// non-negative, non-NaN x wins.
func (c *Coordinator) resolve(px, py float64) (int, bool) {
	if c.length == 0 {
		return 0, false
	}
	for i := range c.bands {
		x, _ := c.surface.FromPixel(i, px, py)
		if math.IsNaN(x) || x < 0 {
			continue
		}
		idx := int(math.Round(x))
		if idx > c.length-1 {
			idx = c.length - 1
		}
		return idx, true
	}
	return 0, false
}

// track commits the guide lines, then the axis pointer, then the tooltip.
func (c *Coordinator) track(idx int) {
	gx, _, ok := c.surface.ToPixel(0, float64(idx), 0)
	if !ok {
		if c.state == Tracking {
			c.clear()
		}
		c.state = Idle
		c.index = -1
		return
	}
	lines := make([]chart.Overlay, len(c.bands))
	for i, b := range c.bands {
		lines[i] = chart.Overlay{
			ID:    "crosshair-" + strconv.Itoa(i),
			Kind:  chart.OverlayCrosshair,
			Line:  &chart.Segment{X1: gx, Y1: b.Top, X2: gx, Y2: b.Top + b.Height},
			Style: c.style,
		}
	}
	c.surface.SetOverlays(chart.ReplaceKind(c.surface.Overlays(), chart.OverlayCrosshair, lines))
	c.surface.ShowAxisPointer(idx)
	c.state = Tracking
	c.index = idx
	c.tooltip.Show(idx)
}

func (c *Coordinator) clear() {
	existing := c.surface.Overlays()
	if chart.CountKind(existing, chart.OverlayCrosshair) > 0 {
		c.surface.SetOverlays(chart.ReplaceKind(existing, chart.OverlayCrosshair, nil))
	}
	c.surface.HideAxisPointer()
	c.tooltip.Hide()
}
