// Package surface provides Canvas, a headless chart.Surface that keeps the
// last frame, overlays, tooltip and axis pointer in memory and converts
// coordinates with the same grid arithmetic a category-axis chart uses.
package surface

import (
	"math"
	"sync"

	"indicator-dashboardv1/internal/chart"
)

const maxOps = 256

// Canvas is an in-memory chart.Surface. It is safe for concurrent readers;
// writes come from the session's event loop.
type Canvas struct {
	mu       sync.RWMutex
	width    float64
	height   float64
	frame    chart.Frame
	ranges   []chart.Range
	overlays []chart.Overlay
	tooltip  *chart.Tooltip
	pointer  int
	renders  int
	ops      []string
}

// New creates a canvas of the given pixel size.
func New(width, height float64) *Canvas {
	return &Canvas{width: width, height: height, pointer: -1}
}

// SetSize changes the canvas size. The next Render picks up new bands.
func (c *Canvas) SetSize(width, height float64) {
	c.mu.Lock()
	c.width, c.height = width, height
	c.mu.Unlock()
}

// Size returns the canvas size in pixels.
func (c *Canvas) Size() (width, height float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.width, c.height
}

func (c *Canvas) Render(f chart.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame = f
	c.ranges = make([]chart.Range, len(f.Panels))
	for i, p := range f.Panels {
		if p.YRange != nil {
			c.ranges[i] = *p.YRange
			continue
		}
		c.ranges[i] = autoRange(p.Series)
	}
	c.renders++
	c.record("render")
}

func (c *Canvas) ToPixel(panel int, x, y float64) (float64, float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if panel < 0 || panel >= len(c.frame.Bands) || c.frame.Len() == 0 {
		return 0, 0, false
	}
	left, plotW := c.plotX()
	n := c.frame.Len()
	var px float64
	if n == 1 {
		px = left + plotW/2
	} else {
		px = left + x*plotW/float64(n-1)
	}

	band := c.frame.Bands[panel]
	r := c.rangeOf(panel)
	py := band.Top + band.Height*(1-(y-r.Min)/(r.Max-r.Min))
	return px, py, true
}

func (c *Canvas) FromPixel(panel int, px, py float64) (float64, float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nan := math.NaN()
	if panel < 0 || panel >= len(c.frame.Bands) || c.frame.Len() == 0 {
		return nan, nan
	}
	band := c.frame.Bands[panel]
	left, plotW := c.plotX()
	if px < left || px > left+plotW || !band.Contains(py) {
		return nan, nan
	}
	n := c.frame.Len()
	var x float64
	if n > 1 && plotW > 0 {
		x = (px - left) * float64(n-1) / plotW
	}
	r := c.rangeOf(panel)
	y := r.Min
	if band.Height > 0 {
		y = r.Min + (1-(py-band.Top)/band.Height)*(r.Max-r.Min)
	}
	return x, y
}

func (c *Canvas) Overlays() []chart.Overlay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chart.Overlay, len(c.overlays))
	copy(out, c.overlays)
	return out
}

func (c *Canvas) SetOverlays(o []chart.Overlay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays = append([]chart.Overlay(nil), o...)
	c.record("overlays")
}

func (c *Canvas) ShowTooltip(t chart.Tooltip) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tooltip = &t
	c.record("tooltip:show")
}

func (c *Canvas) HideTooltip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tooltip = nil
	c.record("tooltip:hide")
}

func (c *Canvas) ShowAxisPointer(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointer = index
	c.record("pointer:show")
}

func (c *Canvas) HideAxisPointer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointer = -1
	c.record("pointer:hide")
}

// Frame returns the last rendered frame.
func (c *Canvas) Frame() chart.Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame
}

// Tooltip returns the visible tooltip, or nil when hidden.
func (c *Canvas) Tooltip() *chart.Tooltip {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tooltip
}

// AxisPointer returns the axis pointer index, or -1 when hidden.
func (c *Canvas) AxisPointer() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pointer
}

// Renders returns how many frames were rendered.
func (c *Canvas) Renders() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.renders
}

// Ops returns the most recent surface calls in order.
func (c *Canvas) Ops() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.ops...)
}

// ResetOps clears the call log.
func (c *Canvas) ResetOps() {
	c.mu.Lock()
	c.ops = c.ops[:0]
	c.mu.Unlock()
}

func (c *Canvas) plotX() (left, width float64) {
	left = c.width * c.frame.Left
	width = c.width * (1 - c.frame.Left - c.frame.Right)
	return left, width
}

func (c *Canvas) rangeOf(panel int) chart.Range {
	if panel < len(c.ranges) {
		return c.ranges[panel]
	}
	return chart.Range{Min: 0, Max: 1}
}

func (c *Canvas) record(op string) {
	if len(c.ops) == maxOps {
		copy(c.ops, c.ops[1:])
		c.ops = c.ops[:maxOps-1]
	}
	c.ops = append(c.ops, op)
}

func autoRange(series []chart.SeriesSpec) chart.Range {
	lo, hi := math.Inf(1), math.Inf(-1)
	see := func(v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	for _, s := range series {
		for _, v := range s.Values {
			see(v)
		}
		for _, o := range s.Candles {
			see(o.Low())
			see(o.High())
		}
	}
	if math.IsInf(lo, 0) {
		return chart.Range{Min: 0, Max: 1}
	}
	if lo == hi {
		return chart.Range{Min: lo - 1, Max: hi + 1}
	}
	return chart.Range{Min: lo, Max: hi}
}
