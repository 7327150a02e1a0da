package chart

// OverlayKind separates overlay objects so each owner replaces only its own.
type OverlayKind string

const (
	OverlayCrosshair OverlayKind = "crosshair"
	OverlayZoneLabel OverlayKind = "zonelabel"
)

// Segment is a straight line in surface pixels.
type Segment struct {
	X1, Y1, X2, Y2 float64
}

// Label is a text box anchored at its top-left corner in surface pixels.
type Label struct {
	X, Y float64
	Text string
}

// Overlay is a freeform drawing primitive layered over the series.
// Exactly one of Line or Text is set.
type Overlay struct {
	ID    string
	Kind  OverlayKind
	Line  *Segment
	Text  *Label
	Style Style
}

// ReplaceKind returns existing with every overlay of the given kind removed
// and replacement appended. Overlays of other kinds keep their order.
// existing is not modified.
func ReplaceKind(existing []Overlay, kind OverlayKind, replacement []Overlay) []Overlay {
	out := make([]Overlay, 0, len(existing)+len(replacement))
	for _, o := range existing {
		if o.Kind != kind {
			out = append(out, o)
		}
	}
	return append(out, replacement...)
}

// CountKind returns how many overlays of kind are present.
func CountKind(overlays []Overlay, kind OverlayKind) int {
	n := 0
	for _, o := range overlays {
		if o.Kind == kind {
			n++
		}
	}
	return n
}
