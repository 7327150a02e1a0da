// Package zone classifies a price against a three-line band into an integer
// zone in [-10, 10], 0 being the middle line.
package zone

import (
	"math"
	"strconv"
)

const (
	// Epsilon is the distance from the middle line treated as "on the line".
	Epsilon = 1e-4
	// Max is the outermost zone magnitude.
	Max = 10
)

// Classify returns the zone of price relative to the band. The upper
// half-width scales both sides; lower only matters through the band being
// present. A missing (NaN) line or a flat band yields 0.
func Classify(price, middle, upper, lower float64) int {
	if math.IsNaN(price) || math.IsNaN(middle) || math.IsNaN(upper) || math.IsNaN(lower) {
		return 0
	}
	dist := math.Abs(price - middle)
	if dist < Epsilon {
		return 0
	}
	halfWidth := upper - middle
	if halfWidth == 0 {
		return 0
	}
	raw := dist / (halfWidth / Max)
	raw = math.Min(math.Max(raw, 1), Max)
	z := int(math.Round(raw))
	if price < middle {
		z = -z
	}
	return z
}

// Format renders a zone with an explicit sign: "+5", "-3", "+0".
func Format(z int) string {
	if z >= 0 {
		return "+" + strconv.Itoa(z)
	}
	return strconv.Itoa(z)
}
