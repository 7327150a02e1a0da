package indicator

import "math"

// Bands is an upper/middle/lower triple of equal-length series.
type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Empty reports whether the bands could not be computed.
func (b Bands) Empty() bool { return b.Middle == nil }

// Bollinger uses a WMA middle line. The width is deviation times the
// population standard deviation around the window SMA.
func Bollinger(price []float64, period int, deviation float64) Bands {
	middle := WMA(price, period)
	if middle == nil {
		return Bands{}
	}
	maxI := lastWindow(len(price), period)
	inv := 1.0 / float64(period)

	std := make([]float64, len(price))
	sum := 0.0
	for j := maxI; j < maxI+period; j++ {
		sum += price[j]
	}
	for i := maxI; i >= 0; i-- {
		if i < maxI {
			sum += price[i] - price[i+period]
		}
		mean := sum * inv
		sq := 0.0
		for j := i; j < i+period; j++ {
			d := price[j] - mean
			sq += d * d
		}
		std[i] = math.Sqrt(sq * inv)
	}
	carryForward(std, maxI)

	b := Bands{
		Upper:  make([]float64, len(price)),
		Middle: middle,
		Lower:  make([]float64, len(price)),
	}
	for i := range price {
		w := deviation * std[i]
		b.Upper[i] = middle[i] + w
		b.Lower[i] = middle[i] - w
	}
	return b
}

// Envelope offsets a WMA middle line by pct percent either side.
func Envelope(price []float64, period int, pct float64) Bands {
	middle := WMA(price, period)
	if middle == nil {
		return Bands{}
	}
	up, lo := 1+pct/100, 1-pct/100
	b := Bands{
		Upper:  make([]float64, len(price)),
		Middle: middle,
		Lower:  make([]float64, len(price)),
	}
	for i, m := range middle {
		b.Upper[i] = m * up
		b.Lower[i] = m * lo
	}
	return b
}
