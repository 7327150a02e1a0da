package indicator

import "math"

const cciScale = 0.015

// CCI is the commodity channel index around a WMA. The mean absolute
// deviation of each window is taken against that window's WMA. A flat
// window yields 0.
func CCI(price []float64, period int) []float64 {
	wma := WMA(price, period)
	if wma == nil {
		return nil
	}
	maxI := lastWindow(len(price), period)
	inv := 1.0 / float64(period)

	out := make([]float64, len(price))
	for i := maxI; i >= 0; i-- {
		dev := 0.0
		for j := 0; j < period; j++ {
			dev += math.Abs(price[i+j] - wma[i])
		}
		mad := dev * inv
		if mad == 0 {
			continue
		}
		out[i] = (price[i] - wma[i]) / (cciScale * mad)
	}
	carryForward(out, maxI)
	return out
}
