package indicator

// SMA is the simple moving average.
func SMA(price []float64, period int) []float64 {
	maxI := lastWindow(len(price), period)
	if maxI < 0 {
		return nil
	}
	out := make([]float64, len(price))
	inv := 1.0 / float64(period)

	// Rolling sum from the oldest window towards the newest.
	sum := 0.0
	for j := maxI; j < maxI+period; j++ {
		sum += price[j]
	}
	out[maxI] = sum * inv
	for i := maxI - 1; i >= 0; i-- {
		sum += price[i] - price[i+period]
		out[i] = sum * inv
	}
	carryForward(out, maxI)
	return out
}

// WMA is the linearly weighted moving average. The newest point in each
// window weighs period, the oldest weighs 1.
func WMA(price []float64, period int) []float64 {
	maxI := lastWindow(len(price), period)
	if maxI < 0 {
		return nil
	}
	out := make([]float64, len(price))
	denom := float64(period*(period+1)) / 2

	for i := maxI; i >= 0; i-- {
		sum := 0.0
		for j := 0; j < period; j++ {
			sum += price[i+j] * float64(period-j)
		}
		out[i] = sum / denom
	}
	carryForward(out, maxI)
	return out
}
