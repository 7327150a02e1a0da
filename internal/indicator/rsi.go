package indicator

// RSI is the relative strength index with WMA-smoothed gains and losses.
// A window with no losses uses rs = 100. Needs period+1 points.
func RSI(price []float64, period int) []float64 {
	n := len(price)
	if period <= 0 || n < period+1 {
		return nil
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := n - 2; i >= 0; i-- {
		change := price[i] - price[i+1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := WMA(gains, period)
	avgLoss := WMA(losses, period)
	maxI := n - period
	out := make([]float64, n)
	for i := maxI; i >= 0; i-- {
		rs := 100.0
		if avgLoss[i] != 0 {
			rs = avgGain[i] / avgLoss[i]
		}
		out[i] = 100 - 100/(1+rs)
	}
	carryForward(out, maxI)
	return out
}
