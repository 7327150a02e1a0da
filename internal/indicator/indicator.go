// Package indicator computes the dashboard indicator series over candle data.
//
// Every series is newest-first: index 0 is the most recent bar, matching the
// snapshot wire format. A window at index i covers price[i : i+period].
// The oldest period-1 points have no full window and carry the last full-window
// value forward. A series too short for its period is nil.
package indicator

import "indicator-dashboardv1/internal/model"

// HLCC returns (high+low+close)/3 per candle. Candles are newest-first.
func HLCC(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.HLCC()
	}
	return out
}

// lastWindow is the index of the oldest full window, or -1 when there is none.
func lastWindow(n, period int) int {
	if period <= 0 || n < period {
		return -1
	}
	return n - period
}

// carryForward copies out[maxI] into every older point.
func carryForward(out []float64, maxI int) {
	if maxI < 0 {
		return
	}
	for i := maxI + 1; i < len(out); i++ {
		out[i] = out[maxI]
	}
}
