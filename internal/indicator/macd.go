package indicator

// MACDResult holds the three MACD component series.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// Empty reports whether MACD could not be computed.
func (m MACDResult) Empty() bool { return m.Line == nil }

// MACD uses WMAs of fast and slow periods. The histogram is the raw fast-slow
// difference. The line at bar i is the mean of the differences at the two
// previous bars, and the signal is a WMA of the line.
func MACD(price []float64, fast, slow, signal int) MACDResult {
	n := len(price)
	if slow <= 0 || signal <= 0 || n < slow {
		return MACDResult{}
	}
	fastWMA := WMA(price, fast)
	slowWMA := WMA(price, slow)
	if fastWMA == nil || slowWMA == nil {
		return MACDResult{}
	}

	maxDiff := n - slow
	diff := make([]float64, n)
	for i := maxDiff; i >= 0; i-- {
		diff[i] = fastWMA[i] - slowWMA[i]
	}

	line := make([]float64, n)
	for i := n - signal; i >= 0; i-- {
		switch {
		case i+2 < n:
			line[i] = (diff[i+1] + diff[i+2]) / 2
		case i+1 < n:
			line[i] = diff[i+1]
		default:
			line[i] = diff[i]
		}
	}

	hist := make([]float64, n)
	copy(hist[:maxDiff+1], diff[:maxDiff+1])

	return MACDResult{
		Line:      line,
		Signal:    WMA(line, signal),
		Histogram: hist,
	}
}
