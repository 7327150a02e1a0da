package indicator

import (
	"sort"
	"time"

	"indicator-dashboardv1/internal/model"
)

// VolatilityDays is the number of whole days averaged by Volatility5Days.
const VolatilityDays = 5

// Volatility5Days averages the daily range (max high - min low) over the five
// most recent UTC calendar days strictly before the newest candle's day.
// Days with no range are skipped. Fewer than five usable days yields 0.
// Candles are oldest-first.
func Volatility5Days(candles []model.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	today := utcDay(candles[len(candles)-1].Time)

	type span struct{ hi, lo float64 }
	days := make(map[time.Time]*span)
	for _, c := range candles {
		d := utcDay(c.Time)
		if !d.Before(today) {
			continue
		}
		s, ok := days[d]
		if !ok {
			days[d] = &span{hi: c.High, lo: c.Low}
			continue
		}
		s.hi = max(s.hi, c.High)
		s.lo = min(s.lo, c.Low)
	}

	type dayRange struct {
		day time.Time
		v   float64
	}
	ranges := make([]dayRange, 0, len(days))
	for d, s := range days {
		if v := s.hi - s.lo; v > 0 {
			ranges = append(ranges, dayRange{d, v})
		}
	}
	if len(ranges) < VolatilityDays {
		return 0
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].day.After(ranges[j].day) })

	total := 0.0
	for _, r := range ranges[:VolatilityDays] {
		total += r.v
	}
	return total / VolatilityDays
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
