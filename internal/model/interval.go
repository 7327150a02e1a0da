package model

import (
	"fmt"
	"regexp"
	"strconv"
)

var intervalRe = regexp.MustCompile(`^(\d+)([smhdwMy])$`)

// IntervalMinutes converts a bar interval such as "15m", "1h" or "1d" into
// minutes. Sub-minute intervals truncate to 0 minutes and are rejected.
func IntervalMinutes(interval string) (int, error) {
	m := intervalRe.FindStringSubmatch(interval)
	if len(m) != 3 {
		return 0, fmt.Errorf("model: invalid interval %q", interval)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("model: invalid interval value %q: %w", m[1], err)
	}

	var minutes int
	switch m[2] {
	case "s":
		minutes = n / 60
	case "m":
		minutes = n
	case "h":
		minutes = n * 60
	case "d":
		minutes = n * 24 * 60
	case "w":
		minutes = n * 7 * 24 * 60
	case "M":
		minutes = n * 30 * 24 * 60
	case "y":
		minutes = n * 365 * 24 * 60
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("model: interval %q is shorter than a minute", interval)
	}
	return minutes, nil
}

// ScalePeriod converts a period expressed in hours into a bar count for the
// given interval: 48h on 15m bars is 192 bars. The result is at least 1.
func ScalePeriod(hours int, interval string) (int, error) {
	minutes, err := IntervalMinutes(interval)
	if err != nil {
		return 0, err
	}
	scaled := int(float64(hours) * 60.0 / float64(minutes))
	if scaled < 1 {
		scaled = 1
	}
	return scaled, nil
}

// CandlesForDays returns how many bars cover the given number of days, plus
// a 10% buffer.
func CandlesForDays(days int, interval string) (int, error) {
	minutes, err := IntervalMinutes(interval)
	if err != nil {
		return 0, err
	}
	n := days * 24 * 60 / minutes
	if n < 1 {
		n = 1
	}
	return int(float64(n) * 1.1), nil
}
