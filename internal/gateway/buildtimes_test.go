package gateway

import (
	"testing"
	"time"
)

func TestBuildTimes_Empty(t *testing.T) {
	s := NewBuildTimes(8).Summary()
	if s != (BuildSummary{}) {
		t.Errorf("empty summary: got %+v", s)
	}
}

func TestBuildTimes_NearestRank(t *testing.T) {
	b := NewBuildTimes(0)
	for i := 1; i <= 100; i++ {
		b.Add("BTCUSDT|1h", time.Duration(i)*time.Millisecond)
	}
	s := b.Summary()
	if s.Samples != 100 {
		t.Fatalf("Samples = %d, want 100", s.Samples)
	}
	if s.P50 != 50 || s.P95 != 95 || s.P99 != 99 {
		t.Errorf("percentiles: got (%v, %v, %v), want (50, 95, 99)", s.P50, s.P95, s.P99)
	}
	if s.Slowest != "BTCUSDT|1h" || s.SlowestMs != 50.5 {
		t.Errorf("slowest: got %s %.2f", s.Slowest, s.SlowestMs)
	}
}

func TestBuildTimes_WindowPerTopic(t *testing.T) {
	b := NewBuildTimes(4)
	// The busy topic wraps its own window; the quiet one keeps its sample.
	for i := 1; i <= 10; i++ {
		b.Add("BTCUSDT|1m", time.Duration(i)*time.Millisecond)
	}
	b.Add("ETHUSDT|4h", 2500*time.Microsecond)

	s := b.Summary()
	if s.Samples != 5 {
		t.Fatalf("Samples = %d, want 5", s.Samples)
	}
	if s.P50 != 8 {
		t.Errorf("P50 = %v, want 8", s.P50)
	}
	if s.Slowest != "BTCUSDT|1m" || s.SlowestMs != 8.5 {
		t.Errorf("slowest: got %s %.2f, want BTCUSDT|1m 8.50", s.Slowest, s.SlowestMs)
	}
}

func TestBuildTimes_Retain(t *testing.T) {
	b := NewBuildTimes(4)
	b.Add("BTCUSDT|1h", 40*time.Millisecond)
	b.Add("ETHUSDT|1h", 3*time.Millisecond)

	b.Retain([]string{"ETHUSDT|1h"})
	s := b.Summary()
	if s.Samples != 1 || s.Slowest != "ETHUSDT|1h" || s.P99 != 3 {
		t.Errorf("after retain: got %+v", s)
	}

	b.Retain(nil)
	if s := b.Summary(); s.Samples != 0 {
		t.Errorf("after retain(nil): got %d samples", s.Samples)
	}
}
