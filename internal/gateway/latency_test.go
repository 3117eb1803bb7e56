package gateway

import (
	"math"
	"testing"
	"time"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	if s := lt.Stats(); s != (LatencyStats{}) {
		t.Errorf("empty tracker: got %+v", s)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(42500 * time.Microsecond)

	s := lt.Stats()
	if s.P50 != 42.5 || s.P95 != 42.5 || s.P99 != 42.5 {
		t.Errorf("single sample: got %+v, want all 42.5", s)
	}
	if s.Count != 1 || s.Max != 42.5 || s.Mean != 42.5 {
		t.Errorf("count/max/mean = %d/%v/%v, want 1/42.5/42.5", s.Count, s.Max, s.Mean)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)
	for i := 1; i <= 100; i++ {
		lt.Record(ms(i))
	}

	s := lt.Stats()
	if math.Abs(s.P50-50.5) > 1.0 {
		t.Errorf("p50: got %f, expected ~50.5", s.P50)
	}
	if math.Abs(s.P95-95.05) > 1.0 {
		t.Errorf("p95: got %f, expected ~95.05", s.P95)
	}
	if math.Abs(s.P99-99.01) > 1.0 {
		t.Errorf("p99: got %f, expected ~99.01", s.P99)
	}
	if s.Max != 100 || math.Abs(s.Mean-50.5) > 1e-9 {
		t.Errorf("max/mean = %v/%v, want 100/50.5", s.Max, s.Mean)
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 1; i <= 20; i++ {
		lt.Record(ms(i))
	}

	s := lt.Stats()
	if s.Count != 10 {
		t.Fatalf("Count = %d, want 10", s.Count)
	}
	// buffer holds 11..20
	if math.Abs(s.P50-15.5) > 1.0 {
		t.Errorf("p50 after wraparound: got %f, expected ~15.5", s.P50)
	}
}

func TestLatencyTracker_IgnoresNegative(t *testing.T) {
	lt := NewLatencyTracker(10)
	lt.Record(-ms(5))
	if s := lt.Stats(); s.Count != 0 {
		t.Errorf("negative sample recorded: %+v", s)
	}
}
