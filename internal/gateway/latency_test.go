package gateway

import (
	"math"
	"testing"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	p50, p95, p99 := lt.Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker: expected (0,0,0), got (%g,%g,%g)", p50, p95, p99)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(42.5)

	p50, p95, p99 := lt.Percentiles()
	for name, got := range map[string]float64{"p50": p50, "p95": p95, "p99": p99} {
		if got != 42.5 {
			t.Errorf("%s: got %g, want 42.5 with a single sample", name, got)
		}
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)
	for ms := 1; ms <= 100; ms++ {
		lt.Record(float64(ms))
	}

	p50, p95, p99 := lt.Percentiles()
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"p50", p50, 50.5},
		{"p95", p95, 95.05},
		{"p99", p99, 99.01},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1.0 {
			t.Errorf("%s of 1..100ms: got %g, expected ~%g", c.name, c.got, c.want)
		}
	}
}

func TestLatencyTracker_Wraparound(t *testing.T) {
	lt := NewLatencyTracker(10)
	for ms := 1; ms <= 20; ms++ {
		lt.Record(float64(ms))
	}

	if lt.Count() != 10 {
		t.Fatalf("Count() = %d, want 10 after wraparound", lt.Count())
	}

	// Window now holds 11..20ms, whose median is 15.5.
	p50, _, _ := lt.Percentiles()
	if math.Abs(p50-15.5) > 1.0 {
		t.Errorf("p50 after wraparound: got %g, expected ~15.5", p50)
	}
}

func TestLatencyTracker_Count(t *testing.T) {
	lt := NewLatencyTracker(100)
	if lt.Count() != 0 {
		t.Errorf("initial count: got %d, want 0", lt.Count())
	}
	for i := 0; i < 5; i++ {
		lt.Record(float64(i))
	}
	if lt.Count() != 5 {
		t.Errorf("after 5 records: got %d, want 5", lt.Count())
	}
}
