package metrics

import (
	"math"
	"testing"
	"time"
)

func approxEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

// TestTPSUnderVaryingTickDurations mirrors spec.md §8 scenario 2: ticks
// averaging 50ms for 20s (20s TPS ~20, clamped), then 80ms for 10s (10s
// window average ~12.5).
func TestTPSUnderVaryingTickDurations(t *testing.T) {
	s := NewTickSampler()
	now := time.Unix(0, 0)

	// 50ms ticks for 20 simulated seconds.
	tickEvery := func(d time.Duration, seconds int) {
		for elapsedMs := int64(0); elapsedMs < int64(seconds)*1000; elapsedMs += d.Milliseconds() {
			now = now.Add(d)
			s.RecordTick(now)
		}
	}

	tickEvery(50*time.Millisecond, 20)
	if tps := s.TPS(); !approxEqual(tps, 20.0, 0.6) {
		t.Fatalf("TPS after 20s of 50ms ticks = %v, want ~20", tps)
	}

	tickEvery(80*time.Millisecond, 10)
	if tps := s.Windows().Average("10s"); !approxEqual(tps, 12.5, 1.0) {
		t.Fatalf("10s TPS after 10s of 80ms ticks = %v, want ~12.5", tps)
	}

	_, _, max := s.MSPT()
	if max < 75*time.Millisecond || max > 85*time.Millisecond {
		t.Fatalf("MSPT max = %v, want ~80ms", max)
	}
}

func TestWindowAvgEmptyReturnsTwenty(t *testing.T) {
	w := NewMetricsWindow()
	if got := w.Average("5s"); got != 20.0 {
		t.Fatalf("empty window average = %v, want 20.0", got)
	}
}

func TestTPSClampedToTwenty(t *testing.T) {
	s := NewTickSampler()
	now := time.Unix(0, 0)
	// Ticks far faster than 20/s should clamp to 20.0, never exceed it.
	for i := 0; i < 100; i++ {
		now = now.Add(time.Millisecond)
		s.RecordTick(now)
	}
	if tps := s.TPS(); tps > 20.0 {
		t.Fatalf("TPS = %v, must be clamped to <= 20", tps)
	}
}
