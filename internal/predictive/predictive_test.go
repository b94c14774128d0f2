package predictive

import (
	"testing"
	"time"
)

// TestSpikeDetectorFiresOnceThenCoolsDown mirrors spec.md §8 scenario 3:
// feed [10,10,10,10,10,10,10,10,10,40] with window=10, baseline=30,
// cooldown=60s; the spike detector fires once, subsequent identical feeds
// within the cool-down do not re-trigger.
func TestSpikeDetectorFiresOnceThenCoolsDown(t *testing.T) {
	var reasons []string
	o := New(Config{
		WindowSeconds:   10,
		MsptBaselineMs:  30,
		SlopeThreshold:  1e9, // disable the trend detector for this scenario
		CooldownSeconds: 60,
		Trigger:         func(reason string) { reasons = append(reasons, reason) },
	})

	now := time.Unix(0, 0)
	samples := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 40}
	for _, s := range samples {
		o.Sample(now, s)
		now = now.Add(time.Second)
	}
	if len(reasons) != 1 {
		t.Fatalf("fired %d times, want exactly 1", len(reasons))
	}

	// Feed the same spike again within the cool-down window: no re-fire.
	for _, s := range samples {
		o.Sample(now, s)
		now = now.Add(time.Second)
	}
	if len(reasons) != 1 {
		t.Fatalf("fired %d times after repeat within cooldown, want still 1", len(reasons))
	}
}

func TestSpikeDetectorRequiresAtLeastFourSamples(t *testing.T) {
	fired := false
	o := New(Config{WindowSeconds: 10, MsptBaselineMs: 1, CooldownSeconds: 60, Trigger: func(string) { fired = true }})
	now := time.Unix(0, 0)
	o.Sample(now, 100)
	o.Sample(now, 100)
	o.Sample(now, 100)
	if fired {
		t.Fatalf("spike detector must not evaluate with fewer than 4 samples")
	}
}

func TestTrendDetectorFiresOnSustainedRise(t *testing.T) {
	var reasons []string
	o := New(Config{
		WindowSeconds:   10,
		MsptBaselineMs:  10,
		SlopeThreshold:  0.5,
		CooldownSeconds: 60,
		Trigger:         func(reason string) { reasons = append(reasons, reason) },
	})
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		o.Sample(now, 10+float64(i)*2) // steadily climbing MSPT
		now = now.Add(time.Second)
	}
	if len(reasons) == 0 {
		t.Fatalf("expected the trend detector to fire on a sustained rise")
	}
}

func TestNoTriggerWhenFlatAndBelowBaseline(t *testing.T) {
	fired := false
	o := New(Config{WindowSeconds: 10, MsptBaselineMs: 50, SlopeThreshold: 0.1, CooldownSeconds: 60, Trigger: func(string) { fired = true }})
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		o.Sample(now, 10)
		now = now.Add(time.Second)
	}
	if fired {
		t.Fatalf("must not trigger while flat and below baseline")
	}
}
