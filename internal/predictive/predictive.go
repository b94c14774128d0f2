// Package predictive implements spec.md §4.10's PredictiveOptimizer: a spike
// detector and a weighted-trend detector fed once per second by MSPT
// samples, both reporting through a caller-supplied Trigger callback; the
// optimizer runs no actions itself. Grounded on the teacher's
// reuse pattern in server/world/redstone (a fixed ring buffer fed on a
// scheduler tick) and sharing its least-squares fit with
// internal/memtrend via internal/regression.
package predictive

import (
	"log/slog"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/df-mc/guardian/internal/regression"
)

// Config holds the optimizer's tunables (spec.md §6:
// automation.predictive-optimization.{slope-threshold,mspt-baseline,
// window-seconds,cooldown}).
type Config struct {
	WindowSeconds   int
	MsptBaselineMs  float64
	SlopeThreshold  float64 // ms/s
	CooldownSeconds int
	Log             *slog.Logger

	// Trigger is called when a detector fires. It receives the reason the
	// detector fired, for logging/notification.
	Trigger func(reason string)
}

func (c *Config) withDefaults() {
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

// Optimizer buffers MSPT samples and evaluates the spike and trend detectors
// on each new sample.
type Optimizer struct {
	cfg       Config
	samples   []float64 // milliseconds
	lastFired time.Time
	hasFired  bool
}

// New creates an Optimizer.
func New(cfg Config) *Optimizer {
	cfg.withDefaults()
	return &Optimizer{cfg: cfg}
}

// Sample feeds one MSPT value (milliseconds) at time now, runs both
// detectors, and fires Trigger at most once per CooldownSeconds.
func (o *Optimizer) Sample(now time.Time, msptMs float64) {
	o.samples = append(o.samples, msptMs)
	if len(o.samples) > o.cfg.WindowSeconds {
		o.samples = o.samples[len(o.samples)-o.cfg.WindowSeconds:]
	}

	if o.inCooldown(now) {
		return
	}

	if reason, fired := o.checkSpike(msptMs); fired {
		o.fire(now, reason)
		return
	}
	if reason, fired := o.checkTrend(); fired {
		o.fire(now, reason)
	}
}

func (o *Optimizer) inCooldown(now time.Time) bool {
	return o.hasFired && now.Sub(o.lastFired) < time.Duration(o.cfg.CooldownSeconds)*time.Second
}

func (o *Optimizer) fire(now time.Time, reason string) {
	o.lastFired = now
	o.hasFired = true
	if o.cfg.Trigger != nil {
		o.cfg.Trigger(reason)
	}
}

// checkSpike implements spec.md §4.10's spike detector: with at least 4
// samples, current ≥ 2·sample[n-1-lookback] (lookback = min(3, n-1)) and
// current ≥ mspt-baseline triggers.
func (o *Optimizer) checkSpike(current float64) (string, bool) {
	n := len(o.samples)
	if n < 4 {
		return "", false
	}
	lookback := 3
	if n-1 < lookback {
		lookback = n - 1
	}
	past := o.samples[n-1-lookback]
	if current >= 2*past && current >= o.cfg.MsptBaselineMs {
		return "mspt spike", true
	}
	return "", false
}

// checkTrend implements spec.md §4.10's trend detector: once there are at
// least max(3, window/2) samples, fits an exponentially weighted regression
// line (last sample weighted ~3x the first); triggers if the slope in ms/s
// is at least SlopeThreshold and the weighted average is at least the MSPT
// baseline.
func (o *Optimizer) checkTrend() (string, bool) {
	minSamples := o.cfg.WindowSeconds / 2
	if minSamples < 3 {
		minSamples = 3
	}
	n := len(o.samples)
	if n < minSamples {
		return "", false
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	weights := regression.ExponentialWeights[float64](n)
	_, slopePerSecond := regression.FitWeighted(xs, o.samples, weights) // one sample per second

	weightedAvg := weightedMean(o.samples, weights)

	if slopePerSecond >= o.cfg.SlopeThreshold && weightedAvg >= o.cfg.MsptBaselineMs {
		return "mspt trend", true
	}
	return "", false
}

func weightedMean[T constraints.Float](vals, weights []T) T {
	var sumW, sumWV T
	for i, v := range vals {
		w := weights[i]
		sumW += w
		sumWV += w * v
	}
	if sumW == 0 {
		return 0
	}
	return sumWV / sumW
}
