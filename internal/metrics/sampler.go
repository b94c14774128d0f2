package metrics

import (
	"sync"
	"time"
)

const (
	// msptRingSize is the 100-deep MSPT history ring from spec.md §3.
	msptRingSize = 100
	// externalTPSWindow is the "separate 20-element ring" spec.md §4.2
	// describes for the externally reported TPS value.
	externalTPSWindow = 20
	// maxTPS is the clamp applied to every flushed TpsSecond sample.
	maxTPS = 20.0
)

// TickSampler measures inter-tick latency and maintains the MSPT ring and
// the five windowed TPS averages, grounded on server/world/tick.go's
// tickLoop (spec.md §4.2).
type TickSampler struct {
	mu sync.Mutex

	mspt *durationRing

	windows     *MetricsWindow
	externalTPS *floatRing

	lastTick        time.Time
	intervalStart   time.Time
	ticksInInterval int
}

// NewTickSampler creates a TickSampler with the standard ring sizes.
func NewTickSampler() *TickSampler {
	return &TickSampler{
		mspt:        newDurationRing(msptRingSize),
		windows:     NewMetricsWindow(),
		externalTPS: newFloatRing(externalTPSWindow),
	}
}

// RecordTick is called once per main-thread tick with the current wall
// time. It records the inter-tick duration into the MSPT ring and, once at
// least one wall second has elapsed, flushes a clamped TpsSecond sample into
// every windowed average and the external TPS ring.
func (s *TickSampler) RecordTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastTick.IsZero() {
		if d := now.Sub(s.lastTick); d > 0 {
			s.mspt.push(d)
		}
	}
	s.lastTick = now

	if s.intervalStart.IsZero() {
		s.intervalStart = now
	}
	s.ticksInInterval++

	elapsed := now.Sub(s.intervalStart)
	if elapsed < time.Second {
		return
	}

	tps := float64(s.ticksInInterval) / elapsed.Seconds()
	switch {
	case tps > maxTPS:
		tps = maxTPS
	case tps < 0:
		tps = 0
	}
	s.externalTPS.push(tps)
	s.windows.record(tps)

	s.ticksInInterval = 0
	s.intervalStart = now
}

// TPS returns the externally reported TPS: the average of up to the last 20
// one-second samples. It returns 20.0 before any sample has been recorded.
func (s *TickSampler) TPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg, ok := s.externalTPS.avg()
	if !ok {
		return maxTPS
	}
	return avg
}

// MSPT returns the average, minimum and maximum duration over the 100-deep
// tick history ring.
func (s *TickSampler) MSPT() (avg, min, max time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mspt.stats()
}

// Windows returns the rolling 5s/10s/1m/5m/15m TPS averages.
func (s *TickSampler) Windows() *MetricsWindow { return s.windows }
