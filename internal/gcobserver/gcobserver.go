// Package gcobserver implements the GC telemetry described in spec.md §4.3.
// It polls collector counters on an independent daemon goroutine, grounded
// on the teacher's throttled-warning idiom in server/world/world.go's
// handleGeneratorBackpressure, generalised to a per-collector delta tracker.
package gcobserver

import (
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/df-mc/guardian/host"
)

// Reading is a single sample of a collector's cumulative counters.
type Reading struct {
	Name      string
	Count     uint64
	TimeNanos uint64
}

// Source abstracts the host's collector counters (spec.md §6 treats the
// exact counter source as a host concern). The default, RuntimeSource,
// reports the Go runtime's single stop-the-world collector.
type Source interface {
	Read() []Reading
}

// RuntimeSource reads Go's runtime/debug.GCStats. The Go runtime exposes a
// single collector, unlike generational host VMs that may report several;
// RuntimeSource always returns one Reading named "gc".
type RuntimeSource struct{}

func (RuntimeSource) Read() []Reading {
	var st debug.GCStats
	debug.ReadGCStats(&st)
	return []Reading{{Name: "gc", Count: uint64(st.NumGC), TimeNanos: uint64(st.PauseTotal)}}
}

// CollectorStat is a point-in-time snapshot of one collector's derived
// statistics, safe to read from any thread.
type CollectorStat struct {
	Name             string
	CumulativeCount  uint64
	CumulativeTimeNs uint64
	AvgPauseMs       float64
	Classification   string // "major" or "minor"
}

const pollInterval = 2 * time.Second

// overheadWindowSamples is the 30-sample (60s at a 2s poll interval) window
// from spec.md §4.3.
const overheadWindowSamples = 30

// Config configures an Observer.
type Config struct {
	Source        Source
	MinDurationMs float64
	Notify        bool
	Log           *slog.Logger
	// OnClassified is invoked (on the observer goroutine) whenever a
	// collector's average pause crosses MinDurationMs and Notify is true.
	OnClassified func(name, classification string, avgPauseMs float64)
}

// Observer polls Source every 2s and derives per-collector cumulative
// stats plus a rolling 60s GC-overhead percentage (spec.md §4.3). All
// mutation happens on the observer's own goroutine; external readers take
// a consistent snapshot under a short lock.
type Observer struct {
	source        Source
	minDurationMs float64
	notify        bool
	log           *slog.Logger
	onClassified  func(name, classification string, avgPauseMs float64)

	mu        sync.Mutex
	last      map[string]Reading
	cum       map[string]*CollectorStat
	overhead  []float64 // ring, capacity overheadWindowSamples
	overheadI int
	overheadN int
}

// New creates an Observer from cfg, applying defaults for unset fields.
func New(cfg Config) *Observer {
	if cfg.Source == nil {
		cfg.Source = RuntimeSource{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Observer{
		source:        cfg.Source,
		minDurationMs: cfg.MinDurationMs,
		notify:        cfg.Notify,
		log:           cfg.Log,
		onClassified:  cfg.OnClassified,
		last:          make(map[string]Reading),
		cum:           make(map[string]*CollectorStat),
		overhead:      make([]float64, overheadWindowSamples),
	}
}

// Start registers the observer's poll loop on a daemon timer and returns a
// cancel function. Per spec.md §2 and §5, the observer never touches
// Adapter's mutation surface.
func (o *Observer) Start(sched host.Scheduler, clock host.Clock) (cancel func()) {
	if clock == nil {
		clock = host.SystemClock{}
	}
	return sched.DaemonTimer(pollInterval, func() { o.Poll(clock.Now()) })
}

// Poll reads the Source once, updates derived per-collector state, and
// records one overhead sample (the GC time of all collectors since the
// previous Poll, zero if none ran). It is exported so tests can drive the
// observer deterministically without a real timer.
func (o *Observer) Poll(now time.Time) {
	readings := o.source.Read()

	o.mu.Lock()
	defer o.mu.Unlock()

	sawInterval := false
	var intervalMs float64
	for _, r := range readings {
		prev, seen := o.last[r.Name]
		o.last[r.Name] = r
		if seen {
			sawInterval = true
		}
		if !seen || r.Count <= prev.Count {
			continue
		}

		deltaCount := r.Count - prev.Count
		deltaTimeNs := r.TimeNanos - prev.TimeNanos

		stat := o.cum[r.Name]
		if stat == nil {
			stat = &CollectorStat{Name: r.Name}
			o.cum[r.Name] = stat
		}
		stat.CumulativeCount += deltaCount
		stat.CumulativeTimeNs += deltaTimeNs
		stat.AvgPauseMs = float64(deltaTimeNs) / float64(deltaCount) / float64(time.Millisecond)
		stat.Classification = classify(r.Name)

		intervalMs += float64(deltaTimeNs) / float64(time.Millisecond)

		if stat.AvgPauseMs >= o.minDurationMs && o.notify && o.onClassified != nil {
			o.onClassified(r.Name, stat.Classification, stat.AvgPauseMs)
		}
	}
	if sawInterval {
		o.pushOverhead(intervalMs)
	}
}

func (o *Observer) pushOverhead(intervalMs float64) {
	o.overhead[o.overheadI%overheadWindowSamples] = intervalMs
	o.overheadI++
	if o.overheadN < overheadWindowSamples {
		o.overheadN++
	}
}

// classify applies the name-based heuristic from spec.md §4.3: a collector
// whose name contains "old" or "major" is classified as a major collector,
// everything else minor.
func classify(name string) string {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "old") || strings.Contains(lower, "major") {
		return "major"
	}
	return "minor"
}

// OverheadPercent returns the rolling GC overhead percentage over the
// current window: 100 * sum(interval_gc_ms) / (window_len_samples * 2000ms).
func (o *Observer) OverheadPercent() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.overheadN == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < o.overheadN; i++ {
		sum += o.overhead[i]
	}
	return 100 * sum / (float64(o.overheadN) * float64(pollInterval/time.Millisecond))
}

// Stat returns a copy of the collector's derived stats, or false if no
// collection for it has been observed yet.
func (o *Observer) Stat(name string) (CollectorStat, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.cum[name]
	if !ok {
		return CollectorStat{}, false
	}
	return *s, true
}
