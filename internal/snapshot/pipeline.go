// Package snapshot implements the generic four-phase harness described in
// spec.md §4.5 — async trigger, incremental main-thread snapshot, off-main
// analysis, dispatch via the workload distributor — shared by every
// scanner (culler, chunk limiter, entity limiter, density optimizer, lag
// analyzer). The world chunk guard does not use it. It is grounded on the
// teacher's server/world/redstone
// Scheduler.Step/ChunkWorker budget-and-reschedule loop, generalised from
// "redstone events" to "scanner snapshot slices".
package snapshot

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/df-mc/guardian/host"
	"github.com/df-mc/guardian/internal/workload"
)

// Builder accumulates an immutable snapshot value in small time slices.
// Step is called repeatedly on the main thread; it must do at most a bounded
// slice of work and report whether the snapshot is complete. Implementations
// must never block.
type Builder[S any] interface {
	// Step performs one slice of work. now is the time Step was invoked;
	// deadline is the point past which Step must stop and return false so
	// the pipeline can reschedule it for the next tick.
	Step(now, deadline time.Time) (done bool)
	// Result returns the finished, immutable snapshot. Only called once
	// Step has returned true.
	Result() S
}

// Mutation pairs an intended host mutation with the stable identifier
// (entity id, chunk coordinate, ...) the dispatch phase re-validates against
// before applying it.
type Mutation[K comparable, P any] struct {
	Key     K
	Payload P
}

// Config configures a Pipeline.
type Config[S any, K comparable, P any] struct {
	Scheduler host.Scheduler
	Clock     host.Clock
	Log       *slog.Logger

	// TriggerInterval is the off-main repeating timer period (phase 1).
	TriggerInterval time.Duration
	// SliceBudget bounds how long a single Step call may run before the
	// snapshot builder must yield and reschedule itself (phase 2).
	SliceBudget time.Duration
	// NewBuilder constructs a fresh Builder for one cycle.
	NewBuilder func() Builder[S]
	// Analyze runs off-main (phase 3) and produces the intended mutations.
	Analyze func(S) []Mutation[K, P]
	// BatchSize is the dispatch batch size (phase 4); spec.md §4.5's
	// "typical batch 50".
	BatchSize int
	// ApplyBatch runs on the main thread for one batch of mutations. It
	// must re-validate each mutation's target via the host before applying
	// it (spec.md §4.5).
	ApplyBatch func([]Mutation[K, P])
}

func (c *Config[S, K, P]) withDefaults() {
	if c.SliceBudget <= 0 {
		c.SliceBudget = time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = host.SystemClock{}
	}
}

// Pipeline drives one scanner's snapshot → analyze → dispatch cycle.
type Pipeline[S any, K comparable, P any] struct {
	cfg Config[S, K, P]
	dist *workload.Distributor

	inFlight atomic.Bool
	cancel   func()
}

// New creates a Pipeline. dist is the WorkloadDistributor used for phase 4
// dispatch; it is the sole writer into the host's mutation surface.
func New[S any, K comparable, P any](cfg Config[S, K, P], dist *workload.Distributor) *Pipeline[S, K, P] {
	cfg.withDefaults()
	return &Pipeline[S, K, P]{cfg: cfg, dist: dist}
}

// Start registers the async trigger (phase 1) on a repeating off-main timer
// and returns a cancel function.
func (p *Pipeline[S, K, P]) Start() (cancelFn func()) {
	p.cancel = p.cfg.Scheduler.DaemonTimer(p.cfg.TriggerInterval, p.Trigger)
	return p.cancel
}

// Trigger begins one cycle if, and only if, no previous cycle is still in
// flight (spec.md §4.5's concurrency guard). It is exported so tests and
// hosts with their own timer can drive cycles directly.
func (p *Pipeline[S, K, P]) Trigger() {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	builder := p.cfg.NewBuilder()
	p.cfg.Scheduler.OnMain(func() { p.step(builder) })
}

// InFlight reports whether a cycle is currently running.
func (p *Pipeline[S, K, P]) InFlight() bool { return p.inFlight.Load() }

func (p *Pipeline[S, K, P]) step(b Builder[S]) {
	now := p.cfg.Clock.Now()
	deadline := now.Add(p.cfg.SliceBudget)
	if !b.Step(now, deadline) {
		p.cfg.Scheduler.OnMain(func() { p.step(b) })
		return
	}
	result := b.Result()
	p.cfg.Scheduler.OnWorker(func() { p.analyzeAndDispatch(result) })
}

func (p *Pipeline[S, K, P]) analyzeAndDispatch(s S) {
	defer p.inFlight.Store(false)

	defer func() {
		if r := recover(); r != nil {
			p.cfg.Log.Error("snapshot analysis panicked", "recovered", r)
		}
	}()

	mutations := p.cfg.Analyze(s)
	for start := 0; start < len(mutations); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(mutations) {
			end = len(mutations)
		}
		batch := mutations[start:end]
		p.dist.Enqueue(func() { p.cfg.ApplyBatch(batch) })
	}
}
