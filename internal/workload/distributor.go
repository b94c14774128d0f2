package workload

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/df-mc/guardian/host"
)

// SlowTaskThreshold is the elapsed duration above which a single task emits
// a slow-task diagnostic, per spec.md §4.1.
const SlowTaskThreshold = 50 * time.Millisecond

// Distributor drains a bounded task queue on the main thread within a
// per-tick nanosecond budget. It is the sole writer into a host.Adapter's
// mutation surface (spec.md §2).
type Distributor struct {
	q    *taskQueue
	sched host.Scheduler
	clock host.Clock
	log  *slog.Logger

	budgetNanos atomic.Int64

	armed      atomic.Bool
	cancelFunc atomic.Pointer[func()]

	overflowWarned atomic.Bool
}

// Config configures a Distributor. The zero value is usable; missing fields
// are defaulted.
type Config struct {
	Capacity    int
	BudgetNanos int64
	Scheduler   host.Scheduler
	Clock       host.Clock
	Log         *slog.Logger
}

// New creates a Distributor from cfg.
func New(cfg Config) *Distributor {
	if cfg.BudgetNanos <= 0 {
		cfg.BudgetNanos = int64(5 * time.Millisecond)
	}
	if cfg.Clock == nil {
		cfg.Clock = host.SystemClock{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	d := &Distributor{
		q:     newTaskQueue(cfg.Capacity),
		sched: cfg.Scheduler,
		clock: cfg.Clock,
		log:   cfg.Log,
	}
	d.budgetNanos.Store(cfg.BudgetNanos)
	return d
}

// SetBudget reloads the per-tick nanosecond budget. The tick already in
// progress finishes under the budget that was in force at tick start
// (spec.md §4.1); a reload only affects the next tick onward.
func (d *Distributor) SetBudget(nanos int64) {
	if nanos > 0 {
		d.budgetNanos.Store(nanos)
	}
}

// Size returns the current queue size. Safe to call from any thread.
func (d *Distributor) Size() int { return d.q.size() }

// Enqueue appends t to the queue. It is constant-time, thread-safe and never
// blocks. If the queue is at capacity, the task is rejected and dropped; the
// caller observes RejectedQueueFull.
func (d *Distributor) Enqueue(t Task) EnqueueResult {
	accepted, size := d.q.push(t)
	if !accepted {
		d.warnOverflowOnce()
		return RejectedQueueFull
	}
	if size > 0 {
		d.arm()
	}
	return Accepted
}

func (d *Distributor) warnOverflowOnce() {
	if d.overflowWarned.CompareAndSwap(false, true) {
		d.log.Warn("workload queue full: rejecting task", "capacity", d.q.cap)
	}
	// Note: the "once per transition" contract (spec.md §7) is restored the
	// next time the queue drops back under capacity and later overflows
	// again; clearWarnedIfDrained handles the transition back.
}

func (d *Distributor) clearWarnedIfDrained() {
	if d.q.size() == 0 {
		d.overflowWarned.Store(false)
	}
}

// arm lazily starts the consumer timer on the first non-empty enqueue. It is
// a no-op if already armed or if no Scheduler was configured (in which case
// the host is expected to call RunTick directly, e.g. in tests).
func (d *Distributor) arm() {
	if d.sched == nil {
		return
	}
	if !d.armed.CompareAndSwap(false, true) {
		return
	}
	cancel := d.sched.TimerMain(20*time.Millisecond, d.runAndMaybeDisarm)
	d.cancelFunc.Store(&cancel)
}

func (d *Distributor) runAndMaybeDisarm() {
	d.RunTick()
	if d.q.size() > 0 {
		return
	}
	// The queue emptied during this tick. Stop the timer, then re-check: a
	// producer may have raced the stop transition and enqueued a task right
	// after our emptiness check above. If so, re-arm rather than leave a
	// task stranded with no active consumer (spec.md §4.1).
	d.armed.Store(false)
	if cp := d.cancelFunc.Load(); cp != nil {
		(*cp)()
	}
	if d.q.size() > 0 {
		d.arm()
	}
}

// RunTick drains the queue, running tasks until it is empty or the per-tick
// budget in force at the start of the tick is exhausted. Task panics are
// recovered and logged; they never terminate the loop. RunTick is safe to
// call directly (e.g. from a host's own tick loop) in addition to, or
// instead of, the lazily-armed Scheduler-driven timer.
func (d *Distributor) RunTick() {
	budget := time.Duration(d.budgetNanos.Load())
	deadline := d.clock.Now().Add(budget)
	for d.clock.Now().Before(deadline) {
		t, ok := d.q.pop()
		if !ok {
			break
		}
		d.runTask(t)
	}
	d.clearWarnedIfDrained()
}

func (d *Distributor) runTask(t Task) {
	start := d.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("workload task panicked", "recovered", r)
		}
		if elapsed := d.clock.Now().Sub(start); elapsed > SlowTaskThreshold {
			d.log.Warn("slow workload task", "elapsed", elapsed)
		}
	}()
	t()
}
