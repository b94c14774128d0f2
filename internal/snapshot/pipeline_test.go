package snapshot

import (
	"testing"
	"time"

	"github.com/df-mc/guardian/internal/workload"
)

// syncScheduler runs OnMain/OnWorker synchronously and never fires timers,
// so tests can drive cycles deterministically.
type syncScheduler struct{}

func (syncScheduler) OnMain(task func())                                        { task() }
func (syncScheduler) OnWorker(task func())                                      { task() }
func (syncScheduler) TimerMain(time.Duration, func()) func()                    { return func() {} }
func (syncScheduler) DaemonTimer(period time.Duration, task func()) func()      { return func() {} }

func TestPipelineSnapshotAnalyzeDispatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var applied []int

	dist := workload.New(workload.Config{Capacity: 100})

	cfg := Config[[]int, int, int]{
		Scheduler: syncScheduler{},
		NewBuilder: func() Builder[[]int] {
			return NewSliceBuilder(nil, items, 0, func(v int) int { return v * 2 })
		},
		Analyze: func(s []int) []Mutation[int, int] {
			muts := make([]Mutation[int, int], len(s))
			for i, v := range s {
				muts[i] = Mutation[int, int]{Key: i, Payload: v}
			}
			return muts
		},
		BatchSize: 2,
		ApplyBatch: func(batch []Mutation[int, int]) {
			for _, m := range batch {
				applied = append(applied, m.Payload)
			}
		},
	}
	p := New(cfg, dist)
	p.Trigger()

	// ApplyBatch enqueues onto the distributor; drain it.
	dist.SetBudget(int64(time.Second))
	for dist.Size() > 0 {
		dist.RunTick()
	}

	if len(applied) != 5 {
		t.Fatalf("applied %d mutations, want 5", len(applied))
	}
	if p.InFlight() {
		t.Fatalf("pipeline still in flight after cycle completed")
	}
}

func TestPipelineSkipsOverlappingCycle(t *testing.T) {
	dist := workload.New(workload.Config{Capacity: 10})
	started := make(chan struct{}, 10)

	cfg := Config[[]int, int, int]{
		Scheduler: blockingScheduler{},
		NewBuilder: func() Builder[[]int] {
			started <- struct{}{}
			return NewSliceBuilder(nil, []int{1}, 0, func(v int) int { return v })
		},
		Analyze:    func(s []int) []Mutation[int, int] { return nil },
		ApplyBatch: func([]Mutation[int, int]) {},
	}
	p := New(cfg, dist)
	p.Trigger()
	p.Trigger() // should be dropped: previous cycle never completed
	p.Trigger()

	if len(started) != 1 {
		t.Fatalf("started %d cycles, want exactly 1 (overlap must be dropped)", len(started))
	}
}

// blockingScheduler never calls OnMain's task, leaving a cycle permanently
// in flight so a second Trigger can be observed being dropped.
type blockingScheduler struct{}

func (blockingScheduler) OnMain(func())                                   {}
func (blockingScheduler) OnWorker(func())                                 {}
func (blockingScheduler) TimerMain(time.Duration, func()) func()          { return func() {} }
func (blockingScheduler) DaemonTimer(time.Duration, func()) func()        { return func() {} }
