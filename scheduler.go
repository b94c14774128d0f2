package guardian

import (
	"log/slog"
	"sync"
	"time"

	"github.com/df-mc/guardian/internal/clock"
	"github.com/df-mc/guardian/internal/workerpool"
)

// StandaloneScheduler is a ready-made host.Scheduler for embedders that do
// not already run their own main-thread/worker-pool model: a single
// goroutine drains OnMain/TimerMain tasks in submission order, standing in
// for the host's tick thread, and a fixed internal/workerpool.Pool backs
// OnWorker. A real game server host almost always already has both a main
// loop and an async task pool and should implement host.Scheduler directly
// against them instead; this exists for hosts and tests that don't.
//
// StandaloneScheduler also implements host.Clock, so it can be passed
// wherever a Clock is required alongside the Scheduler it came from.
type StandaloneScheduler struct {
	clock *clock.TimeBase
	pool  *workerpool.Pool
	log   *slog.Logger

	main    chan func()
	closing chan struct{}
	wg      sync.WaitGroup
}

// NewStandaloneScheduler starts a StandaloneScheduler with a worker pool of
// the given size (workerpool.DefaultWorkers if not positive).
func NewStandaloneScheduler(workers int, log *slog.Logger) *StandaloneScheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &StandaloneScheduler{
		clock:   clock.New(),
		pool:    workerpool.New(workers, 0, log),
		log:     log,
		main:    make(chan func(), 256),
		closing: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runMain()
	return s
}

func (s *StandaloneScheduler) runMain() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.main:
			s.runMainTask(task)
		case <-s.closing:
			return
		}
	}
}

func (s *StandaloneScheduler) runMainTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("main-thread task panicked", "recovered", r)
		}
	}()
	task()
	s.clock.Advance()
}

// OnMain implements host.Scheduler.
func (s *StandaloneScheduler) OnMain(task func()) {
	select {
	case s.main <- task:
	case <-s.closing:
	}
}

// TimerMain implements host.Scheduler.
func (s *StandaloneScheduler) TimerMain(period time.Duration, task func()) (cancel func()) {
	return s.repeat(period, func() { s.OnMain(task) })
}

// OnWorker implements host.Scheduler.
func (s *StandaloneScheduler) OnWorker(task func()) {
	if err := s.pool.Submit(task); err != nil {
		s.log.Warn("worker pool rejected task", "err", err)
	}
}

// DaemonTimer implements host.Scheduler.
func (s *StandaloneScheduler) DaemonTimer(period time.Duration, task func()) (cancel func()) {
	return s.repeat(period, task)
}

func (s *StandaloneScheduler) repeat(period time.Duration, task func()) (cancel func()) {
	ticker := time.NewTicker(period)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				task()
			case <-done:
				return
			case <-s.closing:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Now implements host.Clock.
func (s *StandaloneScheduler) Now() time.Time { return s.clock.Now() }

// Stop shuts down the main-thread goroutine and the worker pool. Timers
// returned from TimerMain/DaemonTimer should be cancelled individually
// before calling Stop.
func (s *StandaloneScheduler) Stop() {
	close(s.closing)
	s.wg.Wait()
	s.pool.Stop()
}
