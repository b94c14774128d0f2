package redstone

import (
	"sync"
	"testing"
	"time"

	"github.com/df-mc/guardian/internal/chunkkey"
	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestActivation201IsCancelledAndSuppressesChunk mirrors spec.md §8 scenario
// 5: 201 activations in one window for chunk C; activation 201 is cancelled
// and C becomes suppressed for the cooldown, with exactly one notification.
func TestActivation201IsCancelledAndSuppressesChunk(t *testing.T) {
	clock := newFakeClock()
	var notifies int
	s := New(Config{
		MaxActivationsPerChunk: 200,
		WindowSeconds:          2,
		CooldownSeconds:        10,
		Notify:                 true,
		Clock:                  clock,
		NotifyFn:               func(chunkkey.Key) { notifies++ },
	})
	key := chunkkey.Key{World: uuid.New(), X: 1, Z: 1}

	var lastDecision Decision
	for i := 0; i < 201; i++ {
		lastDecision = s.Activate(key)
	}
	if lastDecision != Cancelled {
		t.Fatalf("activation 201 decision = %v, want Cancelled", lastDecision)
	}
	if !s.Suppressed(key) {
		t.Fatalf("chunk should be suppressed after reaching the threshold")
	}
	if notifies != 1 {
		t.Fatalf("notifies = %d, want exactly 1", notifies)
	}

	// During the cooldown, every further activation is cancelled with no
	// additional notification.
	clock.advance(5 * time.Second)
	for i := 0; i < 20; i++ {
		if d := s.Activate(key); d != Cancelled {
			t.Fatalf("activation during cooldown = %v, want Cancelled", d)
		}
	}
	if notifies != 1 {
		t.Fatalf("notifies after repeated cancellations = %d, want still 1", notifies)
	}

	// After the cooldown elapses, the chunk is no longer suppressed.
	clock.advance(6 * time.Second)
	if s.Suppressed(key) {
		t.Fatalf("chunk should no longer be suppressed after cooldown elapses")
	}
}

func TestActivationsUnderThresholdAreAllowed(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{MaxActivationsPerChunk: 5, WindowSeconds: 2, CooldownSeconds: 10, Clock: clock})
	key := chunkkey.Key{World: uuid.New(), X: 0, Z: 0}

	for i := 0; i < 4; i++ {
		if d := s.Activate(key); d != Allowed {
			t.Fatalf("activation %d = %v, want Allowed", i, d)
		}
	}
}

func TestCounterResetsAtWindowBoundary(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{MaxActivationsPerChunk: 3, WindowSeconds: 2, CooldownSeconds: 10, Clock: clock})
	key := chunkkey.Key{World: uuid.New(), X: 0, Z: 0}

	s.Activate(key)
	s.Activate(key)
	clock.advance(3 * time.Second) // past the window boundary
	if d := s.Activate(key); d != Allowed {
		t.Fatalf("activation after window reset = %v, want Allowed", d)
	}
}

func TestCleanupDropsExpiredSuppressions(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{MaxActivationsPerChunk: 1, WindowSeconds: 2, CooldownSeconds: 5, Clock: clock})
	key := chunkkey.Key{World: uuid.New(), X: 0, Z: 0}

	s.Activate(key)
	s.Activate(key)
	if !s.Suppressed(key) {
		t.Fatalf("expected suppression after exceeding threshold of 1")
	}
	clock.advance(6 * time.Second)
	s.Cleanup()

	s.mu.Lock()
	_, stillTracked := s.suppressedUntil[key.PackedID()]
	s.mu.Unlock()
	if stillTracked {
		t.Fatalf("expired suppression should be dropped by Cleanup")
	}
}

func TestDifferentChunksTrackedIndependently(t *testing.T) {
	clock := newFakeClock()
	s := New(Config{MaxActivationsPerChunk: 1, WindowSeconds: 2, CooldownSeconds: 10, Clock: clock})
	world := uuid.New()
	a := chunkkey.Key{World: world, X: 0, Z: 0}
	b := chunkkey.Key{World: world, X: 1, Z: 0}

	s.Activate(a)
	if s.Suppressed(b) {
		t.Fatalf("activating chunk a must not suppress unrelated chunk b")
	}
}
