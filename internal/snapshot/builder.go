package snapshot

import (
	"time"

	"github.com/df-mc/guardian/host"
)

// SliceBuilder is a reusable Builder that walks a fixed slice of source
// items, visiting up to MaxPerStep items (or until the deadline, whichever
// comes first) on each Step call. It implements the per-scanner budgets
// named in spec.md §4.5 ("0.5ms or 5 players per tick").
type SliceBuilder[T, R any] struct {
	clock      host.Clock
	items      []T
	maxPerStep int
	visit      func(T) R

	idx int
	out []R
}

// NewSliceBuilder creates a SliceBuilder over items. maxPerStep <= 0 means no
// per-step item cap (the deadline alone governs yielding).
func NewSliceBuilder[T, R any](clock host.Clock, items []T, maxPerStep int, visit func(T) R) *SliceBuilder[T, R] {
	if clock == nil {
		clock = host.SystemClock{}
	}
	return &SliceBuilder[T, R]{clock: clock, items: items, maxPerStep: maxPerStep, visit: visit, out: make([]R, 0, len(items))}
}

func (b *SliceBuilder[T, R]) Step(_ time.Time, deadline time.Time) bool {
	stepCount := 0
	for b.idx < len(b.items) {
		if b.maxPerStep > 0 && stepCount >= b.maxPerStep {
			return false
		}
		if b.clock.Now().After(deadline) {
			return false
		}
		b.out = append(b.out, b.visit(b.items[b.idx]))
		b.idx++
		stepCount++
	}
	return true
}

func (b *SliceBuilder[T, R]) Result() []R { return b.out }
