package host

import "errors"

// ErrExecutorShutdown indicates no worker goroutine was available to run an
// asynchronous analysis because the pool is shutting down or its queue is
// full (spec.md §7). It is checked with errors.Is, never matched by string.
// The other boundary crossings in §7 (a full workload queue, a refused host
// mutation, a missing host capability) are modelled as typed result enums
// instead — EnqueueResult, host.MutationOutcome — per SPEC_FULL.md's "a
// small result enum distinguishing success / retryable / fatal" alternative
// to sentinel errors.
var ErrExecutorShutdown = errors.New("guardian: executor shut down")
