package dispatch

import (
	"context"
	"errors"
	"time"
)

// Deferred is an action result that arrives after the action returns.
// The producing side calls Resolve exactly once; the scheduler waits
// with a bounded timeout.
type Deferred struct {
	ch chan deferredOutcome
}

type deferredOutcome struct {
	result *Result
	err    error
}

// ErrDeferredTimeout is returned when a deferred result does not
// arrive within the scheduler's wait budget.
var ErrDeferredTimeout = errors.New("deferred result timed out")

// NewDeferred returns an unresolved deferred.
func NewDeferred() *Deferred {
	return &Deferred{ch: make(chan deferredOutcome, 1)}
}

// Resolve delivers the result. Only the first call counts.
func (d *Deferred) Resolve(r *Result, err error) {
	select {
	case d.ch <- deferredOutcome{result: r, err: err}:
	default:
	}
}

// Wait blocks until the result arrives, the timeout expires, or ctx is
// cancelled.
func (d *Deferred) Wait(ctx context.Context, timeout time.Duration) (*Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-d.ch:
		return out.result, out.err
	case <-timer.C:
		return nil, ErrDeferredTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
