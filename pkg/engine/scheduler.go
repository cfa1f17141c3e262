package engine

import "time"

// SchedulerKind selects how the step loop is driven. The kind is fixed
// at construction — the engine never introspects its caller to guess.
type SchedulerKind int

const (
	// Blocking runs the loop to completion on the calling goroutine;
	// input steps block on the terminal read.
	Blocking SchedulerKind = iota
	// Suspending is driven by an external message loop: the loop runs
	// on its own goroutine and parks on channel reads at every
	// interaction point, so the driving loop is never blocked.
	Suspending
)

func (k SchedulerKind) String() string {
	switch k {
	case Blocking:
		return "blocking"
	case Suspending:
		return "suspending"
	}
	return "unknown"
}

// DefaultWaitTimeout bounds how long a scheduler waits for a deferred
// action result before surfacing a timeout error.
const DefaultWaitTimeout = 300 * time.Second
