package engine

import "errors"

var (
	// ErrStopped is returned by Submit after Stop, and passed to Done for
	// jobs that were still queued when the engine stopped.
	ErrStopped = errors.New("task engine stopped")
	ErrNilJob  = errors.New("task engine: job Run is nil")
)
