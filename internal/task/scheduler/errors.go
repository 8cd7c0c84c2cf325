package scheduler

import "errors"

var (
	// ErrIllegalState reports a task used against its lifecycle: executing a
	// cancelled task or rescheduling a one-shot one.
	ErrIllegalState = errors.New("scheduler: illegal task state")
	// ErrCancelled is the error observed through a cancelled task handle.
	ErrCancelled = errors.New("scheduler: task cancelled")
	// ErrNoEngine is returned when an async body has nowhere to run.
	ErrNoEngine = errors.New("scheduler: no async engine")
)
