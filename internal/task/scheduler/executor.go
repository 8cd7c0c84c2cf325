package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"rimetick/internal/task/engine"
)

// ExecKind selects where a task body runs.
type ExecKind uint8

const (
	// ExecSync runs the body on the goroutine calling AdvanceTick.
	ExecSync ExecKind = iota
	// ExecAsync hands the body to the shared engine.
	ExecAsync
)

func (k ExecKind) String() string {
	if k == ExecAsync {
		return "async"
	}
	return "sync"
}

type SyncFunc[T any] func() (T, error)

// AsyncFunc receives a context that is cancelled when the task's token is
// set or the engine stops.
type AsyncFunc[T any] func(ctx context.Context) (T, error)

type executor[T any] struct {
	kind  ExecKind
	sync  SyncFunc[T]
	async AsyncFunc[T]
}

// Submitter accepts background jobs without blocking. *engine.Service
// implements it.
type Submitter interface {
	Submit(j engine.Job) error
}

// execEnv is what an executor needs from its scheduler.
type execEnv struct {
	submit Submitter
	// asyncDone reports the outcome of an async body from the worker goroutine.
	// cancelled is set when the body ended because its task was cancelled.
	asyncDone func(info TaskInfo, err error, dur time.Duration, cancelled bool)
}

func (x executor[T]) execute(t *ScheduledTask[T], env *execEnv) error {
	switch x.kind {
	case ExecSync:
		v, err := runSync(x.sync)
		if err != nil {
			t.finish(StateFailed, v, err)
			return err
		}
		t.finish(StateSucceeded, v, nil)
		return nil

	case ExecAsync:
		if env == nil || env.submit == nil {
			var zero T
			t.finish(StateFailed, zero, ErrNoEngine)
			return ErrNoEngine
		}
		var (
			value T
			start time.Time
		)
		err := env.submit.Submit(engine.Job{
			Name: t.name,
			Ctx:  t.token.Context(),
			Run: func(ctx context.Context) error {
				start = time.Now()
				v, err := x.async(ctx)
				value = v
				return err
			},
			Done: func(err error) {
				var dur time.Duration
				if !start.IsZero() {
					dur = time.Since(start)
				}
				switch {
				case err != nil && t.token.IsCancelled():
					t.finish(StateCancelled, *new(T), ErrCancelled)
				case err != nil:
					t.finish(StateFailed, value, err)
				default:
					t.finish(StateSucceeded, value, nil)
				}
				if env.asyncDone != nil {
					env.asyncDone(t.info(), err, dur, t.State() == StateCancelled)
				}
			},
		})
		if err != nil {
			var zero T
			err = fmt.Errorf("submit %q: %w", t.name, err)
			t.finish(StateFailed, zero, err)
			return err
		}
		return nil

	default:
		return fmt.Errorf("unknown executor kind %d: %w", x.kind, ErrIllegalState)
	}
}

// runSync turns a panicking body into an error so the tick loop keeps going.
func runSync[T any](fn SyncFunc[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}

// PanicError carries a recovered panic from a sync body.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }
