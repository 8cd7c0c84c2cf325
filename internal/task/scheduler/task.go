package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// State is the completion state of one task generation.
type State uint8

const (
	StatePending State = iota
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// chain links the generations of a periodic task.
type chain[T any] struct {
	latest atomic.Pointer[ScheduledTask[T]]
}

// ScheduledTask is one generation of a scheduled unit of work and the handle
// through which its outcome is observed. Rescheduling a cyclic task produces
// a new generation that shares the executor and the cancellation token.
type ScheduledTask[T any] struct {
	name          string
	executionTick uint64
	period        uint32
	exec          executor[T]
	token         *CancellationToken
	chain         *chain[T]

	mu    sync.Mutex
	state State
	value T
	err   error
	done  chan struct{}
}

func newTask[T any](name string, due uint64, period uint32, exec executor[T]) *ScheduledTask[T] {
	t := &ScheduledTask[T]{
		name:          name,
		executionTick: due,
		period:        period,
		exec:          exec,
		token:         NewCancellationToken(),
		chain:         &chain[T]{},
		done:          make(chan struct{}),
	}
	t.chain.latest.Store(t)
	return t
}

func (t *ScheduledTask[T]) Name() string              { return t.name }
func (t *ScheduledTask[T]) ExecutionTick() uint64     { return t.executionTick }
func (t *ScheduledTask[T]) Period() uint32            { return t.period }
func (t *ScheduledTask[T]) Kind() ExecKind            { return t.exec.kind }
func (t *ScheduledTask[T]) IsCyclic() bool            { return t.period > 0 }
func (t *ScheduledTask[T]) Token() *CancellationToken { return t.token }

// Latest returns the newest generation of the chain t belongs to.
func (t *ScheduledTask[T]) Latest() *ScheduledTask[T] { return t.chain.latest.Load() }

// IsCancelled reports whether this generation was cancelled or the chain's
// token has been set.
func (t *ScheduledTask[T]) IsCancelled() bool {
	return t.State() == StateCancelled || t.token.IsCancelled()
}

// Cancel stops the task and every later generation. It reports true when
// this call moved the handle to cancelled, or when it ended a live periodic
// chain whose current handle had already completed.
func (t *ScheduledTask[T]) Cancel() bool {
	tokenSet := t.token.Cancel()
	changed := t.finish(StateCancelled, *new(T), ErrCancelled)
	if l := t.Latest(); l != nil && l != t {
		l.finish(StateCancelled, *new(T), ErrCancelled)
	}
	return changed || (t.IsCyclic() && tokenSet)
}

func (t *ScheduledTask[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed once the generation succeeds, fails or is cancelled.
func (t *ScheduledTask[T]) Done() <-chan struct{} { return t.done }

// Result returns the outcome and whether the generation has completed.
func (t *ScheduledTask[T]) Result() (T, error, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.err, t.state != StatePending
}

// Wait blocks until the generation completes or ctx is done.
func (t *ScheduledTask[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		v, err, _ := t.Result()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (t *ScheduledTask[T]) finish(state State, v T, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePending {
		return false
	}
	t.state, t.value, t.err = state, v, err
	close(t.done)
	return true
}

// execute runs the body through the executor.
func (t *ScheduledTask[T]) execute(env *execEnv) error {
	if t.IsCancelled() {
		return fmt.Errorf("execute %q: %w", t.name, ErrIllegalState)
	}
	return t.exec.execute(t, env)
}

// reschedule returns the next generation, due period ticks after currentTick.
func (t *ScheduledTask[T]) reschedule(currentTick uint64) (*ScheduledTask[T], error) {
	if !t.IsCyclic() {
		return nil, fmt.Errorf("reschedule one-shot task %q: %w", t.name, ErrIllegalState)
	}
	next := &ScheduledTask[T]{
		name:          t.name,
		executionTick: currentTick + uint64(t.period),
		period:        t.period,
		exec:          t.exec,
		token:         t.token,
		chain:         t.chain,
		done:          make(chan struct{}),
	}
	t.chain.latest.Store(next)
	return next, nil
}

// entry adapters; the queue holds tasks of any result type.

func (t *ScheduledTask[T]) info() TaskInfo {
	return TaskInfo{Name: t.name, Due: t.executionTick, Period: t.period, Kind: t.exec.kind}
}

func (t *ScheduledTask[T]) cancelled() bool { return t.IsCancelled() }

func (t *ScheduledTask[T]) abort() bool { return t.finish(StateCancelled, *new(T), ErrCancelled) }

func (t *ScheduledTask[T]) cancel() bool { return t.Cancel() }

func (t *ScheduledTask[T]) run(env *execEnv) error { return t.execute(env) }

func (t *ScheduledTask[T]) next(currentTick uint64) (entry, error) {
	n, err := t.reschedule(currentTick)
	if err != nil {
		return nil, err
	}
	return n, nil
}
