package app

import (
	"context"
	"sync/atomic"
	"time"

	"rimetick/internal/eventbus"
	"rimetick/internal/storage"
	"rimetick/internal/task/scheduler"
	logx "rimetick/pkg/logx"
)

const recorderBuffer = 512

// recorder persists task outcomes published on the bus.
type recorder struct {
	store  storage.Store
	log    logx.Logger
	events <-chan eventbus.Event
	unsub  func()

	written atomic.Uint64
	failed  atomic.Uint64
}

// newRecorder subscribes immediately so no outcome published after it
// returns is missed.
func newRecorder(store storage.Store, bus eventbus.Bus, log logx.Logger) *recorder {
	events, unsub := bus.Subscribe(recorderBuffer,
		eventbus.TaskExecuted,
		eventbus.TaskFailed,
		eventbus.TaskCancelled,
	)
	return &recorder{store: store, log: log, events: events, unsub: unsub}
}

// run writes records until ctx is done, then drains what is buffered.
func (r *recorder) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.unsub()
			for e := range r.events {
				r.write(context.Background(), e)
			}
			r.log.Debug("recorder stopped", logx.Uint64("written", r.written.Load()))
			return nil
		case e, ok := <-r.events:
			if !ok {
				return nil
			}
			r.write(ctx, e)
		}
	}
}

func (r *recorder) write(ctx context.Context, e eventbus.Event) {
	rec, ok := recordFromEvent(e)
	if !ok {
		return
	}
	if err := r.store.Append(ctx, rec); err != nil {
		// log the first failure only; the counter keeps the total
		if r.failed.Add(1) == 1 {
			r.log.Warn("history append failed", logx.String("task", rec.Task), logx.Err(err))
		}
		return
	}
	r.written.Add(1)
}

func recordFromEvent(e eventbus.Event) (storage.Record, bool) {
	te, ok := e.Data.(scheduler.TaskEvent)
	if !ok {
		return storage.Record{}, false
	}
	at := e.Time
	if at.IsZero() {
		at = time.Now()
	}
	return storage.Record{
		At:         at.UTC(),
		Tick:       te.Tick,
		Task:       te.Name,
		Kind:       te.Kind,
		Outcome:    outcomeOf(e.Type),
		Error:      te.Error,
		DurationMS: te.Duration.Milliseconds(),
	}, true
}

func outcomeOf(typ string) string {
	switch typ {
	case eventbus.TaskExecuted:
		return "ok"
	case eventbus.TaskFailed:
		return "failed"
	case eventbus.TaskCancelled:
		return "cancelled"
	default:
		return typ
	}
}
