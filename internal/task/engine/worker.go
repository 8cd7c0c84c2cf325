package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"rimetick/internal/eventbus"
	logx "rimetick/pkg/logx"
)

func (s *Service) worker(ctx context.Context, wake <-chan struct{}) error {
	for {
		qj, ok := s.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wake:
			}
			continue
		}
		s.execOne(ctx, qj)
	}
}

func (s *Service) execOne(ctx context.Context, qj queuedJob) {
	start := time.Now()
	queueDelay := start.Sub(qj.enqueuedAt)

	parent := qj.job.Ctx
	if parent == nil {
		parent = ctx
	}
	runCtx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(ctx, cancel)

	s.inFlight.Add(1)
	err := s.runJob(runCtx, qj.job)
	s.inFlight.Add(-1)
	stop()
	cancel()

	dur := time.Since(start)
	item := HistoryItem{Name: qj.job.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.failed.Add(1)
		s.log.Debug("job failed", logx.String("job", qj.job.Name), logx.Err(err), logx.Duration("dur", dur))
		s.bus.Publish(eventbus.Event{Type: eventbus.JobFailed, Time: time.Now(), Data: JobEvent{Name: qj.job.Name, Duration: dur, Error: item.Error}})
	} else {
		s.completed.Add(1)
		s.log.Trace("job completed", logx.String("job", qj.job.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	}
	s.record(item)
	s.finish(qj.job, err)
}

// runJob converts a panicking body into an error so one bad job cannot take
// a worker down.
func (s *Service) runJob(ctx context.Context, j Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panicked", logx.String("job", j.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return j.Run(ctx)
}

func (s *Service) finish(j Job, err error) {
	if j.Done == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job completion callback panicked", logx.String("job", j.Name), logx.Any("panic", r))
		}
	}()
	j.Done(err)
}
