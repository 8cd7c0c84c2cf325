// Package engine is the shared background execution context used by async
// task bodies. It owns an unbounded FIFO backlog drained by supervised workers.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"rimetick/internal/eventbus"
	rtsup "rimetick/internal/runtime/supervisor"
	logx "rimetick/pkg/logx"
)

type Service struct {
	mu      sync.Mutex
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	parent  context.Context
	backlog *queue.Queue
	wake    chan struct{}
	sup     *rtsup.Supervisor
	stopped bool

	inFlight  atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		log:     log,
		bus:     bus,
		parent:  context.Background(),
		backlog: queue.New(),
	}
}

// Start launches the workers under ctx. It is called lazily by the first
// Submit when the caller never starts the engine explicitly.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx != nil {
		s.parent = ctx
	}
	s.startLocked()
}

func (s *Service) startLocked() {
	if s.sup != nil || s.stopped {
		return
	}
	cfg := s.cfg
	s.wake = make(chan struct{}, cfg.Workers)
	s.sup = rtsup.New(s.parent, rtsup.WithLogger(s.log.With(logx.String("comp", "supervisor"))))
	for i := 0; i < cfg.Workers; i++ {
		wake := s.wake
		s.sup.GoRestart(fmt.Sprintf("worker.%d", i), func(ctx context.Context) error {
			return s.worker(ctx, wake)
		})
	}
	s.log.Info("task engine started", logx.Int("workers", cfg.Workers))
}

// Apply updates the history bound. A new worker count takes effect on the
// next start.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.sup != nil
	s.mu.Unlock()

	if running && prev.Workers != cfg.Workers {
		s.log.Info("worker count change deferred until restart", logx.Int("workers", prev.Workers), logx.Int("next", cfg.Workers))
	}
}

// Submit queues j and returns immediately.
func (s *Service) Submit(j Job) error {
	if j.Run == nil {
		return ErrNilJob
	}
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" {
		j.Name = "job"
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.startLocked()
	s.backlog.Add(queuedJob{job: j, enqueuedAt: time.Now()})
	wake := s.wake
	s.mu.Unlock()

	s.submitted.Add(1)
	select {
	case wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop cancels running jobs, fails the backlog with ErrStopped and waits for
// the workers until ctx expires. The engine cannot be restarted.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	sup := s.sup
	var drained []queuedJob
	for s.backlog.Length() > 0 {
		drained = append(drained, s.backlog.Remove().(queuedJob))
	}
	s.mu.Unlock()

	for _, qj := range drained {
		s.finish(qj.job, ErrStopped)
	}
	if sup == nil {
		return nil
	}
	start := time.Now()
	err := sup.Stop(ctx)
	if err != nil {
		s.log.Warn("task engine stop incomplete", logx.Err(err))
		return err
	}
	s.log.Info("task engine stopped", logx.Int("dropped", len(drained)), logx.Duration("took", time.Since(start)))
	return nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	backlog := s.backlog.Length()
	sup := s.sup
	running := sup != nil && !s.stopped
	s.mu.Unlock()

	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	snap := Snapshot{
		Running:   running,
		Workers:   cfg.Workers,
		Backlog:   backlog,
		InFlight:  int(s.inFlight.Load()),
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		History:   h,
	}
	if sup != nil {
		snap.Supervisor = sup.Snapshot()
	}
	return snap
}

func (s *Service) pop() (queuedJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.backlog.Length() == 0 {
		return queuedJob{}, false
	}
	return s.backlog.Remove().(queuedJob), true
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}
