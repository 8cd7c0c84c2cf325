package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"rimetick/internal/eventbus"
	"rimetick/internal/task/engine"
	logx "rimetick/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	// SlowTask is the sync body duration that triggers a warning. 0 disables it.
	SlowTask time.Duration
	// SlowWarnEvery spaces slow-task warnings.
	SlowWarnEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.SlowWarnEvery <= 0 {
		c.SlowWarnEvery = 10 * time.Second
	}
	return c
}

// Options describes a task at scheduling time.
type Options struct {
	Name string
	// Delay is the number of ticks before the first run. 0 means the next
	// AdvanceTick.
	Delay uint64
	// Period > 0 makes the task cyclic: it runs again Period ticks after
	// each run until cancelled.
	Period uint32
}

// TaskInfo describes a pending task.
type TaskInfo struct {
	Name   string   `json:"name"`
	Due    uint64   `json:"due"`
	Period uint32   `json:"period,omitempty"`
	Kind   ExecKind `json:"kind"`
}

// Scheduler owns the tick counter and the pending-task queue.
//
// AdvanceTick must be driven by one goroutine at a time (the tick thread).
// Scheduling and cancellation are safe from any goroutine, including from
// inside task bodies.
type Scheduler struct {
	mu     sync.Mutex
	queue  taskQueue
	seq    uint64
	closed bool

	tickMu sync.Mutex
	tick   atomic.Uint64

	cfgMu    sync.Mutex
	cfg      Config
	slowWarn *rate.Limiter

	log        logx.Logger
	bus        eventbus.Bus
	eng        *engine.Service
	ownsEngine bool
	env        execEnv

	executed    atomic.Uint64
	failed      atomic.Uint64
	cancelled   atomic.Uint64
	rescheduled atomic.Uint64
}

// New returns a scheduler at tick 0. A nil eng gives the scheduler its own
// lazily started engine, stopped by Close.
func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:      cfg,
		slowWarn: rate.NewLimiter(rate.Every(cfg.SlowWarnEvery), 1),
		log:      log,
		bus:      bus,
		eng:      eng,
	}
	if s.eng == nil {
		s.eng = engine.New(engine.Config{}, log.With(logx.String("comp", "engine")), bus)
		s.ownsEngine = true
	}
	s.env = execEnv{submit: s.eng, asyncDone: s.onAsyncDone}
	return s
}

func (s *Scheduler) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfgMu.Lock()
	s.cfg = cfg
	s.slowWarn.SetLimit(rate.Every(cfg.SlowWarnEvery))
	s.cfgMu.Unlock()
}

// CurrentTick may be read from any goroutine.
func (s *Scheduler) CurrentTick() uint64 { return s.tick.Load() }

// Pending returns the number of queued tasks, cancelled ones included until
// they are drained.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Engine returns the engine async bodies run on.
func (s *Scheduler) Engine() *engine.Service { return s.eng }

// AdvanceTick runs every task due at the current tick, then advances the
// tick by one.
//
// Due tasks are taken off the queue first and run with the queue unlocked,
// so bodies may schedule or cancel freely. Work scheduled with zero delay
// during a drain runs on the next call. A cyclic task that missed several
// periods runs once and is rescheduled relative to the current tick.
func (s *Scheduler) AdvanceTick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.tick.Load()

	s.mu.Lock()
	batch := s.queue.popDue(now)
	s.mu.Unlock()

	var again []entry
	for _, e := range batch {
		if e.cancelled() {
			s.drop(e, now)
			continue
		}
		s.runOne(e, now)
		if e.info().Period == 0 || e.cancelled() {
			continue
		}
		n, err := e.next(now)
		if err != nil {
			s.log.Error("reschedule failed", logx.String("task", e.info().Name), logx.Err(err))
			continue
		}
		again = append(again, n)
	}

	if len(again) > 0 {
		s.mu.Lock()
		closed := s.closed
		if !closed {
			for _, n := range again {
				s.seq++
				s.queue.push(n.info().Due, s.seq, n)
			}
		}
		s.mu.Unlock()

		for _, n := range again {
			if closed {
				n.abort()
				continue
			}
			s.rescheduled.Add(1)
			s.publish(eventbus.TaskRescheduled, n.info(), now, 0, nil)
		}
	}

	s.tick.Add(1)
}

func (s *Scheduler) runOne(e entry, now uint64) {
	info := e.info()
	start := time.Now()
	err := e.run(&s.env)
	dur := time.Since(start)

	if errors.Is(err, ErrIllegalState) && e.cancelled() {
		// cancelled between the check and the run
		s.drop(e, now)
		return
	}
	if info.Kind == ExecAsync {
		// outcome arrives through onAsyncDone; only submission failures land here
		if err != nil {
			s.failed.Add(1)
			s.log.Debug("task submit failed", logx.String("task", info.Name), logx.Err(err))
			s.publish(eventbus.TaskFailed, info, now, 0, err)
		}
		return
	}

	s.report(info, now, dur, err)
	s.cfgMu.Lock()
	slow := s.cfg.SlowTask
	s.cfgMu.Unlock()
	if slow > 0 && dur >= slow && s.slowWarn.Allow() {
		s.log.Warn("sync task stalled the tick thread",
			logx.String("task", info.Name),
			logx.Uint64("tick", now),
			logx.Duration("dur", dur),
			logx.Duration("threshold", slow),
		)
	}
}

func (s *Scheduler) onAsyncDone(info TaskInfo, err error, dur time.Duration, cancelled bool) {
	if cancelled {
		s.cancelled.Add(1)
		s.publish(eventbus.TaskCancelled, info, s.CurrentTick(), dur, nil)
		return
	}
	s.report(info, s.CurrentTick(), dur, err)
}

func (s *Scheduler) report(info TaskInfo, tick uint64, dur time.Duration, err error) {
	if err != nil {
		s.failed.Add(1)
		s.log.Debug("task failed", logx.String("task", info.Name), logx.Uint64("tick", tick), logx.Err(err))
		s.publish(eventbus.TaskFailed, info, tick, dur, err)
		return
	}
	s.executed.Add(1)
	s.publish(eventbus.TaskExecuted, info, tick, dur, nil)
}

func (s *Scheduler) drop(e entry, now uint64) {
	e.abort()
	s.cancelled.Add(1)
	s.publish(eventbus.TaskCancelled, e.info(), now, 0, nil)
}

// CancelAll cancels and drops every pending task.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	now := s.CurrentTick()
	for _, q := range pending {
		q.e.cancel()
		s.drop(q.e, now)
	}
	if len(pending) > 0 {
		s.log.Info("pending tasks cancelled", logx.Int("count", len(pending)))
	}
	return len(pending)
}

// Close cancels every pending task, refuses new ones and stops the engine
// if the scheduler created it.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CancelAll()
	if s.ownsEngine {
		return s.eng.Stop(ctx)
	}
	return nil
}

func (s *Scheduler) publish(typ string, info TaskInfo, tick uint64, dur time.Duration, err error) {
	ev := TaskEvent{Name: info.Name, Tick: tick, Kind: info.Kind.String(), Duration: dur}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

// enqueue assigns the due tick and inserts t. A closed scheduler cancels t
// instead.
func enqueue[T any](s *Scheduler, opt Options, exec executor[T]) *ScheduledTask[T] {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	name := opt.Name
	if name == "" {
		name = fmt.Sprintf("task-%d", seq)
	}
	t := newTask(name, s.tick.Load()+opt.Delay, opt.Period, exec)
	if s.closed {
		s.mu.Unlock()
		t.Cancel()
		return t
	}
	s.queue.push(t.executionTick, seq, t)
	s.mu.Unlock()

	s.log.Trace("task scheduled", logx.String("task", name), logx.Uint64("due", t.executionTick), logx.Int("period", int(opt.Period)), logx.String("kind", exec.kind.String()))
	return t
}

// Schedule queues a sync body to run delay ticks from now, and every period
// ticks after that when period > 0.
func Schedule[T any](s *Scheduler, delay uint64, period uint32, fn SyncFunc[T]) *ScheduledTask[T] {
	return ScheduleOpt(s, Options{Delay: delay, Period: period}, fn)
}

// ScheduleOpt panics on a nil body.
func ScheduleOpt[T any](s *Scheduler, opt Options, fn SyncFunc[T]) *ScheduledTask[T] {
	if fn == nil {
		panic("scheduler: nil sync body")
	}
	return enqueue(s, opt, executor[T]{kind: ExecSync, sync: fn})
}

// ScheduleAsync is Schedule for bodies that run on the engine.
func ScheduleAsync[T any](s *Scheduler, delay uint64, period uint32, fn AsyncFunc[T]) *ScheduledTask[T] {
	return ScheduleAsyncOpt(s, Options{Delay: delay, Period: period}, fn)
}

func ScheduleAsyncOpt[T any](s *Scheduler, opt Options, fn AsyncFunc[T]) *ScheduledTask[T] {
	if fn == nil {
		panic("scheduler: nil async body")
	}
	return enqueue(s, opt, executor[T]{kind: ExecAsync, async: fn})
}

// Run schedules a sync body that produces no value.
func (s *Scheduler) Run(delay uint64, period uint32, fn func() error) *ScheduledTask[struct{}] {
	return s.RunOpt(Options{Delay: delay, Period: period}, fn)
}

func (s *Scheduler) RunOpt(opt Options, fn func() error) *ScheduledTask[struct{}] {
	if fn == nil {
		panic("scheduler: nil sync body")
	}
	return ScheduleOpt[struct{}](s, opt, func() (struct{}, error) { return struct{}{}, fn() })
}

// RunAsync schedules an async body that produces no value.
func (s *Scheduler) RunAsync(delay uint64, period uint32, fn func(ctx context.Context) error) *ScheduledTask[struct{}] {
	return s.RunAsyncOpt(Options{Delay: delay, Period: period}, fn)
}

func (s *Scheduler) RunAsyncOpt(opt Options, fn func(ctx context.Context) error) *ScheduledTask[struct{}] {
	if fn == nil {
		panic("scheduler: nil async body")
	}
	return ScheduleAsyncOpt[struct{}](s, opt, func(ctx context.Context) (struct{}, error) { return struct{}{}, fn(ctx) })
}
