// Package ticker drives a tick consumer at a fixed rate.
//
// Ticks are never replayed: when a tick runs longer than the period the
// ticker reports how many ticks it skipped and resumes from the current time.
package ticker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"rimetick/internal/eventbus"
	logx "rimetick/pkg/logx"
)

const (
	defaultTPS       = 20
	overrunWarnEvery = 15 * time.Second
)

type Config struct {
	// TPS is ticks per second. 0 means 20.
	TPS int
	// SlowTick is the tick duration that gets logged at debug level. 0 means one period.
	SlowTick time.Duration
	// LockOSThread pins the tick loop to one OS thread. Read when Run starts.
	LockOSThread bool
}

func (c Config) withDefaults() Config {
	if c.TPS <= 0 {
		c.TPS = defaultTPS
	}
	if c.SlowTick <= 0 {
		c.SlowTick = c.period()
	}
	return c
}

func (c Config) period() time.Duration {
	tps := c.TPS
	if tps <= 0 {
		tps = defaultTPS
	}
	return time.Second / time.Duration(tps)
}

// Advancer is what the ticker drives. *scheduler.Scheduler satisfies it.
type Advancer interface {
	AdvanceTick()
	CurrentTick() uint64
}

// Overrun is the payload of eventbus.TickOverrun.
type Overrun struct {
	Tick    uint64
	Behind  time.Duration
	Skipped uint64
}

type Snapshot struct {
	Running  bool          `json:"running"`
	TPS      int           `json:"tps"`
	Period   time.Duration `json:"period"`
	Ticks    uint64        `json:"ticks"`
	Skipped  uint64        `json:"skipped"`
	Overruns uint64        `json:"overruns"`
	LastTick time.Duration `json:"last_tick"`
	MaxTick  time.Duration `json:"max_tick"`
	// LastTickAt is zero before the first tick.
	LastTickAt time.Time `json:"last_tick_at"`
}

type Ticker struct {
	target Advancer
	log    logx.Logger
	bus    eventbus.Bus

	mu  sync.Mutex
	cfg Config

	reset chan struct{}
	warn  *rate.Limiter
	hooks atomic.Pointer[[]func(uint64)]

	running  atomic.Bool
	ticks    atomic.Uint64
	skipped  atomic.Uint64
	overruns atomic.Uint64
	lastTick atomic.Int64
	maxTick  atomic.Int64
	lastAt   atomic.Int64
}

func New(cfg Config, target Advancer, log logx.Logger, bus eventbus.Bus) *Ticker {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Ticker{
		target: target,
		log:    log,
		bus:    bus,
		cfg:    cfg.withDefaults(),
		reset:  make(chan struct{}, 1),
		warn:   rate.NewLimiter(rate.Every(overrunWarnEvery), 1),
	}
}

// Apply changes the rate and slow-tick threshold. A running loop picks the
// new period up before its next tick.
func (t *Ticker) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	t.mu.Lock()
	prev := t.cfg
	t.cfg = cfg
	t.mu.Unlock()
	if prev.LockOSThread != cfg.LockOSThread && t.running.Load() {
		t.log.Info("lock_os_thread change takes effect after restart")
	}
	if prev.TPS != cfg.TPS {
		select {
		case t.reset <- struct{}{}:
		default:
		}
	}
}

func (t *Ticker) config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// OnTick registers fn to run on the tick goroutine after every tick with the
// new tick value. Hooks must be quick.
func (t *Ticker) OnTick(fn func(tick uint64)) {
	if fn == nil {
		return
	}
	for {
		old := t.hooks.Load()
		var next []func(uint64)
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, fn)
		if t.hooks.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Step advances the target once and runs the hooks.
func (t *Ticker) Step() {
	t.step(t.config())
}

func (t *Ticker) step(cfg Config) time.Duration {
	start := time.Now()
	t.target.AdvanceTick()
	tick := t.target.CurrentTick()
	t.ticks.Add(1)

	if hs := t.hooks.Load(); hs != nil {
		for _, fn := range *hs {
			fn(tick)
		}
	}

	took := time.Since(start)
	t.lastTick.Store(int64(took))
	t.lastAt.Store(start.UnixNano())
	for {
		cur := t.maxTick.Load()
		if int64(took) <= cur || t.maxTick.CompareAndSwap(cur, int64(took)) {
			break
		}
	}
	if took > cfg.SlowTick {
		t.log.Debug("slow tick", logx.Uint64("tick", tick), logx.Duration("took", took))
	}
	return took
}

// Run ticks until ctx is done. It returns nil on cancellation.
func (t *Ticker) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		t.log.Warn("ticker already running")
		return nil
	}
	defer t.running.Store(false)

	cfg := t.config()
	if cfg.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	period := cfg.period()
	t.log.Info("ticker started", logx.Int("tps", cfg.TPS), logx.Duration("period", period))
	defer t.log.Info("ticker stopped", logx.Uint64("ticks", t.ticks.Load()))

	next := time.Now().Add(period)
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.reset:
			cfg = t.config()
			period = cfg.period()
			next = time.Now().Add(period)
			resetTimer(timer, period)
			t.log.Info("tick rate changed", logx.Int("tps", cfg.TPS), logx.Duration("period", period))
			continue
		case <-timer.C:
		}

		t.step(cfg)

		next = next.Add(period)
		now := time.Now()
		if behind := now.Sub(next); behind >= 0 {
			if skipped := uint64(behind / period); skipped > 0 {
				t.overrun(behind, skipped)
			}
			next = now
		}
		resetTimer(timer, next.Sub(now))
	}
}

func (t *Ticker) overrun(behind time.Duration, skipped uint64) {
	t.skipped.Add(skipped)
	t.overruns.Add(1)
	tick := t.target.CurrentTick()
	if t.warn.Allow() {
		t.log.Warn("can't keep up; skipping ticks",
			logx.Duration("behind", behind),
			logx.Uint64("skipped", skipped),
			logx.Uint64("tick", tick),
		)
	}
	t.bus.Publish(eventbus.Event{
		Type: eventbus.TickOverrun,
		Time: time.Now(),
		Data: Overrun{Tick: tick, Behind: behind, Skipped: skipped},
	})
}

func resetTimer(tm *time.Timer, d time.Duration) {
	if !tm.Stop() {
		select {
		case <-tm.C:
		default:
		}
	}
	tm.Reset(max(d, 0))
}

func (t *Ticker) Snapshot() Snapshot {
	cfg := t.config()
	var lastAt time.Time
	if ns := t.lastAt.Load(); ns != 0 {
		lastAt = time.Unix(0, ns)
	}
	return Snapshot{
		Running:  t.running.Load(),
		TPS:      cfg.TPS,
		Period:   cfg.period(),
		Ticks:    t.ticks.Load(),
		Skipped:  t.skipped.Load(),
		Overruns: t.overruns.Load(),
		LastTick: time.Duration(t.lastTick.Load()),
		MaxTick:  time.Duration(t.maxTick.Load()),

		LastTickAt: lastAt,
	}
}
