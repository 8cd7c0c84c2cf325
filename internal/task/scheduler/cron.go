package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "rimetick/pkg/logx"
)

// CronConfig controls the wall-clock bridge.
type CronConfig struct {
	// Timezone is an IANA name such as "Europe/Berlin". Empty means local time.
	Timezone string
	// StartupSpread delays the first firing of interval schedules by a random
	// amount up to one interval (capped at 30s) so they do not all fire together.
	StartupSpread bool
}

const maxStartupSpread = 30 * time.Second

// CronEntry describes a registered wall-clock schedule.
type CronEntry struct {
	Name    string    `json:"name"`
	Spec    string    `json:"spec"`
	Kind    ExecKind  `json:"kind"`
	Next    time.Time `json:"next"`
	Prev    time.Time `json:"prev"`
	Fired   uint64    `json:"fired"`
	Skipped uint64    `json:"skipped"`
}

type cronDef struct {
	name   string
	parsed ParsedSpec
	kind   ExecKind
	sync   func() error
	async  func(ctx context.Context) error

	entryID cron.EntryID

	mu      sync.Mutex
	last    *ScheduledTask[struct{}]
	fired   atomic.Uint64
	skipped atomic.Uint64
}

// Cron triggers tasks from wall-clock schedules. Each firing hands the body
// to the scheduler with zero delay, so sync bodies still run on the tick
// thread. A firing is skipped while the previous run of the same schedule is
// still pending.
type Cron struct {
	mu     sync.Mutex
	s      *Scheduler
	log    logx.Logger
	cfg    CronConfig
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []*cronDef
}

func NewCron(s *Scheduler, cfg CronConfig, log logx.Logger) *Cron {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cron{
		s:   s,
		log: log,
		cfg: cfg,
		// SecondOptional accepts both 5- and 6-field specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddSync registers fn under name, replacing any schedule with that name.
func (c *Cron) AddSync(name, spec string, fn func() error) error {
	if fn == nil {
		return errors.New("cron: nil body")
	}
	return c.add(&cronDef{name: name, kind: ExecSync, sync: fn}, spec)
}

func (c *Cron) AddAsync(name, spec string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("cron: nil body")
	}
	return c.add(&cronDef{name: name, kind: ExecAsync, async: fn}, spec)
}

// AddDaily runs fn every day at HH:MM in the bridge's timezone.
func (c *Cron) AddDaily(name, atHHMM string, fn func() error) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return c.AddSync(name, fmt.Sprintf("cron:%d %d * * *", m, h), fn)
}

func (c *Cron) add(d *cronDef, spec string) error {
	d.name = strings.TrimSpace(d.name)
	if d.name == "" {
		return errors.New("cron: name required")
	}
	parsed, err := ParseSchedule(spec)
	if err != nil {
		return fmt.Errorf("cron %q: %w", d.name, err)
	}
	if _, err := c.parser.Parse(parsed.CronSpec()); err != nil {
		return fmt.Errorf("cron %q: %w", d.name, err)
	}
	d.parsed = parsed

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(d.name)
	c.defs = append(c.defs, d)
	if c.c != nil {
		if err := c.registerLocked(d); err != nil {
			return err
		}
	}
	c.log.Debug("cron schedule registered", logx.String("name", d.name), logx.String("spec", parsed.CronSpec()), logx.String("kind", d.kind.String()))
	return nil
}

// Remove unregisters the named schedule.
func (c *Cron) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(strings.TrimSpace(name))
}

func (c *Cron) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range c.defs {
		if d.name == name {
			if c.c != nil && d.entryID != 0 {
				c.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		c.defs[n] = d
		n++
	}
	clear(c.defs[n:])
	c.defs = c.defs[:n]
	return removed
}

// Start begins wall-clock triggering. It is a no-op when already running.
func (c *Cron) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLocked()
}

func (c *Cron) startLocked() {
	if c.c != nil {
		return
	}
	c.loc = c.location()
	c.c = cron.New(
		cron.WithParser(c.parser),
		cron.WithLocation(c.loc),
		cron.WithLogger(cronLogger{log: c.log}),
	)
	for _, d := range c.defs {
		if err := c.registerLocked(d); err != nil {
			c.log.Error("cron schedule register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	c.c.Start()
	c.log.Info("cron started", logx.String("tz", c.loc.String()), logx.Int("schedules", len(c.defs)))
}

// Stop halts triggering. Registered schedules survive for the next Start.
func (c *Cron) Stop(ctx context.Context) {
	c.mu.Lock()
	cr := c.c
	c.c = nil
	for _, d := range c.defs {
		d.entryID = 0
	}
	c.mu.Unlock()
	if cr == nil {
		return
	}
	select {
	case <-cr.Stop().Done():
	case <-ctx.Done():
	}
	c.log.Info("cron stopped")
}

// Apply restarts a running bridge when the timezone changes.
func (c *Cron) Apply(cfg CronConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tzChanged := strings.TrimSpace(c.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	c.cfg = cfg
	if c.c == nil || !tzChanged {
		return
	}
	old := c.c
	c.c = nil
	old.Stop()
	c.startLocked()
}

func (c *Cron) Entries() []CronEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CronEntry, 0, len(c.defs))
	for _, d := range c.defs {
		e := CronEntry{Name: d.name, Spec: d.parsed.CronSpec(), Kind: d.kind, Fired: d.fired.Load(), Skipped: d.skipped.Load()}
		if c.c != nil && d.entryID != 0 {
			ce := c.c.Entry(d.entryID)
			e.Next, e.Prev = ce.Next, ce.Prev
		}
		out = append(out, e)
	}
	return out
}

func (c *Cron) location() *time.Location {
	tz := strings.TrimSpace(c.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		c.log.Warn("invalid cron timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (c *Cron) registerLocked(d *cronDef) error {
	sched, err := c.parser.Parse(d.parsed.CronSpec())
	if err != nil {
		return err
	}
	if c.cfg.StartupSpread && d.parsed.Kind == SpecInterval {
		sched = withStartupSpread(sched, d.parsed.Every, time.Now())
	}
	d.entryID = c.c.Schedule(sched, cron.FuncJob(func() { c.fire(d) }))
	return nil
}

func (c *Cron) fire(d *cronDef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != nil && d.last.State() == StatePending {
		d.skipped.Add(1)
		c.log.Debug("cron firing skipped, previous run pending", logx.String("name", d.name))
		return
	}
	opt := Options{Name: "cron:" + d.name}
	if d.kind == ExecAsync {
		d.last = c.s.RunAsyncOpt(opt, d.async)
	} else {
		d.last = c.s.RunOpt(opt, d.sync)
	}
	d.fired.Add(1)
}

// spreadSchedule overrides the first activation of a base schedule.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

func withStartupSpread(base cron.Schedule, every time.Duration, now time.Time) cron.Schedule {
	spread := min(every, maxStartupSpread)
	if spread <= 0 {
		return base
	}
	return &spreadSchedule{base: base, first: now.Add(every + rand.N(spread))}
}

// cronLogger routes robfig/cron's internal logging to logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	fields := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
