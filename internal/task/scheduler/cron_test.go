package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	logx "rimetick/pkg/logx"
)

func TestCronFiringRunsOnTickThread(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	c := NewCron(s, CronConfig{}, logx.Nop())

	var ran int
	if err := c.AddSync("sweep", "5m", func() error { ran++; return nil }); err != nil {
		t.Fatalf("AddSync: %v", err)
	}
	d := c.defs[0]

	c.fire(d)
	if ran != 0 {
		t.Fatalf("cron firing must not run the body inline")
	}
	c.fire(d) // previous run still pending
	s.AdvanceTick()
	if ran != 1 {
		t.Fatalf("expected one run, got %d", ran)
	}
	c.fire(d)
	s.AdvanceTick()

	e := c.Entries()[0]
	if ran != 2 || e.Fired != 2 || e.Skipped != 1 {
		t.Fatalf("ran=%d entry=%+v", ran, e)
	}
	if e.Spec != "@every 5m0s" {
		t.Fatalf("unexpected spec %q", e.Spec)
	}
}

func TestCronRegistration(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	c := NewCron(s, CronConfig{Timezone: "UTC", StartupSpread: true}, logx.Nop())

	if err := c.AddSync("bad", "definitely not cron", func() error { return nil }); err == nil {
		t.Fatalf("expected invalid spec error")
	}
	if err := c.AddAsync("poll", "@every 1h", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddAsync: %v", err)
	}
	if err := c.AddDaily("report", "06:30", func() error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if err := c.AddDaily("report", "06:45", func() error { return nil }); err != nil {
		t.Fatalf("AddDaily replace: %v", err)
	}
	if got := len(c.Entries()); got != 2 {
		t.Fatalf("expected 2 entries after replace, got %d", got)
	}

	c.Start()
	for _, e := range c.Entries() {
		if e.Next.IsZero() {
			t.Fatalf("entry %s has no next activation", e.Name)
		}
		if e.Name == "report" && (e.Next.Hour() != 6 || e.Next.Minute() != 45) {
			t.Fatalf("daily entry next = %v", e.Next)
		}
	}
	if !c.Remove("poll") || c.Remove("poll") {
		t.Fatalf("Remove should succeed once")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Stop(ctx)
	if e := c.Entries()[0]; !e.Next.IsZero() {
		t.Fatalf("stopped bridge should not report activations")
	}
}

func TestStartupSpreadDelaysFirstRun(t *testing.T) {
	t.Parallel()
	base := cron.Every(time.Minute)
	now := time.Now()
	s := withStartupSpread(base, time.Minute, now)
	first := s.Next(now)
	if first.Before(now.Add(time.Minute)) || first.After(now.Add(time.Minute+maxStartupSpread)) {
		t.Fatalf("first activation %v outside spread window", first.Sub(now))
	}
	if next := s.Next(first); !next.After(first) {
		t.Fatalf("later activations should follow the base schedule")
	}
}
