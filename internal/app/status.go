package app

import (
	"strings"
	"sync"

	"rimetick/internal/config"
	"rimetick/internal/task/scheduler"
	logx "rimetick/pkg/logx"
)

const (
	statusReportName = "status.report"
	heartbeatName    = "status.heartbeat"
	// heartbeat period in seconds of tick time
	heartbeatSeconds = 10
)

// statusReporter keeps two built-in tasks: a cyclic tick task that refreshes
// the systemd status line, and an optional wall-clock status log line.
type statusReporter struct {
	app *App
	log logx.Logger

	mu        sync.Mutex
	spec      string
	tps       int
	heartbeat *scheduler.ScheduledTask[struct{}]
}

func (r *statusReporter) install(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tps := r.app.ticker.Snapshot().TPS; tps != r.tps || r.heartbeat == nil {
		if r.heartbeat != nil {
			r.heartbeat.Cancel()
		}
		period := uint32(tps * heartbeatSeconds)
		r.heartbeat = r.app.sched.RunOpt(scheduler.Options{
			Name:   heartbeatName,
			Delay:  uint64(tps),
			Period: period,
		}, r.beat)
		r.tps = tps
	}

	spec := strings.TrimSpace(cfg.Cron.StatusReport)
	if spec == r.spec {
		return nil
	}
	r.app.cron.Remove(statusReportName)
	r.spec = ""
	if spec == "" {
		return nil
	}
	if err := r.app.cron.AddSync(statusReportName, spec, r.report); err != nil {
		return err
	}
	r.spec = spec
	return nil
}

func (r *statusReporter) beat() error {
	s := r.app.sched
	r.app.notify.Status("tick %d, %d pending", s.CurrentTick(), s.Pending())
	return nil
}

func (r *statusReporter) report() error {
	snap := r.app.sched.Snapshot()
	ts := r.app.ticker.Snapshot()
	r.log.Info("status",
		logx.Uint64("tick", snap.Tick),
		logx.Int("pending", snap.Pending),
		logx.Uint64("executed", snap.Executed),
		logx.Uint64("failed", snap.Failed),
		logx.Uint64("cancelled", snap.Cancelled),
		logx.Int("backlog", snap.Engine.Backlog),
		logx.Uint64("skipped_ticks", ts.Skipped),
		logx.Duration("max_tick", ts.MaxTick),
		logx.Uint64("bus_dropped", r.app.bus.Dropped()),
	)
	return nil
}
