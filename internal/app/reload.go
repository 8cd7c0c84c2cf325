package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"rimetick/internal/config"
	"rimetick/internal/eventbus"
	logx "rimetick/pkg/logx"
)

// reloadLoop applies configs published by the config watcher.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case newCfg, ok := <-sub:
			if !ok {
				return nil
			}
			// coalesce bursts; only the newest matters
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes every live-reloadable section to its component.
// Storage changes need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.notify.Reloading()
	defer a.notify.Ready()

	changed := func(name string) bool { return slices.Contains(sections, name) }

	if changed("logging") {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}
	if changed("ticker") {
		tc, err := mapTickerConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid ticker config; keeping previous", logx.Err(err))
		} else {
			a.ticker.Apply(tc)
		}
	}
	if changed("scheduler") {
		sc, err := mapSchedulerConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			a.sched.Apply(sc)
		}
	}
	if changed("engine") {
		a.engine.Apply(mapEngineConfig(newCfg))
	}
	if changed("cron") {
		a.cron.Apply(mapCronConfig(newCfg))
	}
	if changed("ticker") || changed("cron") {
		if err := a.status.install(newCfg); err != nil {
			a.log.Warn("status report not updated", logx.Err(err))
		}
	}
	if changed("debug") {
		dc, err := mapDebugConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid debug config; keeping previous", logx.Err(err))
		} else {
			a.debug.Reconfigure(dc)
		}
	}
	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.bus.Publish(eventbus.Event{
		Type: eventbus.ConfigReloaded,
		Time: time.Now(),
		Data: sections,
	})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
