package config

import (
	"strings"

	logx "rimetick/pkg/logx"
)

// SummarizeConfigChange returns the names of the sections that differ and
// structured attrs describing their new values, for logging. Secrets are
// reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Ticker != newCfg.Ticker {
		changed = append(changed, "ticker")
		attrs = append(attrs,
			logx.Int("ticker.tps", newCfg.Ticker.TPS),
			logx.String("ticker.slow_tick", strings.TrimSpace(newCfg.Ticker.SlowTick)),
			logx.Bool("ticker.lock_os_thread", newCfg.Ticker.LockOSThread),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.slow_task", strings.TrimSpace(newCfg.Scheduler.SlowTask)),
			logx.String("scheduler.slow_warn_every", strings.TrimSpace(newCfg.Scheduler.SlowWarnEvery)),
		)
	}

	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.workers", newCfg.Engine.Workers),
			logx.Int("engine.history_size", newCfg.Engine.HistorySize),
		)
	}

	oldStore, newStore := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldStore != newStore {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newStore.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newStore.Path) != ""),
		)
	}

	if oldCfg.Cron != newCfg.Cron {
		changed = append(changed, "cron")
		attrs = append(attrs,
			logx.String("cron.timezone", strings.TrimSpace(newCfg.Cron.Timezone)),
			logx.String("cron.status_report", strings.TrimSpace(newCfg.Cron.StatusReport)),
		)
	}

	// never log the token itself
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}

	return changed, attrs
}

func derefStorage(sc *StorageConfig) StorageConfig {
	if sc == nil {
		return StorageConfig{}
	}
	return *sc
}
