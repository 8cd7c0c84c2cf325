package app

import (
	"fmt"
	"strings"
	"time"

	"rimetick/internal/config"
	"rimetick/internal/observability/debughttp"
	"rimetick/internal/storage"
	"rimetick/internal/task/engine"
	"rimetick/internal/task/scheduler"
	"rimetick/internal/ticker"
	logx "rimetick/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapTickerConfig(cfg *config.Config) (ticker.Config, error) {
	slow, err := config.ParseDurationField("ticker.slow_tick", cfg.Ticker.SlowTick)
	if err != nil {
		return ticker.Config{}, err
	}
	return ticker.Config{
		TPS:          cfg.Ticker.TPS,
		SlowTick:     slow,
		LockOSThread: cfg.Ticker.LockOSThread,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	slow, err := config.ParseDurationField("scheduler.slow_task", cfg.Scheduler.SlowTask)
	if err != nil {
		return scheduler.Config{}, err
	}
	every, err := config.ParseDurationOrDefault("scheduler.slow_warn_every", cfg.Scheduler.SlowWarnEvery, 10*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{SlowTask: slow, SlowWarnEvery: every}, nil
}

func mapEngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		Workers:     cfg.Engine.Workers,
		HistorySize: cfg.Engine.HistorySize,
	}
}

func mapCronConfig(cfg *config.Config) scheduler.CronConfig {
	return scheduler.CronConfig{
		Timezone:      strings.TrimSpace(cfg.Cron.Timezone),
		StartupSpread: cfg.Cron.StartupSpread,
	}
}

func mapDebugConfig(cfg *config.Config) (debughttp.Config, error) {
	dc := cfg.Debug
	read, err := config.ParseDurationField("debug.read_timeout", dc.ReadTimeout)
	if err != nil {
		return debughttp.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("debug.idle_timeout", dc.IdleTimeout, time.Minute)
	if err != nil {
		return debughttp.Config{}, err
	}
	return debughttp.Config{
		Enabled:              dc.Enabled,
		Addr:                 strings.TrimSpace(dc.Addr),
		Token:                strings.TrimSpace(dc.Token),
		AllowInsecure:        dc.AllowInsecure,
		ReadTimeout:          read,
		IdleTimeout:          idle,
		MutexProfileFraction: dc.MutexProfileFraction,
		BlockProfileRate:     dc.BlockProfileRate,
	}, nil
}

// mapStorageConfig reports enabled=false when no driver is configured.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	if driver == "sqlite3" {
		driver = "sqlite"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		MaxRecords:  sc.MaxRecords,
		BusyTimeout: busy,
	}, true, nil
}

// validateSchedules checks the schedule strings the app registers.
func validateSchedules(cfg *config.Config) error {
	if spec := strings.TrimSpace(cfg.Cron.StatusReport); spec != "" {
		if _, err := scheduler.ParseSchedule(spec); err != nil {
			return fmt.Errorf("cron.status_report: %w", err)
		}
	}
	return nil
}
