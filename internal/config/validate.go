package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DefaultTPS = 20

// Validate checks bounds, durations and names without touching the filesystem.
// Schedule strings are checked by the caller, which owns the grammar.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Ticker.TPS < 0 || cfg.Ticker.TPS > 1000 {
		check(fmt.Errorf("ticker.tps must be within 0..1000, got %d", cfg.Ticker.TPS))
	}
	_, err := ParseDurationField("ticker.slow_tick", cfg.Ticker.SlowTick)
	check(err)
	_, err = ParseDurationField("scheduler.slow_task", cfg.Scheduler.SlowTask)
	check(err)
	_, err = ParseDurationField("scheduler.slow_warn_every", cfg.Scheduler.SlowWarnEvery)
	check(err)

	if cfg.Engine.Workers < 0 {
		check(errors.New("engine.workers must be >= 0"))
	}
	if cfg.Engine.HistorySize < 0 {
		check(errors.New("engine.history_size must be >= 0"))
	}

	if tz := strings.TrimSpace(cfg.Cron.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			check(fmt.Errorf("cron.timezone: invalid %q: %w", tz, err))
		}
	}

	if sc := cfg.Storage; sc != nil {
		switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(sc.Path) == "" {
				check(errors.New("storage.path is required when storage.driver=sqlite"))
			}
		default:
			check(fmt.Errorf("unknown storage.driver: %s", sc.Driver))
		}
		if sc.MaxRecords < 0 {
			check(errors.New("storage.max_records must be >= 0"))
		}
		_, err = ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		check(err)
	}

	_, err = ParseDurationField("debug.read_timeout", cfg.Debug.ReadTimeout)
	check(err)
	_, err = ParseDurationField("debug.idle_timeout", cfg.Debug.IdleTimeout)
	check(err)
	if cfg.Debug.MutexProfileFraction < 0 || cfg.Debug.BlockProfileRate < 0 {
		check(errors.New("debug profile rates must be >= 0"))
	}

	return errors.Join(errs...)
}

// TickPeriod is the duration of one tick for the configured rate.
func (c TickerConfig) TickPeriod() time.Duration {
	tps := c.TPS
	if tps <= 0 {
		tps = DefaultTPS
	}
	return time.Second / time.Duration(tps)
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
