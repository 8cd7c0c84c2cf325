package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Ticker drives the scheduler. One tick per 1/tps seconds.
	Ticker TickerConfig `json:"ticker"`

	Scheduler SchedulerConfig `json:"scheduler"`

	// Engine runs async task bodies off the tick thread.
	Engine EngineConfig `json:"engine"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Cron    CronConfig     `json:"cron"`
	Debug   DebugConfig    `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TickerConfig controls the host tick source.
//
// Defaults (when fields are omitted/zero):
//   - tps: 20
//   - slow_tick: one tick period
type TickerConfig struct {
	TPS int `json:"tps,omitempty"`
	// SlowTick is a Go duration string. A tick taking longer is reported.
	SlowTick     string `json:"slow_tick,omitempty"`
	LockOSThread bool   `json:"lock_os_thread,omitempty"`
}

type SchedulerConfig struct {
	// SlowTask is a Go duration string (e.g. "50ms"). "0s" disables the warning.
	SlowTask      string `json:"slow_task,omitempty"`
	SlowWarnEvery string `json:"slow_warn_every,omitempty"`
}

// EngineConfig controls the async execution engine.
//
// Defaults:
//   - workers: 4
//   - history_size: 200
type EngineConfig struct {
	Workers     int `json:"workers,omitempty"`
	HistorySize int `json:"history_size,omitempty"`
}

// StorageConfig controls the optional execution history.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./rimetick" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	MaxRecords  int    `json:"max_records,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CronConfig controls wall-clock triggers.
type CronConfig struct {
	Timezone      string `json:"timezone,omitempty"`
	StartupSpread bool   `json:"startup_spread,omitempty"`

	// StatusReport is a schedule string ("@every 1m", "30s", "09:00", cron).
	// Empty disables the periodic status log line.
	StatusReport string `json:"status_report,omitempty"`
}

// DebugConfig controls the optional debug HTTP server (pprof, /debug/state, /healthz).
//
// Prefer a loopback addr. A non-loopback addr needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
