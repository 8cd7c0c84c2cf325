package storage

import (
	"errors"
	"time"
)

var (
	// ErrDisabled is returned by Open when no driver is configured.
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// An empty Driver or "none" disables storage.
type Config struct {
	Driver string
	Path   string
	// MaxRecords bounds retained history. 0 means 10000.
	MaxRecords  int
	BusyTimeout time.Duration // sqlite only
}

func (c Config) maxRecords() int {
	if c.MaxRecords <= 0 {
		return 10000
	}
	return c.MaxRecords
}

// Record is one task outcome. Keep it compact and schema-stable.
type Record struct {
	At         time.Time `json:"at"`
	Tick       uint64    `json:"tick"`
	Task       string    `json:"task"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
