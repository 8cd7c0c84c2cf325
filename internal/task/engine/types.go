package engine

import (
	"context"
	"time"

	rtsup "rimetick/internal/runtime/supervisor"
)

// Config controls the shared async execution context.
type Config struct {
	// Workers is the number of goroutines draining the backlog.
	Workers int
	// HistorySize bounds the in-memory execution history.
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Job is a unit of background work.
//
// Run receives a context that is cancelled when Ctx is done or the engine
// stops. Done is always called exactly once per accepted job, including jobs
// still queued when the engine stops (with ErrStopped).
type Job struct {
	Name string
	Ctx  context.Context
	Run  func(ctx context.Context) error
	Done func(err error)
}

type queuedJob struct {
	job        Job
	enqueuedAt time.Time
}

type HistoryItem struct {
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// JobEvent is published on the bus when a job fails.
type JobEvent struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error"`
}

type Snapshot struct {
	Running    bool           `json:"running"`
	Workers    int            `json:"workers"`
	Backlog    int            `json:"backlog"`
	InFlight   int            `json:"in_flight"`
	Submitted  uint64         `json:"submitted"`
	Completed  uint64         `json:"completed"`
	Failed     uint64         `json:"failed"`
	Supervisor rtsup.Snapshot `json:"supervisor"`
	History    []HistoryItem  `json:"history"`
}
