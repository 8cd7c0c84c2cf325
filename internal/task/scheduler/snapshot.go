package scheduler

import (
	"sort"
	"time"

	"rimetick/internal/task/engine"
)

// TaskEvent is the payload of every task.* bus event.
type TaskEvent struct {
	Name     string        `json:"name"`
	Tick     uint64        `json:"tick"`
	Kind     string        `json:"kind"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type Snapshot struct {
	Tick        uint64     `json:"tick"`
	Pending     int        `json:"pending"`
	NextDue     uint64     `json:"next_due"`
	HasNext     bool       `json:"has_next"`
	Executed    uint64     `json:"executed"`
	Failed      uint64     `json:"failed"`
	Cancelled   uint64     `json:"cancelled"`
	Rescheduled uint64     `json:"rescheduled"`
	Tasks       []TaskInfo `json:"tasks"`

	Engine engine.Snapshot `json:"engine"`
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	tasks := make([]TaskInfo, 0, len(s.queue))
	for _, q := range s.queue {
		tasks = append(tasks, q.e.info())
	}
	head, ok := s.queue.peek()
	s.mu.Unlock()

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Due < tasks[j].Due })

	return Snapshot{
		Tick:        s.CurrentTick(),
		Pending:     len(tasks),
		NextDue:     head.due,
		HasNext:     ok,
		Executed:    s.executed.Load(),
		Failed:      s.failed.Load(),
		Cancelled:   s.cancelled.Load(),
		Rescheduled: s.rescheduled.Load(),
		Tasks:       tasks,
		Engine:      s.eng.Snapshot(),
	}
}
