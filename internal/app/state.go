package app

import (
	"fmt"
	"time"

	"rimetick/internal/runtime/supervisor"
	"rimetick/internal/task/scheduler"
	"rimetick/internal/ticker"
)

// State is the /debug/state payload.
type State struct {
	Scheduler  scheduler.Snapshot    `json:"scheduler"`
	Ticker     ticker.Snapshot       `json:"ticker"`
	Cron       []scheduler.CronEntry `json:"cron"`
	Supervisor supervisor.Snapshot   `json:"supervisor"`
	BusDropped uint64                `json:"bus_dropped"`
	Storage    bool                  `json:"storage"`
}

func (a *App) state() any {
	st := State{
		Scheduler:  a.sched.Snapshot(),
		Ticker:     a.ticker.Snapshot(),
		Cron:       a.cron.Entries(),
		BusDropped: a.bus.Dropped(),
		Storage:    a.store != nil,
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Snapshot()
	}
	return st
}

// stallFactor ticks without progress mark the loop unhealthy.
const stallFactor = 20

func (a *App) healthy() error {
	ts := a.ticker.Snapshot()
	if !ts.Running {
		return fmt.Errorf("tick loop not running")
	}
	limit := max(time.Second, stallFactor*ts.Period)
	if ts.LastTickAt.IsZero() {
		return nil
	}
	if since := time.Since(ts.LastTickAt); since > limit {
		return fmt.Errorf("tick loop stalled for %s", since.Round(time.Millisecond))
	}
	return nil
}
