// Package sdnotify reports readiness, liveness and shutdown to systemd.
//
// Outside systemd (no NOTIFY_SOCKET) every call is a no-op.
package sdnotify

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "rimetick/pkg/logx"
)

type Notifier struct {
	log      logx.Logger
	notify   func(state string) (bool, error)
	interval time.Duration
	now      func() time.Time

	lastPing atomic.Int64
	sent     atomic.Uint64
	failed   atomic.Bool
}

// New reads the watchdog settings from the environment. Pings are sent at
// half the watchdog timeout.
func New(log logx.Logger) *Notifier {
	n := &Notifier{
		log:    log,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		now:    time.Now,
	}
	wd, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("systemd watchdog settings invalid", logx.Err(err))
	}
	if wd > 0 {
		n.interval = wd / 2
		log.Info("systemd watchdog enabled", logx.Duration("timeout", wd))
	}
	return n
}

// WatchdogInterval is 0 when systemd does not expect pings.
func (n *Notifier) WatchdogInterval() time.Duration { return n.interval }

func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// OnTick pings the watchdog at most once per interval. Install it as a
// ticker hook so a stalled tick loop stops the pings.
func (n *Notifier) OnTick(uint64) {
	if n.interval <= 0 {
		return
	}
	now := n.now().UnixNano()
	last := n.lastPing.Load()
	if now-last < int64(n.interval) {
		return
	}
	if n.lastPing.CompareAndSwap(last, now) {
		n.send(daemon.SdNotifyWatchdog)
	}
}

// Sent counts notifications systemd accepted.
func (n *Notifier) Sent() uint64 { return n.sent.Load() }

func (n *Notifier) send(state string) {
	ok, err := n.notify(state)
	if err != nil {
		// log once; a broken socket stays broken
		if n.failed.CompareAndSwap(false, true) {
			n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		}
		return
	}
	if ok {
		n.sent.Add(1)
	}
}
