package session

import (
	"context"
	"time"

	"github.com/fieldlink/fieldlink-go/internal/logging"
	"github.com/fieldlink/fieldlink-go/internal/timex"
)

// Watchdog enforces the inactivity policy: when the app goes to the
// background a single deferred timer is armed; returning to the foreground
// cancels it; if it fires, onTimeout runs and the session is forced to end.
// This policy sits above token expiry and is independent of it.
type Watchdog struct {
	timeout   time.Duration
	sched     *timex.Scheduler
	onTimeout func()
	log       logging.Logger
}

func NewWatchdog(clock timex.Clock, timeout time.Duration, onTimeout func(), log logging.Logger) *Watchdog {
	return &Watchdog{
		timeout:   timeout,
		sched:     timex.NewScheduler(clock),
		onTimeout: onTimeout,
		log:       log,
	}
}

// EnterBackground arms the inactivity timer, replacing any previous one.
func (w *Watchdog) EnterBackground() {
	w.log.Debug(context.Background(), "app backgrounded, arming session timeout", "timeout", w.timeout)
	w.sched.Schedule(w.timeout, func() {
		w.log.Info(context.Background(), "session inactivity timeout fired")
		w.onTimeout()
	})
}

// EnterForeground cancels the pending inactivity timer, if any.
func (w *Watchdog) EnterForeground() {
	w.sched.Cancel()
}
