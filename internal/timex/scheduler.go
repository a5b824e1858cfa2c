package timex

import (
	"sync"
	"time"
)

// Scheduler owns at most one pending deferred job. Scheduling a new job
// replaces the previous one; Cancel discards it. This is the explicit
// replacement for fire-and-forget background timers: both the proactive
// token refresh and the session-timeout watchdog run on a Scheduler.
type Scheduler struct {
	mu    sync.Mutex
	clock Clock
	timer Timer
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Schedule arms job to run after d, replacing any pending job.
func (s *Scheduler) Schedule(d time.Duration, job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(d, job)
}

// Cancel discards the pending job, if any.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
