package board

import "time"

// DefaultScanInterval is the input and analog refresh period of the
// reference hardware.
const DefaultScanInterval = 30 * time.Millisecond

// Scheduler gates the scan cycle to at most once per interval. It is polled
// from the host loop and never blocks.
type Scheduler struct {
	interval time.Duration
	last     time.Time
	primed   bool
	enabled  bool
}

// NewScheduler creates a disabled scheduler.
func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{interval: interval}
}

// Enable arms the scheduler. The next Due call fires.
func (s *Scheduler) Enable() {
	s.enabled = true
	s.primed = false
}

// Disable stops the scheduler from firing.
func (s *Scheduler) Disable() {
	s.enabled = false
}

// Enabled reports whether the scheduler is armed.
func (s *Scheduler) Enabled() bool {
	return s.enabled
}

// Interval returns the minimum time between cycles.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Due reports whether a cycle should run now. When it returns true the cycle
// start time is recorded and the next cycle is due one interval later.
func (s *Scheduler) Due(now time.Time) bool {
	if !s.enabled {
		return false
	}
	if s.primed && now.Sub(s.last) < s.interval {
		return false
	}
	s.last = now
	s.primed = true
	return true
}
