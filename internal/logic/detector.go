package logic

import "time"

// Detector tracks the input lines and detects debounced transitions.
type Detector struct {
	debounceDuration time.Duration
	lines            [Lines]LineState
	baselined        bool
	startTime        time.Time
	eventCounts      EventCounts
	lastHeartbeat    time.Time
}

// NewDetector creates a new transition detector with the given debounce duration.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(debounceDuration time.Duration, startTime time.Time) *Detector {
	return &Detector{
		debounceDuration: debounceDuration,
		startTime:        startTime,
		lastHeartbeat:    startTime,
	}
}

// Process takes a new input scan and returns any events that should be emitted.
// Events are only returned after baseline is established and on state
// transitions, ordered by pin.
func (d *Detector) Process(input Input) []Event {
	var changed []int
	for pin := range d.lines {
		state := bitToState(input.Bits, pin)
		if d.processLine(&d.lines[pin], state, input.Time) {
			changed = append(changed, pin)
		}
	}

	// Check if we've established baseline
	if !d.baselined {
		for i := range d.lines {
			if !d.lines[i].Baselined {
				return nil // No events until every line is baselined
			}
		}
		d.baselined = true
		return nil
	}

	if len(changed) == 0 {
		return nil
	}

	stable := d.Stable()
	events := make([]Event, 0, len(changed))
	for _, pin := range changed {
		e := Event{
			Timestamp: input.Time,
			Pin:       pin,
			State:     d.lines[pin].Stable,
			Inputs:    stable,
		}
		if e.State == StateOn {
			d.eventCounts.On++
		} else {
			d.eventCounts.Off++
		}
		events = append(events, e)
	}
	return events
}

// processLine handles debounce logic for a single line.
// Returns true if a transition occurred.
func (d *Detector) processLine(ls *LineState, newState State, now time.Time) bool {
	// First time seeing this line
	if !ls.Baselined {
		if ls.Pending == "" || ls.Pending != newState {
			// Start observing, or restart if the line moved
			ls.Pending = newState
			ls.PendingSince = now
			return false
		}

		if now.Sub(ls.PendingSince) >= d.debounceDuration {
			ls.Stable = newState
			ls.Baselined = true
			ls.Pending = ""
		}
		return false
	}

	// Already baselined - detect transitions
	if newState == ls.Stable {
		// Bounced back, clear any pending
		ls.Pending = ""
		return false
	}

	if ls.Pending != newState {
		ls.Pending = newState
		ls.PendingSince = now
		return false
	}

	if now.Sub(ls.PendingSince) >= d.debounceDuration {
		ls.Stable = newState
		ls.Pending = ""
		return true
	}
	return false
}

func bitToState(bits uint16, pin int) State {
	if bits>>pin&1 == 1 {
		return StateOn
	}
	return StateOff
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the stable state of one line. Lines that are not
// baselined, or out of range, report "".
func (d *Detector) CurrentState(pin int) State {
	if pin < 0 || pin >= Lines {
		return ""
	}
	return d.lines[pin].Stable
}

// Stable returns the stable input word, bit n = line n.
func (d *Detector) Stable() uint16 {
	var w uint16
	for pin, ls := range d.lines {
		if ls.Stable == StateOn {
			w |= 1 << pin
		}
	}
	return w
}

// Counts returns the events emitted since startup.
func (d *Detector) Counts() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
