// Package logic detects debounced changes on the board's digital inputs.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Lines is the number of input lines tracked.
const Lines = 16

// State represents the logical level of an input line.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// Event represents a debounced input change to be published.
type Event struct {
	Timestamp time.Time
	Pin       int
	State     State
	// Inputs is the full stable input word after the change.
	Inputs uint16
}

// LineState tracks debounce state for a single input line.
type LineState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input represents one completed input scan.
type Input struct {
	Bits uint16 // bit n = input line n
	Time time.Time
}

// EventCounts tracks the number of events since startup.
type EventCounts struct {
	On  int
	Off int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
