// Package status provides a thread-safe status tracker for the extio daemon.
// It is written by the board loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/extio/internal/board"
	"github.com/sweeney/extio/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	PollMs      int64
	ScanMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	SampleMs    int64
	Broker      string
	HTTPPort    string
	InfluxURL   string
}

// BoardState is a copy of the board caches.
type BoardState struct {
	Running bool
	Outputs uint32
	Inputs  uint16
	Analog  [board.ADCChannels]int16
	DAC     [board.DACChannels]uint16
	Scans   uint64
	ADCBusy bool
	Fault   string
}

// ReadBoard copies the board caches. It must be called from the goroutine
// that drives the board.
func ReadBoard(b *board.Board) BoardState {
	s := BoardState{
		Running: b.Running(),
		Outputs: b.Outputs(),
		Inputs:  b.Inputs(),
		Analog:  b.Samples(),
		DAC:     b.DACValues(),
		Scans:   b.Scans(),
		ADCBusy: b.ADCBusy(),
	}
	if err := b.Fault(); err != nil {
		s.Fault = err.Error()
	}
	return s
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Board         BoardState
	Baselined     bool
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateBoard replaces the board state. Called from runLoop after each scan.
func (t *Tracker) UpdateBoard(state BoardState) {
	t.mu.Lock()
	t.snap.Board = state
	t.mu.Unlock()
}

// UpdateInputs sets the detector baseline status and event counts.
func (t *Tracker) UpdateInputs(baselined bool, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Baselined = baselined
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
