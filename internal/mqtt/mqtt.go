// Package mqtt bridges the board to an MQTT broker: input events, analog
// snapshots and system events go out, output and DAC commands come in.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/extio/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "extio/board"

// Topics holds the full topic names under one prefix.
type Topics struct {
	Inputs    string
	Analog    string
	System    string
	OutputSet string
	DACSet    string
}

// NewTopics builds the topic set for a prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Inputs:    prefix + "/inputs",
		Analog:    prefix + "/analog",
		System:    prefix + "/system",
		OutputSet: prefix + "/output/set",
		DACSet:    prefix + "/dac/set",
	}
}

// Publisher publishes board events to MQTT.
type Publisher interface {
	// Publish sends an input event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishAnalog sends an analog snapshot to the broker.
	PublishAnalog(sample AnalogSample) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// AnalogSample is a snapshot of the board caches.
type AnalogSample struct {
	Timestamp time.Time
	Channels  [8]int16
	Inputs    uint16
	Outputs   uint32
}

// Payload represents the MQTT message payload for input events.
type Payload struct {
	Input InputPayload `json:"input"`
}

// InputPayload contains the input event details.
type InputPayload struct {
	Timestamp string `json:"timestamp"`
	Pin       int    `json:"pin"`
	State     string `json:"state"`
	Inputs    uint16 `json:"inputs"`
}

// FormatPayload creates the JSON payload for an input event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Input: InputPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Pin:       event.Pin,
			State:     string(event.State),
			Inputs:    event.Inputs,
		},
	}
	return json.Marshal(payload)
}

// AnalogPayload represents the MQTT message payload for analog snapshots.
type AnalogPayload struct {
	Analog AnalogPayloadInner `json:"analog"`
}

// AnalogPayloadInner contains raw ADC codes and the digital state at the
// time of the snapshot.
type AnalogPayloadInner struct {
	Timestamp string  `json:"timestamp"`
	Channels  []int16 `json:"channels"`
	Inputs    uint16  `json:"inputs"`
	Outputs   uint32  `json:"outputs"`
}

// FormatAnalogPayload creates the JSON payload for an analog snapshot.
func FormatAnalogPayload(sample AnalogSample) ([]byte, error) {
	payload := AnalogPayload{
		Analog: AnalogPayloadInner{
			Timestamp: sample.Timestamp.UTC().Format(time.RFC3339Nano),
			Channels:  sample.Channels[:],
			Inputs:    sample.Inputs,
			Outputs:   sample.Outputs,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// willPayload is the last-will message. The broker publishes it verbatim,
// so it carries no timestamp.
func willPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE"}})
	return data
}
