package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Board         BoardJSON  `json:"board"`
	Ready         bool       `json:"ready"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Config        ConfigJSON `json:"config"`
}

// BoardJSON is the JSON representation of the board caches. Words are hex
// strings so individual lines are easy to read off.
type BoardJSON struct {
	Running bool     `json:"running"`
	Outputs string   `json:"outputs"`
	Inputs  string   `json:"inputs"`
	Analog  []int16  `json:"analog"`
	DAC     []uint16 `json:"dac"`
	Scans   uint64   `json:"scans"`
	ADCBusy bool     `json:"adc_busy"`
	Fault   string   `json:"fault,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	On  int `json:"on"`
	Off int `json:"off"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	PollMs      int64  `json:"poll_ms"`
	ScanMs      int64  `json:"scan_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	SampleMs    int64  `json:"sample_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	InfluxURL   string `json:"influx_url,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	b := snap.Board
	return StatusInner{
		Board: BoardJSON{
			Running: b.Running,
			Outputs: fmt.Sprintf("0x%06X", b.Outputs),
			Inputs:  fmt.Sprintf("0x%04X", b.Inputs),
			Analog:  b.Analog[:],
			DAC:     b.DAC[:],
			Scans:   b.Scans,
			ADCBusy: b.ADCBusy,
			Fault:   b.Fault,
		},
		Ready:         snap.Baselined,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{On: snap.Counts.On, Off: snap.Counts.Off},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			PollMs:      snap.Config.PollMs,
			ScanMs:      snap.Config.ScanMs,
			DebounceMs:  snap.Config.DebounceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			SampleMs:    snap.Config.SampleMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			InfluxURL:   snap.Config.InfluxURL,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
