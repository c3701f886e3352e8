package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/extio/internal/board"
	"github.com/sweeney/extio/internal/config"
	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/logic"
	"github.com/sweeney/extio/internal/mqtt"
	"github.com/sweeney/extio/internal/recorder"
	"github.com/sweeney/extio/internal/sim"
	"github.com/sweeney/extio/internal/status"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func init() {
	log.SetDefault(log.New(io.Discard))
}

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from the loop goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// loopbackBoard returns a started board whose inputs follow its outputs.
func loopbackBoard(t *testing.T) (*board.Board, *sim.Board) {
	t.Helper()
	s := sim.New()
	s.Loopback = true
	b := board.New(s.Lines, board.Config{
		ScanInterval: board.DefaultScanInterval,
		Logger:       log.New(io.Discard),
	})
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return b, s
}

// step is one loop input: a tick, or a command when cmd is set.
type step struct {
	cmd *board.Command
}

func ticks(n int) []step {
	return make([]step, n)
}

func command(c board.Command) []step {
	return []step{{cmd: &c}}
}

func seq(parts ...[]step) []step {
	var out []step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// runLoop drives the loop with the given steps followed by a signal and
// returns its error.
func runLoop(t *testing.T, l *loop, clock func() time.Time, steps []step, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	commands := make(chan board.Command)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.run(commands, clock, tick, sig)
	}()

	for _, s := range steps {
		if s.cmd != nil {
			commands <- *s.cmd
		} else {
			tick <- time.Time{}
		}
	}
	sig <- signal

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not return")
		return nil
	}
}

func newLoop(b *board.Board, pub *mqtt.FakePublisher) *loop {
	return &loop{
		board:      b,
		publisher:  pub,
		mqttStatus: pub,
		debounce:   250 * time.Millisecond,
	}
}

func TestLoopNoEventsAtBaseline(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 100*time.Millisecond)

	if err := runLoop(t, newLoop(b, pub), clock, ticks(4), syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 0 {
		t.Errorf("expected 0 input events, got %d", len(pub.Events))
	}
	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	if pub.SystemEvents[0].Event != "SHUTDOWN" || pub.SystemEvents[0].Reason != "SIGTERM" {
		t.Errorf("expected SHUTDOWN/SIGTERM, got %s/%s", pub.SystemEvents[0].Event, pub.SystemEvents[0].Reason)
	}
	if b.Scans() != 4 {
		t.Errorf("expected 4 scans, got %d", b.Scans())
	}
}

func TestLoopCommandProducesInputEvent(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 100*time.Millisecond)

	steps := seq(
		ticks(4),
		command(board.Command{Kind: board.CmdWritePin, Index: 3, Value: 1}),
		ticks(4),
	)
	if err := runLoop(t, newLoop(b, pub), clock, steps, syscall.SIGINT); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if b.Outputs() != 0x000008 {
		t.Errorf("expected outputs 0x000008, got 0x%06X", b.Outputs())
	}
	if len(pub.Events) != 1 {
		t.Fatalf("expected 1 input event, got %d", len(pub.Events))
	}
	e := pub.Events[0]
	if e.Pin != 3 || e.State != logic.StateOn || e.Inputs != 0x0008 {
		t.Errorf("unexpected event %+v", e)
	}
	if got := pub.SystemEvents[len(pub.SystemEvents)-1].Reason; got != "SIGINT" {
		t.Errorf("expected SIGINT reason, got %q", got)
	}
}

func TestLoopPortWriteEventsOrderedByPin(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 100*time.Millisecond)

	steps := seq(
		ticks(4),
		command(board.Command{Kind: board.CmdWritePort, Value: 0x8101}),
		ticks(4),
		command(board.Command{Kind: board.CmdWritePort, Value: 0x8001}),
		ticks(4),
	)
	if err := runLoop(t, newLoop(b, pub), clock, steps, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	want := []struct {
		pin   int
		state logic.State
	}{
		{0, logic.StateOn},
		{8, logic.StateOn},
		{15, logic.StateOn},
		{8, logic.StateOff},
	}
	if len(pub.Events) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(pub.Events), pub.Events)
	}
	for i, w := range want {
		if pub.Events[i].Pin != w.pin || pub.Events[i].State != w.state {
			t.Errorf("event %d: expected pin %d %s, got pin %d %s", i, w.pin, w.state, pub.Events[i].Pin, pub.Events[i].State)
		}
	}
}

func TestLoopBounceRejection(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 100*time.Millisecond)

	steps := seq(
		ticks(4),
		command(board.Command{Kind: board.CmdWritePin, Index: 1, Value: 1}),
		ticks(1),
		command(board.Command{Kind: board.CmdWritePin, Index: 1, Value: 0}),
		ticks(4),
	)
	if err := runLoop(t, newLoop(b, pub), clock, steps, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.Events) != 0 {
		t.Errorf("expected bounce to be rejected, got %d events", len(pub.Events))
	}
}

func TestLoopIgnoresInvalidCommands(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 100*time.Millisecond)

	steps := seq(
		command(board.Command{Kind: board.CmdWritePin, Index: 24, Value: 1}),
		command(board.Command{Kind: board.CmdSetChannel, Index: 2, Value: 1}),
		command(board.Command{Kind: "toggle"}),
		ticks(2),
	)
	if err := runLoop(t, newLoop(b, pub), clock, steps, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if b.Outputs() != 0 {
		t.Errorf("expected outputs untouched, got 0x%06X", b.Outputs())
	}
	if b.DACValues() != [board.DACChannels]uint16{board.DACMidScale, board.DACMidScale} {
		t.Errorf("expected DAC at midscale, got %v", b.DACValues())
	}
}

func TestLoopAnalogSamples(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	rec := &recorder.FakeRecorder{}
	clock := fakeClock(start, 100*time.Millisecond)

	l := newLoop(b, pub)
	l.recorder = rec
	l.sampleInterval = 250 * time.Millisecond

	steps := seq(
		command(board.Command{Kind: board.CmdSetChannel, Index: 0, Value: 0x9000}),
		command(board.Command{Kind: board.CmdWritePort, Value: 0x00F0}),
		ticks(6),
	)
	if err := runLoop(t, l, clock, steps, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	// Ticks at 100ms steps: samples at 100ms and 400ms.
	if len(pub.Analog) != 2 {
		t.Fatalf("expected 2 analog samples, got %d", len(pub.Analog))
	}
	if len(rec.Samples) != 2 {
		t.Fatalf("expected 2 recorded samples, got %d", len(rec.Samples))
	}
	if got := pub.Analog[1].Timestamp.Sub(pub.Analog[0].Timestamp); got != 300*time.Millisecond {
		t.Errorf("expected samples 300ms apart, got %v", got)
	}

	last := pub.Analog[1]
	if last.Outputs != 0x0000F0 || last.Inputs != 0x00F0 {
		t.Errorf("expected outputs 0x0000F0 and inputs 0x00F0, got 0x%06X and 0x%04X", last.Outputs, last.Inputs)
	}
	if last.Channels[0] != 0x1000 {
		t.Errorf("expected ch0 0x1000 from DAC loopback, got %d", last.Channels[0])
	}
	if rec.Samples[1].Analog != last.Channels || !rec.Samples[1].Time.Equal(last.Timestamp) {
		t.Errorf("recorded sample differs from published: %+v vs %+v", rec.Samples[1], last)
	}
}

func TestLoopSamplesDisabled(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	clock := fakeClock(start, 100*time.Millisecond)

	if err := runLoop(t, newLoop(b, pub), clock, ticks(5), syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}
	if len(pub.Analog) != 0 {
		t.Errorf("expected no analog samples, got %d", len(pub.Analog))
	}
}

func TestLoopScanInterval(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	// 10ms polling against the 30ms scan interval.
	clock := fakeClock(start, 10*time.Millisecond)

	if err := runLoop(t, newLoop(b, pub), clock, ticks(10), syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	// Ticks at 10..100ms: scans at 10, 40, 70 and 100.
	if b.Scans() != 4 {
		t.Errorf("expected 4 scans, got %d", b.Scans())
	}
}

func TestLoopHeartbeat(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(start, status.Config{Backend: config.BackendSim})

	// Baseline completes on the 4th tick (20m) and the 15m heartbeat is due.
	clock := fakeClock(start, 5*time.Minute)
	l := newLoop(b, pub)
	l.tracker = tracker
	l.debounce = 10 * time.Minute
	l.heartbeat = 15 * time.Minute

	if err := runLoop(t, l, clock, ticks(4), syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 2 {
		t.Fatalf("expected HEARTBEAT and SHUTDOWN, got %d system events", len(pub.SystemEvents))
	}
	hb := pub.SystemEvents[0]
	if hb.Event != "HEARTBEAT" {
		t.Fatalf("expected HEARTBEAT, got %q", hb.Event)
	}
	if hb.RawPayload == nil {
		t.Error("expected heartbeat to carry a status payload")
	}
	if !strings.Contains(string(pub.SystemPayloads[0]), `"event": "HEARTBEAT"`) &&
		!strings.Contains(string(pub.SystemPayloads[0]), `"event":"HEARTBEAT"`) {
		t.Errorf("unexpected heartbeat payload %s", pub.SystemPayloads[0])
	}
}

func TestLoopUpdatesTracker(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(start, status.Config{Backend: config.BackendSim})
	clock := fakeClock(start, 100*time.Millisecond)

	l := newLoop(b, pub)
	l.tracker = tracker

	steps := seq(
		ticks(4),
		command(board.Command{Kind: board.CmdWritePin, Index: 2, Value: 1}),
		ticks(4),
	)
	if err := runLoop(t, l, clock, steps, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	snap := tracker.Snapshot()
	if !snap.Baselined {
		t.Error("expected tracker baselined")
	}
	if snap.Counts.On != 1 {
		t.Errorf("expected 1 on event counted, got %d", snap.Counts.On)
	}
	if snap.Board.Outputs != 0x000004 || snap.Board.Inputs != 0x0004 {
		t.Errorf("unexpected board state %+v", snap.Board)
	}
	if snap.Board.Scans != 8 {
		t.Errorf("expected 8 scans, got %d", snap.Board.Scans)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTT connected")
	}
}

func TestLoopPublishErrorsDoNotStop(t *testing.T) {
	b, _ := loopbackBoard(t)
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker gone")
	clock := fakeClock(start, 100*time.Millisecond)

	l := newLoop(b, pub)
	l.sampleInterval = 100 * time.Millisecond
	steps := seq(
		ticks(4),
		command(board.Command{Kind: board.CmdWritePin, Index: 0, Value: 1}),
		ticks(4),
	)
	if err := runLoop(t, l, clock, steps, syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if len(pub.SystemEvents) != 1 || pub.SystemEvents[0].Event != "SHUTDOWN" {
		t.Errorf("expected SHUTDOWN after publish errors, got %+v", pub.SystemEvents)
	}
}

func TestLoopLineFault(t *testing.T) {
	b, s := loopbackBoard(t)
	s.Lines.TransferError = errors.New("line released")
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(start, status.Config{})
	clock := fakeClock(start, 100*time.Millisecond)

	l := newLoop(b, pub)
	l.tracker = tracker
	if err := runLoop(t, l, clock, ticks(3), syscall.SIGTERM); err != nil {
		t.Fatalf("loop returned error: %v", err)
	}

	if !l.faultLogged {
		t.Error("expected fault to be logged")
	}
	if got := tracker.Snapshot().Board.Fault; !strings.Contains(got, "line released") {
		t.Errorf("expected fault in status, got %q", got)
	}
}

func TestFormatState(t *testing.T) {
	b, _ := loopbackBoard(t)
	b.WritePort(0xABCDEF)
	b.SetChannel(1, 0x1234)

	got := formatState(b)
	for _, want := range []string{"outputs: 0xABCDEF", "inputs:  0x0000", "ain7:    0", "aout0:   0x8000", "aout1:   0x1234"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
}

func TestOpenLinesSim(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = config.BackendSim

	lines, err := openLines(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := lines.(*gpio.FakeLines); !ok {
		t.Errorf("expected fake lines, got %T", lines)
	}
}

func TestOpenLinesUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "parport"

	if _, err := openLines(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	if err := os.WriteFile(path, []byte("backend: sim\nscan_interval: 50ms\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(options{configPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != config.BackendSim || cfg.ScanInterval != 50*time.Millisecond {
		t.Errorf("unexpected config %+v", cfg)
	}

	cfg, err = loadConfig(options{configPath: path, backend: config.BackendRpio})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != config.BackendRpio {
		t.Errorf("expected backend override, got %q", cfg.Backend)
	}

	if _, err := loadConfig(options{backend: "parport"}); err == nil {
		t.Error("expected error for unknown backend override")
	}
}
