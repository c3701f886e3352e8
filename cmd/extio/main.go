// Command extio drives the expansion board: it scans the inputs and analog
// channels, publishes changes to MQTT and applies output and DAC writes
// received over MQTT or HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/sweeney/extio/internal/board"
	"github.com/sweeney/extio/internal/config"
	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/logic"
	"github.com/sweeney/extio/internal/mqtt"
	"github.com/sweeney/extio/internal/recorder"
	"github.com/sweeney/extio/internal/sim"
	"github.com/sweeney/extio/internal/status"
	"github.com/sweeney/extio/internal/web"
)

// commandQueue bounds the writes waiting for the board loop.
const commandQueue = 64

type options struct {
	poll           time.Duration
	debounce       time.Duration
	heartbeat      time.Duration
	sampleInterval time.Duration
	broker         string
	prefix         string
	httpAddr       string
	configPath     string
	backend        string
	printState     bool
	influxURL      string
	influxToken    string
	influxOrg      string
	influxBucket   string
	boardName      string
}

func main() {
	var o options
	flag.DurationVar(&o.poll, "poll", 10*time.Millisecond, "Board loop polling interval")
	flag.DurationVar(&o.debounce, "debounce", 60*time.Millisecond, "Input debounce duration")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.DurationVar(&o.sampleInterval, "sample-interval", time.Second, "Analog snapshot interval (0 to disable)")
	flag.StringVar(&o.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.StringVar(&o.prefix, "topic-prefix", mqtt.DefaultPrefix, "MQTT topic prefix")
	flag.StringVar(&o.httpAddr, "http", ":8080", "HTTP status address (empty to disable)")
	flag.StringVar(&o.configPath, "config", "", "Board YAML file (empty for defaults)")
	flag.StringVar(&o.backend, "backend", "", "Line backend: cdev, rpio, mcp23017 or sim (overrides config)")
	flag.BoolVar(&o.printState, "print-state", false, "Run one scan, print the board state and exit")
	flag.StringVar(&o.influxURL, "influx-url", "", "InfluxDB URL (empty to disable)")
	flag.StringVar(&o.influxToken, "influx-token", "", "InfluxDB token")
	flag.StringVar(&o.influxOrg, "influx-org", "", "InfluxDB organization")
	flag.StringVar(&o.influxBucket, "influx-bucket", "extio", "InfluxDB bucket")
	flag.StringVar(&o.boardName, "board", "extio", "Board name used as client ID and tag")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal("bad log level", "level", *logLevel, "err", err)
	}
	log.SetDefault(log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	}))

	if err := run(o); err != nil {
		log.Fatal("fatal", "err", err)
	}
}

func loadConfig(o options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.backend != "" {
		cfg.Backend = o.backend
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// openLines opens the line backend named in the config.
func openLines(cfg config.Config) (gpio.Lines, error) {
	switch cfg.Backend {
	case config.BackendCdev:
		return gpio.NewRealLines(cfg.Chip, cfg.Lines)
	case config.BackendRpio:
		return gpio.NewRpioLines(cfg.Lines)
	case config.BackendMCP:
		return gpio.NewMcpLines(cfg.MCP.Bus, cfg.MCP.Device, cfg.Lines)
	case config.BackendSim:
		s := sim.New()
		s.Loopback = cfg.Loopback
		return s.Lines, nil
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

func run(o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return errors.Wrap(err, "config")
	}

	lines, err := openLines(cfg)
	if err != nil {
		return errors.Wrapf(err, "open %s lines", cfg.Backend)
	}
	defer lines.Close()

	b := board.New(lines, board.Config{
		Timing:       cfg.Timing,
		ScanInterval: cfg.ScanInterval,
		Logger:       log.Default().WithPrefix("board"),
	})
	if err := b.Start(); err != nil {
		return errors.Wrap(err, "start board")
	}
	defer b.Stop()

	// Print state mode
	if o.printState {
		b.ScanTask(time.Now())
		fmt.Print(formatState(b))
		return nil
	}

	commands := make(chan board.Command, commandQueue)

	// Initialize MQTT
	var publisher mqtt.Publisher = nopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if o.broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   o.broker,
			ClientID: o.boardName,
			Prefix:   o.prefix,
			Commands: commands,
			Logger:   log.Default().WithPrefix("mqtt"),
		})
		if err != nil {
			return errors.Wrap(err, "init mqtt")
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	var rec recorder.Recorder
	if o.influxURL != "" {
		r := recorder.NewInfluxRecorder(recorder.InfluxOptions{
			URL:    o.influxURL,
			Token:  o.influxToken,
			Org:    o.influxOrg,
			Bucket: o.influxBucket,
			Board:  o.boardName,
			Logger: log.Default().WithPrefix("influx"),
		})
		defer r.Close()
		rec = r
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.Backend,
		PollMs:      o.poll.Milliseconds(),
		ScanMs:      cfg.ScanInterval.Milliseconds(),
		DebounceMs:  o.debounce.Milliseconds(),
		HeartbeatMs: o.heartbeat.Milliseconds(),
		SampleMs:    o.sampleInterval.Milliseconds(),
		Broker:      o.broker,
		HTTPPort:    o.httpAddr,
		InfluxURL:   o.influxURL,
	})
	tracker.UpdateBoard(status.ReadBoard(b))

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Error("failed to publish startup event", "err", err)
	}

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, commands, log.Default().WithPrefix("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", o.httpAddr)
	}

	log.Info("started", "backend", cfg.Backend, "poll", o.poll, "scan", cfg.ScanInterval,
		"debounce", o.debounce, "broker", o.broker, "heartbeat", o.heartbeat)

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		board:          b,
		publisher:      publisher,
		mqttStatus:     mqttStatus,
		recorder:       rec,
		tracker:        tracker,
		debounce:       o.debounce,
		heartbeat:      o.heartbeat,
		sampleInterval: o.sampleInterval,
	}
	return l.run(commands, time.Now, ticker.C, sigCh)
}

// loop is the single execution context that owns the board.
type loop struct {
	board      *board.Board
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	recorder   recorder.Recorder
	tracker    *status.Tracker

	debounce       time.Duration
	heartbeat      time.Duration
	sampleInterval time.Duration

	detector    *logic.Detector
	lastSample  time.Time
	sampled     bool
	faultLogged bool
}

func (l *loop) run(commands <-chan board.Command, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	l.detector = logic.NewDetector(l.debounce, now())

	for {
		select {
		case s := <-sig:
			log.Info("shutting down", "signal", s)
			l.shutdown(s, now())
			return nil

		case c := <-commands:
			if !l.board.Apply(c) {
				log.Warn("command not applied", "cmd", c)
				continue
			}
			log.Debug("applied", "cmd", c)
			if l.tracker != nil {
				l.tracker.UpdateBoard(status.ReadBoard(l.board))
			}

		case <-tick:
			l.tick(now())
		}
	}
}

func (l *loop) tick(t time.Time) {
	if !l.board.ScanTask(t) {
		return
	}

	if err := l.board.Fault(); err != nil && !l.faultLogged {
		log.Error("line fault", "err", err)
		l.faultLogged = true
	}

	events := l.detector.Process(logic.Input{Bits: l.board.Inputs(), Time: t})
	for _, event := range events {
		log.Info("input", "pin", event.Pin, "state", event.State)
		if err := l.publisher.Publish(event); err != nil {
			// Don't crash on publish failure
			log.Error("publish error", "err", err)
		}
	}

	if l.sampleInterval > 0 && (!l.sampled || t.Sub(l.lastSample) >= l.sampleInterval) {
		l.sample(t)
	}

	if l.tracker != nil {
		l.tracker.UpdateBoard(status.ReadBoard(l.board))
		l.tracker.UpdateInputs(l.detector.IsBaselined(), l.detector.Counts())
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
	}

	if hb := l.detector.CheckHeartbeat(t, l.heartbeat); hb != nil {
		log.Info("heartbeat", "uptime", hb.Uptime, "on", hb.Counts.On, "off", hb.Counts.Off, "scans", l.board.Scans())
		event := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
		if l.tracker != nil {
			event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
		}
		if err := l.publisher.PublishSystem(event); err != nil {
			log.Error("heartbeat publish error", "err", err)
		}
	}
}

func (l *loop) sample(t time.Time) {
	l.lastSample = t
	l.sampled = true

	s := mqtt.AnalogSample{
		Timestamp: t,
		Channels:  l.board.Samples(),
		Inputs:    l.board.Inputs(),
		Outputs:   l.board.Outputs(),
	}
	if err := l.publisher.PublishAnalog(s); err != nil {
		log.Error("analog publish error", "err", err)
	}
	if l.recorder != nil {
		l.recorder.Record(recorder.Sample{Time: t, Analog: s.Channels, Inputs: s.Inputs, Outputs: s.Outputs})
	}
}

func (l *loop) shutdown(s os.Signal, t time.Time) {
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if l.tracker != nil {
		if l.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "SHUTDOWN", signalName)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Error("failed to publish shutdown event", "err", err)
	}
}

// formatState renders the board caches for -print-state.
func formatState(b *board.Board) string {
	s := fmt.Sprintf("outputs: 0x%06X\ninputs:  0x%04X\n", b.Outputs(), b.Inputs())
	for ch, v := range b.Samples() {
		s += fmt.Sprintf("ain%d:    %d\n", ch, v)
	}
	for ch, v := range b.DACValues() {
		s += fmt.Sprintf("aout%d:   0x%04X\n", ch, v)
	}
	return s
}

// nopPublisher stands in when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(logic.Event) error             { return nil }
func (nopPublisher) PublishAnalog(mqtt.AnalogSample) error { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error  { return nil }
func (nopPublisher) Close() error                          { return nil }
