package mqtt

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/sweeney/extio/internal/board"
	"github.com/sweeney/extio/internal/logic"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 256

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Prefix   string

	// Commands receives output and DAC commands. Nil disables the command
	// subscriptions.
	Commands chan<- board.Command

	BufferSize int
	Logger     *log.Logger
}

// RealPublisher publishes to an actual MQTT broker and subscribes to the
// command topics.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *log.Logger
	router *commandRouter

	mu           sync.Mutex
	buffer       *ringBuffer
	wasConnected bool
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "extio"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &RealPublisher{
		topics: NewTopics(opts.Prefix),
		logger: logger,
		buffer: newRingBuffer(opts.BufferSize),
	}
	p.buffer.logger = logger
	if opts.Commands != nil {
		p.router = &commandRouter{topics: p.topics, commands: opts.Commands, logger: logger}
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(willPayload()), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "connect to broker")
	}

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	if p.router != nil {
		for _, topic := range []string{p.topics.OutputSet, p.topics.DACSet} {
			token := c.Subscribe(topic, 1, p.onMessage)
			if !token.WaitTimeout(5 * time.Second) {
				p.logger.Error("subscribe timeout", "topic", topic)
				continue
			}
			if err := token.Error(); err != nil {
				p.logger.Error("subscribe failed", "topic", topic, "err", err)
			}
		}
	}

	p.mu.Lock()
	reconnect := p.wasConnected
	p.wasConnected = true
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	if !reconnect {
		p.logger.Info("connected")
		return
	}

	p.logger.Info("reconnected", "buffered", len(pending))
	if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED", Retained: true}); err != nil {
		p.logger.Error("publish reconnect failed", "err", err)
	}
	for _, m := range pending {
		if err := p.publish(m.topic, m.qos, m.retained, false, m.payload); err != nil {
			p.logger.Error("replay failed", "topic", m.topic, "err", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.logger.Warn("connection lost", "err", err)
}

func (p *RealPublisher) onMessage(_ paho.Client, m paho.Message) {
	p.router.route(m.Topic(), m.Payload())
}

// publish sends a message, or buffers it while the connection is down.
// A snapshot replaces any buffered message on the same topic.
func (p *RealPublisher) publish(topic string, qos byte, retained, snapshot bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		msg := bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}
		p.mu.Lock()
		if snapshot {
			p.buffer.replace(msg)
		} else {
			p.buffer.push(msg)
		}
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish %s", topic)
	}
	return nil
}

// Publish sends an input event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return errors.Wrap(err, "format payload")
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(p.topics.Inputs, 0, false, false, payload)
}

// PublishAnalog sends an analog snapshot to the MQTT broker.
func (p *RealPublisher) PublishAnalog(sample AnalogSample) error {
	payload, err := FormatAnalogPayload(sample)
	if err != nil {
		return errors.Wrap(err, "format analog payload")
	}
	return p.publish(p.topics.Analog, 0, false, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return errors.Wrap(err, "format system payload")
	}
	// QoS 1 (at-least-once) - lifecycle events should arrive
	return p.publish(p.topics.System, 1, event.Retained, false, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
