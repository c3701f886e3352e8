//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
)

// McpLines routes board lines through an MCP23017 I2C expander. Every Set and
// Get is an I2C transfer, so the soft buses run far slower than on native
// GPIO; the board chips have no maximum clock period, only minimums.
type McpLines struct {
	device *mcp23017.Device
	pins   [NumPins]uint8

	configured [NumPins]bool

	mu  sync.Mutex
	err error
}

// NewMcpLines opens the expander at the given bus and device number.
// pins holds the expander pin (0..15) for D0..D9.
func NewMcpLines(bus, dev uint8, pins [NumPins]int) (*McpLines, error) {
	m := &McpLines{}
	for i, n := range pins {
		if n < 0 || n > 15 {
			return nil, errors.Errorf("%v: mcp23017 pin %d out of range", Pin(i), n)
		}
		m.pins[i] = uint8(n)
	}

	device, err := mcp23017.Open(bus, dev)
	if err != nil {
		return nil, errors.Wrapf(err, "open mcp23017 (bus %d, dev %d)", bus, dev)
	}
	m.device = device
	return m, nil
}

func (m *McpLines) Configure(pin Pin, dir Direction) error {
	if !pin.Valid() {
		return errors.Errorf("configure %v: no such line", pin)
	}
	p := m.pins[pin]
	if dir == Output {
		if err := m.device.DigitalWrite(p, mcp23017.PinLevel(false)); err != nil {
			return errors.Wrapf(err, "preset %v low", pin)
		}
		if err := m.device.PinMode(p, mcp23017.OUTPUT); err != nil {
			return errors.Wrapf(err, "configure %v as output", pin)
		}
	} else {
		if err := m.device.PinMode(p, mcp23017.INPUT); err != nil {
			return errors.Wrapf(err, "configure %v as input", pin)
		}
	}
	m.configured[pin] = true
	return nil
}

func (m *McpLines) Set(pin Pin, level Level) {
	if !pin.Valid() || !m.configured[pin] {
		return
	}
	if err := m.device.DigitalWrite(m.pins[pin], mcp23017.PinLevel(level == High)); err != nil {
		m.fail(errors.Wrapf(err, "set %v", pin))
	}
}

func (m *McpLines) Get(pin Pin) Level {
	if !pin.Valid() || !m.configured[pin] {
		return Low
	}
	v, err := m.device.DigitalRead(m.pins[pin])
	if err != nil {
		m.fail(errors.Wrapf(err, "get %v", pin))
		return Low
	}
	if bool(v) {
		return High
	}
	return Low
}

func (m *McpLines) fail(err error) {
	m.mu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.mu.Unlock()
}

func (m *McpLines) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close leaves every configured line an input and closes the I2C device.
func (m *McpLines) Close() error {
	var errs []error
	for i, ok := range m.configured {
		if !ok {
			continue
		}
		if err := m.device.PinMode(m.pins[i], mcp23017.INPUT); err != nil {
			errs = append(errs, errors.Wrapf(err, "release %v", Pin(i)))
		}
		m.configured[i] = false
	}
	if err := m.device.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close mcp23017"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
