// Package softbus shares one set of board lines between the bit-banged
// protocols that drive the expansion board chips.
//
// The chips reuse each other's clock, data and select lines, so only one
// protocol sequence may be in flight at a time. A sequence runs between
// Acquire and Release and never yields in between.
package softbus

import (
	"sync"
	"sync/atomic"

	"github.com/sweeney/extio/internal/gpio"
)

// Delay is a busy-wait of a fixed number of iterations. It is not calibrated
// to wall-clock time and cannot be cancelled.
type Delay int

// spun keeps the loop in Wait observable so it is not optimised away.
var spun atomic.Uint32

// Wait spins for d iterations.
func (d Delay) Wait() {
	var n uint32
	for i := Delay(0); i < d; i++ {
		n++
	}
	spun.Store(n)
}

// Timing holds the protocol delays. Targets calibrate these without touching
// protocol code.
type Timing struct {
	// OutputSetup is the data setup time before each 74HC595 clock edge.
	OutputSetup Delay `yaml:"output_setup"`

	// InputSetup is the settle time around each 74HC165 clock edge. The
	// 74HC165 chain glitches at the output setup time, so this is longer.
	InputSetup Delay `yaml:"input_setup"`

	// ADCSetup is the settle time around each AD7606 clock edge.
	ADCSetup Delay `yaml:"adc_setup"`

	// LatchHold is the 74HC595 storage clock pulse width.
	LatchHold Delay `yaml:"latch_hold"`

	// ConvstWidth is the AD7606 CONVST low pulse width.
	ConvstWidth Delay `yaml:"convst_width"`
}

// DefaultTiming returns delays known to work on the reference hardware.
func DefaultTiming() Timing {
	return Timing{
		OutputSetup: 3,
		InputSetup:  5,
		ADCSetup:    5,
		LatchHold:   15,
		ConvstWidth: 3,
	}
}

// Bus is the shared line resource.
type Bus struct {
	mu     sync.Mutex
	lines  gpio.Lines
	timing Timing
}

// New creates a Bus over the given lines.
func New(lines gpio.Lines, timing Timing) *Bus {
	return &Bus{lines: lines, timing: timing}
}

// Acquire takes exclusive use of the lines for one protocol sequence.
func (b *Bus) Acquire() {
	b.mu.Lock()
}

// Release ends a protocol sequence.
func (b *Bus) Release() {
	b.mu.Unlock()
}

// Timing returns the configured delays.
func (b *Bus) Timing() Timing {
	return b.timing
}

// Lines returns the underlying lines.
func (b *Bus) Lines() gpio.Lines {
	return b.lines
}

// Set drives a line. Callers hold the bus.
func (b *Bus) Set(pin gpio.Pin, level gpio.Level) {
	b.lines.Set(pin, level)
}

// Get samples a line. Callers hold the bus.
func (b *Bus) Get(pin gpio.Pin) gpio.Level {
	return b.lines.Get(pin)
}
