// Package board drives the expansion board: a 24-line output expander
// (74HC595 x3), a 16-line input expander (74HC165 x2), a dual 16-bit DAC
// (DAC8563) and an 8-channel 16-bit ADC (AD7606), all bit-banged over ten
// shared digital lines.
//
// A Board is not safe for concurrent use. It is driven from a single loop
// that polls ScanTask and applies output commands between scan cycles.
package board

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/softbus"
)

// Line roles while the board is running.
var lineDirections = [gpio.NumPins]gpio.Direction{
	gpio.D0: gpio.Output,
	gpio.D1: gpio.Output,
	gpio.D2: gpio.Output,
	gpio.D3: gpio.Input,
	gpio.D4: gpio.Output,
	gpio.D5: gpio.Output,
	gpio.D6: gpio.Input,
	gpio.D7: gpio.Output,
	gpio.D8: gpio.Input,
	gpio.D9: gpio.Output,
}

// Config holds board settings.
type Config struct {
	Timing       softbus.Timing
	ScanInterval time.Duration
	Logger       *log.Logger
}

// Board owns the lines and every device cache.
type Board struct {
	lines  gpio.Lines
	bus    *softbus.Bus
	sched  *Scheduler
	logger *log.Logger

	out *ShiftOut
	in  *ShiftIn
	dac *DAC
	adc *ADC

	running bool
	scans   uint64
}

// New creates a stopped board over the given lines.
func New(lines gpio.Lines, cfg Config) *Board {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	b := &Board{
		lines:  lines,
		bus:    softbus.New(lines, cfg.Timing),
		sched:  NewScheduler(cfg.ScanInterval),
		logger: logger,
	}
	b.reset()
	return b
}

func (b *Board) reset() {
	b.out = newShiftOut(b.bus)
	b.in = newShiftIn(b.bus)
	b.dac = newDAC(b.bus)
	b.adc = newADC(b.bus)
	b.scans = 0
}

// Start configures the lines, clears the outputs, initialises the DAC and
// enables scanning. It only fails if a line cannot be configured.
func (b *Board) Start() error {
	for i, dir := range lineDirections {
		pin := gpio.Pin(i)
		if err := b.lines.Configure(pin, dir); err != nil {
			return errors.Wrapf(err, "start: configure %v", pin)
		}
	}

	b.bus.Acquire()
	b.bus.Set(adcCONVST, gpio.High)
	b.bus.Set(dacSYNC, gpio.High)
	b.bus.Set(hc165LD, gpio.High)
	b.bus.Set(hc595RCK, gpio.Low)
	b.bus.Release()

	b.reset()
	b.out.SetPort(0)

	b.dac.Init()
	// Re-park with the internal reference enabled.
	b.dac.SetChannel(0, DACMidScale)
	b.dac.SetChannel(1, DACMidScale)

	b.sched.Enable()
	b.running = true
	b.logger.Info("board started", "scan_interval", b.sched.Interval())
	return nil
}

// Stop clears the outputs, releases every line to input and disables
// scanning. Cached inputs and samples read zero afterwards.
func (b *Board) Stop() error {
	b.sched.Disable()
	if b.running {
		// Drop the outputs while the lines are still driven.
		b.out.SetPort(0)
	}
	b.running = false

	var errs []error
	for i := range lineDirections {
		pin := gpio.Pin(i)
		if err := b.lines.Configure(pin, gpio.Input); err != nil {
			errs = append(errs, errors.Wrapf(err, "release %v", pin))
		}
	}

	b.reset()
	b.logger.Info("board stopped")

	if len(errs) > 0 {
		return fmt.Errorf("stop errors: %v", errs)
	}
	return nil
}

// ScanTask runs one scan cycle if the scan interval has elapsed since the
// last one: inputs are scanned, the previous conversion is read out and the
// next conversion is started. It reports whether a cycle ran.
func (b *Board) ScanTask(now time.Time) bool {
	if !b.sched.Due(now) {
		return false
	}
	b.in.Scan()
	b.adc.ReadSamples()
	b.adc.StartConversion()
	b.scans++
	return true
}

// WritePin sets one output line (0..23).
func (b *Board) WritePin(pin int, value int) {
	b.out.SetPin(pin, value)
}

// WritePort sets all 24 output lines.
func (b *Board) WritePort(value uint32) {
	b.out.SetPort(value)
}

// ReadPin returns the cached level of an input line (0..15). Other lines
// read 0.
func (b *Board) ReadPin(pin int) int {
	return b.in.Pin(pin)
}

// SetChannel sets analog output 0 or 1. Other channels are ignored.
func (b *Board) SetChannel(ch int, value uint16) {
	b.dac.SetChannel(ch, value)
}

// ReadChannel returns the cached sample of analog input 0..7. Other channels
// read 0.
func (b *Board) ReadChannel(ch int) int16 {
	return b.adc.Channel(ch)
}

// Outputs returns the latched output word.
func (b *Board) Outputs() uint32 {
	return b.out.State()
}

// Inputs returns the input cache, bit n holding input line n.
func (b *Board) Inputs() uint16 {
	return b.in.Value()
}

// Samples returns the cached analog input samples.
func (b *Board) Samples() [ADCChannels]int16 {
	return b.adc.Samples()
}

// DACValues returns the last code written to each analog output.
func (b *Board) DACValues() [DACChannels]uint16 {
	return b.dac.Values()
}

// LastDACCommand returns the last command word sent to the DAC.
func (b *Board) LastDACCommand() uint32 {
	return b.dac.LastCommand()
}

// ADCBusy reports the ADC BUSY line.
func (b *Board) ADCBusy() bool {
	if !b.running {
		return false
	}
	return b.adc.Busy()
}

// Running reports whether the board has been started.
func (b *Board) Running() bool {
	return b.running
}

// Scans returns the number of scan cycles since Start.
func (b *Board) Scans() uint64 {
	return b.scans
}

// Fault returns the first line transfer error, if any.
func (b *Board) Fault() error {
	return b.lines.Err()
}
