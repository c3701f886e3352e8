// Package sim models the expansion board chips on top of gpio.FakeLines.
//
// Each chip watches the line edges it would see on the real board and drives
// its serial output line the way the real part does, so bus protocols can be
// checked end to end without hardware. Board.Loopback feeds outputs back to
// inputs for running the daemon without hardware.
package sim

import (
	"github.com/sweeney/extio/internal/gpio"
)

// Board is a simulated expansion board.
type Board struct {
	Lines *gpio.FakeLines

	Out *HC595
	In  *HC165
	DAC *DAC8563
	ADC *AD7606

	// Loopback wires output lines 0..15 to input lines 0..15 and DAC
	// channels A and B to ADC channels 0 and 1.
	Loopback bool

	levels [gpio.NumPins]gpio.Level
}

// New creates a simulated board with fresh lines. Writes are not recorded;
// set Lines.Record to capture them.
func New() *Board {
	return Attach(&gpio.FakeLines{})
}

// Attach connects simulated chips to existing fake lines.
func Attach(lines *gpio.FakeLines) *Board {
	b := &Board{
		Lines: lines,
		Out:   &HC595{},
		In:    &HC165{},
		DAC:   &DAC8563{},
		ADC:   &AD7606{},
	}
	lines.OnSet = b.onSet
	lines.Input = b.input
	return b
}

func (b *Board) level(pin gpio.Pin) gpio.Level {
	return b.levels[pin]
}

func (b *Board) onSet(pin gpio.Pin, level gpio.Level) {
	prev := b.levels[pin]
	b.levels[pin] = level
	if prev == level {
		return
	}
	rising := level == gpio.High

	if b.Loopback && pin == gpio.D7 && !rising {
		b.loop()
	}
	b.Out.edge(b, pin, rising)
	b.In.edge(b, pin, rising)
	b.DAC.edge(b, pin, rising)
	b.ADC.edge(b, pin, rising)
}

func (b *Board) loop() {
	b.In.Lines = uint16(b.Out.Outputs())
	for ch, v := range b.DAC.Outputs {
		b.ADC.Analog[ch] = int16(v - 0x8000)
	}
}

func (b *Board) input(pin gpio.Pin) gpio.Level {
	switch pin {
	case gpio.D3:
		return b.ADC.dout(b)
	case gpio.D6:
		return gpio.Low
	case gpio.D8:
		return b.In.qh(b)
	}
	return gpio.Low
}

// HC595 models three daisy-chained 74HC595 registers (24 outputs).
type HC595 struct {
	shift   uint32
	out     uint32
	Latches int
}

func (c *HC595) edge(b *Board, pin gpio.Pin, rising bool) {
	switch {
	case pin == gpio.D4 && rising:
		c.shift = (c.shift<<1 | uint32(b.level(gpio.D2))) & 0xFFFFFF
	case pin == gpio.D9 && rising:
		c.out = c.shift
		c.Latches++
	}
}

// Outputs returns the storage register, bit n driving output n.
func (c *HC595) Outputs() uint32 {
	return c.out
}

// Shift returns the shift register contents.
func (c *HC595) Shift() uint32 {
	return c.shift
}

// HC165 models two daisy-chained 74HC165 registers (16 inputs). The chip
// nearest the host holds lines 0..7 and shifts out first.
type HC165 struct {
	// Lines holds the parallel inputs, bit n for input line n.
	Lines uint16

	reg    uint16
	Loads  int
	Shifts int
}

func (c *HC165) parallel() uint16 {
	return uint16(uint8(c.Lines))<<8 | c.Lines>>8
}

func (c *HC165) edge(b *Board, pin gpio.Pin, rising bool) {
	switch {
	case pin == gpio.D7 && !rising:
		c.reg = c.parallel()
		c.Loads++
	case pin == gpio.D5 && rising && b.level(gpio.D7) == gpio.High:
		c.reg <<= 1
		c.Shifts++
	}
}

func (c *HC165) qh(b *Board) gpio.Level {
	if b.level(gpio.D7) == gpio.Low {
		// Transparent while loading.
		return gpio.LevelOf(uint32(c.parallel() & 0x8000))
	}
	return gpio.LevelOf(uint32(c.reg & 0x8000))
}

// DAC8563 models a dual 16-bit DAC that samples DIN on SCLK falling edges
// while SYNC is low.
type DAC8563 struct {
	// Commands holds every complete 24-bit frame received.
	Commands []uint32

	// Outputs holds the DAC register of channels A and B.
	Outputs [2]uint16

	// Malformed counts frames that did not carry exactly 24 bits.
	Malformed int

	PoweredUp    bool
	LDACDisabled bool
	InternalRef  bool

	frame uint32
	bits  int
}

func (c *DAC8563) edge(b *Board, pin gpio.Pin, rising bool) {
	switch {
	case pin == gpio.D1 && !rising:
		c.frame, c.bits = 0, 0
	case pin == gpio.D1 && rising:
		if c.bits == 24 {
			c.execute(c.frame & 0xFFFFFF)
		} else if c.bits > 0 {
			c.Malformed++
		}
		c.bits = 0
	case pin == gpio.D4 && !rising && b.level(gpio.D1) == gpio.Low:
		c.frame = c.frame<<1 | uint32(b.level(gpio.D2))
		c.bits++
	}
}

func (c *DAC8563) execute(cmd uint32) {
	c.Commands = append(c.Commands, cmd)
	op := cmd >> 19 & 7
	addr := cmd >> 16 & 7
	data := uint16(cmd)
	switch op {
	case 3:
		switch addr {
		case 0:
			c.Outputs[0] = data
		case 1:
			c.Outputs[1] = data
		case 7:
			c.Outputs = [2]uint16{data, data}
		}
	case 4:
		c.PoweredUp = data&0x30 == 0 && data&3 == 3
	case 6:
		c.LDACDisabled = data&3 == 3
	case 7:
		c.InternalRef = data&1 == 1
	}
}

// Last returns the last command received, or 0.
func (c *DAC8563) Last() uint32 {
	if len(c.Commands) == 0 {
		return 0
	}
	return c.Commands[len(c.Commands)-1]
}

// AD7606 models an 8-channel ADC read over its serial interface. A rising
// CONVST edge converts the Analog inputs; a read returns the last conversion.
type AD7606 struct {
	// Analog holds the codes the next conversion will produce.
	Analog [8]int16

	Conversions int

	result [8]int16
	bit    int
}

func (c *AD7606) edge(b *Board, pin gpio.Pin, rising bool) {
	switch {
	case pin == gpio.D0 && rising:
		c.result = c.Analog
		c.Conversions++
	case pin == gpio.D7 && !rising:
		c.bit = 0
	case pin == gpio.D5 && rising && b.level(gpio.D7) == gpio.Low:
		c.bit++
	}
}

func (c *AD7606) dout(b *Board) gpio.Level {
	if b.level(gpio.D7) == gpio.High || c.bit >= 8*16 {
		return gpio.Low
	}
	word := uint16(c.result[c.bit/16])
	return gpio.LevelOf(uint32(word >> (15 - c.bit%16) & 1))
}

// Result returns the last conversion.
func (c *AD7606) Result() [8]int16 {
	return c.result
}
