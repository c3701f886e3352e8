// Package gpio provides the digital lines used by the expansion board, with
// hardware abstraction.
// The real implementations use the Linux GPIO character device, /dev/gpiomem
// or an MCP23017 I2C expander. The fake implementation allows testing without
// hardware.
package gpio

import "fmt"

// Pin is a board line index, D0 to D9.
type Pin int

// Board lines (D0..D9). Several lines are shared between chips.
const (
	D0 Pin = iota // AD7606 CONVST
	D1            // DAC8563 SYNC
	D2            // 74HC595 SDI, DAC8563 DIN
	D3            // AD7606 DOUT
	D4            // 74HC595 SCK, DAC8563 SCLK
	D5            // 74HC165 CLK, AD7606 SCLK
	D6            // AD7606 BUSY
	D7            // 74HC165 SH/LD, AD7606 CS
	D8            // 74HC165 QH
	D9            // 74HC595 RCK
)

// NumPins is the number of board lines.
const NumPins = 10

// Level is the logic level of a line.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

// LevelOf converts a bit value to a Level. Any non-zero value is High.
func LevelOf(v uint32) Level {
	if v != 0 {
		return High
	}
	return Low
}

// Direction is the configured direction of a line.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

func (p Pin) String() string {
	return fmt.Sprintf("D%d", int(p))
}

// Valid reports whether p addresses a board line.
func (p Pin) Valid() bool {
	return p >= 0 && p < NumPins
}

// Lines drives and samples the board lines.
type Lines interface {
	// Configure sets the direction of a line. Output lines start low.
	Configure(pin Pin, dir Direction) error

	// Set drives an output line. Writes to lines that are not outputs have
	// no electrical effect.
	Set(pin Pin, level Level)

	// Get samples a line.
	Get(pin Pin) Level

	// Err returns the first transfer error seen by Set or Get, if any.
	// Set and Get never fail so that bus protocols stay open-loop.
	Err() error

	// Close releases line resources, leaving every line an input.
	Close() error
}
