package board

import (
	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/softbus"
)

// 74HC165 chain lines.
const (
	hc165CLK = gpio.D5
	hc165LD  = gpio.D7
	hc165QH  = gpio.D8
)

const (
	// InputChips is the number of 74HC165 registers in the chain.
	InputChips = 2

	// InputLines is the number of input lines.
	InputLines = InputChips * 8
)

// ShiftIn reads two daisy-chained 74HC165 shift registers into a cache.
type ShiftIn struct {
	bus   *softbus.Bus
	cache [InputChips]uint8
}

func newShiftIn(bus *softbus.Bus) *ShiftIn {
	return &ShiftIn{bus: bus}
}

// Scan captures all input lines and shifts them in, chip by chip in chain
// order, MSB first. The cache is replaced only once every bit is in.
func (in *ShiftIn) Scan() {
	in.bus.Acquire()
	defer in.bus.Release()

	t := in.bus.Timing()

	// Parallel load while SH/LD is low, shift mode when high.
	in.bus.Set(hc165LD, gpio.Low)
	t.InputSetup.Wait()
	in.bus.Set(hc165LD, gpio.High)

	var buf [InputChips]uint8
	for i := range buf {
		for j := 0; j < 8; j++ {
			in.bus.Set(hc165CLK, gpio.Low)
			t.InputSetup.Wait()
			if in.bus.Get(hc165QH) == gpio.High {
				buf[i] |= 0x80 >> j
			}
			t.InputSetup.Wait()
			in.bus.Set(hc165CLK, gpio.High)
		}
	}
	in.cache = buf
}

// Pin returns the cached level of an input line. Lines outside 0..15 read 0.
func (in *ShiftIn) Pin(pin int) int {
	if pin < 0 || pin >= InputLines {
		return 0
	}
	return int(in.cache[pin/8]>>(pin%8)) & 1
}

// Value returns the cache as one word, bit n holding input line n.
func (in *ShiftIn) Value() uint16 {
	return uint16(in.cache[0]) | uint16(in.cache[1])<<8
}

func (in *ShiftIn) clear() {
	in.cache = [InputChips]uint8{}
}
