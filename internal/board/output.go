package board

import (
	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/softbus"
)

// 74HC595 chain lines.
const (
	hc595SDI = gpio.D2
	hc595SCK = gpio.D4
	hc595RCK = gpio.D9
)

// OutputLines is the number of lines on the output expander.
const OutputLines = 24

const outputMask = 1<<OutputLines - 1

// ShiftOut drives three daisy-chained 74HC595 shift registers. Every change
// to the state is latched to the outputs before the call returns.
type ShiftOut struct {
	bus   *softbus.Bus
	state uint32
}

func newShiftOut(bus *softbus.Bus) *ShiftOut {
	return &ShiftOut{bus: bus}
}

// SetPin sets one output line (0..23). Any non-zero value drives it high.
// Out-of-range lines are ignored.
func (o *ShiftOut) SetPin(pin int, value int) {
	if pin < 0 || pin >= OutputLines {
		return
	}
	if value != 0 {
		o.state |= 1 << uint(pin)
	} else {
		o.state &^= 1 << uint(pin)
	}
	o.latch()
}

// SetPort replaces all 24 output lines.
func (o *ShiftOut) SetPort(value uint32) {
	o.state = value & outputMask
	o.latch()
}

// State returns the output word last latched.
func (o *ShiftOut) State() uint32 {
	return o.state
}

// latch shifts the state out MSB first and pulses the storage clock.
// The 74HC595 samples SDI on the rising edge of SCK.
func (o *ShiftOut) latch() {
	o.bus.Acquire()
	defer o.bus.Release()

	t := o.bus.Timing()
	word := o.state
	for i := 0; i < OutputLines; i++ {
		o.bus.Set(hc595SDI, gpio.LevelOf(word&(1<<(OutputLines-1))))
		t.OutputSetup.Wait()
		o.bus.Set(hc595SCK, gpio.Low)
		t.OutputSetup.Wait()
		o.bus.Set(hc595SCK, gpio.High)
		word <<= 1
	}

	t.OutputSetup.Wait()
	o.bus.Set(hc595RCK, gpio.High)
	t.LatchHold.Wait()
	o.bus.Set(hc595RCK, gpio.Low)
}
