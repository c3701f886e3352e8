package sim

import (
	"testing"

	"github.com/sweeney/extio/internal/gpio"
)

// started returns a simulated board with every driven line configured as
// an output and parked at its idle level.
func started(t *testing.T) *Board {
	t.Helper()
	b := New()
	for _, pin := range []gpio.Pin{gpio.D0, gpio.D1, gpio.D2, gpio.D4, gpio.D5, gpio.D7, gpio.D9} {
		if err := b.Lines.Configure(pin, gpio.Output); err != nil {
			t.Fatalf("configure %v: %v", pin, err)
		}
	}
	for _, pin := range []gpio.Pin{gpio.D3, gpio.D6, gpio.D8} {
		b.Lines.Configure(pin, gpio.Input)
	}
	b.Lines.Set(gpio.D1, gpio.High)
	b.Lines.Set(gpio.D7, gpio.High)
	return b
}

func clockBit(b *Board, data gpio.Pin, v int, clk gpio.Pin) {
	b.Lines.Set(data, gpio.LevelOf(uint32(v)))
	b.Lines.Set(clk, gpio.High)
	b.Lines.Set(clk, gpio.Low)
}

func TestHC595ShiftAndLatch(t *testing.T) {
	b := started(t)

	for _, bit := range []int{1, 0, 1, 1} {
		clockBit(b, gpio.D2, bit, gpio.D4)
	}
	if b.Out.Shift() != 0xB {
		t.Errorf("expected shift 0xB, got 0x%X", b.Out.Shift())
	}
	if b.Out.Outputs() != 0 {
		t.Errorf("expected outputs unchanged before latch, got 0x%X", b.Out.Outputs())
	}

	b.Lines.Set(gpio.D9, gpio.High)
	b.Lines.Set(gpio.D9, gpio.Low)

	if b.Out.Outputs() != 0xB || b.Out.Latches != 1 {
		t.Errorf("expected outputs 0xB after 1 latch, got 0x%X after %d", b.Out.Outputs(), b.Out.Latches)
	}
}

func TestHC595DropsBitsPastChain(t *testing.T) {
	b := started(t)
	for i := 0; i < 30; i++ {
		clockBit(b, gpio.D2, 1, gpio.D4)
	}
	if b.Out.Shift() != 0xFFFFFF {
		t.Errorf("expected 24-bit register, got 0x%X", b.Out.Shift())
	}
}

func TestHC165LoadAndShift(t *testing.T) {
	b := started(t)
	b.In.Lines = 0x0180 // line 7 and line 8

	b.Lines.Set(gpio.D7, gpio.Low)
	b.Lines.Set(gpio.D7, gpio.High)

	var got []gpio.Level
	for i := 0; i < 16; i++ {
		got = append(got, b.Lines.Get(gpio.D8))
		b.Lines.Set(gpio.D5, gpio.Low)
		b.Lines.Set(gpio.D5, gpio.High)
	}

	// Line 7 is first out of the chain, line 8 is the last bit of the
	// second byte.
	for i, lvl := range got {
		want := gpio.Low
		if i == 0 || i == 15 {
			want = gpio.High
		}
		if lvl != want {
			t.Errorf("bit %d: expected %d, got %d", i, want, lvl)
		}
	}
	if b.In.Loads != 1 || b.In.Shifts != 16 {
		t.Errorf("expected 1 load and 16 shifts, got %d and %d", b.In.Loads, b.In.Shifts)
	}
}

func TestDACFrame(t *testing.T) {
	b := started(t)

	send := func(cmd uint32, bits int) {
		b.Lines.Set(gpio.D1, gpio.Low)
		for i := bits - 1; i >= 0; i-- {
			clockBit(b, gpio.D2, int(cmd>>i)&1, gpio.D4)
		}
		b.Lines.Set(gpio.D1, gpio.High)
	}

	send(0x181234, 24)
	send(0x19ABCD, 24)
	send(0x380001, 24)

	if b.DAC.Outputs != [2]uint16{0x1234, 0xABCD} {
		t.Errorf("unexpected outputs %#v", b.DAC.Outputs)
	}
	if !b.DAC.InternalRef {
		t.Error("expected internal reference enabled")
	}
	if b.DAC.Last() != 0x380001 {
		t.Errorf("expected last 0x380001, got 0x%06X", b.DAC.Last())
	}

	send(0x1F5555, 24) // write all
	if b.DAC.Outputs != [2]uint16{0x5555, 0x5555} {
		t.Errorf("expected both channels 0x5555, got %#v", b.DAC.Outputs)
	}

	send(0x18FFFF, 23)
	if b.DAC.Malformed != 1 {
		t.Errorf("expected 1 malformed frame, got %d", b.DAC.Malformed)
	}
	if len(b.DAC.Commands) != 4 {
		t.Errorf("expected 4 commands, got %d", len(b.DAC.Commands))
	}
}

func TestDACIgnoresClockWithoutSync(t *testing.T) {
	b := started(t)
	for i := 0; i < 24; i++ {
		clockBit(b, gpio.D2, 1, gpio.D4)
	}
	if len(b.DAC.Commands) != 0 || b.DAC.Malformed != 0 {
		t.Errorf("expected no DAC activity, got %d commands %d malformed", len(b.DAC.Commands), b.DAC.Malformed)
	}
}

func TestAD7606ConvertAndRead(t *testing.T) {
	b := started(t)
	b.ADC.Analog[0] = -2 // 0xFFFE

	b.Lines.Set(gpio.D0, gpio.Low)
	b.Lines.Set(gpio.D0, gpio.High)
	if b.ADC.Conversions != 1 {
		t.Fatalf("expected 1 conversion, got %d", b.ADC.Conversions)
	}

	b.ADC.Analog[0] = 99 // not converted yet
	b.Lines.Set(gpio.D5, gpio.High)
	b.Lines.Set(gpio.D7, gpio.Low)

	var word uint16
	for i := 0; i < 16; i++ {
		b.Lines.Set(gpio.D5, gpio.Low)
		word = word<<1 | uint16(b.Lines.Get(gpio.D3))
		b.Lines.Set(gpio.D5, gpio.High)
	}
	b.Lines.Set(gpio.D7, gpio.High)

	if int16(word) != -2 {
		t.Errorf("expected -2, got %d", int16(word))
	}
	if b.ADC.Result()[0] != -2 {
		t.Errorf("expected result -2, got %d", b.ADC.Result()[0])
	}
}

func TestAD7606DoutLowWhenDeselected(t *testing.T) {
	b := started(t)
	b.ADC.Analog[0] = -1
	b.Lines.Set(gpio.D0, gpio.Low)
	b.Lines.Set(gpio.D0, gpio.High)

	if b.Lines.Get(gpio.D3) != gpio.Low {
		t.Error("expected DOUT low while CS high")
	}
}

func TestLoopback(t *testing.T) {
	b := started(t)
	b.Loopback = true
	b.Out.out = 0xFF00AA
	b.DAC.Outputs = [2]uint16{0x9000, 0x7000}

	b.Lines.Set(gpio.D7, gpio.Low)

	if b.In.Lines != 0x00AA {
		t.Errorf("expected inputs 0x00AA, got 0x%04X", b.In.Lines)
	}
	if b.ADC.Analog[0] != 0x1000 || b.ADC.Analog[1] != -0x1000 {
		t.Errorf("unexpected analog loopback %v", b.ADC.Analog[:2])
	}
}
