package board

import (
	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/softbus"
)

// DAC8563 lines.
const (
	dacSYNC = gpio.D1
	dacDIN  = gpio.D2
	dacSCLK = gpio.D4
)

// DAC8563 command field (bits 21..19).
const (
	DACWriteUpdate uint32 = 3 // write input register n and update DAC n
	DACPower       uint32 = 4
	DACLDAC        uint32 = 6
	DACReference   uint32 = 7 // internal reference and gain reset
)

// DAC8563 address field (bits 18..16).
const (
	DACAddrA   uint32 = 0
	DACAddrB   uint32 = 1
	DACAddrAll uint32 = 7
)

const (
	dacPowerUpAB     = 0x0003
	dacLDACInactive  = 0x0003
	dacInternalRefX2 = 0x0001

	// DACMidScale is the code that puts a bipolar output near 0V.
	DACMidScale = 0x8000

	// DACChannels is the number of analog outputs.
	DACChannels = 2
)

// DACCommand assembles a 24-bit DAC8563 command word.
func DACCommand(op, addr uint32, data uint16) uint32 {
	return (op&7)<<19 | (addr&7)<<16 | uint32(data)
}

// DAC drives a DAC8563 dual 16-bit DAC. It keeps no cache of the outputs;
// Values only reports what was last sent.
type DAC struct {
	bus    *softbus.Bus
	last   uint32
	values [DACChannels]uint16
}

func newDAC(bus *softbus.Bus) *DAC {
	return &DAC{bus: bus}
}

// Init powers up both channels, makes every write take effect without LDAC,
// parks both outputs at mid-scale and enables the internal reference.
func (d *DAC) Init() {
	d.Write(DACCommand(DACPower, DACAddrA, dacPowerUpAB))
	d.Write(DACCommand(DACLDAC, DACAddrA, dacLDACInactive))
	d.SetChannel(0, DACMidScale)
	d.SetChannel(1, DACMidScale)
	d.Write(DACCommand(DACReference, DACAddrA, dacInternalRefX2))
}

// SetChannel writes and updates channel 0 (A) or 1 (B). Other channels are
// ignored.
func (d *DAC) SetChannel(ch int, value uint16) {
	var addr uint32
	switch ch {
	case 0:
		addr = DACAddrA
	case 1:
		addr = DACAddrB
	default:
		return
	}
	d.Write(DACCommand(DACWriteUpdate, addr, value))
	d.values[ch] = value
}

// Write sends one command word, MSB first. The DAC8563 samples DIN on the
// falling edge of SCLK and tolerates clock rates well above what the host
// can toggle, so no delays are inserted.
func (d *DAC) Write(cmd uint32) {
	d.bus.Acquire()
	defer d.bus.Release()

	d.bus.Set(dacSCLK, gpio.Low)
	d.bus.Set(dacSYNC, gpio.Low)
	d.writeByte(uint8(cmd >> 16))
	d.writeByte(uint8(cmd >> 8))
	d.writeByte(uint8(cmd))
	d.bus.Set(dacSYNC, gpio.High)

	d.last = cmd & 0xFFFFFF
}

func (d *DAC) writeByte(b uint8) {
	for i := 0; i < 8; i++ {
		d.bus.Set(dacDIN, gpio.LevelOf(uint32(b&0x80)))
		d.bus.Set(dacSCLK, gpio.High)
		b <<= 1
		d.bus.Set(dacSCLK, gpio.Low)
	}
}

// LastCommand returns the last command word sent.
func (d *DAC) LastCommand() uint32 {
	return d.last
}

// Values returns the last code written to each channel.
func (d *DAC) Values() [DACChannels]uint16 {
	return d.values
}
