package board

import (
	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/softbus"
)

// AD7606 lines.
const (
	adcCONVST = gpio.D0
	adcDOUT   = gpio.D3
	adcSCLK   = gpio.D5
	adcBUSY   = gpio.D6
	adcCS     = gpio.D7
)

// ADCChannels is the number of analog inputs.
const ADCChannels = 8

// ADC reads an AD7606 8-channel 16-bit ADC over its serial interface.
// Samples are raw two's complement codes.
type ADC struct {
	bus     *softbus.Bus
	samples [ADCChannels]int16
}

func newADC(bus *softbus.Bus) *ADC {
	return &ADC{bus: bus}
}

// StartConversion pulses CONVST low. CONVST idles high; the conversion starts
// on the rising edge.
func (a *ADC) StartConversion() {
	a.bus.Acquire()
	defer a.bus.Release()

	a.bus.Set(adcCONVST, gpio.Low)
	a.bus.Timing().ConvstWidth.Wait()
	a.bus.Set(adcCONVST, gpio.High)
}

// ReadSamples reads the results of the previous conversion for all channels.
func (a *ADC) ReadSamples() {
	a.bus.Acquire()
	defer a.bus.Release()

	// SCLK idles high.
	a.bus.Set(adcSCLK, gpio.High)
	a.bus.Set(adcCS, gpio.Low)

	var buf [ADCChannels]int16
	for ch := range buf {
		hi := a.readByte()
		lo := a.readByte()
		buf[ch] = int16(uint16(hi)<<8 | uint16(lo))
	}

	a.bus.Set(adcCS, gpio.High)
	a.samples = buf
}

func (a *ADC) readByte() uint8 {
	t := a.bus.Timing()
	var v uint8
	for i := 0; i < 8; i++ {
		a.bus.Set(adcSCLK, gpio.Low)
		t.ADCSetup.Wait()
		v <<= 1
		if a.bus.Get(adcDOUT) == gpio.High {
			v |= 1
		}
		a.bus.Set(adcSCLK, gpio.High)
		t.ADCSetup.Wait()
	}
	return v
}

// Channel returns the cached sample of one channel. Channels outside 0..7
// read 0.
func (a *ADC) Channel(ch int) int16 {
	if ch < 0 || ch >= ADCChannels {
		return 0
	}
	return a.samples[ch]
}

// Samples returns all cached samples.
func (a *ADC) Samples() [ADCChannels]int16 {
	return a.samples
}

// Busy reports the BUSY line. The scan cycle never waits on it.
func (a *ADC) Busy() bool {
	a.bus.Acquire()
	defer a.bus.Release()
	return a.bus.Get(adcBUSY) == gpio.High
}

func (a *ADC) clear() {
	a.samples = [ADCChannels]int16{}
}
