//go:build linux

package gpio

import (
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// RpioLines drives board lines through /dev/gpiomem on a Raspberry Pi.
// Register access cannot fail once the memory is mapped, so Err is always nil.
type RpioLines struct {
	pins       [NumPins]rpio.Pin
	configured [NumPins]bool
}

// NewRpioLines maps GPIO memory. bcm holds the BCM numbers for D0..D9.
func NewRpioLines(bcm [NumPins]int) (*RpioLines, error) {
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "open gpio memory")
	}
	r := &RpioLines{}
	for i, n := range bcm {
		if n < 0 || n > 255 {
			rpio.Close()
			return nil, errors.Errorf("%v: bcm pin %d out of range", Pin(i), n)
		}
		r.pins[i] = rpio.Pin(uint8(n))
	}
	return r, nil
}

func (r *RpioLines) Configure(pin Pin, dir Direction) error {
	if !pin.Valid() {
		return errors.Errorf("configure %v: no such line", pin)
	}
	p := r.pins[pin]
	if dir == Output {
		p.Low()
		p.Output()
	} else {
		p.Input()
		p.PullOff()
	}
	r.configured[pin] = true
	return nil
}

func (r *RpioLines) Set(pin Pin, level Level) {
	if !pin.Valid() || !r.configured[pin] {
		return
	}
	if level == High {
		r.pins[pin].High()
	} else {
		r.pins[pin].Low()
	}
}

func (r *RpioLines) Get(pin Pin) Level {
	if !pin.Valid() || !r.configured[pin] {
		return Low
	}
	if r.pins[pin].Read() == rpio.High {
		return High
	}
	return Low
}

func (r *RpioLines) Err() error {
	return nil
}

// Close leaves every configured line an input and unmaps GPIO memory.
func (r *RpioLines) Close() error {
	for i, ok := range r.configured {
		if ok {
			r.pins[i].Input()
			r.configured[i] = false
		}
	}
	return rpio.Close()
}
