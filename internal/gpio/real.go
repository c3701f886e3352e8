//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// RealLines drives board lines through the Linux GPIO character device.
type RealLines struct {
	chip    *gpiocdev.Chip
	offsets [NumPins]int
	lines   [NumPins]*gpiocdev.Line

	mu  sync.Mutex
	err error
}

// NewRealLines opens the named gpiochip. Lines are requested lazily by
// Configure using the given offsets for D0..D9.
func NewRealLines(chipName string, offsets [NumPins]int) (*RealLines, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("extio"))
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", chipName)
	}
	return &RealLines{chip: chip, offsets: offsets}, nil
}

// Configure requests the line on first use and reconfigures it afterwards.
func (r *RealLines) Configure(pin Pin, dir Direction) error {
	if !pin.Valid() {
		return errors.Errorf("configure %v: no such line", pin)
	}
	reqOpt, cfgOpt := cdevOptions(dir)

	if l := r.lines[pin]; l != nil {
		if err := l.Reconfigure(cfgOpt); err != nil {
			return errors.Wrapf(err, "reconfigure %v as %v", pin, dir)
		}
		return nil
	}

	l, err := r.chip.RequestLine(r.offsets[pin], reqOpt)
	if err != nil {
		return errors.Wrapf(err, "request %v (offset %d) as %v", pin, r.offsets[pin], dir)
	}
	r.lines[pin] = l
	return nil
}

func cdevOptions(dir Direction) (gpiocdev.LineReqOption, gpiocdev.LineConfigOption) {
	if dir == Output {
		return gpiocdev.AsOutput(0), gpiocdev.AsOutput(0)
	}
	return gpiocdev.AsInput, gpiocdev.AsInput
}

// Set drives an output line.
func (r *RealLines) Set(pin Pin, level Level) {
	if !pin.Valid() || r.lines[pin] == nil {
		return
	}
	if err := r.lines[pin].SetValue(int(level)); err != nil {
		r.fail(errors.Wrapf(err, "set %v", pin))
	}
}

// Get samples a line. Unrequested lines read low.
func (r *RealLines) Get(pin Pin) Level {
	if !pin.Valid() || r.lines[pin] == nil {
		return Low
	}
	v, err := r.lines[pin].Value()
	if err != nil {
		r.fail(errors.Wrapf(err, "get %v", pin))
		return Low
	}
	return LevelOf(uint32(v))
}

func (r *RealLines) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

// Err returns the first transfer error.
func (r *RealLines) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close releases GPIO resources.
// Reconfigures every requested line as an input before closing so the board
// is left undriven.
func (r *RealLines) Close() error {
	var errs []error

	for i, l := range r.lines {
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, errors.Wrapf(err, "reconfigure %v", Pin(i)))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %v", Pin(i)))
		}
		r.lines[i] = nil
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
