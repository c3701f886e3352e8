//go:build !linux

package gpio

import "github.com/pkg/errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealLines is not available on non-Linux platforms.
type RealLines struct{ unsupported }

// NewRealLines returns an error on non-Linux platforms.
func NewRealLines(chipName string, offsets [NumPins]int) (*RealLines, error) {
	return nil, errUnsupported
}

// RpioLines is not available on non-Linux platforms.
type RpioLines struct{ unsupported }

// NewRpioLines returns an error on non-Linux platforms.
func NewRpioLines(bcm [NumPins]int) (*RpioLines, error) {
	return nil, errUnsupported
}

// McpLines is not available on non-Linux platforms.
type McpLines struct{ unsupported }

// NewMcpLines returns an error on non-Linux platforms.
func NewMcpLines(bus, dev uint8, pins [NumPins]int) (*McpLines, error) {
	return nil, errUnsupported
}

type unsupported struct{}

func (unsupported) Configure(Pin, Direction) error { return errUnsupported }
func (unsupported) Set(Pin, Level)                 {}
func (unsupported) Get(Pin) Level                  { return Low }
func (unsupported) Err() error                     { return errUnsupported }
func (unsupported) Close() error                   { return nil }
