// Package config loads the board description: which line backend to use,
// how D0..D9 map onto host lines, and the protocol timing.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/extio/internal/board"
	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/softbus"
)

// Line backends.
const (
	BackendCdev = "cdev"
	BackendRpio = "rpio"
	BackendMCP  = "mcp23017"
	BackendSim  = "sim"
)

// Config describes one expansion board.
type Config struct {
	// Backend selects how D0..D9 are driven.
	Backend string `yaml:"backend"`

	// Chip is the gpiochip used by the cdev backend.
	Chip string `yaml:"chip"`

	// Lines maps D0..D9 to host lines: gpiochip offsets for cdev, BCM
	// numbers for rpio, expander pins for mcp23017.
	Lines [gpio.NumPins]int `yaml:"lines"`

	MCP MCP `yaml:"mcp"`

	Timing softbus.Timing `yaml:"timing"`

	ScanInterval time.Duration `yaml:"scan_interval"`

	// Loopback feeds outputs back to inputs on the sim backend.
	Loopback bool `yaml:"loopback"`
}

// MCP locates an MCP23017 expander.
type MCP struct {
	Bus    uint8 `yaml:"bus"`
	Device uint8 `yaml:"device"`
}

// Default returns the reference board wired to a Raspberry Pi header.
func Default() Config {
	return Config{
		Backend:      BackendCdev,
		Chip:         "gpiochip0",
		Lines:        [gpio.NumPins]int{17, 27, 22, 23, 24, 25, 5, 6, 12, 13},
		MCP:          MCP{Bus: 1, Device: 0},
		Timing:       softbus.DefaultTiming(),
		ScanInterval: board.DefaultScanInterval,
	}
}

// Load reads a YAML board file over the defaults. Keys that are absent keep
// their default value; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate checks the config for values no backend could use.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendCdev:
		if c.Chip == "" {
			return errors.New("cdev backend needs a chip")
		}
	case BackendRpio, BackendSim:
	case BackendMCP:
		for i, p := range c.Lines {
			if p > 15 {
				return errors.Errorf("%v: expander pin %d out of range 0..15", gpio.Pin(i), p)
			}
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	if c.Backend != BackendSim {
		seen := make(map[int]gpio.Pin, gpio.NumPins)
		for i, line := range c.Lines {
			pin := gpio.Pin(i)
			if line < 0 {
				return errors.Errorf("%v: negative line %d", pin, line)
			}
			if other, ok := seen[line]; ok {
				return errors.Errorf("%v and %v share line %d", other, pin, line)
			}
			seen[line] = pin
		}
	}

	delays := map[string]softbus.Delay{
		"output_setup": c.Timing.OutputSetup,
		"input_setup":  c.Timing.InputSetup,
		"adc_setup":    c.Timing.ADCSetup,
		"latch_hold":   c.Timing.LatchHold,
		"convst_width": c.Timing.ConvstWidth,
	}
	for name, d := range delays {
		if d < 0 {
			return errors.Errorf("timing %s is negative: %d", name, d)
		}
	}

	if c.ScanInterval <= 0 {
		return errors.Errorf("scan_interval must be positive, got %v", c.ScanInterval)
	}
	return nil
}
