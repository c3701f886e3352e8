package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/extio/internal/gpio"
	"github.com/sweeney/extio/internal/softbus"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ScanInterval != 30*time.Millisecond {
		t.Errorf("expected 30ms scan interval, got %v", cfg.ScanInterval)
	}
	if cfg.Timing != softbus.DefaultTiming() {
		t.Errorf("expected default timing, got %+v", cfg.Timing)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
backend: rpio
lines: [2, 3, 4, 14, 15, 18, 7, 8, 9, 10]
timing:
  input_setup: 12
scan_interval: 50ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Default()
	want.Backend = BackendRpio
	want.Lines = [gpio.NumPins]int{2, 3, 4, 14, 15, 18, 7, 8, 9, 10}
	want.Timing.InputSetup = 12
	want.ScanInterval = 50 * time.Millisecond

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}
}

func TestLoadMCP(t *testing.T) {
	cfg, err := Load(writeFile(t, `
backend: mcp23017
lines: [0, 1, 2, 3, 4, 5, 6, 7, 8, 9]
mcp:
  bus: 1
  device: 2
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MCP != (MCP{Bus: 1, Device: 2}) {
		t.Errorf("unexpected mcp %+v", cfg.MCP)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "speed: fast\n", "parse"},
		{"short line map", "lines: [1, 2, 3]\n", "parse"},
		{"unknown backend", "backend: spidev\n", "unknown backend"},
		{"duplicate line", "lines: [1, 1, 2, 3, 4, 5, 6, 7, 8, 9]\n", "share line"},
		{"negative line", "lines: [-1, 1, 2, 3, 4, 5, 6, 7, 8, 9]\n", "negative line"},
		{"negative delay", "timing:\n  latch_hold: -1\n", "latch_hold"},
		{"zero interval", "scan_interval: 0s\n", "scan_interval"},
		{"expander range", "backend: mcp23017\nlines: [0, 1, 2, 3, 4, 5, 6, 7, 8, 16]\n", "out of range"},
		{"empty chip", "chip: \"\"\n", "chip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSimIgnoresLineMap(t *testing.T) {
	cfg := Default()
	cfg.Backend = BackendSim
	cfg.Lines = [gpio.NumPins]int{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
