package gpio

// Write is one effective Set recorded by FakeLines.
type Write struct {
	Pin   Pin
	Level Level
}

// FakeLines is a test double that records line activity and serves scripted
// or simulated input levels.
type FakeLines struct {
	// Dirs holds the configured direction of each line.
	Dirs [NumPins]Direction

	// Configured marks lines that have been configured at least once.
	Configured [NumPins]bool

	// Record enables appending to Writes.
	Record bool

	// Writes contains every Set that drove an output line, in order.
	Writes []Write

	// Ignored counts Set calls on lines that were not outputs.
	Ignored int

	// Inputs contains the levels returned for input lines when Input is nil.
	Inputs [NumPins]Level

	// Input, if set, supplies the level of input lines.
	Input func(pin Pin) Level

	// OnSet, if set, observes every level driven onto an output line,
	// including the low level an output starts at when configured.
	OnSet func(pin Pin, level Level)

	// ConfigureError, if set, will be returned by Configure.
	ConfigureError error

	// TransferError, if set, will be returned by Err.
	TransferError error

	// Closed tracks if Close was called.
	Closed bool

	levels [NumPins]Level
}

// NewFakeLines creates a FakeLines that records writes.
func NewFakeLines() *FakeLines {
	return &FakeLines{Record: true}
}

// Configure sets the direction of a line. Outputs start low.
func (f *FakeLines) Configure(pin Pin, dir Direction) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	if !pin.Valid() {
		return nil
	}
	f.Dirs[pin] = dir
	f.Configured[pin] = true
	if dir == Output {
		f.levels[pin] = Low
		if f.OnSet != nil {
			f.OnSet(pin, Low)
		}
	}
	return nil
}

// Set drives an output line. Writes to other lines are counted in Ignored.
func (f *FakeLines) Set(pin Pin, level Level) {
	if !pin.Valid() || !f.Configured[pin] || f.Dirs[pin] != Output {
		f.Ignored++
		return
	}
	f.levels[pin] = level
	if f.Record {
		f.Writes = append(f.Writes, Write{Pin: pin, Level: level})
	}
	if f.OnSet != nil {
		f.OnSet(pin, level)
	}
}

// Get returns the driven level of an output line, or the scripted level of
// an input line.
func (f *FakeLines) Get(pin Pin) Level {
	if !pin.Valid() {
		return Low
	}
	if f.Configured[pin] && f.Dirs[pin] == Output {
		return f.levels[pin]
	}
	if f.Input != nil {
		return f.Input(pin)
	}
	return f.Inputs[pin]
}

// Level returns the level last driven onto a line.
func (f *FakeLines) Level(pin Pin) Level {
	if !pin.Valid() {
		return Low
	}
	return f.levels[pin]
}

// Err returns TransferError.
func (f *FakeLines) Err() error {
	return f.TransferError
}

// Close marks the lines as closed and leaves them all inputs.
func (f *FakeLines) Close() error {
	for i := range f.Dirs {
		f.Dirs[i] = Input
	}
	f.Closed = true
	return nil
}

// WritesTo returns the recorded levels driven onto one line, in order.
func (f *FakeLines) WritesTo(pin Pin) []Level {
	var out []Level
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w.Level)
		}
	}
	return out
}

// Reset clears recorded writes.
func (f *FakeLines) Reset() {
	f.Writes = nil
	f.Ignored = 0
}
