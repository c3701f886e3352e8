package board

import "fmt"

// CommandKind identifies a board write.
type CommandKind string

const (
	CmdWritePin   CommandKind = "write_pin"
	CmdWritePort  CommandKind = "write_port"
	CmdSetChannel CommandKind = "set_channel"
)

// Command is a deferred board write. Surfaces that run outside the board
// loop queue commands; the loop applies them between scan cycles.
type Command struct {
	Kind  CommandKind
	Index int // output line or DAC channel; unused for CmdWritePort
	Value uint32
}

func (c Command) String() string {
	switch c.Kind {
	case CmdWritePort:
		return fmt.Sprintf("%s 0x%06X", c.Kind, c.Value)
	default:
		return fmt.Sprintf("%s %d=%d", c.Kind, c.Index, c.Value)
	}
}

// Apply performs a command. Commands are dropped while the board is stopped
// and unknown kinds are ignored; it reports whether the command was applied.
func (b *Board) Apply(c Command) bool {
	if !b.running {
		return false
	}
	switch c.Kind {
	case CmdWritePin:
		b.WritePin(c.Index, int(c.Value))
	case CmdWritePort:
		b.WritePort(c.Value)
	case CmdSetChannel:
		b.SetChannel(c.Index, uint16(c.Value))
	default:
		return false
	}
	return true
}
