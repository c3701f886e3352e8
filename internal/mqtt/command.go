package mqtt

import (
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/sweeney/extio/internal/board"
)

type outputCommand struct {
	Pin   *int    `json:"pin"`
	Value *uint32 `json:"value"`
	Port  *uint32 `json:"port"`
}

type dacCommand struct {
	Channel *int `json:"channel"`
	Value   *int `json:"value"`
}

// ParseOutputCommand decodes {"pin":n,"value":0|1} or {"port":v}.
// Line and channel ranges are left to the board, which ignores what it
// cannot drive.
func ParseOutputCommand(payload []byte) (board.Command, error) {
	var c outputCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return board.Command{}, errors.Wrap(err, "decode output command")
	}

	switch {
	case c.Port != nil && c.Pin == nil:
		return board.Command{Kind: board.CmdWritePort, Value: *c.Port}, nil
	case c.Pin != nil && c.Port == nil:
		if c.Value == nil {
			return board.Command{}, errors.New("output command: missing value")
		}
		return board.Command{Kind: board.CmdWritePin, Index: *c.Pin, Value: *c.Value}, nil
	case c.Pin != nil:
		return board.Command{}, errors.New("output command: pin and port are exclusive")
	}
	return board.Command{}, errors.New("output command: need pin or port")
}

// ParseDACCommand decodes {"channel":c,"value":v} with v in 0..65535.
func ParseDACCommand(payload []byte) (board.Command, error) {
	var c dacCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return board.Command{}, errors.Wrap(err, "decode dac command")
	}
	if c.Channel == nil || c.Value == nil {
		return board.Command{}, errors.New("dac command: need channel and value")
	}
	if *c.Value < 0 || *c.Value > 0xFFFF {
		return board.Command{}, errors.Errorf("dac command: value %d out of range 0..65535", *c.Value)
	}
	return board.Command{Kind: board.CmdSetChannel, Index: *c.Channel, Value: uint32(*c.Value)}, nil
}

// ErrQueueFull is returned when a command arrives faster than the board
// loop applies them.
var ErrQueueFull = errors.New("command queue full")

// commandRouter turns command messages into board commands.
type commandRouter struct {
	topics   Topics
	commands chan<- board.Command
	logger   *log.Logger
}

// route parses one command message and queues it without blocking. Bad
// commands are logged and dropped.
func (r *commandRouter) route(topic string, payload []byte) error {
	var (
		cmd board.Command
		err error
	)
	switch topic {
	case r.topics.OutputSet:
		cmd, err = ParseOutputCommand(payload)
	case r.topics.DACSet:
		cmd, err = ParseDACCommand(payload)
	default:
		err = errors.Errorf("no command on topic %s", topic)
	}
	if err != nil {
		r.logger.Warn("dropping command", "topic", topic, "err", err)
		return err
	}

	select {
	case r.commands <- cmd:
		r.logger.Debug("command queued", "cmd", cmd)
		return nil
	default:
		r.logger.Warn("dropping command", "cmd", cmd, "err", ErrQueueFull)
		return ErrQueueFull
	}
}
