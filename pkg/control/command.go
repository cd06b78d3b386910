package control

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-supervisor/pkg/errors"
)

type CommandName string

const (
	CommandStatus     CommandName = "status"
	CommandStartAll   CommandName = "start-all"
	CommandStopAll    CommandName = "stop-all"
	CommandRestartAll CommandName = "restart-all"
	CommandStart      CommandName = "start"
	CommandStop       CommandName = "stop"
	CommandRestart    CommandName = "restart"
	CommandSystemInfo CommandName = "system-info"
	CommandSettings   CommandName = "settings"
	CommandAuto       CommandName = "auto"
	CommandHelp       CommandName = "help"
)

// Command is one operator request, independent of the transport it came from.
type Command struct {
	Name     CommandName
	WorkerID string
	Arg      string
	Operator string
}

func (c Command) needsWorker() bool {
	switch c.Name {
	case CommandStart, CommandStop, CommandRestart:
		return true
	}
	return false
}

// String renders the command in the same form ParseCommand accepts.
func (c Command) String() string {
	switch {
	case c.needsWorker():
		return fmt.Sprintf("%s %s", c.Name, c.WorkerID)
	case c.Name == CommandAuto && c.Arg != "":
		return fmt.Sprintf("%s %s", c.Name, c.Arg)
	}
	return string(c.Name)
}

// ParseCommand reads "<command> [argument]". An empty line means status.
func ParseCommand(text string) (Command, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(fields) == 0 {
		return Command{Name: CommandStatus}, nil
	}
	if len(fields) > 2 {
		return Command{}, errors.NewValidationError("too many arguments: "+text, nil)
	}

	cmd := Command{Name: CommandName(strings.TrimPrefix(fields[0], "/"))}
	if cmd.Name == "config" {
		cmd.Name = CommandSettings
	}
	switch cmd.Name {
	case CommandStatus, CommandStartAll, CommandStopAll, CommandRestartAll, CommandSystemInfo, CommandSettings, CommandHelp:
		if len(fields) > 1 {
			return Command{}, errors.NewValidationError(fmt.Sprintf("%s takes no argument", cmd.Name), nil)
		}
	case CommandStart, CommandStop, CommandRestart:
		if len(fields) < 2 {
			return Command{}, errors.NewValidationError(fmt.Sprintf("%s needs a worker id", cmd.Name), nil)
		}
		cmd.WorkerID = fields[1]
	case CommandAuto:
		if len(fields) > 1 {
			if fields[1] != "on" && fields[1] != "off" {
				return Command{}, errors.NewValidationError("auto takes on or off", nil)
			}
			cmd.Arg = fields[1]
		}
	default:
		return Command{}, errors.NewValidationError("unknown command: "+fields[0], nil)
	}
	return cmd, nil
}
