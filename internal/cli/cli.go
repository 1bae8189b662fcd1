// Package cli parses jotter's command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandListen  Command = "listen"
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandToggle  Command = "toggle"
	CommandStatus  Command = "status"
	CommandNote    Command = "note"
	CommandItems   Command = "items"
	CommandDone    Command = "done"
	CommandEdit    Command = "edit"
	CommandDelete  Command = "delete"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandListen:  {},
	CommandStart:   {},
	CommandStop:    {},
	CommandToggle:  {},
	CommandStatus:  {},
	CommandNote:    {},
	CommandItems:   {},
	CommandDone:    {},
	CommandEdit:    {},
	CommandDelete:  {},
	CommandDevices: {},
	CommandDoctor:  {},
	CommandVersion: {},
	CommandHelp:    {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// Text is the note body for CommandNote, or the status filter for CommandItems.
	Text string
	// Args holds item ids, and for CommandEdit the key=value fields after the id.
	Args []string
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			rest := args[i+1:]

			switch cmd {
			case CommandNote:
				parsed.Text = strings.TrimSpace(strings.Join(rest, " "))
				if parsed.Text == "" {
					return Parsed{}, errors.New("note requires text")
				}
			case CommandItems:
				if len(rest) > 1 {
					return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
				}
				if len(rest) == 1 {
					parsed.Text = rest[0]
				}
			case CommandDone, CommandDelete:
				if len(rest) == 0 {
					return Parsed{}, fmt.Errorf("%s requires at least one item id", arg)
				}
				parsed.Args = rest
			case CommandEdit:
				if len(rest) < 2 {
					return Parsed{}, errors.New("edit requires an item id and at least one key=value field")
				}
				parsed.Args = rest
			default:
				if len(rest) > 0 {
					return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
				}
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [text]

Commands:
  listen         Run the daemon (wake word, dictation, IPC socket)
  start          Start dictation in the running daemon
  stop           Stop dictation in the running daemon
  toggle         Start dictation, or stop it when already active
  status         Print the daemon capture state
  note TEXT      Extract action items from a typed note
  items [STATUS] List action items, optionally filtered by status
  done ID...     Mark action items done (ids may be shortened to a unique prefix)
  edit ID K=V... Change fields: task, due, remind, priority, status, type, owner
  delete ID...   Delete action items
  devices        List available input devices
  doctor         Run configuration and environment checks
  version        Print version information
  help           Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/jotter/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
