// Package cli parses conversa's command line.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandStart      Command = "start"
	CommandToggle     Command = "toggle"
	CommandClose      Command = "close"
	CommandStatus     Command = "status"
	CommandTranscript Command = "transcript"
	CommandNote       Command = "note"
	CommandLocate     Command = "locate"
	CommandHistory    Command = "history"
	CommandDevices    Command = "devices"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

var validCommands = map[Command]struct{}{
	CommandStart:      {},
	CommandToggle:     {},
	CommandClose:      {},
	CommandStatus:     {},
	CommandTranscript: {},
	CommandNote:       {},
	CommandLocate:     {},
	CommandHistory:    {},
	CommandDevices:    {},
	CommandDoctor:     {},
	CommandVersion:    {},
	CommandHelp:       {},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	Profile    string
	ShowHelp   bool

	// note
	Text string
	// locate
	Lat float64
	Lon float64
	// history; zero lists recent conversations
	HistoryID uint
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
		case "--profile":
			i++
			if i >= len(args) || strings.TrimSpace(args[i]) == "" {
				return Parsed{}, errors.New("--profile requires a name")
			}
			parsed.Profile = strings.TrimSpace(args[i])
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
			if err := parseCommandArgs(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

func parseCommandArgs(parsed *Parsed, rest []string) error {
	switch parsed.Command {
	case CommandNote:
		text := strings.TrimSpace(strings.Join(rest, " "))
		if text == "" {
			return errors.New("note requires text")
		}
		parsed.Text = text
		return nil
	case CommandLocate:
		if len(rest) != 2 {
			return errors.New("locate requires LAT and LON")
		}
		lat, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q", rest[0])
		}
		lon, err := strconv.ParseFloat(rest[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q", rest[1])
		}
		parsed.Lat, parsed.Lon = lat, lon
		return nil
	case CommandHistory:
		if len(rest) > 1 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
		if len(rest) == 1 {
			id, err := strconv.ParseUint(rest[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid history id %q", rest[0])
			}
			parsed.HistoryID = uint(id)
		}
		return nil
	default:
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments after command %q", parsed.Command)
		}
		return nil
	}
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--profile NAME] <command> [args]

Commands:
  start          Run a conversation in the foreground until closed
  toggle         Start a conversation, or close the running one
  close          Close the running conversation
  status         Print the current state
  transcript     Print the running conversation's transcript
  note TEXT      Add a professional note to the transcript
  locate LAT LON Speak the address for a coordinate into the conversation
  history [ID]   List saved conversations, or print one
  devices        List available input devices
  doctor         Run configuration and environment checks
  version        Print version information
  help           Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/conversa/config.jsonc)
  --profile NAME  Conversation profile (triage, onboarding-patient, onboarding-professional)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
