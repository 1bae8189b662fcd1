package dictation

import (
	"regexp"
	"strings"
)

// Command is an inline voice command spoken at the end of a turn.
type Command int

const (
	CommandNone Command = iota
	CommandSend
	CommandStop
	CommandClear
)

func (c Command) String() string {
	switch c {
	case CommandSend:
		return "send"
	case CommandStop:
		return "stop"
	case CommandClear:
		return "clear"
	default:
		return "none"
	}
}

type commandPattern struct {
	command Command
	re      *regexp.Regexp
}

// Checked in order; the first match wins.
var commandPatterns = []commandPattern{
	{CommandSend, regexp.MustCompile(`(?i)\b(?:send|done)[\s[:punct:]]*$`)},
	{CommandStop, regexp.MustCompile(`(?i)\bstop\s+(?:listening|recording)[\s[:punct:]]*$`)},
	{CommandClear, regexp.MustCompile(`(?i)\b(?:clear\s+input|remove)[\s[:punct:]]*$`)},
}

// DetectCommand matches the trailing command phrase of transcript and returns
// the text spoken before it, trimmed of whitespace and separator punctuation.
func DetectCommand(transcript string) (Command, string) {
	for _, p := range commandPatterns {
		loc := p.re.FindStringIndex(transcript)
		if loc == nil {
			continue
		}
		return p.command, leadingText(transcript[:loc[0]])
	}
	return CommandNone, ""
}

func leadingText(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), " \t\r\n,;:-")
}
