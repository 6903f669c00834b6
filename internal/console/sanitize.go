package console

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxCommandLength bounds a single console command.
const MaxCommandLength = 512

// ErrInvalidCommand is wrapped by every ValidateCommand error.
var ErrInvalidCommand = errors.New("invalid command")

// Match all ANSI/VT100 escape sequences including CSI, OSC, and other control sequences
var ansiEscapePattern = regexp.MustCompile(`\x1b(\[[0-9;?!]*[A-Za-z>hp]|\][^\x07]*\x07|\([B0]|[=>])`)

// Sanitize strips escape sequences and control characters from an output
// line before it is shown to a viewer. Tabs are kept.
func Sanitize(line string) string {
	if line == "" {
		return ""
	}
	stripped := ansiEscapePattern.ReplaceAllString(line, "")
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 32 || r == 0x7f {
			return -1
		}
		return r
	}, stripped)
}

// ValidateCommand checks a command typed by an operator. Commands go to the
// server's stdin as a single line, so line breaks and escape sequences are
// rejected.
func ValidateCommand(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("%w: command is empty", ErrInvalidCommand)
	}
	if len(command) > MaxCommandLength {
		return "", fmt.Errorf("%w: command is longer than %d characters", ErrInvalidCommand, MaxCommandLength)
	}
	if strings.ContainsAny(command, "\n\r") {
		return "", fmt.Errorf("%w: command contains line breaks", ErrInvalidCommand)
	}
	if ansiEscapePattern.MatchString(command) || strings.ContainsRune(command, 0x1b) {
		return "", fmt.Errorf("%w: command contains escape sequences", ErrInvalidCommand)
	}
	return command, nil
}
