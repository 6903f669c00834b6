package process

import (
	"fmt"
	"strings"
)

// SplitCommandLine separates the argument string from a flat Windows command
// line, given the resolved executable path.
//
// It is a heuristic, not a parser: whatever precedes the executable inside the
// command line (usually a single double quote, or nothing) is taken as the
// opening quote, reversed, and searched for right after the executable to find
// where arguments begin. Nested quoting, quotes around only part of the path,
// or a command line that spells the executable differently defeat it.
func SplitCommandLine(commandLine, executable string) (string, error) {
	start := strings.Index(commandLine, executable)
	if start < 0 {
		return "", fmt.Errorf("executable %q not present in command line %q", executable, commandLine)
	}

	openQuotes := commandLine[:start]
	closeQuotes := reverseString(openQuotes)
	afterExecutable := start + len(executable)

	end := strings.Index(commandLine[afterExecutable:], closeQuotes)
	if end < 0 {
		return "", fmt.Errorf("closing quote %q for executable not found in command line %q", closeQuotes, commandLine)
	}

	argsStart := afterExecutable + end + len(closeQuotes)
	return strings.TrimSpace(commandLine[argsStart:]), nil
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
