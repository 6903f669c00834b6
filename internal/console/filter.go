package console

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter modes accepted by NewOutputFilter.
const (
	FilterNone   = "none"
	FilterErrors = "errors"
	FilterSearch = "search"
	FilterRegex  = "regex"
)

var errorKeywords = []string{
	"error",
	"exception",
	"fatal",
	"severe",
	"warning",
	"warn",
	"failed",
	"failure",
	"critical",
	"panic",
	"stack trace",
	"traceback",
}

// OutputFilter selects console lines for a viewer.
type OutputFilter struct {
	Mode          string
	Pattern       string
	CaseSensitive bool
	regex         *regexp.Regexp
}

// NewOutputFilter validates the mode and compiles regex patterns. An empty
// mode means FilterNone.
func NewOutputFilter(mode, pattern string, caseSensitive bool) (*OutputFilter, error) {
	if mode == "" {
		mode = FilterNone
	}
	filter := &OutputFilter{Mode: mode, Pattern: pattern, CaseSensitive: caseSensitive}

	switch mode {
	case FilterNone, FilterErrors, FilterSearch:
	case FilterRegex:
		if pattern == "" {
			break
		}
		flags := ""
		if !caseSensitive {
			flags = "(?i)"
		}
		compiled, err := regexp.Compile(flags + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		filter.regex = compiled
	default:
		return nil, fmt.Errorf("unknown filter mode %q", mode)
	}
	return filter, nil
}

// Match reports whether line passes the filter. Everything written to stderr
// counts as an error line.
func (f *OutputFilter) Match(line Line) bool {
	switch f.Mode {
	case FilterErrors:
		return line.Stream == StreamStderr || isErrorLine(line.Text)

	case FilterSearch:
		if f.Pattern == "" {
			return true
		}
		if f.CaseSensitive {
			return strings.Contains(line.Text, f.Pattern)
		}
		return strings.Contains(strings.ToLower(line.Text), strings.ToLower(f.Pattern))

	case FilterRegex:
		return f.regex == nil || f.regex.MatchString(line.Text)

	default:
		return true
	}
}

// Apply returns the lines that pass the filter.
func (f *OutputFilter) Apply(lines []Line) []Line {
	if f.Mode == FilterNone {
		return lines
	}
	filtered := []Line{}
	for _, line := range lines {
		if f.Match(line) {
			filtered = append(filtered, line)
		}
	}
	return filtered
}

func isErrorLine(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range errorKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
