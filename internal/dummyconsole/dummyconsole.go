// Package dummyconsole is a tiny interactive console program used as the
// supervised child in process tests.
//
// It prints a short banner, then echoes every stdin line back on stdout.
// The line "stop" ends it with exit code 3. With -explode it writes to stderr
// and exits with 1 right after the banner. Without stdin it keeps running
// until killed.
package dummyconsole

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	StopCommand  = "stop"
	StopExitCode = 3
	ExplodeFlag  = "-explode"
	ExplodeCode  = 1
)

// Banner returns the lines printed before any input is read.
func Banner(args []string) []string {
	return []string{
		fmt.Sprintf("Args: %s", strings.Join(args, " ")),
		"Dummy logline",
		"Enter something:",
	}
}

// Run executes the console and returns its exit code. block is called when
// stdin reaches EOF and should not return until the process is killed.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer, block func()) int {
	for _, line := range Banner(args) {
		fmt.Fprintln(stdout, line)
	}

	if len(args) == 1 && args[0] == ExplodeFlag {
		fmt.Fprintln(stderr, "Unhandled exception: Boom")
		return ExplodeCode
	}

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		fmt.Fprintln(stdout, line)
		if line == StopCommand {
			return StopExitCode
		}
	}

	block()
	return 0
}
