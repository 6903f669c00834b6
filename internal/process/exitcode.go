package process

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// ExitCodeResolver produces the exit code of a terminated process. primary
// queries the native process object; implementations decide what to do when
// it fails.
type ExitCodeResolver interface {
	ExitCode(pid int, primary func() (int, error)) (int, error)
}

// NewExitCodeResolver returns the resolver for the running operating system.
func NewExitCodeResolver() ExitCodeResolver {
	if runtime.GOOS == "linux" {
		return NewProcfsExitCodeResolver("/proc")
	}
	return nativeExitCodeResolver{goos: runtime.GOOS}
}

// nativeExitCodeResolver trusts the native process object only. On Windows
// that is GetExitCodeProcess, which works for reattached processes as well.
type nativeExitCodeResolver struct {
	goos string
}

func (r nativeExitCodeResolver) ExitCode(pid int, primary func() (int, error)) (int, error) {
	code, err := primary()
	if err == nil {
		return code, nil
	}
	return 0, &ResolutionError{
		PID:      pid,
		Primary:  err,
		Fallback: fmt.Errorf("no exit code fallback on %s: %w", r.goos, ErrPlatformUnsupported),
	}
}

// ProcfsExitCodeResolver falls back to /proc/<pid>/stat when the primary
// path fails, which happens for processes this supervisor did not spawn.
//
// The fallback is best effort only: the stat record usually disappears as soon
// as the process is reaped, and the field it reads is whatever the kernel
// exposes at that position rather than a guaranteed wait status.
type ProcfsExitCodeResolver struct {
	root string
}

func NewProcfsExitCodeResolver(root string) *ProcfsExitCodeResolver {
	return &ProcfsExitCodeResolver{root: root}
}

func (r *ProcfsExitCodeResolver) ExitCode(pid int, primary func() (int, error)) (int, error) {
	code, err := primary()
	if err == nil {
		return code, nil
	}

	code, statErr := r.statExitCode(pid)
	if statErr != nil {
		return 0, &ResolutionError{PID: pid, Primary: err, Fallback: statErr}
	}
	return code, nil
}

// statExitCode parses the 14th field of the stat record as a wait status and
// returns its high byte.
func (r *ProcfsExitCodeResolver) statExitCode(pid int) (int, error) {
	path := filepath.Join(r.root, strconv.Itoa(pid), "stat")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	fields := statFields(string(data))
	if len(fields) <= 13 {
		return 0, fmt.Errorf("can't parse %s: %d fields", path, len(fields))
	}

	status, err := strconv.ParseInt(fields[13], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("can't parse %s: %w", path, err)
	}
	return int((status >> 8) & 0xff), nil
}

// statFields splits a stat record into fields, keeping the parenthesised
// command name (which may contain spaces) as the single second field.
func statFields(record string) []string {
	open := strings.IndexByte(record, '(')
	end := strings.LastIndexByte(record, ')')
	if open < 0 || end < open {
		return strings.Fields(record)
	}

	fields := strings.Fields(record[:open])
	fields = append(fields, record[open:end+1])
	return append(fields, strings.Fields(record[end+1:])...)
}

// exitCodeFromState reads the primary exit code from a reaped child.
// Children killed by a signal report 128+signal, as shells do.
func exitCodeFromState(state *os.ProcessState) (int, error) {
	if state == nil {
		return 0, fmt.Errorf("process state unavailable")
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	code := state.ExitCode()
	if code < 0 {
		return 0, fmt.Errorf("process has not exited: %s", state)
	}
	return code, nil
}
