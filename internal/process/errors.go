package process

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an executable, directory or pid does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRunning is returned by Start while a process is starting or running.
	ErrAlreadyRunning = errors.New("process is already running")
	// ErrInvalidState is returned when an operation is not allowed in the current status.
	ErrInvalidState = errors.New("invalid process state")
	// ErrIdentityMismatch is returned by Reattach when the pid belongs to another program.
	ErrIdentityMismatch = errors.New("process identity mismatch")
	// ErrStartFailed is returned when the OS refused to launch the process.
	ErrStartFailed = errors.New("process failed to start")
	// ErrPlatformUnsupported is returned by resolvers on operating systems they do not cover.
	ErrPlatformUnsupported = errors.New("platform not supported")
	// ErrResolutionFailed is wrapped by ResolutionError.
	ErrResolutionFailed = errors.New("exit code resolution failed")
	// ErrStopTimeout is returned when a killed process did not confirm its exit in time.
	ErrStopTimeout = errors.New("timed out waiting for process to exit")
	// ErrDisposed is returned by operations on a closed Host.
	ErrDisposed = errors.New("process host is closed")
)

// IdentityMismatchError carries both identities of a rejected reattachment.
type IdentityMismatchError struct {
	PID      int
	Field    string
	Expected string
	Actual   string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("process %d has different %s: expected %q but found %q", e.PID, e.Field, e.Expected, e.Actual)
}

func (e *IdentityMismatchError) Unwrap() error {
	return ErrIdentityMismatch
}

// ResolutionError is returned when neither exit code strategy succeeded.
type ResolutionError struct {
	PID      int
	Primary  error
	Fallback error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("exit code of process %d unavailable: primary: %v; fallback: %v", e.PID, e.Primary, e.Fallback)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolutionFailed, e.Primary, e.Fallback}
}
