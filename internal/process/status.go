package process

import "fmt"

// Status is the lifecycle state of a supervised process.
type Status int

const (
	StatusNotStarted Status = iota
	StatusStarting
	StatusRunning
	StatusExited
	StatusFailedToStart
)

var statusNames = map[Status]string{
	StatusNotStarted:    "not_started",
	StatusStarting:      "starting",
	StatusRunning:       "running",
	StatusExited:        "exited",
	StatusFailedToStart: "failed_to_start",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText renders the status as its lower-case name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a native process is (or is about to be) associated.
func (s Status) Active() bool {
	return s == StatusStarting || s == StatusRunning
}

// Property names an observable attribute of a Host.
type Property string

const (
	PropertyStatus    Property = "status"
	PropertyProcessID Property = "process_id"
)

// ExitInfo describes a finished process lifecycle.
type ExitInfo struct {
	ProcessID int
	// ExitCode is nil when no retrieval strategy produced a code.
	ExitCode *int
}
