// Package state persists what the supervisor knows about each server so it
// can be restored after the supervisor itself restarts.
package state

import (
	"context"
	"errors"
	"time"
)

// Status is the persisted lifecycle status of a server.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusStopped  Status = "stopped"
	StatusStopping Status = "stopping"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusCrashed  Status = "crashed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusStopped, StatusStopping, StatusStarting, StatusRunning, StatusCrashed:
		return true
	}
	return false
}

// Active reports whether a process is expected to exist for s.
func (s Status) Active() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusStopping
}

// ErrNotFound is returned when no state exists for a server.
var ErrNotFound = errors.New("server state not found")

// ServerState is the persisted record of one server.
type ServerState struct {
	ID                 string     `json:"id"`
	Status             Status     `json:"status"`
	PID                *int       `json:"pid,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	StoppedAt          *time.Time `json:"stopped_at,omitempty"`
	CrashCountInWindow int        `json:"crash_count_in_window"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Repository stores server states.
type Repository interface {
	Create(ctx context.Context, s ServerState) error
	Get(ctx context.Context, id string) (ServerState, error)
	List(ctx context.Context) ([]ServerState, error)
	// Update inserts the state when it does not exist yet.
	Update(ctx context.Context, s ServerState) error
	Delete(ctx context.Context, id string) error
}
