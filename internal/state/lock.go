package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another supervisor owns the state directory.
var ErrLocked = errors.New("state directory is locked by another supervisor")

// Lock is an exclusive claim on a state directory. Two supervisors restoring
// the same persisted pids would fight over the processes.
type Lock struct {
	l *flock.Flock
}

// AcquireLock takes the lock file in dir without waiting. It returns
// ErrLocked when another process holds it.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	l := flock.New(filepath.Join(dir, "serverhost.lock"))
	locked, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", l.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", l.Path(), ErrLocked)
	}
	return &Lock{l: l}, nil
}

// Release gives the directory up.
func (k *Lock) Release() error {
	return k.l.Unlock()
}
