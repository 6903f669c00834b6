//go:build linux

package process

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var externalPollInterval = 250 * time.Millisecond

// openExternal attaches to a process this supervisor did not spawn. A pidfd
// pins the process so a recycled pid can't be signalled by mistake; kernels
// without pidfd_open fall back to polling with signal 0.
func openExternal(pid int) (nativeProcess, error) {
	fd, err := unix.PidfdOpen(pid, 0)
	switch {
	case err == nil:
		return &pidfdProcess{pid: pid, fd: fd}, nil
	case errors.Is(err, unix.ESRCH):
		return nil, fmt.Errorf("process %d: %w", pid, ErrNotFound)
	case errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EPERM):
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return nil, fmt.Errorf("process %d: %w", pid, ErrNotFound)
		}
		return &polledProcess{pid: pid}, nil
	default:
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
}

type pidfdProcess struct {
	pid int
	fd  int
}

func (p *pidfdProcess) PID() int {
	return p.pid
}

func (p *pidfdProcess) Wait() func() (int, error) {
	fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			// Poll itself broke; degrade to signal-0 polling.
			waitGone(p.pid)
			break
		}
		if n > 0 {
			break
		}
	}
	return func() (int, error) { return reapExternal(p.pid) }
}

func (p *pidfdProcess) Kill() error {
	if pgid, err := unix.Getpgid(p.pid); err == nil && pgid == p.pid {
		_ = unix.Kill(-p.pid, unix.SIGKILL)
	}
	err := unix.PidfdSendSignal(p.fd, unix.SIGKILL, nil, 0)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func (p *pidfdProcess) Close() error {
	return unix.Close(p.fd)
}

type polledProcess struct {
	pid int
}

func (p *polledProcess) PID() int {
	return p.pid
}

func (p *polledProcess) Wait() func() (int, error) {
	waitGone(p.pid)
	return func() (int, error) { return reapExternal(p.pid) }
}

func (p *polledProcess) Kill() error {
	return killProcessTree(p.pid)
}

func (p *polledProcess) Close() error {
	return nil
}

func waitGone(pid int) {
	for {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return
		}
		time.Sleep(externalPollInterval)
	}
}

// reapExternal only succeeds when the process happens to be our child;
// otherwise the caller's fallback takes over.
func reapExternal(pid int) (int, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if err != nil {
		return 0, fmt.Errorf("wait for process %d: %w", pid, err)
	}
	if wpid != pid {
		return 0, fmt.Errorf("process %d has not been reaped", pid)
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return ws.ExitStatus(), nil
}
