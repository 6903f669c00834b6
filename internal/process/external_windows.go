//go:build windows

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

const stillActive = 259

func openExternal(pid int) (nativeProcess, error) {
	access := uint32(windows.SYNCHRONIZE | windows.PROCESS_QUERY_LIMITED_INFORMATION | windows.PROCESS_TERMINATE)
	handle, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return nil, fmt.Errorf("process %d: %w", pid, ErrNotFound)
		}
		return nil, fmt.Errorf("open process %d: %w", pid, err)
	}
	return &handleProcess{pid: pid, handle: handle}, nil
}

type handleProcess struct {
	pid    int
	handle windows.Handle
}

func (p *handleProcess) PID() int {
	return p.pid
}

func (p *handleProcess) Wait() func() (int, error) {
	_, waitErr := windows.WaitForSingleObject(p.handle, windows.INFINITE)
	return func() (int, error) {
		if waitErr != nil {
			return 0, fmt.Errorf("wait for process %d: %w", p.pid, waitErr)
		}
		var code uint32
		if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
			return 0, fmt.Errorf("get exit code of process %d: %w", p.pid, err)
		}
		if code == stillActive {
			return 0, fmt.Errorf("process %d is still active", p.pid)
		}
		return int(int32(code)), nil
	}
}

func (p *handleProcess) Kill() error {
	return killProcessTree(p.pid)
}

func (p *handleProcess) Close() error {
	return windows.CloseHandle(p.handle)
}
