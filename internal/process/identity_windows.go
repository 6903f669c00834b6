//go:build windows

package process

import (
	"context"
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

type windowsIdentityResolver struct{}

func newWindowsIdentityResolver() IdentityResolver {
	return windowsIdentityResolver{}
}

func (windowsIdentityResolver) Resolve(ctx context.Context, pid int) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return Identity{}, fmt.Errorf("process %d: %w: %v", pid, ErrNotFound, err)
	}
	defer windows.CloseHandle(handle)

	executable, err := imagePath(handle)
	if err != nil {
		return Identity{}, fmt.Errorf("process %d: executable path: %w: %v", pid, ErrNotFound, err)
	}
	commandLine, err := processCommandLine(handle)
	if err != nil {
		return Identity{}, fmt.Errorf("process %d: command line: %w: %v", pid, ErrNotFound, err)
	}
	if strings.TrimSpace(executable) == "" || strings.TrimSpace(commandLine) == "" {
		return Identity{}, fmt.Errorf("didn't get process parameters for process %d: %w", pid, ErrNotFound)
	}

	args, err := SplitCommandLine(commandLine, executable)
	if err != nil {
		return Identity{}, fmt.Errorf("process %d: %w", pid, err)
	}

	return Identity{Executable: executable, Arguments: args}, nil
}

func (windowsIdentityResolver) CanonicalArguments(args string) string {
	return strings.TrimSpace(args)
}

func imagePath(handle windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

func processCommandLine(handle windows.Handle) (string, error) {
	var size uint32
	err := windows.NtQueryInformationProcess(handle, windows.ProcessCommandLineInformation, nil, 0, &size)
	if size == 0 {
		if err == nil {
			err = fmt.Errorf("empty command line information")
		}
		return "", err
	}

	buf := make([]byte, size)
	if err := windows.NtQueryInformationProcess(handle, windows.ProcessCommandLineInformation, unsafe.Pointer(&buf[0]), size, &size); err != nil {
		return "", err
	}

	value := (*windows.NTUnicodeString)(unsafe.Pointer(&buf[0]))
	return value.String(), nil
}
