//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// prepareCommand passes the argument string through untouched: Windows
// programs parse their own command line. The executable is always quoted so
// the identity resolver can mirror-match the quote later.
func prepareCommand(executable, args string) (*exec.Cmd, error) {
	cmdLine := `"` + executable + `"`
	if args != "" {
		cmdLine += " " + args
	}

	cmd := exec.Command(executable)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       cmdLine,
		CreationFlags: windows.CREATE_NO_WINDOW | windows.CREATE_NEW_PROCESS_GROUP,
		HideWindow:    true,
	}
	return cmd, nil
}

// killProcessTree terminates pid and every descendant found in a process
// snapshot, children first.
func killProcessTree(pid int) error {
	children, err := childrenByParent()
	if err != nil {
		return fmt.Errorf("snapshot processes: %w", err)
	}

	var order []uint32
	var collect func(uint32)
	collect = func(p uint32) {
		for _, child := range children[p] {
			collect(child)
		}
		order = append(order, p)
	}
	collect(uint32(pid))

	var errs []error
	for _, target := range order {
		if err := terminate(target); err != nil && target == uint32(pid) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func childrenByParent() (map[uint32][]uint32, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, err
	}

	children := make(map[uint32][]uint32)
	for {
		if entry.ProcessID != entry.ParentProcessID {
			children[entry.ParentProcessID] = append(children[entry.ParentProcessID], entry.ProcessID)
		}
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return children, nil
			}
			return nil, err
		}
	}
}

func terminate(pid uint32) error {
	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return os.ErrProcessDone
		}
		return err
	}
	defer windows.CloseHandle(handle)
	return windows.TerminateProcess(handle, 1)
}
