//go:build !windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/kballard/go-shellquote"
)

// prepareCommand splits the argument string with shell rules and places the
// child in its own process group so the whole tree can be signalled.
func prepareCommand(executable, args string) (*exec.Cmd, error) {
	argv, err := shellquote.Split(args)
	if err != nil {
		return nil, fmt.Errorf("parse arguments %q: %w", args, err)
	}

	cmd := exec.Command(executable, argv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd, nil
}

// killProcessTree sends SIGKILL to the process group when pid leads one, and
// to pid alone otherwise.
func killProcessTree(pid int) error {
	var err error
	if pgid, pgErr := syscall.Getpgid(pid); pgErr == nil && pgid == pid {
		err = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		err = syscall.Kill(pid, syscall.SIGKILL)
	}

	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
