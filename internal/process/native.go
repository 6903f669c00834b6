package process

import (
	"errors"
	"os"
	"os/exec"
)

// nativeProcess is the OS-level handle a Host owns for one lifecycle.
type nativeProcess interface {
	PID() int
	// Wait blocks until the process has exited. The returned function is the
	// primary exit code lookup handed to the ExitCodeResolver.
	Wait() func() (int, error)
	// Kill forcibly terminates the process and its descendants.
	Kill() error
	// Close releases the OS handle. Only called after Wait returned.
	Close() error
}

// childProcess is a process spawned by this Host.
type childProcess struct {
	proc *os.Process
}

func (c *childProcess) PID() int {
	return c.proc.Pid
}

func (c *childProcess) Wait() func() (int, error) {
	state, err := c.proc.Wait()
	return func() (int, error) {
		if err != nil {
			return 0, err
		}
		return exitCodeFromState(state)
	}
}

func (c *childProcess) Kill() error {
	err := killProcessTree(c.proc.Pid)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return err
	}
	// Tree kill failed; make sure at least the child itself goes away.
	if killErr := c.proc.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return errors.Join(err, killErr)
	}
	return nil
}

func (c *childProcess) Close() error {
	return nil
}

// newCommand builds the command for a launch. Argument handling is platform
// specific, see prepareCommand.
func newCommand(executable, workingDir, args string) (*exec.Cmd, error) {
	cmd, err := prepareCommand(executable, args)
	if err != nil {
		return nil, err
	}
	cmd.Dir = workingDir
	return cmd, nil
}
