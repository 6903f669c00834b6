package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
)

type fixedIdentity struct {
	identity Identity
	err      error
}

func (f fixedIdentity) Resolve(context.Context, int) (Identity, error) {
	return f.identity, f.err
}

func (fixedIdentity) CanonicalArguments(args string) string {
	return args
}

// spawnHelper starts the dummy console outside of any Host, the way a
// previous supervisor instance would have left it.
func spawnHelper(t *testing.T, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(testExecutable(t), append([]string{helperArg}, args...)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	t.Cleanup(func() {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
	})
	return cmd
}

func TestReattachTakesOverRunningProcess(t *testing.T) {
	cmd := spawnHelper(t)
	pid := cmd.Process.Pid

	h := newTestHost(t, "")
	rec := record(h)

	if err := h.Reattach(testContext(t), pid); err != nil {
		t.Fatalf("Reattach: %v", err)
	}
	if got := h.Status(); got != StatusRunning {
		t.Fatalf("status = %s", got)
	}
	if got, ok := h.ProcessID(); !ok || got != pid {
		t.Fatalf("ProcessID = %d, %v; want %d", got, ok, pid)
	}
	if err := h.SendCommand(testContext(t), "hello"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SendCommand on reattached host = %v, want ErrInvalidState", err)
	}

	if err := h.Stop(testContext(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	info := rec.waitExit(t)
	if info.ProcessID != pid {
		t.Fatalf("exit pid = %d, want %d", info.ProcessID, pid)
	}
	if info.ExitCode != nil && *info.ExitCode == 0 {
		t.Fatal("killed process reported exit code 0")
	}
	if got := h.Status(); got != StatusExited {
		t.Fatalf("status = %s", got)
	}
}

func TestReattachRejectsDifferentArguments(t *testing.T) {
	cmd := spawnHelper(t, "-port", "5520")

	h := newTestHost(t, "-port 5521")
	err := h.Reattach(testContext(t), cmd.Process.Pid)

	var mismatch *IdentityMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Reattach = %v, want IdentityMismatchError", err)
	}
	if mismatch.Field != "arguments" {
		t.Fatalf("mismatch field = %q", mismatch.Field)
	}
	if h.Status() != StatusNotStarted {
		t.Fatalf("status = %s", h.Status())
	}
}

func TestReattachIdentityComparison(t *testing.T) {
	exe := testExecutable(t)
	configured := Identity{Executable: exe, Arguments: "-jar server.jar --port 5520"}

	cases := []struct {
		name   string
		actual Identity
		field  string
	}{
		{"executable differs by one character", Identity{Executable: exe + "x", Arguments: configured.Arguments}, "executable"},
		{"arguments differ by one character", Identity{Executable: exe, Arguments: "-jar server.jar --port 5521"}, "arguments"},
		{"arguments missing", Identity{Executable: exe}, "arguments"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHost(discardLogger(), HostOptions{
				Executable:       exe,
				WorkingDir:       t.TempDir(),
				Arguments:        configured.Arguments,
				IdentityResolver: fixedIdentity{identity: tc.actual},
			})
			defer h.Close()

			err := h.Reattach(testContext(t), os.Getpid())
			var mismatch *IdentityMismatchError
			if !errors.As(err, &mismatch) || !errors.Is(err, ErrIdentityMismatch) {
				t.Fatalf("Reattach = %v, want identity mismatch", err)
			}
			if mismatch.Field != tc.field {
				t.Fatalf("field = %q, want %q", mismatch.Field, tc.field)
			}
			if h.Status() != StatusNotStarted {
				t.Fatalf("status = %s", h.Status())
			}
		})
	}
}

func TestReattachTrimsResolvedArguments(t *testing.T) {
	cmd := spawnHelper(t)
	exe := testExecutable(t)

	h := NewHost(discardLogger(), HostOptions{
		Executable:       exe,
		WorkingDir:       t.TempDir(),
		Arguments:        helperArg,
		IdentityResolver: fixedIdentity{identity: Identity{Executable: exe, Arguments: "  " + helperArg + " "}},
	})
	defer h.Close()

	if err := h.Reattach(testContext(t), cmd.Process.Pid); err != nil {
		t.Fatalf("Reattach: %v", err)
	}
}

func TestReattachMissingProcess(t *testing.T) {
	h := newTestHost(t, "")

	// Above the kernel's pid_max ceiling, so never in use.
	err := h.Reattach(testContext(t), 1<<22+1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Reattach = %v, want ErrNotFound", err)
	}
	if h.Status() != StatusNotStarted {
		t.Fatalf("status = %s", h.Status())
	}
}

func TestReattachUnreadableIdentity(t *testing.T) {
	exe := testExecutable(t)
	h := NewHost(discardLogger(), HostOptions{
		Executable:       exe,
		WorkingDir:       t.TempDir(),
		IdentityResolver: NewProcfsIdentityResolver(t.TempDir()),
	})
	defer h.Close()

	if err := h.Reattach(testContext(t), os.Getpid()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Reattach = %v, want ErrNotFound", err)
	}
}

func TestExitReportedWhileDescendantHoldsOutput(t *testing.T) {
	drain := outputDrainTimeout
	outputDrainTimeout = 5 * time.Second
	t.Cleanup(func() { outputDrainTimeout = drain })

	h := NewHost(discardLogger(), HostOptions{
		Executable: "/bin/sh",
		WorkingDir: t.TempDir(),
		Arguments:  `-c "sleep 2 </dev/null & exit 2"`,
	})
	defer h.Close()
	rec := record(h)

	if _, err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for h.Status() != StatusExited {
		if time.Now().After(deadline) {
			t.Fatalf("status = %s after the shell exited", h.Status())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := h.ProcessID(); ok {
		t.Fatal("process id present after exit")
	}
	if err := h.SendCommand(testContext(t), "hello"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("SendCommand = %v, want ErrInvalidState", err)
	}
	if n := rec.exitCount(); n != 0 {
		t.Fatalf("exit event fired before output drained")
	}

	info := rec.waitExit(t)
	if info.ExitCode == nil || *info.ExitCode != 2 {
		t.Fatalf("exit code = %v, want 2", info.ExitCode)
	}
}
