package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// DefaultStopTimeout bounds how long Stop waits for a killed process to exit.
const DefaultStopTimeout = 10 * time.Second

var (
	startPollRetries   = 5
	startPollDelay     = time.Second
	outputDrainTimeout = 2 * time.Second
	maxLineSize        = 1024 * 1024
)

// HostOptions configures a Host.
type HostOptions struct {
	Executable string
	WorkingDir string
	Arguments  string

	// Optional, selected by runtime.GOOS when nil.
	IdentityResolver IdentityResolver
	ExitCodeResolver ExitCodeResolver
}

// Host supervises a single OS process: it starts or reattaches to it, relays
// its output line by line, writes commands to its stdin and kills it on Stop.
//
// A Host may go through several lifecycles (Start after Exited). Once Close
// has been called it refuses every further operation.
type Host struct {
	logger     *slog.Logger
	executable string
	workingDir string
	args       string
	identity   IdentityResolver
	exitCodes  ExitCodeResolver

	// opMu serializes Start and Reattach.
	opMu sync.Mutex

	mu     sync.Mutex
	status Status
	run    *run
	closed bool
	// pending is a run whose process is gone but whose Exited event has not
	// fired yet.
	pending *run

	exited  handlers[ExitInfo]
	output  handlers[string]
	errors  handlers[string]
	changed handlers[Property]
}

// run is one lifecycle of a native process.
type run struct {
	native nativeProcess
	pid    int

	// Nil for reattached processes.
	stdin  *os.File
	stdout *os.File
	stderr *os.File

	readers     sync.WaitGroup
	exited      chan struct{}
	releaseOnce sync.Once
}

func (r *run) release() {
	r.releaseOnce.Do(func() {
		for _, f := range []*os.File{r.stdin, r.stdout, r.stderr} {
			if f != nil {
				_ = f.Close()
			}
		}
	})
}

// NewHost creates a host in NotStarted. Paths are made absolute but not
// checked until Start or Reattach.
func NewHost(logger *slog.Logger, opts HostOptions) *Host {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Host{
		executable: absPath(opts.Executable),
		workingDir: absPath(opts.WorkingDir),
		args:       opts.Arguments,
		identity:   opts.IdentityResolver,
		exitCodes:  opts.ExitCodeResolver,
	}
	if h.identity == nil {
		h.identity = NewIdentityResolver()
	}
	if h.exitCodes == nil {
		h.exitCodes = NewExitCodeResolver()
	}
	h.logger = logger.With("component", "process_host", "executable", h.executable)
	return h
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func (h *Host) Executable() string { return h.executable }
func (h *Host) WorkingDir() string { return h.workingDir }
func (h *Host) Arguments() string  { return h.args }

// Identity is the identity a process started by this host reports.
func (h *Host) Identity() Identity {
	return Identity{Executable: h.executable, Arguments: h.identity.CanonicalArguments(h.args)}
}

func (h *Host) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// ProcessID returns the pid of the current lifecycle, if any.
func (h *Host) ProcessID() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.run == nil || !h.status.Active() {
		return 0, false
	}
	return h.run.pid, true
}

// OnExited registers fn for the end of every lifecycle. The returned func
// unsubscribes.
func (h *Host) OnExited(fn func(ExitInfo)) func() { return h.exited.add(fn) }

// OnOutput registers fn for each stdout line.
func (h *Host) OnOutput(fn func(string)) func() { return h.output.add(fn) }

// OnError registers fn for each stderr line.
func (h *Host) OnError(fn func(string)) func() { return h.errors.add(fn) }

func (h *Host) OnPropertyChanged(fn func(Property)) func() { return h.changed.add(fn) }

// Start launches the configured executable and returns its pid.
func (h *Host) Start() (int, error) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.logger.Info("starting process", "working_dir", h.workingDir, "arguments", h.args)

	h.mu.Lock()
	pending := h.pending
	h.mu.Unlock()
	if pending != nil {
		<-pending.exited
	}

	h.mu.Lock()
	if err := h.checkStartable(); err != nil {
		h.mu.Unlock()
		return 0, err
	}
	if err := h.validatePaths(); err != nil {
		h.mu.Unlock()
		return 0, err
	}
	h.status = StatusStarting
	h.mu.Unlock()
	h.changed.emit(PropertyStatus)

	r, err := h.launch()
	if err != nil {
		h.setStatus(StatusFailedToStart)
		h.logger.Error("process failed to start", "error", err)
		return 0, fmt.Errorf("%w: %s: %w", ErrStartFailed, h.executable, err)
	}

	h.mu.Lock()
	closed := h.closed
	h.run = r
	h.status = StatusRunning
	h.mu.Unlock()
	h.changed.emit(PropertyProcessID)
	h.changed.emit(PropertyStatus)

	h.logger.Info("process started", "pid", r.pid)

	r.readers.Add(2)
	go h.readLines(r, r.stdout, &h.output)
	go h.readLines(r, r.stderr, &h.errors)
	go h.watch(r)

	// Close gave up waiting for this start; the child must not outlive it.
	if closed {
		h.logger.Warn("host closed while starting, stopping process", "pid", r.pid)
		if err := h.stop(context.Background(), DefaultStopTimeout); err != nil {
			h.logger.Error("failed to stop process of closed host", "pid", r.pid, "error", err)
		}
		return 0, ErrDisposed
	}

	return r.pid, nil
}

// checkStartable must be called with h.mu held.
func (h *Host) checkStartable() error {
	switch {
	case h.closed:
		return ErrDisposed
	case h.status.Active():
		pid := 0
		if h.run != nil {
			pid = h.run.pid
		}
		return fmt.Errorf("%w: %s with id %d", ErrAlreadyRunning, h.executable, pid)
	case h.status == StatusFailedToStart:
		return fmt.Errorf("%w: %s failed to start earlier, create a new host", ErrInvalidState, h.executable)
	}
	return nil
}

func (h *Host) validatePaths() error {
	if info, err := os.Stat(h.executable); err != nil || info.IsDir() {
		return fmt.Errorf("executable %q: %w", h.executable, ErrNotFound)
	}
	if info, err := os.Stat(h.workingDir); err != nil || !info.IsDir() {
		return fmt.Errorf("directory %q: %w", h.workingDir, ErrNotFound)
	}
	return nil
}

func (h *Host) launch() (*run, error) {
	cmd, err := newCommand(h.executable, h.workingDir, h.args)
	if err != nil {
		return nil, err
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW)
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW, stdoutR, stdoutW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	err = cmd.Start()

	// The child owns its ends now.
	closeFiles(stdinR, stdoutW, stderrW)
	if err != nil {
		closeFiles(stdinW, stdoutR, stderrR)
		return nil, err
	}

	return &run{
		native: &childProcess{proc: cmd.Process},
		pid:    cmd.Process.Pid,
		stdin:  stdinW,
		stdout: stdoutR,
		stderr: stderrR,
		exited: make(chan struct{}),
	}, nil
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (h *Host) readLines(r *run, f *os.File, target *handlers[string]) {
	defer r.readers.Done()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		target.emit(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		h.logger.Debug("output reader stopped", "pid", r.pid, "error", err)
	}
}

// watch waits for the process to exit, lets the readers drain and fires the
// single Exited event of the lifecycle. The host reports Exited as soon as
// the process is gone, before the drain.
func (h *Host) watch(r *run) {
	primary := r.native.Wait()
	h.logger.Info("process has exited", "pid", r.pid)
	h.markExited(r)

	drained := make(chan struct{})
	go func() {
		r.readers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(outputDrainTimeout):
		h.logger.Warn("output still open after exit", "pid", r.pid)
	}

	var exitCode *int
	if code, err := h.exitCodes.ExitCode(r.pid, primary); err != nil {
		h.logger.Warn("failed to get exit code", "pid", r.pid, "error", err)
	} else {
		exitCode = &code
	}

	r.release()
	if err := r.native.Close(); err != nil {
		h.logger.Debug("failed to close process handle", "pid", r.pid, "error", err)
	}

	h.exited.emit(ExitInfo{ProcessID: r.pid, ExitCode: exitCode})
	h.settle(r)
	close(r.exited)
}

// markExited moves r's lifecycle to Exited unless a newer lifecycle (or an
// earlier call) already replaced it. r stays pending until settled.
func (h *Host) markExited(r *run) {
	h.mu.Lock()
	if h.run != r {
		h.mu.Unlock()
		return
	}
	h.run = nil
	h.pending = r
	statusChanged := h.status != StatusExited
	h.status = StatusExited
	h.mu.Unlock()

	h.changed.emit(PropertyProcessID)
	if statusChanged {
		h.changed.emit(PropertyStatus)
	}
}

func (h *Host) settle(r *run) {
	h.mu.Lock()
	if h.pending == r {
		h.pending = nil
	}
	h.mu.Unlock()
}

func (h *Host) setStatus(status Status) {
	h.mu.Lock()
	changed := h.status != status
	h.status = status
	h.mu.Unlock()
	if changed {
		h.changed.emit(PropertyStatus)
	}
}

// Reattach takes over supervision of an already running process after
// checking that it runs the configured executable with the configured
// arguments. The reattached process has no stdio.
func (h *Host) Reattach(ctx context.Context, pid int) error {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.logger.Info("reattaching to process", "pid", pid)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrDisposed
	}
	if h.status != StatusNotStarted {
		status := h.status
		h.mu.Unlock()
		return fmt.Errorf("%w: can reattach only when status is %s, current status is %s", ErrInvalidState, StatusNotStarted, status)
	}
	h.mu.Unlock()

	if err := h.validatePaths(); err != nil {
		return err
	}

	// Open the handle before reading the identity so the pid can't be
	// recycled between the check and the takeover.
	native, err := openExternal(pid)
	if err != nil {
		return err
	}

	if err := h.verifyIdentity(ctx, pid); err != nil {
		_ = native.Close()
		return err
	}

	r := &run{native: native, pid: pid, exited: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = native.Close()
		return ErrDisposed
	}
	h.run = r
	h.status = StatusRunning
	h.mu.Unlock()
	h.changed.emit(PropertyProcessID)
	h.changed.emit(PropertyStatus)

	h.logger.Info("reattached to process", "pid", pid)
	go h.watch(r)
	return nil
}

func (h *Host) verifyIdentity(ctx context.Context, pid int) error {
	actual, err := h.identity.Resolve(ctx, pid)
	if err != nil {
		return err
	}
	expected := h.Identity()

	if actual.Executable != expected.Executable {
		return &IdentityMismatchError{PID: pid, Field: "executable", Expected: expected.Executable, Actual: actual.Executable}
	}
	if strings.TrimSpace(actual.Arguments) != expected.Arguments {
		return &IdentityMismatchError{PID: pid, Field: "arguments", Expected: expected.Arguments, Actual: actual.Arguments}
	}
	return nil
}

// Stop kills the process tree and waits up to DefaultStopTimeout for it to exit.
func (h *Host) Stop(ctx context.Context) error {
	return h.StopWithTimeout(ctx, DefaultStopTimeout)
}

// StopWithTimeout kills the process tree and waits up to timeout for the exit
// to be observed. Whatever the outcome, the host is Exited afterwards.
func (h *Host) StopWithTimeout(ctx context.Context, timeout time.Duration) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrDisposed
	}
	return h.stop(ctx, timeout)
}

func (h *Host) stop(ctx context.Context, timeout time.Duration) error {
	h.logger.Info("stopping process")

	for i := 0; i < startPollRetries && h.Status() == StatusStarting; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startPollDelay):
		}
	}

	h.mu.Lock()
	r, status, pending := h.run, h.status, h.pending
	h.mu.Unlock()

	switch {
	case status == StatusRunning && r != nil:
		defer func() {
			r.release()
			h.markExited(r)
			h.settle(r)
		}()

		if err := r.native.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill process %d: %w", r.pid, err)
		}
	case pending != nil:
		// Already gone; wait for its Exited event.
		r = pending
	default:
		h.logger.Warn("can't stop process", "status", status)
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.exited:
		h.logger.Info("process stopped", "pid", r.pid)
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: process %d after %s: %w", ErrStopTimeout, r.pid, timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendCommand writes command followed by a newline to the process stdin.
func (h *Host) SendCommand(ctx context.Context, command string) error {
	h.mu.Lock()
	r, status, closed := h.run, h.status, h.closed
	h.mu.Unlock()

	if closed {
		return ErrDisposed
	}
	if status != StatusRunning || r == nil {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, h.executable, status)
	}
	if r.stdin == nil {
		return fmt.Errorf("%w: process %d was reattached and has no standard input", ErrInvalidState, r.pid)
	}

	h.logger.Info("sending command", "pid", r.pid, "command", command)
	return r.writeLine(ctx, command)
}

func (r *run) writeLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = r.stdin.SetWriteDeadline(time.Now())
	})
	defer stop()

	_, err := io.WriteString(r.stdin, line+"\n")
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: process %d has exited", ErrInvalidState, r.pid)
	}
	return fmt.Errorf("write to process %d: %w", r.pid, err)
}

// Close stops a live process, releases its resources and drops every event
// subscription. It is idempotent and never fails.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	r, status, pending := h.run, h.status, h.pending
	h.mu.Unlock()

	if status.Active() || pending != nil {
		if err := h.stop(context.Background(), DefaultStopTimeout); err != nil {
			h.logger.Error("error occurred on disposing process host", "error", err)
		}
	} else if r != nil {
		r.release()
	}

	h.exited.clear()
	h.output.clear()
	h.errors.clear()
	h.changed.clear()
	return nil
}
