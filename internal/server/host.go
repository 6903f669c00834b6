package server

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheGojiOG/serverhost/internal/console"
	"github.com/TheGojiOG/serverhost/internal/process"
)

// Host is a process host whose output is kept in a replayable broadcast.
// Every consumer of Output sees all retained lines followed by live ones, and
// the sequence ends when the process exits.
type Host struct {
	logger  *slog.Logger
	process *process.Host
	output  *console.Broadcast

	unsubscribe []func()
	closeOnce   sync.Once
	closed      atomic.Bool
}

// NewHost wraps p. historyLines caps the replay buffer; zero keeps every
// line for the lifetime of the host.
func NewHost(logger *slog.Logger, p *process.Host, historyLines int) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		logger:  logger.With("component", "server_host", "executable", p.Executable()),
		process: p,
		output:  console.NewBroadcast(historyLines),
	}
	h.unsubscribe = []func(){
		p.OnOutput(func(line string) { h.output.Publish(console.StreamStdout, line) }),
		p.OnError(func(line string) { h.output.Publish(console.StreamStderr, line) }),
		p.OnExited(func(process.ExitInfo) { h.output.Complete() }),
	}
	return h
}

func (h *Host) Status() process.Status         { return h.process.Status() }
func (h *Host) ProcessID() (int, bool)         { return h.process.ProcessID() }
func (h *Host) Identity() process.Identity     { return h.process.Identity() }
func (h *Host) Stop(ctx context.Context) error { return h.process.Stop(ctx) }
func (h *Host) Broadcast() *console.Broadcast  { return h.output }
func (h *Host) Reattach(ctx context.Context, pid int) error {
	return h.process.Reattach(ctx, pid)
}

// Start launches the process. A Host serves a single lifecycle: its output
// completes on exit, so starting again needs a new Host.
func (h *Host) Start() (int, error) {
	if !h.closed.Load() && (h.process.Status() == process.StatusExited || h.output.Completed()) {
		return 0, fmt.Errorf("%w: %s has already run, create a new host", process.ErrInvalidState, h.process.Executable())
	}
	return h.process.Start()
}

func (h *Host) StopWithTimeout(ctx context.Context, timeout time.Duration) error {
	return h.process.StopWithTimeout(ctx, timeout)
}

func (h *Host) SendCommand(ctx context.Context, command string) error {
	return h.process.SendCommand(ctx, command)
}

// Output replays the retained lines and then follows live output until the
// process exits or ctx ends.
func (h *Host) Output(ctx context.Context) iter.Seq[console.Line] {
	return h.output.Lines(ctx)
}

// Subscribe is the channel form of Output.
func (h *Host) Subscribe(ctx context.Context, capacity int) <-chan console.Line {
	return h.output.Subscribe(ctx, capacity)
}

// OnPropertyChanged reports status and process id changes. Raw output only
// reaches consumers through Output.
func (h *Host) OnPropertyChanged(fn func(process.Property)) func() {
	return h.process.OnPropertyChanged(func(p process.Property) {
		if p == process.PropertyStatus || p == process.PropertyProcessID {
			fn(p)
		}
	})
}

// OnExited registers fn for the exit of the supervised process. It runs after
// the output has been completed.
func (h *Host) OnExited(fn func(process.ExitInfo)) func() {
	return h.process.OnExited(fn)
}

// Close detaches from the process host, closes it and completes the output.
// Errors are logged.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		for _, unsubscribe := range h.unsubscribe {
			unsubscribe()
		}
		if err := h.process.Close(); err != nil {
			h.logger.Error("error occurred during close", "error", err)
		}
		h.output.Complete()
	})
}
