package server

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheGojiOG/serverhost/internal/config"
	"github.com/TheGojiOG/serverhost/internal/console"
	"github.com/TheGojiOG/serverhost/internal/process"
	"github.com/TheGojiOG/serverhost/internal/state"
	"github.com/TheGojiOG/serverhost/internal/websocket"
)

// StatusRoom is the websocket room that receives server_status messages.
const StatusRoom = "servers"

const persistTimeout = 5 * time.Second

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("server manager is closed")

// Definitions looks up configured servers. *config.ServerManager satisfies it.
type Definitions interface {
	GetAll() []config.ServerDefinition
	GetByID(id string) (config.ServerDefinition, bool)
}

// StatusPublisher receives status changes. *websocket.Hub satisfies it.
type StatusPublisher interface {
	BroadcastToRoom(room string, message *websocket.Message)
}

// ManagerOptions wires a Manager. Events, History and Publisher are optional.
type ManagerOptions struct {
	Definitions Definitions
	Factory     *Factory
	States      state.Repository
	Events      *state.EventLog
	History     *console.CommandHistory
	Publisher   StatusPublisher

	StopTimeout time.Duration
	// LogDir receives one console log directory per server when ConsoleLog
	// is enabled.
	LogDir     string
	ConsoleLog config.ConsoleLogConfig
}

// Manager supervises the configured servers: it starts, stops and restarts
// them, persists their state and restores supervision after a restart of the
// supervisor itself.
type Manager struct {
	logger *slog.Logger
	opts   ManagerOptions

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// slot holds the runtime of one server.
type slot struct {
	id string

	// opMu serializes Start, Stop and Restart.
	opMu sync.Mutex

	// mu guards session and ordered writes of the persisted state.
	mu      sync.Mutex
	session *session
}

// session is one host lifetime.
type session struct {
	host *Host
	// expected is set before a requested stop so the exit is not counted
	// as a crash.
	expected atomic.Bool
	logDone  chan struct{}

	// exited is guarded by the slot's mu.
	exited bool
}

func NewManager(logger *slog.Logger, opts ManagerOptions) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = process.DefaultStopTimeout
	}
	if opts.Factory == nil {
		opts.Factory = &Factory{Logger: logger}
	}
	return &Manager{
		logger: logger.With("component", "server_manager"),
		opts:   opts,
		slots:  make(map[string]*slot),
	}
}

func (m *Manager) slot(id string) (*slot, config.ServerDefinition, error) {
	def, ok := m.opts.Definitions.GetByID(id)
	if !ok {
		return nil, config.ServerDefinition{}, fmt.Errorf("server %s: %w", id, process.ErrNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, def, ErrClosed
	}
	s, ok := m.slots[id]
	if !ok {
		s = &slot{id: id}
		m.slots[id] = s
	}
	return s, def, nil
}

// runtime returns the slot of id even when its definition is gone, so a
// server removed from servers.yaml while running can still be stopped.
func (m *Manager) runtime(id string) (*slot, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := m.slots[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}
	s, _, err := m.slot(id)
	return s, err
}

// Start launches a configured server.
func (m *Manager) Start(ctx context.Context, id string) (state.ServerState, error) {
	s, def, err := m.slot(id)
	if err != nil {
		return state.ServerState{}, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := m.start(ctx, s, def); err != nil {
		return state.ServerState{}, err
	}
	return m.State(ctx, id)
}

func (m *Manager) start(ctx context.Context, s *slot, def config.ServerDefinition) error {
	s.mu.Lock()
	previous := s.session
	s.mu.Unlock()
	if previous != nil && previous.host.Status().Active() {
		pid, _ := previous.host.ProcessID()
		return fmt.Errorf("server %s (pid %d): %w", s.id, pid, process.ErrAlreadyRunning)
	}
	if previous != nil {
		m.settle(ctx, s, previous)
	}

	host, err := m.opts.Factory.FromDefinition(def)
	if err != nil {
		return err
	}
	sess := m.attach(s, host)

	if err := m.transition(ctx, s, sess, func(st *state.ServerState) bool {
		st.Status = state.StatusStarting
		st.PID = nil
		return true
	}); err != nil {
		m.logger.Warn("failed to persist state", "server_id", s.id, "error", err)
	}

	pid, err := host.Start()
	if err != nil {
		m.logger.Error("server failed to start", "server_id", s.id, "error", err)
		sess.close()
		m.transition(ctx, s, sess, func(st *state.ServerState) bool {
			st.Status = state.StatusStopped
			st.PID = nil
			return true
		})
		m.record(ctx, state.Event{ServerID: s.id, Type: state.EventStartFailed, Message: err.Error()})
		return err
	}

	now := time.Now()
	if err := m.transition(ctx, s, sess, func(st *state.ServerState) bool {
		if sess.exited {
			return false
		}
		st.Status = state.StatusRunning
		st.PID = &pid
		st.StartedAt = &now
		st.StoppedAt = nil
		return true
	}); err != nil {
		m.logger.Warn("failed to persist state", "server_id", s.id, "error", err)
	}
	m.record(ctx, state.Event{ServerID: s.id, Type: state.EventStart, PID: &pid})
	m.logger.Info("server started", "server_id", s.id, "pid", pid)
	return nil
}

// attach makes host the current session of s. The previous session is
// closed; its output stays complete and readable until then.
func (m *Manager) attach(s *slot, host *Host) *session {
	sess := &session{host: host}
	host.OnExited(func(info process.ExitInfo) { m.handleExit(s, sess, info) })

	if lw := m.newLogWriter(s.id); lw != nil {
		sess.logDone = make(chan struct{})
		go func() {
			defer close(sess.logDone)
			lw.Follow(context.Background(), host.Broadcast())
			if err := lw.Close(); err != nil {
				m.logger.Warn("failed to close console log", "server_id", s.id, "error", err)
			}
		}()
	}

	s.mu.Lock()
	previous := s.session
	s.session = sess
	s.mu.Unlock()

	if previous != nil {
		previous.close()
	}
	return sess
}

// settle waits until the exit of a session whose process is already gone has
// been recorded.
func (m *Manager) settle(ctx context.Context, s *slot, sess *session) {
	s.mu.Lock()
	exited := sess.exited
	s.mu.Unlock()
	if exited || sess.host.Status() != process.StatusExited {
		return
	}
	if err := sess.host.StopWithTimeout(ctx, m.opts.StopTimeout); err != nil && !errors.Is(err, process.ErrDisposed) {
		m.logger.Warn("exit of previous process not recorded", "server_id", s.id, "error", err)
	}
}

func (sess *session) close() {
	sess.expected.Store(true)
	sess.host.Close()
	if sess.logDone != nil {
		<-sess.logDone
	}
}

func (m *Manager) newLogWriter(id string) *console.LogWriter {
	if !m.opts.ConsoleLog.Enabled || m.opts.LogDir == "" {
		return nil
	}
	lw, err := console.NewLogWriter(m.logger, console.LogWriterConfig{
		ServerID:   id,
		LogDir:     filepath.Join(m.opts.LogDir, id),
		MaxSizeMB:  m.opts.ConsoleLog.MaxSize,
		MaxBackups: m.opts.ConsoleLog.MaxBackups,
		MaxAgeDays: m.opts.ConsoleLog.MaxAge,
		Compress:   true,
	})
	if err != nil {
		m.logger.Warn("console log disabled", "server_id", id, "error", err)
		return nil
	}
	return lw
}

// handleExit runs on the exit of every session. Exits of a replaced session
// are recorded but do not touch the persisted state.
func (m *Manager) handleExit(s *slot, sess *session, info process.ExitInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	crashed := !sess.expected.Load() && (info.ExitCode == nil || *info.ExitCode != 0)
	event := state.Event{ServerID: s.id, Type: state.EventExit, PID: &info.ProcessID, ExitCode: info.ExitCode}
	if crashed {
		event.Type = state.EventCrash
		m.logger.Warn("server exited unexpectedly", "server_id", s.id, "pid", info.ProcessID, "exit_code", fmtExitCode(info.ExitCode))
	} else {
		m.logger.Info("server exited", "server_id", s.id, "pid", info.ProcessID, "exit_code", fmtExitCode(info.ExitCode))
	}
	m.record(ctx, event)

	err := m.transition(ctx, s, sess, func(st *state.ServerState) bool {
		sess.exited = true
		now := time.Now()
		st.PID = nil
		st.StoppedAt = &now
		st.Status = state.StatusStopped
		if crashed {
			st.Status = state.StatusCrashed
			st.CrashCountInWindow++
		}
		return true
	})
	if err != nil {
		m.logger.Warn("failed to persist state", "server_id", s.id, "error", err)
	}
}

func fmtExitCode(code *int) any {
	if code == nil {
		return "unknown"
	}
	return *code
}

// transition applies change to the persisted state of s when sess is still
// its current session, then publishes the result. change returns false to
// leave the state untouched.
func (m *Manager) transition(ctx context.Context, s *slot, sess *session, change func(*state.ServerState) bool) error {
	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return nil
	}
	st, err := m.loadState(ctx, s.id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !change(&st) {
		s.mu.Unlock()
		return nil
	}
	st.UpdatedAt = time.Now()
	err = m.opts.States.Update(ctx, st)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	m.publish(st)
	return nil
}

func (m *Manager) loadState(ctx context.Context, id string) (state.ServerState, error) {
	st, err := m.opts.States.Get(ctx, id)
	if errors.Is(err, state.ErrNotFound) {
		return state.ServerState{ID: id, Status: state.StatusStopped}, nil
	}
	return st, err
}

func (m *Manager) publish(st state.ServerState) {
	if m.opts.Publisher == nil {
		return
	}
	m.opts.Publisher.BroadcastToRoom(StatusRoom, websocket.NewMessage("server_status", st))
}

func (m *Manager) record(ctx context.Context, e state.Event) {
	if m.opts.Events == nil {
		return
	}
	if err := m.opts.Events.Record(ctx, e); err != nil {
		m.logger.Warn("failed to record server event", "server_id", e.ServerID, "event", e.Type, "error", err)
	}
}

// Stop kills a running server and waits for its exit. Stopping a server that
// is not running is a no-op.
func (m *Manager) Stop(ctx context.Context, id string) (state.ServerState, error) {
	s, err := m.runtime(id)
	if err != nil {
		return state.ServerState{}, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := m.stop(ctx, s); err != nil {
		return state.ServerState{}, err
	}
	return m.loadState(ctx, id)
}

func (m *Manager) stop(ctx context.Context, s *slot) error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil || !sess.host.Status().Active() {
		if sess != nil {
			m.settle(ctx, s, sess)
		}
		m.logger.Info("server is not running, skipping stop", "server_id", s.id)
		return nil
	}

	pid, _ := sess.host.ProcessID()
	sess.expected.Store(true)
	if err := m.transition(ctx, s, sess, func(st *state.ServerState) bool {
		if sess.exited {
			return false
		}
		st.Status = state.StatusStopping
		return true
	}); err != nil {
		m.logger.Warn("failed to persist state", "server_id", s.id, "error", err)
	}
	m.record(ctx, state.Event{ServerID: s.id, Type: state.EventStop, PID: &pid})

	if err := sess.host.StopWithTimeout(ctx, m.opts.StopTimeout); err != nil {
		m.logger.Error("failed to stop server", "server_id", s.id, "pid", pid, "error", err)
		// The host gave up on the process; record it as stopped so a
		// later Start is not refused.
		m.transition(context.WithoutCancel(ctx), s, sess, func(st *state.ServerState) bool {
			now := time.Now()
			st.Status = state.StatusStopped
			st.PID = nil
			st.StoppedAt = &now
			return true
		})
		return err
	}
	return nil
}

// Restart stops the server if it is running and starts it again.
func (m *Manager) Restart(ctx context.Context, id string) (state.ServerState, error) {
	s, def, err := m.slot(id)
	if err != nil {
		return state.ServerState{}, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := m.stop(ctx, s); err != nil {
		return state.ServerState{}, fmt.Errorf("failed to stop server: %w", err)
	}
	if err := m.start(ctx, s, def); err != nil {
		return state.ServerState{}, fmt.Errorf("failed to start server: %w", err)
	}
	return m.State(ctx, id)
}

// SendCommand validates command, writes it to the server's stdin and records
// it in the command history.
func (m *Manager) SendCommand(ctx context.Context, id, command string) error {
	command, err := console.ValidateCommand(command)
	if err != nil {
		return err
	}
	s, err := m.runtime(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess == nil {
		err = fmt.Errorf("server %s has not been started: %w", id, process.ErrInvalidState)
	} else {
		err = sess.host.SendCommand(ctx, command)
	}

	if m.opts.History != nil {
		if recErr := m.opts.History.Record(context.WithoutCancel(ctx), id, command, err); recErr != nil {
			m.logger.Warn("failed to record command", "server_id", id, "error", recErr)
		}
	}
	return err
}

// Console returns the output of the server's current or last session.
func (m *Manager) Console(ctx context.Context, id string) (iter.Seq[console.Line], error) {
	host, err := m.host(id)
	if err != nil {
		return nil, err
	}
	return host.Output(ctx), nil
}

// Subscribe is the channel form of Console.
func (m *Manager) Subscribe(ctx context.Context, id string, capacity int) (<-chan console.Line, error) {
	host, err := m.host(id)
	if err != nil {
		return nil, err
	}
	return host.Subscribe(ctx, capacity), nil
}

func (m *Manager) host(id string) (*Host, error) {
	s, err := m.runtime(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, fmt.Errorf("server %s has not been started: %w", id, process.ErrInvalidState)
	}
	return s.session.host, nil
}

// State returns the persisted state of a configured server. Servers that were
// never started are reported as stopped.
func (m *Manager) State(ctx context.Context, id string) (state.ServerState, error) {
	if _, ok := m.opts.Definitions.GetByID(id); !ok {
		return state.ServerState{}, fmt.Errorf("server %s: %w", id, process.ErrNotFound)
	}
	return m.loadState(ctx, id)
}

// List returns the state of every configured server.
func (m *Manager) List(ctx context.Context) ([]state.ServerState, error) {
	defs := m.opts.Definitions.GetAll()
	states := make([]state.ServerState, 0, len(defs))
	for _, def := range defs {
		st, err := m.loadState(ctx, def.ID)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// Restore reattaches to every server the persisted state lists as running.
// Processes that are gone or now run something else are marked stopped.
func (m *Manager) Restore(ctx context.Context) error {
	states, err := m.opts.States.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list server states: %w", err)
	}

	var errs []error
	for _, st := range states {
		if !st.Status.Active() {
			continue
		}
		if err := m.restore(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) restore(ctx context.Context, st state.ServerState) error {
	markStopped := func(reason string) error {
		m.logger.Info("not restoring server", "server_id", st.ID, "reason", reason)
		now := time.Now()
		st.Status = state.StatusStopped
		st.PID = nil
		st.StoppedAt = &now
		st.UpdatedAt = now
		if err := m.opts.States.Update(ctx, st); err != nil {
			return err
		}
		m.publish(st)
		return nil
	}

	if st.PID == nil {
		return markStopped("no pid recorded")
	}
	pid := *st.PID

	s, def, err := m.slot(st.ID)
	if errors.Is(err, process.ErrNotFound) {
		return markStopped("server is no longer configured")
	}
	if err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	host, err := m.opts.Factory.FromDefinition(def)
	if err != nil {
		return markStopped(err.Error())
	}
	if err := host.Reattach(ctx, pid); err != nil {
		host.Close()
		m.record(ctx, state.Event{ServerID: st.ID, Type: state.EventStop, PID: &pid, Message: "reattach failed: " + err.Error()})
		return markStopped(err.Error())
	}

	sess := m.attach(s, host)
	if err := m.transition(ctx, s, sess, func(cur *state.ServerState) bool {
		if sess.exited {
			return false
		}
		cur.Status = state.StatusRunning
		cur.PID = &pid
		return true
	}); err != nil {
		m.logger.Warn("failed to persist state", "server_id", st.ID, "error", err)
	}
	m.record(ctx, state.Event{ServerID: st.ID, Type: state.EventReattach, PID: &pid})
	m.logger.Info("reattached to server", "server_id", st.ID, "pid", pid)
	return nil
}

// Forget drops the runtime and the persisted state of a server that is not
// running, ahead of removing its definition.
func (m *Manager) Forget(ctx context.Context, id string) error {
	s, _, err := m.slot(id)
	if err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil && sess.host.Status().Active() {
		return fmt.Errorf("server %s is running: %w", id, process.ErrInvalidState)
	}
	if sess != nil {
		sess.close()
	}

	m.mu.Lock()
	delete(m.slots, id)
	m.mu.Unlock()

	if err := m.opts.States.Delete(ctx, id); err != nil && !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("failed to delete state of server %s: %w", id, err)
	}
	m.logger.Info("server forgotten", "server_id", id)
	return nil
}

// Close stops every running server and releases their hosts.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	slots := make([]*slot, 0, len(m.slots))
	for _, s := range m.slots {
		slots = append(slots, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.opMu.Lock()
			defer s.opMu.Unlock()

			s.mu.Lock()
			sess := s.session
			s.mu.Unlock()
			if sess != nil {
				sess.close()
			}
		}()
	}
	wg.Wait()
	m.logger.Info("server manager closed")
}
