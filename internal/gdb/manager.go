package gdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joestump/gdb-mcp/internal/config"
	"github.com/joestump/gdb-mcp/internal/hub"
	"github.com/joestump/gdb-mcp/internal/mi"
	"github.com/joestump/gdb-mcp/internal/models"
)

// Manager is the process-wide session registry. It brokers concurrent
// tool invocations against the set of live sessions and implements the
// high-level debugging operations the tool surface exposes.
type Manager struct {
	cfg config.Config
	log *logrus.Entry
	hub *hub.Hub

	mu       sync.RWMutex
	sessions map[string]*sessionHandle
}

// sessionHandle pairs a session engine with its registry bookkeeping.
type sessionHandle struct {
	info models.Session
	sess *Session
	sup  *Supervisor
}

// NewManager creates an empty registry.
func NewManager(cfg config.Config, log *logrus.Entry, h *hub.Hub) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      log,
		hub:      h,
		sessions: make(map[string]*sessionHandle),
	}
}

// CreateSession spawns a new gdb child and registers a session engine
// for it. A flush command is issued before returning so the welcome
// banner is drained and the child is known to answer.
func (m *Manager) CreateSession(opts SpawnOptions) (string, error) {
	sessionID := uuid.NewString()
	log := m.log.WithField("session", sessionID)

	if opts.GDBPath == "" {
		opts.GDBPath = m.cfg.GDBPath
	}

	sup, err := Spawn(opts, log)
	if err != nil {
		return "", err
	}

	handle := &sessionHandle{
		info: models.Session{
			ID:        sessionID,
			Status:    models.StatusCreated,
			Program:   opts.Program,
			CreatedAt: time.Now().UTC(),
		},
		sess: NewSession(sessionID, sup, log),
		sup:  sup,
	}

	m.mu.Lock()
	m.sessions[sessionID] = handle
	m.mu.Unlock()

	go m.forwardOOB(handle)

	if _, err := m.sendCommand(sessionID, mi.Empty()); err != nil {
		_ = m.CloseSession(sessionID)
		return "", fmt.Errorf("drain gdb banner: %w", err)
	}

	return sessionID, nil
}

// GetSession returns a copy of one session's record.
func (m *Manager) GetSession(sessionID string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handle, ok := m.sessions[sessionID]
	if !ok {
		return models.Session{}, &NotFoundError{ID: sessionID}
	}
	return handle.info, nil
}

// GetAllSessions returns copies of every live session record.
func (m *Manager) GetAllSessions() []models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]models.Session, 0, len(m.sessions))
	for _, handle := range m.sessions {
		sessions = append(sessions, handle.info)
	}
	return sessions
}

// CloseSession tears a session down: gdb-exit with timeout, then an
// unconditional kill, then the reader is joined and the registry entry
// removed. The reverse of setup.
func (m *Manager) CloseSession(sessionID string) error {
	handle, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CommandTimeout)
	defer cancel()
	if _, err := handle.sess.Execute(ctx, mi.Exit()); err != nil {
		m.log.Warnf("gdb-exit for session %s failed (%v), forcing termination", sessionID, err)
	}

	handle.sup.Kill()
	<-handle.sup.Done()

	m.mu.Lock()
	handle.info.Status = models.StatusTerminated
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	m.hub.Close(sessionID)
	return nil
}

// CloseAll tears down every session; used during server shutdown.
func (m *Manager) CloseAll() {
	for _, s := range m.GetAllSessions() {
		if err := m.CloseSession(s.ID); err != nil {
			m.log.Warnf("close session %s: %v", s.ID, err)
		}
	}
}

// forwardOOB pumps a session's out-of-band records: the engine sees each
// one first (console capture), then the observed state transitions are
// applied, then subscribers get a rendered line. When the channel closes
// the child is gone and the session is unregistered.
func (m *Manager) forwardOOB(handle *sessionHandle) {
	id := handle.info.ID
	for rec := range handle.sup.OOB() {
		handle.sess.NoteOOB(rec)

		if async, ok := rec.(*mi.AsyncRecord); ok {
			switch async.Class {
			case mi.AsyncStopped:
				m.setStatus(id, models.StatusStopped)
			case mi.AsyncRunningClass:
				m.setStatus(id, models.StatusRunning)
			}
		}

		m.hub.Publish(id, renderOOB(rec))
	}

	// End of stream: the child exited. Drop the registry entry so later
	// operations report NotFound.
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		m.log.Infof("session %s removed: gdb exited", id)
	}
	m.mu.Unlock()
	m.hub.Close(id)
}

// setStatus records an observed state transition.
func (m *Manager) setStatus(sessionID string, status models.SessionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handle, ok := m.sessions[sessionID]; ok {
		handle.info.Status = status
	}
}

// renderOOB formats an out-of-band record as one display line.
func renderOOB(rec mi.Record) string {
	switch r := rec.(type) {
	case *mi.AsyncRecord:
		if r.Results.Len() == 0 {
			return fmt.Sprintf("[%s] %s", r.Kind, r.Class)
		}
		return fmt.Sprintf("[%s] %s %s", r.Kind, r.Class, r.Results.Dump())
	case *mi.StreamRecord:
		return fmt.Sprintf("[%s] %s", r.Kind, strings.TrimRight(r.Data, "\n"))
	default:
		return ""
	}
}

// lookup fetches a handle without holding the registry lock across the
// caller's await.
func (m *Manager) lookup(sessionID string) (*sessionHandle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handle, ok := m.sessions[sessionID]
	if !ok {
		return nil, &NotFoundError{ID: sessionID}
	}
	return handle, nil
}

// sendCommand runs one MI command on a session under the configured
// timeout and maps the result into the error taxonomy: a ^error class
// becomes a GDBError, a dead engine unregisters the session.
func (m *Manager) sendCommand(sessionID string, cmd mi.Command) (*mi.ResultRecord, error) {
	handle, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CommandTimeout)
	defer cancel()

	rec, err := handle.sess.Execute(ctx, cmd)
	if err != nil {
		if errors.Is(err, ErrQuit) {
			m.mu.Lock()
			delete(m.sessions, sessionID)
			m.mu.Unlock()
		}
		return nil, err
	}
	if rec.Class == mi.ResultError {
		msg := rec.Results.GetString("msg")
		if msg == "" {
			msg = "command failed"
		}
		return nil, &GDBError{Msg: msg}
	}
	return rec, nil
}

// StartDebugging launches the inferior with -exec-run.
func (m *Manager) StartDebugging(sessionID string) (string, error) {
	rec, err := m.sendCommand(sessionID, mi.ExecRun())
	if err != nil {
		return "", err
	}
	m.setStatus(sessionID, models.StatusRunning)
	return rec.Results.Dump(), nil
}

// StopDebugging interrupts the inferior. While it is running no MI
// command can be submitted, so the signal path is used; when it is
// already at a prompt the MI command works.
func (m *Manager) StopDebugging(sessionID string) (string, error) {
	handle, err := m.lookup(sessionID)
	if err != nil {
		return "", err
	}
	if handle.sess.IsRunning() {
		if err := handle.sess.Interrupt(); err != nil {
			return "", fmt.Errorf("interrupt gdb: %w", err)
		}
		return "interrupt signal delivered", nil
	}
	rec, err := m.sendCommand(sessionID, mi.ExecInterrupt())
	if err != nil {
		return "", err
	}
	m.setStatus(sessionID, models.StatusStopped)
	return rec.Results.Dump(), nil
}

// ContinueExecution resumes the inferior with -exec-continue.
func (m *Manager) ContinueExecution(sessionID string) (string, error) {
	rec, err := m.sendCommand(sessionID, mi.ExecContinue())
	if err != nil {
		return "", err
	}
	m.setStatus(sessionID, models.StatusRunning)
	return rec.Results.Dump(), nil
}

// StepExecution steps into the next source line.
func (m *Manager) StepExecution(sessionID string) (string, error) {
	rec, err := m.sendCommand(sessionID, mi.ExecStep())
	if err != nil {
		return "", err
	}
	return rec.Results.Dump(), nil
}

// NextExecution steps over the next source line.
func (m *Manager) NextExecution(sessionID string) (string, error) {
	rec, err := m.sendCommand(sessionID, mi.ExecNext())
	if err != nil {
		return "", err
	}
	return rec.Results.Dump(), nil
}

// SetBreakpoint inserts a source breakpoint and returns its decoded
// record.
func (m *Manager) SetBreakpoint(sessionID, file string, line int) (models.Breakpoint, error) {
	rec, err := m.sendCommand(sessionID, mi.InsertBreakpointAtLine(file, line))
	if err != nil {
		return models.Breakpoint{}, err
	}
	bp, err := models.DecodeBreakpointResult(rec.Results)
	if err != nil {
		return models.Breakpoint{}, &ParseError{Msg: err.Error()}
	}
	return bp, nil
}

// DeleteBreakpoint removes the breakpoints named in a comma-separated
// number list.
func (m *Manager) DeleteBreakpoint(sessionID, breakpoints string) (string, error) {
	var numbers []mi.BreakpointNumber
	for _, part := range strings.Split(breakpoints, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := mi.ParseBreakpointNumber(part)
		if err != nil {
			return "", &InvalidArgumentError{Msg: err.Error()}
		}
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return "", &InvalidArgumentError{Msg: "no breakpoint numbers given"}
	}
	rec, err := m.sendCommand(sessionID, mi.DeleteBreakpoints(numbers))
	if err != nil {
		return "", err
	}
	return rec.Results.Dump(), nil
}

// GetBreakpoints lists all breakpoints in the session.
func (m *Manager) GetBreakpoints(sessionID string) ([]models.Breakpoint, error) {
	rec, err := m.sendCommand(sessionID, mi.BreakpointsList())
	if err != nil {
		return nil, err
	}
	bps, err := models.DecodeBreakpointTable(rec.Results)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return bps, nil
}

// SetWatchpoint inserts a watchpoint on an expression.
func (m *Manager) SetWatchpoint(sessionID, expression string, mode mi.WatchMode) (string, error) {
	switch mode {
	case mi.WatchWrite, mi.WatchRead, mi.WatchAccess:
	default:
		return "", &InvalidArgumentError{Msg: fmt.Sprintf("unknown watch mode %q", mode)}
	}
	rec, err := m.sendCommand(sessionID, mi.InsertWatchpoint(expression, mode))
	if err != nil {
		return "", err
	}
	return rec.Results.Dump(), nil
}

// GetStackFrames lists the full backtrace of the stopped inferior.
func (m *Manager) GetStackFrames(sessionID string) ([]models.StackFrame, error) {
	rec, err := m.sendCommand(sessionID, mi.StackListFrames(nil, nil))
	if err != nil {
		return nil, err
	}
	frames, err := models.DecodeStackFrames(rec.Results)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return frames, nil
}

// GetLocalVariables lists the local variables of one frame.
func (m *Manager) GetLocalVariables(sessionID string, frame int) ([]models.Variable, error) {
	rec, err := m.sendCommand(sessionID, mi.StackListVariables(nil, &frame))
	if err != nil {
		return nil, err
	}
	variables, err := models.DecodeVariables(rec.Results)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return variables, nil
}

// GetRegisterNames returns the register name table; the slot index is
// the register number.
func (m *Manager) GetRegisterNames(sessionID string) ([]string, error) {
	rec, err := m.sendCommand(sessionID, mi.DataListRegisterNames())
	if err != nil {
		return nil, err
	}
	names, err := models.DecodeRegisterNames(rec.Results)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return names, nil
}

// GetRegisters reads register values (optionally a subset) and binds
// names from the name table.
func (m *Manager) GetRegisters(sessionID string, registers []int) ([]models.Register, error) {
	names, err := m.GetRegisterNames(sessionID)
	if err != nil {
		return nil, err
	}
	rec, err := m.sendCommand(sessionID, mi.DataListRegisterValues(registers))
	if err != nil {
		return nil, err
	}
	regs, err := models.DecodeRegisterValues(rec.Results, names)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return regs, nil
}

// ReadMemory reads count bytes at an address expression.
func (m *Manager) ReadMemory(sessionID, address string, count uint64, offset int64) ([]models.MemoryBlock, error) {
	if count == 0 {
		return nil, &InvalidArgumentError{Msg: "count must be positive"}
	}
	rec, err := m.sendCommand(sessionID, mi.DataReadMemoryBytes(address, count, offset))
	if err != nil {
		return nil, err
	}
	blocks, err := models.DecodeMemoryBlocks(rec.Results)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return blocks, nil
}

// GetMemoryMappings reads the inferior's address-space map by wrapping
// the CLI "info proc mappings" command and parsing its console output.
func (m *Manager) GetMemoryMappings(sessionID string) ([]models.MemoryMapping, error) {
	handle, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CommandTimeout)
	defer cancel()

	rec, lines, err := handle.sess.ExecuteConsole(ctx, mi.CLIExec("info proc mappings"))
	if err != nil {
		return nil, err
	}
	if rec.Class == mi.ResultError {
		msg := rec.Results.GetString("msg")
		if msg == "" {
			msg = "info proc mappings failed"
		}
		return nil, &GDBError{Msg: msg}
	}

	var rows []string
	for _, chunk := range lines {
		rows = append(rows, strings.Split(chunk, "\n")...)
	}
	return models.ParseMemoryMappings(rows), nil
}

// EvaluateExpression evaluates an expression in the current frame.
func (m *Manager) EvaluateExpression(sessionID, expression string) (string, error) {
	if expression == "" {
		return "", &InvalidArgumentError{Msg: "expression must not be empty"}
	}
	rec, err := m.sendCommand(sessionID, mi.DataEvaluateExpression(expression))
	if err != nil {
		return "", err
	}
	return rec.Results.GetString("value"), nil
}

// DisassembleFile disassembles around a source location.
func (m *Manager) DisassembleFile(sessionID, file string, line, lines int) (string, error) {
	rec, err := m.sendCommand(sessionID, mi.DataDisassembleFile(file, line, lines, mi.DisassemblyOnly))
	if err != nil {
		return "", err
	}
	return rec.Results.Dump(), nil
}

// DisassembleRange disassembles an address range.
func (m *Manager) DisassembleRange(sessionID string, start, end models.Address) (string, error) {
	if end <= start {
		return "", &InvalidArgumentError{Msg: "end address must be above start"}
	}
	rec, err := m.sendCommand(sessionID, mi.DataDisassembleAddress(uint64(start), uint64(end), mi.DisassemblyOnly))
	if err != nil {
		return "", err
	}
	return rec.Results.Dump(), nil
}
