package gdb

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/joestump/gdb-mcp/internal/mi"
)

// supervisor is the slice of Supervisor the session engine depends on.
// Tests substitute a fake; production code always passes *Supervisor.
type supervisor interface {
	WriteCommand(line string) error
	Results() <-chan *mi.ResultRecord
	OOB() <-chan mi.Record
	Done() <-chan struct{}
	IsRunning() bool
	Interrupt() error
	Kill()
}

// Session drives one gdb child through the request/response half of the
// MI protocol. Tokens are assigned per session and matched against the
// result stream; at most one command is in flight at a time.
type Session struct {
	ID string

	sup supervisor
	log *logrus.Entry

	mu    sync.Mutex
	busy  bool
	token uint64

	consoleMu  sync.Mutex
	collecting bool
	console    []string
}

// NewSession wraps a supervisor in a session engine.
func NewSession(id string, sup supervisor, log *logrus.Entry) *Session {
	return &Session{ID: id, sup: sup, log: log}
}

// Execute writes one command and returns its matching result record.
// It fails with ErrBusy when a command is already pending or the
// inferior is running, and with ErrTimeout when ctx expires first. A
// timed-out command's token stays live: its late result is drained and
// discarded before the next command is written.
func (s *Session) Execute(ctx context.Context, cmd mi.Command) (*mi.ResultRecord, error) {
	s.mu.Lock()
	if s.busy || s.sup.IsRunning() {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	s.token++
	token := s.token
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	s.drainStale()

	if err := s.sup.WriteCommand(cmd.Encode(token)); err != nil {
		return nil, err
	}

	for {
		select {
		case rec, ok := <-s.sup.Results():
			if !ok {
				return nil, ErrQuit
			}
			switch {
			case rec.HasToken && rec.Token == token:
				return rec, nil
			case !rec.HasToken && cmd.Operation == "":
				// Flush commands carry no token; neither does their reply.
				return rec, nil
			case rec.HasToken && rec.Token < token:
				// Late reply to a command that already timed out.
				s.log.Warnf("discarding stale result for token %d", rec.Token)
			default:
				return nil, &InvalidArgumentError{
					Msg: "unexpected command token in result record",
				}
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		}
	}
}

// ExecuteLater fires a command whose result nobody needs; the reply is
// awaited (so tokens stay in step) and discarded.
func (s *Session) ExecuteLater(cmd mi.Command) {
	go func() {
		if _, err := s.Execute(context.Background(), cmd); err != nil {
			s.log.Debugf("deferred command %q failed: %v", cmd.Operation, err)
		}
	}()
}

// ExecuteConsole runs a command while capturing the console stream lines
// gdb emits before the result record arrives. This is how CLI commands
// wrapped in interpreter-exec return their output.
func (s *Session) ExecuteConsole(ctx context.Context, cmd mi.Command) (*mi.ResultRecord, []string, error) {
	s.consoleMu.Lock()
	s.collecting = true
	s.console = nil
	s.consoleMu.Unlock()

	rec, err := s.Execute(ctx, cmd)

	s.consoleMu.Lock()
	s.collecting = false
	lines := s.console
	s.console = nil
	s.consoleMu.Unlock()

	return rec, lines, err
}

// NoteOOB observes one out-of-band record on behalf of the engine. The
// registry's forwarder calls this for every record before handing it to
// subscribers.
func (s *Session) NoteOOB(rec mi.Record) {
	stream, ok := rec.(*mi.StreamRecord)
	if !ok || stream.Kind != mi.StreamConsole {
		return
	}
	s.consoleMu.Lock()
	if s.collecting {
		s.console = append(s.console, stream.Data)
	}
	s.consoleMu.Unlock()
}

// IsRunning reports the engine's view of the inferior.
func (s *Session) IsRunning() bool {
	return s.sup.IsRunning()
}

// Interrupt stops a running inferior via the supervisor's signal path.
// While the inferior runs no MI command can be submitted, so
// -exec-interrupt is not an option here.
func (s *Session) Interrupt() error {
	return s.sup.Interrupt()
}

// drainStale empties any buffered results left over from commands that
// timed out; each is logged so protocol skew is visible.
func (s *Session) drainStale() {
	for {
		select {
		case rec, ok := <-s.sup.Results():
			if !ok {
				return
			}
			s.log.Warnf("discarding stale result (token %d, class %s)", rec.Token, rec.Class)
		default:
			return
		}
	}
}
