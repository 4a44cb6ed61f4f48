package gdb

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joestump/gdb-mcp/internal/mi"
)

// --- Fake supervisor ---

// fakeSupervisor satisfies the supervisor interface without a child
// process. Tests script its behavior through onWrite and the channels.
type fakeSupervisor struct {
	mu      sync.Mutex
	written []string

	results chan *mi.ResultRecord
	oob     chan mi.Record
	done    chan struct{}

	running     bool
	interrupted bool

	// onWrite, when set, is invoked synchronously for each command line.
	onWrite func(line string)
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		results: make(chan *mi.ResultRecord, 16),
		oob:     make(chan mi.Record, 16),
		done:    make(chan struct{}),
	}
}

func (f *fakeSupervisor) WriteCommand(line string) error {
	f.mu.Lock()
	f.written = append(f.written, line)
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(line)
	}
	return nil
}

func (f *fakeSupervisor) Results() <-chan *mi.ResultRecord { return f.results }
func (f *fakeSupervisor) OOB() <-chan mi.Record            { return f.oob }
func (f *fakeSupervisor) Done() <-chan struct{}            { return f.done }

func (f *fakeSupervisor) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeSupervisor) setRunning(v bool) {
	f.mu.Lock()
	f.running = v
	f.mu.Unlock()
}

func (f *fakeSupervisor) Interrupt() error {
	f.mu.Lock()
	f.interrupted = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSupervisor) Kill() {}

func (f *fakeSupervisor) lastWritten(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		t.Fatal("no command written")
	}
	return f.written[len(f.written)-1]
}

// tokenOf extracts the numeric token prefix of a written command line.
func tokenOf(t *testing.T, line string) uint64 {
	t.Helper()
	idx := strings.IndexByte(line, '-')
	if idx <= 0 {
		t.Fatalf("command line %q has no token", line)
	}
	token, err := strconv.ParseUint(line[:idx], 10, 64)
	if err != nil {
		t.Fatalf("bad token in %q: %v", line, err)
	}
	return token
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	return logrus.NewEntry(log)
}

func doneResult(token uint64) *mi.ResultRecord {
	rec, _ := mi.ParseLine(strconv.FormatUint(token, 10) + "^done\n").(*mi.ResultRecord)
	return rec
}

// --- Tests ---

func TestExecuteMatchesToken(t *testing.T) {
	fake := newFakeSupervisor()
	fake.onWrite = func(line string) {
		token := tokenOf(t, line)
		rec, _ := mi.ParseLine(strconv.FormatUint(token, 10) + `^done,foo="bar"` + "\n").(*mi.ResultRecord)
		fake.results <- rec
	}
	s := NewSession("test", fake, testLogger())

	rec, err := s.Execute(context.Background(), mi.ExecRun())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !rec.HasToken {
		t.Fatal("result should carry the command token")
	}
	if rec.Class != mi.ResultDone {
		t.Fatalf("expected done, got %s", rec.Class)
	}
	if got := rec.Results.GetString("foo"); got != "bar" {
		t.Fatalf("expected foo=bar, got %q", got)
	}
	if got := fake.lastWritten(t); got != "1-exec-run\n" {
		t.Fatalf("unexpected wire line %q", got)
	}
}

func TestExecuteBusyWhileCommandInFlight(t *testing.T) {
	fake := newFakeSupervisor()
	s := NewSession("test", fake, testLogger())

	started := make(chan uint64, 1)
	fake.onWrite = func(line string) {
		started <- tokenOf(t, line)
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.Execute(context.Background(), mi.ExecRun())
		firstDone <- err
	}()

	token := <-started

	// Second command while the first awaits its result.
	if _, err := s.Execute(context.Background(), mi.BreakpointsList()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	// Nothing extra was written to the child.
	fake.mu.Lock()
	writes := len(fake.written)
	fake.mu.Unlock()
	if writes != 1 {
		t.Fatalf("busy command must not reach the child, saw %d writes", writes)
	}

	fake.results <- doneResult(token)
	if err := <-firstDone; err != nil {
		t.Fatalf("first execute: %v", err)
	}
}

func TestExecuteBusyWhileInferiorRunning(t *testing.T) {
	fake := newFakeSupervisor()
	fake.setRunning(true)
	s := NewSession("test", fake, testLogger())

	if _, err := s.Execute(context.Background(), mi.BreakpointsList()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestExecuteFlushAcceptsUntokenedResult(t *testing.T) {
	fake := newFakeSupervisor()
	fake.onWrite = func(string) {
		rec, _ := mi.ParseLine("^done\n").(*mi.ResultRecord)
		fake.results <- rec
	}
	s := NewSession("test", fake, testLogger())

	rec, err := s.Execute(context.Background(), mi.Empty())
	if err != nil {
		t.Fatalf("flush execute: %v", err)
	}
	if rec.HasToken {
		t.Fatal("banner flush reply should be untokened")
	}
}

func TestExecuteRejectsUntokenedResultForRealCommand(t *testing.T) {
	fake := newFakeSupervisor()
	fake.onWrite = func(string) {
		rec, _ := mi.ParseLine("^done\n").(*mi.ResultRecord)
		fake.results <- rec
	}
	s := NewSession("test", fake, testLogger())

	_, err := s.Execute(context.Background(), mi.ExecRun())
	var invalidArg *InvalidArgumentError
	if !errors.As(err, &invalidArg) {
		t.Fatalf("expected InvalidArgumentError, got %v", err)
	}
}

func TestExecuteRejectsUnexpectedHigherToken(t *testing.T) {
	fake := newFakeSupervisor()
	fake.onWrite = func(string) {
		fake.results <- doneResult(99)
	}
	s := NewSession("test", fake, testLogger())

	_, err := s.Execute(context.Background(), mi.ExecRun())
	var invalidArg *InvalidArgumentError
	if !errors.As(err, &invalidArg) {
		t.Fatalf("expected InvalidArgumentError, got %v", err)
	}
}

func TestExecuteTimeoutThenRecovers(t *testing.T) {
	fake := newFakeSupervisor()
	s := NewSession("test", fake, testLogger())

	// First command: no reply in time.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Execute(ctx, mi.ExecRun()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The stale reply arrives after the caller gave up.
	fake.results <- doneResult(1)

	// Next command drains the stale record and matches its own token.
	fake.onWrite = func(line string) {
		if token := tokenOf(t, line); token == 2 {
			fake.results <- doneResult(2)
		}
	}
	rec, err := s.Execute(context.Background(), mi.BreakpointsList())
	if err != nil {
		t.Fatalf("execute after timeout: %v", err)
	}
	if rec.Token != 2 {
		t.Fatalf("expected token 2, got %d", rec.Token)
	}
}

func TestExecuteDiscardsStaleResultDuringAwait(t *testing.T) {
	fake := newFakeSupervisor()
	s := NewSession("test", fake, testLogger())

	// Time out command 1 and let command 2 receive the stale record
	// mid-await, followed by its own.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Execute(ctx, mi.ExecRun()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	fake.onWrite = func(line string) {
		fake.results <- doneResult(1) // stale
		fake.results <- doneResult(2) // matching
	}
	rec, err := s.Execute(context.Background(), mi.BreakpointsList())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.Token != 2 {
		t.Fatalf("expected token 2, got %d", rec.Token)
	}
}

func TestExecuteQuitOnClosedChannel(t *testing.T) {
	fake := newFakeSupervisor()
	close(fake.results)
	s := NewSession("test", fake, testLogger())

	if _, err := s.Execute(context.Background(), mi.ExecRun()); !errors.Is(err, ErrQuit) {
		t.Fatalf("expected ErrQuit, got %v", err)
	}
}

func TestExecuteConsoleCapturesStreamLines(t *testing.T) {
	fake := newFakeSupervisor()
	s := NewSession("test", fake, testLogger())

	fake.onWrite = func(line string) {
		// Console output lands between command write and result receipt;
		// the oob forwarder hands it to the engine.
		s.NoteOOB(&mi.StreamRecord{Kind: mi.StreamConsole, Data: "row one\n"})
		s.NoteOOB(&mi.StreamRecord{Kind: mi.StreamLog, Data: "ignored\n"})
		s.NoteOOB(&mi.StreamRecord{Kind: mi.StreamConsole, Data: "row two\n"})
		fake.results <- doneResult(tokenOf(t, line))
	}

	_, lines, err := s.ExecuteConsole(context.Background(), mi.CLIExec("info proc mappings"))
	if err != nil {
		t.Fatalf("execute console: %v", err)
	}
	if len(lines) != 2 || lines[0] != "row one\n" || lines[1] != "row two\n" {
		t.Fatalf("unexpected console capture %q", lines)
	}

	// Outside a capture window console records are dropped.
	s.NoteOOB(&mi.StreamRecord{Kind: mi.StreamConsole, Data: "late\n"})
	_, lines, err = s.ExecuteConsole(context.Background(), mi.CLIExec("info proc mappings"))
	if err != nil {
		t.Fatalf("execute console: %v", err)
	}
	for _, l := range lines {
		if l == "late\n" {
			t.Fatal("pre-command console output leaked into capture")
		}
	}
}

func TestTokensAreMonotonicPerSession(t *testing.T) {
	fake := newFakeSupervisor()
	fake.onWrite = func(line string) {
		fake.results <- doneResult(tokenOf(t, line))
	}
	s := NewSession("test", fake, testLogger())

	var tokens []uint64
	for i := 0; i < 3; i++ {
		rec, err := s.Execute(context.Background(), mi.BreakpointsList())
		if err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
		tokens = append(tokens, rec.Token)
	}
	for i := 1; i < len(tokens); i++ {
		if tokens[i] <= tokens[i-1] {
			t.Fatalf("tokens not monotonic: %v", tokens)
		}
	}
}

func TestInterruptUsesSignalPath(t *testing.T) {
	fake := newFakeSupervisor()
	fake.setRunning(true)
	s := NewSession("test", fake, testLogger())

	if err := s.Interrupt(); err != nil {
		t.Fatalf("interrupt: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !fake.interrupted {
		t.Fatal("expected supervisor interrupt to be invoked")
	}
}
