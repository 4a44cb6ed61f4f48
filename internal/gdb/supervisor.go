package gdb

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/joestump/gdb-mcp/internal/mi"
)

const (
	resultChannelCap = 64
	oobChannelCap    = 256
)

// SpawnOptions configures the gdb child process for a new session. Apart
// from GDBPath, which selects the executable, every field maps to gdb
// command-line arguments; zero values are omitted.
type SpawnOptions struct {
	// GDBPath overrides the configured debugger executable.
	GDBPath string
	// Program is the executable to debug.
	Program string
	// NH skips ~/.gdbinit (--nh).
	NH bool
	// NX skips all .gdbinit files (--nx).
	NX bool
	// Quiet suppresses the version banner (--quiet).
	Quiet bool
	// CD changes the working directory (--cd=DIR).
	CD string
	// BPS sets the remote serial baud rate (-b BPS).
	BPS uint32
	// SymbolFile reads symbols from a separate file (--symbols=FILE).
	SymbolFile string
	// CoreFile analyzes a core dump (--core=FILE).
	CoreFile string
	// ProcID attaches to a running process (--pid=PID).
	ProcID uint32
	// CommandFile executes gdb commands from a file (--command=FILE).
	CommandFile string
	// SourceDir adds a source search directory (--directory=DIR).
	SourceDir string
	// Args are passed to the inferior (--args PROGRAM ARGS...).
	Args []string
	// TTY redirects inferior I/O (--tty=TTY).
	TTY string
}

// buildArgs assembles the gdb argument vector. The MI interpreter flag
// always comes first.
func (o SpawnOptions) buildArgs() ([]string, error) {
	args := []string{"--interpreter=mi"}
	if o.NH {
		args = append(args, "--nh")
	}
	if o.NX {
		args = append(args, "--nx")
	}
	if o.Quiet {
		args = append(args, "--quiet")
	}
	if o.CD != "" {
		args = append(args, "--cd="+o.CD)
	}
	if o.BPS != 0 {
		args = append(args, "-b", strconv.FormatUint(uint64(o.BPS), 10))
	}
	if o.SymbolFile != "" {
		args = append(args, "--symbols="+o.SymbolFile)
	}
	if o.CoreFile != "" {
		args = append(args, "--core="+o.CoreFile)
	}
	if o.ProcID != 0 {
		args = append(args, "--pid="+strconv.FormatUint(uint64(o.ProcID), 10))
	}
	if o.CommandFile != "" {
		args = append(args, "--command="+o.CommandFile)
	}
	if o.SourceDir != "" {
		args = append(args, "--directory="+o.SourceDir)
	}
	if o.TTY != "" {
		args = append(args, "--tty="+o.TTY)
	}
	if len(o.Args) > 0 {
		if o.Program == "" {
			return nil, &InvalidArgumentError{Msg: "program path is required when args are provided"}
		}
		args = append(args, "--args", o.Program)
		args = append(args, o.Args...)
	} else if o.Program != "" {
		args = append(args, o.Program)
	}
	return args, nil
}

// Supervisor owns one gdb child process: its standard streams, the
// reader task that parses stdout, and the liveness flag. The reader is
// the sole producer on the result and out-of-band channels.
type Supervisor struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	results chan *mi.ResultRecord
	oob     chan mi.Record
	done    chan struct{}

	running atomic.Bool
	log     *logrus.Entry
}

// Spawn starts gdb with the MI interpreter and launches the reader task.
func Spawn(opts SpawnOptions, log *logrus.Entry) (*Supervisor, error) {
	args, err := opts.buildArgs()
	if err != nil {
		return nil, err
	}

	gdbPath := opts.GDBPath
	if gdbPath == "" {
		gdbPath = "gdb"
	}

	cmd := exec.Command(gdbPath, args...)
	// Own process group so an interrupt reaches gdb and the inferior.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open gdb stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open gdb stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open gdb stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, &GDBError{Msg: fmt.Sprintf("failed to start gdb process: %v", err)}
	}
	log.WithField("pid", cmd.Process.Pid).Infof("spawned %s %v", gdbPath, args)

	s := &Supervisor{
		cmd:     cmd,
		stdin:   stdin,
		results: make(chan *mi.ResultRecord, resultChannelCap),
		oob:     make(chan mi.Record, oobChannelCap),
		done:    make(chan struct{}),
		log:     log,
	}

	go s.readLoop(stdout)
	go s.drainStderr(stderr)

	return s, nil
}

// Results is the channel of synchronous result records.
func (s *Supervisor) Results() <-chan *mi.ResultRecord {
	return s.results
}

// OOB is the channel of out-of-band records (async events and streams).
func (s *Supervisor) OOB() <-chan mi.Record {
	return s.oob
}

// Done is closed when the reader task has observed end-of-stream.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// IsRunning reports whether the inferior is currently executing, as
// observed from the output stream.
func (s *Supervisor) IsRunning() bool {
	return s.running.Load()
}

// WriteCommand emits one encoded command line to the child's stdin. The
// write guard keeps concurrent callers from interleaving partial lines.
func (s *Supervisor) WriteCommand(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.log.Infof("writing gdb command: %s", line)
	if _, err := io.WriteString(s.stdin, line); err != nil {
		return fmt.Errorf("write gdb command: %w", err)
	}
	return nil
}

// readLoop consumes stdout line by line, feeds the parser, maintains the
// liveness flag, and fans records out to the two channels. Both channels
// are closed at end-of-stream.
func (s *Supervisor) readLoop(stdout io.Reader) {
	defer close(s.done)
	defer close(s.oob)
	defer close(s.results)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.log.Debugf("gdb: %s", line)

		switch rec := mi.ParseLine(line).(type) {
		case *mi.ResultRecord:
			switch rec.Class {
			case mi.ResultRunning:
				s.running.Store(true)
			case mi.ResultError:
				// gdb sometimes claims to be running only to stop again
				// on its own; an error result settles it either way.
				s.running.Store(false)
			}
			s.results <- rec
		case *mi.AsyncRecord:
			if rec.Class == mi.AsyncStopped {
				s.running.Store(false)
			}
			s.sendOOB(rec)
		case *mi.StreamRecord:
			s.sendOOB(rec)
		case mi.Prompt:
			// The "(gdb) " sentinel carries no information.
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warnf("gdb stdout closed: %v", err)
	}

	// Reap the child once its output is gone; ignore the exit status.
	_ = s.cmd.Wait()
}

// sendOOB forwards an out-of-band record without ever blocking the
// reader. Subscribers that fall behind lose records, which they must
// tolerate anyway.
func (s *Supervisor) sendOOB(rec mi.Record) {
	select {
	case s.oob <- rec:
	default:
		s.log.Warn("out-of-band channel full, dropping record")
	}
}

// drainStderr forwards the child's diagnostics to the log.
func (s *Supervisor) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		s.log.Debugf("gdb stderr: %s", scanner.Text())
	}
}

// Interrupt delivers SIGINT to the child's process group, stopping the
// inferior the way a ^C at a gdb prompt would.
func (s *Supervisor) Interrupt() error {
	if s.cmd.Process == nil {
		return ErrQuit
	}
	return syscall.Kill(-s.cmd.Process.Pid, syscall.SIGINT)
}

// Kill terminates the child unconditionally. Errors are ignored: the
// process may already be gone.
func (s *Supervisor) Kill() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}
