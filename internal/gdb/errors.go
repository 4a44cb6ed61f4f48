// Package gdb owns the child debugger processes: spawning and supervising
// gdb in MI mode, the per-session command/response engine, and the
// process-wide session registry.
package gdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for the conditions without an attached payload.
var (
	// ErrTimeout reports that a command exceeded the configured timeout.
	ErrTimeout = errors.New("gdb command timed out")
	// ErrBusy reports that a command is already in flight on the session
	// or the inferior is still running.
	ErrBusy = errors.New("gdb is busy")
	// ErrQuit reports that the child exited or its streams closed.
	ErrQuit = errors.New("gdb process has quit")
)

// GDBError carries the message attached to a ^error result record.
type GDBError struct {
	Msg string
}

func (e *GDBError) Error() string {
	return "gdb error: " + e.Msg
}

// NotFoundError reports an unknown session identifier.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %s does not exist", e.ID)
}

// InvalidArgumentError reports a malformed request, an out-of-range
// value, or a protocol token mismatch.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Msg
}

// ParseError reports output that could not be decoded to a structured
// record.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Msg
}

// ErrorClass names the error category for tool responses.
func ErrorClass(err error) string {
	var (
		gdbErr      *GDBError
		notFound    *NotFoundError
		invalidArg  *InvalidArgumentError
		parseFailed *ParseError
	)
	switch {
	case errors.Is(err, ErrTimeout):
		return "GDBTimeout"
	case errors.Is(err, ErrBusy):
		return "GDBBusy"
	case errors.Is(err, ErrQuit):
		return "GDBQuit"
	case errors.As(err, &gdbErr):
		return "GDBError"
	case errors.As(err, &notFound):
		return "NotFound"
	case errors.As(err, &invalidArg):
		return "InvalidArgument"
	case errors.As(err, &parseFailed):
		return "ParseError"
	default:
		return "IoError"
	}
}
