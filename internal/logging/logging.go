// Package logging configures the process-wide logrus logger. All output
// goes to a file: under the stdio transport the MCP framing owns stdout,
// so writing log lines there would corrupt the protocol stream.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const logDir = "logs"

// New returns a logger writing to logs/gdb-mcp.log at the given level.
// If the file cannot be opened the logger discards output rather than
// falling back to stdout.
func New(level string) *logrus.Entry {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Out = io.Discard
		return logrus.NewEntry(log)
	}
	file, err := os.OpenFile(filepath.Join(logDir, "gdb-mcp.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		log.Out = io.Discard
		return logrus.NewEntry(log)
	}
	log.SetOutput(file)

	return log.WithField("pid", os.Getpid())
}
