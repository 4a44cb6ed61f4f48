// Package config holds runtime configuration for the GDB MCP server.
// Values are merged from CLI flags, environment variables, and defaults
// by viper; the bindings live in cmd/gdbmcp.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Version is reported to MCP clients during initialization.
const Version = "0.1.0"

// Config holds all runtime configuration for the server.
type Config struct {
	// ServerPort is the listening port for the SSE transport.
	ServerPort int
	// GDBPath is the debugger executable spawned for new sessions.
	GDBPath string
	// CommandTimeout bounds every externally-visible GDB command.
	CommandTimeout time.Duration
	// LogLevel is a logrus level name (trace..panic).
	LogLevel string
	// Transport selects the MCP transport: "stdio" or "sse".
	Transport string
	// DisableTUI suppresses the terminal dashboard.
	DisableTUI bool
}

// Load reads configuration from viper, which merges flag values, env vars,
// and defaults (set up by the cobra command in cmd/gdbmcp).
func Load() Config {
	return Config{
		ServerPort:     viper.GetInt("server_port"),
		GDBPath:        viper.GetString("gdb_path"),
		CommandTimeout: time.Duration(viper.GetInt("command_timeout")) * time.Second,
		LogLevel:       viper.GetString("log_level"),
		Transport:      viper.GetString("transport"),
		DisableTUI:     viper.GetBool("disable_tui"),
	}
}
