package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joestump/gdb-mcp/internal/config"
	"github.com/joestump/gdb-mcp/internal/dashboard"
	"github.com/joestump/gdb-mcp/internal/gdb"
	"github.com/joestump/gdb-mcp/internal/hub"
	"github.com/joestump/gdb-mcp/internal/logging"
	"github.com/joestump/gdb-mcp/internal/mcpserver"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gdbmcp",
		Short: "MCP server exposing GDB debugging sessions as tools",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	f.String("transport", "stdio", "MCP transport to use (stdio or sse)")
	f.Bool("disable-tui", false, "disable the terminal dashboard")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("log_level", "log-level")
	bindFlag("transport", "transport")
	bindFlag("disable_tui", "disable-tui")

	// Environment variables use their historical unprefixed names.
	_ = viper.BindEnv("server_port", "SERVER_PORT")
	_ = viper.BindEnv("gdb_path", "GDB_PATH")
	_ = viper.BindEnv("command_timeout", "GDB_COMMAND_TIMEOUT")

	viper.SetDefault("server_port", 8080)
	viper.SetDefault("gdb_path", "gdb")
	viper.SetDefault("command_timeout", 10)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	log := logging.New(cfg.LogLevel)
	log.Infof("gdb-mcp %s starting (transport=%s, port=%d, gdb=%s, timeout=%s)",
		config.Version, cfg.Transport, cfg.ServerPort, cfg.GDBPath, cfg.CommandTimeout)

	eventHub := hub.New()
	manager := gdb.NewManager(cfg, log, eventHub)
	srv := mcpserver.NewServer(manager, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx, cfg)
	}()

	// The dashboard needs a real terminal and full ownership of it, which
	// the stdio transport rules out.
	if useTUI(cfg) {
		dash := dashboard.New(manager, eventHub, log)
		if err := dash.Run(ctx); err != nil {
			log.Warnf("dashboard: %v", err)
		}
		stop()
	}

	err := <-errCh

	// Teardown: every child is terminated before the process exits.
	manager.CloseAll()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("transport: %v", err)
		return fmt.Errorf("transport: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// useTUI reports whether the terminal dashboard should run.
func useTUI(cfg config.Config) bool {
	if cfg.DisableTUI || cfg.Transport != "sse" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
