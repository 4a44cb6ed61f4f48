// Package mcpserver implements an MCP (Model Context Protocol) server
// that exposes GDB debugging sessions as typed tools over stdio JSON-RPC
// or SSE. It wraps the internal/gdb registry; every tool call resolves a
// session, issues MI commands, and renders a text response.
package mcpserver

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/joestump/gdb-mcp/internal/config"
	"github.com/joestump/gdb-mcp/internal/gdb"
)

// Server holds the MCP server state.
type Server struct {
	manager *gdb.Manager
	log     *logrus.Entry
}

// NewServer creates an MCP server backed by the given session registry.
func NewServer(manager *gdb.Manager, log *logrus.Entry) *Server {
	return &Server{manager: manager, log: log}
}

// Run starts the MCP server on the configured transport. It blocks until
// the context is cancelled, stdin closes (stdio), or the listener fails
// (sse).
func (s *Server) Run(ctx context.Context, cfg config.Config) error {
	mcpServer := server.NewMCPServer(
		"gdb-mcp",
		config.Version,
		server.WithToolCapabilities(false),
	)

	mcpServer.AddTools([]server.ServerTool{
		{Tool: createSessionTool(), Handler: s.handleCreateSession},
		{Tool: getSessionTool(), Handler: s.handleGetSession},
		{Tool: getAllSessionsTool(), Handler: s.handleGetAllSessions},
		{Tool: closeSessionTool(), Handler: s.handleCloseSession},
		{Tool: startDebuggingTool(), Handler: s.handleStartDebugging},
		{Tool: stopDebuggingTool(), Handler: s.handleStopDebugging},
		{Tool: continueExecutionTool(), Handler: s.handleContinueExecution},
		{Tool: stepExecutionTool(), Handler: s.handleStepExecution},
		{Tool: nextExecutionTool(), Handler: s.handleNextExecution},
		{Tool: setBreakpointTool(), Handler: s.handleSetBreakpoint},
		{Tool: deleteBreakpointTool(), Handler: s.handleDeleteBreakpoint},
		{Tool: getBreakpointsTool(), Handler: s.handleGetBreakpoints},
		{Tool: setWatchpointTool(), Handler: s.handleSetWatchpoint},
		{Tool: getStackFramesTool(), Handler: s.handleGetStackFrames},
		{Tool: getLocalVariablesTool(), Handler: s.handleGetLocalVariables},
		{Tool: getRegisterNamesTool(), Handler: s.handleGetRegisterNames},
		{Tool: getRegistersTool(), Handler: s.handleGetRegisters},
		{Tool: readMemoryTool(), Handler: s.handleReadMemory},
		{Tool: getMemoryMappingsTool(), Handler: s.handleGetMemoryMappings},
		{Tool: evaluateExpressionTool(), Handler: s.handleEvaluateExpression},
		{Tool: disassembleTool(), Handler: s.handleDisassemble},
	}...)

	switch cfg.Transport {
	case "sse":
		sse := server.NewSSEServer(mcpServer)
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		s.log.Infof("serving MCP over SSE on %s", addr)

		errCh := make(chan error, 1)
		go func() {
			errCh <- sse.Start(addr)
		}()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return sse.Shutdown(context.Background())
		}
	case "stdio":
		stdio := server.NewStdioServer(mcpServer)
		stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))
		s.log.Info("serving MCP over stdio")
		return stdio.Listen(ctx, os.Stdin, os.Stdout)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
