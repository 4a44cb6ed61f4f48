package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/gdb-mcp/internal/gdb"
	"github.com/joestump/gdb-mcp/internal/mi"
	"github.com/joestump/gdb-mcp/internal/models"
)

// --- Tool Definitions ---

// sessionIDSchema is the one-argument schema shared by most tools.
const sessionIDSchema = `{
	"type": "object",
	"properties": {
		"session_id": {
			"type": "string",
			"description": "The ID of the GDB session"
		}
	},
	"required": ["session_id"]
}`

func createSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"create_session",
		"Create a new GDB debugging session with optional parameters; returns a session ID (UUID) if successful.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"program": {
					"type": "string",
					"description": "Path to the executable to debug"
				},
				"nh": {
					"type": "boolean",
					"description": "Do not read ~/.gdbinit"
				},
				"nx": {
					"type": "boolean",
					"description": "Do not read any .gdbinit files in any directory"
				},
				"quiet": {
					"type": "boolean",
					"description": "Do not print version number on startup"
				},
				"cd": {
					"type": "string",
					"description": "Change current directory to DIR"
				},
				"bps": {
					"type": "integer",
					"description": "Serial port baud rate used for remote debugging"
				},
				"symbol_file": {
					"type": "string",
					"description": "Read symbols from SYMFILE"
				},
				"core_file": {
					"type": "string",
					"description": "Analyze the core dump COREFILE"
				},
				"proc_id": {
					"type": "integer",
					"description": "Attach to running process PID"
				},
				"command": {
					"type": "string",
					"description": "Execute GDB commands from FILE"
				},
				"source_dir": {
					"type": "string",
					"description": "Search for source files in DIR"
				},
				"args": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Arguments to be passed to the inferior program"
				},
				"tty": {
					"type": "string",
					"description": "Use TTY for input/output by the program being debugged"
				},
				"gdb_path": {
					"type": "string",
					"description": "Path to the GDB executable"
				}
			}
		}`),
	)
}

func getSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_session",
		"Get a GDB debugging session by ID.",
		json.RawMessage(sessionIDSchema),
	)
}

func getAllSessionsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_all_sessions",
		"Get all GDB debugging sessions.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func closeSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"close_session",
		"Close a GDB debugging session.",
		json.RawMessage(sessionIDSchema),
	)
}

func startDebuggingTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"start_debugging",
		"Start debugging in a session (runs the inferior).",
		json.RawMessage(sessionIDSchema),
	)
}

func stopDebuggingTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"stop_debugging",
		"Stop debugging in a session (interrupts the inferior).",
		json.RawMessage(sessionIDSchema),
	)
}

func continueExecutionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"continue_execution",
		"Continue program execution.",
		json.RawMessage(sessionIDSchema),
	)
}

func stepExecutionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"step_execution",
		"Step into next line.",
		json.RawMessage(sessionIDSchema),
	)
}

func nextExecutionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"next_execution",
		"Step over next line.",
		json.RawMessage(sessionIDSchema),
	)
}

func setBreakpointTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"set_breakpoint",
		"Set a breakpoint in the code.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"file": {
					"type": "string",
					"description": "Source file path"
				},
				"line": {
					"type": "integer",
					"description": "Line number"
				}
			},
			"required": ["session_id", "file", "line"]
		}`),
	)
}

func deleteBreakpointTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"delete_breakpoint",
		"Delete one or more breakpoints.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"breakpoints": {
					"type": "string",
					"description": "The list of the breakpoint numbers, separated by commas"
				}
			},
			"required": ["session_id", "breakpoints"]
		}`),
	)
}

func getBreakpointsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_breakpoints",
		"Get all breakpoints in the session.",
		json.RawMessage(sessionIDSchema),
	)
}

func setWatchpointTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"set_watchpoint",
		"Set a watchpoint on an expression.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"expression": {
					"type": "string",
					"description": "Expression or variable to watch"
				},
				"mode": {
					"type": "string",
					"enum": ["write", "read", "access"],
					"description": "Trigger on write (default), read, or both"
				}
			},
			"required": ["session_id", "expression"]
		}`),
	)
}

func getStackFramesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_stack_frames",
		"Get stack frames in the current GDB session.",
		json.RawMessage(sessionIDSchema),
	)
}

func getLocalVariablesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_local_variables",
		"Get local variables in a stack frame.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"frame": {
					"type": "integer",
					"description": "The number of the stack frame"
				}
			},
			"required": ["session_id", "frame"]
		}`),
	)
}

func getRegisterNamesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_register_names",
		"Get the register name table; the index is the register number.",
		json.RawMessage(sessionIDSchema),
	)
}

func getRegistersTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_registers",
		"Get register values, optionally restricted to a register set.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"registers": {
					"type": "array",
					"items": {"type": "integer"},
					"description": "Register numbers to read (all when omitted)"
				}
			},
			"required": ["session_id"]
		}`),
	)
}

func readMemoryTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"read_memory",
		"Read a block of inferior memory.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"address": {
					"type": "string",
					"description": "Start address (hex literal or any GDB expression)"
				},
				"count": {
					"type": "integer",
					"description": "Number of bytes to read"
				},
				"offset": {
					"type": "integer",
					"description": "Offset from the address (may be negative)"
				}
			},
			"required": ["session_id", "address", "count"]
		}`),
	)
}

func getMemoryMappingsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_memory_mappings",
		"Get the inferior's memory mappings (address ranges, permissions, backing paths).",
		json.RawMessage(sessionIDSchema),
	)
}

func evaluateExpressionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"evaluate_expression",
		"Evaluate an expression in the current stack frame.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"expression": {
					"type": "string",
					"description": "Expression to evaluate"
				}
			},
			"required": ["session_id", "expression"]
		}`),
	)
}

func disassembleTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"disassemble",
		"Disassemble a source location (file+line) or an address range (start+end).",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {
					"type": "string",
					"description": "The ID of the GDB session"
				},
				"file": {
					"type": "string",
					"description": "Source file path"
				},
				"line": {
					"type": "integer",
					"description": "Line number in file"
				},
				"lines": {
					"type": "integer",
					"description": "Number of lines to disassemble (-1 for the whole function)"
				},
				"start": {
					"type": "string",
					"description": "Start address (hex)"
				},
				"end": {
					"type": "string",
					"description": "End address (hex)"
				}
			},
			"required": ["session_id"]
		}`),
	)
}

// --- Tool Handlers ---

// sessionArgs is the shared one-argument request form.
type sessionArgs struct {
	SessionID string `json:"session_id"`
}

// createSessionArgs mirrors the create_session schema.
type createSessionArgs struct {
	Program    string   `json:"program"`
	NH         bool     `json:"nh"`
	NX         bool     `json:"nx"`
	Quiet      bool     `json:"quiet"`
	CD         string   `json:"cd"`
	BPS        uint32   `json:"bps"`
	SymbolFile string   `json:"symbol_file"`
	CoreFile   string   `json:"core_file"`
	ProcID     uint32   `json:"proc_id"`
	Command    string   `json:"command"`
	SourceDir  string   `json:"source_dir"`
	Args       []string `json:"args"`
	TTY        string   `json:"tty"`
	GDBPath    string   `json:"gdb_path"`
}

func (s *Server) handleCreateSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createSessionArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	sessionID, err := s.manager.CreateSession(gdb.SpawnOptions{
		GDBPath:     args.GDBPath,
		Program:     args.Program,
		NH:          args.NH,
		NX:          args.NX,
		Quiet:       args.Quiet,
		CD:          args.CD,
		BPS:         args.BPS,
		SymbolFile:  args.SymbolFile,
		CoreFile:    args.CoreFile,
		ProcID:      args.ProcID,
		CommandFile: args.Command,
		SourceDir:   args.SourceDir,
		Args:        args.Args,
		TTY:         args.TTY,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("Created GDB session: " + sessionID), nil
}

func (s *Server) handleGetSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := bindSessionArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	session, err := s.manager.GetSession(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Session", session)
}

func (s *Server) handleGetAllSessions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textJSON("Sessions", s.manager.GetAllSessions())
}

func (s *Server) handleCloseSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := bindSessionArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := s.manager.CloseSession(args.SessionID); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("Closed GDB session"), nil
}

func (s *Server) handleStartDebugging(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execResponse(req, "Started debugging", s.manager.StartDebugging)
}

func (s *Server) handleStopDebugging(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execResponse(req, "Stopped debugging", s.manager.StopDebugging)
}

func (s *Server) handleContinueExecution(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execResponse(req, "Continued execution", s.manager.ContinueExecution)
}

func (s *Server) handleStepExecution(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execResponse(req, "Stepped into next line", s.manager.StepExecution)
}

func (s *Server) handleNextExecution(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.execResponse(req, "Stepped over next line", s.manager.NextExecution)
}

// setBreakpointArgs mirrors the set_breakpoint schema.
type setBreakpointArgs struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
}

func (s *Server) handleSetBreakpoint(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args setBreakpointArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.File == "" || args.Line <= 0 {
		return mcp.NewToolResultError("file and a positive line are required"), nil
	}
	bp, err := s.manager.SetBreakpoint(args.SessionID, args.File, args.Line)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Set breakpoint", bp)
}

// deleteBreakpointArgs mirrors the delete_breakpoint schema.
type deleteBreakpointArgs struct {
	SessionID   string `json:"session_id"`
	Breakpoints string `json:"breakpoints"`
}

func (s *Server) handleDeleteBreakpoint(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args deleteBreakpointArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	ret, err := s.manager.DeleteBreakpoint(args.SessionID, args.Breakpoints)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("Deleted breakpoint: " + ret), nil
}

func (s *Server) handleGetBreakpoints(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := bindSessionArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	bps, err := s.manager.GetBreakpoints(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Breakpoints", bps)
}

// setWatchpointArgs mirrors the set_watchpoint schema.
type setWatchpointArgs struct {
	SessionID  string `json:"session_id"`
	Expression string `json:"expression"`
	Mode       string `json:"mode"`
}

func (s *Server) handleSetWatchpoint(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args setWatchpointArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Expression == "" {
		return mcp.NewToolResultError("expression is required"), nil
	}
	mode := mi.WatchMode(args.Mode)
	if args.Mode == "" {
		mode = mi.WatchWrite
	}
	ret, err := s.manager.SetWatchpoint(args.SessionID, args.Expression, mode)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("Set watchpoint: " + ret), nil
}

func (s *Server) handleGetStackFrames(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := bindSessionArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	frames, err := s.manager.GetStackFrames(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Stack frames", frames)
}

// localVariablesArgs mirrors the get_local_variables schema.
type localVariablesArgs struct {
	SessionID string `json:"session_id"`
	Frame     int    `json:"frame"`
}

func (s *Server) handleGetLocalVariables(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args localVariablesArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Frame < 0 {
		return mcp.NewToolResultError("frame must not be negative"), nil
	}
	variables, err := s.manager.GetLocalVariables(args.SessionID, args.Frame)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Local variables", variables)
}

func (s *Server) handleGetRegisterNames(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := bindSessionArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	names, err := s.manager.GetRegisterNames(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Register names", names)
}

// registersArgs mirrors the get_registers schema.
type registersArgs struct {
	SessionID string `json:"session_id"`
	Registers []int  `json:"registers"`
}

func (s *Server) handleGetRegisters(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args registersArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	registers, err := s.manager.GetRegisters(args.SessionID, args.Registers)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Registers", registers)
}

// readMemoryArgs mirrors the read_memory schema.
type readMemoryArgs struct {
	SessionID string `json:"session_id"`
	Address   string `json:"address"`
	Count     uint64 `json:"count"`
	Offset    int64  `json:"offset"`
}

func (s *Server) handleReadMemory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args readMemoryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}
	blocks, err := s.manager.ReadMemory(args.SessionID, args.Address, args.Count, args.Offset)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Memory", blocks)
}

func (s *Server) handleGetMemoryMappings(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, errResult := bindSessionArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	mappings, err := s.manager.GetMemoryMappings(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return textJSON("Memory mappings", mappings)
}

// evaluateArgs mirrors the evaluate_expression schema.
type evaluateArgs struct {
	SessionID  string `json:"session_id"`
	Expression string `json:"expression"`
}

func (s *Server) handleEvaluateExpression(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args evaluateArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	value, err := s.manager.EvaluateExpression(args.SessionID, args.Expression)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText("Value: " + value), nil
}

// disassembleArgs mirrors the disassemble schema.
type disassembleArgs struct {
	SessionID string `json:"session_id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Lines     int    `json:"lines"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

func (s *Server) handleDisassemble(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args disassembleArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	switch {
	case args.File != "":
		lines := args.Lines
		if lines == 0 {
			lines = -1
		}
		ret, err := s.manager.DisassembleFile(args.SessionID, args.File, args.Line, lines)
		if err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText("Disassembly: " + ret), nil
	case args.Start != "" && args.End != "":
		start, err := models.ParseAddress(args.Start)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("bad start address: %v", err)), nil
		}
		end, err := models.ParseAddress(args.End)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("bad end address: %v", err)), nil
		}
		ret, err := s.manager.DisassembleRange(args.SessionID, start, end)
		if err != nil {
			return errorResult(err), nil
		}
		return mcp.NewToolResultText("Disassembly: " + ret), nil
	default:
		return mcp.NewToolResultError("either file (+line) or start and end are required"), nil
	}
}

// --- Helpers ---

func bindSessionArgs(req mcp.CallToolRequest) (sessionArgs, *mcp.CallToolResult) {
	var args sessionArgs
	if err := req.BindArguments(&args); err != nil {
		return args, mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err))
	}
	if args.SessionID == "" {
		return args, mcp.NewToolResultError("session_id is required")
	}
	return args, nil
}

// execResponse runs one execution-control operation and renders its raw
// result dump.
func (s *Server) execResponse(req mcp.CallToolRequest, verb string, op func(string) (string, error)) (*mcp.CallToolResult, error) {
	args, errResult := bindSessionArgs(req)
	if errResult != nil {
		return errResult, nil
	}
	ret, err := op(args.SessionID)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(verb + ": " + ret), nil
}

// errorResult renders an error with its taxonomy class so callers can
// distinguish busy/timeout/not-found without string matching.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", gdb.ErrorClass(err), err))
}

// textJSON renders a labelled, indented JSON dump as the tool response.
func textJSON(label string, v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(label + ": " + string(data)), nil
}
