package mi

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Command is a single MI command: an operation name (empty means "flush
// only"), option arguments, and positional parameters. Option and
// parameter bytes are written verbatim, so OS-native path bytes survive.
type Command struct {
	Operation  string
	Options    []string
	Parameters []string
}

// Encode renders the command in MI wire form with the given token:
//
//	<token>-<operation> <options...> [--] <parameters...>\n
//
// The " --" separator appears only when both options and parameters are
// present. An empty operation yields a bare line (used to flush GDB's
// startup banner).
func (c Command) Encode(token uint64) string {
	var b strings.Builder
	if c.Operation != "" {
		fmt.Fprintf(&b, "%d-%s", token, c.Operation)
	}
	for _, opt := range c.Options {
		b.WriteByte(' ')
		b.WriteString(opt)
	}
	if len(c.Parameters) > 0 {
		if len(c.Options) > 0 {
			b.WriteString(" --")
		}
		for _, param := range c.Parameters {
			b.WriteByte(' ')
			b.WriteString(param)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// EscapeCString embeds text in an MI c-string literal: backslash and
// double quote are escaped, every other byte passes through unchanged.
func EscapeCString(input string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(input); i++ {
		switch c := input[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// BreakpointNumber is a major or major.minor breakpoint identifier.
// Ordering is by (major, minor) with an absent minor sorting first.
type BreakpointNumber struct {
	Major    uint64
	Minor    uint64
	HasMinor bool
}

// ParseBreakpointNumber parses "N" or "N.M".
func ParseBreakpointNumber(s string) (BreakpointNumber, error) {
	var n BreakpointNumber
	majorPart, minorPart, found := strings.Cut(s, ".")
	major, err := strconv.ParseUint(strings.TrimSpace(majorPart), 10, 64)
	if err != nil {
		return n, fmt.Errorf("bad breakpoint number %q: %w", s, err)
	}
	n.Major = major
	if found {
		minor, err := strconv.ParseUint(strings.TrimSpace(minorPart), 10, 64)
		if err != nil {
			return n, fmt.Errorf("bad breakpoint number %q: %w", s, err)
		}
		n.Minor = minor
		n.HasMinor = true
	}
	return n, nil
}

func (n BreakpointNumber) String() string {
	if n.HasMinor {
		return fmt.Sprintf("%d.%d", n.Major, n.Minor)
	}
	return strconv.FormatUint(n.Major, 10)
}

// Less orders breakpoint numbers for deterministic dedup.
func (n BreakpointNumber) Less(other BreakpointNumber) bool {
	if n.Major != other.Major {
		return n.Major < other.Major
	}
	if n.HasMinor != other.HasMinor {
		return !n.HasMinor
	}
	return n.Minor < other.Minor
}

// WatchMode selects the trigger condition for a watchpoint.
type WatchMode string

const (
	WatchWrite  WatchMode = "write"
	WatchRead   WatchMode = "read"
	WatchAccess WatchMode = "access"
)

// DisassembleMode selects the -data-disassemble output layout. The
// deprecated mixed modes are used on purpose: the replacement values are
// missing from older GDB releases.
type DisassembleMode int

const (
	DisassemblyOnly                         DisassembleMode = 0
	MixedSourceAndDisassembly               DisassembleMode = 1
	DisassemblyWithRawOpcodes               DisassembleMode = 2
	MixedSourceAndDisassemblyWithRawOpcodes DisassembleMode = 3
)

// Empty is the flush-only command: no operation, just a line break.
func Empty() Command {
	return Command{}
}

func ExecRun() Command       { return Command{Operation: "exec-run"} }
func ExecContinue() Command  { return Command{Operation: "exec-continue"} }
func ExecStep() Command      { return Command{Operation: "exec-step"} }
func ExecNext() Command      { return Command{Operation: "exec-next"} }
func ExecInterrupt() Command { return Command{Operation: "exec-interrupt"} }
func Exit() Command          { return Command{Operation: "gdb-exit"} }

// InterpreterExec wraps a command for another interpreter.
func InterpreterExec(interpreter, command string) Command {
	return Command{
		Operation: "interpreter-exec",
		Options:   []string{interpreter, command},
	}
}

// CLIExec wraps a free-form CLI command for the console interpreter.
func CLIExec(command string) Command {
	return InterpreterExec("console", EscapeCString(command))
}

// InsertBreakpointAtAddress emits -break-insert *0xADDR.
func InsertBreakpointAtAddress(addr uint64) Command {
	return Command{
		Operation: "break-insert",
		Options:   []string{fmt.Sprintf("*0x%x", addr)},
	}
}

// InsertBreakpointAtLine emits -break-insert PATH:LINE.
func InsertBreakpointAtLine(path string, line int) Command {
	return Command{
		Operation: "break-insert",
		Options:   []string{fmt.Sprintf("%s:%d", path, line)},
	}
}

// InsertBreakpointAtFunction emits -break-insert PATH:FUNC.
func InsertBreakpointAtFunction(path, function string) Command {
	return Command{
		Operation: "break-insert",
		Options:   []string{path + ":" + function},
	}
}

// DeleteBreakpoints emits -break-delete with the numbers sorted and
// deduplicated. GDB mishandles sub-breakpoint deletion when the list is
// unordered or repeats entries.
func DeleteBreakpoints(numbers []BreakpointNumber) Command {
	sorted := make([]BreakpointNumber, len(numbers))
	copy(sorted, numbers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	options := make([]string, 0, len(sorted))
	for i, n := range sorted {
		if i > 0 && n == sorted[i-1] {
			continue
		}
		options = append(options, n.String())
	}
	return Command{Operation: "break-delete", Options: options}
}

func BreakpointsList() Command {
	return Command{Operation: "break-list"}
}

// InsertWatchpoint emits -break-watch with the mode flag.
func InsertWatchpoint(expression string, mode WatchMode) Command {
	var options []string
	switch mode {
	case WatchRead:
		options = []string{"-r"}
	case WatchAccess:
		options = []string{"-a"}
	}
	return Command{
		Operation:  "break-watch",
		Options:    options,
		Parameters: []string{expression},
	}
}

// DataDisassembleFile emits -data-disassemble -f FILE -l LINE -n LINES.
// A negative lines count (-1) means "to the end of the function".
func DataDisassembleFile(file string, line int, lines int, mode DisassembleMode) Command {
	return Command{
		Operation: "data-disassemble",
		Options: []string{
			"-f", file,
			"-l", strconv.Itoa(line),
			"-n", strconv.Itoa(lines),
		},
		Parameters: []string{strconv.Itoa(int(mode))},
	}
}

// DataDisassembleAddress emits -data-disassemble -s START -e END.
func DataDisassembleAddress(start, end uint64, mode DisassembleMode) Command {
	return Command{
		Operation: "data-disassemble",
		Options: []string{
			"-s", strconv.FormatUint(start, 10),
			"-e", strconv.FormatUint(end, 10),
		},
		Parameters: []string{strconv.Itoa(int(mode))},
	}
}

// DataEvaluateExpression emits -data-evaluate-expression "EXPR".
func DataEvaluateExpression(expression string) Command {
	return Command{
		Operation: "data-evaluate-expression",
		Options:   []string{EscapeCString(expression)},
	}
}

// DataListRegisterNames emits -data-list-register-names.
func DataListRegisterNames() Command {
	return Command{Operation: "data-list-register-names"}
}

// DataListRegisterValues emits -data-list-register-values x [REGS...],
// requesting hex formatting, optionally restricted to a register set.
func DataListRegisterValues(registers []int) Command {
	options := []string{"x"}
	for _, r := range registers {
		options = append(options, strconv.Itoa(r))
	}
	return Command{Operation: "data-list-register-values", Options: options}
}

// DataReadMemoryBytes emits -data-read-memory-bytes [-o OFFSET] ADDR COUNT.
func DataReadMemoryBytes(address string, count uint64, offset int64) Command {
	var options []string
	if offset != 0 {
		options = append(options, "-o", strconv.FormatInt(offset, 10))
	}
	options = append(options, address, strconv.FormatUint(count, 10))
	return Command{Operation: "data-read-memory-bytes", Options: options}
}

// StackListFrames emits -stack-list-frames [LOW HIGH]. Bounds are swapped
// when reversed; a lone low bound is paired with a sentinel high large
// enough to include every frame.
func StackListFrames(low, high *int) Command {
	var options []string
	switch {
	case low != nil && high != nil:
		lo, hi := *low, *high
		if lo > hi {
			lo, hi = hi, lo
		}
		options = []string{strconv.Itoa(lo), strconv.Itoa(hi)}
	case low != nil:
		options = []string{strconv.Itoa(*low), "99999"}
	case high != nil:
		options = []string{"0", strconv.Itoa(*high)}
	}
	return Command{Operation: "stack-list-frames", Options: options}
}

// StackListVariables emits -stack-list-variables [--thread N] [--frame N]
// --simple-values.
func StackListVariables(thread, frame *int) Command {
	var parameters []string
	if thread != nil {
		parameters = append(parameters, "--thread", strconv.Itoa(*thread))
	}
	if frame != nil {
		parameters = append(parameters, "--frame", strconv.Itoa(*frame))
	}
	parameters = append(parameters, "--simple-values")
	return Command{Operation: "stack-list-variables", Parameters: parameters}
}

// StackInfoFrame emits -stack-info-frame [FRAME].
func StackInfoFrame(frame *int) Command {
	cmd := Command{Operation: "stack-info-frame"}
	if frame != nil {
		cmd.Options = []string{strconv.Itoa(*frame)}
	}
	return cmd
}

func StackInfoDepth() Command {
	return Command{Operation: "stack-info-depth"}
}

// StackSelectFrame emits -stack-select-frame FRAME.
func StackSelectFrame(frame int) Command {
	return Command{Operation: "stack-select-frame", Options: []string{strconv.Itoa(frame)}}
}

// ThreadInfo emits -thread-info [ID].
func ThreadInfo(threadID *int) Command {
	cmd := Command{Operation: "thread-info"}
	if threadID != nil {
		cmd.Options = []string{strconv.Itoa(*threadID)}
	}
	return cmd
}

// ListThreadGroups emits -list-thread-groups [--available] [GROUPS...].
func ListThreadGroups(listAllAvailable bool, groupIDs []string) Command {
	cmd := Command{Operation: "list-thread-groups", Parameters: groupIDs}
	if listAllAvailable {
		cmd.Options = []string{"--available"}
	}
	return cmd
}

func EnvironmentPwd() Command {
	return Command{Operation: "environment-pwd"}
}

// FileExecAndSymbols emits -file-exec-and-symbols PATH.
func FileExecAndSymbols(path string) Command {
	return Command{Operation: "file-exec-and-symbols", Options: []string{path}}
}

// FileSymbolFile emits -file-symbol-file [PATH]; no path clears symbols.
func FileSymbolFile(path string) Command {
	cmd := Command{Operation: "file-symbol-file"}
	if path != "" {
		cmd.Options = []string{path}
	}
	return cmd
}

// VarCreate emits -var-create NAME FRAME EXPR. Empty name or frame use
// the "-" / "*" placeholders (generated name, current frame).
func VarCreate(name, frameAddr, expression string) Command {
	if name == "" {
		name = `"-"`
	}
	if frameAddr == "" {
		frameAddr = `"*"`
	}
	return Command{
		Operation:  "var-create",
		Parameters: []string{name, frameAddr, EscapeCString(expression)},
	}
}

// VarDelete emits -var-delete [-c] NAME.
func VarDelete(name string, childrenOnly bool) Command {
	var parameters []string
	if childrenOnly {
		parameters = append(parameters, "-c")
	}
	parameters = append(parameters, name)
	return Command{Operation: "var-delete", Parameters: parameters}
}

// VarListChildren emits -var-list-children --all-values|--no-values NAME
// [FROM TO].
func VarListChildren(name string, printValues bool, from, to *int) Command {
	values := "--no-values"
	if printValues {
		values = "--all-values"
	}
	parameters := []string{values, name}
	if from != nil && to != nil {
		parameters = append(parameters, strconv.Itoa(*from), strconv.Itoa(*to))
	}
	return Command{Operation: "var-list-children", Parameters: parameters}
}
