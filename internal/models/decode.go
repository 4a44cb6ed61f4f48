package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joestump/gdb-mcp/internal/mi"
)

// decodeInt reads a numeric field from its MI string rendering.
func decodeInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("bad numeric field %q: %w", s, err)
	}
	return n, nil
}

// DecodeBreakpoint builds a Breakpoint from a bkpt tuple.
func DecodeBreakpoint(m *mi.Map) (Breakpoint, error) {
	if m == nil {
		return Breakpoint{}, fmt.Errorf("missing bkpt tuple")
	}
	bp := Breakpoint{
		Number:      m.GetString("number"),
		Type:        m.GetString("type"),
		Disposition: m.GetString("disp"),
		Enabled:     m.GetString("enabled") == "y",
		File:        m.GetString("file"),
		FullName:    m.GetString("fullname"),
	}
	if bp.Number == "" {
		return bp, fmt.Errorf("breakpoint without number")
	}
	if s := m.GetString("addr"); s != "" {
		// Pending breakpoints report "<PENDING>" here; no address then.
		if addr, err := ParseAddress(s); err == nil {
			bp.Address = &addr
		}
	}
	if s := m.GetString("line"); s != "" {
		line, err := decodeInt(s)
		if err != nil {
			return bp, err
		}
		bp.Line = line
	}
	return bp, nil
}

// DecodeBreakpointResult decodes the ^done,bkpt={...} reply to
// -break-insert.
func DecodeBreakpointResult(results *mi.Map) (Breakpoint, error) {
	tuple, _ := results.Get("bkpt").(*mi.Map)
	return DecodeBreakpoint(tuple)
}

// DecodeBreakpointTable decodes the reply to -break-list. The table body
// arrives in the kv-list form, so it lands here as a list of tuples.
func DecodeBreakpointTable(results *mi.Map) ([]Breakpoint, error) {
	table, ok := results.Get("BreakpointTable").(*mi.Map)
	if !ok {
		return nil, fmt.Errorf("missing BreakpointTable")
	}
	body, ok := table.Get("body").(mi.List)
	if !ok {
		// A table without a body list has no rows.
		return nil, nil
	}
	breakpoints := make([]Breakpoint, 0, len(body))
	for _, v := range body {
		tuple, ok := v.(*mi.Map)
		if !ok {
			return nil, fmt.Errorf("breakpoint table row is not a tuple")
		}
		bp, err := DecodeBreakpoint(tuple)
		if err != nil {
			return nil, err
		}
		breakpoints = append(breakpoints, bp)
	}
	return breakpoints, nil
}

// DecodeFrame builds a StackFrame from a frame tuple.
func DecodeFrame(m *mi.Map) (StackFrame, error) {
	if m == nil {
		return StackFrame{}, fmt.Errorf("missing frame tuple")
	}
	frame := StackFrame{
		Function: m.GetString("func"),
		File:     m.GetString("file"),
		FullName: m.GetString("fullname"),
		Arch:     m.GetString("arch"),
	}
	if s := m.GetString("level"); s != "" {
		level, err := decodeInt(s)
		if err != nil {
			return frame, err
		}
		frame.Level = level
	}
	if s := m.GetString("line"); s != "" {
		line, err := decodeInt(s)
		if err != nil {
			return frame, err
		}
		frame.Line = line
	}
	if s := m.GetString("addr"); s != "" {
		addr, err := ParseAddress(s)
		if err != nil {
			return frame, err
		}
		frame.Address = &addr
	}
	return frame, nil
}

// DecodeStackFrames decodes the reply to -stack-list-frames. The stack
// arrives as the kv-list form [frame={...},frame={...}].
func DecodeStackFrames(results *mi.Map) ([]StackFrame, error) {
	stack := results.Get("stack")
	if stack == nil {
		return nil, fmt.Errorf("missing stack")
	}
	var rows mi.List
	switch v := stack.(type) {
	case mi.List:
		rows = v
	case *mi.Map:
		// A single-frame stack collapses to a bare tuple.
		rows = mi.List{v}
	default:
		return nil, fmt.Errorf("stack is not a list")
	}
	frames := make([]StackFrame, 0, len(rows))
	for _, v := range rows {
		tuple, ok := v.(*mi.Map)
		if !ok {
			return nil, fmt.Errorf("stack row is not a tuple")
		}
		frame, err := DecodeFrame(tuple)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// DecodeVariables decodes the reply to -stack-list-variables.
func DecodeVariables(results *mi.Map) ([]Variable, error) {
	list, ok := results.Get("variables").(mi.List)
	if !ok {
		return nil, fmt.Errorf("missing variables")
	}
	variables := make([]Variable, 0, len(list))
	for _, v := range list {
		tuple, ok := v.(*mi.Map)
		if !ok {
			return nil, fmt.Errorf("variable row is not a tuple")
		}
		variables = append(variables, Variable{
			Name:  tuple.GetString("name"),
			Type:  tuple.GetString("type"),
			Value: tuple.GetString("value"),
		})
	}
	return variables, nil
}

// DecodeRegisterNames decodes the reply to -data-list-register-names.
// The slot index is the register number; holes are empty strings.
func DecodeRegisterNames(results *mi.Map) ([]string, error) {
	list, ok := results.Get("register-names").(mi.List)
	if !ok {
		return nil, fmt.Errorf("missing register-names")
	}
	names := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(mi.String)
		if !ok {
			return nil, fmt.Errorf("register name is not a string")
		}
		names = append(names, string(s))
	}
	return names, nil
}

var hexValueRe = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// DecodeRegisterValue parses one register value string. Plain hex is a
// 64-bit value; the vector forms carry their halves in a v2_int64
// (128-bit) or v2_int128 (256-bit) pair, least significant first.
func DecodeRegisterValue(s string) (*RegisterValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty register value")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		addr, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		return &RegisterValue{Width: WidthU64, Parts: []string{addr.String()}}, nil
	}
	// v2_int128 is checked first: wide vector registers print several
	// views and the widest one wins.
	for _, form := range []struct {
		tag   string
		width RegisterWidth
	}{
		{"v2_int128", WidthU256},
		{"v2_int64", WidthU128},
	} {
		tag, width := form.tag, form.width
		idx := strings.Index(s, tag)
		if idx < 0 {
			continue
		}
		parts := hexValueRe.FindAllString(s[idx:], 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("register value %q: %s pair not found", s, tag)
		}
		low := strings.ToLower(parts[0])
		high := strings.ToLower(parts[1])
		return &RegisterValue{Width: width, Parts: []string{low, high}}, nil
	}
	return nil, fmt.Errorf("unrecognized register value %q", s)
}

// DecodeRegisterValues decodes the reply to -data-list-register-values.
// names may be nil; when present it binds register names by number.
func DecodeRegisterValues(results *mi.Map, names []string) ([]Register, error) {
	list, ok := results.Get("register-values").(mi.List)
	if !ok {
		return nil, fmt.Errorf("missing register-values")
	}
	registers := make([]Register, 0, len(list))
	for _, v := range list {
		tuple, ok := v.(*mi.Map)
		if !ok {
			return nil, fmt.Errorf("register row is not a tuple")
		}
		number, err := decodeInt(tuple.GetString("number"))
		if err != nil {
			return nil, err
		}
		reg := Register{Number: number}
		if number >= 0 && number < len(names) {
			reg.Name = names[number]
		}
		value, err := DecodeRegisterValue(tuple.GetString("value"))
		if err != nil {
			reg.Err = err.Error()
		} else {
			reg.Value = value
		}
		registers = append(registers, reg)
	}
	return registers, nil
}

// DecodeMemoryBlocks decodes the reply to -data-read-memory-bytes.
func DecodeMemoryBlocks(results *mi.Map) ([]MemoryBlock, error) {
	list, ok := results.Get("memory").(mi.List)
	if !ok {
		return nil, fmt.Errorf("missing memory")
	}
	blocks := make([]MemoryBlock, 0, len(list))
	for _, v := range list {
		tuple, ok := v.(*mi.Map)
		if !ok {
			return nil, fmt.Errorf("memory row is not a tuple")
		}
		begin, err := ParseAddress(tuple.GetString("begin"))
		if err != nil {
			return nil, err
		}
		end, err := ParseAddress(tuple.GetString("end"))
		if err != nil {
			return nil, err
		}
		block := MemoryBlock{
			Begin:    begin,
			End:      end,
			Contents: tuple.GetString("contents"),
		}
		if s := tuple.GetString("offset"); s != "" {
			offset, err := ParseAddress(s)
			if err != nil {
				return nil, err
			}
			block.Offset = offset
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

var permissionsRe = regexp.MustCompile(`^[rwxps-]{3,5}$`)

// ParseMemoryMappings parses the console output of "info proc mappings".
// Two layouts exist: older gdb prints start/end/size/offset/path, newer
// adds a permissions column before the path. Rows are recognized by
// their four leading address columns; everything else (headers, blank
// lines) is skipped.
func ParseMemoryMappings(lines []string) []MemoryMapping {
	var mappings []MemoryMapping
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		var addrs [4]Address
		ok := true
		for i := 0; i < 4; i++ {
			addr, err := ParseAddress(fields[i])
			if err != nil {
				ok = false
				break
			}
			addrs[i] = addr
		}
		if !ok {
			continue
		}
		m := MemoryMapping{
			StartAddress: addrs[0],
			EndAddress:   addrs[1],
			Size:         addrs[2],
			Offset:       addrs[3],
		}
		rest := fields[4:]
		if len(rest) > 0 && permissionsRe.MatchString(rest[0]) {
			m.Permissions = rest[0]
			rest = rest[1:]
		}
		if len(rest) > 0 {
			// Paths may contain spaces; rejoin what Fields split.
			m.Path = strings.Join(rest, " ")
		}
		mappings = append(mappings, m)
	}
	return mappings
}
