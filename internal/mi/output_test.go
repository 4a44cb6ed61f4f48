package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultRecordWithToken(t *testing.T) {
	rec, ok := ParseLine("123^done\n").(*ResultRecord)
	require.True(t, ok, "expected a result record")

	assert.True(t, rec.HasToken)
	assert.Equal(t, uint64(123), rec.Token)
	assert.Equal(t, ResultDone, rec.Class)
	assert.Equal(t, 0, rec.Results.Len())
}

func TestParseResultRecordWithoutToken(t *testing.T) {
	rec, ok := ParseLine(`^error,msg="No symbol table is loaded."` + "\n").(*ResultRecord)
	require.True(t, ok)

	assert.False(t, rec.HasToken)
	assert.Equal(t, ResultError, rec.Class)
	assert.Equal(t, "No symbol table is loaded.", rec.Results.GetString("msg"))
}

func TestParseConsoleStreamEscapes(t *testing.T) {
	rec, ok := ParseLine("~\"a\\nb\"\n").(*StreamRecord)
	require.True(t, ok)

	assert.Equal(t, StreamConsole, rec.Kind)
	assert.Equal(t, "a\nb", rec.Data)
}

func TestParseStreamKinds(t *testing.T) {
	tests := []struct {
		line string
		kind StreamKind
		data string
	}{
		{`~"console"`, StreamConsole, "console"},
		{`@"target"`, StreamTarget, "target"},
		{`&"log\n"`, StreamLog, "log\n"},
	}
	for _, tt := range tests {
		rec, ok := ParseLine(tt.line).(*StreamRecord)
		require.True(t, ok, tt.line)
		assert.Equal(t, tt.kind, rec.Kind)
		assert.Equal(t, tt.data, rec.Data)
	}
}

func TestParseUnicodeEscape(t *testing.T) {
	rec, ok := ParseLine(`~"\u{41}\u{1F600}"`).(*StreamRecord)
	require.True(t, ok)
	assert.Equal(t, "A\U0001F600", rec.Data)
}

func TestParseEscapedWhitespaceSwallowed(t *testing.T) {
	rec, ok := ParseLine("~\"a\\   b\"").(*StreamRecord)
	require.True(t, ok)
	assert.Equal(t, "ab", rec.Data)
}

func TestParsePrompt(t *testing.T) {
	_, ok := ParseLine("(gdb) \n").(Prompt)
	assert.True(t, ok)
}

func TestParseUnmatchedLineBecomesTargetStream(t *testing.T) {
	for _, line := range []string{
		"Reading symbols from /bin/true...",
		"^bogus,foo=\"bar\"",
		"123~\"token before stream\"",
		"",
	} {
		rec, ok := ParseLine(line + "\n").(*StreamRecord)
		require.True(t, ok, "line %q should fall through", line)
		assert.Equal(t, StreamTarget, rec.Kind)
		assert.Equal(t, line, rec.Data)
	}
}

func TestParseAsyncStopped(t *testing.T) {
	line := `*stopped,reason="breakpoint-hit",bkptno="1",frame={addr="0x400123",func="main",args=[],file="a.c",line="5"}` + "\n"
	rec, ok := ParseLine(line).(*AsyncRecord)
	require.True(t, ok)

	assert.Equal(t, AsyncExec, rec.Kind)
	assert.Equal(t, AsyncStopped, rec.Class)
	assert.Equal(t, "breakpoint-hit", rec.Results.GetString("reason"))

	frame, ok := rec.Results.Get("frame").(*Map)
	require.True(t, ok)
	assert.Equal(t, "main", frame.GetString("func"))
	assert.Equal(t, "5", frame.GetString("line"))

	args, ok := frame.Get("args").(List)
	require.True(t, ok)
	assert.Empty(t, args)
}

func TestParseAsyncKinds(t *testing.T) {
	tests := []struct {
		line string
		kind AsyncKind
	}{
		{`*running,thread-id="all"`, AsyncExec},
		{`+download,section=".text"`, AsyncStatus},
		{`=thread-created,id="1",group-id="i1"`, AsyncNotify},
	}
	for _, tt := range tests {
		rec, ok := ParseLine(tt.line).(*AsyncRecord)
		require.True(t, ok, tt.line)
		assert.Equal(t, tt.kind, rec.Kind)
	}
}

func TestParseUnknownAsyncClassPassesThrough(t *testing.T) {
	rec, ok := ParseLine(`=tsv-created,name="trace_timestamp"`).(*AsyncRecord)
	require.True(t, ok)
	assert.Equal(t, AsyncClass("tsv-created"), rec.Class)
}

func TestParseLibraryLoadedEmptyTupleList(t *testing.T) {
	rec, ok := ParseLine("=library-loaded,ranges=[{}]\n").(*AsyncRecord)
	require.True(t, ok)

	assert.Equal(t, AsyncNotify, rec.Kind)
	assert.Equal(t, AsyncLibraryLoaded, rec.Class)

	ranges, ok := rec.Results.Get("ranges").(List)
	require.True(t, ok)
	require.Len(t, ranges, 1)

	inner, ok := ranges[0].(*Map)
	require.True(t, ok)
	assert.Equal(t, 0, inner.Len())
}

func TestParseDuplicateKeysCollapseToList(t *testing.T) {
	rec, ok := ParseLine(`^done,a="x",a="y"` + "\n").(*ResultRecord)
	require.True(t, ok)

	values, ok := rec.Results.Get("a").(List)
	require.True(t, ok)
	require.Len(t, values, 2)
	assert.Equal(t, String("x"), values[0])
	assert.Equal(t, String("y"), values[1])
}

func TestParseBareValueRunCollapsesToList(t *testing.T) {
	rec, ok := ParseLine(`^done,foo="a","b"` + "\n").(*ResultRecord)
	require.True(t, ok)

	values, ok := rec.Results.Get("foo").(List)
	require.True(t, ok)
	require.Len(t, values, 2)
	assert.Equal(t, String("a"), values[0])
	assert.Equal(t, String("b"), values[1])
}

func TestParseKVListFormDiscardsKeys(t *testing.T) {
	rec, ok := ParseLine(`^done,stack=[frame={level="0"},frame={level="1"}]`).(*ResultRecord)
	require.True(t, ok)

	stack, ok := rec.Results.Get("stack").(List)
	require.True(t, ok)
	require.Len(t, stack, 2)

	first, ok := stack[0].(*Map)
	require.True(t, ok)
	assert.Equal(t, "0", first.GetString("level"))
}

func TestParseBreakpointResult(t *testing.T) {
	line := `^done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",` +
		`addr="0x0000000000018fdf",func="test_app::main::{async_block#0}",` +
		`file="src/bin/test_app.rs",fullname="/work/src/bin/test_app.rs",` +
		`line="5",thread-groups=["i1"],times="0",original-location="test_app.rs:5"}`
	rec, ok := ParseLine(line).(*ResultRecord)
	require.True(t, ok)

	assert.False(t, rec.HasToken)
	assert.Equal(t, ResultDone, rec.Class)

	bkpt, ok := rec.Results.Get("bkpt").(*Map)
	require.True(t, ok)
	assert.Equal(t, "1", bkpt.GetString("number"))
	assert.Equal(t, "breakpoint", bkpt.GetString("type"))
	assert.Equal(t, "keep", bkpt.GetString("disp"))
	assert.Equal(t, "y", bkpt.GetString("enabled"))
	assert.Equal(t, "0x0000000000018fdf", bkpt.GetString("addr"))

	groups, ok := bkpt.Get("thread-groups").(List)
	require.True(t, ok)
	require.Len(t, groups, 1)
	assert.Equal(t, String("i1"), groups[0])
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	rec, ok := ParseLine(`^done,z="1",a="2",m="3"`).(*ResultRecord)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, rec.Results.Keys())
}

func TestDumpRendersTree(t *testing.T) {
	rec, ok := ParseLine(`^done,a="x",list=["1","2"],tuple={k="v"}`).(*ResultRecord)
	require.True(t, ok)
	assert.Equal(t, `{"a": "x","list": ["1","2"],"tuple": {"k": "v"}}`, rec.Results.Dump())
}
