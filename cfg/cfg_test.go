package cfg

import (
	"errors"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/stretchr/testify/require"
)

func unitOf(a *pytest.Asm, u unit.Unit) *unit.Unit {
	u.Dialect = a.Dialect()
	u.Flags |= pyop.CoOptimized
	u.Instructions = a.Instructions()
	u.Exceptions = a.Entries()
	return &u
}

// tryExcept is
//
//	def f():
//	    a, b = 1, 2
//	    try:
//	        1 / 0
//	    except ZeroDivisionError:
//	        return a + b
func tryExcept() *pytest.Asm {
	return pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("UNPACK_SEQUENCE", 2).
		Op("STORE_FAST", 0).
		Op("STORE_FAST", 1).
		Label("try").
		Op("NOP").
		Op("LOAD_CONST", 2).
		Op("LOAD_CONST", 3).
		Op("BINARY_OP", pyop.NbTrueDivide).
		Op("POP_TOP").
		Label("try_end").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE").
		Label("handler").
		Op("PUSH_EXC_INFO").
		Label("match").
		Op("LOAD_GLOBAL", 0).
		Op("CHECK_EXC_MATCH").
		Jump("POP_JUMP_FORWARD_IF_FALSE", "no_match").
		Op("POP_TOP").
		Op("LOAD_FAST", 0).
		Op("LOAD_FAST", 1).
		Op("BINARY_OP", pyop.NbAdd).
		Label("match_end").
		Op("SWAP", 2).
		Op("POP_EXCEPT").
		Op("RETURN_VALUE").
		Label("no_match").
		Op("RERAISE", 0).
		Label("cleanup").
		Op("COPY", 3).
		Op("POP_EXCEPT").
		Op("RERAISE", 1).
		Handler("try", "try_end", "handler", 0, false).
		Handler("match", "match_end", "cleanup", 1, true)
}

func TestBlocksSplitAtJumpsAndHandlers(t *testing.T) {
	g, err := Build(unitOf(tryExcept(), unit.Unit{VarNames: []string{"a", "b"}}))
	require.NoError(t, err)

	var starts []int
	for _, b := range g.Blocks {
		starts = append(starts, b.Start)
	}
	require.Equal(t, []int{0, 5, 10, 12, 13, 16, 20, 23, 24}, starts)

	try := g.BlockAt(5)
	require.NotNil(t, try.Handler)
	require.Contains(t, try.Succs, Edge{To: g.BlockAt(12).ID, Kind: Exception})
	require.Nil(t, g.BlockAt(0).Handler)
	require.Nil(t, g.BlockAt(12).Handler)

	require.Equal(t, 0, g.Depth[10])
	require.Equal(t, 1, g.BlockAt(12).EntryDepth)
	require.Equal(t, 2, g.BlockAt(23).EntryDepth)
	require.Equal(t, 3, g.BlockAt(24).EntryDepth)
	require.Equal(t, 4, g.MaxDepth)
	require.NoError(t, g.CheckMerges())
}

func TestHandlerSeesBindingsFromBeforeTheTry(t *testing.T) {
	g, err := Build(unitOf(tryExcept(), unit.Unit{VarNames: []string{"a", "b"}}))
	require.NoError(t, err)
	require.False(t, g.Assigned(1, 0))
	require.True(t, g.Assigned(17, 0))
	require.True(t, g.Assigned(18, 1))

	// x = 1 inside the try is not definitely bound in the handler.
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Label("try").
		Op("LOAD_CONST", 0).
		Op("STORE_FAST", 0).
		Label("try_end").
		Op("LOAD_FAST", 0).
		Op("RETURN_VALUE").
		Label("handler").
		Op("PUSH_EXC_INFO").
		Op("POP_TOP").
		Op("POP_EXCEPT").
		Op("LOAD_FAST", 0).
		Op("RETURN_VALUE").
		Handler("try", "try_end", "handler", 0, false)
	g, err = Build(unitOf(a, unit.Unit{VarNames: []string{"x"}}))
	require.NoError(t, err)
	require.True(t, g.Assigned(3, 0))
	require.False(t, g.Assigned(8, 0))
	require.Contains(t, g.Live(g.BlockAt(1).ID), "x")
}

// ifElse is
//
//	def f(flag):
//	    if flag: v = 1
//	    else: v = 2   (omitted when bothArms is false)
//	    return v
func ifElse(bothArms bool) *pytest.Asm {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Jump("POP_JUMP_FORWARD_IF_FALSE", "else").
		Op("LOAD_CONST", 1).
		Op("STORE_FAST", 1).
		Jump("JUMP_FORWARD", "join").
		Label("else")
	if bothArms {
		a.Op("LOAD_CONST", 2).Op("STORE_FAST", 1)
	} else {
		a.Op("NOP").Op("NOP")
	}
	return a.Label("join").
		Op("LOAD_FAST", 1).
		Op("RETURN_VALUE")
}

func TestDefiniteAssignmentAtMerge(t *testing.T) {
	u := unit.Unit{ArgCount: 1, VarNames: []string{"flag", "v"}}

	g, err := Build(unitOf(ifElse(true), u))
	require.NoError(t, err)
	require.True(t, g.Assigned(8, 1))
	require.True(t, g.Assigned(1, 0))

	g, err = Build(unitOf(ifElse(false), u))
	require.NoError(t, err)
	require.False(t, g.Assigned(8, 1))
}

func TestLiveness(t *testing.T) {
	g, err := Build(unitOf(ifElse(true), unit.Unit{ArgCount: 1, VarNames: []string{"flag", "v"}}))
	require.NoError(t, err)
	require.Equal(t, []string{"flag", "v"}, g.SlotNames())

	entry := g.BlockAt(0).ID
	join := g.BlockAt(8).ID
	require.True(t, g.LiveIn(entry, 0))
	require.False(t, g.LiveIn(entry, 1))
	require.True(t, g.LiveIn(join, 1))
	require.False(t, g.LiveOut(join, 1))
	require.True(t, g.LiveOut(g.BlockAt(3).ID, 1))
	require.Equal(t, 1, g.LiveCount(join))
}

func TestDepthMismatchIsMalformed(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Jump("POP_JUMP_FORWARD_IF_FALSE", "join").
		Op("LOAD_CONST", 0).
		Label("join").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	_, err := Build(unitOf(a, unit.Unit{ArgCount: 1, VarNames: []string{"x"}}))
	require.Error(t, err)
	require.True(t, errors.Is(err, errz.Malformed))
	require.Contains(t, err.Error(), "stack depth")
}

func TestPartialRangeOverlapIsMalformed(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Label("a").
		Op("NOP").
		Label("b").
		Op("NOP").
		Label("a_end").
		Op("NOP").
		Label("b_end").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE").
		Label("handler").
		Op("RERAISE", 0).
		Handler("a", "a_end", "handler", 0, false).
		Handler("b", "b_end", "handler", 0, false)
	_, err := Build(unitOf(a, unit.Unit{}))
	require.True(t, errors.Is(err, errz.Malformed))
	require.Contains(t, err.Error(), "partially overlap")
}

func TestUnreachableCode(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	g, err := Build(unitOf(a, unit.Unit{}))
	require.NoError(t, err)
	require.True(t, g.Reachable(2))
	require.False(t, g.Reachable(3))
	require.False(t, g.BlockAt(3).Reachable())
}

func TestLiveAfterInstruction(t *testing.T) {
	g, err := Build(unitOf(ifElse(true), unit.Unit{ArgCount: 1, VarNames: []string{"flag", "v"}}))
	require.NoError(t, err)

	// flag is read by the branch and dead after it.
	require.Equal(t, []int{0}, g.LiveAfter(0))
	require.Empty(t, g.LiveAfter(1))
	// v is live from its store until the final load.
	require.Equal(t, []int{1}, g.LiveAfter(4))
	require.Empty(t, g.LiveAfter(9))
}
