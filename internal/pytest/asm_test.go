package pytest

import (
	"testing"

	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func branchy(d pyop.Dialect, jump string) *Asm {
	return New(d).
		Op("RESUME", 0).
		Op("LOAD_CONST", 300).
		Op("POP_TOP").
		Line(2).
		Op("LOAD_FAST", 0).
		Jump(jump, "end").
		Op("LOAD_CONST", 1).
		Op("POP_TOP").
		Label("end").
		Line(3).
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
}

func TestWordcodeMatchesTuples(t *testing.T) {
	for _, tc := range []struct {
		dialect pyop.Dialect
		jump    string
	}{
		{pyop.Py311, "POP_JUMP_FORWARD_IF_FALSE"},
		{pyop.Py312, "POP_JUMP_IF_FALSE"},
	} {
		t.Run(tc.dialect.String(), func(t *testing.T) {
			a := branchy(tc.dialect, tc.jump)
			fromTuples, err := decode.Decode(tc.dialect, a.Tuples())
			require.NoError(t, err)
			code, lines := a.Wordcode()
			fromBytes, err := decode.DecodeWordcode(tc.dialect, code, lines)
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(fromTuples, fromBytes))

			// RESUME, EXTENDED_ARG, LOAD_CONST, ...
			require.Equal(t, pyop.ExtendedArg, fromTuples[1].Op)
			require.Equal(t, 300, fromTuples[2].Arg)
			jump := fromTuples[5]
			require.Equal(t, fromTuples[8].Offset, jump.Target)
			require.True(t, fromTuples[8].JumpTarget)
			require.Equal(t, 3, fromTuples[8].Line)
		})
	}
}

func TestBackwardJump(t *testing.T) {
	a := New(pyop.Py312).
		Op("RESUME", 0).
		Label("top").
		Op("NOP").
		Jump("JUMP_BACKWARD", "top")
	instrs := a.Instructions()
	require.Equal(t, instrs[1].Offset, instrs[2].Target)
}

func TestExceptionEntries(t *testing.T) {
	a := New(pyop.Py311).
		Op("RESUME", 0).
		Label("try").
		Op("LOAD_CONST", 0).
		Op("BINARY_OP", 11).
		Label("end").
		Op("RETURN_VALUE").
		Label("handler").
		Op("RERAISE", 0).
		Handler("try", "end", "handler", 0, true)

	entries := a.Entries()
	require.Len(t, entries, 1)
	// BINARY_OP carries one cache unit in 3.11.
	require.Equal(t, decode.ExceptionEntry{Start: 1, End: 3, Target: 5, Depth: 0, Lasti: true}, entries[0])

	parsed, err := decode.ParseExceptionTable(a.ExceptionTable())
	require.NoError(t, err)
	require.Equal(t, entries, parsed)
}
