package pyop

import (
	"testing"

	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("3.12.1")
	require.NoError(t, err)
	require.Equal(t, Py312, d)

	_, err = ParseDialect("3.10")
	require.ErrorIs(t, err, errz.UnsupportedVersion)
	require.Contains(t, err.Error(), `"3.10"`)
	require.Contains(t, err.Error(), "3.11-3.12")

	require.Error(t, Dialect(13).Check())
	require.NoError(t, Py311.Check())
}

func TestNumericTablesRoundTrip(t *testing.T) {
	for _, d := range Supported {
		for o := Opcode(1); o < opcodeCount; o++ {
			b, ok := d.Byte(o)
			if !ok {
				continue
			}
			require.Equal(t, o, d.FromByte(b), "%s %s", d, o)
		}
	}
	require.Equal(t, LoadMethod, Py311.FromByte(160))
	require.Equal(t, Invalid, Py312.FromByte(160))
	require.Equal(t, ReturnConst, Py312.FromByte(121))
	require.False(t, Py311.Has(EndFor))
}

func TestLookupByName(t *testing.T) {
	o, ok := Lookup("LOAD_FAST_AND_CLEAR")
	require.True(t, ok)
	require.Equal(t, LoadFastAndClear, o)
	require.Equal(t, "LOAD_FAST_AND_CLEAR", o.String())
	_, ok = Lookup("NOT_AN_OPCODE")
	require.False(t, ok)
}

func TestJumpTargets(t *testing.T) {
	tests := []struct {
		dialect Dialect
		op      Opcode
		offset  int
		arg     int
		want    int
	}{
		{Py311, JumpForward, 10, 3, 14},
		{Py311, JumpBackward, 20, 8, 13},
		{Py311, PopJumpBackwardIfTrue, 20, 5, 16},
		{Py311, ForIter, 6, 4, 11},
		{Py312, ForIter, 6, 4, 13},
		{Py312, Send, 12, 3, 17},
		{Py311, Send, 12, 3, 16},
		{Py312, PopJumpIfFalse, 2, 0, 3},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.dialect.JumpTarget(tt.op, tt.offset, tt.arg),
			"%s %s", tt.dialect, tt.op)
	}
	require.Equal(t, -1, Py311.JumpTarget(LoadConst, 0, 1))
}

func TestStackEffects(t *testing.T) {
	require.Equal(t, 2, Py311.StackEffect(LoadGlobal, 3, false))
	require.Equal(t, 1, Py312.StackEffect(LoadAttr, 5, false))
	require.Equal(t, 0, Py311.StackEffect(LoadAttr, 5, false))
	require.Equal(t, -3, Py312.StackEffect(Call, 2, false))
	require.Equal(t, -3, Py311.StackEffect(CallFunctionEx, 1, false))
	require.Equal(t, -3, Py311.StackEffect(MakeFunction, 0x0b, false))
	require.Equal(t, 1, Py311.StackEffect(ForIter, 0, false))
	require.Equal(t, -1, Py311.StackEffect(ForIter, 0, true))
	require.Equal(t, -1, Py311.StackEffect(Send, 0, true))
	require.Equal(t, 0, Py312.StackEffect(Send, 0, true))
	require.Equal(t, 0, Py311.StackEffect(JumpIfTrueOrPop, 0, true))
	require.Equal(t, -1, Py311.StackEffect(JumpIfTrueOrPop, 0, false))
	require.Equal(t, 3, Py311.StackEffect(UnpackEx, 1|2<<8, false))
	require.Equal(t, -1, Py312.StackEffect(FormatValue, 0x04, false))
	require.Equal(t, 1, Py311.StackEffect(ReturnGenerator, 0, false))
}

func TestTerminators(t *testing.T) {
	for _, o := range []Opcode{ReturnValue, ReturnConst, RaiseVarargs, Reraise, JumpForward, JumpBackward} {
		require.True(t, o.IsTerminator(), o.String())
	}
	require.False(t, ForIter.IsTerminator())
	require.True(t, ForIter.IsJump())
	require.Equal(t, Conditional, PopJumpIfNone.Jump())
}
