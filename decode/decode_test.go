package decode

import (
	"math/rand"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestDecodeTuples311(t *testing.T) {
	// def f(x):
	//     if x: return 1
	//     return 2
	tuples := []Tuple{
		{Opname: "RESUME", Arg: intp(0), Offset: 0, Line: 1},
		{Opname: "LOAD_FAST", Arg: intp(0), Offset: 2, Line: 2},
		{Opname: "POP_JUMP_FORWARD_IF_FALSE", Arg: intp(2), Offset: 4, Line: 2},
		{Opname: "LOAD_CONST", Arg: intp(1), Offset: 6, Line: 2},
		{Opname: "RETURN_VALUE", Offset: 8, Line: 2},
		{Opname: "LOAD_CONST", Arg: intp(2), Offset: 10, Line: 3},
		{Opname: "RETURN_VALUE", Offset: 12, Line: 3},
	}
	instrs, err := Decode(pyop.Py311, tuples)
	require.NoError(t, err)
	require.Len(t, instrs, 7)
	require.Equal(t, pyop.PopJumpForwardIfFalse, instrs[2].Op)
	require.Equal(t, 5, instrs[2].Target)
	require.True(t, instrs[5].JumpTarget)
	require.Equal(t, 0, instrs[4].Arg)
	require.Equal(t, 3, instrs[6].Line)
}

func TestDecodeDropsExplicitCaches(t *testing.T) {
	tuples := []Tuple{
		{Opname: "LOAD_FAST", Arg: intp(0), Offset: 0},
		{Opname: "LOAD_FAST", Arg: intp(1), Offset: 2},
		{Opname: "BINARY_OP", Arg: intp(0), Offset: 4},
		{Opname: "CACHE", Arg: intp(0), Offset: 6},
		{Opname: "RETURN_VALUE", Offset: 8},
	}
	instrs, err := Decode(pyop.Py312, tuples)
	require.NoError(t, err)
	require.Len(t, instrs, 4)
	require.Equal(t, 4, instrs[3].Offset)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := Decode(pyop.Dialect(10), nil)
	require.ErrorIs(t, err, errz.UnsupportedVersion)

	_, err = Decode(pyop.Py312, []Tuple{{Opname: "LOAD_METHOD", Arg: intp(0)}})
	require.ErrorIs(t, err, errz.Malformed)

	_, err = Decode(pyop.Py312, []Tuple{
		{Opname: "NOP", Offset: 2},
		{Opname: "NOP", Offset: 2},
	})
	require.ErrorIs(t, err, errz.Malformed)

	_, err = Decode(pyop.Py312, []Tuple{{Opname: "JUMP_FORWARD", Arg: intp(7), Offset: 0}})
	require.ErrorIs(t, err, errz.Malformed)
}

func TestDecodeWordcode312(t *testing.T) {
	d := pyop.Py312
	byteOf := func(o pyop.Opcode) byte {
		b, ok := d.Byte(o)
		require.True(t, ok)
		return b
	}
	// RESUME 0; LOAD_FAST 0; EXTENDED_ARG 1; LOAD_CONST 300;
	// BINARY_OP 0 + cache; RETURN_VALUE
	code := []byte{
		byteOf(pyop.Resume), 0,
		byteOf(pyop.LoadFast), 0,
		byteOf(pyop.ExtendedArg), 1,
		byteOf(pyop.LoadConst), 44,
		byteOf(pyop.BinaryOp), 0, 0, 0,
		byteOf(pyop.ReturnValue), 0,
	}
	instrs, err := DecodeWordcode(d, code, []LineStart{{Offset: 0, Line: 1}, {Offset: 2, Line: 2}})
	require.NoError(t, err)
	var ops []pyop.Opcode
	var offsets []int
	for _, in := range instrs {
		ops = append(ops, in.Op)
		offsets = append(offsets, in.Offset)
	}
	require.Equal(t, []pyop.Opcode{pyop.Resume, pyop.LoadFast, pyop.ExtendedArg,
		pyop.LoadConst, pyop.BinaryOp, pyop.ReturnValue}, ops)
	require.Equal(t, []int{0, 1, 2, 3, 4, 6}, offsets)
	require.Equal(t, 300, instrs[3].Arg)
	require.Equal(t, 1, instrs[0].Line)
	require.Equal(t, 2, instrs[5].Line)

	_, err = DecodeWordcode(d, []byte{1}, nil)
	require.ErrorIs(t, err, errz.Malformed)
}

func TestDecodeOffsetsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := []pyop.Opcode{pyop.Nop, pyop.PopTop, pyop.LoadFast, pyop.LoadConst,
		pyop.BinaryOp, pyop.LoadGlobal, pyop.LoadAttr, pyop.Call, pyop.CompareOp,
		pyop.StoreFast, pyop.BinarySubscr, pyop.UnpackSequence}
	for _, d := range pyop.Supported {
		for round := 0; round < 50; round++ {
			var tuples []Tuple
			unit := 0
			for i := 0; i < 1+rng.Intn(40); i++ {
				op := pool[rng.Intn(len(pool))]
				tuples = append(tuples, Tuple{Opname: op.String(), Arg: intp(rng.Intn(4)), Offset: 2 * unit})
				unit += 1 + d.CacheEntries(op)
			}
			instrs, err := Decode(d, tuples)
			require.NoError(t, err)
			require.Len(t, instrs, len(tuples))
			for i, in := range instrs {
				require.Equal(t, tuples[i].Offset, 2*in.Offset)
				require.Equal(t, tuples[i].Opname, in.Op.String())
				if i > 0 {
					require.Greater(t, in.Offset, instrs[i-1].Offset)
				}
			}
		}
	}
}

func TestParseExceptionTable(t *testing.T) {
	table := []byte{
		0x82, 0x05, 0x0a, 0x00,
		0x8a, 0x03, 0x0f, 0x03,
		0xc1, 0x24, 0x01, 0x41, 0x00, 0x04,
	}
	entries, err := ParseExceptionTable(table)
	require.NoError(t, err)
	want := []ExceptionEntry{
		{Start: 2, End: 6, Target: 10, Depth: 0},
		{Start: 10, End: 12, Target: 15, Depth: 1, Lasti: true},
		{Start: 100, End: 100, Target: 64, Depth: 2},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "10 to 12 -> 15 [1] lasti", entries[1].String())
	require.Equal(t, table, EncodeExceptionTable(entries))
}

func TestParseExceptionTableEdges(t *testing.T) {
	entries, err := ParseExceptionTable(nil)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = ParseExceptionTable([]byte{0x82, 0x05, 0x0a})
	require.ErrorIs(t, err, errz.Malformed)

	_, err = ParseExceptionTable([]byte{0x82, 0x45})
	require.ErrorIs(t, err, errz.Malformed)
}
