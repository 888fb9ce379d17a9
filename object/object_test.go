package object

import (
	"context"
	"math"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/stretchr/testify/require"
)

func repr(t *testing.T, o Object) string {
	t.Helper()
	s, err := Repr(context.Background(), o)
	require.NoError(t, err)
	return s
}

func TestIntArithmetic(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		bop      op.BinaryOpType
		a, b     Object
		expected string
	}{
		{op.FloorDiv, NewInt(-7), NewInt(2), "-4"},
		{op.Modulo, NewInt(-7), NewInt(2), "1"},
		{op.Modulo, NewInt(7), NewInt(-2), "-1"},
		{op.Add, NewInt(math.MaxInt64), NewInt(1), "9223372036854775808"},
		{op.Multiply, NewInt(math.MaxInt64), NewInt(2), "18446744073709551614"},
		{op.TrueDiv, NewInt(7), NewInt(2), "3.5"},
		{op.Add, NewInt(1), NewFloat(0.5), "1.5"},
		{op.FloorDiv, NewInt(-7), NewInt(-2), "3"},
		{op.Modulo, NewInt(-7), NewInt(-2), "-1"},
		{op.FloorDiv, NewInt(7), NewInt(-2), "-4"},
		{op.FloorDiv, NewFloat(-7.5), NewInt(2), "-4.0"},
		{op.Modulo, NewFloat(-7.5), NewInt(2), "0.5"},
		{op.FloorDiv, NewFloat(7.5), NewInt(-2), "-4.0"},
		{op.Modulo, NewFloat(7.5), NewInt(-2), "-0.5"},
		{op.FloorDiv, NewFloat(-7.5), NewInt(-2), "3.0"},
		{op.Modulo, NewFloat(-7.5), NewInt(-2), "-1.5"},
		{op.FloorDiv, NewInt(7), NewFloat(2.5), "2.0"},
		{op.Modulo, NewInt(7), NewFloat(2.5), "2.0"},
		{op.FloorDiv, NewFloat(math.Copysign(0, -1)), NewFloat(5), "-0.0"},
		{op.Modulo, NewFloat(math.Copysign(0, -1)), NewFloat(5), "0.0"},
		{op.FloorDiv, NewFloat(0), NewFloat(-5), "-0.0"},
		{op.Modulo, NewFloat(0), NewFloat(-5), "-0.0"},
		{op.FloorDiv, NewInt(-1), NewFloat(3), "-1.0"},
		{op.Modulo, NewInt(-1), NewFloat(3), "2.0"},
		{op.FloorDiv, NewFloat(1e308), NewFloat(1e-308), "inf"},
		{op.FloorDiv, NewFloat(-5.5), NewFloat(math.Inf(1)), "-1.0"},
		{op.Modulo, NewFloat(-5.5), NewFloat(math.Inf(1)), "inf"},
		{op.Modulo, NewFloat(5.5), NewFloat(math.Inf(1)), "5.5"},
	}
	for _, tt := range tests {
		t.Run(tt.bop.Dunder(), func(t *testing.T) {
			result, err := BinaryOp(ctx, tt.bop, tt.a, tt.b)
			require.NoError(t, err)
			require.Equal(t, tt.expected, repr(t, result))
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	ctx := context.Background()
	for _, bop := range []op.BinaryOpType{op.FloorDiv, op.Modulo, op.TrueDiv} {
		_, err := BinaryOp(ctx, bop, NewInt(1), NewInt(0))
		require.True(t, IsExceptionOf(err, ZeroDivisionErrorType), "%s", bop.Dunder())
		_, err = BinaryOp(ctx, bop, NewFloat(1.5), NewFloat(math.Copysign(0, -1)))
		require.True(t, IsExceptionOf(err, ZeroDivisionErrorType), "%s", bop.Dunder())
	}
	_, err := BinaryOp(ctx, op.FloorDiv, NewFloat(1), NewInt(0))
	require.EqualError(t, err, "ZeroDivisionError: float floor division by zero")
}

func TestFloatRepr(t *testing.T) {
	tests := map[float64]string{
		1.0:                  "1.0",
		0.1:                  "0.1",
		-2.5:                 "-2.5",
		0.0001:               "0.0001",
		1e-5:                 "1e-05",
		1e16:                 "1e+16",
		123456789012345678.0: "1.2345678901234568e+17",
		math.Inf(1):          "inf",
		math.Inf(-1):         "-inf",
		1234567890123456.0:   "1234567890123456.0",
		0.30000000000000004:  "0.30000000000000004",
	}
	for v, expected := range tests {
		require.Equal(t, expected, FormatFloatRepr(v))
	}
}

func TestStrRepr(t *testing.T) {
	require.Equal(t, `'abc'`, repr(t, NewStr("abc")))
	require.Equal(t, `"it's"`, repr(t, NewStr("it's")))
	require.Equal(t, `'a\nb'`, repr(t, NewStr("a\nb")))
}

func TestDictKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	d := NewDict()
	require.NoError(t, d.Set(ctx, NewStr("b"), NewInt(1)))
	require.NoError(t, d.Set(ctx, NewStr("a"), NewInt(2)))
	require.NoError(t, d.Set(ctx, NewStr("b"), NewInt(3)))
	require.Equal(t, "{'b': 3, 'a': 2}", repr(t, d))

	deleted, err := d.Delete(ctx, NewStr("b"))
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, d.Set(ctx, NewStr("b"), NewInt(4)))
	require.Equal(t, "{'a': 2, 'b': 4}", repr(t, d))
	require.Equal(t, 2, d.Len())
}

func TestEqualNumbersHashEqual(t *testing.T) {
	ctx := context.Background()
	hi, err := Hash(ctx, NewInt(1))
	require.NoError(t, err)
	hf, err := Hash(ctx, NewFloat(1.0))
	require.NoError(t, err)
	hb, err := Hash(ctx, True)
	require.NoError(t, err)
	require.Equal(t, int64(1), hi)
	require.Equal(t, hi, hf)
	require.Equal(t, hi, hb)

	// A float key finds the int entry.
	d := NewDict()
	require.NoError(t, d.Set(ctx, NewInt(1), NewStr("one")))
	v, ok, err := d.Get(ctx, NewFloat(1.0))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "'one'", repr(t, v))

	_, err = Hash(ctx, NewList(nil))
	require.EqualError(t, err, "TypeError: unhashable type: 'list'")
}

func TestClassMRO(t *testing.T) {
	a, err := NewClass(ClassSpec{Name: "A"})
	require.NoError(t, err)
	b, err := NewClass(ClassSpec{Name: "B", Bases: []*Type{a}})
	require.NoError(t, err)
	c, err := NewClass(ClassSpec{Name: "C", Bases: []*Type{a}})
	require.NoError(t, err)
	d, err := NewClass(ClassSpec{Name: "D", Bases: []*Type{b, c}})
	require.NoError(t, err)

	var names []string
	for _, typ := range d.MRO() {
		names = append(names, typ.Name())
	}
	require.Equal(t, []string{"D", "B", "C", "A", "object"}, names)
	require.True(t, d.IsSubtype(a))
	require.False(t, a.IsSubtype(d))

	_, err = NewClass(ClassSpec{Name: "E", Bases: []*Type{a, b}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Cannot create a consistent method resolution order (MRO) for bases A, B")
}

func TestPercentFormatBytes(t *testing.T) {
	ctx := context.Background()
	args := NewTuple([]Object{NewBytes([]byte("x")), NewByteArray([]byte("yz")), NewBytes([]byte("ab"))})
	out, err := PercentFormatBytes(ctx, []byte("%b|%s|%5b"), args)
	require.NoError(t, err)
	require.Equal(t, "x|yz|   ab", string(out))

	_, err = PercentFormatBytes(ctx, []byte("%b"), NewStr("str"))
	require.True(t, IsExceptionOf(err, TypeErrorType))
	require.Contains(t, err.Error(), "%b requires a bytes-like object")
}
