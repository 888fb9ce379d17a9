package math

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, fname string, args ...object.Object) (object.Object, error) {
	t.Helper()
	fn := Module().AttrDict().GetStr(fname)
	require.NotNil(t, fn, fname)
	return object.Call(context.Background(), fn, args, nil)
}

func requireFloat(t *testing.T, want float64, got object.Object) {
	t.Helper()
	f, ok := got.(*object.Float)
	require.True(t, ok, "got %T", got)
	require.InDelta(t, want, f.Value(), 1e-12)
}

func requireValueError(t *testing.T, err error, msg string) {
	t.Helper()
	require.True(t, object.IsExceptionOf(err, object.ValueErrorType), "got %v", err)
	require.Contains(t, err.Error(), msg)
}

func TestConstants(t *testing.T) {
	d := Module().AttrDict()
	requireFloat(t, math.Pi, d.GetStr("pi"))
	requireFloat(t, math.E, d.GetStr("e"))
	requireFloat(t, 2*math.Pi, d.GetStr("tau"))
	require.True(t, math.IsInf(d.GetStr("inf").(*object.Float).Value(), 1))
	require.True(t, math.IsNaN(d.GetStr("nan").(*object.Float).Value()))
}

func TestSqrt(t *testing.T) {
	res, err := call(t, "sqrt", object.NewInt(16))
	require.NoError(t, err)
	requireFloat(t, 4, res)

	_, err = call(t, "sqrt", object.NewFloat(-1))
	requireValueError(t, err, "math domain error")

	_, err = call(t, "sqrt", object.NewStr("x"))
	require.True(t, object.IsExceptionOf(err, object.TypeErrorType))
}

func TestFloorCeilReturnInt(t *testing.T) {
	tests := []struct {
		fn   string
		in   float64
		want int64
	}{
		{"floor", 2.5, 2},
		{"floor", -2.5, -3},
		{"ceil", 2.1, 3},
		{"ceil", -2.1, -2},
		{"trunc", -2.9, -2},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			res, err := call(t, tt.fn, object.NewFloat(tt.in))
			require.NoError(t, err)
			n, ok := res.(*object.Int)
			require.True(t, ok)
			v, _ := n.Int64()
			require.Equal(t, tt.want, v)
		})
	}

	_, err := call(t, "floor", object.NewFloat(math.Inf(1)))
	require.True(t, object.IsExceptionOf(err, object.OverflowErrorType))
}

func TestLog(t *testing.T) {
	res, err := call(t, "log", object.NewInt(8), object.NewInt(2))
	require.NoError(t, err)
	requireFloat(t, 3, res)

	res, err = call(t, "log10", object.NewInt(1000))
	require.NoError(t, err)
	requireFloat(t, 3, res)

	_, err = call(t, "log", object.NewInt(0))
	requireValueError(t, err, "math domain error")

	big, err := object.ParseInt("1"+strings.Repeat("0", 40), 10)
	require.NoError(t, err)
	res, err = call(t, "log10", big)
	require.NoError(t, err)
	require.InDelta(t, 40, res.(*object.Float).Value(), 1e-9)
}

func TestRangeErrors(t *testing.T) {
	_, err := call(t, "exp", object.NewInt(1000))
	require.True(t, object.IsExceptionOf(err, object.OverflowErrorType))
	require.Contains(t, err.Error(), "math range error")

	_, err = call(t, "pow", object.NewInt(0), object.NewInt(-1))
	requireValueError(t, err, "math domain error")

	_, err = call(t, "atanh", object.NewInt(1))
	requireValueError(t, err, "math domain error")
}

func TestIntegerFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []int64
		want string
	}{
		{"factorial", "factorial", []int64{25}, "15511210043330985984000000"},
		{"gcd", "gcd", []int64{12, -18, 30}, "6"},
		{"gcd none", "gcd", nil, "0"},
		{"lcm", "lcm", []int64{4, 6}, "12"},
		{"isqrt", "isqrt", []int64{99}, "9"},
		{"comb", "comb", []int64{5, 2}, "10"},
		{"comb k>n", "comb", []int64{2, 5}, "0"},
		{"perm", "perm", []int64{5, 2}, "20"},
		{"perm full", "perm", []int64{4}, "24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []object.Object
			for _, a := range tt.args {
				args = append(args, object.NewInt(a))
			}
			res, err := call(t, tt.fn, args...)
			require.NoError(t, err)
			require.Equal(t, tt.want, res.(*object.Int).String())
		})
	}

	_, err := call(t, "factorial", object.NewInt(-1))
	requireValueError(t, err, "factorial() not defined for negative values")

	_, err = call(t, "factorial", object.NewFloat(2.5))
	require.True(t, object.IsExceptionOf(err, object.TypeErrorType))
}

func TestFsumIsExact(t *testing.T) {
	items := make([]object.Object, 10)
	for i := range items {
		items[i] = object.NewFloat(0.1)
	}
	res, err := call(t, "fsum", object.NewList(items))
	require.NoError(t, err)
	require.Equal(t, 1.0, res.(*object.Float).Value())
}

func TestProd(t *testing.T) {
	list := object.NewList([]object.Object{object.NewInt(2), object.NewInt(3), object.NewInt(4)})
	res, err := call(t, "prod", list)
	require.NoError(t, err)
	require.Equal(t, "24", res.(*object.Int).String())
}

func TestIsClose(t *testing.T) {
	ok, err := IsClose(1.0, 1.0+1e-10, 1e-9, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = IsClose(1.0, 1.1, 1e-9, 0)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = IsClose(1, 1, -1, 0)
	require.Error(t, err)
}

func TestFrexpModf(t *testing.T) {
	res, err := call(t, "frexp", object.NewFloat(8))
	require.NoError(t, err)
	items := res.(*object.Tuple).Items()
	requireFloat(t, 0.5, items[0])
	require.Equal(t, "4", items[1].(*object.Int).String())

	res, err = call(t, "modf", object.NewFloat(-3.25))
	require.NoError(t, err)
	items = res.(*object.Tuple).Items()
	requireFloat(t, -0.25, items[0])
	requireFloat(t, -3, items[1])
}
