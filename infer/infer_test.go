package infer

import (
	"testing"

	"github.com/deepnoodle-ai/pyxlate/cfg"
	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/stretchr/testify/require"
)

func consts(values ...object.Object) []unit.Const {
	out := make([]unit.Const, len(values))
	for i, v := range values {
		out[i] = unit.Const{Value: v}
	}
	return out
}

func analyze(t *testing.T, a *pytest.Asm, u unit.Unit) *Result {
	t.Helper()
	u.Dialect = a.Dialect()
	u.Flags |= pyop.CoOptimized
	u.Instructions = a.Instructions()
	u.Exceptions = a.Entries()
	g, err := cfg.Build(&u)
	require.NoError(t, err)
	return Analyze(g)
}

// counter is
//
//	def f():
//	    i = 0
//	    while i < 10:
//	        i = i + step
//	    return i
func counter(step object.Object) (*pytest.Asm, unit.Unit) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("STORE_FAST", 0).
		Label("top").
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 2).
		Op("COMPARE_OP", pyop.CmpLt).
		Jump("POP_JUMP_FORWARD_IF_FALSE", "end").
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 3).
		Op("BINARY_OP", pyop.NbAdd).
		Op("STORE_FAST", 0).
		Jump("JUMP_BACKWARD", "top").
		Label("end").
		Op("LOAD_FAST", 0).
		Op("RETURN_VALUE")
	u := unit.Unit{
		VarNames: []string{"i"},
		Consts:   consts(object.None, object.NewInt(0), object.NewInt(10), step),
	}
	return a, u
}

func TestLoopCounterStaysInt(t *testing.T) {
	a, u := counter(object.NewInt(1))
	r := analyze(t, a, u)

	require.Equal(t, Int, r.Local(12, 0))
	require.Equal(t, []Kind{Int, Int}, r.Stack(5))
	code, ok := r.Specialize(5)
	require.True(t, ok)
	require.Equal(t, op.CompareInt, code)
	code, ok = r.Specialize(9)
	require.True(t, ok)
	require.Equal(t, op.AddInt, code)
}

func TestMixedNumericJoinIsDynamic(t *testing.T) {
	a, u := counter(object.NewFloat(0.5))
	r := analyze(t, a, u)

	require.Equal(t, Dynamic, r.Local(3, 0))
	require.Equal(t, Float, r.Top(9, 0))
	require.Equal(t, Dynamic, r.Top(10, 0))
	_, ok := r.Specialize(5)
	require.False(t, ok)
	_, ok = r.Specialize(9)
	require.False(t, ok)
}

func TestAnnotatedArgument(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 1).
		Op("BINARY_OP", pyop.NbMultiply).
		Op("RETURN_VALUE")
	u := unit.Unit{
		ArgCount: 1,
		VarNames: []string{"x"},
		Consts:   consts(object.None, object.NewFloat(2)),
	}

	r := analyze(t, a, u)
	require.Equal(t, Dynamic, r.Local(1, 0))
	_, ok := r.Specialize(3)
	require.False(t, ok)

	u.Annotations = []unit.Annotation{{Name: "x", Type: object.FloatType}}
	r = analyze(t, a, u)
	require.Equal(t, Float, r.Local(1, 0))
	code, ok := r.Specialize(3)
	require.True(t, ok)
	require.Equal(t, op.MultiplyFloat, code)
	require.Equal(t, Float, r.Top(4, 0))
}

func TestHandlerJoinsLocalsFromProtectedRange(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("STORE_FAST", 0).
		Label("try").
		Op("LOAD_CONST", 2).
		Op("STORE_FAST", 0).
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE").
		Label("handler").
		Op("PUSH_EXC_INFO").
		Op("POP_TOP").
		Op("POP_EXCEPT").
		Op("LOAD_FAST", 0).
		Op("RETURN_VALUE").
		Handler("try", "handler", "handler", 0, false)
	u := unit.Unit{
		VarNames: []string{"x"},
		Consts:   consts(object.None, object.NewInt(5), object.NewFloat(1.5)),
	}
	r := analyze(t, a, u)
	require.Equal(t, Int, r.Local(3, 0))
	require.Equal(t, Float, r.Local(5, 0))
	require.Equal(t, []Kind{Dynamic}, r.Stack(7))
	require.Equal(t, Dynamic, r.Local(10, 0))
}

func TestContainersAndSubscripts(t *testing.T) {
	// return [1, 2][0], "a" + "b"
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("LOAD_CONST", 2).
		Op("BUILD_LIST", 2).
		Op("LOAD_CONST", 3).
		Op("BINARY_SUBSCR").
		Op("LOAD_CONST", 4).
		Op("LOAD_CONST", 4).
		Op("BINARY_OP", pyop.NbAdd).
		Op("BUILD_TUPLE", 2).
		Op("RETURN_VALUE")
	u := unit.Unit{Consts: consts(object.None, object.NewInt(1), object.NewInt(2), object.NewInt(0), object.NewStr("a"))}
	r := analyze(t, a, u)

	require.Equal(t, []Kind{List, Int}, r.Stack(5))
	code, ok := r.Specialize(5)
	require.True(t, ok)
	require.Equal(t, op.BinarySubscrList, code)
	code, ok = r.Specialize(8)
	require.True(t, ok)
	require.Equal(t, op.AddStr, code)
	require.Equal(t, []Kind{Dynamic, Str}, r.Stack(9))
	require.Equal(t, []Kind{Tuple}, r.Stack(10))
}

func TestJoin(t *testing.T) {
	require.Equal(t, Int, Join(Bottom, Int))
	require.Equal(t, Int, Join(Int, Int))
	require.Equal(t, Dynamic, Join(Int, Float))
	require.Equal(t, Dynamic, Join(Dynamic, Bottom))
	require.Equal(t, "int", Int.String())
}
