package vm

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/codegen"
	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/stretchr/testify/require"
)

func assemble(a *pytest.Asm, u unit.Unit) *unit.Unit {
	u.Dialect = a.Dialect()
	u.Instructions = a.Instructions()
	u.Exceptions = a.Entries()
	u.Flags |= pyop.CoOptimized | pyop.CoNewLocals
	if u.Name == "" {
		u.Name = "f"
	}
	if u.QualName == "" {
		u.QualName = u.Name
	}
	return &u
}

func function(t *testing.T, a *pytest.Asm, u unit.Unit, globals *object.Dict) *object.Function {
	t.Helper()
	code, err := codegen.Generate(assemble(a, u))
	require.NoError(t, err)
	if globals == nil {
		globals = object.NewDict()
	}
	return object.NewFunction(object.FunctionParams{Code: code, Globals: globals})
}

func consts(values ...object.Object) []unit.Const {
	out := make([]unit.Const, len(values))
	for i, v := range values {
		out[i] = unit.Const{Value: v}
	}
	return out
}

func ints(values ...int64) []object.Object {
	out := make([]object.Object, len(values))
	for i, v := range values {
		out[i] = object.NewInt(v)
	}
	return out
}

// def f(x): return x + 1
func addOne() (*pytest.Asm, unit.Unit) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 1).
		Op("BINARY_OP", pyop.NbAdd).
		Op("RETURN_VALUE")
	return a, unit.Unit{ArgCount: 1, VarNames: []string{"x"}, Consts: consts(object.None, object.NewInt(1))}
}

func TestAddPromotesPastInt64(t *testing.T) {
	want := new(big.Int).Add(big.NewInt(math.MaxInt64), big.NewInt(1))
	ctx := context.Background()

	a, u := addOne()
	generic := function(t, a, u, nil)
	u.Annotations = []unit.Annotation{{Name: "x", Type: object.IntType}}
	specialized := function(t, a, u, nil)

	for _, fn := range []*object.Function{generic, specialized} {
		res, err := New().Call(ctx, fn, ints(math.MaxInt64), nil)
		require.NoError(t, err)
		n, ok := res.(*object.Int)
		require.True(t, ok)
		require.Equal(t, 0, n.Big().Cmp(want), n.String())
	}
}

func TestClosureCellIsShared(t *testing.T) {
	// def inner():
	//     nonlocal x
	//     x += 1
	//     return x
	in := pytest.New(pyop.Py311).
		Op("COPY_FREE_VARS", 1).
		Op("RESUME", 0).
		Op("LOAD_DEREF", 0).
		Op("LOAD_CONST", 1).
		Op("BINARY_OP", pyop.NbAdd+pyop.InplaceOffset).
		Op("STORE_DEREF", 0).
		Op("LOAD_DEREF", 0).
		Op("RETURN_VALUE")
	inner := assemble(in, unit.Unit{
		Name:     "inner",
		QualName: "outer.<locals>.inner",
		Flags:    pyop.CoNested,
		FreeVars: []string{"x"},
		Consts:   consts(object.None, object.NewInt(1)),
	})

	// def outer():
	//     x = 1
	//     ...
	//     inner(); inner()
	//     return x
	out := pytest.New(pyop.Py311).
		Op("MAKE_CELL", 1).
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("STORE_DEREF", 1).
		Op("LOAD_CLOSURE", 1).
		Op("BUILD_TUPLE", 1).
		Op("LOAD_CONST", 2).
		Op("MAKE_FUNCTION", 8).
		Op("STORE_FAST", 0).
		Op("PUSH_NULL").
		Op("LOAD_FAST", 0).
		Op("PRECALL", 0).
		Op("CALL", 0).
		Op("POP_TOP").
		Op("PUSH_NULL").
		Op("LOAD_FAST", 0).
		Op("PRECALL", 0).
		Op("CALL", 0).
		Op("POP_TOP").
		Op("LOAD_DEREF", 1).
		Op("RETURN_VALUE")
	fn := function(t, out, unit.Unit{
		Name:     "outer",
		VarNames: []string{"inner"},
		CellVars: []string{"x"},
		Consts:   []unit.Const{{Value: object.None}, {Value: object.NewInt(1)}, {Code: inner}},
	}, nil)

	res, err := New().Call(context.Background(), fn, nil, nil)
	require.NoError(t, err)
	require.Equal(t, object.NewInt(3), res)
}

// tryDivide is
//
//	def f():
//	    a, b = 1, 2
//	    try:
//	        1 / 0
//	    except <name>:
//	        return a + b
func tryDivide(name string) (*pytest.Asm, unit.Unit) {
	a := pytest.New(pyop.Py311).
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
		Handler("match", "match_end", "cleanup", 1, true).
		Handler("no_match", "cleanup", "cleanup", 1, true)
	u := unit.Unit{
		VarNames: []string{"a", "b"},
		Names:    []string{name},
		Consts: consts(object.None,
			object.NewTuple(ints(1, 2)),
			object.NewInt(1), object.NewInt(0)),
	}
	return a, u
}

func TestExceptHandlerCatchesZeroDivision(t *testing.T) {
	a, u := tryDivide("ZeroDivisionError")
	fn := function(t, a, u, nil)
	res, err := New().Call(context.Background(), fn, nil, nil)
	require.NoError(t, err)
	require.Equal(t, object.NewInt(3), res)
}

func TestUnmatchedExceptionPropagates(t *testing.T) {
	a, u := tryDivide("ValueError")
	fn := function(t, a, u, nil)
	_, err := New().Call(context.Background(), fn, nil, nil)
	require.Error(t, err)
	exc, ok := object.AsException(err)
	require.True(t, ok)
	require.Equal(t, object.ZeroDivisionErrorType, exc.Type())
	require.NotEmpty(t, exc.Trace)
	require.Equal(t, "f", exc.Trace[0].QualName)
}

func TestArgumentBindingErrors(t *testing.T) {
	// def f(a, b): return a
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("RETURN_VALUE")
	fn := function(t, a, unit.Unit{ArgCount: 2, VarNames: []string{"a", "b"}, Consts: consts(object.None)}, nil)
	machine := New()
	ctx := context.Background()

	tests := []struct {
		args    []object.Object
		kwnames []string
		want    string
	}{
		{nil, nil, "f() missing 2 required positional arguments: 'a' and 'b'"},
		{ints(1), nil, "f() missing 1 required positional argument: 'b'"},
		{ints(1, 2, 3), nil, "f() takes 2 positional arguments but 3 were given"},
		{ints(1, 2, 3), []string{"c"}, "f() got an unexpected keyword argument 'c'"},
		{ints(1, 2, 3), []string{"a"}, "f() got multiple values for argument 'a'"},
	}
	for _, tt := range tests {
		_, err := machine.Call(ctx, fn, tt.args, tt.kwnames)
		require.True(t, object.IsExceptionOf(err, object.TypeErrorType), "%v", err)
		require.ErrorContains(t, err, tt.want)
	}

	res, err := machine.Call(ctx, fn, ints(2, 1), []string{"b"})
	require.NoError(t, err)
	require.Equal(t, object.NewInt(2), res)
}

func TestRecursionLimit(t *testing.T) {
	// def r(n): return r(n)
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_GLOBAL", 1).
		Op("LOAD_FAST", 0).
		Op("PRECALL", 1).
		Op("CALL", 1).
		Op("RETURN_VALUE")
	globals := object.NewDict()
	fn := function(t, a, unit.Unit{Name: "r", ArgCount: 1, VarNames: []string{"n"}, Names: []string{"r"}, Consts: consts(object.None)}, globals)
	globals.SetStr("r", fn)

	_, err := New(WithRecursionLimit(50)).Call(context.Background(), fn, ints(1), nil)
	require.True(t, object.IsExceptionOf(err, object.RecursionErrorType), "%v", err)
}

func TestCancelledContextStopsLoop(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Label("loop").
		Op("NOP").
		Jump("JUMP_BACKWARD", "loop")
	fn := function(t, a, unit.Unit{Name: "spin", Consts: consts(object.None)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithContextCheckInterval(10)).Call(ctx, fn, nil, nil)
	require.True(t, errors.Is(err, context.Canceled), "%v", err)
}

// def gen():
//
//	x = yield 1
//	yield x * 2
func doubler(t *testing.T) *object.Function {
	a := pytest.New(pyop.Py311).
		Op("RETURN_GENERATOR").
		Op("POP_TOP").
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("YIELD_VALUE").
		Op("RESUME", 1).
		Op("STORE_FAST", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 2).
		Op("BINARY_OP", pyop.NbMultiply).
		Op("YIELD_VALUE").
		Op("RESUME", 1).
		Op("POP_TOP").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	return function(t, a, unit.Unit{
		Name:     "gen",
		Flags:    pyop.CoGenerator,
		VarNames: []string{"x"},
		Consts:   consts(object.None, object.NewInt(1), object.NewInt(2)),
	}, nil)
}

func newGenerator(t *testing.T, machine *VirtualMachine, fn *object.Function, args ...object.Object) *object.Generator {
	t.Helper()
	res, err := machine.Call(context.Background(), fn, args, nil)
	require.NoError(t, err)
	g, ok := res.(*object.Generator)
	require.True(t, ok)
	return g
}

func TestGeneratorSend(t *testing.T) {
	ctx := context.Background()
	g := newGenerator(t, New(), doubler(t))

	v, done, err := g.SendValue(ctx, object.None)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, object.NewInt(1), v)

	v, done, err = g.SendValue(ctx, object.NewInt(21))
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, object.NewInt(42), v)

	v, done, err = g.SendValue(ctx, object.None)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, object.None, v)
	require.True(t, g.Finished())
}

func TestGeneratorThrowAndClose(t *testing.T) {
	ctx := context.Background()
	machine := New()
	fn := doubler(t)

	g := newGenerator(t, machine, fn)
	_, _, err := g.SendValue(ctx, object.None)
	require.NoError(t, err)
	_, _, err = g.ThrowValue(ctx, object.ValueErrorf("boom"))
	require.True(t, object.IsExceptionOf(err, object.ValueErrorType), "%v", err)
	require.True(t, g.Finished())

	g = newGenerator(t, machine, fn)
	_, _, err = g.SendValue(ctx, object.None)
	require.NoError(t, err)
	require.NoError(t, g.Close(ctx))
	require.True(t, g.Finished())
}

func TestYieldFromDelegates(t *testing.T) {
	// def g(it): yield from it
	a := pytest.New(pyop.Py311).
		Op("RETURN_GENERATOR").
		Op("POP_TOP").
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("GET_YIELD_FROM_ITER").
		Op("LOAD_CONST", 0).
		Label("send").
		Jump("SEND", "done").
		Op("YIELD_VALUE").
		Op("RESUME", 2).
		Jump("JUMP_BACKWARD_NO_INTERRUPT", "send").
		Label("done").
		Op("RETURN_VALUE")
	fn := function(t, a, unit.Unit{
		Name:     "g",
		ArgCount: 1,
		Flags:    pyop.CoGenerator,
		VarNames: []string{"it"},
		Consts:   consts(object.None),
	}, nil)

	ctx := context.Background()
	machine := New()
	outer := newGenerator(t, machine, fn, newGenerator(t, machine, doubler(t)))

	v, ok, err := object.Next(ctx, outer)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, object.NewInt(1), v)

	// The sent value reaches the inner generator.
	v, done, err := outer.SendValue(ctx, object.NewInt(5))
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, object.NewInt(10), v)

	_, ok, err = object.Next(ctx, outer)
	require.NoError(t, err)
	require.False(t, ok)

	list := newGenerator(t, machine, fn, object.NewList(ints(7, 8)))
	var got []object.Object
	for {
		v, ok, err := object.Next(ctx, list)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, ints(7, 8), got)
}
