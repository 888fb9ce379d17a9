package codegen

import (
	"errors"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/stretchr/testify/require"
)

func build(a *pytest.Asm, u unit.Unit) *unit.Unit {
	u.Dialect = a.Dialect()
	u.Instructions = a.Instructions()
	u.Exceptions = a.Entries()
	if u.Name == "" {
		u.Name = "f"
	}
	if u.QualName == "" {
		u.QualName = u.Name
	}
	return &u
}

func fn(a *pytest.Asm, u unit.Unit) *unit.Unit {
	u.Flags |= pyop.CoOptimized | pyop.CoNewLocals
	return build(a, u)
}

func consts(values ...object.Object) []unit.Const {
	out := make([]unit.Const, len(values))
	for i, v := range values {
		out[i] = unit.Const{Value: v}
	}
	return out
}

func words(c *bytecode.Code) []op.Code {
	out := make([]op.Code, c.InstructionCount())
	for i := range out {
		out[i] = c.InstructionAt(i)
	}
	return out
}

// addOne is def f(x): return x + 1
func addOne() (*pytest.Asm, unit.Unit) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 1).
		Op("BINARY_OP", pyop.NbAdd).
		Op("RETURN_VALUE")
	return a, unit.Unit{ArgCount: 1, VarNames: []string{"x"}, Consts: consts(object.None, object.NewInt(1))}
}

func TestSpecializationFollowsAnnotations(t *testing.T) {
	a, u := addOne()
	code, err := Generate(fn(a, u))
	require.NoError(t, err)
	require.Equal(t, []op.Code{op.LoadFast, 0, op.LoadConst, 1, op.BinaryOp, 0, op.ReturnValue}, words(code))

	u.Annotations = []unit.Annotation{{Name: "x", Type: object.IntType}}
	code, err = Generate(fn(a, u))
	require.NoError(t, err)
	require.Equal(t, []op.Code{op.LoadFast, 0, op.LoadConst, 1, op.AddInt, 0, op.ReturnValue}, words(code))

	code, err = Generate(fn(a, u), WithSpecialization(false))
	require.NoError(t, err)
	require.Equal(t, op.BinaryOp, code.InstructionAt(4))

	require.Equal(t, "(x)", code.Signature().String())
	require.True(t, code.Has(bytecode.FlagOptimized))
	require.Equal(t, bytecode.SourceLocation{Line: 1, Offset: 1}, code.LocationAt(0))
}

func TestHandlersMapToWordRanges(t *testing.T) {
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
		Handler("match", "match_end", "cleanup", 1, true)
	u := unit.Unit{
		VarNames: []string{"a", "b"},
		Names:    []string{"ZeroDivisionError"},
		Consts: consts(object.None,
			object.NewTuple([]object.Object{object.NewInt(1), object.NewInt(2)}),
			object.NewInt(1), object.NewInt(0)),
	}
	code, err := Generate(fn(a, u))
	require.NoError(t, err)

	require.Equal(t, 2, code.HandlerCount())
	require.Equal(t, bytecode.Handler{Start: 8, End: 15, Target: 18, Depth: 0}, code.HandlerAt(0))
	require.Equal(t, bytecode.Handler{Start: 19, End: 32, Target: 38, Depth: 1, Lasti: true}, code.HandlerAt(1))

	require.Equal(t, op.LoadGlobal, code.InstructionAt(19))
	require.Equal(t, op.Code(0), code.InstructionAt(21))
	require.Equal(t, op.PopJumpIfFalse, code.InstructionAt(23))
	require.Equal(t, op.Code(36), code.InstructionAt(24))
	require.Equal(t, op.Reraise, code.InstructionAt(36))

	h, ok := code.HandlerFor(12)
	require.True(t, ok)
	require.Equal(t, 18, h.Target)
	h, ok = code.HandlerFor(30)
	require.True(t, ok)
	require.Equal(t, 38, h.Target)
	_, ok = code.HandlerFor(2)
	require.False(t, ok)
}

func TestUnassignedLocalReadIsChecked(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Jump("POP_JUMP_FORWARD_IF_FALSE", "join").
		Op("LOAD_CONST", 1).
		Op("STORE_FAST", 1).
		Label("join").
		Op("LOAD_FAST", 1).
		Op("RETURN_VALUE")
	u := unit.Unit{ArgCount: 1, VarNames: []string{"flag", "v"}, Consts: consts(object.None, object.NewInt(1))}
	code, err := Generate(fn(a, u))
	require.NoError(t, err)
	require.Equal(t, []op.Code{
		op.LoadFast, 0,
		op.PopJumpIfFalse, 8,
		op.LoadConst, 1,
		op.StoreFast, 1,
		op.LoadFastChecked, 1,
		op.ReturnValue,
	}, words(code))
}

func TestKeywordNamesFuseIntoCall(t *testing.T) {
	// return g(1, key=2)
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_GLOBAL", 1).
		Op("LOAD_CONST", 1).
		Op("LOAD_CONST", 2).
		Op("KW_NAMES", 3).
		Op("PRECALL", 2).
		Op("CALL", 2).
		Op("RETURN_VALUE")
	u := unit.Unit{
		Names: []string{"g"},
		Consts: consts(object.None, object.NewInt(1), object.NewInt(2),
			object.NewTuple([]object.Object{object.NewStr("key")})),
	}
	code, err := Generate(fn(a, u))
	require.NoError(t, err)
	require.Equal(t, []op.Code{
		op.LoadGlobal, 0, 1,
		op.LoadConst, 1,
		op.LoadConst, 2,
		op.CallKw, 2, 3,
		op.ReturnValue,
	}, words(code))
}

func TestMethodLoadsSplitByDialect(t *testing.T) {
	// return o.m()
	a := pytest.New(pyop.Py312).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_ATTR", 1).
		Op("CALL", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_ATTR", 0).
		Op("BINARY_OP", pyop.NbAdd).
		Op("RETURN_VALUE")
	u := unit.Unit{ArgCount: 1, VarNames: []string{"o"}, Names: []string{"m"}, Consts: consts(object.None)}
	code, err := Generate(fn(a, u))
	require.NoError(t, err)
	require.Equal(t, []op.Code{
		op.LoadFast, 0,
		op.LoadMethod, 0,
		op.Call, 0,
		op.LoadFast, 0,
		op.LoadAttr, 0,
		op.BinaryOp, 0,
		op.ReturnValue,
	}, words(code))
	require.Equal(t, "3.12", code.Dialect())
}

func TestUnmodeledOpcodeFailsTheUnit(t *testing.T) {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_CONST", 0).
		Op("PRINT_EXPR").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	code, err := Generate(fn(a, unit.Unit{Name: "g", Consts: consts(object.None)}))
	require.Nil(t, code)
	require.True(t, errors.Is(err, errz.Unmodeled))
	var se *errz.StructuredError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "g", se.Unit)
	require.Equal(t, 2, se.Offset)
	require.Contains(t, err.Error(), "PRINT_EXPR")
}

func TestNestedClassBodyFallsBackToOpaque(t *testing.T) {
	body := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_CONST", 0).
		Op("PRINT_EXPR").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	cls := build(body, unit.Unit{Name: "C", QualName: "f.<locals>.C", Consts: consts(object.None)})

	outer := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("PUSH_NULL").
		Op("LOAD_BUILD_CLASS").
		Op("LOAD_CONST", 1).
		Op("MAKE_FUNCTION", 0).
		Op("LOAD_CONST", 2).
		Op("PRECALL", 2).
		Op("CALL", 2).
		Op("RETURN_VALUE")
	u := unit.Unit{Consts: []unit.Const{{Value: object.None}, {Code: cls}, {Value: object.NewStr("C")}}}

	var fellBack []string
	code, err := Generate(fn(outer, u), WithOpaqueFallback(func(name string, err error) {
		require.True(t, errz.IsUnmodeled(err))
		fellBack = append(fellBack, name)
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"f.<locals>.C"}, fellBack)

	stub := code.ConstantAt(1).(*object.Code).Unwrap()
	require.True(t, stub.Has(bytecode.FlagOpaqueBody))
	require.Equal(t, 1, code.ChildCount())
	require.Same(t, stub, code.ChildAt(0))
	_, ok := stub.ConstantAt(0).(*object.Opaque)
	require.True(t, ok)

	// A class body at module level has no fallback.
	_, err = Generate(build(outer, u))
	require.True(t, errors.Is(err, errz.Unmodeled))
}

func TestGeneratorYieldAndSend(t *testing.T) {
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
	u := unit.Unit{ArgCount: 1, VarNames: []string{"it"}, Flags: pyop.CoGenerator, Consts: consts(object.None)}
	code, err := Generate(fn(a, u))
	require.NoError(t, err)
	require.True(t, code.IsGenerator())
	require.Equal(t, []op.Code{
		op.ReturnGenerator,
		op.PopTop,
		op.LoadFast, 0,
		op.GetYieldFromIter,
		op.LoadConst, 0,
		op.Send, 15,
		op.Yield, 0, 1,
		op.Jump, 7,
		op.ReturnValue,
		// exhaustion stub
		op.EndSend,
		op.Jump, 14,
	}, words(code))
}

func TestYieldPointsRecordLiveSlots(t *testing.T) {
	// def g(n):
	//     x = n
	//     yield n
	//     yield x
	a := pytest.New(pyop.Py311).
		Op("RETURN_GENERATOR").
		Op("POP_TOP").
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("STORE_FAST", 1).
		Op("LOAD_FAST", 0).
		Op("YIELD_VALUE").
		Op("RESUME", 1).
		Op("POP_TOP").
		Op("LOAD_FAST", 1).
		Op("YIELD_VALUE").
		Op("RESUME", 1).
		Op("POP_TOP").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	u := unit.Unit{ArgCount: 1, VarNames: []string{"n", "x"}, Flags: pyop.CoGenerator, Consts: consts(object.None)}
	code, err := Generate(fn(a, u))
	require.NoError(t, err)
	require.Equal(t, 2, code.SuspensionCount())

	first, ok := code.SuspensionFor(8)
	require.True(t, ok)
	require.Equal(t, op.Yield, code.InstructionAt(first.IP))
	require.Equal(t, []int{1}, first.Live)

	second, ok := code.SuspensionFor(14)
	require.True(t, ok)
	require.Empty(t, second.Live)

	stats := code.Stats()
	require.Equal(t, 2, stats.SuspensionCount)
	require.Equal(t, 1, stats.MaxLiveAtSuspension)
}
