package pyxlate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/config"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const fast = pyop.CoOptimized | pyop.CoNewLocals

func translator(t *testing.T, opts ...Option) *Translator {
	t.Helper()
	tr, err := New(opts...)
	require.NoError(t, err)
	return tr
}

// def f(x: int) -> int: return x + 1
func addOne(d pyop.Dialect) *source.Function {
	a := pytest.New(d).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 1).
		Op("BINARY_OP", pyop.NbAdd).
		Op("RETURN_VALUE")
	code := a.Code(pytest.Spec{
		Name:     "f",
		ArgCount: 1,
		Flags:    fast,
		Consts:   []source.Value{source.None, source.NewInt(1)},
		VarNames: []string{"x"},
	})
	return &source.Function{
		Code:   code,
		Name:   "f",
		Module: "demo",
		Annotations: []source.Annotation{
			{Name: "x", Type: source.Str("int")},
			{Name: "return", Type: source.Str("int")},
		},
	}
}

func TestAddPromotesPastInt64(t *testing.T) {
	ctx := context.Background()
	tr := translator(t)
	u, err := tr.Translate(ctx, addOne(pyop.Py311), Func(object.IntType, object.IntType))
	require.NoError(t, err)
	require.Equal(t, "f", u.Name())

	res, err := u.Call(ctx, object.NewInt(41))
	require.NoError(t, err)
	require.Equal(t, "42", res.(*object.Int).String())

	res, err = u.Call(ctx, object.NewInt(math.MaxInt64))
	require.NoError(t, err)
	require.Equal(t, "9223372036854775808", res.(*object.Int).String())

	// The int annotation selects the guarded integer add.
	var ops []op.Code
	for i := 0; i < u.Code().InstructionCount(); i++ {
		ops = append(ops, u.Code().InstructionAt(i))
	}
	require.Contains(t, ops, op.AddInt)
}

func TestSpecializedAndGenericAgree(t *testing.T) {
	ctx := context.Background()
	plain := config.Default()
	plain.Translator.Specialize = false
	inputs := []object.Object{
		object.NewInt(-7),
		object.NewInt(math.MaxInt64),
		object.NewFloat(1.5),
		object.True,
	}
	for _, in := range inputs {
		var results []string
		for _, tr := range []*Translator{translator(t), translator(t, WithConfig(plain))} {
			u, err := tr.Translate(ctx, addOne(pyop.Py312), Any)
			require.NoError(t, err)
			res, err := u.Call(ctx, in)
			require.NoError(t, err)
			s, err := object.Repr(ctx, res)
			require.NoError(t, err)
			results = append(results, s)
		}
		require.Equal(t, results[0], results[1])
	}
}

// def count(n: int):
//
//	i = 0
//	while i < n:
//	    yield i
//	    i += 1
func count() *source.Function {
	a := pytest.New(pyop.Py311).
		Op("RETURN_GENERATOR").
		Op("POP_TOP").
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("STORE_FAST", 1).
		Label("top").
		Op("LOAD_FAST", 1).
		Op("LOAD_FAST", 0).
		Op("COMPARE_OP", pyop.CmpLt).
		Jump("POP_JUMP_FORWARD_IF_FALSE", "end").
		Op("LOAD_FAST", 1).
		Op("YIELD_VALUE").
		Op("RESUME", 1).
		Op("POP_TOP").
		Op("LOAD_FAST", 1).
		Op("LOAD_CONST", 2).
		Op("BINARY_OP", pyop.InplaceOffset+pyop.NbAdd).
		Op("STORE_FAST", 1).
		Jump("JUMP_BACKWARD", "top").
		Label("end").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	code := a.Code(pytest.Spec{
		Name:     "count",
		ArgCount: 1,
		Flags:    fast | pyop.CoGenerator,
		Consts:   []source.Value{source.None, source.NewInt(0), source.NewInt(1)},
		VarNames: []string{"n", "i"},
	})
	return &source.Function{
		Code:        code,
		Name:        "count",
		Module:      "demo",
		Annotations: []source.Annotation{{Name: "n", Type: source.Str("int")}},
	}
}

func TestGeneratorAgreesAcrossSpecialization(t *testing.T) {
	ctx := context.Background()
	plain := config.Default()
	plain.Translator.Specialize = false
	for _, tt := range []struct {
		name        string
		tr          *Translator
		specialized bool
	}{
		{"specialized", translator(t), true},
		{"dynamic", translator(t, WithConfig(plain)), false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			u, err := tt.tr.Translate(ctx, count(), Any)
			require.NoError(t, err)
			var ops []op.Code
			for i := 0; i < u.Code().InstructionCount(); i++ {
				ops = append(ops, u.Code().InstructionAt(i))
			}
			if tt.specialized {
				require.Contains(t, ops, op.CompareInt)
			} else {
				require.NotContains(t, ops, op.CompareInt)
			}

			res, err := u.Call(ctx, object.NewInt(3))
			require.NoError(t, err)
			g, ok := res.(*object.Generator)
			require.True(t, ok)
			var got []string
			for {
				v, ok, err := object.Next(ctx, g)
				require.NoError(t, err)
				if !ok {
					break
				}
				s, err := object.Repr(ctx, v)
				require.NoError(t, err)
				got = append(got, s)
			}
			require.Equal(t, []string{"0", "1", "2"}, got)

			_, err = object.CallMethod(ctx, g, "__next__")
			require.True(t, object.IsExceptionOf(err, object.StopIterationType), "%v", err)
		})
	}
}

// def outer():
//
//	x = 1
//	def inner(y): return x * y
//	a = inner(2)
//	x = 10
//	b = inner(2)
//	return a + b
func closure() *source.Function {
	inner := pytest.New(pyop.Py311).
		Op("COPY_FREE_VARS", 1).
		Op("RESUME", 0).
		Op("LOAD_DEREF", 1).
		Op("LOAD_FAST", 0).
		Op("BINARY_OP", pyop.NbMultiply).
		Op("RETURN_VALUE").
		Code(pytest.Spec{
			Name:     "inner",
			QualName: "outer.<locals>.inner",
			ArgCount: 1,
			Flags:    fast | pyop.CoNested,
			Consts:   []source.Value{source.None},
			VarNames: []string{"y"},
			FreeVars: []string{"x"},
		})
	outer := pytest.New(pyop.Py311).
		Op("MAKE_CELL", 3).
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("STORE_DEREF", 3).
		Op("LOAD_CLOSURE", 3).
		Op("BUILD_TUPLE", 1).
		Op("LOAD_CONST", 2).
		Op("MAKE_FUNCTION", 8).
		Op("STORE_FAST", 0).
		Op("PUSH_NULL").
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 3).
		Op("PRECALL", 1).
		Op("CALL", 1).
		Op("STORE_FAST", 1).
		Op("LOAD_CONST", 4).
		Op("STORE_DEREF", 3).
		Op("PUSH_NULL").
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 3).
		Op("PRECALL", 1).
		Op("CALL", 1).
		Op("STORE_FAST", 2).
		Op("LOAD_FAST", 1).
		Op("LOAD_FAST", 2).
		Op("BINARY_OP", pyop.NbAdd).
		Op("RETURN_VALUE").
		Code(pytest.Spec{
			Name:     "outer",
			Flags:    fast,
			Consts:   []source.Value{source.None, source.NewInt(1), inner, source.NewInt(2), source.NewInt(10)},
			VarNames: []string{"inner", "a", "b"},
			CellVars: []string{"x"},
		})
	return &source.Function{Code: outer, Name: "outer", Module: "demo"}
}

func TestClosureObservesRebinding(t *testing.T) {
	ctx := context.Background()
	u, err := translator(t).Translate(ctx, closure(), Func(object.IntType))
	require.NoError(t, err)
	res, err := u.Call(ctx)
	require.NoError(t, err)
	require.Equal(t, "22", res.(*object.Int).String())
}

// def f():
//
//	a, b = 1, 2
//	try:
//	    1/0
//	except ZeroDivisionError:
//	    return a + b
func tryDivide() *source.Function {
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
	code := a.Code(pytest.Spec{
		Name:  "f",
		Flags: fast,
		Consts: []source.Value{
			source.None,
			&source.Tuple{Items: []source.Value{source.NewInt(1), source.NewInt(2)}},
			source.NewInt(1),
			source.NewInt(0),
		},
		Names:    []string{"ZeroDivisionError"},
		VarNames: []string{"a", "b"},
	})
	return &source.Function{Code: code, Name: "f", Module: "demo"}
}

func TestHandlerCatchesZeroDivision(t *testing.T) {
	ctx := context.Background()
	u, err := translator(t).Translate(ctx, tryDivide(), Any)
	require.NoError(t, err)
	res, err := u.Call(ctx)
	require.NoError(t, err)
	require.Equal(t, "3", res.(*object.Int).String())
	require.NotZero(t, u.Code().HandlerCount())
}

func TestDictIngestionKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	tr := translator(t)
	src := &source.Dict{}
	src.Set(source.NewInt(3), source.Str("a"))
	src.Set(source.NewInt(2), source.Str("b"))
	src.Set(source.NewInt(1), source.Str("c"))

	o, err := tr.Convert(ctx, src)
	require.NoError(t, err)
	it, err := object.Iter(ctx, o)
	require.NoError(t, err)
	var keys []string
	for {
		k, ok, err := object.Next(ctx, it)
		require.NoError(t, err)
		if !ok {
			break
		}
		keys = append(keys, k.(*object.Int).String())
	}
	require.Equal(t, []string{"3", "2", "1"}, keys)

	back, err := tr.Extract(ctx, o)
	require.NoError(t, err)
	d := back.(*source.Dict)
	require.Len(t, d.Keys, 3)
	require.Equal(t, int64(3), d.Keys[0].(source.Int).V.Int64())
	require.Equal(t, source.Str("c"), d.Values[2])
}

func constFunction(name, qualname string, argc int, value int64) *source.Function {
	a := pytest.New(pyop.Py312).
		Op("RESUME", 0).
		Op("LOAD_CONST", 1).
		Op("RETURN_VALUE")
	var varnames []string
	if argc > 0 {
		varnames = []string{"self"}
	}
	code := a.Code(pytest.Spec{
		Name:     name,
		QualName: qualname,
		ArgCount: argc,
		Flags:    fast,
		Consts:   []source.Value{source.None, source.NewInt(value)},
		VarNames: varnames,
	})
	return &source.Function{Code: code, Name: name, QualName: qualname, Module: "shapes"}
}

// class Base:
//
//	def area(self): return 1
//	@staticmethod
//	def unit(): return 10
//
// class Square(Base):
//
//	def area(self): return 2
//
// def describe(o): return o.area()
func shapes() (base, square *source.Class, describe *source.Function) {
	base = &source.Class{Name: "Base", QualName: "Base", Module: "shapes", Dict: &source.Dict{}}
	base.Dict.Set(source.Str("area"), constFunction("area", "Base.area", 1, 1))
	base.Dict.Set(source.Str("unit"), &source.StaticMethod{Func: constFunction("unit", "Base.unit", 0, 10)})
	square = &source.Class{Name: "Square", QualName: "Square", Module: "shapes", Bases: []source.Value{base}, Dict: &source.Dict{}}
	square.Dict.Set(source.Str("area"), constFunction("area", "Square.area", 1, 2))

	a := pytest.New(pyop.Py312).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_ATTR", 1).
		Op("CALL", 0).
		Op("RETURN_VALUE")
	code := a.Code(pytest.Spec{
		Name:     "describe",
		ArgCount: 1,
		Flags:    fast,
		Consts:   []source.Value{source.None},
		Names:    []string{"area"},
		VarNames: []string{"o"},
	})
	describe = &source.Function{Code: code, Name: "describe", Module: "shapes"}
	return base, square, describe
}

func TestSubclassDispatchAndStaticMethod(t *testing.T) {
	ctx := context.Background()
	tr := translator(t)
	base, square, describe := shapes()

	baseUnit, err := tr.Translate(ctx, base, Any)
	require.NoError(t, err)
	squareUnit, err := tr.Translate(ctx, square, Any)
	require.NoError(t, err)
	describeUnit, err := tr.Translate(ctx, describe, Func(object.IntType, nil))
	require.NoError(t, err)

	b, err := baseUnit.Call(ctx)
	require.NoError(t, err)
	s, err := squareUnit.Call(ctx)
	require.NoError(t, err)
	require.Same(t, squareUnit.Object(), s.Type())

	res, err := describeUnit.Call(ctx, b)
	require.NoError(t, err)
	require.Equal(t, "1", res.(*object.Int).String())
	res, err = describeUnit.Call(ctx, s)
	require.NoError(t, err)
	require.Equal(t, "2", res.(*object.Int).String())

	// The static method is inherited and called without a receiver, both
	// through the class and through an instance.
	for _, recv := range []object.Object{squareUnit.Object(), s} {
		fn, err := object.GetAttr(tr.VM().Context(ctx), recv, "unit")
		require.NoError(t, err)
		res, err := tr.VM().Call(ctx, fn, nil, nil)
		require.NoError(t, err)
		require.Equal(t, "10", res.(*object.Int).String())
	}
}

func TestTranslateIsCached(t *testing.T) {
	ctx := context.Background()
	tr := translator(t)
	fn := addOne(pyop.Py311)
	contract := Func(object.IntType, object.IntType)

	u1, err := tr.Translate(ctx, fn, contract)
	require.NoError(t, err)
	u2, err := tr.Translate(ctx, fn, Func(object.IntType, object.IntType))
	require.NoError(t, err)
	require.Same(t, u1, u2)

	// Another contract is another unit over the same translated function.
	u3, err := tr.Translate(ctx, fn, Any)
	require.NoError(t, err)
	require.NotSame(t, u1, u3)
	require.Same(t, u1.Object(), u3.Object())

	units, codes := tr.Stats()
	require.Equal(t, 2, units.Entries)
	require.Equal(t, int64(1), units.Hits)
	require.Equal(t, 1, codes.Entries)
}

func TestContractChecks(t *testing.T) {
	ctx := context.Background()
	tr := translator(t)
	u, err := tr.Translate(ctx, addOne(pyop.Py311), Contract{Name: "f", Params: []*object.Type{object.IntType}, Return: object.IntType})
	require.NoError(t, err)

	_, err = u.Call(ctx, object.NewStr("x"))
	require.True(t, object.IsExceptionOf(err, object.TypeErrorType))
	require.ErrorContains(t, err, "f() argument 1 must be int, not str")

	_, err = u.Call(ctx)
	require.ErrorContains(t, err, "takes 1 arguments but 0 were given")

	// A float argument passes a contract without types but fails the
	// return check of one that demands int.
	loose, err := tr.Translate(ctx, addOne(pyop.Py311), Contract{Params: []*object.Type{nil}, Return: object.IntType})
	require.NoError(t, err)
	_, err = loose.Call(ctx, object.NewFloat(0.5))
	require.ErrorContains(t, err, "returned float, expected int")

	// A contract the function cannot implement fails translation.
	_, err = tr.Translate(ctx, addOne(pyop.Py311), Func(nil, nil, nil))
	require.True(t, errors.Is(err, errz.Unmodeled))
}

func TestInvokeConvertsAtTheBoundary(t *testing.T) {
	ctx := context.Background()
	u, err := translator(t).Translate(ctx, addOne(pyop.Py312), Any)
	require.NoError(t, err)
	out, err := u.Invoke(ctx, source.NewInt(41))
	require.NoError(t, err)
	require.Equal(t, int64(42), out.(source.Int).V.Int64())
}

func TestConfiguredDialects(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Translator.Dialects = []string{"3.12"}
	tr := translator(t, WithConfig(cfg))

	_, err := tr.Translate(ctx, addOne(pyop.Py311), Any)
	require.True(t, errors.Is(err, errz.UnsupportedVersion))
	require.ErrorContains(t, err, `unsupported bytecode dialect "3.11" (supported: 3.12)`)

	_, err = tr.Translate(ctx, addOne(pyop.Py312), Any)
	require.NoError(t, err)

	fn := addOne(pyop.Py312)
	fn.Code.Version = "3.10"
	_, err = tr.Translate(ctx, fn, Any)
	require.True(t, errors.Is(err, errz.UnsupportedVersion))
}

func TestTranslateRejectsNonUnits(t *testing.T) {
	_, err := translator(t).Translate(context.Background(), source.NewInt(1), Any)
	require.True(t, errors.Is(err, errz.NoRepresentation))
}

func TestLoggerReceivesTranslationEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	tr := translator(t, WithLogger(logger))
	u, err := tr.Translate(context.Background(), addOne(pyop.Py311), Any)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"message":"unit translated"`)
	require.Contains(t, buf.String(), `"unit":"f"`)

	var translated map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var event map[string]any
		require.NoError(t, json.Unmarshal(line, &event))
		if event["message"] == "unit translated" {
			translated = event
		}
	}
	require.NotNil(t, translated)
	require.Equal(t, u.Code().ID(), translated["code_id"])
	require.EqualValues(t, 0, translated["yields"])
}

func TestContractString(t *testing.T) {
	require.Equal(t, "(int, Any) -> int", Func(object.IntType, object.IntType, nil).String())
	require.Equal(t, "g(...) -> Any", Contract{Name: "g"}.String())
	require.Equal(t, "(*args) -> Any", Contract{Params: []*object.Type{}, Variadic: true}.String())
	require.NotEqual(t, Func(object.IntType).Fingerprint(), Func(object.FloatType).Fingerprint())
	require.Equal(t, Func(object.IntType).Fingerprint(), Func(object.IntType).Fingerprint())
}
