package builtins

import (
	"bytes"
	"context"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/stretchr/testify/require"
)

func ints(vs ...int64) []object.Object {
	out := make([]object.Object, len(vs))
	for i, v := range vs {
		out[i] = object.NewInt(v)
	}
	return out
}

func callBuiltin(t *testing.T, ctx context.Context, name string, args []object.Object, kwnames ...string) (object.Object, error) {
	t.Helper()
	fn, ok := Builtins()[name]
	require.True(t, ok, name)
	return object.Call(ctx, fn, args, kwnames)
}

func repr(t *testing.T, o object.Object) string {
	t.Helper()
	s, err := object.Repr(context.Background(), o)
	require.NoError(t, err)
	return s
}

func TestBuiltinsNamespace(t *testing.T) {
	m := Builtins()
	for _, name := range []string{"len", "print", "isinstance", "__build_class__", "__import__", "int", "ValueError", "None", "True"} {
		require.Contains(t, m, name)
	}
	require.Same(t, m["OSError"], m["IOError"])

	mod := Module()
	require.Equal(t, "builtins", mod.Name())
	require.Same(t, m["len"], mod.AttrDict().GetStr("len"))
}

func TestSorted(t *testing.T) {
	ctx := context.Background()
	src := object.NewList(ints(3, 1, 2))

	res, err := callBuiltin(t, ctx, "sorted", []object.Object{src})
	require.NoError(t, err)
	require.Equal(t, "[1, 2, 3]", repr(t, res))
	require.Equal(t, "[3, 1, 2]", repr(t, src))

	res, err = callBuiltin(t, ctx, "sorted", []object.Object{src, object.True}, "reverse")
	require.NoError(t, err)
	require.Equal(t, "[3, 2, 1]", repr(t, res))
}

func TestSum(t *testing.T) {
	ctx := context.Background()
	res, err := callBuiltin(t, ctx, "sum", []object.Object{object.NewList(ints(1, 2, 3)), object.NewInt(10)})
	require.NoError(t, err)
	require.Equal(t, "16", repr(t, res))

	_, err = callBuiltin(t, ctx, "sum", []object.Object{object.NewList(nil), object.NewStr("")})
	require.True(t, object.IsExceptionOf(err, object.TypeErrorType))
	require.Contains(t, err.Error(), "can't sum strings")
}

func TestMinMax(t *testing.T) {
	ctx := context.Background()
	res, err := callBuiltin(t, ctx, "max", ints(4, 9, 2))
	require.NoError(t, err)
	require.Equal(t, "9", repr(t, res))

	res, err = callBuiltin(t, ctx, "min", []object.Object{object.NewList(ints(4, 9, 2))})
	require.NoError(t, err)
	require.Equal(t, "2", repr(t, res))

	res, err = callBuiltin(t, ctx, "max", []object.Object{object.NewList(nil), object.NewStr("none")}, "default")
	require.NoError(t, err)
	require.Equal(t, "'none'", repr(t, res))

	_, err = callBuiltin(t, ctx, "min", []object.Object{object.NewList(nil)})
	require.True(t, object.IsExceptionOf(err, object.ValueErrorType))
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	ctx := object.WithStdout(context.Background(), &buf)
	args := []object.Object{object.NewInt(1), object.NewStr("a"), object.NewStr("-"), object.NewStr("!\n")}
	_, err := callBuiltin(t, ctx, "print", args, "sep", "end")
	require.NoError(t, err)
	require.Equal(t, "1-a!\n", buf.String())
}

func TestRadix(t *testing.T) {
	ctx := context.Background()
	for name, want := range map[string]string{"bin": "'-0b1010'", "oct": "'-0o12'", "hex": "'-0xa'"} {
		res, err := callBuiltin(t, ctx, name, ints(-10))
		require.NoError(t, err)
		require.Equal(t, want, repr(t, res), name)
	}
}

func TestGetattrDefault(t *testing.T) {
	ctx := context.Background()
	res, err := callBuiltin(t, ctx, "getattr", []object.Object{object.NewInt(1), object.NewStr("nope"), object.None})
	require.NoError(t, err)
	require.Equal(t, object.None, res)

	_, err = callBuiltin(t, ctx, "getattr", []object.Object{object.NewInt(1), object.NewStr("nope")})
	require.True(t, object.IsExceptionOf(err, object.AttributeErrorType))
}

func TestIsInstanceTuple(t *testing.T) {
	ctx := context.Background()
	classes := object.NewTuple([]object.Object{object.StrType, object.IntType})
	ok, err := IsInstance(ctx, object.True, classes)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = IsSubclass(ctx, object.ZeroDivisionErrorType, object.ArithmeticErrorType)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = IsInstance(ctx, object.NewFloat(1), classes)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDivmod(t *testing.T) {
	ctx := context.Background()
	res, err := callBuiltin(t, ctx, "divmod", ints(-7, 2))
	require.NoError(t, err)
	require.Equal(t, "(-4, 1)", repr(t, res))

	_, err = callBuiltin(t, ctx, "divmod", ints(1, 0))
	require.True(t, object.IsExceptionOf(err, object.ZeroDivisionErrorType))
}

func classBody(t *testing.T, params bytecode.CodeParams) *object.Function {
	t.Helper()
	globals := object.NewDict()
	globals.SetStr("__name__", object.NewStr("mod"))
	return object.NewFunction(object.FunctionParams{Code: bytecode.NewCode(params), Globals: globals})
}

func TestBuildClassRunsBody(t *testing.T) {
	var ran bool
	ctx := object.WithExecBody(context.Background(), func(ctx context.Context, fn *object.Function, ns *object.Dict) error {
		ran = true
		ns.SetStr("answer", object.NewInt(42))
		return nil
	})
	body := classBody(t, bytecode.CodeParams{Name: "C", QualName: "C"})
	res, err := callBuiltin(t, ctx, "__build_class__", []object.Object{body, object.NewStr("C")})
	require.NoError(t, err)
	require.True(t, ran)

	cls, ok := res.(*object.Type)
	require.True(t, ok)
	require.Equal(t, "C", cls.Name())
	v, err := object.GetAttr(ctx, cls, "answer")
	require.NoError(t, err)
	require.Equal(t, "42", repr(t, v))
}

func TestBuildClassWithoutInterpreter(t *testing.T) {
	body := classBody(t, bytecode.CodeParams{Name: "C", QualName: "C"})
	_, err := callBuiltin(t, context.Background(), "__build_class__", []object.Object{body, object.NewStr("C")})
	require.True(t, object.IsExceptionOf(err, object.RuntimeErrorType))
}

func TestBuildClassOpaqueBody(t *testing.T) {
	ref := object.NewOpaque("host-class", nil)
	body := classBody(t, bytecode.CodeParams{
		Name:      "Widget",
		QualName:  "Widget",
		Flags:     bytecode.FlagOpaqueBody,
		Constants: []any{ref},
	})
	res, err := callBuiltin(t, context.Background(), "__build_class__", []object.Object{body, object.NewStr("Widget")})
	require.NoError(t, err)
	cls := res.(*object.Type)
	require.Equal(t, "Widget", cls.Name())
	require.Equal(t, "mod", cls.Module())
	require.Same(t, ref, cls.Host())

	_, err = object.Call(context.Background(), cls, nil, nil)
	require.True(t, object.IsExceptionOf(err, object.NotImplementedErrorType))
}

func TestCalculateMetaConflict(t *testing.T) {
	metaA, err := object.NewClass(object.ClassSpec{Name: "MetaA", Bases: []*object.Type{object.TypeType}})
	require.NoError(t, err)
	metaB, err := object.NewClass(object.ClassSpec{Name: "MetaB", Bases: []*object.Type{object.TypeType}})
	require.NoError(t, err)

	winner, err := calculateMeta(object.TypeType, nil)
	require.NoError(t, err)
	require.Same(t, object.TypeType, winner)

	a, err := object.NewClass(object.ClassSpec{Name: "A", Meta: metaA})
	require.NoError(t, err)
	b, err := object.NewClass(object.ClassSpec{Name: "B", Meta: metaB})
	require.NoError(t, err)

	winner, err = calculateMeta(object.TypeType, []object.Object{a})
	require.NoError(t, err)
	require.Same(t, metaA, winner)

	_, err = calculateMeta(object.TypeType, []object.Object{a, b})
	require.True(t, object.IsExceptionOf(err, object.TypeErrorType))
	require.Contains(t, err.Error(), "metaclass conflict")
}
