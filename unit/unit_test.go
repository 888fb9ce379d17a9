package unit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// scalars converts None, ints, strings, cells and classes. Classes get one
// type each.
type scalars struct {
	mu      sync.Mutex
	classes map[*source.Class]*object.Type
}

func (s *scalars) Convert(ctx context.Context, v source.Value) (object.Object, error) {
	switch v := v.(type) {
	case *source.NoneType:
		return object.None, nil
	case source.Int:
		return object.NewBigInt(v.V), nil
	case source.Str:
		return object.NewStr(string(v)), nil
	case *source.Cell:
		if v.Contents == nil {
			return object.NewCell(nil), nil
		}
		x, err := s.Convert(ctx, v.Contents)
		if err != nil {
			return nil, err
		}
		return object.NewCell(x), nil
	case *source.Class:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.classes == nil {
			s.classes = map[*source.Class]*object.Type{}
		}
		if typ, ok := s.classes[v]; ok {
			return typ, nil
		}
		typ, err := object.NewClass(object.ClassSpec{Name: v.Name, Module: v.Module})
		if err != nil {
			return nil, err
		}
		s.classes[v] = typ
		return typ, nil
	}
	return nil, errz.Newf(errz.ErrNoRepresentation, "source value of kind %s", v.Kind())
}

func returnNone(d pyop.Dialect) *pytest.Asm {
	return pytest.New(d).
		Op("RESUME", 0).
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
}

func TestBuilderCode(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(&scalars{}, Options{})
	inner := returnNone(pyop.Py312).Code(pytest.Spec{
		Name:     "inner",
		QualName: "outer.<locals>.inner",
		Consts:   []source.Value{source.None},
		Names:    []string{"len", "abs"},
		VarNames: []string{"lambda"},
	})
	outer := returnNone(pyop.Py312).Code(pytest.Spec{
		Name:     "outer",
		Flags:    pyop.CoOptimized | pyop.CoNewLocals,
		Consts:   []source.Value{source.None, inner, source.NewInt(7)},
		Names:    []string{"print", "len"},
		VarNames: []string{".0", "class", "x"},
		CellVars: []string{"x", "cell"},
	})

	u, err := b.Code(ctx, outer, "demo")
	require.NoError(t, err)
	require.Equal(t, pyop.Py312, u.Dialect)
	require.Equal(t, "demo", u.Module)
	require.Equal(t, "outer", u.QualName)
	require.Equal(t, []string{"_0", "class_", "x"}, u.VarNames)
	require.Equal(t, []string{"x", "cell"}, u.CellVars)
	require.Equal(t, []string{"_0", "class_", "x", "cell"}, u.LocalsPlus())
	require.Equal(t, []string{"print", "len", "abs"}, u.GlobalNames)
	require.False(t, u.IsGenerator())
	require.False(t, u.IsClassBody())

	require.Len(t, u.Consts, 3)
	require.Same(t, object.None, u.Consts[0].Value)
	require.Equal(t, "7", u.Consts[2].Value.(*object.Int).String())
	child := u.Consts[1].Code
	require.NotNil(t, child)
	require.Equal(t, "outer.<locals>.inner", child.QualName)
	require.Equal(t, []string{"lambda_"}, child.VarNames)
	require.Equal(t, []*Unit{child}, u.Nested())

	// Raw wordcode decodes to the same instructions as the tuple form.
	fromWords, err := b.Code(ctx, returnNone(pyop.Py312).WordcodeCode(pytest.Spec{
		Name:   "outer",
		Consts: []source.Value{source.None},
	}), "demo")
	require.NoError(t, err)
	opcodes := func(u *Unit) []pyop.Opcode {
		var out []pyop.Opcode
		for _, in := range u.Instructions {
			out = append(out, in.Op)
		}
		return out
	}
	require.Empty(t, cmp.Diff(opcodes(u), opcodes(fromWords)))
}

func TestBuilderCodeErrors(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(&scalars{}, Options{})
	tests := []struct {
		name    string
		code    *source.Code
		kind    *errz.StructuredError
		message string
	}{
		{
			name:    "unsupported version",
			code:    &source.Code{Name: "f", Version: "2.7"},
			kind:    errz.UnsupportedVersion,
			message: `unsupported version in f: unsupported bytecode dialect "2.7"`,
		},
		{
			name:    "no instructions",
			code:    &source.Code{Name: "f", QualName: "C.f", Version: "3.11"},
			kind:    errz.Malformed,
			message: "malformed input in C.f: code object has no instructions",
		},
		{
			name: "constant without representation",
			code: returnNone(pyop.Py311).Code(pytest.Spec{
				Name:   "f",
				Consts: []source.Value{source.None, source.Float(1.5)},
			}),
			kind:    errz.NoRepresentation,
			message: "no representation in f: constant 1: no representation: source value of kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Code(ctx, tt.code, "demo")
			require.ErrorIs(t, err, tt.kind)
			require.ErrorContains(t, err, tt.message)
		})
	}
}

func TestBuilderFunction(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(&scalars{}, Options{})
	osModule := &source.Module{Name: "os"}
	globals := &source.Dict{}
	globals.Set(source.Str("__name__"), source.Str("demo"))
	globals.Set(source.Str("os"), osModule)
	globals.Set(source.Str("limit"), source.NewInt(10))
	kw := &source.Dict{}
	kw.Set(source.Str("sep"), source.Str(","))
	point := &source.Class{Name: "Point", Module: "geo"}

	code := returnNone(pyop.Py311).Code(pytest.Spec{
		Name:     "f",
		ArgCount: 1,
		KwOnly:   1,
		Flags:    pyop.CoOptimized | pyop.CoNewLocals | pyop.CoNested,
		Consts:   []source.Value{source.None},
		Names:    []string{"os", "limit", "missing"},
		VarNames: []string{"p", "sep"},
		FreeVars: []string{"scale"},
	})
	f := &source.Function{
		Code:       code,
		Name:       "f",
		QualName:   "Shape.f",
		Module:     "demo",
		Globals:    globals,
		Defaults:   []source.Value{source.NewInt(3)},
		KwDefaults: kw,
		Annotations: []source.Annotation{
			{Name: "p", Type: point},
			{Name: "sep", Type: source.Str("str")},
			{Name: "return", Type: source.None},
		},
		Closure: []*source.Cell{{Contents: source.NewInt(2)}},
	}

	u, err := b.Function(ctx, f)
	require.NoError(t, err)
	require.Equal(t, "Shape.f", u.QualName)
	require.Same(t, f, u.Function)
	require.Len(t, u.Defaults, 1)
	require.Equal(t, "3", u.Defaults[0].(*object.Int).String())
	require.Equal(t, ",", u.KwDefaults.GetStr("sep").(*object.Str).Value())

	pointType, err := b.ResolveAnnotation(ctx, point)
	require.NoError(t, err)
	require.Equal(t, []Annotation{
		{Name: "p", Type: pointType},
		{Name: "sep", Type: object.StrType},
		{Name: "return", Type: object.None.Type()},
	}, u.Annotations)

	require.Len(t, u.Closure, 1)
	scale, ok := u.Closure[0].Get()
	require.True(t, ok)
	require.Equal(t, "2", scale.(*object.Int).String())

	// The snapshot is shared and only holds __name__ until filled.
	require.Same(t, b.Globals().Snapshot(globals), u.Globals)
	require.Equal(t, 1, u.Globals.Len())
	require.NoError(t, b.FillGlobals(ctx, u))
	require.Equal(t, "10", u.Globals.GetStr("limit").(*object.Int).String())
	require.Nil(t, u.Globals.GetStr("missing"))
	opaque, ok := u.Globals.GetStr("os").(*object.Opaque)
	require.True(t, ok)
	require.Same(t, osModule, opaque.Ref())
}

func TestBuilderFunctionErrors(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(&scalars{}, Options{})
	code := func(freevars ...string) *source.Code {
		return returnNone(pyop.Py311).Code(pytest.Spec{
			Name:     "f",
			ArgCount: 1,
			Flags:    pyop.CoOptimized | pyop.CoNewLocals,
			Consts:   []source.Value{source.None},
			VarNames: []string{"x"},
			FreeVars: freevars,
		})
	}
	tests := []struct {
		name    string
		fn      *source.Function
		kind    *errz.StructuredError
		message string
	}{
		{
			name:    "no code",
			fn:      &source.Function{Name: "f"},
			kind:    errz.Malformed,
			message: "function f has no code object",
		},
		{
			name:    "closure size",
			fn:      &source.Function{Name: "f", Code: code("y")},
			kind:    errz.Malformed,
			message: "malformed input in f: closure has 0 cells for 1 free variables",
		},
		{
			name: "unresolvable annotation",
			fn: &source.Function{Name: "f", Code: code(), Annotations: []source.Annotation{
				{Name: "x", Type: source.Str("Frobnicator")},
			}},
			kind:    errz.Unmodeled,
			message: "cannot resolve string 'Frobnicator' annotation to a type",
		},
		{
			name:    "default without representation",
			fn:      &source.Function{Name: "f", Code: code(), Defaults: []source.Value{source.Float(0.5)}},
			kind:    errz.NoRepresentation,
			message: "source value of kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Function(ctx, tt.fn)
			require.ErrorIs(t, err, tt.kind)
			require.ErrorContains(t, err, tt.message)
		})
	}

	// Without a globals dict the function gets a private namespace named
	// after its module.
	u, err := b.Function(ctx, &source.Function{Name: "f", Module: "demo", Code: code()})
	require.NoError(t, err)
	require.Equal(t, "demo", u.Globals.GetStr("__name__").(*object.Str).Value())
	require.NoError(t, b.FillGlobals(ctx, u))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"x", "x"},
		{"é", "é"},
		{".0", "_0"},
		{"1abc", "_1abc"},
		{"class", "class_"},
		{"a-b", "a_b"},
		{"ﬁle", "file"},
		{"", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, Sanitize(tt.in))
			require.True(t, IsIdentifier(Sanitize(tt.in)))
		})
	}
}

func TestSanitizeAllStaysInjective(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, nil},
		{[]string{"a", "b"}, []string{"a", "b"}},
		{[]string{"a_b", "a-b", "a.b", "x"}, []string{"a_b", "a_b_1", "a_b_2", "x"}},
		{[]string{".0", "_0"}, []string{"_0_1", "_0"}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeAll(tt.in))
	}
}

func TestDenied(t *testing.T) {
	defaults := NewBuilder(&scalars{}, Options{})
	custom := NewBuilder(&scalars{}, Options{Deny: []string{"mylib"}})
	tests := []struct {
		name   string
		v      source.Value
		denied bool
		custom bool
	}{
		{"module", &source.Module{Name: "os"}, true, false},
		{"submodule", &source.Module{Name: "os.path"}, true, false},
		{"prefix only", &source.Function{Name: "f", Module: "osx"}, false, false},
		{"class", &source.Class{Name: "Lock", Module: "threading"}, true, false},
		{"builtin", &source.Builtin{Module: "builtins", Name: "len"}, false, false},
		{"custom list", &source.Function{Name: "g", Module: "mylib.sub"}, false, true},
		{"scalar", source.Str("os"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.denied, defaults.Denied(tt.v))
			require.Equal(t, tt.custom, custom.Denied(tt.v))
		})
	}
}

func TestResolveAnnotation(t *testing.T) {
	ctx := context.Background()
	b := NewBuilder(&scalars{}, Options{})
	point := &source.Class{Name: "Point", Module: "geo"}
	pointType, err := b.ResolveAnnotation(ctx, point)
	require.NoError(t, err)
	require.Equal(t, "Point", pointType.Name())

	tests := []struct {
		name string
		v    source.Value
		want *object.Type
		err  string
	}{
		{name: "string builtin", v: source.Str("int"), want: object.IntType},
		{name: "string None", v: source.Str("None"), want: object.None.Type()},
		{name: "None", v: source.None, want: object.None.Type()},
		{name: "builtin reference", v: &source.Builtin{Module: "builtins", Name: "str"}, want: object.StrType},
		{name: "exception alias", v: source.Str("IOError"), want: object.OSErrorType},
		{name: "class", v: point, want: pointType},
		{name: "unknown string", v: source.Str("Frobnicator"), err: "cannot resolve string 'Frobnicator' annotation to a type"},
		{name: "foreign builtin", v: &source.Builtin{Module: "math", Name: "pi"}, err: "cannot resolve math.pi annotation to a type"},
		{name: "denied class", v: &source.Class{Name: "Lock", Module: "threading"}, err: "cannot resolve class Lock annotation to a type"},
		{name: "missing", v: nil, err: "cannot resolve missing annotation to a type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, err := b.ResolveAnnotation(ctx, tt.v)
			if tt.err != "" {
				require.ErrorIs(t, err, errz.Unmodeled)
				require.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Same(t, tt.want, typ)
		})
	}
}

func TestTypeTable(t *testing.T) {
	types := NewTypeTable()
	for name, want := range map[string]*object.Type{
		"int":              object.IntType,
		"NoneType":         object.None.Type(),
		"EnvironmentError": object.OSErrorType,
		"ValueError":       object.ValueErrorType,
	} {
		typ, ok := types.Builtin(name)
		require.True(t, ok, name)
		require.Same(t, want, typ, name)
	}
	_, ok := types.Builtin("Point")
	require.False(t, ok)

	cls := &source.Class{Name: "Point"}
	_, _, err := types.Resolve(cls, func() (*object.Type, error) {
		return nil, errors.New("base failed")
	})
	require.EqualError(t, err, "base failed")
	_, ok = types.Lookup(cls)
	require.False(t, ok)

	var calls atomic.Int32
	var creators atomic.Int32
	results := make([]*object.Type, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ, created, err := types.Resolve(cls, func() (*object.Type, error) {
				calls.Add(1)
				return object.NewClass(object.ClassSpec{Name: "Point"})
			})
			require.NoError(t, err)
			if created {
				creators.Add(1)
			}
			results[i] = typ
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, int32(1), creators.Load())
	for _, typ := range results {
		require.Same(t, results[0], typ)
	}
	require.Equal(t, 1, types.Len())
}

func convertScalars(ctx context.Context, v source.Value) (object.Object, error) {
	return (&scalars{}).Convert(ctx, v)
}

func TestGlobalsTableSnapshots(t *testing.T) {
	ctx := context.Background()
	g := NewGlobalsTable()
	src := &source.Dict{}
	src.Set(source.Str("__name__"), source.Str("demo"))
	src.Set(source.Str("x"), source.NewInt(1))
	src.Set(source.Str("y"), source.Float(2.5))
	other := &source.Dict{}

	d := g.Snapshot(src)
	require.Same(t, d, g.Snapshot(src))
	require.NotSame(t, d, g.Snapshot(other))
	require.Equal(t, 2, g.Len())
	require.Equal(t, "demo", d.GetStr("__name__").(*object.Str).Value())
	require.Equal(t, 0, g.Snapshot(other).Len())

	// A failed conversion leaves the name unclaimed for a later fill.
	err := g.Fill(ctx, src, []string{"x", "y", "z"}, convertScalars)
	require.ErrorIs(t, err, errz.NoRepresentation)
	require.ErrorContains(t, err, `global "y"`)
	require.Equal(t, "1", d.GetStr("x").(*object.Int).String())
	require.Nil(t, d.GetStr("y"))

	err = g.Fill(ctx, src, []string{"x", "y", "z"}, func(ctx context.Context, v source.Value) (object.Object, error) {
		if f, ok := v.(source.Float); ok {
			return object.NewFloat(float64(f)), nil
		}
		return nil, fmt.Errorf("%s converted twice", v.Kind())
	})
	require.NoError(t, err)
	require.Equal(t, 2.5, d.GetStr("y").(*object.Float).Value())
	require.Nil(t, d.GetStr("z"))
}

func TestGlobalsFillRecursesIntoOwnNamespace(t *testing.T) {
	ctx := context.Background()
	g := NewGlobalsTable()
	src := &source.Dict{}
	src.Set(source.Str("f"), source.Str("f"))
	src.Set(source.Str("g"), source.Str("g"))

	var convert func(context.Context, source.Value) (object.Object, error)
	convert = func(ctx context.Context, v source.Value) (object.Object, error) {
		// Converting f needs the namespace f lives in.
		if v == source.Str("f") {
			if err := g.Fill(ctx, src, []string{"f", "g"}, convert); err != nil {
				return nil, err
			}
		}
		return convertScalars(ctx, v)
	}
	require.NoError(t, g.Fill(ctx, src, []string{"f"}, convert))
	d := g.Snapshot(src)
	require.Equal(t, "f", d.GetStr("f").(*object.Str).Value())
	require.Equal(t, "g", d.GetStr("g").(*object.Str).Value())
}

func TestGlobalsFillWaitsForConcurrentConversion(t *testing.T) {
	ctx := context.Background()
	g := NewGlobalsTable()
	src := &source.Dict{}
	src.Set(source.Str("x"), source.NewInt(5))

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	slow := func(ctx context.Context, v source.Value) (object.Object, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return convertScalars(ctx, v)
	}

	first := make(chan error, 1)
	go func() { first <- g.Fill(ctx, src, []string{"x"}, slow) }()
	<-entered

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, g.Fill(canceled, src, []string{"x"}, slow), context.Canceled)

	// The second fill returns only once x is stored.
	seen := make(chan object.Object, 1)
	go func() {
		err := g.Fill(ctx, src, []string{"x"}, slow)
		if err != nil {
			seen <- nil
			return
		}
		seen <- g.Snapshot(src).GetStr("x")
	}()
	close(release)
	require.NoError(t, <-first)
	x := <-seen
	require.NotNil(t, x)
	require.Equal(t, "5", x.(*object.Int).String())
	require.Equal(t, int32(1), calls.Load())
}
