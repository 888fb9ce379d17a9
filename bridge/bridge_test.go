package bridge

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var bigComparer = cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })

func TestDictInsertionOrder(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	src := &source.Dict{}
	src.Set(source.NewInt(3), source.Str("a"))
	src.Set(source.NewInt(2), source.Str("b"))
	src.Set(source.NewInt(1), source.Str("c"))

	o, err := c.Convert(ctx, src)
	require.NoError(t, err)
	d, ok := o.(*object.Dict)
	require.True(t, ok)

	var keys []int64
	it, err := object.Iter(ctx, d)
	require.NoError(t, err)
	for {
		k, ok, err := object.Next(ctx, it)
		require.NoError(t, err)
		if !ok {
			break
		}
		n, _ := k.(*object.Int).Int64()
		keys = append(keys, n)
	}
	require.Equal(t, []int64{3, 2, 1}, keys)
}

func TestConvertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	list := &source.List{Items: []source.Value{source.NewInt(1)}}

	a, err := c.Convert(ctx, list)
	require.NoError(t, err)
	b, err := c.Convert(ctx, list)
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestAliasingSurvivesConversion(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	shared := &source.List{Items: []source.Value{source.NewInt(1)}}
	pair := &source.Tuple{Items: []source.Value{shared, shared}}

	o, err := c.Convert(ctx, pair)
	require.NoError(t, err)
	items := o.(*object.Tuple).Items()
	require.Same(t, items[0], items[1])

	items[0].(*object.List).Append(object.NewInt(2))
	require.Equal(t, 2, items[1].(*object.List).Len())
}

func TestSelfReferentialList(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	l := &source.List{}
	l.Items = []source.Value{source.NewInt(1), l}

	o, err := c.Convert(ctx, l)
	require.NoError(t, err)
	list := o.(*object.List)
	require.Same(t, list, list.Items()[1])

	back, err := c.Extract(ctx, list)
	require.NoError(t, err)
	bl := back.(*source.List)
	require.Same(t, bl, bl.Items[1])
}

func TestTupleCycleThroughList(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	inner := &source.List{}
	tup := &source.Tuple{Items: []source.Value{inner}}
	inner.Items = []source.Value{tup}

	o, err := c.Convert(ctx, tup)
	require.NoError(t, err)
	got := o.(*object.Tuple)
	require.Same(t, got, got.Items()[0].(*object.List).Items()[0])
}

func TestFailedConversionForgetsPartialContainers(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	outer := &source.List{}
	inner := &source.List{Items: []source.Value{outer}}
	outer.Items = []source.Value{inner, nil}
	before := &source.Dict{}
	before.Set(source.Str("k"), inner)

	_, err := c.Convert(ctx, before)
	require.True(t, errors.Is(err, errz.NoRepresentation))
	for _, v := range []source.Value{before, outer, inner} {
		_, ok := c.Identity().Lookup(v)
		require.False(t, ok)
	}
	require.Equal(t, 0, c.Identity().Len())

	// Unrelated earlier conversions are kept.
	kept := &source.List{}
	k, err := c.Convert(ctx, kept)
	require.NoError(t, err)
	_, err = c.Convert(ctx, &source.Tuple{Items: []source.Value{kept, nil}})
	require.Error(t, err)
	got, ok := c.Identity().Lookup(kept)
	require.True(t, ok)
	require.Same(t, k, got)

	outer.Items[1] = source.NewInt(2)
	o, err := c.Convert(ctx, outer)
	require.NoError(t, err)
	list := o.(*object.List)
	require.Equal(t, 2, list.Len())
	require.Same(t, list, list.Items()[0].(*object.List).Items()[0])
}

func TestExtractRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	d := &source.Dict{}
	d.Set(source.Str("n"), source.Int{V: huge})
	d.Set(source.Str("f"), source.Float(1.5))
	src := &source.List{Items: []source.Value{
		source.None,
		source.Bool(true),
		source.Str("héllo"),
		source.Bytes("raw"),
		source.Complex(1 + 2i),
		&source.Tuple{Items: []source.Value{source.NewInt(-7), source.Ellipsis}},
		d,
	}}

	o, err := c.Convert(ctx, src)
	require.NoError(t, err)
	back, err := c.Extract(ctx, o)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(source.Value(src), back, bigComparer))
}

func TestOpaqueRoundTripKeepsReference(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	type handle struct{ id int }
	ref := &handle{id: 7}
	src := &source.Opaque{TypeName: "socket", Ref: ref}

	o, err := c.Convert(ctx, src)
	require.NoError(t, err)
	op, ok := o.(*object.Opaque)
	require.True(t, ok)
	require.Same(t, ref, op.Ref())

	back, err := c.Extract(ctx, o)
	require.NoError(t, err)
	require.Same(t, src, back)

	fresh := object.NewOpaque(ref, nil)
	back, err = c.Extract(ctx, fresh)
	require.NoError(t, err)
	require.Same(t, ref, back.(*source.Opaque).Ref)
}

func TestDeniedModuleIsOpaque(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	sys := &source.Module{Name: "sys"}
	o, err := c.Convert(ctx, sys)
	require.NoError(t, err)
	require.IsType(t, &object.Opaque{}, o)

	back, err := c.Extract(ctx, o)
	require.NoError(t, err)
	require.Same(t, sys, back)
}

func TestNativeModuleAndBuiltins(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	m, err := c.Convert(ctx, &source.Module{Name: "math"})
	require.NoError(t, err)
	native, _ := c.Module("math")
	require.Same(t, native, m)

	sqrt, err := c.Convert(ctx, &source.Builtin{Module: "math", Name: "sqrt"})
	require.NoError(t, err)
	require.Same(t, native.AttrDict().GetStr("sqrt"), sqrt)

	intType, err := c.Convert(ctx, &source.Builtin{Module: "builtins", Name: "int"})
	require.NoError(t, err)
	require.Same(t, object.IntType, intType)

	back, err := c.Extract(ctx, object.IntType)
	require.NoError(t, err)
	require.Equal(t, &source.Builtin{Module: "builtins", Name: "int"}, back)

	unknown, err := c.Convert(ctx, &source.Builtin{Module: "time", Name: "time"})
	require.NoError(t, err)
	require.IsType(t, &object.Opaque{}, unknown)
}

func TestClassConversion(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	base := &source.Class{Name: "Base", Module: "shapes", Dict: &source.Dict{}}
	base.Dict.Set(source.Str("sides"), source.NewInt(0))
	base.Dict.Set(source.Str("size"), &source.StaticMethod{Func: &source.Builtin{Module: "builtins", Name: "len"}})
	square := &source.Class{Name: "Square", Module: "shapes", Bases: []source.Value{base}, Dict: &source.Dict{}}
	square.Dict.Set(source.Str("sides"), source.NewInt(4))
	square.Dict.Set(source.Str("me"), square)

	o, err := c.Convert(ctx, square)
	require.NoError(t, err)
	sq := o.(*object.Type)
	require.Equal(t, "Square", sq.Name())
	require.Equal(t, "shapes", sq.Module())
	require.Len(t, sq.MRO(), 3)
	require.Same(t, sq, sq.Dict().GetStr("me"))

	sides, err := object.GetAttr(ctx, sq, "sides")
	require.NoError(t, err)
	require.Equal(t, "4", sides.(*object.Int).String())

	size, err := object.GetAttr(ctx, sq, "size")
	require.NoError(t, err)
	n, err := object.Call(ctx, size, []object.Object{object.NewStr("abc")}, nil)
	require.NoError(t, err)
	require.Equal(t, "3", n.(*object.Int).String())

	back, err := c.Extract(ctx, sq)
	require.NoError(t, err)
	require.Same(t, square, back)
}

func TestConcurrentClassResolutionConverges(t *testing.T) {
	ctx := context.Background()
	types := unit.NewTypeTable()
	cls := &source.Class{Name: "Point", Module: "geo", Dict: &source.Dict{}}

	const n = 8
	results := make([]object.Object, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := New(Options{Types: types})
			o, err := c.Convert(ctx, cls)
			if err == nil {
				results[i] = o
			}
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		require.NotNil(t, r)
		require.Same(t, results[0], r)
	}
	require.Equal(t, 1, types.Len())
}

func TestNoRepresentation(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	_, err := c.Convert(ctx, nil)
	require.True(t, errors.Is(err, errz.NoRepresentation))

	gen := object.NewRange(0, 3, 1)
	_, err = c.Extract(ctx, gen)
	require.True(t, errors.Is(err, errz.NoRepresentation))
	require.Equal(t, errz.ErrNoRepresentation, errz.KindOf(err))

	_, err = c.Convert(ctx, &source.Code{Name: "f", Version: "3.11"})
	require.Error(t, err)
}

func TestCellConversion(t *testing.T) {
	ctx := context.Background()
	c := New(Options{})
	cell := &source.Cell{Contents: source.NewInt(5)}
	empty := &source.Cell{}

	o, err := c.Convert(ctx, cell)
	require.NoError(t, err)
	v, ok := o.(*object.Cell).Get()
	require.True(t, ok)
	require.Equal(t, "5", v.(*object.Int).String())

	o, err = c.Convert(ctx, empty)
	require.NoError(t, err)
	_, ok = o.(*object.Cell).Get()
	require.False(t, ok)
}

func TestHostHooks(t *testing.T) {
	ctx := context.Background()
	h := WithModules(nil, object.NewModule("extra", nil))

	m, err := h.Import(ctx, "extra", nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, "extra", m.(*object.Module).Name())

	_, err = h.Import(ctx, "missing", nil, nil, 0)
	require.True(t, object.IsExceptionOf(err, object.ModuleNotFoundErrorType))
	require.Contains(t, err.Error(), "No module named 'missing'")

	_, err = h.GetAttr(ctx, "ref", "x")
	require.True(t, object.IsExceptionOf(err, object.AttributeErrorType))

	hooks := &Hooks{GetAttrFunc: func(ctx context.Context, ref any, name string) (object.Object, error) {
		if name == "ok" {
			return object.NewStr(ref.(string)), nil
		}
		return nil, errors.New("lookup failed")
	}}
	v, err := hooks.GetAttr(ctx, "value", "ok")
	require.NoError(t, err)
	require.Equal(t, "value", v.(*object.Str).Value())

	_, err = hooks.GetAttr(ctx, "value", "bad")
	exc, ok := object.AsException(err)
	require.True(t, ok)
	require.Same(t, object.AttributeErrorType, exc.Type())
	require.NotNil(t, exc.Cause())
}
