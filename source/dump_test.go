package source

import (
	"math"
	"math/big"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/stretchr/testify/require"
)

func sampleModule() *Module {
	shared := &List{Items: []Value{NewInt(1), Str("x")}}
	globals := &Dict{}
	code := &Code{
		Version:  "3.12",
		Name:     "f",
		QualName: "f",
		ArgCount: 1,
		Flags:    0x3,
		Instructions: []decode.Tuple{
			{Opname: "RESUME", Offset: 0},
			{Opname: "RETURN_CONST", Offset: 2},
		},
		Consts:   []Value{None, Float(math.Inf(1))},
		VarNames: []string{"x"},
	}
	fn := &Function{Code: code, Name: "f", QualName: "f", Module: "m", Globals: globals,
		Defaults:    []Value{shared},
		Annotations: []Annotation{{Name: "x", Type: &Builtin{Module: "builtins", Name: "int"}}}}
	globals.Set(Str("__name__"), Str("m"))
	globals.Set(Str("f"), fn)
	globals.Set(Str("a"), shared)
	globals.Set(Str("b"), shared)
	globals.Set(Str("big"), Int{V: new(big.Int).Lsh(big.NewInt(1), 80)})
	return &Module{Name: "m", Dict: globals}
}

func checkModule(t *testing.T, v Value) {
	mod, ok := v.(*Module)
	require.True(t, ok)
	a, _ := mod.Dict.Lookup("a")
	b, _ := mod.Dict.Lookup("b")
	require.Same(t, a.(*List), b.(*List))

	fv, _ := mod.Dict.Lookup("f")
	fn := fv.(*Function)
	require.Same(t, mod.Dict, fn.Globals)
	require.Same(t, a.(*List), fn.Defaults[0].(*List))
	require.Equal(t, "int", fn.Annotations[0].Type.(*Builtin).Name)
	require.True(t, math.IsInf(float64(fn.Code.Consts[1].(Float)), 1))
	require.Equal(t, "RETURN_CONST", fn.Code.Instructions[1].Opname)

	bv, _ := mod.Dict.Lookup("big")
	require.Equal(t, "1208925819614629174706176", bv.(Int).V.String())
}

func TestJSONDumpPreservesIdentity(t *testing.T) {
	data, err := MarshalJSON(sampleModule())
	require.NoError(t, err)
	v, err := Unmarshal(data)
	require.NoError(t, err)
	checkModule(t, v)
}

func TestCBORDumpPreservesIdentity(t *testing.T) {
	data, err := MarshalCBOR(sampleModule())
	require.NoError(t, err)
	v, err := Unmarshal(data)
	require.NoError(t, err)
	checkModule(t, v)
}

func TestDumpSelfReferentialList(t *testing.T) {
	l := &List{}
	l.Items = append(l.Items, l, Str("tail"))
	data, err := MarshalJSON(l)
	require.NoError(t, err)
	v, err := UnmarshalJSON(data)
	require.NoError(t, err)
	out := v.(*List)
	require.Same(t, out, out.Items[0].(*List))
}

func TestDumpRejectsDanglingRefs(t *testing.T) {
	_, err := UnmarshalJSON([]byte(`{"format":"pyxlate-dump/1","root":{"kind":"list","items":[{"ref":9}]}}`))
	require.ErrorContains(t, err, "dangling reference 9")

	_, err = UnmarshalJSON([]byte(`{"format":"other","root":{"kind":"none"}}`))
	require.Error(t, err)
}

func TestNestedCode(t *testing.T) {
	inner := &Code{Name: "inner"}
	innermost := &Code{Name: "innermost"}
	inner.Consts = []Value{innermost}
	outer := &Code{Consts: []Value{None, &Tuple{Items: []Value{inner}}}}
	nested := outer.Nested()
	require.Len(t, nested, 2)
	require.Same(t, inner, nested[0])
	require.Same(t, innermost, nested[1])
}
