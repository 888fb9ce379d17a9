package source

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/fxamacker/cbor/v2"
)

// Document is a serialized source object graph. Reference kinds are given
// an ID on first occurrence and referenced by Ref afterwards, so aliasing
// and cycles survive the round trip.
type Document struct {
	Format string `json:"format"`
	Root   *Node  `json:"root"`
}

// DocumentFormat tags dumps produced by this package.
const DocumentFormat = "pyxlate-dump/1"

// Node is one serialized value.
type Node struct {
	Kind  string     `json:"kind,omitempty"`
	ID    int        `json:"id,omitempty"`
	Ref   int        `json:"ref,omitempty"`
	Value string     `json:"value,omitempty"`
	Name  string     `json:"name,omitempty"`
	Bytes []byte     `json:"bytes,omitempty"`
	Items []*Node    `json:"items,omitempty"`
	Keys  []*Node    `json:"keys,omitempty"`
	Code  *CodeNode  `json:"code,omitempty"`
	Func  *FuncNode  `json:"func,omitempty"`
	Class *ClassNode `json:"class,omitempty"`
}

type CodeNode struct {
	Version         string             `json:"version"`
	Name            string             `json:"name"`
	QualName        string             `json:"qualname,omitempty"`
	Filename        string             `json:"filename,omitempty"`
	FirstLine       int                `json:"firstlineno,omitempty"`
	ArgCount        int                `json:"argcount,omitempty"`
	PosOnlyArgCount int                `json:"posonlyargcount,omitempty"`
	KwOnlyArgCount  int                `json:"kwonlyargcount,omitempty"`
	Flags           int                `json:"flags,omitempty"`
	StackSize       int                `json:"stacksize,omitempty"`
	Instructions    []decode.Tuple     `json:"instructions,omitempty"`
	Wordcode        []byte             `json:"wordcode,omitempty"`
	Lines           []decode.LineStart `json:"lines,omitempty"`
	Consts          []*Node            `json:"consts,omitempty"`
	Names           []string           `json:"names,omitempty"`
	VarNames        []string           `json:"varnames,omitempty"`
	CellVars        []string           `json:"cellvars,omitempty"`
	FreeVars        []string           `json:"freevars,omitempty"`
	ExceptionTable  []byte             `json:"exceptiontable,omitempty"`
}

type FuncNode struct {
	Code            *Node    `json:"code"`
	Name            string   `json:"name"`
	QualName        string   `json:"qualname,omitempty"`
	Module          string   `json:"module,omitempty"`
	Globals         *Node    `json:"globals,omitempty"`
	Defaults        []*Node  `json:"defaults,omitempty"`
	KwDefaults      *Node    `json:"kwdefaults,omitempty"`
	AnnotationNames []string `json:"annotation_names,omitempty"`
	AnnotationTypes []*Node  `json:"annotation_types,omitempty"`
	Closure         []*Node  `json:"closure,omitempty"`
}

type ClassNode struct {
	Name     string  `json:"name"`
	QualName string  `json:"qualname,omitempty"`
	Module   string  `json:"module,omitempty"`
	Bases    []*Node `json:"bases,omitempty"`
	Dict     *Node   `json:"dict,omitempty"`
}

// MarshalJSON encodes v as a JSON document.
func MarshalJSON(v Value) ([]byte, error) {
	root, err := newEncoder().node(v)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(&Document{Format: DocumentFormat, Root: root}, "", "  ")
}

// UnmarshalJSON decodes a JSON document.
func UnmarshalJSON(data []byte) (Value, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return decodeDocument(&doc)
}

var cborEnc cbor.EncMode

func init() {
	var err error
	cborEnc, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCBOR encodes v as a canonical CBOR document.
func MarshalCBOR(v Value) ([]byte, error) {
	root, err := newEncoder().node(v)
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(&Document{Format: DocumentFormat, Root: root})
}

// UnmarshalCBOR decodes a CBOR document.
func UnmarshalCBOR(data []byte) (Value, error) {
	var doc Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return decodeDocument(&doc)
}

// Unmarshal decodes a document, detecting JSON by its leading brace.
func Unmarshal(data []byte) (Value, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		return UnmarshalJSON(data)
	}
	return UnmarshalCBOR(data)
}

func decodeDocument(doc *Document) (Value, error) {
	if doc.Format != DocumentFormat {
		return nil, fmt.Errorf("unsupported dump format %q", doc.Format)
	}
	if doc.Root == nil {
		return nil, fmt.Errorf("dump has no root value")
	}
	return newDecoder().value(doc.Root)
}

type encoder struct {
	ids  map[Value]int
	next int
}

func newEncoder() *encoder {
	return &encoder{ids: map[Value]int{}}
}

func isRef(v Value) bool {
	switch v.(type) {
	case *ByteArray, *Tuple, *List, *Dict, *Set, *FrozenSet, *Cell, *Code,
		*Function, *Class, *Module, *StaticMethod, *ClassMethod, *Property,
		*Opaque:
		return true
	}
	return false
}

func (e *encoder) nodes(values []Value) ([]*Node, error) {
	out := make([]*Node, len(values))
	for i, v := range values {
		n, err := e.node(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (e *encoder) node(v Value) (*Node, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot encode a nil value")
	}
	n := &Node{Kind: v.Kind().String()}
	if isRef(v) {
		if id, ok := e.ids[v]; ok {
			return &Node{Ref: id}, nil
		}
		e.next++
		e.ids[v] = e.next
		n.ID = e.next
	}
	var err error
	switch v := v.(type) {
	case *NoneType, *EllipsisType:
	case Bool:
		n.Value = strconv.FormatBool(bool(v))
	case Int:
		n.Value = v.V.String()
	case Float:
		n.Value = strconv.FormatFloat(float64(v), 'g', -1, 64)
	case Complex:
		n.Value = strconv.FormatComplex(complex128(v), 'g', -1, 128)
	case Str:
		n.Value = string(v)
	case Bytes:
		n.Bytes = []byte(v)
	case *ByteArray:
		n.Bytes = v.Data
	case *Tuple:
		n.Items, err = e.nodes(v.Items)
	case *List:
		n.Items, err = e.nodes(v.Items)
	case *Set:
		n.Items, err = e.nodes(v.Items)
	case *FrozenSet:
		n.Items, err = e.nodes(v.Items)
	case *Dict:
		if n.Keys, err = e.nodes(v.Keys); err == nil {
			n.Items, err = e.nodes(v.Values)
		}
	case *Cell:
		if v.Contents != nil {
			n.Items, err = e.nodes([]Value{v.Contents})
		}
	case *Code:
		n.Code, err = e.code(v)
	case *Function:
		n.Func, err = e.function(v)
	case *Class:
		n.Class = &ClassNode{Name: v.Name, QualName: v.QualName, Module: v.Module}
		if n.Class.Bases, err = e.nodes(v.Bases); err == nil && v.Dict != nil {
			n.Class.Dict, err = e.node(v.Dict)
		}
	case *Module:
		n.Name = v.Name
		if v.Dict != nil {
			n.Items, err = e.nodes([]Value{v.Dict})
		}
	case *Builtin:
		n.Value, n.Name = v.Module, v.Name
	case *StaticMethod:
		n.Items, err = e.nodes([]Value{v.Func})
	case *ClassMethod:
		n.Items, err = e.nodes([]Value{v.Func})
	case *Property:
		n.Items, err = e.nodes([]Value{orNone(v.Get), orNone(v.Set), orNone(v.Del), orNone(v.Doc)})
	case *Opaque:
		n.Name = v.TypeName
	default:
		return nil, fmt.Errorf("cannot encode value of kind %s", v.Kind())
	}
	return n, err
}

func orNone(v Value) Value {
	if v == nil {
		return None
	}
	return v
}

func (e *encoder) code(c *Code) (*CodeNode, error) {
	consts, err := e.nodes(c.Consts)
	if err != nil {
		return nil, err
	}
	return &CodeNode{
		Version:         c.Version,
		Name:            c.Name,
		QualName:        c.QualName,
		Filename:        c.Filename,
		FirstLine:       c.FirstLine,
		ArgCount:        c.ArgCount,
		PosOnlyArgCount: c.PosOnlyArgCount,
		KwOnlyArgCount:  c.KwOnlyArgCount,
		Flags:           c.Flags,
		StackSize:       c.StackSize,
		Instructions:    c.Instructions,
		Wordcode:        c.Wordcode,
		Lines:           c.Lines,
		Consts:          consts,
		Names:           c.Names,
		VarNames:        c.VarNames,
		CellVars:        c.CellVars,
		FreeVars:        c.FreeVars,
		ExceptionTable:  c.ExceptionTable,
	}, nil
}

func (e *encoder) function(f *Function) (*FuncNode, error) {
	fn := &FuncNode{Name: f.Name, QualName: f.QualName, Module: f.Module}
	var err error
	if fn.Code, err = e.node(f.Code); err != nil {
		return nil, err
	}
	if f.Globals != nil {
		if fn.Globals, err = e.node(f.Globals); err != nil {
			return nil, err
		}
	}
	if fn.Defaults, err = e.nodes(f.Defaults); err != nil {
		return nil, err
	}
	if f.KwDefaults != nil {
		if fn.KwDefaults, err = e.node(f.KwDefaults); err != nil {
			return nil, err
		}
	}
	for _, a := range f.Annotations {
		t, err := e.node(a.Type)
		if err != nil {
			return nil, err
		}
		fn.AnnotationNames = append(fn.AnnotationNames, a.Name)
		fn.AnnotationTypes = append(fn.AnnotationTypes, t)
	}
	for _, c := range f.Closure {
		n, err := e.node(c)
		if err != nil {
			return nil, err
		}
		fn.Closure = append(fn.Closure, n)
	}
	return fn, nil
}

type decoder struct {
	byID map[int]Value
}

func newDecoder() *decoder {
	return &decoder{byID: map[int]Value{}}
}

func (d *decoder) values(nodes []*Node) ([]Value, error) {
	out := make([]Value, len(nodes))
	for i, n := range nodes {
		v, err := d.value(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *decoder) register(n *Node, v Value) {
	if n.ID != 0 {
		d.byID[n.ID] = v
	}
}

func (d *decoder) value(n *Node) (Value, error) {
	if n == nil {
		return nil, fmt.Errorf("missing value")
	}
	if n.Ref != 0 {
		v, ok := d.byID[n.Ref]
		if !ok {
			return nil, fmt.Errorf("dangling reference %d", n.Ref)
		}
		return v, nil
	}
	var err error
	switch n.Kind {
	case "none":
		return None, nil
	case "ellipsis":
		return Ellipsis, nil
	case "bool":
		b, err := strconv.ParseBool(n.Value)
		return Bool(b), err
	case "int":
		i, ok := new(big.Int).SetString(n.Value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid int %q", n.Value)
		}
		return Int{V: i}, nil
	case "float":
		f, err := strconv.ParseFloat(n.Value, 64)
		return Float(f), err
	case "complex":
		c, err := strconv.ParseComplex(n.Value, 128)
		return Complex(c), err
	case "str":
		return Str(n.Value), nil
	case "bytes":
		return Bytes(n.Bytes), nil
	case "bytearray":
		v := &ByteArray{Data: n.Bytes}
		d.register(n, v)
		return v, nil
	case "tuple":
		v := &Tuple{}
		d.register(n, v)
		v.Items, err = d.values(n.Items)
		return v, err
	case "list":
		v := &List{}
		d.register(n, v)
		v.Items, err = d.values(n.Items)
		return v, err
	case "set":
		v := &Set{}
		d.register(n, v)
		v.Items, err = d.values(n.Items)
		return v, err
	case "frozenset":
		v := &FrozenSet{}
		d.register(n, v)
		v.Items, err = d.values(n.Items)
		return v, err
	case "dict":
		v := &Dict{}
		d.register(n, v)
		if v.Keys, err = d.values(n.Keys); err != nil {
			return nil, err
		}
		if v.Values, err = d.values(n.Items); err != nil {
			return nil, err
		}
		if len(v.Keys) != len(v.Values) {
			return nil, fmt.Errorf("dict has %d keys and %d values", len(v.Keys), len(v.Values))
		}
		return v, nil
	case "cell":
		v := &Cell{}
		d.register(n, v)
		if len(n.Items) == 1 {
			v.Contents, err = d.value(n.Items[0])
		}
		return v, err
	case "code":
		return d.code(n)
	case "function":
		return d.function(n)
	case "class":
		if n.Class == nil {
			return nil, fmt.Errorf("class node without class body")
		}
		v := &Class{Name: n.Class.Name, QualName: n.Class.QualName, Module: n.Class.Module}
		d.register(n, v)
		if v.Bases, err = d.values(n.Class.Bases); err != nil {
			return nil, err
		}
		if n.Class.Dict != nil {
			if v.Dict, err = d.dict(n.Class.Dict); err != nil {
				return nil, err
			}
		}
		return v, nil
	case "module":
		v := &Module{Name: n.Name}
		d.register(n, v)
		if len(n.Items) == 1 {
			v.Dict, err = d.dict(n.Items[0])
		}
		return v, err
	case "builtin":
		return &Builtin{Module: n.Value, Name: n.Name}, nil
	case "staticmethod", "classmethod":
		if len(n.Items) != 1 {
			return nil, fmt.Errorf("%s node needs exactly one item", n.Kind)
		}
		var fn Value
		if n.Kind == "staticmethod" {
			sm := &StaticMethod{}
			d.register(n, sm)
			sm.Func, err = d.value(n.Items[0])
			fn = sm
		} else {
			cm := &ClassMethod{}
			d.register(n, cm)
			cm.Func, err = d.value(n.Items[0])
			fn = cm
		}
		return fn, err
	case "property":
		p := &Property{}
		d.register(n, p)
		items, err := d.values(n.Items)
		if err != nil {
			return nil, err
		}
		slots := []*Value{&p.Get, &p.Set, &p.Del, &p.Doc}
		for i, item := range items {
			if i < len(slots) && item != None {
				*slots[i] = item
			}
		}
		return p, nil
	case "opaque":
		v := &Opaque{TypeName: n.Name}
		d.register(n, v)
		return v, nil
	}
	return nil, fmt.Errorf("unknown value kind %q", n.Kind)
}

func (d *decoder) dict(n *Node) (*Dict, error) {
	v, err := d.value(n)
	if err != nil {
		return nil, err
	}
	dict, ok := v.(*Dict)
	if !ok {
		return nil, fmt.Errorf("expected dict, got %s", v.Kind())
	}
	return dict, nil
}

func (d *decoder) code(n *Node) (*Code, error) {
	cn := n.Code
	if cn == nil {
		return nil, fmt.Errorf("code node without code body")
	}
	c := &Code{
		Version:         cn.Version,
		Name:            cn.Name,
		QualName:        cn.QualName,
		Filename:        cn.Filename,
		FirstLine:       cn.FirstLine,
		ArgCount:        cn.ArgCount,
		PosOnlyArgCount: cn.PosOnlyArgCount,
		KwOnlyArgCount:  cn.KwOnlyArgCount,
		Flags:           cn.Flags,
		StackSize:       cn.StackSize,
		Instructions:    cn.Instructions,
		Wordcode:        cn.Wordcode,
		Lines:           cn.Lines,
		Names:           cn.Names,
		VarNames:        cn.VarNames,
		CellVars:        cn.CellVars,
		FreeVars:        cn.FreeVars,
		ExceptionTable:  cn.ExceptionTable,
	}
	d.register(n, c)
	var err error
	c.Consts, err = d.values(cn.Consts)
	return c, err
}

func (d *decoder) function(n *Node) (*Function, error) {
	fn := n.Func
	if fn == nil {
		return nil, fmt.Errorf("function node without function body")
	}
	f := &Function{Name: fn.Name, QualName: fn.QualName, Module: fn.Module}
	d.register(n, f)
	cv, err := d.value(fn.Code)
	if err != nil {
		return nil, err
	}
	code, ok := cv.(*Code)
	if !ok {
		return nil, fmt.Errorf("function %s: expected code, got %s", fn.Name, cv.Kind())
	}
	f.Code = code
	if fn.Globals != nil {
		if f.Globals, err = d.dict(fn.Globals); err != nil {
			return nil, err
		}
	}
	if f.Defaults, err = d.values(fn.Defaults); err != nil {
		return nil, err
	}
	if fn.KwDefaults != nil {
		if f.KwDefaults, err = d.dict(fn.KwDefaults); err != nil {
			return nil, err
		}
	}
	if len(fn.AnnotationNames) != len(fn.AnnotationTypes) {
		return nil, fmt.Errorf("function %s: annotation names and types differ in length", fn.Name)
	}
	for i, name := range fn.AnnotationNames {
		t, err := d.value(fn.AnnotationTypes[i])
		if err != nil {
			return nil, err
		}
		f.Annotations = append(f.Annotations, Annotation{Name: name, Type: t})
	}
	for _, cn := range fn.Closure {
		cv, err := d.value(cn)
		if err != nil {
			return nil, err
		}
		cell, ok := cv.(*Cell)
		if !ok {
			return nil, fmt.Errorf("function %s: closure entry is %s, not cell", fn.Name, cv.Kind())
		}
		f.Closure = append(f.Closure, cell)
	}
	return f, nil
}
