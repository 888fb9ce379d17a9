// Package source models the values handed over by the source interpreter:
// code objects, functions, classes, modules, containers and scalars.
//
// Reference kinds are pointers and their pointer identity is the source
// object's identity. Scalars are compared by value.
package source

import (
	"math/big"

	"github.com/deepnoodle-ai/pyxlate/decode"
)

// Kind identifies the variant of a source value.
type Kind uint8

const (
	KindNone Kind = iota + 1
	KindBool
	KindInt
	KindFloat
	KindComplex
	KindStr
	KindBytes
	KindByteArray
	KindEllipsis
	KindTuple
	KindList
	KindDict
	KindSet
	KindFrozenSet
	KindCode
	KindFunction
	KindClass
	KindModule
	KindBuiltin
	KindCell
	KindStaticMethod
	KindClassMethod
	KindProperty
	KindOpaque
)

var kindNames = map[Kind]string{
	KindNone: "none", KindBool: "bool", KindInt: "int", KindFloat: "float",
	KindComplex: "complex", KindStr: "str", KindBytes: "bytes",
	KindByteArray: "bytearray", KindEllipsis: "ellipsis", KindTuple: "tuple",
	KindList: "list", KindDict: "dict", KindSet: "set",
	KindFrozenSet: "frozenset", KindCode: "code", KindFunction: "function",
	KindClass: "class", KindModule: "module", KindBuiltin: "builtin",
	KindCell: "cell", KindStaticMethod: "staticmethod",
	KindClassMethod: "classmethod", KindProperty: "property",
	KindOpaque: "opaque",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Value is any source-side value.
type Value interface {
	Kind() Kind
}

type NoneType struct{}

func (*NoneType) Kind() Kind { return KindNone }

type EllipsisType struct{}

func (*EllipsisType) Kind() Kind { return KindEllipsis }

var (
	None     = &NoneType{}
	Ellipsis = &EllipsisType{}
)

type Bool bool

func (Bool) Kind() Kind { return KindBool }

// Int is an arbitrary precision integer.
type Int struct {
	V *big.Int
}

func (Int) Kind() Kind { return KindInt }

// NewInt returns an Int holding v.
func NewInt(v int64) Int { return Int{V: big.NewInt(v)} }

type Float float64

func (Float) Kind() Kind { return KindFloat }

type Complex complex128

func (Complex) Kind() Kind { return KindComplex }

type Str string

func (Str) Kind() Kind { return KindStr }

type Bytes []byte

func (Bytes) Kind() Kind { return KindBytes }

type ByteArray struct {
	Data []byte
}

func (*ByteArray) Kind() Kind { return KindByteArray }

type Tuple struct {
	Items []Value
}

func (*Tuple) Kind() Kind { return KindTuple }

type List struct {
	Items []Value
}

func (*List) Kind() Kind { return KindList }

// Dict is an insertion-ordered mapping.
type Dict struct {
	Keys   []Value
	Values []Value
}

func (*Dict) Kind() Kind { return KindDict }

// Set appends key and value, replacing the value of an equal Str key.
func (d *Dict) Set(key, value Value) {
	if s, ok := key.(Str); ok {
		for i, k := range d.Keys {
			if ks, ok := k.(Str); ok && ks == s {
				d.Values[i] = value
				return
			}
		}
	}
	d.Keys = append(d.Keys, key)
	d.Values = append(d.Values, value)
}

// Lookup finds the value stored under a string key.
func (d *Dict) Lookup(name string) (Value, bool) {
	for i, k := range d.Keys {
		if ks, ok := k.(Str); ok && string(ks) == name {
			return d.Values[i], true
		}
	}
	return nil, false
}

type Set struct {
	Items []Value
}

func (*Set) Kind() Kind { return KindSet }

type FrozenSet struct {
	Items []Value
}

func (*FrozenSet) Kind() Kind { return KindFrozenSet }

// Cell is a closure cell. A nil Contents means the cell is empty.
type Cell struct {
	Contents Value
}

func (*Cell) Kind() Kind { return KindCell }

// Code is a source code object. Either Instructions or Wordcode carries the
// instruction stream.
type Code struct {
	Version         string
	Name            string
	QualName        string
	Filename        string
	FirstLine       int
	ArgCount        int
	PosOnlyArgCount int
	KwOnlyArgCount  int
	Flags           int
	StackSize       int
	Instructions    []decode.Tuple
	Wordcode        []byte
	Lines           []decode.LineStart
	Consts          []Value
	Names           []string
	VarNames        []string
	CellVars        []string
	FreeVars        []string
	ExceptionTable  []byte
}

func (*Code) Kind() Kind { return KindCode }

// Annotation is one entry of a function's __annotations__.
type Annotation struct {
	Name string
	Type Value
}

// Function is a source function object.
type Function struct {
	Code        *Code
	Name        string
	QualName    string
	Module      string
	Globals     *Dict
	Defaults    []Value
	KwDefaults  *Dict
	Annotations []Annotation
	Closure     []*Cell
}

func (*Function) Kind() Kind { return KindFunction }

// Class is a source class object. Dict holds the class namespace in
// definition order.
type Class struct {
	Name     string
	QualName string
	Module   string
	Bases    []Value
	Dict     *Dict
}

func (*Class) Kind() Kind { return KindClass }

// Module is a source module object.
type Module struct {
	Name string
	Dict *Dict
}

func (*Module) Kind() Kind { return KindModule }

// Builtin references an object by module and qualified name, e.g. the
// builtins module's int type or the math module's sqrt function.
type Builtin struct {
	Module string
	Name   string
}

func (*Builtin) Kind() Kind { return KindBuiltin }

type StaticMethod struct {
	Func Value
}

func (*StaticMethod) Kind() Kind { return KindStaticMethod }

type ClassMethod struct {
	Func Value
}

func (*ClassMethod) Kind() Kind { return KindClassMethod }

type Property struct {
	Get Value
	Set Value
	Del Value
	Doc Value
}

func (*Property) Kind() Kind { return KindProperty }

// Opaque is a source object with no structural representation. Ref is
// retained and handed back unchanged on extraction.
type Opaque struct {
	TypeName string
	Ref      any
}

func (*Opaque) Kind() Kind { return KindOpaque }

// Nested returns the code objects nested in c's constant pool, recursively.
func (c *Code) Nested() []*Code {
	var out []*Code
	var walk func(v Value)
	walk = func(v Value) {
		switch v := v.(type) {
		case *Code:
			out = append(out, v)
			for _, k := range v.Consts {
				walk(k)
			}
		case *Tuple:
			for _, item := range v.Items {
				walk(item)
			}
		}
	}
	for _, k := range c.Consts {
		walk(k)
	}
	return out
}
