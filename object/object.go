// Package object provides the runtime values manipulated by translated code.
//
// Every value implements Object. The dynamic behavior of a value (its
// attributes, operators and method resolution order) is described by the
// *Type returned from Type(), so generic operations such as BinaryOp,
// GetAttr or Iter consult the type's namespace when no native fast path
// applies.
//
// For example:
//
//	switch obj := obj.(type) {
//	case *object.Int:
//		// do something with obj.Int64()
//	case *object.Str:
//		// do something with obj.Value()
//	}
//
// Operations that may run user code take a context.Context that carries the
// interpreter callbacks installed by the virtual machine (see WithCallFunc).
package object

import (
	"context"
)

// Object is the interface that all runtime values implement.
type Object interface {
	// Type returns the type descriptor of the value.
	Type() *Type
}

// Callable is implemented by objects with a native call path. Positional
// arguments come first in args; the trailing len(kwnames) entries are the
// values of the named keyword arguments.
type Callable interface {
	Call(ctx context.Context, args []Object, kwnames []string) (Object, error)
}

// Iterator is implemented by native iterators. Next reports false once the
// iterator is exhausted.
type Iterator interface {
	Object
	Next(ctx context.Context) (Object, bool, error)
}

// Descriptor is implemented by objects that customise how they are read
// when found in a type's namespace. obj is nil when the attribute is read
// from the type itself.
type Descriptor interface {
	Get(ctx context.Context, obj Object, owner *Type) (Object, error)
}

// DataDescriptor is a Descriptor that also intercepts assignment and
// deletion. Data descriptors take precedence over instance dictionaries.
type DataDescriptor interface {
	Descriptor
	Set(ctx context.Context, obj, value Object) error
	Delete(ctx context.Context, obj Object) error
}

// HasDict is implemented by objects carrying an attribute dictionary.
type HasDict interface {
	AttrDict() *Dict
}

// Singleton values.
var (
	None           = &NoneType{}
	NotImplemented = &NotImplementedType{}
	Ellipsis       = &EllipsisType{}
	True           = &Bool{value: true}
	False          = &Bool{value: false}
)

// NoneType is the type of None.
type NoneType struct{}

func (n *NoneType) Type() *Type { return NoneTypeType }

// NotImplementedType is the type of NotImplemented, the value binary special
// methods return to request the reflected operation.
type NotImplementedType struct{}

func (n *NotImplementedType) Type() *Type { return NotImplementedTypeType }

// EllipsisType is the type of the ... literal.
type EllipsisType struct{}

func (e *EllipsisType) Type() *Type { return EllipsisTypeType }

// Bool is a boolean value. bool is a subtype of int.
type Bool struct {
	value bool
}

func (b *Bool) Type() *Type { return BoolType }

// Value returns the Go value of the bool.
func (b *Bool) Value() bool { return b.value }

// NewBool returns one of the True or False singletons.
func NewBool(v bool) *Bool {
	if v {
		return True
	}
	return False
}

// IsNone reports whether o is nil or None.
func IsNone(o Object) bool {
	return o == nil || o == Object(None)
}
