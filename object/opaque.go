package object

import (
	"context"
	"fmt"
)

// Host is implemented by the embedding application to service operations
// on values the runtime cannot represent natively, and module imports.
type Host interface {
	GetAttr(ctx context.Context, ref any, name string) (Object, error)
	SetAttr(ctx context.Context, ref any, name string, value Object) error
	DelAttr(ctx context.Context, ref any, name string) error
	Call(ctx context.Context, ref any, args []Object, kwnames []string) (Object, error)
	Import(ctx context.Context, name string, globals *Dict, fromlist []string, level int) (Object, error)
}

// Opaque is a reference to a host value. Every operation on it is
// delegated to the Host found in the context.
type Opaque struct {
	ref any
	typ *Type
}

// NewOpaque wraps a host reference. typ may be nil, in which case the
// generic opaque type is used.
func NewOpaque(ref any, typ *Type) *Opaque {
	return &Opaque{ref: ref, typ: typ}
}

func (o *Opaque) Type() *Type {
	if o.typ != nil {
		return o.typ
	}
	return OpaqueType
}

// Ref returns the host reference.
func (o *Opaque) Ref() any { return o.ref }

func (o *Opaque) String() string {
	return fmt.Sprintf("<opaque %T at 0x%x>", o.ref, Id(o))
}

func (o *Opaque) Call(ctx context.Context, args []Object, kwnames []string) (Object, error) {
	host, ok := GetHost(ctx)
	if !ok {
		return nil, noHost("call")
	}
	return host.Call(ctx, o.ref, args, kwnames)
}

func noHost(what string) error {
	return NotImplementedErrorf("cannot %s an opaque host value without a host", what)
}

func opaqueGetAttr(ctx context.Context, o *Opaque, name string) (Object, error) {
	host, ok := GetHost(ctx)
	if !ok {
		return nil, noHost("read attributes of")
	}
	return host.GetAttr(ctx, o.ref, name)
}

// opaqueSetAttr assigns, or deletes when value is nil.
func opaqueSetAttr(ctx context.Context, o *Opaque, name string, value Object) error {
	host, ok := GetHost(ctx)
	if !ok {
		return noHost("modify attributes of")
	}
	if value == nil {
		return host.DelAttr(ctx, o.ref, name)
	}
	return host.SetAttr(ctx, o.ref, name, value)
}

// Import runs an import statement through the host.
func Import(ctx context.Context, name string, globals *Dict, fromlist []string, level int) (Object, error) {
	host, ok := GetHost(ctx)
	if !ok {
		return nil, NotImplementedErrorf("import of '%s' requires a host", name)
	}
	return host.Import(ctx, name, globals, fromlist, level)
}
