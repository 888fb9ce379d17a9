package bridge

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
)

// Extract returns the source value for a runtime value. Opaque values give
// back their retained reference unchanged; translated functions, classes
// and modules give back the source object they were converted from.
// Containers are rebuilt, preserving aliasing and cycles among their
// elements.
func (c *Converter) Extract(ctx context.Context, o object.Object) (source.Value, error) {
	x := &extractor{c: c, seen: map[object.Object]source.Value{}}
	return x.value(ctx, o)
}

type extractor struct {
	c    *Converter
	seen map[object.Object]source.Value
}

func (x *extractor) value(ctx context.Context, o object.Object) (source.Value, error) {
	if o == nil {
		return nil, noRepresentation("nil runtime value")
	}
	if v, ok := x.seen[o]; ok {
		return v, nil
	}
	switch o := o.(type) {
	case *object.Opaque:
		if v, ok := x.c.ids.Source(o); ok {
			return v, nil
		}
		if v, ok := o.Ref().(source.Value); ok {
			return v, nil
		}
		return &source.Opaque{TypeName: o.Type().Name(), Ref: o.Ref()}, nil
	case *object.Function, *object.Type, *object.Module, *object.Code,
		*object.StaticMethod, *object.ClassMethod, *object.Property, *object.Builtin:
		if v, ok := x.c.ids.Source(o); ok {
			return v, nil
		}
	}
	switch o := o.(type) {
	case *object.Bool:
		return source.Bool(o.Value()), nil
	case *object.Int:
		return source.Int{V: o.Big()}, nil
	case *object.Float:
		return source.Float(o.Value()), nil
	case *object.Complex:
		return source.Complex(o.Value()), nil
	case *object.Str:
		return source.Str(o.Value()), nil
	case *object.Bytes:
		return source.Bytes(append([]byte(nil), o.Value()...)), nil
	case *object.ByteArray:
		v := &source.ByteArray{Data: append([]byte(nil), o.Value()...)}
		x.seen[o] = v
		return v, nil
	case *object.Tuple:
		v := &source.Tuple{}
		x.seen[o] = v
		items, err := x.all(ctx, o.Items())
		v.Items = items
		return v, err
	case *object.List:
		v := &source.List{}
		x.seen[o] = v
		items, err := x.all(ctx, o.Items())
		v.Items = items
		return v, err
	case *object.Set:
		v := &source.Set{}
		x.seen[o] = v
		items, err := x.all(ctx, o.Items())
		v.Items = items
		return v, err
	case *object.FrozenSet:
		v := &source.FrozenSet{}
		x.seen[o] = v
		items, err := x.all(ctx, o.Items())
		v.Items = items
		return v, err
	case *object.Dict:
		v := &source.Dict{}
		x.seen[o] = v
		for _, kv := range o.Items() {
			k, err := x.value(ctx, kv[0])
			if err != nil {
				return nil, err
			}
			val, err := x.value(ctx, kv[1])
			if err != nil {
				return nil, err
			}
			v.Keys = append(v.Keys, k)
			v.Values = append(v.Values, val)
		}
		return v, nil
	case *object.Cell:
		v := &source.Cell{}
		x.seen[o] = v
		if inner, ok := o.Get(); ok {
			val, err := x.value(ctx, inner)
			if err != nil {
				return nil, err
			}
			v.Contents = val
		}
		return v, nil
	case *object.Type:
		if o.Module() == "builtins" {
			return &source.Builtin{Module: "builtins", Name: o.Name()}, nil
		}
	case *object.Builtin:
		return &source.Builtin{Module: o.Module(), Name: o.Name()}, nil
	case *object.Module:
		if _, ok := x.c.modules[o.Name()]; ok {
			return &source.Builtin{Module: o.Name()}, nil
		}
	}
	switch {
	case o == object.None:
		return source.None, nil
	case o == object.Ellipsis:
		return source.Ellipsis, nil
	}
	return nil, noRepresentation("runtime value of type %s", o.Type().Name())
}

func (x *extractor) all(ctx context.Context, items []object.Object) ([]source.Value, error) {
	out := make([]source.Value, len(items))
	for i, item := range items {
		v, err := x.value(ctx, item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
