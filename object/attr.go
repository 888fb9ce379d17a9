package object

import (
	"context"
	"slices"
)

// descrGet applies the descriptor protocol to an attribute found on a
// type. obj is nil for class-level access.
func descrGet(ctx context.Context, attr Object, obj Object, owner *Type) (Object, error) {
	switch d := attr.(type) {
	case Descriptor:
		return d.Get(ctx, obj, owner)
	case *Str, *Int, *Tuple, *Dict, *List, *NoneType, *Bool, *Float, *Type:
		return attr, nil
	}
	get := attr.Type().Lookup("__get__")
	if get == nil {
		return attr, nil
	}
	var o Object = None
	if obj != nil {
		o = obj
	}
	var ow Object = None
	if owner != nil {
		ow = owner
	}
	return callBound(ctx, get, attr, []Object{o, ow}, nil)
}

// isDataDescriptor reports whether attr defines __set__ or __delete__.
func isDataDescriptor(attr Object) bool {
	switch attr.(type) {
	case DataDescriptor:
		return true
	case Descriptor, *Str, *Int, *Tuple, *Dict, *List, *NoneType, *Bool, *Float, *Type:
		return false
	}
	t := attr.Type()
	return t.Lookup("__set__") != nil || t.Lookup("__delete__") != nil
}

func instanceDict(o Object) *Dict {
	if hd, ok := o.(HasDict); ok {
		return hd.AttrDict()
	}
	return nil
}

// GenericGetAttr is object.__getattribute__: data descriptors on the type,
// then the instance dict, then other class attributes.
func GenericGetAttr(ctx context.Context, o Object, name string) (Object, error) {
	t := o.Type()
	attr := t.Lookup(name)
	if attr != nil && isDataDescriptor(attr) {
		return descrGet(ctx, attr, o, t)
	}
	if d := instanceDict(o); d != nil {
		if v := d.GetStr(name); v != nil {
			return v, nil
		}
	}
	if attr != nil {
		return descrGet(ctx, attr, o, t)
	}
	if t.flags&TypeOpaque != 0 && t.host != nil {
		if op, ok := o.(*Instance); ok && op.host != nil {
			return opaqueGetAttr(ctx, op.host, name)
		}
	}
	return nil, noAttribute(o, name)
}

func noAttribute(o Object, name string) error {
	e := AttributeErrorf("'%s' object has no attribute '%s'", o.Type().name, name)
	e.AttrDict().SetStr("name", NewStr(name))
	return e
}

// GetAttr evaluates getattr(o, name), honoring __getattribute__ and
// __getattr__ overrides.
func GetAttr(ctx context.Context, o Object, name string) (Object, error) {
	switch v := o.(type) {
	case *Type:
		return typeGetAttr(ctx, v, name)
	case *Module:
		return moduleGetAttr(ctx, v, name)
	case *Super:
		return superGetAttr(ctx, v, name)
	case *Opaque:
		return opaqueGetAttr(ctx, v, name)
	case *Instance:
		return instanceGetAttr(ctx, v, name)
	}
	return GenericGetAttr(ctx, o, name)
}

func instanceGetAttr(ctx context.Context, o *Instance, name string) (Object, error) {
	t := o.typ
	ga := t.Lookup("__getattribute__")
	var v Object
	var err error
	if b, ok := ga.(*Builtin); ga == nil || (ok && b.owner == ObjectType) {
		v, err = GenericGetAttr(ctx, o, name)
	} else {
		v, err = callBound(ctx, ga, o, []Object{NewStr(name)}, nil)
	}
	if err == nil || !IsExceptionOf(err, AttributeErrorType) {
		return v, err
	}
	if hook := t.Lookup("__getattr__"); hook != nil {
		return callBound(ctx, hook, o, []Object{NewStr(name)}, nil)
	}
	return nil, err
}

// LookupMethod resolves name for a method call. When the attribute is a
// plain function on the type it returns the function and true so the
// caller can pass o as the first argument without allocating a bound
// method.
func LookupMethod(ctx context.Context, o Object, name string) (Object, bool, error) {
	switch o.(type) {
	case *Type, *Module, *Super, *Opaque:
		v, err := GetAttr(ctx, o, name)
		return v, false, err
	}
	t := o.Type()
	if inst, ok := o.(*Instance); ok {
		if ga := t.Lookup("__getattribute__"); ga != nil {
			if b, ok := ga.(*Builtin); !ok || b.owner != ObjectType {
				v, err := instanceGetAttr(ctx, inst, name)
				return v, false, err
			}
		}
	}
	attr := t.Lookup(name)
	switch f := attr.(type) {
	case *Function:
		if d := instanceDict(o); d != nil {
			if v := d.GetStr(name); v != nil {
				return v, false, nil
			}
		}
		return f, true, nil
	case *Builtin:
		if f.kind == kindMethod {
			if d := instanceDict(o); d != nil {
				if v := d.GetStr(name); v != nil {
					return v, false, nil
				}
			}
			return f, true, nil
		}
	}
	v, err := GetAttr(ctx, o, name)
	return v, false, err
}

// SetAttr evaluates setattr(o, name, value).
func SetAttr(ctx context.Context, o Object, name string, value Object) error {
	switch v := o.(type) {
	case *Type:
		if meta := v.Type(); meta != TypeType {
			if fn := meta.Lookup("__setattr__"); fn != nil && !isObjectSlot(fn) {
				_, err := callBound(ctx, fn, v, []Object{NewStr(name), value}, nil)
				return err
			}
		}
		return typeSetAttr(ctx, v, name, value)
	case *Opaque:
		return opaqueSetAttr(ctx, v, name, value)
	case *Instance:
		if fn := v.typ.Lookup("__setattr__"); fn != nil && !isObjectSlot(fn) {
			_, err := callBound(ctx, fn, v, []Object{NewStr(name), value}, nil)
			return err
		}
	}
	return GenericSetAttr(ctx, o, name, value)
}

func isObjectSlot(fn Object) bool {
	b, ok := fn.(*Builtin)
	return ok && (b.owner == ObjectType || b.owner == TypeType)
}

// GenericSetAttr is object.__setattr__. A nil value deletes.
func GenericSetAttr(ctx context.Context, o Object, name string, value Object) error {
	t := o.Type()
	if attr := t.Lookup(name); attr != nil {
		if dd, ok := attr.(DataDescriptor); ok {
			if value == nil {
				return dd.Delete(ctx, o)
			}
			return dd.Set(ctx, o, value)
		}
		if isDataDescriptor(attr) {
			if value == nil {
				if fn := attr.Type().Lookup("__delete__"); fn != nil {
					_, err := callBound(ctx, fn, attr, []Object{o}, nil)
					return err
				}
				return AttributeErrorf("__delete__")
			}
			if fn := attr.Type().Lookup("__set__"); fn != nil {
				_, err := callBound(ctx, fn, attr, []Object{o, value}, nil)
				return err
			}
			return AttributeErrorf("__set__")
		}
	}
	if inst, ok := o.(*Instance); ok && inst.host != nil {
		return opaqueSetAttr(ctx, inst.host, name, value)
	}
	d := instanceDict(o)
	if d == nil {
		if t.Lookup(name) != nil {
			return AttributeErrorf("'%s' object attribute '%s' is read-only", t.name, name)
		}
		return noAttribute(o, name)
	}
	if value == nil {
		if !d.delStr(name) {
			return noAttribute(o, name)
		}
		return nil
	}
	d.SetStr(name, value)
	return nil
}

// DelAttr evaluates delattr(o, name).
func DelAttr(ctx context.Context, o Object, name string) error {
	switch v := o.(type) {
	case *Type:
		return typeSetAttr(ctx, v, name, nil)
	case *Opaque:
		return opaqueSetAttr(ctx, v, name, nil)
	case *Instance:
		if fn := v.typ.Lookup("__delattr__"); fn != nil && !isObjectSlot(fn) {
			_, err := callBound(ctx, fn, v, []Object{NewStr(name)}, nil)
			return err
		}
	}
	return GenericSetAttr(ctx, o, name, nil)
}

// HasAttr evaluates hasattr(o, name).
func HasAttr(ctx context.Context, o Object, name string) (bool, error) {
	_, err := GetAttr(ctx, o, name)
	if err == nil {
		return true, nil
	}
	if IsExceptionOf(err, AttributeErrorType) {
		return false, nil
	}
	return false, err
}

// Dir returns the sorted attribute names visible on o.
func Dir(ctx context.Context, o Object) []string {
	seen := map[string]bool{}
	var names []string
	add := func(d *Dict) {
		if d == nil {
			return
		}
		for _, k := range d.Keys() {
			if s, ok := k.(*Str); ok && !seen[s.value] {
				seen[s.value] = true
				names = append(names, s.value)
			}
		}
	}
	switch v := o.(type) {
	case *Module:
		add(v.dict)
	case *Type:
		for _, b := range v.mro {
			add(b.dict)
		}
	default:
		add(instanceDict(o))
		for _, b := range o.Type().mro {
			add(b.dict)
		}
	}
	slices.Sort(names)
	return names
}
