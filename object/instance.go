package object

import (
	"context"
	"fmt"
)

// Instance is an instance of a class created by a class statement. For
// subclasses of builtin types native holds the builtin value the instance
// extends; for subclasses of opaque host types host holds the host value.
type Instance struct {
	typ    *Type
	dict   *Dict
	native Object
	host   *Opaque
}

// NewInstance creates an empty instance of t.
func NewInstance(t *Type) *Instance {
	return &Instance{typ: t, dict: NewDict()}
}

// newNativeInstance returns v itself when cls is v's own type, and
// otherwise an instance of the subclass cls wrapping v.
func newNativeInstance(cls *Type, v Object) Object {
	if cls == v.Type() {
		return v
	}
	return &Instance{typ: cls, dict: NewDict(), native: v}
}

func (i *Instance) Type() *Type { return i.typ }

// AttrDict returns the instance's attribute dictionary.
func (i *Instance) AttrDict() *Dict { return i.dict }

// Native returns the builtin value a builtin-subclass instance extends, or
// nil.
func (i *Instance) Native() Object { return i.native }

// HostValue returns the host value of an opaque-subclass instance, or nil.
func (i *Instance) HostValue() *Opaque { return i.host }

func defaultRepr(o Object) string {
	t := o.Type()
	return fmt.Sprintf("<%s object at 0x%x>", t.FullName(), Id(o))
}

// restArgs rebuilds a call's argument vector from the surplus arguments
// of a variadic builtin.
func restArgs(args Args) ([]Object, []string) {
	out := append([]Object(nil), args.Rest...)
	var kwnames []string
	if args.Kwargs != nil {
		for _, e := range args.Kwargs.entries() {
			k := e.key.(*Str)
			out = append(out, e.value)
			kwnames = append(kwnames, k.value)
		}
	}
	return out, kwnames
}

func isObjectMethod(fn Object, name string) bool {
	return fn == nil || sameAttr(fn, ObjectType.dict.GetStr(name))
}

func objectNew(ctx context.Context, cls *Type, args Args) (Object, error) {
	excess := len(args.Rest) > 0 || args.Kwargs != nil
	if cls.flags&TypeOpaque != 0 && cls.host != nil {
		host, ok := GetHost(ctx)
		if !ok {
			return nil, NotImplementedErrorf("cannot instantiate host type '%s' without a host", cls.name)
		}
		pos, kwnames := restArgs(args)
		v, err := host.Call(ctx, cls.host.ref, pos, kwnames)
		if err != nil {
			return nil, err
		}
		op, ok := v.(*Opaque)
		if !ok || !cls.IsHeap() {
			return v, nil
		}
		return &Instance{typ: cls, dict: NewDict(), host: op}, nil
	}
	if excess {
		if !isObjectMethod(cls.Lookup("__new__"), "__new__") {
			return nil, TypeErrorf("object.__new__() takes exactly one argument (the type to instantiate)")
		}
		if isObjectMethod(cls.Lookup("__init__"), "__init__") {
			return nil, TypeErrorf("%s() takes no arguments", cls.name)
		}
	}
	if cls.solid != ObjectType {
		return nil, TypeErrorf("object.__new__(%s) is not safe, use %s.__new__()", cls.name, cls.solid.name)
	}
	if !cls.IsHeap() && cls != ObjectType {
		return nil, TypeErrorf("cannot create '%s' instances", cls.FullName())
	}
	if cls == ObjectType {
		return &Instance{typ: ObjectType}, nil
	}
	return NewInstance(cls), nil
}

func objectInit(ctx context.Context, self Object, args Args) (Object, error) {
	if len(args.Rest) == 0 && args.Kwargs == nil {
		return None, nil
	}
	t := self.Type()
	if t.flags&TypeOpaque != 0 {
		return None, nil
	}
	if !isObjectMethod(t.Lookup("__init__"), "__init__") {
		return nil, TypeErrorf("object.__init__() takes exactly one argument (the instance to initialize)")
	}
	if isObjectMethod(t.Lookup("__new__"), "__new__") {
		return nil, TypeErrorf("%s() takes no arguments", t.name)
	}
	return None, nil
}

// calculateMeta returns the most derived metaclass of meta and the
// metaclasses of bases.
func calculateMeta(meta *Type, bases []*Type) (*Type, error) {
	winner := meta
	for _, b := range bases {
		bt := b.Type()
		switch {
		case winner.IsSubtype(bt):
		case bt.IsSubtype(winner):
			winner = bt
		default:
			return nil, TypeErrorf("metaclass conflict: the metaclass of a derived class must be a " +
				"(non-strict) subclass of the metaclasses of all its bases")
		}
	}
	return winner, nil
}

func typeNew(ctx context.Context, cls *Type, args Args) (Object, error) {
	if cls == TypeType && len(args.Rest) == 1 && args.Kwargs == nil {
		return args.Rest[0].Type(), nil
	}
	if len(args.Rest) != 3 {
		return nil, TypeErrorf("type() takes 1 or 3 arguments")
	}
	name, ok := args.Rest[0].(*Str)
	if !ok {
		return nil, TypeErrorf("type.__new__() argument 1 must be str, not %s", args.Rest[0].Type().name)
	}
	baseTuple, ok := args.Rest[1].(*Tuple)
	if !ok {
		return nil, TypeErrorf("type.__new__() argument 2 must be tuple, not %s", args.Rest[1].Type().name)
	}
	ns, ok := exact[*Dict](args.Rest[2])
	if !ok {
		return nil, TypeErrorf("type.__new__() argument 3 must be dict, not %s", args.Rest[2].Type().name)
	}
	bases := make([]*Type, len(baseTuple.items))
	for i, b := range baseTuple.items {
		bt, ok := b.(*Type)
		if !ok {
			return nil, TypeErrorf("bases must be types")
		}
		bases[i] = bt
	}
	meta, err := calculateMeta(cls, bases)
	if err != nil {
		return nil, err
	}
	if meta != cls {
		if fn := meta.Lookup("__new__"); fn != nil && !sameAttr(fn, TypeType.dict.GetStr("__new__")) {
			callee, err := descrGet(ctx, fn, nil, meta)
			if err != nil {
				return nil, err
			}
			pos, kwnames := restArgs(args)
			return Call(ctx, callee, prepend(meta, pos), kwnames)
		}
	}
	namespace := ns.Copy()
	classcell := namespace.GetStr("__classcell__")
	if classcell != nil {
		namespace.delStr("__classcell__")
	}
	spec := ClassSpec{
		Name:      name.value,
		Bases:     bases,
		Namespace: namespace,
	}
	if meta != TypeType {
		spec.Meta = meta
	}
	t, err := NewClass(spec)
	if err != nil {
		return nil, err
	}
	if classcell != nil {
		cell, ok := classcell.(*Cell)
		if !ok {
			return nil, TypeErrorf("__classcell__ must be a nonlocal cell, not %s", classcell.Type().name)
		}
		cell.Set(t)
	}
	if err := InitClass(ctx, t, args.Kwargs); err != nil {
		return nil, err
	}
	return t, nil
}

func init() {
	om := NewMethods(ObjectType, func(o Object) (Object, bool) { return o, true })
	objNew := om.New(nil, 0, objectNew)
	objNew.variadic, objNew.kwargs = true, true
	om.Define("__init__").Variadic().Kwargs().Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		return objectInit(ctx, self, args)
	})
	om.Define("__repr__").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		return NewStr(defaultRepr(self)), nil
	})
	om.Define("__str__").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		s, err := Repr(ctx, self)
		if err != nil {
			return nil, err
		}
		return NewStr(s), nil
	})
	om.Define("__format__").Arg("format_spec").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		spec, err := argStr("__format__", args.Get(0))
		if err != nil {
			return nil, err
		}
		if spec != "" {
			return nil, TypeErrorf("unsupported format string passed to %s.__format__", self.Type().name)
		}
		s, err := StrOf(ctx, self)
		if err != nil {
			return nil, err
		}
		return NewStr(s), nil
	})
	om.Define("__eq__").Arg("other").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		if self == args.Get(0) {
			return True, nil
		}
		return NotImplemented, nil
	})
	om.Define("__ne__").Arg("other").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		r, ok, err := callSpecial(ctx, self, "__eq__", args.Get(0))
		if err != nil || !ok {
			return NotImplemented, err
		}
		if r == NotImplemented {
			return r, nil
		}
		t, err := Truthy(ctx, r)
		if err != nil {
			return nil, err
		}
		return NewBool(!t), nil
	})
	for _, name := range []string{"__lt__", "__le__", "__gt__", "__ge__"} {
		om.Define(name).Arg("other").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
			return NotImplemented, nil
		})
	}
	om.Define("__hash__").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		return NewInt(identityHash(self)), nil
	})
	om.Define("__getattribute__").Arg("name").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		name, err := argStr("__getattribute__", args.Get(0))
		if err != nil {
			return nil, err
		}
		switch self.(type) {
		case *Type, *Module, *Opaque, *Super:
			return GetAttr(ctx, self, name)
		}
		return GenericGetAttr(ctx, self, name)
	})
	om.Define("__setattr__").Arg("name", "value").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		name, err := argStr("__setattr__", args.Get(0))
		if err != nil {
			return nil, err
		}
		return None, GenericSetAttr(ctx, self, name, args.Get(1))
	})
	om.Define("__delattr__").Arg("name").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		name, err := argStr("__delattr__", args.Get(0))
		if err != nil {
			return nil, err
		}
		return None, GenericSetAttr(ctx, self, name, nil)
	})
	om.Define("__dir__").Impl(func(self Object, ctx context.Context, args Args) (Object, error) {
		return strList(Dir(ctx, self)), nil
	})
	om.ClassMethod("__init_subclass__", nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return None, nil
	})
	om.ClassMethod("__subclasshook__", nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return NotImplemented, nil
	})
	om.AttrRW("__class__", func(self Object) Object { return self.Type() },
		func(self Object, value Object) error {
			t, ok := value.(*Type)
			if !ok {
				return TypeErrorf("__class__ must be set to a class, not '%s' object", typeName(value))
			}
			inst, ok := self.(*Instance)
			if !ok || !t.IsHeap() || !inst.typ.IsHeap() {
				return TypeErrorf("__class__ assignment only supported for mutable types or ModuleType subclasses")
			}
			if t.solid != inst.typ.solid {
				return TypeErrorf("__class__ assignment: '%s' object layout differs from '%s'", t.name, inst.typ.name)
			}
			inst.typ = t
			return nil
		})
	om.AttrRW("__dict__", func(self Object) Object {
		if d := instanceDict(self); d != nil {
			return d
		}
		return nil
	}, func(self Object, value Object) error {
		inst, ok := self.(*Instance)
		d, isDict := value.(*Dict)
		if !ok || !isDict {
			return TypeErrorf("__dict__ must be set to a dictionary, not a '%s'", typeName(value))
		}
		inst.dict = d
		return nil
	})

	tm := NewMethods(TypeType, exact[*Type])
	tNew := tm.New(nil, 0, typeNew)
	tNew.variadic, tNew.kwargs = true, true
	tm.Define("__init__").Variadic().Kwargs().Impl(func(t *Type, ctx context.Context, args Args) (Object, error) {
		if n := len(args.Rest); n != 1 && n != 3 {
			return nil, TypeErrorf("type.__init__() takes 1 or 3 arguments")
		}
		return None, nil
	})
	tm.Define("__call__").Variadic().Kwargs().Impl(func(t *Type, ctx context.Context, args Args) (Object, error) {
		pos, kwnames := restArgs(args)
		return t.Call(ctx, pos, kwnames)
	})
	tm.Define("__repr__").Impl(func(t *Type, ctx context.Context, args Args) (Object, error) {
		return NewStr(typeRepr(t)), nil
	})
	tm.Define("mro").Impl(func(t *Type, ctx context.Context, args Args) (Object, error) {
		items := make([]Object, len(t.mro))
		for i, b := range t.mro {
			items[i] = b
		}
		return NewList(items), nil
	})
	tm.Define("__instancecheck__").Arg("instance").Impl(func(t *Type, ctx context.Context, args Args) (Object, error) {
		return NewBool(args.Get(0).Type().IsSubtype(t)), nil
	})
	tm.Define("__subclasscheck__").Arg("subclass").Impl(func(t *Type, ctx context.Context, args Args) (Object, error) {
		sub, ok := args.Get(0).(*Type)
		if !ok {
			return nil, TypeErrorf("issubclass() arg 1 must be a class")
		}
		return NewBool(sub.IsSubtype(t)), nil
	})
	tm.Define("__subclasses__").Impl(func(t *Type, ctx context.Context, args Args) (Object, error) {
		return NewList(nil), nil
	})
	prepare := tm.ClassMethod("__prepare__", nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return NewDict(), nil
	})
	prepare.variadic, prepare.kwargs = true, true
	tm.AttrRW("__name__", func(t *Type) Object { return NewStr(t.name) },
		func(t *Type, v Object) error {
			s, ok := v.(*Str)
			if !ok {
				return TypeErrorf("can only assign string to %s.__name__, not '%s'", t.name, typeName(v))
			}
			if !t.IsHeap() {
				return TypeErrorf("cannot set '__name__' attribute of immutable type '%s'", t.name)
			}
			t.name = s.value
			return nil
		})
	tm.AttrRW("__qualname__", func(t *Type) Object { return NewStr(t.qualname) },
		func(t *Type, v Object) error {
			s, ok := v.(*Str)
			if !ok {
				return TypeErrorf("can only assign string to %s.__qualname__, not '%s'", t.name, typeName(v))
			}
			if !t.IsHeap() {
				return TypeErrorf("cannot set '__qualname__' attribute of immutable type '%s'", t.name)
			}
			t.qualname = s.value
			return nil
		})
	tm.AttrRW("__module__", func(t *Type) Object {
		if t.IsHeap() {
			if m := t.dict.GetStr("__module__"); m != nil {
				return m
			}
		}
		return NewStr(t.module)
	}, func(t *Type, v Object) error {
		if !t.IsHeap() {
			return TypeErrorf("cannot set '__module__' attribute of immutable type '%s'", t.name)
		}
		if v == nil {
			return TypeErrorf("cannot delete '__module__' attribute of type '%s'", t.name)
		}
		t.dict.SetStr("__module__", v)
		if s, ok := v.(*Str); ok {
			t.module = s.value
		}
		return nil
	})
	tm.Attr("__doc__", func(t *Type) Object {
		if d := t.dict.GetStr("__doc__"); d != nil {
			if desc, ok := d.(Descriptor); ok {
				if v, err := desc.Get(context.Background(), nil, t); err == nil {
					return v
				}
			}
			return d
		}
		if t.doc != "" {
			return NewStr(t.doc)
		}
		return None
	})
	tm.Attr("__bases__", func(t *Type) Object {
		items := make([]Object, len(t.bases))
		for i, b := range t.bases {
			items[i] = b
		}
		return NewTuple(items)
	})
	tm.Attr("__base__", func(t *Type) Object {
		if len(t.bases) == 0 {
			return None
		}
		return t.bases[0]
	})
	tm.Attr("__mro__", func(t *Type) Object {
		items := make([]Object, len(t.mro))
		for i, b := range t.mro {
			items[i] = b
		}
		return NewTuple(items)
	})
	tm.Attr("__dict__", func(t *Type) Object { return NewMappingProxy(t.dict) })
}

func typeName(o Object) string {
	if o == nil {
		return "NoneType"
	}
	return o.Type().name
}
