package object

import (
	"context"
	"fmt"
)

// StaticMethod wraps a function so it is not bound on attribute access.
type StaticMethod struct {
	fn   Object
	dict *Dict
}

// NewStaticMethod wraps fn as a static method.
func NewStaticMethod(fn Object) *StaticMethod {
	return &StaticMethod{fn: fn}
}

func (s *StaticMethod) Type() *Type { return StaticMethodType }

// Func returns the wrapped callable.
func (s *StaticMethod) Func() Object { return s.fn }

func (s *StaticMethod) AttrDict() *Dict {
	if s.dict == nil {
		s.dict = NewDict()
	}
	return s.dict
}

func (s *StaticMethod) Get(ctx context.Context, obj Object, owner *Type) (Object, error) {
	return s.fn, nil
}

func (s *StaticMethod) Call(ctx context.Context, args []Object, kwnames []string) (Object, error) {
	return Call(ctx, s.fn, args, kwnames)
}

// ClassMethod wraps a function so it binds to the class on attribute
// access.
type ClassMethod struct {
	fn   Object
	dict *Dict
}

// NewClassMethod wraps fn as a class method.
func NewClassMethod(fn Object) *ClassMethod {
	return &ClassMethod{fn: fn}
}

func (c *ClassMethod) Type() *Type { return ClassMethodType }

// Func returns the wrapped callable.
func (c *ClassMethod) Func() Object { return c.fn }

func (c *ClassMethod) AttrDict() *Dict {
	if c.dict == nil {
		c.dict = NewDict()
	}
	return c.dict
}

func (c *ClassMethod) Get(ctx context.Context, obj Object, owner *Type) (Object, error) {
	if owner == nil {
		owner = obj.Type()
	}
	return &BoundMethod{self: owner, fn: c.fn}, nil
}

// Property is the builtin property data descriptor.
type Property struct {
	fget, fset, fdel Object
	doc              Object
	name             string
}

// NewProperty creates a property from its accessor functions. Absent
// accessors are None.
func NewProperty(fget, fset, fdel, doc Object) *Property {
	p := &Property{fget: orNone(fget), fset: orNone(fset), fdel: orNone(fdel), doc: orNone(doc)}
	return p
}

func orNone(o Object) Object {
	if o == nil {
		return None
	}
	return o
}

func (p *Property) Type() *Type { return PropertyType }

// Accessors returns the getter, setter, deleter and docstring.
func (p *Property) Accessors() (fget, fset, fdel, doc Object) {
	return p.fget, p.fset, p.fdel, p.doc
}

func (p *Property) displayName() string {
	if p.name != "" {
		return p.name
	}
	if f, ok := p.fget.(*Function); ok {
		return f.name
	}
	return "?"
}

func (p *Property) Get(ctx context.Context, obj Object, owner *Type) (Object, error) {
	if obj == nil {
		return p, nil
	}
	if IsNone(p.fget) {
		return nil, AttributeErrorf("property '%s' of '%s' object has no getter", p.displayName(), obj.Type().name)
	}
	return Call(ctx, p.fget, []Object{obj}, nil)
}

func (p *Property) Set(ctx context.Context, obj, value Object) error {
	if IsNone(p.fset) {
		return AttributeErrorf("property '%s' of '%s' object has no setter", p.displayName(), obj.Type().name)
	}
	_, err := Call(ctx, p.fset, []Object{obj, value}, nil)
	return err
}

func (p *Property) Delete(ctx context.Context, obj Object) error {
	if IsNone(p.fdel) {
		return AttributeErrorf("property '%s' of '%s' object has no deleter", p.displayName(), obj.Type().name)
	}
	_, err := Call(ctx, p.fdel, []Object{obj}, nil)
	return err
}

func (p *Property) copyWith(fget, fset, fdel Object) *Property {
	np := &Property{fget: fget, fset: fset, fdel: fdel, doc: p.doc, name: p.name}
	if IsNone(np.doc) && !IsNone(fget) {
		if d, err := GetAttr(context.Background(), fget, "__doc__"); err == nil {
			np.doc = d
		}
	}
	return np
}

// Super is the proxy returned by super(type, obj).
type Super struct {
	typ     *Type
	obj     Object
	objType *Type
}

// NewSuper creates a super proxy resolving attributes after typ in the
// MRO of obj.
func NewSuper(typ *Type, obj Object) (*Super, error) {
	if obj == nil || obj == Object(None) {
		return &Super{typ: typ}, nil
	}
	if t, ok := obj.(*Type); ok && t.IsSubtype(typ) {
		return &Super{typ: typ, obj: obj, objType: t}, nil
	}
	if obj.Type().IsSubtype(typ) {
		return &Super{typ: typ, obj: obj, objType: obj.Type()}, nil
	}
	return nil, TypeErrorf("super(type, obj): obj must be an instance or subtype of type")
}

func (s *Super) Type() *Type { return SuperType }

func (s *Super) String() string {
	if s.objType == nil {
		return fmt.Sprintf("<super: <class '%s'>, NULL>", s.typ.name)
	}
	return fmt.Sprintf("<super: <class '%s'>, <%s object>>", s.typ.name, s.objType.name)
}

func superGetAttr(ctx context.Context, s *Super, name string) (Object, error) {
	if s.objType != nil && name != "__class__" {
		mro := s.objType.mro
		i := 0
		for i < len(mro) && mro[i] != s.typ {
			i++
		}
		for _, t := range mro[min(i+1, len(mro)):] {
			attr := t.dict.GetStr(name)
			if attr == nil {
				continue
			}
			var inst Object
			if s.obj != Object(s.objType) {
				inst = s.obj
			}
			return descrGet(ctx, attr, inst, s.objType)
		}
	}
	return GenericGetAttr(ctx, s, name)
}

func init() {
	sm := NewMethods(StaticMethodType, exact[*StaticMethod])
	sm.New([]string{"function"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return newNativeInstance(cls, NewStaticMethod(args.Get(0))), nil
	})
	sm.Define("__init__").Variadic().Impl(func(s *StaticMethod, ctx context.Context, args Args) (Object, error) {
		return None, nil
	})
	sm.Define("__get__").Arg("instance").OptArg("owner").Impl(func(s *StaticMethod, ctx context.Context, args Args) (Object, error) {
		return s.fn, nil
	})
	sm.Attr("__func__", func(s *StaticMethod) Object { return s.fn })
	sm.Attr("__wrapped__", func(s *StaticMethod) Object { return s.fn })
	sm.Attr("__dict__", func(s *StaticMethod) Object { return s.AttrDict() })

	cm := NewMethods(ClassMethodType, exact[*ClassMethod])
	cm.New([]string{"function"}, 1, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return newNativeInstance(cls, NewClassMethod(args.Get(0))), nil
	})
	cm.Define("__init__").Variadic().Impl(func(c *ClassMethod, ctx context.Context, args Args) (Object, error) {
		return None, nil
	})
	cm.Define("__get__").Arg("instance").OptArg("owner").Impl(func(c *ClassMethod, ctx context.Context, args Args) (Object, error) {
		var owner *Type
		if t, ok := args.Get(1).(*Type); ok {
			owner = t
		}
		obj := args.Get(0)
		if IsNone(obj) {
			obj = nil
		}
		if owner == nil && obj == nil {
			return nil, TypeErrorf("__get__(None, None) is invalid")
		}
		return c.Get(ctx, obj, owner)
	})
	cm.Attr("__func__", func(c *ClassMethod) Object { return c.fn })
	cm.Attr("__wrapped__", func(c *ClassMethod) Object { return c.fn })
	cm.Attr("__dict__", func(c *ClassMethod) Object { return c.AttrDict() })

	pm := NewMethods(PropertyType, exact[*Property])
	pm.New([]string{"fget", "fset", "fdel", "doc"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return newNativeInstance(cls, &Property{fget: None, fset: None, fdel: None, doc: None}), nil
	}).kwargs = true
	pm.Define("__init__").OptArg("fget", "fset", "fdel", "doc").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		p.fget = args.Or(0, None)
		p.fset = args.Or(1, None)
		p.fdel = args.Or(2, None)
		p.doc = args.Or(3, None)
		if IsNone(p.doc) && !IsNone(p.fget) {
			d, err := GetAttr(ctx, p.fget, "__doc__")
			if err == nil {
				p.doc = d
			}
		}
		return None, nil
	})
	pm.Define("__get__").Arg("instance").OptArg("owner").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		obj := args.Get(0)
		if IsNone(obj) {
			return p, nil
		}
		return p.Get(ctx, obj, nil)
	})
	pm.Define("__set__").Arg("instance", "value").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		return None, p.Set(ctx, args.Get(0), args.Get(1))
	})
	pm.Define("__delete__").Arg("instance").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		return None, p.Delete(ctx, args.Get(0))
	})
	pm.Define("__set_name__").Arg("owner", "name").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		if s, ok := args.Get(1).(*Str); ok {
			p.name = s.value
		}
		return None, nil
	})
	pm.Define("getter").Arg("fget").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		return p.copyWith(args.Get(0), p.fset, p.fdel), nil
	})
	pm.Define("setter").Arg("fset").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		return p.copyWith(p.fget, args.Get(0), p.fdel), nil
	})
	pm.Define("deleter").Arg("fdel").Impl(func(p *Property, ctx context.Context, args Args) (Object, error) {
		return p.copyWith(p.fget, p.fset, args.Get(0)), nil
	})
	pm.Attr("fget", func(p *Property) Object { return p.fget })
	pm.Attr("fset", func(p *Property) Object { return p.fset })
	pm.Attr("fdel", func(p *Property) Object { return p.fdel })
	pm.Attr("__doc__", func(p *Property) Object { return p.doc })

	sup := NewMethods(SuperType, exact[*Super])
	sup.New([]string{"type", "object_or_type"}, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		if !args.Has(0) {
			f, ok := CurrentFrame(ctx)
			if !ok {
				return nil, RuntimeErrorf("super(): no current frame")
			}
			t, obj, err := f.SuperArgs()
			if err != nil {
				return nil, err
			}
			s, err := NewSuper(t, obj)
			if err != nil {
				return nil, err
			}
			return newNativeInstance(cls, s), nil
		}
		t, ok := args.Get(0).(*Type)
		if !ok {
			return nil, TypeErrorf("super() argument 1 must be a type, not %s", args.Get(0).Type().name)
		}
		s, err := NewSuper(t, args.Get(1))
		if err != nil {
			return nil, err
		}
		return newNativeInstance(cls, s), nil
	})
	sup.Define("__init__").Variadic().Impl(func(s *Super, ctx context.Context, args Args) (Object, error) {
		return None, nil
	})
	sup.Attr("__thisclass__", func(s *Super) Object { return s.typ })
	sup.Attr("__self__", func(s *Super) Object {
		if s.obj == nil {
			return None
		}
		return s.obj
	})
	sup.Attr("__self_class__", func(s *Super) Object {
		if s.objType == nil {
			return None
		}
		return s.objType
	})

	fm := NewMethods(FunctionType, exact[*Function])
	fm.Define("__get__").Arg("instance").OptArg("owner").Impl(func(f *Function, ctx context.Context, args Args) (Object, error) {
		if IsNone(args.Get(0)) {
			return f, nil
		}
		return f.Get(ctx, args.Get(0), nil)
	})
}
