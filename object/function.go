package object

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
)

// Function is a translated function bound to its globals, defaults and
// closure cells.
type Function struct {
	code        *bytecode.Code
	globals     *Dict
	name        string
	qualname    string
	module      Object
	doc         Object
	defaults    []Object
	kwdefaults  *Dict
	closure     []*Cell
	annotations *Dict
	dict        *Dict
}

// FunctionParams contains parameters for creating a Function.
type FunctionParams struct {
	Code        *bytecode.Code
	Globals     *Dict
	Defaults    []Object
	KwDefaults  *Dict
	Closure     []*Cell
	Annotations *Dict
}

// NewFunction creates a function object, as MAKE_FUNCTION does.
func NewFunction(p FunctionParams) *Function {
	f := &Function{
		code:        p.Code,
		globals:     p.Globals,
		name:        p.Code.Name(),
		qualname:    p.Code.QualName(),
		defaults:    p.Defaults,
		kwdefaults:  p.KwDefaults,
		closure:     p.Closure,
		annotations: p.Annotations,
		module:      None,
		doc:         None,
	}
	if p.Globals != nil {
		if m := p.Globals.GetStr("__name__"); m != nil {
			f.module = m
		}
	}
	if p.Code.ConstantCount() > 0 {
		if s, ok := p.Code.ConstantAt(0).(*Str); ok {
			f.doc = s
		}
	}
	return f
}

func (f *Function) Type() *Type { return FunctionType }

// Code returns the translated code of the function.
func (f *Function) Code() *bytecode.Code { return f.code }

// Globals returns the global namespace the function runs in.
func (f *Function) Globals() *Dict { return f.globals }

// Name returns the function's __name__.
func (f *Function) Name() string { return f.name }

// QualName returns the function's __qualname__.
func (f *Function) QualName() string { return f.qualname }

// Defaults returns the default values of the trailing positional
// parameters.
func (f *Function) Defaults() []Object { return f.defaults }

// KwDefaults returns the defaults of keyword-only parameters, or nil.
func (f *Function) KwDefaults() *Dict { return f.kwdefaults }

// Closure returns the cells bound to the function's free variables.
func (f *Function) Closure() []*Cell { return f.closure }

// AttrDict returns the function's attribute dictionary.
func (f *Function) AttrDict() *Dict {
	if f.dict == nil {
		f.dict = NewDict()
	}
	return f.dict
}

func (f *Function) String() string {
	return fmt.Sprintf("<function %s at 0x%x>", f.qualname, Id(f))
}

// Get binds the function to an instance.
func (f *Function) Get(ctx context.Context, obj Object, owner *Type) (Object, error) {
	if obj == nil {
		return f, nil
	}
	return &BoundMethod{self: obj, fn: f}, nil
}

// Call runs the function through the interpreter installed in ctx.
func (f *Function) Call(ctx context.Context, args []Object, kwnames []string) (Object, error) {
	call, ok := GetCallFunc(ctx)
	if !ok {
		return nil, RuntimeErrorf("no interpreter available to call %s()", f.qualname)
	}
	return call(ctx, f, args, kwnames)
}

// BoundMethod pairs a callable with the receiver passed as its first
// argument.
type BoundMethod struct {
	self Object
	fn   Object
}

// NewBoundMethod creates a method object.
func NewBoundMethod(self, fn Object) *BoundMethod {
	return &BoundMethod{self: self, fn: fn}
}

func (m *BoundMethod) Type() *Type { return MethodType }

// Self returns the receiver.
func (m *BoundMethod) Self() Object { return m.self }

// Func returns the underlying callable.
func (m *BoundMethod) Func() Object { return m.fn }

func (m *BoundMethod) Call(ctx context.Context, args []Object, kwnames []string) (Object, error) {
	full := make([]Object, 0, len(args)+1)
	full = append(full, m.self)
	full = append(full, args...)
	return Call(ctx, m.fn, full, kwnames)
}

// Cell holds a variable shared between a function and the closures
// defined in it. A nil value means the variable is unbound.
type Cell struct {
	value Object
}

// NewCell creates a cell holding v, which may be nil.
func NewCell(v Object) *Cell {
	return &Cell{value: v}
}

func (c *Cell) Type() *Type { return CellType }

// Get returns the cell contents and whether the cell is bound.
func (c *Cell) Get() (Object, bool) {
	return c.value, c.value != nil
}

// Set binds the cell. Passing nil clears it.
func (c *Cell) Set(v Object) { c.value = v }

func (c *Cell) String() string {
	if c.value == nil {
		return fmt.Sprintf("<cell at 0x%x: empty>", Id(c))
	}
	return fmt.Sprintf("<cell at 0x%x: %s object at 0x%x>", Id(c), c.value.Type().name, Id(c.value))
}

// Code wraps translated code so it can live in a constant pool or be read
// through a function's __code__ attribute.
type Code struct {
	code *bytecode.Code
}

// NewCode wraps a translated code block.
func NewCode(c *bytecode.Code) *Code {
	return &Code{code: c}
}

func (c *Code) Type() *Type { return CodeType }

// Unwrap returns the translated code block.
func (c *Code) Unwrap() *bytecode.Code { return c.code }

func (c *Code) String() string {
	return fmt.Sprintf("<code object %s at 0x%x, file \"%s\", line %d>",
		c.code.Name(), Id(c), c.code.Filename(), c.code.FirstLine())
}

// Module is a module object: a named namespace dictionary.
type Module struct {
	name string
	dict *Dict
}

// NewModule creates a module, initializing __name__ in its namespace.
func NewModule(name string, dict *Dict) *Module {
	if dict == nil {
		dict = NewDict()
	}
	if dict.GetStr("__name__") == nil {
		dict.SetStr("__name__", NewStr(name))
	}
	if dict.GetStr("__doc__") == nil {
		dict.SetStr("__doc__", None)
	}
	return &Module{name: name, dict: dict}
}

func (m *Module) Type() *Type { return ModuleType }

// Name returns the module's name.
func (m *Module) Name() string { return m.name }

// AttrDict returns the module namespace.
func (m *Module) AttrDict() *Dict { return m.dict }

func (m *Module) String() string {
	return fmt.Sprintf("<module '%s'>", m.name)
}

func moduleGetAttr(ctx context.Context, m *Module, name string) (Object, error) {
	if v := m.dict.GetStr(name); v != nil {
		return v, nil
	}
	if attr := ModuleType.Lookup(name); attr != nil {
		return descrGet(ctx, attr, m, ModuleType)
	}
	if hook := m.dict.GetStr("__getattr__"); hook != nil {
		return Call(ctx, hook, []Object{NewStr(name)}, nil)
	}
	e := AttributeErrorf("module '%s' has no attribute '%s'", m.name, name)
	e.AttrDict().SetStr("name", NewStr(name))
	return nil, e
}

func init() {
	fm := NewMethods(FunctionType, exact[*Function])
	fm.AttrRW("__name__", func(f *Function) Object { return NewStr(f.name) },
		func(f *Function, v Object) error {
			s, ok := v.(*Str)
			if !ok {
				return TypeErrorf("__name__ must be set to a string object")
			}
			f.name = s.value
			return nil
		})
	fm.AttrRW("__qualname__", func(f *Function) Object { return NewStr(f.qualname) },
		func(f *Function, v Object) error {
			s, ok := v.(*Str)
			if !ok {
				return TypeErrorf("__qualname__ must be set to a string object")
			}
			f.qualname = s.value
			return nil
		})
	fm.AttrRW("__module__", func(f *Function) Object { return f.module },
		func(f *Function, v Object) error {
			if v == nil {
				v = None
			}
			f.module = v
			return nil
		})
	fm.AttrRW("__doc__", func(f *Function) Object { return f.doc },
		func(f *Function, v Object) error {
			if v == nil {
				v = None
			}
			f.doc = v
			return nil
		})
	fm.AttrRW("__defaults__", func(f *Function) Object {
		if len(f.defaults) == 0 {
			return None
		}
		return NewTuple(f.defaults)
	}, func(f *Function, v Object) error {
		switch t := v.(type) {
		case nil, *NoneType:
			f.defaults = nil
		case *Tuple:
			f.defaults = t.items
		default:
			return TypeErrorf("__defaults__ must be set to a tuple object")
		}
		return nil
	})
	fm.AttrRW("__kwdefaults__", func(f *Function) Object {
		if f.kwdefaults == nil {
			return None
		}
		return f.kwdefaults
	}, func(f *Function, v Object) error {
		switch d := v.(type) {
		case nil, *NoneType:
			f.kwdefaults = nil
		case *Dict:
			f.kwdefaults = d
		default:
			return TypeErrorf("__kwdefaults__ must be set to a dict object")
		}
		return nil
	})
	fm.AttrRW("__annotations__", func(f *Function) Object {
		if f.annotations == nil {
			f.annotations = NewDict()
		}
		return f.annotations
	}, func(f *Function, v Object) error {
		d, ok := v.(*Dict)
		if !ok {
			return TypeErrorf("__annotations__ must be set to a dict object")
		}
		f.annotations = d
		return nil
	})
	fm.Attr("__globals__", func(f *Function) Object { return f.globals })
	fm.Attr("__code__", func(f *Function) Object { return NewCode(f.code) })
	fm.Attr("__closure__", func(f *Function) Object {
		if len(f.closure) == 0 {
			return None
		}
		items := make([]Object, len(f.closure))
		for i, c := range f.closure {
			items[i] = c
		}
		return NewTuple(items)
	})
	fm.Attr("__dict__", func(f *Function) Object { return f.AttrDict() })

	mm := NewMethods(MethodType, exact[*BoundMethod])
	mm.Attr("__self__", func(m *BoundMethod) Object { return m.self })
	mm.Attr("__func__", func(m *BoundMethod) Object { return m.fn })
	mm.Define("__eq__").Arg("other").Impl(func(m *BoundMethod, ctx context.Context, args Args) (Object, error) {
		o, ok := args.Get(0).(*BoundMethod)
		if !ok {
			return NotImplemented, nil
		}
		return NewBool(m.self == o.self && m.fn == o.fn), nil
	})
	mm.Define("__hash__").Impl(func(m *BoundMethod, ctx context.Context, args Args) (Object, error) {
		return NewInt(identityHash(m.self) ^ identityHash(m.fn)), nil
	})
	mm.Define("__getattr__").Arg("name").Impl(func(m *BoundMethod, ctx context.Context, args Args) (Object, error) {
		name, err := argStr("__getattr__", args.Get(0))
		if err != nil {
			return nil, err
		}
		return GetAttr(ctx, m.fn, name)
	})

	cm := NewMethods(CellType, exact[*Cell])
	cm.AttrRW("cell_contents", func(c *Cell) Object { return c.value },
		func(c *Cell, v Object) error {
			c.value = v
			return nil
		})
	cm.Define("__eq__").Arg("other").Impl(func(c *Cell, ctx context.Context, args Args) (Object, error) {
		o, ok := args.Get(0).(*Cell)
		if !ok {
			return NotImplemented, nil
		}
		if c.value == nil || o.value == nil {
			return NewBool(c.value == nil && o.value == nil), nil
		}
		eq, err := Equal(ctx, c.value, o.value)
		return NewBool(eq), err
	})

	code := NewMethods(CodeType, exact[*Code])
	code.Attr("co_name", func(c *Code) Object { return NewStr(c.code.Name()) })
	code.Attr("co_qualname", func(c *Code) Object { return NewStr(c.code.QualName()) })
	code.Attr("co_filename", func(c *Code) Object { return NewStr(c.code.Filename()) })
	code.Attr("co_firstlineno", func(c *Code) Object { return NewInt(int64(c.code.FirstLine())) })
	code.Attr("co_flags", func(c *Code) Object { return NewInt(int64(c.code.Flags())) })
	code.Attr("co_argcount", func(c *Code) Object { return NewInt(int64(c.code.Signature().Positional)) })
	code.Attr("co_posonlyargcount", func(c *Code) Object { return NewInt(int64(c.code.Signature().PosOnly)) })
	code.Attr("co_kwonlyargcount", func(c *Code) Object { return NewInt(int64(c.code.Signature().KwOnly)) })
	code.Attr("co_varnames", func(c *Code) Object {
		var names []string
		for i := 0; i < c.code.LocalCount(); i++ {
			if c.code.LocalKindAt(i)&bytecode.LocalFree == 0 && c.code.LocalKindAt(i)&bytecode.LocalFast != 0 {
				names = append(names, c.code.LocalNameAt(i))
			}
		}
		return strTuple(names)
	})
	code.Attr("co_freevars", func(c *Code) Object {
		var names []string
		for i := 0; i < c.code.LocalCount(); i++ {
			if c.code.LocalKindAt(i)&bytecode.LocalFree != 0 {
				names = append(names, c.code.LocalNameAt(i))
			}
		}
		return strTuple(names)
	})
	code.Attr("co_cellvars", func(c *Code) Object {
		var names []string
		for i := 0; i < c.code.LocalCount(); i++ {
			if c.code.LocalKindAt(i)&bytecode.LocalCell != 0 {
				names = append(names, c.code.LocalNameAt(i))
			}
		}
		return strTuple(names)
	})
	code.Attr("co_names", func(c *Code) Object {
		names := make([]string, c.code.NameCount())
		for i := range names {
			names[i] = c.code.NameAt(i)
		}
		return strTuple(names)
	})

	mod := NewMethods(ModuleType, exact[*Module])
	mod.New(nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		m := &Module{dict: NewDict()}
		if cls == ModuleType {
			return m, nil
		}
		return newNativeInstance(cls, m), nil
	}).variadic = true
	mod.Define("__init__").Arg("name").OptArg("doc").Impl(func(m *Module, ctx context.Context, args Args) (Object, error) {
		name, err := argStr("module", args.Get(0))
		if err != nil {
			return nil, err
		}
		m.name = name
		m.dict.SetStr("__name__", NewStr(name))
		m.dict.SetStr("__doc__", args.Or(1, None))
		return None, nil
	})
	mod.Attr("__dict__", func(m *Module) Object { return m.dict })
	mod.Define("__dir__").Impl(func(m *Module, ctx context.Context, args Args) (Object, error) {
		return strList(Dir(ctx, m)), nil
	})
}

func strTuple(names []string) *Tuple {
	items := make([]Object, len(names))
	for i, n := range names {
		items[i] = NewStr(n)
	}
	return NewTuple(items)
}
