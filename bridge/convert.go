// Package bridge implements the value exchange contracts between the
// source interpreter and the runtime: ingestion of source values, extraction
// of results, and the host hooks used for attribute access and imports.
package bridge

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/deepnoodle-ai/pyxlate/builtins"
	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/errz"
	pymath "github.com/deepnoodle-ai/pyxlate/modules/math"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/deepnoodle-ai/pyxlate/unit"
)

// Compiler turns a unit into target code. The translator implements it.
type Compiler interface {
	Compile(ctx context.Context, u *unit.Unit) (*bytecode.Code, error)
}

// Options configure a Converter.
type Options struct {
	Compiler Compiler
	Types    *unit.TypeTable
	Globals  *unit.GlobalsTable
	Deny     []string
	Identity *IdentityMap
	// Modules are native modules served in place of source modules of the
	// same name. The math module is always present.
	Modules []*object.Module
}

// Converter converts source values into runtime values, preserving
// identity through its IdentityMap.
type Converter struct {
	ids      *IdentityMap
	builder  *unit.Builder
	compiler Compiler
	builtins map[string]object.Object
	modules  map[string]*object.Module
}

// New returns a Converter. Without a Compiler, code objects and functions
// have no representation.
func New(opts Options) *Converter {
	c := &Converter{
		ids:      opts.Identity,
		compiler: opts.Compiler,
		builtins: builtins.Builtins(),
		modules:  map[string]*object.Module{"math": pymath.Module()},
	}
	if c.ids == nil {
		c.ids = NewIdentityMap()
	}
	for _, m := range opts.Modules {
		c.modules[m.Name()] = m
	}
	c.builder = unit.NewBuilder(c, unit.Options{
		Types:   opts.Types,
		Globals: opts.Globals,
		Deny:    opts.Deny,
	})
	return c
}

// Builder returns the descriptor builder converting through c.
func (c *Converter) Builder() *unit.Builder { return c.builder }

// Identity returns the converter's identity map.
func (c *Converter) Identity() *IdentityMap { return c.ids }

// Module returns the native module registered under name.
func (c *Converter) Module(name string) (*object.Module, bool) {
	m, ok := c.modules[name]
	return m, ok
}

func noRepresentation(format string, args ...any) error {
	return errz.Newf(errz.ErrNoRepresentation, format, args...)
}

// Convert returns the runtime value representing v. A source value with
// identity that was converted before yields the same representative.
// Containers are registered before their elements are converted, so
// self-referential structures terminate. When the conversion fails, every
// value registered while it ran is forgotten again.
func (c *Converter) Convert(ctx context.Context, v source.Value) (object.Object, error) {
	if v == nil {
		return nil, noRepresentation("nil source value")
	}
	if o, ok := c.ids.Lookup(v); ok {
		return o, nil
	}
	ctx, log := registrations(ctx)
	mark := log.len()
	o, err := c.convert(ctx, v)
	if err != nil {
		c.ids.Forget(log.since(mark)...)
		return nil, err
	}
	return o, nil
}

// registrationLog lists the source values registered by one top-level
// conversion, in order.
type registrationLog struct {
	mu     sync.Mutex
	values []source.Value
}

type registrationLogKey struct{}

func registrations(ctx context.Context) (context.Context, *registrationLog) {
	if log, ok := ctx.Value(registrationLogKey{}).(*registrationLog); ok {
		return ctx, log
	}
	log := &registrationLog{}
	return context.WithValue(ctx, registrationLogKey{}, log), log
}

func (l *registrationLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

func (l *registrationLog) add(v source.Value) {
	l.mu.Lock()
	l.values = append(l.values, v)
	l.mu.Unlock()
}

// since removes and returns the values logged after mark.
func (l *registrationLog) since(mark int) []source.Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	if mark >= len(l.values) {
		return nil
	}
	out := append([]source.Value(nil), l.values[mark:]...)
	l.values = l.values[:mark]
	return out
}

// register records o as the representative of v and logs the
// registration with the running conversion.
func (c *Converter) register(ctx context.Context, v source.Value, o object.Object) object.Object {
	stored := c.ids.Register(v, o)
	if stored == o && isRef(v) {
		if log, ok := ctx.Value(registrationLogKey{}).(*registrationLog); ok {
			log.add(v)
		}
	}
	return stored
}

func (c *Converter) convert(ctx context.Context, v source.Value) (object.Object, error) {
	switch v := v.(type) {
	case *source.NoneType:
		return object.None, nil
	case *source.EllipsisType:
		return object.Ellipsis, nil
	case source.Bool:
		return object.NewBool(bool(v)), nil
	case source.Int:
		if v.V == nil {
			return object.NewInt(0), nil
		}
		return object.NewBigInt(new(big.Int).Set(v.V)), nil
	case source.Float:
		return object.NewFloat(float64(v)), nil
	case source.Complex:
		return object.NewComplex(complex128(v)), nil
	case source.Str:
		return object.NewStr(string(v)), nil
	case source.Bytes:
		return object.NewBytes(append([]byte(nil), v...)), nil
	case *source.ByteArray:
		return c.register(ctx, v, object.NewByteArray(append([]byte(nil), v.Data...))), nil
	case *source.Tuple:
		return c.tuple(ctx, v)
	case *source.List:
		l := object.NewList(nil)
		if o := c.register(ctx, v, l); o != l {
			return o, nil
		}
		items, err := c.all(ctx, v.Items)
		if err != nil {
			return nil, err
		}
		l.SetItems(items)
		return l, nil
	case *source.Dict:
		return c.dict(ctx, v)
	case *source.Set:
		s := object.NewSet()
		if o := c.register(ctx, v, s); o != s {
			return o, nil
		}
		for _, item := range v.Items {
			x, err := c.Convert(ctx, item)
			if err != nil {
				return nil, err
			}
			if err := s.Add(ctx, x); err != nil {
				return nil, err
			}
		}
		return s, nil
	case *source.FrozenSet:
		s := object.NewFrozenSet()
		if o := c.register(ctx, v, s); o != s {
			return o, nil
		}
		for _, item := range v.Items {
			x, err := c.Convert(ctx, item)
			if err != nil {
				return nil, err
			}
			if err := s.Add(ctx, x); err != nil {
				return nil, err
			}
		}
		return s, nil
	case *source.Cell:
		cell := object.NewCell(nil)
		if o := c.register(ctx, v, cell); o != cell {
			return o, nil
		}
		if v.Contents != nil {
			x, err := c.Convert(ctx, v.Contents)
			if err != nil {
				return nil, err
			}
			cell.Set(x)
		}
		return cell, nil
	case *source.Code:
		return c.code(ctx, v)
	case *source.Function:
		if c.builder.Denied(v) {
			return c.register(ctx, v, object.NewOpaque(v, nil)), nil
		}
		return c.function(ctx, v)
	case *source.Class:
		return c.class(ctx, v)
	case *source.Module:
		return c.module(ctx, v)
	case *source.Builtin:
		return c.builtin(v), nil
	case *source.StaticMethod:
		fn, err := c.Convert(ctx, v.Func)
		if err != nil {
			return nil, err
		}
		return c.register(ctx, v, object.NewStaticMethod(fn)), nil
	case *source.ClassMethod:
		fn, err := c.Convert(ctx, v.Func)
		if err != nil {
			return nil, err
		}
		return c.register(ctx, v, object.NewClassMethod(fn)), nil
	case *source.Property:
		var parts [4]object.Object
		for i, p := range []source.Value{v.Get, v.Set, v.Del, v.Doc} {
			if p == nil {
				parts[i] = object.None
				continue
			}
			x, err := c.Convert(ctx, p)
			if err != nil {
				return nil, err
			}
			parts[i] = x
		}
		return c.register(ctx, v, object.NewProperty(parts[0], parts[1], parts[2], parts[3])), nil
	case *source.Opaque:
		return c.register(ctx, v, object.NewOpaque(v.Ref, nil)), nil
	}
	return nil, noRepresentation("source value of kind %s", v.Kind())
}

func (c *Converter) all(ctx context.Context, values []source.Value) ([]object.Object, error) {
	out := make([]object.Object, len(values))
	for i, item := range values {
		x, err := c.Convert(ctx, item)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (c *Converter) tuple(ctx context.Context, v *source.Tuple) (object.Object, error) {
	if len(v.Items) == 0 {
		return c.register(ctx, v, object.NewTuple(nil)), nil
	}
	items := make([]object.Object, len(v.Items))
	t := object.NewTuple(items)
	if o := c.register(ctx, v, t); o != t {
		return o, nil
	}
	for i, item := range v.Items {
		x, err := c.Convert(ctx, item)
		if err != nil {
			return nil, err
		}
		items[i] = x
	}
	return t, nil
}

func (c *Converter) dict(ctx context.Context, v *source.Dict) (object.Object, error) {
	if len(v.Keys) != len(v.Values) {
		return nil, errz.Newf(errz.ErrMalformed, "dict with %d keys and %d values", len(v.Keys), len(v.Values))
	}
	d := object.NewDict()
	if o := c.register(ctx, v, d); o != d {
		return o, nil
	}
	for i, k := range v.Keys {
		key, err := c.Convert(ctx, k)
		if err != nil {
			return nil, err
		}
		val, err := c.Convert(ctx, v.Values[i])
		if err != nil {
			return nil, err
		}
		if err := d.Set(ctx, key, val); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (c *Converter) compile(ctx context.Context, u *unit.Unit) (*bytecode.Code, error) {
	if c.compiler == nil {
		return nil, noRepresentation("code object %s: no compiler attached", u.QualName)
	}
	return c.compiler.Compile(ctx, u)
}

func (c *Converter) code(ctx context.Context, v *source.Code) (object.Object, error) {
	u, err := c.builder.Code(ctx, v, "")
	if err != nil {
		return nil, err
	}
	code, err := c.compile(ctx, u)
	if err != nil {
		return nil, err
	}
	return c.register(ctx, v, object.NewCode(code)), nil
}

func (c *Converter) function(ctx context.Context, v *source.Function) (object.Object, error) {
	u, err := c.builder.Function(ctx, v)
	if err != nil {
		return nil, err
	}
	code, err := c.compile(ctx, u)
	if err != nil {
		return nil, err
	}
	var annotations *object.Dict
	if len(u.Annotations) > 0 {
		annotations = object.NewDict()
		for _, a := range u.Annotations {
			annotations.SetStr(a.Name, a.Type)
		}
	}
	fn := object.NewFunction(object.FunctionParams{
		Code:        code,
		Globals:     u.Globals,
		Defaults:    u.Defaults,
		KwDefaults:  u.KwDefaults,
		Closure:     u.Closure,
		Annotations: annotations,
	})
	if o := c.register(ctx, v, fn); o != fn {
		return o, nil
	}
	if err := c.builder.FillGlobals(ctx, u); err != nil {
		return nil, err
	}
	return fn, nil
}

// class resolves a source class through the type table. The namespace is
// populated after the type is registered, so methods whose globals name
// the class get the same descriptor.
func (c *Converter) class(ctx context.Context, v *source.Class) (object.Object, error) {
	if c.builder.Denied(v) {
		ref := object.NewOpaque(v, nil)
		return c.register(ctx, v, object.NewOpaqueType(v.Name, v.Module, ref)), nil
	}
	typ, created, err := c.builder.Types().Resolve(v, func() (*object.Type, error) {
		bases := make([]*object.Type, 0, len(v.Bases))
		for _, b := range v.Bases {
			bo, err := c.Convert(ctx, b)
			if err != nil {
				return nil, err
			}
			bt, ok := bo.(*object.Type)
			if !ok {
				return nil, noRepresentation("base of class %s is a %s", v.Name, bo.Type().Name())
			}
			bases = append(bases, bt)
		}
		return object.NewClass(object.ClassSpec{
			Name:     v.Name,
			QualName: v.QualName,
			Module:   v.Module,
			Bases:    bases,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", v.Name, err)
	}
	c.register(ctx, v, typ)
	if !created || v.Dict == nil {
		return typ, nil
	}
	ns := typ.Dict()
	for i, k := range v.Dict.Keys {
		name, ok := k.(source.Str)
		if !ok {
			return nil, errz.Newf(errz.ErrMalformed, "class %s has a non-string attribute name", v.Name)
		}
		switch name {
		case "__dict__", "__weakref__", "__qualname__":
			continue
		}
		val, err := c.Convert(ctx, v.Dict.Values[i])
		if err != nil {
			return nil, fmt.Errorf("class %s attribute %s: %w", v.Name, name, err)
		}
		ns.SetStr(string(name), val)
	}
	return typ, nil
}

// module converts a source module. Native modules take precedence and
// deny-listed modules stay opaque. Only public names and __name__/__doc__
// are carried over from the module namespace.
func (c *Converter) module(ctx context.Context, v *source.Module) (object.Object, error) {
	if m, ok := c.modules[v.Name]; ok {
		return c.register(ctx, v, m), nil
	}
	if c.builder.Denied(v) {
		return c.register(ctx, v, object.NewOpaque(v, nil)), nil
	}
	d := object.NewDict()
	m := object.NewModule(v.Name, d)
	if o := c.register(ctx, v, m); o != m {
		return o, nil
	}
	if v.Dict == nil {
		return m, nil
	}
	for i, k := range v.Dict.Keys {
		name, ok := k.(source.Str)
		if !ok {
			continue
		}
		if len(name) > 1 && name[0] == '_' && name != "__name__" && name != "__doc__" {
			continue
		}
		val, err := c.Convert(ctx, v.Dict.Values[i])
		if err != nil {
			return nil, fmt.Errorf("module %s attribute %s: %w", v.Name, name, err)
		}
		d.SetStr(string(name), val)
	}
	return m, nil
}

// builtin resolves a reference to a builtin or native module object. Names
// with no native counterpart are bridged opaquely.
func (c *Converter) builtin(v *source.Builtin) object.Object {
	if v.Module == "builtins" {
		if o, ok := c.builtins[v.Name]; ok {
			return c.ids.Register(v, o)
		}
	}
	if m, ok := c.modules[v.Module]; ok {
		if v.Name == "" {
			return c.ids.Register(v, m)
		}
		if o := m.AttrDict().GetStr(v.Name); o != nil {
			return c.ids.Register(v, o)
		}
	}
	return c.ids.Register(v, object.NewOpaque(v, nil))
}
