package object

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Args holds the arguments bound to a builtin's declared parameters.
type Args struct {
	// Values has one slot per declared parameter; absent optional
	// parameters are nil.
	Values []Object
	// Rest holds surplus positional arguments of a variadic builtin.
	Rest []Object
	// Kwargs holds surplus keyword arguments when accepted, else nil.
	Kwargs *Dict
}

// Get returns the i'th bound parameter, or nil when absent.
func (a Args) Get(i int) Object {
	if i < len(a.Values) {
		return a.Values[i]
	}
	return nil
}

// Or returns the i'th bound parameter, or def when absent.
func (a Args) Or(i int, def Object) Object {
	if v := a.Get(i); v != nil {
		return v
	}
	return def
}

// Has reports whether the i'th parameter was supplied.
func (a Args) Has(i int) bool {
	return a.Get(i) != nil
}

// BuiltinFunc is the Go implementation of a builtin. self is nil for
// plain functions and the receiver for methods.
type BuiltinFunc func(ctx context.Context, self Object, args Args) (Object, error)

type builtinKind uint8

const (
	kindFunction builtinKind = iota
	kindMethod
	kindStatic
	kindClass
)

// Builtin is a function implemented in Go.
type Builtin struct {
	name     string
	module   string
	doc      string
	owner    *Type
	kind     builtinKind
	params   []string
	required int
	variadic bool
	kwargs   bool
	// slot marks a default special method that a type's own definition
	// may replace.
	slot     bool
	fn       BuiltinFunc
}

func (b *Builtin) Type() *Type {
	if b.kind == kindMethod && b.owner != nil {
		return MethodDescriptorType
	}
	return BuiltinFunctionType
}

// Name returns the function's __name__.
func (b *Builtin) Name() string { return b.name }

// QualName returns the owner-qualified name.
func (b *Builtin) QualName() string {
	if b.owner != nil {
		return b.owner.name + "." + b.name
	}
	return b.name
}

// Module returns the name of the module that defines the builtin.
func (b *Builtin) Module() string { return b.module }

// Owner returns the type a method builtin is defined on.
func (b *Builtin) Owner() *Type { return b.owner }

func (b *Builtin) String() string {
	if b.owner != nil && b.kind == kindMethod {
		return fmt.Sprintf("<method '%s' of '%s' objects>", b.name, b.owner.name)
	}
	return fmt.Sprintf("<built-in function %s>", b.name)
}

// Get binds method builtins to their receiver.
func (b *Builtin) Get(ctx context.Context, obj Object, owner *Type) (Object, error) {
	switch b.kind {
	case kindMethod:
		if obj == nil {
			return b, nil
		}
		return &BoundMethod{self: obj, fn: b}, nil
	case kindClass:
		if obj != nil && owner == nil {
			owner = obj.Type()
		}
		return &BoundMethod{self: owner, fn: b}, nil
	}
	return b, nil
}

func (b *Builtin) Call(ctx context.Context, args []Object, kwnames []string) (Object, error) {
	var self Object
	if b.kind != kindFunction {
		if len(args)-len(kwnames) < 1 {
			return nil, TypeErrorf("unbound method %s() needs an argument", b.QualName())
		}
		self = args[0]
		args = args[1:]
		if err := b.checkSelf(self); err != nil {
			return nil, err
		}
	}
	bound, err := b.bind(args, kwnames)
	if err != nil {
		return nil, err
	}
	return b.fn(ctx, self, bound)
}

func (b *Builtin) checkSelf(self Object) error {
	if b.owner == nil {
		return nil
	}
	switch b.kind {
	case kindStatic, kindClass:
		t, ok := self.(*Type)
		if !ok {
			return TypeErrorf("%s(X): X is not a type object (%s)", b.QualName(), self.Type().name)
		}
		if !t.IsSubtype(b.owner) {
			return TypeErrorf("%s(%s): %s is not a subtype of %s", b.QualName(), t.name, t.name, b.owner.name)
		}
	case kindMethod:
		if !self.Type().IsSubtype(b.owner) && !(b.owner == IntType && self.Type() == BoolType) {
			return TypeErrorf("descriptor '%s' for '%s' objects doesn't apply to a '%s' object",
				b.name, b.owner.name, self.Type().name)
		}
	}
	return nil
}

func (b *Builtin) bind(args []Object, kwnames []string) (Args, error) {
	npos := len(args) - len(kwnames)
	out := Args{Values: make([]Object, len(b.params))}
	if npos > len(b.params) {
		if !b.variadic {
			return out, b.arityError(npos)
		}
		out.Rest = args[len(b.params):npos]
		npos = len(b.params)
	}
	copy(out.Values, args[:npos])
	for i, name := range kwnames {
		value := args[len(args)-len(kwnames)+i]
		idx := slices.Index(b.params, name)
		if idx < 0 {
			if !b.kwargs {
				return out, TypeErrorf("%s() got an unexpected keyword argument '%s'", b.name, name)
			}
			if out.Kwargs == nil {
				out.Kwargs = NewDict()
			}
			out.Kwargs.SetStr(name, value)
			continue
		}
		if out.Values[idx] != nil {
			return out, TypeErrorf("argument for %s() given by name ('%s') and position (%d)", b.name, name, idx+1)
		}
		out.Values[idx] = value
	}
	for i := 0; i < b.required; i++ {
		if out.Values[i] == nil {
			return out, TypeErrorf("%s() missing required argument '%s' (pos %d)", b.name, b.params[i], i+1)
		}
	}
	return out, nil
}

func (b *Builtin) arityError(given int) error {
	switch {
	case len(b.params) == 0:
		return TypeErrorf("%s() takes no arguments (%d given)", b.name, given)
	case b.required == len(b.params):
		return TypeErrorf("%s() takes exactly %d %s (%d given)", b.name, len(b.params),
			pluralize("argument", len(b.params) != 1), given)
	default:
		return TypeErrorf("%s() takes at most %d %s (%d given)", b.name, len(b.params),
			pluralize("argument", len(b.params) != 1), given)
	}
}

func pluralize(s string, do bool) string {
	if do {
		return s + "s"
	}
	return s
}

// FuncBuilder provides a fluent API for defining a builtin.
type FuncBuilder struct {
	b       *Builtin
	install func(*Builtin)
}

// NewBuiltin starts the definition of a builtin function of a module.
func NewBuiltin(module, name string) *FuncBuilder {
	return &FuncBuilder{b: &Builtin{name: name, module: module}}
}

// Doc sets the docstring.
func (fb *FuncBuilder) Doc(doc string) *FuncBuilder {
	fb.b.doc = doc
	return fb
}

// Arg adds required parameters. Required parameters must precede optional
// ones.
func (fb *FuncBuilder) Arg(names ...string) *FuncBuilder {
	fb.b.params = append(fb.b.params, names...)
	fb.b.required = len(fb.b.params)
	return fb
}

// OptArg adds optional parameters.
func (fb *FuncBuilder) OptArg(names ...string) *FuncBuilder {
	fb.b.params = append(fb.b.params, names...)
	return fb
}

// Variadic accepts surplus positional arguments into Args.Rest.
func (fb *FuncBuilder) Variadic() *FuncBuilder {
	fb.b.variadic = true
	return fb
}

// Kwargs accepts unknown keyword arguments into Args.Kwargs.
func (fb *FuncBuilder) Kwargs() *FuncBuilder {
	fb.b.kwargs = true
	return fb
}

// Impl sets the implementation and returns the finished builtin.
func (fb *FuncBuilder) Impl(fn func(ctx context.Context, args Args) (Object, error)) *Builtin {
	fb.b.fn = func(ctx context.Context, _ Object, args Args) (Object, error) {
		return fn(ctx, args)
	}
	if fb.install != nil {
		fb.install(fb.b)
	}
	return fb.b
}

// Methods defines the builtin methods of a type whose receivers convert to
// T. Receivers of user subclasses are unwrapped by conv.
type Methods[T Object] struct {
	typ  *Type
	conv func(Object) (T, bool)
}

// NewMethods creates a method registry for t.
func NewMethods[T Object](t *Type, conv func(Object) (T, bool)) *Methods[T] {
	return &Methods[T]{typ: t, conv: conv}
}

// MethodBuilder provides a fluent API for defining a single method.
type MethodBuilder[T Object] struct {
	fb   FuncBuilder
	m    *Methods[T]
	kind builtinKind
}

// Define starts building an instance method.
func (m *Methods[T]) Define(name string) *MethodBuilder[T] {
	return m.define(name, kindMethod)
}

func (m *Methods[T]) define(name string, kind builtinKind) *MethodBuilder[T] {
	b := &Builtin{name: name, module: m.typ.module, owner: m.typ, kind: kind}
	return &MethodBuilder[T]{fb: FuncBuilder{b: b}, m: m, kind: kind}
}

// Doc sets the docstring.
func (mb *MethodBuilder[T]) Doc(doc string) *MethodBuilder[T] {
	mb.fb.Doc(doc)
	return mb
}

// Arg adds required parameters.
func (mb *MethodBuilder[T]) Arg(names ...string) *MethodBuilder[T] {
	mb.fb.Arg(names...)
	return mb
}

// OptArg adds optional parameters.
func (mb *MethodBuilder[T]) OptArg(names ...string) *MethodBuilder[T] {
	mb.fb.OptArg(names...)
	return mb
}

// Variadic accepts surplus positional arguments.
func (mb *MethodBuilder[T]) Variadic() *MethodBuilder[T] {
	mb.fb.Variadic()
	return mb
}

// Kwargs accepts unknown keyword arguments.
func (mb *MethodBuilder[T]) Kwargs() *MethodBuilder[T] {
	mb.fb.Kwargs()
	return mb
}

// Impl sets the implementation and installs the method in the type's
// namespace. Panics if the name is already defined on the type.
func (mb *MethodBuilder[T]) Impl(fn func(self T, ctx context.Context, args Args) (Object, error)) {
	m := mb.m
	b := mb.fb.b
	b.fn = func(ctx context.Context, self Object, args Args) (Object, error) {
		s, ok := m.conv(self)
		if !ok {
			return nil, TypeErrorf("descriptor '%s' for '%s' objects doesn't apply to a '%s' object",
				b.name, m.typ.name, self.Type().name)
		}
		return fn(s, ctx, args)
	}
	m.install(b)
}

func (m *Methods[T]) install(b *Builtin) {
	if prev := m.typ.dict.GetStr(b.name); prev != nil && !isSlot(prev) {
		panic(fmt.Sprintf("%s: attribute %q already defined", m.typ.name, b.name))
	}
	m.typ.dict.SetStr(b.name, b)
}

func isSlot(o Object) bool {
	b, ok := o.(*Builtin)
	return ok && b.slot
}

// New defines the type's __new__. The implementation receives the type
// being instantiated.
func (m *Methods[T]) New(params []string, required int, fn func(ctx context.Context, cls *Type, args Args) (Object, error)) *Builtin {
	b := &Builtin{
		name:     "__new__",
		module:   m.typ.module,
		owner:    m.typ,
		kind:     kindStatic,
		params:   params,
		required: required,
	}
	b.fn = func(ctx context.Context, self Object, args Args) (Object, error) {
		return fn(ctx, self.(*Type), args)
	}
	m.typ.dict.SetStr("__new__", b)
	return b
}

// ClassMethod defines a class method. The receiver passed to the
// implementation is the class.
func (m *Methods[T]) ClassMethod(name string, params []string, required int, fn func(ctx context.Context, cls *Type, args Args) (Object, error)) *Builtin {
	b := &Builtin{
		name:     name,
		module:   m.typ.module,
		owner:    m.typ,
		kind:     kindClass,
		params:   params,
		required: required,
	}
	b.fn = func(ctx context.Context, self Object, args Args) (Object, error) {
		return fn(ctx, self.(*Type), args)
	}
	m.install(b)
	return b
}

// Attr defines a read-only attribute computed from the receiver.
func (m *Methods[T]) Attr(name string, get func(self T) Object) {
	m.AttrRW(name, get, nil)
}

// AttrRW defines an attribute with a setter. set receives nil on deletion.
func (m *Methods[T]) AttrRW(name string, get func(self T) Object, set func(self T, value Object) error) {
	gs := &GetSet{name: name, owner: m.typ}
	gs.get = func(self Object) (Object, error) {
		s, ok := m.conv(self)
		if !ok {
			return nil, TypeErrorf("descriptor '%s' for '%s' objects doesn't apply to a '%s' object",
				name, m.typ.name, self.Type().name)
		}
		v := get(s)
		if v == nil {
			return nil, AttributeErrorf("'%s' object has no attribute '%s'", self.Type().name, name)
		}
		return v, nil
	}
	if set != nil {
		gs.set = func(self, value Object) error {
			s, ok := m.conv(self)
			if !ok {
				return TypeErrorf("descriptor '%s' for '%s' objects doesn't apply to a '%s' object",
					name, m.typ.name, self.Type().name)
			}
			return set(s, value)
		}
	}
	m.typ.dict.SetStr(name, gs)
}

// GetSet is a data descriptor backed by Go accessors.
type GetSet struct {
	name  string
	owner *Type
	get   func(self Object) (Object, error)
	set   func(self, value Object) error
}

func (g *GetSet) Type() *Type { return GetSetDescriptorType }

func (g *GetSet) Get(ctx context.Context, obj Object, owner *Type) (Object, error) {
	if obj == nil {
		return g, nil
	}
	return g.get(obj)
}

func (g *GetSet) Set(ctx context.Context, obj, value Object) error {
	if g.set == nil {
		return AttributeErrorf("attribute '%s' of '%s' objects is not writable", g.name, g.owner.name)
	}
	return g.set(obj, value)
}

func (g *GetSet) Delete(ctx context.Context, obj Object) error {
	if g.set == nil {
		return AttributeErrorf("attribute '%s' of '%s' objects is not writable", g.name, g.owner.name)
	}
	return g.set(obj, nil)
}

func (g *GetSet) String() string {
	return fmt.Sprintf("<attribute '%s' of '%s' objects>", g.name, g.owner.name)
}

// exact returns a conv for receivers that are exactly T or a user subclass
// instance wrapping T.
func exact[T Object](o Object) (T, bool) {
	if v, ok := o.(T); ok {
		return v, true
	}
	if inst, ok := o.(*Instance); ok && inst.native != nil {
		v, ok := inst.native.(T)
		return v, ok
	}
	var zero T
	return zero, false
}

// joinNames formats a list of names as 'a', 'b' and 'c'.
func joinNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	case 2:
		return quoted[0] + " and " + quoted[1]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + ", and " + quoted[len(quoted)-1]
}
