package unit

import (
	"context"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/hashicorp/go-multierror"
)

// Converter translates source values into runtime values. It is the value
// ingestion contract of the bridge.
type Converter interface {
	Convert(ctx context.Context, v source.Value) (object.Object, error)
}

// DefaultDeny lists modules whose objects only exist inside the source
// interpreter. Values defined in them are never translated; they are
// bridged as opaque host references instead.
var DefaultDeny = []string{
	"_thread", "ctypes", "gc", "inspect", "io", "multiprocessing", "os",
	"signal", "socket", "subprocess", "sys", "threading",
}

// Options configure a Builder.
type Options struct {
	Types   *TypeTable
	Globals *GlobalsTable
	// Deny overrides DefaultDeny when not nil.
	Deny []string
}

// Builder is the descriptor builder. It turns source code objects and
// functions into Units.
type Builder struct {
	conv    Converter
	types   *TypeTable
	globals *GlobalsTable
	deny    []string
}

// NewBuilder returns a builder converting constants, defaults and globals
// through conv.
func NewBuilder(conv Converter, opts Options) *Builder {
	b := &Builder{
		conv:    conv,
		types:   opts.Types,
		globals: opts.Globals,
		deny:    opts.Deny,
	}
	if b.types == nil {
		b.types = NewTypeTable()
	}
	if b.globals == nil {
		b.globals = NewGlobalsTable()
	}
	if b.deny == nil {
		b.deny = DefaultDeny
	}
	return b
}

// Types returns the builder's type table.
func (b *Builder) Types() *TypeTable { return b.types }

// Globals returns the builder's globals table.
func (b *Builder) Globals() *GlobalsTable { return b.globals }

// Denied reports whether v is defined in a module on the deny-list.
func (b *Builder) Denied(v source.Value) bool {
	var module string
	switch v := v.(type) {
	case *source.Module:
		module = v.Name
	case *source.Function:
		module = v.Module
	case *source.Class:
		module = v.Module
	case *source.Builtin:
		module = v.Module
	default:
		return false
	}
	for _, d := range b.deny {
		if module == d || strings.HasPrefix(module, d+".") {
			return true
		}
	}
	return false
}

// Code builds the unit of a code object defined in module. Nested code
// objects in the constant pool are built recursively.
func (b *Builder) Code(ctx context.Context, c *source.Code, module string) (*Unit, error) {
	u, err := b.code(ctx, c, module)
	if err != nil {
		return nil, attribute(err, qualName(c))
	}
	return u, nil
}

func qualName(c *source.Code) string {
	if c.QualName != "" {
		return c.QualName
	}
	return c.Name
}

func attribute(err error, unit string) error {
	if se, ok := err.(*errz.StructuredError); ok {
		return se.WithUnit(unit)
	}
	return err
}

// kindOf is errz.KindOf with a default for errors outside the taxonomy,
// such as Python exceptions raised while converting a value.
func kindOf(err error, def errz.ErrorKind) errz.ErrorKind {
	if k := errz.KindOf(err); k != 0 {
		return k
	}
	return def
}

func (b *Builder) code(ctx context.Context, c *source.Code, module string) (*Unit, error) {
	d, err := pyop.ParseDialect(c.Version)
	if err != nil {
		return nil, err
	}
	var instrs []decode.Instruction
	switch {
	case len(c.Instructions) > 0:
		instrs, err = decode.Decode(d, c.Instructions)
	case len(c.Wordcode) > 0:
		instrs, err = decode.DecodeWordcode(d, c.Wordcode, c.Lines)
	default:
		err = errz.New(errz.ErrMalformed, "code object has no instructions")
	}
	if err != nil {
		return nil, err
	}
	exc, err := decode.ParseExceptionTable(c.ExceptionTable)
	if err != nil {
		return nil, err
	}
	u := &Unit{
		Name:            c.Name,
		QualName:        qualName(c),
		Module:          module,
		Filename:        c.Filename,
		Dialect:         d,
		FirstLine:       c.FirstLine,
		Flags:           c.Flags,
		ArgCount:        c.ArgCount,
		PosOnlyArgCount: c.PosOnlyArgCount,
		KwOnlyArgCount:  c.KwOnlyArgCount,
		StackSize:       c.StackSize,
		Instructions:    instrs,
		Exceptions:      exc,
		Names:           append([]string(nil), c.Names...),
		Source:          c,
	}
	u.VarNames, u.CellVars, u.FreeVars = sanitizeLocals(c.VarNames, c.CellVars, c.FreeVars)

	for i, k := range c.Consts {
		if nested, ok := k.(*source.Code); ok {
			child, err := b.Code(ctx, nested, module)
			if err != nil {
				return nil, err
			}
			u.Consts = append(u.Consts, Const{Code: child})
			continue
		}
		v, err := b.conv.Convert(ctx, k)
		if err != nil {
			return nil, errz.Newf(kindOf(err, errz.ErrNoRepresentation), "constant %d", i).WithCause(err)
		}
		u.Consts = append(u.Consts, Const{Value: v})
	}
	u.GlobalNames = referencedNames(u)
	return u, nil
}

// sanitizeLocals sanitizes the three local name tables together so a name
// shared between them (a cell argument) maps to the same slot name.
func sanitizeLocals(varnames, cellvars, freevars []string) ([]string, []string, []string) {
	var all []string
	seen := map[string]bool{}
	for _, list := range [][]string{varnames, cellvars, freevars} {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				all = append(all, n)
			}
		}
	}
	clean := SanitizeAll(all)
	m := make(map[string]string, len(all))
	for i, n := range all {
		m[n] = clean[i]
	}
	apply := func(list []string) []string {
		if len(list) == 0 {
			return nil
		}
		out := make([]string, len(list))
		for i, n := range list {
			out[i] = m[n]
		}
		return out
	}
	return apply(varnames), apply(cellvars), apply(freevars)
}

func referencedNames(u *Unit) []string {
	var out []string
	seen := map[string]bool{}
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add(u.Names)
	for _, n := range u.Nested() {
		add(n.Names)
	}
	return out
}

// Function builds the unit of a function object: its code plus resolved
// defaults, annotations, closure cells and a globals snapshot. The
// snapshot is created empty; FillGlobals populates it once the caller has
// registered the function, so globals referring back to it resolve.
func (b *Builder) Function(ctx context.Context, f *source.Function) (*Unit, error) {
	if f.Code == nil {
		return nil, errz.Newf(errz.ErrMalformed, "function %s has no code object", f.Name)
	}
	u, err := b.Code(ctx, f.Code, f.Module)
	if err != nil {
		return nil, err
	}
	if f.Name != "" {
		u.Name = f.Name
	}
	if f.QualName != "" {
		u.QualName = f.QualName
	}
	u.Function = f
	if err := b.functionParts(ctx, u, f); err != nil {
		return nil, attribute(err, u.QualName)
	}
	return u, nil
}

func (b *Builder) functionParts(ctx context.Context, u *Unit, f *source.Function) error {
	for _, d := range f.Defaults {
		v, err := b.conv.Convert(ctx, d)
		if err != nil {
			return err
		}
		u.Defaults = append(u.Defaults, v)
	}
	if f.KwDefaults != nil && len(f.KwDefaults.Keys) > 0 {
		u.KwDefaults = object.NewDict()
		for i, k := range f.KwDefaults.Keys {
			name, ok := k.(source.Str)
			if !ok {
				return errz.New(errz.ErrMalformed, "keyword default with a non-string name")
			}
			v, err := b.conv.Convert(ctx, f.KwDefaults.Values[i])
			if err != nil {
				return err
			}
			u.KwDefaults.SetStr(string(name), v)
		}
	}

	var merr *multierror.Error
	for _, a := range f.Annotations {
		typ, err := b.ResolveAnnotation(ctx, a.Type)
		if err != nil {
			merr = multierror.Append(merr, errz.Newf(kindOf(err, errz.ErrUnmodeled), "annotation of %s", a.Name).WithCause(err))
			continue
		}
		u.Annotations = append(u.Annotations, Annotation{Name: a.Name, Type: typ})
	}
	if err := merr.ErrorOrNil(); err != nil {
		return errz.New(errz.ErrUnmodeled, "unresolvable annotations").WithCause(err)
	}

	if len(f.Closure) != len(u.FreeVars) {
		return errz.Newf(errz.ErrMalformed, "closure has %d cells for %d free variables",
			len(f.Closure), len(u.FreeVars))
	}
	for _, c := range f.Closure {
		v, err := b.conv.Convert(ctx, c)
		if err != nil {
			return err
		}
		cell, ok := v.(*object.Cell)
		if !ok {
			return errz.Newf(errz.ErrMalformed, "closure entry converted to %s, not a cell", v.Type().Name())
		}
		u.Closure = append(u.Closure, cell)
	}

	if f.Globals != nil {
		u.globals = f.Globals
		u.Globals = b.globals.Snapshot(f.Globals)
	} else {
		u.Globals = object.NewDict()
		u.Globals.SetStr("__name__", object.NewStr(f.Module))
	}
	return nil
}

// FillGlobals populates the unit's globals snapshot with the names the
// unit and its nested units reference. Values from deny-listed modules
// become opaque host references holding the source value.
func (b *Builder) FillGlobals(ctx context.Context, u *Unit) error {
	if u.globals == nil {
		return nil
	}
	err := b.globals.Fill(ctx, u.globals, u.GlobalNames, func(ctx context.Context, v source.Value) (object.Object, error) {
		if b.Denied(v) {
			return object.NewOpaque(v, nil), nil
		}
		return b.conv.Convert(ctx, v)
	})
	if err != nil {
		return attribute(err, u.QualName)
	}
	return nil
}

// ResolveAnnotation resolves a type annotation to a type descriptor.
// Classes are converted, and so registered in the type table, on first
// use.
func (b *Builder) ResolveAnnotation(ctx context.Context, v source.Value) (*object.Type, error) {
	switch a := v.(type) {
	case *source.NoneType:
		return object.None.Type(), nil
	case source.Str:
		if typ, ok := b.types.Builtin(string(a)); ok {
			return typ, nil
		}
		if string(a) == "None" {
			return object.None.Type(), nil
		}
	case *source.Builtin:
		if a.Module == "builtins" {
			if typ, ok := b.types.Builtin(a.Name); ok {
				return typ, nil
			}
		}
	case *source.Class:
		if b.Denied(a) {
			break
		}
		obj, err := b.conv.Convert(ctx, a)
		if err != nil {
			return nil, err
		}
		if typ, ok := obj.(*object.Type); ok {
			return typ, nil
		}
	}
	return nil, errz.Newf(errz.ErrUnmodeled, "cannot resolve %s annotation to a type", kindName(v))
}

func kindName(v source.Value) string {
	if v == nil {
		return "missing"
	}
	switch a := v.(type) {
	case source.Str:
		return "string '" + string(a) + "'"
	case *source.Builtin:
		return a.Module + "." + a.Name
	case *source.Class:
		return "class " + a.Name
	}
	return v.Kind().String()
}
