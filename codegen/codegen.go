// Package codegen emits target code for CompiledUnits. Each source
// instruction maps to zero or more target instructions; the control flow
// graph supplies definite assignment for local reads and the type
// analysis selects guarded specializations.
package codegen

import (
	"errors"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/cfg"
	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/infer"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
)

// Generator turns units into target code. It holds no per-unit state and
// may be shared.
type Generator struct {
	specialize bool
	onOpaque   func(qualname string, err error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithSpecialization turns guarded specializations on or off. Generated
// code behaves the same either way.
func WithSpecialization(enabled bool) Option {
	return func(g *Generator) { g.specialize = enabled }
}

// WithOpaqueFallback registers a callback invoked whenever a nested class
// body is replaced by an opaque stub.
func WithOpaqueFallback(fn func(qualname string, err error)) Option {
	return func(g *Generator) { g.onOpaque = fn }
}

// New returns a Generator. Specialization is on by default.
func New(opts ...Option) *Generator {
	g := &Generator{specialize: true}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate emits target code for u with default options.
func Generate(u *unit.Unit, opts ...Option) (*bytecode.Code, error) {
	return New(opts...).Generate(u)
}

// Generate emits target code for u and every unit nested in its constant
// pool. Failure is atomic: on error no code is returned.
func (g *Generator) Generate(u *unit.Unit) (*bytecode.Code, error) {
	code, err := g.generate(u)
	if err != nil {
		return nil, attribute(err, u.QualName)
	}
	return code, nil
}

func attribute(err error, unitName string) error {
	var se *errz.StructuredError
	if errors.As(err, &se) && se.Unit == "" {
		return se.WithUnit(unitName)
	}
	return err
}

func (g *Generator) generate(u *unit.Unit) (*bytecode.Code, error) {
	if u.Flags&pyop.CoAsyncGenerator != 0 {
		return nil, errz.New(errz.ErrUnmodeled, "asynchronous generators are not supported")
	}
	graph, err := cfg.Build(u)
	if err != nil {
		return nil, err
	}
	var types *infer.Result
	if g.specialize {
		types = infer.Analyze(graph)
	}

	constants := make([]any, len(u.Consts))
	var children []*bytecode.Code
	for i, k := range u.Consts {
		if k.Code == nil {
			constants[i] = k.Value
			continue
		}
		child, err := g.Generate(k.Code)
		if err != nil {
			if !errz.IsUnmodeled(err) || !k.Code.IsClassBody() || !u.Has(pyop.CoOptimized) {
				return nil, err
			}
			if g.onOpaque != nil {
				g.onOpaque(k.Code.QualName, err)
			}
			child = opaqueBody(k.Code)
		}
		constants[i] = object.NewCode(child)
		children = append(children, child)
	}

	t := &translator{
		unit:  u,
		graph: graph,
		types: types,
		code:  &code{pos: make([]int, len(u.Instructions)+1)},
	}
	if err := t.run(); err != nil {
		return nil, err
	}
	c := t.code
	c.pos[len(u.Instructions)] = len(c.instructions)
	index := decode.Index(u.Instructions)
	if err := c.resolve(index); err != nil {
		return nil, err
	}
	handlers, err := c.handlers(u.Instructions, index, u.Exceptions)
	if err != nil {
		return nil, err
	}
	names, kinds := locals(u)
	maxStack := graph.MaxDepth
	if u.StackSize > maxStack {
		maxStack = u.StackSize
	}
	return bytecode.NewCode(bytecode.CodeParams{
		Name:            u.Name,
		QualName:        u.QualName,
		Filename:        u.Filename,
		Dialect:         u.Dialect.String(),
		FirstLine:       u.FirstLine,
		Flags:           flags(u),
		ArgCount:        u.ArgCount,
		PosOnlyArgCount: u.PosOnlyArgCount,
		KwOnlyArgCount:  u.KwOnlyArgCount,
		LocalNames:      names,
		LocalKinds:      kinds,
		Instructions:    c.instructions,
		Constants:       constants,
		Names:           u.Names,
		Locations:       c.locations,
		Handlers:        handlers,
		Suspensions:     c.suspensions,
		MaxStack:        maxStack,
		Children:        children,
	}), nil
}

func flags(u *unit.Unit) bytecode.Flags {
	var f bytecode.Flags
	if u.Flags&pyop.CoOptimized != 0 {
		f |= bytecode.FlagOptimized
	}
	if u.Flags&pyop.CoVarargs != 0 {
		f |= bytecode.FlagVarArgs
	}
	if u.Flags&pyop.CoVarkeywords != 0 {
		f |= bytecode.FlagVarKeywords
	}
	if u.Flags&pyop.CoGenerator != 0 {
		f |= bytecode.FlagGenerator
	}
	if u.Flags&(pyop.CoCoroutine|pyop.CoIterableCoroutine) != 0 {
		f |= bytecode.FlagCoroutine
	}
	if u.Flags&pyop.CoNested != 0 {
		f |= bytecode.FlagNested
	}
	return f
}

// locals lays out the frame slots the way the source does: plain locals,
// cells that are not arguments, then free variables.
func locals(u *unit.Unit) ([]string, []bytecode.LocalKind) {
	names := u.LocalsPlus()
	kinds := make([]bytecode.LocalKind, len(names))
	firstFree := len(names) - len(u.FreeVars)
	for i, name := range names {
		switch {
		case i >= firstFree:
			kinds[i] = bytecode.LocalFree
		case i < len(u.VarNames):
			kinds[i] = bytecode.LocalFast
			for _, c := range u.CellVars {
				if c == name {
					kinds[i] |= bytecode.LocalCell
				}
			}
		default:
			kinds[i] = bytecode.LocalCell
		}
	}
	return names, kinds
}

// opaqueBody is the stand-in for a class body that could not be
// translated. Building the class hands the source body to the host.
func opaqueBody(u *unit.Unit) *bytecode.Code {
	names, kinds := locals(u)
	return bytecode.NewCode(bytecode.CodeParams{
		Name:       u.Name,
		QualName:   u.QualName,
		Filename:   u.Filename,
		Dialect:    u.Dialect.String(),
		FirstLine:  u.FirstLine,
		Flags:      bytecode.FlagOpaqueBody,
		LocalNames: names,
		LocalKinds: kinds,
		Constants:  []any{object.NewOpaque(u.Source, nil)},
	})
}
