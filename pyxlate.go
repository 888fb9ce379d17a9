// Package pyxlate translates CPython 3.11 and 3.12 bytecode into target code
// and runs it.
//
// A Translator ingests source values (functions, classes, code objects and
// the values they reference) handed over by an embedding layer, builds a
// normalized unit for each body, analyzes its control flow and types, and
// generates target code executed by the vm package. Results are cached per
// source identity and contract, so repeated requests return the same Unit.
//
//	t, _ := pyxlate.New()
//	u, _ := t.Translate(ctx, fn, pyxlate.Func(object.IntType, object.IntType))
//	result, _ := u.Call(ctx, object.NewInt(41))
package pyxlate

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/deepnoodle-ai/pyxlate/bridge"
	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/cache"
	"github.com/deepnoodle-ai/pyxlate/codegen"
	"github.com/deepnoodle-ai/pyxlate/config"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/source"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/deepnoodle-ai/pyxlate/vm"
	"github.com/rs/zerolog"
)

// Translator is the translation pipeline. It is safe for concurrent use;
// concurrent requests for the same source unit share one translation.
type Translator struct {
	cfg       config.Config
	log       zerolog.Logger
	dialects  []pyop.Dialect
	generator *codegen.Generator
	conv      *bridge.Converter
	machine   *vm.VirtualMachine
	codes     *cache.Cache[*bytecode.Code]
	units     *cache.Cache[*Unit]
}

// New returns a Translator configured by the given options.
func New(opts ...Option) (*Translator, error) {
	o := collectOptions(opts...)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	dialects, err := o.cfg.DialectSet()
	if err != nil {
		return nil, err
	}
	slices.Sort(dialects)
	t := &Translator{
		cfg:      o.cfg,
		log:      o.logger,
		dialects: slices.Compact(dialects),
		machine:  vm.New(o.vmOpts()...),
		codes:    cache.New[*bytecode.Code](),
		units:    cache.New[*Unit](),
	}
	t.generator = codegen.New(
		codegen.WithSpecialization(o.cfg.Translator.Specialize),
		codegen.WithOpaqueFallback(func(qualname string, err error) {
			t.log.Warn().Str("unit", qualname).Err(err).Msg("class body kept opaque")
		}),
	)
	t.conv = bridge.New(bridge.Options{
		Compiler: t,
		Types:    o.types,
		Globals:  o.globals,
		Deny:     o.cfg.Translator.Deny,
		Modules:  o.modules,
	})
	return t, nil
}

// Config returns the configuration the translator was built with.
func (t *Translator) Config() config.Config { return t.cfg }

// VM returns the virtual machine translated units run on.
func (t *Translator) VM() *vm.VirtualMachine { return t.machine }

// Converter returns the value converter. Its identity map is shared by
// every translation.
func (t *Translator) Converter() *bridge.Converter { return t.conv }

// Convert ingests a source value.
func (t *Translator) Convert(ctx context.Context, v source.Value) (object.Object, error) {
	return t.conv.Convert(ctx, v)
}

// Extract hands a runtime value back across the boundary.
func (t *Translator) Extract(ctx context.Context, o object.Object) (source.Value, error) {
	return t.conv.Extract(ctx, o)
}

// Stats reports the activity of the unit and code caches.
func (t *Translator) Stats() (units, codes cache.Stats) {
	return t.units.Stats(), t.codes.Stats()
}

func (t *Translator) supported() string {
	first, last := t.dialects[0], t.dialects[len(t.dialects)-1]
	if first == last {
		return first.String()
	}
	return first.String() + "-" + last.String()
}

func (t *Translator) checkDialect(d pyop.Dialect) error {
	if slices.Contains(t.dialects, d) {
		return nil
	}
	return errz.Newf(errz.ErrUnsupportedVersion,
		"unsupported bytecode dialect %q (supported: %s)", d.String(), t.supported())
}

func (t *Translator) checkVersion(version string) error {
	d, err := pyop.ParseDialect(version)
	if err != nil {
		return err
	}
	return t.checkDialect(d)
}

// Compile generates target code for a unit. Code is cached per source code
// object, so functions sharing a code object share the generated code
// unless their annotations select different specializations. Compile
// implements bridge.Compiler.
func (t *Translator) Compile(ctx context.Context, u *unit.Unit) (*bytecode.Code, error) {
	if err := t.checkDialect(u.Dialect); err != nil {
		return nil, attribute(err, u.QualName)
	}
	if u.Source == nil {
		return t.generate(u)
	}
	key := cache.Key{Unit: u.Source, Contract: unitFingerprint(u)}
	code, hit, err := t.codes.GetOrFill(key, func() (*bytecode.Code, error) {
		return t.generate(u)
	})
	if hit && err == nil {
		t.log.Debug().Str("unit", u.QualName).Str("code_id", code.ID()).Msg("code cache hit")
	}
	return code, err
}

func attribute(err error, unitName string) error {
	var se *errz.StructuredError
	if errors.As(err, &se) && se.Unit == "" {
		return se.WithUnit(unitName)
	}
	return err
}

func unitFingerprint(u *unit.Unit) uint64 {
	parts := []string{u.Name, u.QualName}
	for _, a := range u.Annotations {
		parts = append(parts, a.Name, typeID(a.Type))
	}
	return cache.Fingerprint(parts...)
}

func (t *Translator) generate(u *unit.Unit) (*bytecode.Code, error) {
	start := time.Now()
	t.log.Debug().Str("unit", u.QualName).Str("dialect", u.Dialect.String()).Msg("translating unit")
	code, err := t.generator.Generate(u)
	if err != nil {
		t.log.Debug().Str("unit", u.QualName).Stringer("kind", errz.KindOf(err)).Err(err).Msg("translation failed")
		return nil, err
	}
	stats := code.Stats()
	t.log.Debug().
		Str("unit", u.QualName).
		Str("code_id", code.ID()).
		Int("source_instructions", len(u.Instructions)).
		Int("instructions", stats.InstructionCount).
		Int("handlers", stats.HandlerCount).
		Int("yields", stats.SuspensionCount).
		Int("max_live_at_yield", stats.MaxLiveAtSuspension).
		Int("children", stats.ChildCount).
		Dur("elapsed", time.Since(start)).
		Msg("unit translated")
	return code, nil
}

// Translate returns the Unit implementing contract c for a source
// function, class or code object. Repeated requests with the same source
// value and an equivalent contract return the same Unit. A failed
// translation is not cached.
func (t *Translator) Translate(ctx context.Context, v source.Value, c Contract) (*Unit, error) {
	switch v := v.(type) {
	case *source.Function:
		if v.Code == nil {
			return nil, errz.Newf(errz.ErrMalformed, "function %s has no code object", v.Name)
		}
		if err := t.checkVersion(v.Code.Version); err != nil {
			return nil, err
		}
	case *source.Code:
		if err := t.checkVersion(v.Version); err != nil {
			return nil, err
		}
	case *source.Class:
	default:
		if v == nil {
			return nil, errz.New(errz.ErrNoRepresentation, "nothing to translate")
		}
		return nil, errz.Newf(errz.ErrNoRepresentation, "a %s is not a translatable unit", v.Kind())
	}
	key := cache.Key{Unit: v, Contract: c.Fingerprint()}
	u, hit, err := t.units.GetOrFill(key, func() (*Unit, error) {
		return t.translate(ctx, v, c)
	})
	if err != nil {
		return nil, err
	}
	t.log.Debug().Str("unit", u.Name()).Stringer("contract", c).Bool("hit", hit).Msg("translate")
	return u, nil
}

func (t *Translator) translate(ctx context.Context, v source.Value, c Contract) (*Unit, error) {
	o, err := t.conv.Convert(ctx, v)
	if err != nil {
		return nil, err
	}
	u := &Unit{contract: c, value: o, source: v, t: t}
	switch o := o.(type) {
	case *object.Function:
		if err := c.fits(o.Code().Signature(), len(o.Defaults())); err != nil {
			return nil, attribute(err, o.QualName())
		}
		u.name = o.QualName()
	case *object.Code:
		u.name = o.Unwrap().QualName()
	case *object.Type:
		u.name = o.Name()
	default:
		u.name = o.Type().Name()
	}
	return u, nil
}
