package pyxlate

import (
	"io"

	"github.com/deepnoodle-ai/pyxlate/config"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/deepnoodle-ai/pyxlate/vm"
	"github.com/rs/zerolog"
)

// Option configures a Translator.
type Option func(*options)

type options struct {
	cfg      config.Config
	logger   zerolog.Logger
	host     object.Host
	modules  []*object.Module
	tracer   vm.Tracer
	stdout   io.Writer
	types    *unit.TypeTable
	globals  *unit.GlobalsTable
}

func collectOptions(opts ...Option) *options {
	o := &options{
		cfg:    config.Default(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) vmOpts() []vm.Option {
	modules := map[string]object.Object{}
	for _, m := range o.modules {
		modules[m.Name()] = m
	}
	opts := []vm.Option{
		vm.WithModules(modules),
		vm.WithRecursionLimit(o.cfg.VM.RecursionLimit),
		vm.WithContextCheckInterval(o.cfg.VM.ContextCheckInterval),
	}
	if o.host != nil {
		opts = append(opts, vm.WithHost(o.host))
	}
	if o.tracer != nil {
		opts = append(opts, vm.WithTracer(o.tracer))
	}
	if o.stdout != nil {
		opts = append(opts, vm.WithStdout(o.stdout))
	}
	return opts
}

// WithConfig replaces the built-in configuration. The configuration is
// validated by New.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger translation events are written to. By
// default nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHost sets the host that services opaque values, host-bridged
// attribute access and imports the runtime cannot satisfy itself.
func WithHost(host object.Host) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithModules registers native modules. They are served by the import
// hook and replace source modules of the same name during conversion.
// This option is additive.
func WithModules(modules ...*object.Module) Option {
	return func(o *options) {
		o.modules = append(o.modules, modules...)
	}
}

// WithTracer sets a tracer that follows translated code as it runs.
func WithTracer(tracer vm.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithStdout sets the writer print() writes to.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		o.stdout = w
	}
}

// WithTypeTable shares a source type table between translators, so that
// each source class maps to one type descriptor across all of them.
func WithTypeTable(types *unit.TypeTable) Option {
	return func(o *options) {
		o.types = types
	}
}

// WithGlobalsTable shares the globals snapshot table between translators.
func WithGlobalsTable(globals *unit.GlobalsTable) Option {
	return func(o *options) {
		o.globals = globals
	}
}
