package vm

import (
	"io"

	"github.com/deepnoodle-ai/pyxlate/object"
)

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithBuiltins adds or replaces entries in the builtins namespace that
// LOAD_GLOBAL and LOAD_NAME fall back to.
func WithBuiltins(builtins map[string]object.Object) Option {
	return func(vm *VirtualMachine) {
		for name, value := range builtins {
			vm.builtins.SetStr(name, value)
		}
	}
}

// WithModules registers native modules. Imports of these names are served
// without consulting the host.
func WithModules(modules map[string]object.Object) Option {
	return func(vm *VirtualMachine) {
		for name, m := range modules {
			vm.modules[name] = m
		}
	}
}

// WithHost sets the host that services opaque values and imports the VM
// cannot satisfy itself.
func WithHost(host object.Host) Option {
	return func(vm *VirtualMachine) {
		vm.host = host
	}
}

// WithStdout sets the writer print() writes to.
func WithStdout(w io.Writer) Option {
	return func(vm *VirtualMachine) {
		vm.stdout = w
	}
}

// WithRecursionLimit sets the maximum depth of nested translated calls.
// Exceeding it raises RecursionError. The default is
// DefaultRecursionLimit.
func WithRecursionLimit(limit int) Option {
	return func(vm *VirtualMachine) {
		vm.recursionLimit = limit
	}
}

// WithContextCheckInterval sets how often the VM checks ctx.Done() during
// execution. The interval is specified in number of instructions. A value
// of 0 disables the check; calls still observe cancellation.
func WithContextCheckInterval(interval int) Option {
	return func(vm *VirtualMachine) {
		vm.contextCheckInterval = interval
	}
}

// WithTracer attaches a tracer. Its TraceConfig is read once, here.
func WithTracer(tracer Tracer) Option {
	return func(vm *VirtualMachine) {
		vm.tracer = tracer
	}
}
