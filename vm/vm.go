// Package vm provides a VirtualMachine that executes translated code.
package vm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/deepnoodle-ai/pyxlate/builtins"
	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/object"
)

const (
	// DefaultRecursionLimit is the default maximum depth of nested
	// translated frames.
	DefaultRecursionLimit = 1000

	// DefaultContextCheckInterval is the number of instructions between
	// deterministic checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000
)

// ErrHalted is returned when a tracer stops execution.
var ErrHalted = errors.New("execution halted by tracer")

// VirtualMachine runs translated code. Its configuration is fixed at
// construction; each top-level call gets its own thread state, so one
// VirtualMachine may serve concurrent callers.
type VirtualMachine struct {
	builtins *object.Dict
	modules  map[string]object.Object
	host     object.Host
	stdout   io.Writer

	recursionLimit       int
	contextCheckInterval int
	tracer               Tracer
	traceConfig          TraceConfig

	loadedCode map[*bytecode.Code]*code
	codeMutex  sync.Mutex
}

// New creates a new Virtual Machine.
func New(options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		builtins:             object.NewDict(),
		modules:              map[string]object.Object{},
		recursionLimit:       DefaultRecursionLimit,
		contextCheckInterval: DefaultContextCheckInterval,
		loadedCode:           map[*bytecode.Code]*code{},
	}
	for name, value := range builtins.Builtins() {
		vm.builtins.SetStr(name, value)
	}
	for name, m := range NativeModules() {
		vm.modules[name] = m
	}
	for _, opt := range options {
		opt(vm)
	}
	if vm.recursionLimit <= 0 {
		vm.recursionLimit = DefaultRecursionLimit
	}
	if vm.tracer != nil {
		vm.traceConfig = vm.tracer.TraceConfig()
	}
	return vm
}

// Builtins returns the builtins namespace.
func (vm *VirtualMachine) Builtins() *object.Dict {
	return vm.builtins
}

// Context returns ctx with this VM installed, so that object.Call and the
// other runtime entry points can run translated functions.
func (vm *VirtualMachine) Context(ctx context.Context) context.Context {
	ctx, _ = vm.enter(ctx)
	return ctx
}

// RunCode executes a module or class body against globals and returns the
// value the body returns. A nil globals gets a fresh namespace.
func (vm *VirtualMachine) RunCode(ctx context.Context, main *bytecode.Code, globals *object.Dict) (object.Object, error) {
	if globals == nil {
		globals = object.NewDict()
	}
	if globals.GetStr("__name__") == nil {
		globals.SetStr("__name__", object.NewStr("__main__"))
	}
	ctx, th := vm.enter(ctx)
	c := vm.loadCode(main)
	f := newFrame(c, nil, globals, vm.builtins)
	if !c.optimized {
		f.names = globals
	}
	result, _, err := th.execute(ctx, f, nil)
	return result, err
}

// Call calls fn with the given arguments. The trailing len(kwnames) args
// are keyword argument values.
func (vm *VirtualMachine) Call(ctx context.Context, fn object.Object, args []object.Object, kwnames []string) (object.Object, error) {
	ctx, _ = vm.enter(ctx)
	return object.Call(ctx, fn, args, kwnames)
}

type threadKey struct{}

// thread is the interpreter state of one chain of nested calls.
type thread struct {
	vm     *VirtualMachine
	frames []*frame
	steps  int

	// exc is the innermost handled-exception slot. Generator frames link
	// their own slot in front of it while they run.
	exc  *excItem
	base excItem
}

type excItem struct {
	value object.Object
	prev  *excItem
}

func (vm *VirtualMachine) enter(ctx context.Context) (context.Context, *thread) {
	if th, ok := ctx.Value(threadKey{}).(*thread); ok && th.vm == vm {
		return ctx, th
	}
	th := &thread{vm: vm}
	th.exc = &th.base
	ctx = context.WithValue(ctx, threadKey{}, th)
	ctx = object.WithCallFunc(ctx, th.callFunction)
	ctx = object.WithExecBody(ctx, th.execBody)
	ctx = object.WithFrames(ctx, th.currentFrame)
	if vm.host != nil {
		ctx = object.WithHost(ctx, vm.host)
	}
	if vm.stdout != nil {
		ctx = object.WithStdout(ctx, vm.stdout)
	}
	return ctx, th
}

func (th *thread) currentFrame() object.Frame {
	if len(th.frames) == 0 {
		return nil
	}
	return th.frames[len(th.frames)-1]
}

// handled returns the exception currently being handled, as reported by
// sys.exc_info().
func (th *thread) handled() *object.Exception {
	for e := th.exc; e != nil; e = e.prev {
		if exc, ok := e.value.(*object.Exception); ok {
			return exc
		}
	}
	return nil
}

// execute pushes f on the frame stack and runs it until it returns, yields
// or raises. A non-nil pending error is raised in f before anything runs.
func (th *thread) execute(ctx context.Context, f *frame, pending error) (object.Object, bool, error) {
	if len(th.frames) >= th.vm.recursionLimit {
		return nil, false, object.RecursionErrorf("maximum recursion depth exceeded")
	}
	th.frames = append(th.frames, f)
	defer func() {
		n := len(th.frames) - 1
		th.frames[n] = nil
		th.frames = th.frames[:n]
	}()
	return th.run(ctx, f, pending)
}

func (th *thread) run(ctx context.Context, f *frame, pending error) (object.Object, bool, error) {
	for {
		if pending != nil {
			if err := th.unwind(f, pending); err != nil {
				return nil, false, err
			}
		}
		result, yielded, err := th.eval(ctx, f)
		if err == nil {
			return result, yielded, nil
		}
		pending = err
	}
}

// catchable converts err to the exception translated code sees. Context
// cancellation and tracer halts are not catchable.
func catchable(err error) (*object.Exception, bool) {
	if exc, ok := object.AsException(err); ok {
		return exc, true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrHalted) {
		return nil, false
	}
	return object.WrapError(err), true
}

// unwind transfers control to the handler covering the failed instruction.
// It returns the exception to propagate when f has no such handler.
func (th *thread) unwind(f *frame, err error) error {
	exc, ok := catchable(err)
	if !ok {
		return err
	}
	reraised := f.reraise
	if f.reraise {
		f.reraise = false
	} else {
		exc.Trace = append(exc.Trace, object.TraceEntry{
			QualName: f.qualname(),
			Filename: f.code.Filename(),
			Line:     f.location().Line,
		})
		if exc.Context() == nil {
			if top := th.handled(); top != nil && top != exc {
				exc.SetContext(top)
			}
		}
	}
	h, ok := f.code.HandlerFor(f.lastIP)
	if !ok {
		return exc
	}
	if err := th.traceUnwind(f, exc, h.Target, h.Depth, h.Lasti, reraised); err != nil {
		return err
	}
	f.truncate(h.Depth)
	if h.Lasti {
		f.push(object.NewInt(int64(f.lastIP)))
	}
	f.push(exc)
	f.ip = h.Target
	return nil
}

// callFunction is the object.CallFunc installed in the context.
func (th *thread) callFunction(ctx context.Context, fn *object.Function, args []object.Object, kwnames []string) (object.Object, error) {
	c := th.vm.loadCode(fn.Code())
	if c.Has(bytecode.FlagOpaqueBody) {
		return nil, object.TypeErrorf("%s() is an untranslated class body and cannot be called", fn.QualName())
	}
	f := newFrame(c, fn, fn.Globals(), th.vm.builtins)
	if err := bind(fn, c, f.locals, args, kwnames); err != nil {
		return nil, err
	}
	if c.IsGenerator() {
		typ := object.GeneratorType
		if c.Has(bytecode.FlagCoroutine) {
			typ = object.CoroutineType
		}
		state := &genState{vm: th.vm, frame: f}
		f.gen = state
		return object.NewGenerator(typ, state, object.NewCode(fn.Code()), fn.Name(), fn.QualName()), nil
	}
	if err := th.traceEnter(f, len(args)-len(kwnames), false); err != nil {
		return nil, err
	}
	result, _, err := th.execute(ctx, f, nil)
	if terr := th.traceExit(f, err); terr != nil {
		return nil, terr
	}
	return result, err
}

// execBody is the object.ExecBodyFunc installed in the context. It runs a
// class body with namespace as its locals mapping.
func (th *thread) execBody(ctx context.Context, fn *object.Function, namespace *object.Dict) error {
	c := th.vm.loadCode(fn.Code())
	f := newFrame(c, fn, fn.Globals(), th.vm.builtins)
	f.names = namespace
	_, _, err := th.execute(ctx, f, nil)
	return err
}
