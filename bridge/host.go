package bridge

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/object"
)

// Hooks adapts the interpreter bridge callbacks to object.Host. A nil hook
// makes the corresponding operation fail with the Python error a missing
// attribute or module would raise.
type Hooks struct {
	GetAttrFunc func(ctx context.Context, ref any, name string) (object.Object, error)
	SetAttrFunc func(ctx context.Context, ref any, name string, value object.Object) error
	DelAttrFunc func(ctx context.Context, ref any, name string) error
	CallFunc    func(ctx context.Context, ref any, args []object.Object, kwnames []string) (object.Object, error)
	ImportFunc  func(ctx context.Context, name string, globals *object.Dict, fromlist []string, level int) (object.Object, error)
}

var _ object.Host = (*Hooks)(nil)

// hookError converts a failure reported by a hook into a Python exception,
// keeping exceptions the hook raised itself.
func hookError(err error, fallback func() *object.Exception) error {
	if err == nil {
		return nil
	}
	if _, ok := object.AsException(err); ok {
		return err
	}
	exc := fallback()
	exc.SetCause(object.NewException(object.RuntimeErrorType, object.NewStr(err.Error())))
	return exc
}

func (h *Hooks) GetAttr(ctx context.Context, ref any, name string) (object.Object, error) {
	missing := func() *object.Exception {
		return object.AttributeErrorf("host object has no attribute '%s'", name)
	}
	if h.GetAttrFunc == nil {
		return nil, missing()
	}
	v, err := h.GetAttrFunc(ctx, ref, name)
	return v, hookError(err, missing)
}

func (h *Hooks) SetAttr(ctx context.Context, ref any, name string, value object.Object) error {
	readonly := func() *object.Exception {
		return object.AttributeErrorf("cannot set attribute '%s' of host object", name)
	}
	if h.SetAttrFunc == nil {
		return readonly()
	}
	return hookError(h.SetAttrFunc(ctx, ref, name, value), readonly)
}

func (h *Hooks) DelAttr(ctx context.Context, ref any, name string) error {
	missing := func() *object.Exception {
		return object.AttributeErrorf("host object has no attribute '%s'", name)
	}
	if h.DelAttrFunc == nil {
		return missing()
	}
	return hookError(h.DelAttrFunc(ctx, ref, name), missing)
}

func (h *Hooks) Call(ctx context.Context, ref any, args []object.Object, kwnames []string) (object.Object, error) {
	notCallable := func() *object.Exception {
		return object.TypeErrorf("host object is not callable")
	}
	if h.CallFunc == nil {
		return nil, notCallable()
	}
	v, err := h.CallFunc(ctx, ref, args, kwnames)
	return v, hookError(err, notCallable)
}

func (h *Hooks) Import(ctx context.Context, name string, globals *object.Dict, fromlist []string, level int) (object.Object, error) {
	notFound := func() *object.Exception { return noModule(name) }
	if h.ImportFunc == nil {
		return nil, notFound()
	}
	v, err := h.ImportFunc(ctx, name, globals, fromlist, level)
	return v, hookError(err, notFound)
}

func noModule(name string) *object.Exception {
	return object.NewException(object.ModuleNotFoundErrorType, object.NewStr("No module named '"+name+"'"))
}

// moduleHost serves imports of native modules and delegates everything
// else.
type moduleHost struct {
	next    object.Host
	modules map[string]*object.Module
}

// WithModules returns a Host that imports the given native modules itself
// and delegates all other operations to next, which may be nil.
func WithModules(next object.Host, modules ...*object.Module) object.Host {
	h := &moduleHost{next: next, modules: map[string]*object.Module{}}
	for _, m := range modules {
		h.modules[m.Name()] = m
	}
	if h.next == nil {
		h.next = &Hooks{}
	}
	return h
}

func (h *moduleHost) GetAttr(ctx context.Context, ref any, name string) (object.Object, error) {
	return h.next.GetAttr(ctx, ref, name)
}

func (h *moduleHost) SetAttr(ctx context.Context, ref any, name string, value object.Object) error {
	return h.next.SetAttr(ctx, ref, name, value)
}

func (h *moduleHost) DelAttr(ctx context.Context, ref any, name string) error {
	return h.next.DelAttr(ctx, ref, name)
}

func (h *moduleHost) Call(ctx context.Context, ref any, args []object.Object, kwnames []string) (object.Object, error) {
	return h.next.Call(ctx, ref, args, kwnames)
}

func (h *moduleHost) Import(ctx context.Context, name string, globals *object.Dict, fromlist []string, level int) (object.Object, error) {
	if level == 0 {
		if m, ok := h.modules[name]; ok {
			return m, nil
		}
	}
	return h.next.Import(ctx, name, globals, fromlist, level)
}
