package object

import (
	"context"
	"io"
)

type contextKey string

// CallFunc runs a translated function with already evaluated arguments.
// The trailing len(kwnames) entries of args are keyword argument values.
type CallFunc func(ctx context.Context, fn *Function, args []Object, kwnames []string) (Object, error)

// ExecBodyFunc runs a class body code object against a namespace dict.
type ExecBodyFunc func(ctx context.Context, fn *Function, namespace *Dict) error

const (
	callFuncKey = contextKey("pyxlate:call")
	execBodyKey = contextKey("pyxlate:exec-body")
	hostKey     = contextKey("pyxlate:host")
	stdoutKey   = contextKey("pyxlate:stdout")
	reprKey     = contextKey("pyxlate:repr")
	frameKey    = contextKey("pyxlate:frame")
)

// Frame exposes the innermost executing frame to builtins that need it,
// such as globals(), locals() and zero-argument super().
type Frame interface {
	Globals() *Dict
	Locals(ctx context.Context) (Object, error)
	// SuperArgs returns the __class__ cell contents and the first argument
	// of the running function.
	SuperArgs() (*Type, Object, error)
}

// WithFrames installs an accessor for the innermost executing frame.
func WithFrames(ctx context.Context, current func() Frame) context.Context {
	return context.WithValue(ctx, frameKey, current)
}

// CurrentFrame returns the innermost executing frame, if an interpreter
// installed one.
func CurrentFrame(ctx context.Context) (Frame, bool) {
	fn, ok := ctx.Value(frameKey).(func() Frame)
	if !ok || fn == nil {
		return nil, false
	}
	f := fn()
	return f, f != nil
}

// WithCallFunc adds a CallFunc to the context, which objects use to call
// translated functions at run time.
func WithCallFunc(ctx context.Context, fn CallFunc) context.Context {
	return context.WithValue(ctx, callFuncKey, fn)
}

// GetCallFunc returns the CallFunc from the context, if it exists.
func GetCallFunc(ctx context.Context) (CallFunc, bool) {
	if fn, ok := ctx.Value(callFuncKey).(CallFunc); ok {
		if fn != nil {
			return fn, ok
		}
	}
	return nil, false
}

// WithExecBody adds the class body runner to the context.
func WithExecBody(ctx context.Context, fn ExecBodyFunc) context.Context {
	return context.WithValue(ctx, execBodyKey, fn)
}

// GetExecBody returns the class body runner from the context, if it exists.
func GetExecBody(ctx context.Context) (ExecBodyFunc, bool) {
	if fn, ok := ctx.Value(execBodyKey).(ExecBodyFunc); ok && fn != nil {
		return fn, true
	}
	return nil, false
}

// WithHost attaches the embedding host used for opaque values and imports.
func WithHost(ctx context.Context, h Host) context.Context {
	return context.WithValue(ctx, hostKey, h)
}

// GetHost returns the host attached to the context, if any.
func GetHost(ctx context.Context) (Host, bool) {
	h, ok := ctx.Value(hostKey).(Host)
	return h, ok && h != nil
}

// WithStdout sets the writer print() writes to.
func WithStdout(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stdoutKey, w)
}

// GetStdout returns the writer print() writes to, or io.Discard.
func GetStdout(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(stdoutKey).(io.Writer); ok && w != nil {
		return w
	}
	return io.Discard
}
