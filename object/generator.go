package object

import (
	"context"
	"fmt"
	"sync/atomic"
)

// GenState is the suspended frame behind a generator or coroutine. The
// interpreter implements it.
type GenState interface {
	// Resume continues the frame. send is the value delivered by the
	// suspended yield; a non-nil throw is raised at that point instead.
	// When the frame returns, done is true and value is the return value.
	Resume(ctx context.Context, send Object, throw *Exception) (value Object, done bool, err error)
}

// Generator is a generator or coroutine object.
type Generator struct {
	typ      *Type
	state    GenState
	code     *Code
	name     string
	qualname string
	// running is held for the whole of a resumption. The fields below
	// it are only touched while it is held.
	running  atomic.Bool
	started  bool
	finished bool
}

// NewGenerator creates a generator (or coroutine, when t is
// CoroutineType) over state.
func NewGenerator(t *Type, state GenState, code *Code, name, qualname string) *Generator {
	return &Generator{typ: t, state: state, code: code, name: name, qualname: qualname}
}

func (g *Generator) Type() *Type { return g.typ }

func (g *Generator) kind() string {
	if g.typ == CoroutineType {
		return "coroutine"
	}
	return "generator"
}

func (g *Generator) String() string {
	return fmt.Sprintf("<%s object %s at 0x%x>", g.kind(), g.qualname, Id(g))
}

// Running reports whether the frame is currently executing.
func (g *Generator) Running() bool { return g.running.Load() }

// Finished reports whether the frame has returned or raised.
func (g *Generator) Finished() bool { return g.finished }

// resume runs the frame once, applying the rules shared by send, throw
// and iteration.
func (g *Generator) resume(ctx context.Context, send Object, throw *Exception) (Object, bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, false, ValueErrorf("%s already executing", g.kind())
	}
	defer g.running.Store(false)
	if g.finished {
		if throw != nil {
			return nil, false, throw
		}
		if g.typ == CoroutineType {
			return nil, false, RuntimeErrorf("cannot reuse already awaited coroutine")
		}
		return nil, true, nil
	}
	if !g.started && throw == nil && send != nil && send != Object(None) {
		return nil, false, TypeErrorf("can't send non-None value to a just-started %s", g.kind())
	}
	if send == nil {
		send = None
	}
	g.started = true
	value, done, err := g.state.Resume(ctx, send, throw)
	if err != nil {
		g.finished = true
		if exc, ok := AsException(err); ok && exc.typ.IsSubtype(StopIterationType) {
			wrapped := RuntimeErrorf("%s raised StopIteration", g.kind())
			wrapped.SetCause(exc)
			wrapped.SetContext(exc)
			return nil, false, wrapped
		}
		return nil, false, err
	}
	if done {
		g.finished = true
		if value == nil {
			value = None
		}
	}
	return value, done, nil
}

// SendValue resumes the generator with v. When the frame returns, done is
// true and the result is the return value.
func (g *Generator) SendValue(ctx context.Context, v Object) (Object, bool, error) {
	return g.resume(ctx, v, nil)
}

// ThrowValue raises exc inside the generator at its suspension point.
func (g *Generator) ThrowValue(ctx context.Context, exc *Exception) (Object, bool, error) {
	return g.resume(ctx, None, exc)
}

// Next implements Iterator.
func (g *Generator) Next(ctx context.Context) (Object, bool, error) {
	if g.typ == CoroutineType {
		return nil, false, TypeErrorf("'coroutine' object is not an iterator")
	}
	v, done, err := g.resume(ctx, None, nil)
	if err != nil || done {
		return nil, false, err
	}
	return v, true, nil
}

// Close raises GeneratorExit inside the generator.
func (g *Generator) Close(ctx context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		return ValueErrorf("%s already executing", g.kind())
	}
	if g.finished || !g.started {
		g.finished = true
		g.running.Store(false)
		return nil
	}
	g.running.Store(false)
	_, done, err := g.resume(ctx, None, NewException(GeneratorExitType))
	if err != nil {
		if IsExceptionOf(err, GeneratorExitType) || IsExceptionOf(err, StopIterationType) {
			return nil
		}
		return err
	}
	if !done {
		return RuntimeErrorf("%s ignored GeneratorExit", g.kind())
	}
	return nil
}

// MakeException converts the operand of raise (an exception class or
// instance) to an exception.
func MakeException(ctx context.Context, o Object) (*Exception, error) {
	switch v := o.(type) {
	case *Exception:
		return v, nil
	case *Type:
		if v.IsSubtype(BaseExceptionType) {
			res, err := Call(ctx, v, nil, nil)
			if err != nil {
				return nil, err
			}
			exc, ok := res.(*Exception)
			if !ok {
				return nil, TypeErrorf("calling %s should have returned an instance of BaseException, not %s", v.name, res.Type().name)
			}
			return exc, nil
		}
	}
	return nil, TypeErrorf("exceptions must derive from BaseException")
}

// throwArgs builds the exception for generator.throw(typ[, val[, tb]]).
func throwArgs(ctx context.Context, args Args) (*Exception, error) {
	typ, val := args.Get(0), args.Or(1, None)
	switch t := typ.(type) {
	case *Exception:
		if !IsNone(val) {
			return nil, TypeErrorf("instance exception may not have a separate value")
		}
		return t, nil
	case *Type:
		if !t.IsSubtype(BaseExceptionType) {
			break
		}
		if exc, ok := val.(*Exception); ok && exc.typ.IsSubtype(t) {
			return exc, nil
		}
		var callArgs []Object
		switch v := val.(type) {
		case *NoneType:
		case *Tuple:
			callArgs = v.items
		default:
			callArgs = []Object{v}
		}
		res, err := Call(ctx, t, callArgs, nil)
		if err != nil {
			return nil, err
		}
		if exc, ok := res.(*Exception); ok {
			return exc, nil
		}
	}
	return nil, TypeErrorf("exceptions must be classes or instances deriving from BaseException, not %s", typ.Type().name)
}

// CoroutineWrapper is the iterator returned by coroutine.__await__.
type CoroutineWrapper struct {
	coro *Generator
}

func (w *CoroutineWrapper) Type() *Type { return CoroutineWrapperType }

func (w *CoroutineWrapper) Next(ctx context.Context) (Object, bool, error) {
	v, done, err := w.coro.resume(ctx, None, nil)
	if err != nil || done {
		return nil, false, err
	}
	return v, true, nil
}

func init() {
	for _, t := range []*Type{GeneratorType, CoroutineType} {
		m := NewMethods(t, exact[*Generator])
		m.Define("send").Arg("value").Impl(func(g *Generator, ctx context.Context, args Args) (Object, error) {
			v, done, err := g.SendValue(ctx, args.Get(0))
			if err != nil {
				return nil, err
			}
			if done {
				return nil, NewStopIteration(v)
			}
			return v, nil
		})
		m.Define("throw").Arg("typ").OptArg("val", "tb").Impl(func(g *Generator, ctx context.Context, args Args) (Object, error) {
			exc, err := throwArgs(ctx, args)
			if err != nil {
				return nil, err
			}
			v, done, err := g.ThrowValue(ctx, exc)
			if err != nil {
				return nil, err
			}
			if done {
				return nil, NewStopIteration(v)
			}
			return v, nil
		})
		m.Define("close").Impl(func(g *Generator, ctx context.Context, args Args) (Object, error) {
			return None, g.Close(ctx)
		})
		m.AttrRW("__name__", func(g *Generator) Object { return NewStr(g.name) }, func(g *Generator, v Object) error {
			s, ok := asStr(v)
			if !ok {
				return TypeErrorf("__name__ must be set to a string object")
			}
			g.name = s.value
			return nil
		})
		m.AttrRW("__qualname__", func(g *Generator) Object { return NewStr(g.qualname) }, func(g *Generator, v Object) error {
			s, ok := asStr(v)
			if !ok {
				return TypeErrorf("__qualname__ must be set to a string object")
			}
			g.qualname = s.value
			return nil
		})
		prefix := "gi_"
		if t == CoroutineType {
			prefix = "cr_"
		}
		m.Attr(prefix+"running", func(g *Generator) Object { return NewBool(g.running.Load()) })
		m.Attr(prefix+"frame", func(g *Generator) Object { return None })
		m.Attr(prefix+"code", func(g *Generator) Object {
			if g.code == nil {
				return None
			}
			return g.code
		})
	}
	gm := NewMethods(GeneratorType, exact[*Generator])
	gm.Define("__iter__").Impl(func(g *Generator, ctx context.Context, args Args) (Object, error) {
		return g, nil
	})
	gm.Define("__next__").Impl(func(g *Generator, ctx context.Context, args Args) (Object, error) {
		v, ok, err := g.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, NewException(StopIterationType)
		}
		return v, nil
	})
	cm := NewMethods(CoroutineType, exact[*Generator])
	cm.Define("__await__").Impl(func(g *Generator, ctx context.Context, args Args) (Object, error) {
		return &CoroutineWrapper{coro: g}, nil
	})
	wm := NewMethods(CoroutineWrapperType, exact[*CoroutineWrapper])
	wm.Define("__iter__").Impl(func(w *CoroutineWrapper, ctx context.Context, args Args) (Object, error) {
		return w, nil
	})
	wm.Define("__next__").Impl(func(w *CoroutineWrapper, ctx context.Context, args Args) (Object, error) {
		v, done, err := w.coro.SendValue(ctx, None)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, NewStopIteration(v)
		}
		return v, nil
	})
	wm.Define("send").Arg("value").Impl(func(w *CoroutineWrapper, ctx context.Context, args Args) (Object, error) {
		v, done, err := w.coro.SendValue(ctx, args.Get(0))
		if err != nil {
			return nil, err
		}
		if done {
			return nil, NewStopIteration(v)
		}
		return v, nil
	})
}
