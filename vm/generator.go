package vm

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/object"
)

// genState is the suspended frame of a generator or coroutine.
type genState struct {
	vm      *VirtualMachine
	frame   *frame
	exc     excItem
	started bool

	// delegating is set while suspended at the yield of a yield from or
	// await loop; the sub-iterator is then on top of the frame's stack.
	delegating bool
}

// Resume implements object.GenState.
func (g *genState) Resume(ctx context.Context, send object.Object, throw *object.Exception) (object.Object, bool, error) {
	ctx, th := g.vm.enter(ctx)
	f := g.frame
	g.exc.prev = th.exc
	th.exc = &g.exc
	defer func() { th.exc = g.exc.prev }()

	var pending error
	switch {
	case !g.started:
		g.started = true
		if throw != nil {
			pending = throw
		}
	case throw != nil:
		value, suspended, err := g.throwIn(ctx, throw)
		if suspended {
			return value, false, nil
		}
		pending = err
	default:
		f.push(send)
	}
	if terr := th.traceEnter(f, 0, true); terr != nil {
		return nil, true, terr
	}
	result, yielded, err := th.execute(ctx, f, pending)
	if terr := th.traceExit(f, err); terr != nil {
		return nil, true, terr
	}
	if err != nil {
		return nil, true, err
	}
	return result, !yielded, nil
}

// throwIn delivers exc at the suspension point. While delegating, the
// sub-iterator gets the first chance to handle it; if it yields, the
// generator stays suspended and that value is produced.
func (g *genState) throwIn(ctx context.Context, exc *object.Exception) (object.Object, bool, error) {
	f := g.frame
	if !g.delegating {
		f.push(object.None)
		return nil, false, exc
	}
	receiver := f.top()
	if exc.Type().IsSubtype(object.GeneratorExitType) {
		f.push(object.None)
		if err := closeIter(ctx, receiver); err != nil {
			return nil, false, err
		}
		return nil, false, exc
	}
	var value object.Object
	var err error
	switch r := receiver.(type) {
	case *object.Generator:
		var done bool
		value, done, err = r.ThrowValue(ctx, exc)
		if err == nil && done {
			err = object.NewStopIteration(value)
		}
	default:
		var throwFn object.Object
		throwFn, err = object.GetAttr(ctx, receiver, "throw")
		if err != nil {
			if object.IsExceptionOf(err, object.AttributeErrorType) {
				err = exc
			}
			break
		}
		value, err = object.Call(ctx, throwFn, []object.Object{exc}, nil)
	}
	if err == nil {
		return value, true, nil
	}
	f.push(object.None)
	return nil, false, err
}

func closeIter(ctx context.Context, it object.Object) error {
	if g, ok := it.(*object.Generator); ok {
		return g.Close(ctx)
	}
	closeFn, err := object.GetAttr(ctx, it, "close")
	if err != nil {
		if object.IsExceptionOf(err, object.AttributeErrorType) {
			return nil
		}
		return err
	}
	_, err = object.Call(ctx, closeFn, nil, nil)
	return err
}

var _ object.GenState = (*genState)(nil)
