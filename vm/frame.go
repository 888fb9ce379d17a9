package vm

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/object"
)

// frame is the activation record of one running code block.
type frame struct {
	code     *code
	fn       *object.Function
	globals  *object.Dict
	builtins *object.Dict

	// names is the locals mapping of class and module bodies. Optimized
	// function bodies keep their locals in slots instead.
	names *object.Dict

	// locals holds the combined locals, cells and free variables. Cell
	// and free slots hold *object.Cell once MAKE_CELL or COPY_FREE_VARS
	// has run.
	locals []object.Object
	stack  []object.Object

	ip     int
	lastIP int // first word of the instruction being executed
	line   int // last line reported to a line tracer

	// reraise marks an error produced by RERAISE, which keeps the
	// traceback it already has.
	reraise bool

	// gen is set for generator and coroutine frames.
	gen *genState
}

func newFrame(c *code, fn *object.Function, globals, builtins *object.Dict) *frame {
	return &frame{
		code:     c,
		fn:       fn,
		globals:  globals,
		builtins: builtins,
		locals:   make([]object.Object, len(c.LocalNames)),
		stack:    make([]object.Object, 0, c.MaxStack()+2),
		line:     -1,
	}
}

func (f *frame) push(o object.Object) {
	f.stack = append(f.stack, o)
}

func (f *frame) pop() object.Object {
	n := len(f.stack) - 1
	o := f.stack[n]
	f.stack[n] = nil
	f.stack = f.stack[:n]
	return o
}

// popN removes the top n entries and returns them bottom first. The
// returned slice is a copy.
func (f *frame) popN(n int) []object.Object {
	start := len(f.stack) - n
	out := make([]object.Object, n)
	copy(out, f.stack[start:])
	clear(f.stack[start:])
	f.stack = f.stack[:start]
	return out
}

func (f *frame) top() object.Object {
	return f.stack[len(f.stack)-1]
}

// peek returns the entry n slots below the top; peek(1) is the top.
func (f *frame) peek(n int) object.Object {
	return f.stack[len(f.stack)-n]
}

func (f *frame) set(n int, o object.Object) {
	f.stack[len(f.stack)-n] = o
}

func (f *frame) truncate(depth int) {
	if depth > len(f.stack) {
		return
	}
	clear(f.stack[depth:])
	f.stack = f.stack[:depth]
}

func (f *frame) fetch() int {
	v := int(f.code.Instructions[f.ip])
	f.ip++
	return v
}

func (f *frame) qualname() string {
	return f.code.QualName()
}

func (f *frame) location() bytecode.SourceLocation {
	return f.code.LocationAt(f.lastIP)
}

// cell returns the cell stored in slot i.
func (f *frame) cell(i int) (*object.Cell, error) {
	c, ok := f.locals[i].(*object.Cell)
	if !ok {
		return nil, object.SystemErrorf("no cell in slot %d of %s", i, f.qualname())
	}
	return c, nil
}

// Globals implements object.Frame.
func (f *frame) Globals() *object.Dict {
	return f.globals
}

// Locals implements object.Frame. Optimized frames return a snapshot.
func (f *frame) Locals(ctx context.Context) (object.Object, error) {
	if f.names != nil {
		return f.names, nil
	}
	d := object.NewDict()
	for i, v := range f.locals {
		if c, ok := v.(*object.Cell); ok && f.code.Kinds[i]&(bytecode.LocalCell|bytecode.LocalFree) != 0 {
			v, ok = c.Get()
			if !ok {
				continue
			}
		}
		if v == nil {
			continue
		}
		d.SetStr(f.code.LocalNames[i], v)
	}
	return d, nil
}

// SuperArgs implements object.Frame for zero-argument super().
func (f *frame) SuperArgs() (*object.Type, object.Object, error) {
	if f.code.sig.Positional == 0 && !f.code.sig.VarArgs || len(f.locals) == 0 {
		return nil, nil, object.RuntimeErrorf("super(): no arguments")
	}
	first := f.locals[0]
	if c, ok := first.(*object.Cell); ok && f.code.Kinds[0]&bytecode.LocalCell != 0 {
		first, _ = c.Get()
	}
	if first == nil {
		return nil, nil, object.RuntimeErrorf("super(): arg[0] deleted")
	}
	for i := f.code.firstFree; i < len(f.locals); i++ {
		if f.code.LocalNames[i] != "__class__" {
			continue
		}
		c, ok := f.locals[i].(*object.Cell)
		if !ok {
			break
		}
		v, ok := c.Get()
		if !ok {
			return nil, nil, object.RuntimeErrorf("super(): empty __class__ cell")
		}
		t, ok := v.(*object.Type)
		if !ok {
			return nil, nil, object.RuntimeErrorf("super(): __class__ is not a type (%s)", v.Type().Name())
		}
		return t, first, nil
	}
	return nil, nil, object.RuntimeErrorf("super(): __class__ cell not found")
}

var _ object.Frame = (*frame)(nil)
