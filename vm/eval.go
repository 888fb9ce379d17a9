package vm

import (
	"context"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
)

// eval runs f from its current instruction until it returns, yields or
// raises. Raised errors leave f.lastIP at the failing instruction so the
// caller can find its handler.
func (th *thread) eval(ctx context.Context, f *frame) (result object.Object, yielded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = object.SystemErrorf("internal error in %s at %d: %v", f.qualname(), f.lastIP, r)
		}
	}()
	c := f.code
	instrs := c.Instructions
	vm := th.vm
	checkInterval := vm.contextCheckInterval
	traced := vm.tracer != nil && vm.traceConfig.Instructions != NoInstructions

	for f.ip < len(instrs) {
		f.lastIP = f.ip
		opcode := instrs[f.ip]
		f.ip++
		th.steps++
		if checkInterval > 0 && th.steps%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
		}
		if traced {
			if err := th.traceInstruction(f, opcode); err != nil {
				return nil, false, err
			}
		}

		switch opcode {
		case op.Nop:
		case op.PopTop:
			f.pop()
		case op.PushNull:
			f.push(nil)
		case op.Copy:
			f.push(f.peek(f.fetch()))
		case op.Swap:
			n := f.fetch()
			top := f.top()
			f.set(1, f.peek(n))
			f.set(n, top)
		case op.ReturnValue:
			return f.pop(), false, nil
		case op.ReturnConst:
			return c.Constants[f.fetch()], false, nil

		case op.Call:
			argc := f.fetch()
			args := f.popN(argc)
			res, err := th.call(ctx, f, args, nil)
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.CallKw:
			argc := f.fetch()
			kwnames := c.kwnames[f.fetch()]
			args := f.popN(argc)
			res, err := th.call(ctx, f, args, kwnames)
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.CallFunction:
			res, err := callFunctionEx(ctx, f, f.fetch())
			if err != nil {
				return nil, false, err
			}
			f.push(res)

		case op.Jump:
			f.ip = f.fetch()
		case op.PopJumpIfFalse, op.PopJumpIfTrue:
			target := f.fetch()
			truth, err := object.Truthy(ctx, f.pop())
			if err != nil {
				return nil, false, err
			}
			if truth == (opcode == op.PopJumpIfTrue) {
				f.ip = target
			}
		case op.PopJumpIfNone:
			target := f.fetch()
			if object.IsNone(f.pop()) {
				f.ip = target
			}
		case op.PopJumpIfNotNone:
			target := f.fetch()
			if !object.IsNone(f.pop()) {
				f.ip = target
			}
		case op.JumpIfFalseOrPop, op.JumpIfTrueOrPop:
			target := f.fetch()
			truth, err := object.Truthy(ctx, f.top())
			if err != nil {
				return nil, false, err
			}
			if truth == (opcode == op.JumpIfTrueOrPop) {
				f.ip = target
			} else {
				f.pop()
			}

		case op.LoadConst:
			f.push(c.Constants[f.fetch()])
		case op.LoadFast, op.LoadFastChecked:
			i := f.fetch()
			v := f.locals[i]
			if v == nil {
				return nil, false, unboundLocal(c, i)
			}
			f.push(v)
		case op.LoadFastAndClear:
			i := f.fetch()
			f.push(f.locals[i])
			f.locals[i] = nil
		case op.LoadDeref:
			v, err := loadDeref(f, f.fetch())
			if err != nil {
				return nil, false, err
			}
			f.push(v)
		case op.LoadClassDeref:
			i := f.fetch()
			if f.names != nil {
				if v := f.names.GetStr(c.LocalNames[i]); v != nil {
					f.push(v)
					break
				}
			}
			v, err := loadDeref(f, i)
			if err != nil {
				return nil, false, err
			}
			f.push(v)
		case op.LoadFromDictOrDeref:
			i := f.fetch()
			v, found, err := lookupMapping(ctx, f.pop(), c.LocalNames[i])
			if err != nil {
				return nil, false, err
			}
			if !found {
				if v, err = loadDeref(f, i); err != nil {
					return nil, false, err
				}
			}
			f.push(v)
		case op.LoadClosure:
			f.push(f.locals[f.fetch()])
		case op.LoadGlobal:
			name := c.Names[f.fetch()]
			withNull := f.fetch() == 1
			v := f.globals.GetStr(name)
			if v == nil {
				v = f.builtins.GetStr(name)
			}
			if v == nil {
				return nil, false, object.NameErrorf("name '%s' is not defined", name)
			}
			if withNull {
				f.push(nil)
			}
			f.push(v)
		case op.LoadName:
			v, err := loadName(ctx, f, c.Names[f.fetch()])
			if err != nil {
				return nil, false, err
			}
			f.push(v)
		case op.LoadLocals:
			if f.names == nil {
				return nil, false, object.SystemErrorf("no locals found")
			}
			f.push(f.names)
		case op.LoadAttr:
			v, err := object.GetAttr(ctx, f.pop(), c.Names[f.fetch()])
			if err != nil {
				return nil, false, err
			}
			f.push(v)
		case op.LoadMethod:
			obj := f.pop()
			fn, unbound, err := object.LookupMethod(ctx, obj, c.Names[f.fetch()])
			if err != nil {
				return nil, false, err
			}
			if unbound {
				f.push(fn)
				f.push(obj)
			} else {
				f.push(nil)
				f.push(fn)
			}
		case op.LoadSuperAttr:
			name := c.Names[f.fetch()]
			flags := f.fetch()
			v, err := loadSuperAttr(ctx, f, name, flags)
			if err != nil {
				return nil, false, err
			}
			if flags&1 != 0 {
				f.push(nil)
			}
			f.push(v)
		case op.LoadBuildClass:
			v := f.builtins.GetStr("__build_class__")
			if v == nil {
				return nil, false, object.NameErrorf("__build_class__ not found")
			}
			f.push(v)
		case op.LoadAssertionError:
			f.push(object.AssertionErrorType)

		case op.StoreFast:
			f.locals[f.fetch()] = f.pop()
		case op.StoreDeref:
			cell, err := f.cell(f.fetch())
			if err != nil {
				return nil, false, err
			}
			cell.Set(f.pop())
		case op.StoreGlobal:
			f.globals.SetStr(c.Names[f.fetch()], f.pop())
		case op.StoreName:
			name := c.Names[f.fetch()]
			if f.names == nil {
				return nil, false, object.SystemErrorf("no locals found when storing '%s'", name)
			}
			f.names.SetStr(name, f.pop())
		case op.StoreAttr:
			name := c.Names[f.fetch()]
			obj := f.pop()
			if err := object.SetAttr(ctx, obj, name, f.pop()); err != nil {
				return nil, false, err
			}
		case op.StoreSubscr:
			key := f.pop()
			container := f.pop()
			if err := object.SetItem(ctx, container, key, f.pop()); err != nil {
				return nil, false, err
			}
		case op.StoreSlice:
			stop := f.pop()
			start := f.pop()
			container := f.pop()
			if err := object.SetItem(ctx, container, object.NewSlice(start, stop, object.None), f.pop()); err != nil {
				return nil, false, err
			}
		case op.DeleteFast:
			i := f.fetch()
			if f.locals[i] == nil {
				return nil, false, unboundLocal(c, i)
			}
			f.locals[i] = nil
		case op.DeleteDeref:
			i := f.fetch()
			cell, err := f.cell(i)
			if err != nil {
				return nil, false, err
			}
			if _, ok := cell.Get(); !ok {
				return nil, false, unboundDeref(c, i)
			}
			cell.Set(nil)
		case op.DeleteGlobal:
			name := c.Names[f.fetch()]
			if !f.globals.DelStr(name) {
				return nil, false, object.NameErrorf("name '%s' is not defined", name)
			}
		case op.DeleteName:
			name := c.Names[f.fetch()]
			if f.names == nil || !f.names.DelStr(name) {
				return nil, false, object.NameErrorf("name '%s' is not defined", name)
			}
		case op.DeleteAttr:
			if err := object.DelAttr(ctx, f.pop(), c.Names[f.fetch()]); err != nil {
				return nil, false, err
			}
		case op.DeleteSubscr:
			key := f.pop()
			if err := object.DelItem(ctx, f.pop(), key); err != nil {
				return nil, false, err
			}
		case op.SetupAnnotations:
			if f.names == nil {
				return nil, false, object.SystemErrorf("no locals found when setting up annotations")
			}
			if f.names.GetStr("__annotations__") == nil {
				f.names.SetStr("__annotations__", object.NewDict())
			}

		case op.MakeCell:
			i := f.fetch()
			f.locals[i] = object.NewCell(f.locals[i])
		case op.CopyFreeVars:
			n := f.fetch()
			if f.fn == nil {
				return nil, false, object.SystemErrorf("%s has free variables but no closure", f.qualname())
			}
			closure := f.fn.Closure()
			if len(closure) < n {
				return nil, false, object.SystemErrorf("%s expects %d closure cells, got %d", f.qualname(), n, len(closure))
			}
			offset := len(f.locals) - n
			for j := 0; j < n; j++ {
				f.locals[offset+j] = closure[j]
			}
		case op.MakeFunction:
			fn, err := makeFunction(f, f.fetch())
			if err != nil {
				return nil, false, err
			}
			f.push(fn)

		case op.BinaryOp:
			b := f.pop()
			res, err := binaryOp(ctx, f.fetch(), f.pop(), b)
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.CompareOp:
			b := f.pop()
			res, err := object.RichCompare(ctx, object.CompareOp(f.fetch()), f.pop(), b)
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.IsOp:
			b := f.pop()
			a := f.pop()
			f.push(object.NewBool((a == b) != (f.fetch() == 1)))
		case op.ContainsOp:
			container := f.pop()
			found, err := object.Contains(ctx, container, f.pop())
			if err != nil {
				return nil, false, err
			}
			f.push(object.NewBool(found != (f.fetch() == 1)))
		case op.UnaryNegative, op.UnaryPositive, op.UnaryInvert:
			var res object.Object
			var err error
			switch opcode {
			case op.UnaryNegative:
				res, err = object.Negate(ctx, f.pop())
			case op.UnaryPositive:
				res, err = object.Positive(ctx, f.pop())
			default:
				res, err = object.Invert(ctx, f.pop())
			}
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.UnaryNot:
			truth, err := object.Truthy(ctx, f.pop())
			if err != nil {
				return nil, false, err
			}
			f.push(object.NewBool(!truth))
		case op.BinarySubscr:
			key := f.pop()
			res, err := object.GetItem(ctx, f.pop(), key)
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.BinarySlice:
			stop := f.pop()
			start := f.pop()
			res, err := object.GetItem(ctx, f.pop(), object.NewSlice(start, stop, object.None))
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.FormatValue:
			res, err := formatValue(ctx, f, f.fetch())
			if err != nil {
				return nil, false, err
			}
			f.push(res)

		case op.AddInt, op.SubtractInt, op.MultiplyInt, op.FloorDivInt, op.ModuloInt,
			op.AddFloat, op.SubtractFloat, op.MultiplyFloat, op.TrueDivFloat, op.AddStr:
			b := f.pop()
			a := f.pop()
			arg := f.fetch()
			res, ok, err := specializedBinary(opcode, a, b)
			if !ok {
				res, err = binaryOp(ctx, arg, a, b)
			}
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.CompareInt, op.CompareFloat:
			b := f.pop()
			a := f.pop()
			cmp := object.CompareOp(f.fetch())
			var res object.Object
			var err error
			if x, y, ok := intPair(a, b); ok && opcode == op.CompareInt {
				res = object.NewBool(object.IntCompare(cmp, x, y))
			} else if x, y, ok := floatPair(a, b); ok && opcode == op.CompareFloat {
				res = object.NewBool(object.FloatCompare(cmp, x.Value(), y.Value()))
			} else {
				res, err = object.RichCompare(ctx, cmp, a, b)
			}
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.BinarySubscrList, op.BinarySubscrTuple:
			key := f.pop()
			container := f.pop()
			var res object.Object
			var err error
			i, isInt := key.(*object.Int)
			switch seq := container.(type) {
			case *object.List:
				if isInt && opcode == op.BinarySubscrList {
					res, err = object.SeqIndex(seq.Items(), i, "list")
					break
				}
				res, err = object.GetItem(ctx, container, key)
			case *object.Tuple:
				if isInt && opcode == op.BinarySubscrTuple {
					res, err = object.SeqIndex(seq.Items(), i, "tuple")
					break
				}
				res, err = object.GetItem(ctx, container, key)
			default:
				res, err = object.GetItem(ctx, container, key)
			}
			if err != nil {
				return nil, false, err
			}
			f.push(res)

		case op.BuildTuple:
			f.push(object.NewTuple(f.popN(f.fetch())))
		case op.BuildList:
			f.push(object.NewList(f.popN(f.fetch())))
		case op.BuildSet:
			set := object.NewSet()
			for _, item := range f.popN(f.fetch()) {
				if err := set.Add(ctx, item); err != nil {
					return nil, false, err
				}
			}
			f.push(set)
		case op.BuildMap:
			items := f.popN(2 * f.fetch())
			d := object.NewDict()
			for i := 0; i < len(items); i += 2 {
				if err := d.Set(ctx, items[i], items[i+1]); err != nil {
					return nil, false, err
				}
			}
			f.push(d)
		case op.BuildConstKeyMap:
			n := f.fetch()
			keys, ok := f.pop().(*object.Tuple)
			if !ok || keys.Len() != n {
				return nil, false, object.SystemErrorf("bad BUILD_CONST_KEY_MAP keys argument")
			}
			values := f.popN(n)
			d := object.NewDict()
			for i, k := range keys.Items() {
				if err := d.Set(ctx, k, values[i]); err != nil {
					return nil, false, err
				}
			}
			f.push(d)
		case op.BuildString:
			parts := f.popN(f.fetch())
			var total int
			for _, p := range parts {
				total += len(p.(*object.Str).Value())
			}
			buf := make([]byte, 0, total)
			for _, p := range parts {
				buf = append(buf, p.(*object.Str).Value()...)
			}
			f.push(object.NewStr(string(buf)))
		case op.BuildSlice:
			var step object.Object = object.None
			if f.fetch() == 3 {
				step = f.pop()
			}
			stop := f.pop()
			start := f.pop()
			f.push(object.NewSlice(start, stop, step))
		case op.ListAppend:
			i := f.fetch()
			v := f.pop()
			f.peek(i).(*object.List).Append(v)
		case op.SetAdd:
			i := f.fetch()
			v := f.pop()
			if err := f.peek(i).(*object.Set).Add(ctx, v); err != nil {
				return nil, false, err
			}
		case op.MapAdd:
			i := f.fetch()
			value := f.pop()
			key := f.pop()
			if err := f.peek(i).(*object.Dict).Set(ctx, key, value); err != nil {
				return nil, false, err
			}
		case op.ListExtend:
			i := f.fetch()
			iterable := f.pop()
			items, err := starItems(ctx, iterable)
			if err != nil {
				return nil, false, err
			}
			list := f.peek(i).(*object.List)
			list.SetItems(append(list.Items(), items...))
		case op.SetUpdate:
			i := f.fetch()
			items, err := object.ToSlice(ctx, f.pop())
			if err != nil {
				return nil, false, err
			}
			set := f.peek(i).(*object.Set)
			for _, item := range items {
				if err := set.Add(ctx, item); err != nil {
					return nil, false, err
				}
			}
		case op.DictUpdate:
			i := f.fetch()
			update := f.pop()
			if err := f.peek(i).(*object.Dict).Update(ctx, update); err != nil {
				if object.IsExceptionOf(err, object.AttributeErrorType) || object.IsExceptionOf(err, object.TypeErrorType) {
					return nil, false, object.TypeErrorf("'%s' object is not a mapping", update.Type().Name())
				}
				return nil, false, err
			}
		case op.DictMerge:
			i := f.fetch()
			update := f.pop()
			if err := dictMerge(ctx, f.peek(i).(*object.Dict), update, f.peek(i+2)); err != nil {
				return nil, false, err
			}
		case op.ListToTuple:
			list := f.pop().(*object.List)
			items := make([]object.Object, list.Len())
			copy(items, list.Items())
			f.push(object.NewTuple(items))
		case op.UnpackSequence:
			if err := unpackSequence(ctx, f, f.fetch()); err != nil {
				return nil, false, err
			}
		case op.UnpackEx:
			if err := unpackEx(ctx, f, f.fetch()); err != nil {
				return nil, false, err
			}
		case op.GetLen:
			n, err := object.Len(ctx, f.top())
			if err != nil {
				return nil, false, err
			}
			f.push(object.NewInt(int64(n)))

		case op.GetIter:
			it, err := object.Iter(ctx, f.pop())
			if err != nil {
				return nil, false, err
			}
			f.push(it)
		case op.ForIter:
			target := f.fetch()
			v, ok, err := object.Next(ctx, f.top())
			if err != nil {
				return nil, false, err
			}
			if !ok {
				f.pop()
				f.ip = target
				break
			}
			f.push(v)
		case op.GetYieldFromIter:
			v := f.top()
			if g, ok := v.(*object.Generator); ok {
				if g.Type() == object.CoroutineType && !c.Has(bytecode.FlagCoroutine) {
					return nil, false, object.TypeErrorf("cannot 'yield from' a coroutine object in a non-coroutine generator")
				}
				break
			}
			it, err := object.Iter(ctx, v)
			if err != nil {
				return nil, false, err
			}
			f.set(1, it)
		case op.GetAwaitable:
			f.fetch()
			it, err := awaitable(ctx, f.pop())
			if err != nil {
				return nil, false, err
			}
			f.push(it)

		case op.ReturnGenerator:
			f.push(object.None)
		case op.Yield:
			f.fetch()
			delegating := f.fetch() == 1
			if f.gen == nil {
				return nil, false, object.SystemErrorf("yield outside a generator frame")
			}
			f.gen.delegating = delegating
			return f.pop(), true, nil
		case op.Send:
			target := f.fetch()
			v := f.pop()
			res, done, err := send(ctx, f.top(), v)
			if err != nil {
				return nil, false, err
			}
			f.push(res)
			if done {
				f.ip = target
			}
		case op.EndSend:
			v := f.pop()
			f.pop()
			f.push(v)
		case op.CleanupThrow:
			exc, ok := f.pop().(*object.Exception)
			if !ok {
				return nil, false, object.SystemErrorf("CLEANUP_THROW without an exception")
			}
			if !exc.Type().IsSubtype(object.StopIterationType) {
				f.reraise = true
				return nil, false, exc
			}
			f.pop()
			f.pop()
			if c.Dialect() != "3.11" {
				f.push(object.None)
			}
			f.push(object.StopIterationValue(exc))

		case op.PushExcInfo:
			v := f.pop()
			prev := th.exc.value
			if prev == nil {
				prev = object.None
			}
			f.push(prev)
			th.exc.value = v
			f.push(v)
		case op.PopExcept:
			th.exc.value = f.pop()
		case op.CheckExcMatch:
			match, err := checkExcMatch(f.pop(), f.top())
			if err != nil {
				return nil, false, err
			}
			f.push(object.NewBool(match))
		case op.Reraise:
			f.fetch()
			exc, ok := f.pop().(*object.Exception)
			if !ok {
				return nil, false, object.SystemErrorf("RERAISE without an exception")
			}
			f.reraise = true
			return nil, false, exc
		case op.Raise:
			return nil, false, th.raise(ctx, f, f.fetch())
		case op.WithExceptStart:
			val := f.top()
			exitFn := f.peek(4)
			res, err := object.Call(ctx, exitFn, []object.Object{val.Type(), val, object.None}, nil)
			if err != nil {
				return nil, false, err
			}
			f.push(res)
		case op.BeforeWith:
			exitFn, res, err := enterContext(ctx, f.pop())
			if err != nil {
				return nil, false, err
			}
			f.push(exitFn)
			f.push(res)
		case op.StopIterationErr:
			f.push(stopIterationError(c, f.pop()))

		case op.ImportName:
			name := c.Names[f.fetch()]
			fromlist := f.pop()
			level := f.pop()
			m, err := th.importName(ctx, f, name, fromlist, level)
			if err != nil {
				return nil, false, err
			}
			f.push(m)
		case op.ImportFrom:
			name := c.Names[f.fetch()]
			v, err := importFrom(ctx, f.top(), name)
			if err != nil {
				return nil, false, err
			}
			f.push(v)

		default:
			return nil, false, object.SystemErrorf("unknown opcode %d (%s) at %d", opcode, op.GetInfo(opcode).Name, f.lastIP)
		}
	}
	return nil, false, object.SystemErrorf("%s ran past its last instruction", f.qualname())
}

// call performs CALL: below the arguments sit either a method and its
// receiver, or an empty slot and the callable.
func (th *thread) call(ctx context.Context, f *frame, args []object.Object, kwnames []string) (object.Object, error) {
	second := f.pop()
	first := f.pop()
	if first == nil {
		return object.Call(ctx, second, args, kwnames)
	}
	full := make([]object.Object, 0, len(args)+1)
	full = append(full, second)
	full = append(full, args...)
	return object.Call(ctx, first, full, kwnames)
}

func unboundLocal(c *code, i int) error {
	return object.UnboundLocalErrorf("cannot access local variable '%s' where it is not associated with a value", c.LocalNames[i])
}

func unboundDeref(c *code, i int) error {
	if c.isFree(i) {
		return object.NameErrorf("cannot access free variable '%s' where it is not associated with a value in enclosing scope", c.LocalNames[i])
	}
	return unboundLocal(c, i)
}

func loadDeref(f *frame, i int) (object.Object, error) {
	cell, err := f.cell(i)
	if err != nil {
		return nil, err
	}
	v, ok := cell.Get()
	if !ok {
		return nil, unboundDeref(f.code, i)
	}
	return v, nil
}

// lookupMapping reads name from a locals mapping, which is usually a dict
// but may be any object supporting subscription.
func lookupMapping(ctx context.Context, m object.Object, name string) (object.Object, bool, error) {
	if d, ok := m.(*object.Dict); ok {
		v := d.GetStr(name)
		return v, v != nil, nil
	}
	v, err := object.GetItem(ctx, m, object.NewStr(name))
	if err != nil {
		if object.IsExceptionOf(err, object.KeyErrorType) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

func loadName(ctx context.Context, f *frame, name string) (object.Object, error) {
	if f.names != nil {
		if v := f.names.GetStr(name); v != nil {
			return v, nil
		}
	}
	if v := f.globals.GetStr(name); v != nil {
		return v, nil
	}
	if v := f.builtins.GetStr(name); v != nil {
		return v, nil
	}
	return nil, object.NameErrorf("name '%s' is not defined", name)
}

func loadSuperAttr(ctx context.Context, f *frame, name string, flags int) (object.Object, error) {
	self := f.pop()
	class := f.pop()
	superFn := f.pop()
	var sup object.Object
	if t, ok := class.(*object.Type); ok && superFn == object.Object(object.SuperType) {
		s, err := object.NewSuper(t, self)
		if err != nil {
			return nil, err
		}
		sup = s
	} else {
		var args []object.Object
		if flags&2 != 0 {
			args = []object.Object{class, self}
		}
		s, err := object.Call(ctx, superFn, args, nil)
		if err != nil {
			return nil, err
		}
		sup = s
	}
	return object.GetAttr(ctx, sup, name)
}

func makeFunction(f *frame, flags int) (object.Object, error) {
	codeObj, ok := f.pop().(*object.Code)
	if !ok {
		return nil, object.SystemErrorf("MAKE_FUNCTION expects a code object")
	}
	params := object.FunctionParams{Code: codeObj.Unwrap(), Globals: f.globals}
	if flags&0x08 != 0 {
		t, ok := f.pop().(*object.Tuple)
		if !ok {
			return nil, object.SystemErrorf("MAKE_FUNCTION closure must be a tuple")
		}
		for _, item := range t.Items() {
			cell, ok := item.(*object.Cell)
			if !ok {
				return nil, object.SystemErrorf("MAKE_FUNCTION closure holds a %s, not a cell", item.Type().Name())
			}
			params.Closure = append(params.Closure, cell)
		}
	}
	if flags&0x04 != 0 {
		switch a := f.pop().(type) {
		case *object.Dict:
			params.Annotations = a
		case *object.Tuple:
			d := object.NewDict()
			items := a.Items()
			for i := 0; i+1 < len(items); i += 2 {
				if k, ok := items[i].(*object.Str); ok {
					d.SetStr(k.Value(), items[i+1])
				}
			}
			params.Annotations = d
		}
	}
	if flags&0x02 != 0 {
		if d, ok := f.pop().(*object.Dict); ok {
			params.KwDefaults = d
		}
	}
	if flags&0x01 != 0 {
		if t, ok := f.pop().(*object.Tuple); ok {
			params.Defaults = t.Items()
		}
	}
	return object.NewFunction(params), nil
}

func binaryOp(ctx context.Context, arg int, a, b object.Object) (object.Object, error) {
	if arg >= op.InplaceFlag {
		return object.InplaceOp(ctx, op.BinaryOpType(arg-op.InplaceFlag), a, b)
	}
	return object.BinaryOp(ctx, op.BinaryOpType(arg), a, b)
}

func intPair(a, b object.Object) (*object.Int, *object.Int, bool) {
	x, ok := a.(*object.Int)
	if !ok {
		return nil, nil, false
	}
	y, ok := b.(*object.Int)
	return x, y, ok
}

func floatPair(a, b object.Object) (*object.Float, *object.Float, bool) {
	x, ok := a.(*object.Float)
	if !ok {
		return nil, nil, false
	}
	y, ok := b.(*object.Float)
	return x, y, ok
}

// specializedBinary runs the fast path of a guarded specialization. ok is
// false when the operands fail the guard.
func specializedBinary(opcode op.Code, a, b object.Object) (object.Object, bool, error) {
	switch opcode {
	case op.AddInt, op.SubtractInt, op.MultiplyInt, op.FloorDivInt, op.ModuloInt:
		x, y, ok := intPair(a, b)
		if !ok {
			return nil, false, nil
		}
		switch opcode {
		case op.AddInt:
			return object.IntAdd(x, y), true, nil
		case op.SubtractInt:
			return object.IntSub(x, y), true, nil
		case op.MultiplyInt:
			return object.IntMul(x, y), true, nil
		case op.FloorDivInt:
			res, err := object.IntFloorDiv(x, y)
			return res, true, err
		default:
			res, err := object.IntMod(x, y)
			return res, true, err
		}
	case op.AddFloat, op.SubtractFloat, op.MultiplyFloat, op.TrueDivFloat:
		x, y, ok := floatPair(a, b)
		if !ok {
			return nil, false, nil
		}
		switch opcode {
		case op.AddFloat:
			return object.NewFloat(x.Value() + y.Value()), true, nil
		case op.SubtractFloat:
			return object.NewFloat(x.Value() - y.Value()), true, nil
		case op.MultiplyFloat:
			return object.NewFloat(x.Value() * y.Value()), true, nil
		default:
			res, err := object.FloatTrueDiv(x.Value(), y.Value())
			return res, true, err
		}
	case op.AddStr:
		x, ok := a.(*object.Str)
		if !ok {
			return nil, false, nil
		}
		y, ok := b.(*object.Str)
		if !ok {
			return nil, false, nil
		}
		return object.NewStr(x.Value() + y.Value()), true, nil
	}
	return nil, false, nil
}

func formatValue(ctx context.Context, f *frame, flags int) (object.Object, error) {
	spec := ""
	if flags&0x04 != 0 {
		s, ok := f.pop().(*object.Str)
		if !ok {
			return nil, object.SystemErrorf("FORMAT_VALUE spec must be a str")
		}
		spec = s.Value()
	}
	v := f.pop()
	var conv string
	var err error
	switch flags & 0x03 {
	case 1:
		conv, err = object.StrOf(ctx, v)
	case 2:
		conv, err = object.Repr(ctx, v)
	case 3:
		conv, err = object.Ascii(ctx, v)
	default:
		if s, ok := v.(*object.Str); ok && spec == "" {
			return s, nil
		}
		out, err := object.Format(ctx, v, spec)
		if err != nil {
			return nil, err
		}
		return object.NewStr(out), nil
	}
	if err != nil {
		return nil, err
	}
	if spec == "" {
		return object.NewStr(conv), nil
	}
	out, err := object.Format(ctx, object.NewStr(conv), spec)
	if err != nil {
		return nil, err
	}
	return object.NewStr(out), nil
}

func callFunctionEx(ctx context.Context, f *frame, flags int) (object.Object, error) {
	var kwargs object.Object
	if flags&1 != 0 {
		kwargs = f.pop()
	}
	callargs := f.pop()
	fn := f.pop()
	var self object.Object
	if first := f.pop(); first != nil {
		self, fn = fn, first
	}
	args, err := starArgs(ctx, fn, callargs)
	if err != nil {
		return nil, err
	}
	if self != nil {
		args = append([]object.Object{self}, args...)
	}
	if kwargs == nil {
		return object.Call(ctx, fn, args, nil)
	}
	kw, ok := kwargs.(*object.Dict)
	if !ok {
		kw = object.NewDict()
		if err := kw.Update(ctx, kwargs); err != nil {
			return nil, object.TypeErrorf("%s() argument after ** must be a mapping, not %s",
				object.CallableName(fn), kwargs.Type().Name())
		}
	}
	return object.CallKw(ctx, fn, args, kw)
}

func starArgs(ctx context.Context, fn, callargs object.Object) ([]object.Object, error) {
	if t, ok := callargs.(*object.Tuple); ok {
		out := make([]object.Object, t.Len())
		copy(out, t.Items())
		return out, nil
	}
	items, err := object.ToSlice(ctx, callargs)
	if err != nil {
		if object.IsExceptionOf(err, object.TypeErrorType) {
			if _, ierr := object.Iter(ctx, callargs); ierr != nil {
				return nil, object.TypeErrorf("%s() argument after * must be an iterable, not %s",
					object.CallableName(fn), callargs.Type().Name())
			}
		}
		return nil, err
	}
	return items, nil
}

func starItems(ctx context.Context, iterable object.Object) ([]object.Object, error) {
	items, err := object.ToSlice(ctx, iterable)
	if err != nil && object.IsExceptionOf(err, object.TypeErrorType) {
		if _, ierr := object.Iter(ctx, iterable); ierr != nil {
			return nil, object.TypeErrorf("Value after * must be an iterable, not %s", iterable.Type().Name())
		}
	}
	return items, err
}

// dictMerge adds update's items to d for a ** argument, rejecting repeated
// keyword names.
func dictMerge(ctx context.Context, d *object.Dict, update, fn object.Object) error {
	src, ok := update.(*object.Dict)
	if !ok {
		src = object.NewDict()
		if err := src.Update(ctx, update); err != nil {
			if object.IsExceptionOf(err, object.AttributeErrorType) || object.IsExceptionOf(err, object.TypeErrorType) {
				return object.TypeErrorf("%s() argument after ** must be a mapping, not %s",
					object.CallableName(fn), update.Type().Name())
			}
			return err
		}
	}
	for _, kv := range src.Items() {
		key, ok := kv[0].(*object.Str)
		if !ok {
			return object.TypeErrorf("keywords must be strings")
		}
		if d.GetStr(key.Value()) != nil {
			return object.TypeErrorf("%s() got multiple values for keyword argument '%s'",
				object.CallableName(fn), key.Value())
		}
		d.SetStr(key.Value(), kv[1])
	}
	return nil
}

func sequenceItems(ctx context.Context, v object.Object) ([]object.Object, error) {
	switch s := v.(type) {
	case *object.Tuple:
		return s.Items(), nil
	case *object.List:
		return s.Items(), nil
	}
	items, err := object.ToSlice(ctx, v)
	if err != nil && object.IsExceptionOf(err, object.TypeErrorType) {
		if _, ierr := object.Iter(ctx, v); ierr != nil {
			return nil, object.TypeErrorf("cannot unpack non-iterable %s object", v.Type().Name())
		}
	}
	return items, err
}

func unpackSequence(ctx context.Context, f *frame, n int) error {
	items, err := sequenceItems(ctx, f.pop())
	if err != nil {
		return err
	}
	if len(items) < n {
		return object.ValueErrorf("not enough values to unpack (expected %d, got %d)", n, len(items))
	}
	if len(items) > n {
		return object.ValueErrorf("too many values to unpack (expected %d)", n)
	}
	for i := n - 1; i >= 0; i-- {
		f.push(items[i])
	}
	return nil
}

func unpackEx(ctx context.Context, f *frame, arg int) error {
	before := arg & 0xff
	after := arg >> 8
	items, err := sequenceItems(ctx, f.pop())
	if err != nil {
		return err
	}
	if len(items) < before+after {
		return object.ValueErrorf("not enough values to unpack (expected at least %d, got %d)", before+after, len(items))
	}
	for i := len(items) - 1; i >= len(items)-after; i-- {
		f.push(items[i])
	}
	middle := make([]object.Object, len(items)-before-after)
	copy(middle, items[before:len(items)-after])
	f.push(object.NewList(middle))
	for i := before - 1; i >= 0; i-- {
		f.push(items[i])
	}
	return nil
}

func awaitable(ctx context.Context, v object.Object) (object.Object, error) {
	if g, ok := v.(*object.Generator); ok && g.Type() == object.CoroutineType {
		if g.Running() {
			return nil, object.RuntimeErrorf("coroutine is being awaited already")
		}
		return g, nil
	}
	res, found, err := object.CallSpecial(ctx, v, "__await__")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, object.TypeErrorf("object %s can't be used in 'await' expression", v.Type().Name())
	}
	if g, ok := res.(*object.Generator); ok && g.Type() == object.CoroutineType {
		return nil, object.TypeErrorf("__await__() returned a coroutine")
	}
	return res, nil
}

// send delivers v to the receiver of a yield from or await loop. done is
// true when the receiver finished; res is then its return value.
func send(ctx context.Context, receiver, v object.Object) (res object.Object, done bool, err error) {
	if g, ok := receiver.(*object.Generator); ok {
		return g.SendValue(ctx, v)
	}
	if object.IsNone(v) {
		if _, ok := receiver.(object.Iterator); ok {
			res, ok, err := object.Next(ctx, receiver)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return object.None, true, nil
			}
			return res, false, nil
		}
		res, err = object.CallMethod(ctx, receiver, "__next__")
	} else {
		res, err = object.CallMethod(ctx, receiver, "send", v)
	}
	if err != nil {
		if exc, ok := object.AsException(err); ok && exc.Type().IsSubtype(object.StopIterationType) {
			return object.StopIterationValue(exc), true, nil
		}
		return nil, false, err
	}
	return res, false, nil
}

func checkExcMatch(pattern, value object.Object) (bool, error) {
	var types []object.Object
	if t, ok := pattern.(*object.Tuple); ok {
		types = t.Items()
	} else {
		types = []object.Object{pattern}
	}
	for _, t := range types {
		typ, ok := t.(*object.Type)
		if !ok || !typ.IsSubtype(object.BaseExceptionType) {
			return false, object.TypeErrorf("catching classes that do not inherit from BaseException is not allowed")
		}
	}
	valueType := value.Type()
	for _, t := range types {
		if valueType.IsSubtype(t.(*object.Type)) {
			return true, nil
		}
	}
	return false, nil
}

// raise implements RAISE. With no operand it re-raises the exception
// being handled.
func (th *thread) raise(ctx context.Context, f *frame, argc int) error {
	var cause object.Object
	switch argc {
	case 0:
		exc := th.handled()
		if exc == nil {
			return object.RuntimeErrorf("No active exception to reraise")
		}
		f.reraise = true
		return exc
	case 2:
		cause = f.pop()
	}
	exc, err := object.MakeException(ctx, f.pop())
	if err != nil {
		return err
	}
	if argc == 2 {
		switch cv := cause.(type) {
		case *object.NoneType:
			exc.SetCause(object.None)
		case *object.Exception:
			exc.SetCause(cv)
		case *object.Type:
			if !cv.IsSubtype(object.BaseExceptionType) {
				return object.TypeErrorf("exception causes must derive from BaseException")
			}
			ce, err := object.MakeException(ctx, cv)
			if err != nil {
				return err
			}
			exc.SetCause(ce)
		default:
			return object.TypeErrorf("exception causes must derive from BaseException")
		}
	}
	return exc
}

func enterContext(ctx context.Context, mgr object.Object) (object.Object, object.Object, error) {
	t := mgr.Type()
	if t.Lookup("__enter__") == nil {
		return nil, nil, object.TypeErrorf("'%s' object does not support the context manager protocol", t.Name())
	}
	if t.Lookup("__exit__") == nil {
		return nil, nil, object.TypeErrorf("'%s' object does not support the context manager protocol (missed __exit__ method)", t.Name())
	}
	exitFn, err := object.GetAttr(ctx, mgr, "__exit__")
	if err != nil {
		return nil, nil, err
	}
	res, err := object.CallMethod(ctx, mgr, "__enter__")
	if err != nil {
		return nil, nil, err
	}
	return exitFn, res, nil
}

// stopIterationError converts a StopIteration escaping a generator body
// into RuntimeError.
func stopIterationError(c *code, v object.Object) object.Object {
	exc, ok := v.(*object.Exception)
	if !ok || !exc.Type().IsSubtype(object.StopIterationType) {
		return v
	}
	kind := "generator"
	if c.Has(bytecode.FlagCoroutine) {
		kind = "coroutine"
	}
	wrapped := object.RuntimeErrorf("%s raised StopIteration", kind)
	wrapped.SetCause(exc)
	wrapped.SetContext(exc)
	return wrapped
}

func (th *thread) importName(ctx context.Context, f *frame, name string, fromlist, level object.Object) (object.Object, error) {
	lvl := 0
	if i, ok := level.(*object.Int); ok {
		if n, ok := i.Int64(); ok {
			lvl = int(n)
		}
	}
	if lvl == 0 {
		if m, ok := th.vm.modules[name]; ok {
			return m, nil
		}
	}
	var names []string
	if t, ok := fromlist.(*object.Tuple); ok {
		for _, item := range t.Items() {
			if s, ok := item.(*object.Str); ok {
				names = append(names, s.Value())
			}
		}
	}
	return object.Import(ctx, name, f.globals, names, lvl)
}

func importFrom(ctx context.Context, module object.Object, name string) (object.Object, error) {
	v, err := object.GetAttr(ctx, module, name)
	if err == nil {
		return v, nil
	}
	if !object.IsExceptionOf(err, object.AttributeErrorType) {
		return nil, err
	}
	modName := "<unknown module name>"
	if n, nerr := object.GetAttr(ctx, module, "__name__"); nerr == nil {
		if s, ok := n.(*object.Str); ok {
			modName = s.Value()
		}
	}
	return nil, object.ImportErrorf("cannot import name '%s' from '%s'", name, modName)
}
