package codegen

import (
	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/cfg"
	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/infer"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
)

type translator struct {
	unit  *unit.Unit
	graph *cfg.Graph
	types *infer.Result
	code  *code

	// kwnames is the constant index set by a pending KW_NAMES, or -1.
	kwnames int
}

func (t *translator) run() error {
	t.kwnames = -1
	for i, instr := range t.unit.Instructions {
		t.code.pos[i] = len(t.code.instructions)
		if !t.graph.Reachable(i) {
			continue
		}
		t.code.loc = bytecode.SourceLocation{Line: instr.Line, Offset: instr.Offset}
		if err := t.translate(i, instr); err != nil {
			return err
		}
	}
	return t.code.failure
}

func unmodeled(instr decode.Instruction) error {
	return errz.At(errz.ErrUnmodeled, instr.Offset, "no code generation rule for %s", instr.Op)
}

func (t *translator) specialized(i int) (op.Code, bool) {
	if t.types == nil {
		return 0, false
	}
	return t.types.Specialize(i)
}

var popJumps = map[pyop.Opcode]op.Code{
	pyop.PopJumpIfFalse:           op.PopJumpIfFalse,
	pyop.PopJumpForwardIfFalse:    op.PopJumpIfFalse,
	pyop.PopJumpBackwardIfFalse:   op.PopJumpIfFalse,
	pyop.PopJumpIfTrue:            op.PopJumpIfTrue,
	pyop.PopJumpForwardIfTrue:     op.PopJumpIfTrue,
	pyop.PopJumpBackwardIfTrue:    op.PopJumpIfTrue,
	pyop.PopJumpIfNone:            op.PopJumpIfNone,
	pyop.PopJumpForwardIfNone:     op.PopJumpIfNone,
	pyop.PopJumpBackwardIfNone:    op.PopJumpIfNone,
	pyop.PopJumpIfNotNone:         op.PopJumpIfNotNone,
	pyop.PopJumpForwardIfNotNone:  op.PopJumpIfNotNone,
	pyop.PopJumpBackwardIfNotNone: op.PopJumpIfNotNone,
	pyop.JumpIfFalseOrPop:         op.JumpIfFalseOrPop,
	pyop.JumpIfTrueOrPop:          op.JumpIfTrueOrPop,
	pyop.JumpForward:              op.Jump,
	pyop.JumpBackward:             op.Jump,
	pyop.JumpBackwardNoInterrupt:  op.Jump,
}

// direct lists source opcodes that map one to one, carrying their
// argument when the target op takes one.
var direct = map[pyop.Opcode]op.Code{
	pyop.PopTop:              op.PopTop,
	pyop.PushNull:            op.PushNull,
	pyop.Copy:                op.Copy,
	pyop.Swap:                op.Swap,
	pyop.ReturnValue:         op.ReturnValue,
	pyop.ReturnConst:         op.ReturnConst,
	pyop.LoadConst:           op.LoadConst,
	pyop.LoadFastAndClear:    op.LoadFastAndClear,
	pyop.StoreFast:           op.StoreFast,
	pyop.DeleteFast:          op.DeleteFast,
	pyop.LoadDeref:           op.LoadDeref,
	pyop.StoreDeref:          op.StoreDeref,
	pyop.DeleteDeref:         op.DeleteDeref,
	pyop.LoadClassDeref:      op.LoadClassDeref,
	pyop.LoadFromDictOrDeref: op.LoadFromDictOrDeref,
	pyop.LoadClosure:         op.LoadClosure,
	pyop.MakeCell:            op.MakeCell,
	pyop.CopyFreeVars:        op.CopyFreeVars,
	pyop.LoadName:            op.LoadName,
	pyop.StoreName:           op.StoreName,
	pyop.DeleteName:          op.DeleteName,
	pyop.StoreGlobal:         op.StoreGlobal,
	pyop.DeleteGlobal:        op.DeleteGlobal,
	pyop.LoadLocals:          op.LoadLocals,
	pyop.LoadMethod:          op.LoadMethod,
	pyop.StoreAttr:           op.StoreAttr,
	pyop.DeleteAttr:          op.DeleteAttr,
	pyop.StoreSubscr:         op.StoreSubscr,
	pyop.DeleteSubscr:        op.DeleteSubscr,
	pyop.BinarySlice:         op.BinarySlice,
	pyop.StoreSlice:          op.StoreSlice,
	pyop.SetupAnnotations:    op.SetupAnnotations,
	pyop.LoadBuildClass:      op.LoadBuildClass,
	pyop.LoadAssertionError:  op.LoadAssertionError,
	pyop.IsOp:                op.IsOp,
	pyop.ContainsOp:          op.ContainsOp,
	pyop.UnaryNegative:       op.UnaryNegative,
	pyop.UnaryPositive:       op.UnaryPositive,
	pyop.UnaryNot:            op.UnaryNot,
	pyop.UnaryInvert:         op.UnaryInvert,
	pyop.FormatValue:         op.FormatValue,
	pyop.BuildTuple:          op.BuildTuple,
	pyop.BuildList:           op.BuildList,
	pyop.BuildSet:            op.BuildSet,
	pyop.BuildMap:            op.BuildMap,
	pyop.BuildConstKeyMap:    op.BuildConstKeyMap,
	pyop.BuildString:         op.BuildString,
	pyop.BuildSlice:          op.BuildSlice,
	pyop.ListAppend:          op.ListAppend,
	pyop.SetAdd:              op.SetAdd,
	pyop.MapAdd:              op.MapAdd,
	pyop.ListExtend:          op.ListExtend,
	pyop.SetUpdate:           op.SetUpdate,
	pyop.DictUpdate:          op.DictUpdate,
	pyop.DictMerge:           op.DictMerge,
	pyop.ListToTuple:         op.ListToTuple,
	pyop.UnpackSequence:      op.UnpackSequence,
	pyop.UnpackEx:            op.UnpackEx,
	pyop.GetLen:              op.GetLen,
	pyop.GetIter:             op.GetIter,
	pyop.GetYieldFromIter:    op.GetYieldFromIter,
	pyop.GetAwaitable:        op.GetAwaitable,
	pyop.ReturnGenerator:     op.ReturnGenerator,
	pyop.EndSend:             op.EndSend,
	pyop.CleanupThrow:        op.CleanupThrow,
	pyop.PushExcInfo:         op.PushExcInfo,
	pyop.PopExcept:           op.PopExcept,
	pyop.CheckExcMatch:       op.CheckExcMatch,
	pyop.Reraise:             op.Reraise,
	pyop.RaiseVarargs:        op.Raise,
	pyop.WithExceptStart:     op.WithExceptStart,
	pyop.BeforeWith:          op.BeforeWith,
	pyop.ImportName:          op.ImportName,
	pyop.ImportFrom:          op.ImportFrom,
	pyop.MakeFunction:        op.MakeFunction,
}

func (t *translator) translate(i int, instr decode.Instruction) error {
	c := t.code
	d := t.unit.Dialect
	arg := instr.Arg

	if target, ok := direct[instr.Op]; ok {
		if op.GetInfo(target).OperandCount == 0 {
			c.emit(target)
		} else {
			c.emit(target, arg)
		}
		return nil
	}
	if target, ok := popJumps[instr.Op]; ok {
		c.emitJump(target, instr.Target)
		return nil
	}

	switch instr.Op {
	case pyop.Cache, pyop.Nop, pyop.ExtendedArg, pyop.Resume, pyop.Precall:
	case pyop.KwNames:
		t.kwnames = arg
	case pyop.Call:
		if t.kwnames >= 0 {
			c.emit(op.CallKw, arg, t.kwnames)
			t.kwnames = -1
		} else {
			c.emit(op.Call, arg)
		}
	case pyop.CallFunctionEx:
		c.emit(op.CallFunction, arg&1)
	case pyop.LoadFast, pyop.LoadFastCheck:
		if t.graph.Assigned(i, arg) {
			c.emit(op.LoadFast, arg)
		} else {
			c.emit(op.LoadFastChecked, arg)
		}
	case pyop.LoadGlobal:
		c.emit(op.LoadGlobal, arg>>1, arg&1)
	case pyop.LoadAttr:
		switch {
		case d < pyop.Py312:
			c.emit(op.LoadAttr, arg)
		case arg&1 != 0:
			c.emit(op.LoadMethod, arg>>1)
		default:
			c.emit(op.LoadAttr, arg>>1)
		}
	case pyop.LoadSuperAttr:
		c.emit(op.LoadSuperAttr, arg>>2, arg&3)
	case pyop.BinaryOp:
		if code, ok := t.specialized(i); ok {
			c.emit(code, arg)
		} else {
			c.emit(op.BinaryOp, arg)
		}
	case pyop.CompareOp:
		cmp := d.CompareArg(arg)
		if code, ok := t.specialized(i); ok {
			c.emit(code, cmp)
		} else {
			c.emit(op.CompareOp, cmp)
		}
	case pyop.BinarySubscr:
		if code, ok := t.specialized(i); ok {
			c.emit(code)
		} else {
			c.emit(op.BinarySubscr)
		}
	case pyop.CallIntrinsic1:
		switch arg {
		case pyop.IntrinsicStopIterationErr:
			c.emit(op.StopIterationErr)
		case pyop.IntrinsicUnaryPositive:
			c.emit(op.UnaryPositive)
		case pyop.IntrinsicListToTuple:
			c.emit(op.ListToTuple)
		default:
			return errz.At(errz.ErrUnmodeled, instr.Offset, "no code generation rule for CALL_INTRINSIC_1 %d", arg)
		}
	case pyop.EndFor:
		c.emit(op.PopTop)
		c.emit(op.PopTop)
	case pyop.ForIter:
		c.emitJump(op.ForIter, instr.Target)
	case pyop.Send:
		if d >= pyop.Py312 {
			c.emitJump(op.Send, instr.Target)
			break
		}
		// The 3.11 exhaustion branch drops the receiver itself. The target
		// op keeps it, so the branch goes through an END_SEND stub.
		at := c.emit(op.Send, 0)
		c.stubs = append(c.stubs, stub{sendAt: at + 1, target: instr.Target, loc: c.loc})
	case pyop.YieldValue:
		delegating := 0
		if i > 0 && t.unit.Instructions[i-1].Op == pyop.Send {
			delegating = 1
		}
		at := c.emit(op.Yield, arg, delegating)
		c.suspensions = append(c.suspensions, bytecode.Suspension{IP: at, Live: t.graph.LiveAfter(i)})
	default:
		return unmodeled(instr)
	}
	return nil
}
