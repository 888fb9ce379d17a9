package pyop

import "math/bits"

// JumpKind classifies how an opcode transfers control.
type JumpKind uint8

const (
	NoJump JumpKind = iota
	// Unconditional jumps never fall through.
	Unconditional
	// Conditional jumps either fall through or branch.
	Conditional
)

type jumpInfo struct {
	kind     JumpKind
	backward bool
}

var jumps = map[Opcode]jumpInfo{
	JumpForward:              {Unconditional, false},
	JumpBackward:             {Unconditional, true},
	JumpBackwardNoInterrupt:  {Unconditional, true},
	PopJumpIfFalse:           {Conditional, false},
	PopJumpIfTrue:            {Conditional, false},
	PopJumpIfNone:            {Conditional, false},
	PopJumpIfNotNone:         {Conditional, false},
	PopJumpForwardIfFalse:    {Conditional, false},
	PopJumpForwardIfTrue:     {Conditional, false},
	PopJumpForwardIfNone:     {Conditional, false},
	PopJumpForwardIfNotNone:  {Conditional, false},
	PopJumpBackwardIfFalse:   {Conditional, true},
	PopJumpBackwardIfTrue:    {Conditional, true},
	PopJumpBackwardIfNone:    {Conditional, true},
	PopJumpBackwardIfNotNone: {Conditional, true},
	JumpIfFalseOrPop:         {Conditional, false},
	JumpIfTrueOrPop:          {Conditional, false},
	ForIter:                  {Conditional, false},
	Send:                     {Conditional, false},
}

// Jump returns the jump kind of the opcode.
func (o Opcode) Jump() JumpKind {
	return jumps[o].kind
}

// IsJump reports whether the opcode has a jump target.
func (o Opcode) IsJump() bool {
	return jumps[o].kind != NoJump
}

// IsTerminator reports whether control never falls through to the next
// instruction.
func (o Opcode) IsTerminator() bool {
	switch o {
	case ReturnValue, ReturnConst, RaiseVarargs, Reraise, InterpreterExit:
		return true
	}
	return jumps[o].kind == Unconditional
}

// JumpTarget computes the absolute target offset, in code units, of a jump
// instruction located at offset with the given argument.
func (d Dialect) JumpTarget(o Opcode, offset, arg int) int {
	info, ok := jumps[o]
	if !ok {
		return -1
	}
	next := offset + 1 + d.CacheEntries(o)
	if info.backward {
		return next - arg
	}
	target := next + arg
	if o == ForIter && d >= Py312 {
		// Exhaustion skips the END_FOR at the target.
		target++
	}
	return target
}

// StackEffect returns the net stack depth change of executing the opcode.
// For conditional jumps, branch selects the jump edge.
func (d Dialect) StackEffect(o Opcode, arg int, branch bool) int {
	switch o {
	case Cache, Nop, ExtendedArg, Resume, Precall, KwNames,
		UnaryPositive, UnaryNegative, UnaryNot, UnaryInvert,
		GetIter, GetYieldFromIter, GetAwaitable, Swap,
		DeleteName, DeleteGlobal, DeleteFast, DeleteDeref,
		LoadFromDictOrGlobals, LoadFromDictOrDeref, SetupAnnotations,
		MakeCell, CopyFreeVars, CallIntrinsic1, ListToTuple,
		CheckExcMatch, CheckEgMatch, YieldValue, AsyncGenWrap, GetAiter,
		JumpForward, JumpBackward, JumpBackwardNoInterrupt:
		return 0
	case PushNull, GetLen, Copy, LoadConst, LoadName, LoadLocals,
		LoadFast, LoadFastCheck, LoadFastAndClear, LoadClosure, LoadDeref,
		LoadClassDeref, LoadMethod, LoadBuildClass, PushExcInfo,
		LoadAssertionError, WithExceptStart, BeforeWith, ReturnGenerator,
		GetAnext, BeforeAsyncWith, ImportFrom, MatchMapping,
		MatchSequence, MatchKeys:
		return 1
	case PopTop, BinaryOp, CompareOp, IsOp, ContainsOp, BinarySubscr,
		StoreName, StoreGlobal, StoreFast, StoreDeref, DeleteAttr,
		CallIntrinsic2, ReturnValue, ListAppend, SetAdd, ListExtend,
		SetUpdate, DictUpdate, DictMerge, PopExcept, PrepReraiseStar,
		Reraise, EndSend, CleanupThrow, ImportName, ImportStar, PrintExpr,
		InterpreterExit:
		return -1
	case DeleteSubscr, BinarySlice, StoreAttr, MapAdd, EndFor,
		EndAsyncFor, MatchClass:
		return -2
	case StoreSubscr:
		return -3
	case StoreSlice:
		return -4
	case ReturnConst:
		return 0
	case BuildSlice:
		if arg == 3 {
			return -2
		}
		return -1
	case LoadGlobal:
		return 1 + (arg & 1)
	case LoadAttr:
		if d >= Py312 {
			return arg & 1
		}
		return 0
	case LoadSuperAttr:
		return -2 + (arg & 1)
	case Call:
		return -(arg + 1)
	case CallFunctionEx:
		return -2 - (arg & 1)
	case MakeFunction:
		return -bits.OnesCount(uint(arg & 0x0f))
	case BuildTuple, BuildList, BuildSet, BuildString:
		return 1 - arg
	case BuildMap:
		return 1 - 2*arg
	case BuildConstKeyMap:
		return -arg
	case FormatValue:
		if arg&0x04 != 0 {
			return -1
		}
		return 0
	case UnpackSequence:
		return arg - 1
	case UnpackEx:
		return (arg & 0xff) + (arg >> 8)
	case RaiseVarargs:
		return -arg
	case ForIter:
		if branch {
			return -1
		}
		return 1
	case Send:
		if branch && d < Py312 {
			return -1
		}
		return 0
	case PopJumpIfFalse, PopJumpIfTrue, PopJumpIfNone, PopJumpIfNotNone,
		PopJumpForwardIfFalse, PopJumpForwardIfTrue, PopJumpForwardIfNone,
		PopJumpForwardIfNotNone, PopJumpBackwardIfFalse,
		PopJumpBackwardIfTrue, PopJumpBackwardIfNone,
		PopJumpBackwardIfNotNone:
		return -1
	case JumpIfFalseOrPop, JumpIfTrueOrPop:
		if branch {
			return 0
		}
		return -1
	}
	return 0
}
