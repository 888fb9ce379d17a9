// Package infer runs a forward type analysis over a unit's control flow
// graph. It tracks the builtin type of every stack slot and fast local
// before each instruction, and picks the guarded specialization for
// operators whose operand types it can establish.
package infer

import (
	"github.com/deepnoodle-ai/pyxlate/cfg"
	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
)

// Kind is a point in the type lattice. Bottom is below every kind and
// Dynamic above; any two distinct builtin kinds join to Dynamic.
type Kind uint8

const (
	Bottom Kind = iota
	None
	Bool
	Int
	Float
	Complex
	Str
	Bytes
	Tuple
	List
	Dict
	Set
	FrozenSet
	Function
	Dynamic
)

var kindNames = [...]string{
	"bottom", "NoneType", "bool", "int", "float", "complex", "str", "bytes",
	"tuple", "list", "dict", "set", "frozenset", "function", "dynamic",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "?"
}

// Join returns the least upper bound of a and b.
func Join(a, b Kind) Kind {
	switch {
	case a == b:
		return a
	case a == Bottom:
		return b
	case b == Bottom:
		return a
	}
	return Dynamic
}

// KindOf returns the kind of a concrete value.
func KindOf(o object.Object) Kind {
	switch o.(type) {
	case *object.NoneType:
		return None
	case *object.Bool:
		return Bool
	case *object.Int:
		return Int
	case *object.Float:
		return Float
	case *object.Complex:
		return Complex
	case *object.Str:
		return Str
	case *object.Bytes:
		return Bytes
	case *object.Tuple:
		return Tuple
	case *object.List:
		return List
	case *object.Dict:
		return Dict
	case *object.Set:
		return Set
	case *object.FrozenSet:
		return FrozenSet
	case *object.Function:
		return Function
	}
	return Dynamic
}

// KindOfType maps an annotation type to a kind.
func KindOfType(t *object.Type) Kind {
	switch t {
	case object.IntType:
		return Int
	case object.BoolType:
		return Bool
	case object.FloatType:
		return Float
	case object.ComplexType:
		return Complex
	case object.StrType:
		return Str
	case object.BytesType:
		return Bytes
	case object.TupleType:
		return Tuple
	case object.ListType:
		return List
	case object.DictType:
		return Dict
	case object.SetType:
		return Set
	case object.FrozenSetType:
		return FrozenSet
	}
	return Dynamic
}

type state struct {
	stack  []Kind
	locals []Kind
}

func (s *state) clone() *state {
	return &state{
		stack:  append([]Kind(nil), s.stack...),
		locals: append([]Kind(nil), s.locals...),
	}
}

// join merges o into s and reports whether s changed.
func (s *state) join(o *state) bool {
	changed := false
	if len(s.stack) != len(o.stack) {
		n := len(s.stack)
		if len(o.stack) > n {
			n = len(o.stack)
		}
		for len(s.stack) < n {
			s.stack = append(s.stack, Dynamic)
		}
		for i := range s.stack {
			if s.stack[i] != Dynamic {
				s.stack[i] = Dynamic
				changed = true
			}
		}
	} else {
		for i, k := range o.stack {
			if j := Join(s.stack[i], k); j != s.stack[i] {
				s.stack[i] = j
				changed = true
			}
		}
	}
	for i, k := range o.locals {
		if j := Join(s.locals[i], k); j != s.locals[i] {
			s.locals[i] = j
			changed = true
		}
	}
	return changed
}

func (s *state) push(k ...Kind) { s.stack = append(s.stack, k...) }

func (s *state) pop(n int) []Kind {
	if n > len(s.stack) {
		n = len(s.stack)
	}
	out := append([]Kind(nil), s.stack[len(s.stack)-n:]...)
	s.stack = s.stack[:len(s.stack)-n]
	return out
}

func (s *state) dynamic() {
	for i := range s.stack {
		s.stack[i] = Dynamic
	}
}

// Result holds the analysis of one graph.
type Result struct {
	g      *cfg.Graph
	before []*state
}

// Analyze runs the analysis to a fixed point.
func Analyze(g *cfg.Graph) *Result {
	u := g.Unit
	nslots := len(g.SlotNames())
	r := &Result{g: g, before: make([]*state, len(u.Instructions))}
	in := make([]*state, len(g.Blocks))
	in[0] = entryState(u, nslots)

	work := []int{0}
	queued := map[int]bool{0: true}
	flow := func(to int, s *state) {
		if in[to] == nil {
			in[to] = s.clone()
		} else if !in[to].join(s) {
			return
		}
		if !queued[to] {
			queued[to] = true
			work = append(work, to)
		}
	}
	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		queued[id] = false
		b := g.Blocks[id]
		s := in[id].clone()
		var handlerLocals *state
		if b.Handler != nil {
			handlerLocals = &state{locals: make([]Kind, nslots)}
		}
		for i := b.Start; i < b.End; i++ {
			r.before[i] = s.clone()
			if handlerLocals != nil {
				handlerLocals.join(&state{locals: s.locals})
			}
			if i < b.End-1 {
				transfer(u, u.Instructions[i], s, false)
			}
		}
		last := u.Instructions[b.End-1]
		for _, e := range b.Succs {
			switch e.Kind {
			case cfg.Fallthrough:
				out := s.clone()
				transfer(u, last, out, false)
				flow(e.To, out)
			case cfg.Branch:
				out := s.clone()
				transfer(u, last, out, true)
				flow(e.To, out)
			case cfg.Exception:
				hs := &state{
					stack:  make([]Kind, g.Blocks[e.To].EntryDepth),
					locals: handlerLocals.locals,
				}
				hs.dynamic()
				flow(e.To, hs)
			}
		}
	}
	return r
}

func entryState(u *unit.Unit, nslots int) *state {
	s := &state{locals: make([]Kind, nslots)}
	nargs := u.ArgCount + u.KwOnlyArgCount
	for i := 0; i < nargs && i < nslots; i++ {
		s.locals[i] = Dynamic
	}
	for _, a := range u.Annotations {
		for i := 0; i < nargs && i < len(u.VarNames); i++ {
			if u.VarNames[i] == a.Name {
				s.locals[i] = KindOfType(a.Type)
			}
		}
	}
	next := nargs
	if u.Flags&pyop.CoVarargs != 0 && next < nslots {
		s.locals[next] = Tuple
		next++
	}
	if u.Flags&pyop.CoVarkeywords != 0 && next < nslots {
		s.locals[next] = Dict
	}
	return s
}

// Stack returns the stack kinds before instruction i, bottom first. It is
// nil for unreachable instructions.
func (r *Result) Stack(i int) []Kind {
	if r.before[i] == nil {
		return nil
	}
	return r.before[i].stack
}

// Top returns the kind n entries below the top of the stack before
// instruction i; n is 0 for the top itself.
func (r *Result) Top(i, n int) Kind {
	st := r.Stack(i)
	if n >= len(st) {
		return Dynamic
	}
	return st[len(st)-1-n]
}

// Local returns the kind of a local slot before instruction i. Unbound
// slots read as Bottom.
func (r *Result) Local(i, slot int) Kind {
	if r.before[i] == nil || slot >= len(r.before[i].locals) {
		return Dynamic
	}
	return r.before[i].locals[slot]
}

// Specialize returns the guarded opcode to emit for instruction i, if its
// operand kinds allow one.
func (r *Result) Specialize(i int) (op.Code, bool) {
	if r.before[i] == nil {
		return 0, false
	}
	instr := r.g.Unit.Instructions[i]
	a, b := r.Top(i, 1), r.Top(i, 0)
	switch instr.Op {
	case pyop.BinaryOp:
		return specializeBinary(instr.Arg%pyop.InplaceOffset, a, b)
	case pyop.CompareOp:
		switch {
		case a == Int && b == Int:
			return op.CompareInt, true
		case a == Float && b == Float:
			return op.CompareFloat, true
		}
	case pyop.BinarySubscr:
		switch {
		case a == List && b == Int:
			return op.BinarySubscrList, true
		case a == Tuple && b == Int:
			return op.BinarySubscrTuple, true
		}
	}
	return 0, false
}

func specializeBinary(nb int, a, b Kind) (op.Code, bool) {
	switch {
	case a == Int && b == Int:
		switch nb {
		case pyop.NbAdd:
			return op.AddInt, true
		case pyop.NbSubtract:
			return op.SubtractInt, true
		case pyop.NbMultiply:
			return op.MultiplyInt, true
		case pyop.NbFloorDivide:
			return op.FloorDivInt, true
		case pyop.NbRemainder:
			return op.ModuloInt, true
		}
	case a == Float && b == Float:
		switch nb {
		case pyop.NbAdd:
			return op.AddFloat, true
		case pyop.NbSubtract:
			return op.SubtractFloat, true
		case pyop.NbMultiply:
			return op.MultiplyFloat, true
		case pyop.NbTrueDivide:
			return op.TrueDivFloat, true
		}
	case a == Str && b == Str && nb == pyop.NbAdd:
		return op.AddStr, true
	}
	return 0, false
}

func constKind(u *unit.Unit, i int) Kind {
	if i < 0 || i >= len(u.Consts) || u.Consts[i].Value == nil {
		return Dynamic
	}
	return KindOf(u.Consts[i].Value)
}

// transfer applies instr to s. Instructions without a model leave every
// stack entry Dynamic.
func transfer(u *unit.Unit, instr decode.Instruction, s *state, branch bool) {
	d := u.Dialect
	arg := instr.Arg
	switch instr.Op {
	case pyop.LoadConst:
		s.push(constKind(u, arg))
		return
	case pyop.LoadFast, pyop.LoadFastCheck:
		s.push(readLocal(s, arg))
		return
	case pyop.LoadFastAndClear:
		s.push(readLocal(s, arg))
		setLocal(s, arg, Bottom)
		return
	case pyop.StoreFast:
		setLocal(s, arg, s.pop(1)[0])
		return
	case pyop.DeleteFast:
		setLocal(s, arg, Bottom)
		return
	case pyop.Copy:
		s.push(peek(s, arg-1))
		return
	case pyop.Swap:
		if n := len(s.stack); arg <= n && arg > 0 {
			s.stack[n-1], s.stack[n-arg] = s.stack[n-arg], s.stack[n-1]
		}
		return
	case pyop.GetLen:
		s.push(Int)
		return
	}

	pops, ok := popCount(d, instr, branch)
	net := d.StackEffect(instr.Op, arg, branch)
	if !ok {
		s.dynamic()
		if net > 0 {
			for j := 0; j < net; j++ {
				s.push(Dynamic)
			}
		} else {
			s.pop(-net)
		}
		return
	}
	in := s.pop(pops)
	pushes := pops + net
	out := results(instr, in)
	for j := 0; j < pushes; j++ {
		if j < len(out) {
			s.push(out[j])
		} else {
			s.push(Dynamic)
		}
	}
}

func readLocal(s *state, slot int) Kind {
	if slot < 0 || slot >= len(s.locals) || s.locals[slot] == Bottom {
		return Dynamic
	}
	return s.locals[slot]
}

func setLocal(s *state, slot int, k Kind) {
	if slot >= 0 && slot < len(s.locals) {
		s.locals[slot] = k
	}
}

func peek(s *state, n int) Kind {
	if n < 0 || n >= len(s.stack) {
		return Dynamic
	}
	return s.stack[len(s.stack)-1-n]
}

// popCount is the number of stack entries an instruction consumes. The
// rest of its net effect is pushed.
func popCount(d pyop.Dialect, instr decode.Instruction, branch bool) (int, bool) {
	arg := instr.Arg
	switch instr.Op {
	case pyop.Nop, pyop.Resume, pyop.Precall, pyop.KwNames, pyop.ExtendedArg,
		pyop.Cache, pyop.MakeCell, pyop.CopyFreeVars, pyop.SetupAnnotations,
		pyop.JumpForward, pyop.JumpBackward, pyop.JumpBackwardNoInterrupt,
		pyop.DeleteName, pyop.DeleteGlobal, pyop.DeleteDeref, pyop.ReturnConst,
		pyop.LoadName, pyop.LoadGlobal, pyop.LoadDeref, pyop.LoadClassDeref,
		pyop.LoadClosure, pyop.LoadBuildClass, pyop.LoadAssertionError,
		pyop.LoadLocals, pyop.PushNull, pyop.ReturnGenerator, pyop.ImportFrom,
		pyop.WithExceptStart:
		return 0, true
	case pyop.PopTop, pyop.ReturnValue, pyop.StoreName, pyop.StoreGlobal,
		pyop.StoreDeref, pyop.DeleteAttr, pyop.LoadFromDictOrDeref,
		pyop.LoadFromDictOrGlobals, pyop.LoadAttr, pyop.LoadMethod,
		pyop.UnaryNegative, pyop.UnaryPositive, pyop.UnaryNot, pyop.UnaryInvert,
		pyop.GetIter, pyop.GetYieldFromIter, pyop.PushExcInfo, pyop.PopExcept,
		pyop.CheckExcMatch, pyop.YieldValue, pyop.BeforeWith, pyop.CallIntrinsic1,
		pyop.ListToTuple, pyop.ListAppend, pyop.SetAdd, pyop.ListExtend,
		pyop.SetUpdate, pyop.DictUpdate, pyop.DictMerge, pyop.Reraise,
		pyop.PopJumpIfFalse, pyop.PopJumpIfTrue, pyop.PopJumpIfNone,
		pyop.PopJumpIfNotNone, pyop.PopJumpForwardIfFalse,
		pyop.PopJumpForwardIfTrue, pyop.PopJumpForwardIfNone,
		pyop.PopJumpForwardIfNotNone, pyop.PopJumpBackwardIfFalse,
		pyop.PopJumpBackwardIfTrue, pyop.PopJumpBackwardIfNone,
		pyop.PopJumpBackwardIfNotNone, pyop.UnpackSequence, pyop.UnpackEx:
		return 1, true
	case pyop.StoreAttr, pyop.DeleteSubscr, pyop.BinarySubscr, pyop.BinaryOp,
		pyop.CompareOp, pyop.IsOp, pyop.ContainsOp, pyop.MapAdd,
		pyop.CallIntrinsic2, pyop.ImportName, pyop.EndFor, pyop.EndSend:
		return 2, true
	case pyop.StoreSubscr, pyop.BinarySlice, pyop.LoadSuperAttr:
		return 3, true
	case pyop.StoreSlice:
		return 4, true
	case pyop.Call:
		return arg + 2, true
	case pyop.CallFunctionEx:
		return 3 + arg&1, true
	case pyop.MakeFunction:
		n := 1
		for f := arg & 0x0f; f != 0; f &= f - 1 {
			n++
		}
		return n, true
	case pyop.BuildTuple, pyop.BuildList, pyop.BuildSet, pyop.BuildString,
		pyop.RaiseVarargs:
		return arg, true
	case pyop.BuildMap:
		return 2 * arg, true
	case pyop.BuildConstKeyMap:
		return arg + 1, true
	case pyop.BuildSlice:
		return arg, true
	case pyop.FormatValue:
		if arg&0x04 != 0 {
			return 2, true
		}
		return 1, true
	case pyop.ForIter:
		if branch {
			return 1, true
		}
		return 0, true
	case pyop.JumpIfFalseOrPop, pyop.JumpIfTrueOrPop:
		if branch {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

// results returns the kinds of the values an instruction pushes, given the
// values it popped, bottom first. Missing entries are Dynamic.
func results(instr decode.Instruction, in []Kind) []Kind {
	switch instr.Op {
	case pyop.BinaryOp:
		return []Kind{binaryResult(instr.Arg%pyop.InplaceOffset, in[0], in[1])}
	case pyop.CompareOp:
		if comparable(in[0], in[1]) {
			return []Kind{Bool}
		}
	case pyop.IsOp, pyop.ContainsOp, pyop.UnaryNot:
		return []Kind{Bool}
	case pyop.CheckExcMatch:
		return []Kind{Bool}
	case pyop.UnaryNegative, pyop.UnaryPositive:
		switch in[0] {
		case Int, Bool:
			return []Kind{Int}
		case Float, Complex:
			return []Kind{in[0]}
		}
	case pyop.UnaryInvert:
		if in[0] == Int || in[0] == Bool {
			return []Kind{Int}
		}
	case pyop.BuildTuple, pyop.ListToTuple:
		return []Kind{Tuple}
	case pyop.BuildList:
		return []Kind{List}
	case pyop.BuildSet:
		return []Kind{Set}
	case pyop.BuildMap, pyop.BuildConstKeyMap:
		return []Kind{Dict}
	case pyop.BuildString, pyop.FormatValue:
		return []Kind{Str}
	case pyop.MakeFunction:
		return []Kind{Function}
	case pyop.CallIntrinsic1:
		if instr.Arg == pyop.IntrinsicListToTuple {
			return []Kind{Tuple}
		}
	case pyop.ListAppend, pyop.SetAdd, pyop.MapAdd, pyop.ListExtend,
		pyop.SetUpdate, pyop.DictUpdate, pyop.DictMerge:
		// The container stays below the popped operands.
		return nil
	}
	return nil
}

func intLike(k Kind) bool { return k == Int || k == Bool }

func numeric(k Kind) bool { return k == Int || k == Bool || k == Float }

func comparable(a, b Kind) bool {
	return (numeric(a) && numeric(b)) || (a == Str && b == Str)
}

func binaryResult(nb int, a, b Kind) Kind {
	switch {
	case intLike(a) && intLike(b):
		switch nb {
		case pyop.NbAdd, pyop.NbSubtract, pyop.NbMultiply, pyop.NbFloorDivide,
			pyop.NbRemainder, pyop.NbLshift, pyop.NbRshift:
			return Int
		case pyop.NbTrueDivide:
			return Float
		case pyop.NbAnd, pyop.NbOr, pyop.NbXor:
			if a == Bool && b == Bool {
				return Bool
			}
			return Int
		}
	case numeric(a) && numeric(b):
		switch nb {
		case pyop.NbAdd, pyop.NbSubtract, pyop.NbMultiply, pyop.NbFloorDivide,
			pyop.NbRemainder, pyop.NbTrueDivide:
			return Float
		}
	case a == Str && b == Str && nb == pyop.NbAdd:
		return Str
	case nb == pyop.NbMultiply && ((a == Str && intLike(b)) || (intLike(a) && b == Str)):
		return Str
	case a == List && b == List && nb == pyop.NbAdd:
		return List
	case a == Tuple && b == Tuple && nb == pyop.NbAdd:
		return Tuple
	}
	return Dynamic
}
