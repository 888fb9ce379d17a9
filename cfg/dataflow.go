package cfg

import (
	"math/bits"

	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
)

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (s bitset) has(i int) bool {
	if i < 0 || i/64 >= len(s) {
		return false
	}
	return s[i/64]&(1<<(uint(i)%64)) != 0
}

func (s bitset) set(i int) {
	if i >= 0 && i/64 < len(s) {
		s[i/64] |= 1 << (uint(i) % 64)
	}
}

func (s bitset) clear(i int) {
	if i >= 0 && i/64 < len(s) {
		s[i/64] &^= 1 << (uint(i) % 64)
	}
}

func (s bitset) fill(n int) {
	for i := 0; i < n; i++ {
		s.set(i)
	}
}

func (s bitset) copy() bitset { return append(bitset(nil), s...) }

func (s bitset) equal(o bitset) bool {
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s bitset) and(o bitset) {
	for i := range s {
		s[i] &= o[i]
	}
}

func (s bitset) or(o bitset) {
	for i := range s {
		s[i] |= o[i]
	}
}

func (s bitset) andNot(o bitset) {
	for i := range s {
		s[i] &^= o[i]
	}
}

func (s bitset) count() int {
	n := 0
	for _, w := range s {
		n += bits.OnesCount64(w)
	}
	return n
}

// slotTable describes the local slots of a unit in slot order.
type slotTable struct {
	names []string
	nargs int
	free  int // index of the first free variable slot
}

func newSlotTable(u *unit.Unit) slotTable {
	names := u.LocalsPlus()
	nargs := u.ArgCount + u.KwOnlyArgCount
	if u.Flags&pyop.CoVarargs != 0 {
		nargs++
	}
	if u.Flags&pyop.CoVarkeywords != 0 {
		nargs++
	}
	return slotTable{names: names, nargs: nargs, free: len(names) - len(u.FreeVars)}
}

// slotOps returns the slot an instruction reads and the slot it writes or
// clears, -1 for none.
func slotOps(instr decode.Instruction) (use, def, kill int) {
	use, def, kill = -1, -1, -1
	switch instr.Op {
	case pyop.LoadFast, pyop.LoadFastCheck, pyop.LoadDeref, pyop.LoadClassDeref,
		pyop.LoadClosure, pyop.LoadFromDictOrDeref, pyop.MakeCell:
		use = instr.Arg
	case pyop.LoadFastAndClear, pyop.DeleteFast, pyop.DeleteDeref:
		use, kill = instr.Arg, instr.Arg
	case pyop.StoreFast, pyop.StoreDeref:
		def = instr.Arg
	}
	return use, def, kill
}

// definiteAssignment computes, for every instruction, the slots bound on
// every path reaching it. Arguments and free variables are bound on entry.
// A handler only sees the bindings made before its protected block began.
func (g *Graph) definiteAssignment() {
	n := len(g.slots.names)
	instrs := g.Unit.Instructions
	entry := newBitset(n)
	for i := 0; i < g.slots.nargs && i < n; i++ {
		entry.set(i)
	}
	for i := g.slots.free; i < n; i++ {
		entry.set(i)
	}
	in := make([]bitset, len(g.Blocks))
	out := make([]bitset, len(g.Blocks))
	for i := range g.Blocks {
		in[i] = newBitset(n)
		in[i].fill(n)
		out[i] = newBitset(n)
		out[i].fill(n)
	}
	transfer := func(b *Block, s bitset) bitset {
		s = s.copy()
		for i := b.Start; i < b.End; i++ {
			_, def, kill := slotOps(instrs[i])
			if def >= 0 {
				s.set(def)
			}
			if kill >= 0 {
				s.clear(kill)
			}
		}
		return s
	}
	for changed := true; changed; {
		changed = false
		for _, b := range g.Blocks {
			if !b.Reachable() {
				continue
			}
			s := newBitset(n)
			s.fill(n)
			if b.ID == 0 {
				s.and(entry)
			}
			for _, p := range b.Preds {
				pb := g.Blocks[p]
				if !pb.Reachable() {
					continue
				}
				if g.isHandlerOf(pb, b) {
					s.and(in[p])
				} else {
					s.and(out[p])
				}
			}
			o := transfer(b, s)
			if !s.equal(in[b.ID]) || !o.equal(out[b.ID]) {
				in[b.ID], out[b.ID] = s, o
				changed = true
			}
		}
	}
	g.assigned = make([]bitset, len(instrs))
	for _, b := range g.Blocks {
		s := in[b.ID].copy()
		if !b.Reachable() {
			s = newBitset(n)
		}
		for i := b.Start; i < b.End; i++ {
			g.assigned[i] = s.copy()
			_, def, kill := slotOps(instrs[i])
			if def >= 0 {
				s.set(def)
			}
			if kill >= 0 {
				s.clear(kill)
			}
		}
	}
}

// isHandlerOf reports whether b is reached from p only through p's
// exception edge.
func (g *Graph) isHandlerOf(p, b *Block) bool {
	for _, e := range p.Succs {
		if e.To == b.ID && e.Kind != Exception {
			return false
		}
	}
	return p.Handler != nil
}

// liveness computes the slots live on entry to and exit from each block.
// A block's handler may run after any of its instructions, so everything
// live into the handler is live throughout the block.
func (g *Graph) liveness() {
	n := len(g.slots.names)
	instrs := g.Unit.Instructions
	use := make([]bitset, len(g.Blocks))
	def := make([]bitset, len(g.Blocks))
	for _, b := range g.Blocks {
		u, d := newBitset(n), newBitset(n)
		for i := b.Start; i < b.End; i++ {
			r, w, k := slotOps(instrs[i])
			if r >= 0 && !d.has(r) {
				u.set(r)
			}
			if w >= 0 {
				d.set(w)
			}
			if k >= 0 {
				d.set(k)
			}
		}
		use[b.ID], def[b.ID] = u, d
	}
	g.liveIn = make([]bitset, len(g.Blocks))
	g.liveOut = make([]bitset, len(g.Blocks))
	for i := range g.Blocks {
		g.liveIn[i] = newBitset(n)
		g.liveOut[i] = newBitset(n)
	}
	for changed := true; changed; {
		changed = false
		for i := len(g.Blocks) - 1; i >= 0; i-- {
			b := g.Blocks[i]
			out := newBitset(n)
			var handlerIn bitset
			for _, e := range b.Succs {
				out.or(g.liveIn[e.To])
				if e.Kind == Exception {
					handlerIn = g.liveIn[e.To]
				}
			}
			in := out.copy()
			in.andNot(def[b.ID])
			in.or(use[b.ID])
			if handlerIn != nil {
				in.or(handlerIn)
			}
			if !in.equal(g.liveIn[i]) || !out.equal(g.liveOut[i]) {
				g.liveIn[i], g.liveOut[i] = in, out
				changed = true
			}
		}
	}
}

// SlotNames returns the local slot names in slot order.
func (g *Graph) SlotNames() []string { return g.slots.names }

// Assigned reports whether slot is bound on every path reaching
// instruction i.
func (g *Graph) Assigned(i, slot int) bool { return g.assigned[i].has(slot) }

// LiveIn reports whether slot is live on entry to block b.
func (g *Graph) LiveIn(b, slot int) bool { return g.liveIn[b].has(slot) }

// LiveOut reports whether slot is live on exit from block b.
func (g *Graph) LiveOut(b, slot int) bool { return g.liveOut[b].has(slot) }

// Live returns the names of the slots live on entry to block b.
func (g *Graph) Live(b int) []string {
	var out []string
	for i, name := range g.slots.names {
		if g.liveIn[b].has(i) {
			out = append(out, name)
		}
	}
	return out
}

// LiveCount returns the number of slots live on entry to block b.
func (g *Graph) LiveCount(b int) int { return g.liveIn[b].count() }

// LiveAfter returns the slots live immediately after instruction i, in
// slot order.
func (g *Graph) LiveAfter(i int) []int {
	b := g.BlockAt(i)
	instrs := g.Unit.Instructions
	s := g.liveOut[b.ID].copy()
	for j := b.End - 1; j > i; j-- {
		r, w, k := slotOps(instrs[j])
		if w >= 0 {
			s.clear(w)
		}
		if k >= 0 {
			s.clear(k)
		}
		if r >= 0 {
			s.set(r)
		}
	}
	for _, e := range b.Succs {
		if e.Kind == Exception {
			s.or(g.liveIn[e.To])
		}
	}
	var out []int
	for slot := range g.slots.names {
		if s.has(slot) {
			out = append(out, slot)
		}
	}
	return out
}
