// Package cfg builds the basic block graph of a unit, including exception
// handler edges, and runs the static analyses code generation relies on:
// stack depth at every instruction, definite assignment of fast locals,
// and liveness of local, cell and free slots.
package cfg

import (
	"fmt"
	"sort"

	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
)

// EdgeKind classifies a control flow edge.
type EdgeKind uint8

const (
	Fallthrough EdgeKind = iota + 1
	Branch
	Exception
)

func (k EdgeKind) String() string {
	switch k {
	case Fallthrough:
		return "fallthrough"
	case Branch:
		return "branch"
	case Exception:
		return "exception"
	}
	return "?"
}

// Edge is a control flow edge to block To.
type Edge struct {
	To   int
	Kind EdgeKind
}

// Block is a maximal straight-line run of instructions, indices
// [Start, End) into the unit's instruction slice.
type Block struct {
	ID    int
	Start int
	End   int
	Succs []Edge
	Preds []int
	// Handler is the exception table entry covering the block, if any.
	Handler *decode.ExceptionEntry
	// EntryDepth is the stack depth on entry, -1 when unreachable.
	EntryDepth int
}

// Reachable reports whether the depth analysis reached the block.
func (b *Block) Reachable() bool { return b.EntryDepth >= 0 }

func (b *Block) String() string {
	return fmt.Sprintf("block %d [%d,%d) depth %d", b.ID, b.Start, b.End, b.EntryDepth)
}

// Graph is the control flow graph of one unit.
type Graph struct {
	Unit   *unit.Unit
	Blocks []*Block
	// Depth is the stack depth before each instruction, -1 when the
	// instruction is unreachable.
	Depth    []int
	MaxDepth int

	byOffset map[int]int
	blockOf  []int
	slots    slotTable
	assigned []bitset
	liveIn   []bitset
	liveOut  []bitset
}

// Build partitions the unit into blocks, links them, and runs the depth,
// definite assignment and liveness analyses. Overlapping exception ranges
// and depth disagreements at merge points are malformed input.
func Build(u *unit.Unit) (*Graph, error) {
	if len(u.Instructions) == 0 {
		return nil, errz.New(errz.ErrMalformed, "unit has no instructions")
	}
	if err := checkRanges(u); err != nil {
		return nil, err
	}
	g := &Graph{
		Unit:     u,
		byOffset: decode.Index(u.Instructions),
	}
	if err := g.split(); err != nil {
		return nil, err
	}
	g.link()
	if err := g.depths(); err != nil {
		return nil, err
	}
	g.slots = newSlotTable(u)
	g.definiteAssignment()
	g.liveness()
	return g, nil
}

// checkRanges verifies that exception ranges nest and never partially
// overlap, and that handler targets are instruction boundaries.
func checkRanges(u *unit.Unit) error {
	index := decode.Index(u.Instructions)
	entries := u.Exceptions
	for i, a := range entries {
		if a.End < a.Start {
			return errz.At(errz.ErrMalformed, a.Start, "exception range %s is empty", a)
		}
		if _, ok := index[a.Target]; !ok {
			return errz.At(errz.ErrMalformed, a.Start,
				"exception handler target %d is not an instruction boundary", a.Target)
		}
		for _, b := range entries[i+1:] {
			disjoint := a.End < b.Start || b.End < a.Start
			nested := (a.Start <= b.Start && b.End <= a.End) || (b.Start <= a.Start && a.End <= b.End)
			if !disjoint && !nested {
				return errz.At(errz.ErrMalformed, b.Start,
					"exception ranges %s and %s partially overlap", a, b)
			}
		}
	}
	return nil
}

// handlerFor returns the innermost exception entry covering offset.
func handlerFor(entries []decode.ExceptionEntry, offset int) *decode.ExceptionEntry {
	var best *decode.ExceptionEntry
	for i := range entries {
		e := &entries[i]
		if !e.Contains(offset) {
			continue
		}
		if best == nil || e.End-e.Start < best.End-best.Start {
			best = e
		}
	}
	return best
}

// split finds block leaders: the first instruction, jump and handler
// targets, instructions after jumps and terminators, and the boundaries of
// exception ranges, so every block lies wholly inside or outside a range.
func (g *Graph) split() error {
	instrs := g.Unit.Instructions
	leaders := map[int]bool{0: true}
	mark := func(offset int) {
		if i, ok := g.byOffset[offset]; ok {
			leaders[i] = true
			return
		}
		// Range ends may fall on inline cache units; the next real
		// instruction starts the block.
		i := sort.Search(len(instrs), func(i int) bool { return instrs[i].Offset >= offset })
		if i < len(instrs) {
			leaders[i] = true
		}
	}
	for i, instr := range instrs {
		if instr.Target >= 0 {
			if _, ok := g.byOffset[instr.Target]; !ok {
				return errz.At(errz.ErrMalformed, instr.Offset,
					"%s jumps to %d which is not an instruction boundary", instr.Op, instr.Target)
			}
			mark(instr.Target)
		}
		if (instr.Op.IsJump() || instr.Op.IsTerminator()) && i+1 < len(instrs) {
			leaders[i+1] = true
		}
	}
	for _, e := range g.Unit.Exceptions {
		mark(e.Start)
		mark(e.End + 1)
		mark(e.Target)
	}
	starts := make([]int, 0, len(leaders))
	for i := range leaders {
		starts = append(starts, i)
	}
	sort.Ints(starts)
	g.blockOf = make([]int, len(instrs))
	for id, start := range starts {
		end := len(instrs)
		if id+1 < len(starts) {
			end = starts[id+1]
		}
		b := &Block{ID: id, Start: start, End: end, EntryDepth: -1}
		b.Handler = handlerFor(g.Unit.Exceptions, instrs[start].Offset)
		for i := start; i < end; i++ {
			g.blockOf[i] = id
		}
		g.Blocks = append(g.Blocks, b)
	}
	return nil
}

func (g *Graph) link() {
	instrs := g.Unit.Instructions
	for _, b := range g.Blocks {
		last := instrs[b.End-1]
		if last.Target >= 0 {
			b.Succs = append(b.Succs, Edge{To: g.blockOf[g.byOffset[last.Target]], Kind: Branch})
		}
		if !last.Op.IsTerminator() && b.End < len(instrs) {
			b.Succs = append(b.Succs, Edge{To: g.blockOf[b.End], Kind: Fallthrough})
		}
		if b.Handler != nil {
			b.Succs = append(b.Succs, Edge{To: g.blockOf[g.byOffset[b.Handler.Target]], Kind: Exception})
		}
		for _, e := range b.Succs {
			to := g.Blocks[e.To]
			if !containsInt(to.Preds, b.ID) {
				to.Preds = append(to.Preds, b.ID)
			}
		}
	}
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// BlockAt returns the block containing instruction index i.
func (g *Graph) BlockAt(i int) *Block { return g.Blocks[g.blockOf[i]] }

// BlockAtOffset returns the block starting at a unit offset.
func (g *Graph) BlockAtOffset(offset int) (*Block, bool) {
	i, ok := g.byOffset[offset]
	if !ok {
		return nil, false
	}
	b := g.Blocks[g.blockOf[i]]
	return b, b.Start == i
}

// IndexOf maps a unit offset to an instruction index.
func (g *Graph) IndexOf(offset int) (int, bool) {
	i, ok := g.byOffset[offset]
	return i, ok
}

// Reachable reports whether instruction i can execute.
func (g *Graph) Reachable(i int) bool { return g.Depth[i] >= 0 }

// handlerDepth is the stack depth at handler entry: the recorded depth,
// the saved instruction offset if requested, and the exception.
func handlerDepth(e *decode.ExceptionEntry) int {
	d := e.Depth + 1
	if e.Lasti {
		d++
	}
	return d
}

// effect is the stack effect of instruction instr when taking branch.
func effect(d pyop.Dialect, instr decode.Instruction, branch bool) int {
	return d.StackEffect(instr.Op, instr.Arg, branch)
}
