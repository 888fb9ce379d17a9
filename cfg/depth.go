package cfg

import (
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/hashicorp/go-multierror"
)

// depths runs the stack depth fixed point. Every block entry gets one
// depth; a second path arriving with a different depth is recorded as an
// error, as is any instruction that would pop an empty stack.
func (g *Graph) depths() error {
	u := g.Unit
	instrs := u.Instructions
	g.Depth = make([]int, len(instrs))
	for i := range g.Depth {
		g.Depth[i] = -1
	}
	var merr *multierror.Error
	var work []int
	reach := func(from, to, depth int) {
		b := g.Blocks[to]
		switch {
		case b.EntryDepth < 0:
			b.EntryDepth = depth
			work = append(work, to)
		case b.EntryDepth != depth:
			merr = multierror.Append(merr, errz.At(errz.ErrMalformed, instrs[b.Start].Offset,
				"stack depth mismatch: block %d enters with %d from block %d but %d elsewhere",
				b.ID, depth, from, b.EntryDepth))
		}
	}
	reach(-1, 0, 0)
	failed := map[int]bool{}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		b := g.Blocks[id]
		depth := b.EntryDepth
		for i := b.Start; i < b.End; i++ {
			g.Depth[i] = depth
			if depth > g.MaxDepth {
				g.MaxDepth = depth
			}
			if i < b.End-1 {
				depth += effect(u.Dialect, instrs[i], false)
				if depth < 0 {
					break
				}
			}
		}
		if depth < 0 {
			if !failed[id] {
				failed[id] = true
				merr = multierror.Append(merr, errz.At(errz.ErrMalformed, instrs[b.Start].Offset,
					"stack underflow in block %d", b.ID))
			}
			continue
		}
		last := instrs[b.End-1]
		for _, e := range b.Succs {
			var next int
			switch e.Kind {
			case Branch:
				next = depth + effect(u.Dialect, last, true)
			case Fallthrough:
				next = depth + effect(u.Dialect, last, false)
			case Exception:
				next = handlerDepth(b.Handler)
			}
			if next < 0 {
				merr = multierror.Append(merr, errz.At(errz.ErrMalformed, last.Offset,
					"stack underflow leaving block %d", b.ID))
				continue
			}
			if next > g.MaxDepth {
				g.MaxDepth = next
			}
			reach(b.ID, e.To, next)
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return errz.New(errz.ErrMalformed, "stack depth verification failed").WithCause(err)
	}
	return nil
}

// CheckMerges re-verifies that every edge into a reachable block delivers
// that block's entry depth. Build already guarantees it; the check is
// exported for tests and the disassembler.
func (g *Graph) CheckMerges() error {
	instrs := g.Unit.Instructions
	var merr *multierror.Error
	for _, b := range g.Blocks {
		if !b.Reachable() {
			continue
		}
		last := instrs[b.End-1]
		exit := g.Depth[b.End-1]
		for _, e := range b.Succs {
			var next int
			switch e.Kind {
			case Branch:
				next = exit + effect(g.Unit.Dialect, last, true)
			case Fallthrough:
				next = exit + effect(g.Unit.Dialect, last, false)
			case Exception:
				next = handlerDepth(b.Handler)
			}
			if to := g.Blocks[e.To]; to.EntryDepth != next {
				merr = multierror.Append(merr, errz.At(errz.ErrMalformed, last.Offset,
					"%s edge %d->%d delivers depth %d, block expects %d", e.Kind, b.ID, to.ID, next, to.EntryDepth))
			}
		}
	}
	return merr.ErrorOrNil()
}
