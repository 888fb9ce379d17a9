package codegen

import (
	"math"
	"sort"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/op"
)

// fixup is a jump operand waiting for its target position. Source jumps
// name a source offset; jumps into generated stubs name a word index.
type fixup struct {
	at     int
	offset int
	word   int
}

// stub is a short instruction sequence appended after the main body, used
// where a source branch lands on a stack shape the target op does not
// produce directly.
type stub struct {
	sendAt int // operand of the Send that branches here
	target int // source offset to continue at
	loc    bytecode.SourceLocation
}

// code is the mutable form of one target code block while it is being
// generated.
type code struct {
	instructions []op.Code
	locations    []bytecode.SourceLocation
	fixups       []fixup
	stubs        []stub
	suspensions  []bytecode.Suspension
	loc          bytecode.SourceLocation
	failure      error

	// pos maps each source instruction index to the word it starts at;
	// dropped instructions map to the next emitted word.
	pos []int
}

func (c *code) emit(opcode op.Code, operands ...int) int {
	info := op.GetInfo(opcode)
	if len(operands) != info.OperandCount {
		panic("codegen: wrong operand count for " + info.Name)
	}
	at := len(c.instructions)
	c.instructions = append(c.instructions, opcode)
	for _, o := range operands {
		if o < 0 || o > math.MaxUint16 {
			if c.failure == nil {
				c.failure = errz.At(errz.ErrUnmodeled, c.loc.Offset, "operand %d of %s out of range", o, info.Name)
			}
			o = 0
		}
		c.instructions = append(c.instructions, op.Code(o))
	}
	for range 1 + len(operands) {
		c.locations = append(c.locations, c.loc)
	}
	return at
}

// emitJump emits a jump whose operand is resolved once every source
// instruction has a position.
func (c *code) emitJump(opcode op.Code, target int, operands ...int) int {
	at := c.emit(opcode, append([]int{0}, operands...)...)
	c.fixups = append(c.fixups, fixup{at: at + 1, offset: target, word: -1})
	return at
}

func (c *code) changeOperand(at int, operand int) {
	c.instructions[at] = op.Code(operand)
}

// resolve patches jump operands, emitting stubs first.
func (c *code) resolve(index map[int]int) error {
	for _, s := range c.stubs {
		c.loc = s.loc
		start := c.emit(op.EndSend)
		c.emitJump(op.Jump, s.target)
		c.changeOperand(s.sendAt, start)
	}
	for _, f := range c.fixups {
		if f.word >= 0 {
			c.changeOperand(f.at, f.word)
			continue
		}
		i, ok := index[f.offset]
		if !ok {
			return errz.At(errz.ErrMalformed, f.offset, "jump to offset %d is not an instruction boundary", f.offset)
		}
		c.changeOperand(f.at, c.pos[i])
	}
	return c.failure
}

// handlers converts exception table entries into word ranges.
func (c *code) handlers(instrs []decode.Instruction, index map[int]int, entries []decode.ExceptionEntry) ([]bytecode.Handler, error) {
	out := make([]bytecode.Handler, 0, len(entries))
	for _, e := range entries {
		start, ok := index[e.Start]
		if !ok {
			return nil, errz.At(errz.ErrMalformed, e.Start, "exception range start is not an instruction boundary")
		}
		target, ok := index[e.Target]
		if !ok {
			return nil, errz.At(errz.ErrMalformed, e.Target, "exception handler is not an instruction boundary")
		}
		// End is inclusive and may point into the inline cache of the last
		// covered instruction.
		end := sort.Search(len(instrs), func(i int) bool { return instrs[i].Offset > e.End })
		h := bytecode.Handler{
			Start:  c.pos[start],
			End:    c.pos[end],
			Target: c.pos[target],
			Depth:  e.Depth,
			Lasti:  e.Lasti,
		}
		if h.Start < h.End {
			out = append(out, h)
		}
	}
	return out, nil
}
