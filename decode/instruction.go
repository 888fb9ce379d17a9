// Package decode turns per-dialect source bytecode into a normalized,
// dialect-independent instruction sequence and parses exception tables.
package decode

import (
	"fmt"
	"sort"

	"github.com/deepnoodle-ai/pyxlate/errz"
	"github.com/deepnoodle-ai/pyxlate/pyop"
)

// Tuple is one entry of a disassembled instruction stream as reported by
// the source interpreter. Offsets are in bytes. A nil Arg means the
// instruction carries no argument.
type Tuple struct {
	Opname       string `json:"opname"`
	Arg          *int   `json:"arg,omitempty"`
	Offset       int    `json:"offset"`
	Line         int    `json:"line,omitempty"`
	IsJumpTarget bool   `json:"is_jump_target,omitempty"`
}

// LineStart marks the first byte offset belonging to a source line.
type LineStart struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
}

// Instruction is a normalized source instruction. Offsets and jump targets
// are expressed in code units.
type Instruction struct {
	Op         pyop.Opcode
	Arg        int
	Offset     int
	Line       int
	JumpTarget bool
	// Target is the absolute jump destination, or -1 for non-jumps.
	Target int
}

// String returns a dis-like rendering of the instruction.
func (i Instruction) String() string {
	s := fmt.Sprintf("%4d %s %d", i.Offset, i.Op, i.Arg)
	if i.Target >= 0 {
		s += fmt.Sprintf(" (to %d)", i.Target)
	}
	return s
}

// Decode normalizes a disassembled instruction stream of the given dialect.
// Explicit CACHE entries are dropped. Jump targets are resolved to absolute
// unit offsets and every resolved target is flagged as a jump target.
func Decode(d pyop.Dialect, tuples []Tuple) ([]Instruction, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	out := make([]Instruction, 0, len(tuples))
	last := -1
	for _, t := range tuples {
		op, ok := pyop.Lookup(t.Opname)
		if !ok || !d.Has(op) {
			return nil, errz.At(errz.ErrMalformed, t.Offset/2,
				"opcode %q does not exist in dialect %s", t.Opname, d)
		}
		if t.Offset%2 != 0 || t.Offset < 0 {
			return nil, errz.At(errz.ErrMalformed, t.Offset/2,
				"byte offset %d is not aligned to a code unit", t.Offset)
		}
		unit := t.Offset / 2
		if unit <= last {
			return nil, errz.At(errz.ErrMalformed, unit,
				"offsets must be strictly increasing (previous %d)", last)
		}
		last = unit
		if op == pyop.Cache {
			continue
		}
		arg := 0
		if t.Arg != nil {
			arg = *t.Arg
		}
		out = append(out, Instruction{
			Op:         op,
			Arg:        arg,
			Offset:     unit,
			Line:       t.Line,
			JumpTarget: t.IsJumpTarget,
			Target:     -1,
		})
	}
	if err := resolveJumps(d, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeWordcode decodes raw co_code bytes of the given dialect. EXTENDED_ARG
// prefixes are folded into the argument of the instruction they precede and
// inline cache units are skipped.
func DecodeWordcode(d pyop.Dialect, code []byte, lines []LineStart) ([]Instruction, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	if len(code)%2 != 0 {
		return nil, errz.Newf(errz.ErrMalformed, "wordcode length %d is odd", len(code))
	}
	lines = append([]LineStart(nil), lines...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].Offset < lines[j].Offset })
	lineAt := func(byteOffset int) int {
		i := sort.Search(len(lines), func(i int) bool { return lines[i].Offset > byteOffset })
		if i == 0 {
			return 0
		}
		return lines[i-1].Line
	}
	var out []Instruction
	ext := 0
	for pc := 0; pc < len(code)/2; {
		b, raw := code[2*pc], int(code[2*pc+1])
		op := d.FromByte(b)
		if op == pyop.Invalid {
			return nil, errz.At(errz.ErrMalformed, pc, "unknown opcode byte %d in dialect %s", b, d)
		}
		arg := 0
		if pyop.HasArgument(b) {
			arg = ext<<8 | raw
		}
		if op == pyop.ExtendedArg {
			ext = arg
		} else {
			ext = 0
		}
		out = append(out, Instruction{
			Op:     op,
			Arg:    arg,
			Offset: pc,
			Line:   lineAt(2 * pc),
			Target: -1,
		})
		pc += 1 + d.CacheEntries(op)
	}
	if err := resolveJumps(d, out); err != nil {
		return nil, err
	}
	return out, nil
}

func resolveJumps(d pyop.Dialect, instrs []Instruction) error {
	index := make(map[int]int, len(instrs))
	for i, instr := range instrs {
		index[instr.Offset] = i
	}
	for i := range instrs {
		instr := &instrs[i]
		if !instr.Op.IsJump() {
			continue
		}
		target := d.JumpTarget(instr.Op, instr.Offset, instr.Arg)
		j, ok := index[target]
		if !ok {
			return errz.At(errz.ErrMalformed, instr.Offset,
				"%s jumps to %d which is not an instruction boundary", instr.Op, target)
		}
		instr.Target = target
		instrs[j].JumpTarget = true
	}
	return nil
}

// Index maps unit offsets to positions in an instruction slice.
func Index(instrs []Instruction) map[int]int {
	index := make(map[int]int, len(instrs))
	for i, instr := range instrs {
		index[instr.Offset] = i
	}
	return index
}
