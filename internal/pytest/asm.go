// Package pytest assembles synthetic source code objects for tests. It lays
// out instructions with the byte offsets, inline caches, EXTENDED_ARG
// prefixes, jump arguments and exception tables a real interpreter of the
// chosen dialect would produce.
package pytest

import (
	"fmt"

	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/source"
)

// Asm builds one instruction stream. Methods panic on programmer errors
// such as unknown opcode names or labels.
type Asm struct {
	dialect  pyop.Dialect
	items    []item
	labels   map[string]int
	handlers []handler
	line     int
}

type item struct {
	op    pyop.Opcode
	arg   int
	label string
	line  int
}

type handler struct {
	start, end, target string
	depth              int
	lasti              bool
}

// New returns an empty assembler for dialect d.
func New(d pyop.Dialect) *Asm {
	return &Asm{dialect: d, labels: map[string]int{}, line: 1}
}

// Dialect returns the dialect being assembled.
func (a *Asm) Dialect() pyop.Dialect { return a.dialect }

// Line sets the source line of the instructions that follow.
func (a *Asm) Line(n int) *Asm {
	a.line = n
	return a
}

// Label names the position of the next instruction. A label placed after
// the last instruction marks the end of the stream.
func (a *Asm) Label(name string) *Asm {
	if _, dup := a.labels[name]; dup {
		panic(fmt.Sprintf("pytest: duplicate label %q", name))
	}
	a.labels[name] = len(a.items)
	return a
}

// Op appends an instruction by CPython name with an optional argument.
func (a *Asm) Op(name string, arg ...int) *Asm {
	o := a.lookup(name)
	it := item{op: o, line: a.line}
	if len(arg) > 0 {
		it.arg = arg[0]
	}
	a.items = append(a.items, it)
	return a
}

// Jump appends a jump instruction whose argument is computed from label.
func (a *Asm) Jump(name, label string) *Asm {
	o := a.lookup(name)
	if !o.IsJump() {
		panic(fmt.Sprintf("pytest: %s is not a jump", name))
	}
	a.items = append(a.items, item{op: o, label: label, line: a.line})
	return a
}

// Handler adds an exception table entry covering the instructions from
// label start up to, not including, label end.
func (a *Asm) Handler(start, end, target string, depth int, lasti bool) *Asm {
	a.handlers = append(a.handlers, handler{start: start, end: end, target: target, depth: depth, lasti: lasti})
	return a
}

func (a *Asm) lookup(name string) pyop.Opcode {
	o, ok := pyop.Lookup(name)
	if !ok || !a.dialect.Has(o) {
		panic(fmt.Sprintf("pytest: no opcode %s in dialect %s", name, a.dialect))
	}
	return o
}

func (a *Asm) position(label string) int {
	i, ok := a.labels[label]
	if !ok {
		panic(fmt.Sprintf("pytest: undefined label %q", label))
	}
	return i
}

type layout struct {
	// offsets holds the unit offset of each instruction proper, after its
	// EXTENDED_ARG prefixes; the final entry is the stream length.
	offsets  []int
	prefixes []int
	args     []int
}

// start is the offset of item i including its prefixes, which is where
// jumps and exception ranges point.
func (l *layout) start(i int) int {
	if i == len(l.prefixes) {
		return l.offsets[i]
	}
	return l.offsets[i] - l.prefixes[i]
}

func prefixCount(arg int) int {
	n := 0
	for arg > 0xff {
		arg >>= 8
		n++
	}
	return n
}

func (a *Asm) layout() *layout {
	n := len(a.items)
	l := &layout{offsets: make([]int, n+1), prefixes: make([]int, n), args: make([]int, n)}
	for i, it := range a.items {
		l.args[i] = it.arg
		l.prefixes[i] = prefixCount(it.arg)
	}
	for changed := true; changed; {
		pc := 0
		for i, it := range a.items {
			pc += l.prefixes[i]
			l.offsets[i] = pc
			pc += 1 + a.dialect.CacheEntries(it.op)
		}
		l.offsets[n] = pc
		changed = false
		for i, it := range a.items {
			if it.label == "" {
				continue
			}
			l.args[i] = a.jumpArg(it.op, l.offsets[i], l.start(a.position(it.label)))
			if p := prefixCount(l.args[i]); p != l.prefixes[i] {
				l.prefixes[i] = p
				changed = true
			}
		}
	}
	return l
}

func (a *Asm) jumpArg(o pyop.Opcode, at, target int) int {
	base := a.dialect.JumpTarget(o, at, 0)
	arg := target - base
	if a.dialect.JumpTarget(o, at, 1) < base {
		arg = base - target
	}
	if arg < 0 {
		panic(fmt.Sprintf("pytest: %s at %d cannot reach %d", o, at, target))
	}
	return arg
}

func (a *Asm) hasArg(o pyop.Opcode) bool {
	b, _ := a.dialect.Byte(o)
	return pyop.HasArgument(b)
}

// Tuples returns the stream the way dis reports it: byte offsets, explicit
// EXTENDED_ARG entries and no CACHE entries.
func (a *Asm) Tuples() []decode.Tuple {
	l := a.layout()
	targets := map[int]bool{}
	for _, it := range a.items {
		if it.label != "" {
			targets[l.start(a.position(it.label))] = true
		}
	}
	var out []decode.Tuple
	for i, it := range a.items {
		for p := l.prefixes[i]; p > 0; p-- {
			ext := l.args[i] >> (8 * p)
			off := l.offsets[i] - p
			out = append(out, decode.Tuple{
				Opname:       pyop.ExtendedArg.String(),
				Arg:          &ext,
				Offset:       2 * off,
				Line:         it.line,
				IsJumpTarget: targets[off],
			})
		}
		t := decode.Tuple{
			Opname:       it.op.String(),
			Offset:       2 * l.offsets[i],
			Line:         it.line,
			IsJumpTarget: l.prefixes[i] == 0 && targets[l.offsets[i]],
		}
		if a.hasArg(it.op) {
			v := l.args[i]
			t.Arg = &v
		}
		out = append(out, t)
	}
	return out
}

// Wordcode returns raw co_code bytes with zeroed inline caches, and the
// line table.
func (a *Asm) Wordcode() ([]byte, []decode.LineStart) {
	l := a.layout()
	code := make([]byte, 2*l.offsets[len(a.items)])
	ext, _ := a.dialect.Byte(pyop.ExtendedArg)
	var lines []decode.LineStart
	for i, it := range a.items {
		start := l.start(i)
		if len(lines) == 0 || lines[len(lines)-1].Line != it.line {
			lines = append(lines, decode.LineStart{Offset: 2 * start, Line: it.line})
		}
		for p := l.prefixes[i]; p > 0; p-- {
			pos := l.offsets[i] - p
			code[2*pos] = ext
			code[2*pos+1] = byte(l.args[i] >> (8 * p))
		}
		b, _ := a.dialect.Byte(it.op)
		code[2*l.offsets[i]] = b
		if a.hasArg(it.op) {
			code[2*l.offsets[i]+1] = byte(l.args[i])
		}
	}
	return code, lines
}

// Entries returns the exception table entries in unit offsets.
func (a *Asm) Entries() []decode.ExceptionEntry {
	l := a.layout()
	out := make([]decode.ExceptionEntry, 0, len(a.handlers))
	for _, h := range a.handlers {
		out = append(out, decode.ExceptionEntry{
			Start:  l.start(a.position(h.start)),
			End:    l.start(a.position(h.end)) - 1,
			Target: l.start(a.position(h.target)),
			Depth:  h.depth,
			Lasti:  h.lasti,
		})
	}
	return out
}

// ExceptionTable returns the encoded co_exceptiontable.
func (a *Asm) ExceptionTable() []byte {
	if len(a.handlers) == 0 {
		return nil
	}
	return decode.EncodeExceptionTable(a.Entries())
}

// Instructions decodes the assembled stream.
func (a *Asm) Instructions() []decode.Instruction {
	instrs, err := decode.Decode(a.dialect, a.Tuples())
	if err != nil {
		panic(fmt.Sprintf("pytest: assembled stream does not decode: %v", err))
	}
	return instrs
}

// Spec carries the non-instruction fields of a code object.
type Spec struct {
	Name      string
	QualName  string
	Filename  string
	FirstLine int
	ArgCount  int
	PosOnly   int
	KwOnly    int
	Flags     int
	StackSize int
	Consts    []source.Value
	Names     []string
	VarNames  []string
	CellVars  []string
	FreeVars  []string
}

// Code returns a code object carrying the tuple form of the stream.
func (a *Asm) Code(s Spec) *source.Code {
	c := a.base(s)
	c.Instructions = a.Tuples()
	return c
}

// WordcodeCode returns a code object carrying raw wordcode.
func (a *Asm) WordcodeCode(s Spec) *source.Code {
	c := a.base(s)
	c.Wordcode, c.Lines = a.Wordcode()
	return c
}

func (a *Asm) base(s Spec) *source.Code {
	if s.QualName == "" {
		s.QualName = s.Name
	}
	if s.Filename == "" {
		s.Filename = "<test>"
	}
	if s.FirstLine == 0 {
		s.FirstLine = 1
	}
	return &source.Code{
		Version:         a.dialect.String(),
		Name:            s.Name,
		QualName:        s.QualName,
		Filename:        s.Filename,
		FirstLine:       s.FirstLine,
		ArgCount:        s.ArgCount,
		PosOnlyArgCount: s.PosOnly,
		KwOnlyArgCount:  s.KwOnly,
		Flags:           s.Flags,
		StackSize:       s.StackSize,
		Consts:          s.Consts,
		Names:           s.Names,
		VarNames:        s.VarNames,
		CellVars:        s.CellVars,
		FreeVars:        s.FreeVars,
		ExceptionTable:  a.ExceptionTable(),
	}
}
