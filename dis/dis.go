// Package dis supports analysis of translated code by disassembling it.
// Target code is listed instruction by instruction with its operands
// resolved against the code's tables; source units can be listed as
// normalized instructions and as basic blocks with their analysis results.
package dis

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/cfg"
	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/infer"
	"github.com/deepnoodle-ai/pyxlate/internal/table"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Instruction represents a single target instruction and its operands.
type Instruction struct {
	Offset     int
	Name       string
	Opcode     op.Code
	Operands   []op.Code
	Annotation string
	Constant   any
	Line       int
}

// Disassemble returns a parsed representation of the given code.
func Disassemble(code *bytecode.Code) ([]Instruction, error) {
	var instructions []Instruction
	for offset := 0; offset < code.InstructionCount(); {
		opcode := code.InstructionAt(offset)
		if opcode > 255 {
			return nil, fmt.Errorf("unknown opcode %d at offset %d", opcode, offset)
		}
		info := op.GetInfo(opcode)
		if info.Name == "" {
			return nil, fmt.Errorf("unknown opcode %d at offset %d", opcode, offset)
		}
		if offset+info.OperandCount >= code.InstructionCount() {
			return nil, fmt.Errorf("truncated %s at offset %d", info.Name, offset)
		}
		operands := make([]op.Code, info.OperandCount)
		for i := range operands {
			operands[i] = code.InstructionAt(offset + 1 + i)
		}
		instr := Instruction{
			Offset:   offset,
			Name:     info.Name,
			Opcode:   opcode,
			Operands: operands,
			Line:     code.LocationAt(offset).Line,
		}
		if err := annotate(code, &instr, info); err != nil {
			return nil, err
		}
		instructions = append(instructions, instr)
		offset += 1 + info.OperandCount
	}
	return instructions, nil
}

func annotate(code *bytecode.Code, instr *Instruction, info op.Info) error {
	if info.Jump {
		instr.Annotation = fmt.Sprintf("to %d", instr.Operands[0])
		return nil
	}
	if len(instr.Operands) == 0 {
		return nil
	}
	arg := int(instr.Operands[0])
	var err error
	switch instr.Opcode {
	case op.LoadFast, op.LoadFastChecked, op.LoadFastAndClear, op.StoreFast, op.DeleteFast,
		op.LoadDeref, op.StoreDeref, op.DeleteDeref, op.LoadClassDeref, op.LoadFromDictOrDeref,
		op.LoadClosure, op.MakeCell:
		instr.Annotation, err = localName(code, arg)
	case op.LoadGlobal, op.StoreGlobal, op.DeleteGlobal, op.LoadName, op.StoreName, op.DeleteName,
		op.LoadAttr, op.LoadMethod, op.StoreAttr, op.DeleteAttr, op.LoadSuperAttr,
		op.ImportName, op.ImportFrom:
		instr.Annotation, err = name(code, arg)
	case op.BinaryOp, op.AddInt, op.SubtractInt, op.MultiplyInt, op.FloorDivInt, op.ModuloInt,
		op.AddFloat, op.SubtractFloat, op.MultiplyFloat, op.TrueDivFloat, op.AddStr:
		instr.Annotation = binaryOperator(arg)
	case op.CompareOp, op.CompareInt, op.CompareFloat:
		instr.Annotation = op.CompareOpType(arg).String()
	case op.LoadConst, op.ReturnConst:
		instr.Constant, err = constant(code, arg)
		if err == nil {
			instr.Annotation = describe(instr.Constant)
		}
	case op.CallKw:
		var kw any
		kw, err = constant(code, int(instr.Operands[1]))
		if err == nil {
			instr.Annotation = describe(kw)
		}
	}
	return err
}

func binaryOperator(arg int) string {
	if arg >= op.InplaceFlag {
		return op.BinaryOpType(arg-op.InplaceFlag).String() + "="
	}
	return op.BinaryOpType(arg).String()
}

func describe(c any) string {
	switch c := c.(type) {
	case *bytecode.Code:
		return "code:" + c.QualName()
	case object.Object:
		s, err := object.Repr(context.Background(), c)
		if err != nil {
			return "<" + c.Type().Name() + ">"
		}
		if len(s) > 80 {
			s = s[:77] + "..."
		}
		return s
	}
	return fmt.Sprintf("%v", c)
}

func localName(code *bytecode.Code, index int) (string, error) {
	if code.LocalCount() <= index {
		return "", fmt.Errorf("local variable index out of range: %d", index)
	}
	if name := code.LocalNameAt(index); name != "" {
		return name, nil
	}
	return fmt.Sprintf("local_%d", index), nil
}

func name(code *bytecode.Code, index int) (string, error) {
	if code.NameCount() <= index {
		return "", fmt.Errorf("name index out of range: %d", index)
	}
	return code.NameAt(index), nil
}

func constant(code *bytecode.Code, index int) (any, error) {
	if code.ConstantCount() <= index {
		return nil, fmt.Errorf("constant index out of range: %d", index)
	}
	return code.ConstantAt(index), nil
}

// ColorEnabled reports whether output to w should be colored.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var (
	bold    = color.New(color.Bold).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgHiCyan).SprintFunc()
)

func info(instr Instruction) string {
	switch c := instr.Constant.(type) {
	case nil:
		if instr.Annotation == "" {
			return ""
		}
		return cyan(instr.Annotation)
	case *object.Int, *object.Float, *object.Complex:
		return yellow(instr.Annotation)
	case *object.Str, *object.Bytes:
		return green(instr.Annotation)
	case *bytecode.Code:
		return magenta("code:" + c.QualName())
	}
	return bold(instr.Annotation)
}

// Print a string representation of the given instructions to the given
// writer.
func Print(instructions []Instruction, writer io.Writer) error {
	var lines [][]string
	for _, instr := range instructions {
		lines = append(lines, []string{
			fmt.Sprintf("%d", instr.Offset),
			bold(instr.Name),
			formatOperands(instr.Operands),
			info(instr),
		})
	}
	return table.NewTable(writer).
		WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

func formatOperands(ops []op.Code) string {
	parts := make([]string, len(ops))
	for i, o := range ops {
		parts[i] = fmt.Sprintf("%d", o)
	}
	return strings.Join(parts, ", ")
}

// PrintHandlers writes the exception handler table of code.
func PrintHandlers(code *bytecode.Code, writer io.Writer) error {
	if code.HandlerCount() == 0 {
		return nil
	}
	t := table.NewTable(writer).
		WithHeader([]string{"START", "END", "TARGET", "DEPTH", "LASTI"}).
		WithColumnAlignment([]table.Alignment{table.AlignRight, table.AlignRight, table.AlignRight, table.AlignRight, table.AlignLeft})
	for i := 0; i < code.HandlerCount(); i++ {
		h := code.HandlerAt(i)
		lasti := ""
		if h.Lasti {
			lasti = "yes"
		}
		t.Append([]string{
			fmt.Sprint(h.Start), fmt.Sprint(h.End), fmt.Sprint(h.Target), fmt.Sprint(h.Depth), lasti,
		})
	}
	return t.Render()
}

// PrintSuspensions writes the yield points of code with the slots each
// keeps live.
func PrintSuspensions(code *bytecode.Code, writer io.Writer) error {
	if code.SuspensionCount() == 0 {
		return nil
	}
	t := table.NewTable(writer).
		WithHeader([]string{"YIELD", "LINE", "LIVE"}).
		WithColumnAlignment([]table.Alignment{table.AlignRight, table.AlignRight, table.AlignLeft})
	for i := 0; i < code.SuspensionCount(); i++ {
		sp := code.SuspensionAt(i)
		names := make([]string, len(sp.Live))
		for j, slot := range sp.Live {
			names[j] = code.LocalNameAt(slot)
		}
		t.Append([]string{fmt.Sprint(sp.IP), fmt.Sprint(code.LocationAt(sp.IP).Line), strings.Join(names, " ")})
	}
	return t.Render()
}

// PrintHeader writes a one-line summary identifying code.
func PrintHeader(code *bytecode.Code, writer io.Writer) error {
	_, err := fmt.Fprintf(writer, "%s %s (%s, %d words) id %s\n",
		bold("code"), code.QualName(), code.Dialect(), code.InstructionCount(), code.ID())
	return err
}

// PrintSource writes the normalized source instructions of a unit.
func PrintSource(instrs []decode.Instruction, writer io.Writer) error {
	t := table.NewTable(writer).
		WithHeader([]string{"OFFSET", "LINE", "OPCODE", "ARG", "INFO"}).
		WithColumnAlignment([]table.Alignment{table.AlignRight, table.AlignRight, table.AlignLeft, table.AlignRight, table.AlignLeft})
	for _, instr := range instrs {
		offset := fmt.Sprint(instr.Offset)
		if instr.JumpTarget {
			offset = ">> " + offset
		}
		var note string
		if instr.Target >= 0 {
			note = cyan(fmt.Sprintf("to %d", instr.Target))
		}
		t.Append([]string{offset, fmt.Sprint(instr.Line), bold(instr.Op.String()), fmt.Sprint(instr.Arg), note})
	}
	return t.Render()
}

// PrintBlocks writes the basic blocks of g with their entry depth, entry
// stack types and successors. types may be nil.
func PrintBlocks(g *cfg.Graph, types *infer.Result, writer io.Writer) error {
	t := table.NewTable(writer).
		WithHeader([]string{"BLOCK", "OFFSETS", "DEPTH", "STACK", "LIVE", "SUCCESSORS"}).
		WithColumnAlignment([]table.Alignment{table.AlignRight, table.AlignLeft, table.AlignRight, table.AlignLeft, table.AlignLeft, table.AlignLeft})
	instrs := g.Unit.Instructions
	for _, b := range g.Blocks {
		offsets := fmt.Sprintf("%d-%d", instrs[b.Start].Offset, instrs[b.End-1].Offset)
		depth := "-"
		stack := ""
		if b.Reachable() {
			depth = fmt.Sprint(b.EntryDepth)
			if types != nil {
				kinds := types.Stack(b.Start)
				parts := make([]string, len(kinds))
				for i, k := range kinds {
					parts[i] = k.String()
				}
				stack = "[" + strings.Join(parts, " ") + "]"
			}
		}
		succs := make([]string, len(b.Succs))
		for i, e := range b.Succs {
			succs[i] = fmt.Sprintf("%d(%s)", e.To, e.Kind)
		}
		t.Append([]string{fmt.Sprint(b.ID), offsets, depth, stack, strings.Join(g.Live(b.ID), " "), strings.Join(succs, " ")})
	}
	return t.Render()
}
