package vm

import (
	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
)

// code is the interpreter's view of a bytecode.Code: instructions,
// constants and names unpacked into slices the eval loop indexes directly.
type code struct {
	*bytecode.Code
	Instructions []op.Code
	Constants    []object.Object
	Names        []string
	LocalNames   []string
	Kinds        []bytecode.LocalKind

	// kwnames caches the keyword name tuples referenced by CALL_KW.
	kwnames map[int][]string

	sig       bytecode.Signature
	optimized bool
	firstFree int
}

func wrapCode(bc *bytecode.Code) *code {
	c := &code{
		Code:         bc,
		Instructions: make([]op.Code, bc.InstructionCount()),
		Constants:    make([]object.Object, bc.ConstantCount()),
		Names:        make([]string, bc.NameCount()),
		LocalNames:   make([]string, bc.LocalCount()),
		Kinds:        make([]bytecode.LocalKind, bc.LocalCount()),
		kwnames:      map[int][]string{},
		sig:          bc.Signature(),
		optimized:    bc.Has(bytecode.FlagOptimized),
		firstFree:    bc.LocalCount() - bc.FreeCount(),
	}
	for i := range c.Instructions {
		c.Instructions[i] = bc.InstructionAt(i)
	}
	for i := range c.Names {
		c.Names[i] = bc.NameAt(i)
	}
	for i := range c.LocalNames {
		c.LocalNames[i] = bc.LocalNameAt(i)
		c.Kinds[i] = bc.LocalKindAt(i)
	}
	for i := range c.Constants {
		switch v := bc.ConstantAt(i).(type) {
		case object.Object:
			c.Constants[i] = v
		case *bytecode.Code:
			c.Constants[i] = object.NewCode(v)
		default:
			c.Constants[i] = object.None
		}
	}
	for i := 0; i+1 < len(c.Instructions); {
		opcode := c.Instructions[i]
		if opcode == op.CallKw {
			idx := int(c.Instructions[i+2])
			if t, ok := c.Constants[idx].(*object.Tuple); ok {
				names := make([]string, 0, t.Len())
				for _, n := range t.Items() {
					if s, ok := n.(*object.Str); ok {
						names = append(names, s.Value())
					}
				}
				c.kwnames[idx] = names
			}
		}
		i += 1 + op.GetInfo(opcode).OperandCount
	}
	return c
}

// isFree reports whether slot i holds a free variable.
func (c *code) isFree(i int) bool { return i >= c.firstFree }

// loadCode returns the cached wrapper for bc, creating it on first use.
func (vm *VirtualMachine) loadCode(bc *bytecode.Code) *code {
	vm.codeMutex.Lock()
	defer vm.codeMutex.Unlock()
	if c, ok := vm.loadedCode[bc]; ok {
		return c
	}
	c := wrapCode(bc)
	vm.loadedCode[bc] = c
	return c
}
