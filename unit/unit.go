// Package unit assembles CompiledUnits: the normalized, dialect-independent
// description of one function, method, or class body that every later
// translation stage consumes.
package unit

import (
	"github.com/deepnoodle-ai/pyxlate/decode"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/source"
)

// Unit is a CompiledUnit. It is built once per source unit and never
// modified afterwards.
type Unit struct {
	Name      string
	QualName  string
	Module    string
	Filename  string
	Dialect   pyop.Dialect
	FirstLine int
	// Flags holds the source code object flags (pyop.Co*).
	Flags           int
	ArgCount        int
	PosOnlyArgCount int
	KwOnlyArgCount  int
	StackSize       int

	Instructions []decode.Instruction
	Exceptions   []decode.ExceptionEntry

	Consts []Const
	// Names are attribute and global names, copied verbatim.
	Names []string
	// VarNames, CellVars and FreeVars are sanitized local slot names.
	VarNames []string
	CellVars []string
	FreeVars []string

	// Function level parts. They are empty for a bare code unit.
	Defaults    []object.Object
	KwDefaults  *object.Dict
	Annotations []Annotation
	Closure     []*object.Cell
	Globals     *object.Dict
	// GlobalNames is the subset of names, over this unit and its nested
	// units, that the globals snapshot is filled with.
	GlobalNames []string

	Source   *source.Code
	Function *source.Function
	globals  *source.Dict
}

// Const is one constant pool entry. Exactly one of Value and Code is set.
type Const struct {
	Value object.Object
	Code  *Unit
}

// Annotation pairs a parameter (or "return") with its resolved type.
type Annotation struct {
	Name string
	Type *object.Type
}

// Has reports whether all of the given code flags are set.
func (u *Unit) Has(flags int) bool { return u.Flags&flags == flags }

// IsGenerator reports whether the unit compiles to a resumable body.
func (u *Unit) IsGenerator() bool {
	return u.Flags&(pyop.CoGenerator|pyop.CoCoroutine|pyop.CoIterableCoroutine) != 0
}

// IsClassBody reports whether the unit is a class body: it runs in a
// namespace dictionary rather than fast locals and is not a module.
func (u *Unit) IsClassBody() bool {
	return u.Flags&pyop.CoOptimized == 0 && u.Name != "<module>"
}

// LocalsPlus returns the local slot names in slot order: plain locals,
// then cell variables that are not arguments, then free variables.
func (u *Unit) LocalsPlus() []string {
	out := append([]string(nil), u.VarNames...)
	for _, c := range u.CellVars {
		if !contains(u.VarNames, c) {
			out = append(out, c)
		}
	}
	return append(out, u.FreeVars...)
}

// Nested returns the units nested in the constant pool, recursively.
func (u *Unit) Nested() []*Unit {
	var out []*Unit
	for _, c := range u.Consts {
		if c.Code != nil {
			out = append(out, c.Code)
			out = append(out, c.Code.Nested()...)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
