package bytecode

import (
	"testing"

	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/stretchr/testify/require"
)

func TestNewCodeImmutability(t *testing.T) {
	instructions := []op.Code{op.LoadConst, 0, op.ReturnValue}
	constants := []any{42, "hello"}
	names := []string{"foo", "bar"}
	locations := []SourceLocation{{Line: 1}, {Line: 1}, {Line: 2, Offset: 4}}
	handlers := []Handler{{Start: 0, End: 2, Target: 2}}
	locals := []string{"x"}

	code := NewCode(CodeParams{
		Name:         "f",
		Instructions: instructions,
		Constants:    constants,
		Names:        names,
		Locations:    locations,
		Handlers:     handlers,
		LocalNames:   locals,
		LocalKinds:   []LocalKind{LocalFast},
	})

	instructions[0] = op.Nop
	constants[0] = 99
	names[0] = "modified"
	locations[0] = SourceLocation{Line: 999}
	handlers[0] = Handler{Start: 999}
	locals[0] = "y"

	require.Equal(t, op.LoadConst, code.InstructionAt(0))
	require.Equal(t, 42, code.ConstantAt(0))
	require.Equal(t, "foo", code.NameAt(0))
	require.Equal(t, 1, code.LocationAt(0).Line)
	require.Equal(t, 0, code.HandlerAt(0).Start)
	require.Equal(t, "x", code.LocalNameAt(0))
}

func TestCodeAccessors(t *testing.T) {
	code := NewCode(CodeParams{
		ID:           "test-id",
		Name:         "inner",
		QualName:     "outer.<locals>.inner",
		Filename:     "m.py",
		Dialect:      "3.12",
		FirstLine:    7,
		Flags:        FlagOptimized | FlagNested,
		Instructions: []op.Code{op.LoadConst, 0, op.ReturnValue},
		Constants:    []any{42},
		MaxStack:     3,
	})
	require.Equal(t, "test-id", code.ID())
	require.Equal(t, "inner", code.Name())
	require.Equal(t, "outer.<locals>.inner", code.QualName())
	require.Equal(t, "m.py", code.Filename())
	require.Equal(t, "3.12", code.Dialect())
	require.Equal(t, 7, code.FirstLine())
	require.True(t, code.Has(FlagOptimized))
	require.False(t, code.IsGenerator())
	require.Equal(t, 3, code.InstructionCount())
	require.Equal(t, 3, code.MaxStack())
	require.Equal(t, SourceLocation{}, code.LocationAt(10))
	require.Equal(t, "", code.LocalNameAt(-1))
}

func TestCodeGeneratesID(t *testing.T) {
	a := NewCode(CodeParams{Name: "a"})
	b := NewCode(CodeParams{Name: "a"})
	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
	require.Equal(t, "a", a.QualName())
}

func TestCodeWithChildren(t *testing.T) {
	grandchild := NewCode(CodeParams{Name: "g", Instructions: []op.Code{op.Nop}})
	child := NewCode(CodeParams{Name: "c", Children: []*Code{grandchild}, MaxStack: 5})
	root := NewCode(CodeParams{Name: "r", Children: []*Code{child}, Constants: []any{1, 2}})

	require.Equal(t, 1, root.ChildCount())
	require.Same(t, child, root.ChildAt(0))
	require.Same(t, root, child.Parent())
	require.Same(t, child, grandchild.Parent())
	require.Len(t, root.Flatten(), 3)

	stats := root.Stats()
	require.Equal(t, 2, stats.ChildCount)
	require.Equal(t, 1, stats.InstructionCount)
	require.Equal(t, 2, stats.ConstantCount)
	require.Equal(t, 5, stats.MaxStack)
}

func TestHandlerForPicksInnermost(t *testing.T) {
	code := NewCode(CodeParams{
		Name: "f",
		Handlers: []Handler{
			{Start: 0, End: 20, Target: 30, Depth: 0},
			{Start: 4, End: 10, Target: 22, Depth: 1, Lasti: true},
		},
	})
	h, ok := code.HandlerFor(5)
	require.True(t, ok)
	require.Equal(t, 22, h.Target)
	require.True(t, h.Lasti)

	h, ok = code.HandlerFor(12)
	require.True(t, ok)
	require.Equal(t, 30, h.Target)

	_, ok = code.HandlerFor(20)
	require.False(t, ok)
	require.Equal(t, "4 to 10 -> 22 [1] lasti", code.HandlerAt(1).String())
}

func TestSignature(t *testing.T) {
	code := NewCode(CodeParams{
		Name:            "f",
		Flags:           FlagOptimized | FlagVarArgs | FlagVarKeywords,
		ArgCount:        2,
		PosOnlyArgCount: 1,
		KwOnlyArgCount:  1,
		LocalNames:      []string{"a", "b", "c", "args", "kw", "tmp"},
		LocalKinds:      []LocalKind{LocalFast, LocalFast, LocalFast, LocalFast, LocalFast, LocalFast},
	})
	sig := code.Signature()
	require.Equal(t, []string{"a", "b", "c", "args", "kw"}, sig.Names)
	require.Equal(t, 3, sig.VarArgsIndex())
	require.Equal(t, 4, sig.VarKeywordsIndex())
	require.Equal(t, "(a, /, b, *args, c, **kw)", sig.String())

	plain := NewCode(CodeParams{Name: "g", KwOnlyArgCount: 1, LocalNames: []string{"k"}, LocalKinds: []LocalKind{LocalFast}})
	require.Equal(t, "(*, k)", plain.Signature().String())
	require.Equal(t, -1, plain.Signature().VarArgsIndex())
}

func TestCellNames(t *testing.T) {
	code := NewCode(CodeParams{
		Name:       "f",
		LocalNames: []string{"x", "y", "z"},
		LocalKinds: []LocalKind{LocalFast | LocalCell, LocalFast, LocalFree},
	})
	require.Equal(t, []string{"x", "z"}, code.CellNames())
	require.Equal(t, 1, code.FreeCount())
	require.Equal(t, LocalFree, code.LocalKindAt(2))
}
