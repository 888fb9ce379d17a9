package dis

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/bytecode"
	"github.com/deepnoodle-ai/pyxlate/cfg"
	"github.com/deepnoodle-ai/pyxlate/codegen"
	"github.com/deepnoodle-ai/pyxlate/infer"
	"github.com/deepnoodle-ai/pyxlate/internal/pytest"
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/deepnoodle-ai/pyxlate/pyop"
	"github.com/deepnoodle-ai/pyxlate/unit"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func noColor(t *testing.T) {
	saved := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = saved })
}

// def f(x): return x + 1
func addOne() *unit.Unit {
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("LOAD_CONST", 1).
		Op("BINARY_OP", pyop.NbAdd).
		Op("RETURN_VALUE")
	return &unit.Unit{
		Name:         "f",
		QualName:     "f",
		Dialect:      a.Dialect(),
		Flags:        pyop.CoOptimized | pyop.CoNewLocals,
		ArgCount:     1,
		VarNames:     []string{"x"},
		Consts:       []unit.Const{{Value: object.None}, {Value: object.NewInt(1)}},
		Instructions: a.Instructions(),
		Exceptions:   a.Entries(),
	}
}

func generate(t *testing.T, u *unit.Unit) *bytecode.Code {
	t.Helper()
	code, err := codegen.Generate(u)
	require.NoError(t, err)
	return code
}

func TestFunctionDisassembly(t *testing.T) {
	noColor(t)
	instructions, err := Disassemble(generate(t, addOne()))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Print(instructions, &buf))

	expected := strings.TrimSpace(`
+--------+--------------+----------+------+
| OFFSET |    OPCODE    | OPERANDS | INFO |
+--------+--------------+----------+------+
|      0 | LOAD_FAST    |        0 | x    |
|      2 | LOAD_CONST   |        1 | 1    |
|      4 | BINARY_OP    |        0 | +    |
|      6 | RETURN_VALUE |          |      |
+--------+--------------+----------+------+
`)
	require.Equal(t, expected+"\n", buf.String())
	require.Equal(t, 1, instructions[0].Line)
	require.Equal(t, object.NewInt(1), instructions[1].Constant)
}

func TestJumpAnnotation(t *testing.T) {
	// def f(x):
	//     if x:
	//         return 1
	//     return 2
	a := pytest.New(pyop.Py311).
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Jump("POP_JUMP_FORWARD_IF_FALSE", "else").
		Op("LOAD_CONST", 1).
		Op("RETURN_VALUE").
		Label("else").
		Op("LOAD_CONST", 2).
		Op("RETURN_VALUE")
	u := addOne()
	u.Instructions = a.Instructions()
	u.Consts = append(u.Consts, unit.Const{Value: object.NewInt(2)})

	instructions, err := Disassemble(generate(t, u))
	require.NoError(t, err)
	var jump *Instruction
	for i := range instructions {
		if instructions[i].Opcode == op.PopJumpIfFalse {
			jump = &instructions[i]
		}
	}
	require.NotNil(t, jump)
	require.Equal(t, fmt.Sprintf("to %d", jump.Operands[0]), jump.Annotation)

	// The jump lands on the LOAD_CONST of the else branch.
	var target *Instruction
	for i := range instructions {
		if instructions[i].Offset == int(jump.Operands[0]) {
			target = &instructions[i]
		}
	}
	require.NotNil(t, target)
	require.Equal(t, op.LoadConst, target.Opcode)
	require.Equal(t, object.NewInt(2), target.Constant)
}

func TestInplaceOperator(t *testing.T) {
	require.Equal(t, "+=", binaryOperator(op.InplaceFlag))
	require.Equal(t, "*", binaryOperator(int(op.Multiply)))
}

func TestPrintSourceAndBlocks(t *testing.T) {
	noColor(t)
	u := addOne()

	var buf bytes.Buffer
	require.NoError(t, PrintSource(u.Instructions, &buf))
	out := buf.String()
	require.Contains(t, out, "BINARY_OP")
	require.Contains(t, out, "RESUME")

	g, err := cfg.Build(u)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, PrintBlocks(g, infer.Analyze(g), &buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[1], "SUCCESSORS")
	require.Contains(t, lines[1], "LIVE")
	require.Contains(t, lines[3], "[]")
	require.Equal(t, []string{"x"}, g.Live(0))
	require.Contains(t, lines[3], "x")
}

// def g(n):
//
//	x = n
//	yield n
//	yield x
func yieldTwice() *unit.Unit {
	a := pytest.New(pyop.Py311).
		Op("RETURN_GENERATOR").
		Op("POP_TOP").
		Op("RESUME", 0).
		Op("LOAD_FAST", 0).
		Op("STORE_FAST", 1).
		Op("LOAD_FAST", 0).
		Op("YIELD_VALUE").
		Op("RESUME", 1).
		Op("POP_TOP").
		Op("LOAD_FAST", 1).
		Op("YIELD_VALUE").
		Op("RESUME", 1).
		Op("POP_TOP").
		Op("LOAD_CONST", 0).
		Op("RETURN_VALUE")
	return &unit.Unit{
		Name:         "g",
		QualName:     "g",
		Dialect:      a.Dialect(),
		Flags:        pyop.CoOptimized | pyop.CoNewLocals | pyop.CoGenerator,
		ArgCount:     1,
		VarNames:     []string{"n", "x"},
		Consts:       []unit.Const{{Value: object.None}},
		Instructions: a.Instructions(),
		Exceptions:   a.Entries(),
	}
}

func TestPrintSuspensionsAndHeader(t *testing.T) {
	noColor(t)
	code := generate(t, yieldTwice())

	var buf bytes.Buffer
	require.NoError(t, PrintSuspensions(code, &buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Contains(t, lines[1], "YIELD")
	require.Contains(t, buf.String(), "x")
	require.NotContains(t, buf.String(), "n ")

	buf.Reset()
	require.NoError(t, PrintHeader(code, &buf))
	require.Equal(t, fmt.Sprintf("code g (3.11, %d words) id %s\n", code.InstructionCount(), code.ID()), buf.String())

	buf.Reset()
	require.NoError(t, PrintSuspensions(generate(t, addOne()), &buf))
	require.Empty(t, buf.String())
}

func TestColorEnabledRequiresTerminal(t *testing.T) {
	require.False(t, ColorEnabled(&bytes.Buffer{}))
}
