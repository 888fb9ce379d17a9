package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo(LoadGlobal)
	require.Equal(t, "LOAD_GLOBAL", info.Name)
	require.Equal(t, 2, info.OperandCount)
	require.Equal(t, LoadGlobal, info.Code)
	require.False(t, info.Jump)
}

func TestGetInfoOperands(t *testing.T) {
	tests := []struct {
		code     Code
		name     string
		operands int
		jump     bool
	}{
		{Nop, "NOP", 0, false},
		{Call, "CALL", 1, false},
		{CallKw, "CALL_KW", 2, false},
		{Jump, "JUMP", 1, true},
		{ForIter, "FOR_ITER", 1, true},
		{Send, "SEND", 1, true},
		{Yield, "YIELD", 2, false},
		{LoadSuperAttr, "LOAD_SUPER_ATTR", 2, false},
		{AddInt, "ADD_INT", 1, false},
		{CompareInt, "COMPARE_INT", 1, false},
		{ImportFrom, "IMPORT_FROM", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetInfo(tt.code)
			require.Equal(t, tt.name, info.Name)
			require.Equal(t, tt.operands, info.OperandCount)
			require.Equal(t, tt.jump, info.Jump)
		})
	}
}

func TestEveryNamedOpcodeIsUnique(t *testing.T) {
	seen := map[string]Code{}
	for i := 0; i < 256; i++ {
		info := GetInfo(Code(i))
		if info.Name == "" {
			continue
		}
		prev, dup := seen[info.Name]
		require.False(t, dup, "%s registered for %d and %d", info.Name, prev, i)
		seen[info.Name] = Code(i)
		require.Equal(t, Code(i), info.Code)
	}
	require.Empty(t, GetInfo(Invalid).Name)
}

func TestBinaryOpType(t *testing.T) {
	require.Equal(t, "+", Add.String())
	require.Equal(t, "//", FloorDiv.String())
	require.Equal(t, "^", BitwiseXor.String())
	require.Equal(t, "matmul", MatMul.Dunder())
	require.Equal(t, "truediv", TrueDiv.Dunder())
	require.Equal(t, "", BinaryOpType(40).String())
}

func TestCompareOpType(t *testing.T) {
	require.Equal(t, "<=", LessThanOrEqual.String())
	require.Equal(t, "__ne__", NotEqual.Dunder())
	require.Equal(t, GreaterThan, LessThan.Swapped())
	require.Equal(t, Equal, Equal.Swapped())
	require.Equal(t, LessThanOrEqual, GreaterThanOrEqual.Swapped())
}
