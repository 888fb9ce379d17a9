// Package op defines the opcodes of the target instruction set executed by
// the virtual machine. Instructions are stored as a flat []Code stream with
// operands inline after their opcode; Info reports each opcode's operand
// count.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Execution
	Nop          Code = 1
	PopTop       Code = 2
	PushNull     Code = 3
	Copy         Code = 4
	Swap         Code = 5
	ReturnValue  Code = 6
	ReturnConst  Code = 7
	Call         Code = 8
	CallKw       Code = 9
	CallFunction Code = 10 // CALL_FUNCTION_EX: positional tuple and optional kwargs dict

	// Jump (operands are absolute instruction offsets)
	Jump             Code = 15
	PopJumpIfFalse   Code = 16
	PopJumpIfTrue    Code = 17
	PopJumpIfNone    Code = 18
	PopJumpIfNotNone Code = 19
	JumpIfFalseOrPop Code = 20
	JumpIfTrueOrPop  Code = 21

	// Load
	LoadConst           Code = 25
	LoadFast            Code = 26
	LoadFastChecked     Code = 27
	LoadFastAndClear    Code = 28
	LoadDeref           Code = 29
	LoadClassDeref      Code = 30
	LoadFromDictOrDeref Code = 31
	LoadClosure         Code = 32
	LoadGlobal          Code = 33 // name, 1 to push NULL below the value
	LoadName            Code = 34
	LoadLocals          Code = 35
	LoadAttr            Code = 36
	LoadMethod          Code = 37
	LoadSuperAttr       Code = 38 // name, flags: 1 method load, 2 two-argument form
	LoadBuildClass      Code = 39
	LoadAssertionError  Code = 40

	// Store and delete
	StoreFast        Code = 45
	StoreDeref       Code = 46
	StoreGlobal      Code = 47
	StoreName        Code = 48
	StoreAttr        Code = 49
	StoreSubscr      Code = 50
	StoreSlice       Code = 51
	DeleteFast       Code = 52
	DeleteDeref      Code = 53
	DeleteGlobal     Code = 54
	DeleteName       Code = 55
	DeleteAttr       Code = 56
	DeleteSubscr     Code = 57
	SetupAnnotations Code = 58

	// Closures
	MakeCell     Code = 60
	CopyFreeVars Code = 61
	MakeFunction Code = 62

	// Operations
	BinaryOp      Code = 65
	CompareOp     Code = 66
	IsOp          Code = 67
	ContainsOp    Code = 68
	UnaryNegative Code = 69
	UnaryPositive Code = 70
	UnaryNot      Code = 71
	UnaryInvert   Code = 72
	BinarySubscr  Code = 73
	BinarySlice   Code = 74
	FormatValue   Code = 75

	// Guarded specializations. Each checks its operand types at run time
	// and falls back to the generic operation when the check fails. The
	// binary ones keep the BINARY_OP operand for that fallback.
	AddInt            Code = 80
	SubtractInt       Code = 81
	MultiplyInt       Code = 82
	FloorDivInt       Code = 83
	ModuloInt         Code = 84
	CompareInt        Code = 85
	AddFloat          Code = 86
	SubtractFloat     Code = 87
	MultiplyFloat     Code = 88
	TrueDivFloat      Code = 89
	CompareFloat      Code = 90
	AddStr            Code = 91
	BinarySubscrList  Code = 92
	BinarySubscrTuple Code = 93

	// Build
	BuildTuple       Code = 100
	BuildList        Code = 101
	BuildSet         Code = 102
	BuildMap         Code = 103
	BuildConstKeyMap Code = 104
	BuildString      Code = 105
	BuildSlice       Code = 106
	ListAppend       Code = 107
	SetAdd           Code = 108
	MapAdd           Code = 109
	ListExtend       Code = 110
	SetUpdate        Code = 111
	DictUpdate       Code = 112
	DictMerge        Code = 113
	ListToTuple      Code = 114
	UnpackSequence   Code = 115
	UnpackEx         Code = 116
	GetLen           Code = 117

	// Iteration
	GetIter          Code = 120
	ForIter          Code = 121
	GetYieldFromIter Code = 122
	GetAwaitable     Code = 123

	// Generators
	ReturnGenerator Code = 125
	Yield           Code = 126 // source arg, 1 when delegating to a sub-iterator
	Send            Code = 127
	EndSend         Code = 128
	CleanupThrow    Code = 129

	// Exception handling
	PushExcInfo       Code = 135
	PopExcept         Code = 136
	CheckExcMatch     Code = 137
	Reraise           Code = 138
	Raise             Code = 139
	WithExceptStart   Code = 140
	BeforeWith        Code = 141
	StopIterationErr  Code = 142

	// Imports
	ImportName Code = 145
	ImportFrom Code = 146
)

// BinaryOpType describes a binary operation. Values follow the source
// interpreter's operator numbering.
type BinaryOpType uint16

const (
	Add        BinaryOpType = 0
	BitwiseAnd BinaryOpType = 1
	FloorDiv   BinaryOpType = 2
	LShift     BinaryOpType = 3
	MatMul     BinaryOpType = 4
	Multiply   BinaryOpType = 5
	Modulo     BinaryOpType = 6
	BitwiseOr  BinaryOpType = 7
	Power      BinaryOpType = 8
	RShift     BinaryOpType = 9
	Subtract   BinaryOpType = 10
	TrueDiv    BinaryOpType = 11
	BitwiseXor BinaryOpType = 12

	// InplaceFlag is added to a BinaryOpType operand to request the
	// in-place variant of the operation.
	InplaceFlag = 13
)

var binarySymbols = [...]string{"+", "&", "//", "<<", "@", "*", "%", "|", "**", ">>", "-", "/", "^"}

var binaryNames = [...]string{"add", "and", "floordiv", "lshift", "matmul", "mul", "mod", "or", "pow", "rshift", "sub", "truediv", "xor"}

// String returns the operator symbol, for example "+" for addition.
func (bop BinaryOpType) String() string {
	if int(bop) < len(binarySymbols) {
		return binarySymbols[bop]
	}
	return ""
}

// Dunder returns the name stem of the special methods implementing the
// operation, e.g. "add" for __add__, __radd__ and __iadd__.
func (bop BinaryOpType) Dunder() string {
	if int(bop) < len(binaryNames) {
		return binaryNames[bop]
	}
	return ""
}

// CompareOpType describes a rich comparison.
type CompareOpType uint16

const (
	LessThan           CompareOpType = 0
	LessThanOrEqual    CompareOpType = 1
	Equal              CompareOpType = 2
	NotEqual           CompareOpType = 3
	GreaterThan        CompareOpType = 4
	GreaterThanOrEqual CompareOpType = 5
)

// String returns a string representation of the comparison operation.
// For example "<" for less than.
func (cop CompareOpType) String() string {
	switch cop {
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	default:
		return ""
	}
}

// Dunder returns the special method name of the comparison, e.g. "__lt__".
func (cop CompareOpType) Dunder() string {
	switch cop {
	case LessThan:
		return "__lt__"
	case LessThanOrEqual:
		return "__le__"
	case Equal:
		return "__eq__"
	case NotEqual:
		return "__ne__"
	case GreaterThan:
		return "__gt__"
	case GreaterThanOrEqual:
		return "__ge__"
	default:
		return ""
	}
}

// Swapped returns the comparison with its operands exchanged: a < b is
// b > a.
func (cop CompareOpType) Swapped() CompareOpType {
	switch cop {
	case LessThan:
		return GreaterThan
	case LessThanOrEqual:
		return GreaterThanOrEqual
	case GreaterThan:
		return LessThan
	case GreaterThanOrEqual:
		return LessThanOrEqual
	default:
		return cop
	}
}

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
	// Jump marks opcodes whose first operand is a jump target.
	Jump bool
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
		jump  bool
	}
	ops := []opInfo{
		{Nop, "NOP", 0, false},
		{PopTop, "POP_TOP", 0, false},
		{PushNull, "PUSH_NULL", 0, false},
		{Copy, "COPY", 1, false},
		{Swap, "SWAP", 1, false},
		{ReturnValue, "RETURN_VALUE", 0, false},
		{ReturnConst, "RETURN_CONST", 1, false},
		{Call, "CALL", 1, false},
		{CallKw, "CALL_KW", 2, false},
		{CallFunction, "CALL_FUNCTION_EX", 1, false},
		{Jump, "JUMP", 1, true},
		{PopJumpIfFalse, "POP_JUMP_IF_FALSE", 1, true},
		{PopJumpIfTrue, "POP_JUMP_IF_TRUE", 1, true},
		{PopJumpIfNone, "POP_JUMP_IF_NONE", 1, true},
		{PopJumpIfNotNone, "POP_JUMP_IF_NOT_NONE", 1, true},
		{JumpIfFalseOrPop, "JUMP_IF_FALSE_OR_POP", 1, true},
		{JumpIfTrueOrPop, "JUMP_IF_TRUE_OR_POP", 1, true},
		{LoadConst, "LOAD_CONST", 1, false},
		{LoadFast, "LOAD_FAST", 1, false},
		{LoadFastChecked, "LOAD_FAST_CHECKED", 1, false},
		{LoadFastAndClear, "LOAD_FAST_AND_CLEAR", 1, false},
		{LoadDeref, "LOAD_DEREF", 1, false},
		{LoadClassDeref, "LOAD_CLASSDEREF", 1, false},
		{LoadFromDictOrDeref, "LOAD_FROM_DICT_OR_DEREF", 1, false},
		{LoadClosure, "LOAD_CLOSURE", 1, false},
		{LoadGlobal, "LOAD_GLOBAL", 2, false},
		{LoadName, "LOAD_NAME", 1, false},
		{LoadLocals, "LOAD_LOCALS", 0, false},
		{LoadAttr, "LOAD_ATTR", 1, false},
		{LoadMethod, "LOAD_METHOD", 1, false},
		{LoadSuperAttr, "LOAD_SUPER_ATTR", 2, false},
		{LoadBuildClass, "LOAD_BUILD_CLASS", 0, false},
		{LoadAssertionError, "LOAD_ASSERTION_ERROR", 0, false},
		{StoreFast, "STORE_FAST", 1, false},
		{StoreDeref, "STORE_DEREF", 1, false},
		{StoreGlobal, "STORE_GLOBAL", 1, false},
		{StoreName, "STORE_NAME", 1, false},
		{StoreAttr, "STORE_ATTR", 1, false},
		{StoreSubscr, "STORE_SUBSCR", 0, false},
		{StoreSlice, "STORE_SLICE", 0, false},
		{DeleteFast, "DELETE_FAST", 1, false},
		{DeleteDeref, "DELETE_DEREF", 1, false},
		{DeleteGlobal, "DELETE_GLOBAL", 1, false},
		{DeleteName, "DELETE_NAME", 1, false},
		{DeleteAttr, "DELETE_ATTR", 1, false},
		{DeleteSubscr, "DELETE_SUBSCR", 0, false},
		{SetupAnnotations, "SETUP_ANNOTATIONS", 0, false},
		{MakeCell, "MAKE_CELL", 1, false},
		{CopyFreeVars, "COPY_FREE_VARS", 1, false},
		{MakeFunction, "MAKE_FUNCTION", 1, false},
		{BinaryOp, "BINARY_OP", 1, false},
		{CompareOp, "COMPARE_OP", 1, false},
		{IsOp, "IS_OP", 1, false},
		{ContainsOp, "CONTAINS_OP", 1, false},
		{UnaryNegative, "UNARY_NEGATIVE", 0, false},
		{UnaryPositive, "UNARY_POSITIVE", 0, false},
		{UnaryNot, "UNARY_NOT", 0, false},
		{UnaryInvert, "UNARY_INVERT", 0, false},
		{BinarySubscr, "BINARY_SUBSCR", 0, false},
		{BinarySlice, "BINARY_SLICE", 0, false},
		{FormatValue, "FORMAT_VALUE", 1, false},
		{AddInt, "ADD_INT", 1, false},
		{SubtractInt, "SUBTRACT_INT", 1, false},
		{MultiplyInt, "MULTIPLY_INT", 1, false},
		{FloorDivInt, "FLOOR_DIV_INT", 1, false},
		{ModuloInt, "MODULO_INT", 1, false},
		{CompareInt, "COMPARE_INT", 1, false},
		{AddFloat, "ADD_FLOAT", 1, false},
		{SubtractFloat, "SUBTRACT_FLOAT", 1, false},
		{MultiplyFloat, "MULTIPLY_FLOAT", 1, false},
		{TrueDivFloat, "TRUE_DIV_FLOAT", 1, false},
		{CompareFloat, "COMPARE_FLOAT", 1, false},
		{AddStr, "ADD_STR", 1, false},
		{BinarySubscrList, "BINARY_SUBSCR_LIST", 0, false},
		{BinarySubscrTuple, "BINARY_SUBSCR_TUPLE", 0, false},
		{BuildTuple, "BUILD_TUPLE", 1, false},
		{BuildList, "BUILD_LIST", 1, false},
		{BuildSet, "BUILD_SET", 1, false},
		{BuildMap, "BUILD_MAP", 1, false},
		{BuildConstKeyMap, "BUILD_CONST_KEY_MAP", 1, false},
		{BuildString, "BUILD_STRING", 1, false},
		{BuildSlice, "BUILD_SLICE", 1, false},
		{ListAppend, "LIST_APPEND", 1, false},
		{SetAdd, "SET_ADD", 1, false},
		{MapAdd, "MAP_ADD", 1, false},
		{ListExtend, "LIST_EXTEND", 1, false},
		{SetUpdate, "SET_UPDATE", 1, false},
		{DictUpdate, "DICT_UPDATE", 1, false},
		{DictMerge, "DICT_MERGE", 1, false},
		{ListToTuple, "LIST_TO_TUPLE", 0, false},
		{UnpackSequence, "UNPACK_SEQUENCE", 1, false},
		{UnpackEx, "UNPACK_EX", 1, false},
		{GetLen, "GET_LEN", 0, false},
		{GetIter, "GET_ITER", 0, false},
		{ForIter, "FOR_ITER", 1, true},
		{GetYieldFromIter, "GET_YIELD_FROM_ITER", 0, false},
		{GetAwaitable, "GET_AWAITABLE", 1, false},
		{ReturnGenerator, "RETURN_GENERATOR", 0, false},
		{Yield, "YIELD", 2, false},
		{Send, "SEND", 1, true},
		{EndSend, "END_SEND", 0, false},
		{CleanupThrow, "CLEANUP_THROW", 0, false},
		{PushExcInfo, "PUSH_EXC_INFO", 0, false},
		{PopExcept, "POP_EXCEPT", 0, false},
		{CheckExcMatch, "CHECK_EXC_MATCH", 0, false},
		{Reraise, "RERAISE", 1, false},
		{Raise, "RAISE", 1, false},
		{WithExceptStart, "WITH_EXCEPT_START", 0, false},
		{BeforeWith, "BEFORE_WITH", 0, false},
		{StopIterationErr, "STOP_ITERATION_ERROR", 0, false},
		{ImportName, "IMPORT_NAME", 1, false},
		{ImportFrom, "IMPORT_FROM", 1, false},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
			Jump:         o.jump,
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	return infos[op]
}
