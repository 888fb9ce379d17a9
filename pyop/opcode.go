// Package pyop catalogues the source bytecode instruction set: symbolic
// opcodes, their numeric encodings per dialect, inline cache sizes, jump
// semantics, and stack effects.
package pyop

// Opcode is a symbolic source opcode. Its value is independent of the
// numeric encoding used by any particular dialect.
type Opcode uint8

const (
	Invalid Opcode = iota

	Cache
	PopTop
	PushNull
	Nop
	ExtendedArg
	Resume
	InterpreterExit

	// Unary and binary operators
	UnaryPositive
	UnaryNegative
	UnaryNot
	UnaryInvert
	BinaryOp
	CompareOp
	IsOp
	ContainsOp

	// Subscripts and slices
	BinarySubscr
	StoreSubscr
	DeleteSubscr
	BinarySlice
	StoreSlice
	BuildSlice

	// Stack manipulation
	Copy
	Swap

	// Constants and names
	LoadConst
	ReturnConst
	LoadName
	StoreName
	DeleteName
	LoadGlobal
	StoreGlobal
	DeleteGlobal
	LoadLocals
	LoadFromDictOrGlobals
	LoadFromDictOrDeref
	SetupAnnotations

	// Fast locals
	LoadFast
	LoadFastCheck
	LoadFastAndClear
	StoreFast
	DeleteFast

	// Cells and closures
	MakeCell
	LoadClosure
	LoadDeref
	StoreDeref
	DeleteDeref
	LoadClassDeref
	CopyFreeVars

	// Attributes
	LoadAttr
	LoadMethod
	LoadSuperAttr
	StoreAttr
	DeleteAttr

	// Calls and functions
	Precall
	Call
	KwNames
	CallFunctionEx
	CallIntrinsic1
	CallIntrinsic2
	MakeFunction
	LoadBuildClass
	ReturnValue

	// Container construction
	BuildTuple
	BuildList
	BuildSet
	BuildMap
	BuildConstKeyMap
	BuildString
	FormatValue
	ListAppend
	SetAdd
	MapAdd
	ListExtend
	SetUpdate
	DictUpdate
	DictMerge
	ListToTuple
	UnpackSequence
	UnpackEx
	GetLen

	// Iteration
	GetIter
	ForIter
	EndFor

	// Jumps
	JumpForward
	JumpBackward
	JumpBackwardNoInterrupt
	PopJumpIfFalse
	PopJumpIfTrue
	PopJumpIfNone
	PopJumpIfNotNone
	PopJumpForwardIfFalse
	PopJumpForwardIfTrue
	PopJumpForwardIfNone
	PopJumpForwardIfNotNone
	PopJumpBackwardIfFalse
	PopJumpBackwardIfTrue
	PopJumpBackwardIfNone
	PopJumpBackwardIfNotNone
	JumpIfFalseOrPop
	JumpIfTrueOrPop

	// Exceptions
	PushExcInfo
	PopExcept
	CheckExcMatch
	CheckEgMatch
	PrepReraiseStar
	Reraise
	RaiseVarargs
	LoadAssertionError
	WithExceptStart
	BeforeWith

	// Generators and coroutines
	ReturnGenerator
	YieldValue
	Send
	EndSend
	CleanupThrow
	GetYieldFromIter
	GetAwaitable
	AsyncGenWrap
	GetAiter
	GetAnext
	BeforeAsyncWith
	EndAsyncFor

	// Imports
	ImportName
	ImportFrom
	ImportStar

	// Pattern matching
	MatchMapping
	MatchSequence
	MatchKeys
	MatchClass

	PrintExpr

	opcodeCount
)

var names = [opcodeCount]string{
	Invalid:                  "<invalid>",
	Cache:                    "CACHE",
	PopTop:                   "POP_TOP",
	PushNull:                 "PUSH_NULL",
	Nop:                      "NOP",
	ExtendedArg:              "EXTENDED_ARG",
	Resume:                   "RESUME",
	InterpreterExit:          "INTERPRETER_EXIT",
	UnaryPositive:            "UNARY_POSITIVE",
	UnaryNegative:            "UNARY_NEGATIVE",
	UnaryNot:                 "UNARY_NOT",
	UnaryInvert:              "UNARY_INVERT",
	BinaryOp:                 "BINARY_OP",
	CompareOp:                "COMPARE_OP",
	IsOp:                     "IS_OP",
	ContainsOp:               "CONTAINS_OP",
	BinarySubscr:             "BINARY_SUBSCR",
	StoreSubscr:              "STORE_SUBSCR",
	DeleteSubscr:             "DELETE_SUBSCR",
	BinarySlice:              "BINARY_SLICE",
	StoreSlice:               "STORE_SLICE",
	BuildSlice:               "BUILD_SLICE",
	Copy:                     "COPY",
	Swap:                     "SWAP",
	LoadConst:                "LOAD_CONST",
	ReturnConst:              "RETURN_CONST",
	LoadName:                 "LOAD_NAME",
	StoreName:                "STORE_NAME",
	DeleteName:               "DELETE_NAME",
	LoadGlobal:               "LOAD_GLOBAL",
	StoreGlobal:              "STORE_GLOBAL",
	DeleteGlobal:             "DELETE_GLOBAL",
	LoadLocals:               "LOAD_LOCALS",
	LoadFromDictOrGlobals:    "LOAD_FROM_DICT_OR_GLOBALS",
	LoadFromDictOrDeref:      "LOAD_FROM_DICT_OR_DEREF",
	SetupAnnotations:         "SETUP_ANNOTATIONS",
	LoadFast:                 "LOAD_FAST",
	LoadFastCheck:            "LOAD_FAST_CHECK",
	LoadFastAndClear:         "LOAD_FAST_AND_CLEAR",
	StoreFast:                "STORE_FAST",
	DeleteFast:               "DELETE_FAST",
	MakeCell:                 "MAKE_CELL",
	LoadClosure:              "LOAD_CLOSURE",
	LoadDeref:                "LOAD_DEREF",
	StoreDeref:               "STORE_DEREF",
	DeleteDeref:              "DELETE_DEREF",
	LoadClassDeref:           "LOAD_CLASSDEREF",
	CopyFreeVars:             "COPY_FREE_VARS",
	LoadAttr:                 "LOAD_ATTR",
	LoadMethod:               "LOAD_METHOD",
	LoadSuperAttr:            "LOAD_SUPER_ATTR",
	StoreAttr:                "STORE_ATTR",
	DeleteAttr:               "DELETE_ATTR",
	Precall:                  "PRECALL",
	Call:                     "CALL",
	KwNames:                  "KW_NAMES",
	CallFunctionEx:           "CALL_FUNCTION_EX",
	CallIntrinsic1:           "CALL_INTRINSIC_1",
	CallIntrinsic2:           "CALL_INTRINSIC_2",
	MakeFunction:             "MAKE_FUNCTION",
	LoadBuildClass:           "LOAD_BUILD_CLASS",
	ReturnValue:              "RETURN_VALUE",
	BuildTuple:               "BUILD_TUPLE",
	BuildList:                "BUILD_LIST",
	BuildSet:                 "BUILD_SET",
	BuildMap:                 "BUILD_MAP",
	BuildConstKeyMap:         "BUILD_CONST_KEY_MAP",
	BuildString:              "BUILD_STRING",
	FormatValue:              "FORMAT_VALUE",
	ListAppend:               "LIST_APPEND",
	SetAdd:                   "SET_ADD",
	MapAdd:                   "MAP_ADD",
	ListExtend:               "LIST_EXTEND",
	SetUpdate:                "SET_UPDATE",
	DictUpdate:               "DICT_UPDATE",
	DictMerge:                "DICT_MERGE",
	ListToTuple:              "LIST_TO_TUPLE",
	UnpackSequence:           "UNPACK_SEQUENCE",
	UnpackEx:                 "UNPACK_EX",
	GetLen:                   "GET_LEN",
	GetIter:                  "GET_ITER",
	ForIter:                  "FOR_ITER",
	EndFor:                   "END_FOR",
	JumpForward:              "JUMP_FORWARD",
	JumpBackward:             "JUMP_BACKWARD",
	JumpBackwardNoInterrupt:  "JUMP_BACKWARD_NO_INTERRUPT",
	PopJumpIfFalse:           "POP_JUMP_IF_FALSE",
	PopJumpIfTrue:            "POP_JUMP_IF_TRUE",
	PopJumpIfNone:            "POP_JUMP_IF_NONE",
	PopJumpIfNotNone:         "POP_JUMP_IF_NOT_NONE",
	PopJumpForwardIfFalse:    "POP_JUMP_FORWARD_IF_FALSE",
	PopJumpForwardIfTrue:     "POP_JUMP_FORWARD_IF_TRUE",
	PopJumpForwardIfNone:     "POP_JUMP_FORWARD_IF_NONE",
	PopJumpForwardIfNotNone:  "POP_JUMP_FORWARD_IF_NOT_NONE",
	PopJumpBackwardIfFalse:   "POP_JUMP_BACKWARD_IF_FALSE",
	PopJumpBackwardIfTrue:    "POP_JUMP_BACKWARD_IF_TRUE",
	PopJumpBackwardIfNone:    "POP_JUMP_BACKWARD_IF_NONE",
	PopJumpBackwardIfNotNone: "POP_JUMP_BACKWARD_IF_NOT_NONE",
	JumpIfFalseOrPop:         "JUMP_IF_FALSE_OR_POP",
	JumpIfTrueOrPop:          "JUMP_IF_TRUE_OR_POP",
	PushExcInfo:              "PUSH_EXC_INFO",
	PopExcept:                "POP_EXCEPT",
	CheckExcMatch:            "CHECK_EXC_MATCH",
	CheckEgMatch:             "CHECK_EG_MATCH",
	PrepReraiseStar:          "PREP_RERAISE_STAR",
	Reraise:                  "RERAISE",
	RaiseVarargs:             "RAISE_VARARGS",
	LoadAssertionError:       "LOAD_ASSERTION_ERROR",
	WithExceptStart:          "WITH_EXCEPT_START",
	BeforeWith:               "BEFORE_WITH",
	ReturnGenerator:          "RETURN_GENERATOR",
	YieldValue:               "YIELD_VALUE",
	Send:                     "SEND",
	EndSend:                  "END_SEND",
	CleanupThrow:             "CLEANUP_THROW",
	GetYieldFromIter:         "GET_YIELD_FROM_ITER",
	GetAwaitable:             "GET_AWAITABLE",
	AsyncGenWrap:             "ASYNC_GEN_WRAP",
	GetAiter:                 "GET_AITER",
	GetAnext:                 "GET_ANEXT",
	BeforeAsyncWith:          "BEFORE_ASYNC_WITH",
	EndAsyncFor:              "END_ASYNC_FOR",
	ImportName:               "IMPORT_NAME",
	ImportFrom:               "IMPORT_FROM",
	ImportStar:               "IMPORT_STAR",
	MatchMapping:             "MATCH_MAPPING",
	MatchSequence:            "MATCH_SEQUENCE",
	MatchKeys:                "MATCH_KEYS",
	MatchClass:               "MATCH_CLASS",
	PrintExpr:                "PRINT_EXPR",
}

var byName map[string]Opcode

func init() {
	byName = make(map[string]Opcode, opcodeCount)
	for i, name := range names {
		if i == int(Invalid) {
			continue
		}
		byName[name] = Opcode(i)
	}
}

// String returns the CPython name of the opcode.
func (o Opcode) String() string {
	if int(o) < len(names) && names[o] != "" {
		return names[o]
	}
	return names[Invalid]
}

// Lookup returns the opcode with the given CPython name.
func Lookup(name string) (Opcode, bool) {
	o, ok := byName[name]
	return o, ok
}

// Binary operator arguments of BINARY_OP, in CPython's NB_* order. The
// in-place variants follow at InplaceOffset.
const (
	NbAdd = iota
	NbAnd
	NbFloorDivide
	NbLshift
	NbMatrixMultiply
	NbMultiply
	NbRemainder
	NbOr
	NbPower
	NbRshift
	NbSubtract
	NbTrueDivide
	NbXor

	InplaceOffset = 13
)

// Rich comparison arguments of COMPARE_OP.
const (
	CmpLt = iota
	CmpLe
	CmpEq
	CmpNe
	CmpGt
	CmpGe
)

// CALL_INTRINSIC_1 arguments.
const (
	IntrinsicPrint             = 1
	IntrinsicImportStar        = 2
	IntrinsicStopIterationErr  = 3
	IntrinsicAsyncGenWrap      = 4
	IntrinsicUnaryPositive     = 5
	IntrinsicListToTuple       = 6
	IntrinsicTypeVar           = 7
	IntrinsicParamSpec         = 8
	IntrinsicTypeVarTuple      = 9
	IntrinsicSubscriptGeneric  = 10
	IntrinsicTypeAlias         = 11
)

// MAKE_FUNCTION flag bits.
const (
	FuncDefaults    = 0x01
	FuncKwDefaults  = 0x02
	FuncAnnotations = 0x04
	FuncClosure     = 0x08
)

// Code object flags.
const (
	CoOptimized         = 0x0001
	CoNewLocals         = 0x0002
	CoVarargs           = 0x0004
	CoVarkeywords       = 0x0008
	CoNested            = 0x0010
	CoGenerator         = 0x0020
	CoNoFree            = 0x0040
	CoCoroutine         = 0x0080
	CoIterableCoroutine = 0x0100
	CoAsyncGenerator    = 0x0200
)
