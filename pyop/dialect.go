package pyop

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/errz"
)

// Dialect identifies a source bytecode dialect by interpreter minor version.
type Dialect uint8

const (
	Py311 Dialect = 11
	Py312 Dialect = 12
)

// Supported lists the dialects the translator accepts, oldest first.
var Supported = []Dialect{Py311, Py312}

// String returns the dialect as a version string, e.g. "3.11".
func (d Dialect) String() string {
	return fmt.Sprintf("3.%d", uint8(d))
}

// SupportedRange describes the supported dialects for error messages.
func SupportedRange() string {
	return Supported[0].String() + "-" + Supported[len(Supported)-1].String()
}

// ParseDialect parses a "3.X" or "3.X.Y" version string. Versions outside
// the supported range produce an unsupported-version error.
func ParseDialect(version string) (Dialect, error) {
	v := strings.TrimSpace(version)
	parts := strings.Split(v, ".")
	if len(parts) >= 2 && parts[0] == "3" {
		for _, d := range Supported {
			if parts[1] == fmt.Sprint(uint8(d)) {
				return d, nil
			}
		}
	}
	return 0, errz.Newf(errz.ErrUnsupportedVersion,
		"unsupported bytecode dialect %q (supported: %s)", version, SupportedRange())
}

// Check returns an unsupported-version error unless d is supported.
func (d Dialect) Check() error {
	for _, s := range Supported {
		if d == s {
			return nil
		}
	}
	return errz.Newf(errz.ErrUnsupportedVersion,
		"unsupported bytecode dialect %q (supported: %s)", d.String(), SupportedRange())
}

type dialectTable struct {
	numbers map[Opcode]byte
	opcodes [256]Opcode
	caches  map[Opcode]int
}

var tables = map[Dialect]*dialectTable{}

func register(d Dialect, numbers map[Opcode]byte, caches map[Opcode]int) {
	t := &dialectTable{numbers: numbers, caches: caches}
	for o, n := range numbers {
		t.opcodes[n] = o
	}
	tables[d] = t
}

// FromByte maps a numeric opcode of the dialect to its symbolic opcode.
func (d Dialect) FromByte(b byte) Opcode {
	if t, ok := tables[d]; ok {
		return t.opcodes[b]
	}
	return Invalid
}

// Byte returns the numeric encoding of o in the dialect.
func (d Dialect) Byte(o Opcode) (byte, bool) {
	t, ok := tables[d]
	if !ok {
		return 0, false
	}
	n, ok := t.numbers[o]
	return n, ok
}

// Has reports whether the opcode exists in the dialect.
func (d Dialect) Has(o Opcode) bool {
	_, ok := d.Byte(o)
	return ok
}

// CacheEntries returns the number of inline cache code units that follow
// the opcode in the dialect.
func (d Dialect) CacheEntries(o Opcode) int {
	if t, ok := tables[d]; ok {
		return t.caches[o]
	}
	return 0
}

// HasArgument reports whether the numeric opcode takes an argument.
func HasArgument(b byte) bool {
	return b >= 90
}

func init() {
	register(Py311, map[Opcode]byte{
		Cache: 0, PopTop: 1, PushNull: 2, Nop: 9,
		UnaryPositive: 10, UnaryNegative: 11, UnaryNot: 12, UnaryInvert: 15,
		BinarySubscr: 25, GetLen: 30,
		MatchMapping: 31, MatchSequence: 32, MatchKeys: 33,
		PushExcInfo: 35, CheckExcMatch: 36, CheckEgMatch: 37,
		WithExceptStart: 49, GetAiter: 50, GetAnext: 51,
		BeforeAsyncWith: 52, BeforeWith: 53, EndAsyncFor: 54,
		StoreSubscr: 60, DeleteSubscr: 61,
		GetIter: 68, GetYieldFromIter: 69, PrintExpr: 70,
		LoadBuildClass: 71, LoadAssertionError: 74, ReturnGenerator: 75,
		ListToTuple: 82, ReturnValue: 83, ImportStar: 84,
		SetupAnnotations: 85, YieldValue: 86, AsyncGenWrap: 87,
		PrepReraiseStar: 88, PopExcept: 89,
		StoreName: 90, DeleteName: 91, UnpackSequence: 92, ForIter: 93,
		UnpackEx: 94, StoreAttr: 95, DeleteAttr: 96, StoreGlobal: 97,
		DeleteGlobal: 98, Swap: 99, LoadConst: 100, LoadName: 101,
		BuildTuple: 102, BuildList: 103, BuildSet: 104, BuildMap: 105,
		LoadAttr: 106, CompareOp: 107, ImportName: 108, ImportFrom: 109,
		JumpForward: 110, JumpIfFalseOrPop: 111, JumpIfTrueOrPop: 112,
		PopJumpForwardIfFalse: 114, PopJumpForwardIfTrue: 115,
		LoadGlobal: 116, IsOp: 117, ContainsOp: 118, Reraise: 119,
		Copy: 120, BinaryOp: 122, Send: 123,
		LoadFast: 124, StoreFast: 125, DeleteFast: 126,
		PopJumpForwardIfNotNone: 128, PopJumpForwardIfNone: 129,
		RaiseVarargs: 130, GetAwaitable: 131, MakeFunction: 132,
		BuildSlice: 133, JumpBackwardNoInterrupt: 134, MakeCell: 135,
		LoadClosure: 136, LoadDeref: 137, StoreDeref: 138, DeleteDeref: 139,
		JumpBackward: 140, CallFunctionEx: 142, ExtendedArg: 144,
		ListAppend: 145, SetAdd: 146, MapAdd: 147, LoadClassDeref: 148,
		CopyFreeVars: 149, Resume: 151, MatchClass: 152,
		FormatValue: 155, BuildConstKeyMap: 156, BuildString: 157,
		LoadMethod: 160, ListExtend: 162, SetUpdate: 163,
		DictMerge: 164, DictUpdate: 165, Precall: 166, Call: 171,
		KwNames: 172,
		PopJumpBackwardIfNotNone: 173, PopJumpBackwardIfNone: 174,
		PopJumpBackwardIfFalse: 175, PopJumpBackwardIfTrue: 176,
	}, map[Opcode]int{
		BinarySubscr:   4,
		StoreSubscr:    1,
		UnpackSequence: 1,
		StoreAttr:      4,
		LoadAttr:       4,
		CompareOp:      2,
		LoadGlobal:     5,
		BinaryOp:       1,
		LoadMethod:     10,
		Precall:        1,
		Call:           4,
	})

	register(Py312, map[Opcode]byte{
		Cache: 0, PopTop: 1, PushNull: 2, InterpreterExit: 3,
		EndFor: 4, EndSend: 5, Nop: 9,
		UnaryNegative: 11, UnaryNot: 12, UnaryInvert: 15,
		BinarySubscr: 25, BinarySlice: 26, StoreSlice: 27, GetLen: 30,
		MatchMapping: 31, MatchSequence: 32, MatchKeys: 33,
		PushExcInfo: 35, CheckExcMatch: 36, CheckEgMatch: 37,
		WithExceptStart: 49, GetAiter: 50, GetAnext: 51,
		BeforeAsyncWith: 52, BeforeWith: 53, EndAsyncFor: 54,
		CleanupThrow: 55, StoreSubscr: 60, DeleteSubscr: 61,
		GetIter: 68, GetYieldFromIter: 69, LoadBuildClass: 71,
		LoadAssertionError: 74, ReturnGenerator: 75, ReturnValue: 83,
		SetupAnnotations: 85, LoadLocals: 87, PopExcept: 89,
		StoreName: 90, DeleteName: 91, UnpackSequence: 92, ForIter: 93,
		UnpackEx: 94, StoreAttr: 95, DeleteAttr: 96, StoreGlobal: 97,
		DeleteGlobal: 98, Swap: 99, LoadConst: 100, LoadName: 101,
		BuildTuple: 102, BuildList: 103, BuildSet: 104, BuildMap: 105,
		LoadAttr: 106, CompareOp: 107, ImportName: 108, ImportFrom: 109,
		JumpForward: 110, PopJumpIfFalse: 114, PopJumpIfTrue: 115,
		LoadGlobal: 116, IsOp: 117, ContainsOp: 118, Reraise: 119,
		Copy: 120, ReturnConst: 121, BinaryOp: 122, Send: 123,
		LoadFast: 124, StoreFast: 125, DeleteFast: 126, LoadFastCheck: 127,
		PopJumpIfNotNone: 128, PopJumpIfNone: 129, RaiseVarargs: 130,
		GetAwaitable: 131, MakeFunction: 132, BuildSlice: 133,
		JumpBackwardNoInterrupt: 134, MakeCell: 135, LoadClosure: 136,
		LoadDeref: 137, StoreDeref: 138, DeleteDeref: 139,
		JumpBackward: 140, LoadSuperAttr: 141, CallFunctionEx: 142,
		LoadFastAndClear: 143, ExtendedArg: 144, ListAppend: 145,
		SetAdd: 146, MapAdd: 147, CopyFreeVars: 149, YieldValue: 150,
		Resume: 151, MatchClass: 152, FormatValue: 155,
		BuildConstKeyMap: 156, BuildString: 157, ListExtend: 162,
		SetUpdate: 163, DictMerge: 164, DictUpdate: 165, Call: 171,
		KwNames: 172, CallIntrinsic1: 173, CallIntrinsic2: 174,
		LoadFromDictOrGlobals: 175, LoadFromDictOrDeref: 176,
	}, map[Opcode]int{
		BinarySubscr:   1,
		StoreSubscr:    1,
		UnpackSequence: 1,
		StoreAttr:      4,
		LoadAttr:       9,
		CompareOp:      1,
		LoadGlobal:     4,
		BinaryOp:       1,
		Send:           1,
		LoadSuperAttr:  1,
		Call:           3,
		ForIter:        1,
	})
}

// CompareArg extracts the rich comparison (Cmp*) from a COMPARE_OP
// argument. 3.12 keeps it in the high bits above a branch mask.
func (d Dialect) CompareArg(arg int) int {
	if d >= Py312 {
		return arg >> 4
	}
	return arg
}
