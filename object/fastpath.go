package object

// Fast paths for the guarded specializations. Callers check the exact
// operand types first; every function here agrees with the generic
// BinaryOp, RichCompare and GetItem results for those types.

func IntAdd(a, b *Int) *Int { return intAdd(a, b) }

func IntSub(a, b *Int) *Int { return intSub(a, b) }

func IntMul(a, b *Int) *Int { return intMul(a, b) }

func IntFloorDiv(a, b *Int) (*Int, error) { return intFloorDiv(a, b) }

func IntMod(a, b *Int) (*Int, error) { return intMod(a, b) }

// IntCompare evaluates a rich comparison between two ints.
func IntCompare(cop CompareOp, a, b *Int) bool {
	return cmpResult(cop, a.Cmp(b))
}

// FloatCompare evaluates a rich comparison between two floats with IEEE
// semantics: every ordering involving NaN is false and NaN != NaN.
func FloatCompare(cop CompareOp, a, b float64) bool {
	switch cop {
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpGt:
		return a > b
	case CmpGe:
		return a >= b
	}
	return false
}

func cmpResult(cop CompareOp, c int) bool {
	switch cop {
	case CmpLt:
		return c < 0
	case CmpLe:
		return c <= 0
	case CmpEq:
		return c == 0
	case CmpNe:
		return c != 0
	case CmpGt:
		return c > 0
	case CmpGe:
		return c >= 0
	}
	return false
}

// FloatTrueDiv divides two floats, raising ZeroDivisionError on zero.
func FloatTrueDiv(a, b float64) (Object, error) { return floatTrueDiv(a, b) }

// SeqIndex returns items[i] with negative indices counted from the end,
// or an IndexError naming the sequence kind.
func SeqIndex(items []Object, i *Int, what string) (Object, error) {
	n, ok := i.Int64()
	if !ok {
		return nil, IndexErrorf("cannot fit 'int' into an index-sized integer")
	}
	if n < 0 {
		n += int64(len(items))
	}
	if n < 0 || n >= int64(len(items)) {
		return nil, IndexErrorf("%s index out of range", what)
	}
	return items[n], nil
}
