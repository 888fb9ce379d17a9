package object

import (
	"math"
	"math/big"
	"strings"
)

// MaxStrDigits bounds int/str conversions of large integers in base 10.
const MaxStrDigits = 4300

// Int is an arbitrary precision integer. Values that fit in 64 bits are
// held inline; big is non-nil only for values outside the int64 range.
type Int struct {
	small int64
	big   *big.Int
}

var smallInts [262]*Int

func init() {
	for i := range smallInts {
		smallInts[i] = &Int{small: int64(i - 5)}
	}
}

// NewInt returns an Int for v.
func NewInt(v int64) *Int {
	if v >= -5 && v <= 256 {
		return smallInts[v+5]
	}
	return &Int{small: v}
}

// NewBigInt returns an Int for b, taking ownership of b.
func NewBigInt(b *big.Int) *Int {
	if b.IsInt64() {
		return NewInt(b.Int64())
	}
	return &Int{big: b}
}

func (i *Int) Type() *Type { return IntType }

// Int64 returns the value and whether it fits in an int64.
func (i *Int) Int64() (int64, bool) {
	if i.big != nil {
		return 0, false
	}
	return i.small, true
}

// IsBig reports whether the value lies outside the int64 range.
func (i *Int) IsBig() bool { return i.big != nil }

// Big returns the value as a new big.Int.
func (i *Int) Big() *big.Int {
	if i.big != nil {
		return new(big.Int).Set(i.big)
	}
	return big.NewInt(i.small)
}

// bigRef returns the value as a big.Int that must not be mutated.
func (i *Int) bigRef() *big.Int {
	if i.big != nil {
		return i.big
	}
	return big.NewInt(i.small)
}

// Sign returns -1, 0 or +1.
func (i *Int) Sign() int {
	if i.big != nil {
		return i.big.Sign()
	}
	switch {
	case i.small < 0:
		return -1
	case i.small > 0:
		return 1
	}
	return 0
}

// Cmp compares two ints.
func (i *Int) Cmp(j *Int) int {
	if i.big == nil && j.big == nil {
		switch {
		case i.small < j.small:
			return -1
		case i.small > j.small:
			return 1
		}
		return 0
	}
	return i.bigRef().Cmp(j.bigRef())
}

// String returns the decimal representation without the digit limit.
func (i *Int) String() string {
	if i.big != nil {
		return i.big.String()
	}
	return formatInt64(i.small)
}

func formatInt64(v int64) string {
	return big.NewInt(v).String()
}

// Float converts the value to the nearest float64.
func (i *Int) Float() (float64, error) {
	if i.big == nil {
		return float64(i.small), nil
	}
	f, _ := new(big.Float).SetInt(i.big).Float64()
	if math.IsInf(f, 0) {
		return 0, OverflowErrorf("int too large to convert to float")
	}
	return f, nil
}

// Decimal returns the base 10 representation, enforcing MaxStrDigits.
func (i *Int) Decimal() (string, error) {
	if i.big == nil {
		return formatInt64(i.small), nil
	}
	// Cheap bound: bit length * log10(2).
	if float64(i.big.BitLen())*0.30102999566398120 > MaxStrDigits+1 {
		return "", ValueErrorf("Exceeds the limit (%d digits) for integer string conversion; use sys.set_int_max_str_digits() to increase the limit", MaxStrDigits)
	}
	s := i.big.String()
	digits := len(strings.TrimPrefix(s, "-"))
	if digits > MaxStrDigits {
		return "", ValueErrorf("Exceeds the limit (%d digits) for integer string conversion; use sys.set_int_max_str_digits() to increase the limit", MaxStrDigits)
	}
	return s, nil
}

func intFromBool(b *Bool) *Int {
	if b.value {
		return NewInt(1)
	}
	return NewInt(0)
}

// asInt converts int-like operands (int, bool and subclass instances of
// int) to *Int.
func asInt(o Object) (*Int, bool) {
	switch v := o.(type) {
	case *Int:
		return v, true
	case *Bool:
		return intFromBool(v), true
	case *Instance:
		if n, ok := v.native.(*Int); ok {
			return n, true
		}
	}
	return nil, false
}

// IntFromFloat truncates f toward zero.
func IntFromFloat(f float64) (*Int, error) {
	if math.IsInf(f, 0) {
		return nil, OverflowErrorf("cannot convert float infinity to integer")
	}
	if math.IsNaN(f) {
		return nil, ValueErrorf("cannot convert float NaN to integer")
	}
	t := math.Trunc(f)
	if t >= -9.223372036854775e18 && t <= 9.223372036854775e18 {
		return NewInt(int64(t)), nil
	}
	b, _ := new(big.Float).SetFloat64(t).Int(nil)
	return NewBigInt(b), nil
}

func intAdd(a, b *Int) *Int {
	if a.big == nil && b.big == nil {
		r := a.small + b.small
		if (a.small^r)&(b.small^r) >= 0 {
			return NewInt(r)
		}
	}
	return NewBigInt(new(big.Int).Add(a.bigRef(), b.bigRef()))
}

func intSub(a, b *Int) *Int {
	if a.big == nil && b.big == nil {
		r := a.small - b.small
		if (a.small^b.small)&(a.small^r) >= 0 {
			return NewInt(r)
		}
	}
	return NewBigInt(new(big.Int).Sub(a.bigRef(), b.bigRef()))
}

func intMul(a, b *Int) *Int {
	if a.big == nil && b.big == nil {
		x, y := a.small, b.small
		if x == 0 || y == 0 {
			return NewInt(0)
		}
		r := x * y
		if r/y == x && !(x == -1 && y == math.MinInt64) && !(y == -1 && x == math.MinInt64) {
			return NewInt(r)
		}
	}
	return NewBigInt(new(big.Int).Mul(a.bigRef(), b.bigRef()))
}

// intDivMod returns floor division and modulo; the remainder takes the
// sign of the divisor.
func intDivMod(a, b *Int) (*Int, *Int) {
	if a.big == nil && b.big == nil && !(a.small == math.MinInt64 && b.small == -1) {
		q := a.small / b.small
		r := a.small % b.small
		if r != 0 && (r < 0) != (b.small < 0) {
			q--
			r += b.small
		}
		return NewInt(q), NewInt(r)
	}
	q, m := new(big.Int), new(big.Int)
	// DivMod is Euclidean: m >= 0. Adjust to floor semantics.
	q.DivMod(a.bigRef(), b.bigRef(), m)
	if m.Sign() != 0 && b.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
		m.Add(m, b.bigRef())
	}
	return NewBigInt(q), NewBigInt(m)
}

func intFloorDiv(a, b *Int) (*Int, error) {
	if b.Sign() == 0 {
		return nil, ZeroDivisionErrorf("integer division or modulo by zero")
	}
	q, _ := intDivMod(a, b)
	return q, nil
}

func intMod(a, b *Int) (*Int, error) {
	if b.Sign() == 0 {
		return nil, ZeroDivisionErrorf("integer modulo by zero")
	}
	_, r := intDivMod(a, b)
	return r, nil
}

func intTrueDiv(a, b *Int) (Object, error) {
	if b.Sign() == 0 {
		return nil, ZeroDivisionErrorf("division by zero")
	}
	const exact = 1 << 53
	if a.big == nil && b.big == nil && a.small > -exact && a.small < exact && b.small > -exact && b.small < exact {
		return NewFloat(float64(a.small) / float64(b.small)), nil
	}
	f, _ := new(big.Rat).SetFrac(a.bigRef(), b.bigRef()).Float64()
	if math.IsInf(f, 0) {
		return nil, OverflowErrorf("integer division result too large for a float")
	}
	if f == 0 && (a.Sign() < 0) != (b.Sign() < 0) {
		// A Rat has no negative zero.
		f = math.Copysign(0, -1)
	}
	return NewFloat(f), nil
}

func intNeg(a *Int) *Int {
	if a.big == nil && a.small != math.MinInt64 {
		return NewInt(-a.small)
	}
	return NewBigInt(new(big.Int).Neg(a.bigRef()))
}

func intAbs(a *Int) *Int {
	if a.Sign() < 0 {
		return intNeg(a)
	}
	return a
}

func intInvert(a *Int) *Int {
	if a.big == nil {
		return NewInt(^a.small)
	}
	return NewBigInt(new(big.Int).Not(a.big))
}

func intPow(a, b *Int) (Object, error) {
	if b.Sign() < 0 {
		af, err := a.Float()
		if err != nil {
			return nil, err
		}
		bf, err := b.Float()
		if err != nil {
			return nil, err
		}
		return floatPow(af, bf)
	}
	if b.big != nil {
		// Only 0, 1 and -1 can be raised to such exponents.
		switch {
		case a.Sign() == 0:
			return NewInt(0), nil
		case a.big == nil && a.small == 1:
			return NewInt(1), nil
		case a.big == nil && a.small == -1:
			if b.big.Bit(0) == 0 {
				return NewInt(1), nil
			}
			return NewInt(-1), nil
		}
		return nil, MemoryErrorf("")
	}
	return NewBigInt(new(big.Int).Exp(a.bigRef(), b.bigRef(), nil)), nil
}

// intPowMod computes pow(a, b, m).
func intPowMod(a, b, m *Int) (*Int, error) {
	if m.Sign() == 0 {
		return nil, ValueErrorf("pow() 3rd argument cannot be 0")
	}
	mod := m.bigRef()
	neg := mod.Sign() < 0
	absMod := new(big.Int).Abs(mod)
	base := new(big.Int).Set(a.bigRef())
	exp := b.bigRef()
	if exp.Sign() < 0 {
		inv := new(big.Int).ModInverse(new(big.Int).Mod(base, absMod), absMod)
		if inv == nil {
			return nil, ValueErrorf("base is not invertible for the given modulus")
		}
		base = inv
		exp = new(big.Int).Neg(exp)
	}
	r := new(big.Int).Exp(new(big.Int).Mod(base, absMod), exp, absMod)
	if neg && r.Sign() != 0 {
		r.Add(r, mod)
	}
	return NewBigInt(r), nil
}

func intShift(a, b *Int, left bool) (*Int, error) {
	if b.Sign() < 0 {
		return nil, ValueErrorf("negative shift count")
	}
	n, ok := b.Int64()
	if !ok || n > math.MaxInt32 {
		if !left {
			if a.Sign() < 0 {
				return NewInt(-1), nil
			}
			return NewInt(0), nil
		}
		if a.Sign() == 0 {
			return NewInt(0), nil
		}
		return nil, OverflowErrorf("too many digits in integer")
	}
	if left {
		if a.big == nil && n < 62 {
			r := a.small << uint(n)
			if r>>uint(n) == a.small {
				return NewInt(r), nil
			}
		}
		return NewBigInt(new(big.Int).Lsh(a.bigRef(), uint(n))), nil
	}
	if a.big == nil {
		if n >= 63 {
			if a.small < 0 {
				return NewInt(-1), nil
			}
			return NewInt(0), nil
		}
		return NewInt(a.small >> uint(n)), nil
	}
	return NewBigInt(new(big.Int).Rsh(a.big, uint(n))), nil
}

func intBitwise(a, b *Int, opName string) *Int {
	if a.big == nil && b.big == nil {
		switch opName {
		case "&":
			return NewInt(a.small & b.small)
		case "|":
			return NewInt(a.small | b.small)
		default:
			return NewInt(a.small ^ b.small)
		}
	}
	r := new(big.Int)
	switch opName {
	case "&":
		r.And(a.bigRef(), b.bigRef())
	case "|":
		r.Or(a.bigRef(), b.bigRef())
	default:
		r.Xor(a.bigRef(), b.bigRef())
	}
	return NewBigInt(r)
}

// ParseInt parses s the way int(s, base) does.
func ParseInt(s string, base int) (*Int, error) {
	orig := s
	invalid := func() error {
		return ValueErrorf("invalid literal for int() with base %d: %s", base, reprString(orig))
	}
	s = strings.TrimSpace(s)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	lower := strings.ToLower(s)
	prefixBase := 0
	switch {
	case strings.HasPrefix(lower, "0x"):
		prefixBase = 16
	case strings.HasPrefix(lower, "0o"):
		prefixBase = 8
	case strings.HasPrefix(lower, "0b"):
		prefixBase = 2
	}
	if base == 0 {
		if prefixBase != 0 {
			base = prefixBase
			s = s[2:]
		} else {
			base = 10
			if len(strings.TrimLeft(s, "0_")) != len(s) && strings.Trim(s, "0_") != "" {
				return nil, ValueErrorf("invalid literal for int() with base 0: %s", reprString(orig))
			}
		}
	} else if prefixBase == base {
		s = s[2:]
		if strings.HasPrefix(s, "_") {
			s = s[1:]
		}
	}
	if s == "" || strings.HasPrefix(s, "_") || strings.HasSuffix(s, "_") || strings.Contains(s, "__") {
		return nil, invalid()
	}
	digits := strings.ReplaceAll(s, "_", "")
	if strings.ContainsAny(digits, "+-") {
		return nil, invalid()
	}
	if base == 10 && len(digits) > MaxStrDigits {
		return nil, ValueErrorf("Exceeds the limit (%d digits) for integer string conversion: value has %d digits; use sys.set_int_max_str_digits() to increase the limit", MaxStrDigits, len(digits))
	}
	b, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, invalid()
	}
	if neg {
		b.Neg(b)
	}
	return NewBigInt(b), nil
}

// indexValue returns the value of int-like operands.
func indexValue(o Object) (*Int, bool) {
	if n, ok := asInt(o); ok {
		return n, true
	}
	return nil, false
}
