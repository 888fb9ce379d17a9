package object

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Float is an IEEE-754 double.
type Float struct {
	value float64
}

func (f *Float) Type() *Type { return FloatType }

// Value returns the Go value.
func (f *Float) Value() float64 { return f.value }

// NewFloat returns a Float for v.
func NewFloat(v float64) *Float {
	return &Float{value: v}
}

func (f *Float) String() string {
	return FormatFloatRepr(f.value)
}

// asFloat converts float-like operands (float and float subclass
// instances) to float64.
func asFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case *Float:
		return v.value, true
	case *Instance:
		if f, ok := v.native.(*Float); ok {
			return f.value, true
		}
	}
	return 0, false
}

// toFloat converts ints and floats to float64 for mixed arithmetic.
func toFloat(o Object) (float64, bool, error) {
	if f, ok := asFloat(o); ok {
		return f, true, nil
	}
	if n, ok := asInt(o); ok {
		f, err := n.Float()
		return f, true, err
	}
	return 0, false, nil
}

// ToFloat converts o for a builtin taking a real number: ints and floats
// directly, other objects through __float__ or __index__.
func ToFloat(ctx context.Context, o Object) (float64, error) {
	if f, ok, err := toFloat(o); ok || err != nil {
		return f, err
	}
	return floatFromDunder(ctx, o)
}

// FormatFloatRepr formats v the way repr(float) does: the shortest string
// that round-trips, in positional notation when the decimal exponent lies
// in [-4, 16), otherwise in scientific notation.
func FormatFloatRepr(v float64) string {
	return formatShortest(v, true)
}

func formatShortest(v float64, addDotZero bool) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	mant, expStr, _ := strings.Cut(s, "e")
	exp, _ := strconv.Atoi(expStr)
	digits := strings.Replace(mant, ".", "", 1)
	decpt := exp + 1
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if decpt > -4 && decpt <= 16 {
		switch {
		case decpt <= 0:
			b.WriteString("0.")
			b.WriteString(strings.Repeat("0", -decpt))
			b.WriteString(digits)
		case decpt >= len(digits):
			b.WriteString(digits)
			b.WriteString(strings.Repeat("0", decpt-len(digits)))
			if addDotZero {
				b.WriteString(".0")
			}
		default:
			b.WriteString(digits[:decpt])
			b.WriteByte('.')
			b.WriteString(digits[decpt:])
		}
		return b.String()
	}
	b.WriteByte(digits[0])
	if len(digits) > 1 {
		b.WriteByte('.')
		b.WriteString(digits[1:])
	}
	e := decpt - 1
	b.WriteByte('e')
	if e < 0 {
		b.WriteByte('-')
		e = -e
	} else {
		b.WriteByte('+')
	}
	es := strconv.Itoa(e)
	if len(es) < 2 {
		b.WriteByte('0')
	}
	b.WriteString(es)
	return b.String()
}

// ParseFloat parses s the way float(s) does.
func ParseFloat(s string) (float64, error) {
	orig := s
	s = strings.TrimSpace(s)
	invalid := func() error {
		return ValueErrorf("could not convert string to float: %s", reprString(orig))
	}
	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 {
		return 0, invalid()
	}
	switch strings.ToLower(body) {
	case "inf", "infinity", "nan":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, invalid()
		}
		return f, nil
	}
	if body == "" {
		return 0, invalid()
	}
	for i, c := range body {
		switch {
		case c >= '0' && c <= '9', c == '.', c == 'e', c == 'E':
		case c == '+' || c == '-':
			if i == 0 || (body[i-1] != 'e' && body[i-1] != 'E') {
				return 0, invalid()
			}
		case c == '_':
			if i == 0 || i == len(body)-1 || !isDigit(body[i-1]) || !isDigit(body[i+1]) {
				return 0, invalid()
			}
		default:
			return 0, invalid()
		}
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f, nil
		}
		return 0, invalid()
	}
	return f, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// floatDivMod implements float floor division and modulo with the
// remainder taking the sign of the divisor.
func floatDivMod(vx, wx float64) (float64, float64) {
	mod := math.Mod(vx, wx)
	div := (vx - mod) / wx
	if mod != 0 {
		if (wx < 0) != (mod < 0) {
			mod += wx
			div -= 1.0
		}
	} else {
		mod = math.Copysign(0, wx)
	}
	var floordiv float64
	if div != 0 {
		floordiv = math.Floor(div)
		if div-floordiv > 0.5 {
			floordiv += 1.0
		}
	} else {
		floordiv = math.Copysign(0, vx/wx)
	}
	return floordiv, mod
}

func floatFloorDiv(a, b float64) (Object, error) {
	if b == 0 {
		return nil, ZeroDivisionErrorf("float floor division by zero")
	}
	q, _ := floatDivMod(a, b)
	return NewFloat(q), nil
}

func floatMod(a, b float64) (Object, error) {
	if b == 0 {
		return nil, ZeroDivisionErrorf("float modulo by zero")
	}
	_, r := floatDivMod(a, b)
	return NewFloat(r), nil
}

func floatTrueDiv(a, b float64) (Object, error) {
	if b == 0 {
		return nil, ZeroDivisionErrorf("float division by zero")
	}
	return NewFloat(a / b), nil
}

// floatPow implements float ** float, including the complex result of a
// negative base raised to a fractional power.
func floatPow(x, y float64) (Object, error) {
	if y == 0 {
		return NewFloat(1), nil
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		if x == 1 {
			return NewFloat(1), nil
		}
		return NewFloat(math.NaN()), nil
	}
	if x == 0 && y < 0 && !math.IsInf(y, 0) {
		return nil, ZeroDivisionErrorf("0.0 cannot be raised to a negative power")
	}
	if x < 0 && !math.IsInf(x, 0) && !math.IsInf(y, 0) && y != math.Floor(y) {
		return complexPow(complex(x, 0), complex(y, 0))
	}
	r := Pow(x, y)
	if math.IsInf(r, 0) && !math.IsInf(x, 0) && !math.IsInf(y, 0) {
		return nil, OverflowErrorf("(34, 'Numerical result out of range')")
	}
	return NewFloat(r), nil
}

// floatAsRatio returns the exact numerator and denominator of v.
func floatAsRatio(v float64) (*Int, *Int, error) {
	if math.IsInf(v, 0) {
		return nil, nil, OverflowErrorf("cannot convert Infinity to integer ratio")
	}
	if math.IsNaN(v) {
		return nil, nil, ValueErrorf("cannot convert NaN to integer ratio")
	}
	r := new(big.Rat).SetFloat64(v)
	return NewBigInt(new(big.Int).Set(r.Num())), NewBigInt(new(big.Int).Set(r.Denom())), nil
}

// roundHalfEven rounds v to ndigits decimal places the way round() does.
func roundHalfEven(v float64, ndigits int64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) || v == 0 {
		return v
	}
	if ndigits > 323 {
		return v
	}
	if ndigits < -308 {
		return math.Copysign(0, v)
	}
	s := strconv.FormatFloat(v, 'f', int(max(ndigits, 0)), 64)
	if ndigits >= 0 {
		r, _ := strconv.ParseFloat(s, 64)
		return r
	}
	pow := Pow(10, float64(-ndigits))
	y := v / pow
	z := math.RoundToEven(y)
	return z * pow
}
