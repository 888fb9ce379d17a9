package object

import (
	"math"
	"math/cmplx"
	"strings"
)

// Complex is a pair of IEEE-754 doubles.
type Complex struct {
	value complex128
}

func (c *Complex) Type() *Type { return ComplexType }

// Value returns the Go value.
func (c *Complex) Value() complex128 { return c.value }

// NewComplex returns a Complex for v.
func NewComplex(v complex128) *Complex {
	return &Complex{value: v}
}

func (c *Complex) String() string {
	re, im := real(c.value), imag(c.value)
	if re == 0 && !math.Signbit(re) {
		return formatShortest(im, false) + "j"
	}
	sign := "+"
	if math.Signbit(im) {
		sign = "-"
		im = -im
	}
	return "(" + formatShortest(re, false) + sign + formatShortest(im, false) + "j)"
}

// toComplex converts any numeric operand to complex128.
func toComplex(o Object) (complex128, bool, error) {
	switch v := o.(type) {
	case *Complex:
		return v.value, true, nil
	case *Instance:
		if c, ok := v.native.(*Complex); ok {
			return c.value, true, nil
		}
	}
	f, ok, err := toFloat(o)
	return complex(f, 0), ok, err
}

func complexDiv(a, b complex128) (Object, error) {
	if b == 0 {
		return nil, ZeroDivisionErrorf("complex division by zero")
	}
	// Smith's algorithm, as used by the reference implementation.
	ar, ai := real(a), imag(a)
	br, bi := real(b), imag(b)
	absBr, absBi := math.Abs(br), math.Abs(bi)
	var r complex128
	if absBr >= absBi {
		ratio := bi / br
		denom := br + bi*ratio
		r = complex((ar+ai*ratio)/denom, (ai-ar*ratio)/denom)
	} else if absBi >= absBr {
		ratio := br / bi
		denom := br*ratio + bi
		r = complex((ar*ratio+ai)/denom, (ai*ratio-ar)/denom)
	} else {
		r = complex(math.NaN(), math.NaN())
	}
	return NewComplex(r), nil
}

func complexPow(a, b complex128) (Object, error) {
	if b == 0 {
		return NewComplex(1), nil
	}
	zeroPower := ZeroDivisionErrorf("0.0 to a negative or complex power")
	if a == 0 {
		if real(b) < 0 || imag(b) != 0 {
			return nil, zeroPower
		}
		return NewComplex(0), nil
	}
	var r complex128
	if n := real(b); imag(b) == 0 && n == math.Floor(n) && math.Abs(n) <= 100 {
		var ok bool
		if r, ok = complexPowInt(a, int(n)); !ok {
			return nil, zeroPower
		}
	} else {
		vabs := Hypot(real(a), imag(a))
		length := Pow(vabs, real(b))
		at := Atan2(imag(a), real(a))
		phase := at * real(b)
		if imag(b) != 0 {
			length /= Exp(at * imag(b))
			phase += imag(b) * Log(vabs)
		}
		r = complex(length*Cos(phase), length*Sin(phase))
	}
	if cmplx.IsInf(r) {
		return nil, OverflowErrorf("complex exponentiation")
	}
	return NewComplex(r), nil
}

// complexPowInt raises a to n by repeated multiplication. It fails when
// a negative power divides by an underflowed zero.
func complexPowInt(a complex128, n int) (complex128, bool) {
	m := n
	if m < 0 {
		m = -m
	}
	r, p := complex128(1), a
	for mask := 1; mask > 0 && m >= mask; mask <<= 1 {
		if m&mask != 0 {
			r = complexMul(r, p)
		}
		p = complexMul(p, p)
	}
	if n >= 0 {
		return r, true
	}
	if r == 0 {
		return 0, false
	}
	q, _ := complexDiv(1, r)
	return q.(*Complex).value, true
}

// complexMul multiplies without fusing, so results match plain C.
func complexMul(a, b complex128) complex128 {
	ar, ai, br, bi := real(a), imag(a), real(b), imag(b)
	return complex(float64(ar*br)-float64(ai*bi), float64(ar*bi)+float64(ai*br))
}

// ParseComplex parses s the way complex(s) does.
func ParseComplex(s string) (complex128, error) {
	invalid := func() error {
		return ValueErrorf("complex() arg is a malformed string")
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return 0, invalid()
	}
	if !strings.HasSuffix(s, "j") && !strings.HasSuffix(s, "J") {
		f, err := ParseFloat(s)
		if err != nil {
			return 0, invalid()
		}
		return complex(f, 0), nil
	}
	body := s[:len(s)-1]
	// Find the sign separating the real and imaginary parts, skipping
	// exponent signs.
	split := -1
	for i := len(body) - 1; i > 0; i-- {
		if (body[i] == '+' || body[i] == '-') && body[i-1] != 'e' && body[i-1] != 'E' {
			split = i
			break
		}
	}
	parseImag := func(t string) (float64, error) {
		switch t {
		case "", "+":
			return 1, nil
		case "-":
			return -1, nil
		}
		return ParseFloat(t)
	}
	if split < 0 {
		im, err := parseImag(body)
		if err != nil {
			return 0, invalid()
		}
		return complex(0, im), nil
	}
	re, err := ParseFloat(body[:split])
	if err != nil {
		return 0, invalid()
	}
	im, err := parseImag(body[split:])
	if err != nil {
		return 0, invalid()
	}
	return complex(re, im), nil
}
