package object

import (
	"context"
	"math"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/stretchr/testify/require"
)

func TestLibmIsCorrectlyRounded(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"pow(3, 2.5)", Pow(3, 2.5), 15.588457268119896},
		{"pow(3, -2.5)", Pow(3, -2.5), 0.06415002990995841},
		{"pow(2.5, -2.5)", Pow(2.5, -2.5), 0.10119288512538814},
		{"pow(1e30, -7)", Pow(1e30, -7), 9.999999999999999e-211},
		{"pow(1.1, 100)", Pow(1.1, 100), 13780.61233982238},
		{"pow(-2, 3)", Pow(-2, 3), -8},
		{"pow(10, -5)", Pow(10, -5), 1e-05},
		{"pow(0.5, 1074)", Pow(0.5, 1074), 5e-324},
		{"pow(7, 0.5)", Pow(7, 0.5), 2.6457513110645907},
		{"exp(1.5)", Exp(1.5), 4.4816890703380645},
		{"exp(-700.5)", Exp(-700.5), 5.980196118639791e-305},
		{"exp(709)", Exp(709), 8.218407461554972e+307},
		{"log(7)", Log(7), 1.9459101490553132},
		{"log(1e-310)", Log(1e-310), -713.8013788281542},
		{"log(0.9999999)", Log(0.9999999), -1.0000000494736474e-07},
		{"sin(1e22)", Sin(1e22), -0.8522008497671888},
		{"cos(1e22)", Cos(1e22), 0.523214785395139},
		{"sin(3)", Sin(3), 0.1411200080598672},
		{"cos(0.7)", Cos(0.7), 0.7648421872844885},
		{"sin(-1e300)", Sin(-1e300), 0.8178819121159085},
		{"atan2(1, 2)", Atan2(1, 2), 0.4636476090008061},
		{"atan2(-3, -7)", Atan2(-3, -7), -2.7367008673047097},
		{"atan2(5, 0.25)", Atan2(5, 0.25), 1.5208379310729538},
		{"hypot(1e300, 1e300)", Hypot(1e300, 1e300), 1.4142135623730952e+300},
		{"hypot(3, 4)", Hypot(3, 4), 5},
		{"hypot(1, 1)", Hypot(1, 1), 1.4142135623730951},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.got)
		})
	}
}

func TestLibmSpecialCases(t *testing.T) {
	require.True(t, math.IsInf(Pow(10, 400), 1))
	require.True(t, math.IsNaN(Pow(-8, 1.0/3)))
	require.Equal(t, 1.0, Pow(1, math.NaN()))
	require.Equal(t, 0.0, Exp(-800))
	require.True(t, math.IsInf(Exp(710.5), 1))
	require.True(t, math.Signbit(Sin(math.Copysign(0, -1))))
	require.Equal(t, math.Pi, Atan2(0, -1))
}

func TestPowerMatchesCPython(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		a, b     Object
		expected string
	}{
		{NewInt(3), NewFloat(2.5), "15.588457268119896"},
		{NewInt(3), NewFloat(-2.5), "0.06415002990995841"},
		{NewFloat(2.5), NewFloat(-2.5), "0.10119288512538814"},
		{NewInt(3), NewInt(-2), "0.1111111111111111"},
		{NewFloat(-8), NewFloat(1.0 / 3), "(1.0000000000000002+1.7320508075688772j)"},
		{NewFloat(-2), NewFloat(0.5), "(8.659560562354934e-17+1.4142135623730951j)"},
		{NewComplex(complex(1, 2)), NewInt(3), "(-11-2j)"},
		{NewComplex(complex(1, 2)), NewFloat(0.5), "(1.272019649514069+0.7861513777574233j)"},
	}
	for _, tt := range tests {
		t.Run(repr(t, tt.a)+"**"+repr(t, tt.b), func(t *testing.T) {
			result, err := BinaryOp(ctx, op.Power, tt.a, tt.b)
			require.NoError(t, err)
			require.Equal(t, tt.expected, repr(t, result))
		})
	}

	big, err := ParseInt("1"+"000000000000000000000000000000", 10)
	require.NoError(t, err)
	result, err := BinaryOp(ctx, op.Power, big, NewInt(-7))
	require.NoError(t, err)
	require.Equal(t, "9.999999999999999e-211", repr(t, result))

	_, err = BinaryOp(ctx, op.Power, NewComplex(complex(1e-200, 0)), NewInt(-2))
	require.EqualError(t, err, "ZeroDivisionError: 0.0 to a negative or complex power")
	_, err = BinaryOp(ctx, op.Power, NewComplex(complex(1e200, 1)), NewInt(2))
	require.EqualError(t, err, "OverflowError: complex exponentiation")
}

func TestIntTrueDivKeepsSignedZero(t *testing.T) {
	ctx := context.Background()
	big, err := ParseInt("-98765432109876543210987", 10)
	require.NoError(t, err)
	for _, divisor := range []Object{big, NewInt(-5)} {
		result, err := BinaryOp(ctx, op.TrueDiv, NewInt(0), divisor)
		require.NoError(t, err)
		require.True(t, math.Signbit(result.(*Float).Value()))
		require.Equal(t, "-0.0", repr(t, result))
	}
	result, err := BinaryOp(ctx, op.TrueDiv, NewInt(0), NewInt(5))
	require.NoError(t, err)
	require.Equal(t, "0.0", repr(t, result))
}
