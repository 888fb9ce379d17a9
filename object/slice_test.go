package object

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func intSeq(n int) []Object {
	items := make([]Object, n)
	for i := range items {
		items[i] = NewInt(int64(i))
	}
	return items
}

func TestSliceSelectsLikePython(t *testing.T) {
	ctx := context.Background()
	huge, err := ParseInt("1180591620717411303424", 10)
	require.NoError(t, err)
	i := func(v int64) Object { return NewInt(v) }
	tests := []struct {
		name             string
		start, stop, stp Object
		list             string
		str              string
	}{
		{"reverse", nil, nil, i(-1), "[9, 8, 7, 6, 5, 4, 3, 2, 1, 0]", "'jihgfedcba'"},
		{"reverse by two", nil, nil, i(-2), "[9, 7, 5, 3, 1]", "'jhfdb'"},
		{"negative step with bounds", i(8), i(2), i(-2), "[8, 6, 4]", "'ige'"},
		{"negative start", i(-3), nil, nil, "[7, 8, 9]", "'hij'"},
		{"clamped both ends", i(-100), i(100), nil, "[0, 1, 2, 3, 4, 5, 6, 7, 8, 9]", "'abcdefghij'"},
		{"start past end", i(100), nil, nil, "[]", "''"},
		{"stop before start reversed", nil, i(-100), i(-1), "[9, 8, 7, 6, 5, 4, 3, 2, 1, 0]", "'jihgfedcba'"},
		{"stride", i(2), i(8), i(3), "[2, 5]", "'cf'"},
		{"negative stride from middle", i(5), nil, i(-3), "[5, 2]", "'fc'"},
		{"negative bounds and stride", i(-1), i(-11), i(-4), "[9, 5, 1]", "'jfb'"},
		{"step beyond machine int", nil, nil, huge, "[0]", "'a'"},
		{"bounds beyond machine int", intNeg(huge), huge, nil, "[0, 1, 2, 3, 4, 5, 6, 7, 8, 9]", "'abcdefghij'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSlice(tt.start, tt.stop, tt.stp)
			got, err := GetItem(ctx, NewList(intSeq(10)), s)
			require.NoError(t, err)
			require.Equal(t, tt.list, repr(t, got))
			got, err = GetItem(ctx, NewStr("abcdefghij"), s)
			require.NoError(t, err)
			require.Equal(t, tt.str, repr(t, got))
		})
	}
}

func TestSliceIndices(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		start, stop, step Object
		want              [3]int
	}{
		{nil, nil, NewInt(-1), [3]int{9, -1, -1}},
		{NewInt(-3), nil, nil, [3]int{7, 10, 1}},
		{NewInt(100), nil, nil, [3]int{10, 10, 1}},
		{NewInt(5), nil, NewInt(-3), [3]int{5, -1, -3}},
	}
	for _, tt := range tests {
		start, stop, step, _, err := NewSlice(tt.start, tt.stop, tt.step).Indices(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, tt.want, [3]int{start, stop, step})
	}
}

func TestSliceErrors(t *testing.T) {
	ctx := context.Background()
	l := NewList(intSeq(10))

	_, err := GetItem(ctx, l, NewSlice(nil, nil, NewInt(0)))
	require.True(t, IsExceptionOf(err, ValueErrorType))
	require.EqualError(t, err, "ValueError: slice step cannot be zero")
	_, err = GetItem(ctx, NewStr("abc"), NewSlice(nil, nil, NewInt(0)))
	require.EqualError(t, err, "ValueError: slice step cannot be zero")

	_, err = GetItem(ctx, l, NewSlice(NewStr("a"), nil, nil))
	require.EqualError(t, err, "TypeError: slice indices must be integers or None or have an __index__ method")

	err = SetItem(ctx, l, NewSlice(nil, nil, NewInt(2)), NewList([]Object{NewInt(1)}))
	require.EqualError(t, err, "ValueError: attempt to assign sequence of size 1 to extended slice of size 5")
}

func TestListDeleteExtendedSlice(t *testing.T) {
	ctx := context.Background()
	l := NewList(intSeq(10))
	require.NoError(t, DelItem(ctx, l, NewSlice(nil, nil, NewInt(-3))))
	require.Equal(t, "[1, 2, 4, 5, 7, 8]", repr(t, l))

	require.NoError(t, SetItem(ctx, l, NewSlice(NewInt(1), NewInt(3), nil), NewList([]Object{NewInt(0)})))
	require.Equal(t, "[1, 0, 5, 7, 8]", repr(t, l))
}
