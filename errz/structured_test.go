package errz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindMatching(t *testing.T) {
	err := At(ErrMalformed, 12, "stack depth mismatch").WithUnit("mod.f")
	require.True(t, errors.Is(err, Malformed))
	require.False(t, errors.Is(err, Unmodeled))
	require.Equal(t, ErrMalformed, KindOf(fmt.Errorf("wrapped: %w", err)))
	require.Equal(t, "malformed input in mod.f at offset 12: stack depth mismatch", err.Error())
}

func TestWithUnitKeepsFirstAttribution(t *testing.T) {
	err := Newf(ErrUnmodeled, "opcode %s", "MATCH_CLASS").WithUnit("a")
	require.Equal(t, "a", err.WithUnit("b").Unit)
	require.True(t, IsUnmodeled(err))
}

func TestCauseIsUnwrapped(t *testing.T) {
	cause := errors.New("boom")
	err := New(ErrNoRepresentation, "generator").WithCause(cause)
	require.ErrorIs(t, err, cause)
	require.Zero(t, KindOf(cause))
}
