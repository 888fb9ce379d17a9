package object

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// blockingState yields 1 after entered is signalled and release is closed.
type blockingState struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingState) Resume(ctx context.Context, send Object, throw *Exception) (Object, bool, error) {
	if throw != nil {
		return nil, false, throw
	}
	s.entered <- struct{}{}
	<-s.release
	return NewInt(1), false, nil
}

func TestGeneratorRejectsConcurrentResume(t *testing.T) {
	ctx := context.Background()
	state := &blockingState{entered: make(chan struct{}), release: make(chan struct{})}
	g := NewGenerator(GeneratorType, state, nil, "g", "g")

	type result struct {
		v   Object
		ok  bool
		err error
	}
	first := make(chan result, 1)
	go func() {
		v, ok, err := g.Next(ctx)
		first <- result{v, ok, err}
	}()
	<-state.entered
	require.True(t, g.Running())

	_, _, err := g.Next(ctx)
	require.True(t, IsExceptionOf(err, ValueErrorType))
	require.EqualError(t, err, "ValueError: generator already executing")
	require.EqualError(t, g.Close(ctx), "ValueError: generator already executing")

	close(state.release)
	r := <-first
	require.NoError(t, r.err)
	require.True(t, r.ok)
	require.Equal(t, "1", repr(t, r.v))
	require.False(t, g.Running())

	// The generator is usable again once the first resumption returns.
	go func() { <-state.entered }()
	v, ok, err := g.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", repr(t, v))
}

func TestGeneratorSendBeforeStart(t *testing.T) {
	ctx := context.Background()
	state := &blockingState{entered: make(chan struct{}), release: make(chan struct{})}
	g := NewGenerator(GeneratorType, state, nil, "g", "g")
	_, _, err := g.SendValue(ctx, NewInt(1))
	require.EqualError(t, err, "TypeError: can't send non-None value to a just-started generator")

	// Closing an unstarted generator finishes it without running the frame.
	require.NoError(t, g.Close(ctx))
	require.True(t, g.Finished())
	_, ok, err := g.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
