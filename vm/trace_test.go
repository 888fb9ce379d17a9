package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/stretchr/testify/require"
)

// recorder keeps every event it is configured to see.
type recorder struct {
	cfg          TraceConfig
	instructions []InstructionEvent
	enters       []FrameEvent
	exits        []FrameEvent
	unwinds      []UnwindEvent
}

func (r *recorder) TraceConfig() TraceConfig { return r.cfg }

func (r *recorder) Instruction(e InstructionEvent) bool {
	r.instructions = append(r.instructions, e)
	return true
}

func (r *recorder) EnterFrame(e FrameEvent) bool {
	r.enters = append(r.enters, e)
	return true
}

func (r *recorder) ExitFrame(e FrameEvent) bool {
	r.exits = append(r.exits, e)
	return true
}

func (r *recorder) Unwind(e UnwindEvent) bool {
	r.unwinds = append(r.unwinds, e)
	return true
}

func TestTraceEveryInstruction(t *testing.T) {
	a, u := addOne()
	fn := function(t, a, u, nil)

	r := &recorder{cfg: TraceConfig{Instructions: EveryInstruction}}
	_, err := New(WithTracer(r)).Call(context.Background(), fn, ints(1), nil)
	require.NoError(t, err)
	require.Empty(t, r.enters)

	var names []string
	for _, e := range r.instructions {
		require.Equal(t, "f", e.QualName)
		require.Equal(t, fn.Code().ID(), e.CodeID)
		require.Equal(t, 1, e.FrameDepth)
		names = append(names, e.Name())
	}
	require.Equal(t, []string{"LOAD_FAST", "LOAD_CONST", "BINARY_OP", "RETURN_VALUE"}, names)
	last := r.instructions[3]
	require.Equal(t, op.ReturnValue, last.Opcode)
	require.Equal(t, 1, last.StackDepth)
	require.Equal(t, fn.Code().LocationAt(last.IP).Offset, last.Offset)
}

func TestTraceFrames(t *testing.T) {
	a, u := addOne()
	fn := function(t, a, u, nil)

	r := &recorder{cfg: TraceConfig{Frames: true}}
	_, err := New(WithTracer(r)).Call(context.Background(), fn, ints(1), nil)
	require.NoError(t, err)
	require.Empty(t, r.instructions)

	require.Len(t, r.enters, 1)
	enter := r.enters[0]
	require.Equal(t, "f", enter.QualName)
	require.Equal(t, fn.Code().ID(), enter.CodeID)
	require.Equal(t, 0, enter.IP)
	require.Equal(t, 1, enter.ArgCount)
	require.Equal(t, 1, enter.FrameDepth)
	require.False(t, enter.Resumed)

	require.Len(t, r.exits, 1)
	require.Nil(t, r.exits[0].Raised)

	a, u = tryDivide("ValueError")
	fn = function(t, a, u, nil)
	r = &recorder{cfg: TraceConfig{Frames: true}}
	_, err = New(WithTracer(r)).Call(context.Background(), fn, nil, nil)
	require.True(t, object.IsExceptionOf(err, object.ZeroDivisionErrorType))
	require.Len(t, r.exits, 1)
	require.NotNil(t, r.exits[0].Raised)
	require.True(t, r.exits[0].Raised.Type().IsSubtype(object.ZeroDivisionErrorType))
}

func TestTraceUnwindsThroughExceptionTable(t *testing.T) {
	// The except clause does not match, so the handler reraises into the
	// cleanup block before the exception leaves the frame.
	a, u := tryDivide("ValueError")
	fn := function(t, a, u, nil)

	r := &recorder{cfg: TraceConfig{Unwinds: true}}
	_, err := New(WithTracer(r)).Call(context.Background(), fn, nil, nil)
	require.True(t, object.IsExceptionOf(err, object.ZeroDivisionErrorType))

	require.Len(t, r.unwinds, 2)
	first, second := r.unwinds[0], r.unwinds[1]
	require.Contains(t, []op.Code{op.BinaryOp, op.TrueDivFloat}, fn.Code().InstructionAt(first.IP))
	require.False(t, first.FromReraise)
	require.False(t, first.PushedLastIP)
	require.Equal(t, 0, first.HandlerDepth)

	require.True(t, second.FromReraise)
	require.True(t, second.PushedLastIP)
	require.Equal(t, 1, second.HandlerDepth)
	require.Same(t, first.Exception, second.Exception)
	require.Greater(t, second.Handler, first.Handler)

	// A matching clause handles it after one unwind.
	a, u = tryDivide("ZeroDivisionError")
	fn = function(t, a, u, nil)
	r = &recorder{cfg: TraceConfig{Unwinds: true}}
	res, err := New(WithTracer(r)).Call(context.Background(), fn, nil, nil)
	require.NoError(t, err)
	require.Equal(t, object.NewInt(3), res)
	require.Len(t, r.unwinds, 1)
}

func TestTraceGeneratorResumptions(t *testing.T) {
	ctx := context.Background()
	r := &recorder{cfg: TraceConfig{Frames: true}}
	fn := doubler(t)
	g := newGenerator(t, New(WithTracer(r)), fn)
	require.Empty(t, r.enters)

	for _, send := range []object.Object{object.None, object.NewInt(21), object.None} {
		_, _, err := g.SendValue(ctx, send)
		require.NoError(t, err)
	}
	require.Len(t, r.enters, 3)
	require.Len(t, r.exits, 3)
	for _, e := range r.enters {
		require.True(t, e.Resumed)
		require.Equal(t, fn.Code().ID(), e.CodeID)
	}
	// Each suspended run ends on a yield.
	require.Equal(t, op.Yield, fn.Code().InstructionAt(r.exits[0].IP))
	require.Equal(t, op.Yield, fn.Code().InstructionAt(r.exits[1].IP))
}

type haltingTracer struct {
	NopTracer
	haltAfter int
	steps     int
}

func (h *haltingTracer) TraceConfig() TraceConfig {
	return TraceConfig{Instructions: EveryInstruction}
}

func (h *haltingTracer) Instruction(InstructionEvent) bool {
	h.steps++
	return h.steps < h.haltAfter
}

func TestTraceHaltIsNotCatchable(t *testing.T) {
	// A halt is not catchable by the except clause around the division.
	a, u := tryDivide("ZeroDivisionError")
	fn := function(t, a, u, nil)

	h := &haltingTracer{haltAfter: 3}
	_, err := New(WithTracer(h)).Call(context.Background(), fn, nil, nil)
	require.True(t, errors.Is(err, ErrHalted), "%v", err)
	require.Equal(t, 3, h.steps)
}

type unwindHalter struct{ NopTracer }

func (unwindHalter) Unwind(UnwindEvent) bool { return false }

func TestTraceHaltOnUnwind(t *testing.T) {
	a, u := tryDivide("ZeroDivisionError")
	fn := function(t, a, u, nil)
	_, err := New(WithTracer(unwindHalter{})).Call(context.Background(), fn, nil, nil)
	require.True(t, errors.Is(err, ErrHalted), "%v", err)
}

func TestTraceNewSourceLines(t *testing.T) {
	a, u := addOne()
	fn := function(t, a, u, nil)

	r := &recorder{cfg: TraceConfig{Instructions: NewSourceLines}}
	_, err := New(WithTracer(r)).Call(context.Background(), fn, ints(1), nil)
	require.NoError(t, err)
	require.Len(t, r.instructions, 1)
	require.Equal(t, 1, r.instructions[0].Line)
}
