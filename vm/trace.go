package vm

import (
	"github.com/deepnoodle-ai/pyxlate/object"
	"github.com/deepnoodle-ai/pyxlate/op"
)

// Granularity selects which executed instructions reach a Tracer.
type Granularity uint8

const (
	// NoInstructions reports frame and unwind events only.
	NoInstructions Granularity = iota
	// EveryInstruction reports each target instruction.
	EveryInstruction
	// SampledInstructions reports one instruction in Every.
	SampledInstructions
	// NewSourceLines reports the first instruction of each run belonging
	// to one source line.
	NewSourceLines
)

// TraceConfig is what a Tracer asks to see. The zero value asks for
// nothing.
type TraceConfig struct {
	Instructions Granularity
	// Every is the sampling period for SampledInstructions; values below
	// one mean every instruction.
	Every   int
	Frames  bool
	Unwinds bool
}

// Tracer follows translated code as it runs. Methods are called on the
// running goroutine; returning false stops execution with ErrHalted.
type Tracer interface {
	TraceConfig() TraceConfig
	Instruction(InstructionEvent) bool
	EnterFrame(FrameEvent) bool
	ExitFrame(FrameEvent) bool
	Unwind(UnwindEvent) bool
}

// Site is a position in translated code together with the source
// instruction it was generated from.
type Site struct {
	CodeID   string
	QualName string
	IP       int
	Line     int
	// Offset is the source bytecode offset.
	Offset int
}

// InstructionEvent reports a target instruction about to run.
type InstructionEvent struct {
	Site
	Opcode     op.Code
	StackDepth int
	FrameDepth int
}

// Name returns the target opcode name.
func (e InstructionEvent) Name() string { return op.GetInfo(e.Opcode).Name }

// FrameEvent reports a code object starting or finishing a run. For a
// generator or coroutine each resumption is a run of its own.
type FrameEvent struct {
	Site
	Resumed    bool
	ArgCount   int
	FrameDepth int
	// Raised is the exception leaving the frame, set on exit only.
	Raised *object.Exception
}

// UnwindEvent reports a raised exception being routed to a handler from
// the exception table.
type UnwindEvent struct {
	Site
	Exception    *object.Exception
	Handler      int
	HandlerDepth int
	PushedLastIP bool
	FromReraise  bool
}

// NopTracer ignores every event. Embed it to implement part of Tracer.
type NopTracer struct{}

func (NopTracer) TraceConfig() TraceConfig          { return TraceConfig{Frames: true, Unwinds: true} }
func (NopTracer) Instruction(InstructionEvent) bool { return true }
func (NopTracer) EnterFrame(FrameEvent) bool        { return true }
func (NopTracer) ExitFrame(FrameEvent) bool         { return true }
func (NopTracer) Unwind(UnwindEvent) bool           { return true }

var _ Tracer = NopTracer{}

func (f *frame) site() Site {
	loc := f.location()
	return Site{
		CodeID:   f.code.ID(),
		QualName: f.qualname(),
		IP:       f.lastIP,
		Line:     loc.Line,
		Offset:   loc.Offset,
	}
}

func halt(ok bool) error {
	if !ok {
		return ErrHalted
	}
	return nil
}

func (th *thread) traceInstruction(f *frame, opcode op.Code) error {
	cfg := th.vm.traceConfig
	switch cfg.Instructions {
	case NoInstructions:
		return nil
	case SampledInstructions:
		if cfg.Every > 1 && th.steps%cfg.Every != 0 {
			return nil
		}
	case NewSourceLines:
		line := f.location().Line
		if line == f.line {
			return nil
		}
		f.line = line
	}
	return halt(th.vm.tracer.Instruction(InstructionEvent{
		Site:       f.site(),
		Opcode:     opcode,
		StackDepth: len(f.stack),
		FrameDepth: len(th.frames),
	}))
}

func (th *thread) traceEnter(f *frame, argc int, resumed bool) error {
	if th.vm.tracer == nil || !th.vm.traceConfig.Frames {
		return nil
	}
	s := f.site()
	if !resumed {
		s.IP, s.Line, s.Offset = 0, f.code.FirstLine(), 0
	}
	return halt(th.vm.tracer.EnterFrame(FrameEvent{
		Site:       s,
		Resumed:    resumed,
		ArgCount:   argc,
		FrameDepth: len(th.frames) + 1,
	}))
}

func (th *thread) traceExit(f *frame, err error) error {
	if th.vm.tracer == nil || !th.vm.traceConfig.Frames {
		return nil
	}
	exc, _ := object.AsException(err)
	return halt(th.vm.tracer.ExitFrame(FrameEvent{
		Site:       f.site(),
		Resumed:    f.gen != nil,
		FrameDepth: len(th.frames),
		Raised:     exc,
	}))
}

func (th *thread) traceUnwind(f *frame, exc *object.Exception, target, depth int, lasti, reraise bool) error {
	if th.vm.tracer == nil || !th.vm.traceConfig.Unwinds {
		return nil
	}
	return halt(th.vm.tracer.Unwind(UnwindEvent{
		Site:         f.site(),
		Exception:    exc,
		Handler:      target,
		HandlerDepth: depth,
		PushedLastIP: lasti,
		FromReraise:  reraise,
	}))
}
