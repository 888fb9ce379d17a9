package object

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Exception is an instance of BaseException or any subclass, builtin or
// user defined. It implements error so that raised exceptions travel
// through Go error returns.
type Exception struct {
	typ      *Type
	args     *Tuple
	dict     *Dict
	cause    Object
	context  Object
	suppress bool
	// Trace lists the frames the exception propagated through, innermost
	// first.
	Trace []TraceEntry
}

// TraceEntry records one frame of an exception's propagation.
type TraceEntry struct {
	QualName string
	Filename string
	Line     int
}

// NewException creates an exception of type t with the given arguments.
func NewException(t *Type, args ...Object) *Exception {
	return &Exception{typ: t, args: NewTuple(args)}
}

func (e *Exception) Type() *Type { return e.typ }

// Args returns the exception's args tuple.
func (e *Exception) Args() *Tuple { return e.args }

// AttrDict returns the instance namespace.
func (e *Exception) AttrDict() *Dict {
	if e.dict == nil {
		e.dict = NewDict()
	}
	return e.dict
}

// Cause returns __cause__, or nil when unset.
func (e *Exception) Cause() Object { return e.cause }

// Context returns __context__, or nil when unset.
func (e *Exception) Context() Object { return e.context }

// SetCause sets __cause__ and __suppress_context__ as raise ... from does.
func (e *Exception) SetCause(cause Object) {
	e.cause = cause
	e.suppress = true
}

// SetContext sets __context__ unless that would create a cycle.
func (e *Exception) SetContext(ctxExc *Exception) {
	if ctxExc == nil || ctxExc == e {
		return
	}
	// Break any cycle through the context chain.
	for o := ctxExc; o != nil; {
		next, _ := o.context.(*Exception)
		if next == e {
			o.context = nil
			break
		}
		o = next
	}
	e.context = ctxExc
}

// Message returns str(e) without running user code.
func (e *Exception) Message() string {
	items := e.args.items
	switch len(items) {
	case 0:
		return ""
	case 1:
		if e.typ.IsSubtype(KeyErrorType) {
			return quickRepr(items[0])
		}
		if s, ok := items[0].(*Str); ok {
			return s.value
		}
		return quickRepr(items[0])
	}
	return quickRepr(e.args)
}

func (e *Exception) Error() string {
	msg := e.Message()
	if msg == "" {
		return e.typ.name
	}
	return e.typ.name + ": " + msg
}

// quickRepr formats builtin values without a context; it is used where a
// message must be produced from Go code.
func quickRepr(o Object) string {
	s, err := Repr(context.Background(), o)
	if err != nil {
		return fmt.Sprintf("<%s object>", o.Type().name)
	}
	return s
}

// AsException extracts a raised exception from err.
func AsException(err error) (*Exception, bool) {
	var e *Exception
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsExceptionOf reports whether err is an exception of type t.
func IsExceptionOf(err error, t *Type) bool {
	e, ok := AsException(err)
	return ok && e.typ.IsSubtype(t)
}

// NewKeyError returns KeyError(key).
func NewKeyError(key Object) *Exception {
	return NewException(KeyErrorType, key)
}

// NewStopIteration returns StopIteration carrying a return value.
func NewStopIteration(value Object) *Exception {
	if value == nil || value == Object(None) {
		return NewException(StopIterationType)
	}
	return NewException(StopIterationType, value)
}

// StopIterationValue returns the value carried by a StopIteration.
func StopIterationValue(e *Exception) Object {
	if len(e.args.items) == 0 {
		return None
	}
	return e.args.items[0]
}

func errorf(t *Type, format string, args ...any) *Exception {
	if len(args) == 0 {
		return NewException(t, NewStr(format))
	}
	return NewException(t, NewStr(fmt.Sprintf(format, args...)))
}

func TypeErrorf(format string, args ...any) *Exception { return errorf(TypeErrorType, format, args...) }

func ValueErrorf(format string, args ...any) *Exception {
	return errorf(ValueErrorType, format, args...)
}

func AttributeErrorf(format string, args ...any) *Exception {
	return errorf(AttributeErrorType, format, args...)
}

func IndexErrorf(format string, args ...any) *Exception {
	return errorf(IndexErrorType, format, args...)
}

func LookupErrorf(format string, args ...any) *Exception {
	return errorf(LookupErrorType, format, args...)
}

func OverflowErrorf(format string, args ...any) *Exception {
	return errorf(OverflowErrorType, format, args...)
}

func ZeroDivisionErrorf(format string, args ...any) *Exception {
	return errorf(ZeroDivisionErrorType, format, args...)
}

func RuntimeErrorf(format string, args ...any) *Exception {
	return errorf(RuntimeErrorType, format, args...)
}

func NameErrorf(format string, args ...any) *Exception {
	return errorf(NameErrorType, format, args...)
}

func UnboundLocalErrorf(format string, args ...any) *Exception {
	return errorf(UnboundLocalErrorType, format, args...)
}

func ImportErrorf(format string, args ...any) *Exception {
	return errorf(ImportErrorType, format, args...)
}

func NotImplementedErrorf(format string, args ...any) *Exception {
	return errorf(NotImplementedErrorType, format, args...)
}

func RecursionErrorf(format string, args ...any) *Exception {
	return errorf(RecursionErrorType, format, args...)
}

func SystemErrorf(format string, args ...any) *Exception {
	return errorf(SystemErrorType, format, args...)
}

// MemoryErrorf returns a MemoryError; an empty message yields no args.
func MemoryErrorf(format string, args ...any) *Exception {
	if format == "" {
		return NewException(MemoryErrorType)
	}
	return errorf(MemoryErrorType, format, args...)
}

// WrapError converts a Go error into a Python exception. Exceptions pass
// through unchanged; other errors become SystemError.
func WrapError(err error) *Exception {
	if e, ok := AsException(err); ok {
		return e
	}
	return NewException(SystemErrorType, NewStr(err.Error()))
}

func exceptionRepr(ctx context.Context, e *Exception) (string, error) {
	name := e.typ.name
	if len(e.args.items) == 1 {
		r, err := Repr(ctx, e.args.items[0])
		if err != nil {
			return "", err
		}
		return name + "(" + r + ")", nil
	}
	r, err := Repr(ctx, e.args)
	if err != nil {
		return "", err
	}
	return name + r, nil
}

func exceptionStr(ctx context.Context, e *Exception) (string, error) {
	items := e.args.items
	switch len(items) {
	case 0:
		return "", nil
	case 1:
		if e.typ.IsSubtype(KeyErrorType) {
			return Repr(ctx, items[0])
		}
		return StrOf(ctx, items[0])
	}
	return Repr(ctx, e.args)
}

// FormatException renders an exception and its chain the way the default
// excepthook does, innermost cause first.
func FormatException(ctx context.Context, e *Exception) string {
	var sb strings.Builder
	var write func(e *Exception, depth int)
	write = func(e *Exception, depth int) {
		if depth > 32 {
			return
		}
		if c, ok := e.cause.(*Exception); ok {
			write(c, depth+1)
			sb.WriteString("\nThe above exception was the direct cause of the following exception:\n\n")
		} else if c, ok := e.context.(*Exception); ok && !e.suppress {
			write(c, depth+1)
			sb.WriteString("\nDuring handling of the above exception, another exception occurred:\n\n")
		}
		if len(e.Trace) > 0 {
			sb.WriteString("Traceback (most recent call last):\n")
			for i := len(e.Trace) - 1; i >= 0; i-- {
				t := e.Trace[i]
				fmt.Fprintf(&sb, "  File \"%s\", line %d, in %s\n", t.Filename, t.Line, t.QualName)
			}
		}
		msg, err := exceptionStr(ctx, e)
		if err != nil {
			msg = "<exception str() failed>"
		}
		sb.WriteString(e.typ.FullName())
		if msg != "" {
			sb.WriteString(": ")
			sb.WriteString(msg)
		}
		sb.WriteByte('\n')
	}
	write(e, 0)
	return sb.String()
}

func asException(o Object) (*Exception, bool) {
	e, ok := o.(*Exception)
	return e, ok
}

func init() {
	m := NewMethods[*Exception](BaseExceptionType, asException)
	newExc := m.New(nil, 0, func(ctx context.Context, cls *Type, args Args) (Object, error) {
		return &Exception{typ: cls, args: NewTuple(append([]Object(nil), args.Rest...))}, nil
	})
	newExc.variadic, newExc.kwargs = true, true
	m.Define("__init__").Variadic().Kwargs().Impl(func(e *Exception, ctx context.Context, args Args) (Object, error) {
		if args.Kwargs != nil && args.Kwargs.Len() > 0 && !e.typ.IsHeap() {
			return nil, TypeErrorf("%s() takes no keyword arguments", e.typ.name)
		}
		e.args = NewTuple(append([]Object(nil), args.Rest...))
		return None, nil
	})
	m.AttrRW("args", func(e *Exception) Object { return e.args }, func(e *Exception, v Object) error {
		if v == nil {
			return TypeErrorf("args may not be deleted")
		}
		items, err := ToSlice(context.Background(), v)
		if err != nil {
			return err
		}
		e.args = NewTuple(items)
		return nil
	})
	m.AttrRW("__cause__", func(e *Exception) Object {
		if e.cause == nil {
			return None
		}
		return e.cause
	}, func(e *Exception, v Object) error {
		if v == nil || IsNone(v) {
			e.cause = nil
			return nil
		}
		if _, ok := v.(*Exception); !ok {
			return TypeErrorf("exception cause must be None or derive from BaseException")
		}
		e.cause = v
		return nil
	})
	m.AttrRW("__context__", func(e *Exception) Object {
		if e.context == nil {
			return None
		}
		return e.context
	}, func(e *Exception, v Object) error {
		if v == nil || IsNone(v) {
			e.context = nil
			return nil
		}
		if _, ok := v.(*Exception); !ok {
			return TypeErrorf("exception context must be None or derive from BaseException")
		}
		e.context = v
		return nil
	})
	m.AttrRW("__suppress_context__", func(e *Exception) Object { return NewBool(e.suppress) },
		func(e *Exception, v Object) error {
			e.suppress = v != nil && v == Object(True)
			return nil
		})
	m.Attr("__traceback__", func(e *Exception) Object { return None })
	m.Define("with_traceback").Arg("tb").Impl(func(e *Exception, ctx context.Context, args Args) (Object, error) {
		return e, nil
	})
	m.Define("add_note").Arg("note").Impl(func(e *Exception, ctx context.Context, args Args) (Object, error) {
		if _, ok := args.Get(0).(*Str); !ok {
			return nil, TypeErrorf("note must be a str, not '%s'", args.Get(0).Type().name)
		}
		d := e.AttrDict()
		notes, ok := d.GetStr("__notes__").(*List)
		if !ok {
			notes = NewList(nil)
			d.SetStr("__notes__", notes)
		}
		notes.Append(args.Get(0))
		return None, nil
	})
	m.Define("__str__").Impl(func(e *Exception, ctx context.Context, args Args) (Object, error) {
		s, err := exceptionStr(ctx, e)
		if err != nil {
			return nil, err
		}
		return NewStr(s), nil
	})
	m.Define("__repr__").Impl(func(e *Exception, ctx context.Context, args Args) (Object, error) {
		s, err := exceptionRepr(ctx, e)
		if err != nil {
			return nil, err
		}
		return NewStr(s), nil
	})

	firstArg := func(e *Exception) Object {
		if len(e.args.items) == 0 {
			return None
		}
		return e.args.items[0]
	}
	NewMethods[*Exception](StopIterationType, asException).Attr("value", firstArg)
	NewMethods[*Exception](SystemExitType, asException).Attr("code", firstArg)
	NewMethods[*Exception](ImportErrorType, asException).Attr("msg", firstArg)
	for _, t := range []*Type{AttributeErrorType, NameErrorType, ImportErrorType} {
		attrs := NewMethods[*Exception](t, asException)
		attrs.AttrRW("name", func(e *Exception) Object {
			if v := e.AttrDict().GetStr("name"); v != nil {
				return v
			}
			return None
		}, func(e *Exception, v Object) error {
			if v == nil {
				e.AttrDict().delStr("name")
				return nil
			}
			e.AttrDict().SetStr("name", v)
			return nil
		})
	}
}
