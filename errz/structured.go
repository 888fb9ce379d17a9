// Package errz defines the structured errors produced while translating
// source bytecode into target code.
package errz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind represents the category of a translation error.
type ErrorKind int

const (
	// ErrUnsupportedVersion indicates a source bytecode dialect outside the
	// supported range.
	ErrUnsupportedVersion ErrorKind = iota + 1
	// ErrMalformed indicates an instruction stream or exception table that
	// fails a structural invariant.
	ErrMalformed
	// ErrUnmodeled indicates an opcode, annotation, or calling pattern that
	// has no code generation rule.
	ErrUnmodeled
	// ErrNoRepresentation indicates a boundary value that cannot be
	// represented on the other side.
	ErrNoRepresentation
	// ErrRuntime indicates a failure raised by generated code.
	ErrRuntime
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnsupportedVersion:
		return "unsupported version"
	case ErrMalformed:
		return "malformed input"
	case ErrUnmodeled:
		return "unmodeled feature"
	case ErrNoRepresentation:
		return "no representation"
	case ErrRuntime:
		return "runtime error"
	default:
		return "error"
	}
}

// Sentinels usable with errors.Is. A *StructuredError matches the sentinel
// of its kind.
var (
	UnsupportedVersion = &StructuredError{Kind: ErrUnsupportedVersion}
	Malformed          = &StructuredError{Kind: ErrMalformed}
	Unmodeled          = &StructuredError{Kind: ErrUnmodeled}
	NoRepresentation   = &StructuredError{Kind: ErrNoRepresentation}
)

// StructuredError carries the kind of a translation failure together with
// the unit and instruction offset it was detected at.
type StructuredError struct {
	Message string
	Kind    ErrorKind
	Unit    string
	Offset  int // instruction offset in units, -1 when not applicable
	Cause   error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Unit != "" {
		b.WriteString(" in ")
		b.WriteString(e.Unit)
		if e.Offset >= 0 {
			fmt.Fprintf(&b, " at offset %d", e.Offset)
		}
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StructuredError of the same kind with no
// message, i.e. one of the package sentinels.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Unit == "" && t.Kind == e.Kind
}

// WithUnit returns a copy of the error attributed to the named unit. An
// existing attribution is kept.
func (e *StructuredError) WithUnit(unit string) *StructuredError {
	if e.Unit != "" {
		return e
	}
	c := *e
	c.Unit = unit
	return &c
}

// WithCause wraps the error with a cause.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// New creates a StructuredError with no location.
func New(kind ErrorKind, message string) *StructuredError {
	return &StructuredError{Kind: kind, Message: message, Offset: -1}
}

// Newf creates a StructuredError with a formatted message and no location.
func Newf(kind ErrorKind, format string, args ...any) *StructuredError {
	return &StructuredError{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: -1}
}

// At creates a StructuredError located at an instruction offset.
func At(kind ErrorKind, offset int, format string, args ...any) *StructuredError {
	return &StructuredError{Kind: kind, Message: fmt.Sprintf(format, args...), Offset: offset}
}

// KindOf returns the kind of the first StructuredError in err's chain, or
// zero when there is none.
func KindOf(err error) ErrorKind {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsUnmodeled reports whether err stems from an unmodeled feature.
func IsUnmodeled(err error) bool {
	return KindOf(err) == ErrUnmodeled
}
