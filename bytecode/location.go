package bytecode

import "fmt"

// SourceLocation maps a target instruction back to the source unit.
type SourceLocation struct {
	Line   int // 1-based line number, 0 when unknown
	Offset int // source instruction offset in code units
}

// String returns a formatted string representation of the source location.
func (s SourceLocation) String() string {
	return fmt.Sprintf("line %d @%d", s.Line, s.Offset)
}

// IsZero returns true if the location has not been set.
func (s SourceLocation) IsZero() bool {
	return s.Line == 0 && s.Offset == 0
}
