package decode

import (
	"fmt"

	"github.com/deepnoodle-ai/pyxlate/errz"
)

// ExceptionEntry is one decoded exception-table range. Start and End are
// inclusive unit offsets. Depth is the stack depth the handler expects
// before the exception (and optionally the last instruction offset) is
// pushed.
type ExceptionEntry struct {
	Start  int
	End    int
	Target int
	Depth  int
	Lasti  bool
}

// Contains reports whether offset lies inside the entry's range.
func (e ExceptionEntry) Contains(offset int) bool {
	return offset >= e.Start && offset <= e.End
}

// String returns the dis rendering of the entry.
func (e ExceptionEntry) String() string {
	s := fmt.Sprintf("%d to %d -> %d [%d]", e.Start, e.End, e.Target, e.Depth)
	if e.Lasti {
		s += " lasti"
	}
	return s
}

const (
	varintPayload  = 0x3f
	varintContinue = 0x40
	entryStart     = 0x80
)

type tableReader struct {
	data []byte
	pos  int
}

func (r *tableReader) varint() (int, bool) {
	if r.pos >= len(r.data) {
		return 0, false
	}
	b := r.data[r.pos]
	r.pos++
	val := int(b & varintPayload)
	for b&varintContinue != 0 {
		if r.pos >= len(r.data) {
			return 0, false
		}
		b = r.data[r.pos]
		r.pos++
		val = val<<6 | int(b&varintPayload)
	}
	return val, true
}

// ParseExceptionTable decodes a co_exceptiontable byte string. Reaching the
// end of the table between entries terminates decoding normally; running
// out of bytes inside an entry is a malformed-input error.
func ParseExceptionTable(table []byte) ([]ExceptionEntry, error) {
	r := &tableReader{data: table}
	var entries []ExceptionEntry
	for r.pos < len(table) {
		at := r.pos
		var fields [4]int
		for i := range fields {
			v, ok := r.varint()
			if !ok {
				return nil, errz.Newf(errz.ErrMalformed,
					"exception table truncated inside entry starting at byte %d", at)
			}
			fields[i] = v
		}
		start, length, target, dl := fields[0], fields[1], fields[2], fields[3]
		if length == 0 {
			return nil, errz.Newf(errz.ErrMalformed,
				"exception table entry at byte %d has an empty range", at)
		}
		entries = append(entries, ExceptionEntry{
			Start:  start,
			End:    start + length - 1,
			Target: target,
			Depth:  dl >> 1,
			Lasti:  dl&1 != 0,
		})
	}
	return entries, nil
}

// EncodeExceptionTable produces the co_exceptiontable encoding of entries.
func EncodeExceptionTable(entries []ExceptionEntry) []byte {
	var out []byte
	for _, e := range entries {
		dl := e.Depth << 1
		if e.Lasti {
			dl |= 1
		}
		first := len(out)
		out = appendVarint(out, e.Start)
		out[first] |= entryStart
		out = appendVarint(out, e.End-e.Start+1)
		out = appendVarint(out, e.Target)
		out = appendVarint(out, dl)
	}
	return out
}

func appendVarint(out []byte, v int) []byte {
	var groups []byte
	groups = append(groups, byte(v&varintPayload))
	for v >>= 6; v > 0; v >>= 6 {
		groups = append(groups, byte(v&varintPayload))
	}
	for i := len(groups) - 1; i > 0; i-- {
		out = append(out, groups[i]|varintContinue)
	}
	return append(out, groups[0])
}
