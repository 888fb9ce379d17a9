package bytecode

import "fmt"

// Handler is one row of a code block's handler table. While the
// instruction pointer is inside [Start, End) a raised exception transfers
// control to Target after the value stack is trimmed to Depth. When Lasti
// is set, the offset of the raising instruction is pushed below the
// exception.
type Handler struct {
	Start  int
	End    int
	Target int
	Depth  int
	Lasti  bool
}

// Contains reports whether ip is covered by the handler.
func (h Handler) Contains(ip int) bool {
	return ip >= h.Start && ip < h.End
}

func (h Handler) String() string {
	lasti := ""
	if h.Lasti {
		lasti = " lasti"
	}
	return fmt.Sprintf("%d to %d -> %d [%d]%s", h.Start, h.End, h.Target, h.Depth, lasti)
}

// Suspension is a yield point of a generator or coroutine body. Live lists
// the frame slots whose values are read again after the frame resumes.
type Suspension struct {
	IP   int
	Live []int
}

func (s Suspension) String() string {
	return fmt.Sprintf("%d live %v", s.IP, s.Live)
}
