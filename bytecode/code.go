package bytecode

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/pyxlate/op"
	"github.com/gofrs/uuid"
)

// Flags describe how a code block is entered and run.
type Flags uint32

const (
	// FlagOptimized marks function bodies, whose locals live in slots.
	// Class and module bodies without it run against a locals mapping.
	FlagOptimized Flags = 1 << iota
	FlagVarArgs
	FlagVarKeywords
	FlagGenerator
	FlagCoroutine
	// FlagNested marks code defined inside another function.
	FlagNested
	// FlagOpaqueBody marks a class body that could not be translated. Its
	// only constant is a host reference to the source body.
	FlagOpaqueBody
)

// LocalKind classifies a slot of the combined locals, cells and free
// variables array.
type LocalKind uint8

const (
	LocalHidden LocalKind = 0x10
	LocalFast   LocalKind = 0x20
	LocalCell   LocalKind = 0x40
	LocalFree   LocalKind = 0x80
)

// Code is one translated function, class body or module body. It is
// immutable after creation and safe for concurrent use.
type Code struct {
	id        string
	name      string
	qualname  string
	filename  string
	dialect   string
	firstLine int
	flags     Flags

	argCount        int
	posOnlyArgCount int
	kwOnlyArgCount  int

	// localNames and localKinds describe the frame slots: plain locals,
	// then cell variables, then free variables.
	localNames []string
	localKinds []LocalKind

	instructions []op.Code
	constants    []any
	names        []string
	locations    []SourceLocation
	handlers     []Handler
	suspensions  []Suspension
	maxStack     int

	children []*Code
	parent   *Code
}

// CodeParams contains parameters for creating a new Code.
type CodeParams struct {
	ID              string
	Name            string
	QualName        string
	Filename        string
	Dialect         string
	FirstLine       int
	Flags           Flags
	ArgCount        int
	PosOnlyArgCount int
	KwOnlyArgCount  int
	LocalNames      []string
	LocalKinds      []LocalKind
	Instructions    []op.Code
	Constants       []any
	Names           []string
	Locations       []SourceLocation
	Handlers        []Handler
	Suspensions     []Suspension
	MaxStack        int
	Children        []*Code
}

// NewCode creates a new immutable Code from the given parameters. Input
// slices are copied. A random ID is assigned when none is given.
func NewCode(params CodeParams) *Code {
	id := params.ID
	if id == "" {
		id = uuid.Must(uuid.NewV4()).String()
	}
	kinds := make([]LocalKind, len(params.LocalKinds))
	copy(kinds, params.LocalKinds)
	var children []*Code
	if len(params.Children) > 0 {
		children = make([]*Code, len(params.Children))
		copy(children, params.Children)
	}
	code := &Code{
		id:              id,
		name:            params.Name,
		qualname:        params.QualName,
		filename:        params.Filename,
		dialect:         params.Dialect,
		firstLine:       params.FirstLine,
		flags:           params.Flags,
		argCount:        params.ArgCount,
		posOnlyArgCount: params.PosOnlyArgCount,
		kwOnlyArgCount:  params.KwOnlyArgCount,
		localNames:      copyStrings(params.LocalNames),
		localKinds:      kinds,
		instructions:    copyInstructions(params.Instructions),
		constants:       copyAny(params.Constants),
		names:           copyStrings(params.Names),
		locations:       copyLocations(params.Locations),
		handlers:        copyHandlers(params.Handlers),
		suspensions:     copySuspensions(params.Suspensions),
		maxStack:        params.MaxStack,
		children:        children,
	}
	if code.qualname == "" {
		code.qualname = code.name
	}
	for _, child := range code.children {
		child.parent = code
	}
	return code
}

// ID returns the unique identifier for this code block.
func (c *Code) ID() string { return c.id }

// Name returns the unqualified name.
func (c *Code) Name() string { return c.name }

// QualName returns the dotted qualified name.
func (c *Code) QualName() string { return c.qualname }

// Filename returns the source filename.
func (c *Code) Filename() string { return c.filename }

// Dialect returns the source bytecode dialect the code was translated from.
func (c *Code) Dialect() string { return c.dialect }

// FirstLine returns the first source line.
func (c *Code) FirstLine() int { return c.firstLine }

// Flags returns the code flags.
func (c *Code) Flags() Flags { return c.flags }

// Has reports whether all of the given flags are set.
func (c *Code) Has(f Flags) bool { return c.flags&f == f }

// IsGenerator reports whether calling the code creates a generator or
// coroutine instead of running the body.
func (c *Code) IsGenerator() bool { return c.flags&(FlagGenerator|FlagCoroutine) != 0 }

// Parent returns the enclosing code block, if any.
func (c *Code) Parent() *Code { return c.parent }

// ChildCount returns the number of child code blocks.
func (c *Code) ChildCount() int { return len(c.children) }

// ChildAt returns the child code block at the given index.
func (c *Code) ChildAt(index int) *Code { return c.children[index] }

// InstructionCount returns the number of instruction words.
func (c *Code) InstructionCount() int { return len(c.instructions) }

// InstructionAt returns the instruction word at the given index.
func (c *Code) InstructionAt(index int) op.Code { return c.instructions[index] }

// ConstantCount returns the number of constants.
func (c *Code) ConstantCount() int { return len(c.constants) }

// ConstantAt returns the constant at the given index.
func (c *Code) ConstantAt(index int) any { return c.constants[index] }

// NameCount returns the number of names used for globals and attributes.
func (c *Code) NameCount() int { return len(c.names) }

// NameAt returns the name at the given index.
func (c *Code) NameAt(index int) string { return c.names[index] }

// LocalCount returns the number of frame slots.
func (c *Code) LocalCount() int { return len(c.localNames) }

// LocalNameAt returns the name of a frame slot. Returns an empty string if
// the index is out of range.
func (c *Code) LocalNameAt(index int) string {
	if index < 0 || index >= len(c.localNames) {
		return ""
	}
	return c.localNames[index]
}

// LocalKindAt returns the kind of a frame slot.
func (c *Code) LocalKindAt(index int) LocalKind { return c.localKinds[index] }

// FreeCount returns the number of free variable slots. They are the last
// slots of the frame.
func (c *Code) FreeCount() int {
	n := 0
	for _, k := range c.localKinds {
		if k&LocalFree != 0 {
			n++
		}
	}
	return n
}

// CellNames returns the names of the cell and free variable slots.
func (c *Code) CellNames() []string {
	var out []string
	for i, k := range c.localKinds {
		if k&(LocalCell|LocalFree) != 0 {
			out = append(out, c.localNames[i])
		}
	}
	return out
}

// MaxStack returns the largest value stack depth.
func (c *Code) MaxStack() int { return c.maxStack }

// LocationAt returns the source location for the instruction at the given
// index.
func (c *Code) LocationAt(ip int) SourceLocation {
	if ip < 0 || ip >= len(c.locations) {
		return SourceLocation{}
	}
	return c.locations[ip]
}

// LocationCount returns the number of recorded source locations.
func (c *Code) LocationCount() int { return len(c.locations) }

// HandlerCount returns the number of handler table rows.
func (c *Code) HandlerCount() int { return len(c.handlers) }

// HandlerAt returns the handler table row at the given index.
func (c *Code) HandlerAt(index int) Handler { return c.handlers[index] }

// HandlerFor returns the innermost handler covering ip.
func (c *Code) HandlerFor(ip int) (Handler, bool) {
	var best Handler
	found := false
	for _, h := range c.handlers {
		if !h.Contains(ip) {
			continue
		}
		if !found || h.End-h.Start < best.End-best.Start {
			best, found = h, true
		}
	}
	return best, found
}

// SuspensionCount returns the number of yield points.
func (c *Code) SuspensionCount() int { return len(c.suspensions) }

// SuspensionAt returns the yield point at the given index.
func (c *Code) SuspensionAt(index int) Suspension { return c.suspensions[index] }

// SuspensionFor returns the yield point whose instruction starts at ip.
func (c *Code) SuspensionFor(ip int) (Suspension, bool) {
	for _, s := range c.suspensions {
		if s.IP == ip {
			return s, true
		}
	}
	return Suspension{}, false
}

// Signature describes the parameters of a function body.
func (c *Code) Signature() Signature {
	total := c.argCount + c.kwOnlyArgCount
	if c.flags&FlagVarArgs != 0 {
		total++
	}
	if c.flags&FlagVarKeywords != 0 {
		total++
	}
	if total > len(c.localNames) {
		total = len(c.localNames)
	}
	return Signature{
		Names:       copyStrings(c.localNames[:total]),
		PosOnly:     c.posOnlyArgCount,
		Positional:  c.argCount,
		KwOnly:      c.kwOnlyArgCount,
		VarArgs:     c.flags&FlagVarArgs != 0,
		VarKeywords: c.flags&FlagVarKeywords != 0,
	}
}

// Flatten returns this code and all descendants in a flat slice.
func (c *Code) Flatten() []*Code {
	codes := []*Code{c}
	for _, child := range c.children {
		codes = append(codes, child.Flatten()...)
	}
	return codes
}

// Stats returns statistics about this code block and its descendants.
func (c *Code) Stats() Stats {
	var s Stats
	for _, code := range c.Flatten() {
		s.InstructionCount += code.InstructionCount()
		s.ConstantCount += code.ConstantCount()
		s.HandlerCount += code.HandlerCount()
		s.SuspensionCount += len(code.suspensions)
		for _, sp := range code.suspensions {
			s.MaxLiveAtSuspension = max(s.MaxLiveAtSuspension, len(sp.Live))
		}
		if code.maxStack > s.MaxStack {
			s.MaxStack = code.maxStack
		}
	}
	s.ChildCount = len(c.Flatten()) - 1
	return s
}

func (c *Code) String() string {
	return fmt.Sprintf("<code %s (%s) %d words>", c.qualname, c.dialect, len(c.instructions))
}

// Signature is the parameter layout of a function body. Names lists the
// positional parameters, then keyword-only parameters, then the *args and
// **kwargs names when present.
type Signature struct {
	Names       []string
	PosOnly     int
	Positional  int
	KwOnly      int
	VarArgs     bool
	VarKeywords bool
}

// VarArgsIndex returns the slot of the *args parameter, or -1.
func (s Signature) VarArgsIndex() int {
	if !s.VarArgs {
		return -1
	}
	return s.Positional + s.KwOnly
}

// VarKeywordsIndex returns the slot of the **kwargs parameter, or -1.
func (s Signature) VarKeywordsIndex() int {
	if !s.VarKeywords {
		return -1
	}
	i := s.Positional + s.KwOnly
	if s.VarArgs {
		i++
	}
	return i
}

// String formats the signature the way inspect does, without defaults.
func (s Signature) String() string {
	var parts []string
	for i := 0; i < s.Positional; i++ {
		parts = append(parts, s.Names[i])
		if s.PosOnly > 0 && i == s.PosOnly-1 {
			parts = append(parts, "/")
		}
	}
	if s.VarArgs {
		parts = append(parts, "*"+s.Names[s.VarArgsIndex()])
	} else if s.KwOnly > 0 {
		parts = append(parts, "*")
	}
	for i := 0; i < s.KwOnly; i++ {
		parts = append(parts, s.Names[s.Positional+i])
	}
	if s.VarKeywords {
		parts = append(parts, "**"+s.Names[s.VarKeywordsIndex()])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
