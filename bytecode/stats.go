package bytecode

// Stats contains statistics about a translated code block and its
// nested children.
type Stats struct {
	// InstructionCount is the total number of target instruction words.
	InstructionCount int

	// ConstantCount is the number of constants in the constant pool.
	ConstantCount int

	// HandlerCount is the number of handler table rows.
	HandlerCount int

	// ChildCount is the number of nested code blocks, recursively.
	ChildCount int

	// SuspensionCount is the number of yield points.
	SuspensionCount int

	// MaxLiveAtSuspension is the most frame slots any yield point keeps
	// live.
	MaxLiveAtSuspension int

	// MaxStack is the largest value stack depth of any block.
	MaxStack int
}
