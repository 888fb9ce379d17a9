// Package bytecode provides the immutable target code produced by the code
// generator and executed by the vm package.
//
// A [Code] holds the instruction stream for one translated function, class
// body or module body together with its constant pool, name tables, local
// variable layout and handler table. Nested function and class bodies
// appear in the constant pool of their parent as values wrapping a child
// Code.
//
// # Immutability
//
// All types in this package are immutable after construction:
//
//   - All fields are unexported
//   - Constructors copy input slices
//   - Index-based accessors are used for all collections
//
// A Code may be shared by any number of goroutines and VM frames.
//
// # Package Dependencies
//
// This package depends only on [github.com/deepnoodle-ai/pyxlate/op] so that
// the object package can refer to it. Constants are stored as []any; the
// code generator fills them with object.Object values.
package bytecode
