// Package transpile generates Go source from components.
//
// A component is lowered to a small statement language ([Stmt]) and then
// optimized by a fixed set of passes run to a fixpoint:
//
//	fold    constant bindings become literals, constant conditions true/false
//	merge   adjacent text is coalesced
//	unroll  range loops of at most [MaxUnroll] literal iterations are unrolled
//	dce     dead branches, empty blocks and code after a return are removed
//
// Each target renders the optimized program as Go code driving a
// [runtime.Host], so generated code shares every evaluation rule with the
// interpreter. [TargetGo] emits a library type with a Render method,
// [TargetTUI] a terminal viewer built on Bubble Tea, and [TargetGame] a
// program assembling a scene graph from the component's elements.
//
// Components using actions, mail, component invocation or slots cannot be
// transpiled and fail with [ErrUnsupported].
package transpile
