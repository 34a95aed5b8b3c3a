// Package runtime executes parsed components.
//
// A [Runtime] walks the tree of a [lang.Component] against a
// [scope.Context]. Text and element attributes are interpolated, control
// tags update the context or steer execution, and side-effecting tags hand
// their resolved arguments to the [Services] configured on the runtime.
// The runtime performs no I/O of its own beyond loading imported
// components through its [cache.Cache].
//
// A q:return anywhere in a function body ends the function, including from
// inside nested q:if and q:loop bodies. Loop variables are visible only
// inside the loop; whatever the names held before the loop is restored
// afterwards. Range loops compute each value as it is needed and stop with
// [ErrIterations] past the bound set by [WithMaxIterations].
//
// Untyped literal values are inferred: numbers and booleans by their text,
// and bracketed lists such as "[1, 2]" as arrays. Set type="string" to keep
// the text.
//
// Every error raised while executing a node is reported as a
// [lang.ComponentExecutionError] naming the innermost failing tag.
//
// Conditions and array operations are pluggable through
// [ConditionEvaluator] and [ArrayOperator].
//
// [Host] exposes the same semantics to code generated by the transpiler.
package runtime
