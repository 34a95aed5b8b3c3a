// Package binding compiles and evaluates {expression} bindings.
//
// An expression is split into operator applications left to right: the
// first operator found at the top level, in the order
//
//	or || and && == != >= <= > < + - * / %
//
// divides the text into two halves that are split the same way. There is no
// further precedence, so "a - b - c" evaluates as "a - (b - c)". The split
// tree is lowered to expr-lang source in which every operator is a helper
// call and every variable reference reads through the evaluation [Env]:
//
//	total + i   =>   __add(__get(__env, "total"), __get(__env, "i"))
//
// The exceptions are and and or, which evaluate their right operand only
// when the left one does not decide the result. Each yields the deciding
// operand itself, so "name or 'anonymous'" supplies a default.
//
// Lowered programs are compiled once per distinct text and kept in a
// [Cache]. A [Resolver] evaluates template text: a text consisting of a
// single binding yields the typed value of its expression, while mixed text
// yields a string.
//
//	r := binding.NewResolver(binding.NewCache())
//	v, _ := r.Resolve("{count}", env)        // number
//	s, _ := r.Resolve("count={count}", env)  // string
package binding
