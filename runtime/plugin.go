package runtime

import (
	"github.com/ardnew/quill/binding"
	"github.com/ardnew/quill/scope"
	"github.com/ardnew/quill/value"
)

// ConditionEvaluator decides q:if, q:elseif and q:log when conditions.
type ConditionEvaluator interface {
	EvaluateCondition(text string, sc *scope.Context) (bool, error)
}

// ConditionFunc adapts a function to [ConditionEvaluator].
type ConditionFunc func(text string, sc *scope.Context) (bool, error)

func (f ConditionFunc) EvaluateCondition(text string, sc *scope.Context) (bool, error) {
	return f(text, sc)
}

// ArrayOperator applies the operation of a q:set with an operation
// attribute.
type ArrayOperator interface {
	ApplyArray(op scope.Operation, cur, arg value.Value) (value.Value, error)
}

// ArrayOperatorFunc adapts a function to [ArrayOperator].
type ArrayOperatorFunc func(op scope.Operation, cur, arg value.Value) (value.Value, error)

func (f ArrayOperatorFunc) ApplyArray(op scope.Operation, cur, arg value.Value) (value.Value, error) {
	return f(op, cur, arg)
}

// resolverConditions evaluates conditions with a binding resolver.
type resolverConditions struct {
	r *binding.Resolver
}

func (c resolverConditions) EvaluateCondition(text string, sc *scope.Context) (bool, error) {
	return c.r.ResolveCondition(text, sc)
}
