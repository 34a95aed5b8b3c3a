package scope

import (
	"fmt"
	"log/slog"
	"slices"

	"fortio.org/safecast"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/value"
)

// Operation is an in-place update applied to an array variable.
type Operation string

const (
	OpAppend   Operation = "append"
	OpPrepend  Operation = "prepend"
	OpRemove   Operation = "remove"
	OpRemoveAt Operation = "removeAt"
	OpClear    Operation = "clear"
	OpSort     Operation = "sort"
	OpReverse  Operation = "reverse"
	OpUnique   Operation = "unique"
)

// Operations lists every supported operation.
var Operations = []Operation{
	OpAppend, OpPrepend, OpRemove, OpRemoveAt,
	OpClear, OpSort, OpReverse, OpUnique,
}

// ErrOperation reports an unknown operation or one applied to a value that
// is not an array.
var ErrOperation = lang.NewError("invalid array operation")

// ParseOperation returns the operation named s.
func ParseOperation(s string) (Operation, bool) {
	op := Operation(s)

	return op, slices.Contains(Operations, op)
}

// TakesArgument reports whether op consumes a value.
func (op Operation) TakesArgument() bool {
	switch op {
	case OpAppend, OpPrepend, OpRemove, OpRemoveAt:
		return true
	default:
		return false
	}
}

// ApplyArray returns the result of applying op with argument arg to cur.
// cur is never modified: the result always has fresh backing storage. A
// null cur is treated as an empty array.
func ApplyArray(op Operation, cur, arg value.Value) (value.Value, error) {
	if cur.IsNull() {
		cur = value.Array()
	}

	if cur.Kind() != value.KindArray {
		return value.Null(), ErrOperation.With(
			slog.String("op", string(op)),
			slog.String("kind", cur.Kind().String()))
	}

	items := slices.Clone(cur.Items())

	switch op {
	case OpAppend:
		items = append(items, arg)

	case OpPrepend:
		items = append([]value.Value{arg}, items...)

	case OpRemove:
		if i := slices.IndexFunc(items, arg.Equal); i >= 0 {
			items = slices.Delete(items, i, i+1)
		}

	case OpRemoveAt:
		i, err := index(arg, len(items))
		if err != nil {
			return value.Null(), err
		}

		items = slices.Delete(items, i, i+1)

	case OpClear:
		items = items[:0]

	case OpSort:
		slices.SortStableFunc(items, func(a, b value.Value) int {
			c, _ := a.Compare(b)

			return c
		})

	case OpReverse:
		slices.Reverse(items)

	case OpUnique:
		out := items[:0]

		for _, it := range items {
			if !slices.ContainsFunc(out, it.Equal) {
				out = append(out, it)
			}
		}

		items = out

	default:
		return value.Null(), ErrOperation.With(slog.String("op", string(op)))
	}

	return value.Array(items...), nil
}

// index converts arg to a position in an array of length n. Negative
// positions count from the end.
func index(arg value.Value, n int) (int, error) {
	if !arg.IsInteger() {
		if f, ok := value.ParseNumber(arg.Str()); ok {
			arg = value.Number(f)
		}
	}

	if !arg.IsInteger() {
		return 0, ErrOperation.Wrap(fmt.Errorf("index %q is not an integer", arg.String()))
	}

	i, err := safecast.Convert[int](arg.Float())
	if err != nil {
		return 0, ErrOperation.Wrap(err)
	}

	if i < 0 {
		i += n
	}

	if i < 0 || i >= n {
		return 0, ErrOperation.Wrap(fmt.Errorf("index %d out of range [0,%d)", i, n))
	}

	return i, nil
}
