package runtime

import (
	"context"
	"log/slog"

	"github.com/ardnew/quill/lang"
	"github.com/ardnew/quill/log"
	"github.com/ardnew/quill/scope"
	"github.com/ardnew/quill/value"
)

// Invocation kinds passed to an [Invoker].
const (
	InvokeHTTP      = "http"
	InvokeAction    = "action"
	InvokeMail      = "mail"
	InvokeFile      = "file"
	InvokeWebSocket = "websocket"
)

// QueryResult is the outcome of a database query.
type QueryResult struct {
	Rows     []map[string]value.Value
	Columns  []string
	RowCount int
}

// Value returns r as a mapping with rows, columns and count entries.
func (r QueryResult) Value() value.Value {
	rows := make([]value.Value, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = value.Mapping(row)
	}

	cols := make([]value.Value, len(r.Columns))
	for i, c := range r.Columns {
		cols[i] = value.String(c)
	}

	return value.Mapping(map[string]value.Value{
		"rows":    value.Array(rows...),
		"columns": value.Array(cols...),
		"count":   value.Int(int64(r.RowCount)),
	})
}

// Database executes q:query statements. The runtime never builds SQL
// itself: the statement text and its named parameters are passed through
// unchanged.
type Database interface {
	ExecuteQuery(ctx context.Context, datasource, sql string, params map[string]value.Value) (QueryResult, error)
}

// InvokeResult is the outcome of an invocation.
type InvokeResult struct {
	Success bool
	Data    value.Value
	Error   string
}

// Value returns r as a mapping with success, data and error entries.
func (r InvokeResult) Value() value.Value {
	return value.Mapping(map[string]value.Value{
		"success": value.Bool(r.Success),
		"data":    r.Data,
		"error":   value.String(r.Error),
	})
}

// Invoker performs HTTP invocations, actions, mail delivery, file uploads
// and websocket sends on behalf of components.
type Invoker interface {
	Invoke(ctx context.Context, kind string, params map[string]value.Value, sc *scope.Context) (InvokeResult, error)
}

// Logging receives q:log messages.
type Logging interface {
	Log(ctx context.Context, level, message string, fields value.Value) error
}

// Services are the external collaborators a component may call. A nil
// service makes the corresponding tags fail with [ErrNoService].
type Services struct {
	Database Database
	Invoker  Invoker
	Logging  Logging
}

// LogService is a [Logging] that writes through a [log.Logger].
type LogService struct {
	Logger log.Logger
}

func (s LogService) Log(ctx context.Context, level, message string, fields value.Value) error {
	var attrs []slog.Attr

	switch fields.Kind() {
	case value.KindNull:
	case value.KindMapping:
		for _, k := range fields.Keys() {
			v, _ := fields.Field(k)
			attrs = append(attrs, slog.Any(k, v.Native()))
		}
	default:
		attrs = append(attrs, slog.Any("context", fields.Native()))
	}

	s.Logger.Log(ctx, log.ParseLevel(level), message, attrs...)

	return nil
}

// Sentinel errors raised while executing components.
var (
	ErrNoService        = lang.NewError("service not configured")
	ErrService          = lang.NewError("service call failed")
	ErrFunctionNotFound = lang.NewError("function not found")
	ErrArgument         = lang.NewError("invalid argument")
	ErrType             = lang.NewError("type mismatch")
	ErrNotIterable      = lang.NewError("value is not iterable")
	ErrDepth            = lang.NewError("maximum call depth exceeded")
	ErrIterations       = lang.NewError("maximum loop iterations exceeded")
)
