package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/quill/runtime"
	"github.com/ardnew/quill/scope"
	"github.com/ardnew/quill/value"
)

// Run executes a component file and prints its output.
type Run struct {
	File string `arg:"" help:"Component file to execute" type:"existingfile"`

	Var     map[string]string `help:"Set a component variable (inferred type)"          placeholder:"NAME=VALUE" short:"v"`
	Request map[string]string `help:"Set a request variable"                            placeholder:"NAME=VALUE" short:"r"`
	Vars    string            `help:"YAML file of component variables"                  type:"existingfile"`
	Stub    bool              `help:"Acknowledge service invocations without performing them"`
	Value   bool              `help:"Print the value of a top-level q:return as YAML"`
}

// Run executes the run command.
func (r *Run) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	vars, err := r.variables()
	if err != nil {
		return err
	}

	request := make(map[string]value.Value, len(r.Request))
	for k, v := range r.Request {
		request[k] = value.Infer(v)
	}

	e := engineFrom(ctx)

	var opts []runtime.Option
	if r.Stub {
		opts = append(opts, runtime.WithInvoker(stubInvoker{e}))
	}

	sc := scope.New(scope.WithVars(vars), scope.WithRequest(request))

	res, err := e.Runtime(opts...).ExecuteFile(ctx, r.File, sc)
	if err != nil {
		return err
	}

	out := stdout(ctx)

	if _, err := io.WriteString(out, res.Output); err != nil {
		return err
	}

	if r.Value && res.Returned {
		b, err := yaml.Marshal(res.Value.Native())
		if err != nil {
			return ErrYAMLMarshal.Wrap(err)
		}

		_, err = fmt.Fprintf(out, "\n---\n%s", b)

		return err
	}

	return nil
}

// variables merges the --vars file with --var assignments, which win.
func (r *Run) variables() (map[string]value.Value, error) {
	vars := map[string]value.Value{}

	if r.Vars != "" {
		b, err := os.ReadFile(r.Vars)
		if err != nil {
			return nil, ErrReadVars.Wrap(err).With(slog.String("file", r.Vars))
		}

		var doc map[string]any
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, ErrReadVars.Wrap(err).With(slog.String("file", r.Vars))
		}

		for k, v := range doc {
			vars[k] = value.FromNative(v)
		}
	}

	for k, v := range r.Var {
		if strings.TrimSpace(k) == "" {
			return nil, ErrVariable.With(slog.String("value", v))
		}

		vars[k] = value.Infer(v)
	}

	return vars, nil
}

// stubInvoker logs every invocation and reports success.
type stubInvoker struct{ e *Engine }

func (s stubInvoker) Invoke(ctx context.Context, kind string, params map[string]value.Value, _ *scope.Context) (runtime.InvokeResult, error) {
	attrs := []slog.Attr{slog.String("kind", kind)}
	for _, k := range value.Mapping(params).Keys() {
		attrs = append(attrs, slog.String(k, params[k].String()))
	}

	s.e.Logger.InfoContext(ctx, "service invocation", attrs...)

	return runtime.InvokeResult{Success: true}, nil
}

// stdout returns the output stream of the kong context in ctx.
func stdout(ctx context.Context) io.Writer {
	if ktx := kongContextFrom(ctx); ktx != nil && ktx.Stdout != nil {
		return ktx.Stdout
	}

	return os.Stdout
}
