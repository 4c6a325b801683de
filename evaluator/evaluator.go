// Package evaluator runs model-generated Starlark code in a fresh scope and
// reads back one binding as the run's outcome.
package evaluator

import (
	"context"
	"errors"
	"fmt"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/query"
)

const DefaultMaxSteps = 10_000_000

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Querier runs caller-scoped SQL.
type Querier interface {
	Execute(ctx context.Context, caller, sqlText string) []query.Row
}

// FileAccess renders guarded workspace reads and writes as text.
type FileAccess interface {
	ReadText(p string) string
	WriteText(p, content string) string
}

// Environment is what generated code may reach.
type Environment struct {
	Caller string
	Query  Querier
	Files  FileAccess
}

type Evaluator struct {
	env      Environment
	maxSteps uint64
	log      *logging.Logger
}

func New(env Environment, maxSteps uint64, log *logging.Logger) *Evaluator {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Evaluator{env: env, maxSteps: maxSteps, log: log.Named("evaluator")}
}

// Evaluate executes code and converts the named binding to an Outcome.
// Failures inside the code come back as *ExecutionError; a clean run that
// leaves the binding unset returns ErrMissingBinding.
func (e *Evaluator) Evaluate(ctx context.Context, code, binding string) (Outcome, error) {
	thread := &starlark.Thread{
		Name: "generated",
		Print: func(_ *starlark.Thread, msg string) {
			e.log.Debug("print", "caller", e.env.Caller, "msg", msg)
		},
	}
	thread.SetMaxExecutionSteps(e.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "generated.star", code, e.predeclared(ctx))
	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	if err != nil {
		return Outcome{}, executionError(err)
	}
	e.log.Debug("code executed", "caller", e.env.Caller, "steps", thread.ExecutionSteps())

	v, ok := globals[binding]
	if !ok || v == starlark.None || !bool(v.Truth()) {
		return Outcome{}, ErrMissingBinding
	}
	return toOutcome(thread, v)
}

func executionError(err error) *ExecutionError {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return &ExecutionError{Msg: evalErr.Msg, Backtrace: evalErr.Backtrace(), cause: err}
	}
	return &ExecutionError{Msg: err.Error(), cause: err}
}

func (e *Evaluator) predeclared(ctx context.Context) starlark.StringDict {
	return starlark.StringDict{
		"json": json.Module,
		"math": math.Module,
		"query": starlark.NewBuiltin("query", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var sqlText string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "sql", &sqlText); err != nil {
				return nil, err
			}
			if e.env.Query == nil {
				return nil, fmt.Errorf("%s: no database available", b.Name())
			}
			return rowsValue(e.env.Query.Execute(ctx, e.env.Caller, sqlText))
		}),
		"read_file": starlark.NewBuiltin("read_file", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var p string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &p); err != nil {
				return nil, err
			}
			if e.env.Files == nil {
				return nil, fmt.Errorf("%s: no workspace available", b.Name())
			}
			return starlark.String(e.env.Files.ReadText(p)), nil
		}),
		"write_file": starlark.NewBuiltin("write_file", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var p, content string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &p, "content", &content); err != nil {
				return nil, err
			}
			if e.env.Files == nil {
				return nil, fmt.Errorf("%s: no workspace available", b.Name())
			}
			return starlark.String(e.env.Files.WriteText(p, content)), nil
		}),
	}
}
