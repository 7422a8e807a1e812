package rules

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// expressionCostLimit bounds the work a single trigger expression may do
const expressionCostLimit = 1000000

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error
)

// expressionEnv declares the variables visible to trigger expressions:
// the current row and the dataset headers
func expressionEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("headers", cel.ListType(cel.StringType)),
		)
		if envErr != nil {
			envErr = fmt.Errorf("failed to create CEL environment: %w", envErr)
		}
	})
	return env, envErr
}

// Expression is a CEL predicate over row and headers. It matches at header
// level when it compiled, and at row level when it evaluates to true.
type Expression struct {
	Source string
	Err    error
	prog   cel.Program
}

func (Expression) Type() string { return TypeExpression }

func compileExpression(src string) Expression {
	e := Expression{Source: src}
	if src == "" {
		e.Err = fmt.Errorf("expression is empty")
		return e
	}

	celEnv, err := expressionEnv()
	if err != nil {
		e.Err = err
		return e
	}

	ast, issues := celEnv.Compile(src)
	if issues != nil && issues.Err() != nil {
		e.Err = fmt.Errorf("compile error: %w", issues.Err())
		return e
	}

	prog, err := celEnv.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		e.Err = fmt.Errorf("program creation error: %w", err)
		return e
	}
	e.prog = prog
	return e
}

func (e Expression) matchHeaders([]string) bool {
	return e.prog != nil
}

// matchRow treats evaluation errors and non-boolean results as no match
func (e Expression) matchRow(row Row, headers []string) bool {
	if e.prog == nil {
		return false
	}

	out, _, err := e.prog.Eval(map[string]any{
		"row":     celRow(row),
		"headers": headers,
	})
	if err != nil {
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// celRow converts cell values to types the CEL runtime understands
func celRow(row Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case json.Number:
			if i, err := val.Int64(); err == nil {
				out[k] = i
			} else if f, err := val.Float64(); err == nil {
				out[k] = f
			} else {
				out[k] = val.String()
			}
		case int:
			out[k] = int64(val)
		default:
			out[k] = val
		}
	}
	return out
}
