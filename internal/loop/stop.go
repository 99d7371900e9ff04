package loop

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/nextlevelbuilder/runloop/internal/state"
)

// StopCondition decides whether the latest Block terminates the run.
// The default condition is the final-answer marker; a CEL expression
// over the Block's fields can replace it.
type StopCondition struct {
	expr string
	prg  cel.Program
}

// NewStopCondition compiles the expression. An empty expression
// selects the default final-marker predicate.
func NewStopCondition(expr string) (*StopCondition, error) {
	if expr == "" {
		return &StopCondition{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("producer", cel.StringType),
		cel.Variable("iteration", cel.IntType),
		cel.Variable("final", cel.BoolType),
		cel.Variable("meta", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("stop condition env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile stop condition %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("stop condition %q must evaluate to bool", expr)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("stop condition program: %w", err)
	}
	return &StopCondition{expr: expr, prg: prg}, nil
}

// Satisfied evaluates the condition against the latest Block.
// Evaluation errors count as not satisfied; a broken predicate must
// not end a run early.
func (s *StopCondition) Satisfied(b state.Block) bool {
	if s.prg == nil {
		return b.IsFinal()
	}

	meta := b.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	out, _, err := s.prg.Eval(map[string]interface{}{
		"kind":      string(b.Kind),
		"content":   b.Content,
		"producer":  b.Producer,
		"iteration": b.Iteration,
		"final":     b.IsFinal(),
		"meta":      meta,
	})
	if err != nil {
		return false
	}
	satisfied, ok := out.Value().(bool)
	return ok && satisfied
}

// Expression returns the configured expression ("" for the default).
func (s *StopCondition) Expression() string { return s.expr }
