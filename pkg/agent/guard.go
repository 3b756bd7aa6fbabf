package agent

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	harnesserrors "github.com/open-harness/openharness/pkg/errors"
	"github.com/open-harness/openharness/pkg/signal"
	"github.com/open-harness/openharness/pkg/state"
)

// GuardEvaluator compiles and evaluates the `when` expression declared on
// an agent definition (spec §3: "a pure predicate over (currentState,
// triggeringSignal) returning a boolean"). It caches compiled programs by
// expression text, grounded on the teacher's
// pkg/workflow/expression.Evaluator.
type GuardEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewGuardEvaluator creates an evaluator with an empty compilation cache.
func NewGuardEvaluator() *GuardEvaluator {
	return &GuardEvaluator{cache: make(map[string]*vm.Program)}
}

// guardEnv is the shape exposed to `when` expressions: `state.<key>` for
// the current committed snapshot and `signal.<field>` for the triggering
// signal.
type guardEnv struct {
	State  map[string]any `expr:"state"`
	Signal guardSignal    `expr:"signal"`
}

type guardSignal struct {
	Name    string `expr:"name"`
	Payload any    `expr:"payload"`
	Source  string `expr:"source"`
}

// Evaluate compiles expression (caching by text) and runs it against
// snap and sig. An empty expression is treated as an always-true guard
// per the spec's "when is absent, treat as true" rule.
func (g *GuardEvaluator) Evaluate(expression string, snap state.Snapshot, sig signal.Signal) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := g.compile(expression)
	if err != nil {
		return false, &harnesserrors.ValidationError{
			Field:      "when",
			Message:    fmt.Sprintf("failed to compile guard expression: %s", err),
			Suggestion: "check the expression syntax; it must reference only state.* and signal.*",
		}
	}

	env := guardEnv{
		State: snap.Values(),
		Signal: guardSignal{
			Name:    sig.Name,
			Payload: sig.Payload,
			Source:  sig.Source,
		},
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, &harnesserrors.ValidationError{
			Field:      "when",
			Message:    fmt.Sprintf("guard expression evaluation failed: %s", err),
			Suggestion: "verify every referenced state key exists by the time this agent can activate",
		}
	}

	ok, isBool := result.(bool)
	if !isBool {
		return false, &harnesserrors.ValidationError{
			Field:      "when",
			Message:    fmt.Sprintf("guard expression must return a boolean, got %T", result),
			Suggestion: "use a comparison or boolean operator as the top-level expression",
		}
	}
	return ok, nil
}

func (g *GuardEvaluator) compile(expression string) (*vm.Program, error) {
	g.mu.RLock()
	if p, ok := g.cache[expression]; ok {
		g.mu.RUnlock()
		return p, nil
	}
	g.mu.RUnlock()

	program, err := expr.Compile(expression,
		expr.Env(guardEnv{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[expression] = program
	g.mu.Unlock()
	return program, nil
}
