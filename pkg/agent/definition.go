// Package agent defines the declarative Agent Model from spec §4.4: a
// stateless template describing when an agent activates, what it may
// emit, and what execution adapter contract the harness calls to run
// it. The harness (pkg/harness) owns instances; this package owns only
// the shape and the pure output-to-signal translation rule.
package agent

import (
	"github.com/open-harness/openharness/pkg/signal"
)

// OutputSchema declares that an activation must produce a structured
// value, optionally extracted from the adapter's raw text content via a
// jq query (see Extractor). Describe is informational only; this module
// never validates a structured value against a schema library (spec §1
// non-goal).
type OutputSchema struct {
	// Query is a jq expression run against the adapter's Content when
	// the adapter did not set StructuredOutput directly. Empty means
	// "parse Content as JSON and use it as-is".
	Query string

	// Describe is a human-readable description surfaced in validation
	// errors and tracing; it has no runtime effect.
	Describe string
}

// Definition is a template for an agent, not a running instance. The
// zero value is not useful; construct it with its fields set directly.
type Definition struct {
	// Name identifies the agent. Used as the conventional `<name>:complete`
	// signal name and as the Source on every signal it emits.
	Name string

	// ActivateOn is the set of signal-name patterns that trigger this
	// agent (spec §3: "the set of patterns that trigger the agent").
	ActivateOn []signal.Pattern

	// When is an optional guard expression (expr-lang syntax) evaluated
	// against (currentState, triggeringSignal) after a pattern match.
	// Empty means "always activate".
	When string

	// Emits declares the signal names this agent may produce. Used for
	// static validation of workflow graphs and as the default output
	// signal name (its first entry) when OutputSchema is set; not
	// enforced against at runtime beyond logging (spec §3).
	Emits []string

	// OutputSchema, when non-nil, declares that the execution adapter's
	// result must carry a structured value of this shape.
	OutputSchema *OutputSchema

	// Updates names the state key that a reducer writes the structured
	// output (or content) into, atomically with the resulting signal's
	// emission (spec §4.4).
	Updates string

	// Prompt is the template handed to the execution adapter as Input.Prompt.
	Prompt string

	// MaxActivations caps how many times this specific agent may run in
	// a run, enforced by the harness after the global budget (spec §4.5).
	// Zero means unbounded (subject only to the global budget).
	MaxActivations int
}

// EmitName returns the signal name an activation's output should be
// wrapped in: the first declared Emits entry, or the conventional
// "<name>:complete" when Emits is empty (spec §3, §4.4).
func (d Definition) EmitName() string {
	if len(d.Emits) > 0 {
		return d.Emits[0]
	}
	return d.Name + ":complete"
}

// MatchesSignal reports whether any of d's ActivateOn patterns match name.
func (d Definition) MatchesSignal(name string) bool {
	for _, p := range d.ActivateOn {
		if p.Match(name) {
			return true
		}
	}
	return false
}
