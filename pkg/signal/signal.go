// Package signal defines the immutable event record that flows through a
// harness run, and the name-pattern matching used to route it to
// subscribers and agent triggers.
package signal

import (
	"strings"
	"time"
)

// Signal is an immutable record of something that happened during a run.
// Once emitted, a Signal is never mutated; it can only be filtered or
// folded by a reducer. Name is colon-delimited (e.g. "workflow:start",
// "plan:created", "task:complete").
type Signal struct {
	// ID is unique within a run and strictly monotonic in emission order.
	// IDs form a dense 0-based sequence: for N signals, {0, ..., N-1}.
	ID int64

	// Name identifies the kind of signal. Colon-delimited segments.
	Name string

	// Timestamp is assigned at emission time.
	Timestamp time.Time

	// Payload is an opaque value whose shape is declared per Name.
	Payload any

	// Source is the agent name that caused this signal to be emitted,
	// populated via the hub's ambient scoping (see pkg/hub). Empty for
	// signals emitted outside an agent activation (e.g. workflow:start).
	Source string

	// RunID identifies the run this signal belongs to.
	RunID string
}

// Reserved signal name prefixes defined by the boundary (§6 of the spec).
const (
	NameWorkflowStart   = "workflow:start"
	NameWorkflowStarted = "workflow:started"
	NameWorkflowEnded   = "workflow:ended"
	NameWorkflowAborted = "workflow:aborted"
	NameWorkflowFailed  = "workflow:failed"

	NameAgentActivated = "agent:activated"
	NameAgentCompleted = "agent:completed"
	NameAgentFailed    = "agent:failed"

	NameErrorAgent   = "error:agent"
	NameErrorReducer = "error:reducer"
	NameErrorAdapter = "error:adapter"

	// Intermediate signal vocabulary yielded by an execution adapter
	// during a single activation (§6).
	NameTextDelta     = "text:delta"
	NameTextComplete  = "text:complete"
	NameThinkingDelta = "thinking:delta"
	NameToolCall      = "tool:call"
	NameToolResult    = "tool:result"
	NameUsage         = "usage"
)

// StateChangedName returns the conventional synthetic signal name the
// state store emits when the value at key changes: "state:<key>:changed".
func StateChangedName(key string) string {
	return "state:" + key + ":changed"
}

// Segments splits a colon-delimited signal name into its components.
func Segments(name string) []string {
	if name == "" {
		return nil
	}
	return strings.Split(name, ":")
}
