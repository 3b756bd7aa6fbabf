package agent

import (
	"context"

	"github.com/open-harness/openharness/pkg/state"
)

// ActivationContext carries the ambient values an execution adapter
// needs but that are not part of the prompt itself (spec §4.4 Input.context).
type ActivationContext struct {
	RunID              string
	AgentName          string
	TriggeringSignalID int64
	State              state.Snapshot
}

// Input is what the harness hands to an ExecutionAdapter for one
// activation (spec §4.4).
type Input struct {
	Prompt       string
	OutputSchema *OutputSchema
	Context      ActivationContext
}

// TokenUsage mirrors the teacher's pkg/agent.TokenUsage, reused here as
// the Output.Usage shape.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Output is what a successful activation returns (spec §4.4).
type Output struct {
	// Content is the adapter's raw text response.
	Content string

	// StructuredOutput is the value matching Input.OutputSchema, if the
	// adapter produced one directly. When nil but OutputSchema was set,
	// the harness falls back to Extractor against Content.
	StructuredOutput any

	// Usage reports token consumption, when the adapter tracks it.
	Usage TokenUsage
}

// IntermediateKind enumerates the side-emission vocabulary an adapter
// may stream during a single activation (spec §4.4, §6).
type IntermediateKind string

const (
	IntermediateTextDelta     IntermediateKind = "text:delta"
	IntermediateTextComplete  IntermediateKind = "text:complete"
	IntermediateThinkingDelta IntermediateKind = "thinking:delta"
	IntermediateToolCall      IntermediateKind = "tool:call"
	IntermediateToolResult    IntermediateKind = "tool:result"
	IntermediateUsage         IntermediateKind = "usage"
)

// Intermediate is a single side-emission yielded while an activation is
// in progress. The harness threads these through the hub verbatim,
// recording them but applying no state impact beyond what subscribers
// do themselves (spec §4.4).
type Intermediate struct {
	Kind    IntermediateKind
	Payload any
}

// ExecutionAdapter runs one agent activation to completion. Emit is
// called zero or more times before Run returns; the adapter must not
// call Emit after returning (successfully or with an error). This
// mirrors the teacher's LLMProvider.Stream contract (pkg/agent/agent.go)
// generalised from an LLM-specific channel of StreamEvent to the
// spec's named intermediate-signal vocabulary.
type ExecutionAdapter interface {
	Run(ctx context.Context, in Input, emit func(Intermediate)) (Output, error)
}
