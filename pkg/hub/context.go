package hub

import "context"

// AgentContext carries the ambient identity of the agent activation a
// signal is being emitted from. The source spec models this as
// thread-local/task-local ambient state (§9); Go has no implicit
// propagation mechanism, so this module follows the teacher's
// correlation-ID pattern (internal/tracing.ToContext/FromContext) and
// threads it explicitly through context.Context instead.
type AgentContext struct {
	RunID               string
	AgentName           string
	TriggeringSignalID  int64
	HasTriggeringSignal bool
}

type agentContextKeyType struct{}

var agentContextKey = agentContextKeyType{}

// WithAgentContext returns a context carrying ac. Signals emitted while
// this context is in scope inherit ac.AgentName as their Source.
func WithAgentContext(ctx context.Context, ac AgentContext) context.Context {
	return context.WithValue(ctx, agentContextKey, ac)
}

// AgentContextFrom retrieves the ambient AgentContext, if any.
func AgentContextFrom(ctx context.Context) (AgentContext, bool) {
	ac, ok := ctx.Value(agentContextKey).(AgentContext)
	return ac, ok
}

// Scoped runs fn with ac bound into the context's ambient state. Any
// signal emitted by fn (directly or through further calls) carries
// ac.AgentName as its Source, matching the spec's §4.1 scoped() contract.
func Scoped(ctx context.Context, ac AgentContext, fn func(context.Context)) {
	fn(WithAgentContext(ctx, ac))
}
