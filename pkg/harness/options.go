package harness

import (
	"time"

	"github.com/open-harness/openharness/pkg/agent"
	"github.com/open-harness/openharness/pkg/harness/tracing"
	"github.com/open-harness/openharness/pkg/recorder"
)

// RecordingMode selects how a run relates to its signal log, per spec §6:
// "recording.mode ∈ {live, record, replay}".
type RecordingMode string

const (
	// ModeLive runs with no recording store attached.
	ModeLive RecordingMode = "live"
	// ModeRecord runs live while persisting every signal to Store.
	ModeRecord RecordingMode = "record"
	// ModeReplay re-emits RunID's recorded signal log instead of
	// invoking agents.
	ModeReplay RecordingMode = "replay"
)

// Recording configures how a run is persisted or replayed.
type Recording struct {
	Mode RecordingMode

	// Store backs Record and Replay modes.
	Store recorder.Store

	// RunID identifies the recording. Required for Replay; generated
	// for Record if left empty.
	RunID string
}

// Options is the input to RunWorkflow, the boundary API described in
// spec §6.
type Options struct {
	// Agents is the fixed set of agent definitions available this run.
	Agents []agent.Definition

	// Adapters maps an agent's Name to the ExecutionAdapter that runs
	// its activations. Every agent in Agents must have an entry.
	Adapters map[string]agent.ExecutionAdapter

	// InitialState seeds the state store before workflow:start.
	InitialState map[string]any

	// EndWhen is an expr-lang expression evaluated against the current
	// state after every signal; true ends the run successfully.
	EndWhen string

	// MaxActivations is the global activation budget. Zero uses the
	// default of 100.
	MaxActivations int

	// Recording configures persistence/replay. The zero value is live,
	// unrecorded execution.
	Recording Recording

	// Input seeds the payload of the initial workflow:start signal.
	Input map[string]any

	// Timeout, if non-zero, bounds the whole run; expiry behaves like
	// cancellation with reason "timeout" (spec §5).
	Timeout time.Duration

	// Tracer, if set, wraps the run and every activation in an
	// OpenTelemetry span. Nil means no tracing.
	Tracer *tracing.Provider
}

func (o Options) maxActivations() int {
	if o.MaxActivations > 0 {
		return o.MaxActivations
	}
	return defaultMaxActivations
}

const defaultMaxActivations = 100
