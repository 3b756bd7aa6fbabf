package harness

import (
	"github.com/open-harness/openharness/pkg/signal"
	"github.com/open-harness/openharness/pkg/state"
)

// Status is the terminal state of a run, per spec §4.5's run state
// machine: "idle -> running -> {complete | aborted | failed}".
type Status string

const (
	StatusComplete Status = "complete"
	StatusAborted  Status = "aborted"
	StatusFailed   Status = "failed"
)

// Metrics summarizes a finished run's activation accounting.
type Metrics struct {
	Activations      int
	PerAgent         map[string]int
	SignalCount      int64
	DurationMs       int64
}

// Result is what RunWorkflow returns: spec §6's
// "{state, signals, metrics, recordingId?}", plus the terminal status
// and the reason the run reached it.
type Result struct {
	Status      Status
	Reason      string
	State       state.Snapshot
	Signals     []signal.Signal
	Metrics     Metrics
	RecordingID string
}
