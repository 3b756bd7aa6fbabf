package recorder

import (
	"context"
	"fmt"

	"github.com/open-harness/openharness/pkg/signal"
)

// Recorder binds a Store to a single run and satisfies hub.Persister,
// so it can be passed directly to hub.WithPersister. It does not import
// pkg/hub; the method shape alone is enough (Go interface satisfaction
// is structural).
type Recorder struct {
	store Store
	runID string
}

// New creates a Recorder for runID against store, creating the
// recording if it does not already exist.
func New(ctx context.Context, store Store, runID string) (*Recorder, error) {
	exists, err := store.Exists(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("recorder: check existing recording: %w", err)
	}
	if !exists {
		if err := store.Create(ctx, runID); err != nil {
			return nil, fmt.Errorf("recorder: create recording: %w", err)
		}
	}
	return &Recorder{store: store, runID: runID}, nil
}

// Append implements hub.Persister.
func (r *Recorder) Append(ctx context.Context, sig signal.Signal) error {
	return r.store.Append(ctx, r.runID, recordOf(sig))
}

// Checkpoint marks index under name for this run.
func (r *Recorder) Checkpoint(ctx context.Context, name string, index int64) error {
	return r.store.Checkpoint(ctx, r.runID, name, index)
}

// Finalize marks the recording complete with the given run duration.
func (r *Recorder) Finalize(ctx context.Context, durationMs int64) error {
	return r.store.Finalize(ctx, r.runID, durationMs)
}

// RunID returns the run this recorder is bound to.
func (r *Recorder) RunID() string {
	return r.runID
}
