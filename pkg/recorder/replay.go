package recorder

import (
	"context"
	"fmt"

	harnesserrors "github.com/open-harness/openharness/pkg/errors"
	"github.com/open-harness/openharness/pkg/signal"
)

// Emitter is the subset of *hub.Hub a Replayer drives. Replay never
// imports pkg/hub directly; hub.Hub satisfies this structurally.
type Emitter interface {
	Emit(ctx context.Context, name string, payload any) (signal.Signal, error)
}

// Replayer re-emits a recorded signal log through a fresh Hub, bypassing
// agent execution entirely (spec §4.2: replay mode "re-emits the
// recorded signal log instead of invoking agents"). It is deliberately
// not modelled on the teacher's internal/controller/runner replay
// driver, which restores cached DAG step outputs for a step-indexed
// workflow engine; this replay model is a flat, ordered re-emission of
// a signal log, so it is written fresh rather than adapted from that
// file.
type Replayer struct {
	store Store
}

// NewReplayer returns a Replayer reading recordings from store.
func NewReplayer(store Store) *Replayer {
	return &Replayer{store: store}
}

// Replay re-emits every recorded signal for runID up to and including
// toIndex (0 means "to the end") through hub, in recorded order. Since a
// fresh Hub assigns signal ids as a dense 0-based sequence in emission
// order, replaying from the start naturally reproduces the original
// ids; any mismatch between the id the hub assigns and the recorded
// index, or between the recorded name and what was actually emitted,
// is reported as a ReplayDivergenceError rather than silently ignored.
func (r *Replayer) Replay(ctx context.Context, runID string, hub Emitter, toIndex int64) ([]signal.Signal, error) {
	recs, err := r.store.LoadSignals(ctx, runID, 0, toIndex, nil)
	if err != nil {
		return nil, fmt.Errorf("recorder: load signals for replay: %w", err)
	}

	out := make([]signal.Signal, 0, len(recs))
	for _, rec := range recs {
		sig, err := hub.Emit(ctx, rec.Name, rec.Payload)
		if err != nil {
			return out, fmt.Errorf("recorder: replay emit at index %d (%s): %w", rec.Index, rec.Name, err)
		}
		if sig.ID != rec.Index {
			return out, &harnesserrors.ReplayDivergenceError{
				SignalID: sig.ID,
				Expected: fmt.Sprintf("signal index %d", rec.Index),
				Actual:   fmt.Sprintf("hub assigned index %d", sig.ID),
			}
		}
		if sig.Name != rec.Name {
			return out, &harnesserrors.ReplayDivergenceError{
				SignalID: sig.ID,
				Expected: rec.Name,
				Actual:   sig.Name,
			}
		}
		out = append(out, sig)
	}
	return out, nil
}

// ReplayToCheckpoint replays runID through hub up to the signal index
// recorded under the named checkpoint.
func (r *Replayer) ReplayToCheckpoint(ctx context.Context, runID, checkpointName string, hub Emitter) ([]signal.Signal, error) {
	checkpoints, err := r.store.LoadCheckpoints(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("recorder: load checkpoints: %w", err)
	}
	for _, cp := range checkpoints {
		if cp.Name == checkpointName {
			return r.Replay(ctx, runID, hub, cp.Index)
		}
	}
	return nil, fmt.Errorf("recorder: no checkpoint named %q for run %s", checkpointName, runID)
}
