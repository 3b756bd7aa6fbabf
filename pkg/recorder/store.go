// Package recorder implements the append-only per-run signal log and
// checkpoint store from spec §4.2. A Recorder satisfies hub.Persister,
// so attaching one to a Hub via hub.WithPersister is what turns a live
// run into one that can later be replayed bit-exactly.
package recorder

import (
	"context"
	"time"

	"github.com/open-harness/openharness/pkg/signal"
)

// Record is the on-log shape of one emitted signal: {index, name,
// timestamp, payload, source} per spec §4.2.
type Record struct {
	Index     int64     `json:"index"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
	Source    string    `json:"source"`
}

func recordOf(sig signal.Signal) Record {
	return Record{Index: sig.ID, Name: sig.Name, Timestamp: sig.Timestamp, Payload: sig.Payload, Source: sig.Source}
}

func (r Record) toSignal(runID string) signal.Signal {
	return signal.Signal{ID: r.Index, Name: r.Name, Timestamp: r.Timestamp, Payload: r.Payload, Source: r.Source, RunID: runID}
}

// Checkpoint is a named marker pointing at a signal index, allowing
// replay to a chosen point (spec §4.2).
type Checkpoint struct {
	Name      string    `json:"name"`
	Index     int64     `json:"index"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary describes a recording without loading its full signal log,
// returned by Store.List.
type Summary struct {
	RunID      string    `json:"runId"`
	SignalCount int64     `json:"signalCount"`
	Complete   bool      `json:"complete"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store is the recording/replay persistence contract from spec §4.2 and
// §6 ("the store contract provides create, append, appendBatch,
// checkpoint(name), finalize(durationMs), load, loadSignals, list,
// delete, exists").
type Store interface {
	Create(ctx context.Context, runID string) error
	Append(ctx context.Context, runID string, rec Record) error
	AppendBatch(ctx context.Context, runID string, recs []Record) error
	Checkpoint(ctx context.Context, runID string, name string, index int64) error
	Finalize(ctx context.Context, runID string, durationMs int64) error
	Load(ctx context.Context, runID string) (Summary, error)
	LoadSignals(ctx context.Context, runID string, fromIndex, toIndex int64, patterns []signal.Pattern) ([]Record, error)
	LoadCheckpoints(ctx context.Context, runID string) ([]Checkpoint, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, runID string) error
	Exists(ctx context.Context, runID string) (bool, error)
}
