package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-harness/openharness/pkg/signal"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileStoreCreateThenExistsReportsTrue(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Create(ctx, "run-1"))

	exists, err = store.Exists(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFileStoreAppendThenLoadSignalsReturnsInOrder(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))

	for i := int64(0); i < 3; i++ {
		require.NoError(t, store.Append(ctx, "run-1", Record{
			Index:     i,
			Name:      "plan:created",
			Timestamp: time.Now(),
			Payload:   map[string]any{"n": i},
		}))
	}

	recs, err := store.LoadSignals(ctx, "run-1", 0, 0, nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(0), recs[0].Index)
	assert.Equal(t, int64(2), recs[2].Index)

	summary, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.SignalCount)
	assert.False(t, summary.Complete)
}

func TestFileStoreLoadSignalsFiltersByIndexRange(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))
	for i := int64(0); i < 5; i++ {
		require.NoError(t, store.Append(ctx, "run-1", Record{Index: i, Name: "tick", Timestamp: time.Now()}))
	}

	recs, err := store.LoadSignals(ctx, "run-1", 1, 3, nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(1), recs[0].Index)
	assert.Equal(t, int64(3), recs[2].Index)
}

func TestFileStoreLoadSignalsFiltersByPattern(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))
	require.NoError(t, store.Append(ctx, "run-1", Record{Index: 0, Name: "plan:created", Timestamp: time.Now()}))
	require.NoError(t, store.Append(ctx, "run-1", Record{Index: 1, Name: "task:complete", Timestamp: time.Now()}))

	recs, err := store.LoadSignals(ctx, "run-1", 0, 0, []signal.Pattern{"plan:*"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "plan:created", recs[0].Name)
}

func TestFileStoreCheckpointRoundTrips(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))

	require.NoError(t, store.Checkpoint(ctx, "run-1", "after-plan", 2))
	require.NoError(t, store.Checkpoint(ctx, "run-1", "after-task", 5))

	checkpoints, err := store.LoadCheckpoints(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, checkpoints, 2)
	assert.Equal(t, "after-plan", checkpoints[0].Name)
	assert.Equal(t, int64(5), checkpoints[1].Index)
}

func TestFileStoreFinalizeMarksComplete(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))

	require.NoError(t, store.Finalize(ctx, "run-1", 1500))

	summary, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, summary.Complete)
	assert.Equal(t, int64(1500), summary.DurationMs)
}

func TestFileStoreListReturnsAllRuns(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))
	require.NoError(t, store.Create(ctx, "run-2"))

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestFileStoreDeleteRemovesRecording(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))

	require.NoError(t, store.Delete(ctx, "run-1"))

	exists, err := store.Exists(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStoreAppendBatchWritesAllRecords(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, "run-1"))

	recs := []Record{
		{Index: 0, Name: "a", Timestamp: time.Now()},
		{Index: 1, Name: "b", Timestamp: time.Now()},
	}
	require.NoError(t, store.AppendBatch(ctx, "run-1", recs))

	summary, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.SignalCount)
}

func TestFileStoreAppendWithoutCreateFails(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	err := store.Append(ctx, "run-missing", Record{Index: 0, Name: "a", Timestamp: time.Now()})
	assert.Error(t, err)
}
