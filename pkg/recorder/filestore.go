package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-harness/openharness/pkg/signal"
)

// FileStore is a directory-backed Store: one subdirectory per run
// holding an append-only JSONL signal log, a metadata file, and a
// checkpoint file. Appends use O_APPEND so a crash mid-write loses at
// most the last partial line; grounded on the teacher's
// internal/controller/checkpoint.Manager file-per-run layout, extended
// from a single JSON snapshot to a log plus metadata.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

type fileMeta struct {
	RunID       string    `json:"runId"`
	SignalCount int64     `json:"signalCount"`
	Complete    bool      `json:"complete"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewFileStore creates (if needed) dir and returns a Store backed by it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("filestore: create root dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) runDir(runID string) string      { return filepath.Join(s.dir, runID) }
func (s *FileStore) signalsPath(runID string) string  { return filepath.Join(s.runDir(runID), "signals.jsonl") }
func (s *FileStore) metaPath(runID string) string      { return filepath.Join(s.runDir(runID), "meta.json") }
func (s *FileStore) checkpointsPath(runID string) string { return filepath.Join(s.runDir(runID), "checkpoints.json") }

func (s *FileStore) Create(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.runDir(runID), 0o700); err != nil {
		return fmt.Errorf("filestore: create run dir: %w", err)
	}
	meta := fileMeta{RunID: runID, CreatedAt: time.Now()}
	if err := s.writeMeta(runID, meta); err != nil {
		return err
	}
	if _, err := os.OpenFile(s.signalsPath(runID), os.O_CREATE|os.O_WRONLY, 0o600); err != nil {
		return fmt.Errorf("filestore: create signal log: %w", err)
	}
	return nil
}

func (s *FileStore) Append(_ context.Context, runID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(runID, rec)
}

func (s *FileStore) appendLocked(runID string, rec Record) error {
	f, err := os.OpenFile(s.signalsPath(runID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("filestore: open signal log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("filestore: marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("filestore: append record: %w", err)
	}

	meta, err := s.readMeta(runID)
	if err != nil {
		return err
	}
	meta.SignalCount++
	return s.writeMeta(runID, meta)
}

func (s *FileStore) AppendBatch(ctx context.Context, runID string, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if err := s.appendLocked(runID, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) Checkpoint(_ context.Context, runID string, name string, index int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoints, err := s.readCheckpoints(runID)
	if err != nil {
		return err
	}
	checkpoints = append(checkpoints, Checkpoint{Name: name, Index: index, CreatedAt: time.Now()})

	data, err := json.MarshalIndent(checkpoints, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal checkpoints: %w", err)
	}
	if err := os.WriteFile(s.checkpointsPath(runID), data, 0o600); err != nil {
		return fmt.Errorf("filestore: write checkpoints: %w", err)
	}
	return nil
}

func (s *FileStore) Finalize(_ context.Context, runID string, durationMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(runID)
	if err != nil {
		return err
	}
	meta.Complete = true
	meta.DurationMs = durationMs
	return s.writeMeta(runID, meta)
}

func (s *FileStore) Load(_ context.Context, runID string) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(runID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		RunID:       meta.RunID,
		SignalCount: meta.SignalCount,
		Complete:    meta.Complete,
		DurationMs:  meta.DurationMs,
		CreatedAt:   meta.CreatedAt,
	}, nil
}

func (s *FileStore) LoadSignals(_ context.Context, runID string, fromIndex, toIndex int64, patterns []signal.Pattern) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.signalsPath(runID))
	if err != nil {
		return nil, fmt.Errorf("filestore: open signal log: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("filestore: parse record: %w", err)
		}
		if rec.Index < fromIndex {
			continue
		}
		if toIndex > 0 && rec.Index > toIndex {
			break
		}
		if len(patterns) > 0 && !signal.MatchAny(patterns, rec.Name) {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("filestore: scan signal log: %w", err)
	}
	return out, nil
}

func (s *FileStore) LoadCheckpoints(_ context.Context, runID string) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCheckpoints(runID)
}

func (s *FileStore) List(_ context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("filestore: read root dir: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.readMeta(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, Summary{
			RunID:       meta.RunID,
			SignalCount: meta.SignalCount,
			Complete:    meta.Complete,
			DurationMs:  meta.DurationMs,
			CreatedAt:   meta.CreatedAt,
		})
	}
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.runDir(runID)); err != nil {
		return fmt.Errorf("filestore: delete run dir: %w", err)
	}
	return nil
}

func (s *FileStore) Exists(_ context.Context, runID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.metaPath(runID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("filestore: stat meta: %w", err)
	}
	return true, nil
}

func (s *FileStore) readMeta(runID string) (fileMeta, error) {
	data, err := os.ReadFile(s.metaPath(runID))
	if err != nil {
		return fileMeta{}, fmt.Errorf("filestore: read meta: %w", err)
	}
	var meta fileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fileMeta{}, fmt.Errorf("filestore: parse meta: %w", err)
	}
	return meta, nil
}

func (s *FileStore) writeMeta(runID string, meta fileMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(runID), data, 0o600); err != nil {
		return fmt.Errorf("filestore: write meta: %w", err)
	}
	return nil
}

func (s *FileStore) readCheckpoints(runID string) ([]Checkpoint, error) {
	data, err := os.ReadFile(s.checkpointsPath(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read checkpoints: %w", err)
	}
	var checkpoints []Checkpoint
	if err := json.Unmarshal(data, &checkpoints); err != nil {
		return nil, fmt.Errorf("filestore: parse checkpoints: %w", err)
	}
	return checkpoints, nil
}

var _ Store = (*FileStore)(nil)
