// Package sqlitestore is a modernc.org/sqlite-backed recorder.Store,
// for deployments that want a single-file recording archive instead of
// one directory per run. Grounded on the teacher's
// internal/controller/backend/sqlite.Backend: same pragma set, same
// SetMaxOpenConns(1) single-writer posture, and the same
// migrations-as-a-statement-slice pattern.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/open-harness/openharness/pkg/recorder"
	"github.com/open-harness/openharness/pkg/signal"
)

// Store is a SQLite-backed recorder.Store.
type Store struct {
	db *sql.DB
}

// Config configures the underlying SQLite connection.
type Config struct {
	// Path is the database file path. Use ":memory:" for an ephemeral,
	// process-local store (handy in tests).
	Path string

	// WAL enables Write-Ahead Logging for concurrent readers.
	WAL bool
}

// New opens (creating if necessary) the SQLite file at cfg.Path,
// configures pragmas, and runs migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			run_id TEXT PRIMARY KEY,
			signal_count INTEGER DEFAULT 0,
			complete INTEGER DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			name TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			payload TEXT,
			source TEXT,
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES recordings(run_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_run_name ON signals(run_id, name)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			idx INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (run_id, name),
			FOREIGN KEY (run_id) REFERENCES recordings(run_id) ON DELETE CASCADE
		)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings (run_id, created_at) VALUES (?, ?)`,
		runID, time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: create recording: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, runID string, rec recorder.Record) error {
	return s.AppendBatch(ctx, runID, []recorder.Record{rec})
}

func (s *Store) appendOne(ctx context.Context, execer execer, runID string, rec recorder.Record) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal payload: %w", err)
	}
	_, err = execer.ExecContext(ctx,
		`INSERT INTO signals (run_id, idx, name, timestamp, payload, source) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, rec.Index, rec.Name, rec.Timestamp.Format(time.RFC3339Nano), string(payloadJSON), rec.Source,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: insert signal: %w", err)
	}
	_, err = execer.ExecContext(ctx,
		`UPDATE recordings SET signal_count = signal_count + 1 WHERE run_id = ?`, runID,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: bump signal count: %w", err)
	}
	return nil
}

// execer is the subset of *sql.DB / *sql.Tx used by appendOne, so
// AppendBatch can share it across a single transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) AppendBatch(ctx context.Context, runID string, recs []recorder.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if err := s.appendOne(ctx, tx, runID, rec); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit batch: %w", err)
	}
	return nil
}

func (s *Store) Checkpoint(ctx context.Context, runID string, name string, index int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, name, idx, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET idx = excluded.idx, created_at = excluded.created_at`,
		runID, name, index, time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: write checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Finalize(ctx context.Context, runID string, durationMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recordings SET complete = 1, duration_ms = ? WHERE run_id = ?`, durationMs, runID,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: finalize: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, runID string) (recorder.Summary, error) {
	var summary recorder.Summary
	var complete int
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, signal_count, complete, duration_ms, created_at FROM recordings WHERE run_id = ?`, runID,
	).Scan(&summary.RunID, &summary.SignalCount, &complete, &summary.DurationMs, &createdAt)
	if err == sql.ErrNoRows {
		return recorder.Summary{}, fmt.Errorf("sqlitestore: recording not found: %s", runID)
	}
	if err != nil {
		return recorder.Summary{}, fmt.Errorf("sqlitestore: load recording: %w", err)
	}
	summary.Complete = complete != 0
	summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return recorder.Summary{}, fmt.Errorf("sqlitestore: parse created_at: %w", err)
	}
	return summary, nil
}

func (s *Store) LoadSignals(ctx context.Context, runID string, fromIndex, toIndex int64, patterns []signal.Pattern) ([]recorder.Record, error) {
	query := `SELECT idx, name, timestamp, payload, source FROM signals WHERE run_id = ? AND idx >= ?`
	args := []any{runID, fromIndex}
	if toIndex > 0 {
		query += ` AND idx <= ?`
		args = append(args, toIndex)
	}
	query += ` ORDER BY idx ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query signals: %w", err)
	}
	defer rows.Close()

	var out []recorder.Record
	for rows.Next() {
		var rec recorder.Record
		var timestamp, payloadJSON string
		if err := rows.Scan(&rec.Index, &rec.Name, &timestamp, &payloadJSON, &rec.Source); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan signal: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Payload); err != nil {
			return nil, fmt.Errorf("sqlitestore: parse payload: %w", err)
		}
		if len(patterns) > 0 && !signal.MatchAny(patterns, rec.Name) {
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitestore: iterate signals: %w", err)
	}
	return out, nil
}

func (s *Store) LoadCheckpoints(ctx context.Context, runID string) ([]recorder.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, idx, created_at FROM checkpoints WHERE run_id = ? ORDER BY created_at ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []recorder.Checkpoint
	for rows.Next() {
		var cp recorder.Checkpoint
		var createdAt string
		if err := rows.Scan(&cp.Name, &cp.Index, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan checkpoint: %w", err)
		}
		cp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse checkpoint created_at: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *Store) List(ctx context.Context) ([]recorder.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, signal_count, complete, duration_ms, created_at FROM recordings ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query recordings: %w", err)
	}
	defer rows.Close()

	var out []recorder.Summary
	for rows.Next() {
		var summary recorder.Summary
		var complete int
		var createdAt string
		if err := rows.Scan(&summary.RunID, &summary.SignalCount, &complete, &summary.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan recording: %w", err)
		}
		summary.Complete = complete != 0
		summary.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse created_at: %w", err)
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete recording: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, runID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: check existence: %w", err)
	}
	return count > 0, nil
}

var _ recorder.Store = (*Store)(nil)
