// Package eventstore keeps a history of completed runs in SQLite.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/reportbal/internal/build"
)

// RunRecord is one persisted run summary.
type RunRecord struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Listed    int
	Stale     int
	Succeeded int
	Failed    int
	Skipped   int
	Outcome   string
	Failures  []build.Failure
}

// SQLiteStore implements run-history persistence using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the history database. Use ":memory:"
// for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		listed INTEGER NOT NULL,
		stale INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		outcome TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	CREATE TABLE IF NOT EXISTS run_failures (
		run_id TEXT NOT NULL,
		slug TEXT NOT NULL,
		stage TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_failures_run_id ON run_failures(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun appends a completed run. Implements build.RunSink.
func (s *SQLiteStore) RecordRun(ctx context.Context, report build.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started, duration_ms, listed, stale, succeeded, failed, skipped, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Started.Unix(), report.Duration.Milliseconds(),
		report.Listed, report.Stale, report.Succeeded, report.Failed, report.Skipped,
		report.Outcome(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, f := range report.Failures {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_failures (run_id, slug, stage, message) VALUES (?, ?, ?, ?)",
			report.RunID, f.Slug, f.Stage, f.Message); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns the newest limit runs, newest first, with their
// failures attached.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started, duration_ms, listed, stale, succeeded, failed, skipped, outcome
		 FROM runs ORDER BY started DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		var started int64
		var durationMS int64
		if err := rows.Scan(&r.RunID, &started, &durationMS, &r.Listed, &r.Stale,
			&r.Succeeded, &r.Failed, &r.Skipped, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.Unix(started, 0).UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		failures, err := s.failuresFor(ctx, records[i].RunID)
		if err != nil {
			return nil, err
		}
		records[i].Failures = failures
	}
	return records, nil
}

func (s *SQLiteStore) failuresFor(ctx context.Context, runID string) ([]build.Failure, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slug, stage, message FROM run_failures WHERE run_id = ? ORDER BY slug", runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []build.Failure
	for rows.Next() {
		var f build.Failure
		if err := rows.Scan(&f.Slug, &f.Stage, &f.Message); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
