package incremental

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/retry"
)

// SQLiteStore implements Store on a single SQLite file.
// Writes are retried while another process holds the database lock, for
// example a build running next to a dev server on the same project.
type SQLiteStore struct {
	db    *sql.DB
	mu    sync.Mutex
	retry retry.Policy
}

// OpenSQLite opens (creating if needed) the state database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" coherent and serializes writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, retry: retry.DefaultPolicy()}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS watermarks (
		category TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		at_ns INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		category TEXT NOT NULL,
		started_ns INTEGER NOT NULL,
		finished_ns INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_category ON runs(category, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Watermark(ctx context.Context, category string) (time.Time, bool, error) {
	var ns int64
	err := s.db.QueryRowContext(ctx, "SELECT at_ns FROM watermarks WHERE category = ?", category).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query watermark: %w", err)
	}
	return time.Unix(0, ns), true, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, category, runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.exec(ctx, `
		INSERT INTO watermarks (category, run_id, at_ns) VALUES (?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET run_id = excluded.run_id, at_ns = excluded.at_ns`,
		category, runID, at.UnixNano())
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryState, "commit watermark").WithContext("category", category).Build()
	}
	return nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.exec(ctx,
		"INSERT INTO runs (run_id, category, started_ns, finished_ns, processed, skipped, failed) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.RunID, rec.Category, rec.Started.UnixNano(), rec.Finished.UnixNano(), rec.Processed, rec.Skipped, rec.Failed)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryState, "record run").WithContext("category", rec.Category).Build()
	}
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) error {
	return s.retry.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err != nil && locked(err) {
			return ferrors.WrapError(err, ferrors.CategoryState, "state database locked").Retryable().Build()
		}
		return err
	})
}

// locked reports SQLITE_BUSY and SQLITE_LOCKED results.
func locked(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

func (s *SQLiteStore) Runs(ctx context.Context, category string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, category, started_ns, finished_ns, processed, skipped, failed FROM runs WHERE category = ? ORDER BY id DESC LIMIT ?",
		category, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished int64
		if err := rows.Scan(&r.RunID, &r.Category, &started, &finished, &r.Processed, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = time.Unix(0, started)
		r.Finished = time.Unix(0, finished)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
