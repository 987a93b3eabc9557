// Package incremental keeps per-category run state: the watermark used to
// skip unchanged images and a short history of runs.
package incremental

import (
	"context"
	"time"
)

// RunRecord summarizes one category run.
type RunRecord struct {
	RunID     string
	Category  string
	Started   time.Time
	Finished  time.Time
	Processed int
	Skipped   int
	Failed    int
}

// Succeeded reports whether the run had no failed files.
func (r RunRecord) Succeeded() bool { return r.Failed == 0 }

// Store persists watermarks and run history.
type Store interface {
	// Watermark returns the last committed watermark for category; ok is
	// false when none was ever committed.
	Watermark(ctx context.Context, category string) (at time.Time, ok bool, err error)
	Commit(ctx context.Context, category, runID string, at time.Time) error
	RecordRun(ctx context.Context, rec RunRecord) error
	// Runs returns the newest runs first.
	Runs(ctx context.Context, category string, limit int) ([]RunRecord, error)
	Close() error
}
