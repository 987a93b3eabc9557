package incremental

import (
	"context"
	"time"
)

// SinceFilter passes files modified after the category's last committed
// watermark. Without a watermark every file passes (cold start).
//
// The watermark committed is the run's start time, so a file saved while a
// run is in progress is picked up by the next one.
type SinceFilter struct {
	Store    Store
	Category string
}

// Begin loads the watermark and returns the predicate for this run.
func (f SinceFilter) Begin(ctx context.Context) (func(modTime time.Time) bool, error) {
	at, ok, err := f.Store.Watermark(ctx, f.Category)
	if err != nil {
		return nil, err
	}
	if !ok {
		return func(time.Time) bool { return true }, nil
	}
	return func(modTime time.Time) bool { return modTime.After(at) }, nil
}

// Commit advances the watermark to start. Callers must only commit after a
// run in which no file failed.
func (f SinceFilter) Commit(ctx context.Context, runID string, start time.Time) error {
	return f.Store.Commit(ctx, f.Category, runID, start)
}
