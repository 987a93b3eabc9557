package pipeline

import (
	"context"
	"time"

	"git.home.luguber.info/inful/sitepipe/internal/glob"
)

// Filter narrows the file set of a run. Begin is called once per run and
// returns the predicate; Commit is called only after a run without failures.
type Filter interface {
	Begin(ctx context.Context) (func(modTime time.Time) bool, error)
	Commit(ctx context.Context, runID string, start time.Time) error
}

// Task is a category's source selection, transform chain and destination.
type Task struct {
	Category Category
	Set      glob.Set
	DestRoot string // absolute destination root
	DestDir  string // destination sub-directory for this category, slash separated
	Chain    []Stage
	Filter   Filter // optional
	Notify   NotifyKind
}
