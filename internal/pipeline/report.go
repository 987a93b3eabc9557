package pipeline

import (
	"errors"
	"path"
	"time"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

// FileResult is the outcome for one source file.
type FileResult struct {
	Rel       string
	Out       string   // written path relative to the destination root, empty when nothing was written
	Extras    []string // additional outputs relative to the destination root
	Unchanged bool     // output already had identical content
	Skipped   bool     // filtered out by the incremental filter or dropped by a stage
	Err       error
}

// Report summarizes a category run.
type Report struct {
	RunID    string
	Category Category
	Notify   NotifyKind
	Started  time.Time
	Finished time.Time
	Files    []FileResult
}

// Processed counts files that went through the chain successfully.
func (r *Report) Processed() int {
	n := 0
	for _, f := range r.Files {
		if !f.Skipped && f.Err == nil {
			n++
		}
	}
	return n
}

func (r *Report) Skipped() int {
	n := 0
	for _, f := range r.Files {
		if f.Skipped {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Err joins every per-file error, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

// Outputs lists the main outputs that changed on disk, relative to the destination root.
func (r *Report) Outputs() []string {
	var out []string
	for _, f := range r.Files {
		if f.Out != "" && !f.Unchanged {
			out = append(out, f.Out)
		}
	}
	return out
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Event converts the report into the bus event consumed by the notifier and
// the dev server.
func (r *Report) Event(aborted bool) events.TaskCompleted {
	evt := events.TaskCompleted{
		RunID:     r.RunID,
		Category:  r.Category.String(),
		Notify:    string(r.Notify),
		Started:   r.Started,
		Finished:  r.Finished,
		Processed: r.Processed(),
		Skipped:   r.Skipped(),
		Outputs:   r.Outputs(),
		Aborted:   aborted,
	}
	for _, f := range r.Files {
		if f.Err != nil {
			evt.Failures = append(evt.Failures, events.FileFailure{Path: f.Rel, Message: failureMessage(f.Err)})
		}
	}
	return evt
}

// failureMessage drops the category prefix of classified errors; the
// message already names the file and position.
func failureMessage(err error) string {
	if c, ok := ferrors.AsClassified(err); ok {
		if c.Cause() != nil {
			return c.Message() + ": " + c.Cause().Error()
		}
		return c.Message()
	}
	return err.Error()
}

func destRel(dir, rel string) string {
	if dir == "" || dir == "." {
		return rel
	}
	return path.Join(dir, rel)
}
