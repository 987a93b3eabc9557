package events

import "time"

// SourceChanged is published by the watch dispatcher for every filesystem
// event that falls inside a watched category's globs.
type SourceChanged struct {
	Category string
	Path     string // relative to the source root, slash separated
	Op       string
	At       time.Time
}

// RebuildNow is emitted by a category debouncer once a burst of changes has
// settled (or the max delay elapsed) and the category should run.
type RebuildNow struct {
	Category     string
	RequestCount int
	FirstRequest time.Time
	LastRequest  time.Time
	Cause        string // "quiet", "max_delay" or "after_running"
}

// TaskStarted marks the beginning of a category run.
type TaskStarted struct {
	RunID     string
	Category  string
	Files     int
	StartedAt time.Time
}

// FileFailure is one per-file failure carried by TaskCompleted.
type FileFailure struct {
	Path    string
	Message string
}

// TaskCompleted reports the outcome of a category run.
//
// Notify tells the live-reload side what to do with the outputs: "reload",
// "inject" or "none".
type TaskCompleted struct {
	RunID     string
	Category  string
	Notify    string
	Started   time.Time
	Finished  time.Time
	Processed int
	Skipped   int
	Failures  []FileFailure
	Outputs   []string // written paths, relative to the destination root
	Aborted   bool     // the run returned a task-level error
}

// Failed reports whether any file failed or the run aborted.
func (e TaskCompleted) Failed() bool { return e.Aborted || len(e.Failures) > 0 }

// ServerReady is published once the dev server listener is bound.
type ServerReady struct {
	Addr string
	URL  string
}
