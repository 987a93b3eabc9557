package metrics

import "time"

// FileResult labels a per-file outcome.
type FileResult string

const (
	FileWritten   FileResult = "written"
	FileUnchanged FileResult = "unchanged"
	FileSkipped   FileResult = "skipped"
	FileFailed    FileResult = "failed"
)

// TaskOutcome labels a whole category run.
type TaskOutcome string

const (
	OutcomeSuccess  TaskOutcome = "success"
	OutcomePartial  TaskOutcome = "partial" // some files failed
	OutcomeFailed   TaskOutcome = "failed"  // task-level error
	OutcomeCanceled TaskOutcome = "canceled"
)

// Recorder receives observability hooks from runners, the watcher and the
// live-reload hub.
type Recorder interface {
	ObserveTaskDuration(category string, d time.Duration)
	IncFileResult(category string, result FileResult)
	IncTaskOutcome(category string, outcome TaskOutcome)
	SetLiveReloadClients(n int)
	IncWatchTrigger(category, cause string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncFileResult(string, FileResult)          {}
func (NoopRecorder) IncTaskOutcome(string, TaskOutcome)        {}
func (NoopRecorder) SetLiveReloadClients(int)                  {}
func (NoopRecorder) IncWatchTrigger(string, string)            {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
