package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/incremental"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/metrics"
)

// publishTimeout bounds how long a completed run waits for a stalled
// subscriber.
const publishTimeout = 5 * time.Second

// Runner executes category tasks. It is safe for concurrent use; callers
// serialize runs of the same category.
type Runner struct {
	logger      *slog.Logger
	bus         *events.Bus
	recorder    metrics.Recorder
	history     incremental.Store
	concurrency int
	now         func() time.Time

	// outputs maps category/source to the output it last produced.
	outputs sync.Map
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithLogger(l *slog.Logger) RunnerOption { return func(r *Runner) { r.logger = l } }

// WithBus publishes TaskStarted and TaskCompleted on b.
func WithBus(b *events.Bus) RunnerOption { return func(r *Runner) { r.bus = b } }

func WithRecorder(m metrics.Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = metrics.OrNoop(m) }
}

// WithHistory records every finished run in s.
func WithHistory(s incremental.Store) RunnerOption { return func(r *Runner) { r.history = s } }

// WithConcurrency bounds how many files of one run are processed at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func withClock(now func() time.Time) RunnerOption { return func(r *Runner) { r.now = now } }

func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:      slog.Default(),
		recorder:    metrics.NoopRecorder{},
		concurrency: runtime.GOMAXPROCS(0),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every file the task selects.
//
// A failing file is recorded in the report and never aborts the run. The
// returned error is non-nil only when the run could not proceed at all
// (unreadable source tree, state store failure, cancellation); the report
// is returned in every case.
func (r *Runner) Run(ctx context.Context, task Task) (*Report, error) {
	rep := &Report{
		RunID:    uuid.NewString(),
		Category: task.Category,
		Notify:   task.Notify,
		Started:  r.now(),
	}
	log := r.logger.With(logfields.RunID(rep.RunID), logfields.Category(task.Category.String()))

	files, err := task.Set.Expand()
	if err != nil {
		return rep, r.abort(ctx, log, rep, ferrors.WrapError(err, ferrors.CategoryFileSystem, "expand source globs").
			WithContext("category", task.Category.String()).
			Build())
	}

	var pass func(time.Time) bool
	if task.Filter != nil {
		if pass, err = task.Filter.Begin(ctx); err != nil {
			return rep, r.abort(ctx, log, rep, ferrors.WrapError(err, ferrors.CategoryState, "load incremental watermark").Build())
		}
	}

	log.Info("Task started", logfields.Files(len(files)))
	if r.bus != nil {
		_, _ = r.bus.TryPublish(events.TaskStarted{RunID: rep.RunID, Category: task.Category.String(), Files: len(files), StartedAt: rep.Started})
	}

	results := make([]FileResult, len(files))
	started := 0
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for i, rel := range files {
		if ctx.Err() != nil {
			break
		}
		started++
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			results[i] = r.processFile(ctx, task, rel, pass)
		}()
	}
	wg.Wait()
	rep.Files = results[:started]

	if err := ctx.Err(); err != nil {
		return rep, r.abort(ctx, log, rep, ferrors.WrapError(err, ferrors.CategoryRuntime, "task canceled").Build())
	}

	for _, f := range rep.Files {
		r.recorder.IncFileResult(task.Category.String(), fileLabel(f))
		if f.Err != nil {
			log.Debug("File failed", logfields.Path(f.Rel), logfields.Error(f.Err))
		}
	}

	if task.Filter != nil && rep.Failed() == 0 {
		if err := task.Filter.Commit(ctx, rep.RunID, rep.Started); err != nil {
			log.Warn("Failed to commit incremental watermark", logfields.Error(err))
		}
	}

	rep.Finished = r.now()
	outcome := metrics.OutcomeSuccess
	level := slog.LevelInfo
	if rep.Failed() > 0 {
		outcome = metrics.OutcomePartial
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "Task completed",
		logfields.Files(rep.Processed()),
		logfields.Skipped(rep.Skipped()),
		logfields.Failed(rep.Failed()),
		logfields.DurationMS(rep.Duration()))
	r.finish(ctx, log, rep, outcome, false)
	return rep, nil
}

func (r *Runner) abort(ctx context.Context, log *slog.Logger, rep *Report, err error) error {
	rep.Finished = r.now()
	outcome := metrics.OutcomeFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		outcome = metrics.OutcomeCanceled
	}
	log.Error("Task aborted", logfields.Error(err), logfields.DurationMS(rep.Duration()))
	r.finish(context.WithoutCancel(ctx), log, rep, outcome, true)
	return err
}

func (r *Runner) finish(ctx context.Context, log *slog.Logger, rep *Report, outcome metrics.TaskOutcome, aborted bool) {
	cat := rep.Category.String()
	r.recorder.ObserveTaskDuration(cat, rep.Duration())
	r.recorder.IncTaskOutcome(cat, outcome)

	if r.history != nil {
		rec := incremental.RunRecord{
			RunID:     rep.RunID,
			Category:  cat,
			Started:   rep.Started,
			Finished:  rep.Finished,
			Processed: rep.Processed(),
			Skipped:   rep.Skipped(),
			Failed:    rep.Failed(),
		}
		if err := r.history.RecordRun(ctx, rec); err != nil {
			log.Warn("Failed to record run", logfields.Error(err))
		}
	}
	if r.bus != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := r.bus.Publish(pctx, rep.Event(aborted)); err != nil {
			log.Debug("TaskCompleted not delivered", logfields.Error(err))
		}
	}
}

func (r *Runner) processFile(ctx context.Context, task Task, rel string, pass func(time.Time) bool) FileResult {
	res := FileResult{Rel: rel}
	src := filepath.Join(task.Set.Root, filepath.FromSlash(rel))

	info, err := os.Stat(src)
	if err != nil {
		res.Err = ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat source").WithContext("path", rel).Build()
		return res
	}
	outRel := rel
	if base := task.Set.Base(rel); base != "" {
		outRel = strings.TrimPrefix(rel, base+"/")
	}
	if pass != nil && !pass(info.ModTime()) && r.outputExists(task, rel, outRel) {
		res.Skipped = true
		return res
	}
	data, err := os.ReadFile(src)
	if err != nil {
		res.Err = ferrors.WrapError(err, ferrors.CategoryFileSystem, "read source").WithContext("path", rel).Build()
		return res
	}

	f := &File{Rel: rel, SrcPath: src, ModTime: info.ModTime(), Data: data, OutRel: outRel, Meta: map[string]any{}}

	for _, st := range task.Chain {
		if err := st.Process(ctx, f); err != nil {
			if errors.Is(err, ErrDrop) {
				res.Skipped = true
				return res
			}
			res.Err = classifyStageError(err, st.Name(), rel)
			return res
		}
	}

	res.Out = destRel(task.DestDir, f.OutRel)
	res.Unchanged, err = writeIfChanged(filepath.Join(task.DestRoot, filepath.FromSlash(res.Out)), f.Data)
	if err != nil {
		res.Out = ""
		res.Err = ferrors.WrapError(err, ferrors.CategoryFileSystem, "write output").WithContext("path", rel).Build()
		return res
	}
	r.outputs.Store(outputKey(task.Category, rel), res.Out)
	for _, extra := range f.Extras {
		out := destRel(task.DestDir, extra.Rel)
		if _, err := writeIfChanged(filepath.Join(task.DestRoot, filepath.FromSlash(out)), extra.Data); err != nil {
			res.Err = ferrors.WrapError(err, ferrors.CategoryFileSystem, "write output").WithContext("path", out).Build()
			return res
		}
		res.Extras = append(res.Extras, out)
	}
	return res
}

// outputExists reports whether the output of a filtered source is still
// present under the destination root. Sources this runner has not processed
// yet are looked up under their unrenamed output path.
func (r *Runner) outputExists(task Task, rel, outRel string) bool {
	out := destRel(task.DestDir, outRel)
	if known, ok := r.outputs.Load(outputKey(task.Category, rel)); ok {
		out = known.(string)
	}
	_, err := os.Stat(filepath.Join(task.DestRoot, filepath.FromSlash(out)))
	return err == nil
}

func outputKey(c Category, rel string) string { return c.String() + "/" + rel }

// classifyStageError keeps classified errors (annotated with the file) and
// wraps anything else as a processing error.
func classifyStageError(err error, stage, rel string) error {
	if ce, ok := ferrors.AsClassified(err); ok {
		if _, has := ce.Context()["path"]; has {
			return ce
		}
		return ce.WithContext("path", rel).WithContext("stage", stage)
	}
	return ferrors.WrapError(err, ferrors.CategoryProcessing, fmt.Sprintf("%s: %s", stage, rel)).
		WithContext("path", rel).
		WithContext("stage", stage).
		Build()
}

// writeIfChanged writes data to path unless the file already holds exactly
// data. It reports whether the write was skipped.
func writeIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sitepipe-*")
	if err != nil {
		return false, err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return false, err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return false, err
	}
	return false, nil
}

func fileLabel(f FileResult) metrics.FileResult {
	switch {
	case f.Err != nil:
		return metrics.FileFailed
	case f.Skipped:
		return metrics.FileSkipped
	case f.Unchanged:
		return metrics.FileUnchanged
	default:
		return metrics.FileWritten
	}
}
