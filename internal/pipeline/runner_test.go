package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/glob"
	"git.home.luguber.info/inful/sitepipe/internal/incremental"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func upper() Stage {
	return StageFunc{StageName: "upper", Fn: func(_ context.Context, f *File) error {
		f.Data = bytes.ToUpper(f.Data)
		f.SetExt(".html")
		return nil
	}}
}

func newTask(t *testing.T, src, dest string, chain ...Stage) Task {
	t.Helper()
	set, err := glob.New(src, []string{"pages/**/*.tmpl"}, []string{"**/_*"})
	require.NoError(t, err)
	return Task{Category: Pages, Set: set, DestRoot: dest, Chain: chain, Notify: NotifyReload}
}

func TestRunnerMapsOutputsAndExcludesPartials(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/index.tmpl", "home")
	writeFile(t, src, "pages/blog/post.tmpl", "post")
	writeFile(t, src, "pages/_layout.tmpl", "layout")
	writeFile(t, src, "pages/blog/_card.tmpl", "card")

	rep, err := NewRunner().Run(t.Context(), newTask(t, src, dest, upper()))
	require.NoError(t, err)
	require.Equal(t, 2, rep.Processed())
	require.Zero(t, rep.Failed())
	assert.ElementsMatch(t, []string{"index.html", "blog/post.html"}, rep.Outputs())

	got, err := os.ReadFile(filepath.Join(dest, "blog", "post.html"))
	require.NoError(t, err)
	assert.Equal(t, "POST", string(got))
	assert.NoFileExists(t, filepath.Join(dest, "_layout.html"))
	assert.NoFileExists(t, filepath.Join(dest, "blog", "_card.html"))
}

func TestRunnerDestDirAndExtras(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	withMap := StageFunc{StageName: "map", Fn: func(_ context.Context, f *File) error {
		f.SetExt(".css")
		f.Extras = append(f.Extras, Output{Rel: f.OutRel + ".map", Data: []byte("{}")})
		return nil
	}}
	task := newTask(t, src, dest, withMap)
	task.DestDir = "css"

	rep, err := NewRunner().Run(t.Context(), task)
	require.NoError(t, err)
	require.Len(t, rep.Files, 1)
	assert.Equal(t, "css/a.css", rep.Files[0].Out)
	assert.Equal(t, []string{"css/a.css.map"}, rep.Files[0].Extras)
	assert.FileExists(t, filepath.Join(dest, "css", "a.css.map"))
}

func TestRunnerFileFailureDoesNotAbort(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/good.tmpl", "good")
	writeFile(t, src, "pages/bad.tmpl", "bad")
	failing := StageFunc{StageName: "compile", Fn: func(_ context.Context, f *File) error {
		if f.Rel == "pages/bad.tmpl" {
			return ferrors.SourceError("unexpected token").Build()
		}
		return nil
	}}

	rep, err := NewRunner().Run(t.Context(), newTask(t, src, dest, failing, upper()))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed())
	assert.Equal(t, 1, rep.Failed())
	require.Error(t, rep.Err())
	assert.True(t, ferrors.HasCategory(rep.Err(), ferrors.CategorySource))
	assert.FileExists(t, filepath.Join(dest, "good.html"))
	assert.NoFileExists(t, filepath.Join(dest, "bad.html"))

	ce, ok := ferrors.AsClassified(rep.Err())
	require.True(t, ok)
	assert.Equal(t, "pages/bad.tmpl", ce.Context()["path"])
}

func TestRunnerWrapsPlainStageErrors(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	plain := StageFunc{StageName: "boom", Fn: func(context.Context, *File) error { return errors.New("boom") }}

	rep, err := NewRunner().Run(t.Context(), newTask(t, src, dest, plain))
	require.NoError(t, err)
	assert.True(t, ferrors.HasCategory(rep.Err(), ferrors.CategoryProcessing))
	assert.Contains(t, rep.Err().Error(), "boom")
}

func TestRunnerDropIsSkip(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	drop := StageFunc{StageName: "drop", Fn: func(context.Context, *File) error { return ErrDrop }}

	rep, err := NewRunner().Run(t.Context(), newTask(t, src, dest, drop))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped())
	assert.Zero(t, rep.Failed())
	assert.Empty(t, rep.Outputs())
}

func TestRunnerSkipsIdenticalOutput(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	r := NewRunner()
	task := newTask(t, src, dest, upper())

	first, err := r.Run(t.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.html"}, first.Outputs())

	second, err := r.Run(t.Context(), task)
	require.NoError(t, err)
	require.Len(t, second.Files, 1)
	assert.True(t, second.Files[0].Unchanged)
	assert.Empty(t, second.Outputs())
}

func TestRunnerIncrementalFilter(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	a := writeFile(t, src, "pages/a.tmpl", "a")
	writeFile(t, src, "pages/b.tmpl", "b")
	past := time.Now().Add(-time.Hour)
	for _, rel := range []string{"pages/a.tmpl", "pages/b.tmpl"} {
		require.NoError(t, os.Chtimes(filepath.Join(src, filepath.FromSlash(rel)), past, past))
	}

	store := incremental.NewMemoryStore()
	task := newTask(t, src, dest, upper())
	task.Filter = incremental.SinceFilter{Store: store, Category: "pages"}
	r := NewRunner(WithHistory(store))

	cold, err := r.Run(t.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, cold.Processed(), "cold start processes everything")

	idle, err := r.Run(t.Context(), task)
	require.NoError(t, err)
	assert.Zero(t, idle.Processed())
	assert.Equal(t, 2, idle.Skipped())

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(a, future, future))
	one, err := r.Run(t.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, one.Processed())
	assert.Equal(t, "pages/a.tmpl", func() string {
		for _, f := range one.Files {
			if !f.Skipped {
				return f.Rel
			}
		}
		return ""
	}())

	runs, err := store.Runs(t.Context(), "pages", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunnerFilterRebuildsMissingOutput(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	writeFile(t, src, "pages/b.tmpl", "b")
	past := time.Now().Add(-time.Hour)
	for _, rel := range []string{"pages/a.tmpl", "pages/b.tmpl"} {
		require.NoError(t, os.Chtimes(filepath.Join(src, filepath.FromSlash(rel)), past, past))
	}

	store := incremental.NewMemoryStore()
	task := newTask(t, src, dest, upper())
	task.Filter = incremental.SinceFilter{Store: store, Category: "pages"}
	r := NewRunner()

	_, err := r.Run(t.Context(), task)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dest, "a.html")))

	rep, err := r.Run(t.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed())
	assert.Equal(t, 1, rep.Skipped())
	assert.Equal(t, []string{"a.html"}, rep.Outputs())
	assert.FileExists(t, filepath.Join(dest, "a.html"))

	// A runner without a record of earlier outputs falls back to the
	// unrenamed path, which a renaming chain never writes.
	fresh, err := NewRunner().Run(t.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Processed())
}

func TestRunnerDoesNotCommitAfterFailure(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	store := incremental.NewMemoryStore()
	fail := StageFunc{StageName: "fail", Fn: func(context.Context, *File) error {
		return ferrors.ProcessingError("codec failed").Build()
	}}
	task := newTask(t, src, dest, fail)
	task.Filter = incremental.SinceFilter{Store: store, Category: "pages"}

	_, err := NewRunner().Run(t.Context(), task)
	require.NoError(t, err)
	_, ok, err := store.Watermark(t.Context(), "pages")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunnerPublishesEvents(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	bus := events.NewBus()
	defer bus.Close()
	started, unsubStarted := events.Subscribe[events.TaskStarted](bus, 1)
	defer unsubStarted()
	completed, unsubCompleted := events.Subscribe[events.TaskCompleted](bus, 1)
	defer unsubCompleted()

	rep, err := NewRunner(WithBus(bus)).Run(t.Context(), newTask(t, src, dest, upper()))
	require.NoError(t, err)

	s := <-started
	assert.Equal(t, rep.RunID, s.RunID)
	assert.Equal(t, 1, s.Files)

	c := <-completed
	assert.Equal(t, "pages", c.Category)
	assert.Equal(t, "reload", c.Notify)
	assert.Equal(t, []string{"a.html"}, c.Outputs)
	assert.False(t, c.Failed())
}

func TestRunnerCanceled(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeFile(t, src, "pages/a.tmpl", "a")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	rep, err := NewRunner().Run(ctx, newTask(t, src, dest, upper()))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
}

func TestRunnerMissingSourceRootIsEmptyRun(t *testing.T) {
	rep, err := NewRunner().Run(t.Context(), newTask(t, filepath.Join(t.TempDir(), "nope"), t.TempDir(), upper()))
	require.NoError(t, err)
	assert.Empty(t, rep.Files)
}

func TestCategory(t *testing.T) {
	for _, c := range AllCategories() {
		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCategory("fonts")
	require.Error(t, err)

	assert.Equal(t, NotifyInject, DefaultNotify(Styles))
	assert.Equal(t, NotifyReload, DefaultNotify(Pages))
	assert.Equal(t, NotifyReload, DefaultNotify(Scripts))
	assert.Equal(t, NotifyNone, DefaultNotify(Images))
}
