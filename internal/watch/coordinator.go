package watch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/metrics"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// TaskFunc runs the task of one category.
type TaskFunc func(ctx context.Context, cat pipeline.Category, trigger events.RebuildNow) error

// Coordinator owns one watch subscription per route for the lifetime of
// the process.
type Coordinator struct {
	Routes       []Route
	Bus          *events.Bus
	Task         TaskFunc
	Debounce     DebouncerConfig
	PollInterval time.Duration // zero disables polling
	Logger       *slog.Logger
	Recorder     metrics.Recorder

	readyOnce sync.Once
	ready     chan struct{}
}

// Ready is closed once every subscription is live.
func (c *Coordinator) Ready() <-chan struct{} {
	c.readyOnce.Do(func() { c.ready = make(chan struct{}) })
	return c.ready
}

// Run blocks until ctx is done. Setup failures are returned before any
// watching starts.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.Bus == nil || c.Task == nil {
		return ferrors.ValidationError("watch coordinator needs a bus and a task function").Build()
	}
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	c.Ready()

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, r := range c.Routes {
		cat := r.Category
		deb, err := NewDebouncer(c.Bus, cat.String(), c.Debounce)
		if err != nil {
			return err
		}
		ser := NewSerializer(c.Bus, cat.String(), func(ctx context.Context, t events.RebuildNow) error {
			return c.Task(ctx, cat, t)
		}, log, c.Recorder)
		wg.Add(2)
		go func() { defer wg.Done(); _ = deb.Run(ctx) }()
		go func() { defer wg.Done(); ser.Run(ctx) }()
		for _, ch := range []<-chan struct{}{deb.Ready(), ser.Ready()} {
			select {
			case <-ch:
			case <-ctx.Done():
				return nil
			}
		}
	}

	w, err := NewWatcher(log)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	for _, dir := range c.dirs() {
		if err := w.AddRecursive(dir); err != nil {
			return err
		}
	}

	changes := make(chan Change, 64)
	d := &Dispatcher{Routes: c.Routes, Bus: c.Bus, Logger: log}
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := w.Run(ctx, changes); err != nil {
			log.Error("File watcher stopped", logfields.Error(err))
		}
	}()
	go func() { defer wg.Done(); d.Run(ctx, changes) }()

	if c.PollInterval > 0 {
		p, err := NewPoller(c.Bus, c.Routes, c.PollInterval, log)
		if err != nil {
			return err
		}
		p.Start()
		defer func() { _ = p.Stop() }()
	}

	cats := make([]string, 0, len(c.Routes))
	for _, r := range c.Routes {
		cats = append(cats, r.Category.String())
	}
	log.Info("Watching for changes", slog.Any("categories", cats), slog.Int("dirs", len(w.Dirs())))
	close(c.ready)

	<-ctx.Done()
	return nil
}

func (c *Coordinator) dirs() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range c.Routes {
		for _, d := range r.Set.WatchDirs() {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	sort.Strings(out)
	return out
}
