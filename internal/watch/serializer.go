package watch

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/metrics"
)

// RunFunc runs one category task.
type RunFunc func(ctx context.Context, trigger events.RebuildNow) error

// Serializer runs a category at most once at a time. Triggers arriving
// during a run collapse into exactly one follow-up run; a run is never
// interrupted.
type Serializer struct {
	bus      *events.Bus
	category string
	run      RunFunc
	log      *slog.Logger
	rec      metrics.Recorder

	readyOnce sync.Once
	ready     chan struct{}
}

func NewSerializer(bus *events.Bus, category string, run RunFunc, log *slog.Logger, rec metrics.Recorder) *Serializer {
	if log == nil {
		log = slog.Default()
	}
	return &Serializer{
		bus:      bus,
		category: category,
		run:      run,
		log:      log.With(logfields.Category(category)),
		rec:      metrics.OrNoop(rec),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once Run has subscribed.
func (s *Serializer) Ready() <-chan struct{} { return s.ready }

// Run consumes RebuildNow events for the category until ctx is done, then
// waits for an in-flight run to return.
func (s *Serializer) Run(ctx context.Context) {
	triggers, unsubscribe := events.Subscribe[events.RebuildNow](s.bus, 16)
	defer unsubscribe()
	s.readyOnce.Do(func() { close(s.ready) })

	done := make(chan struct{}, 1)
	running := false
	var queued *events.RebuildNow

	start := func(t events.RebuildNow) {
		running = true
		s.rec.IncWatchTrigger(s.category, t.Cause)
		go func() {
			defer func() { done <- struct{}{} }()
			s.log.Info("Rebuilding", slog.String("cause", t.Cause), slog.Int("changes", t.RequestCount))
			if err := s.run(ctx, t); err != nil {
				s.log.Error("Rebuild failed", logfields.Error(err))
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return
		case t, ok := <-triggers:
			if !ok {
				if running {
					<-done
				}
				return
			}
			if t.Category != s.category {
				continue
			}
			if !running {
				start(t)
				continue
			}
			if queued == nil {
				q := t
				q.Cause = "after_running"
				queued = &q
			} else {
				queued.RequestCount += t.RequestCount
				queued.LastRequest = t.LastRequest
			}
		case <-done:
			running = false
			if queued != nil {
				next := *queued
				queued = nil
				start(next)
			}
		}
	}
}
