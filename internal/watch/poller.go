package watch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
)

// Poller is a fallback for filesystems without change notification
// (network mounts, some containers). It fingerprints each route on an
// interval and publishes a SourceChanged when the fingerprint moves.
type Poller struct {
	bus   *events.Bus
	log   *slog.Logger
	sched gocron.Scheduler

	mu    sync.Mutex
	last  map[string]string
	clock func() time.Time
}

func NewPoller(bus *events.Bus, routes []Route, interval time.Duration, log *slog.Logger) (*Poller, error) {
	if interval <= 0 {
		return nil, ferrors.ValidationError("poll interval must be > 0").Build()
	}
	if log == nil {
		log = slog.Default()
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "create poll scheduler").Build()
	}
	p := &Poller{bus: bus, log: log, sched: sched, last: map[string]string{}, clock: time.Now}
	for _, r := range routes {
		p.Check(r)
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(p.Check, r),
			gocron.WithName("poll-"+r.Category.String()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "schedule poll job").
				WithContext("category", r.Category.String()).Build()
		}
	}
	return p, nil
}

func (p *Poller) Start() { p.sched.Start() }

func (p *Poller) Stop() error { return p.sched.Shutdown() }

// Check fingerprints r and reports whether it changed since the previous
// check. The first check only records the baseline.
func (p *Poller) Check(r Route) bool {
	fp, err := r.Set.Fingerprint()
	if err != nil {
		p.log.Warn("Poll fingerprint failed", logfields.Category(r.Category.String()), logfields.Error(err))
		return false
	}
	cat := r.Category.String()
	p.mu.Lock()
	prev, seen := p.last[cat]
	p.last[cat] = fp
	p.mu.Unlock()
	if !seen || prev == fp {
		return false
	}
	evt := events.SourceChanged{Category: cat, Op: "POLL", At: p.clock()}
	if _, err := p.bus.TryPublish(evt); err != nil {
		p.log.Debug("Poll change not delivered", logfields.Error(err))
	}
	return true
}
