package watch

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

type DebouncerConfig struct {
	QuietWindow time.Duration
	// MaxDelay caps how long a steady stream of changes can postpone a run.
	MaxDelay time.Duration
}

// Debouncer coalesces the SourceChanged events of one category into a
// single RebuildNow once changes pause for QuietWindow, or MaxDelay after
// the first change of a burst, whichever comes first.
type Debouncer struct {
	bus      *events.Bus
	category string
	cfg      DebouncerConfig

	readyOnce sync.Once
	ready     chan struct{}

	pending bool
	first   time.Time
	last    time.Time
	count   int
}

func NewDebouncer(bus *events.Bus, category string, cfg DebouncerConfig) (*Debouncer, error) {
	if bus == nil {
		return nil, ferrors.ValidationError("bus is required").Build()
	}
	if cfg.QuietWindow <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if cfg.MaxDelay < cfg.QuietWindow {
		return nil, ferrors.ValidationError("max delay must not be shorter than the quiet window").Build()
	}
	return &Debouncer{bus: bus, category: category, cfg: cfg, ready: make(chan struct{})}, nil
}

// Ready is closed once Run has subscribed.
func (d *Debouncer) Ready() <-chan struct{} { return d.ready }

func (d *Debouncer) Run(ctx context.Context) error {
	changes, unsubscribe := events.Subscribe[events.SourceChanged](d.bus, 64)
	defer unsubscribe()
	d.readyOnce.Do(func() { close(d.ready) })

	quietTimer := stoppedTimer()
	maxTimer := stoppedTimer()
	var quietC, maxC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-changes:
			if !ok {
				return nil
			}
			if evt.Category != d.category {
				continue
			}
			d.record(evt)
			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C
			if d.count == 1 {
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}
		case <-quietC:
			quietC, maxC = nil, nil
			maxTimer.Stop()
			if err := d.emit(ctx, "quiet"); err != nil {
				return nil
			}
		case <-maxC:
			quietC, maxC = nil, nil
			quietTimer.Stop()
			if err := d.emit(ctx, "max_delay"); err != nil {
				return nil
			}
		}
	}
}

func (d *Debouncer) record(evt events.SourceChanged) {
	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	if !d.pending {
		d.pending = true
		d.first = at
		d.count = 0
	}
	d.last = at
	d.count++
}

func (d *Debouncer) emit(ctx context.Context, cause string) error {
	if !d.pending {
		return nil
	}
	evt := events.RebuildNow{
		Category:     d.category,
		RequestCount: d.count,
		FirstRequest: d.first,
		LastRequest:  d.last,
		Cause:        cause,
	}
	d.pending = false
	d.count = 0
	return d.bus.Publish(ctx, evt)
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	t.Stop()
	t.Reset(after)
}
