package watch

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/sitepipe/internal/events"
	"git.home.luguber.info/inful/sitepipe/internal/glob"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
)

// Route binds a category to the globs that trigger it.
type Route struct {
	Category pipeline.Category
	Set      glob.Set
}

// Dispatcher maps raw changes to the categories they affect.
type Dispatcher struct {
	Routes []Route
	Bus    *events.Bus
	Logger *slog.Logger
}

// Categories returns the categories whose globs cover path, in route order.
func (d *Dispatcher) Categories(path string) []pipeline.Category {
	var out []pipeline.Category
	for _, r := range d.Routes {
		rel, ok := r.Set.Rel(path)
		if ok && r.Set.Watches(rel) {
			out = append(out, r.Category)
		}
	}
	return out
}

// Dispatch publishes one SourceChanged per affected category.
func (d *Dispatcher) Dispatch(ctx context.Context, c Change) error {
	for _, r := range d.Routes {
		rel, ok := r.Set.Rel(c.Path)
		if !ok || !r.Set.Watches(rel) {
			continue
		}
		evt := events.SourceChanged{Category: r.Category.String(), Path: rel, Op: c.Op, At: c.At}
		if err := d.Bus.Publish(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Run dispatches changes until in is closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, in <-chan Change) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			if err := d.Dispatch(ctx, c); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn("Dispatch change failed", logfields.Path(c.Path), logfields.Error(err))
				continue
			}
			log.Debug("Source changed", logfields.Path(c.Path), logfields.Op(c.Op))
		}
	}
}
