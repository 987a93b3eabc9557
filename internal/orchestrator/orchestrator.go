// Package orchestrator drives a sitepipe session: the initial build of
// every category, then the dev server, then watching. The sequence only
// moves forward.
package orchestrator

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/incremental"
	"git.home.luguber.info/inful/sitepipe/internal/metrics"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
	"git.home.luguber.info/inful/sitepipe/internal/stages"
)

// State is the orchestration phase.
type State int32

const (
	StateIdle State = iota
	StateInitialBuild
	StateServerStart
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitialBuild:
		return "INITIAL_BUILD"
	case StateServerStart:
		return "SERVER_START"
	case StateWatching:
		return "WATCHING"
	case StateStopped:
		return "STOPPED"
	default:
		return "IDLE"
	}
}

// Orchestrator owns the long-lived collaborators of a session.
type Orchestrator struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *events.Bus
	registry *prom.Registry
	rec      metrics.Recorder
	store    incremental.Store
	ownStore bool
	sass     stages.SassCompiler
	ownSass  bool
	runner   *pipeline.Runner

	state     atomic.Int32
	runOnce   sync.Once
	closeOnce sync.Once
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithStore replaces the state database. The caller keeps ownership.
func WithStore(s incremental.Store) Option { return func(o *Orchestrator) { o.store = s } }

// WithSass replaces the dart-sass compiler. The caller keeps ownership.
func WithSass(c stages.SassCompiler) Option { return func(o *Orchestrator) { o.sass = c } }

// WithRegistry registers metrics on reg and serves them from the dev server.
func WithRegistry(reg *prom.Registry) Option { return func(o *Orchestrator) { o.registry = reg } }

// New wires an orchestrator for cfg. Without WithStore the watermark store
// is the SQLite database at state.path, or memory when state is disabled.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, ferrors.ValidationError("config is required").Build()
	}
	o := &Orchestrator{cfg: cfg, log: slog.Default(), bus: events.NewBus()}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = prom.NewRegistry()
	}
	o.rec = metrics.NewPrometheusRecorder(o.registry)

	if o.store == nil {
		o.ownStore = true
		if cfg.State.Disabled {
			o.store = incremental.NewMemoryStore()
		} else {
			s, err := incremental.OpenSQLite(cfg.StatePath())
			if err != nil {
				return nil, err
			}
			o.store = s
		}
	}
	if o.sass == nil {
		o.ownSass = true
		o.sass = stages.NewDartSass(cfg.Styles.SassBinary)
	}
	o.runner = pipeline.NewRunner(
		pipeline.WithLogger(o.log),
		pipeline.WithBus(o.bus),
		pipeline.WithRecorder(o.rec),
		pipeline.WithHistory(o.store),
	)
	return o, nil
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	o.log.Debug("State transition", slog.String("from", prev.String()), slog.String("to", s.String()))
}

// Bus exposes the event bus for additional subscribers.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// Store is the watermark and run history store.
func (o *Orchestrator) Store() incremental.Store { return o.store }

// Close releases the bus and any collaborators the orchestrator created.
func (o *Orchestrator) Close() error {
	var errs []error
	o.closeOnce.Do(func() {
		o.bus.Close()
		if o.ownSass {
			if c, ok := o.sass.(interface{ Close() error }); ok {
				errs = append(errs, c.Close())
			}
		}
		if o.ownStore {
			errs = append(errs, o.store.Close())
		}
	})
	return errors.Join(errs...)
}
