package orchestrator

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/sitepipe/internal/devserver"
	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/livereload"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/notify"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
	"git.home.luguber.info/inful/sitepipe/internal/taskgraph"
	"git.home.luguber.info/inful/sitepipe/internal/watch"
)

const serverNode = "server"

// Run performs INITIAL_BUILD, SERVER_START and WATCHING, then blocks until
// ctx is done. Any error before WATCHING is fatal and returned. Run may be
// called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	var err error = ferrors.ValidationError("orchestrator already ran").Build()
	o.runOnce.Do(func() { err = o.run(ctx) })
	return err
}

func (o *Orchestrator) run(ctx context.Context) error {
	var hub *livereload.Hub
	if o.cfg.Server.LiveReload {
		hub = livereload.NewHub(o.log, o.rec)
	}
	var bc notify.Broadcaster
	if hub != nil {
		bc = hub
	}
	notifier := notify.New(o.cfg.Notify, bc, notify.WithLogger(o.log))
	server := devserver.New(o.cfg,
		devserver.WithLogger(o.log),
		devserver.WithBus(o.bus),
		devserver.WithRegistry(o.registry),
		devserver.WithHub(hub))

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.setState(StateStopped)

	listen := notifier.Attach(o.bus)
	wg.Add(1)
	go func() { defer wg.Done(); listen(ctx) }()

	o.setState(StateInitialBuild)
	g, err := o.graph(serverNode)
	if err != nil {
		return err
	}
	reports := map[pipeline.Category]*pipeline.Report{}
	var mu sync.Mutex
	funcs := o.buildFuncs(reports, &mu)
	funcs[serverNode] = func(ctx context.Context) error {
		o.setState(StateServerStart)
		if err := server.Start(ctx); err != nil {
			return err
		}
		mu.Lock()
		for _, rep := range reports {
			server.Record(rep.Event(false))
		}
		mu.Unlock()
		if err := server.OpenBrowser(o.cfg.Server.Open); err != nil {
			o.log.Warn("Could not open browser", logfields.Error(err))
		}
		return nil
	}
	exec := &taskgraph.Executor{Logger: o.log}
	if _, err := exec.Run(ctx, g, funcs); err != nil {
		return err
	}
	o.log.Info("Initial build complete",
		logfields.Files(countProcessed(reports)),
		logfields.Failed(FailedFiles(reports)))

	routes, err := o.routes()
	if err != nil {
		return err
	}
	coord := &watch.Coordinator{
		Routes: routes,
		Bus:    o.bus,
		Task: func(ctx context.Context, cat pipeline.Category, _ events.RebuildNow) error {
			_, err := o.RunCategory(ctx, cat)
			return err
		},
		Debounce: watch.DebouncerConfig{
			QuietWindow: o.cfg.Watch.QuietWindowDuration(),
			MaxDelay:    o.cfg.Watch.MaxDelayDuration(),
		},
		PollInterval: o.cfg.Watch.PollIntervalDuration(),
		Logger:       o.log,
		Recorder:     o.rec,
	}
	watchErr := make(chan error, 1)
	go func() { watchErr <- coord.Run(ctx) }()
	select {
	case <-coord.Ready():
		o.setState(StateWatching)
	case err := <-watchErr:
		if err != nil {
			return err
		}
		return nil
	}

	err = <-watchErr
	<-server.Done()
	return err
}

func (o *Orchestrator) routes() ([]watch.Route, error) {
	var routes []watch.Route
	for _, c := range o.cfg.WatchCategories() {
		rc, err := o.cfg.Category(c)
		if err != nil {
			return nil, err
		}
		routes = append(routes, watch.Route{Category: c, Set: rc.Set})
	}
	return routes, nil
}

func countProcessed(reports map[pipeline.Category]*pipeline.Report) int {
	n := 0
	for _, r := range reports {
		n += r.Processed()
	}
	return n
}
