package orchestrator

import (
	"context"
	"sync"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/incremental"
	"git.home.luguber.info/inful/sitepipe/internal/pipeline"
	"git.home.luguber.info/inful/sitepipe/internal/stages"
	"git.home.luguber.info/inful/sitepipe/internal/taskgraph"
)

// Task assembles the task of cat with a fresh stage chain. Images carry the
// incremental filter; the other categories always rebuild every file.
func (o *Orchestrator) Task(cat pipeline.Category) (pipeline.Task, error) {
	rc, err := o.cfg.Category(cat)
	if err != nil {
		return pipeline.Task{}, err
	}
	chain, err := stages.Chain(o.cfg, cat, stages.Deps{Sass: o.sass})
	if err != nil {
		return pipeline.Task{}, ferrors.WrapError(err, ferrors.CategoryConfig, "build stage chain").
			WithContext("category", cat.String()).Build()
	}
	t := pipeline.Task{
		Category: cat,
		Set:      rc.Set,
		DestRoot: rc.DestRoot,
		DestDir:  rc.DestDir,
		Chain:    chain,
		Notify:   pipeline.DefaultNotify(cat),
	}
	if cat == pipeline.Images {
		t.Filter = incremental.SinceFilter{Store: o.store, Category: cat.String()}
	}
	return t, nil
}

// RunCategory runs the task of cat once.
func (o *Orchestrator) RunCategory(ctx context.Context, cat pipeline.Category) (*pipeline.Report, error) {
	t, err := o.Task(cat)
	if err != nil {
		return nil, err
	}
	return o.runner.Run(ctx, t)
}

// graph holds one node per enabled build category, plus extra nodes that
// depend on all of them.
func (o *Orchestrator) graph(after ...string) (*taskgraph.Graph, error) {
	g := taskgraph.New()
	cats := o.cfg.BuildCategories()
	for _, c := range cats {
		if err := g.AddNode(c.String()); err != nil {
			return nil, err
		}
	}
	for _, id := range after {
		if err := g.AddNode(id); err != nil {
			return nil, err
		}
		for _, c := range cats {
			if err := g.AddEdge(id, c.String()); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// buildFuncs returns node functions for every build category. Reports are
// collected into reports; per-file failures do not fail a node.
func (o *Orchestrator) buildFuncs(reports map[pipeline.Category]*pipeline.Report, mu *sync.Mutex) map[string]taskgraph.Func {
	funcs := map[string]taskgraph.Func{}
	for _, c := range o.cfg.BuildCategories() {
		funcs[c.String()] = func(ctx context.Context) error {
			rep, err := o.RunCategory(ctx, c)
			if rep != nil {
				mu.Lock()
				reports[c] = rep
				mu.Unlock()
			}
			return err
		}
	}
	return funcs
}

// Build runs every enabled category concurrently and waits for all of them.
// The error reports task-level failures only; per-file failures are in the
// reports.
func (o *Orchestrator) Build(ctx context.Context) (map[pipeline.Category]*pipeline.Report, error) {
	g, err := o.graph()
	if err != nil {
		return nil, err
	}
	reports := map[pipeline.Category]*pipeline.Report{}
	var mu sync.Mutex
	exec := &taskgraph.Executor{Logger: o.log}
	_, err = exec.Run(ctx, g, o.buildFuncs(reports, &mu))
	return reports, err
}

// FailedFiles counts per-file failures across reports.
func FailedFiles(reports map[pipeline.Category]*pipeline.Report) int {
	n := 0
	for _, r := range reports {
		n += r.Failed()
	}
	return n
}
