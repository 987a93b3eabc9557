package taskgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
)

// Func is the work attached to a node.
type Func func(ctx context.Context) error

// Executor runs a Graph in waves: every ready node starts concurrently and
// the next wave begins once the current one has finished. A failed node
// blocks its transitive dependents; unrelated nodes still run.
type Executor struct {
	Logger *slog.Logger
}

// Result describes one node's execution. Skipped nodes never ran because a
// dependency failed or the context ended first.
type Result struct {
	ID       string
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Run executes graph and returns per-node results in completion order along
// with the first node error, if any.
func (e *Executor) Run(ctx context.Context, g *Graph, funcs map[string]Func) ([]Result, error) {
	if _, err := g.TopologicalSort(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "invalid task graph").Build()
	}
	for _, id := range g.Nodes() {
		if funcs[id] == nil {
			return nil, ferrors.InternalError(fmt.Sprintf("no function for task %q", id)).Build()
		}
	}
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}

	done := make(map[string]bool, g.Len())
	failed := map[string]bool{}
	var (
		results  []Result
		firstErr error
	)
	for len(done) < g.Len() {
		wave := g.Ready(done)
		var runnable []string
		for _, id := range wave {
			if blockedBy(g, id, failed) || ctx.Err() != nil {
				done[id] = true
				failed[id] = true
				results = append(results, Result{ID: id, Skipped: true})
				continue
			}
			runnable = append(runnable, id)
		}

		out := make([]Result, len(runnable))
		var wg sync.WaitGroup
		for i, id := range runnable {
			wg.Add(1)
			go func() {
				defer wg.Done()
				start := time.Now()
				err := funcs[id](ctx)
				out[i] = Result{ID: id, Err: err, Duration: time.Since(start)}
			}()
		}
		wg.Wait()

		for _, r := range out {
			done[r.ID] = true
			if r.Err != nil {
				failed[r.ID] = true
				if firstErr == nil {
					firstErr = r.Err
				}
				log.Error("Task failed", logfields.Category(r.ID), logfields.Error(r.Err))
			} else {
				log.Debug("Task finished", logfields.Category(r.ID), logfields.DurationMS(r.Duration))
			}
			results = append(results, r)
		}
	}
	if firstErr == nil && ctx.Err() != nil {
		firstErr = ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "task graph canceled").Build()
	}
	return results, firstErr
}

func blockedBy(g *Graph, id string, failed map[string]bool) bool {
	for dep := range g.deps[id] {
		if failed[dep] {
			return true
		}
	}
	return false
}
