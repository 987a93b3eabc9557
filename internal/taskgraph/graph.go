// Package taskgraph orders top-level build tasks by their dependencies and
// runs independent ones concurrently.
package taskgraph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrCycle     = errors.New("dependency cycle")
	ErrNoNode    = errors.New("unknown node")
	ErrDuplicate = errors.New("duplicate node")
)

// Graph is a DAG of named nodes. An edge from A to B means A depends on B.
type Graph struct {
	order []string // insertion order, for stable output
	deps  map[string]map[string]bool
	rdeps map[string]map[string]bool
}

func New() *Graph {
	return &Graph{
		deps:  map[string]map[string]bool{},
		rdeps: map[string]map[string]bool{},
	}
}

func (g *Graph) AddNode(id string) error {
	if _, ok := g.deps[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	g.order = append(g.order, id)
	g.deps[id] = map[string]bool{}
	g.rdeps[id] = map[string]bool{}
	return nil
}

// AddEdge records that from depends on to. Edges that would close a cycle
// are rejected and leave the graph unchanged.
func (g *Graph) AddEdge(from, to string) error {
	for _, id := range []string{from, to} {
		if _, ok := g.deps[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNoNode, id)
		}
	}
	if from == to || g.reaches(to, from) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, from, to)
	}
	g.deps[from][to] = true
	g.rdeps[to][from] = true
	return nil
}

// reaches reports whether dst is reachable from src over dependency edges.
func (g *Graph) reaches(src, dst string) bool {
	seen := map[string]bool{src: true}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range g.deps[cur] {
			if dep == dst {
				return true
			}
			if !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return false
}

func (g *Graph) Nodes() []string { return slices.Clone(g.order) }

func (g *Graph) Len() int { return len(g.order) }

// Dependents returns the nodes that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	return g.stable(g.rdeps[id])
}

// TopologicalSort returns dependencies before dependents (Kahn's algorithm).
// Ties keep insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.order))
	var queue []string
	for _, id := range g.order {
		inDegree[id] = len(g.deps[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, dependent := range g.stable(g.rdeps[id]) {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if len(sorted) != len(g.order) {
		return nil, fmt.Errorf("%w: ordered %d of %d nodes", ErrCycle, len(sorted), len(g.order))
	}
	return sorted, nil
}

// Ready returns the nodes not in done whose dependencies are all in done.
func (g *Graph) Ready(done map[string]bool) []string {
	var ready []string
	for _, id := range g.order {
		if done[id] {
			continue
		}
		met := true
		for dep := range g.deps[id] {
			if !done[dep] {
				met = false
				break
			}
		}
		if met {
			ready = append(ready, id)
		}
	}
	return ready
}

func (g *Graph) stable(set map[string]bool) []string {
	var out []string
	for _, id := range g.order {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
