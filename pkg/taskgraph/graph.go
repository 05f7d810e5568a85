// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package taskgraph implements the in-memory dependency DAG of subtasks
// (component C1 of the scheduling kernel): append-only construction with
// a reverse index for O(degree) dependent lookup, frozen into a
// topologically ordered, mutation-limited graph before the scheduler runs.
package taskgraph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/toposort"

	"coordkernel/pkg/types"
)

// Graph is a DAG of Subtasks. Construction is append-only until Freeze;
// after freeze only status and assignment fields mutate.
type Graph struct {
	mu sync.RWMutex

	tasks      map[string]*types.Subtask
	dependents map[string]types.StringSet // reverse index: id -> ids that depend on it

	frozen bool
	order  []string // topological order, populated at Freeze
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		tasks:      make(map[string]*types.Subtask),
		dependents: make(map[string]types.StringSet),
	}
}

// AddSubtask appends a subtask to the graph. Every id referenced in
// t.Dependencies must already exist in the graph or MissingDependencyError
// is returned. Fails once the graph is frozen.
func (g *Graph) AddSubtask(t types.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return fmt.Errorf("add subtask %q: task graph is already frozen", t.ID)
	}
	if _, exists := g.tasks[t.ID]; exists {
		return &DuplicateTaskError{TaskID: t.ID}
	}
	for dep := range t.Dependencies {
		if _, exists := g.tasks[dep]; !exists {
			return &MissingDependencyError{TaskID: t.ID, DependencyID: dep}
		}
	}

	stored := t
	g.tasks[t.ID] = &stored
	if _, ok := g.dependents[t.ID]; !ok {
		g.dependents[t.ID] = types.StringSet{}
	}
	for dep := range t.Dependencies {
		if _, ok := g.dependents[dep]; !ok {
			g.dependents[dep] = types.StringSet{}
		}
		g.dependents[dep].Add(t.ID)
	}

	return nil
}

// GetSubtask returns a copy of the subtask with the given id.
func (g *Graph) GetSubtask(id string) (types.Subtask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return types.Subtask{}, false
	}
	return *t, true
}

// NeighborsForward returns the ids of subtasks that depend on id
// (dependents).
func (g *Graph) NeighborsForward(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set, ok := g.dependents[id]
	if !ok {
		return nil
	}
	return set.Sorted()
}

// NeighborsBackward returns the ids id depends on (prerequisites).
func (g *Graph) NeighborsBackward(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil
	}
	return t.Dependencies.Sorted()
}

// Size returns the number of subtasks in the graph.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// AllIDs returns every subtask id, in lexical order.
func (g *Graph) AllIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sortStrings(ids)
	return ids
}

// Freeze validates the graph (cycle detection; missing dependencies are
// already rejected by AddSubtask) and computes
// a topological order. After Freeze, AddSubtask fails and only status /
// assigned-agent fields may mutate.
func (g *Graph) Freeze() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return nil
	}

	if cycle := g.findCycle(); cycle != nil {
		return &CircularDependencyError{Cycle: cycle}
	}

	order, err := g.topoOrder()
	if err != nil {
		// toposort agrees there's a cycle our DFS coloring missed (should
		// not happen given AddSubtask's append-only + pre-existing-deps
		// invariant, but kept as a second line of defense).
		return &CircularDependencyError{Cycle: g.AllIDsLocked()}
	}

	g.order = order
	g.frozen = true
	return nil
}

// AllIDsLocked is an internal helper used when the lock is already held.
func (g *Graph) AllIDsLocked() []string {
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sortStrings(ids)
	return ids
}

// IterateTopological returns subtask ids in a valid topological order.
// Requires the graph to be frozen.
func (g *Graph) IterateTopological() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.frozen {
		return nil, &NotFrozenError{}
	}
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out, nil
}

// IsFrozen reports whether Freeze has been called successfully.
func (g *Graph) IsFrozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// SetStatus updates a subtask's status. Only valid after Freeze; callers
// are the scheduler and recovery engine per the shared-resource policy.
func (g *Graph) SetStatus(id string, status types.TaskStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.frozen {
		return &NotFrozenError{}
	}
	t, ok := g.tasks[id]
	if !ok {
		return &UnknownTaskError{TaskID: id}
	}
	t.Status = status
	return nil
}

// SetAssignedAgent records which agent a subtask is (or was) assigned to.
func (g *Graph) SetAssignedAgent(id, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.frozen {
		return &NotFrozenError{}
	}
	t, ok := g.tasks[id]
	if !ok {
		return &UnknownTaskError{TaskID: id}
	}
	t.AssignedAgent = agentID
	return nil
}

// findCycle runs DFS with white/gray/black coloring and returns the node
// ids composing the first cycle found, or nil if the graph is acyclic.
// Must be called with g.mu held.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.tasks))
	parent := make(map[string]string, len(g.tasks))
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		t := g.tasks[id]
		for dep := range t.Dependencies {
			switch color[dep] {
			case white:
				parent[dep] = id
				if visit(dep) {
					return true
				}
			case gray:
				// found a back edge id -> dep: reconstruct the cycle.
				cycle = []string{dep}
				cur := id
				for cur != dep {
					cycle = append(cycle, cur)
					cur = parent[cur]
				}
				cycle = append(cycle, dep)
				return true
			}
		}
		color[id] = black
		return false
	}

	ids := g.AllIDsLocked()
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// topoOrder computes a flat topological order using the toposort
// dependency, falling back to lexical id order when there are no edges at
// all.
func (g *Graph) topoOrder() ([]string, error) {
	edges := make([]toposort.Edge, 0)
	for id, t := range g.tasks {
		for dep := range t.Dependencies {
			edges = append(edges, toposort.Edge{dep, id})
		}
	}

	if len(edges) == 0 {
		return g.AllIDsLocked(), nil
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, err
	}

	inSorted := make(map[string]bool, len(sorted))
	order := make([]string, 0, len(g.tasks))
	for _, n := range sorted {
		name := n.(string)
		inSorted[name] = true
		order = append(order, name)
	}
	for _, id := range g.AllIDsLocked() {
		if !inSorted[id] {
			order = append([]string{id}, order...)
		}
	}
	return order, nil
}

func sortStrings(s []string) {
	sort.Strings(s)
}
