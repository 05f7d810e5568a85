// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package resolver computes the ready-set over a frozen task graph
// (component C2): subtasks whose dependencies are all satisfied and which
// have not yet been completed or started.
package resolver

import (
	"sort"

	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

// Resolver answers ready-set queries against a task graph.
type Resolver struct {
	graph *taskgraph.Graph
}

// New creates a Resolver bound to graph.
func New(graph *taskgraph.Graph) *Resolver {
	return &Resolver{graph: graph}
}

// Ready returns every pending subtask whose dependencies are all members
// of completed, in deterministic lexical-by-id order.
func (r *Resolver) Ready(completed types.StringSet) []types.Subtask {
	ids := r.graph.AllIDs()
	ready := make([]types.Subtask, 0)

	for _, id := range ids {
		t, ok := r.graph.GetSubtask(id)
		if !ok || t.Status != types.TaskPending || completed.Has(id) {
			continue
		}
		if allSatisfied(t.Dependencies, completed) {
			ready = append(ready, t)
		}
	}

	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

func allSatisfied(deps types.StringSet, completed types.StringSet) bool {
	for d := range deps {
		if !completed.Has(d) {
			return false
		}
	}
	return true
}

// Validate runs the graph's freeze-time checks (cycle detection; missing
// edges are already rejected at add-time) by freezing a graph that is not
// frozen yet. On a frozen graph it returns nil without re-checking, so it is
// safe to call repeatedly.
func (r *Resolver) Validate() error {
	if r.graph.IsFrozen() {
		return nil
	}
	return r.graph.Freeze()
}

// Skippable returns the set of pending subtask ids whose transitive
// dependency closure contains any id in failed — these can never become
// ready and should be marked failed with "dependency failed".
func (r *Resolver) Skippable(failed types.StringSet) []string {
	ids := r.graph.AllIDs()
	skippable := make([]string, 0)

	memo := make(map[string]bool, len(ids))
	var dependsOnFailed func(id string, visiting map[string]bool) bool
	dependsOnFailed = func(id string, visiting map[string]bool) bool {
		if v, ok := memo[id]; ok {
			return v
		}
		if visiting[id] {
			return false // defensive: cycles can't occur post-freeze
		}
		visiting[id] = true
		defer delete(visiting, id)

		t, ok := r.graph.GetSubtask(id)
		if !ok {
			return false
		}
		for dep := range t.Dependencies {
			if failed.Has(dep) || dependsOnFailed(dep, visiting) {
				memo[id] = true
				return true
			}
		}
		memo[id] = false
		return false
	}

	for _, id := range ids {
		t, ok := r.graph.GetSubtask(id)
		if !ok || t.Status != types.TaskPending {
			continue
		}
		if dependsOnFailed(id, map[string]bool{}) {
			skippable = append(skippable, id)
		}
	}

	sort.Strings(skippable)
	return skippable
}
