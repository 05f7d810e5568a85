// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package registry maintains the agent roster and assignment counts
// (component C4): capability-scored lookup, and assign/release pairing
// enforced against double-assignment.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"coordkernel/pkg/types"
)

// AlreadyAssignedError is returned when a task is assigned to an agent
// that is already carrying it — an invariant violation per spec.md §4.4.
type AlreadyAssignedError struct {
	AgentID string
	TaskID  string
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("agent %s is already assigned task %s", e.AgentID, e.TaskID)
}

// NotAssignedError is returned when releasing a task an agent does not
// currently carry.
type NotAssignedError struct {
	AgentID string
	TaskID  string
}

func (e *NotAssignedError) Error() string {
	return fmt.Sprintf("agent %s is not assigned task %s", e.AgentID, e.TaskID)
}

// Registry is the concurrent-safe roster of agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*types.Agent
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*types.Agent)}
}

// Register adds or replaces an agent in the roster.
func (r *Registry) Register(a types.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID]; exists {
		slog.Info("agent re-registered", "agent_id", a.ID, "role", a.Role)
	} else {
		slog.Info("agent registered", "agent_id", a.ID, "role", a.Role)
	}
	stored := a
	r.agents[a.ID] = &stored
	return nil
}

// Get returns a copy of the agent with the given id.
func (r *Registry) Get(id string) (types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return types.Agent{}, false
	}
	return *a, true
}

// List returns a copy of every agent, ordered by id.
func (r *Registry) List() []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deletes an agent from the roster.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("agent %s not found", id)
	}
	delete(r.agents, id)
	return nil
}

// FindCapable returns agents carrying all of requiredCapabilities, scored
// by capability-overlap size (higher wins), tie-broken by fewer current
// assignments, then by lower cumulative tokens. excludeAgent, when
// non-empty, removes that agent from consideration; excludeBusy, when
// true, removes any agent not in AgentIdle status.
func (r *Registry) FindCapable(requiredCapabilities types.StringSet, excludeAgent string, excludeBusy bool) []types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := make([]types.Agent, 0)
	for _, a := range r.agents {
		if a.ID == excludeAgent {
			continue
		}
		if excludeBusy && a.Status != types.AgentIdle {
			continue
		}
		if requiredCapabilities.IntersectionCount(a.Capabilities) != len(requiredCapabilities) {
			continue
		}
		candidates = append(candidates, *a)
	}

	sort.Slice(candidates, func(i, j int) bool {
		si := requiredCapabilities.IntersectionCount(candidates[i].Capabilities)
		sj := requiredCapabilities.IntersectionCount(candidates[j].Capabilities)
		if si != sj {
			return si > sj
		}
		li, lj := len(candidates[i].AssignedTasks), len(candidates[j].AssignedTasks)
		if li != lj {
			return li < lj
		}
		ti, tj := candidates[i].ResourceMetrics.Tokens, candidates[j].ResourceMetrics.Tokens
		if ti != tj {
			return ti < tj
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates
}

// Assign appends taskID to agentID's task list. Double-assignment is an
// invariant violation and returns AlreadyAssignedError.
func (r *Registry) Assign(agentID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}
	for _, tid := range a.AssignedTasks {
		if tid == taskID {
			return &AlreadyAssignedError{AgentID: agentID, TaskID: taskID}
		}
	}
	a.AssignedTasks = append(a.AssignedTasks, taskID)
	a.CurrentTask = taskID
	return nil
}

// Release removes taskID from agentID's task list, pairing a prior Assign.
func (r *Registry) Release(agentID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}
	idx := -1
	for i, tid := range a.AssignedTasks {
		if tid == taskID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &NotAssignedError{AgentID: agentID, TaskID: taskID}
	}
	a.AssignedTasks = append(a.AssignedTasks[:idx], a.AssignedTasks[idx+1:]...)
	if a.CurrentTask == taskID {
		a.CurrentTask = ""
	}
	return nil
}

// UpdateResourceMetrics additively records resource usage on the named
// agent.
func (r *Registry) UpdateResourceMetrics(agentID string, tokens, apiCalls int, memoryMB float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}
	a.ResourceMetrics.Add(tokens, apiCalls, memoryMB)
	return nil
}

// SetStatus sets an agent's status field directly. The scheduler calls it
// around each dispatch so that FindCapable's excludeBusy filter sees which
// agents are working.
func (r *Registry) SetStatus(agentID string, status types.AgentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s not found", agentID)
	}
	a.Status = status
	return nil
}

// CountIdle returns the number of agents currently idle.
func (r *Registry) CountIdle() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.Status == types.AgentIdle {
			n++
		}
	}
	return n
}
