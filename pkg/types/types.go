// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package types holds the value types shared by every component of the
// scheduling and coordination kernel: subtasks, agents, status snapshots,
// and execution stages.
package types

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Complexity is the coarse effort estimate a decomposer assigns a subtask.
type Complexity string

const (
	ComplexitySmall  Complexity = "small"
	ComplexityMedium Complexity = "medium"
	ComplexityLarge  Complexity = "large"
)

// Weight maps a complexity tier to its numeric scheduling weight.
func (c Complexity) Weight() int {
	switch c {
	case ComplexitySmall:
		return 1
	case ComplexityMedium:
		return 2
	case ComplexityLarge:
		return 3
	default:
		return 1
	}
}

// Priority ranks subtasks for tie-breaking and reporting.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// TaskStatus is the lifecycle state of a Subtask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
	TaskCancelled  TaskStatus = "cancelled"
)

// AgentStatus is the lifecycle state of an Agent.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentWorking   AgentStatus = "working"
	AgentBlocked   AgentStatus = "blocked"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// StringSet is a small set-of-strings type used for dependencies and
// capability vectors.
type StringSet map[string]struct{}

// NewStringSet builds a StringSet from a slice, deduplicating entries.
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// Has reports whether item is a member of the set.
func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Add inserts item into the set.
func (s StringSet) Add(item string) { s[item] = struct{}{} }

// Sorted returns the set's members in lexical order, for deterministic
// iteration and reporting.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IntersectionCount returns the count of members shared between two sets, used
// by the registry's capability scoring.
func (s StringSet) IntersectionCount(other StringSet) int {
	count := 0
	for k := range s {
		if other.Has(k) {
			count++
		}
	}
	return count
}

// Subtask is the atomic unit of work scheduled by the kernel.
type Subtask struct {
	ID                   string
	Description          string
	Dependencies         StringSet
	EstimatedComplexity  Complexity
	RequiredCapabilities StringSet
	Status               TaskStatus
	AssignedAgent        string
	Priority             Priority

	// ContextSize is an opaque, caller-supplied quantity (Open Question
	// (a)): the execution planner treats it as a unit-less additive weight
	// and never derives it from a map's length itself.
	ContextSize int

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewSubtask builds a Subtask with sane defaults (pending status, empty
// sets) for the given id and description.
func NewSubtask(id, description string) Subtask {
	return Subtask{
		ID:                   id,
		Description:          description,
		Dependencies:         StringSet{},
		EstimatedComplexity:  ComplexityMedium,
		RequiredCapabilities: StringSet{},
		Status:               TaskPending,
		Priority:             PriorityMedium,
	}
}

// ResourceMetrics accumulates an agent's cumulative resource consumption.
type ResourceMetrics struct {
	Seconds  float64
	Tokens   int
	APICalls int
	MemoryMB float64
}

// Add accumulates another sample of resource usage.
func (r *ResourceMetrics) Add(tokens, apiCalls int, memoryMB float64) {
	r.Tokens += tokens
	r.APICalls += apiCalls
	r.MemoryMB += memoryMB
}

// Agent is a worker that subtasks are assigned to.
type Agent struct {
	ID              string
	Role            string
	Capabilities    StringSet
	Status          AgentStatus
	CurrentTask     string
	AssignedTasks   []string
	ResourceMetrics ResourceMetrics
	LastProgress    time.Time
}

// NewAgent builds an idle Agent. If id is empty a uuid is minted, matching
// the pack's common convention for agent/session identity.
func NewAgent(id, role string, capabilities ...string) Agent {
	if id == "" {
		id = uuid.NewString()
	}
	return Agent{
		ID:           id,
		Role:         role,
		Capabilities: NewStringSet(capabilities...),
		Status:       AgentIdle,
	}
}

// AgentStatusSnapshot is an immutable, point-in-time copy of an Agent's
// status, returned by the monitor so callers never observe live shared
// state.
type AgentStatusSnapshot struct {
	AgentID         string
	Role            string
	Status          AgentStatus
	CurrentTask     string
	ResourceMetrics ResourceMetrics
	LastProgress    time.Time
	LastUpdate      time.Time
	// TimeSeconds is the time spent in the current Status so far,
	// computed on demand at read time per spec.
	TimeSeconds float64
}

// ExecutionStage groups subtasks that share a longest-dependency-path
// level, used for reporting only — not for runtime dispatch.
type ExecutionStage struct {
	Stage         int
	TaskIDs       []string
	Duration      int // max complexity weight within the stage
	ContextWeight int // sum of ContextSize within the stage
}
