// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package execplan computes a reporting-only execution preview over a
// frozen task graph (component C3): stage layering, critical path,
// bottleneck detection, max parallelism, and a token/ETA estimate. None of
// this drives runtime dispatch — the scheduler is driven by the resolver's
// ready-set.
package execplan

import (
	"fmt"
	"sort"
	"strings"

	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

// DefaultBottleneckFanOut is the fan-out threshold (configurable) at or
// above which a subtask is reported as a bottleneck.
const DefaultBottleneckFanOut = 3

// Plan is the computed, read-only execution preview for a graph.
type Plan struct {
	Stages         []types.ExecutionStage
	Levels         map[string]int // subtask id -> stage number
	CriticalPath   []string       // ids, source to sink
	CriticalWeight int
	Bottlenecks    []string // subtask ids with fan-out >= threshold
	MaxParallelism int      // widest stage
	TotalETA       int      // sum of stage durations (weight units)
	TotalTokenEst  int      // sum of per-stage context weights
}

// Planner computes Plans for a graph.
type Planner struct {
	graph            *taskgraph.Graph
	bottleneckFanOut int
}

// New creates a Planner with the default bottleneck fan-out threshold.
func New(graph *taskgraph.Graph) *Planner {
	return &Planner{graph: graph, bottleneckFanOut: DefaultBottleneckFanOut}
}

// WithBottleneckFanOut overrides the fan-out threshold used to flag
// bottlenecks.
func (p *Planner) WithBottleneckFanOut(n int) *Planner {
	p.bottleneckFanOut = n
	return p
}

// Plan computes the execution preview. Requires a frozen graph.
func (p *Planner) Plan() (*Plan, error) {
	order, err := p.graph.IterateTopological()
	if err != nil {
		return nil, err
	}

	levels := make(map[string]int, len(order))
	weights := make(map[string]int, len(order))
	ctxSizes := make(map[string]int, len(order))

	for _, id := range order {
		t, _ := p.graph.GetSubtask(id)
		weights[id] = t.EstimatedComplexity.Weight()
		ctxSizes[id] = t.ContextSize

		level := 0
		for dep := range t.Dependencies {
			if levels[dep]+1 > level {
				level = levels[dep] + 1
			}
		}
		levels[id] = level
	}

	byLevel := make(map[int][]string)
	maxLevel := 0
	for _, id := range order {
		l := levels[id]
		byLevel[l] = append(byLevel[l], id)
		if l > maxLevel {
			maxLevel = l
		}
	}

	stages := make([]types.ExecutionStage, 0, maxLevel+1)
	totalETA := 0
	totalTokens := 0
	maxParallel := 0
	for l := 0; l <= maxLevel; l++ {
		ids := byLevel[l]
		sort.Strings(ids)
		duration := 0
		ctxWeight := 0
		for _, id := range ids {
			if weights[id] > duration {
				duration = weights[id]
			}
			ctxWeight += ctxSizes[id]
		}
		stages = append(stages, types.ExecutionStage{
			Stage:         l,
			TaskIDs:       ids,
			Duration:      duration,
			ContextWeight: ctxWeight,
		})
		totalETA += duration
		totalTokens += ctxWeight
		if len(ids) > maxParallel {
			maxParallel = len(ids)
		}
	}

	criticalPath, criticalWeight := p.criticalPath(order, weights)
	bottlenecks := p.bottlenecks(order)

	return &Plan{
		Stages:         stages,
		Levels:         levels,
		CriticalPath:   criticalPath,
		CriticalWeight: criticalWeight,
		Bottlenecks:    bottlenecks,
		MaxParallelism: maxParallel,
		TotalETA:       totalETA,
		TotalTokenEst:  totalTokens,
	}, nil
}

// criticalPath runs a longest-path DP over the DAG with node weight =
// complexity weight, breaking ties by smaller id.
func (p *Planner) criticalPath(order []string, weights map[string]int) ([]string, int) {
	best := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))

	for _, id := range order {
		t, _ := p.graph.GetSubtask(id)
		localBest := 0
		localPrev := ""
		deps := t.Dependencies.Sorted()
		for _, dep := range deps {
			candidate := best[dep]
			if candidate > localBest || (candidate == localBest && localPrev != "" && dep < localPrev) {
				localBest = candidate
				localPrev = dep
			}
		}
		best[id] = localBest + weights[id]
		prev[id] = localPrev
	}

	sinkBest := -1
	sink := ""
	for _, id := range order {
		if best[id] > sinkBest || (best[id] == sinkBest && id < sink) {
			sinkBest = best[id]
			sink = id
		}
	}
	if sink == "" {
		return nil, 0
	}

	path := []string{}
	for cur := sink; cur != ""; cur = prev[cur] {
		path = append([]string{cur}, path...)
	}
	return path, sinkBest
}

// bottlenecks flags subtasks whose fan-out (number of direct dependents)
// meets or exceeds the configured threshold.
func (p *Planner) bottlenecks(order []string) []string {
	out := make([]string, 0)
	for _, id := range order {
		if len(p.graph.NeighborsForward(id)) >= p.bottleneckFanOut {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Render produces a human-readable preview: stage table, ETA, critical
// path, and bottlenecks, for a CLI to print before a run starts.
func Render(plan *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Execution plan: %d stage(s), max parallelism %d\n", len(plan.Stages), plan.MaxParallelism)
	for _, s := range plan.Stages {
		fmt.Fprintf(&b, "  stage %d (duration %d, context weight %d): %s\n",
			s.Stage, s.Duration, s.ContextWeight, strings.Join(s.TaskIDs, ", "))
	}
	fmt.Fprintf(&b, "Critical path (weight %d): %s\n", plan.CriticalWeight, strings.Join(plan.CriticalPath, " -> "))
	if len(plan.Bottlenecks) > 0 {
		fmt.Fprintf(&b, "Bottlenecks: %s\n", strings.Join(plan.Bottlenecks, ", "))
	}
	fmt.Fprintf(&b, "Estimated total ETA (weight units): %d, estimated token budget: %d\n", plan.TotalETA, plan.TotalTokenEst)
	return b.String()
}
