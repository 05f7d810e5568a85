// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package recovery

import (
	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

// DefaultMinAcceptableCompletion is the minimum fraction of subtasks that
// must be complete for a degrade result to be considered acceptable.
const DefaultMinAcceptableCompletion = 0.5

// PartialResult summarizes how much of a task graph's work completed when
// full completion was not reached.
type PartialResult struct {
	Completed            []string
	Failed               []string
	Pending              []string
	CompletionPercentage float64
}

// ComputePartialResult walks every subtask in graph and buckets it by
// status into a PartialResult.
func ComputePartialResult(graph *taskgraph.Graph) PartialResult {
	ids := graph.AllIDs()
	completed := make([]string, 0)
	failed := make([]string, 0)
	pending := make([]string, 0)

	for _, id := range ids {
		t, ok := graph.GetSubtask(id)
		if !ok {
			continue
		}
		switch t.Status {
		case types.TaskCompleted:
			completed = append(completed, id)
		case types.TaskFailed:
			failed = append(failed, id)
		default:
			pending = append(pending, id)
		}
	}

	total := len(ids)
	pct := 0.0
	if total > 0 {
		pct = float64(len(completed)) / float64(total) * 100.0
	}

	return PartialResult{
		Completed:            completed,
		Failed:                failed,
		Pending:               pending,
		CompletionPercentage: pct,
	}
}

// IsAcceptable reports whether p meets minThreshold (a fraction in
// [0,1]); pass 0 to use DefaultMinAcceptableCompletion.
func (p PartialResult) IsAcceptable(minThreshold float64) bool {
	if minThreshold <= 0 {
		minThreshold = DefaultMinAcceptableCompletion
	}
	return p.CompletionPercentage >= minThreshold*100.0
}
