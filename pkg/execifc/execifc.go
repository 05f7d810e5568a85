// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package execifc declares the narrow interfaces the scheduler calls out
// to: the agent execution callback, an undo recorder, validation rules,
// and the authorization hook. Concrete implementations live under
// internal/exec/* and internal/policy.
package execifc

import (
	"context"
	"time"

	"coordkernel/pkg/types"
	"coordkernel/pkg/undo"
)

// TaskOutcome is what an Executor reports back for one subtask attempt.
type TaskOutcome struct {
	TaskID      string
	AgentID     string
	Status      types.TaskStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
	ResultData  map[string]any
}

// Recorder lets an Executor emit undo actions as it performs destructive
// work, without giving it direct access to the scheduler's chain.
type Recorder interface {
	Record(a undo.Action)
}

// Executor runs one subtask on behalf of one agent. Implementations MUST
// be safe to call concurrently for distinct tasks; the scheduler never
// calls Execute twice concurrently for the same task id.
type Executor interface {
	Execute(ctx context.Context, subtask types.Subtask, agent types.Agent, rec Recorder) (TaskOutcome, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, subtask types.Subtask, agent types.Agent, rec Recorder) (TaskOutcome, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, subtask types.Subtask, agent types.Agent, rec Recorder) (TaskOutcome, error) {
	return f(ctx, subtask, agent, rec)
}

// ValidationSeverity ranks a validation rule's declared severity when it
// fails, feeding directly into errdetect's ValidationFailure severity.
type ValidationSeverity string

const (
	ValidationSeverityLow      ValidationSeverity = "low"
	ValidationSeverityMedium   ValidationSeverity = "medium"
	ValidationSeverityHigh     ValidationSeverity = "high"
	ValidationSeverityCritical ValidationSeverity = "critical"
)

// ValidationRule is a named, user-supplied predicate over a task's
// result_data, run by the error detector after a task returns a result.
type ValidationRule struct {
	Name        string
	Description string
	Validate    func(output map[string]any) bool
	Severity    ValidationSeverity
}

// Action identifies what a destructive, undo-recorded operation is about
// to do, for the authorization hook.
type Action struct {
	Name     string
	TaskID   string
	AgentID  string
	Metadata map[string]any
}

// Decision is the authorization hook's verdict.
type Decision struct {
	Allowed bool
	Reason  string
}

// Authorizer is the optional security hook, consulted before a task's
// destructive undo-recorded action executes.
type Authorizer interface {
	Authorize(ctx context.Context, action Action, agent types.Agent) Decision
}
