// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package shellexec is the default Executor: it runs a subtask's command
// as a shell pipeline via bitfield/script. A subtask's command is taken
// from its ResultData-free Description field by convention — callers that
// want an explicit command pass a CommandFunc to New; shellexec itself is
// intentionally dumb plumbing.
package shellexec

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfield/script"

	"coordkernel/pkg/execifc"
	"coordkernel/pkg/types"
	"coordkernel/pkg/undo"
)

// CommandFunc extracts the shell command to run for a subtask. Callers
// supply this since the kernel's Subtask type has no dedicated command
// field (spec.md leaves "how a subtask becomes a command" to the caller).
type CommandFunc func(subtask types.Subtask) string

// Executor runs subtasks as shell commands.
type Executor struct {
	command CommandFunc
}

// New creates a shellexec.Executor. If command is nil, the subtask's
// Description is used verbatim as the command.
func New(command CommandFunc) *Executor {
	if command == nil {
		command = func(t types.Subtask) string { return t.Description }
	}
	return &Executor{command: command}
}

var _ execifc.Executor = (*Executor)(nil)

// Execute runs the subtask's command to completion or until ctx is done.
func (e *Executor) Execute(ctx context.Context, subtask types.Subtask, agent types.Agent, rec execifc.Recorder) (execifc.TaskOutcome, error) {
	startedAt := time.Now()
	cmd := e.command(subtask)

	rec.Record(newUndoAction(subtask, cmd))

	if err := ctx.Err(); err != nil {
		return execifc.TaskOutcome{TaskID: subtask.ID, AgentID: agent.ID, Status: types.TaskFailed, StartedAt: startedAt, CompletedAt: time.Now()}, err
	}

	output, err := script.Exec(cmd).String()
	outcome := execifc.TaskOutcome{
		TaskID:      subtask.ID,
		AgentID:     agent.ID,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		ResultData:  map[string]any{"stdout": output},
	}

	if err != nil {
		outcome.Status = types.TaskFailed
		outcome.Err = fmt.Errorf("shell command failed: %w", err)
		return outcome, outcome.Err
	}

	outcome.Status = types.TaskCompleted
	return outcome, nil
}

func newUndoAction(subtask types.Subtask, cmd string) undo.Action {
	return undo.Action{
		Description:      fmt.Sprintf("ran shell command for task %s", subtask.ID),
		HumanDescription: fmt.Sprintf("task %q executed: %s", subtask.ID, cmd),
		Risk:             undo.RiskMedium,
	}
}
