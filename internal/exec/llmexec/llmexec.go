// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package llmexec delegates a subtask to a coding-agent backend over the
// OpenCode SDK, for subtasks whose required capabilities name an
// LLM-backed role such as "code-gen" or "review".
package llmexec

import (
	"context"
	"fmt"
	"time"

	"coordkernel/internal/agent"
	"coordkernel/pkg/execifc"
	"coordkernel/pkg/types"
	"coordkernel/pkg/undo"
)

// PromptFunc builds the prompt text and options sent to the backend for a
// subtask. Callers own how a subtask's description and context map to a
// prompt.
type PromptFunc func(subtask types.Subtask, a types.Agent) (string, *agent.PromptOptions)

// Executor runs subtasks through an OpenCode-backed coding agent.
type Executor struct {
	client agent.ClientInterface
	prompt PromptFunc
}

// New creates an llmexec.Executor bound to client. If prompt is nil, the
// subtask's Description is sent verbatim with no session reuse.
func New(client agent.ClientInterface, prompt PromptFunc) *Executor {
	if prompt == nil {
		prompt = func(t types.Subtask, a types.Agent) (string, *agent.PromptOptions) {
			return t.Description, &agent.PromptOptions{Title: t.ID, Agent: a.Role}
		}
	}
	return &Executor{client: client, prompt: prompt}
}

var _ execifc.Executor = (*Executor)(nil)

// Execute sends subtask's prompt to the backend and reports its text
// result as the outcome's ResultData.
func (e *Executor) Execute(ctx context.Context, subtask types.Subtask, a types.Agent, rec execifc.Recorder) (execifc.TaskOutcome, error) {
	startedAt := time.Now()
	prompt, opts := e.prompt(subtask, a)

	rec.Record(undo.Action{
		Description:      fmt.Sprintf("prompted coding agent for task %s", subtask.ID),
		HumanDescription: fmt.Sprintf("task %q delegated to backend agent %q", subtask.ID, a.Role),
		Risk:             undo.RiskLow,
	})

	result, err := e.client.ExecutePrompt(ctx, prompt, opts)
	outcome := execifc.TaskOutcome{
		TaskID:      subtask.ID,
		AgentID:     a.ID,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
	if err != nil {
		outcome.Status = types.TaskFailed
		outcome.Err = fmt.Errorf("llm execution failed: %w", err)
		return outcome, outcome.Err
	}

	outcome.Status = types.TaskCompleted
	outcome.ResultData = map[string]any{
		"session_id": result.SessionID,
		"message_id": result.MessageID,
		"text":       result.GetText(),
	}
	return outcome, nil
}
