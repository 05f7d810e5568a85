// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package containerexec runs a subtask inside a throwaway Docker
// container, for subtasks whose required capabilities include
// "sandboxed". One container per subtask attempt; always removed on
// return, success or failure.
package containerexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"coordkernel/pkg/execifc"
	"coordkernel/pkg/types"
	"coordkernel/pkg/undo"
)

const stopTimeout = 10 * time.Second

// CommandFunc extracts the argv to run inside the container for a
// subtask.
type CommandFunc func(subtask types.Subtask) []string

// Executor runs subtasks inside a fresh container per attempt.
type Executor struct {
	cli     *client.Client
	image   string
	command CommandFunc
}

// New creates a containerexec.Executor bound to image, using cli for all
// Docker API calls. If command is nil, the subtask's Description is split
// on nothing and run via "sh -c".
func New(cli *client.Client, image string, command CommandFunc) *Executor {
	if command == nil {
		command = func(t types.Subtask) []string { return []string{"sh", "-c", t.Description} }
	}
	return &Executor{cli: cli, image: image, command: command}
}

var _ execifc.Executor = (*Executor)(nil)

// Execute creates, starts, waits for, and tears down one container for
// subtask.
func (e *Executor) Execute(ctx context.Context, subtask types.Subtask, agent types.Agent, rec execifc.Recorder) (execifc.TaskOutcome, error) {
	startedAt := time.Now()
	argv := e.command(subtask)

	created, err := e.cli.ContainerCreate(ctx, &container.Config{
		Image: e.image,
		Cmd:   argv,
		Tty:   false,
	}, nil, nil, nil, "")
	if err != nil {
		return e.fail(subtask, agent, startedAt, fmt.Errorf("failed to create container: %w", err))
	}

	rec.Record(undo.Action{
		Description:      fmt.Sprintf("started container %s for task %s", created.ID, subtask.ID),
		ReverseCommand:   "docker rm -f " + created.ID,
		HumanDescription: fmt.Sprintf("task %q ran inside container %s", subtask.ID, created.ID),
		Risk:             undo.RiskMedium,
	})
	defer e.cleanup(created.ID)

	if err := e.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return e.fail(subtask, agent, startedAt, fmt.Errorf("failed to start container: %w", err))
	}

	statusCh, errCh := e.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return e.fail(subtask, agent, startedAt, fmt.Errorf("failed waiting for container: %w", err))
		}
	case status := <-statusCh:
		logs, _ := e.logs(ctx, created.ID)
		outcome := execifc.TaskOutcome{
			TaskID:      subtask.ID,
			AgentID:     agent.ID,
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
			ResultData:  map[string]any{"logs": logs, "exit_code": status.StatusCode},
		}
		if status.StatusCode != 0 {
			outcome.Status = types.TaskFailed
			outcome.Err = fmt.Errorf("container exited with status %d", status.StatusCode)
			return outcome, outcome.Err
		}
		outcome.Status = types.TaskCompleted
		return outcome, nil
	case <-ctx.Done():
		return e.fail(subtask, agent, startedAt, ctx.Err())
	}

	return e.fail(subtask, agent, startedAt, fmt.Errorf("container wait returned no result"))
}

func (e *Executor) logs(ctx context.Context, containerID string) (string, error) {
	reader, err := e.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer reader.Close()
	var buf bytes.Buffer
	_, err = io.Copy(&buf, reader)
	return buf.String(), err
}

func (e *Executor) cleanup(containerID string) {
	timeout := int(stopTimeout.Seconds())
	ctx := context.Background()
	_ = e.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	_ = e.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

func (e *Executor) fail(subtask types.Subtask, agent types.Agent, startedAt time.Time, err error) (execifc.TaskOutcome, error) {
	return execifc.TaskOutcome{
		TaskID:      subtask.ID,
		AgentID:     agent.ID,
		Status:      types.TaskFailed,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		Err:         err,
	}, err
}
