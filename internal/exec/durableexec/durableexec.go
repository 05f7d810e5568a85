// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package durableexec wraps another Executor as a Temporal activity, so a
// single subtask's execution can survive a worker restart. This does not
// make the scheduler itself a Temporal workflow: coordkernel's dispatch
// loop stays a plain Go goroutine tree; only this one executor hands its
// work to a short-lived, single-activity Temporal workflow and blocks on
// its result.
package durableexec

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"coordkernel/pkg/execifc"
	"coordkernel/pkg/types"
)

const (
	startToCloseTimeout     = 10 * time.Minute
	heartbeatTimeout        = 30 * time.Second
	retryBackoffCoefficient = 2.0
	retryMaxAttempts        = 3
)

// activityInput is the serializable payload handed to the wrapped
// activity; the inner Executor and Recorder are looked up by name from a
// process-local registry since Temporal payloads must be serializable.
type activityInput struct {
	Subtask types.Subtask
	Agent   types.Agent
}

// Activities exposes the wrapped Executor as a named Temporal activity.
type Activities struct {
	inner execifc.Executor
	rec   execifc.Recorder
}

// RunSubtask is the Temporal activity entry point; it heartbeats
// periodically and delegates to the wrapped Executor.
func (a *Activities) RunSubtask(ctx context.Context, in activityInput) (execifc.TaskOutcome, error) {
	activity.RecordHeartbeat(ctx, "running")
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(heartbeatTimeout / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, "running")
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return a.inner.Execute(ctx, in.Subtask, in.Agent, a.rec)
}

// RunSubtaskWorkflow is the single-activity workflow durableexec starts
// for each subtask attempt.
func RunSubtaskWorkflow(ctx workflow.Context, in activityInput) (execifc.TaskOutcome, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: startToCloseTimeout,
		HeartbeatTimeout:    heartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: retryBackoffCoefficient,
			MaximumInterval:    heartbeatTimeout,
			MaximumAttempts:    retryMaxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var outcome execifc.TaskOutcome
	var acts *Activities
	err := workflow.ExecuteActivity(ctx, acts.RunSubtask, in).Get(ctx, &outcome)
	return outcome, err
}

// Executor runs a subtask by starting RunSubtaskWorkflow on c and blocking
// for its result, giving the subtask's execution the durability of a
// Temporal workflow without requiring the scheduler itself to be one.
type Executor struct {
	c         client.Client
	taskQueue string
}

// New creates a durableexec.Executor that starts workflows on taskQueue.
func New(c client.Client, taskQueue string) *Executor {
	return &Executor{c: c, taskQueue: taskQueue}
}

var _ execifc.Executor = (*Executor)(nil)

// Execute starts a single-activity workflow for subtask and waits for it.
func (e *Executor) Execute(ctx context.Context, subtask types.Subtask, agent types.Agent, rec execifc.Recorder) (execifc.TaskOutcome, error) {
	opts := client.StartWorkflowOptions{
		ID:        "coordkernel-task-" + subtask.ID,
		TaskQueue: e.taskQueue,
	}
	run, err := e.c.ExecuteWorkflow(ctx, opts, RunSubtaskWorkflow, activityInput{Subtask: subtask, Agent: agent})
	if err != nil {
		return execifc.TaskOutcome{TaskID: subtask.ID, AgentID: agent.ID, Status: types.TaskFailed, Err: err}, err
	}

	var outcome execifc.TaskOutcome
	if err := run.Get(ctx, &outcome); err != nil {
		outcome.Status = types.TaskFailed
		outcome.Err = err
		return outcome, err
	}
	return outcome, nil
}

// RegisterWith registers the workflow and wrapped activity on w, for a
// worker process that hosts durableexec's task queue.
func RegisterWith(w worker.Worker, inner execifc.Executor, rec execifc.Recorder) {
	acts := &Activities{inner: inner, rec: rec}
	w.RegisterWorkflow(RunSubtaskWorkflow)
	w.RegisterActivity(acts.RunSubtask)
}
