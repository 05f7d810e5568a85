// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package scheduler is the top-level driver (component C9): it asks the
// resolver for ready work, dispatches it across available agents up to a
// concurrency cap, waits for first-completion, classifies outcomes via
// the error detector, and invokes the recovery engine on failure. One
// scheduler instance is created per execution.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"coordkernel/internal/policy"
	"coordkernel/pkg/clock"
	"coordkernel/pkg/errdetect"
	"coordkernel/pkg/execifc"
	"coordkernel/pkg/handoff"
	"coordkernel/pkg/monitor"
	"coordkernel/pkg/recovery"
	"coordkernel/pkg/registry"
	"coordkernel/pkg/resolver"
	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
	"coordkernel/pkg/undo"
)

// executeTaskAction is the stable Action.Name the scheduler presents to
// the authorizer before dispatching any subtask. Operators configure an
// internal/policy.AllowDenyList (or their own Authorizer) against this
// name, not against individual task ids.
const executeTaskAction = "execute_task"

// Config tunes one scheduler run.
type Config struct {
	MaxConcurrent   int
	PerTaskTimeout  time.Duration // 0 disables per-task deadlines
	ContinueOnError bool
	RetryPolicy     recovery.RetryPolicy
	MinDegradeRatio float64 // 0 uses recovery.DefaultMinAcceptableCompletion

	// Authorizer gates every dispatch; defaults to policy.NoOp{} (allow
	// everything) when left nil.
	Authorizer execifc.Authorizer

	// ValidationRules run against a successful task's ResultData before
	// it is accepted as completed; any rule's failure is reclassified as
	// an errdetect validation failure and routed through recovery like
	// any other error.
	ValidationRules []execifc.ValidationRule
}

// Metrics are the running counters the scheduler keeps across a run.
type Metrics struct {
	TotalTasks            int
	CompletedCount        int
	FailedCount           int
	SkippedCount          int
	MaxConcurrentObserved int
	WallTime              time.Duration
	TaskDurations         map[string]time.Duration
	Efficiency            float64
}

// InvariantViolationError is raised when the main loop cannot make
// progress despite pending work remaining — it should never occur if the
// resolver is correct.
type InvariantViolationError struct {
	Pending []string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("scheduler stalled with %d pending subtasks and no ready or running work", len(e.Pending))
}

// NoCapableAgentError describes a subtask for which the registry has no
// capable agent. Run itself never returns it: such a subtask stays pending
// and, when nothing else can make progress, Run ends with
// InvariantViolationError.
type NoCapableAgentError struct {
	TaskID string
}

func (e *NoCapableAgentError) Error() string {
	return fmt.Sprintf("no capable agent available for task %s", e.TaskID)
}

type handle struct {
	agentID     string
	cancel      context.CancelFunc
	startedAt   time.Time
	subtask     types.Subtask
	hasDeadline bool
	handoffID   string // non-empty when this dispatch is a fallback-agent handoff recipient
}

type completion struct {
	taskID    string
	agentID   string
	outcome   execifc.TaskOutcome
	err       error
	panicked  any
	timedOut  bool
	cancelled bool
}

// Scheduler drives one execution of a frozen task graph.
type Scheduler struct {
	graph    *taskgraph.Graph
	resolver *resolver.Resolver
	registry *registry.Registry
	monitor  *monitor.Monitor
	detector *errdetect.Detector
	chain    *undo.Chain
	recovery *recovery.Engine
	handoff  *handoff.Manager
	executor execifc.Executor
	clock    clock.Clock
	cfg      Config
}

// New creates a Scheduler for a frozen graph, wiring the supporting
// components. Callers share one monitor/registry/detector/chain/recovery/
// handoff manager across schedulers operating within the same process if
// desired. cfg.Authorizer defaults to policy.NoOp{} when left nil.
func New(
	graph *taskgraph.Graph,
	reg *registry.Registry,
	mon *monitor.Monitor,
	det *errdetect.Detector,
	chain *undo.Chain,
	rec *recovery.Engine,
	ho *handoff.Manager,
	executor execifc.Executor,
	c clock.Clock,
	cfg Config,
) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = len(reg.List())
		if cfg.MaxConcurrent <= 0 {
			cfg.MaxConcurrent = 1
		}
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = policy.NoOp{}
	}
	return &Scheduler{
		graph:    graph,
		resolver: resolver.New(graph),
		registry: reg,
		monitor:  mon,
		detector: det,
		chain:    chain,
		recovery: rec,
		handoff:  ho,
		executor: executor,
		clock:    c,
		cfg:      cfg,
	}
}

type chainRecorder struct {
	chain *undo.Chain
}

func (r chainRecorder) Record(a undo.Action) {
	r.chain.Record(a)
}

// Run executes the main loop until every subtask is completed or failed,
// or an invariant violation is detected. When ContinueOnError is false,
// the first failure cancels the running tasks, ends the loop and is
// returned as an error.
func (s *Scheduler) Run(ctx context.Context) (*Metrics, error) {
	allIDs := s.graph.AllIDs()
	metrics := &Metrics{
		TotalTasks:    len(allIDs),
		TaskDurations: make(map[string]time.Duration),
	}

	runCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	completed := types.StringSet{}
	failed := types.StringSet{}
	running := make(map[string]*handle)
	agentOverride := make(map[string]string)
	pendingHandoffs := make(map[string]string) // taskID -> handoff id, set on fallback reassignment

	completionCh := make(chan completion, len(allIDs)*2+8)
	retryCh := make(chan string, len(allIDs)+8)
	pendingRetries := 0
	var runErr error
	start := s.clock.Now()

	for len(completed)+len(failed) < len(allIDs) {
		ready := filterRunning(s.resolver.Ready(completed), running)

		for len(running) < s.cfg.MaxConcurrent && len(ready) > 0 {
			t := ready[0]
			ready = ready[1:]

			agentID, ok := s.pickAgent(t, agentOverride[t.ID])
			if !ok {
				continue
			}

			candidate, _ := s.registry.Get(agentID)
			decision := s.cfg.Authorizer.Authorize(ctx, execifc.Action{
				Name:     executeTaskAction,
				TaskID:   t.ID,
				AgentID:  agentID,
				Metadata: map[string]any{"required_capabilities": t.RequiredCapabilities.Sorted()},
			}, candidate)
			if !decision.Allowed {
				if err := s.graph.SetStatus(t.ID, types.TaskFailed); err != nil {
					return metrics, err
				}
				failed.Add(t.ID)
				metrics.FailedCount++
				continue
			}

			if err := s.registry.Assign(agentID, t.ID); err != nil {
				continue
			}
			if err := s.registry.SetStatus(agentID, types.AgentWorking); err != nil {
				return metrics, err
			}

			s.monitor.UpdateStatus(ctx, agentID, types.AgentWorking)
			s.monitor.SetCurrentTask(agentID, t.ID)
			if err := s.graph.SetStatus(t.ID, types.TaskInProgress); err != nil {
				return metrics, err
			}
			if err := s.graph.SetAssignedAgent(t.ID, agentID); err != nil {
				return metrics, err
			}

			var handoffID string
			if hid, pending := pendingHandoffs[t.ID]; pending {
				delete(pendingHandoffs, t.ID)
				if _, err := s.handoff.Receive(hid, agentID); err == nil {
					handoffID = hid
				}
			}

			taskCtx, cancel, hasDeadline := s.taskContext(runCtx)
			h := &handle{agentID: agentID, cancel: cancel, startedAt: s.clock.Now(), subtask: t, hasDeadline: hasDeadline, handoffID: handoffID}
			running[t.ID] = h
			if len(running) > metrics.MaxConcurrentObserved {
				metrics.MaxConcurrentObserved = len(running)
			}

			agent, _ := s.registry.Get(agentID)
			go s.runOne(taskCtx, t, agent, completionCh)
		}

		if len(running) == 0 && pendingRetries == 0 {
			pendingIDs := pendingSet(allIDs, completed, failed)
			if len(pendingIDs) == 0 {
				break
			}
			skippable := s.resolver.Skippable(failed)
			if len(skippable) == 0 {
				return metrics, &InvariantViolationError{Pending: pendingIDs}
			}
			for _, id := range skippable {
				if err := s.graph.SetStatus(id, types.TaskFailed); err != nil {
					return metrics, err
				}
				failed.Add(id)
				metrics.FailedCount++
				metrics.SkippedCount++
			}
			continue
		}

		var fin completion
		select {
		case retryTaskID := <-retryCh:
			pendingRetries--
			if err := s.graph.SetStatus(retryTaskID, types.TaskPending); err != nil {
				return metrics, err
			}
			continue
		case fin = <-completionCh:
		}

		h, ok := running[fin.taskID]
		if !ok {
			// Late-delivered outcome from an already-finalized task.
			continue
		}
		delete(running, fin.taskID)
		h.cancel()

		if err := s.registry.Release(h.agentID, fin.taskID); err != nil {
			return metrics, err
		}
		if err := s.registry.SetStatus(h.agentID, types.AgentIdle); err != nil {
			return metrics, err
		}
		s.monitor.UpdateStatus(ctx, h.agentID, types.AgentIdle)
		metrics.TaskDurations[fin.taskID] = s.clock.Now().Sub(h.startedAt)

		if fin.cancelled {
			if err := s.graph.SetStatus(fin.taskID, types.TaskCancelled); err != nil {
				return metrics, err
			}
			continue
		}

		success, errCtx := s.classify(fin, h)
		if success {
			s.recovery.RecordOutcome(h.agentID, fin.taskID, true)
			if h.handoffID != "" {
				_ = s.handoff.Acknowledge(h.handoffID, h.agentID)
			}
			if err := s.graph.SetStatus(fin.taskID, types.TaskCompleted); err != nil {
				return metrics, err
			}
			completed.Add(fin.taskID)
			metrics.CompletedCount++
			delete(agentOverride, fin.taskID)
			continue
		}

		autoRollback := errCtx != nil && s.chain.ShouldAutoRollback(*errCtx)
		if !s.cfg.ContinueOnError || autoRollback {
			for _, rh := range running {
				rh.cancel()
			}
			if err := s.graph.SetStatus(fin.taskID, types.TaskFailed); err != nil {
				return metrics, err
			}
			failed.Add(fin.taskID)
			metrics.FailedCount++
			s.drainCancelled(running, completionCh)
			if !s.cfg.ContinueOnError {
				runErr = fmt.Errorf("task %s failed: run aborted", fin.taskID)
			}
			break
		}

		retryScheduled, err := s.recoverFailure(runCtx, retryCh, fin, h, errCtx, completed, failed, agentOverride, pendingHandoffs, metrics)
		if err != nil {
			return metrics, err
		}
		if retryScheduled {
			pendingRetries++
		}
	}

	metrics.WallTime = s.clock.Now().Sub(start)
	var totalWork time.Duration
	for _, d := range metrics.TaskDurations {
		totalWork += d
	}
	if metrics.WallTime > 0 {
		metrics.Efficiency = float64(totalWork) / float64(metrics.WallTime)
	}
	return metrics, runErr
}

// pickAgent resolves the agent to dispatch a ready task to: the recovery
// engine's fallback override if one was chosen for this task, else the
// highest-scored capable idle agent from the registry.
func (s *Scheduler) pickAgent(t types.Subtask, override string) (string, bool) {
	if override != "" {
		if a, ok := s.registry.Get(override); ok && a.Status == types.AgentIdle {
			return override, true
		}
	}
	candidates := s.registry.FindCapable(t.RequiredCapabilities, "", true)
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[0].ID, true
}

func (s *Scheduler) taskContext(parent context.Context) (context.Context, context.CancelFunc, bool) {
	if s.cfg.PerTaskTimeout > 0 {
		ctx, cancel := context.WithTimeout(parent, s.cfg.PerTaskTimeout)
		return ctx, cancel, true
	}
	ctx, cancel := context.WithCancel(parent)
	return ctx, cancel, false
}

func (s *Scheduler) runOne(ctx context.Context, subtask types.Subtask, agent types.Agent, out chan<- completion) {
	defer func() {
		if r := recover(); r != nil {
			out <- completion{taskID: subtask.ID, agentID: agent.ID, panicked: r}
		}
	}()
	rec := chainRecorder{chain: s.chain}
	outcome, err := s.executor.Execute(ctx, subtask, agent, rec)

	out <- completion{
		taskID:    subtask.ID,
		agentID:   agent.ID,
		outcome:   outcome,
		err:       err,
		timedOut:  err != nil && ctx.Err() == context.DeadlineExceeded,
		cancelled: err != nil && ctx.Err() == context.Canceled,
	}
}

// classify turns a completion into a success/failure verdict plus the
// ErrorContext recorded for a failure, using the error detector.
func (s *Scheduler) classify(fin completion, h *handle) (bool, *errdetect.ErrorContext) {
	if fin.panicked != nil {
		ctx := s.detector.Crash(fin.agentID, fin.taskID, fmt.Sprintf("%v", fin.panicked), "")
		return false, &ctx
	}

	if fin.err != nil {
		if fin.timedOut {
			ctx := s.detector.Timeout(fin.agentID, fin.taskID, s.clock.Now().Sub(h.startedAt), s.cfg.PerTaskTimeout)
			return false, &ctx
		}
		ctx := s.detector.InvalidOutput(fin.agentID, fin.taskID, fin.err.Error(), nil)
		return false, &ctx
	}

	if fin.outcome.Status == types.TaskFailed {
		ctx := s.detector.InvalidOutput(fin.agentID, fin.taskID, "executor reported failure", nil)
		return false, &ctx
	}

	for _, rule := range s.cfg.ValidationRules {
		if rule.Validate == nil || rule.Validate(fin.outcome.ResultData) {
			continue
		}
		ctx := s.detector.ValidationFailure(fin.agentID, fin.taskID, rule.Description, errdetect.Severity(rule.Severity))
		return false, &ctx
	}

	return true, nil
}

// recoverFailure applies the chosen recovery strategy for a failed
// completion. It reports whether a retry was scheduled (asynchronously,
// via retryCh) so the caller can track in-flight retries.
func (s *Scheduler) recoverFailure(
	runCtx context.Context,
	retryCh chan<- string,
	fin completion,
	h *handle,
	errCtx *errdetect.ErrorContext,
	completed, failed types.StringSet,
	agentOverride map[string]string,
	pendingHandoffs map[string]string,
	metrics *Metrics,
) (bool, error) {
	var ec errdetect.ErrorContext
	if errCtx != nil {
		ec = *errCtx
	}
	strategy := s.recovery.SelectStrategy(ec)

	switch strategy {
	case recovery.StrategyRetry:
		policy := s.cfg.RetryPolicy
		result := s.recovery.ApplyRetry(ec, h.agentID, fin.taskID, &policy)
		s.recovery.RecordOutcome(h.agentID, fin.taskID, false)
		if result.ShouldRetry {
			if err := s.graph.SetStatus(fin.taskID, types.TaskBlocked); err != nil {
				return false, err
			}
			s.scheduleRetry(runCtx, retryCh, fin.taskID, result.Delay)
			return true, nil
		}
		failed.Add(fin.taskID)
		metrics.FailedCount++
		return false, s.graph.SetStatus(fin.taskID, types.TaskFailed)

	case recovery.StrategyFallbackAgent:
		result := s.recovery.ApplyFallback(s.registry, h.agentID, h.subtask.RequiredCapabilities)
		if result.Success {
			agentOverride[fin.taskID] = result.FallbackAgentID
			pendingHandoffs[fin.taskID] = s.handoff.Initiate(h.agentID, result.FallbackAgentID, fin.taskID, map[string]any{
				"previous_agent": h.agentID,
				"error":          ec.Message,
				"result_data":    fin.outcome.ResultData,
			})
			return false, s.graph.SetStatus(fin.taskID, types.TaskPending)
		}
		failed.Add(fin.taskID)
		metrics.FailedCount++
		return false, s.graph.SetStatus(fin.taskID, types.TaskFailed)

	case recovery.StrategyDegrade:
		result := s.recovery.ApplyDegrade(s.graph, s.cfg.MinDegradeRatio)
		if result.Success {
			completed.Add(fin.taskID)
			metrics.CompletedCount++
			return false, s.graph.SetStatus(fin.taskID, types.TaskCompleted)
		}
		failed.Add(fin.taskID)
		metrics.FailedCount++
		return false, s.graph.SetStatus(fin.taskID, types.TaskFailed)

	default: // StrategyNone
		failed.Add(fin.taskID)
		metrics.FailedCount++
		return false, s.graph.SetStatus(fin.taskID, types.TaskFailed)
	}
}

// scheduleRetry arranges for taskID to re-enter the ready set after its
// backoff delay elapses, without blocking the dispatch loop. It runs on
// its own goroutine and is cancelled by runCtx like any other in-flight
// work.
func (s *Scheduler) scheduleRetry(runCtx context.Context, retryCh chan<- string, taskID string, delayNanos int64) {
	go func() {
		if delayNanos > 0 {
			timer := time.NewTimer(time.Duration(delayNanos))
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-runCtx.Done():
				return
			}
		}
		select {
		case retryCh <- taskID:
		case <-runCtx.Done():
		}
	}()
}

// drainCancelled waits on the remaining running handles and records them
// as cancelled, tolerating late or out-of-order delivery.
func (s *Scheduler) drainCancelled(running map[string]*handle, completionCh chan completion) {
	pending := len(running)
	for pending > 0 {
		fin := <-completionCh
		if _, ok := running[fin.taskID]; !ok {
			continue
		}
		delete(running, fin.taskID)
		pending--
		_ = s.graph.SetStatus(fin.taskID, types.TaskCancelled)
	}
}

func filterRunning(ready []types.Subtask, running map[string]*handle) []types.Subtask {
	out := make([]types.Subtask, 0, len(ready))
	for _, t := range ready {
		if _, busy := running[t.ID]; !busy {
			out = append(out, t)
		}
	}
	return out
}

func pendingSet(allIDs []string, completed, failed types.StringSet) []string {
	out := make([]string, 0)
	for _, id := range allIDs {
		if !completed.Has(id) && !failed.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
