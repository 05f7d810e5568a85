// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package recovery is the decision machine for failed task execution
// (component C8): strategy selection, retry backed by a per-(agent,task)
// circuit breaker, fallback-agent reassignment via the registry, and
// graceful degradation via partial-completion accounting.
package recovery

import (
	"sync"

	"coordkernel/pkg/clock"
	"coordkernel/pkg/errdetect"
	"coordkernel/pkg/registry"
	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

// Strategy is the recovery action chosen for a given error.
type Strategy string

const (
	StrategyRetry         Strategy = "retry"
	StrategyFallbackAgent Strategy = "fallback_agent"
	StrategyDegrade       Strategy = "degrade"
	StrategyNone          Strategy = "none"
)

// Result is the outcome of applying a recovery strategy.
type Result struct {
	Strategy        Strategy
	Success         bool
	ShouldRetry     bool
	RetryCount      int
	Delay           int64 // nanoseconds; 0 when not applicable
	CircuitBlocked  bool
	FallbackAgentID string
	PartialResult   *PartialResult
}

// Engine selects and applies recovery strategies for failed subtasks.
type Engine struct {
	mu              sync.Mutex
	clock           clock.Clock
	defaultStrategy Strategy
	defaultPolicy   RetryPolicy
	breakers        *BreakerRegistry
	attemptCounts   map[string]int // keyed by "agentID:taskID"
	history         map[string][]Result
}

// NewEngine creates an Engine with the default strategy (retry) and
// default retry policy.
func NewEngine(c clock.Clock) *Engine {
	return &Engine{
		clock:           c,
		defaultStrategy: StrategyRetry,
		defaultPolicy:   DefaultRetryPolicy(),
		breakers:        NewBreakerRegistry(c),
		attemptCounts:   make(map[string]int),
		history:         make(map[string][]Result),
	}
}

// WithDefaultPolicy overrides the engine's fallback retry policy.
func (e *Engine) WithDefaultPolicy(p RetryPolicy) *Engine {
	e.defaultPolicy = p
	return e
}

// SelectStrategy picks a recovery strategy from an error's kind and
// severity.
func (e *Engine) SelectStrategy(err errdetect.ErrorContext) Strategy {
	if err.Severity == errdetect.SeverityCritical {
		return StrategyNone
	}
	switch err.Kind {
	case errdetect.KindTimeout:
		return StrategyRetry
	case errdetect.KindInvalidOutput, errdetect.KindCrash:
		return StrategyFallbackAgent
	case errdetect.KindPartialCompletion:
		return StrategyDegrade
	default:
		return e.defaultStrategy
	}
}

func attemptKey(agentID, taskID string) string {
	return agentID + ":" + taskID
}

// ApplyRetry consults the breaker for (agentID, taskID) and, if allowed,
// advances the attempt counter per policy.
func (e *Engine) ApplyRetry(err errdetect.ErrorContext, agentID, taskID string, policy *RetryPolicy) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.defaultPolicy
	if policy != nil {
		p = *policy
	}

	now := e.clock.Now()
	breaker := e.breakers.Get(agentID, taskID)
	result := Result{Strategy: StrategyRetry}

	if !breaker.AllowRequest(now) {
		result.CircuitBlocked = true
		result.ShouldRetry = false
		return e.recordResult(taskID, result)
	}

	key := attemptKey(agentID, taskID)
	current := e.attemptCounts[key]

	if current < p.MaxAttempts && err.Severity != errdetect.SeverityCritical {
		result.ShouldRetry = true
		result.RetryCount = current + 1
		result.Delay = int64(p.Delay(current))
		e.attemptCounts[key] = current + 1
	} else {
		result.ShouldRetry = false
	}

	return e.recordResult(taskID, result)
}

// RecordOutcome feeds a retry's eventual success or failure back into the
// breaker so that subsequent ApplyRetry calls see updated state.
func (e *Engine) RecordOutcome(agentID, taskID string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	breaker := e.breakers.Get(agentID, taskID)
	if success {
		breaker.RecordSuccess()
		delete(e.attemptCounts, attemptKey(agentID, taskID))
	} else {
		breaker.RecordFailure(e.clock.Now())
	}
}

// BreakerState returns the current circuit state for (agentID, taskID).
func (e *Engine) BreakerState(agentID, taskID string) CircuitState {
	return e.breakers.Get(agentID, taskID).State()
}

// ResetBreaker restores a breaker to closed state, for operator use.
func (e *Engine) ResetBreaker(agentID, taskID string) {
	e.breakers.ResetBreaker(agentID, taskID)
}

// ApplyFallback asks reg for a capable agent excluding failedAgentID.
func (e *Engine) ApplyFallback(reg *registry.Registry, failedAgentID string, requiredCapabilities types.StringSet) Result {
	result := Result{Strategy: StrategyFallbackAgent}
	candidates := reg.FindCapable(requiredCapabilities, failedAgentID, true)
	if len(candidates) == 0 {
		result.Success = false
		return result
	}
	result.Success = true
	result.FallbackAgentID = candidates[0].ID
	return result
}

// ApplyDegrade computes a PartialResult over graph and accepts it against
// minThreshold (pass 0 for the default of 0.5).
func (e *Engine) ApplyDegrade(graph *taskgraph.Graph, minThreshold float64) Result {
	pr := ComputePartialResult(graph)
	result := Result{Strategy: StrategyDegrade, PartialResult: &pr}
	result.Success = pr.IsAcceptable(minThreshold)
	return result
}

// ApplyNone returns a terminal, unrecovered result — the error should be
// escalated upstream.
func (e *Engine) ApplyNone() Result {
	return Result{Strategy: StrategyNone, Success: false}
}

func (e *Engine) recordResult(taskID string, r Result) Result {
	e.history[taskID] = append(e.history[taskID], r)
	return r
}

// History returns the recorded recovery results for a task, in
// application order.
func (e *Engine) History(taskID string) []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Result, len(e.history[taskID]))
	copy(out, e.history[taskID])
	return out
}
