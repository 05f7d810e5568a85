// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package errdetect classifies execution outcomes into a small taxonomy
// of error kinds with severities (component C7): crash, timeout,
// invalid-output, partial-completion, and validation-failure. Detectors
// are pure classifiers; they never attempt recovery themselves. Each
// detection is appended to a bounded per-detector history ring.
package errdetect

import (
	"sync"
	"time"

	"coordkernel/pkg/clock"
)

// Kind identifies the category of a detected error.
type Kind string

const (
	KindCrash             Kind = "crash"
	KindTimeout           Kind = "timeout"
	KindInvalidOutput     Kind = "invalid_output"
	KindPartialCompletion Kind = "partial_completion"
	KindValidationFailure Kind = "validation_failure"
)

// Severity ranks how serious a detected error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorContext is an immutable record of one detected error.
type ErrorContext struct {
	Kind      Kind
	Severity  Severity
	Message   string
	AgentID   string
	TaskID    string
	Timestamp time.Time
	Stack     string
	Metadata  map[string]any
}

// DefaultHistoryLimit bounds the per-detector ring of ErrorContexts.
const DefaultHistoryLimit = 100

// Detector classifies outcomes and retains a bounded history of the
// contexts it has produced.
type Detector struct {
	mu           sync.Mutex
	clock        clock.Clock
	historyLimit int
	history      []ErrorContext
}

// New creates a Detector using c to stamp detections.
func New(c clock.Clock) *Detector {
	return &Detector{clock: c, historyLimit: DefaultHistoryLimit}
}

// WithHistoryLimit overrides the history bound.
func (d *Detector) WithHistoryLimit(n int) *Detector {
	d.historyLimit = n
	return d
}

func (d *Detector) record(ctx ErrorContext) ErrorContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx.Timestamp = d.clock.Now()
	d.history = append(d.history, ctx)
	if len(d.history) > d.historyLimit {
		d.history = d.history[len(d.history)-d.historyLimit:]
	}
	return ctx
}

// History returns a copy of the retained detection history, oldest first.
func (d *Detector) History() []ErrorContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ErrorContext, len(d.history))
	copy(out, d.history)
	return out
}

// Crash classifies a panic/wrapped-error outcome: always critical.
func (d *Detector) Crash(agentID, taskID, message, stack string) ErrorContext {
	return d.record(ErrorContext{
		Kind:     KindCrash,
		Severity: SeverityCritical,
		Message:  message,
		AgentID:  agentID,
		TaskID:   taskID,
		Stack:    stack,
	})
}

// Timeout classifies a deadline-exceeded outcome: always high severity.
func (d *Detector) Timeout(agentID, taskID string, elapsed, deadline time.Duration) ErrorContext {
	return d.record(ErrorContext{
		Kind:     KindTimeout,
		Severity: SeverityHigh,
		Message:  "execution exceeded deadline",
		AgentID:  agentID,
		TaskID:   taskID,
		Metadata: map[string]any{
			"elapsed_seconds":  elapsed.Seconds(),
			"deadline_seconds": deadline.Seconds(),
		},
	})
}

// RequiredFieldsSchema describes the minimal shape an output must satisfy.
type RequiredFieldsSchema struct {
	RequiredFields []string
}

// Validate reports whether value (interpreted as a field-presence map)
// satisfies the schema's required fields.
func (s RequiredFieldsSchema) Validate(value map[string]any) bool {
	for _, f := range s.RequiredFields {
		if _, ok := value[f]; !ok {
			return false
		}
	}
	return true
}

// InvalidOutput classifies a schema/type-check failure: always medium
// severity.
func (d *Detector) InvalidOutput(agentID, taskID, message string, missingFields []string) ErrorContext {
	return d.record(ErrorContext{
		Kind:     KindInvalidOutput,
		Severity: SeverityMedium,
		Message:  message,
		AgentID:  agentID,
		TaskID:   taskID,
		Metadata: map[string]any{"missing_fields": missingFields},
	})
}

// PartialCompletion classifies a short-of-target outcome: medium severity
// with completion_rate recorded in metadata.
func (d *Detector) PartialCompletion(agentID, taskID string, completedItems, requiredItems int) ErrorContext {
	rate := 0.0
	if requiredItems > 0 {
		rate = float64(completedItems) / float64(requiredItems)
	}
	return d.record(ErrorContext{
		Kind:     KindPartialCompletion,
		Severity: SeverityMedium,
		Message:  "fewer items completed than required",
		AgentID:  agentID,
		TaskID:   taskID,
		Metadata: map[string]any{
			"completed_items": completedItems,
			"required_items":  requiredItems,
			"completion_rate": rate,
		},
	})
}

// ValidationRule is a user-supplied predicate over an outcome value. It
// may itself panic; callers should recover and route the panic into
// ValidationFailure with SeverityCritical.
type ValidationRule func(value any) (bool, error)

// ValidationFailure classifies a user rule returning false or raising.
// declaredSeverity is the rule's own declared severity; pass
// SeverityCritical when the rule itself panicked.
func (d *Detector) ValidationFailure(agentID, taskID, message string, declaredSeverity Severity) ErrorContext {
	return d.record(ErrorContext{
		Kind:     KindValidationFailure,
		Severity: declaredSeverity,
		Message:  message,
		AgentID:  agentID,
		TaskID:   taskID,
	})
}
