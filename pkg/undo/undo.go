// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package undo implements the bounded undo chain (component C6): a
// per-execution log of recorded actions and their reverse commands, plus
// the auto-rollback trigger policy and a LIFO rollback-plan serializer.
// The chain never executes reverse commands itself; it hands a plan to a
// collaborator.
package undo

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"coordkernel/pkg/clock"
	"coordkernel/pkg/errdetect"
)

// RiskLevel is the blast-radius classification of an undo action.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// DefaultChainDepth bounds the number of actions retained per chain.
const DefaultChainDepth = 100

// Action is one recorded, reversible unit of work.
type Action struct {
	Description      string
	ReverseCommand   string
	HumanDescription string
	Risk             RiskLevel
	FilesAffected    []string
	Timestamp        time.Time
}

// PlanEntry is one line of a serialized rollback plan.
type PlanEntry struct {
	Index            int
	Action           string
	HumanDescription string
	ReverseCommand   string
	Risk             RiskLevel
	FilesAffected    []string
}

// Chain is a bounded, append-only (until rollback) log of undo actions
// for a single execution. Oldest entries are evicted once the bound is
// exceeded.
type Chain struct {
	mu       sync.Mutex
	clock    clock.Clock
	maxDepth int
	actions  []Action
}

// New creates a Chain with the default depth bound, using c to stamp
// recorded actions.
func New(c clock.Clock) *Chain {
	return &Chain{clock: c, maxDepth: DefaultChainDepth}
}

// WithMaxDepth overrides the chain's depth bound.
func (c *Chain) WithMaxDepth(n int) *Chain {
	c.maxDepth = n
	return c
}

// Record appends an action, timestamping it with the chain's clock and
// evicting the oldest entry if the chain is at capacity.
func (c *Chain) Record(a Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a.Timestamp = c.clock.Now()
	c.actions = append(c.actions, a)
	if len(c.actions) > c.maxDepth {
		c.actions = c.actions[len(c.actions)-c.maxDepth:]
	}
}

// Last returns the most recently recorded action.
func (c *Chain) Last() (Action, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.actions) == 0 {
		return Action{}, false
	}
	return c.actions[len(c.actions)-1], true
}

// Depth returns the number of actions currently tracked.
func (c *Chain) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actions)
}

// IsEmpty reports whether the chain has no tracked actions.
func (c *Chain) IsEmpty() bool {
	return c.Depth() == 0
}

// CanRollbackSteps reports whether at least n actions are available to
// roll back.
func (c *Chain) CanRollbackSteps(n int) bool {
	return c.Depth() >= n
}

// RollbackPlan serializes tracked actions in reverse-insertion order —
// newest first — as the order a caller should apply reverse commands in
// to restore pre-chain state.
func (c *Chain) RollbackPlan() []PlanEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	plan := make([]PlanEntry, len(c.actions))
	for i, a := range c.actions {
		// Reverse index: the last recorded action gets plan index 0.
		plan[len(c.actions)-1-i] = PlanEntry{
			Index:            len(c.actions) - 1 - i,
			Action:           a.Description,
			HumanDescription: a.HumanDescription,
			ReverseCommand:   a.ReverseCommand,
			Risk:             a.Risk,
			FilesAffected:    a.FilesAffected,
		}
	}
	return plan
}

// RenderRollbackPlan formats a rollback plan as a human-readable,
// multi-line description for a CLI to print on graph-level failure,
// alongside the structured PlanEntry tuples callers apply programmatically.
func RenderRollbackPlan(plan []PlanEntry) string {
	if len(plan) == 0 {
		return "rollback plan is empty: nothing to undo"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "rollback plan (%d step(s), apply in order):\n", len(plan))
	for _, e := range plan {
		desc := e.HumanDescription
		if desc == "" {
			desc = e.Action
		}
		fmt.Fprintf(&b, "  %d. [%s risk] %s\n", e.Index, e.Risk, desc)
		if e.ReverseCommand != "" {
			fmt.Fprintf(&b, "       reverse: %s\n", e.ReverseCommand)
		}
		if len(e.FilesAffected) > 0 {
			fmt.Fprintf(&b, "       files: %s\n", strings.Join(e.FilesAffected, ", "))
		}
	}
	return b.String()
}

// ShouldAutoRollback implements the auto-rollback trigger policy: rollback
// is triggered if err.Severity is high or critical, or if err.Severity is
// medium and the most recently recorded action's risk is high or critical.
func (c *Chain) ShouldAutoRollback(err errdetect.ErrorContext) bool {
	switch err.Severity {
	case errdetect.SeverityHigh, errdetect.SeverityCritical:
		return true
	case errdetect.SeverityMedium:
		last, ok := c.Last()
		if !ok {
			return false
		}
		return last.Risk == RiskHigh || last.Risk == RiskCritical
	default:
		return false
	}
}
