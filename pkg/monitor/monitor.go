// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package monitor tracks live agent status and resource usage
// (component C5): bounded per-agent history, stuck-agent detection, and
// OpenTelemetry spans around status transitions.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"coordkernel/internal/telemetry"
	"coordkernel/pkg/clock"
	"coordkernel/pkg/types"
)

// DefaultHistoryLimit bounds the number of status transitions retained
// per agent.
const DefaultHistoryLimit = 100

// DefaultStuckThreshold is how long an agent may remain in working or
// blocked status with no progress update before it is reported stuck.
const DefaultStuckThreshold = 120 * time.Second

// transition is one recorded status change, kept for the bounded history.
type transition struct {
	Status types.AgentStatus
	At     time.Time
}

type agentRecord struct {
	status         types.AgentStatus
	currentTask    string
	metrics        types.ResourceMetrics
	lastProgress   string
	lastUpdate     time.Time
	enteredStateAt time.Time
	lastProgressAt time.Time
	history        []transition
}

// Monitor is the concurrent-safe live status tracker.
type Monitor struct {
	mu             sync.RWMutex
	clock          clock.Clock
	agents         map[string]*agentRecord
	historyLimit   int
	stuckThreshold time.Duration
	tracerName     string
}

// New creates a Monitor using the given clock (pass clock.RealClock{} in
// production, a clock.FakeClock in tests).
func New(c clock.Clock) *Monitor {
	return &Monitor{
		clock:          c,
		agents:         make(map[string]*agentRecord),
		historyLimit:   DefaultHistoryLimit,
		stuckThreshold: DefaultStuckThreshold,
		tracerName:     "coordkernel/monitor",
	}
}

// WithHistoryLimit overrides the per-agent history bound.
func (m *Monitor) WithHistoryLimit(n int) *Monitor {
	m.historyLimit = n
	return m
}

// WithStuckThreshold overrides the stuck-detection threshold.
func (m *Monitor) WithStuckThreshold(d time.Duration) *Monitor {
	m.stuckThreshold = d
	return m
}

func (m *Monitor) recordOf(agentID string) *agentRecord {
	r, ok := m.agents[agentID]
	if !ok {
		now := m.clock.Now()
		r = &agentRecord{
			status:         types.AgentIdle,
			lastUpdate:     now,
			enteredStateAt: now,
			lastProgressAt: now,
		}
		m.agents[agentID] = r
	}
	return r
}

// UpdateStatus transitions an agent to a new status, recording the
// transition in its bounded history and emitting a span event.
func (m *Monitor) UpdateStatus(ctx context.Context, agentID string, status types.AgentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.recordOf(agentID)
	now := m.clock.Now()
	if r.status != status {
		r.history = append(r.history, transition{Status: status, At: now})
		if len(r.history) > m.historyLimit {
			r.history = r.history[len(r.history)-m.historyLimit:]
		}
		r.enteredStateAt = now
	}
	r.status = status
	r.lastUpdate = now

	telemetry.AddEvent(ctx, "agent.status_changed", telemetry.AgentAttrs(agentID, "", string(status))...)
}

// RecordResourceUsage additively accumulates resource consumption for an
// agent.
func (m *Monitor) RecordResourceUsage(agentID string, tokens, apiCalls int, memoryMB float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordOf(agentID)
	r.metrics.Add(tokens, apiCalls, memoryMB)
	r.lastUpdate = m.clock.Now()
}

// RecordProgress stores a free-text progress note and resets the
// stuck-detection clock for this agent.
func (m *Monitor) RecordProgress(agentID, note string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordOf(agentID)
	r.lastProgress = note
	now := m.clock.Now()
	r.lastUpdate = now
	r.lastProgressAt = now
}

// SetCurrentTask records which task id an agent is presently working.
func (m *Monitor) SetCurrentTask(agentID, taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordOf(agentID)
	r.currentTask = taskID
}

// GetStatus returns a point-in-time snapshot for an agent, computing
// uncommitted time-in-state on demand rather than storing it.
func (m *Monitor) GetStatus(agentID string) (types.AgentStatusSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.agents[agentID]
	if !ok {
		return types.AgentStatusSnapshot{}, false
	}
	now := m.clock.Now()
	return types.AgentStatusSnapshot{
		AgentID:         agentID,
		Status:          r.status,
		CurrentTask:     r.currentTask,
		ResourceMetrics: r.metrics,
		LastProgress:    r.lastProgressAt,
		LastUpdate:      r.lastUpdate,
		TimeSeconds:     now.Sub(r.enteredStateAt).Seconds(),
	}, true
}

// StuckAgent identifies an agent that has made no progress for at least
// the monitor's stuck threshold, along with how long it has been stuck.
type StuckAgent struct {
	AgentID      string
	SecondsStuck float64
}

// DetectStuck reports agents in working or blocked status whose time since
// their last recorded progress is at least the stuck threshold, sorted by
// agent id.
func (m *Monitor) DetectStuck() []StuckAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.clock.Now()
	stuck := make([]StuckAgent, 0)
	for id, r := range m.agents {
		if r.status != types.AgentWorking && r.status != types.AgentBlocked {
			continue
		}
		elapsed := now.Sub(r.lastProgressAt)
		if elapsed >= m.stuckThreshold {
			stuck = append(stuck, StuckAgent{AgentID: id, SecondsStuck: elapsed.Seconds()})
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i].AgentID < stuck[j].AgentID })
	return stuck
}

// History returns a copy of the bounded status-transition history for an
// agent, oldest first.
func (m *Monitor) History(agentID string) []types.AgentStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.agents[agentID]
	if !ok {
		return nil
	}
	out := make([]types.AgentStatus, len(r.history))
	for i, tr := range r.history {
		out[i] = tr.Status
	}
	return out
}

// StartSpan opens a span for an operation involving the named agent,
// wiring into the shared OpenTelemetry tracer.
func (m *Monitor) StartSpan(ctx context.Context, spanName, agentID string) (context.Context, func(err error)) {
	ctx, span := telemetry.StartSpan(ctx, m.tracerName, spanName)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
