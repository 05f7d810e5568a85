// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package handoff implements the task-handoff data model: a clean
// state transfer between two agents, guarded against the wrong
// recipient receiving it and against acting on a stale handoff.
package handoff

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"coordkernel/pkg/clock"
)

// DefaultTimeout is how long a handoff may sit unreceived before it
// expires.
const DefaultTimeout = 300 * time.Second

// Handoff is a single unit of state transfer from one agent to another
// for a given task.
type Handoff struct {
	ID             string
	FromAgent      string
	ToAgent        string
	TaskID         string
	Data           map[string]any
	CreatedAt      time.Time
	ReceivedAt     time.Time
	AcknowledgedAt time.Time
}

// IsReceived reports whether the handoff has been received.
func (h Handoff) IsReceived() bool { return !h.ReceivedAt.IsZero() }

// IsAcknowledged reports whether the handoff has been acknowledged.
func (h Handoff) IsAcknowledged() bool { return !h.AcknowledgedAt.IsZero() }

// NotFoundError is returned when a handoff id has no matching record.
type NotFoundError struct {
	HandoffID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("handoff %s not found", e.HandoffID)
}

// UnauthorizedError is returned when an agent other than the designated
// to-agent attempts to receive or acknowledge a handoff.
type UnauthorizedError struct {
	HandoffID string
	AgentID   string
	ToAgent   string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("agent %s is not authorized for handoff %s (designated recipient is %s)", e.AgentID, e.HandoffID, e.ToAgent)
}

// ExpiredError is returned when a handoff is received after its timeout
// has elapsed without being received.
type ExpiredError struct {
	HandoffID string
	CreatedAt time.Time
	Timeout   time.Duration
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("handoff %s expired: created at %s, timeout %s", e.HandoffID, e.CreatedAt, e.Timeout)
}

// Manager tracks in-flight handoffs and enforces the receive/acknowledge
// protocol: only the designated to-agent may receive or acknowledge, and
// receipt must happen before the handoff's timeout elapses.
type Manager struct {
	mu       sync.Mutex
	clock    clock.Clock
	timeout  time.Duration
	handoffs map[string]*Handoff
}

// NewManager creates a Manager using c for expiry checks and the default
// five-minute timeout.
func NewManager(c clock.Clock) *Manager {
	return &Manager{
		clock:    c,
		timeout:  DefaultTimeout,
		handoffs: make(map[string]*Handoff),
	}
}

// WithTimeout overrides the manager's handoff expiry timeout.
func (m *Manager) WithTimeout(d time.Duration) *Manager {
	m.timeout = d
	return m
}

// Initiate records a new handoff from fromAgent to toAgent carrying data
// for taskID, and returns its id.
func (m *Manager) Initiate(fromAgent, toAgent, taskID string, data map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.handoffs[id] = &Handoff{
		ID:        id,
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		TaskID:    taskID,
		Data:      data,
		CreatedAt: m.clock.Now(),
	}
	return id
}

// Receive returns a handoff's data to agentID, the designated recipient,
// provided the handoff has not yet expired. Receiving an already-received
// handoff is idempotent and re-returns the same data.
func (m *Manager) Receive(id, agentID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handoffs[id]
	if !ok {
		return nil, &NotFoundError{HandoffID: id}
	}
	if h.ToAgent != agentID {
		return nil, &UnauthorizedError{HandoffID: id, AgentID: agentID, ToAgent: h.ToAgent}
	}
	if !h.IsReceived() {
		now := m.clock.Now()
		if now.Sub(h.CreatedAt) > m.timeout {
			return nil, &ExpiredError{HandoffID: id, CreatedAt: h.CreatedAt, Timeout: m.timeout}
		}
		h.ReceivedAt = now
	}
	return h.Data, nil
}

// Acknowledge marks a received handoff as acknowledged by agentID.
func (m *Manager) Acknowledge(id, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handoffs[id]
	if !ok {
		return &NotFoundError{HandoffID: id}
	}
	if h.ToAgent != agentID {
		return &UnauthorizedError{HandoffID: id, AgentID: agentID, ToAgent: h.ToAgent}
	}
	h.AcknowledgedAt = m.clock.Now()
	return nil
}

// IsComplete reports whether a handoff has been acknowledged.
func (m *Manager) IsComplete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handoffs[id]
	return ok && h.IsAcknowledged()
}

// Get returns a copy of a tracked handoff's current state.
func (m *Manager) Get(id string) (Handoff, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handoffs[id]
	if !ok {
		return Handoff{}, false
	}
	return *h, true
}
