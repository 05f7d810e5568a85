// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package recovery

import (
	"sync"
	"time"

	"coordkernel/pkg/clock"
)

// CircuitState is one of the three breaker states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Breaker is a per-(agent,task) circuit breaker guarding retry.
type Breaker struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration

	state         CircuitState
	failureCount  int
	successCount  int
	lastFailureAt time.Time
	hasFailed     bool
}

// DefaultFailureThreshold, DefaultSuccessThreshold, DefaultResetTimeout are
// the breaker defaults named in the component design.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultResetTimeout     = 60 * time.Second
)

// NewBreaker creates a closed breaker with the default thresholds.
func NewBreaker() *Breaker {
	return &Breaker{
		FailureThreshold: DefaultFailureThreshold,
		SuccessThreshold: DefaultSuccessThreshold,
		ResetTimeout:     DefaultResetTimeout,
		state:            CircuitClosed,
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() CircuitState {
	return b.state
}

// AllowRequest reports whether a request may proceed given now, performing
// the open -> half-open transition as a side effect when the reset timeout
// has elapsed.
func (b *Breaker) AllowRequest(now time.Time) bool {
	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if b.hasFailed && now.Sub(b.lastFailureAt) >= b.ResetTimeout {
			b.state = CircuitHalfOpen
			b.successCount = 0
			return true
		}
		return false
	default: // half-open: allow the probe
		return true
	}
}

// RecordFailure registers a failure at now. Any failure while half-open
// reopens the circuit. While closed, failures accumulate (a success does
// not reset the count) until FailureThreshold is reached, which opens it.
func (b *Breaker) RecordFailure(now time.Time) {
	b.lastFailureAt = now
	b.hasFailed = true
	b.failureCount++

	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.successCount = 0
	default:
		if b.failureCount >= b.FailureThreshold {
			b.state = CircuitOpen
		}
	}
}

// RecordSuccess registers a success. Only meaningful while half-open: once
// success_threshold probes succeed, the breaker closes and counters reset.
func (b *Breaker) RecordSuccess() {
	if b.state != CircuitHalfOpen {
		return
	}
	b.successCount++
	if b.successCount >= b.SuccessThreshold {
		b.state = CircuitClosed
		b.failureCount = 0
		b.successCount = 0
	}
}

// Reset restores the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.state = CircuitClosed
	b.failureCount = 0
	b.successCount = 0
	b.hasFailed = false
}

// breakerKey identifies a breaker by the (agent, task) pair it guards.
type breakerKey struct {
	AgentID string
	TaskID  string
}

// BreakerRegistry is a concurrency-safe map of breakers keyed by
// (agent-id, task-id), so that one broken pairing never blocks others.
type BreakerRegistry struct {
	mu       sync.Mutex
	clock    clock.Clock
	breakers map[breakerKey]*Breaker
}

// NewBreakerRegistry creates an empty breaker registry.
func NewBreakerRegistry(c clock.Clock) *BreakerRegistry {
	return &BreakerRegistry{clock: c, breakers: make(map[breakerKey]*Breaker)}
}

// Get returns the breaker for (agentID, taskID), creating one if absent.
func (r *BreakerRegistry) Get(agentID, taskID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := breakerKey{AgentID: agentID, TaskID: taskID}
	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker()
		r.breakers[key] = b
	}
	return b
}

// ResetBreaker restores the named breaker to closed state, for operator use.
func (r *BreakerRegistry) ResetBreaker(agentID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := breakerKey{AgentID: agentID, TaskID: taskID}
	if b, ok := r.breakers[key]; ok {
		b.Reset()
	}
}
