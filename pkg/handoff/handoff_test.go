// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package handoff_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/clock"
	"coordkernel/pkg/handoff"
)

func TestInitiateAndReceive_AuthorizedRecipient(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c)

	id := m.Initiate("agent-a", "agent-b", "task-1", map[string]any{"result": "ok"})

	data, err := m.Receive(id, "agent-b")
	require.NoError(t, err)
	assert.Equal(t, "ok", data["result"])

	h, ok := m.Get(id)
	require.True(t, ok)
	assert.True(t, h.IsReceived())
	assert.False(t, h.IsAcknowledged())
}

func TestReceive_WrongRecipientIsUnauthorized(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c)
	id := m.Initiate("agent-a", "agent-b", "task-1", nil)

	_, err := m.Receive(id, "agent-c")
	require.Error(t, err)
	var unauthorized *handoff.UnauthorizedError
	require.True(t, errors.As(err, &unauthorized))
	assert.Equal(t, "agent-b", unauthorized.ToAgent)
}

func TestReceive_UnknownHandoffNotFound(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c)

	_, err := m.Receive("nonexistent", "agent-b")
	require.Error(t, err)
	var notFound *handoff.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestReceive_ExpiresAfterTimeout(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c).WithTimeout(100 * time.Millisecond)
	id := m.Initiate("agent-a", "agent-b", "task-1", nil)

	c.Advance(200 * time.Millisecond)

	_, err := m.Receive(id, "agent-b")
	require.Error(t, err)
	var expired *handoff.ExpiredError
	require.True(t, errors.As(err, &expired))
}

func TestReceive_WithinTimeoutSucceeds(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c).WithTimeout(100 * time.Millisecond)
	id := m.Initiate("agent-a", "agent-b", "task-1", nil)

	c.Advance(50 * time.Millisecond)

	_, err := m.Receive(id, "agent-b")
	require.NoError(t, err)
}

func TestAcknowledge_CompletesHandoff(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c)
	id := m.Initiate("agent-a", "agent-b", "task-1", nil)

	_, err := m.Receive(id, "agent-b")
	require.NoError(t, err)
	assert.False(t, m.IsComplete(id))

	require.NoError(t, m.Acknowledge(id, "agent-b"))
	assert.True(t, m.IsComplete(id))
}

func TestAcknowledge_WrongAgentIsUnauthorized(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c)
	id := m.Initiate("agent-a", "agent-b", "task-1", nil)

	err := m.Acknowledge(id, "agent-c")
	require.Error(t, err)
	var unauthorized *handoff.UnauthorizedError
	require.True(t, errors.As(err, &unauthorized))
}

func TestReceive_IsIdempotentOnceReceived(t *testing.T) {
	c := clock.NewFakeClock(time.Unix(0, 0))
	m := handoff.NewManager(c).WithTimeout(10 * time.Millisecond)
	id := m.Initiate("agent-a", "agent-b", "task-1", map[string]any{"x": 1})

	_, err := m.Receive(id, "agent-b")
	require.NoError(t, err)

	c.Advance(time.Second) // well past timeout, but already received

	data, err := m.Receive(id, "agent-b")
	require.NoError(t, err)
	assert.Equal(t, 1, data["x"])
}
