package recovery_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/recovery"
)

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := recovery.NewBreaker()
	b.FailureThreshold = 3
	now := time.Unix(0, 0)

	for i := 0; i < 2; i++ {
		b.RecordFailure(now)
	}
	assert.Equal(t, recovery.CircuitClosed, b.State())

	b.RecordFailure(now)
	assert.Equal(t, recovery.CircuitOpen, b.State())
	assert.False(t, b.AllowRequest(now))
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := recovery.NewBreaker()
	b.FailureThreshold = 1
	b.ResetTimeout = 10 * time.Second
	start := time.Unix(0, 0)

	b.RecordFailure(start)
	require.Equal(t, recovery.CircuitOpen, b.State())

	assert.False(t, b.AllowRequest(start.Add(5*time.Second)))
	assert.True(t, b.AllowRequest(start.Add(11*time.Second)))
	assert.Equal(t, recovery.CircuitHalfOpen, b.State())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	b := recovery.NewBreaker()
	b.FailureThreshold = 1
	b.SuccessThreshold = 2
	b.ResetTimeout = 1 * time.Second
	start := time.Unix(0, 0)

	b.RecordFailure(start)
	b.AllowRequest(start.Add(2 * time.Second)) // transitions to half-open

	b.RecordSuccess()
	assert.Equal(t, recovery.CircuitHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, recovery.CircuitClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := recovery.NewBreaker()
	b.FailureThreshold = 1
	b.ResetTimeout = 1 * time.Second
	start := time.Unix(0, 0)

	b.RecordFailure(start)
	b.AllowRequest(start.Add(2 * time.Second))
	require.Equal(t, recovery.CircuitHalfOpen, b.State())

	b.RecordFailure(start.Add(2 * time.Second))
	assert.Equal(t, recovery.CircuitOpen, b.State())
}
