package recovery_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/clock"
	"coordkernel/pkg/errdetect"
	"coordkernel/pkg/recovery"
	"coordkernel/pkg/registry"
	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

func TestSelectStrategy_Rules(t *testing.T) {
	e := recovery.NewEngine(clock.NewFakeClock(time.Unix(0, 0)))

	assert.Equal(t, recovery.StrategyNone, e.SelectStrategy(errdetect.ErrorContext{Severity: errdetect.SeverityCritical}))
	assert.Equal(t, recovery.StrategyRetry, e.SelectStrategy(errdetect.ErrorContext{Kind: errdetect.KindTimeout, Severity: errdetect.SeverityHigh}))
	assert.Equal(t, recovery.StrategyFallbackAgent, e.SelectStrategy(errdetect.ErrorContext{Kind: errdetect.KindInvalidOutput, Severity: errdetect.SeverityMedium}))
	assert.Equal(t, recovery.StrategyFallbackAgent, e.SelectStrategy(errdetect.ErrorContext{Kind: errdetect.KindCrash, Severity: errdetect.SeverityHigh}))
	assert.Equal(t, recovery.StrategyDegrade, e.SelectStrategy(errdetect.ErrorContext{Kind: errdetect.KindPartialCompletion, Severity: errdetect.SeverityMedium}))
}

func TestApplyRetry_RespectsMaxAttempts(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(0, 0))
	e := recovery.NewEngine(fc)
	policy := recovery.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 2}
	err := errdetect.ErrorContext{Severity: errdetect.SeverityHigh}

	r1 := e.ApplyRetry(err, "a1", "t1", &policy)
	require.True(t, r1.ShouldRetry)
	assert.Equal(t, 1, r1.RetryCount)

	r2 := e.ApplyRetry(err, "a1", "t1", &policy)
	require.True(t, r2.ShouldRetry)
	assert.Equal(t, 2, r2.RetryCount)

	r3 := e.ApplyRetry(err, "a1", "t1", &policy)
	assert.False(t, r3.ShouldRetry)
}

func TestApplyRetry_CircuitBlockedWhenOpen(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(0, 0))
	e := recovery.NewEngine(fc)
	policy := recovery.DefaultRetryPolicy()
	err := errdetect.ErrorContext{Severity: errdetect.SeverityHigh}

	for i := 0; i < recovery.DefaultFailureThreshold; i++ {
		e.RecordOutcome("a1", "t1", false)
	}
	assert.Equal(t, recovery.CircuitOpen, e.BreakerState("a1", "t1"))

	r := e.ApplyRetry(err, "a1", "t1", &policy)
	assert.True(t, r.CircuitBlocked)
	assert.False(t, r.ShouldRetry)
}

func TestApplyFallback_ExcludesFailedAgent(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(types.NewAgent("a1", "coder", "python")))
	require.NoError(t, reg.Register(types.NewAgent("a2", "coder", "python")))

	e := recovery.NewEngine(clock.NewFakeClock(time.Unix(0, 0)))
	r := e.ApplyFallback(reg, "a1", types.NewStringSet("python"))
	require.True(t, r.Success)
	assert.Equal(t, "a2", r.FallbackAgentID)
}

func TestApplyFallback_NoneAvailable(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(types.NewAgent("a1", "coder", "python")))

	e := recovery.NewEngine(clock.NewFakeClock(time.Unix(0, 0)))
	r := e.ApplyFallback(reg, "a1", types.NewStringSet("python"))
	assert.False(t, r.Success)
}

func TestApplyDegrade_AcceptableAboveThreshold(t *testing.T) {
	g := taskgraph.New()
	mk := func(id string) types.Subtask { return types.NewSubtask(id, id) }
	require.NoError(t, g.AddSubtask(mk("A")))
	require.NoError(t, g.AddSubtask(mk("B")))
	require.NoError(t, g.Freeze())
	require.NoError(t, g.SetStatus("A", types.TaskCompleted))
	require.NoError(t, g.SetStatus("B", types.TaskFailed))

	e := recovery.NewEngine(clock.NewFakeClock(time.Unix(0, 0)))
	r := e.ApplyDegrade(g, 0)
	require.NotNil(t, r.PartialResult)
	assert.InDelta(t, 50.0, r.PartialResult.CompletionPercentage, 0.001)
	assert.True(t, r.Success)
}
