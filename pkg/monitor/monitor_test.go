package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/clock"
	"coordkernel/pkg/monitor"
	"coordkernel/pkg/types"
)

func TestUpdateStatus_RecordsHistory(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(0, 0))
	m := monitor.New(fc)
	ctx := context.Background()

	m.UpdateStatus(ctx, "a1", types.AgentWorking)
	m.UpdateStatus(ctx, "a1", types.AgentCompleted)

	history := m.History("a1")
	require.Len(t, history, 2)
	assert.Equal(t, types.AgentWorking, history[0])
	assert.Equal(t, types.AgentCompleted, history[1])
}

func TestGetStatus_ComputesTimeInStateOnDemand(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(0, 0))
	m := monitor.New(fc)
	ctx := context.Background()

	m.UpdateStatus(ctx, "a1", types.AgentWorking)
	fc.Advance(30 * time.Second)

	snap, ok := m.GetStatus("a1")
	require.True(t, ok)
	assert.Equal(t, types.AgentWorking, snap.Status)
	assert.InDelta(t, 30.0, snap.TimeSeconds, 0.001)
}

func TestDetectStuck_OnlyWorkingOrBlockedPastThreshold(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(0, 0))
	m := monitor.New(fc).WithStuckThreshold(60 * time.Second)
	ctx := context.Background()

	m.UpdateStatus(ctx, "a1", types.AgentWorking)
	m.UpdateStatus(ctx, "a2", types.AgentIdle)
	fc.Advance(90 * time.Second)

	stuck := m.DetectStuck()
	require.Len(t, stuck, 1)
	assert.Equal(t, "a1", stuck[0].AgentID)
	assert.InDelta(t, 90.0, stuck[0].SecondsStuck, 0.001)
}

func TestRecordResourceUsage_Accumulates(t *testing.T) {
	fc := clock.NewFakeClock(time.Unix(0, 0))
	m := monitor.New(fc)

	m.RecordResourceUsage("a1", 100, 1, 5.0)
	m.RecordResourceUsage("a1", 50, 2, 2.5)

	snap, ok := m.GetStatus("a1")
	require.True(t, ok)
	assert.Equal(t, 150, snap.ResourceMetrics.Tokens)
	assert.Equal(t, 3, snap.ResourceMetrics.APICalls)
	assert.InDelta(t, 7.5, snap.ResourceMetrics.MemoryMB, 0.001)
}
