package undo_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/clock"
	"coordkernel/pkg/errdetect"
	"coordkernel/pkg/undo"
)

func TestRecord_And_Last(t *testing.T) {
	c := undo.New(clock.NewFakeClock(time.Unix(0, 0)))
	c.Record(undo.Action{Description: "create file", ReverseCommand: "rm foo.txt", Risk: undo.RiskLow})
	c.Record(undo.Action{Description: "edit file", ReverseCommand: "git checkout HEAD -- foo.txt", Risk: undo.RiskMedium})

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "edit file", last.Description)
	assert.Equal(t, 2, c.Depth())
}

func TestChain_EvictsOldestBeyondBound(t *testing.T) {
	c := undo.New(clock.NewFakeClock(time.Unix(0, 0))).WithMaxDepth(2)
	c.Record(undo.Action{Description: "a1"})
	c.Record(undo.Action{Description: "a2"})
	c.Record(undo.Action{Description: "a3"})

	require.Equal(t, 2, c.Depth())
	plan := c.RollbackPlan()
	assert.Equal(t, "a3", plan[0].Action)
	assert.Equal(t, "a2", plan[1].Action)
}

func TestRollbackPlan_ReverseInsertionOrder(t *testing.T) {
	c := undo.New(clock.NewFakeClock(time.Unix(0, 0)))
	c.Record(undo.Action{Description: "a1"})
	c.Record(undo.Action{Description: "a2"})
	c.Record(undo.Action{Description: "a3"})

	plan := c.RollbackPlan()
	require.Len(t, plan, 3)
	assert.Equal(t, []string{"a3", "a2", "a1"}, []string{plan[0].Action, plan[1].Action, plan[2].Action})
}

func TestShouldAutoRollback_Policy(t *testing.T) {
	c := undo.New(clock.NewFakeClock(time.Unix(0, 0)))

	assert.True(t, c.ShouldAutoRollback(errdetect.ErrorContext{Severity: errdetect.SeverityHigh}))
	assert.True(t, c.ShouldAutoRollback(errdetect.ErrorContext{Severity: errdetect.SeverityCritical}))
	assert.False(t, c.ShouldAutoRollback(errdetect.ErrorContext{Severity: errdetect.SeverityLow}))

	// Medium severity only triggers when the most recent action is high/critical risk.
	assert.False(t, c.ShouldAutoRollback(errdetect.ErrorContext{Severity: errdetect.SeverityMedium}))
	c.Record(undo.Action{Description: "risky", Risk: undo.RiskCritical})
	assert.True(t, c.ShouldAutoRollback(errdetect.ErrorContext{Severity: errdetect.SeverityMedium}))
}

func TestRenderRollbackPlan_EmptyPlan(t *testing.T) {
	assert.Contains(t, undo.RenderRollbackPlan(nil), "empty")
}

func TestRenderRollbackPlan_PrefersHumanDescription(t *testing.T) {
	c := undo.New(clock.NewFakeClock(time.Unix(0, 0)))
	c.Record(undo.Action{
		Description:      "ran shell command for task t1",
		HumanDescription: `task "t1" executed: echo hi`,
		ReverseCommand:   "true",
		Risk:             undo.RiskMedium,
		FilesAffected:    []string{"out.txt"},
	})

	rendered := undo.RenderRollbackPlan(c.RollbackPlan())
	assert.Contains(t, rendered, `task "t1" executed: echo hi`)
	assert.Contains(t, rendered, "reverse: true")
	assert.Contains(t, rendered, "out.txt")
}
