package errdetect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/clock"
	"coordkernel/pkg/errdetect"
)

func TestCrash_AlwaysCritical(t *testing.T) {
	d := errdetect.New(clock.NewFakeClock(time.Unix(0, 0)))
	ctx := d.Crash("a1", "t1", "panic: nil pointer", "stack trace here")
	assert.Equal(t, errdetect.KindCrash, ctx.Kind)
	assert.Equal(t, errdetect.SeverityCritical, ctx.Severity)
}

func TestTimeout_AlwaysHigh(t *testing.T) {
	d := errdetect.New(clock.NewFakeClock(time.Unix(0, 0)))
	ctx := d.Timeout("a1", "t1", 30*time.Second, 10*time.Second)
	assert.Equal(t, errdetect.SeverityHigh, ctx.Severity)
}

func TestPartialCompletion_RecordsRate(t *testing.T) {
	d := errdetect.New(clock.NewFakeClock(time.Unix(0, 0)))
	ctx := d.PartialCompletion("a1", "t1", 3, 4)
	assert.Equal(t, errdetect.SeverityMedium, ctx.Severity)
	assert.InDelta(t, 0.75, ctx.Metadata["completion_rate"], 0.001)
}

func TestHistory_BoundedAndOrdered(t *testing.T) {
	d := errdetect.New(clock.NewFakeClock(time.Unix(0, 0))).WithHistoryLimit(2)
	d.Crash("a1", "t1", "m1", "")
	d.Crash("a1", "t2", "m2", "")
	d.Crash("a1", "t3", "m3", "")

	history := d.History()
	require.Len(t, history, 2)
	assert.Equal(t, "t2", history[0].TaskID)
	assert.Equal(t, "t3", history[1].TaskID)
}

func TestRequiredFieldsSchema_Validate(t *testing.T) {
	schema := errdetect.RequiredFieldsSchema{RequiredFields: []string{"id", "name"}}
	assert.True(t, schema.Validate(map[string]any{"id": 1, "name": "x"}))
	assert.False(t, schema.Validate(map[string]any{"id": 1}))
}
