package execplan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/execplan"
	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

func mk(id string, complexity types.Complexity, deps ...string) types.Subtask {
	t := types.NewSubtask(id, id)
	t.EstimatedComplexity = complexity
	t.Dependencies = types.NewStringSet(deps...)
	return t
}

func TestPlan_Diamond(t *testing.T) {
	g := taskgraph.New()
	require.NoError(t, g.AddSubtask(mk("A", types.ComplexitySmall)))
	require.NoError(t, g.AddSubtask(mk("B", types.ComplexityMedium, "A")))
	require.NoError(t, g.AddSubtask(mk("C", types.ComplexityLarge, "A")))
	require.NoError(t, g.AddSubtask(mk("D", types.ComplexitySmall, "B", "C")))
	require.NoError(t, g.Freeze())

	plan, err := execplan.New(g).Plan()
	require.NoError(t, err)

	require.Len(t, plan.Stages, 3)
	assert.Equal(t, []string{"A"}, plan.Stages[0].TaskIDs)
	assert.ElementsMatch(t, []string{"B", "C"}, plan.Stages[1].TaskIDs)
	assert.Equal(t, []string{"D"}, plan.Stages[2].TaskIDs)
	assert.Equal(t, 2, plan.MaxParallelism)

	// Critical path goes through C (weight 3), the larger branch.
	assert.Contains(t, plan.CriticalPath, "C")
	assert.Equal(t, 1+3+1, plan.CriticalWeight)
}

func TestPlan_BottleneckDetection(t *testing.T) {
	g := taskgraph.New()
	require.NoError(t, g.AddSubtask(mk("A", types.ComplexitySmall)))
	require.NoError(t, g.AddSubtask(mk("B", types.ComplexitySmall, "A")))
	require.NoError(t, g.AddSubtask(mk("C", types.ComplexitySmall, "A")))
	require.NoError(t, g.AddSubtask(mk("D", types.ComplexitySmall, "A")))
	require.NoError(t, g.Freeze())

	plan, err := execplan.New(g).Plan()
	require.NoError(t, err)
	assert.Contains(t, plan.Bottlenecks, "A")
}

func TestRender_NonEmpty(t *testing.T) {
	g := taskgraph.New()
	require.NoError(t, g.AddSubtask(mk("A", types.ComplexitySmall)))
	require.NoError(t, g.Freeze())
	plan, err := execplan.New(g).Plan()
	require.NoError(t, err)
	out := execplan.Render(plan)
	assert.Contains(t, out, "Execution plan")
}
