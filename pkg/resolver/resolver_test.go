package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/resolver"
	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

func buildDiamond(t *testing.T) *taskgraph.Graph {
	g := taskgraph.New()
	mk := func(id string, deps ...string) types.Subtask {
		ts := types.NewSubtask(id, id)
		ts.Dependencies = types.NewStringSet(deps...)
		return ts
	}
	require.NoError(t, g.AddSubtask(mk("A")))
	require.NoError(t, g.AddSubtask(mk("B", "A")))
	require.NoError(t, g.AddSubtask(mk("C", "A")))
	require.NoError(t, g.AddSubtask(mk("D", "B", "C")))
	require.NoError(t, g.Freeze())
	return g
}

func TestReady_SourcesFirst(t *testing.T) {
	g := buildDiamond(t)
	r := resolver.New(g)

	ready := r.Ready(types.StringSet{})
	require.Len(t, ready, 1)
	assert.Equal(t, "A", ready[0].ID)
}

func TestReady_AfterCompletion(t *testing.T) {
	g := buildDiamond(t)
	r := resolver.New(g)

	ready := r.Ready(types.NewStringSet("A"))
	ids := []string{ready[0].ID, ready[1].ID}
	assert.ElementsMatch(t, []string{"B", "C"}, ids)
}

func TestSkippable_DiamondFailure(t *testing.T) {
	g := buildDiamond(t)
	r := resolver.New(g)

	require.NoError(t, g.SetStatus("A", types.TaskCompleted))
	require.NoError(t, g.SetStatus("B", types.TaskCompleted))
	require.NoError(t, g.SetStatus("C", types.TaskFailed))

	skippable := r.Skippable(types.NewStringSet("C"))
	assert.Equal(t, []string{"D"}, skippable)
}
