package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/registry"
	"coordkernel/pkg/types"
)

func TestRegister_And_Get(t *testing.T) {
	r := registry.New()
	a := types.NewAgent("a1", "coder", "python", "testing")
	require.NoError(t, r.Register(a))

	got, ok := r.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "coder", got.Role)
}

func TestFindCapable_ScoresByOverlapThenLoad(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(types.NewAgent("a1", "coder", "python", "testing", "review")))
	require.NoError(t, r.Register(types.NewAgent("a2", "coder", "python", "testing")))
	require.NoError(t, r.Register(types.NewAgent("a3", "coder", "python")))
	require.NoError(t, r.Assign("a1", "existing-task"))

	required := types.NewStringSet("python", "testing")
	found := r.FindCapable(required, "", false)
	require.Len(t, found, 2)
	assert.Equal(t, "a2", found[0].ID) // fewer assignments than a1, same overlap (2)
	assert.Equal(t, "a1", found[1].ID)
}

func TestFindCapable_ExcludesBusyAndSelf(t *testing.T) {
	r := registry.New()
	busy := types.NewAgent("a1", "coder", "python")
	busy.Status = types.AgentWorking
	require.NoError(t, r.Register(busy))
	require.NoError(t, r.Register(types.NewAgent("a2", "coder", "python")))

	found := r.FindCapable(types.NewStringSet("python"), "a2", true)
	require.Len(t, found, 0)
}

func TestAssign_DoubleAssignmentRejected(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(types.NewAgent("a1", "coder", "python")))
	require.NoError(t, r.Assign("a1", "task-1"))

	err := r.Assign("a1", "task-1")
	require.Error(t, err)
	var alreadyErr *registry.AlreadyAssignedError
	assert.ErrorAs(t, err, &alreadyErr)
}

func TestRelease_RequiresPriorAssign(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(types.NewAgent("a1", "coder", "python")))

	err := r.Release("a1", "task-1")
	require.Error(t, err)
	var notAssignedErr *registry.NotAssignedError
	assert.ErrorAs(t, err, &notAssignedErr)

	require.NoError(t, r.Assign("a1", "task-1"))
	require.NoError(t, r.Release("a1", "task-1"))
	got, _ := r.Get("a1")
	assert.Empty(t, got.CurrentTask)
}
