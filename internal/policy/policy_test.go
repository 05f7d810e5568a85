// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/execifc"
	"coordkernel/pkg/types"
)

func TestNoOp_AlwaysAllows(t *testing.T) {
	var p NoOp
	d := p.Authorize(context.Background(), execifc.Action{Name: "delete_production_database"}, types.Agent{})
	assert.True(t, d.Allowed)
}

func TestAllowDenyList_DenyWinsOverAllow(t *testing.T) {
	l := NewAllowDenyList([]string{"run_shell"}, []string{"run_shell"}, false)
	d := l.Authorize(context.Background(), execifc.Action{Name: "run_shell"}, types.Agent{})
	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "explicitly denied")
}

func TestAllowDenyList_ExplicitAllow(t *testing.T) {
	l := NewAllowDenyList([]string{"run_shell"}, nil, false)
	d := l.Authorize(context.Background(), execifc.Action{Name: "run_shell"}, types.Agent{})
	assert.True(t, d.Allowed)
}

func TestAllowDenyList_UnlistedActionDeniedByDefault(t *testing.T) {
	l := NewAllowDenyList(nil, nil, false)
	d := l.Authorize(context.Background(), execifc.Action{Name: "anything"}, types.Agent{})
	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "not on the allow list")
}

func TestAllowDenyList_AllowByDefault(t *testing.T) {
	l := NewAllowDenyList(nil, []string{"rm_rf"}, true)
	assert.True(t, l.Authorize(context.Background(), execifc.Action{Name: "anything"}, types.Agent{}).Allowed)
	assert.False(t, l.Authorize(context.Background(), execifc.Action{Name: "rm_rf"}, types.Agent{}).Allowed)
}

func TestChain_ShortCircuitsOnFirstDenial(t *testing.T) {
	allowAll := NewAllowDenyList(nil, nil, true)
	denyShell := NewAllowDenyList(nil, []string{"run_shell"}, true)
	c := NewChain(allowAll, denyShell)

	d := c.Authorize(context.Background(), execifc.Action{Name: "run_shell"}, types.Agent{})
	require.False(t, d.Allowed)

	d = c.Authorize(context.Background(), execifc.Action{Name: "run_llm"}, types.Agent{})
	assert.True(t, d.Allowed)
}

func TestChain_EmptyChainAllowsEverything(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Authorize(context.Background(), execifc.Action{Name: "anything"}, types.Agent{}).Allowed)
}
