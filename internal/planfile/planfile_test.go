// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package planfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordkernel/pkg/registry"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ParsesTasksAndAgents(t *testing.T) {
	path := writePlan(t, `
tasks:
  - id: a
    description: "set up scaffolding"
    required_capabilities: ["python"]
  - id: b
    description: "write tests"
    dependencies: ["a"]
    required_capabilities: ["python"]
    priority: high
    context_size: 500

agents:
  - id: agent-1
    role: worker
    capabilities: ["python"]
`)

	doc, err := Load(path)
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 2)
	require.Len(t, doc.Agents, 1)
	assert.Equal(t, "b", doc.Tasks[1].ID)
	assert.Equal(t, []string{"a"}, doc.Tasks[1].Dependencies)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_NoTasks(t *testing.T) {
	path := writePlan(t, "tasks: []\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no tasks")
}

func TestDocument_BuildGraph(t *testing.T) {
	doc := &Document{
		Tasks: []TaskDef{
			{ID: "a", Description: "first"},
			{ID: "b", Description: "second", Dependencies: []string{"a"}},
		},
	}
	g, err := doc.BuildGraph()
	require.NoError(t, err)
	assert.True(t, g.IsFrozen())
	assert.ElementsMatch(t, []string{"a", "b"}, g.AllIDs())
}

func TestDocument_BuildGraph_RejectsMissingDependency(t *testing.T) {
	doc := &Document{
		Tasks: []TaskDef{
			{ID: "b", Description: "second", Dependencies: []string{"missing"}},
		},
	}
	_, err := doc.BuildGraph()
	require.Error(t, err)
}

func TestDocument_RegisterAgents(t *testing.T) {
	doc := &Document{
		Agents: []AgentDef{
			{ID: "agent-1", Role: "worker", Capabilities: []string{"python", "go"}},
		},
	}
	reg := registry.New()
	require.NoError(t, doc.RegisterAgents(reg))

	a, ok := reg.Get("agent-1")
	require.True(t, ok)
	assert.Equal(t, "worker", a.Role)
	assert.True(t, a.Capabilities.Has("go"))
}
