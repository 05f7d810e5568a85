// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package planfile loads a YAML task graph and agent roster for the
// cmd/swarmctl and cmd/plan-preview binaries, the same way internal/config
// loads runtime configuration with gopkg.in/yaml.v3.
package planfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"coordkernel/pkg/registry"
	"coordkernel/pkg/taskgraph"
	"coordkernel/pkg/types"
)

// TaskDef is one subtask as declared in a plan file.
type TaskDef struct {
	ID                   string   `yaml:"id"`
	Description          string   `yaml:"description"`
	Dependencies         []string `yaml:"dependencies"`
	RequiredCapabilities []string `yaml:"required_capabilities"`
	EstimatedComplexity  string   `yaml:"estimated_complexity"`
	Priority             string   `yaml:"priority"`
	ContextSize          int      `yaml:"context_size"`
}

// AgentDef is one agent as declared in a plan file.
type AgentDef struct {
	ID           string   `yaml:"id"`
	Role         string   `yaml:"role"`
	Capabilities []string `yaml:"capabilities"`
}

// Document is a parsed plan file: a task graph plus the agent roster that
// will execute it.
type Document struct {
	Tasks  []TaskDef  `yaml:"tasks"`
	Agents []AgentDef `yaml:"agents"`
}

// Load reads and parses a plan file from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("plan file %s declares no tasks", path)
	}
	return &doc, nil
}

// BuildGraph constructs and freezes a taskgraph.Graph from the document's
// tasks.
func (d *Document) BuildGraph() (*taskgraph.Graph, error) {
	g := taskgraph.New()
	for _, td := range d.Tasks {
		t := types.NewSubtask(td.ID, td.Description)
		t.Dependencies = types.NewStringSet(td.Dependencies...)
		t.RequiredCapabilities = types.NewStringSet(td.RequiredCapabilities...)
		t.ContextSize = td.ContextSize
		if td.EstimatedComplexity != "" {
			t.EstimatedComplexity = types.Complexity(td.EstimatedComplexity)
		}
		if td.Priority != "" {
			t.Priority = types.Priority(td.Priority)
		}
		if err := g.AddSubtask(t); err != nil {
			return nil, fmt.Errorf("task %s: %w", td.ID, err)
		}
	}
	if err := g.Freeze(); err != nil {
		return nil, err
	}
	return g, nil
}

// RegisterAgents registers the document's agents with reg. Agents with no
// explicit id are minted one by types.NewAgent.
func (d *Document) RegisterAgents(reg *registry.Registry) error {
	for _, ad := range d.Agents {
		a := types.NewAgent(ad.ID, ad.Role, ad.Capabilities...)
		if err := reg.Register(a); err != nil {
			return fmt.Errorf("agent %s: %w", ad.ID, err)
		}
	}
	return nil
}
