// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Command plan-preview loads a plan file and prints its execution preview
// (stages, critical path, bottlenecks, ETA) without dispatching any task,
// the way cmd/plan-orchestrator prints a plan summary before anything runs.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"coordkernel/internal/planfile"
	"coordkernel/pkg/execplan"
)

func main() {
	planPath := flag.String("plan", "", "Path to the plan file (YAML tasks + agents)")
	bottleneckFanOut := flag.Int("bottleneck-fanout", execplan.DefaultBottleneckFanOut, "Fan-out threshold at or above which a task is flagged as a bottleneck")
	flag.Parse()

	if *planPath == "" {
		log.Fatal("missing required flag -plan")
	}

	doc, err := planfile.Load(*planPath)
	if err != nil {
		log.Fatalf("failed to load plan file: %v", err)
	}

	graph, err := doc.BuildGraph()
	if err != nil {
		log.Fatalf("failed to build task graph: %v", err)
	}

	planner := execplan.New(graph).WithBottleneckFanOut(*bottleneckFanOut)
	plan, err := planner.Plan()
	if err != nil {
		log.Fatalf("failed to compute execution plan: %v", err)
	}

	fmt.Print(execplan.Render(plan))
	os.Exit(0)
}
