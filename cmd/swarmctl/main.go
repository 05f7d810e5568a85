// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Command swarmctl loads a task graph and agent roster from a plan file,
// wires the scheduling kernel's components together per the runtime
// config, and runs the parallel scheduler to completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"coordkernel/internal/config"
	"coordkernel/internal/exec/containerexec"
	"coordkernel/internal/exec/shellexec"
	"coordkernel/internal/planfile"
	"coordkernel/internal/telemetry"
	"coordkernel/pkg/clock"
	"coordkernel/pkg/errdetect"
	"coordkernel/pkg/execifc"
	"coordkernel/pkg/handoff"
	"coordkernel/pkg/monitor"
	"coordkernel/pkg/recovery"
	"coordkernel/pkg/registry"
	"coordkernel/pkg/scheduler"
	"coordkernel/pkg/undo"

	"github.com/docker/docker/client"
)

func main() {
	planPath := flag.String("plan", "", "Path to the plan file (YAML tasks + agents)")
	timeout := flag.Duration("timeout", 0, "Overall run timeout; 0 means no deadline")
	flag.Parse()

	configureLogging()

	if *planPath == "" {
		slog.Error("missing required flag", "flag", "-plan")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	tp, err := telemetry.NewTracerProvider(context.Background(), telemetry.DefaultConfig())
	if err != nil {
		slog.Error("failed to start tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	doc, err := planfile.Load(*planPath)
	if err != nil {
		slog.Error("failed to load plan file", "error", err)
		os.Exit(1)
	}

	graph, err := doc.BuildGraph()
	if err != nil {
		slog.Error("failed to build task graph", "error", err)
		os.Exit(1)
	}

	reg := registry.New()
	if err := doc.RegisterAgents(reg); err != nil {
		slog.Error("failed to register agents", "error", err)
		os.Exit(1)
	}

	c := clock.RealClock{}
	mon := monitor.New(c).WithStuckThreshold(cfg.Scheduler.StuckThreshold)
	det := errdetect.New(c)
	chain := undo.New(c).WithMaxDepth(cfg.Undo.ChainDepth)
	rec := recovery.NewEngine(c).WithDefaultPolicy(recovery.RetryPolicy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BaseDelay:         cfg.Retry.BaseDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	})

	executor, err := buildExecutor(cfg)
	if err != nil {
		slog.Error("failed to build executor", "error", err)
		os.Exit(1)
	}

	ho := handoff.NewManager(c)

	sched := scheduler.New(graph, reg, mon, det, chain, rec, ho, executor, c, scheduler.Config{
		MaxConcurrent:   cfg.Scheduler.MaxConcurrent,
		PerTaskTimeout:  cfg.Scheduler.PerTaskTimeout,
		ContinueOnError: cfg.Scheduler.ContinueOnError,
		RetryPolicy: recovery.RetryPolicy{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			BaseDelay:         cfg.Retry.BaseDelay,
			MaxDelay:          cfg.Retry.MaxDelay,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		},
		MinDegradeRatio: cfg.Scheduler.MinDegradeRatio,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if *timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, *timeout)
	}
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Warn("received shutdown signal, cancelling run")
		cancel()
	}()

	slog.Info("starting run", "plan", *planPath, "tasks", len(graph.AllIDs()), "agents", len(reg.List()))

	metrics, runErr := sched.Run(ctx)
	if metrics != nil {
		slog.Info("run finished",
			"total", metrics.TotalTasks,
			"completed", metrics.CompletedCount,
			"failed", metrics.FailedCount,
			"skipped", metrics.SkippedCount,
			"wall_time", metrics.WallTime,
			"efficiency", metrics.Efficiency,
		)
	}
	if runErr != nil {
		slog.Error("run ended with an error", "error", runErr)
		if plan := chain.RollbackPlan(); len(plan) > 0 {
			fmt.Fprintln(os.Stderr, undo.RenderRollbackPlan(plan))
		}
		os.Exit(1)
	}
}

// buildExecutor selects the configured Executor implementation.
// internal/exec/llmexec and internal/exec/durableexec require a live
// backend connection (an OpenCode server, a Temporal cluster) and are
// wired by callers that have one available rather than from this
// general-purpose entry point.
func buildExecutor(cfg *config.Config) (execifc.Executor, error) {
	switch cfg.Executors.Default {
	case "shell":
		return shellexec.New(nil), nil
	case "container":
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		image := cfg.Executors.Container.Image
		if image == "" {
			image = "alpine:3.19"
		}
		return containerexec.New(cli, image, nil), nil
	default:
		return nil, fmt.Errorf("executor %q requires a dedicated entry point with a live backend connection", cfg.Executors.Default)
	}
}

func configureLogging() {
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}
