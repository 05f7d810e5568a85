// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete coordkernel runtime configuration.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Retry     RetryConfig     `yaml:"retry"`
	Undo      UndoConfig      `yaml:"undo"`
	Executors ExecutorsConfig `yaml:"executors"`
}

// ProjectConfig holds project-level identification.
type ProjectConfig struct {
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	WorkingDirectory string `yaml:"working_directory"`
}

// SchedulerConfig tunes the parallel scheduler's dispatch loop.
type SchedulerConfig struct {
	MaxConcurrent   int           `yaml:"max_concurrent"`
	PerTaskTimeout  time.Duration `yaml:"per_task_timeout"`
	ContinueOnError bool          `yaml:"continue_on_error"`
	StuckThreshold  time.Duration `yaml:"stuck_threshold"`
	MinDegradeRatio float64       `yaml:"min_degrade_ratio"`
}

// BreakerConfig holds per-(agent,task) circuit-breaker thresholds. They are
// loaded and defaulted here but not applied: recovery.Engine creates every
// breaker with the recovery package's own defaults.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// RetryConfig tunes the default retry policy.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// UndoConfig tunes the undo chain's bounded history.
type UndoConfig struct {
	ChainDepth int `yaml:"chain_depth"`
}

// ExecutorsConfig selects and configures the concrete Executor wired into
// a run.
type ExecutorsConfig struct {
	Default   string              `yaml:"default"` // "shell", "container", "llm", "durable"
	Container ContainerExecConfig `yaml:"container"`
	LLM       LLMExecConfig       `yaml:"llm"`
	Durable   DurableExecConfig   `yaml:"durable"`
}

// ContainerExecConfig configures internal/exec/containerexec.
type ContainerExecConfig struct {
	Image string `yaml:"image"`
}

// LLMExecConfig configures internal/exec/llmexec.
type LLMExecConfig struct {
	BaseURL string `yaml:"base_url"`
	Port    int    `yaml:"port"`
}

// DurableExecConfig configures internal/exec/durableexec.
type DurableExecConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// Load reads and parses the configuration from .claude/coordkernel.yaml
// under the current working directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	configPath := filepath.Join(cwd, ".claude", "coordkernel.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Project.WorkingDirectory == "" {
		cfg.Project.WorkingDirectory = cwd
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills in zero-valued fields with the scheduler's package
// defaults, so a minimal config file is enough to run.
func applyDefaults(cfg *Config) {
	// MaxConcurrent stays zero, which scheduler.New turns into the number of
	// registered agents.
	if cfg.Scheduler.StuckThreshold == 0 {
		cfg.Scheduler.StuckThreshold = 120 * time.Second
	}
	if cfg.Scheduler.MinDegradeRatio == 0 {
		cfg.Scheduler.MinDegradeRatio = 0.5
	}
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = 2
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 60 * time.Second
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		cfg.Retry.BackoffMultiplier = 2.0
	}
	if cfg.Undo.ChainDepth == 0 {
		cfg.Undo.ChainDepth = 100
	}
	if cfg.Executors.Default == "" {
		cfg.Executors.Default = "shell"
	}
}

// Validate rejects a configuration that cannot run.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if c.Project.WorkingDirectory == "" {
		return fmt.Errorf("working directory is required")
	}
	if c.Scheduler.MaxConcurrent < 0 {
		return fmt.Errorf("scheduler max_concurrent must not be negative")
	}
	switch c.Executors.Default {
	case "shell", "container", "llm", "durable":
	default:
		return fmt.Errorf("executors.default must be one of shell, container, llm, durable, got %q", c.Executors.Default)
	}
	return nil
}
