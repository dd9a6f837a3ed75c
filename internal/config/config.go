// Package config loads the rasen.yml / .rasen/config.yaml layered
// configuration. See SPEC_FULL.md §6, §9 AMBIENT STACK.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration model.
type Config struct {
	Project        ProjectConfig        `mapstructure:"project"`
	Orchestrator   OrchestratorConfig   `mapstructure:"orchestrator"`
	Agent          AgentConfig          `mapstructure:"agent"`
	Worktree       WorktreeConfig       `mapstructure:"worktree"`
	Memory         MemoryConfig         `mapstructure:"memory"`
	Backpressure   BackpressureConfig   `mapstructure:"backpressure"`
	Background     BackgroundConfig     `mapstructure:"background"`
	StallDetection StallDetectionConfig `mapstructure:"stall_detection"`
	Review         ReviewConfig         `mapstructure:"review"`
	QA             QAConfig             `mapstructure:"qa"`
}

// ProjectConfig identifies the target project.
type ProjectConfig struct {
	Name string `mapstructure:"name"`
	Root string `mapstructure:"root"`
}

// OrchestratorConfig controls the Main Loop's scheduling and termination
// guards.
type OrchestratorConfig struct {
	MaxIterations         int `mapstructure:"max_iterations"`
	MaxRuntimeSeconds     int `mapstructure:"max_runtime_seconds"`
	SessionDelaySeconds   int `mapstructure:"session_delay_seconds"`
	SessionTimeoutSeconds int `mapstructure:"session_timeout_seconds"`
	IdleTimeoutSeconds    int `mapstructure:"idle_timeout_seconds"`
}

// AgentConfig controls the coding assistant child process.
type AgentConfig struct {
	Binary            string   `mapstructure:"binary"`
	Model             string   `mapstructure:"model"`
	MaxThinkingTokens int      `mapstructure:"max_thinking_tokens"`
	AllowedTools      []string `mapstructure:"allowed_tools"`
}

// WorktreeConfig controls the isolated git worktree the run/resume CLI
// collaborator creates per invocation.
type WorktreeConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BasePath string `mapstructure:"base_path"`
}

// MemoryConfig controls cross-session memory injection.
type MemoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// BackpressureConfig controls the completion-claim quality gate.
type BackpressureConfig struct {
	RequireTests bool `mapstructure:"require_tests"`
	RequireLint  bool `mapstructure:"require_lint"`
}

// BackgroundConfig controls daemonized runs.
type BackgroundConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	PIDFile    string `mapstructure:"pid_file"`
	LogFile    string `mapstructure:"log_file"`
	StatusFile string `mapstructure:"status_file"`
}

// StallDetectionConfig controls the no-commit and consecutive-failure
// guards.
type StallDetectionConfig struct {
	MaxNoCommitSessions    int     `mapstructure:"max_no_commit_sessions"`
	MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures"`
	CircularFixThreshold   float64 `mapstructure:"circular_fix_threshold"`
}

// ReviewConfig controls the Coder↔Reviewer sub-loop.
type ReviewConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	PerSubtask bool `mapstructure:"per_subtask"`
	MaxLoops   int  `mapstructure:"max_loops"`
}

// QAConfig controls the Coder↔QA sub-loop.
type QAConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	PerSubtask              bool `mapstructure:"per_subtask"`
	MaxIterations           int  `mapstructure:"max_iterations"`
	RecurringIssueThreshold int  `mapstructure:"recurring_issue_threshold"`
}

// DefaultConfig returns a Config with every built-in default populated.
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			Name: "unnamed-project",
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:         50,
			MaxRuntimeSeconds:     14400,
			SessionDelaySeconds:   3,
			SessionTimeoutSeconds: 1800,
			IdleTimeoutSeconds:    300,
		},
		Agent: AgentConfig{
			Binary: "claude",
			Model:  "claude-sonnet-4-20250514",
			AllowedTools: []string{
				"Read", "Write", "Edit", "Bash", "Glob", "Grep",
			},
			MaxThinkingTokens: 4096,
		},
		Worktree: WorktreeConfig{
			Enabled:  true,
			BasePath: ".worktrees",
		},
		Memory: MemoryConfig{
			Enabled:   true,
			Path:      ".rasen/memories.md",
			MaxTokens: 2000,
		},
		Backpressure: BackpressureConfig{
			RequireTests: true,
			RequireLint:  true,
		},
		Background: BackgroundConfig{
			PIDFile:    ".rasen/rasen.pid",
			LogFile:    ".rasen/rasen.log",
			StatusFile: ".rasen/status.json",
		},
		StallDetection: StallDetectionConfig{
			MaxNoCommitSessions:    3,
			MaxConsecutiveFailures: 5,
			CircularFixThreshold:   0.3,
		},
		Review: ReviewConfig{
			Enabled:    true,
			PerSubtask: false,
			MaxLoops:   3,
		},
		QA: QAConfig{
			Enabled:                 true,
			PerSubtask:              false,
			MaxIterations:           50,
			RecurringIssueThreshold: 3,
		},
	}
}

// Load resolves configuration with the layered precedence environment
// variables > <projectDir>/.rasen/config.yaml > <projectDir>/rasen.yml >
// built-in defaults.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	projectFile := filepath.Join(projectDir, "rasen.yml")
	if _, err := os.Stat(projectFile); err == nil {
		v.SetConfigFile(projectFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", projectFile, err)
		}
	}

	taskFile := filepath.Join(projectDir, ".rasen", "config.yaml")
	if _, err := os.Stat(taskFile); err == nil {
		v.SetConfigFile(taskFile)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", taskFile, err)
		}
	}

	v.SetEnvPrefix("RASEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every field of defaults with viper so env vars
// and partial YAML overlays only need to name the keys they change.
func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("project.name", defaults.Project.Name)
	v.SetDefault("project.root", defaults.Project.Root)

	v.SetDefault("orchestrator.max_iterations", defaults.Orchestrator.MaxIterations)
	v.SetDefault("orchestrator.max_runtime_seconds", defaults.Orchestrator.MaxRuntimeSeconds)
	v.SetDefault("orchestrator.session_delay_seconds", defaults.Orchestrator.SessionDelaySeconds)
	v.SetDefault("orchestrator.session_timeout_seconds", defaults.Orchestrator.SessionTimeoutSeconds)
	v.SetDefault("orchestrator.idle_timeout_seconds", defaults.Orchestrator.IdleTimeoutSeconds)

	v.SetDefault("agent.binary", defaults.Agent.Binary)
	v.SetDefault("agent.model", defaults.Agent.Model)
	v.SetDefault("agent.max_thinking_tokens", defaults.Agent.MaxThinkingTokens)
	v.SetDefault("agent.allowed_tools", defaults.Agent.AllowedTools)

	v.SetDefault("worktree.enabled", defaults.Worktree.Enabled)
	v.SetDefault("worktree.base_path", defaults.Worktree.BasePath)

	v.SetDefault("memory.enabled", defaults.Memory.Enabled)
	v.SetDefault("memory.path", defaults.Memory.Path)
	v.SetDefault("memory.max_tokens", defaults.Memory.MaxTokens)

	v.SetDefault("backpressure.require_tests", defaults.Backpressure.RequireTests)
	v.SetDefault("backpressure.require_lint", defaults.Backpressure.RequireLint)

	v.SetDefault("background.enabled", defaults.Background.Enabled)
	v.SetDefault("background.pid_file", defaults.Background.PIDFile)
	v.SetDefault("background.log_file", defaults.Background.LogFile)
	v.SetDefault("background.status_file", defaults.Background.StatusFile)

	v.SetDefault("stall_detection.max_no_commit_sessions", defaults.StallDetection.MaxNoCommitSessions)
	v.SetDefault("stall_detection.max_consecutive_failures", defaults.StallDetection.MaxConsecutiveFailures)
	v.SetDefault("stall_detection.circular_fix_threshold", defaults.StallDetection.CircularFixThreshold)

	v.SetDefault("review.enabled", defaults.Review.Enabled)
	v.SetDefault("review.per_subtask", defaults.Review.PerSubtask)
	v.SetDefault("review.max_loops", defaults.Review.MaxLoops)

	v.SetDefault("qa.enabled", defaults.QA.Enabled)
	v.SetDefault("qa.per_subtask", defaults.QA.PerSubtask)
	v.SetDefault("qa.max_iterations", defaults.QA.MaxIterations)
	v.SetDefault("qa.recurring_issue_threshold", defaults.QA.RecurringIssueThreshold)
}
