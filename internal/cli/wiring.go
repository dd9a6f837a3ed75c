package cli

import (
	"time"

	"github.com/rasenhq/rasen/internal/agent"
	"github.com/rasenhq/rasen/internal/config"
	"github.com/rasenhq/rasen/internal/loop"
	"github.com/rasenhq/rasen/internal/memorystore"
	"github.com/rasenhq/rasen/internal/metricsstore"
	"github.com/rasenhq/rasen/internal/planstore"
	"github.com/rasenhq/rasen/internal/qa"
	"github.com/rasenhq/rasen/internal/recoverystore"
	"github.com/rasenhq/rasen/internal/review"
	"github.com/rasenhq/rasen/internal/statusstore"
	"github.com/rasenhq/rasen/internal/validation"
	"github.com/rasenhq/rasen/internal/workspace"
)

// claudeEnvPrefixes lists the environment-variable prefixes the Claude
// Code CLI backend forwards from the invoking shell into the child
// process.
var claudeEnvPrefixes = []string{"ANTHROPIC_", "CLAUDE_"}

// buildLoopConfig translates the layered configuration into the Main
// Loop's own Config, the same construction the teacher's cli package
// performs when it assembles an executor.Config from config.Config.
func buildLoopConfig(cfg *config.Config, skipReview, skipQA bool) loop.Config {
	reviewCfg := review.Config{
		Enabled:      cfg.Review.Enabled && !skipReview,
		MaxLoops:     cfg.Review.MaxLoops,
		SessionDelay: time.Duration(cfg.Orchestrator.SessionDelaySeconds) * time.Second,
		Timeout:      time.Duration(cfg.Orchestrator.SessionTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Orchestrator.IdleTimeoutSeconds) * time.Second,
		Model:        cfg.Agent.Model,
		AllowedTools: cfg.Agent.AllowedTools,
	}
	qaCfg := qa.Config{
		Enabled:                 cfg.QA.Enabled && !skipQA,
		MaxIterations:           cfg.QA.MaxIterations,
		RecurringIssueThreshold: cfg.QA.RecurringIssueThreshold,
		SessionDelay:            time.Duration(cfg.Orchestrator.SessionDelaySeconds) * time.Second,
		Timeout:                 time.Duration(cfg.Orchestrator.SessionTimeoutSeconds) * time.Second,
		IdleTimeout:             time.Duration(cfg.Orchestrator.IdleTimeoutSeconds) * time.Second,
		Model:                   cfg.Agent.Model,
		AllowedTools:            cfg.Agent.AllowedTools,
	}

	return loop.Config{
		MaxIterations:          cfg.Orchestrator.MaxIterations,
		MaxRuntime:             time.Duration(cfg.Orchestrator.MaxRuntimeSeconds) * time.Second,
		SessionDelay:           time.Duration(cfg.Orchestrator.SessionDelaySeconds) * time.Second,
		SessionTimeout:         time.Duration(cfg.Orchestrator.SessionTimeoutSeconds) * time.Second,
		IdleTimeout:            time.Duration(cfg.Orchestrator.IdleTimeoutSeconds) * time.Second,
		MaxNoCommitSessions:    cfg.StallDetection.MaxNoCommitSessions,
		MaxConsecutiveFailures: cfg.StallDetection.MaxConsecutiveFailures,
		CircularFixThreshold:   cfg.StallDetection.CircularFixThreshold,
		Model:                  cfg.Agent.Model,
		AllowedTools:           cfg.Agent.AllowedTools,
		Backpressure: validation.Policy{
			RequireTests: cfg.Backpressure.RequireTests,
			RequireLint:  cfg.Backpressure.RequireLint,
		},
		MemoryEnabled:    cfg.Memory.Enabled,
		MemoryMaxTokens:  cfg.Memory.MaxTokens,
		ReviewPerSubtask: cfg.Review.PerSubtask,
		Review:           reviewCfg,
		QA:               qaCfg,
	}
}

// buildLoopDeps wires every store and the agent backend against a
// project's .rasen layout. projectDir is where agent sessions run and
// where version control is read from — ordinarily layout.Root, but the
// run/resume CLI substitutes an isolated worktree when worktree.enabled.
func buildLoopDeps(cfg *config.Config, layout workspace.Layout, projectDir, task string, skipReview, skipQA bool, notify func(string)) loop.Deps {
	backend := agent.NewClaudeBackend(cfg.Agent.Binary, claudeEnvPrefixes)

	return loop.Deps{
		Backend:         backend,
		Plans:           planstore.New(layout.Dir),
		Recovery:        recoverystore.New(layout.Dir),
		Memory:          memorystore.New(layout.MemoriesPath()),
		Status:          statusstore.New(layout.StatusPath()),
		Metrics:         metricsstore.New(layout.Dir),
		StateDir:        layout.Dir,
		ProjectDir:      projectDir,
		TaskDescription: task,
		Config:          buildLoopConfig(cfg, skipReview, skipQA),
		Notify:          notify,
	}
}
