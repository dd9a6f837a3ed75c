package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rasenhq/rasen/internal/config"
	"github.com/rasenhq/rasen/internal/daemon"
	"github.com/rasenhq/rasen/internal/loop"
	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	runBackground bool
	runSkipReview bool
	runSkipQA     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop",
	Long: `Run the Main Loop to completion: produce a plan if one doesn't
exist yet, then work through its subtasks one at a time until the task
is done, a stall guard trips, or an iteration/runtime budget is
exhausted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := workspace.Find()
		if err != nil {
			return err
		}
		layout := workspace.NewLayout(projectDir)

		cfg, err := config.Load(projectDir)
		if err != nil {
			return err
		}

		task, err := workspace.LoadTask(projectDir)
		if err != nil {
			return err
		}

		if runBackground {
			return runInBackground(layout)
		}

		return runForeground(cfg, layout, task, runSkipReview, runSkipQA)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runBackground, "background", false, "run as a background daemon")
	runCmd.Flags().BoolVar(&runSkipReview, "skip-review", false, "skip the Coder <-> Reviewer sub-loop")
	runCmd.Flags().BoolVar(&runSkipQA, "skip-qa", false, "skip the Coder <-> QA sub-loop")
	rootCmd.AddCommand(runCmd)
}

func runForeground(cfg *config.Config, layout workspace.Layout, task string, skipReview, skipQA bool) error {
	ctx, stop := daemon.NotifyShutdown(context.Background())
	defer stop()

	projectDir, err := resolveProjectDir(cfg, layout)
	if err != nil {
		return err
	}

	deps := buildLoopDeps(cfg, layout, projectDir, task, skipReview, skipQA, func(msg string) {
		disp.Info("loop", msg)
	})

	disp.LoopHeader(task)
	reason, err := loop.New(deps).Run(ctx)
	completed, total, _ := deps.Plans.CompletionStats()
	disp.Complete(reason, completed, total)

	if err != nil {
		return err
	}
	if reason.Failed() {
		os.Exit(1)
	}
	return nil
}

// resolveProjectDir returns the directory a run's agent sessions should
// work in: an isolated git worktree when worktree.enabled, reusing one
// already recorded for this workspace if present, or the project root
// unchanged when worktrees are disabled.
func resolveProjectDir(cfg *config.Config, layout workspace.Layout) (string, error) {
	if !cfg.Worktree.Enabled {
		return layout.Root, nil
	}

	active, err := workspace.LoadActiveWorktree(layout)
	if err != nil {
		return "", err
	}
	if active.Path != "" {
		return active.Path, nil
	}

	branch := fmt.Sprintf("rasen/%d", time.Now().Unix())
	path, err := workspace.CreateWorktree(layout.Root, cfg.Worktree.BasePath, branch)
	if err != nil {
		return "", err
	}
	if err := workspace.SaveActiveWorktree(layout, workspace.ActiveWorktree{Path: path, Branch: branch}); err != nil {
		return "", err
	}
	disp.Info("worktree", fmt.Sprintf("created %s on branch %s", path, branch))
	return path, nil
}

// runInBackground detaches stdio to the log file and re-execs the same
// command without --background, the way the teacher's daemon narrows the
// Python original's double-fork into a single background process rather
// than reimplementing fork() in Go.
func runInBackground(layout workspace.Layout) error {
	if err := daemon.EnsureNotRunning(layout.PIDPath()); err != nil {
		return err
	}

	logFile, err := os.OpenFile(layout.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"run", "--skip-review=" + boolFlag(runSkipReview), "--skip-qa=" + boolFlag(runSkipQA)}
	cmd := backgroundCommand(args, layout.Root, logFile)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start background run: %w", err)
	}
	if err := os.WriteFile(layout.PIDPath(), []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	disp.Success(fmt.Sprintf("started in background, pid %d (see %s)", cmd.Process.Pid, layout.LogPath()))
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
