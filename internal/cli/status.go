package cli

import (
	"fmt"

	"github.com/rasenhq/rasen/internal/daemon"
	"github.com/rasenhq/rasen/internal/git"
	"github.com/rasenhq/rasen/internal/planstore"
	"github.com/rasenhq/rasen/internal/statusstore"
	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var statusVerbose bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current orchestration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := workspace.Find()
		if err != nil {
			return err
		}
		layout := workspace.NewLayout(projectDir)

		daemonStatus, err := daemon.ReadStatus(layout.PIDPath())
		if err != nil {
			return err
		}
		if daemonStatus.Running {
			disp.Info("daemon", fmt.Sprintf("running, pid %d", daemonStatus.PID))
		} else if daemonStatus.Stale {
			disp.Warning(fmt.Sprintf("stale pid file found for pid %d (process no longer running)", daemonStatus.PID))
		} else {
			disp.Info("daemon", "not running")
		}

		status, err := statusstore.New(layout.StatusPath()).Load()
		if err != nil {
			return err
		}
		if status == nil {
			fmt.Println("No run has started yet.")
			return nil
		}

		fmt.Printf("Phase: %s\n", status.CurrentPhase)
		fmt.Printf("Status: %s\n", status.Status)
		fmt.Printf("Iteration: %d\n", status.Iteration)
		if status.SubtaskID != "" {
			fmt.Printf("Subtask: %s (%s)\n", status.SubtaskID, status.SubtaskDescription)
		}
		fmt.Printf("Subtasks: %d/%d complete\n", status.CompletedSubtasks, status.TotalSubtasks)
		fmt.Printf("Commits: %d\n", status.TotalCommits)
		fmt.Printf("Last activity: %s\n", status.LastActivity.Format("2006-01-02 15:04:05"))

		if statusVerbose {
			if err := printVerboseStatus(layout.Dir, projectDir); err != nil {
				return err
			}
		}
		return nil
	},
}

func printVerboseStatus(stateDir, projectDir string) error {
	plan, err := planstore.New(stateDir).Load()
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("Task: %s\n", plan.TaskName)
	for _, st := range plan.Subtasks {
		fmt.Printf("  [%s] %s - %s (attempts: %d)\n", st.Status, st.ID, st.Description, st.Attempts)
	}

	if git.IsRepo(projectDir) {
		dirty, err := git.HasUncommittedChanges(projectDir)
		if err == nil {
			fmt.Printf("\nWorking tree dirty: %v\n", dirty)
		}
		if msg, err := git.LastCommitMessage(projectDir); err == nil {
			fmt.Printf("Last commit: %s\n", msg)
		}
	}
	return nil
}

func init() {
	statusCmd.Flags().BoolVarP(&statusVerbose, "verbose", "v", false, "show per-subtask plan detail")
	rootCmd.AddCommand(statusCmd)
}
