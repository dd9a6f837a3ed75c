package cli

import (
	"github.com/rasenhq/rasen/internal/git"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the active worktree's branch back into the project",
	Long: `Merge picks up the isolated git worktree recorded by a worktree-enabled
run, merges its branch back into the project's current branch with
--no-ff, and removes the worktree. It is a no-op, reported as such, when
worktree isolation was never used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := workspace.Find()
		if err != nil {
			return err
		}
		layout := workspace.NewLayout(projectDir)

		active, err := workspace.LoadActiveWorktree(layout)
		if err != nil {
			return err
		}
		if active.Path == "" {
			disp.Info("merge", "no active worktree recorded, nothing to merge")
			return nil
		}

		if dirty, err := git.HasUncommittedChanges(active.Path); err == nil && dirty {
			return rasenerr.Git("worktree %s has uncommitted changes, commit or discard them before merging", active.Path)
		}

		if err := workspace.MergeWorktree(projectDir, active.Path, active.Branch); err != nil {
			return err
		}
		if err := workspace.ClearActiveWorktree(layout); err != nil {
			return err
		}

		disp.Success("merged " + active.Branch + " and removed its worktree")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
