package cli

import (
	"fmt"
	"os"

	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	reinitTask         string
	reinitKeepProgress bool
	reinitForce        bool
)

var reinitCmd = &cobra.Command{
	Use:   "reinit",
	Short: "Re-record the task for an existing workspace",
	Long: `Reinit updates the task description for an existing .rasen
workspace. By default it also clears the implementation plan and every
recorded attempt so the next run starts from a fresh plan; pass
--keep-progress to update only the task description.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := workspace.Find()
		if err != nil {
			if !reinitForce {
				return err
			}
			projectDir, err = os.Getwd()
			if err != nil {
				return err
			}
			return workspace.Init(projectDir, reinitTask, true)
		}

		if err := workspace.Reinit(projectDir, reinitTask, reinitKeepProgress); err != nil {
			return err
		}
		disp.Success(fmt.Sprintf("reinitialized task in %s", projectDir))
		return nil
	},
}

func init() {
	reinitCmd.Flags().StringVarP(&reinitTask, "task", "t", "", "new task description (required)")
	reinitCmd.Flags().BoolVar(&reinitKeepProgress, "keep-progress", false, "preserve the existing plan and attempt history")
	reinitCmd.Flags().BoolVar(&reinitForce, "force", false, "scaffold a new workspace if none exists")
	reinitCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(reinitCmd)
}
