package cli

import (
	"fmt"
	"os"

	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	initTask  string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Record a task and scaffold the .rasen workspace",
	Long: `Initialize a new orchestration run in the current directory.

Creates .rasen/, records the task description for the initializer
session to expand into a plan on the next 'rasen run', and materializes
editable copies of the initializer/coder/reviewer/qa prompt templates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}

		if err := workspace.Init(cwd, initTask, initForce); err != nil {
			return err
		}

		disp.Success(fmt.Sprintf("initialized %s in %s", workspace.Dir, cwd))
		fmt.Println("Run 'rasen run' to start the orchestration loop.")
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&initTask, "task", "t", "", "task description (required)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "reinitialize an existing workspace")
	initCmd.MarkFlagRequired("task")
	rootCmd.AddCommand(initCmd)
}
