package cli

import (
	"github.com/rasenhq/rasen/internal/config"
	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var resumeBackground bool

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume an interrupted orchestration run",
	Long: `Resume continues from the existing plan and stores in .rasen/
without re-running the initializer — identical to 'rasen run' once a
plan already exists, since the Main Loop always picks up the first
pending or in-progress subtask rather than starting over.`,
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

		if resumeBackground {
			return runInBackground(layout)
		}
		return runForeground(cfg, layout, task, false, false)
	},
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeBackground, "background", false, "resume as a background daemon")
	rootCmd.AddCommand(resumeCmd)
}
