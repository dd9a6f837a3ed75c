package cli

import (
	"fmt"
	"os"

	"github.com/rasenhq/rasen/internal/display"
	"github.com/spf13/cobra"
)

var (
	// Version is set by goreleaser via ldflags
	Version = "dev"
	noColor bool
	disp    *display.Display
)

var rootCmd = &cobra.Command{
	Use:   "rasen",
	Short: "Agent orchestrator for long-running coding tasks",
	Long: `rasen drives a coding assistant through an implementation plan one
subtask at a time, gating completion claims on test/lint evidence and
optional Coder <-> Reviewer and Coder <-> QA sub-loops.

Typical workflow:
  rasen init --task "..."   Record the task and scaffold .rasen/
  rasen run                 Run the orchestration loop to completion
  rasen status               Check progress
  rasen logs -f              Follow orchestrator output`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		disp = display.NewWithOptions(noColor)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.SetVersionTemplate(fmt.Sprintf("rasen version %s\n", Version))
}

func exitError(msg string) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	os.Exit(1)
}
