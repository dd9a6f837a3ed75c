package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rasenhq/rasen/internal/daemon"
	"github.com/rasenhq/rasen/internal/logs"
	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

const followInterval = 500 * time.Millisecond

var (
	logsFollow bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View orchestrator logs",
	Long:  `Print the last N lines of the orchestrator's log file, optionally following it as new lines are appended.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := workspace.Find()
		if err != nil {
			return err
		}
		layout := workspace.NewLayout(projectDir)

		lines, err := logs.LastLines(layout.LogPath(), logsLines)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Println(line)
		}

		if !logsFollow {
			return nil
		}

		ctx, stop := daemon.NotifyShutdown(context.Background())
		defer stop()
		return logs.Follow(ctx, layout.LogPath(), followInterval, func(line string) {
			fmt.Println(line)
		})
	},
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 50, "number of lines to show")
	rootCmd.AddCommand(logsCmd)
}
