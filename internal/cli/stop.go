package cli

import (
	"fmt"
	"syscall"
	"time"

	"github.com/rasenhq/rasen/internal/daemon"
	"github.com/rasenhq/rasen/internal/workspace"
	"github.com/spf13/cobra"
)

var stopForce bool

const stopGraceTimeout = 30 * time.Second

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a background orchestration run",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := workspace.Find()
		if err != nil {
			return err
		}
		layout := workspace.NewLayout(projectDir)

		sig := syscall.SIGTERM
		if stopForce {
			sig = syscall.SIGKILL
		}

		pid, found, err := daemon.Stop(layout.PIDPath(), sig)
		if err != nil {
			return err
		}
		if !found {
			disp.Info("daemon", "not running")
			return daemon.RemovePID(layout.PIDPath())
		}

		if stopForce {
			disp.Success(fmt.Sprintf("sent SIGKILL to pid %d", pid))
			return daemon.RemovePID(layout.PIDPath())
		}

		disp.Info("daemon", fmt.Sprintf("sent SIGTERM to pid %d, waiting for graceful shutdown", pid))
		if daemon.AwaitExit(pid, 500*time.Millisecond, stopGraceTimeout) {
			disp.Success("stopped")
			return daemon.RemovePID(layout.PIDPath())
		}

		disp.Warning("did not stop gracefully, sending SIGKILL")
		if _, _, err := daemon.Stop(layout.PIDPath(), syscall.SIGKILL); err != nil {
			return err
		}
		return daemon.RemovePID(layout.PIDPath())
	},
}

func init() {
	stopCmd.Flags().BoolVar(&stopForce, "force", false, "send SIGKILL immediately instead of waiting for graceful shutdown")
	rootCmd.AddCommand(stopCmd)
}
