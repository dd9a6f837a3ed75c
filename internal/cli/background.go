package cli

import (
	"os"
	"os/exec"
	"syscall"
)

// backgroundCommand re-execs the current binary with args, detached into
// its own session so it outlives the invoking shell, with stdio
// redirected to logFile. Grounded on the self-re-exec-detached pattern
// used to spawn a background runner when none is alive.
func backgroundCommand(args []string, dir string, logFile *os.File) *exec.Cmd {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}

	cmd := exec.Command(self, args...)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}
