// Package daemon manages the PID-lockfile lifecycle for background runs.
//
// The Python original double-forked and redirected stdio itself. Go has no
// portable fork(); instead we background the run as a single child process
// in a new session (the CLI layer redirects its stdio to the log file and
// starts it with Setsid, detaching it from the controlling terminal) and rely on this package only
// for the PID-file bookkeeping and liveness checks every orchestrator CLI
// built this way needs. See SPEC_FULL.md §6.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rasenhq/rasen/internal/rasenerr"
)

// WritePID records the current process's PID at path, creating parent
// directories as needed.
func WritePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rasenerr.Configuration("create pid file directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return rasenerr.Configuration("write pid file %s: %w", path, err)
	}
	return nil
}

// ReadPID reads the PID recorded at path. Returns 0, nil if no PID file
// exists or its contents are not a positive integer.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, rasenerr.Configuration("read pid file %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// RemovePID deletes the PID file at path. Missing files are not an error.
func RemovePID(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return rasenerr.Configuration("remove pid file %s: %w", path, err)
	}
	return nil
}

// IsRunning reports whether a process with the given PID is alive, probed
// with signal 0 per the standard Unix liveness-check idiom.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Status reports whether a daemon is running and, if a stale PID file is
// left behind by a process that has since exited, that too.
type Status struct {
	Running bool
	PID     int
	Stale   bool
}

// ReadStatus inspects the PID file at path without mutating it.
func ReadStatus(path string) (Status, error) {
	pid, err := ReadPID(path)
	if err != nil {
		return Status{}, err
	}
	if pid == 0 {
		return Status{}, nil
	}
	running := IsRunning(pid)
	return Status{Running: running, PID: pid, Stale: !running}, nil
}

// EnsureNotRunning fails if a live process already owns the PID file at
// path, and clears the file if it is merely stale.
func EnsureNotRunning(path string) error {
	st, err := ReadStatus(path)
	if err != nil {
		return err
	}
	if st.Running {
		return rasenerr.Configuration("daemon already running with pid %d (stop it first)", st.PID)
	}
	if st.Stale {
		return RemovePID(path)
	}
	return nil
}

// Stop sends sig to the process recorded at path. Callers poll IsRunning
// themselves to implement the graceful-then-force escalation; this function
// only performs the single signal delivery and reports whether a live
// process was found to signal.
func Stop(path string, sig syscall.Signal) (pid int, found bool, err error) {
	pid, err = ReadPID(path)
	if err != nil {
		return 0, false, err
	}
	if pid == 0 || !IsRunning(pid) {
		return pid, false, nil
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return pid, true, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return pid, true, nil
}
