// Package atomicstore implements the crash-safe write-then-rename primitive
// and the advisory cross-process file lock every other store builds on.
package atomicstore

import (
	"os"
	"path/filepath"
	"syscall"
)

// LockMode selects the advisory lock flavor acquired on a path.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

// Unlock releases a lock acquired by Lock. Callers must defer it.
type Unlock func() error

// Lock acquires an advisory, cross-process lock on path, creating the file
// (and its parent directory) if absent. Shared locks allow concurrent
// readers; Exclusive locks are held by a single writer at a time. The
// returned Unlock releases the lock and closes the underlying descriptor;
// it is safe to call from a defer on every exit path, including error
// returns.
func Lock(path string, mode LockMode) (Unlock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	flockMode := syscall.LOCK_EX
	if mode == Shared {
		flockMode = syscall.LOCK_SH
	}

	if err := syscall.Flock(int(f.Fd()), flockMode); err != nil {
		_ = f.Close()
		return nil, err
	}

	return func() error {
		unlockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		closeErr := f.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}

// Write persists data to path by writing a sibling temporary file in the
// same directory and renaming it over the target. A reader of path never
// observes a partial write: the rename is atomic on POSIX filesystems, and
// a crash between the temp-file write and the rename leaves the prior
// content of path untouched.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return nil
}

// WriteLocked combines Write with an exclusive lock held for the duration
// of the write, the pattern every exclusive-lock writer in this codebase
// uses (plan, recovery, memory, metrics stores).
func WriteLocked(path string, data []byte) error {
	unlock, err := Lock(path, Exclusive)
	if err != nil {
		return err
	}
	defer unlock()

	return Write(path, data)
}

// ReadLocked reads path under a shared lock. If path does not exist, it
// returns os.ErrNotExist via the standard os.IsNotExist check, without
// creating the file as a side effect (callers rely on this to implement
// Plan/Memory/etc. "load returns nil when absent" semantics).
func ReadLocked(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	unlock, err := Lock(path, Shared)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return os.ReadFile(path)
}
