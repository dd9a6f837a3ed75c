package workspace

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rasenhq/rasen/internal/rasenerr"
)

// CreateWorktree creates an isolated git worktree for a run under
// <projectRoot>/<basePath>/<branch>, on a fresh branch off the current
// HEAD. This is an ambient convenience the run/resume CLI performs
// before invoking the Main Loop — the loop itself only ever reads
// HEAD/diff of whatever directory it is given.
func CreateWorktree(projectRoot, basePath, branch string) (string, error) {
	if err := runGit(projectRoot, "rev-parse", "--is-inside-work-tree"); err != nil {
		return "", rasenerr.Configuration("%s is not a git repository", projectRoot)
	}

	worktreeDir := filepath.Join(projectRoot, basePath, branch)
	if err := os.MkdirAll(filepath.Dir(worktreeDir), 0o755); err != nil {
		return "", rasenerr.Configuration("create worktree parent directory: %w", err)
	}

	if err := runGit(projectRoot, "worktree", "add", "-b", branch, worktreeDir); err != nil {
		return "", rasenerr.Git("create worktree for branch %s: %w", branch, err)
	}
	return worktreeDir, nil
}

// MergeWorktree merges branch into the project's current branch and
// removes the worktree directory. The caller is responsible for having
// committed any pending changes inside the worktree first.
func MergeWorktree(projectRoot, worktreeDir, branch string) error {
	if err := runGit(projectRoot, "merge", "--no-ff", branch); err != nil {
		return rasenerr.Git("merge branch %s: %w", branch, err)
	}
	if err := runGit(projectRoot, "worktree", "remove", worktreeDir, "--force"); err != nil {
		return rasenerr.Git("remove worktree %s: %w", worktreeDir, err)
	}
	if err := runGit(projectRoot, "branch", "-d", branch); err != nil {
		return rasenerr.Git("delete merged branch %s: %w", branch, err)
	}
	return nil
}

func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}
