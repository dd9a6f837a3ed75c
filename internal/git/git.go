// Package git wraps the handful of read-only git operations the loop and
// review/QA sub-loops need to inspect a target project's history. See
// SPEC_FULL.md §4 (Review/QA) and §3.1 (ambient git diagnostics).
package git

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/rasenhq/rasen/internal/rasenerr"
)

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", rasenerr.Git("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", rasenerr.Git("git %s: %v", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// CurrentCommit returns the full SHA-1 of HEAD.
func CurrentCommit(projectDir string) (string, error) {
	out, err := run(projectDir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CountNewCommits returns the number of commits made since sinceCommit,
// exclusive of sinceCommit itself.
func CountNewCommits(projectDir, sinceCommit string) (int, error) {
	out, err := run(projectDir, "rev-list", "--count", sinceCommit+"..HEAD")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, rasenerr.Git("invalid commit count %q: %v", out, convErr)
	}
	return n, nil
}

// Diff returns the diff between sinceCommit and HEAD.
func Diff(projectDir, sinceCommit string) (string, error) {
	return run(projectDir, "diff", sinceCommit, "HEAD")
}

// IsRepo reports whether dir is inside a git working tree. Unlike the other
// operations here it never returns an error: a non-repo is a valid answer,
// not a failure.
func IsRepo(dir string) bool {
	_, err := run(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

// HasUncommittedChanges reports whether the working tree has any pending
// changes (staged, unstaged, or untracked).
func HasUncommittedChanges(projectDir string) (bool, error) {
	out, err := run(projectDir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// LastCommitMessage returns the subject+body of the most recent commit.
func LastCommitMessage(projectDir string) (string, error) {
	out, err := run(projectDir, "log", "-1", "--pretty=%B")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
