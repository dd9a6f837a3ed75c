package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rasenhq/rasen/internal/rasenerr"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.name", "test")
	run("config", "user.email", "test@example.com")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestCurrentCommitReturnsFullSHA(t *testing.T) {
	dir := initRepo(t)
	commit, err := CurrentCommit(dir)
	if err != nil {
		t.Fatalf("CurrentCommit() error = %v", err)
	}
	if len(commit) != 40 {
		t.Errorf("CurrentCommit() = %q, want a 40-char SHA", commit)
	}
}

func TestCurrentCommitNonRepoReturnsGitError(t *testing.T) {
	dir := t.TempDir()
	_, err := CurrentCommit(dir)
	if err == nil {
		t.Fatal("expected error for non-repo directory")
	}
	if !rasenerr.IsKind(err, rasenerr.KindGit) {
		t.Errorf("error kind = %v, want KindGit", err)
	}
}

func TestCountNewCommitsAndDiff(t *testing.T) {
	dir := initRepo(t)
	baseline, err := CurrentCommit(dir)
	if err != nil {
		t.Fatalf("CurrentCommit() error = %v", err)
	}

	n, err := CountNewCommits(dir, baseline)
	if err != nil {
		t.Fatalf("CountNewCommits() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountNewCommits() = %d, want 0 before any new commit", n)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("two\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	commitFile(t, dir, "a.txt", "second")

	n, err = CountNewCommits(dir, baseline)
	if err != nil {
		t.Fatalf("CountNewCommits() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountNewCommits() = %d, want 1", n)
	}

	diff, err := Diff(dir, baseline)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if !strings.Contains(diff, "-one") || !strings.Contains(diff, "+two") {
		t.Errorf("Diff() = %q, want it to show the one->two change", diff)
	}
}

func commitFile(t *testing.T, dir, path, message string) {
	t.Helper()
	for _, args := range [][]string{
		{"add", path},
		{"commit", "-q", "-m", message},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
}

func TestIsRepo(t *testing.T) {
	repo := initRepo(t)
	if !IsRepo(repo) {
		t.Error("IsRepo() = false for a real repo")
	}
	if IsRepo(t.TempDir()) {
		t.Error("IsRepo() = true for a non-repo directory")
	}
}

func TestHasUncommittedChanges(t *testing.T) {
	dir := initRepo(t)
	dirty, err := HasUncommittedChanges(dir)
	if err != nil {
		t.Fatalf("HasUncommittedChanges() error = %v", err)
	}
	if dirty {
		t.Error("HasUncommittedChanges() = true right after commit")
	}

	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	dirty, err = HasUncommittedChanges(dir)
	if err != nil {
		t.Fatalf("HasUncommittedChanges() error = %v", err)
	}
	if !dirty {
		t.Error("HasUncommittedChanges() = false with an untracked file present")
	}
}

func TestLastCommitMessage(t *testing.T) {
	dir := initRepo(t)
	msg, err := LastCommitMessage(dir)
	if err != nil {
		t.Fatalf("LastCommitMessage() error = %v", err)
	}
	if msg != "initial" {
		t.Errorf("LastCommitMessage() = %q, want %q", msg, "initial")
	}
}
