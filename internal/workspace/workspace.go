// Package workspace locates and lays out the .rasen state directory that
// holds an orchestration run's stores, logs, and prompt overrides. See
// SPEC_FULL.md §6 (state directory layout table).
package workspace

import (
	"os"
	"path/filepath"

	"github.com/rasenhq/rasen/internal/rasenerr"
)

// Dir is the name of the state directory created under a project root.
const Dir = ".rasen"

// Find walks up from the current working directory looking for a .rasen
// directory, the same way the teacher's workspace discovery walked up
// looking for .ralph. Returns the project root (the directory containing
// .rasen), not the .rasen directory itself.
func Find() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", rasenerr.Configuration("determine working directory: %w", err)
	}

	for {
		if info, statErr := os.Stat(filepath.Join(dir, Dir)); statErr == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", rasenerr.Configuration("no %s workspace found (run 'rasen init --task ...' first)", Dir)
		}
		dir = parent
	}
}

// StateDir returns the .rasen directory path for a project root.
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, Dir)
}

// Exists reports whether projectRoot already has a .rasen directory.
func Exists(projectRoot string) bool {
	info, err := os.Stat(StateDir(projectRoot))
	return err == nil && info.IsDir()
}

// Layout resolves every well-known file inside a project's .rasen state
// directory, and the one file rasen writes outside it.
type Layout struct {
	Root string // project root
	Dir  string // <root>/.rasen
}

func NewLayout(projectRoot string) Layout {
	return Layout{Root: projectRoot, Dir: StateDir(projectRoot)}
}

func (l Layout) PlanPath() string           { return filepath.Join(l.Dir, "state.json") }
func (l Layout) AttemptHistoryPath() string { return filepath.Join(l.Dir, "attempt_history.json") }
func (l Layout) GoodCommitsPath() string    { return filepath.Join(l.Dir, "good_commits.json") }
func (l Layout) MemoriesPath() string       { return filepath.Join(l.Dir, "memories.md") }
func (l Layout) StatusPath() string         { return filepath.Join(l.Dir, "status.json") }
func (l Layout) MetricsPath() string        { return filepath.Join(l.Dir, "metrics.json") }
func (l Layout) PIDPath() string            { return filepath.Join(l.Dir, "rasen.pid") }
func (l Layout) LogPath() string            { return filepath.Join(l.Dir, "rasen.log") }
func (l Layout) ConfigPath() string         { return filepath.Join(l.Dir, "config.yaml") }
func (l Layout) PromptsDir() string         { return filepath.Join(l.Dir, "prompts") }
func (l Layout) DebugLogsDir() string       { return filepath.Join(l.Dir, "debug_logs") }
func (l Layout) EscalationPath() string     { return filepath.Join(l.Root, "QA_ESCALATION.md") }

// TaskPath is where `rasen init --task` records the task description so
// `rasen run`/`resume` can recover it without having parsed it from a
// plan that may not exist yet.
func (l Layout) TaskPath() string { return filepath.Join(l.Dir, "task.txt") }

// WorktreePath records which isolated git worktree (if any) the active
// run is using, so `rasen merge` can find it later.
func (l Layout) WorktreePath() string { return filepath.Join(l.Dir, "worktree.json") }
