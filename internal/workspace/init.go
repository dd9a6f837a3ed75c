package workspace

import (
	"fmt"
	"os"
	"strings"

	"github.com/rasenhq/rasen/internal/prompts"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/types"
)

var initRoles = []types.AgentType{
	types.AgentInitializer, types.AgentCoder, types.AgentReviewer, types.AgentQA,
}

// Init lays out a fresh .rasen state directory under projectRoot, records
// task as the description the initializer session will expand into a
// plan on the next `rasen run`, and materializes editable copies of every
// role's prompt template. It refuses to overwrite an existing workspace
// unless force is set.
func Init(projectRoot, task string, force bool) error {
	if strings.TrimSpace(task) == "" {
		return rasenerr.Configuration("task description must not be empty")
	}

	if Exists(projectRoot) && !force {
		return rasenerr.Configuration("%s workspace already exists at %s (use --force to reinitialize)", Dir, projectRoot)
	}

	layout := NewLayout(projectRoot)
	if err := os.MkdirAll(layout.Dir, 0o755); err != nil {
		return rasenerr.Configuration("create workspace directory %s: %w", layout.Dir, err)
	}
	if err := os.MkdirAll(layout.DebugLogsDir(), 0o755); err != nil {
		return rasenerr.Configuration("create debug log directory: %w", err)
	}

	if err := os.WriteFile(layout.TaskPath(), []byte(task), 0o644); err != nil {
		return rasenerr.Configuration("write task description: %w", err)
	}

	for _, role := range initRoles {
		if _, err := prompts.GetForWorkspace(layout.Dir, role); err != nil {
			return fmt.Errorf("materialize %s prompt: %w", role, err)
		}
	}

	return nil
}

// LoadTask reads back the task description recorded by Init.
func LoadTask(projectRoot string) (string, error) {
	data, err := os.ReadFile(NewLayout(projectRoot).TaskPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", rasenerr.Configuration("no task recorded (run 'rasen init --task ...' first)")
		}
		return "", rasenerr.Configuration("read task description: %w", err)
	}
	return string(data), nil
}

// Reinit re-records the task description for an existing workspace,
// optionally preserving the implementation plan and recorded attempts
// (keepProgress) or wiping every store so the next run starts clean.
func Reinit(projectRoot, task string, keepProgress bool) error {
	if !Exists(projectRoot) {
		return rasenerr.Configuration("no %s workspace found at %s (run 'rasen init --task ...' first)", Dir, projectRoot)
	}
	if strings.TrimSpace(task) == "" {
		return rasenerr.Configuration("task description must not be empty")
	}

	layout := NewLayout(projectRoot)
	if err := os.WriteFile(layout.TaskPath(), []byte(task), 0o644); err != nil {
		return rasenerr.Configuration("write task description: %w", err)
	}

	if keepProgress {
		return nil
	}

	for _, path := range []string{
		layout.PlanPath(), layout.AttemptHistoryPath(), layout.GoodCommitsPath(),
		layout.MemoriesPath(), layout.StatusPath(), layout.MetricsPath(),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return rasenerr.Configuration("clear %s: %w", path, err)
		}
	}
	return nil
}
