package review

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rasenhq/rasen/internal/agent"
	"github.com/rasenhq/rasen/internal/planstore"
	"github.com/rasenhq/rasen/internal/statusstore"
	"github.com/rasenhq/rasen/internal/types"
)

// scriptedBackend returns a canned verdict-setting effect on each call,
// driven by a caller-supplied function so tests can mutate the plan the
// way a real reviewer/coder session would via its own tool access.
type scriptedBackend struct {
	calls int
	onRun func(call int, opts agent.RunOptions)
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Run(ctx context.Context, opts agent.RunOptions) (*agent.SessionRunResult, error) {
	b.calls++
	if b.onRun != nil {
		b.onRun(b.calls, opts)
	}
	return &agent.SessionRunResult{ExitCode: 0}, nil
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) Run(ctx context.Context, opts agent.RunOptions) (*agent.SessionRunResult, error) {
	return nil, errors.New("backend unavailable")
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
			"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "a.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func newDeps(t *testing.T, backend agent.Backend, cfg Config) (Deps, *planstore.Store) {
	t.Helper()
	stateDir := t.TempDir()
	projectDir := initRepo(t)
	plans := planstore.New(stateDir)
	status := statusstore.New(filepath.Join(stateDir, "status.json"))
	return Deps{
		Backend:    backend,
		Plans:      plans,
		Status:     status,
		StateDir:   stateDir,
		ProjectDir: projectDir,
		Config:     cfg,
	}, plans
}

func basePlan(subtaskID string) *types.ImplementationPlan {
	return &types.ImplementationPlan{
		TaskName: "demo",
		Subtasks: []types.Subtask{
			{ID: subtaskID, Description: "do the thing", Status: types.SubtaskInProgress},
		},
	}
}

func TestRunDisabledReturnsApprovedWithoutRunningBackend(t *testing.T) {
	backend := &scriptedBackend{}
	deps, _ := newDeps(t, backend, Config{Enabled: false})

	result, err := Run(context.Background(), deps, SubtaskScope, &types.Subtask{ID: "s1"}, "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("Run() with review disabled should approve")
	}
	if backend.calls != 0 {
		t.Errorf("backend.calls = %d, want 0", backend.calls)
	}
}

func TestRunApprovedOnFirstPass(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxLoops: 3})
	plan := basePlan("s1")
	plan.Subtasks[0].Review = &types.ReviewState{Status: types.ReviewPending}
	if err := plans.Save(plan); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	backend.onRun = func(call int, opts agent.RunOptions) {
		p, _ := plans.Load()
		st := p.FindSubtask("s1")
		st.Review = &types.ReviewState{Status: types.ReviewApproved}
		_ = plans.Save(p)
	}

	result, err := Run(context.Background(), deps, SubtaskScope, &plan.Subtasks[0], "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("Run() should approve when reviewer sets approved")
	}
	if backend.calls != 1 {
		t.Errorf("backend.calls = %d, want 1 (no fix session needed)", backend.calls)
	}
}

func TestRunPendingVerdictFailsOpen(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxLoops: 2})
	plan := basePlan("s1")
	if err := plans.Save(plan); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := Run(context.Background(), deps, SubtaskScope, &plan.Subtasks[0], "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("pending verdict should fail open to approved")
	}
}

func TestRunChangesRequestedThenApprovedRunsFixSession(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxLoops: 3, SessionDelay: time.Millisecond})
	plan := basePlan("s1")
	if err := plans.Save(plan); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	seenFixPrompt := ""
	backend.onRun = func(call int, opts agent.RunOptions) {
		p, _ := plans.Load()
		st := p.FindSubtask("s1")
		switch {
		case opts.AgentType == types.AgentReviewer && call == 1:
			st.Review = &types.ReviewState{Status: types.ReviewChangesRequested, Feedback: []string{"add type hints"}}
			_ = plans.Save(p)
		case opts.AgentType == types.AgentCoder:
			seenFixPrompt = opts.Prompt
		case opts.AgentType == types.AgentReviewer:
			st.Review = &types.ReviewState{Status: types.ReviewApproved}
			_ = plans.Save(p)
		}
	}

	result, err := Run(context.Background(), deps, SubtaskScope, &plan.Subtasks[0], "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("Run() should eventually approve")
	}
	if backend.calls != 3 {
		t.Errorf("backend.calls = %d, want 3 (reviewer, coder fix, reviewer)", backend.calls)
	}
	if !strings.Contains(seenFixPrompt, "add type hints") {
		t.Errorf("fix prompt %q does not carry reviewer feedback", seenFixPrompt)
	}
}

func TestRunChangesRequestedOnLastIterationFails(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxLoops: 1})
	plan := basePlan("s1")
	if err := plans.Save(plan); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	backend.onRun = func(call int, opts agent.RunOptions) {
		p, _ := plans.Load()
		st := p.FindSubtask("s1")
		st.Review = &types.ReviewState{Status: types.ReviewChangesRequested, Feedback: []string{"still broken"}}
		_ = plans.Save(p)
	}

	result, err := Run(context.Background(), deps, SubtaskScope, &plan.Subtasks[0], "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Approved {
		t.Error("Run() should fail when the last iteration still requests changes")
	}
	if len(result.Feedback) != 1 || result.Feedback[0] != "still broken" {
		t.Errorf("Feedback = %v, want [\"still broken\"]", result.Feedback)
	}
}

func TestRunReviewerSessionFailureFailsOpen(t *testing.T) {
	deps, plans := newDeps(t, failingBackend{}, Config{Enabled: true, MaxLoops: 2})
	plan := basePlan("s1")
	if err := plans.Save(plan); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := Run(context.Background(), deps, SubtaskScope, &plan.Subtasks[0], "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("a reviewer session failure should fail open to approved")
	}
}

func TestRunBuildScopeReadsPlanLevelReview(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxLoops: 2})
	plan := basePlan("s1")
	if err := plans.Save(plan); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	backend.onRun = func(call int, opts agent.RunOptions) {
		p, _ := plans.Load()
		p.Review = types.ReviewState{Status: types.ReviewApproved}
		_ = plans.Save(p)
	}

	synthetic := &types.Subtask{ID: "build-complete", Description: "the whole build"}
	result, err := Run(context.Background(), deps, BuildScope, synthetic, "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("build-scope approval should read plan.Review, not a subtask")
	}
}
