package qa

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

func basePlan() *types.ImplementationPlan {
	return &types.ImplementationPlan{
		TaskName: "demo",
		Subtasks: []types.Subtask{
			{ID: "s1", Description: "do the thing", Status: types.SubtaskCompleted},
		},
	}
}

func TestRunDisabledReturnsApprovedWithoutRunningBackend(t *testing.T) {
	backend := &scriptedBackend{}
	deps, _ := newDeps(t, backend, Config{Enabled: false})

	result, err := Run(context.Background(), deps, BuildScope, "", "task", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("Run() with QA disabled should approve")
	}
	if backend.calls != 0 {
		t.Errorf("backend.calls = %d, want 0", backend.calls)
	}
}

func TestRunApprovedOnFirstPass(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxIterations: 3})
	if err := plans.Save(basePlan()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	backend.onRun = func(call int, opts agent.RunOptions) {
		p, _ := plans.Load()
		p.QA = types.QAState{Status: types.QAApproved}
		_ = plans.Save(p)
	}

	result, err := Run(context.Background(), deps, BuildScope, "", "build the thing", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("Run() should approve when QA sets approved")
	}
	if backend.calls != 1 {
		t.Errorf("backend.calls = %d, want 1 (no fix session needed)", backend.calls)
	}
}

func TestRunPendingVerdictFailsClosed(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxIterations: 1})
	if err := plans.Save(basePlan()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := Run(context.Background(), deps, BuildScope, "", "task", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Approved {
		t.Error("a pending/no-signal verdict should fail closed to rejected")
	}
}

func TestRunRejectedThenApprovedRunsFixSession(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxIterations: 3, SessionDelay: time.Millisecond})
	if err := plans.Save(basePlan()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	seenFixPrompt := ""
	reviewCalls := 0
	backend.onRun = func(call int, opts agent.RunOptions) {
		if opts.AgentType == types.AgentQA {
			reviewCalls++
			p, _ := plans.Load()
			if reviewCalls == 1 {
				p.QA = types.QAState{Status: types.QARejected, Issues: []string{"missing error handling"}}
			} else {
				p.QA = types.QAState{Status: types.QAApproved}
			}
			_ = plans.Save(p)
		} else if opts.AgentType == types.AgentCoder {
			seenFixPrompt = opts.Prompt
		}
	}

	result, err := Run(context.Background(), deps, BuildScope, "", "task", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("Run() should eventually approve")
	}
	if backend.calls != 3 {
		t.Errorf("backend.calls = %d, want 3 (qa, coder fix, qa)", backend.calls)
	}
	if !strings.Contains(seenFixPrompt, "missing error handling") {
		t.Errorf("fix prompt %q does not carry QA issues", seenFixPrompt)
	}
}

func TestRunRecurringIssueEscalates(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{
		Enabled:                 true,
		MaxIterations:           5,
		RecurringIssueThreshold: 3,
		SessionDelay:            time.Millisecond,
	})
	if err := plans.Save(basePlan()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	qaCalls := 0
	variants := []string{"Type errors in parser", "type errors in parser", "TYPE ERRORS IN PARSER"}
	backend.onRun = func(call int, opts agent.RunOptions) {
		if opts.AgentType != types.AgentQA {
			return
		}
		idx := qaCalls
		if idx >= len(variants) {
			idx = len(variants) - 1
		}
		qaCalls++
		p, _ := plans.Load()
		p.QA = types.QAState{Status: types.QARejected, Issues: []string{variants[idx]}}
		_ = plans.Save(p)
	}

	result, err := Run(context.Background(), deps, BuildScope, "", "task", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Approved {
		t.Error("recurring issues should never approve")
	}

	escalationPath := filepath.Join(deps.ProjectDir, escalationFileName)
	content, err := os.ReadFile(escalationPath)
	if err != nil {
		t.Fatalf("expected escalation file to exist: %v", err)
	}
	if !strings.Contains(string(content), "type errors in parser") {
		t.Errorf("escalation file does not mention the recurring issue:\n%s", content)
	}
	if !strings.Contains(string(content), "occurred 3 times") {
		t.Errorf("escalation file does not record the occurrence count:\n%s", content)
	}
}

func TestRunMaxIterationsExhaustedWithoutRecurrenceFails(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxIterations: 2, RecurringIssueThreshold: 10})
	if err := plans.Save(basePlan()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	backend.onRun = func(call int, opts agent.RunOptions) {
		if opts.AgentType != types.AgentQA {
			return
		}
		p, _ := plans.Load()
		p.QA = types.QAState{Status: types.QARejected, Issues: []string{"flaky test"}}
		_ = plans.Save(p)
	}

	result, err := Run(context.Background(), deps, BuildScope, "", "task", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Approved {
		t.Error("exhausting max iterations without recurrence should still fail")
	}
	if _, err := os.Stat(filepath.Join(deps.ProjectDir, escalationFileName)); !os.IsNotExist(err) {
		t.Error("no escalation file should be written absent a recurring issue")
	}
}

func TestRunQASessionFailureTreatsAsRejected(t *testing.T) {
	deps, plans := newDeps(t, failingBackend{}, Config{Enabled: true, MaxIterations: 1})
	if err := plans.Save(basePlan()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	result, err := Run(context.Background(), deps, BuildScope, "", "task", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Approved {
		t.Error("a QA session failure should fail closed to rejected")
	}
}

func TestRunSubtaskScopeReadsSubtaskQA(t *testing.T) {
	backend := &scriptedBackend{}
	deps, plans := newDeps(t, backend, Config{Enabled: true, MaxIterations: 1})
	if err := plans.Save(basePlan()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	backend.onRun = func(call int, opts agent.RunOptions) {
		p, _ := plans.Load()
		st := p.FindSubtask("s1")
		st.QA = &types.QAState{Status: types.QAApproved}
		_ = plans.Save(p)
	}

	result, err := Run(context.Background(), deps, SubtaskScope, "s1", "subtask qa", "HEAD")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Approved {
		t.Error("subtask-scope approval should read subtask.QA")
	}
}

func TestHistoryRecurringNormalizesIssueText(t *testing.T) {
	h := NewHistory()
	h.Record(iterationResult{Issues: []string{"  Foo Bar  "}})
	h.Record(iterationResult{Issues: []string{"foo bar"}})
	h.Record(iterationResult{Issues: []string{"FOO BAR"}})

	if !h.HasRecurring(3) {
		t.Error("HasRecurring(3) = false, want true after 3 case-varied repeats")
	}
	recurring := h.Recurring(3)
	if len(recurring) != 1 || recurring[0].Count != 3 {
		t.Errorf("Recurring(3) = %+v, want one entry with count 3", recurring)
	}
}
