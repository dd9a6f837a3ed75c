// Package qa runs the QA-then-fix sub-loop invoked after all subtasks in
// a plan complete, escalating to a human-readable artifact when the same
// issue keeps recurring. See SPEC_FULL.md §4.K.
package qa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rasenhq/rasen/internal/agent"
	"github.com/rasenhq/rasen/internal/git"
	"github.com/rasenhq/rasen/internal/planstore"
	"github.com/rasenhq/rasen/internal/prompts"
	"github.com/rasenhq/rasen/internal/statusstore"
	"github.com/rasenhq/rasen/internal/types"
)

// Scope selects whether the verdict is read from a subtask's own QA field
// or from the plan's top-level QA field.
type Scope int

const (
	SubtaskScope Scope = iota
	BuildScope
)

const escalationFileName = "QA_ESCALATION.md"

// Config carries the qa.* knobs a caller resolves from the loaded
// configuration. Defined locally, not imported from a config package, to
// avoid a forward dependency.
type Config struct {
	Enabled                 bool
	MaxIterations           int
	RecurringIssueThreshold int
	SessionDelay            time.Duration
	Timeout                 time.Duration
	IdleTimeout             time.Duration
	Model                   string
	AllowedTools            []string
}

// Deps bundles the collaborators the sub-loop needs.
type Deps struct {
	Backend    agent.Backend
	Plans      *planstore.Store
	Status     *statusstore.Store
	StateDir   string
	ProjectDir string
	Config     Config
	Notify     func(string)
}

func (d Deps) notify(format string, args ...any) {
	if d.Notify != nil {
		d.Notify(fmt.Sprintf(format, args...))
	}
}

// Result is the sub-loop's outcome.
type Result struct {
	Approved bool
	Issues   []string
}

// iterationResult is one recorded QA verdict.
type iterationResult struct {
	Approved bool
	Issues   []string
}

// History accumulates every QA iteration's issues for recurring-issue
// detection across a single sub-loop invocation.
type History struct {
	issueCounts map[string]int
	iterations  []iterationResult
}

// NewHistory returns an empty accumulator.
func NewHistory() *History {
	return &History{issueCounts: make(map[string]int)}
}

// Record appends result and folds its issues into the running counts,
// normalizing each issue (case-folded, whitespace-trimmed) before counting.
func (h *History) Record(result iterationResult) {
	h.iterations = append(h.iterations, result)
	for _, issue := range result.Issues {
		h.issueCounts[normalizeIssue(issue)]++
	}
}

// HasRecurring reports whether any normalized issue has reached threshold.
func (h *History) HasRecurring(threshold int) bool {
	for _, count := range h.issueCounts {
		if count >= threshold {
			return true
		}
	}
	return false
}

type recurringIssue struct {
	Issue string
	Count int
}

// Recurring returns every normalized issue that has reached threshold.
func (h *History) Recurring(threshold int) []recurringIssue {
	var out []recurringIssue
	for issue, count := range h.issueCounts {
		if count >= threshold {
			out = append(out, recurringIssue{Issue: issue, Count: count})
		}
	}
	return out
}

func normalizeIssue(issue string) string {
	return strings.ToLower(strings.TrimSpace(issue))
}

// Run iterates the QA→fix cycle. subtaskID selects which subtask's QA
// field to read back when scope is SubtaskScope (the lightweight
// per-subtask variant); it is ignored for BuildScope, where the verdict is
// read from the plan's top-level QA field instead.
func Run(ctx context.Context, deps Deps, scope Scope, subtaskID, taskDescription, baselineCommit string) (Result, error) {
	if !deps.Config.Enabled {
		return Result{Approved: true}, nil
	}

	maxIterations := deps.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}
	threshold := deps.Config.RecurringIssueThreshold
	if threshold <= 0 {
		threshold = 3
	}

	history := NewHistory()

	for i := 1; i <= maxIterations; i++ {
		if deps.Status != nil {
			_ = deps.Status.SetPhase(fmt.Sprintf("QA %d/%d", i, maxIterations))
		}

		verdict, err := runQASession(ctx, deps, scope, subtaskID, taskDescription, baselineCommit)
		if err != nil {
			return Result{}, err
		}
		history.Record(iterationResult{Approved: verdict.Approved, Issues: verdict.Issues})

		if verdict.Approved {
			return Result{Approved: true}, nil
		}

		deps.notify("qa: rejected (iteration %d/%d): %d issue(s)", i, maxIterations, len(verdict.Issues))

		if history.HasRecurring(threshold) {
			recurring := history.Recurring(threshold)
			if err := writeEscalation(deps.ProjectDir, recurring, history); err != nil {
				deps.notify("qa: failed to write escalation file: %v", err)
			} else {
				deps.notify("qa: wrote %s — recurring issues require human intervention", escalationFileName)
			}
			return Result{Approved: false, Issues: verdict.Issues}, nil
		}

		if i == maxIterations {
			return Result{Approved: false, Issues: verdict.Issues}, nil
		}

		if err := runCoderFixSession(ctx, deps, verdict.Issues); err != nil {
			deps.notify("qa: fix session failed: %v", err)
		}

		if deps.Config.SessionDelay > 0 {
			time.Sleep(deps.Config.SessionDelay)
		}
	}

	return Result{Approved: false}, nil
}

func runQASession(ctx context.Context, deps Deps, scope Scope, subtaskID, taskDescription, baselineCommit string) (Result, error) {
	diff, err := git.Diff(deps.ProjectDir, baselineCommit)
	if err != nil {
		diff = "(diff unavailable: " + err.Error() + ")"
	}

	plan, err := deps.Plans.Load()
	if err != nil {
		return Result{}, err
	}

	prompt, err := prompts.Assemble(deps.StateDir, types.AgentQA, map[string]string{
		"task_description":   taskDescription,
		"implementation_plan": summarizePlan(plan),
		"full_git_diff":       diff,
		"test_results":        "(test results not separately captured)",
		"project_dir":         deps.ProjectDir,
	})
	if err != nil {
		deps.notify("qa: failed to assemble prompt: %v; treating as rejected", err)
		return Result{Approved: false, Issues: []string{"qa prompt assembly failed: " + err.Error()}}, nil
	}

	_, runErr := deps.Backend.Run(ctx, agent.RunOptions{
		Prompt:       prompt,
		CWD:          deps.ProjectDir,
		Timeout:      deps.Config.Timeout,
		IdleTimeout:  deps.Config.IdleTimeout,
		AgentType:    types.AgentQA,
		Model:        deps.Config.Model,
		AllowedTools: deps.Config.AllowedTools,
	})
	if runErr != nil {
		return Result{Approved: false, Issues: []string{"QA session failed: " + runErr.Error()}}, nil
	}

	return readVerdict(deps.Plans, scope, subtaskID)
}

func runCoderFixSession(ctx context.Context, deps Deps, issues []string) error {
	var issuesText strings.Builder
	for i, issue := range issues {
		if i > 0 {
			issuesText.WriteByte('\n')
		}
		issuesText.WriteString(strconv.Itoa(i + 1))
		issuesText.WriteString(". ")
		issuesText.WriteString(issue)
	}

	prompt, err := prompts.Assemble(deps.StateDir, types.AgentCoder, map[string]string{
		"subtask_id":                "qa-fix",
		"subtask_description":       "Fix QA issues:\n" + issuesText.String(),
		"attempt_number":            "qa-fix",
		"memory_context":            "",
		"failed_approaches_section": "",
		"project_dir":               deps.ProjectDir,
	})
	if err != nil {
		return err
	}

	_, err = deps.Backend.Run(ctx, agent.RunOptions{
		Prompt:       prompt,
		CWD:          deps.ProjectDir,
		Timeout:      deps.Config.Timeout,
		IdleTimeout:  deps.Config.IdleTimeout,
		AgentType:    types.AgentCoder,
		Model:        deps.Config.Model,
		AllowedTools: deps.Config.AllowedTools,
	})
	return err
}

// readVerdict reloads the plan and returns the QA state the QA session is
// expected to have mutated directly. Unlike review, a pending verdict
// defaults to rejected: QA silence is suspicious, not benign.
func readVerdict(store *planstore.Store, scope Scope, subtaskID string) (Result, error) {
	plan, err := store.Load()
	if err != nil {
		return Result{}, err
	}
	if plan == nil {
		return Result{Approved: false, Issues: []string{"no plan to validate"}}, nil
	}

	state := plan.QA
	if scope == SubtaskScope {
		st := plan.FindSubtask(subtaskID)
		if st == nil || st.QA == nil {
			return Result{Approved: false, Issues: []string{"no clear QA signal received"}}, nil
		}
		state = *st.QA
	}

	switch state.Status {
	case types.QAApproved:
		return Result{Approved: true}, nil
	case types.QARejected:
		issues := state.Issues
		if len(issues) == 0 {
			issues = []string{"rejected with no issues listed"}
		}
		return Result{Approved: false, Issues: issues}, nil
	default:
		return Result{Approved: false, Issues: []string{"no clear QA signal received"}}, nil
	}
}

func summarizePlan(plan *types.ImplementationPlan) string {
	if plan == nil {
		return "(no plan)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Total subtasks: %d\n", len(plan.Subtasks))
	for _, st := range plan.Subtasks {
		fmt.Fprintf(&b, "- %s: %s [%s]\n", st.ID, st.Description, st.Status)
	}
	return b.String()
}

// writeEscalation writes a human-readable escalation artifact at the
// project root describing the recurring issues and the full per-iteration
// history.
func writeEscalation(projectDir string, recurring []recurringIssue, history *History) error {
	var b strings.Builder

	b.WriteString("# QA Escalation - Human Intervention Required\n\n")
	b.WriteString("## Summary\n\n")
	b.WriteString("The QA validation loop has detected recurring issues that the agent cannot ")
	b.WriteString("resolve autonomously. Human review and intervention is required to proceed.\n\n")

	fmt.Fprintf(&b, "## Recurring Issues\n\n%d issue(s) have recurred:\n\n", len(recurring))
	for _, ri := range recurring {
		fmt.Fprintf(&b, "### Issue (occurred %d times)\n\n%s\n\n", ri.Count, ri.Issue)
	}

	fmt.Fprintf(&b, "## QA History\n\nTotal QA iterations: %d\n\n", len(history.iterations))
	for i, result := range history.iterations {
		status := "✅ APPROVED"
		if !result.Approved {
			status = "❌ REJECTED"
		}
		fmt.Fprintf(&b, "### Iteration %d: %s\n\n", i+1, status)
		if !result.Approved {
			b.WriteString("Issues found:\n")
			for _, issue := range result.Issues {
				fmt.Fprintf(&b, "- %s\n", issue)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Next Steps\n\n")
	b.WriteString("1. Review the recurring issues above\n")
	b.WriteString("2. Manually fix the issues or provide clearer guidance\n")
	b.WriteString("3. Delete this file when ready to resume\n")
	b.WriteString("4. Run `rasen resume` to continue\n")

	return os.WriteFile(filepath.Join(projectDir, escalationFileName), []byte(b.String()), 0o644)
}
