// Package loop drives a single orchestrator process through the
// Starting→Planning→SelectingSubtask→Coding⟲→FinalValidation state
// machine. See SPEC_FULL.md §4.L.
package loop

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rasenhq/rasen/internal/agent"
	"github.com/rasenhq/rasen/internal/events"
	"github.com/rasenhq/rasen/internal/git"
	"github.com/rasenhq/rasen/internal/memorystore"
	"github.com/rasenhq/rasen/internal/metricsstore"
	"github.com/rasenhq/rasen/internal/planstore"
	"github.com/rasenhq/rasen/internal/prompts"
	"github.com/rasenhq/rasen/internal/qa"
	"github.com/rasenhq/rasen/internal/rasenerr"
	"github.com/rasenhq/rasen/internal/recoverystore"
	"github.com/rasenhq/rasen/internal/review"
	"github.com/rasenhq/rasen/internal/statusstore"
	"github.com/rasenhq/rasen/internal/types"
	"github.com/rasenhq/rasen/internal/validation"
)

// Config is the full set of orchestrator.*/stall_detection.*/review.*/qa.*
// knobs the loop needs, resolved by the caller from the loaded
// configuration.
type Config struct {
	MaxIterations          int
	MaxRuntime             time.Duration
	SessionDelay           time.Duration
	SessionTimeout         time.Duration
	IdleTimeout            time.Duration
	MaxNoCommitSessions    int
	MaxConsecutiveFailures int
	CircularFixThreshold   float64
	Model                  string
	AllowedTools           []string
	Backpressure           validation.Policy
	MemoryEnabled          bool
	MemoryMaxTokens        int
	ReviewPerSubtask       bool
	Review                 review.Config
	QA                     qa.Config
}

// Deps bundles every collaborator the loop drives.
type Deps struct {
	Backend         agent.Backend
	Plans           *planstore.Store
	Recovery        *recoverystore.Store
	Memory          *memorystore.Store
	Status          *statusstore.Store
	Metrics         *metricsstore.Store
	StateDir        string
	ProjectDir      string
	TaskDescription string
	Config          Config
	// Notify receives human-readable progress lines. Optional.
	Notify func(string)
}

func (d Deps) notify(format string, args ...any) {
	if d.Notify != nil {
		d.Notify(fmt.Sprintf(format, args...))
	}
}

// Loop is a single run of the Main Loop state machine.
type Loop struct {
	deps  Deps
	state *types.LoopState
}

// New returns a Loop ready to Run.
func New(deps Deps) *Loop {
	return &Loop{deps: deps}
}

// Run drives the state machine to termination, returning the reason and
// (for error/stall terminations) the underlying cause.
func (l *Loop) Run(ctx context.Context) (types.TerminationReason, error) {
	baseline := currentCommitOrEmpty(l.deps.ProjectDir)
	l.state = types.NewLoopState(time.Now())

	hasPlan, err := l.deps.Plans.HasPlan()
	if err != nil {
		return l.fail(types.TerminationError, err)
	}
	if !hasPlan {
		l.deps.notify("no plan found, invoking initializer")
		if err := l.runInitializer(ctx); err != nil {
			return l.fail(types.TerminationError, err)
		}
		hasPlan, err = l.deps.Plans.HasPlan()
		if err != nil {
			return l.fail(types.TerminationError, err)
		}
		if !hasPlan {
			return l.fail(types.TerminationError, rasenerr.Configuration("initializer completed but produced no plan"))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return l.fail(types.TerminationUserCancelled, rasenerr.UserCancelled())
		}

		if l.deps.Config.MaxIterations > 0 && l.state.Iteration >= l.deps.Config.MaxIterations {
			return l.fail(types.TerminationMaxIterations, nil)
		}
		if l.deps.Config.MaxRuntime > 0 && time.Since(l.state.StartedAt) >= l.deps.Config.MaxRuntime {
			return l.fail(types.TerminationMaxRuntime, nil)
		}

		subtask, err := l.deps.Plans.NextSubtask()
		if err != nil {
			return l.fail(types.TerminationError, err)
		}
		if subtask == nil {
			return l.finalValidation(ctx, baseline)
		}

		l.state.Iteration++
		l.state.CurrentSubtaskID = subtask.ID

		if err := l.deps.Plans.MarkInProgress(subtask.ID); err != nil {
			return l.fail(types.TerminationError, err)
		}
		l.updateStatus(subtask.ID, subtask.Description, "running")

		reason, terminal, err := l.runCodingIteration(ctx, subtask, baseline)
		if terminal {
			return l.fail(reason, err)
		}

		if l.deps.Config.SessionDelay > 0 {
			time.Sleep(l.deps.Config.SessionDelay)
		}
	}
}

// fail writes the terminal status shared by every exit path and passes
// reason/err through: "completed" for a clean completion, "interrupted"
// for a user cancellation, and "failed: <cause>" otherwise.
func (l *Loop) fail(reason types.TerminationReason, err error) (types.TerminationReason, error) {
	if reason == types.TerminationComplete {
		_ = l.deps.Status.MarkCompleted()
		return reason, err
	}
	if reason == types.TerminationUserCancelled {
		if status, loadErr := l.deps.Status.Load(); loadErr == nil && status != nil {
			status.Status = "interrupted"
			status.LastActivity = time.Now().UTC()
			_ = l.deps.Status.Update(status)
		}
		return reason, err
	}
	msg := reason.String()
	if err != nil {
		msg = err.Error()
	}
	_ = l.deps.Status.MarkFailed(msg)
	return reason, err
}

func (l *Loop) runInitializer(ctx context.Context) error {
	prompt, err := prompts.Assemble(l.deps.StateDir, types.AgentInitializer, map[string]string{
		"task_description": l.deps.TaskDescription,
		"project_dir":      l.deps.ProjectDir,
	})
	if err != nil {
		return err
	}

	result, err := l.runSession(ctx, types.AgentInitializer, "", prompt)
	if err != nil {
		return err
	}
	if !events.HasCompletion(events.Parse(result.StdoutText)) {
		return rasenerr.Session(result.SessionID, "initializer session did not emit init.done")
	}
	return nil
}

// runCodingIteration runs one coder session for subtask and classifies the
// outcome. terminal is true when the loop must stop immediately with
// reason/err; otherwise the caller proceeds to the next SelectingSubtask
// pass.
func (l *Loop) runCodingIteration(ctx context.Context, subtask *types.Subtask, baseline string) (types.TerminationReason, bool, error) {
	commitBefore := currentCommitOrEmpty(l.deps.ProjectDir)

	memoryContext := ""
	if l.deps.Config.MemoryEnabled && l.deps.Memory != nil {
		if formatted, err := l.deps.Memory.FormatForInjection(l.deps.Config.MemoryMaxTokens); err == nil {
			memoryContext = formatted
		}
	}

	failedSection := ""
	attemptNumber := 1
	if l.deps.Recovery != nil {
		if count, err := l.deps.Recovery.AttemptCount(subtask.ID); err == nil {
			attemptNumber = count + 1
		}
		if attemptNumber > 1 {
			if hints, err := l.deps.Recovery.RecoveryHints(subtask.ID, l.deps.Config.CircularFixThreshold); err == nil && len(hints) > 0 {
				failedSection = "## Recovery Context\n"
				for _, hint := range hints {
					failedSection += "- " + hint + "\n"
				}
			}
		}
	}

	prompt, err := prompts.Assemble(l.deps.StateDir, types.AgentCoder, map[string]string{
		"subtask_id":                subtask.ID,
		"subtask_description":       subtask.Description,
		"attempt_number":            strconv.Itoa(attemptNumber),
		"memory_context":            memoryContext,
		"failed_approaches_section": failedSection,
		"project_dir":               l.deps.ProjectDir,
	})
	if err != nil {
		return types.TerminationError, true, err
	}

	result, runErr := l.runSession(ctx, types.AgentCoder, subtask.ID, prompt)

	commitsMade := 0
	if commitBefore != "" {
		if n, err := git.CountNewCommits(l.deps.ProjectDir, commitBefore); err == nil {
			commitsMade = n
		}
	}

	if commitsMade == 0 {
		l.state.NoCommitCounts[subtask.ID]++
		if l.deps.Config.MaxNoCommitSessions > 0 && l.state.NoCommitCounts[subtask.ID] >= l.deps.Config.MaxNoCommitSessions {
			return types.TerminationStalled, true, rasenerr.Stall(types.TerminationStalled,
				"subtask %s stalled: %d sessions with no commits", subtask.ID, l.state.NoCommitCounts[subtask.ID])
		}
	} else {
		l.state.NoCommitCounts[subtask.ID] = 0
		l.state.TotalCommits += commitsMade
	}

	l.recordAttempt(subtask, result, runErr)

	if runErr != nil {
		l.state.ConsecutiveFailures++
		l.deps.notify("session error on %s: %v", subtask.ID, runErr)
	} else {
		evts := events.Parse(result.StdoutText)
		switch {
		case events.HasCompletion(evts) && validation.ValidateCompletion(evts, l.deps.Config.Backpressure):
			approved, feedback, err := l.maybeReview(ctx, subtask, commitBefore)
			if err != nil {
				return types.TerminationError, true, err
			}
			if approved {
				if err := l.deps.Plans.MarkComplete(subtask.ID); err != nil {
					return types.TerminationError, true, err
				}
				if l.deps.Recovery != nil {
					if head := currentCommitOrEmpty(l.deps.ProjectDir); head != "" {
						_ = l.deps.Recovery.RecordGoodCommit(head, subtask.ID)
					}
				}
				l.state.ConsecutiveFailures = 0
			} else {
				l.deps.notify("review rejected %s: %v", subtask.ID, feedback)
				l.state.ConsecutiveFailures++
			}

		case events.HasCompletion(evts):
			l.deps.notify("subtask %s claimed done but failed backpressure validation", subtask.ID)
			l.state.ConsecutiveFailures++

		case events.HasBlocked(evts):
			if err := l.deps.Plans.MarkFailed(subtask.ID); err != nil {
				return types.TerminationError, true, err
			}
			l.state.ConsecutiveFailures++

		default:
			l.state.ConsecutiveFailures++
		}
	}

	if l.deps.Config.MaxConsecutiveFailures > 0 && l.state.ConsecutiveFailures >= l.deps.Config.MaxConsecutiveFailures {
		return types.TerminationConsecutiveFailures, true, rasenerr.Stall(types.TerminationConsecutiveFailures,
			"%d consecutive failures", l.state.ConsecutiveFailures)
	}

	return "", false, nil
}

// maybeReview runs the per-subtask Review sub-loop when enabled; when
// disabled it reports an unconditional pass.
func (l *Loop) maybeReview(ctx context.Context, subtask *types.Subtask, commitBefore string) (bool, []string, error) {
	if !l.deps.Config.Review.Enabled || !l.deps.Config.ReviewPerSubtask {
		return true, nil, nil
	}
	result, err := review.Run(ctx, l.reviewDeps(), review.SubtaskScope, subtask, commitBefore)
	if err != nil {
		return false, nil, err
	}
	return result.Approved, result.Feedback, nil
}

func (l *Loop) finalValidation(ctx context.Context, baseline string) (types.TerminationReason, error) {
	if l.deps.Config.Review.Enabled && !l.deps.Config.ReviewPerSubtask {
		synthetic := &types.Subtask{ID: "build-complete", Description: "the whole build"}
		result, err := review.Run(ctx, l.reviewDeps(), review.BuildScope, synthetic, baseline)
		if err != nil {
			return l.fail(types.TerminationError, err)
		}
		if !result.Approved {
			return l.fail(types.TerminationError, rasenerr.Validation("build-level review rejected: %v", result.Feedback))
		}
	}

	if l.deps.Config.QA.Enabled {
		result, err := qa.Run(ctx, l.qaDeps(), qa.BuildScope, "", l.deps.TaskDescription, baseline)
		if err != nil {
			return l.fail(types.TerminationError, err)
		}
		if !result.Approved {
			return l.fail(types.TerminationError, rasenerr.Validation("QA rejected: %v", result.Issues))
		}
	}

	return l.fail(types.TerminationComplete, nil)
}

func (l *Loop) reviewDeps() review.Deps {
	return review.Deps{
		Backend:    l.deps.Backend,
		Plans:      l.deps.Plans,
		Status:     l.deps.Status,
		StateDir:   l.deps.StateDir,
		ProjectDir: l.deps.ProjectDir,
		Config:     l.deps.Config.Review,
		Notify:     l.deps.Notify,
	}
}

func (l *Loop) qaDeps() qa.Deps {
	return qa.Deps{
		Backend:    l.deps.Backend,
		Plans:      l.deps.Plans,
		Status:     l.deps.Status,
		StateDir:   l.deps.StateDir,
		ProjectDir: l.deps.ProjectDir,
		Config:     l.deps.Config.QA,
		Notify:     l.deps.Notify,
	}
}

// runSession invokes the backend for role and records metrics for the
// attempt regardless of outcome.
func (l *Loop) runSession(ctx context.Context, role types.AgentType, subtaskID, prompt string) (*agent.SessionRunResult, error) {
	started := time.Now().UTC()
	result, err := l.deps.Backend.Run(ctx, agent.RunOptions{
		Prompt:       prompt,
		CWD:          l.deps.ProjectDir,
		Timeout:      l.deps.Config.SessionTimeout,
		IdleTimeout:  l.deps.Config.IdleTimeout,
		AgentType:    role,
		Model:        l.deps.Config.Model,
		AllowedTools: l.deps.Config.AllowedTools,
	})
	completed := time.Now().UTC()

	if l.deps.Metrics != nil {
		metrics := types.SessionMetrics{
			SubtaskID:       subtaskID,
			AgentType:       role,
			StartedAt:       started,
			CompletedAt:     &completed,
			DurationSeconds: completed.Sub(started).Seconds(),
		}
		if result != nil {
			metrics.SessionID = result.SessionID
			metrics.InputTokens = result.InputTokens
			metrics.OutputTokens = result.OutputTokens
			metrics.TotalTokens = result.TotalTokens
			if payload, ok := validation.ExtractCompletionSummary(events.Parse(result.StdoutText)); ok {
				evidence := validation.HasQualityEvidence(payload)
				metrics.QualityEvidence = &evidence
			}
		}
		switch {
		case err != nil:
			metrics.Status = types.SessionFailed
		case result != nil && events.HasBlocked(events.Parse(result.StdoutText)):
			metrics.Status = types.SessionBlocked
		case result != nil && events.HasCompletion(events.Parse(result.StdoutText)):
			metrics.Status = types.SessionComplete
		default:
			metrics.Status = types.SessionWorking
		}
		_ = l.deps.Metrics.RecordSession(metrics)
	}

	return result, err
}

func (l *Loop) recordAttempt(subtask *types.Subtask, result *agent.SessionRunResult, runErr error) {
	approach := subtask.Description
	if result != nil {
		if summary, ok := validation.ExtractCompletionSummary(events.Parse(result.StdoutText)); ok {
			approach = summary
		}
	}
	_ = l.deps.Plans.IncrementAttempts(subtask.ID, approach)

	if l.deps.Recovery == nil {
		return
	}
	success := runErr == nil && result != nil && result.ExitCode == 0 && events.HasCompletion(events.Parse(result.StdoutText))
	commitHash := ""
	errorMessage := ""
	if success {
		commitHash = currentCommitOrEmpty(l.deps.ProjectDir)
	} else {
		errorMessage = lastSessionOutput(result, runErr)
	}
	_ = l.deps.Recovery.RecordAttempt(subtask.ID, l.state.Iteration, success, approach, commitHash, errorMessage)
}

// lastSessionOutput returns the last 500 bytes of a failed session's output,
// preferring the assistant's own text over raw process stderr, falling back
// to the run error itself when no session output exists at all.
func lastSessionOutput(result *agent.SessionRunResult, runErr error) string {
	const maxLen = 500
	text := ""
	switch {
	case result != nil && result.StdoutText != "":
		text = result.StdoutText
	case result != nil && result.StderrText != "":
		text = result.StderrText
	case runErr != nil:
		text = runErr.Error()
	}
	if len(text) <= maxLen {
		return text
	}
	return text[len(text)-maxLen:]
}

func (l *Loop) updateStatus(subtaskID, description, status string) {
	if l.deps.Status == nil {
		return
	}
	completed, total, err := l.deps.Plans.CompletionStats()
	if err != nil {
		completed, total = 0, 0
	}
	_ = l.deps.Status.Update(&types.StatusInfo{
		PID:                os.Getpid(),
		Iteration:          l.state.Iteration,
		SubtaskID:          subtaskID,
		SubtaskDescription: description,
		CurrentPhase:       status,
		LastActivity:       time.Now().UTC(),
		Status:             status,
		TotalCommits:       l.state.TotalCommits,
		CompletedSubtasks:  completed,
		TotalSubtasks:      total,
	})
}

func currentCommitOrEmpty(projectDir string) string {
	if !git.IsRepo(projectDir) {
		return ""
	}
	commit, err := git.CurrentCommit(projectDir)
	if err != nil {
		return ""
	}
	return commit
}
