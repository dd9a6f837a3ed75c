// Package review runs the reviewer-then-fix sub-loop invoked after a
// subtask claims completion (or over the whole build during final
// validation). See SPEC_FULL.md §4.J.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/rasenhq/rasen/internal/agent"
	"github.com/rasenhq/rasen/internal/git"
	"github.com/rasenhq/rasen/internal/planstore"
	"github.com/rasenhq/rasen/internal/prompts"
	"github.com/rasenhq/rasen/internal/statusstore"
	"github.com/rasenhq/rasen/internal/types"
)

// Scope selects whether the verdict is read from a subtask's own Review
// field or from the plan's top-level, build-wide Review field.
type Scope int

const (
	SubtaskScope Scope = iota
	BuildScope
)

// Config carries the review.* knobs a caller resolves from the loaded
// configuration. Defined locally, not imported from a config package, to
// avoid a forward dependency — mirrors internal/validation's Policy.
type Config struct {
	Enabled      bool
	MaxLoops     int
	SessionDelay time.Duration
	Timeout      time.Duration
	IdleTimeout  time.Duration
	Model        string
	AllowedTools []string
}

// Deps bundles the collaborators the sub-loop needs, all already
// constructed by the caller.
type Deps struct {
	Backend    agent.Backend
	Plans      *planstore.Store
	Status     *statusstore.Store
	StateDir   string
	ProjectDir string
	Config     Config
	// Notify receives human-readable progress/diagnostic lines. Optional;
	// a nil Notify is treated as a no-op.
	Notify func(string)
}

func (d Deps) notify(format string, args ...any) {
	if d.Notify != nil {
		d.Notify(fmt.Sprintf(format, args...))
	}
}

// Result is the sub-loop's outcome.
type Result struct {
	Approved bool
	Feedback []string
}

// Run iterates the reviewer→fix cycle for subtask (which may be a
// synthetic "build-complete" placeholder when scope is BuildScope; it is
// only used for its ID and Description, never persisted). baselineCommit
// is the commit the diff is computed from.
func Run(ctx context.Context, deps Deps, scope Scope, subtask *types.Subtask, baselineCommit string) (Result, error) {
	if !deps.Config.Enabled {
		return Result{Approved: true}, nil
	}

	maxLoops := deps.Config.MaxLoops
	if maxLoops <= 0 {
		maxLoops = 1
	}

	for i := 1; i <= maxLoops; i++ {
		if deps.Status != nil {
			_ = deps.Status.SetPhase(fmt.Sprintf("Review %d/%d", i, maxLoops))
		}

		diff, err := git.Diff(deps.ProjectDir, baselineCommit)
		if err != nil {
			diff = fmt.Sprintf("(diff unavailable: %v)", err)
		}

		prompt, err := prompts.Assemble(deps.StateDir, types.AgentReviewer, map[string]string{
			"subtask_id":          subtask.ID,
			"subtask_description": subtask.Description,
			"git_diff":            diff,
			"project_dir":         deps.ProjectDir,
		})
		if err != nil {
			deps.notify("review: failed to assemble reviewer prompt: %v; treating as approved", err)
			return Result{Approved: true}, nil
		}

		_, runErr := deps.Backend.Run(ctx, agent.RunOptions{
			Prompt:       prompt,
			CWD:          deps.ProjectDir,
			Timeout:      deps.Config.Timeout,
			IdleTimeout:  deps.Config.IdleTimeout,
			AgentType:    types.AgentReviewer,
			Model:        deps.Config.Model,
			AllowedTools: deps.Config.AllowedTools,
		})
		if runErr != nil {
			deps.notify("review: reviewer session failed: %v; treating as approved", runErr)
			return Result{Approved: true}, nil
		}

		verdict, err := readVerdict(deps.Plans, scope, subtask.ID)
		if err != nil {
			return Result{}, err
		}

		switch verdict.Status {
		case types.ReviewApproved, types.ReviewPending, "":
			return Result{Approved: true}, nil

		case types.ReviewChangesRequested:
			if i == maxLoops {
				return Result{Approved: false, Feedback: verdict.Feedback}, nil
			}

			fixPrompt, err := prompts.Assemble(deps.StateDir, types.AgentCoder, map[string]string{
				"subtask_id":                subtask.ID,
				"subtask_description":       "Fix review issues: " + joinFeedback(verdict.Feedback),
				"attempt_number":            "fix",
				"memory_context":            "",
				"failed_approaches_section": "",
				"project_dir":               deps.ProjectDir,
			})
			if err != nil {
				deps.notify("review: failed to assemble fix prompt: %v; treating as approved", err)
				return Result{Approved: true}, nil
			}

			if _, err := deps.Backend.Run(ctx, agent.RunOptions{
				Prompt:       fixPrompt,
				CWD:          deps.ProjectDir,
				Timeout:      deps.Config.Timeout,
				IdleTimeout:  deps.Config.IdleTimeout,
				AgentType:    types.AgentCoder,
				Model:        deps.Config.Model,
				AllowedTools: deps.Config.AllowedTools,
			}); err != nil {
				deps.notify("review: fix session failed: %v", err)
			}

			if deps.Config.SessionDelay > 0 {
				time.Sleep(deps.Config.SessionDelay)
			}

		default:
			return Result{Approved: true}, nil
		}
	}

	return Result{Approved: true}, nil
}

// readVerdict reloads the plan and returns the review state the reviewer
// session is expected to have mutated directly.
func readVerdict(store *planstore.Store, scope Scope, subtaskID string) (types.ReviewState, error) {
	plan, err := store.Load()
	if err != nil {
		return types.ReviewState{}, err
	}
	if plan == nil {
		return types.ReviewState{Status: types.ReviewPending}, nil
	}

	if scope == BuildScope {
		return plan.Review, nil
	}

	st := plan.FindSubtask(subtaskID)
	if st == nil || st.Review == nil {
		return types.ReviewState{Status: types.ReviewPending}, nil
	}
	return *st.Review, nil
}

func joinFeedback(feedback []string) string {
	out := ""
	for i, f := range feedback {
		if i > 0 {
			out += "; "
		}
		out += f
	}
	return out
}
