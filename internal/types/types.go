// Package types holds the domain model shared by every store and sub-loop:
// the persisted plan/subtask graph, append-only attempt and memory records,
// the live status/metrics snapshots, and the transient event and loop-state
// shapes that never touch disk.
package types

import (
	"fmt"
	"time"
)

// ReviewState is the review verdict attached either to a Plan (build-level
// review) or to a single Subtask (per-subtask review).
type ReviewState struct {
	Status    ReviewStatus `json:"status"`
	Feedback  []string     `json:"feedback,omitempty"`
	Iteration int          `json:"iteration"`
}

// QAState is the QA verdict attached either to a Plan or to a single Subtask.
type QAState struct {
	Status         QAStatus `json:"status"`
	Issues         []string `json:"issues,omitempty"`
	Iteration      int      `json:"iteration"`
	RecurringIssues []string `json:"recurring_issues,omitempty"`
}

// Subtask is one unit of engineering work with its own lifecycle.
type Subtask struct {
	ID                 string        `json:"id"`
	Description        string        `json:"description"`
	Status             SubtaskStatus `json:"status"`
	Attempts           int           `json:"attempts"`
	LastApproach       string        `json:"last_approach,omitempty"`
	Title              string        `json:"title,omitempty"`
	Files              []string      `json:"files,omitempty"`
	Tests              []string      `json:"tests,omitempty"`
	Dependencies       []string      `json:"dependencies,omitempty"`
	AcceptanceCriteria []string      `json:"acceptance_criteria,omitempty"`
	Review             *ReviewState  `json:"review,omitempty"`
	QA                 *QAState      `json:"qa,omitempty"`
}

// Validate enforces the Subtask invariants from the data model.
func (s *Subtask) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("subtask: id required")
	}
	if s.Attempts < 0 {
		return fmt.Errorf("subtask %s: attempts must be >= 0, got %d", s.ID, s.Attempts)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("subtask %s: invalid status %q", s.ID, s.Status)
	}
	return nil
}

// MemoryNote is the lightweight plan-scoped memory shape (distinct from the
// standalone cross-session MemoryEntry persisted by the Memory Store).
type MemoryNote struct {
	SubtaskID string `json:"subtask_id,omitempty"`
	Content   string `json:"content"`
}

// PlanMemory holds the plan-scoped decisions/learnings lists.
type PlanMemory struct {
	Decisions []MemoryNote `json:"decisions,omitempty"`
	Learnings []MemoryNote `json:"learnings,omitempty"`
}

// PlanMetrics is an optional denormalized summary attached to a plan.
type PlanMetrics struct {
	TotalSessions int `json:"total_sessions,omitempty"`
	TotalCommits  int `json:"total_commits,omitempty"`
}

// ImplementationPlan is the single persisted plan for a task.
type ImplementationPlan struct {
	TaskName       string       `json:"task_name"`
	Subtasks       []Subtask    `json:"subtasks"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Project        string       `json:"project,omitempty"`
	Description    string       `json:"description,omitempty"`
	Notes          []string     `json:"notes,omitempty"`
	Review         ReviewState  `json:"review"`
	QA             QAState      `json:"qa"`
	Memory         PlanMemory   `json:"memory"`
	Metrics        *PlanMetrics `json:"metrics,omitempty"`
	SessionHistory []string     `json:"session_history,omitempty"`
}

// Validate enforces plan-level invariants before a write.
func (p *ImplementationPlan) Validate() error {
	if p.TaskName == "" {
		return fmt.Errorf("plan: task_name required")
	}
	seen := make(map[string]bool, len(p.Subtasks))
	for i := range p.Subtasks {
		if err := p.Subtasks[i].Validate(); err != nil {
			return err
		}
		if seen[p.Subtasks[i].ID] {
			return fmt.Errorf("plan: duplicate subtask id %q", p.Subtasks[i].ID)
		}
		seen[p.Subtasks[i].ID] = true
	}
	return nil
}

// CompletionStats returns (completed, total) subtask counts.
func (p *ImplementationPlan) CompletionStats() (completed, total int) {
	total = len(p.Subtasks)
	for i := range p.Subtasks {
		if p.Subtasks[i].Status == SubtaskCompleted {
			completed++
		}
	}
	return completed, total
}

// FindSubtask returns a pointer to the subtask with the given id, or nil.
func (p *ImplementationPlan) FindSubtask(id string) *Subtask {
	for i := range p.Subtasks {
		if p.Subtasks[i].ID == id {
			return &p.Subtasks[i]
		}
	}
	return nil
}

// AttemptRecord is one append-only entry in the Attempt & Recovery Store.
type AttemptRecord struct {
	SubtaskID    string    `json:"subtask_id"`
	Session      int       `json:"session"`
	Success      bool      `json:"success"`
	Approach     string    `json:"approach"`
	CommitHash   string    `json:"commit_hash,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// KnownGoodCommit is one append-only entry in the known-good commit log.
type KnownGoodCommit struct {
	Hash      string    `json:"hash"`
	SubtaskID string    `json:"subtask_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryEntry is one append-only entry in the cross-session Memory Store.
type MemoryEntry struct {
	ID        string     `json:"id"`
	Kind      MemoryKind `json:"kind"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// StatusInfo is the single live status row, overwritten atomically.
type StatusInfo struct {
	PID                 int       `json:"pid"`
	Iteration           int       `json:"iteration"`
	SubtaskID           string    `json:"subtask_id,omitempty"`
	SubtaskDescription  string    `json:"subtask_description,omitempty"`
	CurrentPhase        string    `json:"current_phase"`
	LastActivity        time.Time `json:"last_activity"`
	Status              string    `json:"status"`
	TotalCommits        int       `json:"total_commits"`
	CompletedSubtasks   int       `json:"completed_subtasks"`
	TotalSubtasks       int       `json:"total_subtasks"`
}

// SessionMetrics is one append-only per-session accounting record.
type SessionMetrics struct {
	SessionID      string        `json:"session_id"`
	AgentType      AgentType     `json:"agent_type"`
	SubtaskID      string        `json:"subtask_id,omitempty"`
	DurationSeconds float64      `json:"duration_seconds"`
	InputTokens    int           `json:"input_tokens"`
	OutputTokens   int           `json:"output_tokens"`
	TotalTokens    int           `json:"total_tokens"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	Status         SessionStatus `json:"status"`
	// QualityEvidence supplements G (see SPEC_FULL.md §3.1); non-gating.
	QualityEvidence *QualityEvidence `json:"quality_evidence,omitempty"`
}

// QualityEvidence records which textual quality claims a completion payload carried.
type QualityEvidence struct {
	TestsPass    bool `json:"tests_pass"`
	LintPass     bool `json:"lint_pass"`
	TypeCheckPass bool `json:"type_check_pass"`
}

// AggregateMetrics is the denormalized materialization kept in sync with
// every SessionMetrics append.
type AggregateMetrics struct {
	TotalSessions        int            `json:"total_sessions"`
	TotalDurationSeconds float64        `json:"total_duration_seconds"`
	TotalInputTokens     int            `json:"total_input_tokens"`
	TotalOutputTokens    int            `json:"total_output_tokens"`
	TotalTokens          int            `json:"total_tokens"`
	PerAgentSessions     map[string]int `json:"per_agent_sessions"`
	PerAgentTokens       map[string]int `json:"per_agent_tokens"`
	EarliestStartedAt    *time.Time     `json:"earliest_started_at,omitempty"`
	LatestCompletedAt    *time.Time     `json:"latest_completed_at,omitempty"`
}

// Event is a transient `<event topic="...">payload</event>` marker extracted
// from agent output. Never persisted by the core.
type Event struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// LoopState is the Main Loop's in-memory bookkeeping, recreated on every
// process start.
type LoopState struct {
	Iteration              int
	StartedAt              time.Time
	CurrentSubtaskID       string
	CompletionConfirmations int
	ConsecutiveFailures    int
	TotalCommits           int
	NoCommitCounts         map[string]int
}

// NewLoopState returns a zeroed LoopState ready for a fresh run.
func NewLoopState(now time.Time) *LoopState {
	return &LoopState{
		StartedAt:      now,
		NoCommitCounts: make(map[string]int),
	}
}
