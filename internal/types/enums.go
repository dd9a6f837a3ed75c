package types

// SubtaskStatus is the lifecycle state of a single unit of engineering work.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
)

// IsValid reports whether s is one of the recognized subtask statuses.
func (s SubtaskStatus) IsValid() bool {
	switch s {
	case SubtaskPending, SubtaskInProgress, SubtaskCompleted, SubtaskFailed:
		return true
	}
	return false
}

func (s SubtaskStatus) String() string { return string(s) }

// AgentType selects which prompt template and write-access expectations apply to a session.
type AgentType string

const (
	AgentInitializer AgentType = "initializer"
	AgentCoder       AgentType = "coder"
	AgentReviewer    AgentType = "reviewer"
	AgentQA          AgentType = "qa"
)

func (a AgentType) IsValid() bool {
	switch a {
	case AgentInitializer, AgentCoder, AgentReviewer, AgentQA:
		return true
	}
	return false
}

func (a AgentType) String() string { return string(a) }

// ReadOnly reports whether the role must not modify the working tree.
func (a AgentType) ReadOnly() bool {
	return a == AgentReviewer || a == AgentQA
}

// SessionStatus is the terminal outcome of a single agent invocation.
type SessionStatus string

const (
	SessionComplete SessionStatus = "complete"
	SessionBlocked  SessionStatus = "blocked"
	SessionWorking  SessionStatus = "working"
	SessionFailed   SessionStatus = "failed"
)

func (s SessionStatus) String() string { return string(s) }

// MemoryKind classifies an entry in the cross-session memory store.
type MemoryKind string

const (
	MemoryPattern  MemoryKind = "pattern"
	MemoryDecision MemoryKind = "decision"
	MemoryFix      MemoryKind = "fix"
)

func (k MemoryKind) IsValid() bool {
	switch k {
	case MemoryPattern, MemoryDecision, MemoryFix:
		return true
	}
	return false
}

func (k MemoryKind) String() string { return string(k) }

// Section returns the Markdown section heading this kind is filed under.
func (k MemoryKind) Section() string {
	switch k {
	case MemoryPattern:
		return "Patterns"
	case MemoryDecision:
		return "Decisions"
	case MemoryFix:
		return "Fixes"
	default:
		return "Patterns"
	}
}

// ReviewStatus is the verdict recorded by the Review Sub-loop.
type ReviewStatus string

const (
	ReviewPending           ReviewStatus = "pending"
	ReviewApproved          ReviewStatus = "approved"
	ReviewChangesRequested  ReviewStatus = "changes_requested"
)

func (r ReviewStatus) String() string { return string(r) }

// QAStatus is the verdict recorded by the QA Sub-loop.
type QAStatus string

const (
	QAPending  QAStatus = "pending"
	QAApproved QAStatus = "approved"
	QARejected QAStatus = "rejected"
)

func (q QAStatus) String() string { return string(q) }

// TerminationReason is the cause recorded when the Main Loop stops.
type TerminationReason string

const (
	TerminationComplete            TerminationReason = "complete"
	TerminationError               TerminationReason = "error"
	TerminationStalled             TerminationReason = "stalled"
	TerminationConsecutiveFailures TerminationReason = "consecutive-failures"
	TerminationMaxIterations       TerminationReason = "max-iterations"
	TerminationMaxRuntime          TerminationReason = "max-runtime"
	TerminationUserCancelled       TerminationReason = "user-cancelled"
)

func (t TerminationReason) String() string { return string(t) }

// Failed reports whether this termination reason represents a non-success outcome.
func (t TerminationReason) Failed() bool {
	return t != TerminationComplete
}
