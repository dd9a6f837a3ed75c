// Package agent wraps child-process invocations of the coding assistant
// CLI with session accounting, concurrent stream draining, and
// environment augmentation. See SPEC_FULL.md §4.H.
package agent

import (
	"context"
	"time"

	"github.com/rasenhq/rasen/internal/types"
)

// RunOptions describes a single agent session invocation.
type RunOptions struct {
	Prompt       string
	CWD          string
	Timeout      time.Duration
	IdleTimeout  time.Duration
	AgentType    types.AgentType
	Model        string
	AllowedTools []string
}

// SessionRunResult is what a session run produces, whether or not the
// child process itself succeeded.
type SessionRunResult struct {
	Args        []string
	ExitCode    int
	StdoutText  string
	StderrText  string
	SessionID   string
	InputTokens int
	OutputTokens int
	TotalTokens  int
}

// Backend executes one agent session synchronously, returning once the
// child exits, is killed on timeout, or fails to start.
type Backend interface {
	Name() string
	Run(ctx context.Context, opts RunOptions) (*SessionRunResult, error)
}
