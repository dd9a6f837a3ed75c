package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rasenhq/rasen/internal/rasenerr"
)

// ClaudeBackend runs the Claude Code CLI as a child process.
type ClaudeBackend struct {
	BinaryPath string
	// EnvPrefixes lists the environment-variable name prefixes that
	// AugmentEnv scans shell init files for (e.g. "ANTHROPIC_").
	EnvPrefixes []string
}

// NewClaudeBackend resolves binaryPath (or "claude" if empty) against
// PATH and a handful of common install locations.
func NewClaudeBackend(binaryPath string, envPrefixes []string) *ClaudeBackend {
	if binaryPath == "" {
		binaryPath = "claude"
	}
	return &ClaudeBackend{
		BinaryPath:  resolveBinaryPath(binaryPath),
		EnvPrefixes: envPrefixes,
	}
}

func resolveBinaryPath(binaryPath string) string {
	if filepath.IsAbs(binaryPath) {
		return binaryPath
	}
	if path, err := exec.LookPath(binaryPath); err == nil {
		return path
	}

	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, ".claude", "local", "claude"),
		"/usr/local/bin/claude",
		"/opt/homebrew/bin/claude",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return binaryPath
}

func (c *ClaudeBackend) Name() string { return "claude" }

func (c *ClaudeBackend) buildArgs(opts RunOptions) []string {
	args := []string{"--output-format", "stream-json", "--verbose"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	return args
}

// Run spawns the child, delivers the prompt on stdin, drains stdout and
// stderr concurrently, and applies hard and idle timeouts.
func (c *ClaudeBackend) Run(ctx context.Context, opts RunOptions) (*SessionRunResult, error) {
	sessionID := uuid.NewString()
	args := c.buildArgs(opts)

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.BinaryPath, args...)
	cmd.Dir = opts.CWD
	cmd.Env = AugmentEnv(os.Environ(), c.EnvPrefixes)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, rasenerr.Session(sessionID, "create stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, rasenerr.Session(sessionID, "create stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, rasenerr.Session(sessionID, "create stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || strings.Contains(err.Error(), "executable file not found") {
			return nil, rasenerr.Session(sessionID, "runner unavailable: %s not found", c.BinaryPath)
		}
		return nil, rasenerr.Session(sessionID, "start: %v", err)
	}

	go func() {
		_, _ = io.WriteString(stdin, opts.Prompt)
		_ = stdin.Close()
	}()

	lastActivity := newActivityClock()

	var wg sync.WaitGroup
	var stdoutBuf, rawStdoutBuf, stderrBuf bytes.Buffer
	var tokens tokenAccumulator

	wg.Add(2)
	go func() {
		defer wg.Done()
		drainStdout(stdout, &stdoutBuf, &rawStdoutBuf, &tokens, lastActivity)
	}()
	go func() {
		defer wg.Done()
		drainLines(stderr, &stderrBuf, lastActivity)
	}()

	idleCtx, idleCancel := context.WithCancel(runCtx)
	defer idleCancel()
	idleTimedOut := watchIdle(idleCtx, opts.IdleTimeout, lastActivity, cmd)

	wg.Wait()
	waitErr := cmd.Wait()
	idleCancel()

	result := &SessionRunResult{
		Args:         args,
		SessionID:    sessionID,
		StderrText:   stderrBuf.String(),
		InputTokens:  tokens.input,
		OutputTokens: tokens.output,
		TotalTokens:  tokens.input + tokens.output,
	}
	if stdoutBuf.Len() > 0 {
		result.StdoutText = stdoutBuf.String()
	} else {
		result.StdoutText = rawStdoutBuf.String()
	}

	if idleTimedOut.timedOut() {
		return result, rasenerr.SessionIdleTimeout(sessionID, int(opts.IdleTimeout.Seconds()))
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return result, rasenerr.SessionTimeout(sessionID, int(opts.Timeout.Seconds()))
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, rasenerr.Session(sessionID, "wait: %v", waitErr)
	}

	return result, nil
}

func drainLines(r io.Reader, buf *bytes.Buffer, clock *activityClock) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		clock.touch()
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
}
