package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rasenhq/rasen/internal/rasenerr"
)

func fakeClaudeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary script is POSIX shell only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "claude")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestClaudeBackendRunCapturesResultAndTokens(t *testing.T) {
	script := fakeClaudeScript(t, `
cat > /dev/null
echo '{"type":"assistant","message":{"usage":{"input_tokens":7,"output_tokens":3}}}'
echo '{"type":"result","result":"build.done"}'
`)
	backend := NewClaudeBackend(script, nil)

	result, err := backend.Run(context.Background(), RunOptions{
		Prompt:  "do the thing",
		CWD:     t.TempDir(),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.StdoutText != "build.done" {
		t.Errorf("StdoutText = %q, want build.done", result.StdoutText)
	}
	if result.InputTokens != 7 || result.OutputTokens != 3 {
		t.Errorf("tokens = (%d, %d), want (7, 3)", result.InputTokens, result.OutputTokens)
	}
	if result.SessionID == "" {
		t.Error("SessionID should be populated")
	}
}

func TestClaudeBackendRunNonZeroExit(t *testing.T) {
	script := fakeClaudeScript(t, `
cat > /dev/null
echo "boom" >&2
exit 3
`)
	backend := NewClaudeBackend(script, nil)

	result, err := backend.Run(context.Background(), RunOptions{
		Prompt:  "x",
		CWD:     t.TempDir(),
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (non-zero exit is reported via ExitCode)", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.StderrText, "boom") {
		t.Errorf("StderrText = %q, want to contain boom", result.StderrText)
	}
}

func TestClaudeBackendRunHardTimeout(t *testing.T) {
	script := fakeClaudeScript(t, `
cat > /dev/null
sleep 5
`)
	backend := NewClaudeBackend(script, nil)

	_, err := backend.Run(context.Background(), RunOptions{
		Prompt:  "x",
		CWD:     t.TempDir(),
		Timeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Run() error = nil, want session timeout")
	}
	rerr, ok := rasenerr.As(err)
	if !ok || !rerr.Timeout {
		t.Fatalf("error = %v, want a timed-out session error", err)
	}
}

func TestClaudeBackendRunMissingBinary(t *testing.T) {
	backend := NewClaudeBackend(filepath.Join(t.TempDir(), "nonexistent-binary"), nil)

	_, err := backend.Run(context.Background(), RunOptions{
		Prompt:  "x",
		CWD:     t.TempDir(),
		Timeout: time.Second,
	})
	if err == nil {
		t.Fatal("Run() error = nil, want runner-unavailable error")
	}
}
