// Package logs implements the `rasen logs` CLI command: reading the last
// N lines of the orchestrator's log file and optionally following it as
// new lines are appended, the way `tail -f` does. See SPEC_FULL.md §6,
// §9 FEATURE SUPPLEMENTS.
package logs

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/rasenhq/rasen/internal/rasenerr"
)

// LastLines returns up to n lines from the end of the file at path. A
// non-existent file yields an empty slice, not an error, so `rasen logs`
// on a run that hasn't started yet just prints nothing.
func LastLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rasenerr.Configuration("open log file %s: %w", path, err)
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if len(ring) < n {
			ring = append(ring, line)
			continue
		}
		copy(ring, ring[1:])
		ring[len(ring)-1] = line
	}
	if err := scanner.Err(); err != nil {
		return nil, rasenerr.Configuration("read log file %s: %w", path, err)
	}
	return ring, nil
}

// Follow prints new lines appended to path as they arrive, polling at the
// given interval, until ctx is cancelled. It seeks to the end of the
// current contents first, so only lines written after Follow starts are
// emitted — callers wanting history too should call LastLines first.
func Follow(ctx context.Context, path string, interval time.Duration, emit func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		return rasenerr.Configuration("open log file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return rasenerr.Configuration("seek log file %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if len(line) > 0 {
					emit(trimNewline(line))
				}
				if err != nil {
					break
				}
			}
		}
	}
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
