package agent

import (
	"context"
	"os/exec"
	"sync/atomic"
	"time"
)

// activityClock records the time of the last observed line on either
// stream, guarded for concurrent access from the two drain goroutines
// and the idle watcher.
type activityClock struct {
	unixNano atomic.Int64
}

func newActivityClock() *activityClock {
	c := &activityClock{}
	c.touch()
	return c
}

func (c *activityClock) touch() {
	c.unixNano.Store(time.Now().UnixNano())
}

func (c *activityClock) idleFor() time.Duration {
	last := time.Unix(0, c.unixNano.Load())
	return time.Since(last)
}

type idleResult struct {
	fired atomic.Bool
}

func (r *idleResult) timedOut() bool { return r.fired.Load() }

// watchIdle kills cmd's process if no stdout/stderr activity is observed
// for idleTimeout. A zero idleTimeout disables the watcher.
func watchIdle(ctx context.Context, idleTimeout time.Duration, clock *activityClock, cmd *exec.Cmd) *idleResult {
	result := &idleResult{}
	if idleTimeout <= 0 {
		return result
	}

	go func() {
		ticker := time.NewTicker(idleTimeout / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if clock.idleFor() >= idleTimeout {
					result.fired.Store(true)
					if cmd.Process != nil {
						_ = cmd.Process.Kill()
					}
					return
				}
			}
		}
	}()

	return result
}
