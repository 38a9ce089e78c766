package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backlog wait defaults.
const (
	DefaultPollInterval = time.Second
	DefaultWaitTimeout  = 300 * time.Second
)

// PollUntil evaluates cond every interval until it reports true, returns an
// error, or timeout elapses. The first check runs immediately.
//
// It returns ErrTimeout when the deadline passes and ctx.Err() when the
// caller's context ends first.
func PollUntil(ctx context.Context, interval, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		return validationf("poll interval must be > 0")
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: condition not met within %v", ErrTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// WaitForBacklog blocks until the agent has no pending index jobs.
func (e *MemoryEngine) WaitForBacklog(ctx context.Context, agentID string, opts WaitOptions) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultWaitTimeout
	}
	err := PollUntil(ctx, opts.PollInterval, opts.Timeout, func(ctx context.Context) (bool, error) {
		stats, err := e.GetStats(ctx, agentID)
		if err != nil {
			return false, err
		}
		return stats.PendingOperations == 0, nil
	})
	if errors.Is(err, ErrTimeout) {
		return fmt.Errorf("waiting for agent %s backlog: %w", agentID, err)
	}
	return err
}
