// internal/browser/poll.go
package browser

import (
	"context"
	"time"

	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

// PollCondition evaluates cond every interval until it holds, ctx ends or
// timeout elapses. Errors from cond are treated as "not yet" since pages
// are often mid-navigation; the last one is attached to the TimeoutError.
func PollCondition(ctx context.Context, b schemas.Browser, cond schemas.Condition, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = pollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond(ctx, b)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &schemas.TimeoutError{Operation: "condition", After: timeout, Err: lastErr}
		case <-ticker.C:
		}
	}
}
