// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives from tabCtx, which carries the CDP target, and is
// additionally canceled when opCtx is. opCtx supplies the caller's deadline
// and cancellation; tabCtx supplies the values chromedp needs.
func CombineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)

	if deadline, ok := opCtx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		combined, cancelDeadline = context.WithDeadline(combined, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}

	stop := context.AfterFunc(opCtx, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context with ctx's values but none of its cancellation.
// Cleanup that must run after a run has been canceled, such as restoring
// tabs or writing a failure screenshot, uses it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// Settle blocks for d or until ctx is done. A non-positive d returns at once.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
