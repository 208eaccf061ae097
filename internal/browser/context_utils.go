// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext derives a context from primary that is also canceled when op
// is done, and that carries op's deadline. primary holds the chromedp tab
// values; op carries the caller's cancellation and timeout.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)

	stopDeadline := func() {}
	if deadline, ok := op.Deadline(); ok {
		ctx, stopDeadline = context.WithDeadline(ctx, deadline)
	}

	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		stopDeadline()
		cancel()
	}
}
