// File: internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// combineContext derives a context from primary that is additionally cancelled
// when secondary ends. chromedp reads the CDP target from context values, so
// the browser context must stay the value parent while the caller's context
// contributes only its lifetime.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext exposes a parent's values while dropping its deadline and
// cancellation signal.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// detach returns a context that keeps ctx's values but ignores its
// cancellation. Cleanup events (releasing a held mouse button after a failed
// drag) must still reach the browser after the operation's context died.
func detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
