// File: internal/browser/executor.go
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// executor is the seam between the input choreography and the CDP transport.
// Tests substitute a recording implementation so press/move/release sequences
// can be asserted without a live browser.
type executor interface {
	// Sleep pauses between events, respecting the context.
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent sends a single low-level mouse event.
	DispatchMouseEvent(ctx context.Context, p *input.DispatchMouseEventParams) error

	// DispatchKeyEvent sends a single low-level key event.
	DispatchKeyEvent(ctx context.Context, p *input.DispatchKeyEventParams) error

	// InsertText inserts literal text at the current focus, like an IME
	// commit. No per-character key events are produced.
	InsertText(ctx context.Context, text string) error
}

// cdpExecutor is the production executor. The cdproto param types all
// implement chromedp.Action, so dispatch is a plain Run through the driver's
// context bridge.
type cdpExecutor struct {
	run func(ctx context.Context, actions ...chromedp.Action) error
}

func (e *cdpExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return e.run(ctx, chromedp.Sleep(d))
}

func (e *cdpExecutor) DispatchMouseEvent(ctx context.Context, p *input.DispatchMouseEventParams) error {
	return e.run(ctx, p)
}

func (e *cdpExecutor) DispatchKeyEvent(ctx context.Context, p *input.DispatchKeyEventParams) error {
	return e.run(ctx, p)
}

func (e *cdpExecutor) InsertText(ctx context.Context, text string) error {
	return e.run(ctx, input.InsertText(text))
}
