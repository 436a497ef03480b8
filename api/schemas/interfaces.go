// api/schemas/interfaces.go
// Description: Capability interfaces supplied by external collaborators. The
// engine consumes these contracts and never reaches below them; platform
// specifics (display capture, OS event injection, model transports) live
// entirely on the other side.

package schemas

import (
	"context"
	"image"
	"time"
)

// Capture produces raster frames of the display being driven.
//
// Implementations must return a fully decoded image; the engine treats the
// frame as read-only and consumes it immediately. Latency is expected to be
// bounded but no specific deadline is imposed here - callers wrap capture
// calls in their own contexts.
type Capture interface {
	// Capture grabs the full frame.
	Capture(ctx context.Context) (image.Image, error)

	// CaptureRegion grabs only the given sub-region of the frame. The
	// returned image's coordinate space starts at (0, 0); callers that need
	// full-frame geometry re-apply the region offset themselves.
	CaptureRegion(ctx context.Context, region Region) (image.Image, error)
}

// Input injects synthetic mouse and keyboard events. All methods are
// synchronous: they return once the event has been queued with the OS or
// transport, not necessarily once the target application reacted to it.
type Input interface {
	// Click moves the pointer to (x, y) and presses the given button
	// `clicks` times (2 for a double click).
	Click(ctx context.Context, x, y int, button MouseButton, clicks int) error

	// MoveTo moves the pointer to (x, y) without pressing a button.
	MoveTo(ctx context.Context, x, y int) error

	// TypeText writes literal text at the current focus.
	TypeText(ctx context.Context, text string) error

	// Hotkey presses the given keys as a chord, for example ("ctrl", "c").
	Hotkey(ctx context.Context, keys ...string) error

	// Scroll scrolls vertically at the current pointer position. Positive
	// amounts scroll down, negative amounts scroll up.
	Scroll(ctx context.Context, amount int) error

	// Drag presses the left button at (fromX, fromY), moves to (toX, toY)
	// over the given duration, and releases.
	Drag(ctx context.Context, fromX, fromY, toX, toY int, duration time.Duration) error
}

// DecisionSource turns a frame plus a goal into raw plan text. The two modes
// mirror how callers use a vision-capable model: Plan drives the agent loop,
// Describe answers open-ended questions about the frame.
//
// Any error returned here is a transport-level failure and is fatal to the
// run that triggered it. A model that *can* respond but judges the goal
// unreachable signals that inside the returned text (see the planner
// package), not through an error.
type DecisionSource interface {
	// Plan produces the next-action plan text for the goal, given the frame
	// and summaries of the most recent steps.
	Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error)

	// Describe answers the prompt about the frame in free-form text.
	Describe(ctx context.Context, frame image.Image, prompt string) (string, error)
}

// WindowContext is an optional collaborator exposing the OS window state.
// The engine core never requires it; the automation handle surfaces it to
// callers composing higher-level scripts.
type WindowContext interface {
	// ActiveWindow returns the currently focused window.
	ActiveWindow(ctx context.Context) (WindowInfo, error)
}
