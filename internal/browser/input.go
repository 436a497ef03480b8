// File: internal/browser/input.go
// Description: The schemas.Input implementation. Every gesture is decomposed
// into the raw CDP event sequence a real session produces: clicks are
// press/release pairs with incrementing click counts, drags hold the buttons
// bitfield across intermediate moves, chords press modifiers before the final
// key and release them in reverse. Paths and pacing come from the motion
// planner when human motion is on.

package browser

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/api/schemas"
)

// Pacing for human-motion mode. Raw mode skips all of these.
const (
	// clickHold is how long the button stays down within one click.
	clickHold = 60 * time.Millisecond
	// clickGap separates the press pairs of a multi-click.
	clickGap = 90 * time.Millisecond
	// dragHold is the pause between pressing and starting to move.
	dragHold = 120 * time.Millisecond
	// dragSettle is the pause between arriving and releasing.
	dragSettle = 80 * time.Millisecond
	// defaultDragDuration paces a drag when the caller passes none.
	defaultDragDuration = 400 * time.Millisecond
	// wheelTick is the scroll distance of one notch in CSS pixels.
	wheelTick = 120.0
	// wheelGap separates per-notch wheel events.
	wheelGap = 40 * time.Millisecond
)

// Click moves the pointer to (x, y) and presses the button the given number
// of times. Press pairs carry an incrementing click count so the page sees
// native double and triple clicks.
func (d *Driver) Click(ctx context.Context, x, y int, button schemas.MouseButton, clicks int) error {
	btn, err := cdpButton(button)
	if err != nil {
		return err
	}
	if clicks < 1 {
		clicks = 1
	}

	if err := d.MoveTo(ctx, x, y); err != nil {
		return err
	}

	fx, fy := float64(x), float64(y)
	for i := 1; i <= clicks; i++ {
		press := input.DispatchMouseEvent(input.MousePressed, fx, fy).
			WithButton(btn).
			WithButtons(buttonsBit(btn)).
			WithClickCount(int64(i))
		if err := d.exec.DispatchMouseEvent(ctx, press); err != nil {
			return fmt.Errorf("browser: failed to press %s button: %w", button, err)
		}
		if err := d.pause(ctx, clickHold); err != nil {
			return err
		}

		// After release the buttons bitfield no longer includes the button.
		release := input.DispatchMouseEvent(input.MouseReleased, fx, fy).
			WithButton(btn).
			WithClickCount(int64(i))
		if err := d.exec.DispatchMouseEvent(ctx, release); err != nil {
			return fmt.Errorf("browser: failed to release %s button: %w", button, err)
		}

		if i < clicks {
			if err := d.pause(ctx, clickGap); err != nil {
				return err
			}
		}
	}
	return nil
}

// MoveTo glides the pointer to (x, y). With human motion enabled the pointer
// follows a generated path paced over a Fitts's-law duration; in raw mode a
// single move event jumps straight to the target.
func (d *Driver) MoveTo(ctx context.Context, x, y int) error {
	return d.glide(ctx, image.Pt(x, y), input.None, 0)
}

// TypeText inserts the text at the current focus as a single commit, the way
// an IME would. Pages that key off individual keystrokes should be driven
// with Hotkey instead.
func (d *Driver) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := d.exec.InsertText(ctx, text); err != nil {
		return fmt.Errorf("browser: failed to insert text: %w", err)
	}
	return nil
}

// Hotkey presses the keys as one chord: each key goes down in order with the
// modifier bitmask accumulated so far, then they come back up in reverse.
func (d *Driver) Hotkey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("browser: hotkey requires at least one key")
	}

	defs := make([]keyDef, 0, len(keys))
	for _, name := range keys {
		def, err := lookupKey(name)
		if err != nil {
			return err
		}
		defs = append(defs, def)
	}

	var mods input.Modifier
	pressed := make([]keyDef, 0, len(defs))

	// A failure mid-chord leaves keys held; bring them back up before
	// reporting. The cleanup events ride a detached context because the
	// operation's context may already be dead.
	releasePressed := func() {
		cleanupCtx := detach(ctx)
		for i := len(pressed) - 1; i >= 0; i-- {
			def := pressed[i]
			mods &^= def.Modifier
			if err := d.exec.DispatchKeyEvent(cleanupCtx, keyEvent(input.KeyUp, def, mods)); err != nil {
				d.log.Warn("Failed to release key during chord cleanup",
					zap.String("key", def.Key), zap.Error(err))
			}
		}
	}

	for _, def := range defs {
		mods |= def.Modifier
		if err := d.exec.DispatchKeyEvent(ctx, keyEvent(input.KeyDown, def, mods)); err != nil {
			releasePressed()
			return fmt.Errorf("browser: failed to press %s: %w", def.Key, err)
		}
		pressed = append(pressed, def)
	}

	for i := len(pressed) - 1; i >= 0; i-- {
		def := pressed[i]
		mods &^= def.Modifier
		if err := d.exec.DispatchKeyEvent(ctx, keyEvent(input.KeyUp, def, mods)); err != nil {
			pressed = pressed[:i]
			releasePressed()
			return fmt.Errorf("browser: failed to release %s: %w", def.Key, err)
		}
	}
	return nil
}

// Scroll dispatches wheel events at the current pointer position, one per
// notch. Positive amounts scroll down.
func (d *Driver) Scroll(ctx context.Context, amount int) error {
	if amount == 0 {
		return nil
	}
	notches := amount
	delta := wheelTick
	if amount < 0 {
		notches = -amount
		delta = -delta
	}

	pos := d.position()
	for i := 0; i < notches; i++ {
		ev := input.DispatchMouseEvent(input.MouseWheel, float64(pos.X), float64(pos.Y)).
			WithDeltaY(delta)
		if err := d.exec.DispatchMouseEvent(ctx, ev); err != nil {
			return fmt.Errorf("browser: failed to dispatch wheel event: %w", err)
		}
		if i < notches-1 {
			if err := d.pause(ctx, wheelGap); err != nil {
				return err
			}
		}
	}
	return nil
}

// Drag presses the left button at (fromX, fromY), glides to (toX, toY) with
// the button held, and releases. A non-positive duration falls back to the
// planner's pacing, or to a fixed default in raw mode.
func (d *Driver) Drag(ctx context.Context, fromX, fromY, toX, toY int, duration time.Duration) error {
	from := image.Pt(fromX, fromY)
	to := image.Pt(toX, toY)

	if err := d.glide(ctx, from, input.None, 0); err != nil {
		return err
	}
	if err := d.pause(ctx, dragHold); err != nil {
		return err
	}

	press := input.DispatchMouseEvent(input.MousePressed, float64(from.X), float64(from.Y)).
		WithButton(input.Left).
		WithButtons(buttonsBit(input.Left)).
		WithClickCount(1)
	if err := d.exec.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("browser: failed to press for drag: %w", err)
	}

	if duration <= 0 && d.planner == nil {
		duration = defaultDragDuration
	}

	// From here the button is down. Any failure must release it where the
	// pointer stopped so the page is not left mid-drag.
	if err := d.pause(ctx, dragHold); err != nil {
		d.releaseAt(ctx, d.position())
		return err
	}
	if err := d.glide(ctx, to, input.Left, duration); err != nil {
		d.releaseAt(ctx, d.position())
		return err
	}
	if err := d.pause(ctx, dragSettle); err != nil {
		d.releaseAt(ctx, d.position())
		return err
	}

	release := input.DispatchMouseEvent(input.MouseReleased, float64(to.X), float64(to.Y)).
		WithButton(input.Left).
		WithClickCount(1)
	if err := d.exec.DispatchMouseEvent(ctx, release); err != nil {
		return fmt.Errorf("browser: failed to release drag: %w", err)
	}
	return nil
}

// glide dispatches the move events taking the pointer from its current
// position to the target. Dragged glides carry the held button on every
// event. The pacing budget spreads evenly across the path's steps.
func (d *Driver) glide(ctx context.Context, to image.Point, held input.MouseButton, total time.Duration) error {
	d.mu.Lock()
	from := d.pos
	d.mu.Unlock()

	var path []image.Point
	switch {
	case d.planner != nil:
		path = d.planner.Path(from, to)
		if total <= 0 {
			total = d.planner.Duration(from, to)
		}
	case held != input.None:
		// Pages tracking drag thresholds need at least one intermediate
		// move before the pointer lands.
		path = []image.Point{midpoint(from, to), to}
	default:
		path = []image.Point{to}
		total = 0
	}

	var stepDelay time.Duration
	if total > 0 && len(path) > 1 {
		stepDelay = total / time.Duration(len(path))
	}

	for i, p := range path {
		ev := input.DispatchMouseEvent(input.MouseMoved, float64(p.X), float64(p.Y))
		if held != input.None {
			ev = ev.WithButton(held).WithButtons(buttonsBit(held))
		}
		if err := d.exec.DispatchMouseEvent(ctx, ev); err != nil {
			return fmt.Errorf("browser: failed to dispatch move event: %w", err)
		}
		d.mu.Lock()
		d.pos = p
		d.mu.Unlock()

		if stepDelay > 0 && i < len(path)-1 {
			if err := d.exec.Sleep(ctx, stepDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// pause sleeps through the executor in human-motion mode and is a no-op in
// raw mode.
func (d *Driver) pause(ctx context.Context, dur time.Duration) error {
	if d.planner == nil {
		return nil
	}
	return d.exec.Sleep(ctx, dur)
}

// position returns the last dispatched pointer position.
func (d *Driver) position() image.Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

// releaseAt sends a best-effort left-button release during failure cleanup.
// The event rides a detached context because the operation's context is
// usually already dead.
func (d *Driver) releaseAt(ctx context.Context, p image.Point) {
	ev := input.DispatchMouseEvent(input.MouseReleased, float64(p.X), float64(p.Y)).
		WithButton(input.Left).
		WithClickCount(1)
	if err := d.exec.DispatchMouseEvent(detach(ctx), ev); err != nil {
		d.log.Warn("Failed to release mouse button during drag cleanup", zap.Error(err))
	}
}

// keyEvent builds one CDP key event for the definition under the given
// modifier bitmask.
func keyEvent(typ input.KeyType, def keyDef, mods input.Modifier) *input.DispatchKeyEventParams {
	ev := input.DispatchKeyEvent(typ).
		WithKey(def.Key).
		WithCode(def.Code).
		WithWindowsVirtualKeyCode(def.WindowsVirtualKeyCode).
		WithNativeVirtualKeyCode(def.WindowsVirtualKeyCode)
	if mods != 0 {
		ev = ev.WithModifiers(mods)
	}
	return ev
}

// cdpButton maps the engine's button names onto CDP's.
func cdpButton(b schemas.MouseButton) (input.MouseButton, error) {
	switch b {
	case schemas.MouseLeft:
		return input.Left, nil
	case schemas.MouseRight:
		return input.Right, nil
	case schemas.MouseMiddle:
		return input.Middle, nil
	default:
		return input.None, fmt.Errorf("browser: unsupported mouse button %q", b)
	}
}

// buttonsBit returns the bit the button occupies in the buttons bitfield
// while held.
func buttonsBit(b input.MouseButton) int64 {
	switch b {
	case input.Left:
		return 1
	case input.Right:
		return 2
	case input.Middle:
		return 4
	default:
		return 0
	}
}

func midpoint(a, b image.Point) image.Point {
	return image.Pt((a.X+b.X)/2, (a.Y+b.Y)/2)
}
