// internal/planner/action.go
package planner

import (
	"fmt"
	"strings"
	"time"
)

// ActionType tags the variant of a planned action.
type ActionType string

// Wire values for the action field. "error" never reaches execution; it is
// the parser's mapping for unrecognized variants and the model's own way of
// reporting an unrecoverable state.
const (
	ActionClick    ActionType = "click"
	ActionTypeText ActionType = "type"
	ActionHotkey   ActionType = "hotkey"
	ActionScroll   ActionType = "scroll"
	ActionWait     ActionType = "wait"
	ActionDone     ActionType = "done"
	ActionError    ActionType = "error"
)

// Scroll directions carried by the wire protocol.
const (
	ScrollUp   = "up"
	ScrollDown = "down"
)

// Action is one validated decision produced by a planning source. Pointer
// fields distinguish absent from zero: a click without coordinates is an
// execution error, not a click at the origin.
type Action struct {
	Type      ActionType `json:"action"`
	X         *int       `json:"x,omitempty"`
	Y         *int       `json:"y,omitempty"`
	Text      string     `json:"text,omitempty"`
	Keys      []string   `json:"keys,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Duration  *float64   `json:"duration,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Coordinates returns the click target and whether both coordinates were
// supplied.
func (a *Action) Coordinates() (int, int, bool) {
	if a.X == nil || a.Y == nil {
		return 0, 0, false
	}
	return *a.X, *a.Y, true
}

// ScrollDirection returns the scroll direction, defaulting to down.
func (a *Action) ScrollDirection() string {
	if a.Direction == "" {
		return ScrollDown
	}
	return a.Direction
}

// WaitDuration returns the wait time, defaulting to one second when the
// plan omitted it.
func (a *Action) WaitDuration() time.Duration {
	if a.Duration == nil {
		return time.Second
	}
	return time.Duration(*a.Duration * float64(time.Second))
}

// Summary renders a compact single-line form used in step history fed back
// to the decision source.
func (a *Action) Summary() string {
	switch a.Type {
	case ActionClick:
		if x, y, ok := a.Coordinates(); ok {
			return fmt.Sprintf("click(%d, %d)", x, y)
		}
		return "click(?)"
	case ActionTypeText:
		return fmt.Sprintf("type(%q)", truncateString(a.Text, 40))
	case ActionHotkey:
		return "hotkey(" + strings.Join(a.Keys, "+") + ")"
	case ActionScroll:
		return "scroll(" + a.ScrollDirection() + ")"
	case ActionWait:
		return fmt.Sprintf("wait(%.1fs)", a.WaitDuration().Seconds())
	case ActionDone:
		return "done"
	case ActionError:
		return "error"
	default:
		return string(a.Type)
	}
}

// normalize applies the protocol's defaulting and unknown-variant rules:
// an unrecognized action maps to the error variant instead of failing the
// parse, scroll direction defaults to down, wait duration defaults to 1s.
func (a *Action) normalize() {
	switch a.Type {
	case ActionClick, ActionTypeText, ActionHotkey, ActionScroll, ActionWait, ActionDone, ActionError:
	default:
		unknown := string(a.Type)
		a.Type = ActionError
		if a.Reason == "" {
			a.Reason = fmt.Sprintf("unrecognized action %q", unknown)
		}
	}

	if a.Type == ActionScroll && a.Direction == "" {
		a.Direction = ScrollDown
	}
	if a.Type == ActionWait && a.Duration == nil {
		d := 1.0
		a.Duration = &d
	}
}
