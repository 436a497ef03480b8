// internal/agent/analysis.go
package agent

import (
	"github.com/vantrigo/deskhand/api/schemas"
)

// UIElement is one interactive element a vision-capable decision source
// reports on a frame. Coordinates are pixels relative to the frame origin.
type UIElement struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Clickable   bool   `json:"clickable"`
	Text        string `json:"text,omitempty"`
}

// Center returns the element's midpoint, the natural click target.
func (e UIElement) Center() (int, int) {
	return e.X + e.Width/2, e.Y + e.Height/2
}

// Bounds returns the element's rectangle.
func (e UIElement) Bounds() schemas.Region {
	return schemas.Region{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
}

// ScreenAnalysis is a structured description of one frame.
type ScreenAnalysis struct {
	Description      string      `json:"description"`
	AppName          string      `json:"app_name,omitempty"`
	WindowTitle      string      `json:"window_title,omitempty"`
	Elements         []UIElement `json:"elements"`
	SuggestedActions []string    `json:"suggested_actions,omitempty"`
}

const analyzeScreenPrompt = `Analyze this screenshot and identify every interactive UI element.

Respond with a single JSON object:
{
  "description": "overall description of the screen",
  "app_name": "application name if identifiable",
  "window_title": "window title if identifiable",
  "elements": [
    {
      "name": "element name",
      "type": "element type (button/input/text/image/icon/link/menu/checkbox/dropdown)",
      "description": "what the element is for",
      "x": 0, "y": 0, "width": 0, "height": 0,
      "clickable": true,
      "text": "visible label text, if any"
    }
  ],
  "suggested_actions": ["possible next action", "another possible action"]
}

Coordinates are pixels from the top-left corner of the screenshot. Use
lowercase English for the type field. Respond with JSON only.`

const findElementPrompt = `Locate "%s" in this screenshot.

If found, respond with:
{
  "found": true,
  "element": {
    "name": "element name",
    "type": "element type",
    "description": "what the element is for",
    "x": 0, "y": 0, "width": 0, "height": 0,
    "clickable": true,
    "text": "visible label text"
  }
}

If not found, respond with:
{"found": false, "reason": "why it was not found"}

Coordinates are pixels from the top-left corner. Respond with JSON only.`

const describeScreenPrompt = `Describe this screenshot: the application in the ` +
	`foreground, the content it shows, and the main interactive elements.`
