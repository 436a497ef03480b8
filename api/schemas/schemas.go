// api/schemas/schemas.go
package schemas

// Region describes a rectangular area of the screen in pixel coordinates.
// The origin is the top-left corner of the full frame.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether the point (x, y) falls inside the region.
func (r Region) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// MouseButton identifies which physical mouse button an input event targets.
type MouseButton string

const (
	MouseLeft   MouseButton = "left"
	MouseRight  MouseButton = "right"
	MouseMiddle MouseButton = "middle"
)

// WindowInfo describes the currently focused window as reported by the
// window-context collaborator.
type WindowInfo struct {
	// Title is the window title bar text.
	Title string `json:"title"`
	// App is the owning application name.
	App string `json:"app"`
	// Bounds is the window rectangle in screen coordinates.
	Bounds Region `json:"bounds"`
}
