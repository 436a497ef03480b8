// File: internal/browser/keymap.go
// Description: Maps the engine's key names ("ctrl", "enter", "f5", "a") onto
// the DOM key identifiers, codes, and virtual-key codes CDP key events carry.
// Single printable characters resolve through the chromedp kb tables; named
// keys come from the table below.

package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// keyDef describes one physical key as CDP wants it spelled.
type keyDef struct {
	Key                   string
	Code                  string
	WindowsVirtualKeyCode int64
	// Modifier is non-zero for modifier keys and names the bit the key
	// contributes to the chord's bitmask.
	Modifier input.Modifier
}

// namedKeys maps lower-cased key names and their aliases to definitions.
var namedKeys = map[string]keyDef{
	"ctrl":    {Key: "Control", Code: "ControlLeft", WindowsVirtualKeyCode: 17, Modifier: input.ModifierCtrl},
	"control": {Key: "Control", Code: "ControlLeft", WindowsVirtualKeyCode: 17, Modifier: input.ModifierCtrl},
	"alt":     {Key: "Alt", Code: "AltLeft", WindowsVirtualKeyCode: 18, Modifier: input.ModifierAlt},
	"option":  {Key: "Alt", Code: "AltLeft", WindowsVirtualKeyCode: 18, Modifier: input.ModifierAlt},
	"shift":   {Key: "Shift", Code: "ShiftLeft", WindowsVirtualKeyCode: 16, Modifier: input.ModifierShift},
	"meta":    {Key: "Meta", Code: "MetaLeft", WindowsVirtualKeyCode: 91, Modifier: input.ModifierMeta},
	"cmd":     {Key: "Meta", Code: "MetaLeft", WindowsVirtualKeyCode: 91, Modifier: input.ModifierMeta},
	"command": {Key: "Meta", Code: "MetaLeft", WindowsVirtualKeyCode: 91, Modifier: input.ModifierMeta},
	"win":     {Key: "Meta", Code: "MetaLeft", WindowsVirtualKeyCode: 91, Modifier: input.ModifierMeta},
	"super":   {Key: "Meta", Code: "MetaLeft", WindowsVirtualKeyCode: 91, Modifier: input.ModifierMeta},

	"enter":     {Key: "Enter", Code: "Enter", WindowsVirtualKeyCode: 13},
	"return":    {Key: "Enter", Code: "Enter", WindowsVirtualKeyCode: 13},
	"tab":       {Key: "Tab", Code: "Tab", WindowsVirtualKeyCode: 9},
	"esc":       {Key: "Escape", Code: "Escape", WindowsVirtualKeyCode: 27},
	"escape":    {Key: "Escape", Code: "Escape", WindowsVirtualKeyCode: 27},
	"space":     {Key: " ", Code: "Space", WindowsVirtualKeyCode: 32},
	"backspace": {Key: "Backspace", Code: "Backspace", WindowsVirtualKeyCode: 8},
	"delete":    {Key: "Delete", Code: "Delete", WindowsVirtualKeyCode: 46},
	"del":       {Key: "Delete", Code: "Delete", WindowsVirtualKeyCode: 46},
	"insert":    {Key: "Insert", Code: "Insert", WindowsVirtualKeyCode: 45},

	"up":       {Key: "ArrowUp", Code: "ArrowUp", WindowsVirtualKeyCode: 38},
	"down":     {Key: "ArrowDown", Code: "ArrowDown", WindowsVirtualKeyCode: 40},
	"left":     {Key: "ArrowLeft", Code: "ArrowLeft", WindowsVirtualKeyCode: 37},
	"right":    {Key: "ArrowRight", Code: "ArrowRight", WindowsVirtualKeyCode: 39},
	"home":     {Key: "Home", Code: "Home", WindowsVirtualKeyCode: 36},
	"end":      {Key: "End", Code: "End", WindowsVirtualKeyCode: 35},
	"pageup":   {Key: "PageUp", Code: "PageUp", WindowsVirtualKeyCode: 33},
	"pagedown": {Key: "PageDown", Code: "PageDown", WindowsVirtualKeyCode: 34},

	"f1":  {Key: "F1", Code: "F1", WindowsVirtualKeyCode: 112},
	"f2":  {Key: "F2", Code: "F2", WindowsVirtualKeyCode: 113},
	"f3":  {Key: "F3", Code: "F3", WindowsVirtualKeyCode: 114},
	"f4":  {Key: "F4", Code: "F4", WindowsVirtualKeyCode: 115},
	"f5":  {Key: "F5", Code: "F5", WindowsVirtualKeyCode: 116},
	"f6":  {Key: "F6", Code: "F6", WindowsVirtualKeyCode: 117},
	"f7":  {Key: "F7", Code: "F7", WindowsVirtualKeyCode: 118},
	"f8":  {Key: "F8", Code: "F8", WindowsVirtualKeyCode: 119},
	"f9":  {Key: "F9", Code: "F9", WindowsVirtualKeyCode: 120},
	"f10": {Key: "F10", Code: "F10", WindowsVirtualKeyCode: 121},
	"f11": {Key: "F11", Code: "F11", WindowsVirtualKeyCode: 122},
	"f12": {Key: "F12", Code: "F12", WindowsVirtualKeyCode: 123},
}

// lookupKey resolves a key name to its definition. Names are matched
// case-insensitively; anything not in the named table must be a single
// printable character known to the kb layout tables.
func lookupKey(name string) (keyDef, error) {
	if def, ok := namedKeys[strings.ToLower(name)]; ok {
		return def, nil
	}

	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if k, ok := kb.Keys[r]; ok {
			return keyDef{Key: k.Key, Code: k.Code, WindowsVirtualKeyCode: k.Windows}, nil
		}
	}

	return keyDef{}, fmt.Errorf("browser: unknown key %q", name)
}
