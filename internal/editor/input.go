package editor

import "github.com/AaronLay10/ActionGraph/internal/canvas"

// PointerAction is the phase of a pointer gesture.
type PointerAction string

const (
	PointerDown PointerAction = "down"
	PointerMove PointerAction = "move"
	PointerUp   PointerAction = "up"
)

// Button identifies a pointer button.
type Button string

const (
	ButtonPrimary   Button = "primary"
	ButtonSecondary Button = "secondary"
	ButtonMiddle    Button = "middle"
)

// Modifiers are the keyboard modifiers held during an event.
type Modifiers struct {
	Alt   bool `json:"alt,omitempty"`
	Ctrl  bool `json:"ctrl,omitempty"`
	Shift bool `json:"shift,omitempty"`
}

// PointerEvent is a pointer event in screen coordinates.
type PointerEvent struct {
	Action PointerAction `json:"action"`
	Pos    canvas.Vec    `json:"pos"`
	Button Button        `json:"button,omitempty"`
	Mods   Modifiers     `json:"mods"`
}

// ScrollEvent is a wheel or trackpad scroll at a screen position. Delta is in scroll
// steps; positive Y scrolls down.
type ScrollEvent struct {
	Pos   canvas.Vec `json:"pos"`
	Delta canvas.Vec `json:"delta"`
	Mods  Modifiers  `json:"mods"`
}

// Key names the keys the controller reacts to.
type Key string

const (
	KeyDelete    Key = "delete"
	KeyBackspace Key = "backspace"
	KeyEscape    Key = "escape"
	KeyAlt       Key = "alt"
)

// KeyAction is a key press or release.
type KeyAction string

const (
	KeyDown KeyAction = "down"
	KeyUp   KeyAction = "up"
)

type KeyEvent struct {
	Key    Key       `json:"key"`
	Action KeyAction `json:"action"`
}
