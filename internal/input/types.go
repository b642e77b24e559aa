// Package input defines the input events carried by the stream.
package input

import "fmt"

// Kind identifies the variant held by an Event
type Kind uint8

const (
	KindMouseMove Kind = iota + 1
	KindMouseButton
	KindKey
	KindGamepad
	KindScroll
)

// String returns a short name for the kind
func (k Kind) String() string {
	switch k {
	case KindMouseMove:
		return "mouse_move"
	case KindMouseButton:
		return "mouse_button"
	case KindKey:
		return "key"
	case KindGamepad:
		return "gamepad"
	case KindScroll:
		return "scroll"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Mouse button actions
const (
	ButtonActionPress   uint8 = 0x07
	ButtonActionRelease uint8 = 0x08
)

// Mouse buttons
const (
	ButtonLeft   int32 = 0x01
	ButtonMiddle int32 = 0x02
	ButtonRight  int32 = 0x03
)

// Key actions
const (
	KeyActionDown uint8 = 0x03
	KeyActionUp   uint8 = 0x04
)

// Key modifiers bitmask
const (
	ModifierShift uint8 = 0x01
	ModifierCtrl  uint8 = 0x02
	ModifierAlt   uint8 = 0x04
)

// Gamepad button flags
const (
	GamepadUp      uint16 = 0x0001
	GamepadDown    uint16 = 0x0002
	GamepadLeft    uint16 = 0x0004
	GamepadRight   uint16 = 0x0008
	GamepadPlay    uint16 = 0x0010
	GamepadBack    uint16 = 0x0020
	GamepadLSClick uint16 = 0x0040
	GamepadRSClick uint16 = 0x0080
	GamepadLB      uint16 = 0x0100
	GamepadRB      uint16 = 0x0200
	GamepadSpecial uint16 = 0x0400
	GamepadA       uint16 = 0x1000
	GamepadB       uint16 = 0x2000
	GamepadX       uint16 = 0x4000
	GamepadY       uint16 = 0x8000
)

// Event is a single input event. Only the fields belonging to Kind are meaningful.
type Event struct {
	Kind Kind

	// mouse move
	DeltaX int16
	DeltaY int16

	// mouse button
	ButtonAction uint8
	Button       int32

	// keyboard
	KeyCode   int16
	KeyAction uint8
	Modifiers uint8

	// gamepad
	Controller   int16
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	LeftStickX   int16
	LeftStickY   int16
	RightStickX  int16
	RightStickY  int16

	// scroll
	Clicks int8
}

// MouseMove returns a relative mouse movement event.
func MouseMove(dx, dy int16) Event {
	return Event{Kind: KindMouseMove, DeltaX: dx, DeltaY: dy}
}

// MouseButton returns a mouse button event.
func MouseButton(action uint8, button int32) Event {
	return Event{Kind: KindMouseButton, ButtonAction: action, Button: button}
}

// Key returns a keyboard event.
func Key(code int16, action, modifiers uint8) Event {
	return Event{Kind: KindKey, KeyCode: code, KeyAction: action, Modifiers: modifiers}
}

// GamepadState is the full state of one controller.
type GamepadState struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	LeftStickX   int16
	LeftStickY   int16
	RightStickX  int16
	RightStickY  int16
}

// Gamepad returns a controller state event for the given controller index.
func Gamepad(controller int16, st GamepadState) Event {
	return Event{
		Kind:         KindGamepad,
		Controller:   controller,
		Buttons:      st.Buttons,
		LeftTrigger:  st.LeftTrigger,
		RightTrigger: st.RightTrigger,
		LeftStickX:   st.LeftStickX,
		LeftStickY:   st.LeftStickY,
		RightStickX:  st.RightStickX,
		RightStickY:  st.RightStickY,
	}
}

// State returns the gamepad portion of the event.
func (e Event) State() GamepadState {
	return GamepadState{
		Buttons:      e.Buttons,
		LeftTrigger:  e.LeftTrigger,
		RightTrigger: e.RightTrigger,
		LeftStickX:   e.LeftStickX,
		LeftStickY:   e.LeftStickY,
		RightStickX:  e.RightStickX,
		RightStickY:  e.RightStickY,
	}
}

// Scroll returns a vertical scroll event measured in wheel clicks.
func Scroll(clicks int8) Event {
	return Event{Kind: KindScroll, Clicks: clicks}
}
