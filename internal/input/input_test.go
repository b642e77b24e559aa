package input

import (
	"testing"
)

// TestMouseMoveCreation tests that mouse move events are created correctly
func TestMouseMoveCreation(t *testing.T) {
	event := MouseMove(10, -5)

	if event.Kind != KindMouseMove {
		t.Errorf("Expected kind %s, got %s", KindMouseMove, event.Kind)
	}
	if event.DeltaX != 10 {
		t.Errorf("Expected DeltaX 10, got %d", event.DeltaX)
	}
	if event.DeltaY != -5 {
		t.Errorf("Expected DeltaY -5, got %d", event.DeltaY)
	}
}

// TestMouseButtonCreation tests mouse button events
func TestMouseButtonCreation(t *testing.T) {
	event := MouseButton(ButtonActionPress, ButtonLeft)

	if event.Kind != KindMouseButton {
		t.Errorf("Expected kind %s, got %s", KindMouseButton, event.Kind)
	}
	if event.Button != ButtonLeft {
		t.Errorf("Expected button 1, got %d", event.Button)
	}
	if event.ButtonAction != ButtonActionPress {
		t.Errorf("Expected press action 0x07, got 0x%X", event.ButtonAction)
	}
}

// TestKeyCreation tests keyboard events
func TestKeyCreation(t *testing.T) {
	event := Key(0x41, KeyActionDown, ModifierShift)

	if event.Kind != KindKey {
		t.Errorf("Expected kind %s, got %s", KindKey, event.Kind)
	}
	if event.KeyCode != 0x41 {
		t.Errorf("Expected key code 0x41, got 0x%X", event.KeyCode)
	}
	if event.KeyAction != KeyActionDown {
		t.Errorf("Expected key action 0x03, got 0x%X", event.KeyAction)
	}
	if event.Modifiers != ModifierShift {
		t.Errorf("Expected modifiers 0x01, got 0x%X", event.Modifiers)
	}
}

// TestGamepadState tests that gamepad state survives the event round trip
func TestGamepadState(t *testing.T) {
	st := GamepadState{
		Buttons:      GamepadA | GamepadLB,
		LeftTrigger:  200,
		RightTrigger: 3,
		LeftStickX:   -32768,
		LeftStickY:   32767,
		RightStickX:  12,
		RightStickY:  -12,
	}
	event := Gamepad(2, st)

	if event.Kind != KindGamepad {
		t.Errorf("Expected kind %s, got %s", KindGamepad, event.Kind)
	}
	if event.Controller != 2 {
		t.Errorf("Expected controller 2, got %d", event.Controller)
	}
	if event.State() != st {
		t.Errorf("Expected state %+v, got %+v", st, event.State())
	}
}

func TestKindString(t *testing.T) {
	if KindScroll.String() != "scroll" {
		t.Errorf("Expected 'scroll', got '%s'", KindScroll.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("Expected 'kind(99)', got '%s'", Kind(99).String())
	}
}
