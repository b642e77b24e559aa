package protocol

import (
	"encoding/binary"
	"fmt"

	"inputlink/internal/input"
)

// Decode parses a plaintext packet back into an event. Trailing bytes, such
// as cipher padding, are ignored.
func Decode(data []byte) (input.Event, error) {
	if len(data) < 4 {
		return input.Event{}, ErrShortPacket
	}

	be := binary.BigEndian
	le := binary.LittleEndian

	switch tag := be.Uint32(data[0:4]); tag {
	case TypeMouseMove:
		if len(data) < SizeMouseMove {
			return input.Event{}, fmt.Errorf("mouse move: %w", ErrShortPacket)
		}
		if be.Uint32(data[4:8]) != mouseMoveMagic {
			return input.Event{}, fmt.Errorf("mouse move: bad magic 0x%08X", be.Uint32(data[4:8]))
		}
		return input.MouseMove(int16(be.Uint16(data[8:10])), int16(be.Uint16(data[10:12]))), nil

	case TypeMouseButton:
		if len(data) < SizeMouseButton {
			return input.Event{}, fmt.Errorf("mouse button: %w", ErrShortPacket)
		}
		return input.MouseButton(data[4], int32(be.Uint32(data[5:9]))), nil

	case TypeKeyboard: // also TypeScroll
		if len(data) < SizeKeyboard {
			return input.Event{}, fmt.Errorf("keyboard/scroll: %w", ErrShortPacket)
		}
		if data[4] == scrollMagic {
			amount := int16(be.Uint16(data[8:10]))
			return input.Scroll(int8(amount / WheelDelta)), nil
		}
		return input.Key(int16(le.Uint16(data[9:11])), data[4], data[11]), nil

	case TypeController:
		if len(data) < SizeController {
			return input.Event{}, fmt.Errorf("controller: %w", ErrShortPacket)
		}
		if le.Uint32(data[4:8]) != controllerHeaderA || le.Uint16(data[8:10]) != controllerHeaderB {
			return input.Event{}, fmt.Errorf("controller: bad header")
		}
		return input.Gamepad(0, gamepadState(data[10:22])), nil

	case TypeMultiController:
		if len(data) < SizeMultiController {
			return input.Event{}, fmt.Errorf("multi controller: %w", ErrShortPacket)
		}
		if le.Uint32(data[4:8]) != multiHeaderA || le.Uint16(data[8:10]) != multiHeaderB {
			return input.Event{}, fmt.Errorf("multi controller: bad header")
		}
		return input.Gamepad(int16(le.Uint16(data[10:12])), gamepadState(data[16:28])), nil

	default:
		return input.Event{}, fmt.Errorf("%w: 0x%08X", ErrUnknownType, tag)
	}
}

func gamepadState(b []byte) input.GamepadState {
	le := binary.LittleEndian
	return input.GamepadState{
		Buttons:      le.Uint16(b[0:2]),
		LeftTrigger:  b[2],
		RightTrigger: b[3],
		LeftStickX:   int16(le.Uint16(b[4:6])),
		LeftStickY:   int16(le.Uint16(b[6:8])),
		RightStickX:  int16(le.Uint16(b[8:10])),
		RightStickY:  int16(le.Uint16(b[10:12])),
	}
}
