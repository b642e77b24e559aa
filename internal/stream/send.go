package stream

import (
	"errors"

	"inputlink/internal/input"
	"inputlink/internal/protocol"
	"inputlink/internal/queue"
)

// Send encodes ev and queues it. It returns ErrNotInitialized before Init or
// after Destroy and ErrQueueFull when the sender has fallen behind.
func (s *Session) Send(ev input.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queue == nil {
		s.metrics.Rejected("not_initialized")
		return ErrNotInitialized
	}

	p, err := protocol.Encode(ev, s.gen)
	if err != nil {
		return err
	}
	s.accepted.Add(1)
	if err := s.queue.Offer(p); err != nil {
		s.accepted.Add(-1)
		protocol.Release(p)
		if errors.Is(err, queue.ErrFull) {
			s.metrics.Rejected("queue_full")
			return ErrQueueFull
		}
		return ErrNotInitialized
	}
	s.metrics.Queued(ev.Kind.String(), s.queue.Len())
	return nil
}

// SendMouseMove queues a relative mouse movement.
func (s *Session) SendMouseMove(dx, dy int16) error {
	return s.Send(input.MouseMove(dx, dy))
}

// SendMouseButton queues a mouse button press or release.
func (s *Session) SendMouseButton(action uint8, button int32) error {
	return s.Send(input.MouseButton(action, button))
}

// SendKeyboard queues a key event.
func (s *Session) SendKeyboard(keyCode int16, action, modifiers uint8) error {
	return s.Send(input.Key(keyCode, action, modifiers))
}

// SendController queues the state of controller 0.
func (s *Session) SendController(buttons uint16, leftTrigger, rightTrigger uint8,
	leftStickX, leftStickY, rightStickX, rightStickY int16) error {
	return s.SendMultiController(0, buttons, leftTrigger, rightTrigger,
		leftStickX, leftStickY, rightStickX, rightStickY)
}

// SendMultiController queues the state of the given controller.
func (s *Session) SendMultiController(controller int16, buttons uint16, leftTrigger, rightTrigger uint8,
	leftStickX, leftStickY, rightStickX, rightStickY int16) error {
	return s.Send(input.Gamepad(controller, input.GamepadState{
		Buttons:      buttons,
		LeftTrigger:  leftTrigger,
		RightTrigger: rightTrigger,
		LeftStickX:   leftStickX,
		LeftStickY:   leftStickY,
		RightStickX:  rightStickX,
		RightStickY:  rightStickY,
	}))
}

// SendScroll queues a vertical scroll of the given number of wheel clicks.
func (s *Session) SendScroll(clicks int8) error {
	return s.Send(input.Scroll(clicks))
}
