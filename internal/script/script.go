// Package script reads the YAML event scripts replayed by the send command.
//
//	- type: move
//	  dx: 5
//	  dy: -3
//	- type: button
//	  button: left
//	  action: press
//	  delay: 20ms
//	- type: key
//	  code: 0x41
//	  action: down
//	  modifiers: [shift]
//	- type: gamepad
//	  controller: 1
//	  buttons: [a, lb]
//	  left_stick: [0, 32767]
//	- type: scroll
//	  clicks: -2
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"inputlink/internal/input"
)

var ErrInvalidStep = errors.New("script: invalid step")

// Step is one scripted event followed by an optional pause.
type Step struct {
	Type       string        `yaml:"type"`
	DX         int16         `yaml:"dx"`
	DY         int16         `yaml:"dy"`
	Button     string        `yaml:"button"`
	Action     string        `yaml:"action"`
	Code       int16         `yaml:"code"`
	Modifiers  []string      `yaml:"modifiers"`
	Controller int16         `yaml:"controller"`
	Buttons    []string      `yaml:"buttons"`
	Triggers   [2]uint8      `yaml:"triggers"`
	LeftStick  [2]int16      `yaml:"left_stick"`
	RightStick [2]int16      `yaml:"right_stick"`
	Clicks     int8          `yaml:"clicks"`
	Delay      time.Duration `yaml:"delay"`
}

var (
	buttonNames = map[string]int32{
		"left":   input.ButtonLeft,
		"middle": input.ButtonMiddle,
		"right":  input.ButtonRight,
	}
	modifierNames = map[string]uint8{
		"shift": input.ModifierShift,
		"ctrl":  input.ModifierCtrl,
		"alt":   input.ModifierAlt,
	}
	gamepadNames = map[string]uint16{
		"up":      input.GamepadUp,
		"down":    input.GamepadDown,
		"left":    input.GamepadLeft,
		"right":   input.GamepadRight,
		"start":   input.GamepadPlay,
		"back":    input.GamepadBack,
		"ls":      input.GamepadLSClick,
		"rs":      input.GamepadRSClick,
		"lb":      input.GamepadLB,
		"rb":      input.GamepadRB,
		"special": input.GamepadSpecial,
		"a":       input.GamepadA,
		"b":       input.GamepadB,
		"x":       input.GamepadX,
		"y":       input.GamepadY,
	}
)

// Load decodes a script and checks every step.
func Load(r io.Reader) ([]Step, error) {
	var steps []Step
	if err := yaml.NewDecoder(r).Decode(&steps); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("script: %w", err)
	}
	for i, st := range steps {
		if _, err := st.Event(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return steps, nil
}

// Event converts the step to an input event.
func (s Step) Event() (input.Event, error) {
	switch strings.ToLower(s.Type) {
	case "move":
		return input.MouseMove(s.DX, s.DY), nil

	case "button":
		button, ok := buttonNames[strings.ToLower(s.Button)]
		if !ok {
			return input.Event{}, fmt.Errorf("%w: unknown button %q", ErrInvalidStep, s.Button)
		}
		switch strings.ToLower(s.Action) {
		case "press":
			return input.MouseButton(input.ButtonActionPress, button), nil
		case "release":
			return input.MouseButton(input.ButtonActionRelease, button), nil
		}
		return input.Event{}, fmt.Errorf("%w: button action %q", ErrInvalidStep, s.Action)

	case "key":
		var action uint8
		switch strings.ToLower(s.Action) {
		case "down":
			action = input.KeyActionDown
		case "up":
			action = input.KeyActionUp
		default:
			return input.Event{}, fmt.Errorf("%w: key action %q", ErrInvalidStep, s.Action)
		}
		var mods uint8
		for _, name := range s.Modifiers {
			m, ok := modifierNames[strings.ToLower(name)]
			if !ok {
				return input.Event{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidStep, name)
			}
			mods |= m
		}
		return input.Key(s.Code, action, mods), nil

	case "gamepad":
		var buttons uint16
		for _, name := range s.Buttons {
			b, ok := gamepadNames[strings.ToLower(name)]
			if !ok {
				return input.Event{}, fmt.Errorf("%w: unknown gamepad button %q", ErrInvalidStep, name)
			}
			buttons |= b
		}
		return input.Gamepad(s.Controller, input.GamepadState{
			Buttons:      buttons,
			LeftTrigger:  s.Triggers[0],
			RightTrigger: s.Triggers[1],
			LeftStickX:   s.LeftStick[0],
			LeftStickY:   s.LeftStick[1],
			RightStickX:  s.RightStick[0],
			RightStickY:  s.RightStick[1],
		}), nil

	case "scroll":
		return input.Scroll(s.Clicks), nil
	}
	return input.Event{}, fmt.Errorf("%w: unknown type %q", ErrInvalidStep, s.Type)
}

// Play submits each step in order and waits out its delay. It stops at the
// first submission error or when ctx is cancelled.
func Play(ctx context.Context, steps []Step, submit func(input.Event) error) error {
	for i, st := range steps {
		ev, err := st.Event()
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := submit(ev); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, ev.Kind, err)
		}
		if st.Delay <= 0 {
			continue
		}
		t := time.NewTimer(st.Delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return nil
}
