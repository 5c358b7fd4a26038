// Package input finds the physical keyboard and reads its event stream.
package input

import (
	"keyrepeatd/internal/event"
	"keyrepeatd/internal/keymap"
)

// ModifierState tracks which modifier keys are currently held, derived
// from the press/release stream. Left and right variants fold into one
// bit, so holding both and releasing one clears the bit; in practice the
// matcher only cares about the common single-modifier chords.
type ModifierState struct {
	held event.Modifiers
}

// Apply folds one key event into the state and reports whether the event
// was a modifier key.
func (m *ModifierState) Apply(code event.KeyCode, state event.KeyState) bool {
	bit, ok := keymap.ModifierBit(code)
	if !ok {
		return false
	}

	switch state {
	case event.Pressed:
		m.held |= bit
	case event.Released:
		m.held &^= bit
	}
	// Repeat leaves the state unchanged: the key is still down.
	return true
}

// Held returns the currently held modifiers.
func (m *ModifierState) Held() event.Modifiers {
	return m.held
}
