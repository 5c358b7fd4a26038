// Package keymap translates between raw evdev key codes and the lowercase
// key names used in configuration mappings.
//
// Codes are physical key positions (evdev), independent of keyboard layout:
// on AZERTY the physical "1" key still reports code 2 even though the
// unshifted character differs. Left and right modifier variants both
// translate to the same canonical name.
package keymap

import "keyrepeatd/internal/event"

// evdev key codes, from linux/input-event-codes.h. Only the subset the
// daemon can name is listed; anything else is passed through untranslated.
const (
	codeEsc        = 1
	codeBackspace  = 14
	codeTab        = 15
	codeEnter      = 28
	codeLeftCtrl   = 29
	codeLeftShift  = 42
	codeLeftAlt    = 56
	codeSpace      = 57
	codeCapsLock   = 58
	codeKPEnter    = 96
	codeRightCtrl  = 97
	codeRightAlt   = 100
	codeHome       = 102
	codeUp         = 103
	codePageUp     = 104
	codeLeft       = 105
	codeRight      = 106
	codeEnd        = 107
	codeDown       = 108
	codePageDown   = 109
	codeInsert     = 110
	codeDelete     = 111
	codeLeftMeta   = 125
	codeRightMeta  = 126
	codeRightShift = 54
)

// codeToName maps evdev codes to configuration key names.
var codeToName = map[event.KeyCode]string{
	// Letter row codes follow the QWERTY physical layout.
	30: "a", 48: "b", 46: "c", 32: "d", 18: "e", 33: "f", 34: "g",
	35: "h", 23: "i", 36: "j", 37: "k", 38: "l", 50: "m", 49: "n",
	24: "o", 25: "p", 16: "q", 19: "r", 31: "s", 20: "t", 22: "u",
	47: "v", 17: "w", 45: "x", 21: "y", 44: "z",

	// Number row.
	2: "1", 3: "2", 4: "3", 5: "4", 6: "5",
	7: "6", 8: "7", 9: "8", 10: "9", 11: "0",

	// Punctuation.
	12: "minus", 13: "equal", 26: "leftbrace", 27: "rightbrace",
	39: "semicolon", 40: "apostrophe", 41: "grave", 43: "backslash",
	51: "comma", 52: "dot", 53: "slash",

	// Whitespace and editing.
	codeSpace:     "space",
	codeEnter:     "enter",
	codeKPEnter:   "enter",
	codeEsc:       "escape",
	codeBackspace: "backspace",
	codeTab:       "tab",
	codeCapsLock:  "capslock",
	codeInsert:    "insert",
	codeDelete:    "delete",

	// Navigation.
	codeUp: "up", codeDown: "down", codeLeft: "left", codeRight: "right",
	codeHome: "home", codeEnd: "end",
	codePageUp: "pageup", codePageDown: "pagedown",

	// Function keys.
	59: "f1", 60: "f2", 61: "f3", 62: "f4", 63: "f5", 64: "f6",
	65: "f7", 66: "f8", 67: "f9", 68: "f10", 87: "f11", 88: "f12",

	// Modifiers translate to their canonical names so a toggle key can be
	// a modifier, and so mappings can name them.
	codeLeftCtrl: "ctrl", codeRightCtrl: "ctrl",
	codeLeftAlt: "alt", codeRightAlt: "alt",
	codeLeftShift: "shift", codeRightShift: "shift",
	codeLeftMeta: "super", codeRightMeta: "super",
}

// nameToCode is the reverse table. Where several codes share a name
// (modifiers, keypad enter) the left/main variant wins.
var nameToCode = func() map[string]event.KeyCode {
	m := make(map[string]event.KeyCode, len(codeToName))
	for code, name := range codeToName {
		if existing, ok := m[name]; ok && existing < code {
			continue
		}
		m[name] = code
	}
	return m
}()

// modifierBits maps modifier key codes to their bit in event.Modifiers.
var modifierBits = map[event.KeyCode]event.Modifiers{
	codeLeftCtrl: event.ModCtrl, codeRightCtrl: event.ModCtrl,
	codeLeftAlt: event.ModAlt, codeRightAlt: event.ModAlt,
	codeLeftShift: event.ModShift, codeRightShift: event.ModShift,
	codeLeftMeta: event.ModSuper, codeRightMeta: event.ModSuper,
}

// KeyName returns the configuration name for an evdev code.
func KeyName(code event.KeyCode) (string, bool) {
	name, ok := codeToName[code]
	return name, ok
}

// Code returns the evdev code for a configuration key name.
func Code(name string) (event.KeyCode, bool) {
	code, ok := nameToCode[name]
	return code, ok
}

// ModifierBit returns the modifier bit for a modifier key code, or 0 and
// false for non-modifier keys.
func ModifierBit(code event.KeyCode) (event.Modifiers, bool) {
	bit, ok := modifierBits[code]
	return bit, ok
}
