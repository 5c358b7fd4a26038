// Package event defines the value types exchanged between the keyboard
// listener, the repeat scheduler, and the window detector.
package event

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// KeyState is the state carried by a keyboard event.
type KeyState int

const (
	// Pressed is a key-down event.
	Pressed KeyState = iota
	// Released is a key-up event.
	Released
	// Repeat is a hardware auto-repeat event.
	Repeat
)

func (s KeyState) String() string {
	switch s {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	case Repeat:
		return "repeat"
	default:
		return fmt.Sprintf("keystate(%d)", int(s))
	}
}

// KeyCode is a raw evdev key code, independent of modifiers and layout.
type KeyCode uint16

// Modifiers is a bitmask over the four tracked modifier keys.
// Equality is by bit pattern; the order modifiers were pressed in is
// irrelevant.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// modifierNames is ordered by bit position.
var modifierNames = [4]string{"ctrl", "alt", "shift", "super"}

// WithCtrl returns a copy with the ctrl bit set or cleared.
func (m Modifiers) WithCtrl(on bool) Modifiers { return m.with(ModCtrl, on) }

// WithAlt returns a copy with the alt bit set or cleared.
func (m Modifiers) WithAlt(on bool) Modifiers { return m.with(ModAlt, on) }

// WithShift returns a copy with the shift bit set or cleared.
func (m Modifiers) WithShift(on bool) Modifiers { return m.with(ModShift, on) }

// WithSuper returns a copy with the super bit set or cleared.
func (m Modifiers) WithSuper(on bool) Modifiers { return m.with(ModSuper, on) }

func (m Modifiers) with(bit Modifiers, on bool) Modifiers {
	if on {
		return m | bit
	}
	return m &^ bit
}

func (m Modifiers) HasCtrl() bool  { return m&ModCtrl != 0 }
func (m Modifiers) HasAlt() bool   { return m&ModAlt != 0 }
func (m Modifiers) HasShift() bool { return m&ModShift != 0 }
func (m Modifiers) HasSuper() bool { return m&ModSuper != 0 }

// IsEmpty reports whether no modifier is held.
func (m Modifiers) IsEmpty() bool { return m == 0 }

// Bits returns the raw bitmask, used as a structural cache-key component.
func (m Modifiers) Bits() uint8 { return uint8(m) }

// Names returns the canonical names of the held modifiers.
func (m Modifiers) Names() []string {
	var names []string
	for i, name := range modifierNames {
		if m&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return names
}

// ModifiersFromNames builds a bitmask from canonical modifier names.
// Unknown names are ignored; config validation rejects them before any
// event reaches this path.
func ModifiersFromNames(names []string) Modifiers {
	var m Modifiers
	for _, name := range names {
		switch name {
		case "ctrl":
			m |= ModCtrl
		case "alt":
			m |= ModAlt
		case "shift":
			m |= ModShift
		case "super":
			m |= ModSuper
		}
	}
	return m
}

func (m Modifiers) String() string {
	if m.IsEmpty() {
		return "none"
	}
	return strings.Join(m.Names(), "+")
}

// KeyEvent is a single keyboard event as delivered by the raw key source.
type KeyEvent struct {
	Code      KeyCode
	State     KeyState
	Modifiers Modifiers
	Time      time.Time
	Device    string
}

// KeyOnlyHash hashes the physical key alone, deliberately excluding the
// modifiers held at event time. Repeat tasks are indexed by this hash so a
// release whose modifiers drifted from the press (the modifier can be let go
// a few events early) still finds and cancels the right task.
func (e KeyEvent) KeyOnlyHash() uint64 {
	h := fnv.New64a()
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(e.Code))
	h.Write(buf[:])
	return h.Sum64()
}

// CombinationID is a human-readable key identity for log lines.
func (e KeyEvent) CombinationID() string {
	if e.Modifiers.IsEmpty() {
		return fmt.Sprintf("%d", e.Code)
	}
	return fmt.Sprintf("%s+%d", e.Modifiers, e.Code)
}

func (e KeyEvent) String() string {
	return fmt.Sprintf("%s %s", e.CombinationID(), e.State)
}

// VirtualKeyEvent is an event destined for the virtual-output sink.
type VirtualKeyEvent struct {
	Code      KeyCode
	State     KeyState
	Modifiers Modifiers
}

// Press builds a synthetic press for the sink.
func Press(code KeyCode, mods Modifiers) VirtualKeyEvent {
	return VirtualKeyEvent{Code: code, State: Pressed, Modifiers: mods}
}

// Release builds a synthetic release for the sink.
func Release(code KeyCode, mods Modifiers) VirtualKeyEvent {
	return VirtualKeyEvent{Code: code, State: Released, Modifiers: mods}
}
