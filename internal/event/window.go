package event

import (
	"fmt"
	"time"
)

// WindowInfo describes the currently focused window as reported by a
// window-query backend.
type WindowInfo struct {
	Title    string
	Class    string
	PID      int
	Geometry *WindowGeometry
}

// WindowGeometry is the optional on-screen placement of a window. Most
// backends do not report it.
type WindowGeometry struct {
	X, Y          int
	Width, Height int
}

func (w WindowInfo) String() string {
	if w.Class == "" {
		return w.Title
	}
	return fmt.Sprintf("%s [%s]", w.Title, w.Class)
}

// Equal reports whether two windows are the same for focus-change purposes.
// Title and class decide identity; PID and geometry are informational.
func (w WindowInfo) Equal(other WindowInfo) bool {
	return w.Title == other.Title && w.Class == other.Class
}

// WindowEventType discriminates window events.
type WindowEventType int

const (
	// FocusChanged signals that a different window took focus.
	FocusChanged WindowEventType = iota
)

// WindowEvent is delivered by the detector when the focused window changes.
type WindowEvent struct {
	Window WindowInfo
	Type   WindowEventType
	Time   time.Time
}

// NewFocusChange builds a focus-change event for the given window.
func NewFocusChange(w WindowInfo) WindowEvent {
	return WindowEvent{Window: w, Type: FocusChanged, Time: time.Now()}
}
