// Package output delivers keyboard events to a virtual output device.
//
// All writers share one Sink; implementations serialize writes internally
// because the kernel expects strict key-event-then-sync framing and
// interleaved writers would corrupt the synthesized stream.
package output

import (
	"sync"

	"keyrepeatd/internal/event"
)

// Sink accepts virtual key events for OS-level injection.
type Sink interface {
	// Send injects one key event. Implementations must be safe for
	// concurrent use.
	Send(event.VirtualKeyEvent) error

	// Close releases the underlying device.
	Close() error
}

// DryRunSink records events instead of injecting them. It doubles as the
// simulated collaborator for tests and the --dry-run daemon mode.
type DryRunSink struct {
	mu     sync.Mutex
	events []event.VirtualKeyEvent

	// FailNext makes the next Send calls return err, one per queued
	// error. Used to exercise emission-failure paths.
	failures []error
}

// NewDryRunSink creates an empty recording sink.
func NewDryRunSink() *DryRunSink {
	return &DryRunSink{}
}

// Send records the event, or returns a queued injected failure.
func (s *DryRunSink) Send(ev event.VirtualKeyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}

	s.events = append(s.events, ev)
	return nil
}

// Close implements Sink.
func (s *DryRunSink) Close() error { return nil }

// Events returns a copy of everything sent so far.
func (s *DryRunSink) Events() []event.VirtualKeyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]event.VirtualKeyEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Reset clears recorded events.
func (s *DryRunSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// FailNext queues an error to be returned by an upcoming Send.
func (s *DryRunSink) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

var _ Sink = (*DryRunSink)(nil)
