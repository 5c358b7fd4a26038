//go:build linux

package input

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"keyrepeatd/internal/event"
	"keyrepeatd/internal/logging"
)

// EVIOCGRAB is _IOW('E', 0x90, int): exclusive access to the device, so
// the kernel stops delivering its events to other clients while we
// re-inject through the virtual device.
const eviocgrab = 0x40044590

const (
	evKey = 0x01

	// inputEventSize is sizeof(struct input_event) on 64-bit Linux.
	inputEventSize = 24

	// pollTimeoutMs bounds how long a read blocks, so cancellation is
	// noticed promptly.
	pollTimeoutMs = 250
)

// Handler consumes translated keyboard events in device order.
type Handler interface {
	HandleKeyEvent(event.KeyEvent)
}

// Listener reads raw evdev events from a grabbed keyboard device and
// feeds them to a Handler one at a time, preserving device order.
type Listener struct {
	path    string
	handler Handler
	logger  *logging.Logger

	mods ModifierState

	mu sync.Mutex
	fd int
}

// NewListener opens and exclusively grabs the keyboard device.
func NewListener(path string, handler Handler, logger *logging.Logger) (*Listener, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.EACCES) {
			return nil, fmt.Errorf("open %s: %w (add the user to the input group or run as root)", path, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := unix.IoctlSetInt(fd, eviocgrab, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("grab %s (is another grabber running?): %w", path, err)
	}

	logger = logger.WithComponent("input")
	logger.Info("keyboard grabbed", "device", path)

	return &Listener{path: path, handler: handler, logger: logger, fd: fd}, nil
}

// Run reads events until ctx is cancelled or the device goes away.
// A device disappearing (unplug) is returned as an error so the caller
// can decide whether to re-run device discovery.
func (l *Listener) Run(ctx context.Context) error {
	defer l.Close()

	buf := make([]byte, inputEventSize*64)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := l.readChunk(buf)
		if err != nil {
			if errors.Is(err, unix.ENODEV) {
				return fmt.Errorf("keyboard %s disconnected: %w", l.path, err)
			}
			return fmt.Errorf("read %s: %w", l.path, err)
		}

		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			l.dispatch(buf[off : off+inputEventSize])
		}
	}
}

// readChunk polls for readability and reads whole input_event records.
// Returns 0 bytes on poll timeout so Run can re-check cancellation.
func (l *Listener) readChunk(buf []byte) (int, error) {
	l.mu.Lock()
	fd := l.fd
	l.mu.Unlock()
	if fd < 0 {
		return 0, unix.ENODEV
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, pollTimeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		return 0, unix.ENODEV
	}

	n, err = unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// dispatch decodes one input_event record and forwards key events.
func (l *Listener) dispatch(rec []byte) {
	typ := binary.LittleEndian.Uint16(rec[16:18])
	if typ != evKey {
		return
	}
	code := event.KeyCode(binary.LittleEndian.Uint16(rec[18:20]))
	value := int32(binary.LittleEndian.Uint32(rec[20:24]))

	var state event.KeyState
	switch value {
	case 0:
		state = event.Released
	case 1:
		state = event.Pressed
	case 2:
		state = event.Repeat
	default:
		return
	}

	// Modifier keys update the held set and are forwarded like any other
	// key, so chords typed by the user still reach applications.
	l.mods.Apply(code, state)

	l.handler.HandleKeyEvent(event.KeyEvent{
		Code:      code,
		State:     state,
		Modifiers: l.mods.Held(),
		Time:      time.Now(),
		Device:    l.path,
	})
}

// Close releases the grab and closes the device. Safe to call twice.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fd < 0 {
		return nil
	}
	if err := unix.IoctlSetInt(l.fd, eviocgrab, 0); err != nil {
		l.logger.Warn("ungrab failed", "device", l.path, "error", err)
	}
	err := unix.Close(l.fd)
	l.fd = -1
	l.logger.Info("keyboard released", "device", l.path)
	return err
}
