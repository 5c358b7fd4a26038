//go:build linux

package output

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"keyrepeatd/internal/event"
	"keyrepeatd/internal/logging"
)

// uinput ioctl requests and event constants, from linux/uinput.h and
// linux/input-event-codes.h.
const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiDevSetup   = 0x405c5503
	uiDevCreate  = 0x00005501
	uiDevDestroy = 0x00005502

	evSyn     = 0x00
	evKey     = 0x01
	synReport = 0

	busUSB = 0x03

	// maxKeyCode bounds the key codes enabled on the virtual device.
	// Codes above the basic keyboard range are never synthesized.
	maxKeyCode = 255
)

type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputSetup struct {
	ID           inputID
	Name         [80]byte
	FFEffectsMax uint32
}

// inputEventSize is the wire size of struct input_event on 64-bit Linux:
// 16 bytes of timeval plus type, code, and value.
const inputEventSize = 24

// UinputSink injects events through a kernel uinput virtual keyboard.
// Writes are serialized under a mutex so each event's key-then-sync frame
// reaches the kernel intact.
type UinputSink struct {
	mu     sync.Mutex
	file   *os.File
	logger *logging.Logger
}

// NewUinputSink creates the virtual keyboard device. The caller must have
// write access to /dev/uinput.
func NewUinputSink(name string, logger *logging.Logger) (*UinputSink, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput (add user to the uinput/input group or run via udev rule): %w", err)
	}

	fd := int(f.Fd())

	if err := unix.IoctlSetInt(fd, uiSetEvBit, evKey); err != nil {
		f.Close()
		return nil, fmt.Errorf("enable EV_KEY: %w", err)
	}
	if err := unix.IoctlSetInt(fd, uiSetEvBit, evSyn); err != nil {
		f.Close()
		return nil, fmt.Errorf("enable EV_SYN: %w", err)
	}
	for code := 1; code <= maxKeyCode; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, code); err != nil {
			f.Close()
			return nil, fmt.Errorf("enable key code %d: %w", code, err)
		}
	}

	var setup uinputSetup
	setup.ID = inputID{BusType: busUSB, Vendor: 0x1d6b, Product: 0x0104, Version: 1}
	copy(setup.Name[:], name)

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("UI_DEV_SETUP: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevCreate, 0); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("UI_DEV_CREATE: %w", errno)
	}

	logger.Info("virtual output device created", "name", name)

	return &UinputSink{file: f, logger: logger}, nil
}

// Send writes the key event followed by a sync report.
func (s *UinputSink) Send(ev event.VirtualKeyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("virtual output device is closed")
	}

	var value int32
	switch ev.State {
	case event.Pressed:
		value = 1
	case event.Released:
		value = 0
	case event.Repeat:
		value = 2
	}

	if err := s.writeEvent(evKey, uint16(ev.Code), value); err != nil {
		return fmt.Errorf("write key event %d: %w", ev.Code, err)
	}
	if err := s.writeEvent(evSyn, synReport, 0); err != nil {
		return fmt.Errorf("sync events: %w", err)
	}
	return nil
}

// writeEvent marshals one struct input_event. The kernel fills timestamps
// for uinput writes, so the timeval is left zero.
func (s *UinputSink) writeEvent(typ, code uint16, value int32) error {
	var buf [inputEventSize]byte
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))

	_, err := s.file.Write(buf[:])
	return err
}

// Close destroys the virtual device.
func (s *UinputSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	fd := int(s.file.Fd())
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevDestroy, 0); errno != 0 {
		s.logger.Warn("UI_DEV_DESTROY failed", "error", errno)
	}

	err := s.file.Close()
	s.file = nil
	return err
}

var _ Sink = (*UinputSink)(nil)
