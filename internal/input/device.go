package input

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"keyrepeatd/internal/logging"
)

const (
	devInput = "/dev/input"
	byIDDir  = "/dev/input/by-id"
	procPath = "/proc/bus/input/devices"
)

// Finder locates the physical keyboard device node.
type Finder struct {
	logger *logging.Logger
}

// NewFinder returns a device finder.
func NewFinder(logger *logging.Logger) *Finder {
	return &Finder{logger: logger.WithComponent("input")}
}

// Find resolves the configured device path. An explicit path must exist;
// "auto" scans for a keyboard and, when none is connected yet, waits for
// one to be plugged in.
func (f *Finder) Find(ctx context.Context, configured string) (string, error) {
	if configured != "auto" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured input device %s: %w", configured, err)
		}
		return configured, nil
	}

	if path := f.scan(); path != "" {
		return path, nil
	}

	f.logger.Info("no keyboard found, waiting for one to appear")
	return f.waitForDevice(ctx)
}

// scan tries the stable by-id symlinks first, then the kernel's device
// list. Returns "" when no keyboard is present.
func (f *Finder) scan() string {
	if path := f.scanByID(); path != "" {
		return path
	}
	return f.scanProc()
}

// scanByID looks for *-event-kbd symlinks under /dev/input/by-id,
// preferring USB keyboards over the rest.
func (f *Finder) scanByID() string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, "-event-kbd") || strings.Contains(name, "mouse") {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return ""
	}

	chosen := candidates[0]
	for _, name := range candidates {
		if strings.Contains(name, "usb") {
			chosen = name
			break
		}
	}

	link := filepath.Join(byIDDir, chosen)
	resolved, err := filepath.EvalSymlinks(link)
	if err != nil {
		f.logger.Warn("resolving device symlink failed", "link", link, "error", err)
		return ""
	}
	f.logger.Info("keyboard found", "device", resolved, "via", chosen)
	return resolved
}

// scanProc parses /proc/bus/input/devices for a device whose handlers
// include kbd, skipping pointing devices.
func (f *Finder) scanProc() string {
	data, err := os.ReadFile(procPath)
	if err != nil {
		return ""
	}

	for _, block := range strings.Split(string(data), "\n\n") {
		path := parseDeviceBlock(block)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		f.logger.Info("keyboard found", "device", path, "via", procPath)
		return path
	}
	return ""
}

// parseDeviceBlock extracts the event node from one device description, or
// "" if the device is not a keyboard.
func parseDeviceBlock(block string) string {
	var name, handlers string
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "N: Name="):
			name = strings.ToLower(line)
		case strings.HasPrefix(line, "H: Handlers="):
			handlers = line
		}
	}

	if strings.Contains(name, "mouse") || !strings.Contains(handlers, "kbd") {
		return ""
	}
	for _, field := range strings.Fields(handlers) {
		if strings.HasPrefix(field, "event") {
			return filepath.Join(devInput, field)
		}
	}
	return ""
}

// waitForDevice watches /dev/input and rescans whenever a node appears,
// until a keyboard shows up or ctx is cancelled.
func (f *Finder) waitForDevice(ctx context.Context) (string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create device watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(devInput); err != nil {
		return "", fmt.Errorf("watch %s: %w", devInput, err)
	}

	// A device may have appeared between the initial scan and the watch.
	if path := f.scan(); path != "" {
		return path, nil
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("device watcher closed")
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if path := f.scan(); path != "" {
				return path, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("device watcher closed")
			}
			f.logger.Warn("device watcher error", "error", err)
		}
	}
}
