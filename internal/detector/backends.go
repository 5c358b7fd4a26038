package detector

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"keyrepeatd/internal/event"
)

// Backend queries the desktop for the currently focused window. Backends
// shell out to the desktop's own tooling, so each one works only where
// that tool does; the detector probes them in an order suited to the
// detected environment.
type Backend interface {
	Name() string

	// Available reports whether the backend can answer on this system.
	// Probing calls it once; a backend that later starts failing is
	// re-probed by the detector.
	Available() bool

	// ActiveWindow returns the focused window.
	ActiveWindow() (event.WindowInfo, error)
}

// runTool executes a desktop query tool and returns trimmed stdout.
// When the daemon runs under sudo the desktop session belongs to the
// invoking user, so the tool is re-run as that user with the session bus
// address it expects.
func runTool(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)

	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && os.Geteuid() == 0 {
		uid := os.Getenv("SUDO_UID")
		full := append([]string{"-u", sudoUser, "env",
			"DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/" + uid + "/bus",
			"XDG_RUNTIME_DIR=/run/user/" + uid,
			name}, args...)
		cmd = exec.Command("sudo", full...)
	}

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func toolExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// kdotoolBackend uses kdotool, which talks to KWin over D-Bus and works
// on both X11 and Wayland KDE sessions.
type kdotoolBackend struct{}

func (kdotoolBackend) Name() string { return "kdotool" }

func (kdotoolBackend) Available() bool {
	if !toolExists("kdotool") {
		return false
	}
	_, err := runTool("kdotool", "getactivewindow")
	return err == nil
}

func (kdotoolBackend) ActiveWindow() (event.WindowInfo, error) {
	id, err := runTool("kdotool", "getactivewindow")
	if err != nil {
		return event.WindowInfo{}, err
	}
	title, err := runTool("kdotool", "getwindowname", id)
	if err != nil {
		return event.WindowInfo{}, err
	}
	return event.WindowInfo{Title: title}, nil
}

// xdotoolBackend queries the X server directly; X11 sessions only.
type xdotoolBackend struct{}

func (xdotoolBackend) Name() string { return "xdotool" }

func (xdotoolBackend) Available() bool {
	if !toolExists("xdotool") {
		return false
	}
	_, err := runTool("xdotool", "getactivewindow")
	return err == nil
}

func (xdotoolBackend) ActiveWindow() (event.WindowInfo, error) {
	title, err := runTool("xdotool", "getactivewindow", "getwindowname")
	if err != nil {
		return event.WindowInfo{}, err
	}
	return event.WindowInfo{Title: title}, nil
}

// wmctrlBackend resolves the active window id via xprop and looks up its
// title and class in the wmctrl window list.
type wmctrlBackend struct{}

func (wmctrlBackend) Name() string { return "wmctrl" }

func (wmctrlBackend) Available() bool {
	if !toolExists("wmctrl") || !toolExists("xprop") {
		return false
	}
	_, err := runTool("wmctrl", "-m")
	return err == nil
}

func (wmctrlBackend) ActiveWindow() (event.WindowInfo, error) {
	out, err := runTool("xprop", "-root", "-f", "_NET_ACTIVE_WINDOW", "0x", " $0", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return event.WindowInfo{}, err
	}
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return event.WindowInfo{}, fmt.Errorf("xprop: no active window")
	}
	activeID := strings.ToLower(fields[len(fields)-1])

	list, err := runTool("wmctrl", "-l", "-x")
	if err != nil {
		return event.WindowInfo{}, err
	}
	if w, ok := findWindowByID(list, activeID); ok {
		return w, nil
	}
	return event.WindowInfo{}, fmt.Errorf("wmctrl: active window %s not listed", activeID)
}

// findWindowByID matches a window id against `wmctrl -l -x` output:
// <id> <desktop> <class> <host> <title...>. Columns are aligned with runs
// of spaces, so they are split on whitespace runs; only the title may
// itself contain spaces.
func findWindowByID(list, id string) (event.WindowInfo, bool) {
	want := strings.TrimPrefix(id, "0x")
	want = strings.TrimLeft(want, "0")

	for _, line := range strings.Split(list, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		got := strings.TrimPrefix(strings.ToLower(fields[0]), "0x")
		if strings.TrimLeft(got, "0") != want {
			continue
		}
		return event.WindowInfo{
			Title: titleColumn(line),
			Class: fields[2],
		}, true
	}
	return event.WindowInfo{}, false
}

// titleColumn returns everything after the fourth whitespace-delimited
// column of a wmctrl list line.
func titleColumn(line string) string {
	rest := line
	for i := 0; i < 4; i++ {
		rest = strings.TrimLeft(rest, " \t")
		cut := strings.IndexAny(rest, " \t")
		if cut < 0 {
			return ""
		}
		rest = rest[cut:]
	}
	return strings.TrimSpace(rest)
}

// swayBackend walks the sway/i3 layout tree for the focused node.
type swayBackend struct{}

func (swayBackend) Name() string { return "sway" }

func (swayBackend) Available() bool {
	if !toolExists("swaymsg") {
		return false
	}
	_, err := runTool("swaymsg", "-t", "get_version")
	return err == nil
}

func (swayBackend) ActiveWindow() (event.WindowInfo, error) {
	out, err := runTool("swaymsg", "-t", "get_tree")
	if err != nil {
		return event.WindowInfo{}, err
	}
	w, ok := findFocusedNode(gjson.Parse(out))
	if !ok {
		return event.WindowInfo{}, fmt.Errorf("swaymsg: no focused node")
	}
	return w, nil
}

// findFocusedNode searches the layout tree depth-first, including
// floating containers.
func findFocusedNode(node gjson.Result) (event.WindowInfo, bool) {
	if node.Get("focused").Bool() && node.Get("name").Exists() {
		w := event.WindowInfo{
			Title: node.Get("name").String(),
			Class: node.Get("app_id").String(),
			PID:   int(node.Get("pid").Int()),
		}
		if w.Class == "" {
			w.Class = node.Get("window_properties.class").String()
		}
		return w, true
	}

	for _, key := range []string{"nodes", "floating_nodes"} {
		var found event.WindowInfo
		ok := false
		node.Get(key).ForEach(func(_, child gjson.Result) bool {
			if w, hit := findFocusedNode(child); hit {
				found, ok = w, true
				return false
			}
			return true
		})
		if ok {
			return found, true
		}
	}
	return event.WindowInfo{}, false
}
