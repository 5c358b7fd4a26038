// Package detector tracks the focused window and reports focus changes.
//
// There is no portable Linux API for "the active window title": every
// desktop exposes it differently, and a daemon reading evdev runs outside
// the session. The detector therefore keeps a ladder of query backends,
// probes them in an order suited to the detected desktop, and degrades
// gracefully when none answers.
package detector

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"keyrepeatd/internal/config"
	"keyrepeatd/internal/event"
	"keyrepeatd/internal/logging"
)

// State is the detector's lifecycle state.
type State int

const (
	// StateUnprobed means no backend has been selected yet.
	StateUnprobed State = iota
	// StateProbing means backend selection is in progress.
	StateProbing
	// StateActive means a backend is answering queries.
	StateActive
	// StateDegraded means no backend works; window matching treats the
	// title as empty until a re-probe succeeds.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUnprobed:
		return "unprobed"
	case StateProbing:
		return "probing"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// DesktopEnvironment classifies the session for backend ordering.
type DesktopEnvironment int

const (
	EnvUnknown DesktopEnvironment = iota
	EnvKDE
	EnvGNOME
	EnvX11Generic
	EnvWaylandGeneric
)

func (e DesktopEnvironment) String() string {
	switch e {
	case EnvKDE:
		return "kde"
	case EnvGNOME:
		return "gnome"
	case EnvX11Generic:
		return "x11"
	case EnvWaylandGeneric:
		return "wayland"
	default:
		return "unknown"
	}
}

// degradedBackoff is how long the detector stays quiet after a fully
// failed probe before trying again.
const degradedBackoff = 10 * time.Second

// WindowHandler receives focus-change notifications.
type WindowHandler interface {
	HandleWindowEvent(event.WindowEvent)
}

// Detector polls the focused window and notifies the handler on change.
type Detector struct {
	handler  WindowHandler
	logger   *logging.Logger
	interval time.Duration
	env      DesktopEnvironment

	// ladder is the probe order for this environment.
	ladder []Backend

	mu          sync.Mutex
	state       State
	backend     Backend
	lastWindow  event.WindowInfo
	haveWindow  bool
	degradedAt  time.Time
}

// New builds a detector from validated configuration. In dbus mode a
// session-bus probe refines environment detection before the ladder is
// ordered; the probe failing just means polling with default ordering.
func New(cfg *config.Config, handler WindowHandler, logger *logging.Logger) *Detector {
	log := logger.WithComponent("detector")

	env := detectEnvironment()
	if cfg.Window.DetectionMode == "dbus" {
		if refined, ok := probeSessionBus(log); ok && env == EnvUnknown {
			env = refined
		}
	}
	log.Info("desktop environment detected", "environment", env.String(),
		"mode", cfg.Window.DetectionMode)

	return &Detector{
		handler:  handler,
		logger:   log,
		interval: time.Duration(cfg.Window.PollingIntervalMs) * time.Millisecond,
		env:      env,
		ladder:   ladderFor(env),
		state:    StateUnprobed,
	}
}

// detectEnvironment classifies the session from XDG variables, falling
// back to checking for a running compositor process.
func detectEnvironment() DesktopEnvironment {
	desktop := strings.ToLower(os.Getenv("XDG_CURRENT_DESKTOP"))
	switch {
	case strings.Contains(desktop, "kde"):
		return EnvKDE
	case strings.Contains(desktop, "gnome"):
		return EnvGNOME
	}

	switch strings.ToLower(os.Getenv("XDG_SESSION_TYPE")) {
	case "x11":
		return EnvX11Generic
	case "wayland":
		return EnvWaylandGeneric
	}

	// Root daemons often see a scrubbed environment; look for the
	// compositor process instead.
	if processRunning("kwin_wayland") || processRunning("kwin_x11") {
		return EnvKDE
	}
	if processRunning("gnome-shell") {
		return EnvGNOME
	}
	return EnvUnknown
}

func processRunning(name string) bool {
	return exec.Command("pgrep", "-x", name).Run() == nil
}

// ladderFor orders the backends by how likely each is to work in the
// given environment.
func ladderFor(env DesktopEnvironment) []Backend {
	kdotool := kdotoolBackend{}
	xdotool := xdotoolBackend{}
	wmctrl := wmctrlBackend{}
	sway := swayBackend{}

	switch env {
	case EnvKDE:
		return []Backend{kdotool, xdotool, wmctrl, sway}
	case EnvGNOME:
		return []Backend{xdotool, wmctrl, sway, kdotool}
	case EnvX11Generic:
		return []Backend{xdotool, wmctrl, kdotool, sway}
	case EnvWaylandGeneric:
		return []Backend{sway, kdotool, xdotool, wmctrl}
	default:
		return []Backend{sway, xdotool, wmctrl, kdotool}
	}
}

// Run polls until ctx is cancelled. Always returns nil; detection failures
// degrade matching but never stop the daemon.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.poll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.poll()
		}
	}
}

// State returns the current lifecycle state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LastWindow returns the most recently observed window.
func (d *Detector) LastWindow() (event.WindowInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastWindow, d.haveWindow
}

func (d *Detector) poll() {
	backend := d.currentBackend()
	if backend == nil {
		backend = d.probe()
		if backend == nil {
			return
		}
	}

	w, err := backend.ActiveWindow()
	if err != nil {
		d.logger.Warn("window query failed, re-probing backends",
			"backend", backend.Name(), "error", err)
		d.clearBackend()
		if backend = d.probe(); backend == nil {
			return
		}
		if w, err = backend.ActiveWindow(); err != nil {
			d.logger.Warn("window query failed after re-probe",
				"backend", backend.Name(), "error", err)
			d.clearBackend()
			return
		}
	}

	d.observe(w)
}

func (d *Detector) currentBackend() Backend {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backend
}

func (d *Detector) clearBackend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backend = nil
	d.state = StateUnprobed
}

// probe walks the ladder and adopts the first available backend. A fully
// failed probe enters the degraded state, which suppresses further probes
// for the backoff window.
func (d *Detector) probe() Backend {
	d.mu.Lock()
	if d.state == StateDegraded && time.Since(d.degradedAt) < degradedBackoff {
		d.mu.Unlock()
		return nil
	}
	d.state = StateProbing
	ladder := d.ladder
	d.mu.Unlock()

	for _, b := range ladder {
		if !b.Available() {
			d.logger.Debug("backend unavailable", "backend", b.Name())
			continue
		}
		d.logger.Info("window backend selected", "backend", b.Name())
		d.mu.Lock()
		d.backend = b
		d.state = StateActive
		d.mu.Unlock()
		return b
	}

	d.mu.Lock()
	first := d.state != StateDegraded || time.Since(d.degradedAt) >= degradedBackoff
	d.state = StateDegraded
	d.degradedAt = time.Now()
	d.mu.Unlock()

	if first {
		d.logger.Warn("no window backend available, repeat matching sees an empty title",
			"environment", d.env.String(), "retry_in", degradedBackoff)
	}
	return nil
}

// observe records the window and notifies the handler when focus moved.
func (d *Detector) observe(w event.WindowInfo) {
	d.mu.Lock()
	changed := !d.haveWindow || !d.lastWindow.Equal(w)
	d.lastWindow = w
	d.haveWindow = true
	d.mu.Unlock()

	if changed {
		d.logger.Debug("focus changed", "window", w.String())
		d.handler.HandleWindowEvent(event.NewFocusChange(w))
	}
}
