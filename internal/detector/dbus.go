package detector

import (
	"github.com/godbus/dbus/v5"

	"keyrepeatd/internal/logging"
)

// probeSessionBus asks the session bus which compositor owns it. Works
// even when XDG variables are scrubbed, as long as the bus address is
// reachable. Failure only means the environment stays unrefined; the
// detector then polls with the default backend ordering.
func probeSessionBus(logger *logging.Logger) (DesktopEnvironment, bool) {
	conn, err := dbus.SessionBus()
	if err != nil {
		logger.Debug("session bus unavailable, using polling heuristics", "error", err)
		return EnvUnknown, false
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		logger.Debug("listing bus names failed", "error", err)
		return EnvUnknown, false
	}

	for _, name := range names {
		switch name {
		case "org.kde.KWin":
			logger.Debug("compositor found on session bus", "name", name)
			return EnvKDE, true
		case "org.gnome.Shell":
			logger.Debug("compositor found on session bus", "name", name)
			return EnvGNOME, true
		}
	}
	return EnvUnknown, false
}
