package detector

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"keyrepeatd/internal/event"
	"keyrepeatd/internal/logging"
)

type fakeBackend struct {
	name      string
	available bool
	window    event.WindowInfo
	err       error
	queries   int
}

func (b *fakeBackend) Name() string    { return b.name }
func (b *fakeBackend) Available() bool { return b.available }

func (b *fakeBackend) ActiveWindow() (event.WindowInfo, error) {
	b.queries++
	return b.window, b.err
}

type recordingHandler struct {
	events []event.WindowEvent
}

func (h *recordingHandler) HandleWindowEvent(ev event.WindowEvent) {
	h.events = append(h.events, ev)
}

func newTestDetector(handler WindowHandler, ladder ...Backend) *Detector {
	return &Detector{
		handler:  handler,
		logger:   logging.Default(),
		interval: time.Millisecond,
		env:      EnvUnknown,
		ladder:   ladder,
		state:    StateUnprobed,
	}
}

func TestLadderOrderPerEnvironment(t *testing.T) {
	names := func(backends []Backend) []string {
		var out []string
		for _, b := range backends {
			out = append(out, b.Name())
		}
		return out
	}

	assert.Equal(t, []string{"kdotool", "xdotool", "wmctrl", "sway"}, names(ladderFor(EnvKDE)))
	assert.Equal(t, []string{"xdotool", "wmctrl", "sway", "kdotool"}, names(ladderFor(EnvGNOME)))
	assert.Equal(t, []string{"xdotool", "wmctrl", "kdotool", "sway"}, names(ladderFor(EnvX11Generic)))
	assert.Equal(t, []string{"sway", "kdotool", "xdotool", "wmctrl"}, names(ladderFor(EnvWaylandGeneric)))
	assert.Equal(t, []string{"sway", "xdotool", "wmctrl", "kdotool"}, names(ladderFor(EnvUnknown)))
}

func TestProbeSelectsFirstAvailableBackend(t *testing.T) {
	h := &recordingHandler{}
	first := &fakeBackend{name: "first", available: false}
	second := &fakeBackend{name: "second", available: true,
		window: event.WindowInfo{Title: "editor"}}

	d := newTestDetector(h, first, second)
	d.poll()

	assert.Equal(t, StateActive, d.State())
	require.Len(t, h.events, 1)
	assert.Equal(t, "editor", h.events[0].Window.Title)
	assert.Equal(t, 0, first.queries)
}

func TestFocusChangeNotifiedOnce(t *testing.T) {
	h := &recordingHandler{}
	b := &fakeBackend{name: "b", available: true,
		window: event.WindowInfo{Title: "editor"}}

	d := newTestDetector(h, b)
	d.poll()
	d.poll()
	d.poll()
	require.Len(t, h.events, 1, "unchanged focus is not re-notified")

	b.window = event.WindowInfo{Title: "browser"}
	d.poll()
	require.Len(t, h.events, 2)
	assert.Equal(t, "browser", h.events[1].Window.Title)

	w, ok := d.LastWindow()
	require.True(t, ok)
	assert.Equal(t, "browser", w.Title)
}

func TestQueryFailureTriggersReprobe(t *testing.T) {
	h := &recordingHandler{}
	flaky := &fakeBackend{name: "flaky", available: true,
		window: event.WindowInfo{Title: "editor"}}
	spare := &fakeBackend{name: "spare", available: true,
		window: event.WindowInfo{Title: "editor"}}

	d := newTestDetector(h, flaky, spare)
	d.poll()
	require.Equal(t, StateActive, d.State())

	// flaky starts failing; re-probe lands on it again (still
	// available), its query fails too, and the detector resets.
	flaky.err = errors.New("compositor restarted")
	d.poll()
	assert.Equal(t, StateUnprobed, d.State())

	// Next poll probes again; flaky recovered in the meantime.
	flaky.err = nil
	d.poll()
	assert.Equal(t, StateActive, d.State())
}

func TestFullProbeFailureEntersDegradedWithBackoff(t *testing.T) {
	h := &recordingHandler{}
	b := &fakeBackend{name: "b", available: false}

	d := newTestDetector(h, b)
	d.poll()
	assert.Equal(t, StateDegraded, d.State())

	// Inside the backoff window nothing is re-probed.
	d.poll()
	assert.Equal(t, StateDegraded, d.State())
	assert.Equal(t, 0, b.queries)

	// After the backoff a recovered backend is picked up.
	b.available = true
	b.window = event.WindowInfo{Title: "editor"}
	d.mu.Lock()
	d.degradedAt = time.Now().Add(-degradedBackoff)
	d.mu.Unlock()

	d.poll()
	assert.Equal(t, StateActive, d.State())
	require.Len(t, h.events, 1)
}

func TestFindFocusedNode(t *testing.T) {
	tree := `{
		"name": "root", "focused": false,
		"nodes": [
			{"name": "ws1", "focused": false, "nodes": [
				{"name": "main.go - nvim", "app_id": "kitty", "pid": 4242, "focused": true}
			]},
			{"name": "ws2", "focused": false, "floating_nodes": [
				{"name": "calculator", "focused": false}
			]}
		]
	}`

	w, ok := findFocusedNode(gjson.Parse(tree))
	require.True(t, ok)
	assert.Equal(t, "main.go - nvim", w.Title)
	assert.Equal(t, "kitty", w.Class)
	assert.Equal(t, 4242, w.PID)

	_, ok = findFocusedNode(gjson.Parse(`{"name": "root", "focused": false, "nodes": []}`))
	assert.False(t, ok)
}

func TestFindFocusedNodeXWayland(t *testing.T) {
	tree := `{
		"focused": false,
		"nodes": [{"name": "Firefox", "focused": true,
			"window_properties": {"class": "firefox"}}]
	}`

	w, ok := findFocusedNode(gjson.Parse(tree))
	require.True(t, ok)
	assert.Equal(t, "firefox", w.Class)
}

func TestFindWindowByID(t *testing.T) {
	// wmctrl aligns columns with runs of spaces; only the title column may
	// contain spaces itself.
	list := "0x03000007  0 kitty.kitty          host main.go - nvim\n" +
		"0x0400000a  1 firefox.Navigator    host Mozilla Firefox\n" +
		"0x05000003 -1 plasmashell.plasma   host Desktop"

	w, ok := findWindowByID(list, "0x3000007")
	require.True(t, ok)
	assert.Equal(t, "main.go - nvim", w.Title)
	assert.Equal(t, "kitty.kitty", w.Class)

	w, ok = findWindowByID(list, "0x400000a")
	require.True(t, ok)
	assert.Equal(t, "Mozilla Firefox", w.Title)
	assert.Equal(t, "firefox.Navigator", w.Class)

	// Sticky windows report desktop -1.
	w, ok = findWindowByID(list, "0x5000003")
	require.True(t, ok)
	assert.Equal(t, "Desktop", w.Title)
	assert.Equal(t, "plasmashell.plasma", w.Class)

	_, ok = findWindowByID(list, "0x999")
	assert.False(t, ok)
}

func TestRunToolSurfacesStderr(t *testing.T) {
	t.Setenv("SUDO_USER", "")

	_, err := runTool("sh", "-c", "echo tool exploded >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool exploded")
}
