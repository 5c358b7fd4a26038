package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "auto", cfg.Input.DevicePath)
	assert.Equal(t, uint64(50), cfg.Repeat.RepeatDelayMs)
	assert.Equal(t, "dbus", cfg.Window.DetectionMode)
	assert.Equal(t, uint64(1000), cfg.Window.PollingIntervalMs)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "keyrepeatd.toml", `
[logging]
level = "debug"
format = "json"

[repeat]
repeat_delay_ms = 75
repeat_toggle_key = "f12"

[window]
detection_mode = "polling"
polling_interval_ms = 250
window_title_patterns = ["nvim", "emacs"]

[[mappings]]
key = "j"
modifiers = []

[[mappings]]
key = "space"
modifiers = ["ctrl", "alt"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, uint64(75), cfg.Repeat.RepeatDelayMs)
	assert.Equal(t, "f12", cfg.Repeat.RepeatToggleKey)
	assert.Equal(t, []string{"nvim", "emacs"}, cfg.Window.WindowTitlePatterns)
	require.Len(t, cfg.Mappings, 2)
	assert.Equal(t, []string{"ctrl", "alt"}, cfg.Mappings[1].Modifiers)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "keyrepeatd.yaml", `
logging:
  level: warn
  format: pretty
repeat:
  repeat_delay_ms: 120
window:
  detection_mode: polling
  polling_interval_ms: 500
mappings:
  - key: k
    modifiers: [shift]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, uint64(120), cfg.Repeat.RepeatDelayMs)
	require.Len(t, cfg.Mappings, 1)
	assert.Equal(t, "k", cfg.Mappings[0].Key)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Repeat.RepeatDelayMs, cfg.Repeat.RepeatDelayMs)
}

func TestValidationRejectsEachBadField(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad filter", func(c *Config) { c.Logging.Filter = "repeater" }, "logging.filter"},
		{"zero delay", func(c *Config) { c.Repeat.RepeatDelayMs = 0 }, "repeat.repeat_delay_ms"},
		{"bad mode", func(c *Config) { c.Window.DetectionMode = "psychic" }, "window.detection_mode"},
		{"interval too low", func(c *Config) { c.Window.PollingIntervalMs = 99 }, "window.polling_interval_ms"},
		{"empty key", func(c *Config) {
			c.Mappings = []KeyMapping{{Key: ""}}
		}, "mappings[0].key"},
		{"bad modifier", func(c *Config) {
			c.Mappings = []KeyMapping{{Key: "j", Modifiers: []string{"hyper"}}}
		}, "mappings[0].modifiers"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestValidationCollectsMultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	cfg.Repeat.RepeatDelayMs = 0

	err := ValidateConfig(cfg)
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 2)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPrefix+"LOGGING_LEVEL", "trace")
	t.Setenv(EnvPrefix+"REPEAT_DELAY_MS", "200")
	t.Setenv(EnvPrefix+"WINDOW_TITLE_PATTERNS", "nvim, kitty")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, uint64(200), cfg.Repeat.RepeatDelayMs)
	assert.Equal(t, []string{"nvim", "kitty"}, cfg.Window.WindowTitlePatterns)
}

func TestKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mappings = []KeyMapping{{Key: "j"}, {Key: "k"}, {Key: "j"}}

	keys := cfg.Keys()
	assert.Len(t, keys, 2)
	_, ok := keys["j"]
	assert.True(t, ok)
}
