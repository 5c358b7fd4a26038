// Package config handles configuration loading, validation, and environment
// overrides for keyrepeatd.
package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvPrefix is the prefix for environment-variable overrides.
const EnvPrefix = "KEYREPEATD_"

// Config holds the complete daemon configuration.
type Config struct {
	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Input configuration for the raw keyboard device.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Repeat configuration for the scheduler.
	Repeat RepeatConfig `toml:"repeat" json:"repeat" yaml:"repeat"`

	// Window configuration for active-window detection.
	Window WindowConfig `toml:"window" json:"window" yaml:"window"`

	// Mappings lists the keys eligible for synthetic repetition.
	Mappings []KeyMapping `toml:"mappings" json:"mappings" yaml:"mappings"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the output format: pretty or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Filter holds per-component level overrides, e.g.
	// "repeater=debug,detector=warn".
	Filter string `toml:"filter" json:"filter" yaml:"filter"`
}

// InputConfig holds raw keyboard device configuration.
type InputConfig struct {
	// DevicePath is the evdev device to read, or "auto" to discover one.
	DevicePath string `toml:"device_path" json:"device_path" yaml:"device_path"`
}

// RepeatConfig holds repeat scheduler configuration.
type RepeatConfig struct {
	// RepeatDelayMs is the interval between synthetic repeat taps.
	RepeatDelayMs uint64 `toml:"repeat_delay_ms" json:"repeat_delay_ms" yaml:"repeat_delay_ms"`

	// RepeatToggleKey names a key whose press flips the global
	// enable/disable flag instead of being matched against mappings.
	// Empty disables the toggle.
	RepeatToggleKey string `toml:"repeat_toggle_key" json:"repeat_toggle_key" yaml:"repeat_toggle_key"`
}

// WindowConfig holds active-window detection configuration.
type WindowConfig struct {
	// DetectionMode selects how focus changes are observed: "dbus" or
	// "polling".
	DetectionMode string `toml:"detection_mode" json:"detection_mode" yaml:"detection_mode"`

	// PollingIntervalMs is the poll period for window queries.
	PollingIntervalMs uint64 `toml:"polling_interval_ms" json:"polling_interval_ms" yaml:"polling_interval_ms"`

	// WindowTitlePatterns restricts repetition to windows whose
	// case-folded title contains one of these patterns. Empty matches
	// every window.
	WindowTitlePatterns []string `toml:"window_title_patterns" json:"window_title_patterns" yaml:"window_title_patterns"`
}

// KeyMapping declares one repeatable key and the modifiers allowed to be
// held alongside it.
type KeyMapping struct {
	// Key is the lowercase key name, e.g. "j" or "space".
	Key string `toml:"key" json:"key" yaml:"key"`

	// Modifiers lists allowed modifier names: ctrl, alt, shift, super.
	Modifiers []string `toml:"modifiers" json:"modifiers" yaml:"modifiers"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "pretty",
		},
		Input: InputConfig{
			DevicePath: "auto",
		},
		Repeat: RepeatConfig{
			RepeatDelayMs: 50,
		},
		Window: WindowConfig{
			DetectionMode:     "dbus",
			PollingIntervalMs: 1000,
		},
	}
}

// ApplyEnvOverrides overrides config fields from KEYREPEATD_* environment
// variables. Unparseable numeric values are ignored; validation catches the
// resulting state either way.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "LOGGING_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGING_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGING_FILTER"); v != "" {
		c.Logging.Filter = v
	}
	if v := os.Getenv(EnvPrefix + "INPUT_DEVICE_PATH"); v != "" {
		c.Input.DevicePath = v
	}
	if v := os.Getenv(EnvPrefix + "REPEAT_DELAY_MS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Repeat.RepeatDelayMs = n
		}
	}
	if v := os.Getenv(EnvPrefix + "REPEAT_TOGGLE_KEY"); v != "" {
		c.Repeat.RepeatToggleKey = v
	}
	if v := os.Getenv(EnvPrefix + "WINDOW_DETECTION_MODE"); v != "" {
		c.Window.DetectionMode = v
	}
	if v := os.Getenv(EnvPrefix + "WINDOW_POLLING_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Window.PollingIntervalMs = n
		}
	}
	if v := os.Getenv(EnvPrefix + "WINDOW_TITLE_PATTERNS"); v != "" {
		var patterns []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		c.Window.WindowTitlePatterns = patterns
	}
}

// Keys returns the set of mapped key names.
func (c *Config) Keys() map[string]struct{} {
	keys := make(map[string]struct{}, len(c.Mappings))
	for _, m := range c.Mappings {
		keys[m.Key] = struct{}{}
	}
	return keys
}
