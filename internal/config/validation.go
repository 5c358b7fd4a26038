package config

import (
	"fmt"
	"strings"

	"keyrepeatd/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validModifiers = map[string]bool{
	"ctrl": true, "alt": true, "shift": true, "super": true,
}

// ValidateConfig checks every field the daemon depends on. Each failed rule
// produces its own entry so a user can fix all problems in one pass.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q (valid: trace, debug, info, warn, error)", c.Logging.Level),
		})
	}

	switch c.Logging.Format {
	case "pretty", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q (valid: pretty, json)", c.Logging.Format),
		})
	}

	if _, err := logging.ParseFilter(c.Logging.Filter); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.filter",
			Message: err.Error(),
		})
	}

	if c.Input.DevicePath == "" {
		errs = append(errs, ValidationError{
			Field:   "input.device_path",
			Message: `must be a device path or "auto"`,
		})
	}

	if c.Repeat.RepeatDelayMs == 0 {
		errs = append(errs, ValidationError{
			Field:   "repeat.repeat_delay_ms",
			Message: "must be greater than 0",
		})
	}

	switch c.Window.DetectionMode {
	case "dbus", "polling":
	default:
		errs = append(errs, ValidationError{
			Field:   "window.detection_mode",
			Message: fmt.Sprintf("unknown mode %q (valid: dbus, polling)", c.Window.DetectionMode),
		})
	}

	if c.Window.PollingIntervalMs < 100 {
		errs = append(errs, ValidationError{
			Field:   "window.polling_interval_ms",
			Message: fmt.Sprintf("must be at least 100, got %d", c.Window.PollingIntervalMs),
		})
	}

	for i, m := range c.Mappings {
		if m.Key == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("mappings[%d].key", i),
				Message: "key must not be empty",
			})
		}
		for _, mod := range m.Modifiers {
			if !validModifiers[mod] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("mappings[%d].modifiers", i),
					Message: fmt.Sprintf("unknown modifier %q (valid: ctrl, alt, shift, super)", mod),
				})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
