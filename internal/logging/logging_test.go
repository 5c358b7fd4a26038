package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace": LevelTrace,
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"WARN":  LevelWarn,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	filter, err := ParseFilter("repeater=debug, detector=warn")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, filter["repeater"])
	assert.Equal(t, LevelWarn, filter["detector"])

	filter, err = ParseFilter("")
	require.NoError(t, err)
	assert.Nil(t, filter)

	_, err = ParseFilter("repeater")
	assert.Error(t, err)

	_, err = ParseFilter("repeater=loud")
	assert.Error(t, err)
}

func TestJSONFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: LevelInfo})
	l := &Logger{
		Logger: slog.New(handler),
		config: &Config{Level: LevelInfo, Format: FormatJSON, Component: "test"},
	}

	l.WithComponent("detector").Info("probe selected", "backend", "xdotool")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "detector", entry["component"])
	assert.Equal(t, "xdotool", entry["backend"])
}

func TestComponentFilterDropsBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelDebug})
	l := &Logger{
		Logger: slog.New(handler),
		config: &Config{
			Level:  LevelDebug,
			Filter: map[string]Level{"detector": LevelWarn},
		},
	}

	detector := l.WithComponent("detector")
	detector.Debug("suppressed")
	assert.Empty(t, buf.String())

	detector.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}
