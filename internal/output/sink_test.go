package output

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyrepeatd/internal/event"
)

func TestDryRunSinkRecords(t *testing.T) {
	s := NewDryRunSink()

	require.NoError(t, s.Send(event.Press(36, 0)))
	require.NoError(t, s.Send(event.Release(36, 0)))

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, event.Pressed, events[0].State)
	assert.Equal(t, event.Released, events[1].State)

	s.Reset()
	assert.Empty(t, s.Events())
}

func TestDryRunSinkFailureInjection(t *testing.T) {
	s := NewDryRunSink()
	boom := errors.New("boom")

	s.FailNext(boom)
	require.ErrorIs(t, s.Send(event.Press(36, 0)), boom)

	// Failed sends are not recorded; the sink recovers afterwards.
	require.NoError(t, s.Send(event.Press(36, 0)))
	assert.Len(t, s.Events(), 1)
}
