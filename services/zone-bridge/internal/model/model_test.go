package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	for in, want := range map[string]EventKind{"entry": ZoneEntry, "ZONE_ENTRY": ZoneEntry, " Exit ": ZoneExit, "zone_exit": ZoneExit} {
		got, err := ParseEventKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"dwell", "enter", ""} {
		_, err := ParseEventKind(in)
		assert.Error(t, err, in)
	}
}

func TestParseProcessState(t *testing.T) {
	s, err := ParseProcessState("foreground")
	require.NoError(t, err)
	assert.Equal(t, StateActive, s)

	s, err = ParseProcessState("Background")
	require.NoError(t, err)
	assert.Equal(t, StateBackground, s)

	_, err = ParseProcessState("suspended")
	assert.Error(t, err)
}
