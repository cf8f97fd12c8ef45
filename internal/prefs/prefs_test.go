package prefs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceRoundTrip(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)

	voice, err := store.Voice()
	require.NoError(t, err)
	assert.Empty(t, voice, "unset preference reads as empty")

	require.NoError(t, store.SetVoice("aria"))
	voice, err = store.Voice()
	require.NoError(t, err)
	assert.Equal(t, "aria", voice)

	// Overwrite, not append.
	require.NoError(t, store.SetVoice("kai"))
	voice, err = store.Voice()
	require.NoError(t, err)
	assert.Equal(t, "kai", voice)
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "prefs.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.SetVoice("aria"))

	reopened, err := Open(path)
	require.NoError(t, err)
	voice, err := reopened.Voice()
	require.NoError(t, err)
	assert.Equal(t, "aria", voice)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
