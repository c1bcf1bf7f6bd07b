package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	prefs, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPicker, prefs.Picker())
	assert.Equal(t, DefaultWaitMs, prefs.WaitMs())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	require.NoError(t, Set("picker", "skim"))
	require.NoError(t, Set("default_wait_ms", "750"))

	prefs, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "skim", prefs.Picker())
	assert.Equal(t, 750, prefs.WaitMs())
}

func TestSetUnknownKeyFails(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	err := Set("not-a-key", "value")
	assert.Error(t, err)
}

func TestPathIsUnderConfigDir(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)
	defer SetConfigDir("")

	assert.Equal(t, filepath.Join(dir, "config.toml"), Path())
}
