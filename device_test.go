package ryazhenka

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeviceID_NeverEmpty(t *testing.T) {
	id := GenerateDeviceID()
	require.NotEmpty(t, id)
	assert.True(t, strings.HasPrefix(id, deviceIDPrefix+"-"), "id = %q", id)
}

func TestLoadOrCreateDeviceID_PersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first := LoadOrCreateDeviceID(dir)
	require.NotEmpty(t, first)

	second := LoadOrCreateDeviceID(dir)
	assert.Equal(t, first, second, "cached id must be stable across runs")

	data, err := os.ReadFile(filepath.Join(dir, "device_id"))
	require.NoError(t, err)
	assert.Equal(t, first, strings.TrimSpace(string(data)))
}

func TestLoadOrCreateDeviceID_UnwritableDirStillReturnsID(t *testing.T) {
	// A path that cannot be created degrades to an in-memory id.
	id := LoadOrCreateDeviceID(string([]byte{0}))
	assert.NotEmpty(t, id)
}

func TestLoadOrCreateDeviceID_IgnoresEmptyCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "device_id"), []byte("\n"), 0o600))

	id := LoadOrCreateDeviceID(dir)
	assert.NotEmpty(t, id)
}
