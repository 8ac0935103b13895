package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_LoadOfMissingFileIsEmptyNotError(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, f.Load())
	assert.Empty(t, f.Remotes())
}

func TestFile_UpsertPersistsAndReloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.yaml")
	f := NewFile(path)
	require.NoError(t, f.Load())
	require.NoError(t, f.Upsert(testRemote("r1")))

	reloaded := NewFile(path)
	require.NoError(t, reloaded.Load())

	got, ok := reloaded.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "h", got.Host)
	assert.Equal(t, 22, got.Port)
}

func TestFile_DeletePersistsRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotes.yaml")
	f := NewFile(path)
	require.NoError(t, f.Load())
	require.NoError(t, f.Upsert(testRemote("r1")))
	require.NoError(t, f.Delete("r1"))

	reloaded := NewFile(path)
	require.NoError(t, reloaded.Load())
	assert.Empty(t, reloaded.Remotes())
}

func TestFile_UpsertCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "remotes.yaml")
	f := NewFile(path)
	require.NoError(t, f.Load())
	require.NoError(t, f.Upsert(testRemote("r1")))

	reloaded := NewFile(path)
	require.NoError(t, reloaded.Load())
	_, ok := reloaded.Get("r1")
	assert.True(t, ok)
}
