package secretstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_SaveThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	f, err := NewFile(path, "correct horse battery staple")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.Save(ctx, "r1", "hunter2"))

	got, err := f.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestFile_ReadMissingRemoteReturnsEmptyNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	f, err := NewFile(path, "passphrase")
	require.NoError(t, err)

	got, err := f.Read(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFile_DeleteRemovesSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	f, err := NewFile(path, "passphrase")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.Save(ctx, "r1", "s3cret"))
	require.NoError(t, f.Delete(ctx, "r1"))

	got, err := f.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	ctx := context.Background()

	f1, err := NewFile(path, "passphrase")
	require.NoError(t, err)
	require.NoError(t, f1.Save(ctx, "r1", "s3cret"))

	f2, err := NewFile(path, "passphrase")
	require.NoError(t, err)
	got, err := f2.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}

func TestFile_WrongPassphraseFailsToDecrypt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	ctx := context.Background()

	f1, err := NewFile(path, "correct passphrase")
	require.NoError(t, err)
	require.NoError(t, f1.Save(ctx, "r1", "s3cret"))

	f2, err := NewFile(path, "wrong passphrase")
	require.NoError(t, err)
	_, err = f2.Read(ctx, "r1")
	require.Error(t, err)
}

func TestNewFile_RejectsEmptyPassphrase(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "secrets.json"), "")
	require.Error(t, err)
}
