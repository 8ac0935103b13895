package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

func testRemote(id string) types.RemoteConfig {
	return types.RemoteConfig{ID: id, Host: "h", Port: 22, Username: "u", RemoteDirectory: "/r", LocalMountPath: "/mnt/" + id}
}

func TestMemory_UpsertThenGet(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Upsert(testRemote("r1")))

	got, ok := m.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "h", got.Host)
}

func TestMemory_RemotesOrderedByID(t *testing.T) {
	m := NewMemory(testRemote("b"), testRemote("a"), testRemote("c"))
	ids := make([]string, 0, 3)
	for _, r := range m.Remotes() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestMemory_Delete(t *testing.T) {
	m := NewMemory(testRemote("r1"))
	require.NoError(t, m.Delete("r1"))

	_, ok := m.Get("r1")
	assert.False(t, ok)
}

func TestMemory_UpsertRejectsInvalidRemote(t *testing.T) {
	m := NewMemory()
	err := m.Upsert(types.RemoteConfig{ID: "r1", Host: "h", Port: 70000, LocalMountPath: "/mnt/r1"})
	assert.Error(t, err)
}
