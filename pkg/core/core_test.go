package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshfsmond/sshfsmond/pkg/mount"
	"github.com/sshfsmond/sshfsmond/pkg/store"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

func stubDependencyCheck() mount.DependencyStatus {
	return mount.DependencyStatus{IsReady: true, DiscoveredPath: "/usr/local/bin/sshfs"}
}

func testRemote(id string) types.RemoteConfig {
	return types.RemoteConfig{ID: id, Host: "h", Port: 22, Username: "u", RemoteDirectory: "/r", LocalMountPath: "/mnt/" + id}
}

func newTestCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(Config{Store: store.NewMemory(), DependencyCheck: stubDependencyCheck})
	require.NoError(t, err)
	return c
}

func TestNew_FailsFastWhenDependencyNotReady(t *testing.T) {
	_, err := New(Config{
		Store:           store.NewMemory(),
		DependencyCheck: func() mount.DependencyStatus { return mount.DependencyStatus{IsReady: false, Issues: []string{"not found"}} },
	})
	require.Error(t, err)
}

func TestAddRemote_MakesItVisibleInRemotesAndStatus(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.AddRemote(testRemote("r1")))

	remotes := c.Remotes()
	require.Len(t, remotes, 1)
	assert.Equal(t, "r1", remotes[0].ID)
	assert.Equal(t, types.StateDisconnected, c.Status("r1").State)
}

func TestRemoveRemote_DropsItFromRemotes(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.AddRemote(testRemote("r1")))
	require.NoError(t, c.RemoveRemote("r1"))

	assert.Empty(t, c.Remotes())
}

func TestSummary_CountsByState(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.AddRemote(testRemote("r1")))
	require.NoError(t, c.AddRemote(testRemote("r2")))

	s := c.Summary()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.Disconnected)
	assert.Equal(t, 0, s.Connected)
}

func TestConnect_UnknownRemoteIsValidationError(t *testing.T) {
	c := newTestCore(t)
	_, err := c.Connect(context.Background(), "nope", "")
	require.Error(t, err)
	opErr, ok := err.(*types.OperationError)
	require.True(t, ok)
	assert.Equal(t, types.KindValidation, opErr.Kind)
}

func TestDiagnostics_IncludesAddedRemote(t *testing.T) {
	c := newTestCore(t)
	require.NoError(t, c.AddRemote(testRemote("r1")))

	report := c.Diagnostics()
	assert.Contains(t, report, "r1")
	assert.Contains(t, report, "== Remotes ==")
}

func TestShutdown_DoesNotPanicWithNoActivity(t *testing.T) {
	c := newTestCore(t)
	assert.NotPanics(t, func() { c.Shutdown() })
}
