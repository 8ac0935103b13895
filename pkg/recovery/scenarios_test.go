package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshfsmond/sshfsmond/pkg/operations"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// TestScenario_WakeRecovery covers spec.md §8 scenario 1: two desired
// remotes are forced disconnected by a wake, and the staged recovery
// burst reconnects both without any help from the periodic timer.
func TestScenario_WakeRecovery(t *testing.T) {
	lister := &fakeLister{remotes: []types.RemoteConfig{remote("a", true), remote("b", true)}}
	exec := newFakeExecutor()
	exec.setStatus("a", types.RemoteStatus{RemoteID: "a", State: types.StateConnected, MountedPath: "/tmp/a"})
	exec.setStatus("b", types.RemoteStatus{RemoteID: "b", State: types.StateConnected, MountedPath: "/tmp/b"})
	engine := operations.NewEngine(exec, nil)
	c := NewController(lister, statusAdapter{exec}, engine, nil, nil)
	c.Load()

	c.DidWake(context.Background())

	require.Eventually(t, func() bool {
		return statusAdapter{exec}.Status("a").State == types.StateConnected &&
			statusAdapter{exec}.Status("b").State == types.StateConnected
	}, 10*time.Second, 5*time.Millisecond, "wake burst should reconnect both remotes within its staged offsets")
}

// TestScenario_PeriodicHealthySkipSpawnsNoProbe covers spec.md §8
// scenario 4: every desired remote is already connected, nothing is
// scheduled, and the last probe ran recently enough that the periodic
// timer must skip instead of refreshing.
func TestScenario_PeriodicHealthySkipSpawnsNoProbe(t *testing.T) {
	lister := &fakeLister{remotes: []types.RemoteConfig{remote("a", true)}}
	exec := newFakeExecutor()
	c := NewController(lister, statusAdapter{exec}, operations.NewEngine(exec, nil), nil, nil)
	c.Load()
	exec.setStatus("a", types.RemoteStatus{RemoteID: "a", State: types.StateConnected, MountedPath: "/tmp/a"})

	probeAt := time.Now().Add(-45 * time.Second)
	c.mu.Lock()
	c.lastProbeAt = probeAt
	c.mu.Unlock()

	assert.True(t, c.canSkipPeriodicProbe(), "45s since the last probe is under the 60s healthy-probe interval")

	c.maybeRunPeriodicPass(context.Background())
	time.Sleep(10 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.lastProbeAt.Equal(probeAt), "a skipped pass must never call runRecoveryPass, which is the only place lastProbeAt advances")
}

// TestScenario_ExternalVolumeUnmountDuringPreflightIsIgnored covers
// spec.md §8 scenario 6: a volume-unmounted event that arrives while a
// wake preflight is in progress is dropped rather than scheduling its
// own reconnect, so the wake burst remains the sole source of truth.
func TestScenario_ExternalVolumeUnmountDuringPreflightIsIgnored(t *testing.T) {
	lister := &fakeLister{remotes: []types.RemoteConfig{remote("a", true)}}
	exec := newFakeExecutor()
	engine := operations.NewEngine(exec, nil)
	c := NewController(lister, statusAdapter{exec}, engine, nil, nil)
	c.Load()

	c.mu.Lock()
	c.inPreflight = true
	c.mu.Unlock()

	c.ExternalVolumeUnmount(context.Background(), "a")

	time.Sleep(20 * time.Millisecond)
	c.mu.Lock()
	_, scheduled := c.scheduled["a"]
	c.mu.Unlock()
	assert.False(t, scheduled, "a volume-unmounted event during preflight must not schedule its own reconnect")
}
