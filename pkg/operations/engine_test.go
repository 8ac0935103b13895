package operations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// fakeExecutor lets tests script per-intent delays/results without
// touching real sshfs/mount-table binaries.
type fakeExecutor struct {
	mu          sync.Mutex
	connectGate chan struct{} // if non-nil, Connect blocks on it or ctx cancellation
	calls       []types.OperationIntent
	forceStops  int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{}
}

func (f *fakeExecutor) record(intent types.OperationIntent) {
	f.mu.Lock()
	f.calls = append(f.calls, intent)
	f.mu.Unlock()
}

func (f *fakeExecutor) Connect(ctx context.Context, remote types.RemoteConfig, password string) (types.RemoteStatus, error) {
	f.record(types.IntentConnect)
	if f.connectGate != nil {
		select {
		case <-f.connectGate:
		case <-ctx.Done():
			return types.RemoteStatus{}, ctx.Err()
		}
	}
	return types.RemoteStatus{RemoteID: remote.ID, State: types.StateConnected, MountedPath: remote.LocalMountPath}, nil
}

func (f *fakeExecutor) Disconnect(ctx context.Context, remote types.RemoteConfig) (types.RemoteStatus, error) {
	f.record(types.IntentDisconnect)
	return types.RemoteStatus{RemoteID: remote.ID, State: types.StateDisconnected}, nil
}

func (f *fakeExecutor) RefreshStatus(ctx context.Context, remote types.RemoteConfig) (types.RemoteStatus, error) {
	f.record(types.IntentRefresh)
	return types.RemoteStatus{RemoteID: remote.ID, State: types.StateConnected, MountedPath: remote.LocalMountPath}, nil
}

func (f *fakeExecutor) ForceStopHelpers(ctx context.Context, remote types.RemoteConfig, aggressive bool) error {
	f.mu.Lock()
	f.forceStops++
	f.mu.Unlock()
	return nil
}

func testRemote(id string) types.RemoteConfig {
	return types.RemoteConfig{ID: id, Host: "h", Port: 22, Username: "u", RemoteDirectory: "/r", LocalMountPath: "/tmp/" + id}
}

func TestSubmit_ConnectSucceeds(t *testing.T) {
	exec := newFakeExecutor()
	e := NewEngine(exec, nil)

	status, err := e.Submit(context.Background(), testRemote("r1"), types.IntentConnect, types.TriggerManual, types.PolicyLatestIntentWins, "")
	require.NoError(t, err)
	assert.Equal(t, types.StateConnected, status.State)
}

func TestSubmit_SkipIfBusyRejectsConcurrent(t *testing.T) {
	exec := newFakeExecutor()
	exec.connectGate = make(chan struct{})
	e := NewEngine(exec, nil)

	go func() {
		_, _ = e.Submit(context.Background(), testRemote("r1"), types.IntentConnect, types.TriggerManual, types.PolicySkipIfBusy, "")
	}()

	// Give the first Submit time to become current before the second races it.
	require.Eventually(t, func() bool {
		_, ok := e.Current("r1")
		return ok
	}, time.Second, time.Millisecond)

	_, err := e.Submit(context.Background(), testRemote("r1"), types.IntentRefresh, types.TriggerRecovery, types.PolicySkipIfBusy, "")
	require.Error(t, err)
	opErr, ok := err.(*types.OperationError)
	require.True(t, ok)
	assert.Equal(t, types.KindBusy, opErr.Kind)

	close(exec.connectGate)
}

func TestSubmit_LatestIntentWinsCancelsPrevious(t *testing.T) {
	exec := newFakeExecutor()
	exec.connectGate = make(chan struct{})
	e := NewEngine(exec, nil)

	firstErrCh := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), testRemote("r1"), types.IntentConnect, types.TriggerManual, types.PolicyLatestIntentWins, "")
		firstErrCh <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := e.Current("r1")
		return ok
	}, time.Second, time.Millisecond)

	status, err := e.Submit(context.Background(), testRemote("r1"), types.IntentDisconnect, types.TriggerManual, types.PolicyLatestIntentWins, "")
	require.NoError(t, err)
	assert.Equal(t, types.StateDisconnected, status.State)

	select {
	case firstErr := <-firstErrCh:
		require.Error(t, firstErr)
	case <-time.After(time.Second):
		t.Fatal("first operation never observed cancellation")
	}
}

func TestSubmit_GlobalLimiterBoundsConcurrency(t *testing.T) {
	exec := newFakeExecutor()
	exec.connectGate = make(chan struct{})
	prev := GlobalMaxConcurrent
	GlobalMaxConcurrent = 1
	defer func() { GlobalMaxConcurrent = prev }()

	e := NewEngine(exec, nil)

	started := make(chan struct{}, 1)
	go func() {
		started <- struct{}{}
		_, _ = e.Submit(context.Background(), testRemote("r1"), types.IntentConnect, types.TriggerManual, types.PolicyLatestIntentWins, "")
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.Submit(ctx, testRemote("r2"), types.IntentConnect, types.TriggerManual, types.PolicyLatestIntentWins, "")
	assert.Error(t, err, "second remote's operation should block on the global limiter while the first holds it")

	close(exec.connectGate)
}

func TestEligibleForStallReplace(t *testing.T) {
	e := NewEngine(newFakeExecutor(), nil)
	old := &trackedOp{state: types.OperationState{Intent: types.IntentConnect, StartedAt: time.Now().Add(-30 * time.Second)}}

	assert.True(t, e.eligibleForStallReplace(old, types.IntentConnect, types.TriggerRecovery))
	assert.False(t, e.eligibleForStallReplace(old, types.IntentConnect, types.TriggerManual))
	assert.False(t, e.eligibleForStallReplace(old, types.IntentDisconnect, types.TriggerRecovery))

	fresh := &trackedOp{state: types.OperationState{Intent: types.IntentConnect, StartedAt: time.Now()}}
	assert.False(t, e.eligibleForStallReplace(fresh, types.IntentConnect, types.TriggerRecovery))
}

func TestShutdown_CancelsInFlightOperations(t *testing.T) {
	exec := newFakeExecutor()
	exec.connectGate = make(chan struct{})
	e := NewEngine(exec, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background(), testRemote("r1"), types.IntentConnect, types.TriggerManual, types.PolicyLatestIntentWins, "")
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := e.Current("r1")
		return ok
	}, time.Second, time.Millisecond)

	e.Shutdown()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown did not cancel the in-flight operation")
	}
}
