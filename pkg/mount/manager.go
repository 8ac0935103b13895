package mount

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sshfsmond/sshfsmond/pkg/askpass"
	"github.com/sshfsmond/sshfsmond/pkg/events"
	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/mounttable"
	"github.com/sshfsmond/sshfsmond/pkg/procrunner"
	"github.com/sshfsmond/sshfsmond/pkg/types"
	"github.com/sshfsmond/sshfsmond/pkg/unmount"
)

const (
	sshfsConnectTimeout = 20 * time.Second
	maxPreserveMisses   = 2

	minConnectingVisibleDuration    = 800 * time.Millisecond
	minDisconnectingVisibleDuration = 700 * time.Millisecond

	mountAppearPollTimeout  = 5 * time.Second
	mountAppearPollInterval = 200 * time.Millisecond

	statProbeTimeout  = 1500 * time.Millisecond
	testUnmountBudget = 10 * time.Second

	preConnectDropWait = 300 * time.Millisecond
)

type remoteState struct {
	mu             sync.Mutex
	status         types.RemoteStatus
	preserveMisses int
}

func (s *remoteState) snapshot() types.RemoteStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// mountInspector is the subset of *mounttable.Inspector RefreshStatus and
// Connect/Disconnect need; a narrow seam so tests can drive the
// preserve-miss boundary without shelling out to the real mount table.
type mountInspector interface {
	Find(ctx context.Context, path string) (*types.MountRecord, error)
	FindPrimary(ctx context.Context, path string) (*types.MountRecord, error)
	FindDF(ctx context.Context, path string) (*types.MountRecord, error)
}

// Manager is the actor-like owner of every remote's RemoteStatus. All
// mutation goes through its public operations; each remote's state is
// additionally guarded by its own lock so refresh, connect, and disconnect
// on different remotes never block each other.
type Manager struct {
	mu     sync.Mutex
	states map[string]*remoteState

	inspector mountInspector
	unmounter *unmount.Service
	bus       *events.Broker

	sshfsPath string
	statBin   string
	psBin     string
	killBin   string
}

// NewManager builds a Manager. sshfsPath is the resolved, dependency-checked
// path to the sshfs binary (4.A/4.C never accept a bare command name).
func NewManager(inspector *mounttable.Inspector, unmounter *unmount.Service, bus *events.Broker, sshfsPath string) *Manager {
	return &Manager{
		states:    make(map[string]*remoteState),
		inspector: inspector,
		unmounter: unmounter,
		bus:       bus,
		sshfsPath: sshfsPath,
		statBin:   "/usr/bin/stat",
		psBin:     "/bin/ps",
		killBin:   "/bin/kill",
	}
}

func (m *Manager) stateFor(remoteID string) *remoteState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[remoteID]
	if !ok {
		st = &remoteState{status: types.RemoteStatus{RemoteID: remoteID, State: types.StateDisconnected, UpdatedAt: time.Now()}}
		m.states[remoteID] = st
	}
	return st
}

func (m *Manager) publish(status types.RemoteStatus) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      events.StatusChanged,
		Timestamp: time.Now(),
		RemoteID:  status.RemoteID,
		Message:   string(status.State),
	})
}

func (m *Manager) setState(st *remoteState, remoteID string, state types.ConnectionState, mountedPath, lastErr string) types.RemoteStatus {
	st.mu.Lock()
	st.status = types.RemoteStatus{
		RemoteID:    remoteID,
		State:       state,
		MountedPath: mountedPath,
		LastError:   lastErr,
		UpdatedAt:   time.Now(),
	}
	snap := st.status
	st.mu.Unlock()
	m.publish(snap)
	return snap
}

// Status returns the last known RemoteStatus for remoteID without
// re-deriving it from the mount table; callers that need a fresh read
// call RefreshStatus instead. A remote with no prior activity reports
// StateDisconnected.
func (m *Manager) Status(remoteID string) types.RemoteStatus {
	return m.stateFor(remoteID).snapshot()
}

// RefreshStatus re-derives a remote's connection state from the live
// mount table, applying the preserve-miss tolerance for transient lookup
// misses on a remote that was previously connected.
func (m *Manager) RefreshStatus(ctx context.Context, remote types.RemoteConfig) (types.RemoteStatus, error) {
	st := m.stateFor(remote.ID)
	prev := st.snapshot()

	norm := mounttable.Normalize(remote.LocalMountPath)
	rec, primaryErr := m.inspector.FindPrimary(ctx, norm)

	switch {
	case primaryErr == nil && rec != nil:
		if m.probeResponsive(ctx, remote.LocalMountPath) {
			st.mu.Lock()
			st.preserveMisses = 0
			st.mu.Unlock()
			return m.setState(st, remote.ID, types.StateConnected, remote.LocalMountPath, ""), nil
		}
		return m.setState(st, remote.ID, types.StateError, "", "stale mount: not responding to probe"), nil

	case prev.State == types.StateConnected:
		dfRec, dfErr := m.inspector.FindDF(ctx, remote.LocalMountPath)
		if dfErr == nil && dfRec != nil && m.probeResponsive(ctx, remote.LocalMountPath) {
			st.mu.Lock()
			st.preserveMisses++
			misses := st.preserveMisses
			st.mu.Unlock()
			if misses < maxPreserveMisses {
				return m.setState(st, remote.ID, types.StateConnected, remote.LocalMountPath, ""), nil
			}
		}
		st.mu.Lock()
		st.preserveMisses = 0
		st.mu.Unlock()
		return m.setState(st, remote.ID, types.StateError, "", "Mount could not be verified: mount no longer present"), nil

	default:
		return m.setState(st, remote.ID, types.StateDisconnected, "", ""), nil
	}
}

func (m *Manager) probeResponsive(ctx context.Context, path string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, statProbeTimeout)
	defer cancel()
	_, err := procrunner.Run(probeCtx, m.statBin, []string{"-f", "%N", path}, nil, statProbeTimeout, "")
	return err == nil
}

// Connect drives a remote from disconnected to connected, retrying once on
// a transient sshfs failure.
func (m *Manager) Connect(ctx context.Context, remote types.RemoteConfig, password string) (types.RemoteStatus, error) {
	st := m.stateFor(remote.ID)
	start := time.Now()
	m.setState(st, remote.ID, types.StateConnecting, "", "")

	norm := mounttable.Normalize(remote.LocalMountPath)
	if rec, _ := m.inspector.Find(ctx, norm); rec != nil {
		_ = m.ForceStopHelpers(ctx, remote, false)
		time.Sleep(preConnectDropWait)
		if rec2, _ := m.inspector.Find(ctx, norm); rec2 != nil {
			m.enforceMinDuration(start, minConnectingVisibleDuration)
			err := types.NewBusyError([]string{"mount path already in use by another process"})
			m.setState(st, remote.ID, types.StateError, "", err.Error())
			return st.snapshot(), err
		}
	}

	if err := os.MkdirAll(remote.LocalMountPath, 0o755); err != nil {
		m.enforceMinDuration(start, minConnectingVisibleDuration)
		opErr := types.NewProcessFailureError(fmt.Sprintf("creating local mount path: %v", err), "")
		m.setState(st, remote.ID, types.StateError, "", opErr.Error())
		return st.snapshot(), opErr
	}

	_, runErr := m.runSSHFS(ctx, remote, password)
	if runErr != nil && types.IsTransient(runErr.Error()) {
		log.WithRemoteID(remote.ID).Info().Msg("transient connect failure, retrying once after cleanup")
		_ = m.unmounter.Unmount(ctx, remote.LocalMountPath, "")
		_ = os.MkdirAll(remote.LocalMountPath, 0o755)
		_, runErr = m.runSSHFS(ctx, remote, password)
	}
	if runErr != nil {
		m.enforceMinDuration(start, minConnectingVisibleDuration)
		friendly := friendlyConnectError(runErr)
		m.setState(st, remote.ID, types.StateError, "", friendly.Error())
		return st.snapshot(), friendly
	}

	appeared := m.pollForMount(ctx, norm, mountAppearPollTimeout)
	m.enforceMinDuration(start, minConnectingVisibleDuration)
	if !appeared {
		err := types.NewTimeoutError("mount did not appear in the mount table within the expected time")
		m.setState(st, remote.ID, types.StateError, "", err.Error())
		return st.snapshot(), err
	}

	return m.setState(st, remote.ID, types.StateConnected, remote.LocalMountPath, ""), nil
}

// Disconnect drives a remote from connected to disconnected.
func (m *Manager) Disconnect(ctx context.Context, remote types.RemoteConfig) (types.RemoteStatus, error) {
	st := m.stateFor(remote.ID)
	start := time.Now()
	m.setState(st, remote.ID, types.StateDisconnecting, "", "")

	norm := mounttable.Normalize(remote.LocalMountPath)
	if rec, _ := m.inspector.Find(ctx, norm); rec != nil {
		source := ""
		if rec != nil {
			source = rec.Source
		}
		if err := m.unmounter.Unmount(ctx, remote.LocalMountPath, source); err != nil {
			m.enforceMinDuration(start, minDisconnectingVisibleDuration)
			m.setState(st, remote.ID, types.StateError, "", err.Error())
			return st.snapshot(), err
		}
	}

	m.enforceMinDuration(start, minDisconnectingVisibleDuration)
	return m.setState(st, remote.ID, types.StateDisconnected, "", ""), nil
}

// Test performs the connect flow to verify credentials and reachability,
// then immediately unmounts, never leaving the remote connected.
func (m *Manager) Test(ctx context.Context, remote types.RemoteConfig, password string) (string, error) {
	norm := mounttable.Normalize(remote.LocalMountPath)
	if rec, _ := m.inspector.Find(ctx, norm); rec != nil {
		return "", types.NewBusyError([]string{"already mounted; disconnect before testing"})
	}

	if err := os.MkdirAll(remote.LocalMountPath, 0o755); err != nil {
		return "", types.NewProcessFailureError(fmt.Sprintf("creating local mount path: %v", err), "")
	}

	_, runErr := m.runSSHFS(ctx, remote, password)
	if runErr != nil {
		_ = m.unmounter.Unmount(ctx, remote.LocalMountPath, "")
		return "", friendlyConnectError(runErr)
	}

	if !m.pollForMount(ctx, norm, mountAppearPollTimeout) {
		_ = m.unmounter.Unmount(ctx, remote.LocalMountPath, "")
		return "", types.NewTimeoutError("test mount did not appear in the mount table")
	}

	unmountCtx, cancel := context.WithTimeout(ctx, testUnmountBudget)
	defer cancel()
	if err := m.unmounter.Unmount(unmountCtx, remote.LocalMountPath, ""); err != nil {
		return "", err
	}

	return "connection test succeeded", nil
}

// ForceStopHelpers signals any sshfs-like helper process for remote,
// escalating from SIGTERM to SIGKILL, without ever touching the mount
// point itself — callers that also need the mount point released go
// through Disconnect/unmount.Service, which drives its own force-unmount
// rungs.
func (m *Manager) ForceStopHelpers(ctx context.Context, remote types.RemoteConfig, aggressive bool) error {
	norm := mounttable.Normalize(remote.LocalMountPath)
	needle := fmt.Sprintf("%s@%s:%s", remote.Username, remote.Host, remote.RemoteDirectory)

	pids := m.findSSHFSPids(ctx, norm, needle)
	if len(pids) == 0 {
		return nil
	}
	for _, pid := range pids {
		_, _ = procrunner.Run(ctx, m.killBin, []string{"-TERM", strconv.Itoa(pid)}, nil, 2*time.Second, "")
	}

	gap := 500 * time.Millisecond
	if aggressive {
		gap = 200 * time.Millisecond
	}
	time.Sleep(gap)

	survivors := m.findSSHFSPids(ctx, norm, needle)
	for _, pid := range survivors {
		_, _ = procrunner.Run(ctx, m.killBin, []string{"-KILL", strconv.Itoa(pid)}, nil, 2*time.Second, "")
	}
	return nil
}

func (m *Manager) findSSHFSPids(ctx context.Context, normPath, needle string) []int {
	res, err := procrunner.Run(ctx, m.psBin, []string{"-axo", "pid=,command="}, nil, 3*time.Second, "")
	if err != nil {
		return nil
	}
	var pids []int
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, convErr := strconv.Atoi(fields[0])
		if convErr != nil || pid <= 1 {
			continue
		}
		cmd := fields[1]
		if !strings.Contains(strings.ToLower(cmd), "sshfs") {
			continue
		}
		if !strings.Contains(cmd, normPath) && !strings.Contains(cmd, needle) {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

func (m *Manager) runSSHFS(ctx context.Context, remote types.RemoteConfig, password string) (procrunner.Result, error) {
	args := buildSSHFSArgs(remote)

	if remote.AuthMode != types.AuthModePassword {
		return procrunner.Run(ctx, m.sshfsPath, args, nil, sshfsConnectTimeout, "")
	}

	var result procrunner.Result
	var runErr error
	err := askpass.WithContext(ctx, password, func(ac askpass.Context) error {
		result, runErr = procrunner.Run(ctx, m.sshfsPath, args, ac.Env, sshfsConnectTimeout, "")
		return nil
	})
	if err != nil {
		return procrunner.Result{}, err
	}
	return result, runErr
}

func (m *Manager) pollForMount(ctx context.Context, normPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if rec, err := m.inspector.FindPrimary(ctx, normPath); err == nil && rec != nil {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(mountAppearPollInterval):
		}
	}
}

func (m *Manager) enforceMinDuration(start time.Time, min time.Duration) {
	if elapsed := time.Since(start); elapsed < min {
		time.Sleep(min - elapsed)
	}
}

// friendlyConnectError maps common sshfs failure messages to the tagged
// error taxonomy so callers never need to pattern-match strings themselves.
func friendlyConnectError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication failed") || strings.Contains(msg, "permission denied (publickey") || strings.Contains(msg, "permission denied (password"):
		return types.NewAuthFailedError("authentication failed: check the configured password or private key")
	case strings.Contains(msg, "permission denied"):
		return types.NewPermanentFailureError("permission denied: check ownership of the local mount path")
	default:
		return err
	}
}
