package browser

import (
	"context"
	"sync"

	"github.com/sshfsmond/sshfsmond/pkg/metrics"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// DialFunc constructs a Transport for a remote; swappable in tests.
type DialFunc func(ctx context.Context, remote types.RemoteConfig, password string) (Transport, error)

// Summary aggregates the health of every open browser session.
type Summary struct {
	Total        int
	Healthy      int
	Degraded     int
	Reconnecting int
	Failed       int
	Connecting   int
}

// Manager owns every open browser Session, keyed by session id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	dial     DialFunc
}

// NewManager builds a Manager using DialSFTP as its default transport
// constructor.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session), dial: DialSFTP}
}

// NewManagerWithDialer builds a Manager using a caller-supplied dialer,
// for tests that substitute a fake Transport.
func NewManagerWithDialer(dial DialFunc) *Manager {
	return &Manager{sessions: make(map[string]*Session), dial: dial}
}

// Open establishes a new browser session against remote and returns its id.
func (m *Manager) Open(ctx context.Context, remote types.RemoteConfig, password string) (string, error) {
	transport, err := m.dial(ctx, remote, password)
	if err != nil {
		return "", err
	}

	s := newSession(remote, password, m.dial, transport)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.BrowserSessionsActive.Inc()
	return s.ID, nil
}

// Close tears down a session and its transport.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return types.NewValidationError("unknown browser session")
	}

	s.close()
	metrics.BrowserSessionsActive.Dec()
	return s.currentTransport().Close()
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, types.NewValidationError("unknown browser session")
	}
	return s, nil
}

// List lists path within sessionID, tagging the result with requestID.
func (m *Manager) List(ctx context.Context, sessionID, path string, requestID uint64) (types.BrowserSnapshot, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return types.BrowserSnapshot{}, err
	}
	return s.submit(ctx, request{kind: kindList, path: path, requestID: requestID, result: make(chan types.BrowserSnapshot, 1)})
}

// GoUp lists the parent of current within sessionID.
func (m *Manager) GoUp(ctx context.Context, sessionID, current string, requestID uint64) (types.BrowserSnapshot, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return types.BrowserSnapshot{}, err
	}
	return s.submit(ctx, request{kind: kindGoUp, path: current, requestID: requestID, result: make(chan types.BrowserSnapshot, 1)})
}

// RetryCurrent forces a live probe of lastKnown, bypassing a tripped
// circuit breaker.
func (m *Manager) RetryCurrent(ctx context.Context, sessionID, lastKnown string, requestID uint64) (types.BrowserSnapshot, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return types.BrowserSnapshot{}, err
	}
	path := lastKnown
	if path == "" {
		path = s.lastKnown()
	}
	return s.submit(ctx, request{kind: kindRetry, path: path, requestID: requestID, result: make(chan types.BrowserSnapshot, 1)})
}

// Health returns the current circuit-breaker health of a session.
func (m *Manager) Health(sessionID string) (types.BrowserConnectionHealth, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return types.BrowserConnectionHealth{}, err
	}
	return s.health(), nil
}

// Summary aggregates the health state of every open session.
func (m *Manager) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum Summary
	sum.Total = len(m.sessions)
	for _, s := range m.sessions {
		switch s.health().State {
		case types.BrowserHealthy:
			sum.Healthy++
		case types.BrowserDegraded:
			sum.Degraded++
		case types.BrowserReconnecting:
			sum.Reconnecting++
		case types.BrowserFailed:
			sum.Failed++
		case types.BrowserConnecting:
			sum.Connecting++
		}
	}
	return sum
}
