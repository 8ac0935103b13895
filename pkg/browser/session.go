package browser

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sshfsmond/sshfsmond/pkg/health"
	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

const requestTimeout = 15 * time.Second

type requestKind int

const (
	kindList requestKind = iota
	kindGoUp
	kindRetry
)

type request struct {
	kind      requestKind
	path      string
	requestID uint64
	result    chan types.BrowserSnapshot
}

type cacheEntry struct {
	entries  []types.BrowserEntry
	cachedAt time.Time
}

// Session is a single-writer worker over one open remote connection: every
// list/go-up/retry request is serialized through reqCh so the underlying
// transport is never used concurrently. It keeps the dialer and
// credentials it was opened with so a tripped or degraded connection can
// be re-dialed from within the same worker loop instead of retrying calls
// against a transport that has already failed.
type Session struct {
	ID       string
	RemoteID string

	remote   types.RemoteConfig
	password string
	dial     DialFunc

	transport Transport

	mu            sync.Mutex
	lastKnownPath string
	cache         map[string]cacheEntry
	breaker       *health.Breaker

	reqCh  chan request
	doneCh chan struct{}
}

func newSession(remote types.RemoteConfig, password string, dial DialFunc, transport Transport) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		RemoteID:  remote.ID,
		remote:    remote,
		password:  password,
		dial:      dial,
		transport: transport,
		cache:     make(map[string]cacheEntry),
		breaker:   health.New(health.DefaultConfig()),
		reqCh:     make(chan request, 32),
		doneCh:    make(chan struct{}),
	}
	s.breaker.SetState(types.BrowserHealthy)
	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case req := <-s.reqCh:
			req.result <- s.handle(req)
		case <-s.doneCh:
			return
		}
	}
}

// close stops the worker loop. The transport itself is closed by the
// owning Manager, which also knows whether it has already been replaced.
func (s *Session) close() {
	close(s.doneCh)
}

func (s *Session) submit(ctx context.Context, req request) (types.BrowserSnapshot, error) {
	select {
	case s.reqCh <- req:
	case <-ctx.Done():
		return types.BrowserSnapshot{}, types.NewCancelledError("browser request cancelled before it was accepted")
	case <-s.doneCh:
		return types.BrowserSnapshot{}, types.NewValidationError("session is closed")
	}

	select {
	case snap := <-req.result:
		return snap, nil
	case <-ctx.Done():
		return types.BrowserSnapshot{}, types.NewCancelledError("browser request cancelled")
	}
}

func (s *Session) handle(req request) types.BrowserSnapshot {
	path := Normalize(req.path)
	if req.kind == kindGoUp {
		path = ParentOf(path)
	}

	if req.kind != kindRetry && s.breaker.Tripped() {
		return s.unavailableSnapshot(req.requestID, path, "session unavailable after repeated failures; retry to reconnect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if req.kind == kindRetry {
		if err := s.reconnect(ctx); err != nil {
			s.breaker.RecordFailure(err.Error(), types.BrowserReconnecting)
			return s.unavailableSnapshot(req.requestID, path, err.Error())
		}
	}

	start := time.Now()
	entries, err := s.currentTransport().ListDir(ctx, path)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		transitional := types.BrowserDegraded
		if req.kind == kindRetry {
			transitional = types.BrowserReconnecting
		}
		s.breaker.RecordFailure(err.Error(), transitional)

		if cached, ok := s.cachedEntries(path); ok {
			return types.BrowserSnapshot{
				RequestID:      req.requestID,
				NormalizedPath: path,
				Entries:        cached.entries,
				Health:         s.breaker.Snapshot(),
				IsStale:        true,
				FromCache:      true,
				Message:        err.Error(),
				LatencyMs:      latencyMs,
			}
		}
		return s.unavailableSnapshot(req.requestID, path, err.Error())
	}

	s.breaker.RecordSuccess(latencyMs)
	s.mu.Lock()
	s.lastKnownPath = path
	s.cache[path] = cacheEntry{entries: entries, cachedAt: time.Now()}
	s.mu.Unlock()

	return types.BrowserSnapshot{
		RequestID:        req.requestID,
		NormalizedPath:   path,
		Entries:          entries,
		Health:           s.breaker.Snapshot(),
		IsStale:          false,
		IsConfirmedEmpty: len(entries) == 0,
		FromCache:        false,
		LatencyMs:        latencyMs,
	}
}

func (s *Session) unavailableSnapshot(requestID uint64, path, message string) types.BrowserSnapshot {
	return types.BrowserSnapshot{
		RequestID:      requestID,
		NormalizedPath: path,
		Entries:        nil,
		Health:         s.breaker.Snapshot(),
		IsStale:        true,
		Message:        message,
	}
}

// currentTransport returns the transport in effect for the request the
// worker loop is handling right now. Only run() calls handle, and
// reconnect only ever runs from within handle, so this never races with
// a swap in progress.
func (s *Session) currentTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// reconnect closes the session's current transport and dials a fresh one
// using the credentials it was opened with, swapping it in on success.
// The stale transport is left in place on failure so callers keep
// whatever partial functionality it still offers.
func (s *Session) reconnect(ctx context.Context) error {
	fresh, err := s.dial(ctx, s.remote, s.password)
	if err != nil {
		log.WithRemoteID(s.RemoteID).Warn().Err(err).Msg("browser session reconnect failed")
		return err
	}

	s.mu.Lock()
	stale := s.transport
	s.transport = fresh
	s.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}
	return nil
}

func (s *Session) cachedEntries(path string) (cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[path]
	return e, ok
}

func (s *Session) lastKnown() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKnownPath == "" {
		return "/"
	}
	return s.lastKnownPath
}

func (s *Session) health() types.BrowserConnectionHealth {
	return s.breaker.Snapshot()
}
