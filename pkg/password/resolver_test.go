package password

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

type fakeStore struct {
	mu       sync.Mutex
	secrets  map[string]string
	reads    int
	readGate chan struct{} // if non-nil, Read blocks on it or ctx cancellation
}

func newFakeStore() *fakeStore {
	return &fakeStore{secrets: make(map[string]string)}
}

func (s *fakeStore) Read(ctx context.Context, remoteID string) (string, error) {
	s.mu.Lock()
	s.reads++
	gate := s.readGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secrets[remoteID], nil
}

func (s *fakeStore) Save(ctx context.Context, remoteID, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[remoteID] = password
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, remoteID)
	return nil
}

func (s *fakeStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func testRemote(id string) types.RemoteConfig {
	return types.RemoteConfig{ID: id, Host: "h", Port: 22, Username: "u", RemoteDirectory: "/r", LocalMountPath: "/tmp/" + id}
}

func TestResolve_FallsBackToStoreOnCacheMiss(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Save(context.Background(), "r1", "s3cret"))
	r := NewResolver(store)

	pw, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
}

func TestResolve_PrefersCacheOverStoreRead(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Save(context.Background(), "r1", "from-store"))
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.readCount())

	pw, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Equal(t, "from-store", pw)
	assert.Equal(t, 1, store.readCount(), "second resolve should be served from cache, not another store read")
}

func TestResolve_EmptySecretIsNotCached(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)

	pw, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Empty(t, pw)
	assert.Equal(t, 1, store.readCount())

	_, _ = r.Resolve(context.Background(), testRemote("r1"))
	assert.Equal(t, 2, store.readCount(), "an empty result must not be cached, so every call re-reads the store")
}

func TestResolve_CancelledContextDuringStoreRead(t *testing.T) {
	store := newFakeStore()
	store.readGate = make(chan struct{})
	r := NewResolver(store)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, testRemote("r1"))
	require.Error(t, err)
	close(store.readGate)
}

func TestRemember_PopulatesCacheWithoutStoreRead(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)

	r.Remember("r1", "typed-in-password")

	pw, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Equal(t, "typed-in-password", pw)
	assert.Equal(t, 0, store.readCount())
}

func TestRemember_IgnoresEmptyPassword(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)

	r.Remember("r1", "")

	_, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.readCount(), "an empty Remember call must not have pre-populated the cache")
}

func TestForget_ClearsCacheSoNextResolveRereadsStore(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Save(context.Background(), "r1", "s3cret"))
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.readCount())

	r.Forget("r1")
	require.NoError(t, store.Delete(context.Background(), "r1"))

	pw, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Empty(t, pw)
	assert.Equal(t, 2, store.readCount())
}

func TestPrime_WarmsCacheForLaterResolve(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Save(context.Background(), "r1", "s3cret"))
	r := NewResolver(store)

	require.NoError(t, r.Prime(context.Background(), testRemote("r1")))
	assert.Equal(t, 1, store.readCount())

	pw, err := r.Resolve(context.Background(), testRemote("r1"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, 1, store.readCount(), "Prime should have already populated the cache")
}
