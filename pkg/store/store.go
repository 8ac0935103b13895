package store

import (
	"sort"
	"sync"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// RemoteStore is the opaque persistence collaborator spec.md §6 names:
// load/upsert/delete against whatever backing format an embedder chooses.
type RemoteStore interface {
	// Load reads the backing format and replaces the in-memory set.
	Load() error
	// Remotes returns every known remote, ordered by ID, satisfying
	// pkg/recovery.RemoteLister.
	Remotes() []types.RemoteConfig
	// Get returns one remote by id.
	Get(id string) (types.RemoteConfig, bool)
	// Upsert inserts or replaces a remote, then persists.
	Upsert(remote types.RemoteConfig) error
	// Delete removes a remote by id, then persists.
	Delete(id string) error
}

// Memory is a RemoteStore with no backing file; Load is a no-op. Useful
// for tests and for embedding contexts that already reconstruct the
// remote list from elsewhere.
type Memory struct {
	mu      sync.RWMutex
	remotes map[string]types.RemoteConfig
}

// NewMemory builds an empty in-memory store, optionally seeded.
func NewMemory(seed ...types.RemoteConfig) *Memory {
	m := &Memory{remotes: make(map[string]types.RemoteConfig)}
	for _, r := range seed {
		m.remotes[r.ID] = r
	}
	return m
}

func (m *Memory) Load() error { return nil }

func (m *Memory) Remotes() []types.RemoteConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.RemoteConfig, 0, len(m.remotes))
	for _, r := range m.remotes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) Get(id string) (types.RemoteConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.remotes[id]
	return r, ok
}

func (m *Memory) Upsert(remote types.RemoteConfig) error {
	if err := remote.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remotes[remote.ID] = remote
	return nil
}

func (m *Memory) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.remotes, id)
	return nil
}
