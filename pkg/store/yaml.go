package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// remoteDocument is the on-disk shape: a flat list under one key, so the
// file stays readable and diffable by hand.
type remoteDocument struct {
	Remotes []types.RemoteConfig `yaml:"remotes"`
}

// File is a RemoteStore backed by one YAML file holding the whole remote
// list. Every Upsert/Delete persists the entire file; this core manages
// at most a handful of remotes, so there is no benefit to a more granular
// format.
type File struct {
	path string

	mu      sync.RWMutex
	remotes map[string]types.RemoteConfig
}

// NewFile builds a File store reading from and writing to path. Load must
// be called before Remotes reflects anything already on disk.
func NewFile(path string) *File {
	return &File{path: path, remotes: make(map[string]types.RemoteConfig)}
}

// Load reads path, replacing the in-memory set. A missing file is treated
// as an empty store, not an error, so first-run startup needs no
// preexisting file.
func (f *File) Load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.mu.Lock()
		f.remotes = make(map[string]types.RemoteConfig)
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading remote store %s: %w", f.path, err)
	}

	var doc remoteDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing remote store %s: %w", f.path, err)
	}

	remotes := make(map[string]types.RemoteConfig, len(doc.Remotes))
	for _, r := range doc.Remotes {
		remotes[r.ID] = r
	}

	f.mu.Lock()
	f.remotes = remotes
	f.mu.Unlock()
	return nil
}

func (f *File) Remotes() []types.RemoteConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]types.RemoteConfig, 0, len(f.remotes))
	for _, r := range f.remotes {
		out = append(out, r)
	}
	return sortedByID(out)
}

func (f *File) Get(id string) (types.RemoteConfig, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.remotes[id]
	return r, ok
}

func (f *File) Upsert(remote types.RemoteConfig) error {
	if err := remote.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	f.remotes[remote.ID] = remote
	snapshot := f.snapshotLocked()
	f.mu.Unlock()

	return f.persist(snapshot)
}

func (f *File) Delete(id string) error {
	f.mu.Lock()
	delete(f.remotes, id)
	snapshot := f.snapshotLocked()
	f.mu.Unlock()

	return f.persist(snapshot)
}

func (f *File) snapshotLocked() []types.RemoteConfig {
	out := make([]types.RemoteConfig, 0, len(f.remotes))
	for _, r := range f.remotes {
		out = append(out, r)
	}
	return sortedByID(out)
}

func (f *File) persist(remotes []types.RemoteConfig) error {
	data, err := yaml.Marshal(remoteDocument{Remotes: remotes})
	if err != nil {
		return fmt.Errorf("encoding remote store: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating remote store directory: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing remote store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing remote store: %w", err)
	}
	return nil
}

func sortedByID(remotes []types.RemoteConfig) []types.RemoteConfig {
	sort.Slice(remotes, func(i, j int) bool { return remotes[i].ID < remotes[j].ID })
	return remotes
}
