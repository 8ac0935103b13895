package password

import (
	"context"
	"sync"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// SecretStore is the external collaborator that actually holds secrets
// (a keychain, an encrypted file, etc). Its internals are out of scope
// here; the resolver only ever calls it through this narrow interface.
type SecretStore interface {
	Read(ctx context.Context, remoteID string) (string, error)
	Save(ctx context.Context, remoteID, password string) error
	Delete(ctx context.Context, remoteID string) error
}

// AllowUserInteraction is the interactive-prompting policy flag. It is off
// by default, as every background flow (recovery, startup, refresh) must
// never block on a prompt. Nothing in this package reads it: Resolve never
// prompts, whatever its value.
var AllowUserInteraction = false

// Resolver implements spec.md §4.I's lookup order: an explicit draft value
// (handled by the caller before ever reaching here — Resolve is only
// consulted when the caller has none), then the in-memory cache, then a
// secret-store read executed off the calling goroutine.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]string
	store SecretStore
}

// NewResolver builds a Resolver backed by store.
func NewResolver(store SecretStore) *Resolver {
	return &Resolver{cache: make(map[string]string), store: store}
}

// Resolve returns the password for remote, trying the in-memory cache
// before falling back to a secret-store read. The store read always runs
// on its own goroutine so a slow or blocked backend never stalls the
// caller's thread (the operations engine's watchdog still bounds the
// overall wait via ctx).
func (r *Resolver) Resolve(ctx context.Context, remote types.RemoteConfig) (string, error) {
	if cached, ok := r.cached(remote.ID); ok {
		return cached, nil
	}

	type result struct {
		password string
		err      error
	}
	resultCh := make(chan result, 1)
	go func() {
		pw, err := r.store.Read(ctx, remote.ID)
		resultCh <- result{pw, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		if res.password != "" {
			r.remember(remote.ID, res.password)
		}
		return res.password, nil
	case <-ctx.Done():
		return "", types.NewCancelledError("password resolution cancelled")
	}
}

// Prime pre-warms the cache for remote without the caller needing the
// password itself; used to serialize one-time secret-store unlocks during
// startup auto-connect (spec.md §4.H).
func (r *Resolver) Prime(ctx context.Context, remote types.RemoteConfig) error {
	_, err := r.Resolve(ctx, remote)
	return err
}

// Remember records a successful, caller-supplied non-empty resolution
// (e.g. an explicit draft password used for a manual connect) into the
// cache so subsequent automated reconnects don't need a store read.
func (r *Resolver) Remember(remoteID, password string) {
	if password == "" {
		return
	}
	r.remember(remoteID, password)
}

// Forget clears the cached password for remoteID, as spec.md §4.I requires
// on delete or auth-mode change.
func (r *Resolver) Forget(remoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, remoteID)
}

func (r *Resolver) cached(remoteID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pw, ok := r.cache[remoteID]
	return pw, ok
}

func (r *Resolver) remember(remoteID, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[remoteID] = password
}
