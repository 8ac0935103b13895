package core

import (
	"context"
	"fmt"

	"github.com/sshfsmond/sshfsmond/pkg/browser"
	"github.com/sshfsmond/sshfsmond/pkg/diagnostics"
	"github.com/sshfsmond/sshfsmond/pkg/events"
	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/mount"
	"github.com/sshfsmond/sshfsmond/pkg/mounttable"
	"github.com/sshfsmond/sshfsmond/pkg/operations"
	"github.com/sshfsmond/sshfsmond/pkg/password"
	"github.com/sshfsmond/sshfsmond/pkg/recovery"
	"github.com/sshfsmond/sshfsmond/pkg/store"
	"github.com/sshfsmond/sshfsmond/pkg/types"
	"github.com/sshfsmond/sshfsmond/pkg/unmount"
)

// Config configures Core construction. Secrets may be nil, in which case
// password-mode remotes can only be connected with an explicit draft
// password supplied at call time.
type Config struct {
	Store              store.RemoteStore
	Secrets            password.SecretStore
	DiagnosticsEntries int

	// DependencyCheck overrides how the sshfs binary is resolved; tests
	// substitute a stub so they don't depend on sshfs being installed on
	// the machine running them. Defaults to mount.CheckDependencies.
	DependencyCheck func() mount.DependencyStatus
}

// Core is the single in-process object an embedder constructs and drives.
// It owns every subsystem's lifecycle; nothing outside Core reaches into
// a subsystem directly.
type Core struct {
	store     store.RemoteStore
	bus       *events.Broker
	inspector *mounttable.Inspector
	mounts    *mount.Manager
	browsers  *browser.Manager
	passwords *password.Resolver
	engine    *operations.Engine
	recovery  *recovery.Controller
	diag      *diagnostics.Ring

	dependency mount.DependencyStatus
}

// statusAdapter bridges mount.Manager's cheap status getter into
// recovery.StatusProvider without exposing the rest of Manager's surface.
type statusAdapter struct{ mounts *mount.Manager }

func (s statusAdapter) Status(remoteID string) types.RemoteStatus { return s.mounts.Status(remoteID) }

// New builds every subsystem in dependency order, failing fast if the
// sshfs dependency can't be resolved.
func New(cfg Config) (*Core, error) {
	checkDeps := cfg.DependencyCheck
	if checkDeps == nil {
		checkDeps = mount.CheckDependencies
	}
	dep := checkDeps()
	if !dep.IsReady {
		return nil, fmt.Errorf("sshfs dependency not ready: %v", dep.Issues)
	}

	st := cfg.Store
	if st == nil {
		st = store.NewMemory()
	}
	if err := st.Load(); err != nil {
		return nil, fmt.Errorf("loading remote store: %w", err)
	}

	bus := events.NewBroker()
	bus.Start()

	inspector := mounttable.New()
	unmounter := unmount.NewService(inspector)
	mounts := mount.NewManager(inspector, unmounter, bus, dep.DiscoveredPath)
	browsers := browser.NewManager()

	var resolver *password.Resolver
	if cfg.Secrets != nil {
		resolver = password.NewResolver(cfg.Secrets)
	}

	engine := operations.NewEngine(mounts, resolverOrNil(resolver))
	rc := recovery.NewController(st, statusAdapter{mounts}, engine, primerOrNil(resolver), bus)
	rc.Load()

	capacity := cfg.DiagnosticsEntries
	if capacity <= 0 {
		capacity = diagnostics.DefaultCapacity
	}
	diag := diagnostics.NewRing(capacity, diagnostics.NewRedactor())

	return &Core{
		store:      st,
		bus:        bus,
		inspector:  inspector,
		mounts:     mounts,
		browsers:   browsers,
		passwords:  resolver,
		engine:     engine,
		recovery:   rc,
		diag:       diag,
		dependency: dep,
	}, nil
}

// resolverOrNil satisfies operations.NewEngine's nil-able PasswordResolver
// parameter without the caller needing a typed-nil interface footgun.
func resolverOrNil(r *password.Resolver) operations.PasswordResolver {
	if r == nil {
		return nil
	}
	return r
}

func primerOrNil(r *password.Resolver) recovery.PasswordPrimer {
	if r == nil {
		return nil
	}
	return r
}

// Start launches the recovery controller's periodic timer and runs
// startup auto-connect for every desired remote. ctx governs both for
// their lifetime: cancelling it stops them, but unlike Shutdown it does
// not close the recovery controller, cancel engine operations or stop the
// event broker.
func (c *Core) Start(ctx context.Context) {
	c.recovery.StartPeriodicTimer(ctx)
	go c.recovery.RunStartupAutoConnect(ctx)
	log.Logger.Info().Msg("core started")
}

// Shutdown cancels every in-flight operation, stops the recovery
// controller, and stops the event broker. Best-effort: it does not wait
// for helper processes beyond the operations engine's own cleanup paths.
func (c *Core) Shutdown() {
	c.recovery.Close()
	c.engine.Shutdown()
	c.bus.Stop()
	log.Logger.Info().Msg("core shut down")
}

// Connect issues a manual connect for remoteID, replacing any in-flight
// operation for it (manual intent always wins).
func (c *Core) Connect(ctx context.Context, remoteID, password string) (types.RemoteStatus, error) {
	remote, ok := c.store.Get(remoteID)
	if !ok {
		return types.RemoteStatus{}, types.NewValidationError("unknown remote: " + remoteID)
	}
	if password != "" && c.passwords != nil {
		c.passwords.Remember(remoteID, password)
	}
	return c.engine.Submit(ctx, remote, types.IntentConnect, types.TriggerManual, types.PolicyLatestIntentWins, password)
}

// Disconnect issues a manual disconnect for remoteID.
func (c *Core) Disconnect(ctx context.Context, remoteID string) (types.RemoteStatus, error) {
	remote, ok := c.store.Get(remoteID)
	if !ok {
		return types.RemoteStatus{}, types.NewValidationError("unknown remote: " + remoteID)
	}
	return c.engine.Submit(ctx, remote, types.IntentDisconnect, types.TriggerManual, types.PolicyLatestIntentWins, "")
}

// Refresh issues a manual refresh for remoteID.
func (c *Core) Refresh(ctx context.Context, remoteID string) (types.RemoteStatus, error) {
	remote, ok := c.store.Get(remoteID)
	if !ok {
		return types.RemoteStatus{}, types.NewValidationError("unknown remote: " + remoteID)
	}
	return c.engine.Submit(ctx, remote, types.IntentRefresh, types.TriggerManual, types.PolicySkipIfBusy, "")
}

// Status returns the last known status for remoteID without forcing a
// live probe.
func (c *Core) Status(remoteID string) types.RemoteStatus {
	return c.mounts.Status(remoteID)
}

// Remotes returns every known remote.
func (c *Core) Remotes() []types.RemoteConfig {
	return c.store.Remotes()
}

// Summary aggregates every known remote's current status.
func (c *Core) Summary() types.ConnectionSummary {
	var s types.ConnectionSummary
	for _, r := range c.store.Remotes() {
		s.Total++
		switch c.mounts.Status(r.ID).State {
		case types.StateConnected:
			s.Connected++
		case types.StateConnecting, types.StateDisconnecting:
			s.Connecting++
		case types.StateError:
			s.Errored++
		default:
			s.Disconnected++
		}
	}
	return s
}

// AddRemote validates and persists remote, then resyncs the recovery
// controller's desired set so a newly auto-connect-flagged remote is
// picked up without a process restart.
func (c *Core) AddRemote(remote types.RemoteConfig) error {
	if err := c.store.Upsert(remote); err != nil {
		return err
	}
	c.recovery.Load()
	return nil
}

// RemoveRemote deletes remote and forgets any cached password for it.
func (c *Core) RemoveRemote(remoteID string) error {
	if err := c.store.Delete(remoteID); err != nil {
		return err
	}
	if c.passwords != nil {
		c.passwords.Forget(remoteID)
	}
	return nil
}

// Browsers exposes the directory-browser session manager.
func (c *Core) Browsers() *browser.Manager {
	return c.browsers
}

// Diagnostics builds a full diagnostics report covering every subsystem's
// current state.
func (c *Core) Diagnostics() string {
	remotes := c.store.Remotes()
	statuses := make(map[string]types.RemoteStatus, len(remotes))
	for _, r := range remotes {
		statuses[r.ID] = c.mounts.Status(r.ID)
	}

	records, err := c.inspector.Records(context.Background())
	if err != nil {
		log.Logger.Warn().Err(err).Msg("diagnostics: mount table unavailable")
	}

	return c.diag.Snapshot(diagnostics.SnapshotInputs{
		Remotes:          remotes,
		Statuses:         statuses,
		Dependency:       c.dependency,
		BrowserSummary:   c.browsers.Summary(),
		ActiveOperations: c.engine.ActiveOperations(),
		MountRecords:     records,
		RecentEntries:    c.diag.Entries(),
	})
}

// WillSleep, DidWake, NetworkBecameReachable, NetworkBecameUnreachable,
// and ExternalVolumeUnmount forward system lifecycle signals to the
// recovery controller (spec.md §4.H).
func (c *Core) WillSleep()                              { c.recovery.WillSleep() }
func (c *Core) DidWake(ctx context.Context)              { c.recovery.DidWake(ctx) }
func (c *Core) NetworkBecameReachable(ctx context.Context) { c.recovery.NetworkBecameReachable(ctx) }
func (c *Core) NetworkBecameUnreachable()                { c.recovery.NetworkBecameUnreachable() }
func (c *Core) ExternalVolumeUnmount(ctx context.Context, remoteID string) {
	c.recovery.ExternalVolumeUnmount(ctx, remoteID)
}
