package operations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/metrics"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// GlobalMaxConcurrent bounds how many operations may execute simultaneously
// across every remote. Open Question (spec.md §4.G): left tunable rather
// than a hardcoded constant so an embedder can raise it on faster hosts;
// defaults to the spec's suggested 4.
var GlobalMaxConcurrent int64 = 4

// StalledReplaceThreshold is how long a skip-if-busy op must have been
// running before a recovery/startup connect is allowed to replace it.
const StalledReplaceThreshold = 20 * time.Second

// watchdogTimeout is the per-intent outer bound from spec.md §5 layer 3.
func watchdogTimeout(intent types.OperationIntent) time.Duration {
	switch intent {
	case types.IntentConnect:
		return 45 * time.Second
	case types.IntentDisconnect:
		return 10 * time.Second
	case types.IntentRefresh:
		return 18 * time.Second
	default:
		return 45 * time.Second
	}
}

// MountExecutor is the subset of pkg/mount.Manager the engine drives.
// Separated into an interface so tests can substitute a fake without
// spawning real sshfs processes.
type MountExecutor interface {
	Connect(ctx context.Context, remote types.RemoteConfig, password string) (types.RemoteStatus, error)
	Disconnect(ctx context.Context, remote types.RemoteConfig) (types.RemoteStatus, error)
	RefreshStatus(ctx context.Context, remote types.RemoteConfig) (types.RemoteStatus, error)
	ForceStopHelpers(ctx context.Context, remote types.RemoteConfig, aggressive bool) error
}

// PasswordResolver resolves the secret for a connect attempt that did not
// carry an explicit draft password, per spec.md §4.I's lookup order
// (explicit draft, then cache, then secret-store read). A nil resolver
// means connects always use whatever explicit password they were given,
// which is empty for automated recovery/startup triggers.
type PasswordResolver interface {
	Resolve(ctx context.Context, remote types.RemoteConfig) (string, error)
}

// trackedOp is the engine's bookkeeping for one admitted (or queued)
// operation against a single remote.
type trackedOp struct {
	state  types.OperationState
	cancel context.CancelFunc
	done   chan struct{}
}

type remoteSlot struct {
	mu      sync.Mutex
	current *trackedOp
}

// Engine is the per-remote operation scheduler: spec.md §4.G.
type Engine struct {
	executor  MountExecutor
	passwords PasswordResolver
	limiter   *semaphore.Weighted

	mu    sync.Mutex
	slots map[string]*remoteSlot
}

// NewEngine builds an Engine bounded by GlobalMaxConcurrent at construction
// time (changing the package var afterward does not resize a live engine).
// passwords may be nil, in which case connects rely solely on whatever
// explicit password string the caller supplied to Submit.
func NewEngine(executor MountExecutor, passwords PasswordResolver) *Engine {
	return &Engine{
		executor:  executor,
		passwords: passwords,
		limiter:   semaphore.NewWeighted(GlobalMaxConcurrent),
		slots:     make(map[string]*remoteSlot),
	}
}

func (e *Engine) slotFor(remoteID string) *remoteSlot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[remoteID]
	if !ok {
		s = &remoteSlot{}
		e.slots[remoteID] = s
	}
	return s
}

// Submit admits an operation for remote under policy, resolving any
// conflict with an already-running operation for the same remote, then
// blocks until the global limiter admits it, runs it under its per-intent
// watchdog, and returns the resulting RemoteStatus.
func (e *Engine) Submit(ctx context.Context, remote types.RemoteConfig, intent types.OperationIntent, trigger types.OperationTrigger, policy types.ConflictPolicy, password string) (types.RemoteStatus, error) {
	slot := e.slotFor(remote.ID)

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	op, rejected := e.admit(slot, remote.ID, intent, trigger, policy, cancel)
	if rejected != nil {
		cancel()
		return types.RemoteStatus{}, rejected
	}

	metrics.OperationsTotal.WithLabelValues(string(intent), string(trigger)).Inc()
	metrics.OperationsInFlight.WithLabelValues(string(intent)).Inc()
	defer metrics.OperationsInFlight.WithLabelValues(string(intent)).Dec()

	if err := e.limiter.Acquire(ctx, 1); err != nil {
		e.clearIfCurrent(slot, op)
		close(op.done)
		cancel()
		return types.RemoteStatus{}, types.NewCancelledError("operation cancelled while waiting for a free slot")
	}
	defer e.limiter.Release(1)

	watchdogCtx, watchdogCancel := context.WithTimeout(opCtx, watchdogTimeout(intent))
	defer watchdogCancel()

	timer := metrics.NewTimer()
	status, err := e.run(watchdogCtx, remote, intent, password)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if watchdogCtx.Err() == context.DeadlineExceeded {
		outcome = "watchdog"
		metrics.OperationWatchdogFiredTotal.WithLabelValues(string(intent)).Inc()
		e.cleanupAfterWatchdog(remote)
	}
	timer.ObserveDurationVec(metrics.OperationDuration, string(intent), outcome)

	stale := e.clearIfCurrent(slot, op)
	close(op.done)
	if stale {
		return types.RemoteStatus{}, types.NewCancelledError("operation superseded before it completed")
	}
	return status, err
}

// admit resolves the conflict between any currently running op for this
// remote and the newly requested one, per spec.md §4.G's policy table.
// It returns the trackedOp to run, or a non-nil error if the request is
// rejected outright (skip-if-busy, not eligible for replacement).
func (e *Engine) admit(slot *remoteSlot, remoteID string, intent types.OperationIntent, trigger types.OperationTrigger, policy types.ConflictPolicy, cancel context.CancelFunc) (*trackedOp, error) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	existing := slot.current
	if existing != nil {
		switch policy {
		case types.PolicySkipIfBusy:
			if !e.eligibleForStallReplace(existing, intent, trigger) {
				return nil, types.NewBusyError([]string{string(existing.state.Intent) + " already in progress"})
			}
			existing.state.Cancelled = true
			existing.cancel()
			log.WithRemoteID(remoteID).Info().Str("replaced_intent", string(existing.state.Intent)).Msg("replacing stalled operation")
		case types.PolicyLatestIntentWins:
			existing.state.Cancelled = true
			existing.cancel()
		}
	}

	op := &trackedOp{
		state: types.OperationState{
			OperationID: uuid.New().String(),
			RemoteID:    remoteID,
			Intent:      intent,
			Trigger:     trigger,
			StartedAt:   time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if existing != nil {
		existing.state.SupersededBy = op.state.OperationID
	}
	slot.current = op
	return op, nil
}

// eligibleForStallReplace implements the narrow skip-if-busy exception:
// a same-or-compatible-intent op that has been running at least
// StalledReplaceThreshold may be displaced by a recovery/startup connect.
func (e *Engine) eligibleForStallReplace(existing *trackedOp, newIntent types.OperationIntent, newTrigger types.OperationTrigger) bool {
	if newIntent != types.IntentConnect {
		return false
	}
	if newTrigger != types.TriggerRecovery && newTrigger != types.TriggerStartup {
		return false
	}
	if existing.state.Intent != types.IntentConnect && existing.state.Intent != types.IntentRefresh {
		return false
	}
	return time.Since(existing.state.StartedAt) >= StalledReplaceThreshold
}

// clearIfCurrent removes op from slot if it is still the current op,
// reporting whether it had already been superseded by something else.
func (e *Engine) clearIfCurrent(slot *remoteSlot, op *trackedOp) bool {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.current == op {
		slot.current = nil
		return false
	}
	return true
}

func (e *Engine) run(ctx context.Context, remote types.RemoteConfig, intent types.OperationIntent, password string) (types.RemoteStatus, error) {
	switch intent {
	case types.IntentConnect:
		if password == "" && remote.AuthMode == types.AuthModePassword && e.passwords != nil {
			resolved, err := e.passwords.Resolve(ctx, remote)
			if err != nil {
				return types.RemoteStatus{}, err
			}
			password = resolved
		}
		return e.executor.Connect(ctx, remote, password)
	case types.IntentDisconnect:
		return e.executor.Disconnect(ctx, remote)
	case types.IntentRefresh:
		return e.executor.RefreshStatus(ctx, remote)
	default:
		return types.RemoteStatus{}, types.NewValidationError("unsupported operation intent")
	}
}

// cleanupAfterWatchdog runs spec.md §5 layer 3's "structured cleanup":
// a bounded best-effort force-stop of any helper process left behind by
// the timed-out operation, never touching the mount point.
func (e *Engine) cleanupAfterWatchdog(remote types.RemoteConfig) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.executor.ForceStopHelpers(cleanupCtx, remote, true); err != nil {
		log.WithRemoteID(remote.ID).Warn().Err(err).Msg("watchdog cleanup failed to force-stop helpers")
	}
}

// Current returns the OperationState currently admitted for remoteID, if any.
func (e *Engine) Current(remoteID string) (types.OperationState, bool) {
	e.mu.Lock()
	slot, ok := e.slots[remoteID]
	e.mu.Unlock()
	if !ok {
		return types.OperationState{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.current == nil {
		return types.OperationState{}, false
	}
	return slot.current.state, true
}

// CancelCurrent cancels the in-flight operation for one remote, if any,
// without affecting any other remote's operation. Used by the recovery
// controller's wake preflight, which must stop work only on the desired
// remotes it is about to force-clean.
func (e *Engine) CancelCurrent(remoteID string) {
	e.mu.Lock()
	slot, ok := e.slots[remoteID]
	e.mu.Unlock()
	if !ok {
		return
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.current != nil {
		slot.current.state.Cancelled = true
		slot.current.cancel()
	}
}

// ActiveOperations returns a snapshot of every remote's currently admitted
// operation, for diagnostics reporting.
func (e *Engine) ActiveOperations() []types.OperationState {
	e.mu.Lock()
	slots := make([]*remoteSlot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.Unlock()

	out := make([]types.OperationState, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		if slot.current != nil {
			out = append(out, slot.current.state)
		}
		slot.mu.Unlock()
	}
	return out
}

// Shutdown cancels every in-flight operation across every remote, per
// spec.md §5 layer 4's application-shutdown cancellation cascade.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	slots := make([]*remoteSlot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.Unlock()

	for _, slot := range slots {
		slot.mu.Lock()
		if slot.current != nil {
			slot.current.state.Cancelled = true
			slot.current.cancel()
		}
		slot.mu.Unlock()
	}
}
