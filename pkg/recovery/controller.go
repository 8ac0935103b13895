package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/sshfsmond/sshfsmond/pkg/events"
	"github.com/sshfsmond/sshfsmond/pkg/log"
	"github.com/sshfsmond/sshfsmond/pkg/metrics"
	"github.com/sshfsmond/sshfsmond/pkg/operations"
	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// Trigger is who/what asked for a recovery pass or reconnect attempt. It is
// distinct from types.OperationTrigger: the operation engine only needs to
// know an op came from recovery, but the controller needs the finer-grained
// reason to pick the right backoff table and required-strike count.
type Trigger string

const (
	TriggerWake             Trigger = "wake"
	TriggerNetworkRestored  Trigger = "network-restored"
	TriggerVolumeUnmounted  Trigger = "volume-unmounted"
	TriggerStatusChange     Trigger = "status-change"
	TriggerPeriodic         Trigger = "periodic"
)

const (
	periodicInterval     = 15 * time.Second
	healthyProbeInterval = 60 * time.Second
	networkDebounce      = 1500 * time.Millisecond
)

var (
	wakeBurst    = []time.Duration{0, 1 * time.Second, 3 * time.Second, 8 * time.Second}
	networkBurst = []time.Duration{0, 2 * time.Second, 6 * time.Second}
)

// RemoteLister is the read-only view of the persisted remote set the
// recovery controller needs: every remote's connection config.
type RemoteLister interface {
	Remotes() []types.RemoteConfig
}

// StatusProvider exposes the mount manager's last-known status cache
// without forcing a live mount-table read.
type StatusProvider interface {
	Status(remoteID string) types.RemoteStatus
}

// PasswordPrimer pre-warms the password cache for a remote on a
// non-UI thread; used to serialize one-time secret-store unlocks during
// startup auto-connect.
type PasswordPrimer interface {
	Prime(ctx context.Context, remote types.RemoteConfig) error
}

// Controller is spec.md §4.H's recovery controller.
type Controller struct {
	remotes   RemoteLister
	status    StatusProvider
	engine    *operations.Engine
	passwords PasswordPrimer
	bus       *events.Broker

	mu             sync.Mutex
	desired        map[string]bool
	attempts       map[string]int
	strikes        map[string]int
	lastTransient  map[string]bool
	pendingStartup map[string]bool
	scheduled      map[string]context.CancelFunc

	sleeping       bool
	reachable      bool
	inPreflight    bool
	burstActive    bool
	lastProbeAt    time.Time

	stopCh chan struct{}
}

// NewController builds a Controller. reachable is the initial network
// reachability assumption (true, until a lifecycle callback says otherwise).
func NewController(remotes RemoteLister, status StatusProvider, engine *operations.Engine, passwords PasswordPrimer, bus *events.Broker) *Controller {
	return &Controller{
		remotes:        remotes,
		status:         status,
		engine:         engine,
		passwords:      passwords,
		bus:            bus,
		desired:        make(map[string]bool),
		attempts:       make(map[string]int),
		strikes:        make(map[string]int),
		lastTransient:  make(map[string]bool),
		pendingStartup: make(map[string]bool),
		scheduled:      make(map[string]context.CancelFunc),
		reachable:      true,
		stopCh:         make(chan struct{}),
	}
}

// Load computes the desired set from each remote's persisted auto-connect
// flag and queues them for startup auto-connect.
func (c *Controller) Load() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.remotes.Remotes() {
		if r.AutoConnect {
			c.desired[r.ID] = true
			c.pendingStartup[r.ID] = true
		}
	}
}

// StartPeriodicTimer launches the background ticker driving periodic
// recovery passes; call once at startup, stop via Close.
func (c *Controller) StartPeriodicTimer(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(periodicInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.maybeRunPeriodicPass(ctx)
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Close stops the periodic timer and cancels every scheduled reconnect task.
func (c *Controller) Close() {
	close(c.stopCh)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cancel := range c.scheduled {
		cancel()
		delete(c.scheduled, id)
	}
}

func (c *Controller) remoteByID(id string) (types.RemoteConfig, bool) {
	for _, r := range c.remotes.Remotes() {
		if r.ID == id {
			return r, true
		}
	}
	return types.RemoteConfig{}, false
}

func (c *Controller) publishIndicator(reason string) {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	pending := len(c.desired)
	scheduled := len(c.scheduled)
	c.mu.Unlock()
	c.bus.Publish(&events.Event{
		Type:    events.IndicatorChanged,
		Message: reason,
		Metadata: map[string]string{
			"pending_remotes":      itoa(pending),
			"scheduled_reconnects": itoa(scheduled),
		},
	})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// WillSleep cancels all in-flight operations and scheduled reconnects and
// clears the recovery indicator.
func (c *Controller) WillSleep() {
	c.mu.Lock()
	c.sleeping = true
	for id, cancel := range c.scheduled {
		cancel()
		delete(c.scheduled, id)
	}
	c.mu.Unlock()

	c.engine.Shutdown()
	c.publishIndicator("")
}

// DidWake runs the wake preflight: cancel per-remote ops on the desired
// set, submit a disconnect (the normal unmount ladder) and then a refresh
// for each, then schedule a staged recovery burst.
func (c *Controller) DidWake(ctx context.Context) {
	c.mu.Lock()
	c.sleeping = false
	c.inPreflight = true
	desired := make([]string, 0, len(c.desired))
	for id := range c.desired {
		desired = append(desired, id)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range desired {
		remote, ok := c.remoteByID(id)
		if !ok {
			continue
		}
		c.engine.CancelCurrent(id)

		wg.Add(1)
		go func(remote types.RemoteConfig) {
			defer wg.Done()
			cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			// Wake preflight's "force-stop with fast force-unmount": drive
			// the normal disconnect ladder, which is a no-op if the mount
			// table shows nothing at this path, then re-derive real state.
			_, _ = c.engine.Submit(cleanupCtx, remote, types.IntentDisconnect, types.TriggerRecovery, types.PolicyLatestIntentWins, "")
			_, _ = c.engine.Submit(cleanupCtx, remote, types.IntentRefresh, types.TriggerRecovery, types.PolicySkipIfBusy, "")
		}(remote)
	}
	wg.Wait()

	c.mu.Lock()
	c.inPreflight = false
	c.mu.Unlock()

	c.scheduleBurst(ctx, wakeBurst, TriggerWake)
}

// NetworkBecameReachable debounces briefly, then runs pending startup
// auto-connect and schedules a recovery burst if the network is still up.
func (c *Controller) NetworkBecameReachable(ctx context.Context) {
	c.mu.Lock()
	c.reachable = true
	c.mu.Unlock()

	go func() {
		select {
		case <-time.After(networkDebounce):
		case <-ctx.Done():
			return
		}

		c.mu.Lock()
		stillReachable := c.reachable
		c.mu.Unlock()
		if !stillReachable {
			return
		}

		c.RunStartupAutoConnect(ctx)
		c.scheduleBurst(ctx, networkBurst, TriggerNetworkRestored)
	}()
}

// NetworkBecameUnreachable cancels scheduled reconnects but keeps the
// desired set intact so reconnects resume once the network returns.
func (c *Controller) NetworkBecameUnreachable() {
	c.mu.Lock()
	c.reachable = false
	for id, cancel := range c.scheduled {
		cancel()
		delete(c.scheduled, id)
	}
	c.mu.Unlock()
}

// ExternalVolumeUnmount handles an unmount the core did not itself
// initiate: if remoteID is a desired remote and no wake preflight is
// running, it submits a refresh to re-derive the remote's status and
// schedules an auto-reconnect. It does not itself set the status to
// disconnected or attach a note to it.
func (c *Controller) ExternalVolumeUnmount(ctx context.Context, remoteID string) {
	c.mu.Lock()
	desired := c.desired[remoteID]
	preflight := c.inPreflight
	c.mu.Unlock()
	if !desired || preflight {
		return
	}

	remote, ok := c.remoteByID(remoteID)
	if !ok {
		return
	}
	_, _ = c.engine.Submit(ctx, remote, types.IntentRefresh, types.TriggerRecovery, types.PolicySkipIfBusy, "")
	c.scheduleReconnect(ctx, remoteID, TriggerVolumeUnmounted)
}

func (c *Controller) scheduleBurst(ctx context.Context, offsets []time.Duration, trigger Trigger) {
	c.mu.Lock()
	c.burstActive = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.burstActive = false
			c.mu.Unlock()
		}()
		for _, offset := range offsets {
			select {
			case <-time.After(offset):
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
			c.runRecoveryPass(ctx, trigger)
		}
	}()
}

// maybeRunPeriodicPass is the periodic-timer callback: it skips the
// expensive per-remote refresh when nothing would change.
func (c *Controller) maybeRunPeriodicPass(ctx context.Context) {
	c.mu.Lock()
	sleeping, preflight, burst := c.sleeping, c.inPreflight, c.burstActive
	c.mu.Unlock()
	if sleeping || preflight || burst {
		return
	}

	if c.canSkipPeriodicProbe() {
		metrics.RecoveryPassesSkippedTotal.Inc()
		return
	}

	c.runRecoveryPass(ctx, TriggerPeriodic)
}

// canSkipPeriodicProbe implements the healthy-skip optimization: once
// everything is confirmed connected, don't re-probe on every 15s tick,
// only once HEALTHY_PROBE_INTERVAL has actually elapsed since the last
// probe that ran.
func (c *Controller) canSkipPeriodicProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.scheduled) > 0 {
		return false
	}
	if time.Since(c.lastProbeAt) >= healthyProbeInterval {
		return false
	}
	for id := range c.desired {
		if _, ok := c.engine.Current(id); ok {
			return false
		}
		if c.status.Status(id).State != types.StateConnected {
			return false
		}
	}
	return true
}

// runRecoveryPass runs a refresh op for every desired, not-in-transition
// remote, updates strikes, and schedules auto-reconnect where warranted.
func (c *Controller) runRecoveryPass(ctx context.Context, trigger Trigger) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RecoveryPassDuration)
	metrics.RecoveryPassesTotal.WithLabelValues(string(trigger)).Inc()

	c.mu.Lock()
	c.lastProbeAt = time.Now()
	ids := make([]string, 0, len(c.desired))
	for id := range c.desired {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		remote, ok := c.remoteByID(id)
		if !ok {
			continue
		}
		if st, ok := c.engine.Current(id); ok && isTransitional(st.Intent) {
			continue
		}

		status, err := c.engine.Submit(ctx, remote, types.IntentRefresh, types.TriggerRecovery, types.PolicySkipIfBusy, "")

		// RefreshStatus reports a stale/failed mount via status.LastError
		// with a nil error, not via err; a failed connect/disconnect op
		// reports it via err. Either can carry a permanent-failure marker.
		failureMsg := ""
		switch {
		case err != nil:
			failureMsg = err.Error()
		case status.State == types.StateError:
			failureMsg = status.LastError
		}

		c.mu.Lock()
		if status.State == types.StateConnected {
			c.strikes[id] = 0
			c.lastTransient[id] = false
		} else {
			c.strikes[id]++
			if failureMsg != "" {
				c.lastTransient[id] = types.IsTransient(failureMsg)
			}
		}
		strikes := c.strikes[id]
		permanent := failureMsg != "" && types.StopsAutoReconnect(types.ClassifyError(failureMsg))
		_, alreadyScheduled := c.scheduled[id]
		c.mu.Unlock()

		if status.State != types.StateConnected && strikes >= requiredStrikes(trigger) && !permanent && !alreadyScheduled {
			c.scheduleReconnect(ctx, id, trigger)
		}
	}
}

func isTransitional(intent types.OperationIntent) bool {
	return intent == types.IntentConnect || intent == types.IntentDisconnect
}

// scheduleReconnect arms a reconnect task for remoteID following the
// backoff table for trigger; cancelling any task already scheduled.
func (c *Controller) scheduleReconnect(ctx context.Context, remoteID string, trigger Trigger) {
	c.mu.Lock()
	if cancel, ok := c.scheduled[remoteID]; ok {
		cancel()
	}
	attempt := c.attempts[remoteID]
	transient := c.lastTransient[remoteID]
	taskCtx, cancel := context.WithCancel(ctx)
	c.scheduled[remoteID] = cancel
	c.mu.Unlock()

	delay := backoffDelay(attempt, trigger, transient)
	metrics.ReconnectAttemptsTotal.WithLabelValues(string(trigger)).Inc()

	go c.runReconnectTask(taskCtx, remoteID, trigger, delay)
	c.publishIndicator("reconnect scheduled")
}

func (c *Controller) runReconnectTask(ctx context.Context, remoteID string, trigger Trigger, delay time.Duration) {
	defer func() {
		c.mu.Lock()
		delete(c.scheduled, remoteID)
		c.mu.Unlock()
	}()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	c.mu.Lock()
	sleeping, reachable, desired := c.sleeping, c.reachable, c.desired[remoteID]
	c.mu.Unlock()
	if sleeping || !reachable || !desired {
		return
	}
	if c.status.Status(remoteID).State == types.StateConnected {
		return
	}

	remote, ok := c.remoteByID(remoteID)
	if !ok {
		return
	}

	status, err := c.engine.Submit(ctx, remote, types.IntentRefresh, types.TriggerRecovery, types.PolicySkipIfBusy, "")
	if err == nil && status.State == types.StateConnected {
		c.mu.Lock()
		c.attempts[remoteID] = 0
		c.strikes[remoteID] = 0
		c.mu.Unlock()
		return
	}

	log.WithRemoteID(remoteID).Info().Str("trigger", string(trigger)).Msg("attempting recovery connect")
	if remote.AuthMode == types.AuthModePassword && c.passwords != nil {
		_ = c.passwords.Prime(ctx, remote)
	}
	status, err = c.engine.Submit(ctx, remote, types.IntentConnect, types.TriggerRecovery, types.PolicyLatestIntentWins, "")

	c.mu.Lock()
	c.attempts[remoteID]++
	c.mu.Unlock()

	if err != nil && types.StopsAutoReconnect(types.ClassifyError(err.Error())) {
		c.mu.Lock()
		delete(c.desired, remoteID)
		delete(c.pendingStartup, remoteID)
		c.mu.Unlock()
		return
	}

	if err != nil || status.State != types.StateConnected {
		c.scheduleReconnect(ctx, remoteID, trigger)
	}
}

// RunStartupAutoConnect runs the once-per-queued-remote startup sequence:
// defer entirely if the network isn't reachable, else prime passwords
// sequentially (to serialize any one-time secret-store unlock) before
// connecting in parallel through the global limiter.
func (c *Controller) RunStartupAutoConnect(ctx context.Context) {
	c.mu.Lock()
	if !c.reachable {
		c.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(c.pendingStartup))
	for id := range c.pendingStartup {
		ids = append(ids, id)
	}
	c.pendingStartup = make(map[string]bool)
	c.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	remotes := make([]types.RemoteConfig, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.remoteByID(id); ok {
			remotes = append(remotes, r)
		}
	}

	for _, r := range remotes {
		if r.AuthMode == types.AuthModePassword && c.passwords != nil {
			_ = c.passwords.Prime(ctx, r)
		}
	}

	var wg sync.WaitGroup
	for _, r := range remotes {
		wg.Add(1)
		go func(r types.RemoteConfig) {
			defer wg.Done()
			status, err := c.engine.Submit(ctx, r, types.IntentConnect, types.TriggerStartup, types.PolicyLatestIntentWins, "")
			if err != nil || status.State != types.StateConnected {
				c.mu.Lock()
				c.strikes[r.ID] = requiredStrikes(TriggerPeriodic)
				c.mu.Unlock()
				c.scheduleReconnect(ctx, r.ID, TriggerPeriodic)
			}
		}(r)
	}
	wg.Wait()
}
