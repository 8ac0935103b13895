package health

import (
	"sync"
	"time"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

// Config tunes the circuit breaker's failure window.
type Config struct {
	// FailureThreshold is the number of failures within Window that trips the breaker.
	FailureThreshold int
	// Window is the rolling time window failures are counted over.
	Window time.Duration
}

// DefaultConfig returns spec.md §4.F's breaker defaults: 8 failures in 30s.
func DefaultConfig() Config {
	return Config{FailureThreshold: 8, Window: 30 * time.Second}
}

// Breaker tracks consecutive health transitions for one browser session
// and classifies its current BrowserHealthState.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state         types.BrowserHealthState
	failureTimes  []time.Time
	lastSuccessAt *time.Time
	lastLatencyMs *int64
	lastError     string
}

// New creates a breaker starting in the connecting state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: types.BrowserConnecting}
}

// RecordSuccess marks a successful probe, closing the breaker if it was open.
func (b *Breaker) RecordSuccess(latencyMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.lastSuccessAt = &now
	b.lastLatencyMs = &latencyMs
	b.lastError = ""
	b.failureTimes = nil
	b.state = types.BrowserHealthy
}

// RecordFailure marks a failed probe. transitional is the state to report
// while a retry might still recover (degraded on first failures,
// reconnecting while actively retrying); the breaker overrides it with
// failed once the threshold trips within the window.
func (b *Breaker) RecordFailure(err string, transitional types.BrowserHealthState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.lastError = err
	b.failureTimes = append(b.failureTimes, now)
	b.failureTimes = pruneBefore(b.failureTimes, now.Add(-b.cfg.Window))

	if len(b.failureTimes) >= b.cfg.FailureThreshold {
		b.state = types.BrowserFailed
		return
	}
	b.state = transitional
}

// Tripped reports whether the breaker is currently open (failed). It stays
// open until RecordSuccess or SetState moves it to another state.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == types.BrowserFailed
}

// ResetWindow clears the failure window without changing the reported
// state: a tripped breaker stays tripped until RecordSuccess or SetState.
func (b *Breaker) ResetWindow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureTimes = nil
}

// SetState forcibly sets the reported state (used for the "connecting"
// and "closed" states that aren't driven by success/failure recording).
func (b *Breaker) SetState(s types.BrowserHealthState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

// Snapshot returns the current BrowserConnectionHealth.
func (b *Breaker) Snapshot() types.BrowserConnectionHealth {
	b.mu.Lock()
	defer b.mu.Unlock()

	return types.BrowserConnectionHealth{
		State:         b.state,
		LastSuccessAt: b.lastSuccessAt,
		LastLatencyMs: b.lastLatencyMs,
		LastError:     b.lastError,
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
