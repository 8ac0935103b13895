package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RemotesTotal tracks how many remotes are known, by current connection state.
	RemotesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sshfsmond_remotes_total",
			Help: "Total number of known remotes by connection state",
		},
		[]string{"state"},
	)

	// OperationsInFlight tracks admitted, not-yet-completed operations by intent.
	OperationsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sshfsmond_operations_in_flight",
			Help: "Number of admitted operations currently executing, by intent",
		},
		[]string{"intent"},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshfsmond_operations_total",
			Help: "Total number of operations admitted, by intent and trigger",
		},
		[]string{"intent", "trigger"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sshfsmond_operation_duration_seconds",
			Help:    "Operation duration in seconds by intent and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent", "outcome"},
	)

	OperationWatchdogFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshfsmond_operation_watchdog_fired_total",
			Help: "Total number of times an operation watchdog fired before completion",
		},
		[]string{"intent"},
	)

	// Recovery metrics
	ReconnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshfsmond_reconnect_attempts_total",
			Help: "Total number of scheduled reconnect attempts, by trigger",
		},
		[]string{"trigger"},
	)

	RecoveryPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sshfsmond_recovery_pass_duration_seconds",
			Help:    "Time taken for a recovery pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecoveryPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshfsmond_recovery_passes_total",
			Help: "Total number of recovery passes run, by trigger",
		},
		[]string{"trigger"},
	)

	RecoveryPassesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sshfsmond_recovery_passes_skipped_total",
			Help: "Total number of periodic recovery passes skipped because all desired remotes were already healthy",
		},
	)

	// Browser session metrics
	BrowserSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sshfsmond_browser_sessions_active",
			Help: "Number of currently open directory browser sessions",
		},
	)

	BrowserRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sshfsmond_browser_request_duration_seconds",
			Help:    "Directory browser request duration in seconds by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	BrowserCircuitTripsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sshfsmond_browser_circuit_trips_total",
			Help: "Total number of times a browser session's circuit breaker tripped",
		},
	)

	// Process runner metrics
	ProcessInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sshfsmond_process_invocations_total",
			Help: "Total number of child process invocations by executable and outcome",
		},
		[]string{"executable", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RemotesTotal,
		OperationsInFlight,
		OperationsTotal,
		OperationDuration,
		OperationWatchdogFiredTotal,
		ReconnectAttemptsTotal,
		RecoveryPassDuration,
		RecoveryPassesTotal,
		RecoveryPassesSkippedTotal,
		BrowserSessionsActive,
		BrowserRequestDuration,
		BrowserCircuitTripsTotal,
		ProcessInvocationsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics exposition.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and recording its
// duration to a histogram once it finishes.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
