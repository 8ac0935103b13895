// Package diagnostics retains a bounded, redacted event log for the core
// and builds the multi-section plain-text snapshot surfaced to support
// requests, plus an optional /healthz and /metrics HTTP exposition.
package diagnostics
