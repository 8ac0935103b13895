// Package health implements the circuit-breaker bookkeeping shared by the
// directory-browser session subsystem: a rolling failure/success window
// that classifies a session's connection health and decides when new
// requests should be refused until a manual retry resets the window.
package health
