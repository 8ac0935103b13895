// Package browser implements the directory browser session subsystem: a
// single-writer worker per open remote that serializes list/go-up/retry
// requests, caches the last listing per path, and trips a circuit breaker
// after repeated transport failures so a dead session stops hammering a
// remote that will not answer.
package browser
