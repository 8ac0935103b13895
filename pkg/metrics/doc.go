// Package metrics exposes Prometheus instrumentation for the operations
// engine, recovery controller, and browser sessions: how many operations
// are in flight, how often reconnects are attempted, and how many
// browser sessions are currently open. Collection is passive — nothing
// in this package drives behavior, it only observes what other packages
// report.
package metrics
