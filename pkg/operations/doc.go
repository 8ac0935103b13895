// Package operations serializes per-remote mount work: at most one active
// operation per remote, a conflict policy deciding what happens when a
// second request arrives while one is in flight, a global concurrency cap
// shared across all remotes, and a per-intent watchdog that cancels and
// cleans up an operation that runs too long.
package operations
