// Package core is the composition root: it wires the store, operations
// engine, recovery controller, mount manager, browser sessions, password
// resolver, diagnostics, and event broker into one Core object and
// exposes the small set of operations an embedder (CLI or GUI) needs.
package core
