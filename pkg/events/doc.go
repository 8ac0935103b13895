// Package events provides an in-memory broker that lets the core publish
// observable state changes without binding it to any particular UI layer.
//
// The UI (or a test) subscribes and receives status-changed,
// summary-changed, indicator-changed, and alert events; the core itself
// never depends on a concrete subscriber.
package events
