// Package mount implements the per-remote connection state machine:
// connect, disconnect, refresh, test, and force-stop-helpers. It is the
// only component that mutates a remote's RemoteStatus, serializing all
// changes behind a per-remote lock so status transitions stay exclusive.
package mount
