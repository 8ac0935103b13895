// Package store is the opaque persistence collaborator for RemoteConfig:
// an in-memory RemoteStore plus a YAML-backed implementation that loads
// and saves the whole remote list as one file. Its on-disk format is
// explicitly out of scope for the core's own semantics — callers interact
// with it only through the RemoteStore interface.
package store
