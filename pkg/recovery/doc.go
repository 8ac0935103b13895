// Package recovery reconciles the desired set of connected remotes against
// observed state across sleep/wake, network reachability changes, and
// periodic probes, scheduling backoff-governed reconnect attempts through
// the operations engine.
package recovery
