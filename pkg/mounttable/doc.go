// Package mounttable inspects the system's current mount listing to find
// out whether a given local path is an active SSHFS mount. It parses the
// output of `mount` and falls back to `df -P <path>` when the primary
// listing times out or cannot be parsed.
package mounttable
