// Package askpass provides a scoped-acquisition helper for feeding an
// interactive SSH password to sshfs non-interactively. It writes a
// throwaway script that prints the password from an environment variable
// with a random name, points SSH_ASKPASS at it, and guarantees the script
// and its directory are removed when the caller's function returns.
package askpass
