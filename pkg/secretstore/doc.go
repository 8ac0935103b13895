// Package secretstore is a concrete, file-backed stand-in for the
// opaque keychain collaborator password.Resolver reads through. It
// exists so the CLI and tests have something to run against; a real
// embedder is free to swap in an OS keychain binding instead, since
// password.SecretStore is the only contract that matters.
package secretstore
