// Package types defines the data model shared by every sshfsmond
// package: the remote configuration a user defines, the connection and
// operation state machines that track it at runtime, the directory
// browser's snapshot/health types, and the tagged error taxonomy used
// across the core instead of ad hoc string matching.
package types
