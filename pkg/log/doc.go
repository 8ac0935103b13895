// Package log provides structured logging for sshfsmond using zerolog.
//
// Most components tag their lines with WithRemoteID; anything that needs
// a different field builds a child logger off Logger directly rather than
// growing a helper per field name.
package log
