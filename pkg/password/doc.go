// Package password resolves the secret for a password-mode remote through
// an in-memory cache backed by an off-thread read from an external secret
// store, funneling access through one place so background reconnects never
// trigger a storm of prompts or parallel store reads.
package password
