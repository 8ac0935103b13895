package askpass

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Context carries everything a connect attempt needs to hand a password
// to sshfs without ever putting it on the command line or in a config
// file: the script path to point SSH_ASKPASS at, the environment to merge
// into the child process, and the literal secret values that must be
// redacted from any captured output or log line.
type Context struct {
	ScriptPath string
	Env        map[string]string
	Secrets    []string
}

// WithContext creates a scoped askpass script carrying password, invokes
// fn with the resulting Context, and guarantees the backing temp
// directory is removed before returning, on every exit path including a
// panic in fn.
func WithContext(ctx context.Context, password string, fn func(Context) error) error {
	dir, err := os.MkdirTemp("", "sshfsmond-askpass-*")
	if err != nil {
		return fmt.Errorf("creating askpass temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("securing askpass temp dir: %w", err)
	}

	varName := secretVarName()
	scriptPath := filepath.Join(dir, "askpass.sh")

	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s' \"$%s\"\n", varName)
	if err := os.WriteFile(scriptPath, []byte(script), 0o600); err != nil {
		return fmt.Errorf("writing askpass script: %w", err)
	}
	if err := os.Chmod(scriptPath, 0o700); err != nil {
		return fmt.Errorf("making askpass script executable: %w", err)
	}

	askCtx := Context{
		ScriptPath: scriptPath,
		Env: map[string]string{
			"SSH_ASKPASS":         scriptPath,
			"SSH_ASKPASS_REQUIRE": "force",
			"DISPLAY":             "1",
			varName:               password,
		},
		Secrets: []string{password},
	}

	return fn(askCtx)
}

// secretVarName returns a random environment variable name matching
// [A-Za-z0-9_]+, unique per invocation so concurrent connect attempts
// never collide.
func secretVarName() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "SSHFSMOND_ASKPASS_" + suffix
}
