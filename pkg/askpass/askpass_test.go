package askpass

import (
	"context"
	"errors"
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var varNameRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func TestWithContext_ScriptAndEnv(t *testing.T) {
	var capturedScript string

	err := WithContext(context.Background(), "s3cr3t", func(c Context) error {
		capturedScript = c.ScriptPath

		info, statErr := os.Stat(c.ScriptPath)
		require.NoError(t, statErr)
		assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

		assert.Equal(t, c.ScriptPath, c.Env["SSH_ASKPASS"])
		assert.Equal(t, "force", c.Env["SSH_ASKPASS_REQUIRE"])
		assert.Equal(t, "1", c.Env["DISPLAY"])
		assert.Contains(t, c.Secrets, "s3cr3t")

		found := false
		for k, v := range c.Env {
			if k == "SSH_ASKPASS" || k == "SSH_ASKPASS_REQUIRE" || k == "DISPLAY" {
				continue
			}
			assert.True(t, varNameRE.MatchString(k), "env var name %q must match [A-Za-z0-9_]+", k)
			assert.Equal(t, "s3cr3t", v)
			found = true
		}
		assert.True(t, found, "expected a secret-carrying env var")

		return nil
	})

	require.NoError(t, err)

	_, statErr := os.Stat(capturedScript)
	assert.True(t, os.IsNotExist(statErr), "script should be removed after WithContext returns")
}

func TestWithContext_CleansUpOnError(t *testing.T) {
	var dir string

	err := WithContext(context.Background(), "pw", func(c Context) error {
		dir = c.ScriptPath
		return errors.New("fn failed")
	})

	require.Error(t, err)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSecretVarName_Unique(t *testing.T) {
	a := secretVarName()
	b := secretVarName()
	assert.NotEqual(t, a, b)
	assert.True(t, varNameRE.MatchString(a))
}
