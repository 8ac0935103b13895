package diagnostics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact_ReplacesKnownSecret(t *testing.T) {
	r := NewRedactor("hunter2")
	out := r.Redact("connecting with password hunter2 to host")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, sentinel)
}

func TestRedact_LongestFirstAvoidsPartialLeftover(t *testing.T) {
	r := NewRedactor("pass", "pass123")
	out := r.Redact("secret is pass123")
	assert.False(t, strings.Contains(out, "pass123"))
	assert.False(t, strings.Contains(out, "123"), "the longer secret must be matched whole, not leaving a numeric remainder")
}

func TestRedact_SanitizesToSingleLine(t *testing.T) {
	r := NewRedactor()
	out := r.Redact("line one\nline two\r\nline three")
	assert.NotContains(t, out, "\n")
	assert.NotContains(t, out, "\r")
}

func TestRedact_EmptySecretsIgnored(t *testing.T) {
	r := NewRedactor("", "abc")
	out := r.Redact("value is abc and not empty")
	assert.NotContains(t, out, "abc")
}

func TestWithExtra_CoversAdditionalSecretsWithoutMutatingOriginal(t *testing.T) {
	base := NewRedactor("known")
	extended := base.WithExtra("extra")

	assert.Contains(t, base.Redact("known extra"), "extra")
	assert.NotContains(t, extended.Redact("known extra"), "extra")
}
