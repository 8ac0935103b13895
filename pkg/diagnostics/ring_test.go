package diagnostics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshfsmond/sshfsmond/pkg/types"
)

func TestRing_SnapshotReturnsInChronologicalOrder(t *testing.T) {
	r := NewRing(3, nil)
	r.Info("cat", "first")
	r.Info("cat", "second")
	r.Info("cat", "third")

	snap := r.Entries()
	require.Len(t, snap, 3)
	assert.Equal(t, "first", snap[0].Message)
	assert.Equal(t, "second", snap[1].Message)
	assert.Equal(t, "third", snap[2].Message)
}

func TestRing_DiscardsOldestWhenFull(t *testing.T) {
	r := NewRing(2, nil)
	r.Info("cat", "first")
	r.Info("cat", "second")
	r.Info("cat", "third")

	snap := r.Entries()
	require.Len(t, snap, 2)
	assert.Equal(t, "second", snap[0].Message)
	assert.Equal(t, "third", snap[1].Message)
}

func TestRing_WrapsMultipleTimes(t *testing.T) {
	r := NewRing(3, nil)
	for i := 0; i < 10; i++ {
		r.Info("cat", fmt.Sprintf("entry-%d", i))
	}

	snap := r.Entries()
	require.Len(t, snap, 3)
	assert.Equal(t, "entry-7", snap[0].Message)
	assert.Equal(t, "entry-8", snap[1].Message)
	assert.Equal(t, "entry-9", snap[2].Message)
}

func TestRing_AppendRedactsBeforeStoring(t *testing.T) {
	r := NewRing(10, NewRedactor("s3cret"))
	r.Warn("auth", "login failed with s3cret")

	snap := r.Entries()
	require.Len(t, snap, 1)
	assert.NotContains(t, snap[0].Message, "s3cret")
	assert.Equal(t, types.LevelWarn, snap[0].Level)
}

func TestRing_LevelHelpersSetCorrectLevel(t *testing.T) {
	r := NewRing(10, nil)
	r.Debug("c", "d")
	r.Info("c", "i")
	r.Warn("c", "w")
	r.Error("c", "e")

	snap := r.Entries()
	require.Len(t, snap, 4)
	assert.Equal(t, types.LevelDebug, snap[0].Level)
	assert.Equal(t, types.LevelInfo, snap[1].Level)
	assert.Equal(t, types.LevelWarn, snap[2].Level)
	assert.Equal(t, types.LevelError, snap[3].Level)
}
