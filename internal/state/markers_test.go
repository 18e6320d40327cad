package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkerLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".stamps")
	m := NewMarkerStore(dir)

	done, err := m.Done("apply_patches")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, m.Mark("apply_patches"))
	require.NoError(t, m.Mark("apply_patches"))
	require.NoError(t, m.Mark("gn_gen"))

	done, err = m.Done("apply_patches")
	require.NoError(t, err)
	assert.True(t, done)

	info, err := os.Stat(m.Path("apply_patches"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	steps, err := m.Completed()
	require.NoError(t, err)
	assert.Equal(t, []string{"apply_patches", "gn_gen"}, steps)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestMarkerReset(t *testing.T) {
	dir := t.TempDir()
	m := NewMarkerStore(dir)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, m.Mark(s))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crossbuild.lock"), []byte("1"), 0o600))

	removed, err := m.Reset("b", "missing")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, removed)

	removed, err = m.Reset()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, removed)

	steps, err := m.Completed()
	require.NoError(t, err)
	assert.Empty(t, steps)
	assert.FileExists(t, filepath.Join(dir, "crossbuild.lock"))
}

func TestCompletedWithoutDirectory(t *testing.T) {
	steps, err := NewMarkerStore(filepath.Join(t.TempDir(), "absent")).Completed()
	require.NoError(t, err)
	assert.Empty(t, steps)
}
