package collab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/testutil"
)

func TestReadSeries(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, SeriesFile), "# comment\ncore/a.patch\n\n  extra/b.patch  \n")

	patches, err := ReadSeries(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "core", "a.patch"),
		filepath.Join(dir, "extra", "b.patch"),
	}, patches)

	_, err = ReadSeries(t.TempDir())
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeConfiguration))
}

func TestAdjustAVX2(t *testing.T) {
	dir := t.TempDir()
	series := filepath.Join(dir, SeriesFile)
	testutil.WriteFile(t, series, "a.patch\n")
	testutil.WriteFile(t, filepath.Join(dir, filepath.FromSlash(AVX2Patch)), "diff")

	changed, err := AdjustAVX2(dir, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "a.patch\n"+AVX2Patch+"\n", testutil.ReadFile(t, series))

	changed, err = AdjustAVX2(dir, true)
	require.NoError(t, err)
	assert.False(t, changed, "already present")

	changed, err = AdjustAVX2(dir, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "a.patch\n", testutil.ReadFile(t, series))
}

func TestAdjustAVX2MissingPatchFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, SeriesFile), "a.patch\n")

	changed, err := AdjustAVX2(dir, true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "a.patch\n", testutil.ReadFile(t, filepath.Join(dir, SeriesFile)))
}

func TestApplySeries(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, SeriesFile), "one.patch\ntwo.patch\nthree.patch\n")
	runner := &fakeRunner{failOn: filepath.Join(dir, "two.patch")}
	applier := PatchApplier{Runner: runner}

	err := applier.ApplySeries(t.Context(), dir, "/src")
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "two.patch"), ce.Context()["patch"])

	require.Len(t, runner.calls, 2, "stops at the first failing patch")
	first := runner.calls[0].cmd
	assert.Equal(t, "patch", first.Name)
	assert.Equal(t, []string{"-p1", "--ignore-whitespace", "-i", filepath.Join(dir, "one.patch"), "-d", "/src", "--no-backup-if-mismatch", "--forward"}, first.Args)
}
