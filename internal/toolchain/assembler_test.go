package toolchain

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/fetch"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
)

// partFetcher writes each entry's URL as the file content.
type partFetcher struct {
	calls int
	err   error
}

func (f *partFetcher) FetchAll(_ context.Context, entries []fetch.FileEntry, destDir string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(destDir, e.Filename)
		if err := os.WriteFile(p, []byte(e.URL), 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// copyUnpacker writes the concatenated stream to a fixed file name.
type copyUnpacker struct {
	name string
}

func (u copyUnpacker) Unpack(_ context.Context, r io.Reader, destDir string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if u.name == "" {
		return "", nil
	}
	return "", os.WriteFile(filepath.Join(destDir, u.name), data, 0o600)
}

type stateRecorder struct {
	metrics.NoopRecorder
	mu     sync.Mutex
	states []string
}

func (r *stateRecorder) SetBundleState(_, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func digestOf(t *testing.T, content string) checksum.Expected {
	t.Helper()
	hex, err := checksum.DigestReader(strings.NewReader(content), checksum.SHA512)
	require.NoError(t, err)
	return checksum.Expected{Algorithm: checksum.SHA512, Hex: hex}
}

func testBundle(t *testing.T, dir, content string) Bundle {
	t.Helper()
	return Bundle{
		Name:    "win-toolchain-noarm",
		Dir:     dir,
		Archive: "16b53d08e9.zip",
		Digest:  digestOf(t, content),
		Parts: StaticParts{
			{Sequence: 2, Filename: "tc.tar.002", URL: "world"},
			{Sequence: 1, Filename: "tc.tar.001", URL: "hello "},
		},
	}
}

func TestAssembleFromParts(t *testing.T) {
	dir := t.TempDir()
	f := &partFetcher{}
	rec := &stateRecorder{}
	a := NewAssembler(f, copyUnpacker{name: "16b53d08e9.zip"}, WithRecorder(rec))

	state, err := a.Assemble(t.Context(), testBundle(t, dir, "hello world"))
	require.NoError(t, err)
	assert.Equal(t, StateVerified, state)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, []string{"ABSENT", "FETCHING", "MERGED", "VERIFIED"}, rec.states)

	data, err := os.ReadFile(filepath.Join(dir, "16b53d08e9.zip"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestAssembleVerifiedArchiveSkipsNetwork(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "16b53d08e9.zip"), []byte("hello world"), 0o600))
	f := &partFetcher{}
	rec := &stateRecorder{}
	a := NewAssembler(f, copyUnpacker{}, WithRecorder(rec))

	b := testBundle(t, dir, "hello world")
	b.Parts = nil
	for range 2 {
		state, err := a.Assemble(t.Context(), b)
		require.NoError(t, err)
		assert.Equal(t, StateVerified, state)
	}
	assert.Zero(t, f.calls)
	assert.Equal(t, []string{"VERIFIED", "VERIFIED"}, rec.states)
}

func TestAssembleReplacesCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "16b53d08e9.zip")
	require.NoError(t, os.WriteFile(archive, []byte("truncated"), 0o600))
	f := &partFetcher{}
	a := NewAssembler(f, copyUnpacker{name: "16b53d08e9.zip"})

	state, err := a.Assemble(t.Context(), testBundle(t, dir, "hello world"))
	require.NoError(t, err)
	assert.Equal(t, StateVerified, state)
	assert.Equal(t, 1, f.calls)
}

func TestAssembleArchiveNotProduced(t *testing.T) {
	dir := t.TempDir()
	rec := &stateRecorder{}
	a := NewAssembler(&partFetcher{}, copyUnpacker{}, WithRecorder(rec))

	state, err := a.Assemble(t.Context(), testBundle(t, dir, "hello world"))
	require.Error(t, err)
	assert.Equal(t, StateAbsent, state)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeToolchainVerificationFailed))
	assert.Contains(t, err.Error(), "archive not produced")
	assert.Equal(t, "ABSENT", rec.states[len(rec.states)-1])
}

func TestAssembleDigestMismatchDeletesArchive(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(&partFetcher{}, copyUnpacker{name: "16b53d08e9.zip"})

	state, err := a.Assemble(t.Context(), testBundle(t, dir, "something else"))
	require.Error(t, err)
	assert.Equal(t, StateAbsent, state)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeToolchainVerificationFailed))
	assert.True(t, ferrors.HasCode(err, ferrors.CodeChecksumMismatch))
	assert.NoFileExists(t, filepath.Join(dir, "16b53d08e9.zip"))
}

func TestAssembleFetchFailureLeavesFetching(t *testing.T) {
	cause := ferrors.DownloadExhausted("https://example.org/tc.tar.001", 3, errors.New("boom"))
	a := NewAssembler(&partFetcher{err: cause}, copyUnpacker{})

	state, err := a.Assemble(t.Context(), testBundle(t, t.TempDir(), "hello world"))
	require.Error(t, err)
	assert.Equal(t, StateFetching, state)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeDownloadExhausted))
}

func TestAssembleRejectsBundleWithoutDigest(t *testing.T) {
	a := NewAssembler(&partFetcher{}, copyUnpacker{})
	b := testBundle(t, t.TempDir(), "x")
	b.Digest = checksum.Expected{}

	_, err := a.Assemble(t.Context(), b)
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeConfiguration))
}
