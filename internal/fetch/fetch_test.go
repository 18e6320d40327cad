package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// fakeDownloader serves queued bodies per URL; the last body repeats.
type fakeDownloader struct {
	bodies map[string][]string
	calls  []string
	err    error
}

func (f *fakeDownloader) Fetch(_ context.Context, url, dest string) error {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return f.err
	}
	q := f.bodies[url]
	body := q[0]
	if len(q) > 1 {
		f.bodies[url] = q[1:]
	}
	return os.WriteFile(dest, []byte(body), 0o600)
}

func digestOf(t *testing.T, content string) checksum.Expected {
	t.Helper()
	path := filepath.Join(t.TempDir(), "d")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	hex, err := checksum.Digest(path, checksum.SHA256)
	require.NoError(t, err)
	return checksum.Expected{Algorithm: checksum.SHA256, Hex: hex}
}

func TestFetchAllAcceptanceRules(t *testing.T) {
	good := digestOf(t, "good")

	tests := []struct {
		name      string
		existing  *string
		digest    checksum.Expected
		served    []string
		wantCalls int
		wantCode  ferrors.ErrorCode
	}{
		{name: "exists without digest", existing: ptr("anything"), wantCalls: 0},
		{name: "exists and verifies", existing: ptr("good"), digest: good, wantCalls: 0},
		{name: "exists corrupt then repaired", existing: ptr("bad"), digest: good, served: []string{"good"}, wantCalls: 1},
		{name: "exists corrupt twice", existing: ptr("bad"), digest: good, served: []string{"worse"}, wantCalls: 1, wantCode: ferrors.CodeChecksumMismatch},
		{name: "missing then verifies", digest: good, served: []string{"good"}, wantCalls: 1},
		{name: "missing corrupt then repaired", digest: good, served: []string{"bad", "good"}, wantCalls: 2},
		{name: "missing corrupt twice", digest: good, served: []string{"bad", "bad"}, wantCalls: 2, wantCode: ferrors.CodeChecksumMismatch},
		{name: "missing without digest", served: []string{"x"}, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.existing != nil {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "part.001"), []byte(*tt.existing), 0o600))
			}
			fd := &fakeDownloader{bodies: map[string][]string{"u1": tt.served}}
			entries := []FileEntry{{Sequence: 1, Filename: "part.001", URL: "u1", Digest: tt.digest}}

			paths, err := New(fd, nil).FetchAll(t.Context(), entries, dir)
			require.Len(t, fd.calls, tt.wantCalls)
			if tt.wantCode != ferrors.CodeNone {
				require.True(t, ferrors.HasCode(err, tt.wantCode), "got %v", err)
				require.Nil(t, paths)
				ce, _ := ferrors.AsClassified(err)
				exp, _ := ce.Context().GetString("expected")
				require.Equal(t, good.Hex, exp)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []string{filepath.Join(dir, "part.001")}, paths)
		})
	}
}

func TestFetchAllOrdersBySequence(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDownloader{bodies: map[string][]string{"a": {"A"}, "b": {"B"}, "c": {"C"}}}
	entries := []FileEntry{
		{Sequence: 3, Filename: "t.tar.003", URL: "c"},
		{Sequence: 1, Filename: "t.tar.001", URL: "a"},
		{Sequence: 2, Filename: "t.tar.002", URL: "b"},
	}
	paths, err := New(fd, nil).FetchAll(t.Context(), entries, dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, fd.calls)
	require.Equal(t, []string{
		filepath.Join(dir, "t.tar.001"),
		filepath.Join(dir, "t.tar.002"),
		filepath.Join(dir, "t.tar.003"),
	}, paths)
}

func TestFetchAllGapIsNotFatal(t *testing.T) {
	fd := &fakeDownloader{bodies: map[string][]string{"a": {"A"}, "b": {"B"}}}
	entries := []FileEntry{{Sequence: 1, Filename: "p1", URL: "a"}, {Sequence: 4, Filename: "p4", URL: "b"}}
	paths, err := New(fd, nil).FetchAll(t.Context(), entries, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 2)
}

func TestFetchAllDuplicateSequence(t *testing.T) {
	fd := &fakeDownloader{}
	entries := []FileEntry{{Sequence: 1, Filename: "a"}, {Sequence: 1, Filename: "b"}}
	_, err := New(fd, nil).FetchAll(t.Context(), entries, t.TempDir())
	require.True(t, ferrors.HasCode(err, ferrors.CodeConfiguration))
	require.Empty(t, fd.calls, "no network before the manifest is valid")
}

func TestFetchAllPropagatesDownloadFailure(t *testing.T) {
	exhausted := ferrors.DownloadExhausted("a", 3, errors.New("timeout"))
	fd := &fakeDownloader{err: exhausted}
	entries := []FileEntry{{Sequence: 1, Filename: "p1", URL: "a"}, {Sequence: 2, Filename: "p2", URL: "b"}}
	paths, err := New(fd, nil).FetchAll(t.Context(), entries, t.TempDir())
	require.Nil(t, paths)
	require.True(t, ferrors.HasCode(err, ferrors.CodeDownloadExhausted))
	require.Equal(t, []string{"a"}, fd.calls, "first fatal error stops processing")
}

func TestFetchAllHonoursDestination(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "elsewhere", "tool.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(custom), 0o755))
	fd := &fakeDownloader{bodies: map[string][]string{"a": {"bin"}}}
	paths, err := New(fd, nil).FetchAll(t.Context(), []FileEntry{{Sequence: 1, Filename: "tool.exe", URL: "a", Destination: custom}}, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, []string{custom}, paths)
}

func ptr(s string) *string { return &s }
