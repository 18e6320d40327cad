// Package fetch resolves a manifest of file entries into verified local files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/download"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
)

// FileEntry is one file of a manifest. Sequence orders entries and must be unique.
type FileEntry struct {
	Sequence    int
	Filename    string
	URL         string
	Digest      checksum.Expected // zero value: validation skipped with a warning
	Destination string            // empty: destDir/Filename
}

func (e FileEntry) path(destDir string) string {
	if e.Destination != "" {
		return e.Destination
	}
	return filepath.Join(destDir, e.Filename)
}

// Fetcher downloads and verifies file entries.
type Fetcher struct {
	downloader download.Fetcher
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// New returns a Fetcher using d for transfers.
func New(d download.Fetcher, recorder metrics.Recorder) *Fetcher {
	return &Fetcher{downloader: d, recorder: metrics.OrNoop(recorder), logger: slog.Default()}
}

// SortEntries validates sequence uniqueness and returns the entries in ascending sequence
// order. Gaps are logged, not rejected.
func SortEntries(entries []FileEntry) ([]FileEntry, error) {
	seen := make(map[int]string, len(entries))
	for _, e := range entries {
		if prev, dup := seen[e.Sequence]; dup {
			return nil, ferrors.Configuration("duplicate sequence number in manifest").
				WithContext("sequence", e.Sequence).
				WithContext("file", e.Filename).
				WithContext("previous", prev).
				Build()
		}
		seen[e.Sequence] = e.Filename
	}
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b FileEntry) int { return a.Sequence - b.Sequence })
	for i, e := range sorted {
		if want := i + 1; e.Sequence != want {
			slog.Warn("Manifest sequence is not contiguous", logfields.Sequence(e.Sequence), slog.Int("expected", want), logfields.File(e.Filename))
			break
		}
	}
	return sorted, nil
}

// FetchAll makes every entry present and verified under destDir, in ascending sequence order.
// It returns the ordered local paths only when every entry resolved.
func (f *Fetcher) FetchAll(ctx context.Context, entries []FileEntry, destDir string) ([]string, error) {
	sorted, err := SortEntries(entries)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create download directory").
			WithContext("path", destDir).
			Fatal().
			Build()
	}
	paths := make([]string, 0, len(sorted))
	for _, e := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, ferrors.Canceled("fetch", err)
		}
		p := e.path(destDir)
		if err := f.resolve(ctx, e, p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// resolve applies the acceptance rules for one entry. A digest mismatch triggers exactly one
// delete and re-fetch; a second mismatch is fatal.
func (f *Fetcher) resolve(ctx context.Context, e FileEntry, path string) error {
	log := f.logger.With(logfields.File(e.Filename), logfields.Sequence(e.Sequence))

	exists, err := fileExists(path)
	if err != nil {
		return err
	}
	if !exists {
		log.Info("File missing, downloading", logfields.URL(e.URL))
		if err := f.downloader.Fetch(ctx, e.URL, path); err != nil {
			return err
		}
	}
	if e.Digest.IsZero() {
		log.Warn("No digest declared, skipping validation")
		return nil
	}

	actual, err := checksum.Digest(path, e.Digest.Algorithm)
	if err != nil {
		return err
	}
	if checksum.Equal(actual, e.Digest.Hex) {
		log.Debug("Digest verified", logfields.Algorithm(string(e.Digest.Algorithm)))
		return nil
	}

	f.recorder.IncChecksumMismatch()
	log.Warn("Digest mismatch, deleting and re-downloading",
		logfields.Expected(e.Digest.Hex), logfields.Actual(actual))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to delete corrupt file").
			WithContext("path", path).
			Fatal().
			Build()
	}
	if err := f.downloader.Fetch(ctx, e.URL, path); err != nil {
		return err
	}
	actual, err = checksum.Digest(path, e.Digest.Algorithm)
	if err != nil {
		return err
	}
	if !checksum.Equal(actual, e.Digest.Hex) {
		f.recorder.IncChecksumMismatch()
		return ferrors.ChecksumMismatch(path, string(e.Digest.Algorithm), e.Digest.Hex, actual)
	}
	log.Info("Digest verified after re-download")
	return nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat file").
			WithContext("path", path).
			Build()
	}
	if info.IsDir() {
		return false, ferrors.FileSystemError(fmt.Sprintf("expected a file, found a directory: %s", path)).
			WithContext("path", path).
			Fatal().
			Build()
	}
	return true, nil
}
