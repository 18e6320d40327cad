package collab

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/download"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// StorageBaseURL serves Chromium's prebuilt helper binaries.
const StorageBaseURL = "https://storage.googleapis.com"

// SHA1Downloader fetches a binary addressed by the SHA-1 stored in a
// companion .sha1 file.
type SHA1Downloader struct {
	Fetcher download.Fetcher
	BaseURL string
}

// Download fetches {base}/{bucket}/{sha1} to output, verifies it and makes
// it executable. A mismatching file is deleted.
func (d SHA1Downloader) Download(ctx context.Context, sha1File, output, bucket string) error {
	raw, err := os.ReadFile(sha1File)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "SHA1 file does not exist").
			WithCode(ferrors.CodeConfiguration).
			WithContext("path", sha1File).
			Build()
	}
	expected := strings.TrimSpace(string(raw))
	base := d.BaseURL
	if base == "" {
		base = StorageBaseURL
	}
	url := strings.TrimSuffix(base, "/") + "/" + bucket + "/" + expected
	slog.Info("Downloading prebuilt binary", logfields.URL(url), logfields.Path(output))

	if err := d.Fetcher.Fetch(ctx, url, output); err != nil {
		return err
	}
	actual, err := checksum.Digest(output, checksum.SHA1)
	if err != nil {
		return err
	}
	if !checksum.Equal(actual, expected) {
		_ = os.Remove(output)
		return ferrors.ChecksumMismatch(output, string(checksum.SHA1), expected, actual)
	}
	if err := os.Chmod(output, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to make binary executable").
			WithContext("path", output).
			Build()
	}
	return nil
}
