// Package download fetches remote files with bounded retries and atomic replacement.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
	"git.home.luguber.info/inful/crossbuild/internal/retry"
)

// PartialSuffix is appended to the destination while a download is in flight.
const PartialSuffix = ".partial"

// Fetcher is the download contract consumed by the artifact fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url, destination string) error
}

// Downloader retries failed transfers with exponential backoff. The destination is only
// ever replaced by a complete, synced file.
type Downloader struct {
	transport Transport
	policy    retry.Policy
	sleep     retry.SleepFunc
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithPolicy overrides the retry policy. The policy's MaxRetries+1 is the attempt bound.
// A policy that cannot be applied is ignored and the default kept.
func WithPolicy(p retry.Policy) Option {
	return func(d *Downloader) {
		if err := p.Validate(); err != nil {
			d.logger.Warn("Ignoring invalid retry policy", logfields.Error(err))
			return
		}
		d.policy = p
	}
}

// WithSleep replaces the backoff sleep (tests use a recording no-op).
func WithSleep(fn retry.SleepFunc) Option {
	return func(d *Downloader) { d.sleep = fn }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(d *Downloader) { d.recorder = metrics.OrNoop(r) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// New returns a Downloader with three attempts and 1s/2s backoff.
func New(t Transport, opts ...Option) *Downloader {
	d := &Downloader{
		transport: t,
		policy:    retry.DefaultPolicy(),
		sleep:     retry.Sleep,
		recorder:  metrics.NoopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxAttempts is the total number of transfer attempts per Fetch.
func (d *Downloader) MaxAttempts() int {
	return d.policy.Attempts()
}

// Fetch downloads url to destination. After MaxAttempts failures it returns a
// DownloadExhausted error carrying the last cause. Cancellation stops immediately.
func (d *Downloader) Fetch(ctx context.Context, url, destination string) error {
	attempts := d.MaxAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		n, err := d.attempt(ctx, url, destination)
		if err == nil {
			d.recorder.IncDownloadAttempt(true)
			d.recorder.AddDownloadBytes(n)
			d.logger.Info("Downloaded file",
				logfields.URL(url), logfields.Path(destination), logfields.Attempt(attempt), slog.Int64("bytes", n))
			return nil
		}
		d.recorder.IncDownloadAttempt(false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ferrors.Canceled("download", ctxErr)
		}
		lastErr = err
		d.logger.Warn("Download attempt failed",
			logfields.URL(url), logfields.Attempt(attempt), slog.Int("max_attempts", attempts), logfields.Error(err))

		if attempt < attempts {
			if serr := d.sleep(ctx, d.policy.Delay(attempt)); serr != nil {
				return ferrors.Canceled("download", serr)
			}
		}
	}
	d.recorder.IncDownloadExhausted()
	return ferrors.DownloadExhausted(url, attempts, lastErr)
}

// attempt streams one transfer into <destination>.partial and renames it into place.
// The partial file never survives a failed attempt.
func (d *Downloader) attempt(ctx context.Context, url, destination string) (written int64, err error) {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, fmt.Errorf("create destination dir: %w", err)
	}
	partial := destination + PartialSuffix
	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create partial file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(partial)
		}
	}()

	body, err := d.transport.Get(ctx, url)
	if err != nil {
		return 0, err
	}
	written, err = io.Copy(f, body)
	closeErr := body.Close()
	if err != nil {
		return written, fmt.Errorf("transfer: %w", err)
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return written, fmt.Errorf("close body: %w", closeErr)
	}
	if err = f.Sync(); err != nil {
		return written, fmt.Errorf("sync partial file: %w", err)
	}
	if err = f.Close(); err != nil {
		return written, fmt.Errorf("close partial file: %w", err)
	}
	if err = os.Rename(partial, destination); err != nil {
		return written, fmt.Errorf("rename into place: %w", err)
	}
	return written, nil
}
