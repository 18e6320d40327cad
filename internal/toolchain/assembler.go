// Package toolchain assembles the Windows SDK/MSVC bundle from split, verified parts.
package toolchain

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/fetch"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
	"git.home.luguber.info/inful/crossbuild/internal/splitarchive"
)

// State is the lifecycle position of a bundle.
type State string

const (
	StateAbsent   State = "ABSENT"
	StateFetching State = "FETCHING"
	StateMerged   State = "MERGED"
	StateVerified State = "VERIFIED"
)

// PartSource yields the file entries of a bundle. It is only consulted when the final
// archive is missing or invalid.
type PartSource interface {
	Entries(ctx context.Context) ([]fetch.FileEntry, error)
}

// StaticParts is a PartSource backed by a fixed entry list, typically from a manifest.
type StaticParts []fetch.FileEntry

func (s StaticParts) Entries(context.Context) ([]fetch.FileEntry, error) {
	return s, nil
}

// Bundle identifies a toolchain archive by its directory and final file name.
type Bundle struct {
	Name    string // metrics label; defaults to Archive
	Dir     string
	Archive string
	Digest  checksum.Expected
	Parts   PartSource
}

// ArchivePath is the location of the final archive.
func (b Bundle) ArchivePath() string {
	return filepath.Join(b.Dir, b.Archive)
}

func (b Bundle) label() string {
	if b.Name != "" {
		return b.Name
	}
	return b.Archive
}

// PartFetcher is the part of fetch.Fetcher the assembler needs.
type PartFetcher interface {
	FetchAll(ctx context.Context, entries []fetch.FileEntry, destDir string) ([]string, error)
}

// Assembler drives a bundle to VERIFIED.
type Assembler struct {
	fetcher  PartFetcher
	unpacker splitarchive.Unpacker
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithRecorder reports state transitions to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Assembler) { a.recorder = metrics.OrNoop(r) }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// NewAssembler returns an Assembler that downloads with f and extracts with u.
func NewAssembler(f PartFetcher, u splitarchive.Unpacker, opts ...Option) *Assembler {
	a := &Assembler{fetcher: f, unpacker: u, recorder: metrics.NoopRecorder{}, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble returns VERIFIED without touching the network when the final archive already
// matches its digest. Otherwise it deletes any invalid archive, fetches and merges the parts,
// and verifies the result. A result that does not verify is deleted.
func (a *Assembler) Assemble(ctx context.Context, b Bundle) (State, error) {
	if b.Digest.IsZero() || b.Archive == "" {
		return StateAbsent, ferrors.Configuration("toolchain bundle needs an archive name and digest").
			WithContext("bundle", b.label()).
			Build()
	}
	archive := b.ArchivePath()
	log := a.logger.With(logfields.Bundle(b.label()), logfields.Path(archive))

	ok, err := a.valid(archive, b.Digest)
	if err != nil {
		return StateAbsent, err
	}
	if ok {
		a.transition(log, b, StateVerified)
		log.Info("Toolchain archive already verified, skipping download")
		return StateVerified, nil
	}
	if err := removeIfExists(archive); err != nil {
		return StateAbsent, err
	}
	a.transition(log, b, StateAbsent)

	if b.Parts == nil {
		return StateAbsent, ferrors.Configuration("toolchain bundle has no part source").
			WithContext("bundle", b.label()).
			Build()
	}
	entries, err := b.Parts.Entries(ctx)
	if err != nil {
		return StateAbsent, err
	}
	ordered, err := fetch.SortEntries(entries)
	if err != nil {
		return StateAbsent, err
	}

	a.transition(log, b, StateFetching)
	paths, err := a.fetcher.FetchAll(ctx, ordered, b.Dir)
	if err != nil {
		return StateFetching, err
	}
	parts := make([]splitarchive.Part, len(paths))
	for i, p := range paths {
		parts[i] = splitarchive.Part{Sequence: ordered[i].Sequence, Path: p}
	}
	if err := splitarchive.Merge(ctx, parts, b.Dir, a.unpacker); err != nil {
		return StateFetching, err
	}
	a.transition(log, b, StateMerged)

	return a.verify(log, b)
}

func (a *Assembler) verify(log *slog.Logger, b Bundle) (State, error) {
	archive := b.ArchivePath()
	exists, err := regularFile(archive)
	if err != nil {
		return StateMerged, err
	}
	if !exists {
		a.transition(log, b, StateAbsent)
		return StateAbsent, ferrors.ToolchainVerificationFailed(archive, errors.New("archive not produced"))
	}
	actual, err := checksum.Digest(archive, b.Digest.Algorithm)
	if err != nil {
		return StateMerged, err
	}
	if !checksum.Equal(actual, b.Digest.Hex) {
		a.recorder.IncChecksumMismatch()
		if rmErr := removeIfExists(archive); rmErr != nil {
			log.Warn("Failed to delete unverified archive", logfields.Error(rmErr))
		}
		a.transition(log, b, StateAbsent)
		return StateAbsent, ferrors.ToolchainVerificationFailed(archive,
			ferrors.ChecksumMismatch(archive, string(b.Digest.Algorithm), b.Digest.Hex, actual))
	}
	a.transition(log, b, StateVerified)
	return StateVerified, nil
}

func (a *Assembler) valid(archive string, want checksum.Expected) (bool, error) {
	exists, err := regularFile(archive)
	if err != nil || !exists {
		return false, err
	}
	a.logger.Info("Validating toolchain archive", logfields.Path(archive), logfields.Algorithm(string(want.Algorithm)))
	return checksum.Verify(archive, want.Hex, want.Algorithm)
}

func (a *Assembler) transition(log *slog.Logger, b Bundle, s State) {
	log.Info("Toolchain bundle state", logfields.State(string(s)))
	a.recorder.SetBundleState(b.label(), string(s))
}

func regularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat archive").
			WithContext("path", path).
			Build()
	}
	return info.Mode().IsRegular(), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to delete archive").
			WithContext("path", path).
			Fatal().
			Build()
	}
	return nil
}
