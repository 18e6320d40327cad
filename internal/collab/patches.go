package collab

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/process"
)

// SeriesFile is the ordered patch list inside a patch directory.
const SeriesFile = "series"

// AVX2Patch is enabled in the Windows series only for x64 builds.
const AVX2Patch = "ungoogled-chromium/windows/windows-enable-avx2-optimizations.patch"

// ReadSeries returns the patch paths listed in dir/series, resolved against
// dir, in order. Blank lines and # comments are ignored.
func ReadSeries(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, SeriesFile))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read patch series").
			WithCode(ferrors.CodeConfiguration).
			WithContext("path", filepath.Join(dir, SeriesFile)).
			Build()
	}
	var patches []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patches = append(patches, filepath.Join(dir, filepath.FromSlash(line)))
	}
	return patches, nil
}

// AdjustAVX2 adds the AVX2 patch to dir/series for x64 builds and removes it
// otherwise. The series is rewritten only when it changes, and left alone
// when the patch file itself is missing.
func AdjustAVX2(dir string, x64 bool) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(AVX2Patch))); errors.Is(err, fs.ErrNotExist) {
		slog.Warn("AVX2 optimization patch not found", logfields.Path(filepath.Join(dir, AVX2Patch)))
		return false, nil
	}
	path := filepath.Join(dir, SeriesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	present := slices.Contains(lines, AVX2Patch)

	switch {
	case x64 && !present:
		lines = append(lines, AVX2Patch)
		slog.Info("Added AVX2 optimization patch for x64 build")
	case !x64 && present:
		lines = slices.DeleteFunc(lines, func(l string) bool { return l == AVX2Patch })
		slog.Info("Removed AVX2 optimization patch for non-x64 build")
	default:
		return false, nil
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// PatchApplier applies patch series to a source tree.
type PatchApplier struct {
	Runner   process.Runner
	PatchBin string
}

// ApplySeries applies every patch listed in dir/series to tree, in order.
// The first failing patch stops the run.
func (a PatchApplier) ApplySeries(ctx context.Context, dir, tree string) error {
	patches, err := ReadSeries(dir)
	if err != nil {
		return err
	}
	bin := a.PatchBin
	if bin == "" {
		bin = "patch"
	}
	slog.Info("Applying patch series", logfields.Path(dir), slog.Int("patches", len(patches)))
	for i, p := range patches {
		slog.Debug("Applying patch", logfields.File(p), logfields.Sequence(i+1))
		err := a.Runner.Run(ctx, process.Command{
			Name: bin,
			Args: []string{"-p1", "--ignore-whitespace", "-i", p, "-d", tree, "--no-backup-if-mismatch", "--forward"},
		})
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryBuild, "patch did not apply").
				WithContext("patch", p).
				Build()
		}
	}
	return nil
}
