package archmerge

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// Subtrees are the component directories merged into an install root.
var Subtrees = []string{"bin", "lib"}

// MergeArchitecture merges the bin and lib trees of componentSrc into targetRoot and returns
// the subtrees it merged. Directories are merged, files and symlinks overwrite. A relative
// symlink is recreated as is; an absolute one is replaced by a copy of what it points to.
//
// For the host a symlinked subtree root is followed. Otherwise it is replaced by a real
// directory so a non-host merge never writes into the shared tree.
func MergeArchitecture(componentSrc, targetRoot string, isHost bool) ([]string, error) {
	var merged []string
	for _, sub := range Subtrees {
		src := filepath.Join(componentSrc, sub)
		info, err := os.Stat(src)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return merged, mergeError(err, src)
		}
		if !info.IsDir() {
			slog.Warn("Component subtree is not a directory, skipping", logfields.Path(src))
			continue
		}
		dst := filepath.Join(targetRoot, sub)
		if err := ensureRoot(dst, isHost); err != nil {
			return merged, mergeError(err, dst)
		}
		if err := mergeTree(src, dst); err != nil {
			return merged, mergeError(err, src)
		}
		slog.Info("Merged component tree", logfields.Path(src), slog.String("target", dst))
		merged = append(merged, sub)
	}
	return merged, nil
}

func mergeError(err error, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to merge toolchain tree").
		WithContext("path", path).
		Fatal().
		Build()
}

func ensureRoot(dst string, followLink bool) error {
	if followLink {
		if info, err := os.Stat(dst); err == nil && info.IsDir() {
			return nil
		}
	}
	return ensureDir(dst)
}

func mergeTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		d := filepath.Join(dst, e.Name())
		if err := mergeEntry(s, d, e.Type()); err != nil {
			return err
		}
	}
	return nil
}

func mergeEntry(src, dst string, mode fs.FileMode) error {
	switch {
	case mode&fs.ModeSymlink != 0:
		return mergeLink(src, dst)
	case mode.IsDir():
		if err := ensureDir(dst); err != nil {
			return err
		}
		return mergeTree(src, dst)
	default:
		return copyFile(src, dst)
	}
}

func mergeLink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(target) {
		if err := removeExisting(dst); err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("absolute symlink %s -> %s cannot be resolved: %w", src, target, err)
	}
	if info.IsDir() {
		if err := ensureDir(dst); err != nil {
			return err
		}
		return mergeTree(src, dst)
	}
	return copyFile(src, dst)
}

// ensureDir makes dst a real directory, replacing a file or symlink in its place.
func ensureDir(dst string) error {
	info, err := os.Lstat(dst)
	if err == nil && info.IsDir() {
		return nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := removeExisting(dst); err != nil {
		return err
	}
	return os.MkdirAll(dst, 0o755)
}

func removeExisting(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

// copyFile copies content, permissions and modification time. src symlinks are followed.
func copyFile(src, dst string) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := removeExisting(dst); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
