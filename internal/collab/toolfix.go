package collab

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// Rewrite replaces Pattern with Replacement in each of Files.
type Rewrite struct {
	Pattern     *regexp.Regexp
	Replacement string
	Files       []string // relative to the source tree, slash separated
}

// DefaultToolRewrites restore the real hosts in the scripts that download
// prebuilt tools and sysroots after domain substitution obfuscated them.
var DefaultToolRewrites = []Rewrite{
	{
		Pattern:     regexp.MustCompile(`commondatastorage\.9oo91eapis\.qjz9zk`),
		Replacement: "commondatastorage.googleapis.com",
		Files: []string{
			"build/linux/sysroot_scripts/sysroots.json",
			"tools/clang/scripts/update.py",
			"tools/clang/scripts/build.py",
		},
	},
	{
		Pattern:     regexp.MustCompile(`chromium\.9oo91esource\.qjz9zk`),
		Replacement: "chromium.googlesource.com",
		Files: []string{
			"tools/clang/scripts/build.py",
			"tools/rust/build_rust.py",
			"tools/rust/build_bindgen.py",
		},
	},
	{
		Pattern:     regexp.MustCompile(`chrome-infra-packages\.8pp2p8t\.qjz9zk`),
		Replacement: "chrome-infra-packages.appspot.com",
		Files:       []string{"tools/rust/build_rust.py"},
	},
}

// ToolDownloadFixer applies rewrites to a source tree.
type ToolDownloadFixer struct {
	Rewrites []Rewrite
}

// Fix reads each affected file once, applies all of its rewrites in order
// and writes it back only if the content changed. Missing files are logged
// and skipped. It returns the files it rewrote.
func (f ToolDownloadFixer) Fix(tree string) ([]string, error) {
	rewrites := f.Rewrites
	if rewrites == nil {
		rewrites = DefaultToolRewrites
	}

	var order []string
	byFile := make(map[string][]Rewrite)
	for _, rw := range rewrites {
		for _, rel := range rw.Files {
			if _, seen := byFile[rel]; !seen {
				order = append(order, rel)
			}
			byFile[rel] = append(byFile[rel], rw)
		}
	}

	var changed []string
	for _, rel := range order {
		path := filepath.Join(tree, filepath.FromSlash(rel))
		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("File not found for patching", logfields.Path(path))
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return changed, rewriteError(err, path)
		}
		out := data
		for _, rw := range byFile[rel] {
			out = rw.Pattern.ReplaceAll(out, []byte(rw.Replacement))
		}
		if string(out) == string(data) {
			continue
		}
		if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
			return changed, rewriteError(err, path)
		}
		changed = append(changed, path)
	}
	return changed, nil
}

func rewriteError(err error, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to patch tool download host").
		WithContext("path", path).
		Build()
}
