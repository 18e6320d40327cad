package archmerge

import (
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// LinkHostSubdirectory gives the host the same {arch}/bin and {arch}/lib layout as every
// other architecture, as relative links to the top-level trees.
func LinkHostSubdirectory(root string, arch Arch) error {
	dir := filepath.Join(root, arch.Subdir())
	if err := ensureDir(dir); err != nil {
		return mergeError(err, dir)
	}
	for _, sub := range Subtrees {
		link := filepath.Join(dir, sub)
		target := filepath.Join("..", sub)
		if err := removeExisting(link); err != nil {
			return mergeError(err, link)
		}
		if err := os.Symlink(target, link); err != nil {
			return mergeError(err, link)
		}
		slog.Debug("Linked host subdirectory", logfields.Path(link), slog.String("target", target))
	}
	return nil
}
