package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// Layout is the persistent directory tree of a build. All paths are absolute
// once the configuration defaults have been applied.
type Layout struct {
	Root          string
	Source        string
	DownloadCache string
	State         string
	OutDir        string
	Packaging     string
}

// FromConfig derives the layout from resolved path settings. A relative
// out dir is taken relative to the source tree.
func FromConfig(p config.PathsConfig) Layout {
	out := p.OutDir
	if !filepath.IsAbs(out) {
		out = filepath.Join(p.Source, out)
	}
	return Layout{
		Root:          p.Root,
		Source:        p.Source,
		DownloadCache: p.DownloadCache,
		State:         p.State,
		OutDir:        out,
		Packaging:     p.Packaging,
	}
}

// Create makes the directories the build writes into before the source tree exists.
func (l Layout) Create() error {
	for _, dir := range []string{l.DownloadCache, l.State} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}
	slog.Debug("Workspace ready", logfields.Path(l.Root))
	return nil
}

// SourcePath joins elem onto the source tree.
func (l Layout) SourcePath(elem ...string) string {
	return filepath.Join(append([]string{l.Source}, elem...)...)
}

// RelOutDir is the out dir as GN and ninja see it from the source tree.
func (l Layout) RelOutDir() string {
	if rel, err := filepath.Rel(l.Source, l.OutDir); err == nil {
		return rel
	}
	return l.OutDir
}
