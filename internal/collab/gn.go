package collab

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/process"
)

// GN bootstraps the gn binary into the out dir and generates build files.
type GN struct {
	Python Python
	Source string
	OutDir string
}

// Binary is the bootstrapped gn executable.
func (g GN) Binary() string { return filepath.Join(g.OutDir, "gn") }

// Bootstrap builds gn without generating build files.
func (g GN) Bootstrap(ctx context.Context, env []string) error {
	return g.Python.Run(ctx, g.Source, env, filepath.Join("tools", "gn", "bootstrap", "bootstrap.py"),
		"-o", g.Binary(), "--skip-generate-buildfiles")
}

// LinkBuildtools points buildtools/linux64/gn at the bootstrapped binary so
// scripts that look for gn there find it. An existing regular file is kept.
func (g GN) LinkBuildtools() error {
	if _, err := os.Stat(g.Binary()); err != nil {
		return nil
	}
	link := filepath.Join(g.Source, "buildtools", "linux64", "gn")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return err
	}
	fi, err := os.Lstat(link)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	case fi.Mode()&os.ModeSymlink == 0:
		return nil
	default:
		if err := os.Remove(link); err != nil {
			return err
		}
	}
	return os.Symlink(g.Binary(), link)
}

// Gen generates ninja files, failing on unused arguments.
func (g GN) Gen(ctx context.Context, env []string) error {
	return g.Python.Runner.Run(ctx, process.Command{
		Name: g.Binary(),
		Args: []string{"gen", g.OutDir, "--fail-on-unused-args"},
		Dir:  g.Source,
		Env:  env,
	})
}

// LinkThirdParty creates <out>/../../third_party when the out dir does not
// sit two levels below the source tree, so GN's relative paths resolve.
func LinkThirdParty(source, outDir string) error {
	parent := filepath.Dir(filepath.Dir(outDir))
	if same, err := samePath(parent, source); err != nil || same {
		return err
	}
	if _, err := os.Stat(parent); err != nil {
		return nil
	}
	link := filepath.Join(parent, "third_party")
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	slog.Info("Linking third_party next to out dir", logfields.Path(link))
	return os.Symlink(filepath.Join(source, "third_party"), link)
}

func samePath(a, b string) (bool, error) {
	ra, err := filepath.EvalSymlinks(a)
	if errors.Is(err, fs.ErrNotExist) {
		return filepath.Clean(a) == filepath.Clean(b), nil
	}
	if err != nil {
		return false, err
	}
	rb, err := filepath.EvalSymlinks(b)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ra == rb, nil
}
