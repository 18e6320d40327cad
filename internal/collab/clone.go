package collab

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/git"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// SubmoduleInit initialises a submodule of the checkout at repo.
type SubmoduleInit func(ctx context.Context, repo, name string, depth int) error

// SourceCloner checks out Chromium with the clone utility and completes the
// V8 submodule.
type SourceCloner struct {
	Utils     Utils
	Dir       string // working directory for the clone script
	Submodule SubmoduleInit
}

// Clone runs the clone script into output for the given Windows platform and
// Linux sysroot, then initialises v8 unless it is already present.
func (c SourceCloner) Clone(ctx context.Context, env []string, output, platform, sysroot string) error {
	err := c.Utils.Python.Run(ctx, c.Dir, env, c.Utils.script("clone.py"),
		"-o", output, "-p", platform, "-s", sysroot)
	if err != nil {
		return err
	}
	if err := c.InitV8(ctx, output); err != nil {
		return err
	}
	if rev, err := git.Revision(output); err == nil {
		slog.Info("Chromium sources ready", logfields.Path(output), slog.String("revision", rev))
	}
	return nil
}

// InitV8 checks out the v8 submodule with depth 1 when v8/BUILD.gn is missing.
func (c SourceCloner) InitV8(ctx context.Context, source string) error {
	if _, err := os.Stat(filepath.Join(source, "v8", "BUILD.gn")); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	update := c.Submodule
	if update == nil {
		update = git.InitSubmodule
	}
	return update(ctx, source, "v8", 1)
}
