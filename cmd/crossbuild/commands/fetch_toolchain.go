package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/crossbuild/internal/build"
	"git.home.luguber.info/inful/crossbuild/internal/collab"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/workspace"
)

// FetchToolchainCmd implements the 'fetch-toolchain' command.
type FetchToolchainCmd struct {
	Dir        string `help:"Directory to assemble the archive in (default: the toolchain directory of the source tree)"`
	Section    string `help:"Manifest section to use instead of the one derived from the target"`
	SDKVersion string `name:"sdk-version" help:"Windows SDK version (default: read from build/vs_toolchain.py)"`
}

func (f *FetchToolchainCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	if f.Section != "" {
		cfg.Toolchain.Section = f.Section
	}
	layout := workspace.FromConfig(cfg.Paths)
	dir := f.Dir
	if dir == "" {
		dir = build.ToolchainDir(layout.Source)
	}
	info, err := f.toolchainInfo(layout)
	if err != nil {
		return err
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := build.NewTools(cfg, s.recorder).AssembleToolchain(ctx, cfg, info, dir)
	_, _ = fmt.Fprintf(g.Out, "Toolchain %s: %s\n", cfg.Toolchain.Section, st)
	return err
}

// toolchainInfo prefers the flag, then the checkout. A tree without
// vs_toolchain.py is fine as long as the manifest names the SDK itself.
func (f *FetchToolchainCmd) toolchainInfo(layout workspace.Layout) (collab.VSToolchainInfo, error) {
	if f.SDKVersion != "" {
		return collab.VSToolchainInfo{SDKVersion: f.SDKVersion}, nil
	}
	path := layout.SourcePath("build", "vs_toolchain.py")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No vs_toolchain.py, relying on the manifest", logfields.Path(path))
		return collab.VSToolchainInfo{}, nil
	}
	return collab.ReadVSToolchainInfo(path)
}
