package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"git.home.luguber.info/inful/crossbuild/internal/archmerge"
	"git.home.luguber.info/inful/crossbuild/internal/workspace"
)

// MergeRustCmd implements the 'merge-rust' command.
type MergeRustCmd struct {
	Source string   `help:"Source tree containing the per-architecture rust toolchains (default: paths.source)"`
	Host   string   `help:"Architecture that runs the build (default: rust.host)"`
	Arch   []string `name:"arch" help:"Architectures to install (repeatable; default: rust.architectures)"`
}

func (m *MergeRustCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	rc := cfg.Rust
	if m.Host != "" {
		rc.Host = m.Host
	}
	if len(m.Arch) > 0 {
		rc.Architectures = m.Arch
	}
	source := m.Source
	if source == "" {
		source = workspace.FromConfig(cfg.Paths).Source
	}
	dest, components, err := archmerge.Plan(source, rc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := archmerge.NewMerger(dest, components).Run(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.Out, "Installed rust %s into %s\n", strings.TrimSpace(res.Version), dest)
	_, _ = fmt.Fprintf(g.Out, "  host:      %s\n", res.Host)
	_, _ = fmt.Fprintf(g.Out, "  processed: %s\n", joinArchs(res.Processed))
	if len(res.Skipped) > 0 {
		_, _ = fmt.Fprintf(g.Out, "  skipped:   %s\n", joinArchs(res.Skipped))
	}
	return nil
}

func joinArchs(archs []archmerge.Arch) string {
	names := make([]string, len(archs))
	for i, a := range archs {
		names[i] = a.String()
	}
	return strings.Join(names, ", ")
}
