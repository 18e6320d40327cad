package commands

import (
	"fmt"

	"git.home.luguber.info/inful/crossbuild/internal/lock"
	"git.home.luguber.info/inful/crossbuild/internal/state"
)

// ResetCmd implements the 'reset' command.
type ResetCmd struct {
	Step []string `short:"s" name:"step" help:"Step marker to delete (repeatable; default: all)"`
}

func (r *ResetCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	l, err := lock.Acquire(cfg.Paths.State)
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	removed, err := state.NewMarkerStore(cfg.Paths.State).Reset(r.Step...)
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		_, _ = fmt.Fprintln(g.Out, "No step markers to remove")
		return nil
	}
	for _, step := range removed {
		_, _ = fmt.Fprintf(g.Out, "Removed %s\n", step)
	}
	return nil
}
