package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"git.home.luguber.info/inful/crossbuild/internal/eventstore"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	RunID string `name:"run" help:"Run ID to show (default: the latest run)"`
	JSON  bool   `name:"json" help:"Print the summary as JSON"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	store, err := openHistory(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	runID := h.RunID
	if runID == "" {
		if runID, err = store.LatestRunID(ctx); err != nil {
			return err
		}
		if runID == "" {
			return ferrors.NewError(ferrors.CategoryNotFound, "no runs recorded").
				WithContext("path", cfg.History.Path).
				Build()
		}
	}
	events, err := store.GetByRunID(ctx, runID)
	if err != nil {
		return err
	}
	summary := eventstore.Summarize(events)
	if summary == nil {
		return ferrors.NewError(ferrors.CategoryNotFound, "run not found").
			WithContext("run_id", runID).
			Build()
	}
	if h.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	writeSummary(g.Out, summary)
	return nil
}

func writeSummary(w io.Writer, s *eventstore.RunSummary) {
	_, _ = fmt.Fprintf(w, "Run %s: %s\n", s.RunID, s.Status)
	_, _ = fmt.Fprintf(w, "  started:   %s\n", s.StartedAt.Format(time.RFC3339))
	if s.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "  duration:  %s\n", s.Duration.Round(time.Second))
	}
	_, _ = fmt.Fprintf(w, "  resumable: %t\n", s.Resumable)
	for _, st := range s.Steps {
		line := fmt.Sprintf("  %-8s %s", st.Status, st.Name)
		if st.Duration > 0 {
			line += fmt.Sprintf(" (%s)", st.Duration.Round(time.Millisecond))
		}
		if st.Error != "" {
			line += ": " + st.Error
		}
		_, _ = fmt.Fprintln(w, line)
	}
	if s.Error != "" {
		_, _ = fmt.Fprintf(w, "  error: %s\n", s.Error)
	}
}
