package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/crossbuild/internal/eventstore"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
)

// Observer receives pipeline lifecycle callbacks. Implementations must not
// block the run.
type Observer interface {
	OnRunStart(ctx context.Context, runID string, steps int, resumable bool)
	OnStepStart(ctx context.Context, runID, step string)
	OnStepSkipped(ctx context.Context, runID, step string)
	OnStepComplete(ctx context.Context, runID, step string, d time.Duration, err error)
	OnRunComplete(ctx context.Context, runID string, d time.Duration, err error)
}

// NoopObserver ignores every callback.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(context.Context, string, int, bool)                        {}
func (NoopObserver) OnStepStart(context.Context, string, string)                          {}
func (NoopObserver) OnStepSkipped(context.Context, string, string)                        {}
func (NoopObserver) OnStepComplete(context.Context, string, string, time.Duration, error) {}
func (NoopObserver) OnRunComplete(context.Context, string, time.Duration, error)          {}

// Observers fans callbacks out in order.
type Observers []Observer

func (o Observers) OnRunStart(ctx context.Context, runID string, steps int, resumable bool) {
	for _, obs := range o {
		obs.OnRunStart(ctx, runID, steps, resumable)
	}
}

func (o Observers) OnStepStart(ctx context.Context, runID, step string) {
	for _, obs := range o {
		obs.OnStepStart(ctx, runID, step)
	}
}

func (o Observers) OnStepSkipped(ctx context.Context, runID, step string) {
	for _, obs := range o {
		obs.OnStepSkipped(ctx, runID, step)
	}
}

func (o Observers) OnStepComplete(ctx context.Context, runID, step string, d time.Duration, err error) {
	for _, obs := range o {
		obs.OnStepComplete(ctx, runID, step, d, err)
	}
}

func (o Observers) OnRunComplete(ctx context.Context, runID string, d time.Duration, err error) {
	for _, obs := range o {
		obs.OnRunComplete(ctx, runID, d, err)
	}
}

// ResultOf maps a step or run error onto a metrics result label.
func ResultOf(err error) metrics.ResultLabel {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case ferrors.HasCode(err, ferrors.CodeCanceled):
		return metrics.ResultCanceled
	default:
		return metrics.ResultFailed
	}
}

// MetricsObserver records step and run outcomes.
type MetricsObserver struct {
	NoopObserver
	recorder metrics.Recorder
}

// NewMetricsObserver wraps r; nil selects the no-op recorder.
func NewMetricsObserver(r metrics.Recorder) *MetricsObserver {
	return &MetricsObserver{recorder: metrics.OrNoop(r)}
}

func (m *MetricsObserver) OnStepSkipped(_ context.Context, _, step string) {
	m.recorder.IncStepResult(step, metrics.ResultSkipped)
}

func (m *MetricsObserver) OnStepComplete(_ context.Context, _, step string, d time.Duration, err error) {
	m.recorder.ObserveStepDuration(step, d)
	m.recorder.IncStepResult(step, ResultOf(err))
}

func (m *MetricsObserver) OnRunComplete(_ context.Context, _ string, d time.Duration, err error) {
	m.recorder.ObserveRunDuration(d)
	m.recorder.IncRunOutcome(ResultOf(err))
}

// HistoryObserver appends lifecycle events to an event store. Append
// failures are logged and never fail the run.
type HistoryObserver struct {
	store   eventstore.Store
	version string
}

// NewHistoryObserver writes events to store, tagging runs with version.
func NewHistoryObserver(store eventstore.Store, version string) *HistoryObserver {
	return &HistoryObserver{store: store, version: version}
}

func (h *HistoryObserver) append(ctx context.Context, runID, step, eventType string, payload any) {
	// The run may be finishing because ctx was canceled; history is still wanted.
	ctx = context.WithoutCancel(ctx)
	if err := eventstore.AppendJSON(ctx, h.store, runID, step, eventType, payload); err != nil {
		slog.Warn("Failed to record pipeline event", logfields.RunID(runID), slog.String("type", eventType), logfields.Error(err))
	}
}

func (h *HistoryObserver) OnRunStart(ctx context.Context, runID string, steps int, resumable bool) {
	h.append(ctx, runID, "", eventstore.TypeRunStarted, eventstore.RunStarted{Steps: steps, Resumable: resumable, Version: h.version})
}

func (h *HistoryObserver) OnStepStart(ctx context.Context, runID, step string) {
	h.append(ctx, runID, step, eventstore.TypeStepStarted, struct{}{})
}

func (h *HistoryObserver) OnStepSkipped(ctx context.Context, runID, step string) {
	h.append(ctx, runID, step, eventstore.TypeStepSkipped, struct{}{})
}

func (h *HistoryObserver) OnStepComplete(ctx context.Context, runID, step string, d time.Duration, err error) {
	eventType := eventstore.TypeStepCompleted
	if err != nil {
		eventType = eventstore.TypeStepFailed
	}
	h.append(ctx, runID, step, eventType, eventstore.NewStepFinished(d, err))
}

func (h *HistoryObserver) OnRunComplete(ctx context.Context, runID string, d time.Duration, err error) {
	payload := eventstore.RunCompleted{Outcome: eventstore.StatusSucceeded, DurationMS: d.Milliseconds()}
	if err != nil {
		payload.Outcome = eventstore.StatusFailed
		payload.Error = err.Error()
	}
	h.append(ctx, runID, "", eventstore.TypeRunCompleted, payload)
}
