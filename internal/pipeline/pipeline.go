// Package pipeline runs the ordered build steps, skipping steps whose
// completion marker exists when the run is resumable.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/observability"
	"git.home.luguber.info/inful/crossbuild/internal/state"
)

// ActionFunc performs the side effects of a step.
type ActionFunc func(ctx context.Context, pc Context) error

// EnvFunc computes the environment a step hands to later steps. It runs
// whether the action ran or was skipped.
type EnvFunc func(ctx context.Context, pc Context) (Contribution, error)

// Step is one unit of the pipeline.
type Step struct {
	Name   string
	Action ActionFunc
	Env    EnvFunc
	// Always steps run on every invocation and never write a marker.
	Always bool
}

func (s Step) guarded() bool { return s.Action != nil && !s.Always }

// Pipeline executes steps in the order given.
type Pipeline struct {
	markers  *state.MarkerStore
	observer Observer
	base     []string
	runID    string
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers an observer for step lifecycle callbacks.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithBase sets the base environment instead of os.Environ.
func WithBase(environ []string) Option {
	return func(p *Pipeline) { p.base = environ }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// New creates a pipeline that records completion in markers.
func New(markers *state.MarkerStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		markers:  markers,
		observer: NoopObserver{},
		runID:    uuid.NewString(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.base == nil {
		p.base = os.Environ()
	}
	return p
}

// RunID returns the identifier attached to this pipeline's run.
func (p *Pipeline) RunID() string { return p.runID }

// Run executes steps in order. With resumable set, a step whose marker
// exists is skipped. A marker is written only after the action succeeds.
// The first failure stops the run; nothing is rolled back.
func (p *Pipeline) Run(ctx context.Context, steps []Step, resumable bool) (Context, error) {
	start := p.now()
	ctx = observability.WithRunID(ctx, p.runID)
	pc := NewContext(p.runID, p.base)
	p.observer.OnRunStart(ctx, p.runID, len(steps), resumable)
	slog.Info("Pipeline started",
		logfields.RunID(p.runID),
		slog.Int("steps", len(steps)),
		slog.Bool("resumable", resumable))

	var err error
	pc, err = p.run(ctx, pc, steps, resumable)

	elapsed := p.now().Sub(start)
	p.observer.OnRunComplete(ctx, p.runID, elapsed, err)
	if err != nil {
		slog.Error("Pipeline failed", logfields.RunID(p.runID), logfields.Duration(elapsed), logfields.Error(err))
		return pc, err
	}
	slog.Info("Pipeline completed", logfields.RunID(p.runID), logfields.Duration(elapsed))
	return pc, nil
}

func (p *Pipeline) run(ctx context.Context, pc Context, steps []Step, resumable bool) (Context, error) {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return pc, ferrors.Canceled(step.Name, err)
		}
		ctx := observability.WithStep(ctx, step.Name)
		if step.Action != nil {
			if err := p.runAction(ctx, pc, step, resumable); err != nil {
				return pc, err
			}
		}
		if step.Env != nil {
			contribution, err := step.Env(ctx, pc)
			if err != nil {
				return pc, wrapStepError(ctx, step.Name, err)
			}
			pc = pc.With(contribution)
		}
	}
	return pc, nil
}

func (p *Pipeline) runAction(ctx context.Context, pc Context, step Step, resumable bool) error {
	if resumable && step.guarded() {
		done, err := p.markers.Done(step.Name)
		if err != nil {
			return err
		}
		if done {
			observability.InfoContext(ctx, "Skipping completed step", logfields.Path(p.markers.Path(step.Name)))
			p.observer.OnStepSkipped(ctx, p.runID, step.Name)
			return nil
		}
	}

	p.observer.OnStepStart(ctx, p.runID, step.Name)
	observability.InfoContext(ctx, "Running step")
	start := p.now()
	err := step.Action(ctx, pc)
	if err == nil && step.guarded() {
		err = p.markers.Mark(step.Name)
	}
	elapsed := p.now().Sub(start)
	if err != nil {
		err = wrapStepError(ctx, step.Name, err)
		p.observer.OnStepComplete(ctx, p.runID, step.Name, elapsed, err)
		return err
	}
	p.observer.OnStepComplete(ctx, p.runID, step.Name, elapsed, nil)
	observability.InfoContext(ctx, "Step completed", logfields.Duration(elapsed))
	return nil
}

func wrapStepError(ctx context.Context, step string, err error) error {
	if ferrors.HasCode(err, ferrors.CodeCanceled) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ferrors.Canceled(step, err)
	}
	return ferrors.StepFailed(step, err)
}
