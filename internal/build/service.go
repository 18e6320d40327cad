package build

import (
	"context"
	"time"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
	"git.home.luguber.info/inful/crossbuild/internal/observability"
	"git.home.luguber.info/inful/crossbuild/internal/pipeline"
	"git.home.luguber.info/inful/crossbuild/internal/platform"
	"git.home.luguber.info/inful/crossbuild/internal/process"
	"git.home.luguber.info/inful/crossbuild/internal/state"
	"git.home.luguber.info/inful/crossbuild/internal/workspace"
)

// BuildService executes a complete cross build.
type BuildService interface {
	Run(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// BuildRequest contains all inputs required to execute a build.
type BuildRequest struct {
	// Config is the loaded configuration; Build.CI makes the run resumable.
	Config *config.Config
}

// BuildResult contains the outcome of a build execution.
type BuildResult struct {
	Status BuildStatus

	// RunID identifies the run in logs and history.
	RunID string

	// Steps is the number of steps the build consisted of.
	Steps int

	// Environ is the environment handed to the last step.
	Environ []string

	Duration  time.Duration
	StartTime time.Time
	EndTime   time.Time
}

// BuildStatus represents the outcome of a build execution.
type BuildStatus string

const (
	BuildStatusSuccess   BuildStatus = "success"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsSuccess returns true if the build completed successfully.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess
}

// PlatformFunc resolves the host and target of a build.
type PlatformFunc func(target config.TargetArch) (platform.Platform, error)

// DefaultBuildService runs the step pipeline built from the configuration.
type DefaultBuildService struct {
	runner   process.Runner
	recorder metrics.Recorder
	observer pipeline.Observer
	platform PlatformFunc
	runID    string
}

// NewBuildService creates a service running real processes on the detected host.
func NewBuildService() *DefaultBuildService {
	return &DefaultBuildService{
		runner:   process.Exec{},
		recorder: metrics.NoopRecorder{},
		observer: pipeline.NoopObserver{},
		platform: platform.Detect,
	}
}

// WithRunner replaces the external process runner (for testing).
func (s *DefaultBuildService) WithRunner(r process.Runner) *DefaultBuildService {
	s.runner = r
	return s
}

// WithRecorder reports step, download and toolchain metrics to r.
func (s *DefaultBuildService) WithRecorder(r metrics.Recorder) *DefaultBuildService {
	s.recorder = metrics.OrNoop(r)
	return s
}

// WithObserver registers an additional step observer, such as run history.
func (s *DefaultBuildService) WithObserver(o pipeline.Observer) *DefaultBuildService {
	if o != nil {
		s.observer = o
	}
	return s
}

// WithPlatform overrides host detection.
func (s *DefaultBuildService) WithPlatform(fn PlatformFunc) *DefaultBuildService {
	s.platform = fn
	return s
}

// WithRunID fixes the run identifier instead of generating one.
func (s *DefaultBuildService) WithRunID(id string) *DefaultBuildService {
	s.runID = id
	return s
}

// Run prepares the layout and executes every step. A failed step leaves its
// predecessors' markers in place so a CI rerun resumes after them.
func (s *DefaultBuildService) Run(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	result := &BuildResult{StartTime: time.Now()}
	finish := func(status BuildStatus, err error) (*BuildResult, error) {
		result.Status = status
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		return result, err
	}

	cfg := req.Config
	if cfg == nil {
		return finish(BuildStatusFailed, ferrors.Configuration("config required").Build())
	}
	ctx = observability.WithArch(ctx, string(cfg.Target.Arch))

	layout := workspace.FromConfig(cfg.Paths)
	if err := layout.Create(); err != nil {
		return finish(BuildStatusFailed, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create build layout").
			WithContext("path", layout.Root).
			Build())
	}
	plat, err := s.platform(cfg.Target.Arch)
	if err != nil {
		return finish(BuildStatusFailed, err)
	}

	markers := state.NewMarkerStore(layout.State)
	builder := NewBuilder(cfg, plat, s.runner, NewTools(cfg, s.recorder), markers)
	steps := builder.Steps()
	result.Steps = len(steps)

	p := pipeline.New(markers,
		pipeline.WithObserver(pipeline.Observers{pipeline.NewMetricsObserver(s.recorder), s.observer}),
		pipeline.WithRunID(s.runID))
	result.RunID = p.RunID()
	observability.InfoContext(observability.WithRunID(ctx, result.RunID), "Starting cross build",
		logfields.Path(layout.Source))

	pc, err := p.Run(ctx, steps, cfg.Build.CI)
	result.Environ = pc.Environ()
	switch {
	case err == nil:
		return finish(BuildStatusSuccess, nil)
	case ferrors.HasCode(err, ferrors.CodeCanceled):
		return finish(BuildStatusCancelled, err)
	default:
		return finish(BuildStatusFailed, err)
	}
}
