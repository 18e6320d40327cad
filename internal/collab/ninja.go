package collab

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/process"
)

// Ninja runs the compile under a timeout with two-phase shutdown.
type Ninja struct {
	Runner    process.Runner
	Source    string
	OutDir    string
	Jobs      int // 0 lets ninja decide
	Targets   []string
	Timeout   time.Duration // 0 disables
	Grace     time.Duration
	Heartbeat time.Duration // 0 disables progress logging
}

// Command is the ninja invocation, run from the source tree.
func (n Ninja) Command(env []string) process.Command {
	args := make([]string, 0, len(n.Targets)+4)
	if n.Jobs > 0 {
		args = append(args, "-j", strconv.Itoa(n.Jobs))
	}
	args = append(args, "-C", n.OutDir)
	args = append(args, n.Targets...)
	return process.Command{
		Name: filepath.Join(n.Source, "third_party", "ninja", "ninja"),
		Args: args,
		Dir:  n.Source,
		Env:  env,
	}
}

// Build compiles the targets. While it runs, a heartbeat logs the elapsed time.
func (n Ninja) Build(ctx context.Context, env []string) error {
	stop := startHeartbeat(n.Heartbeat, "ninja")
	defer stop()
	return n.Runner.RunWithTimeout(ctx, n.Command(env), n.Timeout, n.Grace)
}

// startHeartbeat schedules a periodic progress log and returns its stop
// function. Scheduler failures only cost the progress output.
func startHeartbeat(interval time.Duration, what string) func() {
	if interval <= 0 {
		return func() {}
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		slog.Debug("Heartbeat disabled", logfields.Error(err))
		return func() {}
	}
	start := time.Now()
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			slog.Info("Still running", logfields.Command(what), logfields.Duration(time.Since(start)))
		}),
		gocron.WithName(what+"-heartbeat"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		slog.Debug("Heartbeat disabled", logfields.Error(err))
		_ = s.Shutdown()
		return func() {}
	}
	s.Start()
	return func() {
		if err := s.Shutdown(); err != nil {
			slog.Debug("Heartbeat shutdown failed", logfields.Error(err))
		}
	}
}
