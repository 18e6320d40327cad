package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.home.luguber.info/inful/crossbuild/internal/build"
	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	CI                     bool   `name:"ci" help:"Resumable CI mode: skip steps with a completion marker and package the result"`
	TargetArch             string `name:"target-arch" short:"t" help:"Windows target architecture (x64, x86, arm64)"`
	Tarball                bool   `help:"Build from the release tarball instead of cloning"`
	OutDir                 string `name:"out-dir" short:"o" help:"Build output directory"`
	Jobs                   int    `short:"j" help:"Parallel ninja jobs"`
	DisableSSLVerification bool   `name:"disable-ssl-verification" help:"Do not verify TLS certificates when downloading"`
	BuildTimeout           string `name:"build-timeout" help:"Hard limit for the ninja build (e.g. 5h30m)"`
}

// apply layers the command line over the loaded configuration.
func (b *BuildCmd) apply(cfg *config.Config) error {
	if b.CI {
		cfg.Build.CI = true
	}
	if b.Tarball {
		cfg.Target.Tarball = true
	}
	if b.TargetArch != "" {
		arch := config.NormalizeTargetArch(b.TargetArch)
		if arch == "" {
			return ferrors.ValidationError("unsupported target architecture").
				WithContext("target_arch", b.TargetArch).
				Build()
		}
		// A derived toolchain section follows the new target; an explicit one stays.
		if cfg.Toolchain.Section == config.ToolchainSection(cfg.Target.Arch) {
			cfg.Toolchain.Section = config.ToolchainSection(arch)
		}
		cfg.Target.Arch = arch
	}
	if b.OutDir != "" {
		abs, err := filepath.Abs(b.OutDir)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid output directory").
				WithContext("out_dir", b.OutDir).
				Build()
		}
		cfg.Paths.OutDir = abs
	}
	if b.Jobs != 0 {
		cfg.Build.Jobs = b.Jobs
	}
	if b.DisableSSLVerification {
		cfg.Download.InsecureSkipVerify = true
	}
	if b.BuildTimeout != "" {
		cfg.Build.Timeout = b.BuildTimeout
	}
	return config.ValidateConfig(cfg)
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.LoadConfig()
	if err != nil {
		return err
	}
	if err := b.apply(cfg); err != nil {
		return err
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := build.NewBuildService().
		WithRecorder(s.recorder).
		WithObserver(s.observer).
		WithRunID(s.runID)
	result, err := svc.Run(ctx, build.BuildRequest{Config: cfg})
	if result != nil {
		if !result.Status.IsSuccess() {
			slog.Warn("Build did not complete", slog.String("status", string(result.Status)))
		}
		_, _ = fmt.Fprintf(g.Out, "Build %s: run %s, %d steps in %s\n",
			result.Status, result.RunID, result.Steps, result.Duration.Round(1e9))
	}
	return err
}
