package config

import (
	"fmt"
	"path/filepath"
	"runtime"

	"git.home.luguber.info/inful/crossbuild/internal/version"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// CompositeDefaultApplier applies defaults across all configuration domains.
type CompositeDefaultApplier struct {
	appliers []DefaultApplier
}

// NewDefaultApplier creates a composite default applier with all domain appliers.
func NewDefaultApplier() *CompositeDefaultApplier {
	return &CompositeDefaultApplier{
		appliers: []DefaultApplier{
			&PathsDefaultApplier{},
			&TargetDefaultApplier{},
			&DownloadDefaultApplier{},
			&ToolchainDefaultApplier{},
			&RustDefaultApplier{},
			&BuildDefaultApplier{},
			&ObservabilityDefaultApplier{},
		},
	}
}

// ApplyDefaults applies defaults for all configuration domains.
func (c *CompositeDefaultApplier) ApplyDefaults(cfg *Config) error {
	for _, applier := range c.appliers {
		if err := applier.ApplyDefaults(cfg); err != nil {
			return fmt.Errorf("applying defaults for %s: %w", applier.Domain(), err)
		}
	}
	return nil
}

// GetApplierByDomain returns a specific domain applier (useful for testing).
func (c *CompositeDefaultApplier) GetApplierByDomain(domain string) DefaultApplier {
	for _, applier := range c.appliers {
		if applier.Domain() == domain {
			return applier
		}
	}
	return nil
}

// PathsDefaultApplier lays out the build directory under Root.
type PathsDefaultApplier struct{}

func (PathsDefaultApplier) Domain() string { return "paths" }

func (PathsDefaultApplier) ApplyDefaults(cfg *Config) error {
	p := &cfg.Paths
	if p.Root == "" {
		p.Root = "."
	}
	abs, err := filepath.Abs(p.Root)
	if err != nil {
		return err
	}
	p.Root = abs
	resolve := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
		if !filepath.IsAbs(*v) {
			*v = filepath.Join(p.Root, *v)
		}
	}
	resolve(&p.Source, filepath.Join("build", "src"))
	resolve(&p.DownloadCache, filepath.Join("build", "download_cache"))
	resolve(&p.State, filepath.Join("build", ".stamps"))
	resolve(&p.Packaging, filepath.Join("ungoogled-chromium", "utils"))
	if p.OutDir == "" {
		p.OutDir = filepath.Join("out", "Default")
	}
	return nil
}

// TargetDefaultApplier defaults the target to x64.
type TargetDefaultApplier struct{}

func (TargetDefaultApplier) Domain() string { return "target" }

func (TargetDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Target.Arch == "" {
		cfg.Target.Arch = TargetX64
		return nil
	}
	if a := NormalizeTargetArch(string(cfg.Target.Arch)); a != "" {
		cfg.Target.Arch = a
	}
	return nil
}

// DownloadDefaultApplier: 3 attempts, exponential 1s backoff.
type DownloadDefaultApplier struct{}

func (DownloadDefaultApplier) Domain() string { return "download" }

func (DownloadDefaultApplier) ApplyDefaults(cfg *Config) error {
	d := &cfg.Download
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 3
	}
	if d.RetryBackoff == "" {
		d.RetryBackoff = RetryBackoffExponential
	} else if m := NormalizeRetryBackoff(string(d.RetryBackoff)); m != "" {
		d.RetryBackoff = m
	}
	if d.RetryInitialDelay == "" {
		d.RetryInitialDelay = "1s"
	}
	if d.RetryMaxDelay == "" {
		d.RetryMaxDelay = "60s"
	}
	if d.Timeout == "" {
		d.Timeout = "30m"
	}
	if d.UserAgent == "" {
		d.UserAgent = "crossbuild/" + version.Version
	}
	return nil
}

// ToolchainDefaultApplier fills in the Windows toolchain manifest settings.
type ToolchainDefaultApplier struct{}

func (ToolchainDefaultApplier) Domain() string { return "toolchain" }

func (ToolchainDefaultApplier) ApplyDefaults(cfg *Config) error {
	t := &cfg.Toolchain
	if t.Manifest == "" {
		t.Manifest = "win_toolchain.yaml"
	}
	if !filepath.IsAbs(t.Manifest) && cfg.Paths.Root != "" {
		t.Manifest = filepath.Join(cfg.Paths.Root, t.Manifest)
	}
	if t.Section == "" {
		t.Section = ToolchainSection(cfg.Target.Arch)
	}
	if t.Algorithm == "" {
		t.Algorithm = "sha512"
	}
	if t.PartAlgorithm == "" {
		t.PartAlgorithm = "sha256"
	}
	if t.Unpacker == "" {
		t.Unpacker = UnpackerTar
	} else if m := NormalizeUnpackerMode(string(t.Unpacker)); m != "" {
		t.Unpacker = m
	}
	if c := NormalizeCompression(string(t.Compression)); c != "" {
		t.Compression = c
	}
	if t.GitHub.Repository == "" {
		t.GitHub.Repository = "vpday/chromium-win-toolchain-builder"
	}
	if t.GitHub.APIBaseURL == "" {
		t.GitHub.APIBaseURL = "https://api.github.com"
	}
	if t.GitHub.AssetPattern == "" {
		t.GitHub.AssetPattern = "win_toolchain_chromium-{chromium_version}_vs-2022_sdk-{sdk_version}.tar.*"
	}
	return nil
}

// ToolchainSection returns the manifest section that carries the bundle for arch.
// x64 and x86 share a toolchain without ARM support.
func ToolchainSection(arch TargetArch) string {
	if arch == TargetARM64 {
		return "win-toolchain"
	}
	return "win-toolchain-noarm"
}

// RustDefaultApplier fills in the rust toolchain layout and host.
type RustDefaultApplier struct{}

func (RustDefaultApplier) Domain() string { return "rust" }

func (RustDefaultApplier) ApplyDefaults(cfg *Config) error {
	r := &cfg.Rust
	if r.Destination == "" {
		r.Destination = filepath.Join("third_party", "rust-toolchain")
	}
	if r.SourcePrefix == "" {
		r.SourcePrefix = filepath.Join("third_party", "rust-toolchain-")
	}
	if len(r.Architectures) == 0 {
		r.Architectures = []string{"x86_64", "i686", "aarch64"}
	}
	if r.Host == "" {
		r.Host = hostRustArch(runtime.GOARCH)
	}
	return nil
}

func hostRustArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		return "aarch64"
	default:
		return goarch
	}
}

// BuildDefaultApplier fills in the external build settings.
type BuildDefaultApplier struct{}

func (BuildDefaultApplier) Domain() string { return "build" }

func (BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	b := &cfg.Build
	if b.Timeout == "" {
		b.Timeout = "0"
	}
	if b.KillGrace == "" {
		b.KillGrace = "10s"
	}
	if b.HeartbeatInterval == "" {
		b.HeartbeatInterval = "5m"
	}
	if len(b.FlagsFiles) == 0 {
		b.FlagsFiles = []string{
			filepath.Join("ungoogled-chromium", "flags.gn"),
			"flags.windows.gn",
		}
	}
	if len(b.PatchSeries) == 0 {
		b.PatchSeries = []string{
			filepath.Join("ungoogled-chromium", "patches"),
			"patches",
		}
	}
	if b.DomainRegex == "" {
		b.DomainRegex = filepath.Join("ungoogled-chromium", "domain_regex.list")
	}
	if b.PythonBin == "" {
		b.PythonBin = "python3"
	}
	if len(b.NinjaTargets) == 0 {
		b.NinjaTargets = []string{"chrome", "chromedriver", "mini_installer"}
	}
	return nil
}

// ObservabilityDefaultApplier covers logging, metrics and history.
type ObservabilityDefaultApplier struct{}

func (ObservabilityDefaultApplier) Domain() string { return "observability" }

func (ObservabilityDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	} else if l := NormalizeLogLevel(string(cfg.Logging.Level)); l != "" {
		cfg.Logging.Level = l
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "crossbuild"
	}
	if cfg.Metrics.Textfile != "" && !filepath.IsAbs(cfg.Metrics.Textfile) {
		cfg.Metrics.Textfile = filepath.Join(cfg.Paths.Root, cfg.Metrics.Textfile)
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.Paths.Root, "build", "history.db")
	} else if !filepath.IsAbs(cfg.History.Path) {
		cfg.History.Path = filepath.Join(cfg.Paths.Root, cfg.History.Path)
	}
	return nil
}
