package archmerge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/process"
)

// VersionFile is written to the install root once a merge completes.
const VersionFile = "INSTALLED_VERSION"

const versionTimeout = 10 * time.Second

// Component is one downloaded per-architecture toolchain. Source holds a rustc directory
// with bin and lib.
type Component struct {
	Arch   Arch
	Source string
	Host   bool
}

// VersionProbe returns the output of `rustc --version`.
type VersionProbe func(ctx context.Context, rustc string) (string, error)

// Result summarizes a Run.
type Result struct {
	Host      Arch
	Processed []Arch
	Skipped   []Arch
	Version   string
}

// Merger installs components into root.
type Merger struct {
	root       string
	components []Component
	probe      VersionProbe
	logger     *slog.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithVersionProbe replaces the rustc invocation.
func WithVersionProbe(p VersionProbe) Option {
	return func(m *Merger) { m.probe = p }
}

// NewMerger returns a Merger installing components below root.
func NewMerger(root string, components []Component, opts ...Option) *Merger {
	m := &Merger{root: root, components: components, probe: rustcVersion, logger: slog.Default()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Plan resolves the configured architecture names against sourceTree. It runs once at
// startup so later stages only see typed architectures.
func Plan(sourceTree string, cfg config.RustConfig) (string, []Component, error) {
	host := strings.ToLower(strings.TrimSpace(cfg.Host))
	components := make([]Component, 0, len(cfg.Architectures))
	for _, name := range cfg.Architectures {
		a, err := ParseArch(name)
		if err != nil {
			return "", nil, err
		}
		components = append(components, Component{
			Arch:   a,
			Source: filepath.Join(sourceTree, cfg.SourcePrefix+a.SourceSuffix()),
			Host:   a.String() == host,
		})
	}
	return filepath.Join(sourceTree, cfg.Destination), components, nil
}

// ResolveHost returns the single component marked as host.
func ResolveHost(components []Component) (Arch, error) {
	var hosts []string
	var host Arch
	names := make([]string, 0, len(components))
	for _, c := range components {
		names = append(names, c.Arch.String())
		if c.Host {
			host = c.Arch
			hosts = append(hosts, c.Arch.String())
		}
	}
	switch len(hosts) {
	case 1:
		return host, nil
	case 0:
		return 0, ferrors.ArchitectureUnresolvable("no configured architecture is the host").
			WithContext("architectures", strings.Join(names, ", ")).
			Build()
	default:
		return 0, ferrors.ArchitectureUnresolvable("more than one configured architecture is the host").
			WithContext("hosts", strings.Join(hosts, ", ")).
			Build()
	}
}

// Installed reports whether root carries a version file from a previous run.
func Installed(root string) bool {
	_, err := os.Stat(filepath.Join(root, VersionFile))
	return err == nil
}

// Run installs every valid component: the host at the top level with its libraries
// repaired and its subdirectory linked, every other architecture under {arch}/.
// It fails when no architecture could be installed.
func (m *Merger) Run(ctx context.Context) (Result, error) {
	host, err := ResolveHost(m.components)
	if err != nil {
		return Result{}, err
	}
	res := Result{Host: host}
	m.logger.Info("Installing rust toolchains", logfields.Arch(host.String()), logfields.Path(m.root))

	for _, sub := range Subtrees {
		if err := os.MkdirAll(filepath.Join(m.root, sub), 0o755); err != nil {
			return res, mergeError(err, m.root)
		}
	}

	for _, c := range m.components {
		if err := ctx.Err(); err != nil {
			return res, ferrors.Canceled("merge rust toolchains", err)
		}
		log := m.logger.With(logfields.Arch(c.Arch.String()))
		rustc := filepath.Join(c.Source, "rustc")
		if missing := missingSubtrees(rustc); len(missing) > 0 {
			log.Warn("Toolchain source incomplete, skipping", logfields.Path(rustc), slog.String("missing", strings.Join(missing, ", ")))
			res.Skipped = append(res.Skipped, c.Arch)
			continue
		}
		if err := m.install(c, rustc); err != nil {
			return res, err
		}
		res.Processed = append(res.Processed, c.Arch)
	}

	if len(res.Processed) == 0 {
		return res, ferrors.NewError(ferrors.CategoryToolchain, "no rust architecture could be installed").
			WithContext("path", m.root).
			Fatal().
			UserAction().
			Build()
	}

	res.Version, err = m.writeVersion(ctx, res)
	return res, err
}

func (m *Merger) install(c Component, rustc string) error {
	if !c.Host {
		_, err := MergeArchitecture(rustc, filepath.Join(m.root, c.Arch.Subdir()), false)
		return err
	}
	if _, err := MergeArchitecture(rustc, m.root, true); err != nil {
		return err
	}
	if _, err := RepairHostLibraries(filepath.Join(m.root, "lib"), c.Arch); err != nil {
		return err
	}
	return LinkHostSubdirectory(m.root, c.Arch)
}

func missingSubtrees(rustc string) []string {
	var missing []string
	for _, sub := range Subtrees {
		info, err := os.Stat(filepath.Join(rustc, sub))
		if err != nil || !info.IsDir() {
			missing = append(missing, sub)
		}
	}
	return missing
}

func (m *Merger) writeVersion(ctx context.Context, res Result) (string, error) {
	processed := make([]string, len(res.Processed))
	for i, a := range res.Processed {
		processed[i] = a.String()
	}
	list := strings.Join(processed, ", ")

	var version string
	rustc := filepath.Join(m.root, "bin", "rustc")
	_, statErr := os.Stat(rustc)
	switch {
	case errors.Is(statErr, fs.ErrNotExist):
		m.logger.Error("rustc binary not found", logfields.Path(rustc))
		version = fmt.Sprintf("rustc not installed (processed architectures: %s)\n", list)
	default:
		probeCtx, cancel := context.WithTimeout(ctx, versionTimeout)
		out, err := m.probe(probeCtx, rustc)
		cancel()
		if err != nil {
			m.logger.Warn("Failed to get rustc version, using placeholder", logfields.Error(err))
			version = fmt.Sprintf("rustc unknown version (host: %s, processed: %s)\n", res.Host, list)
		} else {
			version = strings.TrimSpace(out) + "\n"
			m.logger.Info("Rust toolchain version", slog.String("version", strings.TrimSpace(out)))
		}
	}

	path := filepath.Join(m.root, VersionFile)
	if err := os.WriteFile(path, []byte(version), 0o644); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write version file").
			WithContext("path", path).
			Fatal().
			Build()
	}
	return version, nil
}

func rustcVersion(ctx context.Context, rustc string) (string, error) {
	return process.Output(ctx, process.Command{Name: rustc, Args: []string{"--version"}})
}
