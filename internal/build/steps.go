package build

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/archmerge"
	"git.home.luguber.info/inful/crossbuild/internal/collab"
	"git.home.luguber.info/inful/crossbuild/internal/config"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/pipeline"
	"git.home.luguber.info/inful/crossbuild/internal/platform"
	"git.home.luguber.info/inful/crossbuild/internal/process"
	"git.home.luguber.info/inful/crossbuild/internal/state"
	"git.home.luguber.info/inful/crossbuild/internal/toolchain"
	"git.home.luguber.info/inful/crossbuild/internal/workspace"
)

// Step names double as marker names.
const (
	StepDownloadTarball     = "download_chromium_tarball"
	StepUnpackTarball       = "unpack_chromium_tarball"
	StepCloneSources        = "clone_chromium_sources"
	StepDownloadWindowsDeps = "download_windows_dependencies"
	StepPruneBinaries       = "prune_binaries"
	StepUnpackWindowsDeps   = "unpack_windows_downloads"
	StepSevenZipSymlink     = "setup_7z_symlink"
	StepApplyPatches        = "apply_patches"
	StepDomainSubstitution  = "apply_domain_substitution"
	StepRustToolchain       = "setup_rust_toolchain"
	StepWriteGNArgs         = "write_gn_args"
	StepVSToolchainEnv      = "vs_toolchain_env"
	StepLLVMEnv             = "llvm_env"
	StepSetupToolchain      = "setup_toolchain"
	StepSysroot             = "sysroot_installed"
	StepClangFlags          = "clang_flags"
	StepLinkThirdParty      = "link_third_party"
	StepGNBootstrap         = "gn_bootstrap"
	StepLinkBuildtoolsGN    = "link_buildtools_gn"
	StepGNGen               = "gn_gen"
	StepNinja               = "ninja"
	StepPackage             = "package"
)

// StepDownloadVSToolchain is the marker of the toolchain download for target.
func StepDownloadVSToolchain(target config.TargetArch) string {
	return "download_vs_toolchain_" + string(target)
}

// StepUpdateVSToolchain is the marker of the toolchain extraction for target.
func StepUpdateVSToolchain(target config.TargetArch) string {
	return "vs_toolchain_updated_" + string(target)
}

// Storage buckets of the helper binaries addressed by .sha1 files.
const (
	ciopfsBucket = "chromium-browser-clang/ciopfs"
	rcBucket     = "chromium-browser-clang/rc"
)

var baseWindowsComponents = []string{
	"llvm",
	"ninja",
	"7zip-linux",
	"nodejs",
	"esbuild",
	"directx-headers",
	"webauthn",
	"rust-x64",
	"rust-windows-create",
}

var rustStdComponent = map[config.TargetArch]string{
	config.TargetX64:   "rust-std-windows-x64",
	config.TargetX86:   "rust-std-windows-x86",
	config.TargetARM64: "rust-std-windows-arm",
}

// WindowsComponents lists the downloads.ini components a target needs. Only
// the rust std library of the target is included.
func WindowsComponents(target config.TargetArch) []string {
	out := append([]string(nil), baseWindowsComponents...)
	if c, ok := rustStdComponent[target]; ok {
		out = append(out, c)
	}
	return out
}

// Builder turns a configuration into the ordered build steps.
type Builder struct {
	cfg      *config.Config
	layout   workspace.Layout
	platform platform.Platform
	runner   process.Runner
	tools    *Tools
	markers  *state.MarkerStore
	storage  string
}

// NewBuilder returns a Builder running external commands through runner.
func NewBuilder(cfg *config.Config, plat platform.Platform, runner process.Runner, tools *Tools, markers *state.MarkerStore) *Builder {
	return &Builder{
		cfg:      cfg,
		layout:   workspace.FromConfig(cfg.Paths),
		platform: plat,
		runner:   runner,
		tools:    tools,
		markers:  markers,
		storage:  collab.StorageBaseURL,
	}
}

func (b *Builder) rootPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.layout.Root, p)
}

// listPath resolves a list file: the configured one, or name from the
// ungoogled-chromium checkout for tarball builds and from the root otherwise.
func (b *Builder) listPath(configured, name string) string {
	if configured != "" {
		return b.rootPath(configured)
	}
	if b.cfg.Target.Tarball {
		return filepath.Join(b.layout.Root, "ungoogled-chromium", name)
	}
	return filepath.Join(b.layout.Root, name)
}

func (b *Builder) python() collab.Python {
	return collab.Python{Runner: b.runner, Bin: b.cfg.Build.PythonBin}
}

func (b *Builder) utils() collab.Utils {
	return collab.Utils{Python: b.python(), Dir: b.cfg.Paths.Packaging}
}

func (b *Builder) setup() collab.Setup {
	return collab.Setup{Python: b.python(), Source: b.layout.Source}
}

func (b *Builder) gn() collab.GN {
	return collab.GN{Python: b.python(), Source: b.layout.Source, OutDir: b.layout.OutDir}
}

func (b *Builder) sha1() collab.SHA1Downloader {
	return collab.SHA1Downloader{Fetcher: b.tools.Downloader, BaseURL: b.storage}
}

func (b *Builder) insecure() bool { return b.cfg.Download.InsecureSkipVerify }

// Steps returns the build in execution order.
func (b *Builder) Steps() []pipeline.Step {
	target := b.cfg.Target.Arch
	var steps []pipeline.Step
	if b.cfg.Target.Tarball {
		steps = append(steps,
			pipeline.Step{Name: StepDownloadTarball, Action: b.downloadTarball},
			pipeline.Step{Name: StepUnpackTarball, Action: b.unpackTarball},
		)
	} else {
		steps = append(steps, pipeline.Step{Name: StepCloneSources, Action: b.cloneSources})
	}
	steps = append(steps,
		pipeline.Step{Name: StepDownloadWindowsDeps, Action: b.downloadWindowsDeps},
		pipeline.Step{Name: StepPruneBinaries, Action: b.pruneBinaries},
		pipeline.Step{Name: StepUnpackWindowsDeps, Action: b.unpackWindowsDeps},
		pipeline.Step{Name: StepSevenZipSymlink, Action: b.sevenZipSymlink},
		pipeline.Step{Name: StepApplyPatches, Action: b.applyPatches},
		pipeline.Step{Name: StepDomainSubstitution, Action: b.domainSubstitution},
		pipeline.Step{Name: StepRustToolchain, Action: b.rustToolchain, Env: b.rustEnv},
		pipeline.Step{Name: StepWriteGNArgs, Action: b.writeGNArgs},
		pipeline.Step{Name: StepDownloadVSToolchain(target), Action: b.downloadVSToolchain},
		pipeline.Step{Name: StepVSToolchainEnv, Env: b.vsToolchainEnv},
		pipeline.Step{Name: StepUpdateVSToolchain(target), Action: b.updateVSToolchain},
		pipeline.Step{Name: StepLLVMEnv, Env: b.llvmEnv},
		pipeline.Step{Name: StepSetupToolchain, Action: b.setupToolchain},
		pipeline.Step{Name: StepClangFlags, Env: b.clangFlags},
		pipeline.Step{Name: StepLinkThirdParty, Action: b.linkThirdParty, Always: true},
		pipeline.Step{Name: StepGNBootstrap, Action: b.gnBootstrap},
		pipeline.Step{Name: StepLinkBuildtoolsGN, Action: b.linkBuildtoolsGN, Always: true},
		pipeline.Step{Name: StepGNGen, Action: b.gnGen},
		pipeline.Step{Name: StepNinja, Action: b.ninja, Always: true},
	)
	if b.cfg.Build.CI {
		steps = append(steps, pipeline.Step{Name: StepPackage, Action: b.pack, Always: true})
	}
	return steps
}

func (b *Builder) tarballIni() string {
	return filepath.Join(b.layout.Root, "ungoogled-chromium", "downloads.ini")
}

func (b *Builder) windowsIni() string {
	return filepath.Join(b.layout.Root, "downloads.ini")
}

func (b *Builder) downloadTarball(ctx context.Context, pc pipeline.Context) error {
	return b.utils().Retrieve(ctx, pc.Environ(), b.tarballIni(), b.layout.DownloadCache, nil, b.insecure())
}

func (b *Builder) unpackTarball(ctx context.Context, pc pipeline.Context) error {
	return b.utils().Unpack(ctx, pc.Environ(), b.tarballIni(), b.layout.DownloadCache, b.layout.Source, nil)
}

func (b *Builder) cloneSources(ctx context.Context, pc pipeline.Context) error {
	cloner := collab.SourceCloner{Utils: b.utils(), Dir: b.layout.Root}
	err := cloner.Clone(ctx, pc.Environ(), b.layout.Source, b.platform.WindowsPlatform(), b.platform.Sysroot())
	if err != nil {
		return err
	}
	profiles := collab.PGOProfiles{
		Client:  b.tools.Transport.Client(),
		Fetcher: b.tools.Downloader,
		BaseURL: b.storage,
	}
	n, err := profiles.Download(ctx, b.layout.Source)
	if err != nil {
		return err
	}
	slog.Info("V8 builtins PGO profiles in place", slog.Int("profiles", n))
	return nil
}

func (b *Builder) downloadWindowsDeps(ctx context.Context, pc pipeline.Context) error {
	return b.utils().Retrieve(ctx, pc.Environ(), b.windowsIni(), b.layout.DownloadCache,
		WindowsComponents(b.cfg.Target.Arch), b.insecure())
}

func (b *Builder) pruneBinaries(ctx context.Context, pc pipeline.Context) error {
	list := b.listPath(b.cfg.Build.PruningList, "pruning.list")
	return b.utils().Prune(ctx, pc.Environ(), b.layout.Source, list)
}

func (b *Builder) unpackWindowsDeps(ctx context.Context, pc pipeline.Context) error {
	if err := collab.EmptyDir(b.layout.SourcePath("third_party", "microsoft_dxheaders", "src")); err != nil {
		return err
	}
	return b.utils().Unpack(ctx, pc.Environ(), b.windowsIni(), b.layout.DownloadCache, b.layout.Source,
		WindowsComponents(b.cfg.Target.Arch))
}

func (b *Builder) sevenZipSymlink(context.Context, pipeline.Context) error {
	return collab.LinkSevenZip(b.layout.Source)
}

// applyPatches adjusts the AVX2 entry of the last series, then applies every
// series in order.
func (b *Builder) applyPatches(ctx context.Context, _ pipeline.Context) error {
	series := make([]string, 0, len(b.cfg.Build.PatchSeries))
	for _, s := range b.cfg.Build.PatchSeries {
		series = append(series, b.rootPath(s))
	}
	if len(series) > 0 {
		if _, err := collab.AdjustAVX2(series[len(series)-1], b.cfg.Target.Arch == config.TargetX64); err != nil {
			return err
		}
	}
	applier := collab.PatchApplier{Runner: b.runner}
	for _, dir := range series {
		if err := applier.ApplySeries(ctx, dir, b.layout.Source); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) domainSubstitution(ctx context.Context, pc pipeline.Context) error {
	sub := collab.DomainSubstituter{Utils: b.utils()}
	return sub.Apply(ctx, pc.Environ(),
		b.rootPath(b.cfg.Build.DomainRegex),
		b.listPath(b.cfg.Build.DomainSubstitution, "domain_substitution.list"),
		b.layout.Source)
}

func (b *Builder) rustPlan() (string, []archmerge.Component, error) {
	return archmerge.Plan(b.layout.Source, b.cfg.Rust)
}

func (b *Builder) rustToolchain(ctx context.Context, _ pipeline.Context) error {
	root, components, err := b.rustPlan()
	if err != nil {
		return err
	}
	if archmerge.Installed(root) {
		slog.Info("Replacing rust toolchain from an earlier run", logfields.Path(root))
	}
	res, err := archmerge.NewMerger(root, components).Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("Rust toolchain installed", logfields.Path(root), slog.String("version", res.Version))
	return nil
}

func (b *Builder) rustEnv(context.Context, pipeline.Context) (pipeline.Contribution, error) {
	root, _, err := b.rustPlan()
	if err != nil {
		return pipeline.Contribution{}, err
	}
	return RustEnv(root), nil
}

func (b *Builder) writeGNArgs(context.Context, pipeline.Context) error {
	flags := b.cfg.Build.FlagsFiles
	w := collab.GNArgsWriter{CommonFlags: b.rootPath(flags[0]), WindowsFlags: b.rootPath(flags[len(flags)-1])}
	path, err := w.Write(b.layout.OutDir, b.cfg.Target.Arch, b.cfg.Target.Tarball)
	if err != nil {
		return err
	}
	slog.Info("Wrote GN args", logfields.Path(path))
	return nil
}

func (b *Builder) vsToolchainInfo() (collab.VSToolchainInfo, error) {
	return collab.ReadVSToolchainInfo(b.layout.SourcePath("build", "vs_toolchain.py"))
}

// downloadVSToolchain fetches ciopfs when missing and assembles the
// toolchain archive.
func (b *Builder) downloadVSToolchain(ctx context.Context, _ pipeline.Context) error {
	info, err := b.vsToolchainInfo()
	if err != nil {
		return err
	}
	ciopfs := b.layout.SourcePath("build", "ciopfs")
	if missing, err := notExist(ciopfs); err != nil {
		return err
	} else if missing {
		if err := b.sha1().Download(ctx, ciopfs+".sha1", ciopfs, ciopfsBucket); err != nil {
			return err
		}
	}
	st, err := b.tools.AssembleToolchain(ctx, b.cfg, info, ToolchainDir(b.layout.Source))
	if err != nil {
		return err
	}
	slog.Info("Windows toolchain ready", logfields.State(string(st)))
	return nil
}

func (b *Builder) vsToolchainEnv(context.Context, pipeline.Context) (pipeline.Contribution, error) {
	info, err := b.vsToolchainInfo()
	if err != nil {
		return pipeline.Contribution{}, err
	}
	sec, err := ToolchainSection(b.cfg, info)
	if err != nil {
		return pipeline.Contribution{}, err
	}
	zip, err := sec.Get(toolchain.KeyZipFilename)
	if err != nil {
		return pipeline.Contribution{}, err
	}
	return VSToolchainEnv(ToolchainDir(b.layout.Source), info.Hash, zip), nil
}

func (b *Builder) updateVSToolchain(ctx context.Context, pc pipeline.Context) error {
	return b.setup().UpdateVSToolchain(ctx, pc.Environ())
}

func (b *Builder) llvmEnv(context.Context, pipeline.Context) (pipeline.Contribution, error) {
	return LLVMEnv(b.layout.Source), nil
}

// setupToolchain restores the tool download hosts, builds bindgen, installs
// the host sysroot once and fetches the rc binary when it is missing.
func (b *Builder) setupToolchain(ctx context.Context, pc pipeline.Context) error {
	changed, err := collab.ToolDownloadFixer{}.Fix(b.layout.Source)
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		slog.Info("Restored tool download hosts", slog.Int("files", len(changed)))
	}
	env := pc.Environ()
	s := b.setup()
	if err := s.BuildBindgen(ctx, env); err != nil {
		return err
	}
	if err := b.installSysroot(ctx, env); err != nil {
		return err
	}
	return b.fetchRC(ctx)
}

func (b *Builder) installSysroot(ctx context.Context, env []string) error {
	if b.cfg.Build.CI {
		done, err := b.markers.Done(StepSysroot)
		if err != nil {
			return err
		}
		if done {
			slog.Info("Sysroot already installed", logfields.Step(StepSysroot))
			return nil
		}
	}
	if err := b.setup().InstallSysroot(ctx, env, b.platform.Sysroot()); err != nil {
		return err
	}
	return b.markers.Mark(StepSysroot)
}

func (b *Builder) fetchRC(ctx context.Context) error {
	dir := b.layout.SourcePath("build", "toolchain", "win", "rc", "linux64")
	rc := filepath.Join(dir, "rc")
	missing, err := notExist(rc)
	if err != nil || !missing {
		return err
	}
	sha1File := rc + ".sha1"
	if absent, err := notExist(sha1File); err != nil {
		return err
	} else if absent {
		slog.Warn("rc.sha1 not found, skipping rc download", logfields.Path(sha1File))
		return nil
	}
	return b.sha1().Download(ctx, sha1File, rc, rcBucket)
}

func (b *Builder) clangFlags(ctx context.Context, pc pipeline.Context) (pipeline.Contribution, error) {
	cc, ok := pc.Get("CC")
	if !ok {
		cc = filepath.Join(LLVMBin(b.layout.Source), "clang")
	}
	dir, err := b.setup().ClangResourceDir(ctx, pc.Environ(), cc)
	if err != nil {
		return pipeline.Contribution{}, err
	}
	return ClangFlagsEnv(dir, LLVMBin(b.layout.Source)), nil
}

func (b *Builder) linkThirdParty(context.Context, pipeline.Context) error {
	return collab.LinkThirdParty(b.layout.Source, b.layout.OutDir)
}

func (b *Builder) gnBootstrap(ctx context.Context, pc pipeline.Context) error {
	return b.gn().Bootstrap(ctx, pc.Environ())
}

func (b *Builder) linkBuildtoolsGN(context.Context, pipeline.Context) error {
	return b.gn().LinkBuildtools()
}

func (b *Builder) gnGen(ctx context.Context, pc pipeline.Context) error {
	return b.gn().Gen(ctx, pc.Environ())
}

func (b *Builder) ninja(ctx context.Context, pc pipeline.Context) error {
	n := collab.Ninja{
		Runner:    b.runner,
		Source:    b.layout.Source,
		OutDir:    b.layout.OutDir,
		Jobs:      b.cfg.Build.Jobs,
		Targets:   b.cfg.Build.NinjaTargets,
		Timeout:   config.Duration(b.cfg.Build.Timeout),
		Grace:     config.Duration(b.cfg.Build.KillGrace),
		Heartbeat: config.Duration(b.cfg.Build.HeartbeatInterval),
	}
	return n.Build(ctx, pc.Environ())
}

func (b *Builder) pack(ctx context.Context, pc pipeline.Context) error {
	return collab.Packager{Python: b.python(), Root: b.layout.Root}.Package(ctx, pc.Environ(), b.layout.OutDir)
}

func notExist(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, err
	}
}
