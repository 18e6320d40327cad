package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/crossbuild/internal/collab"
	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/pipeline"
	"git.home.luguber.info/inful/crossbuild/internal/platform"
	"git.home.luguber.info/inful/crossbuild/internal/process"
	"git.home.luguber.info/inful/crossbuild/internal/splitarchive"
	"git.home.luguber.info/inful/crossbuild/internal/state"
	"git.home.luguber.info/inful/crossbuild/internal/testutil"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []process.Command
	// failOn fails every command whose rendering contains the substring.
	failOn string
}

func (r *recordingRunner) record(c process.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	if r.failOn != "" && strings.Contains(c.String(), r.failOn) {
		return errors.New("exit status 1")
	}
	return nil
}

func (r *recordingRunner) Run(_ context.Context, c process.Command) error { return r.record(c) }

func (r *recordingRunner) Output(_ context.Context, c process.Command) (string, error) {
	return "", r.record(c)
}

func (r *recordingRunner) RunWithTimeout(_ context.Context, c process.Command, _, _ time.Duration) error {
	return r.record(c)
}

func (r *recordingRunner) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.String())
	}
	return out
}

func testConfig(t *testing.T, target config.TargetArch, tarball, ci bool) *config.Config {
	t.Helper()
	cfg, err := config.Default(t.TempDir())
	require.NoError(t, err)
	cfg.Target.Arch = target
	cfg.Target.Tarball = tarball
	cfg.Build.CI = ci
	return cfg
}

func testBuilder(t *testing.T, cfg *config.Config, runner process.Runner) *Builder {
	t.Helper()
	plat, err := platform.New("amd64", cfg.Target.Arch)
	require.NoError(t, err)
	return NewBuilder(cfg, plat, runner, NewTools(cfg, nil), state.NewMarkerStore(cfg.Paths.State))
}

func stepNames(steps []pipeline.Step) []string {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Name)
	}
	return names
}

func findStep(t *testing.T, steps []pipeline.Step, name string) pipeline.Step {
	t.Helper()
	for _, s := range steps {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("step %s not found", name)
	return pipeline.Step{}
}

func TestStepsCloneMode(t *testing.T) {
	b := testBuilder(t, testConfig(t, config.TargetX64, false, false), &recordingRunner{})

	assert.Equal(t, []string{
		StepCloneSources,
		StepDownloadWindowsDeps,
		StepPruneBinaries,
		StepUnpackWindowsDeps,
		StepSevenZipSymlink,
		StepApplyPatches,
		StepDomainSubstitution,
		StepRustToolchain,
		StepWriteGNArgs,
		"download_vs_toolchain_x64",
		StepVSToolchainEnv,
		"vs_toolchain_updated_x64",
		StepLLVMEnv,
		StepSetupToolchain,
		StepClangFlags,
		StepLinkThirdParty,
		StepGNBootstrap,
		StepLinkBuildtoolsGN,
		StepGNGen,
		StepNinja,
	}, stepNames(b.Steps()))
}

func TestStepsTarballCI(t *testing.T) {
	steps := testBuilder(t, testConfig(t, config.TargetARM64, true, true), &recordingRunner{}).Steps()
	names := stepNames(steps)

	assert.Equal(t, []string{StepDownloadTarball, StepUnpackTarball, StepDownloadWindowsDeps}, names[:3])
	assert.NotContains(t, names, StepCloneSources)
	assert.Contains(t, names, "download_vs_toolchain_arm64")
	assert.Contains(t, names, "vs_toolchain_updated_arm64")
	assert.Equal(t, StepPackage, names[len(names)-1])

	for _, name := range []string{StepLinkThirdParty, StepLinkBuildtoolsGN, StepNinja, StepPackage} {
		assert.True(t, findStep(t, steps, name).Always, name)
	}
	for _, name := range []string{StepVSToolchainEnv, StepLLVMEnv, StepClangFlags} {
		s := findStep(t, steps, name)
		assert.Nil(t, s.Action, name)
		assert.NotNil(t, s.Env, name)
	}
}

func TestWindowsComponents(t *testing.T) {
	x86 := WindowsComponents(config.TargetX86)
	assert.Contains(t, x86, "rust-std-windows-x86")
	assert.NotContains(t, x86, "rust-std-windows-x64")
	assert.NotContains(t, x86, "rust-std-windows-arm")
	assert.Equal(t, "llvm", x86[0])

	assert.Equal(t, "rust-std-windows-arm", WindowsComponents(config.TargetARM64)[len(x86)-1])
	assert.Len(t, baseWindowsComponents, 9, "base list must not be mutated")
}

func TestDownloadWindowsDepsPassesTargetComponents(t *testing.T) {
	cfg := testConfig(t, config.TargetARM64, false, false)
	cfg.Download.InsecureSkipVerify = true
	runner := &recordingRunner{}
	b := testBuilder(t, cfg, runner)

	step := findStep(t, b.Steps(), StepDownloadWindowsDeps)
	require.NoError(t, step.Action(t.Context(), pipeline.NewContext("r", nil)))

	cmds := runner.commands()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "downloads.py retrieve -i "+filepath.Join(cfg.Paths.Root, "downloads.ini"))
	assert.Contains(t, cmds[0], "--disable-ssl-verification")
	assert.Contains(t, cmds[0], "rust-std-windows-arm")
}

func TestListPathsFollowTarballMode(t *testing.T) {
	for _, tc := range []struct {
		name    string
		tarball bool
		want    func(root string) string
	}{
		{"clone", false, func(root string) string { return filepath.Join(root, "pruning.list") }},
		{"tarball", true, func(root string) string { return filepath.Join(root, "ungoogled-chromium", "pruning.list") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t, config.TargetX64, tc.tarball, false)
			runner := &recordingRunner{}
			b := testBuilder(t, cfg, runner)

			step := findStep(t, b.Steps(), StepPruneBinaries)
			require.NoError(t, step.Action(t.Context(), pipeline.NewContext("r", nil)))
			cmds := runner.commands()
			require.Len(t, cmds, 1)
			assert.True(t, strings.HasSuffix(cmds[0], tc.want(cfg.Paths.Root)), cmds[0])
		})
	}
}

func TestConfiguredListOverridesMode(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, true, false)
	cfg.Build.DomainSubstitution = "lists/domains.list"
	b := testBuilder(t, cfg, &recordingRunner{})

	assert.Equal(t, filepath.Join(cfg.Paths.Root, "lists", "domains.list"),
		b.listPath(cfg.Build.DomainSubstitution, "domain_substitution.list"))
}

func TestApplyPatchesAddsAVX2ForX64(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, false, false)
	root := cfg.Paths.Root
	testutil.WriteFile(t, filepath.Join(root, "ungoogled-chromium", "patches", "series"), "core/a.patch\n")
	testutil.WriteFile(t, filepath.Join(root, "patches", "series"), "windows/b.patch\n")
	testutil.WriteFile(t, filepath.Join(root, "patches", filepath.FromSlash(collab.AVX2Patch)), "--- a\n")
	runner := &recordingRunner{}
	b := testBuilder(t, cfg, runner)

	require.NoError(t, b.applyPatches(t.Context(), pipeline.NewContext("r", nil)))

	series, err := os.ReadFile(filepath.Join(root, "patches", "series"))
	require.NoError(t, err)
	assert.Equal(t, "windows/b.patch\n"+collab.AVX2Patch+"\n", string(series))

	cmds := runner.commands()
	require.Len(t, cmds, 3)
	assert.Contains(t, cmds[0], "a.patch")
	assert.Contains(t, cmds[1], "b.patch")
	assert.Contains(t, cmds[2], "windows-enable-avx2-optimizations.patch")
}

func TestApplyPatchesStopsAtFirstFailure(t *testing.T) {
	cfg := testConfig(t, config.TargetX86, false, false)
	root := cfg.Paths.Root
	testutil.WriteFile(t, filepath.Join(root, "ungoogled-chromium", "patches", "series"), "bad.patch\n")
	testutil.WriteFile(t, filepath.Join(root, "patches", "series"), "never.patch\n")
	runner := &recordingRunner{failOn: "bad.patch"}
	b := testBuilder(t, cfg, runner)

	err := b.applyPatches(t.Context(), pipeline.NewContext("r", nil))
	require.Error(t, err)
	assert.Len(t, runner.commands(), 1)
}

func TestFetchRCSkipsWithoutSHA1File(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, false, false)
	b := testBuilder(t, cfg, &recordingRunner{})
	require.NoError(t, b.fetchRC(t.Context()))
}

func TestInstallSysrootOnceInCI(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, false, true)
	runner := &recordingRunner{}
	b := testBuilder(t, cfg, runner)

	require.NoError(t, b.installSysroot(t.Context(), nil))
	require.NoError(t, b.installSysroot(t.Context(), nil))

	cmds := runner.commands()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "install-sysroot.py --arch=amd64")
}

func TestLLVMEnv(t *testing.T) {
	source := "/src"
	pc := pipeline.NewContext("r", []string{"PATH=/usr/bin", "LD_LIBRARY_PATH=/rust/lib"}).
		With(LLVMEnv(source))

	base := "/src/third_party/llvm-build/Release+Asserts"
	ld, _ := pc.Get("LD_LIBRARY_PATH")
	assert.Equal(t, base+"/lib:"+base+"/lib/x86_64-unknown-linux-gnu:/rust/lib", ld)
	path, _ := pc.Get("PATH")
	assert.Equal(t, "/usr/bin:/src/third_party/ninja:"+base+"/bin", path)
	cc, _ := pc.Get("CC")
	assert.Equal(t, base+"/bin/clang", cc)
	cxxflags, _ := pc.Get("CXXFLAGS")
	assert.Equal(t, "-I"+base+"/include/c++/v1 -stdlib=libc++", cxxflags)
	ldflags, _ := pc.Get("LDFLAGS")
	assert.True(t, strings.HasSuffix(ldflags, "-Wl,--whole-archive -lc++abi -Wl,--no-whole-archive -lpthread -ldl"), ldflags)

	pc = pc.With(ClangFlagsEnv("/res", base+"/bin"))
	cxxflags, _ = pc.Get("CXXFLAGS")
	assert.Equal(t, "-I"+base+"/include/c++/v1 -stdlib=libc++ -resource-dir=/res -B"+base+"/bin", cxxflags)
	cflags, _ := pc.Get("CFLAGS")
	assert.Equal(t, "-resource-dir=/res -B"+base+"/bin", cflags)
}

func TestRustAndVSToolchainEnv(t *testing.T) {
	pc := pipeline.NewContext("r", nil).
		With(RustEnv("/src/third_party/rust-toolchain")).
		With(VSToolchainEnv("/src/third_party/win_toolchain", "abc123", "tc.zip"))

	ld, _ := pc.Get("LD_LIBRARY_PATH")
	assert.Equal(t, "/src/third_party/rust-toolchain/lib", ld)
	base, _ := pc.Get("DEPOT_TOOLS_WIN_TOOLCHAIN_BASE_URL")
	assert.Equal(t, "/src/third_party/win_toolchain", base)
	hash, _ := pc.Get("GYP_MSVS_HASH_abc123")
	assert.Equal(t, "tc.zip", hash)
}

func TestUnpackerSelection(t *testing.T) {
	assert.Equal(t, splitarchive.InProcess{Compression: config.CompressionZstd},
		Unpacker(config.ToolchainConfig{Unpacker: config.UnpackerInProcess, Compression: config.CompressionZstd}))
	assert.Equal(t, splitarchive.TarCommand{Args: []string{"-z"}},
		Unpacker(config.ToolchainConfig{Unpacker: config.UnpackerTar, Compression: config.CompressionGzip}))
	assert.Equal(t, splitarchive.TarCommand{},
		Unpacker(config.ToolchainConfig{Unpacker: config.UnpackerTar, Compression: config.CompressionAuto}))
}

func fixedPlatform(target config.TargetArch) (platform.Platform, error) {
	return platform.New("amd64", target)
}

func TestServiceRequiresConfig(t *testing.T) {
	res, err := NewBuildService().Run(t.Context(), BuildRequest{})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeConfiguration))
	assert.Equal(t, BuildStatusFailed, res.Status)
}

func TestServiceFailsFastWithoutMarker(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, false, true)
	runner := &recordingRunner{failOn: "clone.py"}
	svc := NewBuildService().WithRunner(runner).WithPlatform(fixedPlatform).WithRunID("run-1")

	res, err := svc.Run(t.Context(), BuildRequest{Config: cfg})
	require.Error(t, err)
	assert.Equal(t, BuildStatusFailed, res.Status)
	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeStepFailed))

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	step, _ := ce.Context().GetString("step")
	assert.Equal(t, StepCloneSources, step)

	assert.Len(t, runner.commands(), 1)
	done, err := state.NewMarkerStore(cfg.Paths.State).Completed()
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestServiceResumesAfterCompletedSteps(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, true, true)
	markers := state.NewMarkerStore(cfg.Paths.State)
	for _, s := range []string{StepDownloadTarball, StepUnpackTarball, StepDownloadWindowsDeps} {
		require.NoError(t, markers.Mark(s))
	}
	runner := &recordingRunner{failOn: "prune_binaries.py"}
	svc := NewBuildService().WithRunner(runner).WithPlatform(fixedPlatform)

	res, err := svc.Run(t.Context(), BuildRequest{Config: cfg})
	require.Error(t, err)
	assert.Equal(t, BuildStatusFailed, res.Status)

	cmds := runner.commands()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "prune_binaries.py")

	done, err := markers.Completed()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{StepDownloadTarball, StepUnpackTarball, StepDownloadWindowsDeps}, done)
}

func TestServiceCanceled(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, false, false)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	runner := &recordingRunner{}

	res, err := NewBuildService().WithRunner(runner).WithPlatform(fixedPlatform).Run(ctx, BuildRequest{Config: cfg})
	require.Error(t, err)
	assert.Equal(t, BuildStatusCancelled, res.Status)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeCanceled))
	assert.Empty(t, runner.commands())
}

func TestServicePlatformError(t *testing.T) {
	cfg := testConfig(t, config.TargetX64, false, false)
	svc := NewBuildService().WithRunner(&recordingRunner{}).WithPlatform(func(target config.TargetArch) (platform.Platform, error) {
		return platform.New("mips", target)
	})

	res, err := svc.Run(t.Context(), BuildRequest{Config: cfg})
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeArchitectureUnresolvable))
	assert.Equal(t, BuildStatusFailed, res.Status)
}
