package collab

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	"git.home.luguber.info/inful/crossbuild/internal/testutil"
)

func TestGNArgsWriter(t *testing.T) {
	dir := t.TempDir()
	common := filepath.Join(dir, "flags.gn")
	windows := filepath.Join(dir, "flags.windows.gn")
	testutil.WriteFile(t, common, "is_official_build=true")
	testutil.WriteFile(t, windows, "target_cpu=\"x64\"\n")
	w := GNArgsWriter{CommonFlags: common, WindowsFlags: windows}

	got, err := w.Render(config.TargetX64, false)
	require.NoError(t, err)
	assert.Equal(t, "is_official_build=true\ntarget_cpu=\"x64\"\n", got)

	got, err = w.Render(config.TargetARM64, true)
	require.NoError(t, err)
	assert.Equal(t, "is_official_build=true\ntarget_cpu=\"arm64\"\n\nchrome_pgo_phase=0\n", got)

	out := filepath.Join(dir, "out", "Default")
	path, err := w.Write(out, config.TargetX86, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, ArgsFile), path)
	assert.Contains(t, testutil.ReadFile(t, path), `target_cpu="x86"`)

	_, err = GNArgsWriter{CommonFlags: filepath.Join(dir, "missing"), WindowsFlags: windows}.Render(config.TargetX64, false)
	require.Error(t, err)
}

func TestGNCommands(t *testing.T) {
	runner := &fakeRunner{}
	g := GN{Python: Python{Runner: runner}, Source: "/src", OutDir: "/src/out/Default"}
	env := []string{"PATH=/bin"}

	require.NoError(t, g.Bootstrap(t.Context(), env))
	require.NoError(t, g.Gen(t.Context(), env))
	require.Len(t, runner.calls, 2)

	boot := runner.calls[0].cmd
	assert.Equal(t, "python3", boot.Name)
	assert.Equal(t, []string{filepath.Join("tools", "gn", "bootstrap", "bootstrap.py"), "-o", "/src/out/Default/gn", "--skip-generate-buildfiles"}, boot.Args)
	assert.Equal(t, "/src", boot.Dir)

	gen := runner.calls[1].cmd
	assert.Equal(t, "/src/out/Default/gn", gen.Name)
	assert.Equal(t, []string{"gen", "/src/out/Default", "--fail-on-unused-args"}, gen.Args)
	assert.Equal(t, env, gen.Env)
}

func TestLinkBuildtools(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(src, "out", "Default")
	g := GN{Source: src, OutDir: out}
	link := filepath.Join(src, "buildtools", "linux64", "gn")

	require.NoError(t, g.LinkBuildtools())
	_, err := os.Lstat(link)
	assert.True(t, os.IsNotExist(err), "no link without a bootstrapped binary")

	testutil.WriteFile(t, g.Binary(), "#!/bin/sh\n")
	require.NoError(t, g.LinkBuildtools())
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, g.Binary(), target)

	// Relinking replaces a stale link.
	require.NoError(t, g.LinkBuildtools())

	// A real file is left alone.
	require.NoError(t, os.Remove(link))
	testutil.WriteFile(t, link, "vendored")
	require.NoError(t, g.LinkBuildtools())
	assert.Equal(t, "vendored", testutil.ReadFile(t, link))
}

func TestLinkThirdParty(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "third_party"), 0o755))

	require.NoError(t, LinkThirdParty(src, filepath.Join(src, "out", "Default")))
	_, err := os.Lstat(filepath.Join(src, "third_party"))
	require.NoError(t, err)

	split := filepath.Join(root, "disk2")
	require.NoError(t, os.MkdirAll(filepath.Join(split, "out", "Default"), 0o755))
	require.NoError(t, LinkThirdParty(src, filepath.Join(split, "out", "Default")))
	target, err := os.Readlink(filepath.Join(split, "third_party"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(src, "third_party"), target)

	// Idempotent.
	require.NoError(t, LinkThirdParty(src, filepath.Join(split, "out", "Default")))
}

func TestNinjaCommand(t *testing.T) {
	runner := &fakeRunner{}
	n := Ninja{
		Runner:    runner,
		Source:    "/src",
		OutDir:    "/src/out/Default",
		Jobs:      8,
		Targets:   []string{"chrome", "chromedriver", "mini_installer"},
		Timeout:   time.Hour,
		Grace:     10 * time.Second,
		Heartbeat: 10 * time.Millisecond,
	}

	require.NoError(t, n.Build(t.Context(), []string{"PATH=/bin"}))
	require.Len(t, runner.calls, 1)
	c := runner.calls[0]
	assert.Equal(t, "/src/third_party/ninja/ninja", c.cmd.Name)
	assert.Equal(t, []string{"-j", "8", "-C", "/src/out/Default", "chrome", "chromedriver", "mini_installer"}, c.cmd.Args)
	assert.Equal(t, "/src", c.cmd.Dir)
	assert.Equal(t, time.Hour, c.timeout)
	assert.Equal(t, 10*time.Second, c.grace)

	n.Jobs = 0
	assert.Equal(t, []string{"-C", "/src/out/Default", "chrome", "chromedriver", "mini_installer"}, n.Command(nil).Args)
}

func TestHeartbeatStops(t *testing.T) {
	stop := startHeartbeat(5*time.Millisecond, "test")
	time.Sleep(20 * time.Millisecond)
	stop()
	startHeartbeat(0, "disabled")()
}
