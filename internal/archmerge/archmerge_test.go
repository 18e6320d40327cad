package archmerge

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/testutil"
)

// writeELF writes a header-only ELF file for machine m.
func writeELF(t *testing.T, path string, m elf.Machine, tag string) {
	t.Helper()
	var hdr elf.Header64
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Type = uint16(elf.ET_DYN)
	hdr.Machine = uint16(m)
	hdr.Version = uint32(elf.EV_CURRENT)
	hdr.Ehsize = 64

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &hdr))
	buf.WriteString(tag)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o755))
}

func names(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestArchTable(t *testing.T) {
	a, err := ParseArch(" AArch64 ")
	require.NoError(t, err)
	assert.Equal(t, AArch64, a)
	assert.Equal(t, "aarch64-unknown-linux-gnu", a.Triple())
	assert.Equal(t, "arm", a.SourceSuffix())
	assert.Equal(t, elf.EM_AARCH64, a.Machine())
	assert.Equal(t, "aarch64-pc-windows-msvc", a.WindowsTarget())
	assert.Equal(t, "i686", I686.Subdir())
	assert.Equal(t, elf.EM_386, I686.Machine())

	_, err = ParseArch("riscv64")
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeArchitectureUnresolvable))
}

func TestMergeArchitectureSymlinkPolicy(t *testing.T) {
	src := filepath.Join(t.TempDir(), "rustc")
	outside := filepath.Join(t.TempDir(), "opt", "x")
	testutil.WriteFile(t, filepath.Join(src, "lib", "libfoo.so.1"), "foo")
	require.NoError(t, os.Symlink("libfoo.so.1", filepath.Join(src, "lib", "libfoo.so")))
	testutil.WriteFile(t, filepath.Join(outside, "libbar.so.2"), "bar")
	require.NoError(t, os.Symlink(filepath.Join(outside, "libbar.so.2"), filepath.Join(src, "lib", "libbar.so")))

	root := t.TempDir()
	merged, err := MergeArchitecture(src, root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib"}, merged)

	testutil.NewTree(t, root).
		Symlink("lib/libfoo.so", "libfoo.so.1").
		File("lib/libbar.so").
		Contains("lib/libbar.so", "bar")
}

func TestMergeArchitectureMergesInsteadOfReplacing(t *testing.T) {
	src := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, "bin", "rustc"), "new rustc")
	testutil.WriteFile(t, filepath.Join(src, "lib", "rustlib", "etc", "gdb.py"), "gdb")

	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "bin", "rustc"), "old rustc")
	testutil.WriteFile(t, filepath.Join(root, "bin", "cargo"), "cargo")
	testutil.WriteFile(t, filepath.Join(root, "lib", "rustlib", "keep.txt"), "keep")

	merged, err := MergeArchitecture(src, root, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"bin", "lib"}, merged)

	assert.Equal(t, "new rustc", testutil.ReadFile(t, filepath.Join(root, "bin", "rustc")))
	assert.Equal(t, "cargo", testutil.ReadFile(t, filepath.Join(root, "bin", "cargo")))
	assert.Equal(t, "keep", testutil.ReadFile(t, filepath.Join(root, "lib", "rustlib", "keep.txt")))
	assert.Equal(t, "gdb", testutil.ReadFile(t, filepath.Join(root, "lib", "rustlib", "etc", "gdb.py")))
}

func TestMergeArchitectureNonHostDoesNotWriteThroughLinks(t *testing.T) {
	src := t.TempDir()
	testutil.WriteFile(t, filepath.Join(src, "bin", "rustc"), "i686 rustc")

	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "bin", "rustc"), "host rustc")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "i686"), 0o755))
	require.NoError(t, os.Symlink("../bin", filepath.Join(root, "i686", "bin")))

	_, err := MergeArchitecture(src, filepath.Join(root, "i686"), false)
	require.NoError(t, err)

	info, err := os.Lstat(filepath.Join(root, "i686", "bin"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "i686 rustc", testutil.ReadFile(t, filepath.Join(root, "i686", "bin", "rustc")))
	assert.Equal(t, "host rustc", testutil.ReadFile(t, filepath.Join(root, "bin", "rustc")))
}

func TestRepairHostLibraries(t *testing.T) {
	lib := t.TempDir()
	nested := filepath.Join(lib, "rustlib", X86_64.Triple(), "lib")

	writeELF(t, filepath.Join(nested, "libstd-abc.so"), elf.EM_X86_64, "std-x64")
	writeELF(t, filepath.Join(nested, "libLLVM-17.so"), elf.EM_X86_64, "llvm-x64-nested")
	writeELF(t, filepath.Join(nested, "librustc_driver-1.so"), elf.EM_X86_64, "driver-x64")
	require.NoError(t, os.Symlink("libLLVM-17.so", filepath.Join(nested, "libLLVM.so.17")))

	writeELF(t, filepath.Join(lib, "libstd-abc.so"), elf.EM_AARCH64, "std-arm")
	writeELF(t, filepath.Join(lib, "libLLVM-17.so"), elf.EM_X86_64, "llvm-x64-top")

	repairs, err := RepairHostLibraries(lib, X86_64)
	require.NoError(t, err)

	got := make(map[string]RepairAction)
	for _, r := range repairs {
		got[r.Name] = r.Action
	}
	assert.Equal(t, map[string]RepairAction{
		"libLLVM-17.so":        RepairKept,
		"libLLVM.so.17":        RepairInstalled,
		"libstd-abc.so":        RepairReplaced,
		"librustc_driver-1.so": RepairInstalled,
	}, got)

	for _, name := range []string{"libLLVM-17.so", "libLLVM.so.17", "libstd-abc.so", "librustc_driver-1.so"} {
		ok, err := MatchesArch(filepath.Join(lib, name), X86_64)
		require.NoError(t, err, name)
		assert.True(t, ok, name)
	}
	assert.Contains(t, testutil.ReadFile(t, filepath.Join(lib, "libLLVM-17.so")), "llvm-x64-top")
	target, err := os.Readlink(filepath.Join(lib, "libLLVM.so.17"))
	require.NoError(t, err)
	assert.Equal(t, "libLLVM-17.so", target)
}

func TestRepairHostLibrariesReplacesUnreadable(t *testing.T) {
	lib := t.TempDir()
	writeELF(t, filepath.Join(lib, "rustlib", I686.Triple(), "lib", "libstd-1.so"), elf.EM_386, "std-i686")
	testutil.WriteFile(t, filepath.Join(lib, "libstd-1.so"), "not an elf file")

	repairs, err := RepairHostLibraries(lib, I686)
	require.NoError(t, err)
	require.Len(t, repairs, 1)
	assert.Equal(t, RepairReplaced, repairs[0].Action)
	ok, err := MatchesArch(filepath.Join(lib, "libstd-1.so"), I686)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepairHostLibrariesWithoutNestedDir(t *testing.T) {
	lib := t.TempDir()
	testutil.WriteFile(t, filepath.Join(lib, "libstd-1.so"), "x")
	repairs, err := RepairHostLibraries(lib, X86_64)
	require.NoError(t, err)
	assert.Empty(t, repairs)
	assert.Equal(t, "x", testutil.ReadFile(t, filepath.Join(lib, "libstd-1.so")))
}

func TestLinkHostSubdirectory(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, filepath.Join(root, "bin", "rustc"), "rustc")
	testutil.WriteFile(t, filepath.Join(root, "lib", "libstd.so"), "std")
	testutil.WriteFile(t, filepath.Join(root, "x86_64", "bin", "stale"), "stale")

	require.NoError(t, LinkHostSubdirectory(root, X86_64))
	require.NoError(t, LinkHostSubdirectory(root, X86_64))

	tree := testutil.NewTree(t, root).Missing("x86_64/bin/stale")
	for _, sub := range Subtrees {
		tree.Symlink(filepath.Join("x86_64", sub), filepath.Join("..", sub))
		assert.Equal(t, names(t, filepath.Join(root, sub)), names(t, filepath.Join(root, "x86_64", sub)))
	}
}

// toolchainSource lays out a downloaded per-architecture toolchain.
func toolchainSource(t *testing.T, dir string, a Arch) {
	t.Helper()
	rustc := filepath.Join(dir, "rustc")
	writeELF(t, filepath.Join(rustc, "bin", "rustc"), a.Machine(), "rustc-"+a.String())
	writeELF(t, filepath.Join(rustc, "lib", "librustc_driver-1.so"), a.Machine(), "driver-"+a.String())
	writeELF(t, filepath.Join(rustc, "lib", "rustlib", a.Triple(), "lib", "librustc_driver-1.so"), a.Machine(), "driver-"+a.String())
}

func TestMergerRun(t *testing.T) {
	src := t.TempDir()
	root := filepath.Join(t.TempDir(), "rust-toolchain")
	toolchainSource(t, filepath.Join(src, "x64"), X86_64)
	toolchainSource(t, filepath.Join(src, "x86"), I686)
	// aarch64 is missing its lib tree and is skipped.
	testutil.WriteFile(t, filepath.Join(src, "arm", "rustc", "bin", "rustc"), "arm")

	var probed string
	m := NewMerger(root, []Component{
		{Arch: X86_64, Source: filepath.Join(src, "x64"), Host: true},
		{Arch: I686, Source: filepath.Join(src, "x86")},
		{Arch: AArch64, Source: filepath.Join(src, "arm")},
	}, WithVersionProbe(func(_ context.Context, rustc string) (string, error) {
		probed = rustc
		return "rustc 1.80.0 (051478957 2024-07-21)\n", nil
	}))

	res, err := m.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, X86_64, res.Host)
	assert.Equal(t, []Arch{X86_64, I686}, res.Processed)
	assert.Equal(t, []Arch{AArch64}, res.Skipped)
	assert.Equal(t, filepath.Join(root, "bin", "rustc"), probed)
	assert.Equal(t, "rustc 1.80.0 (051478957 2024-07-21)\n", testutil.ReadFile(t, filepath.Join(root, VersionFile)))
	assert.True(t, Installed(root))

	for _, a := range res.Processed {
		ok, err := MatchesArch(filepath.Join(root, a.Subdir(), "bin", "rustc"), a)
		require.NoError(t, err, a.String())
		assert.True(t, ok, a.String())
		assert.NotEmpty(t, names(t, filepath.Join(root, a.Subdir(), "lib")))
	}
	ok, err := MatchesArch(filepath.Join(root, "lib", "librustc_driver-1.so"), X86_64)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoDirExists(t, filepath.Join(root, "aarch64"))
}

func TestMergerRunVersionFallbacks(t *testing.T) {
	t.Run("probe fails", func(t *testing.T) {
		src := t.TempDir()
		root := t.TempDir()
		toolchainSource(t, src, I686)
		m := NewMerger(root, []Component{{Arch: I686, Source: src, Host: true}},
			WithVersionProbe(func(context.Context, string) (string, error) { return "", errors.New("exec format error") }))
		res, err := m.Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "rustc unknown version (host: i686, processed: i686)\n", res.Version)
	})
	t.Run("rustc absent", func(t *testing.T) {
		src := t.TempDir()
		root := t.TempDir()
		testutil.WriteFile(t, filepath.Join(src, "rustc", "bin", "cargo"), "cargo")
		testutil.WriteFile(t, filepath.Join(src, "rustc", "lib", "libx.so"), "x")
		m := NewMerger(root, []Component{{Arch: X86_64, Source: src, Host: true}})
		res, err := m.Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "rustc not installed (processed architectures: x86_64)\n", res.Version)
	})
}

func TestMergerRunHostResolution(t *testing.T) {
	src := t.TempDir()
	toolchainSource(t, src, X86_64)

	_, err := NewMerger(t.TempDir(), []Component{{Arch: X86_64, Source: src}}).Run(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeArchitectureUnresolvable))

	_, err = NewMerger(t.TempDir(), []Component{
		{Arch: X86_64, Source: src, Host: true},
		{Arch: I686, Source: src, Host: true},
	}).Run(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeArchitectureUnresolvable))
	assert.Contains(t, err.Error(), "x86_64, i686")
}

func TestMergerRunNothingProcessed(t *testing.T) {
	m := NewMerger(t.TempDir(), []Component{{Arch: X86_64, Source: filepath.Join(t.TempDir(), "absent"), Host: true}})
	_, err := m.Run(t.Context())
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryToolchain, ce.Category())
}

func TestPlan(t *testing.T) {
	root, comps, err := Plan("/src", config.RustConfig{
		Destination:   "third_party/rust-toolchain",
		SourcePrefix:  "third_party/rust-toolchain-",
		Architectures: []string{"x86_64", "aarch64"},
		Host:          "aarch64",
	})
	require.NoError(t, err)
	assert.Equal(t, "/src/third_party/rust-toolchain", root)
	assert.Equal(t, []Component{
		{Arch: X86_64, Source: "/src/third_party/rust-toolchain-x64"},
		{Arch: AArch64, Source: "/src/third_party/rust-toolchain-arm", Host: true},
	}, comps)

	_, _, err = Plan("/src", config.RustConfig{Architectures: []string{"mips"}})
	require.Error(t, err)
}
