package collab

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/process"
)

// Setup runs the helper scripts that ship in the Chromium source tree.
type Setup struct {
	Python Python
	Source string
}

// BuildBindgen builds the bindgen tool used by the rust build.
func (s Setup) BuildBindgen(ctx context.Context, env []string) error {
	return s.Python.Run(ctx, s.Source, env, filepath.Join(s.Source, "tools", "rust", "build_bindgen.py"), "--skip-test")
}

// InstallSysroot installs the Debian sysroot for the given architecture.
func (s Setup) InstallSysroot(ctx context.Context, env []string, arch string) error {
	return s.Python.Run(ctx, s.Source, env,
		filepath.Join(s.Source, "build", "linux", "sysroot_scripts", "install-sysroot.py"), "--arch="+arch)
}

// UpdateVSToolchain extracts the Visual Studio toolchain. env must carry
// DEPOT_TOOLS_WIN_TOOLCHAIN_BASE_URL and the GYP_MSVS_HASH_ variable.
func (s Setup) UpdateVSToolchain(ctx context.Context, env []string) error {
	return s.Python.Run(ctx, s.Source, env, filepath.Join(s.Source, "build", "vs_toolchain.py"), "update", "--force")
}

// ClangResourceDir asks the compiler for its resource directory.
func (s Setup) ClangResourceDir(ctx context.Context, env []string, cc string) (string, error) {
	return s.Python.Runner.Output(ctx, process.Command{Name: cc, Args: []string{"--print-resource-dir"}, Env: env})
}

// LinkSevenZip points third_party/lzma_sdk/bin/host_platform/7za at 7zz,
// which the installer archive step invokes under the old name.
func LinkSevenZip(source string) error {
	dir := filepath.Join(source, "third_party", "lzma_sdk", "bin", "host_platform")
	if _, err := os.Stat(filepath.Join(dir, "7zz")); err != nil {
		slog.Warn("7zz binary not found, skipping symlink creation", logfields.Path(dir))
		return nil
	}
	link := filepath.Join(dir, "7za")
	if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink("7zz", link)
}

// EmptyDir replaces an existing directory with an empty one. A missing
// directory is left missing.
func EmptyDir(dir string) error {
	if _, err := os.Lstat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.Mkdir(dir, 0o755)
}
