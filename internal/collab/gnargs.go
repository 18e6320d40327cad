package collab

import (
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// ArgsFile is the GN arguments file in the out dir.
const ArgsFile = "args.gn"

// GNArgsWriter assembles args.gn from the shared flags file followed by the
// Windows flags file.
type GNArgsWriter struct {
	CommonFlags  string
	WindowsFlags string
}

// Render returns the args.gn content. The Windows flags are written for x64;
// other targets have every "x64" replaced. Tarball builds disable PGO.
func (w GNArgsWriter) Render(target config.TargetArch, tarball bool) (string, error) {
	common, err := readFlags(w.CommonFlags)
	if err != nil {
		return "", err
	}
	windows, err := readFlags(w.WindowsFlags)
	if err != nil {
		return "", err
	}
	if target != config.TargetX64 {
		windows = strings.ReplaceAll(windows, "x64", string(target))
	}
	if tarball {
		windows += "\nchrome_pgo_phase=0\n"
	}
	return common + "\n" + windows, nil
}

// Write renders args.gn into outDir, creating it.
func (w GNArgsWriter) Write(outDir string, target config.TargetArch, tarball bool) (string, error) {
	content, err := w.Render(target, tarball)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, ArgsFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func readFlags(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read GN flags").
			WithCode(ferrors.CodeConfiguration).
			WithContext("path", path).
			Build()
	}
	return string(data), nil
}
