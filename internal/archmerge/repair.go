package archmerge

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// HostLibraryPatterns are the shared libraries whose top-level copy must match the host.
var HostLibraryPatterns = []string{"libLLVM*.so*", "libstd*.so*", "librustc_driver*.so*"}

// RepairAction is what RepairHostLibraries did for one library.
type RepairAction string

const (
	RepairKept      RepairAction = "kept"
	RepairReplaced  RepairAction = "replaced"
	RepairInstalled RepairAction = "installed"
)

// Repair records the outcome for one library name.
type Repair struct {
	Name   string
	Action RepairAction
}

// RepairHostLibraries makes every architecture-sensitive library in libDir match arch, taking
// replacements from lib/rustlib/<triple>/lib. A missing nested directory is logged and
// leaves libDir untouched.
func RepairHostLibraries(libDir string, arch Arch) ([]Repair, error) {
	nested := filepath.Join(libDir, "rustlib", arch.Triple(), "lib")
	if info, err := os.Stat(nested); err != nil || !info.IsDir() {
		slog.Warn("Host rustlib directory not found, skipping library repair", logfields.Path(nested), logfields.Arch(arch.String()))
		return nil, nil
	}
	slog.Info("Repairing top-level libraries for host", logfields.Arch(arch.String()), logfields.Path(libDir))

	var repairs []Repair
	seen := make(map[string]bool)
	for _, pattern := range HostLibraryPatterns {
		matches, err := filepath.Glob(filepath.Join(nested, pattern))
		if err != nil {
			return repairs, err
		}
		slices.Sort(matches)
		for _, src := range matches {
			name := filepath.Base(src)
			if seen[name] {
				continue
			}
			seen[name] = true
			r, err := repairOne(src, filepath.Join(libDir, name), arch)
			if err != nil {
				return repairs, mergeError(err, src)
			}
			repairs = append(repairs, r)
		}
	}
	return repairs, nil
}

func repairOne(src, dst string, arch Arch) (Repair, error) {
	r := Repair{Name: filepath.Base(dst), Action: RepairInstalled}
	_, err := os.Lstat(dst)
	switch {
	case err == nil:
		ok, sigErr := MatchesArch(dst, arch)
		if sigErr == nil && ok {
			r.Action = RepairKept
			return r, nil
		}
		if sigErr != nil {
			slog.Warn("Cannot read library signature, replacing", logfields.File(r.Name), logfields.Error(sigErr))
		} else {
			found, _ := Signature(dst)
			slog.Warn("Library architecture mismatch, replacing", logfields.File(r.Name),
				logfields.Expected(arch.Machine().String()), logfields.Actual(found.String()))
		}
		r.Action = RepairReplaced
	case !errors.Is(err, fs.ErrNotExist):
		return r, err
	}

	info, err := os.Lstat(src)
	if err != nil {
		return r, err
	}
	if err := mergeEntry(src, dst, info.Mode().Type()); err != nil {
		return r, err
	}
	slog.Info("Installed host library", logfields.File(r.Name), slog.String("action", string(r.Action)))
	return r, nil
}
