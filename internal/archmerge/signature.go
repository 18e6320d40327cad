package archmerge

import (
	"debug/elf"
	"fmt"
)

// Signature reads the ELF machine of the file at path, following symlinks.
func Signature(path string) (elf.Machine, error) {
	f, err := elf.Open(path)
	if err != nil {
		return elf.EM_NONE, fmt.Errorf("read ELF header of %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return f.Machine, nil
}

// MatchesArch reports whether the binary at path was built for a.
func MatchesArch(path string, a Arch) (bool, error) {
	m, err := Signature(path)
	if err != nil {
		return false, err
	}
	return m == a.Machine(), nil
}
