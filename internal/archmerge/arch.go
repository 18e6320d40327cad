// Package archmerge installs per-architecture rust toolchains into one tree: the host at the
// top level, every other architecture under its own subdirectory.
package archmerge

import (
	"debug/elf"
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// Arch is a supported toolchain architecture.
type Arch int

const (
	X86_64 Arch = iota + 1
	I686
	AArch64
)

type archInfo struct {
	name    string
	triple  string
	source  string // suffix of the per-architecture source directory
	machine elf.Machine
	windows string
}

var archTable = map[Arch]archInfo{
	X86_64:  {name: "x86_64", triple: "x86_64-unknown-linux-gnu", source: "x64", machine: elf.EM_X86_64, windows: "x86_64-pc-windows-msvc"},
	I686:    {name: "i686", triple: "i686-unknown-linux-gnu", source: "x86", machine: elf.EM_386, windows: "i686-pc-windows-msvc"},
	AArch64: {name: "aarch64", triple: "aarch64-unknown-linux-gnu", source: "arm", machine: elf.EM_AARCH64, windows: "aarch64-pc-windows-msvc"},
}

// All lists the architectures in install order.
var All = []Arch{X86_64, I686, AArch64}

// ParseArch accepts the rust architecture names.
func ParseArch(s string) (Arch, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range All {
		if archTable[a].name == s {
			return a, nil
		}
	}
	return 0, ferrors.ArchitectureUnresolvable("unknown architecture").
		WithContext("arch", s).
		Build()
}

func (a Arch) String() string {
	if info, ok := archTable[a]; ok {
		return info.name
	}
	return fmt.Sprintf("Arch(%d)", int(a))
}

// Triple is the linux host triple used under lib/rustlib.
func (a Arch) Triple() string { return archTable[a].triple }

// Subdir is the per-architecture directory name below the install root.
func (a Arch) Subdir() string { return archTable[a].name }

// SourceSuffix names the downloaded toolchain directory (rust-toolchain-<suffix>).
func (a Arch) SourceSuffix() string { return archTable[a].source }

// Machine is the ELF e_machine of binaries built for a.
func (a Arch) Machine() elf.Machine { return archTable[a].machine }

// WindowsTarget is the rust target triple when building for Windows on a.
func (a Arch) WindowsTarget() string { return archTable[a].windows }
