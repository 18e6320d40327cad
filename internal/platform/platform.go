// Package platform names the Linux build host and the Windows target in the
// vocabularies the Chromium scripts expect.
package platform

import (
	"runtime"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

var sysrootArch = map[config.TargetArch]string{
	config.TargetX64:   "amd64",
	config.TargetX86:   "i386",
	config.TargetARM64: "arm64",
}

var windowsPlatform = map[config.TargetArch]string{
	config.TargetX64:   "win64",
	config.TargetX86:   "win32",
	config.TargetARM64: "win-arm64",
}

// Platform pairs the build host with the Windows target.
type Platform struct {
	Host   config.TargetArch
	Target config.TargetArch
}

// Detect describes the running host building for target.
func Detect(target config.TargetArch) (Platform, error) {
	return New(runtime.GOARCH, target)
}

// New resolves goarch (a GOARCH value) and target.
func New(goarch string, target config.TargetArch) (Platform, error) {
	host := config.NormalizeTargetArch(goarch)
	if host == "" {
		return Platform{}, ferrors.ArchitectureUnresolvable("unsupported build host architecture").
			WithContext("goarch", goarch).
			Build()
	}
	t := config.NormalizeTargetArch(string(target))
	if t == "" {
		return Platform{}, ferrors.ArchitectureUnresolvable("unsupported target architecture").
			WithContext("target", string(target)).
			Build()
	}
	return Platform{Host: host, Target: t}, nil
}

// Sysroot is the Debian architecture of the Linux sysroot for the host tools.
func (p Platform) Sysroot() string { return sysrootArch[p.Host] }

// WindowsPlatform is the clone script's platform name for the target.
func (p Platform) WindowsPlatform() string { return windowsPlatform[p.Target] }

// GNCPU is the target_cpu value GN expects.
func (p Platform) GNCPU() string {
	if p.Target == config.TargetX86 {
		return "x86"
	}
	return string(p.Target)
}

// HostRustTriple is the Linux rust triple of the build host.
func (p Platform) HostRustTriple() string {
	switch p.Host {
	case config.TargetX86:
		return "i686-unknown-linux-gnu"
	case config.TargetARM64:
		return "aarch64-unknown-linux-gnu"
	default:
		return "x86_64-unknown-linux-gnu"
	}
}
