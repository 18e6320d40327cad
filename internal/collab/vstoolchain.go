package collab

import (
	"os"
	"regexp"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

var (
	toolchainHashPattern = regexp.MustCompile(`TOOLCHAIN_HASH\s*=\s*['"]([a-f0-9]+)['"]`)
	sdkVersionPattern    = regexp.MustCompile(`SDK_VERSION\s*=\s*['"]([0-9.]+)['"]`)
)

// VSToolchainInfo identifies the Visual Studio toolchain a checkout expects.
type VSToolchainInfo struct {
	Hash       string
	SDKVersion string
}

// ReadVSToolchainInfo extracts TOOLCHAIN_HASH and SDK_VERSION from build/vs_toolchain.py.
func ReadVSToolchainInfo(path string) (VSToolchainInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return VSToolchainInfo{}, ferrors.WrapError(err, ferrors.CategoryConfig, "vs_toolchain.py not found").
			WithCode(ferrors.CodeConfiguration).
			WithContext("path", path).
			Build()
	}
	var info VSToolchainInfo
	for _, f := range []struct {
		name    string
		pattern *regexp.Regexp
		dst     *string
	}{
		{"TOOLCHAIN_HASH", toolchainHashPattern, &info.Hash},
		{"SDK_VERSION", sdkVersionPattern, &info.SDKVersion},
	} {
		m := f.pattern.FindSubmatch(data)
		if m == nil {
			return VSToolchainInfo{}, ferrors.Configuration("could not extract toolchain variable").
				WithContext("path", path).
				WithContext("variable", f.name).
				Build()
		}
		*f.dst = string(m[1])
	}
	return info, nil
}
