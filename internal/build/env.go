package build

import (
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/crossbuild/internal/pipeline"
)

const ldLibraryPath = "LD_LIBRARY_PATH"

// LLVMBin is the clang toolchain shipped with the source tree.
func LLVMBin(source string) string {
	return filepath.Join(source, "third_party", "llvm-build", "Release+Asserts", "bin")
}

// RustEnv puts the merged rust toolchain's libraries first on the loader path.
func RustEnv(rustRoot string) pipeline.Contribution {
	return pipeline.Contribution{}.PrependPath(ldLibraryPath, filepath.Join(rustRoot, "lib"))
}

// VSToolchainEnv points vs_toolchain.py at the locally assembled archive.
func VSToolchainEnv(toolchainDir, hash, zipFilename string) pipeline.Contribution {
	return pipeline.Contribution{}.
		Set("DEPOT_TOOLS_WIN_TOOLCHAIN_BASE_URL", toolchainDir).
		Set("GYP_MSVS_HASH_"+hash, zipFilename)
}

// LLVMEnv selects the bundled clang and libc++ for host tools built during
// the compile.
func LLVMEnv(source string) pipeline.Contribution {
	bin := LLVMBin(source)
	base := filepath.Dir(bin)
	lib := filepath.Join(base, "lib")
	libHost := lib + "/x86_64-unknown-linux-gnu"

	ldflags := strings.Join([]string{
		"-L" + lib,
		"-L" + libHost,
		"-stdlib=libc++",
		"-Wl,-rpath," + lib,
		"-Wl,-rpath," + libHost,
		"-Wl,--whole-archive -lc++abi -Wl,--no-whole-archive",
		"-lpthread -ldl",
	}, " ")

	return pipeline.Contribution{}.
		PrependPath(ldLibraryPath, libHost).
		PrependPath(ldLibraryPath, lib).
		Set("CC", filepath.Join(bin, "clang")).
		Set("CXX", filepath.Join(bin, "clang++")).
		Set("AR", filepath.Join(bin, "llvm-ar")).
		Set("NM", filepath.Join(bin, "llvm-nm")).
		Set("LD", filepath.Join(bin, "llvm-link")).
		Set("LLVM_BIN", bin).
		Set("LLVM_BASE", base).
		Set("CXXFLAGS", "-I"+base+"/include/c++/v1 -stdlib=libc++").
		Set("LDFLAGS", ldflags).
		AppendPath("PATH", filepath.Join(source, "third_party", "ninja")).
		AppendPath("PATH", bin)
}

// ClangFlagsEnv appends the resource dir and tool search path to the C and
// C++ flag variables.
func ClangFlagsEnv(resourceDir, clangBin string) pipeline.Contribution {
	flags := []string{"-resource-dir=" + resourceDir, "-B" + clangBin}
	return pipeline.Contribution{}.
		AppendFlags("CXXFLAGS", flags...).
		AppendFlags("CPPFLAGS", flags...).
		AppendFlags("CFLAGS", flags...)
}
