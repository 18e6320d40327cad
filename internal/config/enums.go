package config

import (
	"strings"

	"git.home.luguber.info/inful/crossbuild/internal/foundation/normalization"
)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffs = normalization.New(map[RetryBackoffMode][]string{
	RetryBackoffFixed:       nil,
	RetryBackoffLinear:      nil,
	RetryBackoffExponential: {"exp"},
})

// NormalizeRetryBackoff converts arbitrary user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryBackoffs.Normalize(raw)
}

// TargetArch is the Windows architecture being built.
type TargetArch string

const (
	TargetX64   TargetArch = "x64"
	TargetX86   TargetArch = "x86"
	TargetARM64 TargetArch = "arm64"
)

var targetArchs = normalization.New(map[TargetArch][]string{
	TargetX64:   {"amd64", "x86_64", "win64"},
	TargetX86:   {"386", "i386", "i686", "win32"},
	TargetARM64: {"aarch64", "win-arm64"},
})

// NormalizeTargetArch accepts the canonical names plus common aliases.
func NormalizeTargetArch(raw string) TargetArch {
	return targetArchs.Normalize(raw)
}

// UnpackerMode selects how split archives are extracted.
type UnpackerMode string

const (
	UnpackerTar       UnpackerMode = "tar"
	UnpackerInProcess UnpackerMode = "inprocess"
)

var unpackerModes = normalization.New(map[UnpackerMode][]string{
	UnpackerTar:       {"command", "external"},
	UnpackerInProcess: {"in-process", "builtin"},
})

// NormalizeUnpackerMode returns empty string for unknown input.
func NormalizeUnpackerMode(raw string) UnpackerMode {
	return unpackerModes.Normalize(raw)
}

// Compression names the stream compression of a split archive.
type Compression string

const (
	CompressionAuto Compression = "auto"
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

var compressions = normalization.New(map[Compression][]string{
	CompressionAuto: nil,
	CompressionNone: {"tar"},
	CompressionGzip: {"gz", "tgz"},
	CompressionZstd: {"zst"},
	CompressionLZ4:  nil,
})

// NormalizeCompression returns empty string for unknown input. Unset means auto.
func NormalizeCompression(raw string) Compression {
	if strings.TrimSpace(raw) == "" {
		return CompressionAuto
	}
	return compressions.Normalize(raw)
}

// CompressionFromName guesses the compression from an archive file name.
func CompressionFromName(name string) Compression {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, ".tar.gz"), strings.Contains(lower, ".tgz"):
		return CompressionGzip
	case strings.Contains(lower, ".tar.zst"):
		return CompressionZstd
	case strings.Contains(lower, ".tar.lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// LogLevel is the configured slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevels = normalization.New(map[LogLevel][]string{
	LogLevelDebug: nil,
	LogLevelInfo:  nil,
	LogLevelWarn:  {"warning"},
	LogLevelError: nil,
})

// NormalizeLogLevel returns empty string for unknown input.
func NormalizeLogLevel(raw string) LogLevel {
	return logLevels.Normalize(raw)
}
