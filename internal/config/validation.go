package config

import (
	"fmt"
	"slices"
	"time"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

var (
	knownAlgorithms = []string{"sha1", "sha256", "sha512", "blake3"}
	knownRustArchs  = []string{"x86_64", "i686", "aarch64"}
)

// ValidateConfig validates the complete configuration structure.
func ValidateConfig(cfg *Config) error {
	return newConfigurationValidator(cfg).validate()
}

type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	checks := []func() error{
		cv.validateVersion,
		cv.validateTarget,
		cv.validateDownload,
		cv.validateToolchain,
		cv.validateRust,
		cv.validateBuild,
		cv.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func invalid(field string, value any, reason string) error {
	return ferrors.Configuration(fmt.Sprintf("invalid %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		Build()
}

func (cv *configurationValidator) validateVersion() error {
	if cv.config.Version != CurrentVersion {
		return invalid("version", cv.config.Version, "unsupported configuration version (expected "+CurrentVersion+")")
	}
	return nil
}

func (cv *configurationValidator) validateTarget() error {
	if _, err := targetArchs.Parse(string(cv.config.Target.Arch)); err != nil {
		return invalid("target.arch", cv.config.Target.Arch, err.Error())
	}
	return nil
}

func (cv *configurationValidator) validateDownload() error {
	d := cv.config.Download
	if d.MaxAttempts < 1 {
		return invalid("download.max_attempts", d.MaxAttempts, "must be at least 1")
	}
	if _, err := retryBackoffs.Parse(string(d.RetryBackoff)); err != nil {
		return invalid("download.retry_backoff", d.RetryBackoff, err.Error())
	}
	for field, raw := range map[string]string{
		"download.retry_initial_delay": d.RetryInitialDelay,
		"download.retry_max_delay":     d.RetryMaxDelay,
		"download.timeout":             d.Timeout,
	} {
		if err := validateDuration(field, raw); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validateToolchain() error {
	t := cv.config.Toolchain
	if !slices.Contains(knownAlgorithms, t.Algorithm) {
		return invalid("toolchain.algorithm", t.Algorithm, "unsupported digest algorithm")
	}
	if !slices.Contains(knownAlgorithms, t.PartAlgorithm) {
		return invalid("toolchain.part_algorithm", t.PartAlgorithm, "unsupported digest algorithm")
	}
	if _, err := unpackerModes.Parse(string(t.Unpacker)); err != nil {
		return invalid("toolchain.unpacker", t.Unpacker, err.Error())
	}
	if t.Compression != "" {
		if _, err := compressions.Parse(string(t.Compression)); err != nil {
			return invalid("toolchain.compression", t.Compression, err.Error())
		}
	}
	return nil
}

func (cv *configurationValidator) validateRust() error {
	seen := map[string]bool{}
	for _, a := range cv.config.Rust.Architectures {
		if !slices.Contains(knownRustArchs, a) {
			return invalid("rust.architectures", a, "unknown architecture")
		}
		if seen[a] {
			return invalid("rust.architectures", a, "listed more than once")
		}
		seen[a] = true
	}
	return nil
}

func (cv *configurationValidator) validateBuild() error {
	b := cv.config.Build
	if b.Jobs < 0 {
		return invalid("build.jobs", b.Jobs, "cannot be negative")
	}
	if len(b.FlagsFiles) != 2 {
		return invalid("build.flags_files", b.FlagsFiles, "must name the common and the Windows flags file")
	}
	for field, raw := range map[string]string{
		"build.timeout":            b.Timeout,
		"build.kill_grace":         b.KillGrace,
		"build.heartbeat_interval": b.HeartbeatInterval,
	} {
		if err := validateDuration(field, raw); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validateLogging() error {
	if _, err := logLevels.Parse(string(cv.config.Logging.Level)); err != nil {
		return invalid("logging.level", cv.config.Logging.Level, err.Error())
	}
	return nil
}

func validateDuration(field, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return invalid(field, raw, err.Error())
	}
	if d < 0 {
		return invalid(field, raw, "cannot be negative")
	}
	return nil
}

// Duration parses a validated duration field. Invalid input yields zero.
func Duration(raw string) time.Duration {
	d, _ := time.ParseDuration(raw)
	return d
}
