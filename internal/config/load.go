package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// CurrentVersion is the only configuration version understood by this build.
const CurrentVersion = "1"

// Load reads configPath, expands ${VAR} references, applies defaults and validates the result.
// .env files next to the config file are loaded first; variables already set in the environment win.
func Load(configPath string) (*Config, error) {
	if loaded, err := loadEnvFiles(filepath.Dir(configPath)); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load env file").
			WithCode(ferrors.CodeConfiguration).
			Fatal().
			Build()
	} else if len(loaded) > 0 {
		slog.Debug("Loaded environment files", slog.Any("files", loaded))
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ferrors.Configuration("configuration file not found").
			WithContext("path", configPath).
			Build()
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithCode(ferrors.CodeConfiguration).
			WithContext("path", configPath).
			Fatal().
			Build()
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config file").
			WithCode(ferrors.CodeConfiguration).
			WithContext("path", configPath).
			Fatal().
			Build()
	}
	if cfg.Paths.Root == "" {
		cfg.Paths.Root = filepath.Dir(configPath)
	}
	return finish(&cfg)
}

// Default returns the configuration used when no config file is present.
func Default(root string) (*Config, error) {
	cfg := &Config{Paths: PathsConfig{Root: root}}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	if err := NewDefaultApplier().ApplyDefaults(cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to apply defaults").
			WithCode(ferrors.CodeConfiguration).
			Fatal().
			Build()
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Version: CurrentVersion,
		Target:  TargetConfig{Arch: TargetX64},
		Download: DownloadConfig{
			MaxAttempts:       3,
			RetryBackoff:      RetryBackoffExponential,
			RetryInitialDelay: "1s",
			RetryMaxDelay:     "60s",
		},
		Toolchain: ToolchainConfig{
			Manifest: "win_toolchain.yaml",
			Unpacker: UnpackerTar,
			GitHub: GitHubConfig{
				Repository: "your-org/win-toolchain",
				Token:      "${GITHUB_TOKEN}",
			},
		},
		Build: BuildConfig{
			Timeout:   "6h",
			KillGrace: "10s",
		},
		Metrics: MetricsConfig{Enabled: true, Textfile: "build/crossbuild.prom"},
		History: HistoryConfig{Enabled: true},
		Logging: LoggingConfig{Level: LogLevelInfo},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
