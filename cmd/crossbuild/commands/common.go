package commands

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// DefaultConfigPath is used when -c is not given. It may be absent.
const DefaultConfigPath = "crossbuild.yaml"

// Global is passed to every subcommand.
type Global struct {
	Out io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"crossbuild.yaml" env:"CROSSBUILD_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build          BuildCmd          `cmd:"" help:"Cross-compile ungoogled-chromium for Windows"`
	FetchToolchain FetchToolchainCmd `cmd:"" name:"fetch-toolchain" help:"Download, merge and verify the Windows toolchain bundle"`
	MergeRust      MergeRustCmd      `cmd:"" name:"merge-rust" help:"Install the multi-architecture rust toolchain into the source tree"`
	Digest         DigestCmd         `cmd:"" help:"Print or verify the digest of a file"`
	Reset          ResetCmd          `cmd:"" help:"Delete step markers so the next CI run repeats those steps"`
	History        HistoryCmd        `cmd:"" help:"Show the steps of a recorded run"`
	Init           InitCmd           `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	setLogLevel(parseLogLevel(c.Verbose, ""))
	return nil
}

// parseLogLevel gives -v precedence over CROSSBUILD_LOG_LEVEL, which wins
// over the configured level.
func parseLogLevel(verbose bool, configured config.LogLevel) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	level := config.NormalizeLogLevel(os.Getenv("CROSSBUILD_LOG_LEVEL"))
	if level == "" {
		level = configured
	}
	switch level {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setLogLevel(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// LoadConfig reads the configuration file. A missing default file yields the
// defaults rooted at the working directory.
func (c *CLI) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		if _, statErr := os.Stat(c.Config); c.Config == DefaultConfigPath && errors.Is(statErr, fs.ErrNotExist) {
			slog.Debug("No configuration file, using defaults", logfields.Path(c.Config))
			cfg, err = config.Default(".")
		}
		if err != nil {
			return nil, err
		}
	}
	setLogLevel(parseLogLevel(c.Verbose, cfg.Logging.Level))
	return cfg, nil
}
