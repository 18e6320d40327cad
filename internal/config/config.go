package config

// Config is the crossbuild configuration file (crossbuild.yaml).
type Config struct {
	Version   string          `yaml:"version"`
	Paths     PathsConfig     `yaml:"paths"`
	Target    TargetConfig    `yaml:"target"`
	Download  DownloadConfig  `yaml:"download"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Rust      RustConfig      `yaml:"rust"`
	Build     BuildConfig     `yaml:"build"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PathsConfig locates the working tree. Relative paths resolve against Root.
type PathsConfig struct {
	Root          string `yaml:"root"`
	Source        string `yaml:"source"`
	DownloadCache string `yaml:"download_cache"`
	State         string `yaml:"state"`
	OutDir        string `yaml:"out_dir"` // relative to Source
	Packaging     string `yaml:"packaging"`
}

// TargetConfig selects the Windows architecture being produced.
type TargetConfig struct {
	Arch    TargetArch `yaml:"arch"`
	Tarball bool       `yaml:"tarball"` // use the release tarball instead of cloning
}

// DownloadConfig controls the retrying downloader.
type DownloadConfig struct {
	MaxAttempts        int              `yaml:"max_attempts"`
	RetryBackoff       RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay  string           `yaml:"retry_initial_delay"`
	RetryMaxDelay      string           `yaml:"retry_max_delay"`
	Timeout            string           `yaml:"timeout"` // per attempt; "0" disables
	UserAgent          string           `yaml:"user_agent"`
	InsecureSkipVerify bool             `yaml:"insecure_skip_verify"`
}

// ToolchainConfig describes where the Windows SDK/MSVC bundle comes from.
type ToolchainConfig struct {
	Manifest      string       `yaml:"manifest"`
	Section       string       `yaml:"section"` // empty: derived from target arch
	Algorithm     string       `yaml:"algorithm"`
	PartAlgorithm string       `yaml:"part_algorithm"`
	Unpacker      UnpackerMode `yaml:"unpacker"`
	Compression   Compression  `yaml:"compression"`
	GitHub        GitHubConfig `yaml:"github"`
}

// GitHubConfig points at a release whose assets carry the split toolchain parts.
type GitHubConfig struct {
	Repository   string `yaml:"repository"` // owner/name
	Tag          string `yaml:"tag"`        // empty: derived from chromium_version
	AssetPattern string `yaml:"asset_pattern"`
	APIBaseURL   string `yaml:"api_base_url"`
	Token        string `yaml:"token"`
}

// RustConfig controls the multi-architecture rust toolchain install.
type RustConfig struct {
	Destination   string   `yaml:"destination"`   // relative to Source
	SourcePrefix  string   `yaml:"source_prefix"` // relative to Source; suffixed with x64|x86|arm
	Architectures []string `yaml:"architectures"`
	Host          string   `yaml:"host"` // empty: detected
}

// BuildConfig controls the external build invocation.
type BuildConfig struct {
	CI                 bool     `yaml:"ci"`
	Jobs               int      `yaml:"jobs"`
	Timeout            string   `yaml:"timeout"`
	KillGrace          string   `yaml:"kill_grace"`
	HeartbeatInterval  string   `yaml:"heartbeat_interval"`
	FlagsFiles         []string `yaml:"flags_files"`
	PatchSeries        []string `yaml:"patch_series"`
	DomainRegex        string   `yaml:"domain_regex"`
	DomainSubstitution string   `yaml:"domain_substitution"` // empty: derived from target.tarball
	PruningList        string   `yaml:"pruning_list"`        // empty: derived from target.tarball
	PythonBin          string   `yaml:"python"`
	NinjaTargets       []string `yaml:"ninja_targets"`
}

// MetricsConfig controls the Prometheus recorder.
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Namespace   string `yaml:"namespace"`
	Textfile    string `yaml:"textfile"` // node-exporter textfile output; empty disables
	Pushgateway string `yaml:"pushgateway"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig sets the default log level; -v overrides it.
type LoggingConfig struct {
	Level LogLevel `yaml:"level"`
}
