package build

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/collab"
	"git.home.luguber.info/inful/crossbuild/internal/config"
	"git.home.luguber.info/inful/crossbuild/internal/download"
	"git.home.luguber.info/inful/crossbuild/internal/fetch"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/manifest"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
	"git.home.luguber.info/inful/crossbuild/internal/retry"
	"git.home.luguber.info/inful/crossbuild/internal/splitarchive"
	"git.home.luguber.info/inful/crossbuild/internal/toolchain"
)

// Tools are the network-facing components shared by the build steps and the
// standalone toolchain command.
type Tools struct {
	Transport  *download.HTTPTransport
	Downloader download.Fetcher
	Fetcher    *fetch.Fetcher
	Unpacker   splitarchive.Unpacker
	Assembler  *toolchain.Assembler
	UserAgent  string
}

// NewTools wires the downloader, part fetcher and assembler from cfg.
func NewTools(cfg *config.Config, rec metrics.Recorder) *Tools {
	rec = metrics.OrNoop(rec)
	transport := download.NewHTTPTransport(download.HTTPOptions{
		UserAgent:          cfg.Download.UserAgent,
		InsecureSkipVerify: cfg.Download.InsecureSkipVerify,
		Timeout:            config.Duration(cfg.Download.Timeout),
	})
	dl := download.New(
		download.SchemeTransport{Default: transport, File: download.FileTransport{}},
		download.WithPolicy(retry.FromConfig(cfg.Download)),
		download.WithRecorder(rec),
		download.WithLogger(slog.Default().With(slog.String("component", "download"))),
	)
	f := fetch.New(dl, rec)
	u := Unpacker(cfg.Toolchain)
	return &Tools{
		Transport:  transport,
		Downloader: dl,
		Fetcher:    f,
		Unpacker:   u,
		Assembler: toolchain.NewAssembler(f, u,
			toolchain.WithRecorder(rec),
			toolchain.WithLogger(slog.Default().With(slog.String("component", "toolchain")))),
		UserAgent: cfg.Download.UserAgent,
	}
}

// Unpacker selects the split archive extractor. The external tar is told
// about the compression explicitly since it cannot sniff a pipe.
func Unpacker(tc config.ToolchainConfig) splitarchive.Unpacker {
	if tc.Unpacker == config.UnpackerInProcess {
		return splitarchive.InProcess{Compression: tc.Compression}
	}
	var args []string
	switch tc.Compression {
	case config.CompressionGzip:
		args = []string{"-z"}
	case config.CompressionZstd:
		args = []string{"--zstd"}
	case config.CompressionLZ4:
		args = []string{"--use-compress-program=lz4"}
	}
	return splitarchive.TarCommand{Args: args}
}

// ToolchainDir is where the toolchain archive is assembled inside the source tree.
func ToolchainDir(source string) string {
	return filepath.Join(source, "third_party", "win_toolchain")
}

// ToolchainSection loads the configured manifest section and fills in the
// SDK version the checkout expects.
func ToolchainSection(cfg *config.Config, info collab.VSToolchainInfo) (*manifest.Resolved, error) {
	m, err := manifest.Load(cfg.Toolchain.Manifest)
	if err != nil {
		return nil, err
	}
	sec, err := m.Section(cfg.Toolchain.Section)
	if err != nil {
		return nil, err
	}
	if info.SDKVersion != "" {
		sec.Set(toolchain.KeySDKVersion, info.SDKVersion)
	}
	return sec, nil
}

// AssembleToolchain drives the configured toolchain bundle to VERIFIED in dir.
func (t *Tools) AssembleToolchain(ctx context.Context, cfg *config.Config, info collab.VSToolchainInfo, dir string) (toolchain.State, error) {
	sec, err := ToolchainSection(cfg, info)
	if err != nil {
		return toolchain.StateAbsent, err
	}
	bundle, err := toolchain.FromSection(sec, cfg.Toolchain, dir, t.Transport.Client(), t.UserAgent)
	if err != nil {
		return toolchain.StateAbsent, err
	}
	slog.Info("Assembling Windows toolchain",
		logfields.Bundle(bundle.Name),
		logfields.Path(bundle.ArchivePath()))
	return t.Assembler.Assemble(ctx, bundle)
}
