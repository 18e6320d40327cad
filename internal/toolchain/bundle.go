package toolchain

import (
	"net/http"
	"path/filepath"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/config"
	"git.home.luguber.info/inful/crossbuild/internal/manifest"
)

// Manifest keys every toolchain section must define.
const (
	KeyChromiumVersion = "chromium_version"
	KeyZipFilename     = "zip_filename"
	KeySDKVersion      = "sdk_version"
)

// FromSection describes the bundle of a manifest section. The archive digest is read from the
// key named after cfg.Algorithm. A section without files takes its parts from the GitHub
// release configured in cfg.GitHub, tagged with chromium_version unless a tag is set.
func FromSection(sec *manifest.Resolved, cfg config.ToolchainConfig, dir string, client *http.Client, userAgent string) (Bundle, error) {
	if err := sec.Require(KeyChromiumVersion, KeyZipFilename, cfg.Algorithm); err != nil {
		return Bundle{}, err
	}
	alg, err := checksum.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return Bundle{}, err
	}
	partAlg, err := checksum.ParseAlgorithm(cfg.PartAlgorithm)
	if err != nil {
		return Bundle{}, err
	}
	zipName, err := sec.Get(KeyZipFilename)
	if err != nil {
		return Bundle{}, err
	}
	rawDigest, err := sec.Get(cfg.Algorithm)
	if err != nil {
		return Bundle{}, err
	}
	digest, err := checksum.ParseDigest(rawDigest, alg)
	if err != nil {
		return Bundle{}, err
	}

	b := Bundle{
		Name:    sec.Name,
		Dir:     dir,
		Archive: filepath.Base(zipName) + ".zip",
		Digest:  digest,
	}

	entries, err := sec.Entries(partAlg)
	if err != nil {
		return Bundle{}, err
	}
	if len(entries) > 0 {
		b.Parts = StaticParts(entries)
		return b, nil
	}

	tag := cfg.GitHub.Tag
	if tag == "" {
		if tag, err = sec.Get(KeyChromiumVersion); err != nil {
			return Bundle{}, err
		}
	}
	pattern, err := sec.Expand(cfg.GitHub.AssetPattern)
	if err != nil {
		return Bundle{}, err
	}
	b.Parts = ReleaseSource{
		Client:     client,
		APIBaseURL: cfg.GitHub.APIBaseURL,
		Repository: cfg.GitHub.Repository,
		Tag:        tag,
		Pattern:    pattern,
		Token:      cfg.GitHub.Token,
		UserAgent:  userAgent,
	}
	return b, nil
}
