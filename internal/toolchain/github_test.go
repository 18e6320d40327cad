package toolchain

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/config"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/manifest"
)

const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func releaseServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/owner/tc/releases/tags/144.0.7559.96" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "crossbuild-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tag_name": "144.0.7559.96",
			"assets": []map[string]any{
				{"name": "tc_sdk-10.0.26100.0.tar.002", "browser_download_url": "https://dl/2", "size": 3, "digest": "sha256:" + abcSHA256},
				{"name": "notes.txt", "browser_download_url": "https://dl/notes", "size": 1},
				{"name": "tc_sdk-10.0.26100.0.tar.001", "browser_download_url": "https://dl/1", "size": 3, "digest": "md5:abc"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReleaseSourceEntries(t *testing.T) {
	srv := releaseServer(t)
	src := ReleaseSource{
		Client:     srv.Client(),
		APIBaseURL: srv.URL + "/",
		Repository: "owner/tc",
		Tag:        "144.0.7559.96",
		Pattern:    "tc_sdk-10.0.26100.0.tar.*",
		Token:      "secret",
		UserAgent:  "crossbuild-test",
	}

	entries, err := src.Entries(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, 1, entries[0].Sequence)
	assert.Equal(t, "https://dl/1", entries[0].URL)
	assert.True(t, entries[0].Digest.IsZero())

	assert.Equal(t, 2, entries[1].Sequence)
	assert.Equal(t, checksum.Expected{Algorithm: checksum.SHA256, Hex: abcSHA256}, entries[1].Digest)
}

func TestReleaseSourceNotFound(t *testing.T) {
	srv := releaseServer(t)
	src := ReleaseSource{Client: srv.Client(), APIBaseURL: srv.URL, Repository: "owner/tc", Tag: "1.2.3", Pattern: "*"}

	_, err := src.Entries(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeConfiguration))
	assert.Contains(t, err.Error(), "https://github.com/owner/tc/releases/tag/1.2.3")
}

func TestReleaseSourceNoMatch(t *testing.T) {
	srv := releaseServer(t)
	src := ReleaseSource{
		Client: srv.Client(), APIBaseURL: srv.URL, Repository: "owner/tc", Tag: "144.0.7559.96",
		Pattern: "other-*.tar.*", Token: "secret", UserAgent: "crossbuild-test",
	}

	_, err := src.Entries(t.Context())
	require.Error(t, err)
	assert.True(t, ferrors.HasCode(err, ferrors.CodeConfiguration))
}

func TestPartSequence(t *testing.T) {
	for name, want := range map[string]int{"a.tar.001": 1, "a.tar.017": 17, "a.tar.gz": 0, "a": 0, "a.000": 0} {
		got, ok := partSequence(name)
		assert.Equal(t, want, got, name)
		assert.Equal(t, want > 0, ok, name)
	}
}

func TestFromSection(t *testing.T) {
	m, err := manifest.Parse([]byte(`
variables:
  chromium_version: "144.0.7559.96"
sections:
  win-toolchain-noarm:
    variables:
      zip_filename: 16b53d08e9
      sha512: "` + strings.Repeat("ab", 64) + `"
  win-toolchain:
    variables:
      zip_filename: 776b9f5ee2
      sha512: "` + strings.Repeat("cd", 64) + `"
    files:
      - sequence: 1
        url: https://mirror/{chromium_version}/part.001
        filename: part.001
  broken:
    variables:
      chromium_version: "1"
`))
	require.NoError(t, err)
	cfg := config.ToolchainConfig{
		Algorithm:     "sha512",
		PartAlgorithm: "sha256",
		GitHub: config.GitHubConfig{
			Repository:   "owner/tc",
			APIBaseURL:   "https://api.example.org",
			AssetPattern: "tc-{chromium_version}_sdk-{sdk_version}.tar.*",
		},
	}

	noarm, err := m.Section("win-toolchain-noarm")
	require.NoError(t, err)
	noarm.Set(KeySDKVersion, "10.0.26100.0")
	b, err := FromSection(noarm, cfg, "/tc", nil, "ua")
	require.NoError(t, err)
	assert.Equal(t, "16b53d08e9.zip", b.Archive)
	assert.Equal(t, "/tc/16b53d08e9.zip", b.ArchivePath())
	assert.Equal(t, checksum.SHA512, b.Digest.Algorithm)
	rs, ok := b.Parts.(ReleaseSource)
	require.True(t, ok)
	assert.Equal(t, "144.0.7559.96", rs.Tag)
	assert.Equal(t, "tc-144.0.7559.96_sdk-10.0.26100.0.tar.*", rs.Pattern)
	assert.Equal(t, "https://api.example.org/repos/owner/tc/releases/tags/144.0.7559.96", rs.ReleaseURL())

	arm, err := m.Section("win-toolchain")
	require.NoError(t, err)
	b, err = FromSection(arm, cfg, "/tc", nil, "ua")
	require.NoError(t, err)
	static, ok := b.Parts.(StaticParts)
	require.True(t, ok)
	require.Len(t, static, 1)
	assert.Equal(t, "https://mirror/144.0.7559.96/part.001", static[0].URL)

	broken, err := m.Section("broken")
	require.NoError(t, err)
	_, err = FromSection(broken, cfg, "/tc", nil, "ua")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip_filename")
}
