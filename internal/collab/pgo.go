package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/crossbuild/internal/download"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// PGOBucket holds the V8 builtins PGO profiles, keyed by V8 version.
const PGOBucket = "chromium-v8-builtins-pgo"

// FallbackPGOProfiles is used when the bucket listing is unavailable.
var FallbackPGOProfiles = []string{
	"x64.profile",
	"x64-rl.profile",
	"x86.profile",
	"x86-rl.profile",
	"meta.json",
}

var v8VersionPattern = regexp.MustCompile(
	`#define V8_MAJOR_VERSION (\d+)\s+#define V8_MINOR_VERSION (\d+)\s+#define V8_BUILD_NUMBER (\d+)\s+#define V8_PATCH_LEVEL (\d+)`)

// V8Version is parsed from v8/include/v8-version.h.
type V8Version struct {
	Major, Minor, Build, Patch string
}

func (v V8Version) String() string {
	return v.Major + "." + v.Minor + "." + v.Build + "." + v.Patch
}

// Development versions have no published profiles.
func (v V8Version) Development() bool { return v.Build == "0" && v.Patch == "0" }

// ParseV8Version extracts the version from the contents of v8-version.h.
func ParseV8Version(header string) (V8Version, bool) {
	m := v8VersionPattern.FindStringSubmatch(header)
	if m == nil {
		return V8Version{}, false
	}
	return V8Version{Major: m[1], Minor: m[2], Build: m[3], Patch: m[4]}, true
}

// PGOProfiles downloads the V8 builtins PGO profiles of the checked out V8.
// Missing profiles degrade the build, so failures are logged and tolerated.
type PGOProfiles struct {
	Client  *http.Client
	Fetcher download.Fetcher
	BaseURL string
}

// Download fetches every profile listed for the V8 version in source into
// v8/tools/builtins-pgo/profiles, skipping files already present. It returns
// how many profiles are in place.
func (p PGOProfiles) Download(ctx context.Context, source string) (int, error) {
	header, err := os.ReadFile(filepath.Join(source, "v8", "include", "v8-version.h"))
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("V8 version file not found", logfields.Path(source))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	version, ok := ParseV8Version(string(header))
	if !ok {
		slog.Warn("Could not parse V8 version")
		return 0, nil
	}
	if version.Development() {
		slog.Info("V8 version has no PGO profiles", slog.String("version", version.String()))
		return 0, nil
	}

	dir := filepath.Join(source, "v8", "tools", "builtins-pgo", "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	prefix := "by-version/" + version.String() + "/"
	files, err := p.list(ctx, prefix)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		slog.Warn("Failed to list PGO profiles, using fallback list", logfields.Error(err))
		files = FallbackPGOProfiles
	}
	if len(files) == 0 {
		slog.Warn("No PGO profiles found", slog.String("version", version.String()))
		return 0, nil
	}

	done := 0
	for _, name := range files {
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			done++
			continue
		}
		if err := p.Fetcher.Fetch(ctx, p.base()+"/"+PGOBucket+"/"+prefix+name, dest); err != nil {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			slog.Warn("Failed to download PGO profile", logfields.File(name), logfields.Error(err))
			continue
		}
		done++
	}
	slog.Info("V8 builtins PGO profiles", slog.Int("downloaded", done), slog.Int("listed", len(files)))
	return done, nil
}

func (p PGOProfiles) base() string {
	if p.BaseURL == "" {
		return StorageBaseURL
	}
	return strings.TrimSuffix(p.BaseURL, "/")
}

type gcsListing struct {
	Items []struct {
		Name string `json:"name"`
	} `json:"items"`
}

// list queries the GCS JSON API for the objects under prefix.
func (p PGOProfiles) list(ctx context.Context, prefix string) ([]string, error) {
	api := p.base() + "/storage/v1/b/" + PGOBucket + "/o?prefix=" + url.QueryEscape(prefix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api, http.NoBody)
	if err != nil {
		return nil, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &download.HTTPStatusError{URL: api, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	var listing gcsListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	var files []string
	for _, item := range listing.Items {
		if name := strings.TrimPrefix(item.Name, prefix); name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}
