package toolchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/fetch"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
)

// ReleaseSource lists the parts of a bundle from the assets of a GitHub release.
type ReleaseSource struct {
	Client     *http.Client
	APIBaseURL string
	Repository string // owner/name
	Tag        string
	Pattern    string // glob matched against asset names
	Token      string
	UserAgent  string
}

type releaseAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
}

type release struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

// ReleaseURL is the API endpoint for the configured tag.
func (s ReleaseSource) ReleaseURL() string {
	return fmt.Sprintf("%s/repos/%s/releases/tags/%s", strings.TrimRight(s.APIBaseURL, "/"), s.Repository, s.Tag)
}

// Entries fetches the release, keeps the assets matching Pattern and orders them by the
// numeric suffix of their name (".001", ".002", ...).
func (s ReleaseSource) Entries(ctx context.Context) ([]fetch.FileEntry, error) {
	rel, err := s.fetchRelease(ctx)
	if err != nil {
		return nil, err
	}
	var matched []releaseAsset
	for _, a := range rel.Assets {
		ok, err := path.Match(s.Pattern, a.Name)
		if err != nil {
			return nil, ferrors.Configuration("invalid asset pattern").
				WithContext("pattern", s.Pattern).
				WithCause(err).
				Build()
		}
		if ok {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		return nil, ferrors.Configuration("no release assets match pattern").
			WithContext("pattern", s.Pattern).
			WithContext("url", s.ReleaseURL()).
			WithContext("assets", len(rel.Assets)).
			Build()
	}
	slices.SortFunc(matched, func(a, b releaseAsset) int { return strings.Compare(a.Name, b.Name) })
	slog.Info("Release assets matched", slog.Int("count", len(matched)), slog.String("pattern", s.Pattern))

	entries := make([]fetch.FileEntry, 0, len(matched))
	for i, a := range matched {
		if a.Name == "" || a.DownloadURL == "" {
			return nil, ferrors.Configuration("release asset is incomplete").
				WithContext("index", i).
				WithContext("url", s.ReleaseURL()).
				Build()
		}
		seq, ok := partSequence(a.Name)
		if !ok {
			seq = i + 1
		}
		entries = append(entries, fetch.FileEntry{
			Sequence: seq,
			Filename: a.Name,
			URL:      a.DownloadURL,
			Digest:   assetDigest(a),
		})
	}
	return entries, nil
}

func (s ReleaseSource) fetchRelease(ctx context.Context) (*release, error) {
	url := s.ReleaseURL()
	slog.Info("Fetching release", logfields.URL(url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, ferrors.Configuration("invalid release URL").WithContext("url", url).WithCause(err).Build()
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ferrors.Canceled("fetch release", ctx.Err())
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to fetch release").
			WithContext("url", url).
			Rerun().
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ferrors.Configuration("release not found").
			WithContext("tag", s.Tag).
			WithContext("url", fmt.Sprintf("https://github.com/%s/releases/tag/%s", s.Repository, s.Tag)).
			Build()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, ferrors.NetworkError("release API error").
			WithContext("url", url).
			WithContext("status", resp.Status).
			Rerun().
			Build()
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to decode release").
			WithContext("url", url).
			Build()
	}
	return &rel, nil
}

// partSequence reads the numeric extension of a split part name.
func partSequence(name string) (int, bool) {
	ext := path.Ext(name)
	if len(ext) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(ext[1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// assetDigest accepts only "sha256:<hex>"; anything else means no digest.
func assetDigest(a releaseAsset) checksum.Expected {
	hex, ok := strings.CutPrefix(a.Digest, "sha256:")
	if !ok {
		return checksum.Expected{}
	}
	d, err := checksum.ParseDigest(hex, checksum.SHA256)
	if err != nil {
		slog.Warn("Ignoring malformed asset digest", logfields.File(a.Name), logfields.Digest(a.Digest))
		return checksum.Expected{}
	}
	return d
}
