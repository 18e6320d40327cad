// Package manifest reads download manifests: named sections of file entries whose fields
// may reference {variable} placeholders from a shared variable table.
//
//	variables:
//	  chromium_version: "144.0.7559.96"
//	sections:
//	  win-toolchain-noarm:
//	    variables:
//	      zip_filename: 16b53d08e9
//	      sha512: 9f2c...
//	    files:
//	      - sequence: 1
//	        url: https://example.org/{chromium_version}/tc.tar.001
//	        filename: tc.tar.001
//	        digest: sha256:0a1b...
package manifest

import (
	"errors"
	"io/fs"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/crossbuild/internal/checksum"
	"git.home.luguber.info/inful/crossbuild/internal/fetch"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// Manifest is the parsed manifest file.
type Manifest struct {
	Variables map[string]string  `yaml:"variables"`
	Sections  map[string]Section `yaml:"sections"`
	path      string
}

// Section is one named group of files with its own variable overrides.
type Section struct {
	Variables map[string]string `yaml:"variables"`
	Files     []File            `yaml:"files"`
}

// File is one raw manifest entry before placeholder resolution.
type File struct {
	Sequence int    `yaml:"sequence"`
	URL      string `yaml:"url"`
	Filename string `yaml:"filename"`
	Digest   string `yaml:"digest"`
	// Destination overrides the download directory for this file.
	Destination string `yaml:"destination"`
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// maxExpansionDepth bounds variables that reference other variables.
const maxExpansionDepth = 8

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ferrors.Configuration("manifest not found").
			WithContext("path", path).
			Build()
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read manifest").
			WithContext("path", path).
			Build()
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

// Parse decodes manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse manifest").
			WithCode(ferrors.CodeConfiguration).
			Fatal().
			Build()
	}
	return &m, nil
}

// SectionNames returns the defined section names, sorted.
func (m *Manifest) SectionNames() []string {
	return slices.Sorted(maps.Keys(m.Sections))
}

// Section resolves a named section. Section variables override global ones.
func (m *Manifest) Section(name string) (*Resolved, error) {
	s, ok := m.Sections[name]
	if !ok {
		return nil, ferrors.Configuration("manifest section missing").
			WithContext("section", name).
			WithContext("available", strings.Join(m.SectionNames(), ", ")).
			WithContext("path", m.path).
			Build()
	}
	vars := make(map[string]string, len(m.Variables)+len(s.Variables))
	maps.Copy(vars, m.Variables)
	maps.Copy(vars, s.Variables)
	return &Resolved{Name: name, vars: vars, files: s.Files}, nil
}

// Resolved is a section with its effective variable table.
type Resolved struct {
	Name  string
	vars  map[string]string
	files []File
}

// Set adds or overrides a variable (for values discovered at run time).
func (r *Resolved) Set(key, value string) {
	r.vars[key] = value
}

// Require fails with a ConfigurationError naming the first missing key.
func (r *Resolved) Require(keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(r.vars[k]) == "" {
			return ferrors.Configuration("required manifest key missing").
				WithContext("section", r.Name).
				WithContext("key", k).
				Build()
		}
	}
	return nil
}

// Get returns the expanded value of key.
func (r *Resolved) Get(key string) (string, error) {
	v, ok := r.vars[key]
	if !ok {
		return "", r.unresolved(key)
	}
	return r.Expand(v)
}

// Expand substitutes {name} placeholders. An unknown name is a ConfigurationError.
func (r *Resolved) Expand(s string) (string, error) {
	for depth := 0; depth < maxExpansionDepth; depth++ {
		var missing string
		out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
			name := m[1 : len(m)-1]
			v, ok := r.vars[name]
			if !ok {
				if missing == "" {
					missing = name
				}
				return m
			}
			return v
		})
		if missing != "" {
			return "", r.unresolved(missing)
		}
		if out == s {
			if m := placeholder.FindStringSubmatch(out); m != nil {
				return "", r.unresolved(m[1])
			}
			return out, nil
		}
		s = out
	}
	return "", ferrors.Configuration("manifest variables reference each other too deeply").
		WithContext("section", r.Name).
		WithContext("value", s).
		Build()
}

func (r *Resolved) unresolved(name string) error {
	return ferrors.Configuration("unresolved manifest variable").
		WithContext("section", r.Name).
		WithContext("variable", name).
		Build()
}

// Entries expands the section's files into fetch entries. Digests without an algorithm
// prefix use def.
func (r *Resolved) Entries(def checksum.Algorithm) ([]fetch.FileEntry, error) {
	entries := make([]fetch.FileEntry, 0, len(r.files))
	for i, f := range r.files {
		if f.Sequence <= 0 || f.URL == "" || f.Filename == "" {
			return nil, ferrors.Configuration("manifest file entry missing required field").
				WithContext("section", r.Name).
				WithContext("index", i).
				WithContext("required", "sequence, url, filename").
				Build()
		}
		url, err := r.Expand(f.URL)
		if err != nil {
			return nil, err
		}
		name, err := r.Expand(f.Filename)
		if err != nil {
			return nil, err
		}
		rawDigest, err := r.Expand(f.Digest)
		if err != nil {
			return nil, err
		}
		digest, err := checksum.ParseDigest(rawDigest, def)
		if err != nil {
			return nil, err
		}
		dest, err := r.Expand(f.Destination)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fetch.FileEntry{
			Sequence:    f.Sequence,
			Filename:    name,
			URL:         url,
			Digest:      digest,
			Destination: dest,
		})
	}
	return entries, nil
}
