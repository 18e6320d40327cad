package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Tree asserts the state of a directory tree in tests.
type Tree struct {
	t    *testing.T
	base string
}

// NewTree roots assertions at base.
func NewTree(t *testing.T, base string) *Tree {
	return &Tree{t: t, base: base}
}

// File checks that rel is a regular file.
func (tr *Tree) File(rel string) *Tree {
	tr.t.Helper()
	info, err := os.Lstat(filepath.Join(tr.base, rel))
	switch {
	case err != nil:
		tr.t.Errorf("expected file %s: %v", rel, err)
	case !info.Mode().IsRegular():
		tr.t.Errorf("expected %s to be a regular file, got %s", rel, info.Mode())
	}
	return tr
}

// Dir checks that rel is a directory, not a link to one.
func (tr *Tree) Dir(rel string) *Tree {
	tr.t.Helper()
	info, err := os.Lstat(filepath.Join(tr.base, rel))
	switch {
	case err != nil:
		tr.t.Errorf("expected directory %s: %v", rel, err)
	case !info.IsDir():
		tr.t.Errorf("expected %s to be a directory, got %s", rel, info.Mode())
	}
	return tr
}

// Symlink checks that rel is a symlink pointing at target.
func (tr *Tree) Symlink(rel, target string) *Tree {
	tr.t.Helper()
	got, err := os.Readlink(filepath.Join(tr.base, rel))
	if err != nil {
		tr.t.Errorf("expected symlink %s: %v", rel, err)
	} else if got != target {
		tr.t.Errorf("expected %s -> %s, got %s", rel, target, got)
	}
	return tr
}

// Missing checks that nothing exists at rel.
func (tr *Tree) Missing(rel string) *Tree {
	tr.t.Helper()
	if _, err := os.Lstat(filepath.Join(tr.base, rel)); err == nil {
		tr.t.Errorf("expected %s to be absent", rel)
	}
	return tr
}

// Contains checks that the file rel contains want.
func (tr *Tree) Contains(rel, want string) *Tree {
	tr.t.Helper()
	// #nosec G304 - test helper, paths are controlled by test code
	data, err := os.ReadFile(filepath.Join(tr.base, rel))
	if err != nil {
		tr.t.Errorf("failed to read %s: %v", rel, err)
		return tr
	}
	if !strings.Contains(string(data), want) {
		tr.t.Errorf("expected %s to contain %q\nactual content:\n%s", rel, want, data)
	}
	return tr
}
