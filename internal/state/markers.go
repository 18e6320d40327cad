// Package state records which pipeline steps have completed, one zero-byte marker file
// per step.
package state

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// MarkerSuffix is appended to the step name to form the marker file name.
const MarkerSuffix = ".stamp"

// MarkerStore is the completed-steps set backed by a directory.
type MarkerStore struct {
	dir string
}

// NewMarkerStore returns a store rooted at dir. The directory is created on first Mark.
func NewMarkerStore(dir string) *MarkerStore {
	return &MarkerStore{dir: dir}
}

// Dir is the marker directory.
func (m *MarkerStore) Dir() string { return m.dir }

// Path is the marker file of step.
func (m *MarkerStore) Path(step string) string {
	return filepath.Join(m.dir, step+MarkerSuffix)
}

// Done reports whether step has a marker.
func (m *MarkerStore) Done(step string) (bool, error) {
	_, err := os.Stat(m.Path(step))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, markerError(err, "failed to read step marker", m.Path(step))
	}
	return true, nil
}

// Mark records step as completed. The marker appears atomically: a temporary file in the
// same directory is renamed into place.
func (m *MarkerStore) Mark(step string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return markerError(err, "failed to create state directory", m.dir)
	}
	tmp, err := os.CreateTemp(m.dir, "."+step+".*.tmp")
	if err != nil {
		return markerError(err, "failed to create step marker", m.dir)
	}
	name := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return markerError(err, "failed to create step marker", name)
	}
	if err := os.Rename(name, m.Path(step)); err != nil {
		_ = os.Remove(name)
		return markerError(err, "failed to commit step marker", m.Path(step))
	}
	return nil
}

// Completed lists the steps with markers, sorted.
func (m *MarkerStore) Completed() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, markerError(err, "failed to list step markers", m.dir)
	}
	var steps []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), MarkerSuffix)
		if !ok || e.IsDir() {
			continue
		}
		steps = append(steps, name)
	}
	slices.Sort(steps)
	return steps, nil
}

// Reset deletes the markers of the named steps, or every marker when none are named.
// Other files in the directory are left alone.
func (m *MarkerStore) Reset(steps ...string) ([]string, error) {
	if len(steps) == 0 {
		all, err := m.Completed()
		if err != nil {
			return nil, err
		}
		steps = all
	}
	var removed []string
	for _, s := range steps {
		err := os.Remove(m.Path(s))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return removed, markerError(err, "failed to delete step marker", m.Path(s))
		}
		removed = append(removed, s)
	}
	return removed, nil
}

func markerError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, msg).
		WithContext("path", path).
		Fatal().
		Build()
}
