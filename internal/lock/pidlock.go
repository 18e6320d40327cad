// Package lock keeps two crossbuild runs from writing the same state
// directory at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// FileName is the lock file created inside the state directory.
const FileName = "crossbuild.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// PIDLock is a PID file guarded by an exclusive advisory lock. The lock
// lives as long as the file descriptor stays open.
type PIDLock struct {
	path string
	f    *os.File
}

// Acquire takes the lock in stateDir without blocking.
func Acquire(stateDir string) (*PIDLock, error) {
	return AcquireFile(filepath.Join(stateDir, FileName))
}

// AcquireFile takes the lock at lockPath, writes the current PID into it and
// returns a handle that must be released.
func AcquireFile(lockPath string) (*PIDLock, error) {
	if lockPath == "" {
		return nil, ferrors.Configuration("lock path is empty").Build()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, lockError(err, "failed to create lock directory", lockPath)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, lockError(err, "failed to open lock file", lockPath)
	}

	if err := tryLock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "another crossbuild run is using this state directory").
				UserAction().
				WithContext("path", lockPath).
				WithContext("pid", Holder(lockPath)).
				Build()
		}
		return nil, lockError(err, "failed to acquire lock", lockPath)
	}

	if err := writePID(f); err != nil {
		_ = unlock(f)
		_ = f.Close()
		return nil, lockError(err, "failed to write pid", lockPath)
	}
	return &PIDLock{path: lockPath, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return err
	}
	return f.Sync()
}

// Holder returns the PID recorded in lockPath, or 0 when unknown.
func Holder(lockPath string) int {
	b, err := os.ReadFile(lockPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return pid
}

// Path returns the lock file.
func (l *PIDLock) Path() string { return l.path }

// Release drops the lock. The file stays behind.
func (l *PIDLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unlock(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}

func lockError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, msg).
		WithContext("path", path).
		Build()
}
