package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/crossbuild/internal/config"
	"git.home.luguber.info/inful/crossbuild/internal/eventstore"
	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
	"git.home.luguber.info/inful/crossbuild/internal/lock"
	"git.home.luguber.info/inful/crossbuild/internal/logfields"
	"git.home.luguber.info/inful/crossbuild/internal/metrics"
	"git.home.luguber.info/inful/crossbuild/internal/pipeline"
	"git.home.luguber.info/inful/crossbuild/internal/version"
)

// session holds the resources shared by commands that touch the working tree:
// the state directory lock, the metrics registry and the run history.
type session struct {
	cfg      *config.Config
	runID    string
	lock     *lock.PIDLock
	registry *prom.Registry
	recorder metrics.Recorder
	history  eventstore.Store
	observer pipeline.Observer
}

// openSession acquires the state lock and opens the metrics and history sinks
// the configuration enables.
func openSession(cfg *config.Config) (*session, error) {
	l, err := lock.Acquire(cfg.Paths.State)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:      cfg,
		runID:    uuid.NewString(),
		lock:     l,
		recorder: metrics.NoopRecorder{},
		observer: pipeline.NoopObserver{},
	}
	if cfg.Metrics.Enabled {
		s.registry = prom.NewRegistry()
		s.recorder = metrics.NewPrometheusRecorder(s.registry, cfg.Metrics.Namespace)
	}
	if cfg.History.Enabled {
		store, err := openHistory(cfg.History.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.history = store
		s.observer = pipeline.NewHistoryObserver(store, version.Version)
	}
	return s, nil
}

func openHistory(path string) (*eventstore.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create history directory").
			WithContext("path", path).
			Build()
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to open run history").
			WithContext("path", path).
			Build()
	}
	return store, nil
}

// Close flushes metrics and releases everything. Failures are logged; the
// command's own result is what matters to the caller.
func (s *session) Close() {
	if s.registry != nil {
		if path := s.cfg.Metrics.Textfile; path != "" {
			if err := metrics.WriteTextfile(path, s.registry); err != nil {
				slog.Warn("Failed to write metrics textfile", logfields.Path(path), logfields.Error(err))
			}
		}
		if url := s.cfg.Metrics.Pushgateway; url != "" {
			if err := metrics.Push(url, s.cfg.Metrics.Namespace, s.runID, s.registry); err != nil {
				slog.Warn("Failed to push metrics", logfields.URL(url), logfields.Error(err))
			}
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Warn("Failed to close run history", logfields.Error(err))
		}
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			slog.Warn("Failed to release state lock", logfields.Path(s.lock.Path()), logfields.Error(err))
		}
	}
}
