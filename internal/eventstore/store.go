// Package eventstore keeps a durable log of pipeline runs: one row per run or step event.
package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves run events.
type Store interface {
	// Append adds an event. step is empty for run-level events.
	Append(ctx context.Context, runID, step, eventType string, payload []byte) error

	// GetByRunID returns the events of one run in append order.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)

	// GetRange returns events recorded within [start, end].
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// LatestRunID returns the run that started most recently, or "" when the log is empty.
	LatestRunID(ctx context.Context) (string, error)

	Close() error
}
