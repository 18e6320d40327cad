package eventstore

import (
	"context"
	"encoding/json"
	"time"

	ferrors "git.home.luguber.info/inful/crossbuild/internal/foundation/errors"
)

// Event types written by the pipeline.
const (
	TypeRunStarted    = "RunStarted"
	TypeStepStarted   = "StepStarted"
	TypeStepSkipped   = "StepSkipped"
	TypeStepCompleted = "StepCompleted"
	TypeStepFailed    = "StepFailed"
	TypeRunCompleted  = "RunCompleted"
)

// RunStarted is the payload of TypeRunStarted.
type RunStarted struct {
	Steps     int    `json:"steps"`
	Resumable bool   `json:"resumable"`
	Version   string `json:"version,omitempty"`
}

// StepFinished is the payload of TypeStepCompleted and TypeStepFailed.
type StepFinished struct {
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
}

// RunCompleted is the payload of TypeRunCompleted.
type RunCompleted struct {
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// NewStepFinished describes a finished step. err may be nil.
func NewStepFinished(d time.Duration, err error) StepFinished {
	p := StepFinished{DurationMS: d.Milliseconds()}
	if err != nil {
		p.Error = err.Error()
		if ce, ok := ferrors.AsClassified(err); ok {
			p.Code = string(ce.Code())
		}
	}
	return p
}

// AppendJSON marshals payload and appends it as one event.
func AppendJSON(ctx context.Context, s Store, runID, step, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal event payload").
			WithContext("run_id", runID).
			WithContext("type", eventType).
			Build()
	}
	if err := s.Append(ctx, runID, step, eventType, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to append event").
			WithContext("run_id", runID).
			WithContext("type", eventType).
			Build()
	}
	return nil
}
