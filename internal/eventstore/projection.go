package eventstore

import (
	"encoding/json"
	"time"
)

// Run and step statuses derived from events.
const (
	StatusRunning   = "running"
	StatusSucceeded = "success"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// StepSummary is the outcome of one step within a run.
type StepSummary struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Code     string        `json:"code,omitempty"`
}

// RunSummary is a read model of one run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Status      string        `json:"status"`
	Resumable   bool          `json:"resumable"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Steps       []StepSummary `json:"steps"`
	Error       string        `json:"error,omitempty"`
}

// Summarize folds the events of a single run, in append order, into a summary.
// It returns nil for an empty slice.
func Summarize(events []Event) *RunSummary {
	if len(events) == 0 {
		return nil
	}
	s := &RunSummary{RunID: events[0].RunID(), Status: StatusRunning, StartedAt: events[0].Timestamp()}
	index := make(map[string]int)
	step := func(name string) *StepSummary {
		if i, ok := index[name]; ok {
			return &s.Steps[i]
		}
		index[name] = len(s.Steps)
		s.Steps = append(s.Steps, StepSummary{Name: name, Status: StatusRunning})
		return &s.Steps[len(s.Steps)-1]
	}

	for _, e := range events {
		switch e.Type() {
		case TypeRunStarted:
			s.StartedAt = e.Timestamp()
			var p RunStarted
			if json.Unmarshal(e.Payload(), &p) == nil {
				s.Resumable = p.Resumable
			}
		case TypeStepStarted:
			step(e.Step())
		case TypeStepSkipped:
			step(e.Step()).Status = StatusSkipped
		case TypeStepCompleted, TypeStepFailed:
			st := step(e.Step())
			st.Status = StatusSucceeded
			if e.Type() == TypeStepFailed {
				st.Status = StatusFailed
			}
			var p StepFinished
			if json.Unmarshal(e.Payload(), &p) == nil {
				st.Duration = time.Duration(p.DurationMS) * time.Millisecond
				st.Error = p.Error
				st.Code = p.Code
			}
		case TypeRunCompleted:
			at := e.Timestamp()
			s.CompletedAt = &at
			var p RunCompleted
			if json.Unmarshal(e.Payload(), &p) == nil {
				s.Status = p.Outcome
				s.Error = p.Error
				s.Duration = time.Duration(p.DurationMS) * time.Millisecond
			}
		}
	}
	return s
}
