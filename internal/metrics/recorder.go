package metrics

import "time"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultSkipped  ResultLabel = "skipped"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for pipeline, download and toolchain metrics.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	IncStepResult(step string, result ResultLabel)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(result ResultLabel)
	IncDownloadAttempt(success bool)
	IncDownloadExhausted()
	AddDownloadBytes(n int64)
	IncChecksumMismatch()
	SetBundleState(bundle, state string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) IncStepResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(time.Duration)          {}
func (NoopRecorder) IncRunOutcome(ResultLabel)                 {}
func (NoopRecorder) IncDownloadAttempt(bool)                   {}
func (NoopRecorder) IncDownloadExhausted()                     {}
func (NoopRecorder) AddDownloadBytes(int64)                    {}
func (NoopRecorder) IncChecksumMismatch()                      {}
func (NoopRecorder) SetBundleState(string, string)             {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
