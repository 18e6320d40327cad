package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// BundleStates are the toolchain bundle lifecycle states exported as a state-set gauge.
var BundleStates = []string{"ABSENT", "FETCHING", "MERGED", "VERIFIED"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	stepDuration      *prom.HistogramVec
	stepResults       *prom.CounterVec
	runDuration       prom.Histogram
	runOutcome        *prom.CounterVec
	downloadAttempts  *prom.CounterVec
	downloadExhausted prom.Counter
	downloadBytes     prom.Counter
	checksumMismatch  prom.Counter
	bundleState       *prom.GaugeVec
}

// stepBuckets spans seconds to the multi-hour compile step.
var stepBuckets = []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 7200, 14400, 28800}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry, namespace string) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	if namespace == "" {
		namespace = "crossbuild"
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of executed pipeline steps",
			Buckets:   stepBuckets,
		}, []string{"step"})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   stepBuckets,
		})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Pipeline runs by final status",
		}, []string{"result"})
		pr.downloadAttempts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_attempts_total",
			Help:      "Download attempts by result",
		}, []string{"result"})
		pr.downloadExhausted = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_exhausted_total",
			Help:      "Downloads that failed every attempt",
		})
		pr.downloadBytes = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written by successful downloads",
		})
		pr.checksumMismatch = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_mismatches_total",
			Help:      "Files whose digest did not match the declared value",
		})
		pr.bundleState = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "toolchain_bundle_state",
			Help:      "Toolchain bundle lifecycle state (1 for the current state)",
		}, []string{"bundle", "state"})
		reg.MustRegister(pr.stepDuration, pr.stepResults, pr.runDuration, pr.runOutcome,
			pr.downloadAttempts, pr.downloadExhausted, pr.downloadBytes, pr.checksumMismatch, pr.bundleState)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, result ResultLabel) {
	if p == nil || p.stepResults == nil {
		return
	}
	p.stepResults.WithLabelValues(step, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(result ResultLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncDownloadAttempt(success bool) {
	if p == nil || p.downloadAttempts == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.downloadAttempts.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncDownloadExhausted() {
	if p == nil || p.downloadExhausted == nil {
		return
	}
	p.downloadExhausted.Inc()
}

func (p *PrometheusRecorder) AddDownloadBytes(n int64) {
	if p == nil || p.downloadBytes == nil || n <= 0 {
		return
	}
	p.downloadBytes.Add(float64(n))
}

func (p *PrometheusRecorder) IncChecksumMismatch() {
	if p == nil || p.checksumMismatch == nil {
		return
	}
	p.checksumMismatch.Inc()
}

// SetBundleState sets the gauge for state to 1 and every other state of bundle to 0.
func (p *PrometheusRecorder) SetBundleState(bundle, state string) {
	if p == nil || p.bundleState == nil {
		return
	}
	for _, s := range BundleStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.bundleState.WithLabelValues(bundle, s).Set(v)
	}
}
