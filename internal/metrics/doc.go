// Package metrics provides the observability hooks for crossbuild runs.
//
// Components receive a Recorder through dependency injection and default to NoopRecorder,
// so instrumentation never needs nil checks:
//
//	d := download.New(transport, download.WithRecorder(recorder))
//
// PrometheusRecorder registers the real collectors on a registry. A run is a one-shot
// process, so the registry is exported at the end of the run instead of being scraped:
// WriteTextfile produces a node-exporter textfile and Push sends it to a Pushgateway.
package metrics
