// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a consolidation run.
//
// A global, pluggable backend defaults to a no-op implementation, so the
// helpers are always safe to call even when no real backend is configured.
// Concrete metric systems live in subpackages (prompush, datadog).
package metrics

import "time"

// Metric names shared by all backends.
const (
	StepTotal     = "consolidate_step_total"
	StepDuration  = "consolidate_step_duration_seconds"
	RecordsTotal  = "consolidate_records_total"
	FilesTotal    = "consolidate_files_total"
	DatasetsTotal = "consolidate_datasets_total"
)

const (
	statusSuccess  = "success"
	statusFailure  = "failure"
	defaultDataset = "-"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func datasetLabel(ds string) string {
	if ds == "" {
		return defaultDataset
	}
	return ds
}

// RecordStep measures latency and success/failure of one dataset phase
// (e.g. "reading", "finalizing") or of a whole dataset ("dataset").
func RecordStep(dataset, step string, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}
	lbls := Labels{
		"dataset": datasetLabel(dataset),
		"step":    step,
		"status":  status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments a record-level counter for the given dataset and kind.
//
// Kinds mirror the dataset summary: "written", "malformed", "duplicates".
func RecordRows(dataset, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"dataset": datasetLabel(dataset),
		"kind":    kind,
	})
}

// RecordFiles increments a source-file counter. Kinds: "processed",
// "skipped" (checkpoint), "unsupported" (unknown extension).
func RecordFiles(dataset, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(FilesTotal, float64(delta), Labels{
		"dataset": datasetLabel(dataset),
		"kind":    kind,
	})
}

// RecordDataset counts one finished dataset by outcome.
func RecordDataset(dataset string, err error) {
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}
	backend.IncCounter(DatasetsTotal, 1, Labels{
		"dataset": datasetLabel(dataset),
		"status":  status,
	})
}
