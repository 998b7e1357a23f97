// Package metrics exposes retrieval run metrics in the Prometheus
// node_exporter textfile format, for cron-driven runs that have no
// long-lived process to scrape.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "snretrieve"

// Recorder holds the metrics for one run. All methods are nil-safe:
// calls on a nil *Recorder are no-ops.
type Recorder struct {
	registry *prometheus.Registry

	// FilesTotal counts files by terminal outcome and residency.
	FilesTotal *prometheus.CounterVec

	// BytesTotal counts bytes written by local copies.
	BytesTotal prometheus.Counter

	// TransferSeconds observes per-file transfer time by method (copy, retrieve).
	TransferSeconds *prometheus.HistogramVec

	// LastRunTimestamp is the unix time the run finished.
	LastRunTimestamp prometheus.Gauge

	// LastRunSuccess is 1 when no file failed, 0 otherwise.
	LastRunSuccess prometheus.Gauge
}

// NewRecorder creates a Recorder backed by its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		FilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed, by terminal outcome and residency",
		}, []string{"outcome", "residency"}),
		BytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copied_bytes_total",
			Help:      "Bytes written by local copies of resident files",
		}),
		TransferSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Time spent transferring a single file",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~7h
		}, []string{"method"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run had no failed files",
		}),
	}

	r.registry.MustRegister(
		r.FilesTotal,
		r.BytesTotal,
		r.TransferSeconds,
		r.LastRunTimestamp,
		r.LastRunSuccess,
	)
	return r
}

// ObserveFile records one terminal outcome.
func (r *Recorder) ObserveFile(outcome, residency, method string, bytes int64, d time.Duration) {
	if r == nil {
		return
	}
	r.FilesTotal.WithLabelValues(outcome, residency).Inc()
	if bytes > 0 {
		r.BytesTotal.Add(float64(bytes))
	}
	if method != "" {
		r.TransferSeconds.WithLabelValues(method).Observe(d.Seconds())
	}
}

// Finish stamps the run completion gauges.
func (r *Recorder) Finish(now time.Time, ok bool) {
	if r == nil {
		return
	}
	r.LastRunTimestamp.Set(float64(now.Unix()))
	if ok {
		r.LastRunSuccess.Set(1)
	} else {
		r.LastRunSuccess.Set(0)
	}
}

// WriteTextfile atomically writes all metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
