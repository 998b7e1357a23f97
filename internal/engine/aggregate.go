package engine

import (
	"log/slog"
	"time"

	"github.com/bamsammich/snretrieve/internal/event"
	"github.com/bamsammich/snretrieve/internal/metrics"
	"github.com/bamsammich/snretrieve/internal/stats"
)

// DefaultProgressEvery is how many completed files pass between progress lines.
const DefaultProgressEvery = 100

// aggregator is the sole owner of the run summary. Workers hand it
// results over a channel; nothing else mutates the summary.
type aggregator struct {
	summary       stats.Summary
	collector     *stats.Collector
	events        chan<- event.Event
	metrics       *metrics.Recorder
	progressEvery int
}

func newAggregator(total int, collector *stats.Collector, events chan<- event.Event, rec *metrics.Recorder, every int) *aggregator {
	if every <= 0 {
		every = DefaultProgressEvery
	}
	return &aggregator{
		summary:       stats.Summary{Total: int64(total)},
		collector:     collector,
		events:        events,
		metrics:       rec,
		progressEvery: every,
	}
}

// run records results until the channel closes and returns the summary.
func (a *aggregator) run(results <-chan Result) stats.Summary {
	for res := range results {
		a.record(res)
	}
	return a.summary
}

func (a *aggregator) record(res Result) {
	s := &a.summary
	evType := event.FileCompleted

	switch res.Outcome {
	case Success:
		s.Succeeded++
		a.collector.AddFilesSucceeded(1)
		if res.Method == MethodRetrieve {
			s.Retrieved++
			a.collector.AddFilesRetrieved(1)
		} else {
			s.Copied++
			s.Bytes += res.Bytes
			a.collector.AddFilesCopied(1)
			a.collector.AddBytesCopied(res.Bytes)
		}
	case Skipped:
		s.Skipped++
		a.collector.AddFilesSkipped(1)
		evType = event.FileSkipped
	case DryRun:
		s.DryRun++
		a.collector.AddFilesDryRun(1)
		evType = event.FileDryRun
	default:
		res.Outcome = Failed
		s.Failed++
		s.Failures = append(s.Failures, stats.Failure{Path: res.Task.SrcPath, Detail: res.Detail})
		a.collector.AddFilesFailed(1)
		evType = event.FileFailed
	}

	a.metrics.ObserveFile(res.Outcome.String(), res.Task.Residency.String(), transferMethod(res), res.Bytes, res.Duration)

	emitEvent(a.events, event.Event{
		Type:      evType,
		Timestamp: time.Now(),
		Path:      res.Task.RelPath,
		Residency: res.Task.Residency.String(),
		Method:    res.Method,
		Detail:    res.Detail,
		Size:      res.Task.Size,
		Duration:  res.Duration,
		WorkerID:  res.WorkerID,
	})

	if done := s.Done(); done%int64(a.progressEvery) == 0 && done < s.Total {
		slog.Info("progress",
			"done", done,
			"total", s.Total,
			"succeeded", s.Succeeded,
			"skipped", s.Skipped,
			"failed", s.Failed,
		)
	}
}

// transferMethod is the method label for metrics; only transfers that did
// I/O are timed.
func transferMethod(res Result) string {
	if res.Outcome == Success || (res.Outcome == Failed && res.Method != "") {
		return res.Method
	}
	return ""
}

func emitEvent(ch chan<- event.Event, ev event.Event) {
	if ch == nil {
		return
	}
	ch <- ev
}
