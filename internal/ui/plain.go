package ui

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bamsammich/snretrieve/internal/engine"
	"github.com/bamsammich/snretrieve/internal/event"
	"github.com/bamsammich/snretrieve/internal/stats"
)

// plainPresenter turns events into log lines. Per-file successes and
// skips are DEBUG so they only show with --verbose; failures are always
// logged.
type plainPresenter struct {
	log       *slog.Logger
	stats     *stats.Collector
	heartbeat time.Duration
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	var tick <-chan time.Time
	if p.heartbeat > 0 {
		ticker := time.NewTicker(p.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-tick:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.ScanStarted:
		p.log.Info("scanning " + ev.Path)
	case event.ScanComplete:
		p.log.Info(fmt.Sprintf("found %s files", FormatCount(ev.Total)))
	case event.DirCreated:
		p.log.Debug("created directory " + ev.Path)
	case event.FileCompleted:
		if ev.Method == engine.MethodRetrieve {
			p.log.Debug("retrieved "+ev.Path, "residency", ev.Residency, "time", ev.Duration.Round(time.Millisecond))
		} else {
			p.log.Debug("copied "+ev.Path, "size", FormatBytes(ev.Size), "residency", ev.Residency)
		}
	case event.FileSkipped:
		p.log.Debug("skipped "+ev.Path, "reason", ev.Detail)
	case event.FileDryRun:
		p.log.Info("[DRY-RUN] "+ev.Detail+" "+ev.Path, "residency", ev.Residency)
	case event.FileFailed:
		p.log.Error("failed "+ev.Path, "error", ev.Detail)
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.FilesTotal == 0 {
		return
	}
	done := snap.FilesSucceeded + snap.FilesSkipped + snap.FilesFailed + snap.FilesDryRun
	rate := 0.0
	if snap.Elapsed.Seconds() > 0 {
		rate = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}
	p.log.Info(fmt.Sprintf("progress %s/%s files", FormatCount(done), FormatCount(snap.FilesTotal)),
		"active", snap.Active,
		"failed", snap.FilesFailed,
		"copy_rate", FormatRate(rate),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionLine(p.stats.Snapshot())
}
