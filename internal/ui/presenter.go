package ui

import (
	"log/slog"
	"time"

	"github.com/bamsammich/snretrieve/internal/event"
	"github.com/bamsammich/snretrieve/internal/stats"
)

// Presenter consumes engine events and reports progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final one-line summary.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Logger *slog.Logger
	Stats  *stats.Collector
	// Heartbeat is the interval between time-based progress lines; 0 disables them.
	Heartbeat time.Duration
}

// NewPresenter creates the presenter for a run.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &plainPresenter{log: logger, stats: collector, heartbeat: cfg.Heartbeat}
}
