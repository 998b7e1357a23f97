package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/snretrieve/internal/event"
	"github.com/bamsammich/snretrieve/internal/filter"
	"github.com/bamsammich/snretrieve/internal/metrics"
	"github.com/bamsammich/snretrieve/internal/stats"
	"github.com/bamsammich/snretrieve/internal/stornext"
)

// Config describes a retrieval run.
type Config struct {
	Src           string
	Dst           string
	Select        *filter.Selector
	Policy        Policy
	Manager       stornext.Manager
	Events        chan<- event.Event
	Stats         *stats.Collector
	Metrics       *metrics.Recorder
	ProgressEvery int
}

// RunResult is the outcome of a retrieval run. Err is set only for fatal
// problems that prevented the run; per-file failures live in Summary.
type RunResult struct {
	Summary  stats.Summary
	ScanErrs []error
	Err      error
}

// OK reports whether the run finished with no failed file and no
// unreadable source entries.
func (r RunResult) OK() bool {
	return r.Err == nil && r.Summary.OK() && len(r.ScanErrs) == 0
}

// Run executes a retrieval run, blocking until every file has a terminal
// outcome.
func Run(ctx context.Context, cfg Config) RunResult {
	if err := cfg.Policy.Validate(); err != nil {
		return RunResult{Err: err}
	}
	if cfg.Manager == nil {
		return RunResult{Err: errors.New("no storage manager configured")}
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}

	src, dst, err := resolveRoots(cfg.Src, cfg.Dst)
	if err != nil {
		return RunResult{Err: err}
	}

	start := time.Now()
	emitEvent(cfg.Events, event.Event{Type: event.ScanStarted, Timestamp: start, Path: src})

	inv, err := NewScanner(ScannerConfig{SrcRoot: src, DstRoot: dst, Select: cfg.Select}).Scan(ctx)
	if err != nil {
		return RunResult{Err: err}
	}
	for _, scanErr := range inv.Errs {
		slog.Warn("scan error", "error", scanErr)
	}
	cfg.Stats.SetFilesTotal(int64(len(inv.Files)))
	emitEvent(cfg.Events, event.Event{
		Type:      event.ScanComplete,
		Timestamp: time.Now(),
		Total:     int64(len(inv.Files)),
	})
	slog.Info("scan complete", "files", len(inv.Files), "dirs", len(inv.Dirs))
	if inv.Filtered > 0 {
		slog.Info("files outside selection", "count", inv.Filtered)
	}

	if !cfg.Policy.DryRun {
		if err := createDirs(inv, cfg); err != nil {
			return RunResult{Err: err, ScanErrs: inv.Errs}
		}
	}

	summary := dispatch(ctx, cfg, inv.Files)
	summary.Elapsed = time.Since(start)

	if !cfg.Policy.DryRun {
		finalizeDirs(inv)
	}
	cfg.Metrics.Finish(time.Now(), summary.OK() && len(inv.Errs) == 0)

	return RunResult{Summary: summary, ScanErrs: inv.Errs}
}

// dispatch feeds files to the worker pool in discovery order and
// aggregates one result per file.
func dispatch(ctx context.Context, cfg Config, files []FileTask) stats.Summary {
	workers := cfg.Policy.Workers
	tasks := make(chan FileTask, workers*2)
	results := make(chan Result, workers*2)

	go func() {
		defer close(tasks)
		for _, task := range files {
			tasks <- task
		}
	}()

	pool := NewWorkerPool(workers, NewDispatcher(cfg.Policy, cfg.Manager), cfg.Stats)
	go func() {
		defer close(results)
		pool.Run(ctx, tasks, results)
	}()

	agg := newAggregator(len(files), cfg.Stats, cfg.Events, cfg.Metrics, cfg.ProgressEvery)
	return agg.run(results)
}

func resolveRoots(srcArg, dstArg string) (string, string, error) {
	src, err := filepath.Abs(srcArg)
	if err != nil {
		return "", "", fmt.Errorf("source: %w", err)
	}
	dst, err := filepath.Abs(dstArg)
	if err != nil {
		return "", "", fmt.Errorf("destination: %w", err)
	}
	if src == dst {
		return "", "", errors.New("source and destination are the same directory")
	}
	if _, err := Relocate(src, dst, dst); err == nil {
		return "", "", fmt.Errorf("destination %s is inside source %s", dst, src)
	}
	return src, dst, nil
}

// createDirs recreates the source hierarchy under the destination before
// any file is dispatched. Directories get owner rwx until finalizeDirs
// so that restrictive source modes do not block writing their contents.
func createDirs(inv Inventory, cfg Config) error {
	root := inv.Root
	if _, err := os.Stat(root.DstPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(root.DstPath, 0o755); err != nil {
			return fmt.Errorf("create destination: %w", err)
		}
		if err := unix.Chmod(root.DstPath, root.Mode|0o700); err != nil {
			return fmt.Errorf("chmod destination: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("destination: %w", err)
	}

	for _, dir := range inv.Dirs {
		if err := os.MkdirAll(dir.DstPath, 0o755); err != nil {
			// Files below will fail individually.
			slog.Warn("create directory failed", "path", dir.DstPath, "error", err)
			continue
		}
		if err := unix.Chmod(dir.DstPath, dir.Mode|0o700); err != nil {
			slog.Warn("chmod directory failed", "path", dir.DstPath, "error", err)
			continue
		}
		cfg.Stats.AddDirsCreated(1)
		emitEvent(cfg.Events, event.Event{Type: event.DirCreated, Timestamp: time.Now(), Path: dir.DstPath})
	}
	return nil
}

// finalizeDirs applies the exact source modes and times, deepest first so
// that setting a parent's mtime is not undone by work in its children.
func finalizeDirs(inv Inventory) {
	dirs := slices.Clone(inv.Dirs)
	slices.Reverse(dirs)
	for _, dir := range dirs {
		if err := unix.Chmod(dir.DstPath, dir.Mode); err != nil {
			slog.Debug("finalize directory mode", "path", dir.DstPath, "error", err)
			continue
		}
		if err := setPathTimes(dir.DstPath, dir.AccTime, dir.ModTime); err != nil {
			slog.Debug("finalize directory times", "path", dir.DstPath, "error", err)
		}
	}
}
