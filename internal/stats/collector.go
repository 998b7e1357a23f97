package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Collector tracks run statistics using lock-free atomic counters. The
// aggregator is the only writer of outcome counters; workers only touch
// the active gauge.
type Collector struct {
	filesTotal     atomic.Int64
	filesSucceeded atomic.Int64
	filesSkipped   atomic.Int64
	filesFailed    atomic.Int64
	filesDryRun    atomic.Int64
	filesCopied    atomic.Int64
	filesRetrieved atomic.Int64
	bytesCopied    atomic.Int64
	dirsCreated    atomic.Int64
	active         atomic.Int64
	peakActive     atomic.Int64
	startTime      time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesTotal     int64
	FilesSucceeded int64
	FilesSkipped   int64
	FilesFailed    int64
	FilesDryRun    int64
	FilesCopied    int64
	FilesRetrieved int64
	BytesCopied    int64
	DirsCreated    int64
	Active         int64
	PeakActive     int64
	Elapsed        time.Duration
}

func (c *Collector) SetFilesTotal(n int64)      { c.filesTotal.Store(n) }
func (c *Collector) AddFilesSucceeded(n int64) { c.filesSucceeded.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)   { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesFailed(n int64)    { c.filesFailed.Add(n) }
func (c *Collector) AddFilesDryRun(n int64)    { c.filesDryRun.Add(n) }
func (c *Collector) AddFilesCopied(n int64)    { c.filesCopied.Add(n) }
func (c *Collector) AddFilesRetrieved(n int64) { c.filesRetrieved.Add(n) }
func (c *Collector) AddBytesCopied(n int64)    { c.bytesCopied.Add(n) }
func (c *Collector) AddDirsCreated(n int64)    { c.dirsCreated.Add(n) }

// Begin marks one transfer as active and returns a func that ends it.
func (c *Collector) Begin() (end func()) {
	n := c.active.Add(1)
	for {
		peak := c.peakActive.Load()
		if n <= peak || c.peakActive.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { c.active.Add(-1) }
}

// Done returns the number of files that reached a terminal outcome.
func (c *Collector) Done() int64 {
	return c.filesSucceeded.Load() + c.filesSkipped.Load() +
		c.filesFailed.Load() + c.filesDryRun.Load()
}

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesTotal:     c.filesTotal.Load(),
		FilesSucceeded: c.filesSucceeded.Load(),
		FilesSkipped:   c.filesSkipped.Load(),
		FilesFailed:    c.filesFailed.Load(),
		FilesDryRun:    c.filesDryRun.Load(),
		FilesCopied:    c.filesCopied.Load(),
		FilesRetrieved: c.filesRetrieved.Load(),
		BytesCopied:    c.bytesCopied.Load(),
		DirsCreated:    c.dirsCreated.Load(),
		Active:         c.active.Load(),
		PeakActive:     c.peakActive.Load(),
		Elapsed:        c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"total=%d succeeded=%d skipped=%d failed=%d dryrun=%d copied=%d retrieved=%d bytes=%d",
		s.FilesTotal, s.FilesSucceeded, s.FilesSkipped, s.FilesFailed, s.FilesDryRun,
		s.FilesCopied, s.FilesRetrieved, s.BytesCopied,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}
