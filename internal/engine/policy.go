package engine

import (
	"errors"
	"time"
)

// DefaultWorkers is the worker pool size when none is configured.
const DefaultWorkers = 4

// Policy is the transfer configuration resolved once at startup. It is
// passed by value and never mutated while a run is in progress.
type Policy struct {
	Workers int
	Copy    int    // storage copy selector, 0 = storage manager default
	Tier    string // restore tier hint for archive-class media
	Force   bool
	DryRun  bool
	Verify  bool
	Timeout time.Duration // per file, 0 = no limit
	BWLimit int64         // bytes/sec for local copies, 0 = unlimited
}

// Validate checks the policy for values that can never work.
func (p Policy) Validate() error {
	if p.Workers < 1 {
		return errors.New("parallel must be a positive integer")
	}
	if p.Copy < 0 {
		return errors.New("copy must be a positive integer")
	}
	if p.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if p.BWLimit < 0 {
		return errors.New("bwlimit must not be negative")
	}
	return nil
}
