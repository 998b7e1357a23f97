package stats

import "time"

// Failure records one failed file for the final report.
type Failure struct {
	Path   string
	Detail string
}

// Summary is the aggregate outcome of a retrieval run. It is owned by a
// single aggregator goroutine and handed out by value once the run ends.
type Summary struct {
	Total     int64
	Succeeded int64
	Skipped   int64
	Failed    int64
	DryRun    int64
	Copied    int64
	Retrieved int64
	Bytes     int64
	Failures  []Failure
	Elapsed   time.Duration
}

// Done returns the number of files with a terminal outcome.
func (s Summary) Done() int64 {
	return s.Succeeded + s.Skipped + s.Failed + s.DryRun
}

// Complete reports whether every discovered file was accounted for.
func (s Summary) Complete() bool {
	return s.Done() == s.Total
}

// OK reports whether the run succeeded: no file failed.
func (s Summary) OK() bool {
	return s.Failed == 0
}
