package engine

import (
	"context"
	"sync"

	"github.com/bamsammich/snretrieve/internal/stats"
)

// Transferer is the per-file unit of work run by the pool.
type Transferer interface {
	Transfer(ctx context.Context, task FileTask) Result
}

// WorkerPool runs a fixed number of workers over a task queue. At most
// NumWorkers transfers are in flight at any moment.
type WorkerPool struct {
	numWorkers int
	transfer   Transferer
	stats      *stats.Collector
}

// NewWorkerPool creates a pool of numWorkers workers.
func NewWorkerPool(numWorkers int, t Transferer, collector *stats.Collector) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &WorkerPool{numWorkers: numWorkers, transfer: t, stats: collector}
}

// Run consumes tasks until the channel closes, sending exactly one Result
// per task. Once ctx is cancelled the remaining tasks are drained as
// Failed without any I/O. Run blocks until every worker has returned.
func (wp *WorkerPool) Run(ctx context.Context, tasks <-chan FileTask, results chan<- Result) {
	var wg sync.WaitGroup
	for id := range wp.numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					results <- Result{Task: task, Outcome: Failed, Detail: "cancelled", WorkerID: id}
					continue
				}
				end := wp.stats.Begin()
				res := wp.transfer.Transfer(ctx, task)
				end()
				res.WorkerID = id
				results <- res
			}
		}()
	}
	wg.Wait()
}
