// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/carelane/content-pipeline/internal/metrics"
	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/worker"
)

// Dispatcher fans out queued tasks to a pool of workers.
type Dispatcher struct {
	queue   pipeline.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue pipeline.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every worker returns: on context
// cancellation in serve mode, or once the queue closes and drains in batch
// mode.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, task pipeline.Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
