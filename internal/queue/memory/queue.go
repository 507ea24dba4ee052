// Package memory provides the in-process task queue used by the dispatcher.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Queue is a bounded in-memory task queue with context-aware operations.
type Queue struct {
	ch     chan pipeline.Task
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan pipeline.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends. The
// read lock is held across the send so Close never races a blocked producer.
func (q *Queue) Enqueue(ctx context.Context, task pipeline.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return pipeline.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation. Once the queue
// is closed and drained it returns pipeline.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (pipeline.Task, error) {
	select {
	case <-ctx.Done():
		return pipeline.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return pipeline.Task{}, pipeline.ErrQueueClosed
		}
		return task, nil
	}
}

// Close closes the underlying channel for shutdown. Buffered tasks remain
// dequeueable until the queue drains. Callers must cancel producer contexts
// first; Close waits for in-flight enqueues to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
