package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan pipeline.Task, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	task := pipeline.Task{ID: "task-1", URL: "https://example.com/diabetes"}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.ID != "task-1" {
			t.Fatalf("expected task-1, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), pipeline.Task{ID: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, pipeline.Task{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), pipeline.Task{ID: "buffered"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()

	// Buffered tasks drain before the closed sentinel appears.
	task, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if task.ID != "buffered" {
		t.Fatalf("expected buffered task, got %+v", task)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, pipeline.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Enqueue(context.Background(), pipeline.Task{}); !errors.Is(err, pipeline.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed on enqueue, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
