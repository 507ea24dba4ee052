package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound signals that no snapshot exists for the requested key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrQueueClosed signals that the task queue has shut down and drained.
var ErrQueueClosed = errors.New("queue closed")

// SnapshotStore archives the normalized text of each processed URL. The
// change detector loads the previous snapshot to produce audit diffs.
type SnapshotStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
}

// ChunkPublisher hands finished chunks to the external indexing collaborator.
type ChunkPublisher interface {
	Publish(ctx context.Context, chunk ContentChunk) error
	Close() error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a rendered refetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Queue provides enqueue/dequeue semantics for document tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// Hasher computes digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces ids for chunks, facts, sections, and tasks.
type IDGenerator interface {
	NewID() (string, error)
}
