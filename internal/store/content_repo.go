package store

import (
	"context"
	"errors"
	"time"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// ErrNotFound signals that no record exists for the requested URL.
var ErrNotFound = errors.New("content record not found")

// ProcessedStats carries the per-pass counters written alongside a new hash
// when a document finishes processing.
type ProcessedStats struct {
	// WordCount is the normalized word count of the document.
	WordCount int
	// ChunkCount is the number of chunks that passed validation.
	ChunkCount int
	// VectorIDs references the published chunks at the external sink.
	VectorIDs []string
	// LastModified is the fetch-reported modification time, when present.
	LastModified *time.Time
}

// ContentRepository persists per-URL tracking state. Reads never mutate;
// writes are keyed by URL, so concurrent documents never contend on the same
// row.
type ContentRepository interface {
	// GetByURL loads a single record or returns ErrNotFound.
	GetByURL(ctx context.Context, url string) (pipeline.ContentRecord, error)
	// Upsert writes a caller-assembled record verbatim.
	Upsert(ctx context.Context, record pipeline.ContentRecord) error
	// MarkProcessed upserts the record as active with the new hash, crawl
	// time, stats, and expiry, resetting the error counter.
	MarkProcessed(ctx context.Context, url, contentHash string, crawledAt, expiresAt time.Time, stats ProcessedStats) error
	// IncrementError bumps the error counter and flips the status to error.
	IncrementError(ctx context.Context, url, errMsg string, at time.Time) error
	// ListByStatus pages through records in a given lifecycle state.
	ListByStatus(ctx context.Context, status pipeline.ContentStatus, limit, offset int) ([]pipeline.ContentRecord, error)
}
