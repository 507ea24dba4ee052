// Package memory provides in-memory persistence for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/store"
)

// ContentStore implements store.ContentRepository in process memory.
type ContentStore struct {
	mu      sync.RWMutex
	records map[string]pipeline.ContentRecord
}

// NewContentStore constructs an empty ContentStore.
func NewContentStore() *ContentStore {
	return &ContentStore{records: make(map[string]pipeline.ContentRecord)}
}

// GetByURL fetches a record by URL or returns store.ErrNotFound.
func (s *ContentStore) GetByURL(_ context.Context, url string) (pipeline.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	if !ok {
		return pipeline.ContentRecord{}, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Upsert writes the record verbatim.
func (s *ContentStore) Upsert(_ context.Context, record pipeline.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.URL] = cloneRecord(record)
	return nil
}

// MarkProcessed upserts the record as active with the new hash and stats.
func (s *ContentStore) MarkProcessed(_ context.Context, url, contentHash string, crawledAt, expiresAt time.Time, stats store.ProcessedStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[url]
	rec.URL = url
	rec.ContentHash = contentHash
	rec.LastCrawled = crawledAt
	rec.LastModified = stats.LastModified
	rec.Status = pipeline.StatusActive
	rec.ErrorCount = 0
	rec.LastError = ""
	rec.WordCount = stats.WordCount
	rec.ChunkCount = stats.ChunkCount
	rec.VectorIDs = append([]string(nil), stats.VectorIDs...)
	rec.TTL = expiresAt
	s.records[url] = rec
	return nil
}

// IncrementError bumps the error counter and flips the status to error.
func (s *ContentStore) IncrementError(_ context.Context, url, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[url]
	rec.URL = url
	rec.Status = pipeline.StatusError
	rec.ErrorCount++
	rec.LastError = errMsg
	rec.LastCrawled = at
	s.records[url] = rec
	return nil
}

// ListByStatus returns matching records, most recently crawled first.
func (s *ContentStore) ListByStatus(_ context.Context, status pipeline.ContentStatus, limit, offset int) ([]pipeline.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []pipeline.ContentRecord
	for _, rec := range s.records {
		if rec.Status == status {
			matched = append(matched, cloneRecord(rec))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastCrawled.After(matched[j].LastCrawled)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func cloneRecord(rec pipeline.ContentRecord) pipeline.ContentRecord {
	out := rec
	out.VectorIDs = append([]string(nil), rec.VectorIDs...)
	if rec.LastModified != nil {
		ts := *rec.LastModified
		out.LastModified = &ts
	}
	return out
}
