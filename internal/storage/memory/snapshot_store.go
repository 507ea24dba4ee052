package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// SnapshotStore keeps normalized-content snapshots in memory.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]byte)}
}

// Save persists the snapshot and returns a pseudo URI.
func (s *SnapshotStore) Save(_ context.Context, key string, data []byte) (string, error) {
	if key == "" {
		return "", fmt.Errorf("snapshot key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", key), nil
}

// Load returns the stored snapshot or pipeline.ErrSnapshotNotFound.
func (s *SnapshotStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, pipeline.ErrSnapshotNotFound
	}
	return append([]byte(nil), data...), nil
}
