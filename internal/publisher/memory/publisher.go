// Package memory contains an in-memory chunk publisher for tests and
// local development.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Publisher stores published chunks for inspection.
type Publisher struct {
	mu     sync.RWMutex
	chunks []pipeline.ContentChunk
	closed bool
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the chunk.
func (p *Publisher) Publish(_ context.Context, chunk pipeline.ContentChunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("publisher closed")
	}
	p.chunks = append(p.chunks, chunk)
	return nil
}

// Close marks the publisher closed; further publishes fail.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Chunks returns the recorded chunks.
func (p *Publisher) Chunks() []pipeline.ContentChunk {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]pipeline.ContentChunk, len(p.chunks))
	copy(out, p.chunks)
	return out
}
