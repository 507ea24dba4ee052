package memory

import (
	"context"
	"testing"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

func TestPublisherStoresChunks(t *testing.T) {
	t.Parallel()

	pub := New()
	if err := pub.Publish(context.Background(), pipeline.ContentChunk{ID: "chunk-1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := pub.Publish(context.Background(), pipeline.ContentChunk{ID: "chunk-2"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	chunks := pub.Chunks()
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ID != "chunk-1" || chunks[1].ID != "chunk-2" {
		t.Fatalf("chunks not recorded in order: %+v", chunks)
	}

	chunks[0].ID = "modified"
	if pub.Chunks()[0].ID == "modified" {
		t.Fatal("expected Chunks() to return a copy")
	}
}

func TestPublisherRejectsAfterClose(t *testing.T) {
	t.Parallel()

	pub := New()
	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pub.Publish(context.Background(), pipeline.ContentChunk{ID: "late"}); err == nil {
		t.Fatal("expected publish after close to fail")
	}
}
