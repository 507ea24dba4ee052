package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

func TestContextScore(t *testing.T) {
	assert.Equal(t, 0.5, contextScore(0, 1))
	assert.Equal(t, 0.6, contextScore(0, 3))
	assert.Equal(t, 1.0, contextScore(1, 3))
	assert.Equal(t, 0.6, contextScore(2, 3))
}

func TestLinkContext(t *testing.T) {
	chunks := []pipeline.ContentChunk{
		{ID: "chunk-1", Content: para(10)},
		{ID: "chunk-2", Content: para(10)},
		{ID: "chunk-3", Content: para(10)},
	}
	b := newBuilder(DefaultConfig())

	b.linkContext(chunks)

	first, mid, last := chunks[0], chunks[1], chunks[2]

	assert.Empty(t, first.Context.PrecedingContext)
	assert.Equal(t, []string{"chunk-2"}, first.Context.RelatedChunks)
	assert.Equal(t, 50, first.Overlap.Tokens)

	// 50 overlap tokens buy 38 words from each neighbor.
	wantLead := strings.Join(strings.Fields(para(10))[:38], " ")
	wantTail := strings.Join(strings.Fields(para(10))[100-38:], " ")
	assert.Equal(t, wantTail, mid.Context.PrecedingContext)
	assert.Equal(t, wantLead, mid.Context.FollowingContext)
	assert.Equal(t, []string{"chunk-1", "chunk-3"}, mid.Context.RelatedChunks)
	assert.Equal(t, 100, mid.Overlap.Tokens)
	assert.Equal(t, 1.0, mid.Context.ContextScore)

	assert.Empty(t, last.Context.FollowingContext)
	assert.Equal(t, 0.6, last.Context.ContextScore)
}

func TestLinkContextSingleChunk(t *testing.T) {
	chunks := []pipeline.ContentChunk{{ID: "chunk-1", Content: para(10)}}
	newBuilder(DefaultConfig()).linkContext(chunks)

	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Context.PrecedingContext)
	assert.Empty(t, chunks[0].Context.FollowingContext)
	assert.Empty(t, chunks[0].Context.RelatedChunks)
	assert.Equal(t, 0.5, chunks[0].Context.ContextScore)
	assert.Zero(t, chunks[0].Overlap.Tokens)
}
