package chunk

import "github.com/carelane/content-pipeline/internal/pipeline"

// linkContext attaches neighborhood context to an ordered chunk list: a
// trailing snippet of the previous chunk, a leading snippet of the next, the
// neighbor IDs, and a position-based context score. It runs after validation
// so snippets never reference rejected chunks.
func (b *Builder) linkContext(chunks []pipeline.ContentChunk) {
	for i := range chunks {
		if i > 0 {
			chunks[i].Context.PrecedingContext = trailingWords(chunks[i-1].Content, b.cfg.OverlapTokens)
			chunks[i].Context.RelatedChunks = append(chunks[i].Context.RelatedChunks, chunks[i-1].ID)
		}
		if i < len(chunks)-1 {
			chunks[i].Context.FollowingContext = leadingWords(chunks[i+1].Content, b.cfg.OverlapTokens)
			chunks[i].Context.RelatedChunks = append(chunks[i].Context.RelatedChunks, chunks[i+1].ID)
		}
		chunks[i].Context.ContextScore = contextScore(i, len(chunks))
		chunks[i].Overlap.Tokens = EstimateTokens(chunks[i].Context.PrecedingContext) +
			EstimateTokens(chunks[i].Context.FollowingContext)
		chunks[i].Overlap.Strategy = chunks[i].Strategy
	}
}

// contextScore rewards chunks that have both neighbors and sit away from the
// document edges. A lone chunk scores 0.5, edge chunks 0.6, interior chunks
// 1.0. The scores are exact literals so they compare cleanly downstream.
func contextScore(index, total int) float64 {
	switch {
	case total <= 1:
		return 0.5
	case index == 0 || index == total-1:
		return 0.6
	default:
		return 1.0
	}
}
