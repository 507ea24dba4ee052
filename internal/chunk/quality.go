package chunk

import (
	"math"
	"strings"

	"github.com/carelane/content-pipeline/internal/extract"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// relevanceDensityCeiling is the term density (hits per 100 words) treated
// as fully medical: five hits per hundred words scores 1.0.
const relevanceDensityCeiling = 5.0

// medicalRelevance grades text 0-1 by domain-term density.
func medicalRelevance(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	per100 := float64(extract.TermOccurrences(text)) / (float64(words) / 100)
	return math.Min(1, per100/relevanceDensityCeiling)
}

// relevanceGrade buckets a 0-1 relevance score for chunk metadata.
func relevanceGrade(score float64) pipeline.Relevance {
	switch {
	case score >= 0.66:
		return pipeline.RelevanceHigh
	case score >= 0.33:
		return pipeline.RelevanceMedium
	default:
		return pipeline.RelevanceLow
	}
}

// chunkQuality scores one chunk: a base plus band bonuses for in-range size,
// proximity to the target size, medical relevance, and sentence
// completeness. The result feeds the validation gate.
func chunkQuality(tokenCount int, relevance float64, content string, cfg Config) float64 {
	score := 0.25

	if tokenCount >= cfg.MinTokenCount && tokenCount <= cfg.MaxTokenCount {
		score += 0.25
	}
	if within := float64(tokenCount); within >= 0.5*float64(cfg.TargetTokenCount) && within <= 1.2*float64(cfg.TargetTokenCount) {
		score += 0.1
	}
	score += 0.25 * relevance
	if endsSentence(content) {
		score += 0.15
	}

	return math.Min(1, score)
}

// endsSentence reports whether content stops at a sentence boundary rather
// than mid-thought.
func endsSentence(content string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(content), `"')]`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ':':
		return true
	default:
		return false
	}
}
