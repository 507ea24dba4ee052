// Package chunk turns extracted document structure into bounded,
// context-linked chunks sized for embedding, with a quality gate that
// rejects fragments not worth indexing.
package chunk

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/clock/system"
	"github.com/carelane/content-pipeline/internal/extract"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

const chunkKeywordLimit = 10

// Config bounds chunk sizes and sets the strategy. StrategyHybrid defers the
// choice to content analysis per document.
type Config struct {
	Strategy         pipeline.Strategy `mapstructure:"strategy"`
	TargetTokenCount int               `mapstructure:"target_token_count"`
	MaxTokenCount    int               `mapstructure:"max_token_count"`
	MinTokenCount    int               `mapstructure:"min_token_count"`
	OverlapTokens    int               `mapstructure:"overlap_tokens"`
	QualityThreshold float64           `mapstructure:"quality_threshold"`
	MaxFactsPerChunk int               `mapstructure:"max_facts_per_chunk"`
}

func DefaultConfig() Config {
	return Config{
		Strategy:         pipeline.StrategyHybrid,
		TargetTokenCount: 750,
		MaxTokenCount:    1000,
		MinTokenCount:    100,
		OverlapTokens:    50,
		QualityThreshold: 0.4,
		MaxFactsPerChunk: 10,
	}
}

// Builder produces chunks from extracted content.
type Builder struct {
	cfg    Config
	ids    pipeline.IDGenerator
	clock  pipeline.Clock
	logger *zap.Logger
}

func New(cfg Config, ids pipeline.IDGenerator, clk pipeline.Clock, logger *zap.Logger) *Builder {
	if clk == nil {
		clk = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, ids: ids, clock: clk, logger: logger}
}

// ChunkContent chunks a document. The plain text and the structured view are
// both optional individually, but at least one must carry content. Structure
// is required for the factual, hierarchical, and semantic strategies; when it
// is missing the builder falls back to paragraph chunking with a warning.
func (b *Builder) ChunkContent(content, url, title string, structured *pipeline.StructuredContent) pipeline.ChunkingResult {
	text := strings.TrimSpace(content)
	if text == "" && structured != nil {
		text = structuredText(structured)
	}
	if text == "" {
		return pipeline.ChunkingResult{
			Success:  false,
			Strategy: b.cfg.Strategy,
			Error:    "no content to chunk",
		}
	}
	if title == "" && structured != nil {
		title = structured.Title
	}

	var warnings []string
	strategy := b.cfg.Strategy
	if strategy == pipeline.StrategyHybrid {
		analysis := Analyze(text, structured)
		strategy = SelectStrategy(analysis)
		b.logger.Debug("selected chunking strategy",
			zap.String("url", url),
			zap.String("strategy", string(strategy)),
			zap.Float64("complexity", analysis.StructuralComplexity),
			zap.Float64("fact_density", analysis.FactDensity))
	}
	if structured == nil && requiresStructure(strategy) {
		warnings = append(warnings, fmt.Sprintf("strategy %s needs extracted structure, falling back to paragraph", strategy))
		strategy = pipeline.StrategyParagraph
	}

	drafts := b.draftsFor(strategy, text, structured)
	if len(drafts) == 0 && strategy != pipeline.StrategyParagraph {
		warnings = append(warnings, fmt.Sprintf("strategy %s produced no chunks, falling back to paragraph", strategy))
		strategy = pipeline.StrategyParagraph
		drafts = b.paragraphDrafts(text)
	}

	now := b.clock.Now()
	ids := &ider{gen: b.ids}
	chunks := make([]pipeline.ContentChunk, 0, len(drafts))
	rejected := 0
	for _, d := range drafts {
		chunk := b.buildChunk(d, url, title, strategy, now, ids)
		if reason := b.rejectReason(chunk); reason != "" {
			rejected++
			warnings = append(warnings, fmt.Sprintf("rejected chunk (%s): %s", reason, snippet(chunk.Content)))
			b.logger.Warn("rejected chunk",
				zap.String("url", url),
				zap.String("reason", reason),
				zap.Int("tokens", chunk.TokenCount))
			continue
		}
		chunks = append(chunks, chunk)
	}
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
	}
	b.linkContext(chunks)

	metrics := b.buildMetrics(text, chunks, rejected)
	b.logger.Debug("chunked content",
		zap.String("url", url),
		zap.String("strategy", string(strategy)),
		zap.Int("chunks", len(chunks)),
		zap.Int("rejected", rejected))

	return pipeline.ChunkingResult{
		Success:  true,
		Chunks:   chunks,
		Strategy: strategy,
		Warnings: warnings,
		Metrics:  metrics,
	}
}

func (b *Builder) draftsFor(strategy pipeline.Strategy, text string, structured *pipeline.StructuredContent) []draft {
	switch strategy {
	case pipeline.StrategyFactual:
		return b.factualDrafts(structured)
	case pipeline.StrategyHierarchical:
		return b.hierarchicalDrafts(structured)
	case pipeline.StrategySemantic:
		return b.semanticDrafts(structured)
	case pipeline.StrategySentence:
		return b.sentenceDrafts(text)
	case pipeline.StrategyFixedSize:
		return b.fixedSizeDrafts(text)
	default:
		return b.paragraphDrafts(text)
	}
}

func requiresStructure(s pipeline.Strategy) bool {
	switch s {
	case pipeline.StrategyFactual, pipeline.StrategyHierarchical, pipeline.StrategySemantic:
		return true
	}
	return false
}

func (b *Builder) buildChunk(d draft, url, title string, strategy pipeline.Strategy, now time.Time, ids *ider) pipeline.ContentChunk {
	relevance := medicalRelevance(d.text)
	grade := d.relevance
	if grade == "" {
		grade = relevanceGrade(relevance)
	}
	keywords := d.keywords
	if keywords == nil {
		keywords = extract.KeyTerms(d.text, chunkKeywordLimit)
	}
	tokens := EstimateTokens(d.text)

	return pipeline.ContentChunk{
		ID:               ids.next("chunk"),
		Content:          d.text,
		TokenCount:       tokens,
		WordCount:        len(strings.Fields(d.text)),
		Strategy:         strategy,
		MedicalRelevance: relevance,
		Metadata: pipeline.ChunkMetadata{
			SourceURL:        url,
			SourceTitle:      title,
			SourceSection:    d.section,
			ChunkType:        d.chunkType,
			MedicalKeywords:  keywords,
			FactCount:        d.facts,
			QualityScore:     chunkQuality(tokens, relevance, d.text, b.cfg),
			PatientRelevance: grade,
			CreatedAt:        now,
		},
	}
}

// rejectReason applies the validation gate. Empty string means the chunk is
// acceptable.
func (b *Builder) rejectReason(c pipeline.ContentChunk) string {
	if c.TokenCount < b.cfg.MinTokenCount {
		return fmt.Sprintf("%d tokens below minimum %d", c.TokenCount, b.cfg.MinTokenCount)
	}
	if c.TokenCount > b.cfg.MaxTokenCount {
		return fmt.Sprintf("%d tokens above maximum %d", c.TokenCount, b.cfg.MaxTokenCount)
	}
	if c.Metadata.QualityScore < b.cfg.QualityThreshold {
		return fmt.Sprintf("quality %.2f below threshold %.2f", c.Metadata.QualityScore, b.cfg.QualityThreshold)
	}
	return ""
}

func (b *Builder) buildMetrics(sourceText string, chunks []pipeline.ContentChunk, rejected int) pipeline.ChunkingMetrics {
	m := pipeline.ChunkingMetrics{
		InputTokens:    EstimateTokens(sourceText),
		ChunkCount:     len(chunks),
		RejectedChunks: rejected,
	}
	if len(chunks) == 0 {
		return m
	}

	var ctx, quality, relevance float64
	for _, c := range chunks {
		m.OutputTokens += c.TokenCount
		ctx += c.Context.ContextScore
		quality += c.Metadata.QualityScore
		relevance += c.MedicalRelevance
	}
	if m.InputTokens > 0 {
		m.TokenEfficiency = float64(m.OutputTokens) / float64(m.InputTokens)
	}
	n := float64(len(chunks))
	m.AvgContextScore = ctx / n
	m.AvgQualityScore = quality / n
	m.AvgMedicalRelevance = relevance / n

	mean := float64(m.OutputTokens) / n
	var variance float64
	for _, c := range chunks {
		d := float64(c.TokenCount) - mean
		variance += d * d
	}
	m.TokenStdDev = math.Sqrt(variance / n)
	return m
}

// ider hands out chunk IDs, falling back to a per-document serial when no
// generator is wired.
type ider struct {
	gen    pipeline.IDGenerator
	serial int
}

func (i *ider) next(prefix string) string {
	if i.gen != nil {
		if id, err := i.gen.NewID(); err == nil && id != "" {
			return id
		}
	}
	i.serial++
	return fmt.Sprintf("%s-%d", prefix, i.serial)
}

func snippet(content string) string {
	const max = 60
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
