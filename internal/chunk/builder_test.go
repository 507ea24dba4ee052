package chunk

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/content-pipeline/internal/normalize"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

var testNow = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func newBuilder(cfg Config) *Builder {
	return New(cfg, nil, fakeClock{now: testNow}, nil)
}

// para builds one paragraph of n ten-word sentences.
func para(n int) string {
	return strings.TrimSpace(strings.Repeat("Blood glucose control matters every day for people with diabetes. ", n))
}

func TestChunkContentEmptyInput(t *testing.T) {
	res := newBuilder(DefaultConfig()).ChunkContent("", "https://example.org/a", "", nil)

	require.False(t, res.Success)
	assert.Equal(t, "no content to chunk", res.Error)
	assert.Empty(t, res.Chunks)
}

func TestChunkContentSingleParagraph(t *testing.T) {
	text := para(8)
	res := newBuilder(DefaultConfig()).ChunkContent(text, "https://example.org/basics", "Basics", nil)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyParagraph, res.Strategy)
	require.Len(t, res.Chunks, 1)

	c := res.Chunks[0]
	assert.Equal(t, text, c.Content)
	assert.Equal(t, 0, c.ChunkIndex)
	assert.Equal(t, 1, c.TotalChunks)
	assert.Equal(t, 80, c.WordCount)
	assert.Equal(t, 104, c.TokenCount)
	assert.Equal(t, 0.5, c.Context.ContextScore)
	assert.Empty(t, c.Context.RelatedChunks)
	assert.Zero(t, c.Overlap.Tokens)
	assert.Equal(t, "https://example.org/basics", c.Metadata.SourceURL)
	assert.Equal(t, "Basics", c.Metadata.SourceTitle)
	assert.Equal(t, testNow, c.Metadata.CreatedAt)
}

func TestChunkContentNormalizedFlatText(t *testing.T) {
	// The normalizer joins source blocks with single newlines, so a long
	// heading-free page arrives as forty lines with no blank lines between
	// them. Paragraph chunking must still split it instead of rejecting one
	// oversized draft and losing the document.
	paras := make([]string, 40)
	for i := range paras {
		paras[i] = para(5) // 50 words each
	}
	raw := "<html><body><p>" + strings.Join(paras, "</p><p>") + "</p></body></html>"
	text := normalize.Normalize(raw, normalize.Default())
	require.NotContains(t, text, "\n\n")

	res := newBuilder(DefaultConfig()).ChunkContent(text, "https://example.org/flat", "Flat", nil)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyParagraph, res.Strategy)
	require.Len(t, res.Chunks, 3)
	assert.Zero(t, res.Metrics.RejectedChunks)
	for _, c := range res.Chunks {
		assert.GreaterOrEqual(t, c.TokenCount, DefaultConfig().MinTokenCount)
		assert.LessOrEqual(t, c.TokenCount, DefaultConfig().MaxTokenCount)
	}
}

func TestChunkContentFixedSizeWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategyFixedSize
	text := para(1000) // 10,000 words

	res := newBuilder(cfg).ChunkContent(text, "https://example.org/long", "Long", nil)

	require.True(t, res.Success)
	assert.Empty(t, res.Warnings)

	want := int(math.Ceil(10000 * 1.3 / float64(cfg.TargetTokenCount)))
	require.Len(t, res.Chunks, want)

	for i, c := range res.Chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, want, c.TotalChunks)
		assert.GreaterOrEqual(t, c.TokenCount, cfg.MinTokenCount)
		assert.LessOrEqual(t, c.TokenCount, cfg.MaxTokenCount)
		assert.Equal(t, pipeline.StrategyFixedSize, c.Strategy)
		assert.Equal(t, "fixed-size", c.Metadata.ChunkType)
	}

	first, interior := res.Chunks[0], res.Chunks[1]
	assert.Empty(t, first.Context.PrecedingContext)
	assert.NotEmpty(t, first.Context.FollowingContext)
	assert.Equal(t, 0.6, first.Context.ContextScore)
	assert.Equal(t, 1.0, interior.Context.ContextScore)
	assert.Equal(t, []string{first.ID, res.Chunks[2].ID}, interior.Context.RelatedChunks)
	assert.Equal(t, 100, interior.Overlap.Tokens)

	m := res.Metrics
	assert.Equal(t, 13000, m.InputTokens)
	assert.Equal(t, 13004, m.OutputTokens)
	assert.Equal(t, want, m.ChunkCount)
	assert.Zero(t, m.RejectedChunks)
	assert.InDelta(t, 1.0003, m.TokenEfficiency, 0.0005)
	assert.InDelta(t, 0.9556, m.AvgContextScore, 0.0005)
	assert.InDelta(t, 109.49, m.TokenStdDev, 0.05)
	assert.Greater(t, m.AvgQualityScore, 0.8)
	assert.Equal(t, 1.0, m.AvgMedicalRelevance)
}

func TestChunkContentRejectsUndersized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategyParagraph

	res := newBuilder(cfg).ChunkContent("Drink water with every meal.", "https://example.org/tiny", "", nil)

	require.True(t, res.Success)
	assert.Empty(t, res.Chunks)
	assert.Equal(t, 1, res.Metrics.RejectedChunks)
	assert.Zero(t, res.Metrics.ChunkCount)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "below minimum")
}

func TestChunkContentHierarchical(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategyHierarchical
	structured := &pipeline.StructuredContent{
		Title: "Managing Diabetes",
		Sections: []pipeline.SemanticSection{
			{
				Heading:          "Symptoms",
				Content:          para(8),
				KeyTerms:         []string{"glucose"},
				PatientRelevance: pipeline.RelevanceHigh,
			},
			{
				Heading: "Treatment",
				Content: para(8),
				Subsections: []pipeline.SemanticSection{
					{
						Heading: "Insulin",
						Content: para(8),
						Facts:   []pipeline.MedicalFact{{ID: "fact-1"}, {ID: "fact-2"}},
					},
					{Heading: "Metformin", Content: para(8)},
				},
			},
		},
	}

	res := newBuilder(cfg).ChunkContent("", "https://example.org/manage", "", structured)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyHierarchical, res.Strategy)
	require.Len(t, res.Chunks, 4)

	sections := make([]string, 0, len(res.Chunks))
	for _, c := range res.Chunks {
		sections = append(sections, c.Metadata.SourceSection)
	}
	assert.Equal(t, []string{"Symptoms", "Treatment", "Treatment > Insulin", "Treatment > Metformin"}, sections)

	assert.Equal(t, "section", res.Chunks[0].Metadata.ChunkType)
	assert.Equal(t, "subsection", res.Chunks[2].Metadata.ChunkType)
	assert.Equal(t, 2, res.Chunks[2].Metadata.FactCount)
	assert.Equal(t, []string{"glucose"}, res.Chunks[0].Metadata.MedicalKeywords)
	assert.Equal(t, pipeline.RelevanceHigh, res.Chunks[0].Metadata.PatientRelevance)
	assert.Equal(t, "Managing Diabetes", res.Chunks[0].Metadata.SourceTitle)
	assert.True(t, strings.HasPrefix(res.Chunks[2].Content, "Insulin\n\n"))
}

func TestChunkContentHierarchicalSkipsThinIntro(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategyHierarchical
	structured := &pipeline.StructuredContent{
		Sections: []pipeline.SemanticSection{
			{
				Heading: "Management",
				Content: "Keep reading.",
				Subsections: []pipeline.SemanticSection{
					{Heading: "Diet", Content: para(8)},
					{Heading: "Exercise", Content: para(8)},
				},
			},
		},
	}

	res := newBuilder(cfg).ChunkContent("", "https://example.org/manage", "t", structured)

	require.True(t, res.Success)
	require.Len(t, res.Chunks, 2)
	for _, c := range res.Chunks {
		assert.True(t, strings.HasPrefix(c.Metadata.SourceSection, "Management > "))
	}
}

func TestChunkContentFactualGroupsFacts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategyFactual

	facts := make([]pipeline.MedicalFact, 12)
	for i := range facts {
		facts[i] = pipeline.MedicalFact{
			ID:        fmt.Sprintf("fact-%d", i+1),
			Statement: "Metformin lowers blood glucose levels in adults with type 2 diabetes.",
		}
	}
	structured := &pipeline.StructuredContent{
		Sections: []pipeline.SemanticSection{
			{Heading: "Medication", Content: para(8), Facts: facts},
		},
	}

	res := newBuilder(cfg).ChunkContent("", "https://example.org/meds", "t", structured)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyFactual, res.Strategy)
	require.Len(t, res.Chunks, 1)

	c := res.Chunks[0]
	assert.Equal(t, cfg.MaxFactsPerChunk, c.Metadata.FactCount)
	assert.Equal(t, "facts", c.Metadata.ChunkType)
	assert.Equal(t, "Medication", c.Metadata.SourceSection)
	assert.Equal(t, pipeline.RelevanceHigh, c.Metadata.PatientRelevance)

	// The two facts past the cap form an undersized chunk and are rejected.
	assert.Equal(t, 1, res.Metrics.RejectedChunks)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "below minimum")
}

func TestChunkContentFactualWithoutFactsFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategyFactual
	structured := &pipeline.StructuredContent{
		Sections: []pipeline.SemanticSection{{Heading: "Overview", Content: para(8)}},
	}

	res := newBuilder(cfg).ChunkContent(para(8), "https://example.org/plain", "t", structured)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyParagraph, res.Strategy)
	require.Len(t, res.Chunks, 1)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "falling back to paragraph")
}

func TestChunkContentStructureRequired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategySemantic

	res := newBuilder(cfg).ChunkContent(para(8), "https://example.org/flat", "t", nil)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyParagraph, res.Strategy)
	require.Len(t, res.Chunks, 1)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "needs extracted structure")
}

func TestChunkContentSemanticSplitsOversized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = pipeline.StrategySemantic

	paras := make([]string, 9)
	for i := range paras {
		paras[i] = para(10)
	}
	structured := &pipeline.StructuredContent{
		Sections: []pipeline.SemanticSection{
			{
				Heading:  "Complications",
				Content:  strings.Join(paras, "\n\n"),
				KeyTerms: []string{"diabetes"},
			},
		},
	}

	res := newBuilder(cfg).ChunkContent("", "https://example.org/comp", "t", structured)

	require.True(t, res.Success)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 910, res.Chunks[0].TokenCount)
	assert.Equal(t, 260, res.Chunks[1].TokenCount)
	for _, c := range res.Chunks {
		assert.Equal(t, "semantic", c.Metadata.ChunkType)
		assert.Equal(t, "Complications", c.Metadata.SourceSection)
		assert.Equal(t, []string{"diabetes"}, c.Metadata.MedicalKeywords)
		assert.LessOrEqual(t, c.TokenCount, cfg.MaxTokenCount)
	}
}

func TestChunkContentHybridPicksFactual(t *testing.T) {
	facts := make([]pipeline.MedicalFact, 6)
	for i := range facts {
		facts[i] = pipeline.MedicalFact{
			ID:        fmt.Sprintf("fact-%d", i+1),
			Statement: "Metformin lowers fasting blood glucose by about twenty percent in adults with type 2 diabetes.",
		}
	}
	structured := &pipeline.StructuredContent{
		Sections: []pipeline.SemanticSection{
			{Heading: "Evidence", Content: para(50), Facts: facts},
		},
	}

	res := newBuilder(DefaultConfig()).ChunkContent(para(50), "https://example.org/evidence", "t", structured)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyFactual, res.Strategy)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, 6, res.Chunks[0].Metadata.FactCount)
}

func TestChunkContentHybridPicksHierarchical(t *testing.T) {
	headings := []string{"Symptom Overview", "Insulin Therapy", "Diet Planning", "Foot Care", "Eye Exams"}
	sections := make([]pipeline.SemanticSection, len(headings))
	for i, h := range headings {
		sections[i] = pipeline.SemanticSection{Heading: h, Content: para(8)}
	}
	sections[0].Facts = []pipeline.MedicalFact{{ID: "fact-1"}, {ID: "fact-2"}}
	structured := &pipeline.StructuredContent{Sections: sections}

	res := newBuilder(DefaultConfig()).ChunkContent("", "https://example.org/guide", "t", structured)

	require.True(t, res.Success)
	assert.Equal(t, pipeline.StrategyHierarchical, res.Strategy)
	require.Len(t, res.Chunks, len(headings))
	assert.Equal(t, 2, res.Chunks[0].Metadata.FactCount)
}

func TestChunkContentTokenBoundsAlwaysHold(t *testing.T) {
	paras := make([]string, 30)
	for i := range paras {
		paras[i] = para(10)
	}
	text := strings.Join(paras, "\n\n")

	cfg := DefaultConfig()
	for _, strategy := range []pipeline.Strategy{
		pipeline.StrategyParagraph,
		pipeline.StrategySentence,
		pipeline.StrategyFixedSize,
	} {
		cfg.Strategy = strategy
		res := newBuilder(cfg).ChunkContent(text, "https://example.org/any", "t", nil)
		require.True(t, res.Success, "strategy %s", strategy)
		require.NotEmpty(t, res.Chunks, "strategy %s", strategy)
		for _, c := range res.Chunks {
			assert.GreaterOrEqual(t, c.TokenCount, cfg.MinTokenCount, "strategy %s", strategy)
			assert.LessOrEqual(t, c.TokenCount, cfg.MaxTokenCount, "strategy %s", strategy)
			assert.Equal(t, len(res.Chunks), c.TotalChunks, "strategy %s", strategy)
		}
	}
}
