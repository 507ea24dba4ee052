package chunk

import (
	"math"
	"strings"

	"github.com/carelane/content-pipeline/internal/extract"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// ContentAnalysis summarizes the statistics that drive adaptive strategy
// selection. All densities are per 100 words.
type ContentAnalysis struct {
	TotalTokens          int
	WordCount            int
	HeadingCount         int
	FactCount            int
	ParagraphCount       int
	HeadingDensity       float64
	FactDensity          float64
	ParagraphDensity     float64
	MedicalTermDensity   float64
	StructuralComplexity float64
}

// Selection thresholds. Densities are per 100 words; complexity is the 0-1
// weighted combination computed in Analyze.
const (
	factualMinFactDensity    = 1.0
	factualMinFactCount      = 5
	hierarchicalMinHeadings  = 4
	hierarchicalMinComplex   = 0.35
	semanticMinComplex       = 0.15
	complexityHeadingWeight  = 0.5
	complexityFactWeight     = 0.3
	complexityParaWeight     = 0.2
	complexityHeadingCeiling = 2.0
	complexityFactCeiling    = 5.0
	complexityParaCeiling    = 10.0
)

// Analyze computes document statistics from plain text plus, when available,
// extracted structure. A nil structured argument yields zero heading and
// fact counts, which steers selection toward the flat strategies.
func Analyze(content string, structured *pipeline.StructuredContent) ContentAnalysis {
	text := content
	if strings.TrimSpace(text) == "" && structured != nil {
		text = structuredText(structured)
	}

	words := len(strings.Fields(text))
	paragraphs := countParagraphs(text)

	a := ContentAnalysis{
		TotalTokens:    EstimateTokens(text),
		WordCount:      words,
		ParagraphCount: paragraphs,
	}
	if structured != nil {
		for _, sec := range structured.Sections {
			a.HeadingCount += 1 + len(sec.Subsections)
			a.FactCount += len(sec.Facts)
			for _, sub := range sec.Subsections {
				a.FactCount += len(sub.Facts)
			}
		}
	}
	if words == 0 {
		return a
	}

	per100 := float64(words) / 100
	a.HeadingDensity = float64(a.HeadingCount) / per100
	a.FactDensity = float64(a.FactCount) / per100
	a.ParagraphDensity = float64(a.ParagraphCount) / per100
	a.MedicalTermDensity = float64(extract.TermOccurrences(text)) / per100

	a.StructuralComplexity = complexityHeadingWeight*math.Min(1, a.HeadingDensity/complexityHeadingCeiling) +
		complexityFactWeight*math.Min(1, a.FactDensity/complexityFactCeiling) +
		complexityParaWeight*math.Min(1, a.ParagraphDensity/complexityParaCeiling)

	return a
}

// SelectStrategy picks a segmentation strategy from document statistics. It
// is a pure function and is only consulted for hybrid-configured pipelines:
// fact-dense documents chunk per fact group, heading-rich ones per
// subsection, moderately structured ones per section, and flat ones per
// paragraph.
func SelectStrategy(a ContentAnalysis) pipeline.Strategy {
	switch {
	case a.FactDensity >= factualMinFactDensity && a.FactCount >= factualMinFactCount:
		return pipeline.StrategyFactual
	case a.HeadingCount >= hierarchicalMinHeadings && a.StructuralComplexity >= hierarchicalMinComplex:
		return pipeline.StrategyHierarchical
	case a.StructuralComplexity >= semanticMinComplex:
		return pipeline.StrategySemantic
	default:
		return pipeline.StrategyParagraph
	}
}

func countParagraphs(text string) int {
	return len(paragraphs(text))
}

// structuredText flattens a section tree back to plain text, heading lines
// included, for callers that were handed structure without the raw content.
func structuredText(structured *pipeline.StructuredContent) string {
	var parts []string
	appendSection := func(sec pipeline.SemanticSection) {
		if sec.Heading != "" {
			parts = append(parts, sec.Heading)
		}
		if sec.Content != "" {
			parts = append(parts, sec.Content)
		}
	}
	for _, sec := range structured.Sections {
		appendSection(sec)
		for _, sub := range sec.Subsections {
			appendSection(sub)
		}
	}
	return strings.Join(parts, "\n\n")
}
