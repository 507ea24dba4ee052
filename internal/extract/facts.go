package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// factTypeWeights seed the confidence score with the section's semantic
// type. Clinical section types carry more weight than narrative ones.
var factTypeWeights = map[pipeline.SectionType]float64{
	pipeline.SectionSymptom:      0.35,
	pipeline.SectionTreatment:    0.35,
	pipeline.SectionMedication:   0.35,
	pipeline.SectionDiagnosis:    0.3,
	pipeline.SectionMonitoring:   0.3,
	pipeline.SectionPrevention:   0.3,
	pipeline.SectionCause:        0.3,
	pipeline.SectionComplication: 0.3,
	pipeline.SectionDefinition:   0.3,
	pipeline.SectionStatistics:   0.3,
	pipeline.SectionNutrition:    0.25,
	pipeline.SectionLifestyle:    0.25,
	pipeline.SectionFAQ:          0.2,
	pipeline.SectionGeneral:      0.15,
	pipeline.SectionOther:        0.1,
}

var (
	authorityPattern = regexp.MustCompile(`(?i)\b(according to|stud(?:y|ies)|research(?:ers)?|clinical trial|randomized|meta-analysis|american diabetes association|world health organization|cdc|nih|guidelines)\b`)
	numericPattern   = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:%|percent|mg/dl|mmol/l|times|fold)\b`)
	hedgingPattern   = regexp.MustCompile(`(?i)\b(may|might|could|possibly|perhaps|some people|sometimes|in some cases|not fully understood|unclear|anecdotal)\b`)
)

// factConfidence scores one sentence. The semantic-type base is raised by
// dictionary hits, authoritative phrasing, and concrete numbers, and lowered
// by hedging language. The result is clamped to [0, 1].
func factConfidence(sentence string, sectionType pipeline.SectionType) float64 {
	score := factTypeWeights[sectionType]

	hits := TermOccurrences(sentence)
	if hits > 3 {
		hits = 3
	}
	score += float64(hits) * 0.1

	if authorityPattern.MatchString(sentence) {
		score += 0.15
	}
	if numericPattern.MatchString(sentence) {
		score += 0.1
	}
	if hedgingPattern.MatchString(sentence) {
		score -= 0.15
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// sectionCategories maps section types with a natural category directly.
// Types without an entry (definition, faq, general, other) fall through to
// the pattern table below.
var sectionCategories = map[pipeline.SectionType]pipeline.FactCategory{
	pipeline.SectionSymptom:      pipeline.CategorySymptom,
	pipeline.SectionTreatment:    pipeline.CategoryTreatment,
	pipeline.SectionPrevention:   pipeline.CategoryPrevention,
	pipeline.SectionCause:        pipeline.CategoryRiskFactor,
	pipeline.SectionDiagnosis:    pipeline.CategoryDiagnostic,
	pipeline.SectionComplication: pipeline.CategoryComplication,
	pipeline.SectionLifestyle:    pipeline.CategoryLifestyle,
	pipeline.SectionNutrition:    pipeline.CategoryNutrition,
	pipeline.SectionMedication:   pipeline.CategoryMedication,
	pipeline.SectionMonitoring:   pipeline.CategoryMonitoring,
	pipeline.SectionStatistics:   pipeline.CategoryStatistic,
}

var categoryFallbacks = []struct {
	pattern  *regexp.Regexp
	category pipeline.FactCategory
}{
	{regexp.MustCompile(`(?i)\b(symptoms?|signs? of)\b`), pipeline.CategorySymptom},
	{regexp.MustCompile(`(?i)\b(treat(?:s|ed|ment|ing)?|therapy)\b`), pipeline.CategoryTreatment},
	{regexp.MustCompile(`(?i)\b(prevent(?:s|ed|ion|ing)?)\b`), pipeline.CategoryPrevention},
	{regexp.MustCompile(`(?i)\b(diagnos\w*|screening|tested for)\b`), pipeline.CategoryDiagnostic},
	{regexp.MustCompile(`(?i)\b(risk factors?|increases? the risk)\b`), pipeline.CategoryRiskFactor},
	{regexp.MustCompile(`(?i)\bcomplications?\b`), pipeline.CategoryComplication},
	{regexp.MustCompile(`(?i)\b(diet|foods?|carb\w*|nutrition\w*|meals?)\b`), pipeline.CategoryNutrition},
	{regexp.MustCompile(`(?i)\b(exercise|physical activity|weight|sleep|smoking)\b`), pipeline.CategoryLifestyle},
	{regexp.MustCompile(`(?i)\b(monitor\w*|checking|meter|cgm)\b`), pipeline.CategoryMonitoring},
	{regexp.MustCompile(`(?i)\b(insulin|metformin|medications?|doses?|drugs?)\b`), pipeline.CategoryMedication},
	{regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:%|percent)\b`), pipeline.CategoryStatistic},
}

func factCategory(sentence string, sectionType pipeline.SectionType) pipeline.FactCategory {
	if cat, ok := sectionCategories[sectionType]; ok {
		return cat
	}
	for _, f := range categoryFallbacks {
		if f.pattern.MatchString(sentence) {
			return f.category
		}
	}
	return pipeline.CategoryGeneral
}

var (
	highEvidencePattern   = regexp.MustCompile(`(?i)\b(randomized controlled trial|meta-analysis|systematic review|clinical (?:trials?|guidelines)|according to the (?:american diabetes association|ada|world health organization|who|cdc))\b`)
	mediumEvidencePattern = regexp.MustCompile(`(?i)\b(stud(?:y|ies)|research(?:ers)?|evidence|data suggests?|experts? recommend|guidelines)\b`)
)

func evidenceLevel(sentence string) pipeline.EvidenceLevel {
	switch {
	case highEvidencePattern.MatchString(sentence):
		return pipeline.EvidenceHigh
	case mediumEvidencePattern.MatchString(sentence):
		return pipeline.EvidenceMedium
	default:
		return pipeline.EvidenceLow
	}
}

// sentenceAbbreviations keep the splitter from breaking on common
// dotted abbreviations. Keys are lowercased with the trailing dot removed.
var sentenceAbbreviations = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "st": {},
	"e.g": {}, "i.e": {}, "vs": {}, "etc": {}, "approx": {},
}

// SplitSentences breaks text on terminal punctuation followed by whitespace.
// Decimal points and abbreviations do not split.
func SplitSentences(text string) []string {
	var sentences []string
	var buf strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		buf.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && endsWithAbbreviation(buf.String()) {
			continue
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			sentences = append(sentences, s)
		}
		buf.Reset()
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func endsWithAbbreviation(s string) bool {
	trimmed := strings.TrimRight(s, ".")
	idx := strings.LastIndexFunc(trimmed, unicode.IsSpace)
	word := strings.ToLower(trimmed[idx+1:])
	_, ok := sentenceAbbreviations[word]
	return ok
}

// extractFacts scores every sentence of a section and keeps the ones above
// the configured confidence threshold. Sentences outside the word band are
// noise (fragments, run-on lists) and are skipped before scoring.
func (e *Extractor) extractFacts(content string, sectionType pipeline.SectionType, ids *ider) []pipeline.MedicalFact {
	var facts []pipeline.MedicalFact
	for _, sentence := range SplitSentences(content) {
		words := countWords(sentence)
		if words < e.cfg.MinFactWords || words > e.cfg.MaxFactWords {
			continue
		}
		confidence := factConfidence(sentence, sectionType)
		if confidence < e.cfg.FactConfidenceThreshold {
			continue
		}
		facts = append(facts, pipeline.MedicalFact{
			ID:            ids.next("fact"),
			Statement:     sentence,
			Confidence:    confidence,
			Category:      factCategory(sentence, sectionType),
			EvidenceLevel: evidenceLevel(sentence),
			KeyTerms:      KeyTerms(sentence, factKeyTermLimit),
		})
	}
	linkRelatedFacts(facts)
	return facts
}

// factKeyTermLimit bounds per-fact key terms; facts cite a sentence, not a
// section, so a handful of terms is enough for cross-referencing.
const factKeyTermLimit = 5

// linkRelatedFacts cross-references facts in the same section that share at
// least one key term. Links are soft references by ID, not ownership.
func linkRelatedFacts(facts []pipeline.MedicalFact) {
	for i := range facts {
		for j := range facts {
			if i == j {
				continue
			}
			if shareTerm(facts[i].KeyTerms, facts[j].KeyTerms) {
				facts[i].RelatedFacts = append(facts[i].RelatedFacts, facts[j].ID)
			}
		}
	}
}

func shareTerm(a, b []string) bool {
	for _, ta := range a {
		for _, tb := range b {
			if strings.EqualFold(ta, tb) {
				return true
			}
		}
	}
	return false
}
