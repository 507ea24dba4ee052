package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "two plain sentences",
			input: "First sentence here. Second sentence there.",
			want:  []string{"First sentence here.", "Second sentence there."},
		},
		{
			name:  "abbreviation does not split",
			input: "Dr. Smith treats diabetes. She works downtown.",
			want:  []string{"Dr. Smith treats diabetes.", "She works downtown."},
		},
		{
			name:  "decimal does not split",
			input: "An A1C of 6.5 confirms diabetes. Retest annually.",
			want:  []string{"An A1C of 6.5 confirms diabetes.", "Retest annually."},
		},
		{
			name:  "mixed terminators",
			input: "Is thirst a symptom? Yes! Drink water.",
			want:  []string{"Is thirst a symptom?", "Yes!", "Drink water."},
		},
		{
			name:  "trailing text without terminator",
			input: "Complete sentence. trailing fragment",
			want:  []string{"Complete sentence.", "trailing fragment"},
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, SplitSentences(tc.input))
		})
	}
}

func TestFactConfidenceSignals(t *testing.T) {
	t.Parallel()

	plain := factConfidence("Walking after meals helps lower blood sugar.", pipeline.SectionTreatment)
	authoritative := factConfidence("According to the American Diabetes Association, walking after meals helps lower blood sugar.", pipeline.SectionTreatment)
	hedged := factConfidence("Walking after meals may help lower blood sugar in some people.", pipeline.SectionTreatment)

	assert.Greater(t, authoritative, plain)
	assert.Less(t, hedged, plain)
}

func TestFactConfidenceClamped(t *testing.T) {
	t.Parallel()

	low := factConfidence("It may help.", pipeline.SectionOther)
	assert.GreaterOrEqual(t, low, 0.0)

	high := factConfidence(
		"According to a randomized clinical trial, insulin lowered blood glucose by 30% and reduced hba1c in patients with type 2 diabetes.",
		pipeline.SectionTreatment,
	)
	assert.LessOrEqual(t, high, 1.0)
}

func TestEvidenceLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sentence string
		want     pipeline.EvidenceLevel
	}{
		{"A randomized controlled trial demonstrated lower A1C in the treatment arm.", pipeline.EvidenceHigh},
		{"According to the American Diabetes Association, screening should start at 35.", pipeline.EvidenceHigh},
		{"Studies suggest regular exercise improves insulin sensitivity.", pipeline.EvidenceMedium},
		{"Many patients feel thirsty in the afternoon.", pipeline.EvidenceLow},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, evidenceLevel(tc.sentence), "sentence %q", tc.sentence)
	}
}

func TestFactCategoryMapping(t *testing.T) {
	t.Parallel()

	// Section types with a direct category ignore sentence patterns.
	assert.Equal(t, pipeline.CategorySymptom, factCategory("Anything at all.", pipeline.SectionSymptom))
	assert.Equal(t, pipeline.CategoryStatistic, factCategory("Anything at all.", pipeline.SectionStatistics))

	// Types without one fall back to sentence patterns.
	assert.Equal(t, pipeline.CategoryMedication, factCategory("Metformin lowers glucose production in the liver.", pipeline.SectionGeneral))
	assert.Equal(t, pipeline.CategoryStatistic, factCategory("About 11 percent of adults are affected.", pipeline.SectionGeneral))
	assert.Equal(t, pipeline.CategoryGeneral, factCategory("The clinic opens at nine.", pipeline.SectionGeneral))
}

func TestExtractFactsFiltersAndLinks(t *testing.T) {
	t.Parallel()

	content := "Insulin therapy helps many patients control their blood sugar levels effectively. " +
		"Too short. " +
		"Most adults with type 2 diabetes eventually need insulin to reach their target range."

	e := newExtractor()
	facts := e.extractFacts(content, pipeline.SectionTreatment, &ider{})

	require.Len(t, facts, 2)
	for _, fact := range facts {
		assert.Equal(t, pipeline.CategoryTreatment, fact.Category)
		assert.GreaterOrEqual(t, fact.Confidence, e.cfg.FactConfidenceThreshold)
		assert.NotEmpty(t, fact.ID)
		assert.Contains(t, fact.KeyTerms, "insulin")
	}
	assert.Equal(t, []string{facts[1].ID}, facts[0].RelatedFacts)
	assert.Equal(t, []string{facts[0].ID}, facts[1].RelatedFacts)
}

func TestExtractFactsBelowThresholdDropped(t *testing.T) {
	t.Parallel()

	e := newExtractor()
	facts := e.extractFacts(
		"The website was redesigned last spring with a cleaner layout for visitors.",
		pipeline.SectionGeneral,
		&ider{},
	)
	assert.Empty(t, facts)
}
