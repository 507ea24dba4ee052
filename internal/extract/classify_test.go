package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

func TestClassifySectionByHeading(t *testing.T) {
	t.Parallel()

	tests := []struct {
		heading string
		want    pipeline.SectionType
		weight  float64
	}{
		{"Frequently Asked Questions", pipeline.SectionFAQ, 0.95},
		{"What Is Prediabetes?", pipeline.SectionDefinition, 0.9},
		{"Symptoms", pipeline.SectionSymptom, 0.9},
		{"Signs and Symptoms", pipeline.SectionSymptom, 0.9},
		{"Treatment Options", pipeline.SectionTreatment, 0.85},
		{"Preventing Type 2 Diabetes", pipeline.SectionPrevention, 0.85},
		{"Causes and Risk Factors", pipeline.SectionCause, 0.8},
		{"How Is Diabetes Diagnosed?", pipeline.SectionDiagnosis, 0.8},
		{"Long-Term Complications", pipeline.SectionComplication, 0.8},
		{"Medications", pipeline.SectionMedication, 0.75},
		{"Monitoring Your Blood Sugar", pipeline.SectionMonitoring, 0.75},
		{"Meal Planning Basics", pipeline.SectionNutrition, 0.7},
		{"Exercise and Physical Activity", pipeline.SectionLifestyle, 0.7},
		{"Diabetes Statistics", pipeline.SectionStatistics, 0.65},
		{"Our Newsletter", pipeline.SectionGeneral, 0.5},
	}

	for _, tc := range tests {
		got, weight := classifySection(tc.heading, "")
		assert.Equal(t, tc.want, got, "heading %q", tc.heading)
		assert.InDelta(t, tc.weight, weight, 1e-9, "heading %q", tc.heading)
	}
}

func TestClassifySectionFallsBackToContent(t *testing.T) {
	t.Parallel()

	got, _ := classifySection("Overview", "Symptoms include increased thirst and fatigue.")
	assert.Equal(t, pipeline.SectionSymptom, got)
}

func TestClassifySectionHeadingBeatsContent(t *testing.T) {
	t.Parallel()

	// Content mentioning symptoms must not override a treatment heading.
	got, _ := classifySection("Treatment Options", "Once symptoms appear, treatment should begin promptly.")
	assert.Equal(t, pipeline.SectionTreatment, got)
}

func TestClassifySectionLimitsContentLead(t *testing.T) {
	t.Parallel()

	filler := make([]byte, classifyLeadLength)
	for i := range filler {
		filler[i] = 'x'
	}
	content := string(filler) + " symptoms include thirst"

	got, _ := classifySection("Notes", content)
	assert.Equal(t, pipeline.SectionGeneral, got)
}

func TestPatientRelevance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		section pipeline.SectionType
		density float64
		want    pipeline.Relevance
	}{
		{"symptom defaults high", pipeline.SectionSymptom, 0, pipeline.RelevanceHigh},
		{"general defaults low", pipeline.SectionGeneral, 0, pipeline.RelevanceLow},
		{"dense general raised to medium", pipeline.SectionGeneral, 0.06, pipeline.RelevanceMedium},
		{"dense nutrition raised to high", pipeline.SectionNutrition, 0.06, pipeline.RelevanceHigh},
		{"dense symptom stays high", pipeline.SectionSymptom, 0.2, pipeline.RelevanceHigh},
		{"statistics default low", pipeline.SectionStatistics, 0.01, pipeline.RelevanceLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, patientRelevance(tc.section, tc.density))
		})
	}
}
