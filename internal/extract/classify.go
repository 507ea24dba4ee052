package extract

import (
	"regexp"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// classificationRule maps a pattern to a section type. The weight doubles as
// the classification confidence and fixes the rule's precedence: rules are
// listed highest weight first and the first match wins.
type classificationRule struct {
	pattern *regexp.Regexp
	section pipeline.SectionType
	weight  float64
}

var classificationRules = []classificationRule{
	{regexp.MustCompile(`(?i)\b(faq|frequently asked|q\s*&\s*a)\b`), pipeline.SectionFAQ, 0.95},
	{regexp.MustCompile(`(?i)\b(what (?:is|are)|definition of|overview of|defined as)\b`), pipeline.SectionDefinition, 0.9},
	{regexp.MustCompile(`(?i)\b(symptoms?|signs? (?:of|and symptoms)|warning signs?|early signs?)\b`), pipeline.SectionSymptom, 0.9},
	{regexp.MustCompile(`(?i)\b(treatments?|therap(?:y|ies)|manag(?:e|ing|ement)|how to treat)\b`), pipeline.SectionTreatment, 0.85},
	{regexp.MustCompile(`(?i)\b(prevent(?:ion|ing)?|reduce (?:your |the )?risk|lower (?:your |the )?risk)\b`), pipeline.SectionPrevention, 0.85},
	{regexp.MustCompile(`(?i)\b(causes?|caused by|risk factors?|why (?:do|does|you))\b`), pipeline.SectionCause, 0.8},
	{regexp.MustCompile(`(?i)\b(diagnos(?:is|es|ed|ing)|screening|tests? (?:for|used)|glucose tolerance test|a1c test)\b`), pipeline.SectionDiagnosis, 0.8},
	{regexp.MustCompile(`(?i)\b(complications?|long[- ]term (?:effects?|damage)|neuropathy|retinopathy|nephropathy)\b`), pipeline.SectionComplication, 0.8},
	{regexp.MustCompile(`(?i)\b(medications?|medicines?|drugs?|insulin (?:types?|doses?|regimens?)|metformin|side effects?)\b`), pipeline.SectionMedication, 0.75},
	{regexp.MustCompile(`(?i)\b(monitor(?:ing)?|blood sugar levels?|glucose (?:meters?|monitors?)|cgm|checking your)\b`), pipeline.SectionMonitoring, 0.75},
	{regexp.MustCompile(`(?i)\b(diet(?:ary)?|nutrition|carb(?:ohydrate)?s?|meal plan(?:ning)?|foods? to (?:eat|avoid)|glycemic)\b`), pipeline.SectionNutrition, 0.7},
	{regexp.MustCompile(`(?i)\b(lifestyle|exercise|physical activity|weight (?:loss|management)|sleep|stress)\b`), pipeline.SectionLifestyle, 0.7},
	{regexp.MustCompile(`(?i)\b(statistics?|prevalence|incidence|percent of|million (?:people|adults|americans))\b`), pipeline.SectionStatistics, 0.65},
}

// classifyLeadLength bounds how much section content is consulted when the
// heading alone matches no rule. Headings are the stronger signal, so they
// are tested against the full table before any content is.
const classifyLeadLength = 240

func classifySection(heading, content string) (pipeline.SectionType, float64) {
	for _, r := range classificationRules {
		if r.pattern.MatchString(heading) {
			return r.section, r.weight
		}
	}
	lead := content
	if len(lead) > classifyLeadLength {
		lead = lead[:classifyLeadLength]
	}
	for _, r := range classificationRules {
		if r.pattern.MatchString(lead) {
			return r.section, r.weight
		}
	}
	return pipeline.SectionGeneral, 0.5
}

var sectionRelevance = map[pipeline.SectionType]pipeline.Relevance{
	pipeline.SectionSymptom:      pipeline.RelevanceHigh,
	pipeline.SectionTreatment:    pipeline.RelevanceHigh,
	pipeline.SectionMedication:   pipeline.RelevanceHigh,
	pipeline.SectionMonitoring:   pipeline.RelevanceHigh,
	pipeline.SectionPrevention:   pipeline.RelevanceHigh,
	pipeline.SectionNutrition:    pipeline.RelevanceMedium,
	pipeline.SectionLifestyle:    pipeline.RelevanceMedium,
	pipeline.SectionDiagnosis:    pipeline.RelevanceMedium,
	pipeline.SectionCause:        pipeline.RelevanceMedium,
	pipeline.SectionComplication: pipeline.RelevanceMedium,
	pipeline.SectionDefinition:   pipeline.RelevanceMedium,
	pipeline.SectionFAQ:          pipeline.RelevanceMedium,
	pipeline.SectionStatistics:   pipeline.RelevanceLow,
	pipeline.SectionGeneral:      pipeline.RelevanceLow,
	pipeline.SectionOther:        pipeline.RelevanceLow,
}

// relevanceDensityFloor is the medical-term density (hits per word) at which
// a section's relevance is raised one grade above its type default.
const relevanceDensityFloor = 0.05

func patientRelevance(sectionType pipeline.SectionType, termDensity float64) pipeline.Relevance {
	rel, ok := sectionRelevance[sectionType]
	if !ok {
		rel = pipeline.RelevanceLow
	}
	if termDensity >= relevanceDensityFloor {
		rel = raiseRelevance(rel)
	}
	return rel
}

func raiseRelevance(rel pipeline.Relevance) pipeline.Relevance {
	if rel == pipeline.RelevanceLow {
		return pipeline.RelevanceMedium
	}
	return pipeline.RelevanceHigh
}
