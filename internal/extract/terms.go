package extract

import (
	"regexp"
	"strings"
)

// medicalTerms is the exact-match dictionary consulted first during key-term
// extraction. Multi-word entries precede their single-word stems so the most
// specific phrasing is the one reported. Matching is substring-based over
// lowercased text, so plural and inflected forms hit their stem entry.
var medicalTerms = []string{
	"type 1 diabetes", "type 2 diabetes", "gestational diabetes", "prediabetes",
	"diabetic ketoacidosis", "insulin resistance", "insulin pump", "insulin sensitivity",
	"blood sugar", "blood glucose", "fasting glucose", "glucose tolerance",
	"glycemic index", "continuous glucose monitor", "glucose meter",
	"beta cells", "metabolic syndrome", "cardiovascular disease",
	"diabetic retinopathy", "diabetic neuropathy", "diabetic nephropathy",
	"diabetic foot", "kidney disease", "heart disease", "blood pressure",
	"hba1c", "a1c", "insulin", "glucose", "diabetes", "hyperglycemia",
	"hypoglycemia", "metformin", "sulfonylurea", "glucagon", "ketones",
	"pancreas", "carbohydrate", "neuropathy", "retinopathy", "nephropathy",
	"obesity", "cholesterol", "endocrinologist", "dietitian",
}

// termPatterns match measurement values and named variants that the
// dictionary cannot enumerate.
var termPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg/dl|mmol/l)\b`),
	regexp.MustCompile(`(?i)\b(?:hba1c|a1c)\s+(?:of|above|below|over|under)\s+\d+(?:\.\d+)?%?`),
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*units?\s+of\s+insulin\b`),
	regexp.MustCompile(`(?i)\btype\s*[12]\s*diabetes\b`),
}

// properNounPattern catches runs of two or more capitalized words, which on
// medical pages are almost always organizations, drug brands, or named
// tests. Single capitalized words are skipped as likely sentence starts.
var properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]{2,}(?:\s+[A-Z][a-z]{2,}){1,3}\b`)

// KeyTerms pulls domain terms from text: dictionary hits first, then pattern
// matches, then proper nouns. Terms are deduplicated case-insensitively and
// capped at limit.
func KeyTerms(text string, limit int) []string {
	if limit <= 0 || strings.TrimSpace(text) == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var terms []string
	seen := make(map[string]struct{})
	add := func(term string) bool {
		term = strings.TrimSpace(term)
		if term != "" {
			key := strings.ToLower(term)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				terms = append(terms, term)
			}
		}
		return len(terms) < limit
	}

	for _, term := range medicalTerms {
		if strings.Contains(lower, term) && !add(term) {
			return terms
		}
	}
	for _, p := range termPatterns {
		for _, m := range p.FindAllString(text, -1) {
			if !add(strings.ToLower(m)) {
				return terms
			}
		}
	}
	for _, m := range properNounPattern.FindAllString(text, -1) {
		m = strings.TrimPrefix(m, "The ")
		if !add(m) {
			return terms
		}
	}
	return terms
}

// TermOccurrences counts dictionary-term occurrences in text. Overlapping
// entries each count, so the result is a weight, not a distinct-term count.
func TermOccurrences(text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, term := range medicalTerms {
		hits += strings.Count(lower, term)
	}
	return hits
}
