package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

var testNow = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func newExtractor() *Extractor {
	return New(DefaultConfig(), nil, fakeClock{now: testNow}, nil)
}

const diabetesPage = `<!DOCTYPE html>
<html>
<head>
  <title>Type 2 Diabetes Guide</title>
  <script>trackPageView();</script>
  <style>.hero { color: red; }</style>
</head>
<body>
<nav><ul><li><a href="/">Home</a></li><li><a href="/conditions">Conditions</a></li></ul></nav>
<div class="advertisement">Sponsored: glucose meters from $19.99</div>
<article>
  <h2>What Is Type 2 Diabetes?</h2>
  <p>Type 2 diabetes is a chronic condition that affects the way the body
  processes blood sugar, developing slowly over many years in most adults.</p>
  <h2>Symptoms</h2>
  <p>Common symptoms of type 2 diabetes include increased thirst, frequent
  urination, and blurred vision that develops gradually over months.</p>
  <h3>Early Warning Signs</h3>
  <p>Slow-healing sores and frequent infections are early warning signs that
  blood sugar has been elevated for an extended period of time.</p>
  <h2>Treatment</h2>
  <p>Treatment for type 2 diabetes starts with lifestyle changes, and doctors
  prescribe metformin as the first medication in most cases today.</p>
</article>
<footer>Copyright 2024 Carelane Health</footer>
</body>
</html>`

func TestExtractBuildsSectionTree(t *testing.T) {
	t.Parallel()

	res := newExtractor().Extract(diabetesPage, "https://example.org/diabetes", "")

	require.True(t, res.Success, "error: %s", res.Error)
	require.NotNil(t, res.Content)
	require.Len(t, res.Content.Sections, 3)

	first := res.Content.Sections[0]
	assert.Equal(t, "What Is Type 2 Diabetes?", first.Heading)
	assert.Equal(t, pipeline.SectionDefinition, first.Type)
	assert.Equal(t, 1, first.Depth)
	assert.Equal(t, 0, first.Position)
	assert.Contains(t, first.KeyTerms, "type 2 diabetes")

	symptoms := res.Content.Sections[1]
	assert.Equal(t, pipeline.SectionSymptom, symptoms.Type)
	require.Len(t, symptoms.Subsections, 1)
	sub := symptoms.Subsections[0]
	assert.Equal(t, "Early Warning Signs", sub.Heading)
	assert.Equal(t, pipeline.SectionSymptom, sub.Type)
	assert.Equal(t, 2, sub.Depth)
	assert.Equal(t, 0, sub.Position)
	assert.GreaterOrEqual(t, symptoms.WordCount, sub.WordCount)

	treatment := res.Content.Sections[2]
	assert.Equal(t, pipeline.SectionTreatment, treatment.Type)
	assert.Equal(t, 2, treatment.Position)
}

func TestExtractStripsBoilerplate(t *testing.T) {
	t.Parallel()

	res := newExtractor().Extract(diabetesPage, "https://example.org/diabetes", "")

	require.True(t, res.Success)
	for _, sec := range res.Content.Sections {
		assert.NotContains(t, sec.Content, "Sponsored")
		assert.NotContains(t, sec.Content, "Copyright")
		assert.NotContains(t, sec.Content, "trackPageView")
		assert.NotContains(t, sec.Content, "Conditions")
	}
}

func TestExtractResolvesTitle(t *testing.T) {
	t.Parallel()

	e := newExtractor()

	res := e.Extract(diabetesPage, "https://example.org/diabetes", "")
	require.True(t, res.Success)
	assert.Equal(t, "Type 2 Diabetes Guide", res.Content.Title)

	res = e.Extract(diabetesPage, "https://example.org/diabetes", "Explicit Title")
	require.True(t, res.Success)
	assert.Equal(t, "Explicit Title", res.Content.Title)
}

func TestExtractMetricsAndMetadata(t *testing.T) {
	t.Parallel()

	res := newExtractor().Extract(diabetesPage, "https://example.org/diabetes", "")

	require.True(t, res.Success)
	assert.Equal(t, 4, res.Metrics.SectionCount)
	assert.Equal(t, 2, res.Metrics.HierarchyDepth)
	assert.GreaterOrEqual(t, res.Metrics.FactCount, 1)

	meta := res.Content.Metadata
	assert.Greater(t, meta.WordCount, 50)
	assert.Equal(t, 1, meta.ReadingTimeMinutes)
	assert.GreaterOrEqual(t, meta.Quality, 0.7)
	assert.LessOrEqual(t, meta.Quality, 1.0)
	assert.Contains(t, meta.Summary, "Type 2 diabetes is a chronic condition")
	assert.Equal(t, testNow, res.Content.ExtractedAt)
}

func TestExtractFactsFromSections(t *testing.T) {
	t.Parallel()

	res := newExtractor().Extract(diabetesPage, "https://example.org/diabetes", "")

	require.True(t, res.Success)
	symptoms := res.Content.Sections[1]
	require.NotEmpty(t, symptoms.Facts)
	fact := symptoms.Facts[0]
	assert.Equal(t, pipeline.CategorySymptom, fact.Category)
	assert.GreaterOrEqual(t, fact.Confidence, 0.5)
	assert.NotEmpty(t, fact.ID)
	assert.Contains(t, fact.Statement, "Common symptoms")
}

func TestExtractNoHeadingsFallsBack(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<article>
	<p>Living with diabetes requires daily attention to blood sugar, food
	choices, and activity levels throughout the day.</p>
	<p>A balanced plate method keeps carbohydrate portions steady from meal to
	meal and helps avoid sharp glucose spikes.</p>
	</article>
	</body></html>`

	res := newExtractor().Extract(html, "https://example.org/daily", "Daily Management")

	require.True(t, res.Success)
	require.Len(t, res.Content.Sections, 1)
	sec := res.Content.Sections[0]
	assert.Equal(t, "Daily Management", sec.Heading)
	assert.Equal(t, 1, sec.Depth)
	assert.Contains(t, sec.Content, "balanced plate method")
	assert.Contains(t, sec.Content, "\n\n")

	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "no usable headings")
}

func TestExtractDropsShortSections(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<h2>Ads</h2>
	<p>Buy now.</p>
	<h2>Symptoms</h2>
	<p>Common symptoms of type 2 diabetes include increased thirst and
	frequent urination that develop slowly over several months.</p>
	</body></html>`

	res := newExtractor().Extract(html, "https://example.org/short", "t")

	require.True(t, res.Success)
	require.Len(t, res.Content.Sections, 1)
	assert.Equal(t, "Symptoms", res.Content.Sections[0].Heading)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "dropped 1 sections")
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   \n\t  "} {
		res := newExtractor().Extract(input, "https://example.org/empty", "t")

		assert.False(t, res.Success)
		assert.Equal(t, "empty content", res.Error)
		assert.Nil(t, res.Content)
		assert.Zero(t, res.Metrics.SectionCount)
		assert.Zero(t, res.Metrics.FactCount)
		assert.NotEmpty(t, res.Warnings)
	}
}

func TestExtractDocumentWithoutText(t *testing.T) {
	t.Parallel()

	res := newExtractor().Extract("<html><body><script>x()</script></body></html>", "https://example.org/blank", "t")

	assert.False(t, res.Success)
	assert.Equal(t, "no extractable content", res.Error)
	assert.Nil(t, res.Content)
}

func TestExtractDeterministic(t *testing.T) {
	t.Parallel()

	e := newExtractor()
	first := e.Extract(diabetesPage, "https://example.org/diabetes", "")
	second := e.Extract(diabetesPage, "https://example.org/diabetes", "")

	require.Equal(t, first, second)
}

func TestBuildSectionFoldsDeepHeadings(t *testing.T) {
	t.Parallel()

	blocks := []block{
		{level: 2, text: "Treatment"},
		{text: "Primary treatment paragraph with enough detail to keep the section."},
		{level: 3, text: "Insulin Therapy"},
		{text: "Basal insulin covers background needs through the day and night."},
		{level: 4, text: "Dosing"},
		{text: "Doses are adjusted based on fasting glucose patterns over a week."},
	}

	e := newExtractor()
	sections, dropped := e.buildSections(blocks)

	require.Len(t, sections, 1)
	assert.Zero(t, dropped)
	sec := sections[0]
	assert.Equal(t, "Treatment", sec.heading)
	require.Len(t, sec.subs, 1)
	assert.Equal(t, "Insulin Therapy", sec.subs[0].heading)
	assert.Contains(t, sec.subs[0].text, "Dosing")
	assert.Contains(t, sec.subs[0].text, "fasting glucose patterns")
}
