// Package extract parses cleaned page markup into a tree of semantically
// classified sections with key terms and scored medical facts.
package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/carelane/content-pipeline/internal/clock/system"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Config tunes section filtering and fact extraction.
type Config struct {
	MinSectionLength        int     `mapstructure:"min_section_length"`
	MaxKeyTerms             int     `mapstructure:"max_key_terms"`
	FactConfidenceThreshold float64 `mapstructure:"fact_confidence_threshold"`
	MinFactWords            int     `mapstructure:"min_fact_words"`
	MaxFactWords            int     `mapstructure:"max_fact_words"`
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{
		MinSectionLength:        40,
		MaxKeyTerms:             20,
		FactConfidenceThreshold: 0.5,
		MinFactWords:            5,
		MaxFactWords:            60,
	}
}

// Extractor turns raw HTML into StructuredContent. It holds no per-document
// state; one instance serves concurrent pipeline runs.
type Extractor struct {
	cfg    Config
	ids    pipeline.IDGenerator
	clock  pipeline.Clock
	logger *zap.Logger
}

// New creates an Extractor. A nil clock falls back to the system clock and a
// nil logger disables logging.
func New(cfg Config, ids pipeline.IDGenerator, clk pipeline.Clock, logger *zap.Logger) *Extractor {
	if clk == nil {
		clk = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, ids: ids, clock: clk, logger: logger}
}

// Extract parses html into a section tree with classifications, key terms,
// and facts. Failures are reported in the result, never panicked: a result
// with Success=false carries the error message and zero-valued metrics.
func (e *Extractor) Extract(rawHTML, url, title string) pipeline.ExtractionResult {
	if strings.TrimSpace(rawHTML) == "" {
		return pipeline.ExtractionResult{
			Success:  false,
			Error:    "empty content",
			Warnings: []string{"no content provided"},
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return pipeline.ExtractionResult{
			Success: false,
			Error:   fmt.Sprintf("parse html: %v", err),
		}
	}
	cleanDocument(doc)

	var warnings []string
	resolvedTitle := strings.TrimSpace(title)
	if resolvedTitle == "" {
		resolvedTitle = normalizeSpace(doc.Find("title").First().Text())
	}
	if resolvedTitle == "" {
		resolvedTitle = url
		warnings = append(warnings, "document has no title")
	}

	blocks := documentBlocks(doc)
	raw, dropped := e.buildSections(blocks)
	if dropped > 0 {
		warnings = append(warnings, fmt.Sprintf("dropped %d sections below minimum length", dropped))
	}
	if len(raw) == 0 {
		text := largestContainerText(doc)
		if strings.TrimSpace(text) == "" {
			return pipeline.ExtractionResult{
				Success:  false,
				Error:    "no extractable content",
				Warnings: append(warnings, "document contains no text content"),
			}
		}
		warnings = append(warnings, "no usable headings, extracted main container as a single section")
		raw = []rawSection{{heading: resolvedTitle, text: text}}
	}

	ids := &ider{gen: e.ids}
	sections := make([]pipeline.SemanticSection, 0, len(raw))
	for i, rs := range raw {
		sections = append(sections, e.annotateSection(rs, 1, i, ids))
	}

	factCount := countFacts(sections)
	totalWords := 0
	for _, sec := range sections {
		totalWords += sec.WordCount
	}

	content := &pipeline.StructuredContent{
		Title:    resolvedTitle,
		URL:      url,
		Sections: sections,
		Metadata: pipeline.ContentMetadata{
			WordCount:          totalWords,
			ReadingTimeMinutes: readingTime(totalWords),
			Quality:            documentQuality(sections, factCount),
			Summary:            summarize(sections),
		},
		ExtractedAt: e.clock.Now(),
	}
	metrics := pipeline.ExtractionMetrics{
		SectionCount:   countSections(sections),
		FactCount:      factCount,
		HierarchyDepth: hierarchyDepth(sections),
	}

	e.logger.Debug("extracted structured content",
		zap.String("url", url),
		zap.Int("sections", metrics.SectionCount),
		zap.Int("facts", metrics.FactCount),
		zap.Float64("quality", content.Metadata.Quality),
	)

	return pipeline.ExtractionResult{
		Success:  true,
		Content:  content,
		Warnings: warnings,
		Metrics:  metrics,
	}
}

// strippedSelectors remove non-content markup before any text is read:
// scripts, chrome, ads, social widgets, comment threads.
var strippedSelectors = []string{
	"script", "style", "noscript", "iframe", "svg", "form", "template",
	"nav", "header", "footer", "aside",
	".advertisement", ".ads", ".ad", "[class*=advert]", "[id*=advert]",
	".sponsored", ".promo", ".banner",
	".social", ".share", ".sharing", "[class*=social-]",
	".comments", "#comments", ".comment-section",
	".cookie-banner", ".newsletter", ".sidebar", ".menu", ".breadcrumb",
}

func cleanDocument(doc *goquery.Document) {
	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}
}

// mainContainerSelectors are tried, longest text wins, when heading-based
// sectioning yields nothing.
var mainContainerSelectors = []string{
	"article", "main", "[role=main]", "#content", ".content", "#main",
	".post", ".entry-content",
}

func largestContainerText(doc *goquery.Document) string {
	best := ""
	for _, selector := range mainContainerSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := containerText(s); len(text) > len(best) {
				best = text
			}
		})
	}
	if best == "" {
		best = containerText(doc.Find("body"))
	}
	return best
}

// block is one flattened unit of document text: a heading (level 1-6) or a
// paragraph-like text run (level 0).
type block struct {
	level int
	text  string
}

// blockTags delimit paragraph-like text runs during the flatten walk.
var blockTags = map[string]struct{}{
	"p": {}, "div": {}, "section": {}, "article": {}, "main": {},
	"li": {}, "ul": {}, "ol": {}, "dl": {}, "dd": {}, "dt": {},
	"blockquote": {}, "pre": {}, "figcaption": {},
	"table": {}, "tr": {}, "td": {}, "th": {},
}

func documentBlocks(doc *goquery.Document) []block {
	body := doc.Find("body")
	if len(body.Nodes) == 0 {
		return nil
	}
	return flattenBlocks(body.Nodes[0])
}

// flattenBlocks walks the subtree in document order and produces the linear
// heading/text sequence the section builder consumes. Text is flushed at
// block-element boundaries so paragraphs stay separate.
func flattenBlocks(root *html.Node) []block {
	var blocks []block
	var buf strings.Builder

	flush := func() {
		text := normalizeSpace(buf.String())
		buf.Reset()
		if text != "" {
			blocks = append(blocks, block{text: text})
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.ElementNode:
		default:
			return
		}
		if lvl := headingLevel(n.Data); lvl > 0 {
			flush()
			if text := normalizeSpace(nodeText(n)); text != "" {
				blocks = append(blocks, block{level: lvl, text: text})
			}
			return
		}
		if _, ok := blockTags[n.Data]; ok {
			flush()
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			flush()
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(root)
	flush()
	return blocks
}

func containerText(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	blocks := flattenBlocks(sel.Nodes[0])
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.text)
	}
	return strings.Join(parts, "\n\n")
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func countWords(s string) int {
	return len(strings.Fields(s))
}

// rawSection is the unannotated section tree assembled from blocks.
type rawSection struct {
	heading string
	text    string
	subs    []rawSection
}

func (rs rawSection) combinedLen() int {
	n := len(rs.text)
	for _, sub := range rs.subs {
		n += len(sub.heading) + len(sub.text)
	}
	return n
}

// buildSections groups blocks into heading-bounded sections. Each heading at
// the document's shallowest level owns everything until the next such
// heading; deeper headings inside that span become subsections bounded the
// same way. Sections and subsections below MinSectionLength are dropped and
// counted.
func (e *Extractor) buildSections(blocks []block) ([]rawSection, int) {
	top := 0
	for _, b := range blocks {
		if b.level > 0 && (top == 0 || b.level < top) {
			top = b.level
		}
	}
	if top == 0 {
		return nil, 0
	}

	var sections []rawSection
	dropped := 0
	i := 0
	for i < len(blocks) {
		if blocks[i].level != top {
			i++
			continue
		}
		end := i + 1
		for end < len(blocks) && blocks[end].level != top {
			end++
		}
		sec := buildSection(blocks[i], blocks[i+1:end])

		kept := sec.subs[:0]
		for _, sub := range sec.subs {
			if len(sub.text) < e.cfg.MinSectionLength {
				dropped++
				continue
			}
			kept = append(kept, sub)
		}
		sec.subs = kept

		if sec.combinedLen() < e.cfg.MinSectionLength {
			dropped++
		} else {
			sections = append(sections, sec)
		}
		i = end
	}
	return sections, dropped
}

// buildSection assembles one section from its heading and inner blocks. Text
// before the first subheading is the section's own content; each subheading
// owns its span until the next heading at its level or shallower. Headings
// deeper than the subsection level fold into subsection content.
func buildSection(heading block, inner []block) rawSection {
	sec := rawSection{heading: heading.text}

	j := 0
	var own []string
	for j < len(inner) && inner[j].level == 0 {
		own = append(own, inner[j].text)
		j++
	}
	sec.text = strings.Join(own, "\n\n")

	for j < len(inner) {
		sub := inner[j]
		end := j + 1
		for end < len(inner) && (inner[end].level == 0 || inner[end].level > sub.level) {
			end++
		}
		parts := make([]string, 0, end-j-1)
		for _, b := range inner[j+1 : end] {
			parts = append(parts, b.text)
		}
		sec.subs = append(sec.subs, rawSection{heading: sub.text, text: strings.Join(parts, "\n\n")})
		j = end
	}
	return sec
}

// ider hands out IDs for sections and facts. When no generator is wired or
// generation fails it falls back to a per-call serial, keeping extraction
// deterministic under test.
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

func (e *Extractor) annotateSection(rs rawSection, depth, position int, ids *ider) pipeline.SemanticSection {
	secType, _ := classifySection(rs.heading, rs.text)
	words := countWords(rs.text)
	density := 0.0
	if words > 0 {
		density = float64(TermOccurrences(rs.text)) / float64(words)
	}

	sec := pipeline.SemanticSection{
		ID:               ids.next("section"),
		Heading:          rs.heading,
		Content:          rs.text,
		Type:             secType,
		Depth:            depth,
		Position:         position,
		KeyTerms:         KeyTerms(rs.heading+" "+rs.text, e.cfg.MaxKeyTerms),
		Facts:            e.extractFacts(rs.text, secType, ids),
		PatientRelevance: patientRelevance(secType, density),
		WordCount:        words,
	}
	for j, sub := range rs.subs {
		child := e.annotateSection(sub, depth+1, j, ids)
		sec.WordCount += child.WordCount
		sec.Subsections = append(sec.Subsections, child)
	}
	return sec
}

func countSections(sections []pipeline.SemanticSection) int {
	n := 0
	for _, sec := range sections {
		n += 1 + len(sec.Subsections)
	}
	return n
}

func countFacts(sections []pipeline.SemanticSection) int {
	n := 0
	for _, sec := range sections {
		n += len(sec.Facts)
		for _, sub := range sec.Subsections {
			n += len(sub.Facts)
		}
	}
	return n
}

func hierarchyDepth(sections []pipeline.SemanticSection) int {
	depth := 0
	for _, sec := range sections {
		d := 1
		if len(sec.Subsections) > 0 {
			d = 2
		}
		if d > depth {
			depth = d
		}
	}
	return depth
}

// documentQuality starts from a base score and adds bonuses for structural
// richness, fact density, and semantic-type diversity, capped at 1.
func documentQuality(sections []pipeline.SemanticSection, factCount int) float64 {
	if len(sections) == 0 {
		return 0
	}
	score := 0.3

	switch {
	case len(sections) >= 4:
		score += 0.15
	case len(sections) >= 2:
		score += 0.1
	}

	words := 0
	hasSubsections := false
	typesSeen := make(map[pipeline.SectionType]struct{})
	for _, sec := range sections {
		words += sec.WordCount
		if len(sec.Subsections) > 0 {
			hasSubsections = true
		}
		typesSeen[sec.Type] = struct{}{}
		for _, sub := range sec.Subsections {
			typesSeen[sub.Type] = struct{}{}
		}
	}
	if hasSubsections {
		score += 0.1
	}
	if words > 0 {
		factsPerHundredWords := float64(factCount) / (float64(words) / 100)
		score += math.Min(0.25, factsPerHundredWords*0.1)
	}
	score += math.Min(0.2, float64(len(typesSeen))*0.05)

	return math.Min(1, score)
}

const (
	summaryMinWords    = 15
	summaryMaxWords    = 120
	summaryMaxHeadings = 5
)

// summarize returns the first well-sized paragraph across sections, falling
// back to a join of the top section headings.
func summarize(sections []pipeline.SemanticSection) string {
	for _, sec := range sections {
		for _, para := range strings.Split(sec.Content, "\n\n") {
			para = strings.TrimSpace(para)
			if words := countWords(para); words >= summaryMinWords && words <= summaryMaxWords {
				return para
			}
		}
	}
	var headings []string
	for _, sec := range sections {
		if h := strings.TrimSpace(sec.Heading); h != "" {
			headings = append(headings, h)
		}
		if len(headings) == summaryMaxHeadings {
			break
		}
	}
	return strings.Join(headings, "; ")
}

func readingTime(words int) int {
	if words == 0 {
		return 0
	}
	return (words + 199) / 200
}
