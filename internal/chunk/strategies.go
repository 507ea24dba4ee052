package chunk

import (
	"strings"

	"github.com/carelane/content-pipeline/internal/extract"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// draft is a chunk before identity, validation, and context linking.
type draft struct {
	text      string
	section   string
	chunkType string
	facts     int
	keywords  []string
	relevance pipeline.Relevance
}

// accumulate greedily packs units into buffers bounded by MaxTokenCount:
// when the next unit would push the buffer past the budget, the buffer is
// emitted and the unit starts a new one. Single oversized units pass through
// on their own and are left to the validation gate.
func (b *Builder) accumulate(units []string, sep string) []string {
	var out []string
	var buf []string
	bufTokens := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, sep))
			buf = buf[:0]
			bufTokens = 0
		}
	}

	for _, unit := range units {
		tokens := EstimateTokens(unit)
		if bufTokens > 0 && bufTokens+tokens > b.cfg.MaxTokenCount {
			flush()
		}
		buf = append(buf, unit)
		bufTokens += tokens
	}
	flush()
	return out
}

func (b *Builder) paragraphDrafts(text string) []draft {
	var drafts []draft
	for _, piece := range b.accumulate(paragraphs(text), "\n\n") {
		drafts = append(drafts, draft{text: piece, chunkType: "paragraph"})
	}
	return drafts
}

func (b *Builder) sentenceDrafts(text string) []draft {
	var drafts []draft
	for _, piece := range b.accumulate(extract.SplitSentences(text), " ") {
		drafts = append(drafts, draft{text: piece, chunkType: "sentence"})
	}
	return drafts
}

// fixedSizeDrafts windows the text by word count sized to the target token
// budget. Windows ignore sentence and paragraph boundaries.
func (b *Builder) fixedSizeDrafts(text string) []draft {
	words := strings.Fields(text)
	window := wordsForTokens(b.cfg.TargetTokenCount)
	if window < 1 {
		window = 1
	}
	var drafts []draft
	for start := 0; start < len(words); start += window {
		end := start + window
		if end > len(words) {
			end = len(words)
		}
		drafts = append(drafts, draft{
			text:      strings.Join(words[start:end], " "),
			chunkType: "fixed-size",
		})
	}
	return drafts
}

// hierarchicalDrafts emits one chunk per subsection when a section has any,
// else one per section. Section intros shorter than the minimum bound are
// folded away rather than emitted as undersized chunks. The fully qualified
// heading path rides in the section field.
func (b *Builder) hierarchicalDrafts(structured *pipeline.StructuredContent) []draft {
	if structured == nil {
		return nil
	}
	var drafts []draft
	for _, sec := range structured.Sections {
		if len(sec.Subsections) == 0 {
			drafts = append(drafts, sectionDraft(sec, sec.Heading, "section"))
			continue
		}
		if EstimateTokens(sec.Content) >= b.cfg.MinTokenCount {
			drafts = append(drafts, sectionDraft(sec, sec.Heading, "section"))
		}
		for _, sub := range sec.Subsections {
			drafts = append(drafts, sectionDraft(sub, sec.Heading+" > "+sub.Heading, "subsection"))
		}
	}
	return drafts
}

// semanticDrafts mirrors the hierarchical traversal but splits oversized
// units internally by paragraph instead of leaving them to be rejected.
func (b *Builder) semanticDrafts(structured *pipeline.StructuredContent) []draft {
	if structured == nil {
		return nil
	}
	var drafts []draft

	emit := func(sec pipeline.SemanticSection, path string) {
		full := sectionText(sec)
		if EstimateTokens(full) <= b.cfg.MaxTokenCount {
			d := sectionDraft(sec, path, "semantic")
			drafts = append(drafts, d)
			return
		}
		for _, piece := range b.accumulate(paragraphs(sec.Content), "\n\n") {
			drafts = append(drafts, draft{
				text:      piece,
				section:   path,
				chunkType: "semantic",
				keywords:  sec.KeyTerms,
				relevance: sec.PatientRelevance,
			})
		}
	}

	for _, sec := range structured.Sections {
		if len(sec.Subsections) == 0 {
			emit(sec, sec.Heading)
			continue
		}
		if EstimateTokens(sec.Content) >= b.cfg.MinTokenCount {
			emit(sec, sec.Heading)
		}
		for _, sub := range sec.Subsections {
			emit(sub, sec.Heading+" > "+sub.Heading)
		}
	}
	return drafts
}

// factualDrafts packs extracted fact statements into chunks, capped both by
// the token budget and by MaxFactsPerChunk. Facts flow across section
// boundaries; each chunk records the section of its first fact.
func (b *Builder) factualDrafts(structured *pipeline.StructuredContent) []draft {
	if structured == nil {
		return nil
	}
	var drafts []draft
	var statements []string
	var section string
	tokens := 0

	flush := func() {
		if len(statements) == 0 {
			return
		}
		drafts = append(drafts, draft{
			text:      strings.Join(statements, " "),
			section:   section,
			chunkType: "facts",
			facts:     len(statements),
			relevance: pipeline.RelevanceHigh,
		})
		statements = nil
		section = ""
		tokens = 0
	}

	add := func(path string, fact pipeline.MedicalFact) {
		t := EstimateTokens(fact.Statement)
		if len(statements) > 0 && (len(statements) == b.cfg.MaxFactsPerChunk || tokens+t > b.cfg.MaxTokenCount) {
			flush()
		}
		if section == "" {
			section = path
		}
		statements = append(statements, fact.Statement)
		tokens += t
	}

	for _, sec := range structured.Sections {
		for _, fact := range sec.Facts {
			add(sec.Heading, fact)
		}
		for _, sub := range sec.Subsections {
			for _, fact := range sub.Facts {
				add(sec.Heading+" > "+sub.Heading, fact)
			}
		}
	}
	flush()
	return drafts
}

func sectionDraft(sec pipeline.SemanticSection, path, chunkType string) draft {
	return draft{
		text:      sectionText(sec),
		section:   path,
		chunkType: chunkType,
		facts:     len(sec.Facts),
		keywords:  sec.KeyTerms,
		relevance: sec.PatientRelevance,
	}
}

// sectionText is the chunkable text of one section: its heading line, when
// present, followed by its own content. Subsection text is never included;
// subsections chunk separately.
func sectionText(sec pipeline.SemanticSection) string {
	if sec.Heading == "" {
		return sec.Content
	}
	if sec.Content == "" {
		return sec.Heading
	}
	return sec.Heading + "\n\n" + sec.Content
}

// paragraphs splits text on line breaks. The normalizer emits one line per
// source block, so a single newline already marks a paragraph boundary;
// blank lines from double-newline text drop out of the empty filter.
func paragraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		if para = strings.TrimSpace(para); para != "" {
			out = append(out, para)
		}
	}
	return out
}
