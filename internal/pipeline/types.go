package pipeline

import (
	"net/http"
	"time"
)

// ContentStatus represents the lifecycle state of a tracked URL.
type ContentStatus string

// Content statuses persisted in the tracking store.
const (
	StatusActive  ContentStatus = "active"
	StatusError   ContentStatus = "error"
	StatusDeleted ContentStatus = "deleted"
)

// ChangeType classifies a fetched document against its tracked state.
type ChangeType string

// Change classifications returned by the change detector.
const (
	ChangeNew       ChangeType = "new"
	ChangeUnchanged ChangeType = "unchanged"
	ChangeModified  ChangeType = "modified"
)

// ContentRecord is the tracking-store entity, keyed by URL. It is created on
// the first successful processing pass and updated on every later one; only
// the change-detector write operations mutate it.
type ContentRecord struct {
	URL          string        `json:"url"`
	ContentHash  string        `json:"content_hash"`
	LastCrawled  time.Time     `json:"last_crawled"`
	LastModified *time.Time    `json:"last_modified,omitempty"`
	Status       ContentStatus `json:"status"`
	ErrorCount   int           `json:"error_count"`
	LastError    string        `json:"last_error,omitempty"`
	WordCount    int           `json:"word_count"`
	ChunkCount   int           `json:"chunk_count"`
	VectorIDs    []string      `json:"vector_ids,omitempty"`
	TTL          time.Time     `json:"ttl"`
}

// ContentDiff is an audit-only summary of how a modified page differs from
// the previously stored normalized text. It never drives classification.
type ContentDiff struct {
	AddedRegions    int     `json:"added_regions"`
	RemovedRegions  int     `json:"removed_regions"`
	ModifiedRegions int     `json:"modified_regions"`
	Significance    float64 `json:"significance"`
	Note            string  `json:"note,omitempty"`
}

// ChangeDetection is the result of classifying one fetched document.
type ChangeDetection struct {
	URL               string         `json:"url"`
	HasChanged        bool           `json:"has_changed"`
	ChangeType        ChangeType     `json:"change_type"`
	CurrentHash       string         `json:"current_hash"`
	PreviousHash      string         `json:"previous_hash,omitempty"`
	LastModified      *time.Time     `json:"last_modified,omitempty"`
	Record            *ContentRecord `json:"record,omitempty"`
	NormalizedContent string         `json:"-"`
	Diff              *ContentDiff   `json:"diff,omitempty"`
}

// SectionType is the semantic role assigned to an extracted section.
type SectionType string

// Section types assigned by the classification table.
const (
	SectionDefinition   SectionType = "definition"
	SectionSymptom      SectionType = "symptom"
	SectionTreatment    SectionType = "treatment"
	SectionPrevention   SectionType = "prevention"
	SectionCause        SectionType = "cause"
	SectionDiagnosis    SectionType = "diagnosis"
	SectionComplication SectionType = "complication"
	SectionLifestyle    SectionType = "lifestyle"
	SectionNutrition    SectionType = "nutrition"
	SectionMedication   SectionType = "medication"
	SectionMonitoring   SectionType = "monitoring"
	SectionStatistics   SectionType = "statistics"
	SectionFAQ          SectionType = "faq"
	SectionGeneral      SectionType = "general-info"
	SectionOther        SectionType = "other"
)

// Relevance grades how directly content serves a patient reader.
type Relevance string

// Relevance grades.
const (
	RelevanceHigh   Relevance = "high"
	RelevanceMedium Relevance = "medium"
	RelevanceLow    Relevance = "low"
)

// EvidenceLevel grades the strength of phrasing behind an extracted fact.
type EvidenceLevel string

// Evidence levels assigned by phrase patterns.
const (
	EvidenceHigh   EvidenceLevel = "high"
	EvidenceMedium EvidenceLevel = "medium"
	EvidenceLow    EvidenceLevel = "low"
)

// FactCategory is the closed category set for extracted facts. It is mapped
// from, but distinct from, SectionType.
type FactCategory string

// Fact categories.
const (
	CategorySymptom      FactCategory = "symptom-description"
	CategoryTreatment    FactCategory = "treatment-option"
	CategoryPrevention   FactCategory = "preventive-measure"
	CategoryRiskFactor   FactCategory = "risk-factor"
	CategoryDiagnostic   FactCategory = "diagnostic-criterion"
	CategoryComplication FactCategory = "complication-risk"
	CategoryLifestyle    FactCategory = "lifestyle-guidance"
	CategoryNutrition    FactCategory = "nutritional-guidance"
	CategoryMedication   FactCategory = "medication-info"
	CategoryMonitoring   FactCategory = "monitoring-guidance"
	CategoryStatistic    FactCategory = "statistical-finding"
	CategoryGeneral      FactCategory = "general-medical"
)

// MedicalFact is a single extracted sentence judged likely to carry
// verifiable domain information.
type MedicalFact struct {
	ID            string        `json:"id"`
	Statement     string        `json:"statement"`
	Confidence    float64       `json:"confidence"`
	Category      FactCategory  `json:"category"`
	EvidenceLevel EvidenceLevel `json:"evidence_level"`
	KeyTerms      []string      `json:"key_terms,omitempty"`
	RelatedFacts  []string      `json:"related_facts,omitempty"`
}

// SemanticSection is a heading-bounded region of a document. Subsections are
// exclusively owned: the tree is strict, with no cycles or sharing.
type SemanticSection struct {
	ID               string            `json:"id"`
	Heading          string            `json:"heading"`
	Content          string            `json:"content"`
	Type             SectionType       `json:"semantic_type"`
	Depth            int               `json:"depth"`
	Position         int               `json:"position"`
	KeyTerms         []string          `json:"key_terms,omitempty"`
	Facts            []MedicalFact     `json:"medical_facts,omitempty"`
	PatientRelevance Relevance         `json:"patient_relevance"`
	Subsections      []SemanticSection `json:"subsections,omitempty"`
	WordCount        int               `json:"word_count"`
}

// ContentMetadata summarizes a whole extracted document.
type ContentMetadata struct {
	WordCount          int     `json:"word_count"`
	ReadingTimeMinutes int     `json:"reading_time_minutes"`
	Quality            float64 `json:"quality"`
	Summary            string  `json:"summary,omitempty"`
}

// StructuredContent is the full output of one extraction pass. It is built
// fresh per call and never mutated afterward.
type StructuredContent struct {
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Sections    []SemanticSection `json:"sections"`
	Metadata    ContentMetadata   `json:"metadata"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// ExtractionMetrics reports counts for one extraction pass.
type ExtractionMetrics struct {
	SectionCount   int `json:"section_count"`
	FactCount      int `json:"fact_count"`
	HierarchyDepth int `json:"hierarchy_depth"`
}

// ExtractionResult wraps extraction output with its failure state. Input
// errors surface here as Success=false plus Error; they never panic across
// the pipeline boundary.
type ExtractionResult struct {
	Success  bool               `json:"success"`
	Content  *StructuredContent `json:"content,omitempty"`
	Error    string             `json:"error,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Metrics  ExtractionMetrics  `json:"metrics"`
}

// Strategy names a chunk segmentation algorithm.
type Strategy string

// Chunking strategies.
const (
	StrategySemantic     Strategy = "semantic"
	StrategyHierarchical Strategy = "hierarchical"
	StrategyFactual      Strategy = "factual"
	StrategyHybrid       Strategy = "hybrid"
	StrategyFixedSize    Strategy = "fixed-size"
	StrategySentence     Strategy = "sentence"
	StrategyParagraph    Strategy = "paragraph"
)

// ContextPreservation links a chunk to its neighborhood.
type ContextPreservation struct {
	PrecedingContext string   `json:"preceding_context,omitempty"`
	FollowingContext string   `json:"following_context,omitempty"`
	ContextScore     float64  `json:"context_score"`
	RelatedChunks    []string `json:"related_chunks,omitempty"`
}

// ChunkOverlap records tokens shared with neighbor chunks.
type ChunkOverlap struct {
	Tokens   int      `json:"tokens"`
	Strategy Strategy `json:"strategy"`
}

// ChunkMetadata carries provenance and quality attributes per chunk.
type ChunkMetadata struct {
	SourceURL        string    `json:"source_url"`
	SourceTitle      string    `json:"source_title"`
	SourceSection    string    `json:"source_section,omitempty"`
	ChunkType        string    `json:"chunk_type"`
	MedicalKeywords  []string  `json:"medical_keywords,omitempty"`
	FactCount        int       `json:"fact_count"`
	QualityScore     float64   `json:"quality_score"`
	PatientRelevance Relevance `json:"patient_relevance"`
	CreatedAt        time.Time `json:"created_at"`
}

// ContentChunk is the final retrieval-ready unit emitted by the builder.
// Chunks are immutable once emitted; the chunk list is owned by the
// invocation, not by any persistent entity.
type ContentChunk struct {
	ID               string              `json:"id"`
	Content          string              `json:"content"`
	ChunkIndex       int                 `json:"chunk_index"`
	TotalChunks      int                 `json:"total_chunks"`
	TokenCount       int                 `json:"token_count"`
	WordCount        int                 `json:"word_count"`
	Strategy         Strategy            `json:"chunking_strategy"`
	MedicalRelevance float64             `json:"medical_relevance"`
	Context          ContextPreservation `json:"context_preservation"`
	Overlap          ChunkOverlap        `json:"overlap"`
	Metadata         ChunkMetadata       `json:"metadata"`
}

// ChunkingMetrics reports size and quality statistics for one chunking run.
type ChunkingMetrics struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	TokenEfficiency     float64 `json:"token_efficiency"`
	ChunkCount          int     `json:"chunk_count"`
	RejectedChunks      int     `json:"rejected_chunks"`
	AvgContextScore     float64 `json:"avg_context_score"`
	AvgQualityScore     float64 `json:"avg_quality_score"`
	AvgMedicalRelevance float64 `json:"avg_medical_relevance"`
	TokenStdDev         float64 `json:"token_std_dev"`
}

// ChunkingResult wraps the chunk list with warnings and run metrics.
type ChunkingResult struct {
	Success  bool            `json:"success"`
	Chunks   []ContentChunk  `json:"chunks"`
	Strategy Strategy        `json:"strategy"`
	Error    string          `json:"error,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Metrics  ChunkingMetrics `json:"metrics"`
}

// Task is one unit of orchestration work: process a URL, or inline content
// when RawContent is set (no fetch performed).
type Task struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	RawContent string    `json:"raw_content,omitempty"`
	Enqueued   time.Time `json:"enqueued_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	ContentType  string
	LastModified *time.Time
	Duration     time.Duration
	UsedHeadless bool
}
