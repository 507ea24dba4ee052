package audit

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the pipeline step represented by an Event.
type Stage string

// Supported audit stages. Document stages are terminal; the rest mark
// intermediate steps of a single document's pass through the pipeline.
const (
	StageFetch    Stage = "FETCH"
	StageDetect   Stage = "DETECT"
	StageExtract  Stage = "EXTRACT"
	StageChunk    Stage = "CHUNK"
	StagePublish  Stage = "PUBLISH"
	StageDocDone  Stage = "DOCUMENT_DONE"
	StageDocError Stage = "DOCUMENT_ERROR"
)

// Event captures a single milestone in a document's processing run.
type Event struct {
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which pipeline step the event describes.
	Stage Stage
	// URL identifies the document being processed.
	URL string
	// ChangeType carries the change-detection outcome (new, modified,
	// unchanged, error) once known.
	ChangeType string
	// Strategy names the chunking strategy that produced the chunks.
	Strategy string
	// Sections counts extracted semantic sections.
	Sections int
	// Facts counts extracted medical facts.
	Facts int
	// Chunks counts chunks accepted by the quality gate.
	Chunks int
	// Rejected counts chunks discarded by the quality gate.
	Rejected int
	// Bytes carries the fetched response size.
	Bytes int64
	// Dur captures execution latency for the stage.
	Dur time.Duration
	// Significance is the change-detection score in [0, 1].
	Significance float64
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.URL == "" {
		return errors.New("url is required")
	}
	switch e.Stage {
	case StageFetch, StageDetect, StageExtract, StagePublish:
	case StageChunk:
		if e.Strategy == "" {
			return errors.New("chunk event requires strategy")
		}
	case StageDocDone:
		if e.ChangeType == "" {
			return errors.New("document done requires change type")
		}
	case StageDocError:
		if e.Note == "" {
			return errors.New("document error requires note")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Significance < 0 || e.Significance > 1 {
		return errors.New("significance must be within [0, 1]")
	}
	return nil
}

// Terminal reports whether the event ends a document's run.
func (e Event) Terminal() bool {
	return e.Stage == StageDocDone || e.Stage == StageDocError
}
