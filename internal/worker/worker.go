// Package worker implements the per-document processing loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/audit"
	"github.com/carelane/content-pipeline/internal/metrics"
	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/store"
)

// ChangeDetector covers the tracking-store operations the worker drives
// around each document pass.
type ChangeDetector interface {
	DetectChanges(ctx context.Context, url, rawContent string) (pipeline.ChangeDetection, error)
	SaveSnapshot(ctx context.Context, url, normalized string) error
	MarkProcessed(ctx context.Context, url, hash string, stats store.ProcessedStats) error
	IncrementError(ctx context.Context, url, errMsg string) error
}

// Extractor turns raw HTML into structured content.
type Extractor interface {
	Extract(rawHTML, url, title string) pipeline.ExtractionResult
}

// Chunker segments normalized text into retrieval-ready chunks.
type Chunker interface {
	ChunkContent(content, url, title string, structured *pipeline.StructuredContent) pipeline.ChunkingResult
}

// Config controls Worker behavior.
type Config struct {
	// HeadlessEnabled permits promotion to the rendered fetcher when the
	// probe response looks script-driven.
	HeadlessEnabled bool
}

// Worker consumes queued tasks and runs each document through the fetch,
// detect, extract, chunk, and publish stages. Failures mark the record and
// never abort the loop.
type Worker struct {
	queue            pipeline.Queue
	detector         ChangeDetector
	extractor        Extractor
	chunker          Chunker
	publisher        pipeline.ChunkPublisher
	probeFetcher     pipeline.Fetcher
	headlessFetcher  pipeline.Fetcher
	headlessDetector pipeline.HeadlessDetector
	emitter          audit.Emitter
	clock            pipeline.Clock
	cfg              Config
	logger           *zap.Logger
}

// New constructs a Worker.
func New(
	queue pipeline.Queue,
	detector ChangeDetector,
	extractor Extractor,
	chunker Chunker,
	publisher pipeline.ChunkPublisher,
	probe pipeline.Fetcher,
	headless pipeline.Fetcher,
	headlessDetector pipeline.HeadlessDetector,
	emitter audit.Emitter,
	clock pipeline.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:            queue,
		detector:         detector,
		extractor:        extractor,
		chunker:          chunker,
		publisher:        publisher,
		probeFetcher:     probe,
		headlessFetcher:  headless,
		headlessDetector: headlessDetector,
		emitter:          emitter,
		clock:            clock,
		cfg:              cfg,
		logger:           logger,
	}
}

// Run blocks, consuming tasks until the context finishes or the queue closes
// and drains. Cancellation is honored between documents; an in-flight
// document sees it through the task context passed to every stage.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, pipeline.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task",
			zap.String("task_id", task.ID),
			zap.String("url", task.URL),
		)
		w.processDocument(ctx, task)
	}
}

func (w *Worker) processDocument(ctx context.Context, task pipeline.Task) {
	start := w.clock.Now()
	site := metrics.SanitizeSite(task.URL)

	raw, resp, err := w.acquireContent(ctx, task)
	if err != nil {
		w.failDocument(ctx, task, "fetch", err)
		return
	}

	detection, err := w.detector.DetectChanges(ctx, task.URL, raw)
	if err != nil {
		w.failDocument(ctx, task, "detect", err)
		return
	}
	detectEvt := audit.Event{
		Stage:      audit.StageDetect,
		URL:        task.URL,
		ChangeType: string(detection.ChangeType),
	}
	if detection.Diff != nil {
		detectEvt.Significance = detection.Diff.Significance
	}
	w.emit(detectEvt)

	if !detection.HasChanged {
		w.touchUnchanged(ctx, task, detection, resp, site, start)
		return
	}

	w.processChanged(ctx, task, raw, detection, resp, site, start)
}

// touchUnchanged refreshes the crawl time and expiry without re-extracting.
// The existing stats carry over so the record keeps its published history.
func (w *Worker) touchUnchanged(
	ctx context.Context,
	task pipeline.Task,
	detection pipeline.ChangeDetection,
	resp pipeline.FetchResponse,
	site string,
	start time.Time,
) {
	stats := store.ProcessedStats{LastModified: resp.LastModified}
	if rec := detection.Record; rec != nil {
		stats.WordCount = rec.WordCount
		stats.ChunkCount = rec.ChunkCount
		stats.VectorIDs = rec.VectorIDs
		if stats.LastModified == nil {
			stats.LastModified = rec.LastModified
		}
	}
	if err := w.detector.MarkProcessed(ctx, task.URL, detection.CurrentHash, stats); err != nil {
		w.failDocument(ctx, task, "store", err)
		return
	}

	dur := w.clock.Now().Sub(start)
	metrics.ObserveDocument(site, string(detection.ChangeType), dur)
	w.emit(audit.Event{
		Stage:      audit.StageDocDone,
		URL:        task.URL,
		ChangeType: string(detection.ChangeType),
		Dur:        dur,
	})
	w.logger.Debug("document unchanged",
		zap.String("task_id", task.ID),
		zap.String("url", task.URL),
	)
}

func (w *Worker) processChanged(
	ctx context.Context,
	task pipeline.Task,
	raw string,
	detection pipeline.ChangeDetection,
	resp pipeline.FetchResponse,
	site string,
	start time.Time,
) {
	extraction := w.extractor.Extract(raw, task.URL, task.Title)
	if !extraction.Success {
		w.failDocument(ctx, task, "extract", errors.New(extraction.Error))
		return
	}
	w.emit(audit.Event{
		Stage:    audit.StageExtract,
		URL:      task.URL,
		Sections: extraction.Metrics.SectionCount,
		Facts:    extraction.Metrics.FactCount,
	})

	title := task.Title
	if title == "" && extraction.Content != nil {
		title = extraction.Content.Title
	}
	chunking := w.chunker.ChunkContent(detection.NormalizedContent, task.URL, title, extraction.Content)
	if !chunking.Success {
		w.failDocument(ctx, task, "chunk", errors.New(chunking.Error))
		return
	}
	if len(chunking.Chunks) == 0 {
		// Recording the new hash with nothing published would make the
		// content invisible to every later pass. Fail instead so the
		// document is retried.
		w.failDocument(ctx, task, "chunk",
			fmt.Errorf("no chunks produced, %d drafts rejected", chunking.Metrics.RejectedChunks))
		return
	}
	metrics.ObserveChunks(string(chunking.Strategy), len(chunking.Chunks), chunking.Metrics.RejectedChunks)
	w.emit(audit.Event{
		Stage:    audit.StageChunk,
		URL:      task.URL,
		Strategy: string(chunking.Strategy),
		Chunks:   len(chunking.Chunks),
		Rejected: chunking.Metrics.RejectedChunks,
	})

	vectorIDs, err := w.publishChunks(ctx, chunking.Chunks)
	if err != nil {
		w.failDocument(ctx, task, "publish", err)
		return
	}
	w.emit(audit.Event{
		Stage:  audit.StagePublish,
		URL:    task.URL,
		Chunks: len(vectorIDs),
	})

	if err := w.detector.SaveSnapshot(ctx, task.URL, detection.NormalizedContent); err != nil {
		w.failDocument(ctx, task, "snapshot", err)
		return
	}

	stats := store.ProcessedStats{
		ChunkCount:   len(vectorIDs),
		VectorIDs:    vectorIDs,
		LastModified: resp.LastModified,
	}
	if extraction.Content != nil {
		stats.WordCount = extraction.Content.Metadata.WordCount
	}
	if err := w.detector.MarkProcessed(ctx, task.URL, detection.CurrentHash, stats); err != nil {
		w.failDocument(ctx, task, "store", err)
		return
	}

	dur := w.clock.Now().Sub(start)
	metrics.ObserveDocument(site, string(detection.ChangeType), dur)
	w.emit(audit.Event{
		Stage:      audit.StageDocDone,
		URL:        task.URL,
		ChangeType: string(detection.ChangeType),
		Chunks:     len(vectorIDs),
		Dur:        dur,
	})
	w.logger.Info("document processed",
		zap.String("task_id", task.ID),
		zap.String("url", task.URL),
		zap.String("change_type", string(detection.ChangeType)),
		zap.Int("chunks", len(vectorIDs)),
		zap.Duration("duration", dur),
	)
}

// acquireContent returns the document body, fetching unless the task carries
// inline content. A fetch that answers with an error status fails the pass.
func (w *Worker) acquireContent(ctx context.Context, task pipeline.Task) (string, pipeline.FetchResponse, error) {
	if task.RawContent != "" {
		return task.RawContent, pipeline.FetchResponse{URL: task.URL}, nil
	}
	if w.probeFetcher == nil {
		return "", pipeline.FetchResponse{}, errors.New("no probe fetcher configured")
	}

	resp, err := w.fetchProbe(ctx, task)
	if err != nil {
		return "", pipeline.FetchResponse{}, err
	}

	final := resp
	if promoted, ok := w.maybePromote(ctx, task, resp); ok {
		final = promoted
		w.logger.Info("headless promotion applied",
			zap.String("task_id", task.ID),
			zap.String("url", task.URL),
		)
	}
	if final.StatusCode >= 400 {
		return "", pipeline.FetchResponse{}, fmt.Errorf("fetch status %d for %s", final.StatusCode, task.URL)
	}

	fetchEvt := audit.Event{
		Stage: audit.StageFetch,
		URL:   task.URL,
		Bytes: int64(len(final.Body)),
		Dur:   final.Duration,
	}
	if final.UsedHeadless {
		fetchEvt.Note = "rendered refetch"
	}
	w.emit(fetchEvt)
	return string(final.Body), final, nil
}

func (w *Worker) fetchProbe(ctx context.Context, task pipeline.Task) (pipeline.FetchResponse, error) {
	pageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := w.probeFetcher.Fetch(pageCtx, pipeline.FetchRequest{URL: task.URL})
	if err != nil {
		return pipeline.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
	}
	return resp, nil
}

func (w *Worker) maybePromote(
	ctx context.Context,
	task pipeline.Task,
	resp pipeline.FetchResponse,
) (pipeline.FetchResponse, bool) {
	if !w.cfg.HeadlessEnabled || w.headlessDetector == nil || w.headlessFetcher == nil {
		return resp, false
	}
	if !w.headlessDetector.ShouldPromote(resp) {
		return resp, false
	}

	headlessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headlessResp, err := w.headlessFetcher.Fetch(headlessCtx, pipeline.FetchRequest{
		URL:         task.URL,
		UseHeadless: true,
	})
	if err != nil {
		w.logger.Warn("headless promotion failed",
			zap.String("task_id", task.ID),
			zap.String("url", task.URL),
			zap.Error(err),
		)
		return resp, false
	}
	headlessResp.UsedHeadless = true
	return headlessResp, true
}

func (w *Worker) publishChunks(ctx context.Context, chunks []pipeline.ContentChunk) ([]string, error) {
	if len(chunks) > 0 && w.publisher == nil {
		return nil, errors.New("no chunk publisher configured")
	}
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if err := w.publisher.Publish(ctx, chunk); err != nil {
			return nil, fmt.Errorf("publish chunk %s: %w", chunk.ID, err)
		}
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}

// failDocument records a failed pass. A shutdown mid-document leaves the
// tracking store untouched so the next run reprocesses from clean state.
func (w *Worker) failDocument(ctx context.Context, task pipeline.Task, stage string, err error) {
	if ctx.Err() != nil {
		w.logger.Warn("document abandoned by shutdown",
			zap.String("task_id", task.ID),
			zap.String("url", task.URL),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return
	}

	w.logger.Error("document processing failed",
		zap.String("task_id", task.ID),
		zap.String("url", task.URL),
		zap.String("stage", stage),
		zap.Error(err),
	)
	metrics.ObserveDocumentError(stage)
	w.emit(audit.Event{
		Stage: audit.StageDocError,
		URL:   task.URL,
		Note:  stage + ": " + err.Error(),
	})
	if ierr := w.detector.IncrementError(ctx, task.URL, err.Error()); ierr != nil {
		w.logger.Error("increment error failed",
			zap.String("url", task.URL),
			zap.Error(ierr),
		)
	}
}

func (w *Worker) emit(evt audit.Event) {
	if w.emitter == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = w.clock.Now()
	}
	w.emitter.Emit(evt)
}
