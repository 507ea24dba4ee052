// Package changedetect classifies fetched documents as new, unchanged, or
// modified against the tracking store, and owns the explicit write
// operations the orchestrator invokes after a pipeline pass.
package changedetect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/normalize"
	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/store"
)

// Detector performs hash-based change classification. Reads never mutate the
// tracking store; MarkProcessed, UpdateRecord, and IncrementError are the
// only write paths.
type Detector struct {
	repo      store.ContentRepository
	snapshots pipeline.SnapshotStore
	hasher    pipeline.Hasher
	opts      normalize.Options
	ttl       time.Duration
	clock     pipeline.Clock
	logger    *zap.Logger
}

// New constructs a Detector. The snapshot store may be nil; audit diffs then
// carry an unavailability note instead of region counts.
func New(
	repo store.ContentRepository,
	snapshots pipeline.SnapshotStore,
	hasher pipeline.Hasher,
	opts normalize.Options,
	ttl time.Duration,
	clock pipeline.Clock,
	logger *zap.Logger,
) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		repo:      repo,
		snapshots: snapshots,
		hasher:    hasher,
		opts:      opts,
		ttl:       ttl,
		clock:     clock,
		logger:    logger,
	}
}

// DetectChanges normalizes and hashes the raw content, then classifies it
// against the stored record. Missing records classify as new; they are never
// an error. Empty and whitespace-only content normalize and classify like
// any other input.
func (d *Detector) DetectChanges(ctx context.Context, url, rawContent string) (pipeline.ChangeDetection, error) {
	normalized := normalize.Normalize(rawContent, d.opts)
	hash, err := d.hasher.Hash([]byte(normalized))
	if err != nil {
		return pipeline.ChangeDetection{}, fmt.Errorf("hash content for %s: %w", url, err)
	}

	result := pipeline.ChangeDetection{
		URL:               url,
		CurrentHash:       hash,
		NormalizedContent: normalized,
	}

	rec, err := d.repo.GetByURL(ctx, url)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			result.HasChanged = true
			result.ChangeType = pipeline.ChangeNew
			return result, nil
		}
		return pipeline.ChangeDetection{}, fmt.Errorf("load tracking record for %s: %w", url, err)
	}

	result.Record = &rec
	result.PreviousHash = rec.ContentHash
	result.LastModified = rec.LastModified

	if rec.ContentHash == hash {
		result.ChangeType = pipeline.ChangeUnchanged
		return result, nil
	}

	result.HasChanged = true
	result.ChangeType = pipeline.ChangeModified
	diff := d.auditDiff(ctx, url, normalized)
	result.Diff = &diff
	d.logger.Info("content modified",
		zap.String("url", url),
		zap.String("previous_hash", rec.ContentHash),
		zap.String("current_hash", hash),
		zap.Float64("significance", diff.Significance),
		zap.Int("added_regions", diff.AddedRegions),
		zap.Int("removed_regions", diff.RemovedRegions),
		zap.Int("modified_regions", diff.ModifiedRegions),
	)
	return result, nil
}

// auditDiff compares the new normalized text against the archived snapshot.
// The diff never affects classification, so snapshot failures degrade to a
// note rather than an error.
func (d *Detector) auditDiff(ctx context.Context, url, normalized string) pipeline.ContentDiff {
	if d.snapshots == nil {
		return pipeline.ContentDiff{Note: "snapshot store not configured"}
	}
	previous, err := d.snapshots.Load(ctx, url)
	if err != nil {
		if !errors.Is(err, pipeline.ErrSnapshotNotFound) {
			d.logger.Warn("load snapshot for diff", zap.String("url", url), zap.Error(err))
		}
		return pipeline.ContentDiff{Note: "previous snapshot unavailable"}
	}
	return Diff(string(previous), normalized)
}

// SaveSnapshot archives the normalized text for future audit diffs. A nil
// snapshot store makes this a no-op.
func (d *Detector) SaveSnapshot(ctx context.Context, url, normalized string) error {
	if d.snapshots == nil {
		return nil
	}
	if _, err := d.snapshots.Save(ctx, url, []byte(normalized)); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", url, err)
	}
	return nil
}

// MarkProcessed upserts the record as active with the new hash and pass
// stats. The expiry is the current time plus the configured TTL.
func (d *Detector) MarkProcessed(ctx context.Context, url, hash string, stats store.ProcessedStats) error {
	now := d.clock.Now()
	if err := d.repo.MarkProcessed(ctx, url, hash, now, now.Add(d.ttl), stats); err != nil {
		return fmt.Errorf("mark processed %s: %w", url, err)
	}
	return nil
}

// UpdateRecord writes a caller-assembled record verbatim.
func (d *Detector) UpdateRecord(ctx context.Context, rec pipeline.ContentRecord) error {
	if err := d.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("update record %s: %w", rec.URL, err)
	}
	return nil
}

// IncrementError bumps the tracked error count after a failed pass.
func (d *Detector) IncrementError(ctx context.Context, url, errMsg string) error {
	if err := d.repo.IncrementError(ctx, url, errMsg, d.clock.Now()); err != nil {
		return fmt.Errorf("increment error for %s: %w", url, err)
	}
	return nil
}
