// Package postgres provides the Postgres-backed tracking store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/store"
)

// ContentStoreConfig controls the Postgres connection pool used for content
// records.
type ContentStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ContentStore implements store.ContentRepository against the
// content_records table, one row per tracked document. It assumes a table
// schema like:
// CREATE TABLE content_records (
//
//	url TEXT PRIMARY KEY,
//	content_hash TEXT NOT NULL,
//	last_crawled TIMESTAMPTZ NOT NULL,
//	last_modified TIMESTAMPTZ,
//	status TEXT NOT NULL,
//	error_count INT NOT NULL DEFAULT 0,
//	last_error TEXT NOT NULL DEFAULT '',
//	word_count INT NOT NULL DEFAULT 0,
//	chunk_count INT NOT NULL DEFAULT 0,
//	vector_ids TEXT[],
//	ttl TIMESTAMPTZ NOT NULL
//
// );
type ContentStore struct {
	pool pgxPool
}

// NewContentStore creates a Postgres-backed ContentStore using the provided
// config.
func NewContentStore(ctx context.Context, cfg ContentStoreConfig) (*ContentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	// TODO: manage the schema with golang-migrate instead of assuming the
	// table already exists.

	return &ContentStore{pool: pool}, nil
}

// NewContentStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewContentStoreWithPool(pool pgxPool) (*ContentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ContentStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ContentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const recordColumns = `url, content_hash, last_crawled, last_modified, status, error_count, last_error, word_count, chunk_count, vector_ids, ttl`

// GetByURL loads a single record or returns store.ErrNotFound.
func (s *ContentStore) GetByURL(ctx context.Context, url string) (pipeline.ContentRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM content_records
		WHERE url = $1;
	`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pipeline.ContentRecord{}, store.ErrNotFound
		}
		return pipeline.ContentRecord{}, fmt.Errorf("get content record: %w", err)
	}
	return rec, nil
}

// Upsert writes a caller-assembled record verbatim.
func (s *ContentStore) Upsert(ctx context.Context, record pipeline.ContentRecord) error {
	if record.URL == "" {
		return fmt.Errorf("record url is required")
	}
	query := `
		INSERT INTO content_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (url) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			last_crawled = EXCLUDED.last_crawled,
			last_modified = EXCLUDED.last_modified,
			status = EXCLUDED.status,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			word_count = EXCLUDED.word_count,
			chunk_count = EXCLUDED.chunk_count,
			vector_ids = EXCLUDED.vector_ids,
			ttl = EXCLUDED.ttl;
	`
	_, err := s.pool.Exec(ctx, query,
		record.URL,
		record.ContentHash,
		record.LastCrawled,
		record.LastModified,
		string(record.Status),
		record.ErrorCount,
		record.LastError,
		record.WordCount,
		record.ChunkCount,
		record.VectorIDs,
		record.TTL,
	)
	if err != nil {
		return fmt.Errorf("upsert content record: %w", err)
	}
	return nil
}

// MarkProcessed upserts the record as active with the new hash and stats,
// resetting the error counter.
func (s *ContentStore) MarkProcessed(ctx context.Context, url, contentHash string, crawledAt, expiresAt time.Time, stats store.ProcessedStats) error {
	query := `
		INSERT INTO content_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, 0, '', $6, $7, $8, $9)
		ON CONFLICT (url) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			last_crawled = EXCLUDED.last_crawled,
			last_modified = EXCLUDED.last_modified,
			status = EXCLUDED.status,
			error_count = 0,
			last_error = '',
			word_count = EXCLUDED.word_count,
			chunk_count = EXCLUDED.chunk_count,
			vector_ids = EXCLUDED.vector_ids,
			ttl = EXCLUDED.ttl;
	`
	_, err := s.pool.Exec(ctx, query,
		url,
		contentHash,
		crawledAt,
		stats.LastModified,
		string(pipeline.StatusActive),
		stats.WordCount,
		stats.ChunkCount,
		stats.VectorIDs,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("mark content processed: %w", err)
	}
	return nil
}

// IncrementError bumps the error counter and flips the status to error. URLs
// that have never been processed get a fresh error row so retries stay
// visible.
func (s *ContentStore) IncrementError(ctx context.Context, url, errMsg string, at time.Time) error {
	query := `
		INSERT INTO content_records (url, content_hash, last_crawled, status, error_count, last_error, word_count, chunk_count, ttl)
		VALUES ($1, '', $2, $3, 1, $4, 0, 0, $2)
		ON CONFLICT (url) DO UPDATE SET
			status = EXCLUDED.status,
			error_count = content_records.error_count + 1,
			last_error = EXCLUDED.last_error,
			last_crawled = EXCLUDED.last_crawled;
	`
	_, err := s.pool.Exec(ctx, query, url, at, string(pipeline.StatusError), errMsg)
	if err != nil {
		return fmt.Errorf("increment error count: %w", err)
	}
	return nil
}

// ListByStatus pages through records in a given lifecycle state, most
// recently crawled first.
func (s *ContentStore) ListByStatus(ctx context.Context, status pipeline.ContentStatus, limit, offset int) ([]pipeline.ContentRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM content_records
		WHERE status = $1
		ORDER BY last_crawled DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list content records: %w", err)
	}
	defer rows.Close()

	var records []pipeline.ContentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content records: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (pipeline.ContentRecord, error) {
	var (
		rec    pipeline.ContentRecord
		status string
	)
	err := row.Scan(
		&rec.URL,
		&rec.ContentHash,
		&rec.LastCrawled,
		&rec.LastModified,
		&status,
		&rec.ErrorCount,
		&rec.LastError,
		&rec.WordCount,
		&rec.ChunkCount,
		&rec.VectorIDs,
		&rec.TTL,
	)
	if err != nil {
		return pipeline.ContentRecord{}, err
	}
	rec.Status = pipeline.ContentStatus(status)
	return rec, nil
}
