package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/store"
)

func recordRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"url", "content_hash", "last_crawled", "last_modified", "status",
		"error_count", "last_error", "word_count", "chunk_count", "vector_ids", "ttl",
	})
}

func TestGetByURLReturnsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cs, err := NewContentStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	ttl := now.Add(7 * 24 * time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM content_records").
		WithArgs("https://example.com/diabetes").
		WillReturnRows(recordRows().AddRow(
			"https://example.com/diabetes", "abc123", now, (*time.Time)(nil), "active",
			0, "", 1200, 5, []string{"chunk-1", "chunk-2"}, ttl,
		))

	rec, err := cs.GetByURL(context.Background(), "https://example.com/diabetes")
	require.NoError(t, err)
	require.Equal(t, "abc123", rec.ContentHash)
	require.Equal(t, pipeline.StatusActive, rec.Status)
	require.Equal(t, 5, rec.ChunkCount)
	require.Equal(t, []string{"chunk-1", "chunk-2"}, rec.VectorIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByURLMapsNoRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cs, err := NewContentStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM content_records").
		WithArgs("https://example.com/missing").
		WillReturnRows(recordRows())

	_, err = cs.GetByURL(context.Background(), "https://example.com/missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cs, err := NewContentStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	ttl := now.Add(24 * time.Hour)
	lastMod := now.Add(-time.Hour)

	mock.ExpectExec("INSERT INTO content_records").
		WithArgs(
			"https://example.com/diabetes",
			"hash-v2",
			now,
			&lastMod,
			"active",
			1200,
			5,
			[]string{"chunk-1"},
			ttl,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = cs.MarkProcessed(context.Background(), "https://example.com/diabetes", "hash-v2", now, ttl, store.ProcessedStats{
		WordCount:    1200,
		ChunkCount:   5,
		VectorIDs:    []string{"chunk-1"},
		LastModified: &lastMod,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementErrorBumpsCounter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cs, err := NewContentStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO content_records").
		WithArgs("https://example.com/diabetes", now, "error", "extraction failed: empty document").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = cs.IncrementError(context.Background(), "https://example.com/diabetes", "extraction failed: empty document", now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStatusScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cs, err := NewContentStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM content_records").
		WithArgs("error", 10, 0).
		WillReturnRows(recordRows().
			AddRow("https://a.example/1", "h1", now, (*time.Time)(nil), "error", 2, "timeout", 0, 0, []string(nil), now).
			AddRow("https://a.example/2", "h2", now, (*time.Time)(nil), "error", 1, "parse", 0, 0, []string(nil), now))

	recs, err := cs.ListByStatus(context.Background(), pipeline.StatusError, 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, 2, recs[0].ErrorCount)
	require.Equal(t, "parse", recs[1].LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewContentStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewContentStoreWithPool(nil)
	require.Error(t, err)
}
