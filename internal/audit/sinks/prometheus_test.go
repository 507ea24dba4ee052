package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/carelane/content-pipeline/internal/audit"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	url := "https://example.com/diabetes/basics"
	batch := []audit.Event{
		{TS: time.Now(), Stage: audit.StageFetch, URL: url, Bytes: 4096, Dur: 200 * time.Millisecond},
		{
			TS:       time.Now().Add(time.Second),
			Stage:    audit.StageChunk,
			URL:      url,
			Strategy: "hierarchical",
			Chunks:   6,
			Rejected: 1,
		},
		{
			TS:         time.Now().Add(2 * time.Second),
			Stage:      audit.StageDocDone,
			URL:        url,
			ChangeType: "new",
			Dur:        2 * time.Second,
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.documents.WithLabelValues("new")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.documents.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.docsRunning))

	require.InDelta(t, 6.0, testutil.ToFloat64(sink.chunksAccepted.WithLabelValues("hierarchical")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.chunksRejected.WithLabelValues("hierarchical")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.docRuntime, "audit_document_runtime_seconds"))
}

// TestPrometheusSinkTracksRunningDocuments verifies the in-flight gauge rises and falls.
func TestPrometheusSinkTracksRunningDocuments(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	first := "https://example.com/diabetes/diet"
	second := "https://example.com/diabetes/insulin"
	require.NoError(t, sink.Consume(context.Background(), []audit.Event{
		{TS: time.Now(), Stage: audit.StageFetch, URL: first},
		{TS: time.Now(), Stage: audit.StageDetect, URL: first},
		{TS: time.Now(), Stage: audit.StageFetch, URL: second},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.docsRunning))

	require.NoError(t, sink.Consume(context.Background(), []audit.Event{
		{TS: time.Now(), Stage: audit.StageDocError, URL: second, Note: "fetch failed", Dur: time.Second},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.docsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.documents.WithLabelValues("error")))
}
