package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/config"
	"github.com/carelane/content-pipeline/internal/dispatcher"
	"github.com/carelane/content-pipeline/internal/metrics"
	queuememory "github.com/carelane/content-pipeline/internal/queue/memory"
	storagememory "github.com/carelane/content-pipeline/internal/storage/memory"
)

func TestServer_SubmitDocument_Succeeds(t *testing.T) {
	t.Parallel()

	q := queuememory.NewQueue(10)
	server := newTestServer(testServerOptions{queue: q})

	reqBody := []byte(`{"url":"https://example.com/diabetes/basics","title":"Basics"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "task-1")

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "task-1", task.ID)
	require.Equal(t, "https://example.com/diabetes/basics", task.URL)
	require.Equal(t, "Basics", task.Title)
	require.Equal(t, time.Unix(100, 0), task.Enqueued)
}

func TestServer_SubmitDocument_InlineContent(t *testing.T) {
	t.Parallel()

	q := queuememory.NewQueue(10)
	server := newTestServer(testServerOptions{queue: q})

	reqBody := []byte(`{"url":"https://example.com/diabetes/diet","raw_content":"<html><p>Eat fiber.</p></html>"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Contains(t, task.RawContent, "Eat fiber.")
}

func TestServer_SubmitDocument_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(testServerOptions{})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitDocument_MissingURL(t *testing.T) {
	t.Parallel()

	server := newTestServer(testServerOptions{})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString(`{"title":"no url"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "url is required")
}

func TestServer_SubmitDocument_RejectsRelativeURL(t *testing.T) {
	t.Parallel()

	server := newTestServer(testServerOptions{})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString(`{"url":"/diabetes/basics"}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "absolute http or https")
}

func TestServer_HealthAndReadiness(t *testing.T) {
	t.Parallel()

	server := newTestServer(testServerOptions{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")
}

func TestServer_ReadyzWithoutStore(t *testing.T) {
	t.Parallel()
	metrics.Init()

	server := NewServer(nil, nil, nil, nil, config.HTTPConfig{RequestTimeoutSeconds: 30}, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(testServerOptions{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_RequestIDHeader(t *testing.T) {
	t.Parallel()

	server := newTestServer(testServerOptions{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestValidateDocumentURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "https", url: "https://example.com/diabetes", wantErr: false},
		{name: "http", url: "http://example.com", wantErr: false},
		{name: "empty", url: "  ", wantErr: true},
		{name: "relative", url: "/diabetes", wantErr: true},
		{name: "ftp", url: "ftp://example.com/file", wantErr: true},
		{name: "no host", url: "https://", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := validateDocumentURL(tc.url)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

// --- test harness ---

type testServerOptions struct {
	repo  *storagememory.ContentStore
	queue *queuememory.Queue
}

func newTestServer(opts testServerOptions) *Server {
	metrics.Init()
	if opts.repo == nil {
		opts.repo = storagememory.NewContentStore()
	}
	if opts.queue == nil {
		opts.queue = queuememory.NewQueue(10)
	}
	return NewServer(
		opts.repo,
		dispatcher.New(opts.queue, nil),
		&fakeIDGen{ids: []string{"task-1", "task-2", "task-3"}},
		&fakeClock{now: time.Unix(100, 0)},
		config.HTTPConfig{RequestTimeoutSeconds: 30},
		zap.NewNop(),
	)
}

func decodeJSONBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dst))
}

type fakeIDGen struct {
	ids []string
	idx int
}

func (f *fakeIDGen) NewID() (string, error) {
	if f.idx >= len(f.ids) {
		return "task-overflow", nil
	}
	id := f.ids[f.idx]
	f.idx++
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}
