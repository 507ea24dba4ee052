package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/pipeline"
	"github.com/carelane/content-pipeline/internal/store"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 500
	storeTimeout       = 3 * time.Second
)

// getContent handles GET /v1/content?url=. It returns {"record": {...}} on
// success, 400 when the url parameter is missing, 404 when no record exists,
// or 500 for repository errors.
func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	record, err := s.repo.GetByURL(ctx, rawURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no record for url")
			return
		}
		s.logger.Error("get content record failed", zap.String("url", rawURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": record})
}

// listContentByStatus handles GET /v1/content/status/{status}?limit=&offset=.
// It returns {"records": [...]} on success, 400 for an unknown status or
// invalid paging parameters, or 500 for repository errors.
func (s *Server) listContentByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := parseContentStatus(chi.URLParam(r, "status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRecordLimit, maxRecordLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	records, err := s.repo.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("list content records failed",
			zap.String("status", string(status)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

func parseContentStatus(input string) (pipeline.ContentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "active":
		return pipeline.StatusActive, nil
	case "error", "failed":
		return pipeline.StatusError, nil
	case "deleted":
		return pipeline.StatusDeleted, nil
	default:
		return "", errors.New("invalid status")
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
