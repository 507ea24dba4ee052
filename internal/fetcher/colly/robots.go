package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	robotsFallbackReasonTLSHandshake = "TLS handshake timeout"

	robotsCacheTTL     = 30 * time.Minute
	robotsCacheMaxBody = 512 * 1024
)

var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsCacheTransport caches robots.txt responses per host. Every Fetch
// clones the collector, which would otherwise re-probe robots.txt on each
// request against the same site.
type robotsCacheTransport struct {
	base    http.RoundTripper
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]*robotsCacheEntry
}

type robotsCacheEntry struct {
	statusCode int
	header     http.Header
	body       []byte
	expires    time.Time
}

// NewRobotsCacheTransport wraps base with a per-host robots.txt cache.
func NewRobotsCacheTransport(base http.RoundTripper) http.RoundTripper {
	return &robotsCacheTransport{
		base:    base,
		ttl:     robotsCacheTTL,
		entries: make(map[string]*robotsCacheEntry),
	}
}

func (t *robotsCacheTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots cache transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots cache base roundtrip: %w", err)
		}
		return resp, nil
	}

	host := req.URL.Host
	now := time.Now()
	t.mu.Lock()
	entry := t.entries[host]
	t.mu.Unlock()
	if entry != nil && now.Before(entry.expires) {
		return entry.response(req), nil
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("robots.txt roundtrip: %w", err)
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, robotsCacheMaxBody))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read robots.txt body: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close robots.txt body: %w", closeErr)
	}

	entry = &robotsCacheEntry{
		statusCode: resp.StatusCode,
		header:     resp.Header.Clone(),
		body:       body,
		expires:    now.Add(t.ttl),
	}
	t.mu.Lock()
	t.entries[host] = entry
	t.mu.Unlock()
	return entry.response(req), nil
}

func (e *robotsCacheEntry) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    e.statusCode,
		Status:        fmt.Sprintf("%d %s", e.statusCode, http.StatusText(e.statusCode)),
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
		Header:        e.header.Clone(),
		Request:       req,
	}
}

// robotsAwareTransport retries robots.txt probes that fail with transient TLS
// errors and falls back to an allow-all response when retries are exhausted.
type robotsAwareTransport struct {
	base  http.RoundTripper
	state *robotsProbeState
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if t.state == nil || !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}
	return t.state.roundTripWithRetry(req, t.base)
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

type robotsProbeState struct {
	fallback bool
	reason   string
}

func newRobotsProbeState() *robotsProbeState {
	return &robotsProbeState{}
}

func (s *robotsProbeState) roundTripWithRetry(req *http.Request, base http.RoundTripper) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request passed to roundTripWithRetry")
	}
	maxAttempts := len(robotsRetryBackoff) + 1
	for attempt := 0; attempt < maxAttempts; attempt++ {
		cloneReq := cloneRequest(req)
		resp, err := base.RoundTrip(cloneReq)
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) {
			return nil, fmt.Errorf("robots roundtrip non-transient: %w", err)
		}
		if attempt == maxAttempts-1 {
			s.markIndeterminate(robotsFallbackReasonTLSHandshake)
			return syntheticRobotsAllowAllResponse(req), nil
		}
		if err := sleepWithContext(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots roundtrip backoff sleep: %w", err)
		}
	}
	return nil, fmt.Errorf("robots roundtrip exhausted retries")
}

func (s *robotsProbeState) markIndeterminate(reason string) {
	if s.fallback {
		return
	}
	s.fallback = true
	s.reason = reason
}

func cloneRequest(req *http.Request) *http.Request {
	if req == nil {
		return nil
	}
	clone := req.Clone(req.Context())
	clone.Body = req.Body
	return clone
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func syntheticRobotsAllowAllResponse(req *http.Request) *http.Response {
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
