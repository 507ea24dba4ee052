package collyfetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRobotsRetryReturnsAllowAllOnTimeout(t *testing.T) {
	t.Parallel()

	state := newRobotsProbeState()
	base := &stubRoundTripper{
		results: []roundTripResult{
			{err: context.DeadlineExceeded},
			{err: context.DeadlineExceeded},
			{err: context.DeadlineExceeded},
			{err: context.DeadlineExceeded},
		},
	}
	transport := &robotsAwareTransport{
		base:  base,
		state: state,
	}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	t.Cleanup(func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("resp close: %v", cerr)
		}
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "User-agent: *\nAllow: /" {
		t.Fatalf("unexpected fallback body: %q", string(body))
	}
	if !state.fallback {
		t.Fatal("expected probe state to record the fallback")
	}
	if state.reason != robotsFallbackReasonTLSHandshake {
		t.Fatalf("expected reason %q, got %q", robotsFallbackReasonTLSHandshake, state.reason)
	}
	if base.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", base.calls)
	}
}

func TestRobotsRetryStopsAfterSuccess(t *testing.T) {
	t.Parallel()

	state := newRobotsProbeState()
	base := &stubRoundTripper{
		results: []roundTripResult{
			{err: context.DeadlineExceeded},
			{resp: httptest.NewRecorder().Result()},
		},
	}

	transport := &robotsAwareTransport{
		base:  base,
		state: state,
	}

	req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	if cerr := resp.Body.Close(); cerr != nil {
		t.Fatalf("resp close: %v", cerr)
	}
	if base.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", base.calls)
	}
	if state.fallback {
		t.Fatal("expected probe state to remain clean after success")
	}
}

func TestRobotsCacheServesSecondProbe(t *testing.T) {
	t.Parallel()

	base := &countingRoundTripper{body: "User-agent: *\nDisallow: /private"}
	transport := NewRobotsCacheTransport(base)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "https://example.com/robots.txt", nil)
		resp, err := transport.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip #%d returned error: %v", i+1, err)
		}
		body, err := io.ReadAll(resp.Body)
		if cerr := resp.Body.Close(); cerr != nil {
			t.Fatalf("resp close: %v", cerr)
		}
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(body) != base.body {
			t.Fatalf("unexpected body on attempt %d: %q", i+1, string(body))
		}
	}
	if base.calls != 1 {
		t.Fatalf("expected a single upstream probe, got %d", base.calls)
	}

	// Non-robots requests bypass the cache entirely.
	req := httptest.NewRequest(http.MethodGet, "https://example.com/page", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip page returned error: %v", err)
	}
	if cerr := resp.Body.Close(); cerr != nil {
		t.Fatalf("resp close: %v", cerr)
	}
	if base.calls != 2 {
		t.Fatalf("expected page request to reach upstream, got %d calls", base.calls)
	}
}

type roundTripResult struct {
	resp *http.Response
	err  error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(_ *http.Request) (*http.Response, error) {
	defer func() { s.calls++ }()
	if len(s.results) == 0 {
		return nil, context.DeadlineExceeded
	}
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	res := s.results[idx]
	return res.resp, res.err
}

type countingRoundTripper struct {
	body  string
	calls int
}

func (c *countingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	rec := httptest.NewRecorder()
	_, _ = rec.WriteString(c.body)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}
