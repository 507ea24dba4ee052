// Package collyfetcher implements the plain-HTTP fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/metrics"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements pipeline.Fetcher using the Colly collector. Each Fetch
// clones the base collector so per-request settings never leak.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := NewRobotsCacheTransport(newHTTPTransport())
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request pipeline.FetchRequest) (pipeline.FetchResponse, error) {
	var (
		result   pipeline.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector, robotsState := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return pipeline.FetchResponse{}, err
	}
	if robotsState != nil && robotsState.fallback {
		f.logger.Warn("robots.txt probe indeterminate, assuming allow",
			zap.String("url", request.URL),
			zap.String("reason", robotsState.reason),
		)
	}
	metrics.ObserveFetch(request.URL, false, len(result.Body), result.Duration)
	return result, nil
}

func (f *Fetcher) buildCollector(
	request pipeline.FetchRequest,
	start time.Time,
	result *pipeline.FetchResponse,
	fetchErr *error,
) (*colly.Collector, *robotsProbeState) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var robotsState *robotsProbeState
	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	if f.cfg.RespectRobots {
		robotsState = newRobotsProbeState()
		collector.WithTransport(&robotsAwareTransport{
			base:  baseTransport,
			state: robotsState,
		})
	} else {
		collector.WithTransport(baseTransport)
	}

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector, robotsState
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request pipeline.FetchRequest,
	start time.Time,
	result *pipeline.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = pipeline.FetchResponse{
			URL:          request.URL,
			FinalURL:     r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			Headers:      r.Headers.Clone(),
			Body:         append([]byte(nil), r.Body...),
			ContentType:  r.Headers.Get("Content-Type"),
			LastModified: parseLastModified(r.Headers.Get("Last-Modified")),
			Duration:     time.Since(start),
			UsedHeadless: false,
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request pipeline.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func parseLastModified(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := http.ParseTime(value)
	if err != nil {
		return nil
	}
	return &t
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
