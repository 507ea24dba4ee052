package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/carelane/content-pipeline/internal/audit"
)

// PrometheusSink exports pipeline audit metrics via Prometheus. It owns all
// collectors for documents completed/running and per-strategy chunk counters.
type PrometheusSink struct {
	documents   *prometheus.CounterVec
	docRuntime  *prometheus.HistogramVec
	docsRunning prometheus.Gauge

	chunksAccepted *prometheus.CounterVec
	chunksRejected *prometheus.CounterVec

	tracker *docTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_documents_total",
			Help: "Total documents completed partitioned by change type.",
		}, []string{"change_type"}),
		docRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_document_runtime_seconds",
			Help:    "Wall time per completed document.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"result"}),
		docsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_documents_running",
			Help: "Current number of documents being processed.",
		}),
		chunksAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_chunks_total",
			Help: "Chunks accepted by the quality gate partitioned by strategy.",
		}, []string{"strategy"}),
		chunksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_chunks_rejected_total",
			Help: "Chunks rejected by the quality gate partitioned by strategy.",
		}, []string{"strategy"}),
		tracker: newDocTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.documents,
		s.docRuntime,
		s.docsRunning,
		s.chunksAccepted,
		s.chunksRejected,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register audit collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []audit.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt audit.Event) {
	if evt.Terminal() {
		s.handleTerminal(evt)
		return
	}
	if s.tracker.start(evt.URL) {
		s.docsRunning.Inc()
	}
	if evt.Stage == audit.StageChunk {
		strategy := evt.Strategy
		if strategy == "" {
			strategy = "unknown"
		}
		if evt.Chunks > 0 {
			s.chunksAccepted.WithLabelValues(strategy).Add(float64(evt.Chunks))
		}
		if evt.Rejected > 0 {
			s.chunksRejected.WithLabelValues(strategy).Add(float64(evt.Rejected))
		}
	}
}

func (s *PrometheusSink) handleTerminal(evt audit.Event) {
	switch evt.Stage {
	case audit.StageDocDone:
		changeType := evt.ChangeType
		if changeType == "" {
			changeType = "unknown"
		}
		s.documents.WithLabelValues(changeType).Inc()
		s.observeRuntime(evt, "success")
	case audit.StageDocError:
		s.documents.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if s.tracker.complete(evt.URL) {
		s.docsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt audit.Event, label string) {
	if evt.Dur > 0 {
		s.docRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type docTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newDocTracker() *docTracker {
	return &docTracker{running: make(map[string]struct{})}
}

func (t *docTracker) start(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[url]; ok {
		return false
	}
	t.running[url] = struct{}{}
	return true
}

func (t *docTracker) complete(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[url]; !ok {
		return false
	}
	delete(t.running, url)
	return true
}
