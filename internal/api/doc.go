// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/documents to enqueue a URL or inline document for processing.
//   - GET /v1/content and /v1/content/status/{status} for tracking-record
//     lookups backed by the ContentRepository interface.
package api
