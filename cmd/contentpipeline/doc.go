// Package main hosts the content pipeline service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, document submission, and tracking-record
//     inspection endpoints. Submissions are validated, normalized into pipeline.Tasks, and enqueued for the
//     worker pool.
//   - Dispatcher & queue: tasks flow through a bounded in-memory queue sized by workers.queue_size and are
//     fanned out to a fixed worker pool sized by workers.count. Context cancellation stops workers cleanly on
//     shutdown.
//   - Fetch pipeline: workers perform a lightweight probe fetch via the Colly-based fetcher (with optional
//     robots.txt enforcement), optionally promote to a headless Chromedp fetch when the heuristic detector
//     deems it necessary, and record response metadata for change detection.
//   - Change detection: normalized content is hashed and compared against the tracking record, so unchanged
//     pages cost one fetch and one store touch. Changed pages flow through semantic extraction and chunking,
//     and the accepted chunks are published to the configured sink (Pub/Sub, files, or memory).
//   - Persistence & fanout: tracking records live in Postgres (or memory), normalized snapshots are archived
//     to GCS, the local filesystem, or memory, and audit events are buffered and delivered to log and
//     Prometheus sinks for monitoring.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging;
//     Prometheus metrics are exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool; headless fetches have their own semaphore inside
//     the Chromedp fetcher. Shutdown is coordinated via context cancellation propagated from the root command
//     through the dispatcher to workers.
//   - Batch mode: contentpipeline process runs the same pipeline over a fixed document set and exits non-zero
//     when any document fails, which suits cron-style recrawls.
//   - Observability: zap logs carry task IDs and URLs at key transitions; Prometheus counters/histograms track
//     API and pipeline activity; the audit hub batches document lifecycle events for downstream sinks.
//   - Cloud Run: the HTTP server listens on the configured address. Health endpoints (/healthz, /readyz)
//     remain lightweight; the process reacts to SIGTERM for graceful drain and shutdown of workers.
//
// Quick checklist:
//   - Configure env vars: PIPELINE_HTTP_ADDR, PIPELINE_WORKERS_COUNT, PIPELINE_FETCH_TIMEOUT_SECONDS,
//     PIPELINE_FETCH_IGNORE_ROBOTS, PIPELINE_FETCH_HEADLESS_ENABLED, store (PIPELINE_STORE_*), snapshots, and
//     publisher settings, with a --config file for anything env alone cannot express.
//   - Run locally: go run ./cmd/contentpipeline serve --config config.yaml (or rely solely on env overrides).
//   - One-shot: go run ./cmd/contentpipeline process <url> [--html url=saved.html] replays saved pages through
//     the full pipeline without fetching.
package main
