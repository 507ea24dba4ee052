// Package app wires configuration into the long-lived pipeline services and
// runs them, either as a server or as a one-shot batch.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/carelane/content-pipeline/internal/api"
	"github.com/carelane/content-pipeline/internal/audit"
	auditsinks "github.com/carelane/content-pipeline/internal/audit/sinks"
	"github.com/carelane/content-pipeline/internal/changedetect"
	"github.com/carelane/content-pipeline/internal/chunk"
	"github.com/carelane/content-pipeline/internal/clock/system"
	"github.com/carelane/content-pipeline/internal/config"
	"github.com/carelane/content-pipeline/internal/dispatcher"
	"github.com/carelane/content-pipeline/internal/extract"
	collyfetcher "github.com/carelane/content-pipeline/internal/fetcher/colly"
	headlessfetcher "github.com/carelane/content-pipeline/internal/fetcher/headless"
	"github.com/carelane/content-pipeline/internal/fetcher/ratelimit"
	"github.com/carelane/content-pipeline/internal/hash/sha256"
	"github.com/carelane/content-pipeline/internal/headless/detector"
	"github.com/carelane/content-pipeline/internal/id/uuid"
	"github.com/carelane/content-pipeline/internal/logging"
	"github.com/carelane/content-pipeline/internal/metrics"
	"github.com/carelane/content-pipeline/internal/pipeline"
	filepublisher "github.com/carelane/content-pipeline/internal/publisher/file"
	publishermemory "github.com/carelane/content-pipeline/internal/publisher/memory"
	pubsubpublisher "github.com/carelane/content-pipeline/internal/publisher/pubsub"
	queuememory "github.com/carelane/content-pipeline/internal/queue/memory"
	gcsstorage "github.com/carelane/content-pipeline/internal/storage/gcs"
	localstorage "github.com/carelane/content-pipeline/internal/storage/local"
	storagememory "github.com/carelane/content-pipeline/internal/storage/memory"
	pgstore "github.com/carelane/content-pipeline/internal/storage/postgres"
	"github.com/carelane/content-pipeline/internal/store"
	"github.com/carelane/content-pipeline/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	auditHub  *audit.Hub
	queue     *queuememory.Queue
	publisher pipeline.ChunkPublisher
	gcsClient *storage.Client
	pgStore   *pgstore.ContentStore
	repo      store.ContentRepository
}

// Build creates the application's dependencies from the configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Service.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application services",
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
		zap.String("store", cfg.Store.Provider),
		zap.String("snapshots", cfg.Snapshots.Provider),
		zap.String("publisher", cfg.Publisher.Provider),
	)

	repo, err := setupTrackingStore(ctx, app)
	if err != nil {
		return nil, err
	}

	snapshots, err := setupSnapshots(ctx, app)
	if err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	emitter, err := setupAudit(ctx, app)
	if err != nil {
		return nil, err
	}

	app.queue = queuememory.NewQueue(cfg.Workers.QueueSize)
	app.dispatch = setupDispatcher(app, repo, snapshots, publisher, emitter)

	app.apiServer = api.NewServer(
		repo,
		app.dispatch,
		uuid.New(),
		system.New(),
		cfg.HTTP,
		logger.Named("api"),
	)

	return app, nil
}

// Run starts the dispatcher and the API server, then blocks until the
// context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcherDone := make(chan struct{})
	go func() {
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Workers.Count))
		a.dispatch.Run(ctx)
		close(dispatcherDone)
	}()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout(),
		WriteTimeout:      a.cfg.HTTP.WriteTimeout(),
	}

	go func() {
		a.logger.Info("http server started", zap.String("addr", a.cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.queue.Close()
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("dispatcher drain timed out")
	}

	return a.Close(shutdownCtx)
}

// BatchResult reports the final tracking state for one submitted document.
type BatchResult struct {
	URL    string `json:"url"`
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// BatchSummary aggregates one batch run.
type BatchSummary struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Documents []BatchResult `json:"documents"`
}

// RunBatch enqueues the tasks, closes the queue so the workers drain it, and
// waits for every document to finish. The summary reflects each task's
// tracking record after the run.
func (a *App) RunBatch(ctx context.Context, tasks []pipeline.Task) (BatchSummary, error) {
	a.logger.Info("batch processing started", zap.Int("documents", len(tasks)))

	dispatcherDone := make(chan struct{})
	go func() {
		a.dispatch.Run(ctx)
		close(dispatcherDone)
	}()

	for _, task := range tasks {
		if err := a.dispatch.Enqueue(ctx, task); err != nil {
			a.queue.Close()
			<-dispatcherDone
			return BatchSummary{}, fmt.Errorf("enqueue %s: %w", task.URL, err)
		}
	}
	a.queue.Close()
	<-dispatcherDone

	summaryCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary := summarizeBatch(summaryCtx, a.repo, tasks)
	a.logger.Info("batch processing finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// summarizeBatch reads back the tracking record for each task. A document
// counts as succeeded only when its record ended the run active.
func summarizeBatch(ctx context.Context, repo store.ContentRepository, tasks []pipeline.Task) BatchSummary {
	summary := BatchSummary{Documents: make([]BatchResult, 0, len(tasks))}
	for _, task := range tasks {
		result := BatchResult{URL: task.URL}
		record, err := repo.GetByURL(ctx, task.URL)
		switch {
		case errors.Is(err, store.ErrNotFound):
			result.Status = "missing"
			result.Error = "no tracking record written"
			summary.Failed++
		case err != nil:
			result.Status = "unknown"
			result.Error = err.Error()
			summary.Failed++
		case record.Status == pipeline.StatusActive:
			result.Status = string(record.Status)
			result.Chunks = record.ChunkCount
			summary.Succeeded++
		default:
			result.Status = string(record.Status)
			result.Chunks = record.ChunkCount
			result.Error = record.LastError
			summary.Failed++
		}
		summary.Documents = append(summary.Documents, result)
	}
	return summary
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	a.closeInfrastructure(ctx)
	a.closeObservability()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.auditHub != nil {
		if err := a.auditHub.Close(ctx); err != nil {
			a.logger.Warn("audit hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func (a *App) closeObservability() {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
}

func setupTrackingStore(ctx context.Context, app *App) (store.ContentRepository, error) {
	switch app.cfg.Store.Provider {
	case "postgres":
		app.logger.Info("using postgres tracking store")
		cs, err := pgstore.NewContentStore(ctx, pgstore.ContentStoreConfig{
			DSN: app.cfg.Store.DSN,
		})
		if err != nil {
			return nil, fmt.Errorf("tracking store init failed: %w", err)
		}
		app.pgStore = cs
		app.repo = cs
	default:
		app.logger.Info("using in-memory tracking store")
		app.repo = storagememory.NewContentStore()
	}
	return app.repo, nil
}

func setupSnapshots(ctx context.Context, app *App) (pipeline.SnapshotStore, error) {
	switch app.cfg.Snapshots.Provider {
	case "gcs":
		app.logger.Info("using GCS snapshot store", zap.String("bucket", app.cfg.Snapshots.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		snapshots, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: app.cfg.Snapshots.Bucket,
			Prefix: app.cfg.Snapshots.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs snapshot store init failed: %w", err)
		}
		return snapshots, nil
	case "local":
		app.logger.Info("using local snapshot store", zap.String("dir", app.cfg.Snapshots.Dir))
		snapshots, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Snapshots.Dir})
		if err != nil {
			return nil, fmt.Errorf("local snapshot store init failed: %w", err)
		}
		return snapshots, nil
	case "none":
		app.logger.Info("snapshot archiving disabled")
		return nil, nil
	default:
		app.logger.Info("using in-memory snapshot store")
		return storagememory.NewSnapshotStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (pipeline.ChunkPublisher, error) {
	switch app.cfg.Publisher.Provider {
	case "pubsub":
		pub, err := pubsubpublisher.New(ctx, app.cfg.Publisher.ProjectID, app.cfg.Publisher.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.Publisher.ProjectID),
			zap.String("topic", app.cfg.Publisher.Topic),
		)
		app.publisher = pub
	case "file":
		pub, err := filepublisher.New(app.cfg.Publisher.Dir, app.logger.Named("publisher"))
		if err != nil {
			return nil, fmt.Errorf("file publisher init failed: %w", err)
		}
		app.logger.Info("file publisher initialized", zap.String("dir", app.cfg.Publisher.Dir))
		app.publisher = pub
	default:
		app.logger.Info("using in-memory chunk publisher")
		app.publisher = publishermemory.New()
	}
	return app.publisher, nil
}

func setupAudit(ctx context.Context, app *App) (audit.Emitter, error) {
	sinkList := []audit.Sink{
		auditsinks.NewLogSink(app.logger.Named("audit_log")),
	}
	promSink, err := auditsinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("audit prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	hubCfg := audit.Config{
		BufferSize:     app.cfg.Audit.BufferSize,
		MaxBatchEvents: app.cfg.Audit.BatchSize,
		MaxBatchWait:   app.cfg.Audit.FlushInterval(),
		SinkTimeout:    app.cfg.Audit.SinkTimeout(),
		BaseContext:    ctx,
		Logger:         app.logger.Named("audit_hub"),
	}
	app.auditHub = audit.NewHub(hubCfg, sinkList...)
	app.logger.Info("audit hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.auditHub, nil
}

func setupDispatcher(
	app *App,
	repo store.ContentRepository,
	snapshots pipeline.SnapshotStore,
	publisher pipeline.ChunkPublisher,
	emitter audit.Emitter,
) *dispatcher.Dispatcher {
	hasher := sha256.New()
	clk := system.New()
	idGen := uuid.New()
	promote := detector.NewHeuristic(app.cfg.Fetch.Headless.PromotionThreshold)

	var probe pipeline.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:     app.cfg.Fetch.UserAgent,
		RespectRobots: !app.cfg.Fetch.IgnoreRobots,
		Timeout:       app.cfg.Fetch.Timeout(),
	}, app.logger.Named("fetcher"))
	app.logger.Info("using colly probe fetcher", zap.String("user_agent", app.cfg.Fetch.UserAgent))

	var headless pipeline.Fetcher
	if app.cfg.Fetch.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       app.cfg.Fetch.Headless.MaxParallel,
			UserAgent:         app.cfg.Fetch.UserAgent,
			NavigationTimeout: app.cfg.Fetch.Headless.NavTimeout(),
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			headless = hf
			app.logger.Info("using headless fetcher",
				zap.Int("max_parallel", app.cfg.Fetch.Headless.MaxParallel))
		}
	}

	if app.cfg.Fetch.RateLimit.Enabled {
		// Probe and rendered fetches share one budget per host.
		limiter := ratelimit.NewLimiter(ratelimit.Config{
			RPS:   app.cfg.Fetch.RateLimit.RPS,
			Burst: app.cfg.Fetch.RateLimit.Burst,
		})
		rlLogger := app.logger.Named("ratelimit")
		probe = ratelimit.Wrap(limiter, probe, rlLogger)
		if headless != nil {
			headless = ratelimit.Wrap(limiter, headless, rlLogger)
		}
		app.logger.Info("per-host rate limiting enabled",
			zap.Float64("rps", app.cfg.Fetch.RateLimit.RPS),
			zap.Int("burst", app.cfg.Fetch.RateLimit.Burst))
	}

	changeDetector := changedetect.New(
		repo,
		snapshots,
		hasher,
		app.cfg.Normalize,
		app.cfg.Pipeline.RecordTTL(),
		clk,
		app.logger.Named("changedetect"),
	)
	extractor := extract.New(app.cfg.Pipeline.Extract, idGen, clk, app.logger.Named("extract"))
	chunker := chunk.New(app.cfg.Pipeline.Chunk, idGen, clk, app.logger.Named("chunk"))

	workerCfg := worker.Config{HeadlessEnabled: app.cfg.Fetch.Headless.Enabled}
	workers := make([]*worker.Worker, 0, app.cfg.Workers.Count)
	for i := 0; i < app.cfg.Workers.Count; i++ {
		workers = append(workers, worker.New(
			app.queue,
			changeDetector,
			extractor,
			chunker,
			publisher,
			probe,
			headless,
			promote,
			emitter,
			clk,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers)
}
