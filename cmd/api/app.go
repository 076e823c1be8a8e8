package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/aggregator"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/api"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/handlers"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/middleware"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/backend"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/budget"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/chunking"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/config"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/googleai"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/jobs"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/openai"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/ranking"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/repository"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/service"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/taxonomy"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/vectorindex"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/workers"
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	gateway        *backend.Gateway
	warmStart      service.WarmStartParams
	ready          *atomic.Bool
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

const narrativeQueueMaxWorkers = 2

// setupMetrics creates the meter provider and service metrics. The handler is non-nil only for the
// Prometheus exporter. When NewMeterProvider returns nil (unsupported exporter) metrics stay disabled.
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	mp, handler, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil, nil
	}

	metrics, err := observability.NewMetrics(mp.Meter("pastperformance"))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, handler, metrics, nil
}

// newGateway builds the AI backend gateway for the configured provider. It returns (nil, nil) when
// no provider key is set; embeddings then stay pending and narratives are skipped.
func newGateway(ctx context.Context, cfg *config.Config, metrics observability.BackendMetrics) (*backend.Gateway, error) {
	if !cfg.AIEnabled() {
		slog.Warn("AI backend disabled (AI_PROVIDER_API_KEY empty); embeddings stay pending")

		return nil, nil
	}

	var (
		embedder  backend.Embedder
		completer backend.Completer
	)

	switch cfg.AIProvider {
	case config.ProviderGoogle:
		opts := []googleai.ClientOption{googleai.WithDimensions(cfg.EmbeddingDimensions)}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, googleai.WithModel(cfg.EmbeddingModel))
		}

		if cfg.CompletionModel != "" {
			opts = append(opts, googleai.WithCompletionModel(cfg.CompletionModel))
		}

		client, err := googleai.NewClient(ctx, cfg.AIProviderAPIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("create google AI client: %w", err)
		}

		embedder, completer = client, client
	default:
		opts := []openai.ClientOption{openai.WithDimensions(cfg.EmbeddingDimensions)}
		if cfg.EmbeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
		}

		if cfg.CompletionModel != "" {
			opts = append(opts, openai.WithCompletionModel(cfg.CompletionModel))
		}

		client := openai.NewClient(cfg.AIProviderAPIKey, opts...)
		embedder, completer = client, client
	}

	slog.Info("AI backend enabled",
		"provider", cfg.AIProvider,
		"embedding_model", cfg.EmbeddingModel,
		"dimensions", cfg.EmbeddingDimensions,
	)

	return backend.NewGateway(backend.Params{
		Embedder:  embedder,
		Completer: completer,
		Config: backend.Config{
			MaxConcurrent:   cfg.BackendMaxConcurrent,
			Timeout:         cfg.BackendTimeout,
			MaxRetries:      cfg.BackendMaxRetries,
			RateLimit:       cfg.BackendRateLimit,
			BreakerFailures: cfg.BackendBreakerFailures,
		},
		Permanent: isPermanentBackendError,
		Metrics:   metrics,
		Logger:    slog.Default(),
	})
}

// isPermanentBackendError reports provider errors that a retry cannot fix.
func isPermanentBackendError(err error) bool {
	for _, target := range []error{
		openai.ErrEmptyInput, openai.ErrInvalidDims, openai.ErrDimensionMismatch,
		googleai.ErrEmptyInput, googleai.ErrInvalidDims, googleai.ErrDimensionMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

// newTokenEstimator uses tiktoken when an encoding is configured and the character heuristic otherwise.
func newTokenEstimator(encoding string) budget.Estimator {
	if encoding == "" {
		return budget.HeuristicEstimator{}
	}

	est, err := budget.NewTiktokenEstimator(encoding)
	if err != nil {
		slog.Warn("tiktoken encoding unavailable, using heuristic token estimate",
			"encoding", encoding, "error", err)

		return budget.HeuristicEstimator{}
	}

	return est
}

// NewApp builds and wires all components. It does not load state, start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (app *App, err error) {
	var (
		meterProvider  *sdkmetric.MeterProvider
		metricsHandler http.Handler
		metrics        *observability.Metrics
		tracerProvider *sdktrace.TracerProvider
	)

	// Release what was created so far when a later step fails.
	defer func() {
		if err != nil {
			if obsErr := shutdownObservability(context.Background(), tracerProvider, meterProvider); obsErr != nil {
				slog.Error("shutdown observability after startup error", "error", obsErr)
			}
		}
	}()

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metricsHandler, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	var (
		searchMetrics    observability.SearchMetrics
		backendMetrics   observability.BackendMetrics
		ingestionMetrics observability.IngestionMetrics
		cacheMetrics     observability.CacheMetrics
		apiMetrics       observability.APIMetrics
	)
	if metrics != nil {
		searchMetrics = metrics.Search
		backendMetrics = metrics.Backend
		ingestionMetrics = metrics.Ingestion
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
	}

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tracerProvider, err = observability.NewTracerProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
	}

	// Install CorrelationHandler unconditionally so request_id, record_id and job ids (and trace_id/span_id
	// when tracing is on) appear in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewCorrelationHandler(defaultHandler)))

	if tracerProvider != nil {
		otel.SetTracerProvider(tracerProvider)
	}

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	logger := slog.Default()

	gateway, err := newGateway(ctx, cfg, backendMetrics)
	if err != nil {
		return nil, err
	}

	// A nil *Gateway must not become a non-nil interface.
	var aiBackend service.Backend
	if gateway != nil {
		aiBackend = gateway
	}

	technologiesRepo := repository.NewTechnologiesRepository(db)
	recordsRepo := repository.NewRecordsRepository(db)
	chunksRepo := repository.NewChunksRepository(db)
	capabilitiesRepo := repository.NewCapabilitiesRepository(db)
	solicitationsRepo := repository.NewSolicitationsRepository(db)
	searchConfigurationsRepo := repository.NewSearchConfigurationsRepository(db)

	tax := taxonomy.New(technologiesRepo, logger)
	extractor := taxonomy.NewExtractor(tax,
		taxonomy.WithProposalThreshold(cfg.TaxonomyProposalThreshold),
		taxonomy.WithLogger(logger),
	)
	chunker := chunking.NewChunker(chunking.Config{MaxInputWords: cfg.EmbeddingMaxInputWords}, extractor)
	records := catalog.New()
	index := vectorindex.New(cfg.EmbeddingDimensions)
	agg := aggregator.New(tax, logger)

	inserter := jobs.NewRiverJobInserter(nil, ingestionMetrics)

	capabilitiesService := service.NewCapabilitiesService(service.CapabilitiesServiceParams{
		Aggregator:   agg,
		Records:      records,
		Technologies: tax,
		Store:        capabilitiesRepo,
		Backend:      aiBackend,
		Jobs:         inserter,
		Metrics:      ingestionMetrics,
		Logger:       logger,
	})

	ingestionService := service.NewIngestionService(service.IngestionServiceParams{
		Records:      recordsRepo,
		Chunks:       chunksRepo,
		Extractor:    extractor,
		Usage:        tax,
		Chunker:      chunker,
		Backend:      aiBackend,
		Index:        index,
		Catalog:      records,
		Aggregator:   agg,
		Capabilities: capabilitiesService,
		Jobs:         inserter,
		Metrics:      ingestionMetrics,
		Logger:       logger,
	})

	searchService, err := service.NewSearchService(service.SearchServiceParams{
		Ranker:           ranking.NewEngine(ranking.EngineParams{Records: records, Vectors: index, Taxonomy: tax, Logger: logger}),
		Backend:          aiBackend,
		Extractor:        extractor,
		Configurations:   searchConfigurationsRepo,
		Solicitations:    solicitationsRepo,
		Chunks:           index,
		Selector:         budget.NewSelector(newTokenEstimator(cfg.ContextTokenEncoding)),
		Model:            cfg.AIProvider + ":" + cfg.EmbeddingModel,
		QueryCacheSize:   cfg.SearchQueryCacheSize,
		ResearchCacheTTL: cfg.ResearchCacheTTL,
		Metrics:          searchMetrics,
		CacheMetrics:     cacheMetrics,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create search service: %w", err)
	}

	technologiesService := service.NewTechnologiesService(tax, capabilitiesService, logger)
	searchConfigurationsService := service.NewSearchConfigurationsService(searchConfigurationsRepo, logger)

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, workers.NewIngestWorker(ingestionService))
	river.AddWorker(riverWorkers, workers.NewReembedWorker(ingestionService))
	river.AddWorker(riverWorkers, workers.NewNarrativeWorker(capabilitiesService))
	river.AddWorker(riverWorkers, workers.NewPendingSweepWorker(ingestionService))

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			jobs.QueueIngest:      {MaxWorkers: cfg.IngestMaxConcurrent},
			jobs.QueueNarratives:  {MaxWorkers: narrativeQueueMaxWorkers},
			jobs.QueueMaintenance: {MaxWorkers: 1},
		},
		Workers:      riverWorkers,
		PeriodicJobs: []*river.PeriodicJob{workers.PeriodicSweep(cfg.PendingEmbeddingSweepInterval)},
		ErrorHandler: &jobs.ErrorHandler{Logger: logger},
		MaxAttempts:  cfg.IngestMaxAttempts,
	})
	if err != nil {
		if gateway != nil {
			gateway.Close()
		}

		return nil, fmt.Errorf("create River client: %w", err)
	}

	inserter.SetClient(riverClient)

	ready := &atomic.Bool{}

	router := api.NewRouter(api.Handlers{
		Health:               handlers.NewHealthHandler(db, ready.Load),
		Search:               handlers.NewSearchHandler(searchService),
		Technologies:         handlers.NewTechnologiesHandler(technologiesService),
		Capabilities:         handlers.NewCapabilitiesHandler(capabilitiesService),
		Ingest:               handlers.NewIngestHandler(ingestionService),
		SearchConfigurations: handlers.NewSearchConfigurationsHandler(searchConfigurationsService),
	}, api.RouterConfig{
		APIKey:              cfg.APIKey,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		Metrics:             apiMetrics,
		MetricsHandler:      metricsHandler,
	})

	return &App{
		cfg:     cfg,
		db:      db,
		server:  newHTTPServer(cfg, router, meterProvider, tracerProvider),
		river:   riverClient,
		gateway: gateway,
		warmStart: service.WarmStartParams{
			Technologies:   technologiesRepo,
			Records:        recordsRepo,
			Chunks:         chunksRepo,
			Taxonomy:       tax,
			SeedVocabulary: taxonomy.DefaultVocabulary(),
			Catalog:        records,
			Index:          index,
			Capabilities:   capabilitiesService,
			Logger:         logger,
		},
		ready:          ready,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newHTTPServer wraps the router in the outer middleware.
// Handler chain: RequestID -> otelhttp(Logging(router)) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	router http.Handler,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
) *http.Server {
	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for health checks and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log (trace_id/span_id in access logs).
	inner := middleware.Logging(router)
	handler := otelhttp.NewHandler(inner, "pastperformance-api", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 30 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server, loads the in-memory state, then starts River. It blocks until ctx is
// cancelled (e.g. signal) or a component fails. /health answers 503 until the state is loaded.
// Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	report := func(err error) {
		select {
		case runErr <- err:
		default:
		}
	}

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(fmt.Errorf("server: %w", err))
		}
	}()

	go func() {
		stats, err := service.WarmStart(riverCtx, a.warmStart)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				report(fmt.Errorf("warm start: %w", err))
			}

			return
		}

		slog.Info("warm start complete",
			"technologies", stats.Technologies,
			"seeded", stats.Seeded,
			"records", stats.Records,
			"chunks", stats.Chunks,
			"pending_chunks", stats.PendingChunks,
			"rollups", stats.Rollups,
		)
		a.ready.Store(true)

		// River workers mutate the catalog and index, so they start only after both are loaded.
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			report(fmt.Errorf("river: %w", err))
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server, River and the backend gateway in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		if a.gateway != nil {
			a.gateway.Close()
		}

		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
