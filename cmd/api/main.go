// Package main is the entry point for the SurfMaster API server.
//
// It loads the configuration, opens the database pool, wires the embedding
// client, the vector cache tiers, the recommendation planner and the context
// retriever, and serves the HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"surfmaster/internal/api/handlers"
	"surfmaster/internal/config"
	"surfmaster/internal/core"
	"surfmaster/internal/db"
	"surfmaster/internal/embedcache"
	"surfmaster/internal/embedding"
	"surfmaster/internal/external"
	"surfmaster/internal/metrics"
	"surfmaster/internal/queue"
	"surfmaster/internal/rag"
	"surfmaster/internal/recommend"
	"surfmaster/internal/scoring"
	"surfmaster/internal/types"
)

// warmTimeout bounds the background embedding warm-up.
const warmTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.Observability.LogLevel)
	slog.SetDefault(logger)
	logger.Info("surfmaster API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, warm, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	srv.MountRoutes()

	if warm != nil {
		go warm(ctx)
	}
	return runHTTPServer(ctx, srv, cfg, logger)
}

// components are the domain services the HTTP layer is built from.
type components struct {
	spots     handlers.SpotReader
	forecasts handlers.ForecastReader
	planner   handlers.Recommender
	retriever handlers.ContextRetriever
	trigger   handlers.SyncRequester
	recorder  metrics.Recorder
	probes    []core.HealthProbe
	closers   []io.Closer
}

// buildServer constructs every dependency explicitly. The returned warm
// function, when non-nil, pre-computes spot embeddings.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*core.Server, func(context.Context), error) {
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("loading AWS SDK config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	var cw metrics.CloudWatchClient
	if cfg.Observability.MetricsBackend == metrics.BackendCloudWatch {
		c, err := loadAWS()
		if err != nil {
			return nil, nil, err
		}
		cw = cloudwatch.NewFromConfig(c, withEndpoint[cloudwatch.Options](cfg.AWS.EndpointURL, func(o *cloudwatch.Options, u *string) { o.BaseEndpoint = u }))
	}
	recorder := metrics.New(cfg.Observability.MetricsBackend, cw, logger)

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	c := components{
		recorder: recorder,
		closers:  []io.Closer{poolCloser{pool}},
		probes: []core.HealthProbe{
			core.ProbeFunc{ProbeName: "database", Fn: pool.Ping},
		},
	}

	if cfg.Database.AutoMigrate || cfg.IsLocal() {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("applying schema: %w", err)
		}
		logger.Info("database schema ensured")
	}

	spotRepo := db.NewSpotRepository(pool)
	forecastRepo := db.NewForecastRepository(pool)
	c.spots = spotRepo
	c.forecasts = forecastRepo

	httpClient := &http.Client{
		Timeout:   cfg.Embedding.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	embedder, err := embedding.New(embedding.Config{
		Provider:      cfg.Embedding.Provider,
		APIKey:        cfg.Embedding.APIKey,
		Endpoint:      cfg.Embedding.Endpoint,
		Model:         cfg.Embedding.Model,
		OllamaURL:     cfg.Embedding.OllamaURL,
		Timeout:       cfg.Embedding.Timeout,
		RatePerSecond: cfg.Embedding.RatePerSecond,
		Burst:         cfg.Embedding.Burst,
		Logger:        logger,
	}, httpClient,
		external.WithBreakerThreshold(cfg.Embedding.BreakerFailures, cfg.Embedding.BreakerOpenFor),
		external.WithBreakerStateHook(recorder.BreakerStateChanged),
	)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating embedding client: %w", err)
	}
	c.probes = append(c.probes, core.BreakerProbe("embedding", embedder.Base().State))

	var store embedcache.VectorStore
	if cfg.Qdrant.Enabled() {
		qs, err := embedcache.NewQdrantStore(cfg.Qdrant.Addr, cfg.Qdrant.Collection, vectorModelTag(embedder))
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		store = qs
		c.probes = append(c.probes, qs)
		c.closers = append(c.closers, qs)
	}
	cache := embedcache.NewTiered(embedcache.NewMemoryCache(), store, recorder, logger)

	retriever := rag.NewRetriever(spotRepo, embedder, cache, logger,
		rag.WithWorkers(cfg.Server.RetrievalWorkers),
		rag.WithRecorder(recorder),
	)
	c.retriever = retriever

	c.planner = recommend.NewPlanner(spotRepo, forecastRepo, scoring.NewEngine(), logger,
		recommend.WithMetrics(recorder),
	)

	if cfg.AWS.SyncQueueURL != "" {
		ac, err := loadAWS()
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		client := sqs.NewFromConfig(ac, withEndpoint[sqs.Options](cfg.AWS.EndpointURL, func(o *sqs.Options, u *string) { o.BaseEndpoint = u }))
		c.trigger = queue.NewSyncTrigger(client, cfg.AWS.SyncQueueURL, logger)
	} else {
		logger.Warn("SQS_FORECAST_SYNC not set, forecast sync endpoint disabled")
	}

	srv, err := newServer(cfg, logger, c)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	var warm func(context.Context)
	if cfg.Embedding.WarmOnStart {
		warm = func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, warmTimeout)
			defer cancel()
			failed, err := retriever.Warm(ctx)
			if err != nil {
				logger.Warn("embedding warm-up incomplete", "error", err)
				return
			}
			logger.Info("embedding warm-up complete", "failed", failed)
		}
	}
	return srv, warm, nil
}

// vectorModelTag identifies the vectors a backend produces, e.g.
// "huggingface:BAAI/bge-base-en-v1.5".
func vectorModelTag(c *embedding.Client) string {
	return c.Name() + ":" + c.Model()
}

// newServer assembles the chassis from already-built components.
func newServer(cfg *config.Config, logger *slog.Logger, c components) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = c.recorder
	if p, ok := c.recorder.(*metrics.Prometheus); ok {
		srv.MetricsHandler = p.Handler()
	}
	srv.HealthProbes = c.probes
	srv.Closers = c.closers

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		handlers.NewRecommendationHandler(c.planner, logger).RegisterRoutes,
		handlers.NewAssistantHandler(c.retriever, srv.Validator, logger).RegisterRoutes,
		handlers.NewSpotHandler(c.spots, c.forecasts, types.RealClock{}, logger).RegisterRoutes,
		handlers.NewSyncHandler(c.trigger, srv.Validator, logger).RegisterRoutes,
	)
	return srv, nil
}

// withEndpoint returns an AWS client option that overrides the service URL
// when endpoint is set (LocalStack).
func withEndpoint[O any](endpoint string, set func(*O, *string)) func(*O) {
	return func(o *O) {
		if endpoint != "" {
			set(o, aws.String(endpoint))
		}
	}
}

// poolCloser adapts pgxpool.Pool to io.Closer.
type poolCloser struct{ pool *pgxpool.Pool }

func (p poolCloser) Close() error {
	p.pool.Close()
	return nil
}

// runHTTPServer serves until ctx is cancelled, then shuts down gracefully.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger for the given level name.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
