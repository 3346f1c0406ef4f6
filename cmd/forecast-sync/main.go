// Package main is the entrypoint for the forecast sync worker.
//
// Inside AWS Lambda it consumes SQS sync requests published by
// POST /v1/forecasts/sync and reports failed messages through partial batch
// responses. Outside Lambda it performs a single sync from the command line:
//
//	go run ./cmd/forecast-sync --spots=1,2 --force
//
// Spots fetched within FORECAST_REFRESH_TTL are skipped unless forced. The
// fetch tracker lives in the process, so a warm Lambda container remembers
// earlier invocations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"surfmaster/internal/config"
	"surfmaster/internal/db"
	"surfmaster/internal/external"
	"surfmaster/internal/forecasts"
	"surfmaster/internal/metrics"
	"surfmaster/internal/queue"
	"surfmaster/internal/types"
)

// workerConfig is the subset of the service configuration the worker reads.
type workerConfig struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`

	Database      config.DatabaseConfig
	Forecast      config.ForecastConfig
	AWS           config.AWSConfig
	Observability config.ObservabilityConfig
}

func loadWorkerConfig() (*workerConfig, error) {
	var cfg workerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.Forecast.StormglassAPIKey.IsSet() {
		return nil, errors.New("STORMGLASS_API_KEY is required")
	}
	return &cfg, nil
}

// Syncer runs one forecast sync.
type Syncer interface {
	Sync(ctx context.Context, req types.SyncRequestMessage) (*forecasts.SyncResult, error)
}

// Handler processes SQS sync requests.
type Handler struct {
	syncer Syncer
	logger *slog.Logger
}

func newHandler(syncer Syncer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{syncer: syncer, logger: logger}
}

// Handle runs each message in the batch. Messages whose sync could not load
// the catalog are returned in batchItemFailures so SQS retries only those.
// Per-spot fetch failures do not fail the message: those spots stay stale and
// are picked up by the next request.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process sync request",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}
	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	req, err := queue.ParseSyncRequest(record.Body)
	if err != nil {
		// Permanent parse failure; ACK so it is not redelivered.
		h.logger.ErrorContext(ctx, "dropping malformed sync request",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	result, err := h.syncer.Sync(ctx, req)
	if err != nil {
		return err
	}
	if len(result.FailedSpotIDs) > 0 {
		h.logger.WarnContext(ctx, "sync finished with failed spots",
			"request_id", req.RequestID,
			"failed_spot_ids", result.FailedSpotIDs,
		)
	}
	return nil
}

func main() {
	spotsFlag := flag.String("spots", "", "Comma-separated spot ids to refresh (default: every spot)")
	forceFlag := flag.Bool("force", false, "Ignore the refresh TTL")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(logger, *spotsFlag, *forceFlag); err != nil {
		logger.Error("forecast sync failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, spotsRaw string, force bool) error {
	_ = godotenv.Load()

	// DATABASE_URL and STORMGLASS_API_KEY may be _SSM_PARAM pointers.
	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}
	cfg, err := loadWorkerConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	httpClient := &http.Client{
		Timeout:   cfg.Forecast.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	base := external.NewBaseClient(httpClient, "stormglass", external.DefaultRetryPolicy(),
		external.WithUpstreamCode(types.ErrCodeUpstreamForecast),
		external.WithBreakerStateHook(recorder.BreakerStateChanged),
	)
	provider := forecasts.NewStormglassProvider(base, forecasts.StormglassConfig{
		APIKey:       cfg.Forecast.StormglassAPIKey,
		BaseURL:      cfg.Forecast.StormglassURL,
		Source:       cfg.Forecast.Source,
		HorizonHours: cfg.Forecast.HorizonHours,
		Logger:       logger,
	})

	syncer := forecasts.NewSyncer(forecasts.SyncerConfig{
		Provider:    provider,
		Spots:       db.NewSpotRepository(pool),
		Store:       db.NewForecastRepository(pool),
		Tracker:     forecasts.NewMemoryTracker(),
		TTL:         cfg.Forecast.RefreshTTL,
		Concurrency: cfg.Forecast.SyncConcurrency,
		Recorder:    recorder,
		Logger:      logger,
	})

	if isLambdaEnvironment() {
		logger.Info("forecast sync worker initialized", "source", cfg.Forecast.Source, "ttl", cfg.Forecast.RefreshTTL)
		lambda.Start(newHandler(syncer, logger).Handle)
		return nil
	}

	ids, err := parseSpotIDs(spotsRaw)
	if err != nil {
		return err
	}
	result, err := syncer.Sync(ctx, types.SyncRequestMessage{
		RequestID: uuid.NewString(),
		SpotIDs:   ids,
		Force:     force,
	})
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}

// newRecorder publishes to CloudWatch when configured. A batch process has
// nothing to scrape, so every other backend is a no-op here.
func newRecorder(ctx context.Context, cfg *workerConfig, logger *slog.Logger) (metrics.Recorder, error) {
	if cfg.Observability.MetricsBackend != metrics.BackendCloudWatch {
		return metrics.Nop{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	return metrics.New(metrics.BackendCloudWatch, client, logger), nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// parseSpotIDs splits a comma-separated id list. Blank entries are skipped.
func parseSpotIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid spot id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
