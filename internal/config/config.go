// Package config defines the process configuration for the SurfMaster
// services. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"surfmaster/internal/types"
)

// SecretString is an alias for types.SecretString so that secrets never
// print in logs.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"surfmaster-api"`

	Server        ServerConfig
	Database      DatabaseConfig
	Embedding     EmbeddingConfig
	Qdrant        QdrantConfig
	Forecast      ForecastConfig
	AWS           AWSConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build is injected via ldflags, not env.
	Build BuildInfo
}

// IsLocal reports whether the process runs in the local environment.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	// RetrievalWorkers bounds concurrent spot embeddings per retrieval.
	RetrievalWorkers int `envconfig:"RAG_WORKERS" default:"4" validate:"min=1,max=64"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`

	// AutoMigrate applies the embedded schema at startup.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider      string        `envconfig:"EMBEDDING_PROVIDER" default:"huggingface" validate:"oneof=huggingface ollama"`
	APIKey        SecretString  `envconfig:"HF_API_KEY"`
	Endpoint      string        `envconfig:"EMBEDDING_ENDPOINT"`
	Model         string        `envconfig:"EMBEDDING_MODEL"`
	OllamaURL     string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434" validate:"omitempty,url"`
	Timeout       time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"60s"`
	RatePerSecond float64       `envconfig:"EMBEDDING_RATE_PER_SECOND" default:"0" validate:"min=0"`
	Burst         int           `envconfig:"EMBEDDING_BURST" default:"1" validate:"min=0"`

	// BreakerFailures consecutive failures open the circuit for BreakerOpenFor.
	BreakerFailures uint32        `envconfig:"EMBEDDING_BREAKER_FAILURES" default:"5"`
	BreakerOpenFor  time.Duration `envconfig:"EMBEDDING_BREAKER_OPEN_FOR" default:"30s"`

	// WarmOnStart embeds every spot in the background after startup.
	WarmOnStart bool `envconfig:"EMBEDDING_WARM_ON_START" default:"true"`
}

// QdrantConfig configures the persistent vector tier. Empty Addr disables it.
type QdrantConfig struct {
	Addr       string `envconfig:"QDRANT_ADDR"`
	Collection string `envconfig:"QDRANT_COLLECTION" default:"spot_embeddings"`
}

// Enabled reports whether a Qdrant address was configured.
func (q QdrantConfig) Enabled() bool {
	return q.Addr != ""
}

// ForecastConfig configures the Stormglass provider and the sync job.
type ForecastConfig struct {
	StormglassAPIKey SecretString  `envconfig:"STORMGLASS_API_KEY"`
	StormglassURL    string        `envconfig:"STORMGLASS_URL" default:"https://api.stormglass.io/v2" validate:"url"`
	Source           string        `envconfig:"STORMGLASS_SOURCE" default:"noaa"`
	HorizonHours     int           `envconfig:"FORECAST_HORIZON_HOURS" default:"24" validate:"min=1,max=240"`
	RefreshTTL       time.Duration `envconfig:"FORECAST_REFRESH_TTL" default:"60m"`
	SyncConcurrency  int           `envconfig:"FORECAST_SYNC_CONCURRENCY" default:"4" validate:"min=1,max=32"`
	Timeout          time.Duration `envconfig:"STORMGLASS_TIMEOUT" default:"20s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region       string `envconfig:"AWS_REGION" default:"us-east-1"`
	SyncQueueURL string `envconfig:"SQS_FORECAST_SYNC" validate:"omitempty,url"`

	// LocalStack support. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecurityConfig holds CORS and rate limit settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// RateLimitPerMinute caps requests per client IP. Zero disables it.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120" validate:"min=0"`
}

// ObservabilityConfig holds telemetry and logging settings.
type ObservabilityConfig struct {
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	MetricsBackend string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	EnableTracing  bool   `envconfig:"ENABLE_TRACING" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
