package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"surfmaster/internal/external"
	"surfmaster/internal/types"
)

// Provider backend names accepted by New.
const (
	ProviderHuggingFace = "huggingface"
	ProviderOllama      = "ollama"
)

// Provider turns text into a vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider      string
	APIKey        types.SecretString
	Endpoint      string
	Model         string
	OllamaURL     string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Logger        *slog.Logger
}

// Client is the configured embedding backend plus its outbound rate limit.
// It exposes the underlying BaseClient for health reporting.
type Client struct {
	backend Provider
	name    string
	model   string
	base    *external.BaseClient
	limiter *rate.Limiter
}

// New builds the backend named by cfg.Provider. httpClient carries the
// transport (tracing, timeouts); a nil client gets cfg.Timeout. Extra
// BaseClient options (breaker hooks) are applied to the backend's BaseClient.
func New(cfg Config, httpClient *http.Client, opts ...external.BaseClientOption) (*Client, error) {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	opts = append([]external.BaseClientOption{external.WithUpstreamCode(types.ErrCodeUpstreamEmbedding)}, opts...)
	policy := external.RetryPolicy{MaxRetries: 1, MinWait: 250 * time.Millisecond, MaxWait: 2 * time.Second}

	c := &Client{limiter: newLimiter(cfg.RatePerSecond, cfg.Burst)}
	switch cfg.Provider {
	case ProviderHuggingFace, "":
		c.base = external.NewBaseClient(httpClient, "embedding-huggingface", policy, opts...)
		c.backend = NewHuggingFaceClient(c.base, HuggingFaceConfig{
			APIKey:   cfg.APIKey,
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			Logger:   cfg.Logger,
		})
		c.name = ProviderHuggingFace
		c.model = modelOrDefault(cfg.Model, DefaultHuggingFaceModel)
	case ProviderOllama:
		c.base = external.NewBaseClient(httpClient, "embedding-ollama", policy, opts...)
		c.backend = NewOllamaClient(c.base, cfg.OllamaURL, cfg.Model)
		c.name = ProviderOllama
		c.model = modelOrDefault(cfg.Model, DefaultOllamaModel)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
	return c, nil
}

// NewWithBackend wraps an existing backend with a rate limiter. Used by
// tests and by callers that bring their own Provider.
func NewWithBackend(name string, backend Provider, ratePerSecond float64, burst int) *Client {
	return &Client{backend: backend, name: name, limiter: newLimiter(ratePerSecond, burst)}
}

func modelOrDefault(model, def string) string {
	if model == "" {
		return def
	}
	return model
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Name returns the backend name.
func (c *Client) Name() string { return c.name }

// Model returns the resolved model name, or "" for custom backends.
func (c *Client) Model() string { return c.model }

// Base returns the backend's BaseClient, or nil for custom backends.
func (c *Client) Base() *external.BaseClient { return c.base }

// Embed waits for a rate-limit token and delegates to the backend.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamRateLimited, "embedding rate limit wait aborted", err)
	}
	return c.backend.Embed(ctx, text)
}
