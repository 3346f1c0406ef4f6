// Package embedding provides text embedding backends. Every backend turns a
// piece of text into a dense []float64 vector and may fail; callers decide how
// to degrade.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"surfmaster/internal/external"
	"surfmaster/internal/types"
)

// DefaultHuggingFaceEndpoint is the hosted feature-extraction endpoint. The
// {model} placeholder is replaced with the configured model.
const DefaultHuggingFaceEndpoint = "https://router.huggingface.co/hf-inference/models/{model}/pipeline/feature-extraction"

// DefaultHuggingFaceModel is used when no model is configured.
const DefaultHuggingFaceModel = "BAAI/bge-base-en-v1.5"

// HuggingFaceConfig holds the configuration for a HuggingFaceClient.
type HuggingFaceConfig struct {
	APIKey   types.SecretString
	Endpoint string
	Model    string
	Logger   *slog.Logger
}

type hfRequest struct {
	Inputs  string    `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// HuggingFaceClient calls the HuggingFace inference feature-extraction
// pipeline. Token-level responses are mean-pooled into one vector.
type HuggingFaceClient struct {
	base     *external.BaseClient
	apiKey   types.SecretString
	endpoint string
	logger   *slog.Logger
}

// NewHuggingFaceClient creates a HuggingFaceClient on top of base.
func NewHuggingFaceClient(base *external.BaseClient, cfg HuggingFaceConfig) *HuggingFaceClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HuggingFaceClient{
		base:     base,
		apiKey:   cfg.APIKey,
		endpoint: resolveHFEndpoint(cfg.Endpoint, cfg.Model),
		logger:   logger,
	}
}

// resolveHFEndpoint fills in the model placeholder, switches similarity
// pipelines to feature extraction, and rewrites the legacy inference host.
func resolveHFEndpoint(endpoint, model string) string {
	if endpoint == "" {
		endpoint = DefaultHuggingFaceEndpoint
	}
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	endpoint = strings.Replace(endpoint, "pipeline/sentence-similarity", "pipeline/feature-extraction", 1)
	endpoint = strings.ReplaceAll(endpoint, "{model}", model)
	if rest, ok := strings.CutPrefix(endpoint, "https://api-inference.huggingface.co"); ok {
		endpoint = "https://router.huggingface.co" + rest
	}
	return endpoint
}

// Name identifies the backend in logs and metrics.
func (c *HuggingFaceClient) Name() string { return "huggingface" }

// Embed returns the mean-pooled embedding of text.
func (c *HuggingFaceClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if !c.apiKey.IsSet() {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding, "huggingface api key not configured", nil)
	}

	body, err := json.Marshal(hfRequest{Inputs: text, Options: hfOptions{WaitForModel: true}})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	c.logger.DebugContext(ctx, "huggingface embedding request", "length", len(text))

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding,
			fmt.Sprintf("huggingface returned %d: %s", resp.StatusCode, external.ReadErrorBody(resp)), nil)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding, "failed to decode huggingface response", err)
	}
	return meanPool(raw)
}

// meanPool accepts either a single vector or a matrix of token vectors and
// returns their element-wise mean.
func meanPool(raw json.RawMessage) ([]float64, error) {
	var vector []float64
	if err := json.Unmarshal(raw, &vector); err == nil {
		if len(vector) == 0 {
			return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding, "huggingface returned an empty embedding", nil)
		}
		return vector, nil
	}

	var tokens [][]float64
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding, "unexpected huggingface embedding payload", err)
	}
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding, "huggingface returned an empty embedding", nil)
	}

	dims := len(tokens[0])
	out := make([]float64, dims)
	for _, tok := range tokens {
		if len(tok) != dims {
			return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding, "huggingface returned ragged token embeddings", nil)
		}
		for i, v := range tok {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(tokens))
	}
	return out, nil
}
