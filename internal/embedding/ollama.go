package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"surfmaster/internal/external"
	"surfmaster/internal/types"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "nomic-embed-text"

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

// OllamaClient embeds text through a local Ollama server.
type OllamaClient struct {
	base    *external.BaseClient
	baseURL string
	model   string
}

// NewOllamaClient creates an Ollama embedding client.
func NewOllamaClient(base *external.BaseClient, baseURL, model string) *OllamaClient {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

// Embed calls POST /api/embeddings.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	body, _ := json.Marshal(ollamaEmbedReq{Model: c.model, Prompt: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding,
			fmt.Sprintf("ollama embed: status %d", resp.StatusCode), nil)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmbedding, "ollama returned an empty embedding", nil)
	}
	return result.Embedding, nil
}
