package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deskmemo/internal/analyzer"
)

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

var errNoInput = errors.New("no texts to embed")

// EmbeddingsClient calls the /embeddings route of the same kind of
// OpenAI-compatible endpoint the analyzer talks to.
type EmbeddingsClient struct {
	endpoint   *analyzer.Endpoint
	model      string
	vectorSize int
}

// NewEmbeddingsClient rejects vectors whose length is not vectorSize, so a
// model swap cannot silently corrupt the collection.
func NewEmbeddingsClient(baseURL, apiKey, model string, vectorSize int) *EmbeddingsClient {
	return &EmbeddingsClient{
		endpoint:   analyzer.NewEndpoint(baseURL, apiKey, 30*time.Second),
		model:      model,
		vectorSize: vectorSize,
	}
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errNoInput
	}

	var resp embeddingsResponse
	if err := c.endpoint.PostJSON(ctx, "/embeddings", embeddingsRequest{Model: c.model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if len(d.Embedding) != c.vectorSize {
			return nil, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(d.Embedding), c.vectorSize)
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
