// Package memory stores question → approved-answer examples in a vector
// index and retrieves them by semantic similarity with a recency-aware
// re-ranking policy.
package memory

import (
	"context"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/matiasroig/casera/internal/metrics"
)

// EmbeddingDimension is the fixed dimensionality of every stored vector.
const EmbeddingDimension = 1536

// embeddingClient is the slice of the OpenAI API the Embedder needs.
type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder turns text into vectors via the OpenAI embeddings API.
type Embedder struct {
	client embeddingClient
	model  openai.EmbeddingModel
	logger *slog.Logger
}

// NewEmbedder creates an Embedder using text-embedding-ada-002 (1536 dims,
// matching the index).
func NewEmbedder(client *openai.Client) *Embedder {
	return newEmbedder(client)
}

func newEmbedder(client embeddingClient) *Embedder {
	return &Embedder{
		client: client,
		model:  openai.AdaEmbeddingV2,
		logger: slog.Default(),
	}
}

// Embed returns the embedding for text, or nil when the request fails.
// Callers must treat a nil vector as a retrieval/write failure.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		e.logger.Error("embedding request failed", "error", err)
		return nil
	}
	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		e.logger.Error("embedding response contained no data")
		return nil
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("success").Inc()
	return resp.Data[0].Embedding
}
