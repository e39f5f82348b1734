// Package embedding provides text embeddings, an injectable embedding cache,
// and cosine-similarity ranking over unindexed candidate sets.
package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"postcrafter/config"
)

// Embedder produces fixed-dimensionality vectors for arbitrary text. The
// same input must always yield the same output, otherwise caching breaks.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// OpenAIEmbedder creates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	batchSize  int
	logger     *zap.Logger
}

func NewOpenAIEmbedder(cfg *config.Config, logger *zap.Logger) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:     openai.NewClient(cfg.OpenAIAPIKey),
		model:      cfg.EmbeddingModel,
		dimensions: cfg.EmbeddingDimensions,
		batchSize:  cfg.EmbeddingBatchSize,
		logger:     logger,
	}
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the embedding vector for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}

// EmbedBatch embeds texts in batches. A failed batch degrades to zero
// vectors for its items instead of aborting the whole call; a zero vector
// yields near-zero similarity and sinks those items in ranked results.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchSize := e.batchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dimensions,
		})
		if err != nil || len(resp.Data) != len(batch) {
			if e.logger != nil {
				e.logger.Warn("Batch embedding failed, substituting zero vectors",
					zap.Int("batch_start", start),
					zap.Int("batch_size", len(batch)),
					zap.Error(err))
			}
			for range batch {
				vectors = append(vectors, make([]float32, e.dimensions))
			}
			continue
		}
		for _, item := range resp.Data {
			vectors = append(vectors, item.Embedding)
		}
	}
	return vectors, nil
}
