package llm

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
)

const (
	DefaultDimension = 384
	defaultBatchSize = 32
)

// Embedder implements interfaces.Embedder with gollem's embedding API
type Embedder struct {
	client    gollem.LLMClient
	dimension int
	batchSize int
	tracker   *usage.Tracker
}

var _ interfaces.Embedder = &Embedder{}

type EmbedderOption func(*Embedder)

func WithDimension(dim int) EmbedderOption {
	return func(e *Embedder) {
		e.dimension = dim
	}
}

func WithBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		e.batchSize = n
	}
}

func WithEmbedderTracker(tracker *usage.Tracker) EmbedderOption {
	return func(e *Embedder) {
		e.tracker = tracker
	}
}

func NewEmbedder(client gollem.LLMClient, opts ...EmbedderOption) (*Embedder, error) {
	if client == nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "LLM client is required")
	}

	e := &Embedder{
		client:    client,
		dimension: DefaultDimension,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.dimension <= 0 {
		return nil, goerr.Wrap(model.ErrConfiguration, "embedding dimension must be positive", goerr.V("dimension", e.dimension))
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	return e, nil
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed requests vectors in batches. The vectors are returned as produced by the
// backend; dimension checks are left to the index.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		if e.tracker != nil {
			if err := e.tracker.Acquire(ctx, usage.KeyEmbed); err != nil {
				return nil, err
			}
		}

		embeddings, err := e.client.GenerateEmbedding(ctx, e.dimension, batch)
		if err != nil {
			if e.tracker != nil {
				e.tracker.RecordFailure(usage.KeyEmbed)
			}
			return nil, goerr.Wrap(err, "failed to generate embedding", goerr.V("batch_size", len(batch)))
		}
		if len(embeddings) != len(batch) {
			return nil, goerr.New("embedding count mismatch",
				goerr.V("expected", len(batch)),
				goerr.V("actual", len(embeddings)))
		}

		for _, vec := range embeddings {
			converted := make([]float32, len(vec))
			for i, v := range vec {
				converted[i] = float32(v)
			}
			result = append(result, converted)
		}
	}

	return result, nil
}
