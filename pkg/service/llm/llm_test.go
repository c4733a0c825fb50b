package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/service/llm"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
)

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{"ok"}}, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn        func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
	generateEmbeddingFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if c.generateEmbeddingFn != nil {
		return c.generateEmbeddingFn(ctx, dimension, input)
	}
	return nil, nil
}

func TestGenerator_Generate(t *testing.T) {
	t.Run("passes the prompt and returns joined text", func(t *testing.T) {
		var received string
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						received = string(input[0].(gollem.Text))
						return &gollem.Response{Texts: []string{"Hello, ", "world"}}, nil
					},
				}, nil
			},
		}
		tracker := usage.New()
		gen, err := llm.NewGenerator(client, llm.WithGeneratorTracker(tracker))
		gt.NoError(t, err).Required()

		text, err := gen.Generate(t.Context(), "say hello", interfaces.GenerateOptions{SystemPrompt: "be brief"})
		gt.NoError(t, err).Required()
		gt.Value(t, text).Equal("Hello, world")
		gt.Value(t, received).Equal("say hello")
		gt.Value(t, tracker.Get(usage.KeyGenerate).Calls).Equal(int64(1))
	})

	t.Run("session failure is a generation error", func(t *testing.T) {
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return nil, errors.New("quota")
			},
		}
		tracker := usage.New()
		gen, err := llm.NewGenerator(client, llm.WithGeneratorTracker(tracker))
		gt.NoError(t, err).Required()

		_, err = gen.Generate(t.Context(), "x", interfaces.GenerateOptions{})
		gt.Error(t, err).Is(model.ErrGeneration)
		gt.Value(t, tracker.Get(usage.KeyGenerate).Failures).Equal(int64(1))
	})

	t.Run("empty response is a generation error", func(t *testing.T) {
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						return &gollem.Response{}, nil
					},
				}, nil
			},
		}
		gen, err := llm.NewGenerator(client)
		gt.NoError(t, err).Required()

		_, err = gen.Generate(t.Context(), "x", interfaces.GenerateOptions{})
		gt.Error(t, err).Is(model.ErrGeneration)
	})

	t.Run("truncates text beyond the token budget", func(t *testing.T) {
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						return &gollem.Response{Texts: []string{strings.Repeat("a", 100)}}, nil
					},
				}, nil
			},
		}
		gen, err := llm.NewGenerator(client)
		gt.NoError(t, err).Required()

		text, err := gen.Generate(t.Context(), "x", interfaces.GenerateOptions{MaxTokens: 5})
		gt.NoError(t, err).Required()
		gt.Number(t, len(text)).Equal(20)
	})

	t.Run("requires a client", func(t *testing.T) {
		_, err := llm.NewGenerator(nil)
		gt.Error(t, err).Is(model.ErrConfiguration)
	})
}

func TestEmbedder_Embed(t *testing.T) {
	t.Run("batches requests and converts to float32", func(t *testing.T) {
		var batches [][]string
		client := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				batches = append(batches, input)
				out := make([][]float64, len(input))
				for i := range input {
					out[i] = make([]float64, dimension)
					out[i][0] = 0.5
				}
				return out, nil
			},
		}
		emb, err := llm.NewEmbedder(client, llm.WithDimension(8), llm.WithBatchSize(2))
		gt.NoError(t, err).Required()

		vecs, err := emb.Embed(t.Context(), []string{"a", "b", "c"})
		gt.NoError(t, err).Required()
		gt.Array(t, vecs).Length(3)
		gt.Array(t, vecs[2]).Length(8)
		gt.Value(t, vecs[0][0]).Equal(float32(0.5))
		gt.Array(t, batches).Length(2)
		gt.Value(t, emb.Dimension()).Equal(8)
	})

	t.Run("count mismatch is an error", func(t *testing.T) {
		client := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return [][]float64{{1}}, nil
			},
		}
		emb, err := llm.NewEmbedder(client)
		gt.NoError(t, err).Required()

		_, err = emb.Embed(t.Context(), []string{"a", "b"})
		gt.Error(t, err)
	})

	t.Run("invalid dimension is a configuration error", func(t *testing.T) {
		_, err := llm.NewEmbedder(&mockLLMClient{}, llm.WithDimension(0))
		gt.Error(t, err).Is(model.ErrConfiguration)
	})
}

func TestHashEmbedder(t *testing.T) {
	emb := llm.NewHashEmbedder(64)
	gt.Value(t, emb.Dimension()).Equal(64)

	vecs, err := emb.Embed(context.Background(), []string{"Battery prices fall", "battery PRICES fall!", ""})
	gt.NoError(t, err).Required()
	gt.Array(t, vecs).Length(3)
	gt.Array(t, vecs[0]).Length(64)
	gt.Value(t, vecs[0]).Equal(vecs[1])

	var nonZero int
	for _, v := range vecs[2] {
		if v != 0 {
			nonZero++
		}
	}
	gt.Number(t, nonZero).Equal(0)
}
