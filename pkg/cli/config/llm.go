package config

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/service/index"
	"github.com/secmon-lab/trendscope/pkg/service/llm"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
	"github.com/urfave/cli/v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	EmbedderLLM  = "llm"
	EmbedderHash = "hash"
)

// LLM holds configuration of text generation and embedding
type LLM struct {
	provider       string
	geminiProject  string
	geminiLocation string
	openaiAPIKey   string `masq:"secret"`
	embedder       string
	dimension      int
}

func (x *LLM) Flags() []cli.Flag {
	category := "LLM"
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Category:    category,
			Usage:       "Text generation provider [gemini|openai]. Empty disables generation",
			Sources:     cli.EnvVars("TRENDSCOPE_LLM_PROVIDER"),
			Destination: &x.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Category:    category,
			Usage:       "Google Cloud project ID for Gemini API",
			Sources:     cli.EnvVars("TRENDSCOPE_GEMINI_PROJECT"),
			Destination: &x.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Category:    category,
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Sources:     cli.EnvVars("TRENDSCOPE_GEMINI_LOCATION"),
			Destination: &x.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Category:    category,
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("TRENDSCOPE_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "embedder",
			Category:    category,
			Usage:       "Embedding backend [llm|hash]",
			Value:       EmbedderHash,
			Sources:     cli.EnvVars("TRENDSCOPE_EMBEDDER"),
			Destination: &x.embedder,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Category:    category,
			Usage:       "Embedding vector dimension",
			Value:       index.DefaultDimension,
			Sources:     cli.EnvVars("TRENDSCOPE_EMBEDDING_DIMENSION"),
			Destination: &x.dimension,
		},
	}
}

func (x *LLM) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", x.provider),
		slog.String("gemini_project", x.geminiProject),
		slog.String("gemini_location", x.geminiLocation),
		slog.Bool("openai_api_key", x.openaiAPIKey != ""),
		slog.String("embedder", x.embedder),
		slog.Int("dimension", x.dimension),
	}
}

// Dimension returns the configured embedding dimension
func (x *LLM) Dimension() int {
	return x.dimension
}

func (x *LLM) client(ctx context.Context) (gollem.LLMClient, error) {
	switch x.provider {
	case "":
		return nil, nil
	case ProviderGemini:
		if x.geminiProject == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "gemini project is required", goerr.V(FieldKey, "gemini-project"))
		}
		client, err := gemini.New(ctx, x.geminiProject, x.geminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil
	case ProviderOpenAI:
		if x.openaiAPIKey == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "openai API key is required", goerr.V(FieldKey, "openai-api-key"))
		}
		client, err := openai.New(ctx, x.openaiAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil
	}
	return nil, goerr.Wrap(ErrInvalidConfig, "unknown LLM provider", goerr.V(ValueKey, x.provider))
}

// Configure creates the generator and embedder. The generator is nil when no
// provider is configured; reports are then degraded and answers fail gracefully.
func (x *LLM) Configure(ctx context.Context, tracker *usage.Tracker) (interfaces.Generator, interfaces.Embedder, error) {
	if x.dimension <= 0 {
		return nil, nil, goerr.Wrap(errors.Join(ErrInvalidConfig, model.ErrConfiguration), "embedding dimension must be positive", goerr.V(ValueKey, x.dimension))
	}

	client, err := x.client(ctx)
	if err != nil {
		return nil, nil, err
	}

	var generator interfaces.Generator
	if client != nil {
		gen, err := llm.NewGenerator(client, llm.WithGeneratorTracker(tracker))
		if err != nil {
			return nil, nil, err
		}
		generator = gen
	}

	switch x.embedder {
	case EmbedderHash, "":
		return generator, llm.NewHashEmbedder(x.dimension), nil
	case EmbedderLLM:
		if client == nil {
			return nil, nil, goerr.Wrap(errors.Join(ErrInvalidConfig, model.ErrConfiguration), "llm embedder requires an LLM provider")
		}
		emb, err := llm.NewEmbedder(client, llm.WithDimension(x.dimension), llm.WithEmbedderTracker(tracker))
		if err != nil {
			return nil, nil, err
		}
		return generator, emb, nil
	}
	return nil, nil, goerr.Wrap(ErrInvalidConfig, "unknown embedder", goerr.V(ValueKey, x.embedder))
}
