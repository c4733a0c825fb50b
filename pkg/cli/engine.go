package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/cli/config"
	"github.com/secmon-lab/trendscope/pkg/repository/memory"
	"github.com/secmon-lab/trendscope/pkg/usecase"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// engineConfig gathers the settings shared by every command that runs analyses
type engineConfig struct {
	llm     config.LLM
	sources config.Sources
	engine  config.Engine
}

func (x *engineConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, x.engine.Flags()...)
	flags = append(flags, x.llm.Flags()...)
	flags = append(flags, x.sources.Flags()...)
	return flags
}

// build wires the analysis engine from flags and the tuning file
func (x *engineConfig) build(ctx context.Context) (*usecase.UseCases, error) {
	tuning, err := x.engine.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load engine tuning")
	}
	tracker := tuning.NewTracker()

	generator, embedder, err := x.llm.Configure(ctx, tracker)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure LLM")
	}

	clients, err := x.sources.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure sources")
	}

	logger := logging.From(ctx)
	logger.Info("engine configured",
		slog.Any("engine", x.engine.LogAttrs()),
		slog.Any("llm", x.llm.LogAttrs()),
		slog.Any("sources", x.sources.LogAttrs()),
	)
	if generator == nil {
		logger.Warn("no LLM provider configured, reports are degraded and questions cannot be answered")
	}

	return usecase.New(memory.New(),
		usecase.WithSources(clients...),
		usecase.WithGenerator(generator),
		usecase.WithEmbedder(embedder),
		usecase.WithTracker(tracker),
		usecase.WithSourceLimits(tuning.SourceLimits()),
		usecase.WithFetchOptions(tuning.FetchOptions()...),
		usecase.WithIndexOptions(tuning.IndexOptions(embedder.Dimension())...),
		usecase.WithSynthesisOptions(tuning.SynthesisOptions()...),
		usecase.WithRAGOptions(tuning.RAGOptions()...),
	), nil
}
