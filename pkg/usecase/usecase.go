package usecase

import (
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/service/fetch"
	"github.com/secmon-lab/trendscope/pkg/service/index"
	"github.com/secmon-lab/trendscope/pkg/service/llm"
	"github.com/secmon-lab/trendscope/pkg/service/rag"
	"github.com/secmon-lab/trendscope/pkg/service/sentiment"
	"github.com/secmon-lab/trendscope/pkg/service/synthesis"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
)

type UseCases struct {
	repo         interfaces.AnalysisRepository
	sessions     *sessionRegistry
	tracker      *usage.Tracker
	Analysis     *AnalysisUseCase
	Conversation *ConversationUseCase
}

type config struct {
	sources   []interfaces.SourceClient
	generator interfaces.Generator
	embedder  interfaces.Embedder
	tracker   *usage.Tracker
	limits    model.SourceLimits
	fetchOpts []fetch.Option
	indexOpts []index.Option
	synthOpts []synthesis.Option
	ragOpts   []rag.Option
}

type Option func(*config)

// WithSources sets the source clients, at most one per kind
func WithSources(clients ...interfaces.SourceClient) Option {
	return func(c *config) { c.sources = append(c.sources, clients...) }
}

func WithGenerator(generator interfaces.Generator) Option {
	return func(c *config) { c.generator = generator }
}

// WithEmbedder sets the embedder used for every session index. Default is a
// hashing embedder of index.DefaultDimension.
func WithEmbedder(embedder interfaces.Embedder) Option {
	return func(c *config) { c.embedder = embedder }
}

func WithTracker(tracker *usage.Tracker) Option {
	return func(c *config) { c.tracker = tracker }
}

func WithSourceLimits(limits model.SourceLimits) Option {
	return func(c *config) { c.limits = limits }
}

func WithFetchOptions(opts ...fetch.Option) Option {
	return func(c *config) { c.fetchOpts = append(c.fetchOpts, opts...) }
}

func WithIndexOptions(opts ...index.Option) Option {
	return func(c *config) { c.indexOpts = append(c.indexOpts, opts...) }
}

func WithSynthesisOptions(opts ...synthesis.Option) Option {
	return func(c *config) { c.synthOpts = append(c.synthOpts, opts...) }
}

func WithRAGOptions(opts ...rag.Option) Option {
	return func(c *config) { c.ragOpts = append(c.ragOpts, opts...) }
}

func New(repo interfaces.AnalysisRepository, opts ...Option) *UseCases {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tracker == nil {
		cfg.tracker = usage.New()
	}
	if cfg.embedder == nil {
		cfg.embedder = llm.NewHashEmbedder(index.DefaultDimension)
	}
	if cfg.limits == nil {
		cfg.limits = model.DefaultSourceLimits()
	}

	sessions := newSessionRegistry()
	fetchOpts := append([]fetch.Option{fetch.WithTracker(cfg.tracker)}, cfg.fetchOpts...)

	return &UseCases{
		repo:     repo,
		sessions: sessions,
		tracker:  cfg.tracker,
		Analysis: &AnalysisUseCase{
			repo:        repo,
			sessions:    sessions,
			fetcher:     fetch.New(cfg.sources, fetchOpts...),
			synthesizer: synthesis.New(cfg.generator, cfg.synthOpts...),
			scorer:      sentiment.New(),
			embedder:    cfg.embedder,
			generator:   cfg.generator,
			limits:      cfg.limits,
			indexOpts:   cfg.indexOpts,
			ragOpts:     cfg.ragOpts,
		},
		Conversation: &ConversationUseCase{
			repo:     repo,
			sessions: sessions,
		},
	}
}

// Usage returns the usage counters of every external call key, sorted by key
func (uc *UseCases) Usage() []usage.Stats {
	return uc.tracker.Snapshot()
}

// SessionCount returns the number of live conversation sessions
func (uc *UseCases) SessionCount() int {
	return uc.sessions.count()
}
