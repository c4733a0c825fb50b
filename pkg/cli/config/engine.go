package config

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/fetch"
	"github.com/secmon-lab/trendscope/pkg/service/index"
	"github.com/secmon-lab/trendscope/pkg/service/rag"
	"github.com/secmon-lab/trendscope/pkg/service/synthesis"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
	"github.com/urfave/cli/v3"
)

// Duration is a time.Duration written as a string such as "15s" in TOML
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return goerr.Wrap(err, "invalid duration", goerr.V(ValueKey, string(text)))
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type LimitsConfig struct {
	Video  int `toml:"video"`
	News   int `toml:"news"`
	Social int `toml:"social"`
}

type FetchConfig struct {
	TaskTimeout   Duration `toml:"task_timeout"`
	MaxRetries    int      `toml:"max_retries"`
	BackoffBase   Duration `toml:"backoff_base"`
	GlobalTimeout Duration `toml:"global_timeout"`
	Workers       int      `toml:"workers"`
}

type IndexConfig struct {
	MaxChars int `toml:"max_chars"`
}

type SynthesisConfig struct {
	SamplePerKind int      `toml:"sample_per_kind"`
	SampleChars   int      `toml:"sample_chars"`
	MaxTokens     int      `toml:"max_tokens"`
	Temperature   float64  `toml:"temperature"`
	Timeout       Duration `toml:"timeout"`
}

type RAGConfig struct {
	K               int      `toml:"k"`
	HistoryTurns    int      `toml:"history_turns"`
	MaxTurns        int      `toml:"max_turns"`
	SimilarityFloor float64  `toml:"similarity_floor"`
	Timeout         Duration `toml:"timeout"`
	MaxTokens       int      `toml:"max_tokens"`
	Temperature     float64  `toml:"temperature"`
	FollowUps       int      `toml:"follow_ups"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Tuning is the engine tuning file. Every field has a default.
type Tuning struct {
	Limits     LimitsConfig               `toml:"limits"`
	Fetch      FetchConfig                `toml:"fetch"`
	Index      IndexConfig                `toml:"index"`
	Synthesis  SynthesisConfig            `toml:"synthesis"`
	RAG        RAGConfig                  `toml:"rag"`
	RateLimits map[string]RateLimitConfig `toml:"rate_limits"`
}

// DefaultTuning returns the built-in engine settings
func DefaultTuning() *Tuning {
	limits := model.DefaultSourceLimits()
	return &Tuning{
		Limits: LimitsConfig{
			Video:  limits[types.SourceKindVideo],
			News:   limits[types.SourceKindNews],
			Social: limits[types.SourceKindSocial],
		},
		Fetch: FetchConfig{
			TaskTimeout:   Duration(fetch.DefaultTaskTimeout),
			MaxRetries:    fetch.DefaultMaxRetries,
			BackoffBase:   Duration(fetch.DefaultBackoffBase),
			GlobalTimeout: Duration(fetch.DefaultGlobalTimeout),
			Workers:       len(types.AllSourceKinds()),
		},
		Index: IndexConfig{
			MaxChars: index.DefaultMaxChars,
		},
		Synthesis: SynthesisConfig{
			SamplePerKind: synthesis.DefaultSamplePerKind,
			SampleChars:   synthesis.DefaultSampleChars,
			MaxTokens:     synthesis.DefaultMaxTokens,
			Temperature:   synthesis.DefaultTemperature,
			Timeout:       Duration(synthesis.DefaultTimeout),
		},
		RAG: RAGConfig{
			K:               rag.DefaultK,
			HistoryTurns:    rag.DefaultHistoryTurns,
			MaxTurns:        model.DefaultMaxTurns,
			SimilarityFloor: rag.DefaultSimilarityFloor,
			Timeout:         Duration(rag.DefaultTimeout),
			MaxTokens:       rag.DefaultMaxTokens,
			Temperature:     rag.DefaultTemperature,
			FollowUps:       rag.DefaultFollowUps,
		},
	}
}

// LoadTuning reads a TOML tuning file over the defaults
func LoadTuning(path string) (*Tuning, error) {
	t := DefaultTuning()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "tuning file not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read tuning file", goerr.V(ConfigPathKey, path))
	}

	if err := toml.Unmarshal(data, t); err != nil {
		return nil, goerr.Wrap(errors.Join(ErrInvalidConfig, err), "failed to parse tuning file", goerr.V(ConfigPathKey, path))
	}
	if err := t.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid tuning file", goerr.V(ConfigPathKey, path))
	}
	return t, nil
}

func invalid(field string, value any) error {
	return goerr.Wrap(ErrInvalidConfig, "out of range", goerr.V(FieldKey, field), goerr.V(ValueKey, value))
}

// Validate checks every value is in its accepted range
func (t *Tuning) Validate() error {
	switch {
	case t.Limits.Video < 0:
		return invalid("limits.video", t.Limits.Video)
	case t.Limits.News < 0:
		return invalid("limits.news", t.Limits.News)
	case t.Limits.Social < 0:
		return invalid("limits.social", t.Limits.Social)
	case t.Fetch.TaskTimeout <= 0:
		return invalid("fetch.task_timeout", time.Duration(t.Fetch.TaskTimeout))
	case t.Fetch.MaxRetries < 0:
		return invalid("fetch.max_retries", t.Fetch.MaxRetries)
	case t.Fetch.BackoffBase < 0:
		return invalid("fetch.backoff_base", time.Duration(t.Fetch.BackoffBase))
	case t.Fetch.GlobalTimeout < t.Fetch.TaskTimeout:
		return invalid("fetch.global_timeout", time.Duration(t.Fetch.GlobalTimeout))
	case t.Fetch.Workers <= 0:
		return invalid("fetch.workers", t.Fetch.Workers)
	case t.Index.MaxChars <= 0:
		return invalid("index.max_chars", t.Index.MaxChars)
	case t.Synthesis.SamplePerKind <= 0:
		return invalid("synthesis.sample_per_kind", t.Synthesis.SamplePerKind)
	case t.Synthesis.SampleChars <= 0:
		return invalid("synthesis.sample_chars", t.Synthesis.SampleChars)
	case t.Synthesis.MaxTokens <= 0:
		return invalid("synthesis.max_tokens", t.Synthesis.MaxTokens)
	case t.Synthesis.Temperature < 0 || t.Synthesis.Temperature > 2:
		return invalid("synthesis.temperature", t.Synthesis.Temperature)
	case t.Synthesis.Timeout <= 0:
		return invalid("synthesis.timeout", time.Duration(t.Synthesis.Timeout))
	case t.RAG.K <= 0:
		return invalid("rag.k", t.RAG.K)
	case t.RAG.HistoryTurns < 0:
		return invalid("rag.history_turns", t.RAG.HistoryTurns)
	case t.RAG.MaxTurns <= 0:
		return invalid("rag.max_turns", t.RAG.MaxTurns)
	case t.RAG.SimilarityFloor < -1 || t.RAG.SimilarityFloor > 1:
		return invalid("rag.similarity_floor", t.RAG.SimilarityFloor)
	case t.RAG.Timeout <= 0:
		return invalid("rag.timeout", time.Duration(t.RAG.Timeout))
	case t.RAG.MaxTokens <= 0:
		return invalid("rag.max_tokens", t.RAG.MaxTokens)
	case t.RAG.Temperature < 0 || t.RAG.Temperature > 2:
		return invalid("rag.temperature", t.RAG.Temperature)
	case t.RAG.FollowUps < 0:
		return invalid("rag.follow_ups", t.RAG.FollowUps)
	}

	for key, rl := range t.RateLimits {
		if rl.RequestsPerSecond <= 0 || rl.Burst <= 0 {
			return invalid("rate_limits."+key, rl)
		}
	}
	return nil
}

func (t *Tuning) SourceLimits() model.SourceLimits {
	return model.SourceLimits{
		types.SourceKindVideo:  t.Limits.Video,
		types.SourceKindNews:   t.Limits.News,
		types.SourceKindSocial: t.Limits.Social,
	}
}

func (t *Tuning) FetchOptions() []fetch.Option {
	return []fetch.Option{
		fetch.WithTaskTimeout(time.Duration(t.Fetch.TaskTimeout)),
		fetch.WithMaxRetries(t.Fetch.MaxRetries),
		fetch.WithBackoffBase(time.Duration(t.Fetch.BackoffBase)),
		fetch.WithGlobalTimeout(time.Duration(t.Fetch.GlobalTimeout)),
		fetch.WithWorkers(t.Fetch.Workers),
	}
}

// IndexOptions pins the index to the embedder dimension
func (t *Tuning) IndexOptions(dimension int) []index.Option {
	return []index.Option{
		index.WithDimension(dimension),
		index.WithMaxChars(t.Index.MaxChars),
	}
}

func (t *Tuning) SynthesisOptions() []synthesis.Option {
	return []synthesis.Option{
		synthesis.WithSamplePerKind(t.Synthesis.SamplePerKind),
		synthesis.WithSampleChars(t.Synthesis.SampleChars),
		synthesis.WithMaxTokens(t.Synthesis.MaxTokens),
		synthesis.WithTemperature(t.Synthesis.Temperature),
		synthesis.WithTimeout(time.Duration(t.Synthesis.Timeout)),
	}
}

func (t *Tuning) RAGOptions() []rag.Option {
	return []rag.Option{
		rag.WithK(t.RAG.K),
		rag.WithHistoryTurns(t.RAG.HistoryTurns),
		rag.WithMaxTurns(t.RAG.MaxTurns),
		rag.WithSimilarityFloor(t.RAG.SimilarityFloor),
		rag.WithTimeout(time.Duration(t.RAG.Timeout)),
		rag.WithMaxTokens(t.RAG.MaxTokens),
		rag.WithTemperature(t.RAG.Temperature),
		rag.WithFollowUps(t.RAG.FollowUps),
	}
}

// NewTracker creates a usage tracker throttled by the configured rate limits
func (t *Tuning) NewTracker() *usage.Tracker {
	var opts []usage.Option
	for key, rl := range t.RateLimits {
		opts = append(opts, usage.WithLimit(key, usage.Limit{RequestsPerSecond: rl.RequestsPerSecond, Burst: rl.Burst}))
	}
	return usage.New(opts...)
}

// Engine selects the tuning file
type Engine struct {
	path string
}

func (x *Engine) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Engine tuning file (TOML)",
			Sources:     cli.EnvVars("TRENDSCOPE_CONFIG"),
			Destination: &x.path,
		},
	}
}

func (x *Engine) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.String("config", x.path)}
}

// Configure loads the tuning file, or the defaults when no path is set
func (x *Engine) Configure() (*Tuning, error) {
	if x.path == "" {
		return DefaultTuning(), nil
	}
	return LoadTuning(x.path)
}
