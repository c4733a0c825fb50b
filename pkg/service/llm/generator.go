package llm

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

// charsPerToken approximates the token budget as characters
const charsPerToken = 4

// Generator implements interfaces.Generator on top of a gollem LLM client
type Generator struct {
	client  gollem.LLMClient
	tracker *usage.Tracker
}

var _ interfaces.Generator = &Generator{}

type GeneratorOption func(*Generator)

// WithGeneratorTracker counts generation calls in tracker
func WithGeneratorTracker(tracker *usage.Tracker) GeneratorOption {
	return func(g *Generator) {
		g.tracker = tracker
	}
}

func NewGenerator(client gollem.LLMClient, opts ...GeneratorOption) (*Generator, error) {
	if client == nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "LLM client is required")
	}

	g := &Generator{client: client}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate runs one single-turn session. Failures are returned as *model.GenerationError.
// The response is cut to roughly MaxTokens when the backend overshoots.
func (g *Generator) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	if g.tracker != nil {
		if err := g.tracker.Acquire(ctx, usage.KeyGenerate); err != nil {
			return "", &model.GenerationError{Err: err}
		}
	}

	var sessionOpts []gollem.SessionOption
	if opts.SystemPrompt != "" {
		sessionOpts = append(sessionOpts, gollem.WithSessionSystemPrompt(opts.SystemPrompt))
	}
	if opts.JSON {
		sessionOpts = append(sessionOpts, gollem.WithSessionContentType(gollem.ContentTypeJSON))
	}

	session, err := g.client.NewSession(ctx, sessionOpts...)
	if err != nil {
		g.fail()
		return "", &model.GenerationError{Err: goerr.Wrap(err, "failed to create LLM session")}
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(prompt))
	if err != nil {
		g.fail()
		return "", &model.GenerationError{Err: goerr.Wrap(err, "failed to generate content")}
	}
	if resp == nil || len(resp.Texts) == 0 {
		g.fail()
		return "", &model.GenerationError{Err: goerr.New("empty response from LLM")}
	}

	text := strings.TrimSpace(strings.Join(resp.Texts, ""))
	if text == "" {
		g.fail()
		return "", &model.GenerationError{Err: goerr.New("empty response from LLM")}
	}

	if opts.MaxTokens > 0 && !opts.JSON {
		if limit := opts.MaxTokens * charsPerToken; len([]rune(text)) > limit {
			logging.From(ctx).Debug("truncating generated text", "limit", limit)
			text = string([]rune(text)[:limit])
		}
	}

	return text, nil
}

func (g *Generator) fail() {
	if g.tracker != nil {
		g.tracker.RecordFailure(usage.KeyGenerate)
	}
}
