package synthesis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/sentiment"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

//go:embed prompt/synthesis.md
var synthesisPromptTmpl string

var synthesisPrompt = template.Must(template.New("synthesis").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(synthesisPromptTmpl))

const systemPrompt = "You are a media analyst. You only state what the supplied material supports and you answer in JSON."

const (
	DefaultSamplePerKind = 5
	DefaultSampleChars   = 300
	DefaultMaxTokens     = 1000
	DefaultTemperature   = 0.3
	DefaultTimeout       = 60 * time.Second

	minInsights = 3
	maxInsights = 5
	themeCount  = 5
)

// Synthesizer produces the one-shot analysis report of a corpus
type Synthesizer struct {
	generator     interfaces.Generator
	samplePerKind int
	sampleChars   int
	maxTokens     int
	temperature   float64
	timeout       time.Duration
}

type Option func(*Synthesizer)

func WithSamplePerKind(n int) Option {
	return func(s *Synthesizer) { s.samplePerKind = n }
}

func WithSampleChars(n int) Option {
	return func(s *Synthesizer) { s.sampleChars = n }
}

func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) { s.maxTokens = n }
}

func WithTemperature(t float64) Option {
	return func(s *Synthesizer) { s.temperature = t }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.timeout = d }
}

// New creates a Synthesizer. A nil generator yields degraded reports.
func New(generator interfaces.Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		generator:     generator,
		samplePerKind: DefaultSamplePerKind,
		sampleChars:   DefaultSampleChars,
		maxTokens:     DefaultMaxTokens,
		temperature:   DefaultTemperature,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type promptSample struct {
	Title     string
	Text      string
	Published string
}

type promptSource struct {
	Kind            types.SourceKind
	Count           int
	AveragePolarity float64
	Positive        int
	Neutral         int
	Negative        int
	Themes          []string
	Samples         []promptSample
}

type promptData struct {
	Query    string
	Sources  []promptSource
	Failures []string
}

type llmResponse struct {
	Summary          string            `json:"summary"`
	Insights         []string          `json:"insights"`
	SourceComparison map[string]string `json:"source_comparison"`
}

// Synthesize never fails. Generation problems produce a degraded report that
// still carries the locally computed statistics and failure notes.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, corpus *model.Corpus, sentiments model.Sentiments, failures []*model.FetchError) *model.AnalysisReport {
	logger := logging.From(ctx)

	report := &model.AnalysisReport{
		Query:                 query,
		Insights:              []string{},
		SourceSummaries:       make(map[types.SourceKind]string),
		SentimentDistribution: sentiment.Distribution(corpus, sentiments),
		SourceStats:           make(map[types.SourceKind]model.SourceStats),
		FailureNotes:          []string{},
		GeneratedAt:           time.Now().UTC(),
	}
	for _, fe := range failures {
		report.FailureNotes = append(report.FailureNotes, fe.Note())
	}
	for _, kind := range corpus.Kinds() {
		docs := corpus.Documents(kind)
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Text()
		}
		report.SourceStats[kind] = model.SourceStats{
			Kind:            kind,
			DocumentCount:   len(docs),
			AveragePolarity: sentiment.AveragePolarity(docs, sentiments),
			KeyThemes:       sentiment.KeyThemes(texts, themeCount),
		}
	}

	if corpus.Len() == 0 {
		return degrade(report, "no documents were retrieved for this query")
	}
	if s.generator == nil {
		return degrade(report, "text generation is not configured")
	}

	prompt, err := s.buildPrompt(query, corpus, report)
	if err != nil {
		logger.Error("failed to build synthesis prompt", "error", err)
		return degrade(report, "the analysis prompt could not be built")
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.generator.Generate(genCtx, prompt, interfaces.GenerateOptions{
		SystemPrompt: systemPrompt,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
		JSON:         true,
	})
	if err != nil {
		logger.Warn("synthesis generation failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return degrade(report, "text generation timed out")
		}
		return degrade(report, "text generation failed")
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		logger.Warn("malformed synthesis response", "error", err)
		return degrade(report, "the generated analysis was malformed")
	}

	report.Summary = parsed.Summary
	report.Insights = parsed.Insights
	for key, text := range parsed.SourceComparison {
		kind, err := types.ParseSourceKind(strings.ToLower(strings.TrimSpace(key)))
		if err != nil || corpus.Count(kind) == 0 {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			report.SourceSummaries[kind] = text
		}
	}

	logger.Info("analysis synthesized", "query", query, "insights", len(report.Insights))
	return report
}

func degrade(report *model.AnalysisReport, reason string) *model.AnalysisReport {
	report.Summary = "Analysis unavailable: " + reason + "."
	report.Insights = []string{}
	report.Degraded = true
	return report
}

func (s *Synthesizer) buildPrompt(query string, corpus *model.Corpus, report *model.AnalysisReport) (string, error) {
	data := promptData{Query: query, Failures: report.FailureNotes}

	for _, kind := range corpus.Kinds() {
		stats := report.SourceStats[kind]
		dist := report.SentimentDistribution[kind]
		src := promptSource{
			Kind:            kind,
			Count:           stats.DocumentCount,
			AveragePolarity: stats.AveragePolarity,
			Positive:        dist[types.SentimentPositive],
			Neutral:         dist[types.SentimentNeutral],
			Negative:        dist[types.SentimentNegative],
			Themes:          stats.KeyThemes,
		}
		for _, doc := range SelectSample(query, corpus.Documents(kind), s.samplePerKind) {
			sample := promptSample{
				Title: doc.Title,
				Text:  truncate(doc.Body, s.sampleChars),
			}
			if doc.PublishedAt != nil {
				sample.Published = doc.PublishedAt.Format("2006-01-02")
			}
			src.Samples = append(src.Samples, sample)
		}
		data.Sources = append(data.Sources, src)
	}

	var buf strings.Builder
	if err := synthesisPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute synthesis prompt template")
	}
	return buf.String(), nil
}

func truncate(text string, n int) string {
	runes := []rune(text)
	if n <= 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

// SelectSample picks up to n documents, preferring those mentioning more query
// terms, then the most recent, then arrival order.
func SelectSample(query string, docs []*model.Document, n int) []*model.Document {
	terms := queryTerms(query)
	type ranked struct {
		doc       *model.Document
		relevance int
	}

	items := make([]ranked, len(docs))
	for i, d := range docs {
		text := strings.ToLower(d.Text())
		rel := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				rel++
			}
		}
		items[i] = ranked{doc: d, relevance: rel}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].relevance != items[j].relevance {
			return items[i].relevance > items[j].relevance
		}
		pi, pj := items[i].doc.PublishedAt, items[j].doc.PublishedAt
		switch {
		case pi != nil && pj != nil:
			return pi.After(*pj)
		case pi != nil:
			return true
		default:
			return false
		}
	})

	if len(items) > n {
		items = items[:n]
	}
	result := make([]*model.Document, len(items))
	for i, it := range items {
		result[i] = it.doc
	}
	return result
}

var (
	codeFence    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	listItemMark = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+`)
)

func parseResponse(raw string) (*llmResponse, error) {
	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse synthesis response", goerr.V("response", raw))
	}

	resp.Summary = strings.TrimSpace(resp.Summary)
	if resp.Summary == "" {
		return nil, goerr.New("synthesis response has no summary", goerr.V("response", raw))
	}

	insights := make([]string, 0, len(resp.Insights))
	for _, in := range resp.Insights {
		in = strings.TrimSpace(listItemMark.ReplaceAllString(in, ""))
		if in != "" {
			insights = append(insights, in)
		}
		if len(insights) == maxInsights {
			break
		}
	}
	if len(insights) < minInsights {
		return nil, goerr.New("synthesis response has too few insights",
			goerr.V("insights", len(insights)), goerr.V("response", raw))
	}
	resp.Insights = insights

	return &resp, nil
}
