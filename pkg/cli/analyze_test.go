package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/trendscope/pkg/cli"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/repository/memory"
	"github.com/secmon-lab/trendscope/pkg/service/rag"
	"github.com/secmon-lab/trendscope/pkg/usecase"
)

type newsSource struct{}

func (newsSource) Kind() types.SourceKind { return types.SourceKindNews }

func (newsSource) Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	return []model.RawRecord{{
		"url":         "https://example.com/prices",
		"title":       "Electric vehicle prices drop",
		"description": "Automakers cut electric vehicle prices by ten percent in March",
		"source":      "Daily Planet",
	}}, nil
}

type mockGenerator struct{}

func (mockGenerator) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	switch {
	case strings.Contains(opts.SystemPrompt, "media analyst"):
		return `{"summary": "Prices are falling.", "insights": ["Discounts spread", "Buyers wait", "Margins shrink"], "source_comparison": {"news": "neutral"}}`, nil
	case opts.JSON:
		return `{"questions": ["Which automakers cut prices?"]}`, nil
	}
	return "Automakers cut prices by ten percent [1].", nil
}

func setup(t *testing.T) (*usecase.UseCases, *model.Analysis) {
	t.Helper()
	color.NoColor = true

	uc := usecase.New(memory.New(),
		usecase.WithSources(newsSource{}),
		usecase.WithGenerator(mockGenerator{}),
		usecase.WithRAGOptions(rag.WithSimilarityFloor(0.1)),
	)
	analysis, err := uc.Analysis.Analyze(context.Background(), "electric vehicle prices")
	gt.NoError(t, err).Required()
	return uc, analysis
}

func TestRenderReport(t *testing.T) {
	_, analysis := setup(t)

	var buf bytes.Buffer
	cli.RenderReport(&buf, analysis)

	out := buf.String()
	gt.String(t, out).Contains("Analysis: electric vehicle prices")
	gt.String(t, out).Contains("Prices are falling.")
	gt.String(t, out).Contains("1. Discounts spread")
	gt.String(t, out).Contains("news (1 documents")
	gt.String(t, out).Contains("video: authentication")
}

func TestRenderAnalysisJSON(t *testing.T) {
	_, analysis := setup(t)

	var buf bytes.Buffer
	gt.NoError(t, cli.RenderAnalysisJSON(&buf, analysis)).Required()

	var view struct {
		SessionID   string         `json:"session_id"`
		Documents   map[string]int `json:"documents"`
		FetchErrors []struct {
			Kind  string `json:"kind"`
			Cause string `json:"cause"`
		} `json:"fetch_errors"`
	}
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &view)).Required()
	gt.Value(t, view.SessionID).Equal(analysis.SessionID.String())
	gt.Value(t, view.Documents["news"]).Equal(1)
	gt.Value(t, view.Documents["social"]).Equal(0)
	gt.Array(t, view.FetchErrors).Length(2)
}

func TestConverse(t *testing.T) {
	uc, analysis := setup(t)

	in := strings.NewReader(strings.Join([]string{
		"/suggest",
		"What happened to electric vehicle prices?",
		"/history",
		"/clear",
		"/history",
		"exit",
		"never asked",
	}, "\n"))
	var out bytes.Buffer

	gt.NoError(t, cli.Converse(context.Background(), in, &out, uc, analysis)).Required()

	text := out.String()
	gt.String(t, text).Contains("What do news sources say about electric vehicle prices?")
	gt.String(t, text).Contains("Automakers cut prices by ten percent [1].")
	gt.String(t, text).Contains("(news) Electric vehicle prices drop")
	gt.String(t, text).Contains("Which automakers cut prices?")
	gt.String(t, text).Contains("Q1: What happened to electric vehicle prices?")
	gt.String(t, text).Contains("Conversation cleared")
	gt.String(t, text).Contains("No conversation yet")

	turns, err := uc.Conversation.History(context.Background(), analysis.SessionID)
	gt.NoError(t, err).Required()
	gt.Array(t, turns).Length(0)
}

func TestConverseEOF(t *testing.T) {
	uc, analysis := setup(t)

	var out bytes.Buffer
	gt.NoError(t, cli.Converse(context.Background(), strings.NewReader("What about prices?"), &out, uc, analysis))

	turns, err := uc.Conversation.History(context.Background(), analysis.SessionID)
	gt.NoError(t, err).Required()
	gt.Array(t, turns).Length(1)
}
