package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/trendscope/pkg/controller/http"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/repository/memory"
	"github.com/secmon-lab/trendscope/pkg/service/fetch"
	"github.com/secmon-lab/trendscope/pkg/service/rag"
	"github.com/secmon-lab/trendscope/pkg/usecase"
)

type mockSource struct {
	kind    types.SourceKind
	records []model.RawRecord
}

func (m *mockSource) Kind() types.SourceKind { return m.kind }

func (m *mockSource) Fetch(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	return m.records, nil
}

type mockGenerator struct{}

func (m *mockGenerator) Generate(ctx context.Context, prompt string, opts interfaces.GenerateOptions) (string, error) {
	switch {
	case strings.Contains(opts.SystemPrompt, "media analyst"):
		return `{"summary": "Prices are falling.", "insights": ["a", "b", "c"], "source_comparison": {"news": "neutral"}}`, nil
	case opts.JSON:
		return `{"questions": ["Why?"]}`, nil
	default:
		return "Prices dropped [1].", nil
	}
}

func newServer(t *testing.T) *httpctrl.Server {
	t.Helper()
	uc := usecase.New(memory.New(),
		usecase.WithSources(&mockSource{kind: types.SourceKindNews, records: []model.RawRecord{
			{"url": "https://example.com/a", "title": "Electric vehicle prices drop", "description": "Automakers cut electric vehicle prices"},
			{"url": "https://example.com/b", "title": "Charging stations", "description": "New charging stations open downtown"},
		}}),
		usecase.WithGenerator(&mockGenerator{}),
		usecase.WithSourceLimits(model.SourceLimits{types.SourceKindNews: 5}),
		usecase.WithFetchOptions(fetch.WithMaxRetries(0), fetch.WithGlobalTimeout(time.Second)),
		usecase.WithRAGOptions(rag.WithSimilarityFloor(0.4)),
	)
	return httpctrl.New(uc)
}

func do(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		gt.NoError(t, json.NewEncoder(&buf).Encode(body)).Required()
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

type analysisBody struct {
	SessionID      string         `json:"session_id"`
	Query          string         `json:"query"`
	DocumentCounts map[string]int `json:"document_counts"`
	Report         struct {
		Summary  string   `json:"summary"`
		Insights []string `json:"insights"`
	} `json:"report"`
}

func analyze(t *testing.T, srv http.Handler) analysisBody {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/analyze", map[string]string{"query": "electric vehicles"})
	gt.Value(t, rec.Code).Equal(http.StatusOK)

	var body analysisBody
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body)).Required()
	return body
}

func TestAnalyzeEndpoint(t *testing.T) {
	srv := newServer(t)

	t.Run("returns the report", func(t *testing.T) {
		body := analyze(t, srv)
		gt.Value(t, body.Query).Equal("electric vehicles")
		gt.Value(t, body.Report.Summary).Equal("Prices are falling.")
		gt.Array(t, body.Report.Insights).Length(3)
		gt.Value(t, body.DocumentCounts["news"]).Equal(2)
		gt.Value(t, body.SessionID).NotEqual("")
	})

	t.Run("empty query is a bad request", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/analyze", map[string]string{"query": ""})
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestSessionEndpoints(t *testing.T) {
	srv := newServer(t)
	body := analyze(t, srv)
	base := "/api/sessions/" + body.SessionID

	t.Run("report", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, base+"/report", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
	})

	t.Run("documents by kind", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, base+"/documents?kind=news", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var docs []struct {
			ID        string `json:"id"`
			Kind      string `json:"kind"`
			Sentiment *struct {
				Label string `json:"label"`
			} `json:"sentiment"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs)).Required()
		gt.Array(t, docs).Length(2).Required()
		gt.Value(t, docs[0].Kind).Equal("news")
		gt.Value(t, docs[0].Sentiment).NotNil()

		rec = do(t, srv, http.MethodGet, base+"/documents?kind=podcast", nil)
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("ask and conversation", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, base+"/ask", map[string]string{"question": "electric vehicle prices drop"})
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var turn struct {
			Answer    string `json:"answer"`
			Status    string `json:"status"`
			Citations []struct {
				URL string `json:"url"`
			} `json:"citations"`
			FollowUps []string `json:"follow_ups"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn)).Required()
		gt.Value(t, turn.Status).Equal("answered")
		gt.Value(t, turn.Answer).Equal("Prices dropped [1].")
		gt.Array(t, turn.Citations).Length(1).Required()
		gt.Value(t, turn.Citations[0].URL).Equal("https://example.com/a")

		rec = do(t, srv, http.MethodGet, base+"/conversation", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		gt.String(t, rec.Body.String()).Contains("electric vehicle prices drop")

		rec = do(t, srv, http.MethodDelete, base+"/conversation", nil)
		gt.Value(t, rec.Code).Equal(http.StatusNoContent)

		rec = do(t, srv, http.MethodGet, base+"/conversation", nil)
		gt.String(t, rec.Body.String()).Contains(`"turns":[]`)
	})

	t.Run("suggestions", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, base+"/suggestions", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		gt.String(t, rec.Body.String()).Contains("What do news sources say about electric vehicles?")
	})

	t.Run("status", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/status", nil)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		var status struct {
			Status   string `json:"status"`
			Sessions int    `json:"sessions"`
			Usage    []struct {
				Key   string `json:"key"`
				Calls int    `json:"calls"`
			} `json:"usage"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status)).Required()
		gt.Value(t, status.Status).Equal("ok")
		gt.Value(t, status.Sessions).Equal(1)
		gt.Array(t, status.Usage).Length(1).Required()
		gt.Value(t, status.Usage[0].Key).Equal("fetch:news")
	})

	t.Run("close session", func(t *testing.T) {
		rec := do(t, srv, http.MethodDelete, base, nil)
		gt.Value(t, rec.Code).Equal(http.StatusNoContent)

		rec = do(t, srv, http.MethodGet, base+"/report", nil)
		gt.Value(t, rec.Code).Equal(http.StatusNotFound)

		rec = do(t, srv, http.MethodPost, base+"/ask", map[string]string{"question": "anything"})
		gt.Value(t, rec.Code).Equal(http.StatusNotFound)
	})
}

func TestUnknownSession(t *testing.T) {
	srv := newServer(t)
	rec := do(t, srv, http.MethodGet, "/api/sessions/unknown/suggestions", nil)
	gt.Value(t, rec.Code).Equal(http.StatusNotFound)
}
