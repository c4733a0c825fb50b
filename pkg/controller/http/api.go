package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/usage"
	"github.com/secmon-lab/trendscope/pkg/usecase"
	"github.com/secmon-lab/trendscope/pkg/utils/errutil"
	"github.com/secmon-lab/trendscope/pkg/utils/safe"
)

var errInvalidBody = goerr.New("invalid request body")

type analyzeRequest struct {
	Query string `json:"query"`
}

type askRequest struct {
	Question string `json:"question"`
}

type fetchErrorResponse struct {
	Kind    types.SourceKind `json:"kind"`
	Cause   types.FetchCause `json:"cause"`
	Message string           `json:"message"`
}

type documentResponse struct {
	ID          types.DocumentID      `json:"id"`
	Kind        types.SourceKind      `json:"kind"`
	Title       string                `json:"title"`
	Body        string                `json:"body"`
	Author      string                `json:"author,omitempty"`
	PublishedAt *time.Time            `json:"published_at,omitempty"`
	URL         string                `json:"url,omitempty"`
	Sentiment   *model.SentimentScore `json:"sentiment,omitempty"`
}

type analysisResponse struct {
	SessionID      model.SessionID          `json:"session_id"`
	Query          string                   `json:"query"`
	Report         *model.AnalysisReport    `json:"report"`
	DocumentCounts map[types.SourceKind]int `json:"document_counts"`
	FetchErrors    []fetchErrorResponse     `json:"fetch_errors"`
	CreatedAt      time.Time                `json:"created_at"`
}

type sessionSummary struct {
	SessionID model.SessionID `json:"session_id"`
	Query     string          `json:"query"`
	Degraded  bool            `json:"degraded"`
	CreatedAt time.Time       `json:"created_at"`
}

type citationResponse struct {
	ID    types.DocumentID `json:"id"`
	Kind  types.SourceKind `json:"kind"`
	Title string           `json:"title"`
	URL   string           `json:"url,omitempty"`
}

type turnResponse struct {
	model.ConversationTurn
	Citations []citationResponse `json:"citations"`
}

type statusResponse struct {
	Status   string        `json:"status"`
	Sessions int           `json:"sessions"`
	Usage    []usage.Stats `json:"usage"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
}

// handleError maps use case errors onto HTTP status codes
func handleError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrEmptyQuery),
		errors.Is(err, usecase.ErrEmptyQuestion),
		errors.Is(err, errInvalidBody):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	errutil.HandleHTTP(ctx, w, err, status)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(errors.Join(errInvalidBody, err), "failed to decode request")
	}
	return nil
}

func sessionID(r *http.Request) model.SessionID {
	return model.SessionID(chi.URLParam(r, "id"))
}

func toAnalysisResponse(a *model.Analysis) analysisResponse {
	resp := analysisResponse{
		SessionID:      a.SessionID,
		Query:          a.Query,
		Report:         a.Report,
		DocumentCounts: make(map[types.SourceKind]int),
		FetchErrors:    make([]fetchErrorResponse, 0, len(a.FetchErrors)),
		CreatedAt:      a.CreatedAt,
	}
	for _, kind := range types.AllSourceKinds() {
		resp.DocumentCounts[kind] = a.Corpus.Count(kind)
	}
	for _, fe := range a.FetchErrors {
		msg := ""
		if fe.Err != nil {
			msg = fe.Err.Error()
		}
		resp.FetchErrors = append(resp.FetchErrors, fetchErrorResponse{Kind: fe.Kind, Cause: fe.Cause, Message: msg})
	}
	return resp
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, statusResponse{
		Status:   "ok",
		Sessions: s.uc.SessionCount(),
		Usage:    s.uc.Usage(),
	})
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := s.decode(w, r, &req); err != nil {
		handleError(r.Context(), w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.analyzeTimeout)
	defer cancel()

	analysis, err := s.uc.Analysis.Analyze(ctx, req.Query)
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toAnalysisResponse(analysis))
}

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.uc.Analysis.List(r.Context())
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}

	resp := make([]sessionSummary, len(analyses))
	for i, a := range analyses {
		resp[i] = sessionSummary{
			SessionID: a.SessionID,
			Query:     a.Query,
			Degraded:  a.Report != nil && a.Report.Degraded,
			CreatedAt: a.CreatedAt,
		}
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.uc.Analysis.Get(r.Context(), sessionID(r))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, toAnalysisResponse(analysis))
}

func (s *Server) documentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := sessionID(r)

	var kind types.SourceKind
	if q := r.URL.Query().Get("kind"); q != "" {
		parsed, err := types.ParseSourceKind(q)
		if err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}
		kind = parsed
	}

	docs, err := s.uc.Analysis.Documents(ctx, id, kind)
	if err != nil {
		handleError(ctx, w, err)
		return
	}
	analysis, err := s.uc.Analysis.Get(ctx, id)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	resp := make([]documentResponse, len(docs))
	for i, d := range docs {
		resp[i] = documentResponse{
			ID:          d.ID,
			Kind:        d.Kind,
			Title:       d.Title,
			Body:        d.Body,
			Author:      d.Author,
			PublishedAt: d.PublishedAt,
			URL:         d.URL,
		}
		if score, ok := analysis.Sentiments[d.ID]; ok {
			resp[i].Sentiment = &score
		}
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := sessionID(r)

	var req askRequest
	if err := s.decode(w, r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}

	turn, err := s.uc.Conversation.Ask(ctx, id, req.Question)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	resp := turnResponse{ConversationTurn: *turn, Citations: []citationResponse{}}
	if analysis, err := s.uc.Analysis.Get(ctx, id); err == nil {
		for _, docID := range turn.CitedDocumentIDs {
			if d, ok := analysis.Corpus.Get(docID); ok {
				resp.Citations = append(resp.Citations, citationResponse{ID: d.ID, Kind: d.Kind, Title: d.Title, URL: d.URL})
			}
		}
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) suggestionsHandler(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.uc.Conversation.Suggestions(r.Context(), sessionID(r))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

func (s *Server) conversationHandler(w http.ResponseWriter, r *http.Request) {
	turns, err := s.uc.Conversation.History(r.Context(), sessionID(r))
	if err != nil {
		handleError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string][]model.ConversationTurn{"turns": turns})
}

func (s *Server) clearConversationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Conversation.Clear(r.Context(), sessionID(r)); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) closeSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.uc.Analysis.Close(r.Context(), sessionID(r)); err != nil {
		handleError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
