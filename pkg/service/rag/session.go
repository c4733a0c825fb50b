package rag

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/trendscope/pkg/domain/interfaces"
	"github.com/secmon-lab/trendscope/pkg/domain/model"
	"github.com/secmon-lab/trendscope/pkg/domain/types"
	"github.com/secmon-lab/trendscope/pkg/service/index"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

//go:embed prompt/answer.md
var answerPromptTmpl string

//go:embed prompt/follow_up.md
var followUpPromptTmpl string

var (
	answerPrompt   = template.Must(template.New("answer").Parse(answerPromptTmpl))
	followUpPrompt = template.Must(template.New("follow_up").Parse(followUpPromptTmpl))
)

// InsufficientEvidenceAnswer is returned when no document is similar enough to the question
const InsufficientEvidenceAnswer = "I don't have enough information to answer that question based on the current search results."

const answerSystemPrompt = "You answer questions strictly from the supplied source documents and cite them by number."

const (
	DefaultK               = 5
	DefaultHistoryTurns    = 3
	DefaultSimilarityFloor = 0.2
	DefaultTimeout         = 60 * time.Second
	DefaultMaxTokens       = 800
	DefaultTemperature     = 0.3
	DefaultSnippetChars    = 1200
	DefaultFollowUps       = 3
)

// Retriever is the part of the embedding index a session reads from
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]index.Hit, error)
	Document(id types.DocumentID) (*model.Document, bool)
}

// Session answers questions about one analysis. Turns are serialized: a second
// Ask waits until the first returns to idle.
type Session struct {
	id        model.SessionID
	retriever Retriever
	generator interfaces.Generator
	history   *model.ConversationHistory

	k            int
	historyTurns int
	floor        float64
	timeout      time.Duration
	maxTokens    int
	temperature  float64
	snippetChars int
	followUps    int

	slot    chan struct{}
	stateMu sync.RWMutex
	state   types.SessionState
}

type Option func(*Session)

func WithK(k int) Option {
	return func(s *Session) { s.k = k }
}

// WithHistoryTurns sets how many previous turns are included in the prompt
func WithHistoryTurns(n int) Option {
	return func(s *Session) { s.historyTurns = n }
}

func WithSimilarityFloor(f float64) Option {
	return func(s *Session) { s.floor = f }
}

// WithTimeout sets the per-turn generation timeout
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

func WithMaxTokens(n int) Option {
	return func(s *Session) { s.maxTokens = n }
}

func WithTemperature(t float64) Option {
	return func(s *Session) { s.temperature = t }
}

func WithSnippetChars(n int) Option {
	return func(s *Session) { s.snippetChars = n }
}

// WithFollowUps sets the number of suggested follow-up questions; 0 disables them
func WithFollowUps(n int) Option {
	return func(s *Session) { s.followUps = n }
}

// WithMaxTurns bounds the conversation history
func WithMaxTurns(n int) Option {
	return func(s *Session) { s.history = model.NewConversationHistory(n) }
}

func New(id model.SessionID, retriever Retriever, generator interfaces.Generator, opts ...Option) (*Session, error) {
	if retriever == nil {
		return nil, goerr.Wrap(model.ErrConfiguration, "retriever is required")
	}

	s := &Session{
		id:           id,
		retriever:    retriever,
		generator:    generator,
		history:      model.NewConversationHistory(model.DefaultMaxTurns),
		k:            DefaultK,
		historyTurns: DefaultHistoryTurns,
		floor:        DefaultSimilarityFloor,
		timeout:      DefaultTimeout,
		maxTokens:    DefaultMaxTokens,
		temperature:  DefaultTemperature,
		snippetChars: DefaultSnippetChars,
		followUps:    DefaultFollowUps,
		slot:         make(chan struct{}, 1),
		state:        types.SessionStateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) ID() model.SessionID {
	return s.id
}

// State returns the current turn state
func (s *Session) State() types.SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(ctx context.Context, state types.SessionState) {
	s.stateMu.Lock()
	prev := s.state
	s.state = state
	s.stateMu.Unlock()
	logging.From(ctx).Debug("session state changed", "session_id", s.id, "from", prev, "to", state)
}

// History returns the conversation so far, oldest first
func (s *Session) History() []model.ConversationTurn {
	return s.history.Turns()
}

// Clear drops the conversation history. It waits for an in-flight turn.
func (s *Session) Clear(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "interrupted while waiting for the current turn")
	}
	defer func() { <-s.slot }()

	s.history.Clear()
	return nil
}

type grounding struct {
	doc   *model.Document
	score float64
}

// Ask answers one question. Generation failures and missing evidence produce a
// turn, not an error; errors are returned only for invalid input, cancellation
// while waiting for the previous turn, and configuration faults.
func (s *Session) Ask(ctx context.Context, question string) (*model.ConversationTurn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, goerr.New("question is empty", goerr.V("session_id", s.id))
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, goerr.Wrap(ctx.Err(), "interrupted while waiting for the previous turn", goerr.V("session_id", s.id))
	}
	defer func() {
		s.setState(ctx, types.SessionStateIdle)
		<-s.slot
	}()

	logger := logging.From(ctx).With("session_id", s.id)

	s.setState(ctx, types.SessionStateRetrieving)
	docs, err := s.retrieve(ctx, question)
	switch {
	case errors.Is(err, model.ErrConfiguration):
		return nil, err
	case errors.Is(err, model.ErrEvidenceInsufficient):
		logger.Info("insufficient evidence", "question", question)
		return s.finish(ctx, &model.ConversationTurn{
			Question: question,
			Answer:   InsufficientEvidenceAnswer,
			Status:   types.TurnStatusInsufficientEvidence,
		}), nil
	case err != nil:
		logger.Warn("retrieval failed", "error", err)
		return s.finish(ctx, failedTurn(question, "the collected documents could not be searched")), nil
	}

	if s.generator == nil {
		return s.finish(ctx, failedTurn(question, "text generation is not configured")), nil
	}

	prompt, err := buildAnswerPrompt(question, docs, s.history.Last(s.historyTurns), s.snippetChars)
	if err != nil {
		logger.Error("failed to build answer prompt", "error", err)
		return s.finish(ctx, failedTurn(question, "the question could not be prepared")), nil
	}

	s.setState(ctx, types.SessionStateGenerating)
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.generator.Generate(genCtx, prompt, interfaces.GenerateOptions{
		SystemPrompt: answerSystemPrompt,
		MaxTokens:    s.maxTokens,
		Temperature:  s.temperature,
	})
	if err != nil {
		logger.Warn("answer generation failed", "error", err)
		reason := "the answer could not be generated"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			reason = "answer generation timed out"
		}
		return s.finish(ctx, failedTurn(question, reason)), nil
	}

	turn := &model.ConversationTurn{
		Question:         question,
		Answer:           strings.TrimSpace(answer),
		CitedDocumentIDs: make([]types.DocumentID, len(docs)),
		Status:           types.TurnStatusAnswered,
	}
	var total float64
	for i, g := range docs {
		turn.CitedDocumentIDs[i] = g.doc.ID
		total += g.score
	}
	turn.Confidence = total / float64(len(docs))
	turn.FollowUps = s.suggestFollowUps(genCtx, question, turn.Answer, docs)

	s.setState(ctx, types.SessionStateAnswered)
	return s.finish(ctx, turn), nil
}

func failedTurn(question, reason string) *model.ConversationTurn {
	return &model.ConversationTurn{
		Question: question,
		Answer:   "Sorry, I could not answer this question: " + reason + ". Please try again.",
		Status:   types.TurnStatusFailed,
	}
}

func (s *Session) finish(ctx context.Context, turn *model.ConversationTurn) *model.ConversationTurn {
	turn.Timestamp = time.Now().UTC()
	if turn.CitedDocumentIDs == nil {
		turn.CitedDocumentIDs = []types.DocumentID{}
	}
	if turn.FollowUps == nil {
		turn.FollowUps = []string{}
	}
	if evicted := s.history.Append(*turn); evicted > 0 {
		logging.From(ctx).Debug("conversation history trimmed", "session_id", s.id, "evicted", evicted)
	}
	return turn
}

// retrieve returns the grounding documents in rank order, deduplicated and above
// the similarity floor
func (s *Session) retrieve(ctx context.Context, question string) ([]grounding, error) {
	hits, err := s.retriever.Query(ctx, question, s.k)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query index")
	}

	seen := make(map[types.DocumentID]bool, len(hits))
	var docs []grounding
	for _, hit := range hits {
		if hit.Score < s.floor || seen[hit.DocumentID] {
			continue
		}
		doc, ok := s.retriever.Document(hit.DocumentID)
		if !ok {
			continue
		}
		seen[hit.DocumentID] = true
		docs = append(docs, grounding{doc: doc, score: hit.Score})
	}

	if len(docs) == 0 {
		return nil, goerr.Wrap(model.ErrEvidenceInsufficient, "no document above the similarity floor",
			goerr.V("hits", len(hits)),
			goerr.V("floor", s.floor))
	}
	return docs, nil
}

type promptDocument struct {
	Number    int
	Kind      types.SourceKind
	Title     string
	Author    string
	Published string
	URL       string
	Text      string
}

func toPromptDocuments(docs []grounding, snippetChars int) []promptDocument {
	result := make([]promptDocument, len(docs))
	for i, g := range docs {
		pd := promptDocument{
			Number: i + 1,
			Kind:   g.doc.Kind,
			Title:  g.doc.Title,
			Author: g.doc.Author,
			URL:    g.doc.URL,
			Text:   g.doc.Body,
		}
		if runes := []rune(pd.Text); snippetChars > 0 && len(runes) > snippetChars {
			pd.Text = string(runes[:snippetChars]) + "..."
		}
		if g.doc.PublishedAt != nil {
			pd.Published = g.doc.PublishedAt.Format("2006-01-02")
		}
		result[i] = pd
	}
	return result
}

func buildAnswerPrompt(question string, docs []grounding, history []model.ConversationTurn, snippetChars int) (string, error) {
	data := struct {
		Question  string
		History   []model.ConversationTurn
		Documents []promptDocument
	}{
		Question:  question,
		History:   history,
		Documents: toPromptDocuments(docs, snippetChars),
	}

	var buf strings.Builder
	if err := answerPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute answer prompt template")
	}
	return buf.String(), nil
}

// suggestFollowUps asks for follow-up questions. Any failure yields an empty list.
func (s *Session) suggestFollowUps(ctx context.Context, question, answer string, docs []grounding) []string {
	if s.followUps <= 0 {
		return []string{}
	}
	logger := logging.From(ctx)

	data := struct {
		Question  string
		Answer    string
		Documents []promptDocument
		Count     int
	}{
		Question:  question,
		Answer:    answer,
		Documents: toPromptDocuments(docs, s.snippetChars),
		Count:     s.followUps,
	}
	var buf strings.Builder
	if err := followUpPrompt.Execute(&buf, data); err != nil {
		logger.Warn("failed to build follow-up prompt", "error", err)
		return []string{}
	}

	raw, err := s.generator.Generate(ctx, buf.String(), interfaces.GenerateOptions{
		MaxTokens:   200,
		Temperature: s.temperature,
		JSON:        true,
	})
	if err != nil {
		logger.Debug("follow-up generation failed", "error", err)
		return []string{}
	}

	var resp struct {
		Questions []string `json:"questions"`
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &resp); err != nil {
		logger.Debug("malformed follow-up response", "error", err)
		return []string{}
	}

	result := make([]string, 0, s.followUps)
	for _, q := range resp.Questions {
		if q = strings.TrimSpace(q); q != "" {
			result = append(result, q)
		}
		if len(result) == s.followUps {
			break
		}
	}
	return result
}
